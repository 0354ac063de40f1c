package service

import (
	"context"
	"quiz_assessment_backend/internal/model"
	"quiz_assessment_backend/pkg/logger"
	"quiz_assessment_backend/pkg/monitoring"
	"sync"
	"time"

	"go.uber.org/zap"
)

type VisitEvent struct {
	UserID          uint
	CourseID        uint
	QuizID          *uint
	Type            model.VisitType
	DurationSeconds *int
	VisitedAt       time.Time
}

type VisitStore interface {
	Create(ctx context.Context, visit *model.CourseVisit) error
}

// VisitTrackingService 异步记录学习行为，队列满时丢弃，写入失败只记日志
type VisitTrackingService struct {
	store        VisitStore
	queue        chan VisitEvent
	workers      int
	writeTimeout time.Duration

	quit     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func NewVisitTrackingService(store VisitStore, queueSize, workers int, writeTimeout time.Duration) *VisitTrackingService {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if workers <= 0 {
		workers = 1
	}
	if writeTimeout <= 0 {
		writeTimeout = 2 * time.Second
	}
	return &VisitTrackingService{
		store:        store,
		queue:        make(chan VisitEvent, queueSize),
		workers:      workers,
		writeTimeout: writeTimeout,
		quit:         make(chan struct{}),
	}
}

func (s *VisitTrackingService) Notify(event VisitEvent) {
	if event.VisitedAt.IsZero() {
		event.VisitedAt = time.Now()
	}
	if event.DurationSeconds != nil && *event.DurationSeconds < 0 {
		zero := 0
		event.DurationSeconds = &zero
	}

	select {
	case s.queue <- event:
	default:
		monitoring.VisitEventsDropped.Inc()
		logger.Log.Warn("Visit queue full, event dropped",
			zap.Uint("userId", event.UserID),
			zap.String("type", string(event.Type)),
		)
	}
}

// Run 启动写入协程，不阻塞
func (s *VisitTrackingService) Run() {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
}

// Stop 写完队列中剩余的事件后返回
func (s *VisitTrackingService) Stop() {
	s.stopOnce.Do(func() {
		close(s.quit)
	})
	s.wg.Wait()
}

func (s *VisitTrackingService) worker() {
	defer s.wg.Done()
	for {
		select {
		case event := <-s.queue:
			s.record(event)
		case <-s.quit:
			for {
				select {
				case event := <-s.queue:
					s.record(event)
				default:
					return
				}
			}
		}
	}
}

func (s *VisitTrackingService) record(event VisitEvent) {
	defer func() {
		if r := recover(); r != nil {
			logger.Log.Error("Visit recording panicked", zap.Any("panic", r))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
	defer cancel()

	visit := &model.CourseVisit{
		UserID:          event.UserID,
		CourseID:        event.CourseID,
		QuizID:          event.QuizID,
		VisitType:       event.Type,
		DurationSeconds: event.DurationSeconds,
		VisitedAt:       event.VisitedAt,
	}
	if err := s.store.Create(ctx, visit); err != nil {
		logger.Log.Warn("Failed to record visit",
			zap.Uint("userId", event.UserID),
			zap.Uint("courseId", event.CourseID),
			zap.String("type", string(event.Type)),
			zap.Error(err),
		)
	}
}

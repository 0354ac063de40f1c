// Package scheduler 定时把长时间停留在 IN_PROGRESS 的成绩标记为 TIMEOUT。
package scheduler

import (
	"context"
	"errors"
	"quiz_assessment_backend/pkg/logger"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	lockKey = "quiz:scheduler:timeout-cleanup"
	runTTL  = 5 * time.Minute
)

type TimeoutProcessor interface {
	ProcessTimedOutAttempts(ctx context.Context, timeoutMinutes int) (int, error)
}

// Locker 多实例部署时保证同一时刻只有一个实例在清理
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

type RedisLocker struct {
	Client *redis.Client
}

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.Client.SetNX(ctx, key, time.Now().Unix(), ttl).Result()
}

func (l *RedisLocker) Unlock(ctx context.Context, key string) error {
	return l.Client.Del(ctx, key).Err()
}

type TimeoutScheduler struct {
	processor      TimeoutProcessor
	locker         Locker
	schedule       string
	timeoutMinutes atomic.Int64
	cron           *cron.Cron
}

// NewTimeoutScheduler locker 可以为 nil，单实例时不加锁
func NewTimeoutScheduler(processor TimeoutProcessor, schedule string, timeoutMinutes int, locker Locker) *TimeoutScheduler {
	s := &TimeoutScheduler{
		processor: processor,
		locker:    locker,
		schedule:  schedule,
	}
	s.timeoutMinutes.Store(int64(timeoutMinutes))
	return s
}

// SetTimeoutMinutes 配置热更新时调用，下一次执行生效
func (s *TimeoutScheduler) SetTimeoutMinutes(minutes int) {
	if minutes <= 0 {
		logger.Log.Warn("Ignoring invalid timeout minutes", zap.Int("timeoutMinutes", minutes))
		return
	}
	old := s.timeoutMinutes.Swap(int64(minutes))
	if old != int64(minutes) {
		logger.Log.Info("Timeout minutes updated", zap.Int64("from", old), zap.Int("to", minutes))
	}
}

func (s *TimeoutScheduler) TimeoutMinutes() int {
	return int(s.timeoutMinutes.Load())
}

func (s *TimeoutScheduler) Start() error {
	c := cron.New(
		cron.WithSeconds(),
		cron.WithChain(
			cron.Recover(logger.CronLogger{}),
			cron.SkipIfStillRunning(logger.CronLogger{}),
		),
	)
	if _, err := c.AddFunc(s.schedule, s.RunOnce); err != nil {
		return err
	}
	s.cron = c
	c.Start()
	logger.Log.Info("Timeout scheduler started",
		zap.String("schedule", s.schedule),
		zap.Int("timeoutMinutes", s.TimeoutMinutes()),
	)
	return nil
}

// Stop 等待正在执行的任务结束
func (s *TimeoutScheduler) Stop(ctx context.Context) {
	if s.cron == nil {
		return
	}
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		logger.Log.Warn("Timeout scheduler stop interrupted", zap.Error(ctx.Err()))
	}
}

func (s *TimeoutScheduler) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), runTTL)
	defer cancel()

	if s.locker != nil {
		ok, err := s.locker.TryLock(ctx, lockKey, runTTL)
		if err != nil {
			// 锁不可用时照常执行
			logger.Log.Warn("Failed to acquire cleanup lock, running anyway", zap.Error(err))
		} else if !ok {
			logger.Log.Debug("Timeout cleanup running on another instance, skipped")
			return
		} else {
			defer func() {
				if err := s.locker.Unlock(context.Background(), lockKey); err != nil {
					logger.Log.Warn("Failed to release cleanup lock", zap.Error(err))
				}
			}()
		}
	}

	minutes := s.TimeoutMinutes()
	n, err := s.processor.ProcessTimedOutAttempts(ctx, minutes)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Log.Error("Timeout cleanup failed", zap.Int("timeoutMinutes", minutes), zap.Error(err))
		return
	}
	logger.Log.Debug("Timeout cleanup finished", zap.Int("updated", n), zap.Int("timeoutMinutes", minutes))
}

package service

import (
	"context"
	"errors"
	"fmt"
	"quiz_assessment_backend/internal/model"
	"quiz_assessment_backend/internal/repository"
	"quiz_assessment_backend/internal/util"
	"quiz_assessment_backend/pkg/logger"
	"quiz_assessment_backend/pkg/monitoring"
	"quiz_assessment_backend/pkg/resilience"
	"time"

	"go.uber.org/zap"
)

// TestResultService 成绩查询、统计和超时清理
type TestResultService struct {
	Results  ResultStore
	Bulkhead *resilience.Bulkhead
	now      func() time.Time
}

func NewTestResultService(results ResultStore, bulkhead *resilience.Bulkhead) *TestResultService {
	if bulkhead == nil {
		bulkhead = resilience.NewBulkhead(1)
	}
	return &TestResultService{
		Results:  results,
		Bulkhead: bulkhead,
		now:      time.Now,
	}
}

func notFoundAs(err error, target error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return target
	}
	return err
}

func (s *TestResultService) GetResultByID(ctx context.Context, id uint) (*model.TestResult, error) {
	r, err := s.Results.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundAs(err, util.ErrTestResultNotFound)
	}
	return r, nil
}

func (s *TestResultService) GetResultByAttempt(ctx context.Context, attemptID uint) (*model.TestResult, error) {
	r, err := s.Results.FindByAttemptID(ctx, attemptID)
	if err != nil {
		return nil, notFoundAs(err, util.ErrTestResultNotFound)
	}
	return r, nil
}

func (s *TestResultService) ResultExistsForAttempt(ctx context.Context, attemptID uint) (bool, error) {
	return s.Results.ExistsByAttemptID(ctx, attemptID)
}

func (s *TestResultService) GetResultsByStudent(ctx context.Context, studentID uint) ([]model.TestResult, error) {
	return s.Results.List(ctx, repository.ResultFilter{StudentID: studentID})
}

func (s *TestResultService) GetResultsByQuiz(ctx context.Context, quizID uint) ([]model.TestResult, error) {
	return s.Results.List(ctx, repository.ResultFilter{QuizID: quizID})
}

func (s *TestResultService) GetResultsByStudentAndQuiz(ctx context.Context, studentID, quizID uint) ([]model.TestResult, error) {
	return s.Results.List(ctx, repository.ResultFilter{StudentID: studentID, QuizID: quizID})
}

func (s *TestResultService) GetResultsByStatus(ctx context.Context, status model.TestResultStatus) ([]model.TestResult, error) {
	if !status.Valid() {
		return nil, util.Wrapf(util.ErrBusinessRule, "unknown status %q", status)
	}
	return s.Results.List(ctx, repository.ResultFilter{Status: status})
}

func (s *TestResultService) GetTopScoresByQuiz(ctx context.Context, quizID uint, limit int) ([]model.TestResult, error) {
	if limit <= 0 {
		limit = util.DefaultTopLimit
	}
	return s.Results.TopScoresByQuiz(ctx, quizID, limit)
}

func (s *TestResultService) GetResultsInDateRange(ctx context.Context, start, end time.Time) ([]model.TestResult, error) {
	if start.After(end) {
		return nil, util.ErrInvalidDateRange
	}
	return s.Results.ListCompletedBetween(ctx, start, end)
}

// GetQuizStatistics 聚合查询走舱壁，并发已满时直接返回 ServiceUnavailable
func (s *TestResultService) GetQuizStatistics(ctx context.Context, quizID uint) (*repository.QuizStatistics, error) {
	var stats *repository.QuizStatistics
	err := s.Bulkhead.Execute(ctx, func(ctx context.Context) error {
		var err error
		stats, err = s.Results.QuizStatistics(ctx, quizID)
		return err
	})
	if errors.Is(err, resilience.ErrBulkheadFull) {
		logger.Log.Warn("Statistics bulkhead full", zap.Uint("quizId", quizID))
		return nil, util.ErrStatisticsBusy
	}
	return stats, err
}

func TimeoutMessage(timeoutMinutes int) string {
	return fmt.Sprintf("Test timed out after %d minutes", timeoutMinutes)
}

// ProcessTimedOutAttempts 把创建时间早于 now-timeout 的 IN_PROGRESS 成绩标记为 TIMEOUT，返回更新条数
func (s *TestResultService) ProcessTimedOutAttempts(ctx context.Context, timeoutMinutes int) (int, error) {
	if timeoutMinutes <= 0 {
		return 0, util.Wrapf(util.ErrBusinessRule, "timeout minutes must be positive, got %d", timeoutMinutes)
	}

	now := s.now()
	cutoff := now.Add(-time.Duration(timeoutMinutes) * time.Minute)
	stale, err := s.Results.FindStaleInProgress(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	message := TimeoutMessage(timeoutMinutes)
	updated := 0
	for _, r := range stale {
		if err := ctx.Err(); err != nil {
			return updated, err
		}
		ok, err := s.Results.MarkTimedOut(ctx, r.ID, now, message)
		if err != nil {
			logger.Log.Error("Failed to mark result as timed out", zap.Uint("resultId", r.ID), zap.Error(err))
			continue
		}
		if ok {
			updated++
		}
	}

	if updated > 0 {
		monitoring.ResultTimeouts.Add(float64(updated))
		logger.Log.Info("Marked test attempts as timed out",
			zap.Int("count", updated),
			zap.Int("timeoutMinutes", timeoutMinutes),
		)
	}
	return updated, nil
}

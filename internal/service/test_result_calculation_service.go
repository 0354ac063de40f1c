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
	"quiz_assessment_backend/pkg/tracing"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	outcomeCalculated = "calculated"
	outcomeCached     = "cached"
	outcomeFallback   = "fallback"
	outcomeKept       = "fallback_kept"
	outcomeRejected   = "rejected"
	outcomeFailed     = "failed"
)

// AttemptReader 成绩计算只需要读取作答
type AttemptReader interface {
	FindByID(ctx context.Context, id uint) (*model.QuizAttempt, error)
	FindAnswersByAttempt(ctx context.Context, attemptID uint) ([]model.StudentAnswer, error)
}

type QuestionProvider interface {
	FindQuestionsWithOptions(ctx context.Context, quizID uint) ([]model.Question, error)
}

// TestResultCalculationService 与作答提交解耦，失败时写入 ERROR 成绩而不是向上抛出
type TestResultCalculationService struct {
	Attempts            AttemptReader
	Questions           QuestionProvider
	Results             ResultStore
	Policy              resilience.Policy
	DefaultPassingScore decimal.Decimal
	now                 func() time.Time
}

func NewTestResultCalculationService(attempts AttemptReader, questions QuestionProvider, results ResultStore, policy resilience.Policy, defaultPassingScore decimal.Decimal) *TestResultCalculationService {
	if policy == nil {
		policy = resilience.NoopPolicy{}
	}
	return &TestResultCalculationService{
		Attempts:            attempts,
		Questions:           questions,
		Results:             results,
		Policy:              policy,
		DefaultPassingScore: defaultPassingScore,
		now:                 time.Now,
	}
}

type CalculateResultRequest struct {
	QuizAttemptID      uint     `json:"quizAttemptId" binding:"required"`
	PassingScore       *float64 `json:"passingScore" binding:"omitempty,gte=0,lte=100"`
	ForceRecalculation bool     `json:"forceRecalculation"`
}

// CalculateResult 熔断器打开或重试耗尽时返回 ERROR 成绩；
// NotFound / IllegalState 等调用方错误直接返回。
func (s *TestResultCalculationService) CalculateResult(ctx context.Context, attemptID uint, passingScore *decimal.Decimal, force bool) (*model.TestResult, error) {
	ctx, span := tracing.Start(ctx, "TestResultCalculationService.CalculateResult",
		attribute.Int64("attempt.id", int64(attemptID)),
		attribute.Bool("force", force),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		monitoring.ResultCalculationDuration.Observe(time.Since(start).Seconds())
	}()

	var (
		result  *model.TestResult
		outcome string
	)
	err := s.Policy.Execute(ctx, func(ctx context.Context) error {
		r, o, err := s.calculate(ctx, attemptID, passingScore, force)
		if err != nil {
			return err
		}
		result, outcome = r, o
		return nil
	})
	if err == nil {
		monitoring.ResultCalculations.WithLabelValues(outcome).Inc()
		return result, nil
	}

	if util.IsClientError(err) {
		monitoring.ResultCalculations.WithLabelValues(outcomeRejected).Inc()
		tracing.RecordError(span, err)
		return nil, err
	}

	logger.Log.Error("Failed to calculate test result, using fallback",
		zap.Uint("attemptId", attemptID),
		zap.Bool("breakerOpen", resilience.IsOpen(err)),
		zap.Error(err),
	)
	fallback, kept, fbErr := s.fallback(ctx, attemptID, err)
	if fbErr != nil {
		monitoring.ResultCalculations.WithLabelValues(outcomeFailed).Inc()
		logger.Log.Error("Fallback also failed", zap.Uint("attemptId", attemptID), zap.Error(fbErr))
		tracing.RecordError(span, fbErr)
		return nil, fmt.Errorf("%w: test result calculation completely failed: %v", util.ErrServiceUnavailable, fbErr)
	}
	if kept {
		// 强制重算失败，保留原有成绩
		logger.Log.Warn("Recalculation failed, existing result kept",
			zap.Uint("attemptId", attemptID),
			zap.Uint("resultId", fallback.ID),
			zap.String("status", string(fallback.Status)),
			zap.Bool("force", force),
			zap.Error(err),
		)
		monitoring.ResultCalculations.WithLabelValues(outcomeKept).Inc()
		return fallback, nil
	}
	monitoring.ResultCalculations.WithLabelValues(outcomeFallback).Inc()
	return fallback, nil
}

func (s *TestResultCalculationService) calculate(ctx context.Context, attemptID uint, passingScore *decimal.Decimal, force bool) (*model.TestResult, string, error) {
	begin := s.now()

	if !force {
		existing, err := s.Results.FindByAttemptID(ctx, attemptID)
		if err == nil {
			return existing, outcomeCached, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, "", err
		}
	}

	attempt, err := s.Attempts.FindByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, "", util.ErrAttemptNotFound
		}
		return nil, "", err
	}
	if !attempt.IsCompleted {
		return nil, "", util.ErrAttemptNotCompleted
	}

	answers, err := s.Attempts.FindAnswersByAttempt(ctx, attemptID)
	if err != nil {
		return nil, "", err
	}
	questions, err := s.Questions.FindQuestionsWithOptions(ctx, attempt.QuizID)
	if err != nil {
		return nil, "", err
	}

	summary, err := ScoreStoredAnswers(questions, answers)
	if err != nil {
		return nil, "", err
	}

	threshold := s.DefaultPassingScore
	if passingScore != nil {
		threshold = *passingScore
	}
	percentage := Percentage(summary.Score, summary.MaxScore)
	status := model.ResultFailed
	if percentage.GreaterThanOrEqual(threshold) {
		status = model.ResultPassed
	}

	result := &model.TestResult{
		QuizAttemptID:    attempt.ID,
		StudentID:        attempt.StudentID,
		QuizID:           attempt.QuizID,
		Score:            summary.Score,
		MaxScore:         summary.MaxScore,
		Percentage:       percentage,
		PassingScore:     decimal.NewNullDecimal(threshold),
		Status:           status,
		TimeSpentSeconds: timeSpent(attempt),
		CorrectAnswers:   summary.CorrectAnswers,
		TotalQuestions:   summary.TotalQuestions,
		StartedAt:        attempt.StartedAt,
		CompletedAt:      attempt.CompletedAt,
	}
	result.CalculationTimeMs = s.now().Sub(begin).Milliseconds()

	saved, err := s.persist(ctx, result, force)
	if err != nil {
		return nil, "", err
	}

	logger.Log.Info("Test result calculated",
		zap.Uint("attemptId", attemptID),
		zap.String("score", summary.Score.String()),
		zap.String("maxScore", summary.MaxScore.String()),
		zap.String("percentage", percentage.StringFixed(2)),
		zap.String("status", string(saved.Status)),
		zap.Int64("calculationTimeMs", saved.CalculationTimeMs),
	)
	return saved, outcomeCalculated, nil
}

// persist 并发计算时以先写入的成绩为准
func (s *TestResultCalculationService) persist(ctx context.Context, result *model.TestResult, replace bool) (*model.TestResult, error) {
	var err error
	if replace {
		err = s.Results.Replace(ctx, result)
	} else {
		err = s.Results.Create(ctx, result)
	}
	if err == nil {
		return result, nil
	}
	if errors.Is(err, repository.ErrDuplicateKey) {
		return s.Results.FindByAttemptID(ctx, result.QuizAttemptID)
	}
	return nil, err
}

// fallback 仅依赖作答本身的数据写入 ERROR 成绩，kept 表示已有成绩未被覆盖
func (s *TestResultCalculationService) fallback(ctx context.Context, attemptID uint, cause error) (*model.TestResult, bool, error) {
	attempt, err := s.Attempts.FindByID(ctx, attemptID)
	if err != nil {
		return nil, false, err
	}

	result := &model.TestResult{
		QuizAttemptID: attempt.ID,
		StudentID:     attempt.StudentID,
		QuizID:        attempt.QuizID,
		Score:         decimal.Zero,
		MaxScore:      attempt.MaxScore,
		Percentage:    decimal.Zero,
		Status:        model.ResultError,
		ErrorMessage:  model.TruncateErrorMessage("Calculation service unavailable: " + cause.Error()),
		StartedAt:     attempt.StartedAt,
		CompletedAt:   attempt.CompletedAt,
	}

	// 已有成绩时不覆盖
	saved, err := s.persist(ctx, result, false)
	if err != nil {
		return nil, false, err
	}
	return saved, saved != result, nil
}

func timeSpent(attempt *model.QuizAttempt) *int64 {
	if attempt.StartedAt.IsZero() || attempt.CompletedAt == nil {
		return nil
	}
	secs := int64(attempt.CompletedAt.Sub(attempt.StartedAt) / time.Second)
	return &secs
}

package service

import (
	"context"
	"quiz_assessment_backend/internal/model"
	"quiz_assessment_backend/internal/repository"
	"time"

	"github.com/shopspring/decimal"
)

// AttemptStore 作答及答案的持久化
type AttemptStore interface {
	Create(ctx context.Context, attempt *model.QuizAttempt) error
	FindByID(ctx context.Context, id uint) (*model.QuizAttempt, error)
	FindActive(ctx context.Context, quizID, studentID uint) (*model.QuizAttempt, error)
	CountByStudentAndQuiz(ctx context.Context, studentID, quizID uint) (int64, error)
	ListByStudent(ctx context.Context, studentID uint) ([]model.QuizAttempt, error)
	ListByQuiz(ctx context.Context, quizID uint) ([]model.QuizAttempt, error)
	Complete(ctx context.Context, attemptID uint, score, maxScore decimal.Decimal, completedAt time.Time, answers []model.StudentAnswer) error
	FindAnswersByAttempt(ctx context.Context, attemptID uint) ([]model.StudentAnswer, error)
}

// CatalogProvider 测验、题目和课程归属
type CatalogProvider interface {
	FindQuizByID(ctx context.Context, id uint) (*model.Quiz, error)
	FindQuestionsWithOptions(ctx context.Context, quizID uint) ([]model.Question, error)
	FindCourseByID(ctx context.Context, id uint) (*model.Course, error)
}

type UserProvider interface {
	FindByID(ctx context.Context, id uint) (*model.User, error)
}

type ResultStore interface {
	Create(ctx context.Context, result *model.TestResult) error
	Replace(ctx context.Context, result *model.TestResult) error
	FindByID(ctx context.Context, id uint) (*model.TestResult, error)
	FindByAttemptID(ctx context.Context, attemptID uint) (*model.TestResult, error)
	ExistsByAttemptID(ctx context.Context, attemptID uint) (bool, error)
	List(ctx context.Context, f repository.ResultFilter) ([]model.TestResult, error)
	TopScoresByQuiz(ctx context.Context, quizID uint, limit int) ([]model.TestResult, error)
	ListCompletedBetween(ctx context.Context, start, end time.Time) ([]model.TestResult, error)
	QuizStatistics(ctx context.Context, quizID uint) (*repository.QuizStatistics, error)
	FindStaleInProgress(ctx context.Context, cutoff time.Time) ([]model.TestResult, error)
	MarkTimedOut(ctx context.Context, id uint, completedAt time.Time, message string) (bool, error)
}

// ActiveAttemptHint 进行中作答的提示缓存，可以为 nil
type ActiveAttemptHint interface {
	Get(ctx context.Context, quizID, studentID uint) (uint, bool)
	Set(ctx context.Context, quizID, studentID, attemptID uint) error
	Delete(ctx context.Context, quizID, studentID uint) error
}

// VisitNotifier 学习行为通知，不能阻塞也不能返回错误
type VisitNotifier interface {
	Notify(event VisitEvent)
}

// Requester 当前请求的用户
type Requester struct {
	UserID uint
	Role   model.UserRole
}

func (r Requester) IsAdmin() bool {
	return r.Role == model.Admin
}

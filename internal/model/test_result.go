package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type TestResultStatus string

const (
	ResultInProgress TestResultStatus = "IN_PROGRESS"
	ResultPassed     TestResultStatus = "PASSED"
	ResultFailed     TestResultStatus = "FAILED"
	ResultError      TestResultStatus = "ERROR"
	ResultTimeout    TestResultStatus = "TIMEOUT"
)

func (s TestResultStatus) Valid() bool {
	switch s {
	case ResultInProgress, ResultPassed, ResultFailed, ResultError, ResultTimeout:
		return true
	}
	return false
}

func (s TestResultStatus) IsTerminal() bool {
	return s.Valid() && s != ResultInProgress
}

const ErrorMessageMaxLen = 500

// TestResult 成绩的权威记录，每个作答最多一条。
// 只有 IN_PROGRESS -> TIMEOUT 这一种状态迁移，终态之后不再修改。
// swagger:model TestResult
type TestResult struct {
	BaseModel
	QuizAttemptID     uint                `gorm:"not null;uniqueIndex" json:"quizAttemptId"`
	StudentID         uint                `gorm:"not null;index" json:"studentId"`
	QuizID            uint                `gorm:"not null;index" json:"quizId"`
	Score             decimal.Decimal     `gorm:"type:decimal(10,2);not null" json:"score"`
	MaxScore          decimal.Decimal     `gorm:"type:decimal(10,2);not null" json:"maxScore"`
	Percentage        decimal.Decimal     `gorm:"type:decimal(7,2);not null" json:"percentage"`
	PassingScore      decimal.NullDecimal `gorm:"type:decimal(5,2)" json:"passingScore" swaggertype:"number"`
	Status            TestResultStatus    `gorm:"size:20;not null;index" json:"status"`
	TimeSpentSeconds  *int64              `json:"timeSpentSeconds"`
	CorrectAnswers    int                 `gorm:"not null;default:0" json:"correctAnswers"`
	TotalQuestions    int                 `gorm:"not null;default:0" json:"totalQuestions"`
	CalculationTimeMs int64               `gorm:"not null;default:0" json:"calculationTimeMs"`
	ErrorMessage      *string             `gorm:"size:500" json:"errorMessage"`
	StartedAt         time.Time           `gorm:"not null" json:"startedAt"`
	CompletedAt       *time.Time          `gorm:"index" json:"completedAt"`
}

func (TestResult) TableName() string {
	return "test_results"
}

// Passed 只对 PASSED/FAILED 有意义
func (r *TestResult) Passed() bool {
	if r.Status != ResultPassed && r.Status != ResultFailed {
		return false
	}
	if !r.PassingScore.Valid {
		return r.Status == ResultPassed
	}
	return r.Percentage.GreaterThanOrEqual(r.PassingScore.Decimal)
}

func (r *TestResult) FormattedTimeSpent() string {
	if r.TimeSpentSeconds == nil {
		return "N/A"
	}
	d := time.Duration(*r.TimeSpentSeconds) * time.Second
	hours := int64(d / time.Hour)
	minutes := int64(d%time.Hour) / int64(time.Minute)
	seconds := int64(d%time.Minute) / int64(time.Second)

	switch {
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}

// TruncateErrorMessage 按列宽截断
func TruncateErrorMessage(msg string) *string {
	r := []rune(msg)
	if len(r) > ErrorMessageMaxLen {
		msg = string(r[:ErrorMessageMaxLen])
	}
	return &msg
}

package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// QuizAttempt 一次作答。
//
// Score/MaxScore 是提交时按当时的评分规则算出的快照，只用于列表展示，
// 不作为成绩依据；权威成绩由 TestResult 根据 StudentAnswer 重新计算。
//
// ActiveKey 仅在未完成时有值（quizID:studentID），唯一索引保证
// 同一学生同一测验最多一个进行中的作答；提交后置空。
// swagger:model QuizAttempt
type QuizAttempt struct {
	BaseModel
	QuizID        uint            `gorm:"not null;index;uniqueIndex:uk_quiz_attempt_number,priority:1" json:"quizId"`
	StudentID     uint            `gorm:"not null;index;uniqueIndex:uk_quiz_attempt_number,priority:2" json:"studentId"`
	AttemptNumber int             `gorm:"not null;uniqueIndex:uk_quiz_attempt_number,priority:3" json:"attemptNumber"`
	ActiveKey     *string         `gorm:"size:64;uniqueIndex:uk_quiz_attempt_active" json:"-"`
	Score         decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0" json:"score"`
	MaxScore      decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0" json:"maxScore"`
	StartedAt     time.Time       `gorm:"not null" json:"startedAt"`
	CompletedAt   *time.Time      `json:"completedAt"`
	IsCompleted   bool            `gorm:"not null;index" json:"isCompleted"`
}

func (QuizAttempt) TableName() string {
	return "quiz_attempts"
}

func ActiveAttemptKey(quizID, studentID uint) string {
	return fmt.Sprintf("%d:%d", quizID, studentID)
}

// DurationSeconds 作答耗时，未完成返回 nil，负值按 0 处理
func (a *QuizAttempt) DurationSeconds() *int {
	if a.CompletedAt == nil || a.StartedAt.IsZero() {
		return nil
	}
	secs := int(a.CompletedAt.Sub(a.StartedAt) / time.Second)
	if secs < 0 {
		secs = 0
	}
	return &secs
}

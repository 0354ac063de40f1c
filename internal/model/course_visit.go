package model

import "time"

type VisitType string

const (
	VisitQuizStart    VisitType = "QUIZ_START"
	VisitQuizComplete VisitType = "QUIZ_COMPLETE"
)

// CourseVisit 学习行为记录，写入失败不影响主流程
// swagger:model CourseVisit
type CourseVisit struct {
	UUIDBase
	UserID          uint      `gorm:"not null;index" json:"userId"`
	CourseID        uint      `gorm:"not null;index" json:"courseId"`
	QuizID          *uint     `gorm:"index" json:"quizId"`
	VisitType       VisitType `gorm:"size:30;not null" json:"visitType"`
	DurationSeconds *int      `json:"durationSeconds"`
	VisitedAt       time.Time `gorm:"not null;index" json:"visitedAt"`
}

func (CourseVisit) TableName() string {
	return "course_visits"
}

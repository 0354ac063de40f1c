package model

import (
	"encoding/json"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// StudentAnswer 提交时一次写入，之后不再修改
// swagger:model StudentAnswer
type StudentAnswer struct {
	BaseModel
	AttemptID         uint            `gorm:"not null;uniqueIndex:uk_attempt_question,priority:1" json:"attemptId"`
	QuestionID        uint            `gorm:"not null;uniqueIndex:uk_attempt_question,priority:2" json:"questionId"`
	AnswerText        *string         `gorm:"type:text" json:"answerText"`
	SelectedOptionIDs datatypes.JSON  `gorm:"type:json" json:"selectedOptionIds" swaggertype:"array,integer"`
	IsCorrect         bool            `gorm:"not null" json:"isCorrect"`
	PointsEarned      decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0" json:"pointsEarned"`
	Skipped           bool            `gorm:"not null;default:false" json:"skipped"` // 未作答的审计记录
}

func (StudentAnswer) TableName() string {
	return "student_answers"
}

func (a *StudentAnswer) SetSelectedOptionIDs(ids []uint) error {
	if ids == nil {
		ids = []uint{}
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	a.SelectedOptionIDs = datatypes.JSON(raw)
	return nil
}

func (a *StudentAnswer) SelectedIDs() ([]uint, error) {
	ids := []uint{}
	if len(a.SelectedOptionIDs) == 0 {
		return ids, nil
	}
	if err := json.Unmarshal(a.SelectedOptionIDs, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

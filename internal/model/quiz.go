package model

type QuestionType string

const (
	SingleChoice   QuestionType = "SINGLE_CHOICE"
	MultipleChoice QuestionType = "MULTIPLE_CHOICE"
	TextQuestion   QuestionType = "TEXT"
)

func (t QuestionType) Valid() bool {
	switch t {
	case SingleChoice, MultipleChoice, TextQuestion:
		return true
	}
	return false
}

// IsChoice 选择题才有选项
func (t QuestionType) IsChoice() bool {
	return t == SingleChoice || t == MultipleChoice
}

// Quiz 已有作答记录后只做软删除（IsActive=false）
// swagger:model Quiz
type Quiz struct {
	BaseModel
	Title            string     `gorm:"size:255;not null" json:"title"`
	Description      string     `gorm:"type:text" json:"description"`
	CourseID         uint       `gorm:"index;not null" json:"courseId"`
	MaxAttempts      *int       `json:"maxAttempts"`      // nil 表示不限次数
	TimeLimitMinutes *int       `json:"timeLimitMinutes"` // nil 表示不限时
	IsActive         bool       `gorm:"not null" json:"isActive"`
	Questions        []Question `gorm:"foreignKey:QuizID" json:"questions,omitempty"`
}

func (Quiz) TableName() string {
	return "quizzes"
}

// swagger:model Question
type Question struct {
	BaseModel
	QuizID        uint           `gorm:"index;not null" json:"quizId"`
	QuestionText  string         `gorm:"type:text;not null" json:"questionText"`
	QuestionType  QuestionType   `gorm:"size:20;not null" json:"questionType"`
	Points        int            `gorm:"not null;default:1" json:"points"`
	OrderIndex    int            `gorm:"not null" json:"orderIndex"`
	AnswerOptions []AnswerOption `gorm:"foreignKey:QuestionID" json:"answerOptions,omitempty"`
}

func (Question) TableName() string {
	return "questions"
}

// CorrectOptionIDs 返回标记为正确的选项ID集合
func (q *Question) CorrectOptionIDs() map[uint]struct{} {
	ids := make(map[uint]struct{})
	for _, o := range q.AnswerOptions {
		if o.IsCorrect {
			ids[o.ID] = struct{}{}
		}
	}
	return ids
}

// AnswerOption.IsCorrect 不能返回给作答中的学生，学生视图见 service.StudentQuizView
// swagger:model AnswerOption
type AnswerOption struct {
	BaseModel
	QuestionID uint   `gorm:"index;not null" json:"questionId"`
	OptionText string `gorm:"type:text;not null" json:"optionText"`
	IsCorrect  bool   `gorm:"not null" json:"isCorrect"`
	OrderIndex int    `gorm:"not null" json:"orderIndex"`
}

func (AnswerOption) TableName() string {
	return "answer_options"
}

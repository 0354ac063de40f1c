package service

import (
	"quiz_assessment_backend/internal/model"

	"github.com/shopspring/decimal"
)

type AnswerRequest struct {
	QuestionID        uint    `json:"questionId" binding:"required"`
	AnswerText        *string `json:"answerText"`
	SelectedOptionIDs []uint  `json:"selectedOptionIds"`
}

type GradeOutcome struct {
	IsCorrect    bool
	PointsEarned decimal.Decimal
}

// GradeAnswer 全对得满分，否则 0 分，没有部分得分。
// answer 为 nil 表示未作答。
func GradeAnswer(q *model.Question, answer *AnswerRequest) GradeOutcome {
	if answer == nil {
		return GradeOutcome{PointsEarned: decimal.Zero}
	}

	var correct bool
	switch q.QuestionType {
	case model.TextQuestion:
		// 文本题暂无人工批改流程，一律按正确处理
		correct = true
	case model.SingleChoice:
		// 必须恰好选择一项，重复的选项也算多选
		if len(answer.SelectedOptionIDs) == 1 {
			_, correct = q.CorrectOptionIDs()[answer.SelectedOptionIDs[0]]
		}
	case model.MultipleChoice:
		correct = sameSet(uniqueIDs(answer.SelectedOptionIDs), q.CorrectOptionIDs())
	default:
		correct = false
	}

	if !correct {
		return GradeOutcome{PointsEarned: decimal.Zero}
	}
	return GradeOutcome{IsCorrect: true, PointsEarned: decimal.NewFromInt(int64(q.Points))}
}

func uniqueIDs(ids []uint) map[uint]struct{} {
	set := make(map[uint]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func sameSet(a, b map[uint]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for id := range a {
		if _, ok := b[id]; !ok {
			return false
		}
	}
	return true
}

// ScoreSummary 按题目顺序累计，maxScore 包含未作答题目
type ScoreSummary struct {
	Score          decimal.Decimal
	MaxScore       decimal.Decimal
	CorrectAnswers int
	TotalQuestions int
}

// ScoreStoredAnswers 用当前题目定义重新评判已保存的答案
func ScoreStoredAnswers(questions []model.Question, answers []model.StudentAnswer) (ScoreSummary, error) {
	byQuestion := make(map[uint]*AnswerRequest, len(answers))
	for i := range answers {
		a := &answers[i]
		if a.Skipped {
			continue
		}
		if _, dup := byQuestion[a.QuestionID]; dup {
			continue
		}
		selected, err := a.SelectedIDs()
		if err != nil {
			return ScoreSummary{}, err
		}
		byQuestion[a.QuestionID] = &AnswerRequest{
			QuestionID:        a.QuestionID,
			AnswerText:        a.AnswerText,
			SelectedOptionIDs: selected,
		}
	}

	summary := ScoreSummary{
		Score:          decimal.Zero,
		MaxScore:       decimal.Zero,
		TotalQuestions: len(questions),
	}
	for i := range questions {
		q := &questions[i]
		summary.MaxScore = summary.MaxScore.Add(decimal.NewFromInt(int64(q.Points)))

		outcome := GradeAnswer(q, byQuestion[q.ID])
		if outcome.IsCorrect {
			summary.Score = summary.Score.Add(outcome.PointsEarned)
			summary.CorrectAnswers++
		}
	}
	return summary, nil
}

var hundred = decimal.NewFromInt(100)

// Percentage 保留两位小数四舍五入，maxScore 为 0 时返回 0
func Percentage(score, maxScore decimal.Decimal) decimal.Decimal {
	if !maxScore.IsPositive() {
		return decimal.Zero
	}
	return score.Mul(hundred).DivRound(maxScore, 2)
}

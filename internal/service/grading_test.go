package service

import (
	"testing"

	"quiz_assessment_backend/internal/model"

	"github.com/shopspring/decimal"
)

func choiceQuestion(t model.QuestionType, points int, correct ...uint) *model.Question {
	q := &model.Question{QuestionType: t, Points: points}
	isCorrect := make(map[uint]bool)
	for _, id := range correct {
		isCorrect[id] = true
	}
	for id := uint(1); id <= 4; id++ {
		o := model.AnswerOption{IsCorrect: isCorrect[id]}
		o.ID = id
		q.AnswerOptions = append(q.AnswerOptions, o)
	}
	return q
}

func TestGradeAnswer(t *testing.T) {
	const a, b, c = 1, 2, 3
	single := choiceQuestion(model.SingleChoice, 5, a)
	multi := choiceQuestion(model.MultipleChoice, 4, a, b)
	text := &model.Question{QuestionType: model.TextQuestion, Points: 3}
	answer := "anything"

	tests := []struct {
		name    string
		q       *model.Question
		ans     *AnswerRequest
		correct bool
		points  int64
	}{
		{"single correct", single, &AnswerRequest{SelectedOptionIDs: []uint{a}}, true, 5},
		{"single two selected", single, &AnswerRequest{SelectedOptionIDs: []uint{a, b}}, false, 0},
		{"single none selected", single, &AnswerRequest{}, false, 0},
		{"single wrong", single, &AnswerRequest{SelectedOptionIDs: []uint{b}}, false, 0},
		{"single duplicate of correct", single, &AnswerRequest{SelectedOptionIDs: []uint{a, a}}, false, 0},
		{"single unknown option", single, &AnswerRequest{SelectedOptionIDs: []uint{99}}, false, 0},
		{"multi exact", multi, &AnswerRequest{SelectedOptionIDs: []uint{a, b}}, true, 4},
		{"multi reversed order", multi, &AnswerRequest{SelectedOptionIDs: []uint{b, a}}, true, 4},
		{"multi with duplicates", multi, &AnswerRequest{SelectedOptionIDs: []uint{a, b, a}}, true, 4},
		{"multi subset", multi, &AnswerRequest{SelectedOptionIDs: []uint{a}}, false, 0},
		{"multi superset", multi, &AnswerRequest{SelectedOptionIDs: []uint{a, b, c}}, false, 0},
		{"multi empty", multi, &AnswerRequest{}, false, 0},
		{"text always correct", text, &AnswerRequest{AnswerText: &answer}, true, 3},
		{"text empty answer", text, &AnswerRequest{}, true, 3},
		{"unanswered", single, nil, false, 0},
		{"unknown type", &model.Question{QuestionType: "ESSAY", Points: 2}, &AnswerRequest{}, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GradeAnswer(tt.q, tt.ans)
			if got.IsCorrect != tt.correct {
				t.Errorf("IsCorrect = %v, want %v", got.IsCorrect, tt.correct)
			}
			if !got.PointsEarned.Equal(decimal.NewFromInt(tt.points)) {
				t.Errorf("PointsEarned = %s, want %d", got.PointsEarned, tt.points)
			}
		})
	}
}

func TestPercentage(t *testing.T) {
	tests := []struct {
		score, max int64
		want       string
	}{
		{85, 100, "85.00"},
		{1, 3, "33.33"},
		{2, 3, "66.67"},
		{10, 10, "100.00"},
		{0, 10, "0.00"},
		{5, 0, "0.00"},
		{1, 8, "12.50"},
	}
	for _, tt := range tests {
		got := Percentage(decimal.NewFromInt(tt.score), decimal.NewFromInt(tt.max))
		if got.StringFixed(2) != tt.want {
			t.Errorf("Percentage(%d, %d) = %s, want %s", tt.score, tt.max, got.StringFixed(2), tt.want)
		}
	}

	// 0.125 -> 0.13 四舍五入
	got := Percentage(decimal.RequireFromString("0.125"), decimal.NewFromInt(100))
	if got.StringFixed(2) != "0.13" {
		t.Errorf("half-up rounding = %s, want 0.13", got.StringFixed(2))
	}
}

func TestScoreStoredAnswers(t *testing.T) {
	q1 := choiceQuestion(model.SingleChoice, 5, 1)
	q1.ID = 10
	q2 := choiceQuestion(model.MultipleChoice, 5, 3, 4)
	q2.ID = 11
	q3 := &model.Question{QuestionType: model.TextQuestion, Points: 2}
	q3.ID = 12

	var a1, a2, skipped model.StudentAnswer
	a1.QuestionID = 10
	_ = a1.SetSelectedOptionIDs([]uint{1})
	a2.QuestionID = 11
	_ = a2.SetSelectedOptionIDs([]uint{3})
	skipped.QuestionID = 12
	skipped.Skipped = true

	summary, err := ScoreStoredAnswers([]model.Question{*q1, *q2, *q3}, []model.StudentAnswer{a1, a2, skipped})
	if err != nil {
		t.Fatalf("ScoreStoredAnswers: %v", err)
	}
	if !summary.Score.Equal(decimal.NewFromInt(5)) || !summary.MaxScore.Equal(decimal.NewFromInt(12)) {
		t.Fatalf("score = %s/%s, want 5/12", summary.Score, summary.MaxScore)
	}
	if summary.CorrectAnswers != 1 || summary.TotalQuestions != 3 {
		t.Fatalf("correct = %d total = %d", summary.CorrectAnswers, summary.TotalQuestions)
	}
}

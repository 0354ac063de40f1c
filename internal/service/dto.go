package service

import (
	"quiz_assessment_backend/internal/model"
	"time"

	"github.com/jinzhu/copier"
)

const timeLayout = time.RFC3339

// TestResultResponse 附带派生字段
type TestResultResponse struct {
	model.TestResult
	FormattedTimeSpent string `json:"formattedTimeSpent"`
	Passed             bool   `json:"passed"`
}

func NewTestResultResponse(r *model.TestResult) *TestResultResponse {
	return &TestResultResponse{
		TestResult:         *r,
		FormattedTimeSpent: r.FormattedTimeSpent(),
		Passed:             r.Passed(),
	}
}

func NewTestResultResponses(results []model.TestResult) []*TestResultResponse {
	out := make([]*TestResultResponse, 0, len(results))
	for i := range results {
		out = append(out, NewTestResultResponse(&results[i]))
	}
	return out
}

// AttemptResponse 列表展示用，score/maxScore 为提交时的快照
type AttemptResponse struct {
	ID              uint    `json:"id"`
	QuizID          uint    `json:"quizId"`
	StudentID       uint    `json:"studentId"`
	AttemptNumber   int     `json:"attemptNumber"`
	Score           string  `json:"score" copier:"-"`
	MaxScore        string  `json:"maxScore" copier:"-"`
	IsCompleted     bool    `json:"isCompleted"`
	StartedAt       string  `json:"startedAt" copier:"-"`
	CompletedAt     *string `json:"completedAt" copier:"-"`
	DurationSeconds *int    `json:"durationSeconds" copier:"-"`
}

func NewAttemptResponse(a *model.QuizAttempt) (*AttemptResponse, error) {
	var resp AttemptResponse
	if err := copier.Copy(&resp, a); err != nil {
		return nil, err
	}
	resp.Score = a.Score.StringFixed(2)
	resp.MaxScore = a.MaxScore.StringFixed(2)
	resp.StartedAt = a.StartedAt.Format(timeLayout)
	if a.CompletedAt != nil {
		s := a.CompletedAt.Format(timeLayout)
		resp.CompletedAt = &s
	}
	resp.DurationSeconds = a.DurationSeconds()
	return &resp, nil
}

func NewAttemptResponses(attempts []model.QuizAttempt) ([]*AttemptResponse, error) {
	out := make([]*AttemptResponse, 0, len(attempts))
	for i := range attempts {
		resp, err := NewAttemptResponse(&attempts[i])
		if err != nil {
			return nil, err
		}
		out = append(out, resp)
	}
	return out, nil
}

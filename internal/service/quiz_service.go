package service

import (
	"context"
	"errors"
	"quiz_assessment_backend/internal/model"
	"quiz_assessment_backend/internal/repository"
	"quiz_assessment_backend/internal/util"
	"quiz_assessment_backend/pkg/logger"

	"github.com/jinzhu/copier"
	"go.uber.org/zap"
)

// QuizStore 测验维护所需的写操作
type QuizStore interface {
	CatalogProvider
	CreateQuiz(ctx context.Context, quiz *model.Quiz) error
	Deactivate(ctx context.Context, id uint) error
	ListByCourse(ctx context.Context, courseID uint, activeOnly bool) ([]model.Quiz, error)
}

type QuizService struct {
	Repo QuizStore
}

func NewQuizService(repo QuizStore) *QuizService {
	return &QuizService{Repo: repo}
}

type AnswerOptionReq struct {
	OptionText string `json:"optionText" binding:"required"`
	IsCorrect  bool   `json:"isCorrect"`
	OrderIndex int    `json:"orderIndex"`
}

type QuestionReq struct {
	QuestionText  string            `json:"questionText" binding:"required"`
	QuestionType  string            `json:"questionType" binding:"required,question_type"`
	Points        int               `json:"points" binding:"required,gt=0"`
	OrderIndex    int               `json:"orderIndex"`
	AnswerOptions []AnswerOptionReq `json:"answerOptions" binding:"dive"`
}

type CreateQuizReq struct {
	Title            string        `json:"title" binding:"required,max=255"`
	Description      string        `json:"description"`
	CourseID         uint          `json:"courseId" binding:"required"`
	MaxAttempts      *int          `json:"maxAttempts" binding:"omitempty,gt=0"`
	TimeLimitMinutes *int          `json:"timeLimitMinutes" binding:"omitempty,gt=0"`
	Questions        []QuestionReq `json:"questions" binding:"required,min=1,dive"`
}

// 学生视图不包含 isCorrect
type StudentOptionView struct {
	ID         uint   `json:"id"`
	OptionText string `json:"optionText"`
	OrderIndex int    `json:"orderIndex"`
}

type StudentQuestionView struct {
	ID            uint                `json:"id"`
	QuestionText  string              `json:"questionText"`
	QuestionType  model.QuestionType  `json:"questionType"`
	Points        int                 `json:"points"`
	OrderIndex    int                 `json:"orderIndex"`
	AnswerOptions []StudentOptionView `json:"answerOptions"`
}

type StudentQuizView struct {
	ID               uint                  `json:"id"`
	Title            string                `json:"title"`
	Description      string                `json:"description"`
	CourseID         uint                  `json:"courseId"`
	MaxAttempts      *int                  `json:"maxAttempts"`
	TimeLimitMinutes *int                  `json:"timeLimitMinutes"`
	Questions        []StudentQuestionView `json:"questions"`
}

func validateQuestion(q QuestionReq) error {
	qt := model.QuestionType(q.QuestionType)
	if !qt.Valid() {
		return util.Wrapf(util.ErrInvalidQuiz, "unknown question type %q", q.QuestionType)
	}
	if !qt.IsChoice() {
		return nil
	}
	correct := 0
	for _, o := range q.AnswerOptions {
		if o.IsCorrect {
			correct++
		}
	}
	switch {
	case len(q.AnswerOptions) < 2:
		return util.Wrapf(util.ErrInvalidQuiz, "choice question %q needs at least 2 options", q.QuestionText)
	case qt == model.SingleChoice && correct != 1:
		return util.Wrapf(util.ErrInvalidQuiz, "single choice question %q must have exactly one correct option", q.QuestionText)
	case correct == 0:
		return util.Wrapf(util.ErrInvalidQuiz, "question %q has no correct option", q.QuestionText)
	}
	return nil
}

// CreateQuiz 教师必须是课程所有者，每次重新校验
func (s *QuizService) CreateQuiz(ctx context.Context, req CreateQuizReq, requester Requester) (*model.Quiz, error) {
	if err := checkCourseOwner(ctx, s.Repo, req.CourseID, requester); err != nil {
		return nil, err
	}

	quiz := &model.Quiz{
		Title:            req.Title,
		Description:      req.Description,
		CourseID:         req.CourseID,
		MaxAttempts:      req.MaxAttempts,
		TimeLimitMinutes: req.TimeLimitMinutes,
		IsActive:         true,
	}
	for i, qReq := range req.Questions {
		if err := validateQuestion(qReq); err != nil {
			return nil, err
		}
		q := model.Question{
			QuestionText: qReq.QuestionText,
			QuestionType: model.QuestionType(qReq.QuestionType),
			Points:       qReq.Points,
			OrderIndex:   qReq.OrderIndex,
		}
		if q.OrderIndex == 0 {
			q.OrderIndex = i + 1
		}
		if q.QuestionType.IsChoice() {
			for j, oReq := range qReq.AnswerOptions {
				o := model.AnswerOption{
					OptionText: oReq.OptionText,
					IsCorrect:  oReq.IsCorrect,
					OrderIndex: oReq.OrderIndex,
				}
				if o.OrderIndex == 0 {
					o.OrderIndex = j + 1
				}
				q.AnswerOptions = append(q.AnswerOptions, o)
			}
		}
		quiz.Questions = append(quiz.Questions, q)
	}

	if err := s.Repo.CreateQuiz(ctx, quiz); err != nil {
		return nil, err
	}
	logger.Log.Info("Quiz created",
		zap.Uint("quizId", quiz.ID),
		zap.Uint("courseId", quiz.CourseID),
		zap.Int("questions", len(quiz.Questions)),
	)
	return quiz, nil
}

// DeactivateQuiz 软删除，保留作答和成绩
func (s *QuizService) DeactivateQuiz(ctx context.Context, quizID uint, requester Requester) error {
	quiz, err := s.Repo.FindQuizByID(ctx, quizID)
	if err != nil {
		return notFoundAs(err, util.ErrQuizNotFound)
	}
	if err := checkCourseOwner(ctx, s.Repo, quiz.CourseID, requester); err != nil {
		return err
	}
	if err := s.Repo.Deactivate(ctx, quizID); err != nil {
		return notFoundAs(err, util.ErrQuizNotFound)
	}
	return nil
}

func (s *QuizService) GetStudentView(ctx context.Context, quizID uint) (*StudentQuizView, error) {
	quiz, err := s.Repo.FindQuizByID(ctx, quizID)
	if err != nil {
		return nil, notFoundAs(err, util.ErrQuizNotFound)
	}
	if !quiz.IsActive {
		return nil, util.ErrQuizInactive
	}
	questions, err := s.Repo.FindQuestionsWithOptions(ctx, quizID)
	if err != nil {
		return nil, err
	}
	quiz.Questions = questions

	var view StudentQuizView
	if err := copier.Copy(&view, quiz); err != nil {
		return nil, err
	}
	return &view, nil
}

func (s *QuizService) ListCourseQuizzes(ctx context.Context, courseID uint) ([]model.Quiz, error) {
	if _, err := s.Repo.FindCourseByID(ctx, courseID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, util.ErrCourseNotFound
		}
		return nil, err
	}
	return s.Repo.ListByCourse(ctx, courseID, true)
}

package service

import (
	"context"
	"errors"
	"fmt"
	"quiz_assessment_backend/internal/model"
	"quiz_assessment_backend/internal/repository"
	"quiz_assessment_backend/internal/util"
	"quiz_assessment_backend/pkg/logger"
	"quiz_assessment_backend/pkg/monitoring"
	"quiz_assessment_backend/pkg/tracing"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// 并发开始作答时唯一约束冲突后的最大重试次数
const maxStartRetries = 3

var errStartConflict = fmt.Errorf("%w: could not start attempt due to concurrent updates", util.ErrIllegalState)

type SubmitAttemptReq struct {
	Answers []AnswerRequest `json:"answers" binding:"dive"`
}

type QuizAttemptService struct {
	Attempts         AttemptStore
	Catalog          CatalogProvider
	Users            UserProvider
	Visits           VisitNotifier
	Hint             ActiveAttemptHint
	RecordUnanswered bool
	now              func() time.Time
}

func NewQuizAttemptService(attempts AttemptStore, catalog CatalogProvider, users UserProvider, visits VisitNotifier, hint ActiveAttemptHint, recordUnanswered bool) *QuizAttemptService {
	return &QuizAttemptService{
		Attempts:         attempts,
		Catalog:          catalog,
		Users:            users,
		Visits:           visits,
		Hint:             hint,
		RecordUnanswered: recordUnanswered,
		now:              time.Now,
	}
}

// StartAttempt 已有进行中的作答时直接返回它，否则创建新的作答
func (s *QuizAttemptService) StartAttempt(ctx context.Context, quizID, studentID uint) (*model.QuizAttempt, error) {
	ctx, span := tracing.Start(ctx, "QuizAttemptService.StartAttempt",
		attribute.Int64("quiz.id", int64(quizID)),
		attribute.Int64("student.id", int64(studentID)),
	)
	defer span.End()

	quiz, err := s.loadQuiz(ctx, quizID)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	if _, err := s.Users.FindByID(ctx, studentID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			err = util.ErrUserNotFound
		}
		tracing.RecordError(span, err)
		return nil, err
	}
	if !quiz.IsActive {
		return nil, util.ErrQuizInactive
	}

	for i := 0; i < maxStartRetries; i++ {
		active, err := s.findActive(ctx, quizID, studentID)
		if err == nil {
			if deadline, ok := attemptDeadline(quiz, active); ok && s.now().After(deadline) {
				if err := s.closeExpired(ctx, quiz, active, deadline); err != nil {
					tracing.RecordError(span, err)
					return nil, err
				}
				continue
			}
			logger.Log.Debug("Resuming active attempt",
				zap.Uint("attemptId", active.ID),
				zap.Uint("quizId", quizID),
				zap.Uint("studentId", studentID),
			)
			return active, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			tracing.RecordError(span, err)
			return nil, err
		}

		count, err := s.Attempts.CountByStudentAndQuiz(ctx, studentID, quizID)
		if err != nil {
			tracing.RecordError(span, err)
			return nil, err
		}
		if quiz.MaxAttempts != nil && count >= int64(*quiz.MaxAttempts) {
			return nil, util.ErrMaxAttemptsExceeded
		}

		attempt := &model.QuizAttempt{
			QuizID:        quizID,
			StudentID:     studentID,
			AttemptNumber: int(count) + 1,
			Score:         decimal.Zero,
			MaxScore:      decimal.Zero,
			StartedAt:     s.now(),
		}
		err = s.Attempts.Create(ctx, attempt)
		if err == nil {
			s.afterStart(ctx, quiz, attempt)
			return attempt, nil
		}
		if !errors.Is(err, repository.ErrDuplicateKey) {
			tracing.RecordError(span, err)
			return nil, err
		}
		// 另一个请求抢先创建，重新读取
		logger.Log.Info("Concurrent attempt start detected, retrying lookup",
			zap.Uint("quizId", quizID),
			zap.Uint("studentId", studentID),
			zap.Int("retry", i+1),
		)
	}

	tracing.RecordError(span, errStartConflict)
	return nil, errStartConflict
}

func (s *QuizAttemptService) afterStart(ctx context.Context, quiz *model.Quiz, attempt *model.QuizAttempt) {
	monitoring.AttemptsStarted.Inc()
	if s.Hint != nil {
		if err := s.Hint.Set(ctx, quiz.ID, attempt.StudentID, attempt.ID); err != nil {
			logger.Log.Warn("Failed to cache active attempt", zap.Uint("attemptId", attempt.ID), zap.Error(err))
		}
	}
	logger.Log.Info("Quiz attempt started",
		zap.Uint("attemptId", attempt.ID),
		zap.Uint("quizId", quiz.ID),
		zap.Uint("studentId", attempt.StudentID),
		zap.Int("attemptNumber", attempt.AttemptNumber),
	)

	quizID := quiz.ID
	s.notify(VisitEvent{
		UserID:   attempt.StudentID,
		CourseID: quiz.CourseID,
		QuizID:   &quizID,
		Type:     model.VisitQuizStart,
	})
}

func attemptDeadline(quiz *model.Quiz, attempt *model.QuizAttempt) (time.Time, bool) {
	if quiz.TimeLimitMinutes == nil {
		return time.Time{}, false
	}
	return attempt.StartedAt.Add(time.Duration(*quiz.TimeLimitMinutes) * time.Minute), true
}

// closeExpired 超时未提交的作答按未作答评分并在截止时间完成，之后才能开始新的作答
func (s *QuizAttemptService) closeExpired(ctx context.Context, quiz *model.Quiz, attempt *model.QuizAttempt, deadline time.Time) error {
	questions, err := s.Catalog.FindQuestionsWithOptions(ctx, quiz.ID)
	if err != nil {
		return err
	}
	rows, score, maxScore, err := s.gradeSubmission(questions, nil)
	if err != nil {
		return err
	}

	err = s.Attempts.Complete(ctx, attempt.ID, score, maxScore, deadline, rows)
	if err != nil && !errors.Is(err, repository.ErrConflict) {
		return err
	}
	if s.Hint != nil {
		_ = s.Hint.Delete(ctx, quiz.ID, attempt.StudentID)
	}
	if err == nil {
		logger.Log.Info("Expired quiz attempt closed",
			zap.Uint("attemptId", attempt.ID),
			zap.Uint("quizId", quiz.ID),
			zap.Uint("studentId", attempt.StudentID),
			zap.Time("deadline", deadline),
		)
	}
	return nil
}

// findActive 先查缓存提示，命中后回库确认仍是进行中的作答
func (s *QuizAttemptService) findActive(ctx context.Context, quizID, studentID uint) (*model.QuizAttempt, error) {
	if s.Hint != nil {
		if id, ok := s.Hint.Get(ctx, quizID, studentID); ok {
			attempt, err := s.Attempts.FindByID(ctx, id)
			if err == nil && !attempt.IsCompleted && attempt.QuizID == quizID && attempt.StudentID == studentID {
				return attempt, nil
			}
			_ = s.Hint.Delete(ctx, quizID, studentID)
		}
	}
	return s.Attempts.FindActive(ctx, quizID, studentID)
}

// SubmitAttempt 对测验全部题目评分并完成当前作答，每个作答只能成功提交一次
func (s *QuizAttemptService) SubmitAttempt(ctx context.Context, quizID, studentID uint, answers []AnswerRequest) (*model.QuizAttempt, error) {
	ctx, span := tracing.Start(ctx, "QuizAttemptService.SubmitAttempt",
		attribute.Int64("quiz.id", int64(quizID)),
		attribute.Int64("student.id", int64(studentID)),
	)
	defer span.End()

	quiz, err := s.loadQuiz(ctx, quizID)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	attempt, err := s.Attempts.FindActive(ctx, quizID, studentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			err = util.ErrActiveAttemptNotFound
		}
		tracing.RecordError(span, err)
		return nil, err
	}

	now := s.now()
	if deadline, ok := attemptDeadline(quiz, attempt); ok && now.After(deadline) {
		return nil, util.ErrTimeLimitExceeded
	}

	questions, err := s.Catalog.FindQuestionsWithOptions(ctx, quizID)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	rows, score, maxScore, err := s.gradeSubmission(questions, answers)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	if err := s.Attempts.Complete(ctx, attempt.ID, score, maxScore, now, rows); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			// 并发的另一次提交已完成该作答
			err = util.ErrActiveAttemptNotFound
		}
		tracing.RecordError(span, err)
		return nil, err
	}

	attempt.Score = score
	attempt.MaxScore = maxScore
	attempt.CompletedAt = &now
	attempt.IsCompleted = true
	attempt.ActiveKey = nil

	monitoring.AttemptsSubmitted.Inc()
	if s.Hint != nil {
		_ = s.Hint.Delete(ctx, quizID, studentID)
	}
	logger.Log.Info("Quiz attempt submitted",
		zap.Uint("attemptId", attempt.ID),
		zap.Uint("quizId", quizID),
		zap.Uint("studentId", studentID),
		zap.String("score", score.String()),
		zap.String("maxScore", maxScore.String()),
	)

	s.notify(VisitEvent{
		UserID:          studentID,
		CourseID:        quiz.CourseID,
		QuizID:          &quizID,
		Type:            model.VisitQuizComplete,
		DurationSeconds: attempt.DurationSeconds(),
	})
	return attempt, nil
}

// gradeSubmission 以题目列表为准逐题评分；未知题目的答案忽略，同一题重复提交取第一个
func (s *QuizAttemptService) gradeSubmission(questions []model.Question, answers []AnswerRequest) ([]model.StudentAnswer, decimal.Decimal, decimal.Decimal, error) {
	submitted := make(map[uint]*AnswerRequest, len(answers))
	for i := range answers {
		if _, dup := submitted[answers[i].QuestionID]; !dup {
			submitted[answers[i].QuestionID] = &answers[i]
		}
	}

	score, maxScore := decimal.Zero, decimal.Zero
	rows := make([]model.StudentAnswer, 0, len(questions))
	for i := range questions {
		q := &questions[i]
		maxScore = maxScore.Add(decimal.NewFromInt(int64(q.Points)))

		ans, ok := submitted[q.ID]
		if !ok {
			if s.RecordUnanswered {
				row := model.StudentAnswer{QuestionID: q.ID, PointsEarned: decimal.Zero, Skipped: true}
				if err := row.SetSelectedOptionIDs(nil); err != nil {
					return nil, decimal.Zero, decimal.Zero, err
				}
				rows = append(rows, row)
			}
			continue
		}

		outcome := GradeAnswer(q, ans)
		score = score.Add(outcome.PointsEarned)

		row := model.StudentAnswer{
			QuestionID:   q.ID,
			AnswerText:   ans.AnswerText,
			IsCorrect:    outcome.IsCorrect,
			PointsEarned: outcome.PointsEarned,
		}
		if err := row.SetSelectedOptionIDs(ans.SelectedOptionIDs); err != nil {
			return nil, decimal.Zero, decimal.Zero, err
		}
		rows = append(rows, row)
	}
	return rows, score, maxScore, nil
}

func (s *QuizAttemptService) notify(event VisitEvent) {
	if s.Visits == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Log.Error("Visit notification panicked", zap.Any("panic", r))
		}
	}()
	s.Visits.Notify(event)
}

func (s *QuizAttemptService) loadQuiz(ctx context.Context, quizID uint) (*model.Quiz, error) {
	quiz, err := s.Catalog.FindQuizByID(ctx, quizID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, util.ErrQuizNotFound
		}
		return nil, err
	}
	return quiz, nil
}

func (s *QuizAttemptService) GetStudentAttempts(ctx context.Context, studentID uint) ([]model.QuizAttempt, error) {
	return s.Attempts.ListByStudent(ctx, studentID)
}

// GetQuizAttempts 仅课程教师或管理员可查看，每次都重新校验归属
func (s *QuizAttemptService) GetQuizAttempts(ctx context.Context, quizID uint, req Requester) ([]model.QuizAttempt, error) {
	quiz, err := s.loadQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if err := s.checkCourseOwner(ctx, quiz.CourseID, req); err != nil {
		return nil, err
	}
	return s.Attempts.ListByQuiz(ctx, quizID)
}

// GetAttemptByID 作答学生本人、课程教师或管理员可查看
func (s *QuizAttemptService) GetAttemptByID(ctx context.Context, attemptID uint, req Requester) (*model.QuizAttempt, error) {
	attempt, err := s.Attempts.FindByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, util.ErrAttemptNotFound
		}
		return nil, err
	}
	if attempt.StudentID == req.UserID || req.IsAdmin() {
		return attempt, nil
	}

	quiz, err := s.loadQuiz(ctx, attempt.QuizID)
	if err != nil {
		return nil, err
	}
	if err := s.checkCourseOwner(ctx, quiz.CourseID, req); err != nil {
		return nil, err
	}
	return attempt, nil
}

func (s *QuizAttemptService) checkCourseOwner(ctx context.Context, courseID uint, req Requester) error {
	return checkCourseOwner(ctx, s.Catalog, courseID, req)
}

func checkCourseOwner(ctx context.Context, catalog CatalogProvider, courseID uint, req Requester) error {
	if req.IsAdmin() {
		return nil
	}
	course, err := catalog.FindCourseByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return util.ErrCourseNotFound
		}
		return err
	}
	if course.TeacherID != req.UserID {
		return util.ErrPermissionDenied
	}
	return nil
}

package repository

import (
	"context"
	"quiz_assessment_backend/internal/model"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type QuizAttemptRepository struct {
	DB *gorm.DB
}

func NewQuizAttemptRepository(db *gorm.DB) *QuizAttemptRepository {
	return &QuizAttemptRepository{DB: db}
}

// Create 违反 (quiz, student, attempt_number) 或进行中唯一约束时返回 ErrDuplicateKey
func (r *QuizAttemptRepository) Create(ctx context.Context, attempt *model.QuizAttempt) error {
	if !attempt.IsCompleted {
		key := model.ActiveAttemptKey(attempt.QuizID, attempt.StudentID)
		attempt.ActiveKey = &key
	}
	return translate(r.DB.WithContext(ctx).Create(attempt).Error)
}

func (r *QuizAttemptRepository) FindByID(ctx context.Context, id uint) (*model.QuizAttempt, error) {
	var attempt model.QuizAttempt
	if err := r.DB.WithContext(ctx).First(&attempt, id).Error; err != nil {
		return nil, translate(err)
	}
	return &attempt, nil
}

func (r *QuizAttemptRepository) FindActive(ctx context.Context, quizID, studentID uint) (*model.QuizAttempt, error) {
	var attempt model.QuizAttempt
	err := r.DB.WithContext(ctx).
		Where("quiz_id = ? AND student_id = ? AND is_completed = ?", quizID, studentID, false).
		First(&attempt).Error
	if err != nil {
		return nil, translate(err)
	}
	return &attempt, nil
}

func (r *QuizAttemptRepository) CountByStudentAndQuiz(ctx context.Context, studentID, quizID uint) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.QuizAttempt{}).
		Where("student_id = ? AND quiz_id = ?", studentID, quizID).
		Count(&count).Error
	return count, err
}

func (r *QuizAttemptRepository) ListByStudent(ctx context.Context, studentID uint) ([]model.QuizAttempt, error) {
	var attempts []model.QuizAttempt
	err := r.DB.WithContext(ctx).Where("student_id = ?", studentID).
		Order("started_at DESC, id DESC").Find(&attempts).Error
	return attempts, err
}

func (r *QuizAttemptRepository) ListByQuiz(ctx context.Context, quizID uint) ([]model.QuizAttempt, error) {
	var attempts []model.QuizAttempt
	err := r.DB.WithContext(ctx).Where("quiz_id = ?", quizID).
		Order("started_at DESC, id DESC").Find(&attempts).Error
	return attempts, err
}

// Complete 在同一事务中先写答案再把作答标记为完成。
// 作答已完成（重复提交）时返回 ErrConflict，答案不会写入。
func (r *QuizAttemptRepository) Complete(ctx context.Context, attemptID uint, score, maxScore decimal.Decimal, completedAt time.Time, answers []model.StudentAnswer) error {
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(answers) > 0 {
			for i := range answers {
				answers[i].AttemptID = attemptID
			}
			if err := tx.Create(&answers).Error; err != nil {
				if IsDuplicateKeyError(err) {
					return ErrConflict
				}
				return err
			}
		}

		res := tx.Model(&model.QuizAttempt{}).
			Where("id = ? AND is_completed = ?", attemptID, false).
			Updates(map[string]interface{}{
				"score":        score,
				"max_score":    maxScore,
				"completed_at": completedAt,
				"is_completed": true,
				"active_key":   nil,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConflict
		}
		return nil
	})
	return err
}

func (r *QuizAttemptRepository) FindAnswersByAttempt(ctx context.Context, attemptID uint) ([]model.StudentAnswer, error) {
	var answers []model.StudentAnswer
	err := r.DB.WithContext(ctx).Where("attempt_id = ?", attemptID).Order("id ASC").Find(&answers).Error
	return answers, err
}

package repository

import (
	"context"
	"quiz_assessment_backend/internal/model"

	"gorm.io/gorm"
)

// QuizRepository 题库只读查询及少量维护操作
type QuizRepository struct {
	DB *gorm.DB
}

func NewQuizRepository(db *gorm.DB) *QuizRepository {
	return &QuizRepository{DB: db}
}

func (r *QuizRepository) FindQuizByID(ctx context.Context, id uint) (*model.Quiz, error) {
	var quiz model.Quiz
	if err := r.DB.WithContext(ctx).First(&quiz, id).Error; err != nil {
		return nil, translate(err)
	}
	return &quiz, nil
}

// FindQuestionsWithOptions 按 order_index 升序，评分和总分累计依赖这个顺序
func (r *QuizRepository) FindQuestionsWithOptions(ctx context.Context, quizID uint) ([]model.Question, error) {
	var questions []model.Question
	err := r.DB.WithContext(ctx).
		Preload("AnswerOptions", func(db *gorm.DB) *gorm.DB {
			return db.Order("order_index ASC, id ASC")
		}).
		Where("quiz_id = ?", quizID).
		Order("order_index ASC, id ASC").
		Find(&questions).Error
	return questions, err
}

func (r *QuizRepository) FindCourseByID(ctx context.Context, id uint) (*model.Course, error) {
	var course model.Course
	if err := r.DB.WithContext(ctx).First(&course, id).Error; err != nil {
		return nil, translate(err)
	}
	return &course, nil
}

// CreateQuiz 连同题目和选项一起写入
func (r *QuizRepository) CreateQuiz(ctx context.Context, quiz *model.Quiz) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(quiz).Error
	})
}

func (r *QuizRepository) Deactivate(ctx context.Context, id uint) error {
	res := r.DB.WithContext(ctx).Model(&model.Quiz{}).Where("id = ?", id).Update("is_active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *QuizRepository) ListByCourse(ctx context.Context, courseID uint, activeOnly bool) ([]model.Quiz, error) {
	var quizzes []model.Quiz
	q := r.DB.WithContext(ctx).Where("course_id = ?", courseID)
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	err := q.Order("created_at DESC").Find(&quizzes).Error
	return quizzes, err
}

package repository

import (
	"context"
	"quiz_assessment_backend/internal/model"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type TestResultRepository struct {
	DB *gorm.DB
}

func NewTestResultRepository(db *gorm.DB) *TestResultRepository {
	return &TestResultRepository{DB: db}
}

// Create 同一作答已有成绩时返回 ErrDuplicateKey
func (r *TestResultRepository) Create(ctx context.Context, result *model.TestResult) error {
	return translate(r.DB.WithContext(ctx).Create(result).Error)
}

// Replace 强制重算：删除旧成绩并写入新成绩
func (r *TestResultRepository) Replace(ctx context.Context, result *model.TestResult) error {
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("quiz_attempt_id = ?", result.QuizAttemptID).Delete(&model.TestResult{}).Error; err != nil {
			return err
		}
		return tx.Create(result).Error
	})
	return translate(err)
}

func (r *TestResultRepository) FindByID(ctx context.Context, id uint) (*model.TestResult, error) {
	var result model.TestResult
	if err := r.DB.WithContext(ctx).First(&result, id).Error; err != nil {
		return nil, translate(err)
	}
	return &result, nil
}

func (r *TestResultRepository) FindByAttemptID(ctx context.Context, attemptID uint) (*model.TestResult, error) {
	var result model.TestResult
	if err := r.DB.WithContext(ctx).Where("quiz_attempt_id = ?", attemptID).First(&result).Error; err != nil {
		return nil, translate(err)
	}
	return &result, nil
}

func (r *TestResultRepository) ExistsByAttemptID(ctx context.Context, attemptID uint) (bool, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.TestResult{}).Where("quiz_attempt_id = ?", attemptID).Count(&count).Error
	return count > 0, err
}

// ResultFilter 为空的字段不参与过滤
type ResultFilter struct {
	StudentID uint
	QuizID    uint
	Status    model.TestResultStatus
}

func (r *TestResultRepository) List(ctx context.Context, f ResultFilter) ([]model.TestResult, error) {
	q := r.DB.WithContext(ctx).Model(&model.TestResult{})
	if f.StudentID != 0 {
		q = q.Where("student_id = ?", f.StudentID)
	}
	if f.QuizID != 0 {
		q = q.Where("quiz_id = ?", f.QuizID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}

	var results []model.TestResult
	err := q.Order("created_at DESC, id DESC").Find(&results).Error
	return results, err
}

func (r *TestResultRepository) TopScoresByQuiz(ctx context.Context, quizID uint, limit int) ([]model.TestResult, error) {
	var results []model.TestResult
	err := r.DB.WithContext(ctx).
		Where("quiz_id = ? AND status = ?", quizID, model.ResultPassed).
		Order("score DESC, percentage DESC, id ASC").
		Limit(limit).
		Find(&results).Error
	return results, err
}

func (r *TestResultRepository) ListCompletedBetween(ctx context.Context, start, end time.Time) ([]model.TestResult, error) {
	var results []model.TestResult
	err := r.DB.WithContext(ctx).
		Where("completed_at BETWEEN ? AND ?", start, end).
		Order("completed_at DESC, id DESC").
		Find(&results).Error
	return results, err
}

type QuizStatistics struct {
	AveragePercentage decimal.Decimal `json:"averagePercentage"`
	PassedCount       int64           `json:"passedCount"`
	FailedCount       int64           `json:"failedCount"`
	TotalCount        int64           `json:"totalCount"`
}

// QuizStatistics 只统计 PASSED/FAILED，ERROR 和 TIMEOUT 不计入平均分
func (r *TestResultRepository) QuizStatistics(ctx context.Context, quizID uint) (*QuizStatistics, error) {
	var row struct {
		AvgPercentage float64
		PassedCount   int64
		FailedCount   int64
	}
	err := r.DB.WithContext(ctx).Model(&model.TestResult{}).
		Select("COALESCE(AVG(percentage), 0) AS avg_percentage, "+
			"COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS passed_count, "+
			"COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS failed_count",
			model.ResultPassed, model.ResultFailed).
		Where("quiz_id = ? AND status IN ?", quizID, []model.TestResultStatus{model.ResultPassed, model.ResultFailed}).
		Scan(&row).Error
	if err != nil {
		return nil, err
	}

	return &QuizStatistics{
		AveragePercentage: decimal.NewFromFloat(row.AvgPercentage).Round(2),
		PassedCount:       row.PassedCount,
		FailedCount:       row.FailedCount,
		TotalCount:        row.PassedCount + row.FailedCount,
	}, nil
}

func (r *TestResultRepository) FindStaleInProgress(ctx context.Context, cutoff time.Time) ([]model.TestResult, error) {
	var results []model.TestResult
	err := r.DB.WithContext(ctx).
		Where("status = ? AND created_at < ?", model.ResultInProgress, cutoff).
		Order("id ASC").
		Find(&results).Error
	return results, err
}

// MarkTimedOut 只迁移仍处于 IN_PROGRESS 的记录，返回是否更新成功
func (r *TestResultRepository) MarkTimedOut(ctx context.Context, id uint, completedAt time.Time, message string) (bool, error) {
	res := r.DB.WithContext(ctx).Model(&model.TestResult{}).
		Where("id = ? AND status = ?", id, model.ResultInProgress).
		Updates(map[string]interface{}{
			"status":        model.ResultTimeout,
			"completed_at":  completedAt,
			"error_message": message,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

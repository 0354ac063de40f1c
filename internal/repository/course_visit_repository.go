package repository

import (
	"context"
	"quiz_assessment_backend/internal/model"

	"gorm.io/gorm"
)

type CourseVisitRepository struct {
	DB *gorm.DB
}

func NewCourseVisitRepository(db *gorm.DB) *CourseVisitRepository {
	return &CourseVisitRepository{DB: db}
}

func (r *CourseVisitRepository) Create(ctx context.Context, visit *model.CourseVisit) error {
	return r.DB.WithContext(ctx).Create(visit).Error
}

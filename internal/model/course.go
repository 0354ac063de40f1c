package model

// Course 由课程模块维护，测验模块只用于归属校验
// swagger:model Course
type Course struct {
	BaseModel
	Title     string `gorm:"size:255;not null" json:"title"`
	TeacherID uint   `gorm:"index;not null" json:"teacherId"`
}

func (Course) TableName() string {
	return "courses"
}

package model

type UserRole string

const (
	Student UserRole = "student"
	Teacher UserRole = "teacher"
	Admin   UserRole = "admin"
)

// User 由用户模块维护，这里只读取
// swagger:model User
type User struct {
	BaseModel
	Name     string   `gorm:"size:100;not null" json:"name"`
	Email    string   `gorm:"size:100;uniqueIndex;not null" json:"email"`
	Role     UserRole `gorm:"size:20;not null;default:'student'" json:"role"`
	Disabled bool     `gorm:"not null;default:false" json:"disabled"`
}

func (User) TableName() string {
	return "users"
}

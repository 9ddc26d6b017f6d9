package models

import (
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
)

// User 用户模型
type User struct {
	BaseModel
	Username     string                    `json:"username" gorm:"uniqueIndex;not null;size:50"`
	Email        string                    `json:"email" gorm:"uniqueIndex;not null;size:100"`
	PasswordHash string                    `json:"-" gorm:"not null;size:255"`
	Role         string                    `json:"role" gorm:"size:50;not null;index"` // 引用 Role.Name
	IsActive     bool                      `json:"is_active" gorm:"not null"`
	ProjectIDs   datatypes.JSONSlice[uint] `json:"project_ids" gorm:"type:json"` // 可访问的项目范围
	LastLoginAt  *time.Time                `json:"last_login_at"`
}

// TableName 表名
func (u *User) TableName() string {
	return "users"
}

// SetPassword 设置密码
func (u *User) SetPassword(password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hashedPassword)
	return nil
}

// CheckPassword 验证密码
func (u *User) CheckPassword(password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password))
	return err == nil
}

// CanAccessProject 是否可访问指定项目
func (u *User) CanAccessProject(projectID uint) bool {
	if u.Role == RoleSuperAdmin {
		return true
	}
	for _, id := range u.ProjectIDs {
		if id == projectID {
			return true
		}
	}
	return false
}

package models

// Role 角色模型
type Role struct {
	BaseModel
	Name        string `gorm:"uniqueIndex;size:50;not null" json:"name"` // 角色标识，系统角色不可修改
	DisplayName string `gorm:"size:100;not null" json:"display_name"`
	Description string `gorm:"size:255" json:"description"`
	IsActive    bool   `gorm:"not null" json:"is_active"`
}

// TableName 表名
func (Role) TableName() string {
	return "roles"
}

// 系统预定义角色常量
const (
	RoleSuperAdmin   = "super_admin"   // 超级管理员，所有检查直接放行
	RoleAdmin        = "admin"         // 系统管理员
	RoleSalesManager = "sales_manager" // 销售经理
	RoleSalesPerson  = "sales_person"  // 置业顾问
)

// SystemRoles 系统角色集合，名称不可修改
var SystemRoles = map[string]bool{
	RoleSuperAdmin:   true,
	RoleAdmin:        true,
	RoleSalesManager: true,
	RoleSalesPerson:  true,
}

// AdminRoles 管理类资源的写操作要求的角色
var AdminRoles = []string{RoleSuperAdmin, RoleAdmin}

// IsSystem 是否系统角色
func (r *Role) IsSystem() bool {
	return IsSystemRole(r.Name)
}

// IsSystemRole 判断角色名是否为系统角色
func IsSystemRole(name string) bool {
	return SystemRoles[name]
}

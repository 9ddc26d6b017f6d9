package models

import "time"

// RoleMenuPermission 角色菜单授权
type RoleMenuPermission struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	RoleID    uint      `gorm:"not null;uniqueIndex:idx_role_menu" json:"role_id"`
	MenuID    uint      `gorm:"not null;uniqueIndex:idx_role_menu;index" json:"menu_id"`
	CanView   bool      `gorm:"not null" json:"can_view"`
	CanCreate bool      `gorm:"not null" json:"can_create"`
	CanUpdate bool      `gorm:"not null" json:"can_update"`
	CanDelete bool      `gorm:"not null" json:"can_delete"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName 表名
func (RoleMenuPermission) TableName() string {
	return "role_menu_permissions"
}

// RoleButtonPermission 角色按钮授权
type RoleButtonPermission struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	RoleID     uint      `gorm:"not null;uniqueIndex:idx_role_button" json:"role_id"`
	ButtonID   uint      `gorm:"not null;uniqueIndex:idx_role_button;index" json:"button_id"`
	CanOperate bool      `gorm:"not null" json:"can_operate"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName 表名
func (RoleButtonPermission) TableName() string {
	return "role_button_permissions"
}

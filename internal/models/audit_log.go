package models

import (
	"time"

	"gorm.io/datatypes"
)

// PermissionAuditLog 权限审计日志，只追加不修改
type PermissionAuditLog struct {
	ID           uint           `gorm:"primarykey" json:"id"`
	UserID       uint           `gorm:"index;not null" json:"user_id"` // 操作人，0 表示系统
	Action       string         `gorm:"size:20;index;not null" json:"action"`
	ResourceType string         `gorm:"size:50;index;not null" json:"resource_type"`
	ResourceID   uint           `gorm:"index;not null" json:"resource_id"` // 批量操作为 0
	BeforeData   datatypes.JSON `json:"before_data"`
	AfterData    datatypes.JSON `json:"after_data"`
	Description  string         `gorm:"size:500" json:"description"`
	IPAddress    string         `gorm:"size:45" json:"ip_address"`
	UserAgent    string         `gorm:"size:500" json:"user_agent"`
	CreatedAt    time.Time      `gorm:"index" json:"created_at"`
}

// TableName 表名
func (PermissionAuditLog) TableName() string {
	return "permission_audit_logs"
}

// 审计动作
const (
	AuditActionCreate      = "CREATE"
	AuditActionUpdate      = "UPDATE"
	AuditActionDelete      = "DELETE"
	AuditActionBatchDelete = "BATCH_DELETE"
	AuditActionBatchUpdate = "BATCH_UPDATE"
	AuditActionCleanup     = "CLEANUP"
)

// AuditActions 所有合法的审计动作
var AuditActions = []string{
	AuditActionCreate,
	AuditActionUpdate,
	AuditActionDelete,
	AuditActionBatchDelete,
	AuditActionBatchUpdate,
	AuditActionCleanup,
}

// IsValidAuditAction 校验审计动作
func IsValidAuditAction(action string) bool {
	for _, a := range AuditActions {
		if a == action {
			return true
		}
	}
	return false
}

// 审计资源类型
const (
	ResourceRole                 = "role"
	ResourceMenu                 = "menu"
	ResourceButton               = "button"
	ResourceUser                 = "user"
	ResourceRoleMenuPermission   = "role_menu_permission"
	ResourceRoleButtonPermission = "role_button_permission"
	ResourceAuditLog             = "permission_audit_log"
)

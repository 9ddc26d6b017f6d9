package models

// Button 按钮权限，对应一个细粒度操作（通常是一个 HTTP 方法 + 路由）
type Button struct {
	BaseModel
	Name        string `gorm:"size:100;not null" json:"name"`
	Identifier  string `gorm:"size:150;not null;uniqueIndex:idx_button_identifier_menu" json:"identifier"`
	MenuID      uint   `gorm:"not null;uniqueIndex:idx_button_identifier_menu;index" json:"menu_id"`
	Status      string `gorm:"size:20;not null;default:'active';index" json:"status"`
	Source      string `gorm:"size:20;not null;default:'manual'" json:"source"`
	Method      string `gorm:"size:10" json:"method"`
	RoutePath   string `gorm:"size:255" json:"route_path"`
	Description string `gorm:"size:255" json:"description"`

	Menu *Menu `gorm:"foreignKey:MenuID" json:"menu,omitempty"`
}

// TableName 表名
func (Button) TableName() string {
	return "buttons"
}

// 按钮状态：absent 表示最近一次扫描中路由已不存在，保留记录以便审计回溯
const (
	ButtonStatusActive   = "active"
	ButtonStatusInactive = "inactive"
	ButtonStatusAbsent   = "absent"
)

// 按钮来源
const (
	ButtonSourceManual = "manual"
	ButtonSourceScan   = "scan"
)

// IsActive 是否可用于授权
func (b *Button) IsActive() bool {
	return b.Status == ButtonStatusActive
}

// IsValidButtonStatus 校验按钮状态
func IsValidButtonStatus(status string) bool {
	switch status {
	case ButtonStatusActive, ButtonStatusInactive, ButtonStatusAbsent:
		return true
	}
	return false
}

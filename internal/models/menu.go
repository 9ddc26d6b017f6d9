package models

// Menu 菜单模型，ParentID 为空表示根菜单
type Menu struct {
	BaseModel
	Name        string `gorm:"uniqueIndex;size:100;not null" json:"name"`
	DisplayName string `gorm:"size:100;not null" json:"display_name"`
	Path        string `gorm:"size:255;index" json:"path"`
	Icon        string `gorm:"size:100" json:"icon"`
	ParentID    *uint  `gorm:"index" json:"parent_id"`
	SortOrder   int    `gorm:"default:0" json:"sort_order"`
	IsVisible   bool   `gorm:"not null" json:"is_visible"`
	Description string `gorm:"size:255" json:"description"`
}

// TableName 表名
func (Menu) TableName() string {
	return "menus"
}

// MaxMenuDepth 菜单树最大层级
const MaxMenuDepth = 5

// 未匹配到菜单的接口权限统一挂在该菜单下
const (
	FallbackMenuName        = "api_permissions"
	FallbackMenuDisplayName = "接口权限"
	FallbackMenuPath        = "/api-permissions"
)

// MenuTreeNode 菜单树节点
type MenuTreeNode struct {
	*Menu
	Children []*MenuTreeNode `json:"children,omitempty"`
}

package services

import (
	"context"
	"errors"
	"sort"

	"salesadmin/internal/models"
	apperrors "salesadmin/pkg/errors"

	"gorm.io/gorm"
)

// EffectivePermissions 用户的有效权限：可见菜单树与可操作的按钮标识
type EffectivePermissions struct {
	UserID       uint                   `json:"user_id"`
	Role         string                 `json:"role"`
	IsSuperAdmin bool                   `json:"is_super_admin"`
	Menus        []*models.MenuTreeNode `json:"menus"`
	Buttons      []string               `json:"buttons"`
}

// PermissionService 权限查询，每次读取当前授权状态
type PermissionService struct {
	db *gorm.DB
}

// NewPermissionService 创建权限查询服务
func NewPermissionService(db *gorm.DB) *PermissionService {
	return &PermissionService{db: db}
}

// ForUser 计算用户的有效权限；停用用户或停用角色没有任何权限
func (s *PermissionService) ForUser(ctx context.Context, userID uint) (*EffectivePermissions, error) {
	db := s.db.WithContext(ctx)

	var user models.User
	if err := db.First(&user, userID).Error; err != nil {
		return nil, notFoundOr(err, "用户不存在")
	}

	result := &EffectivePermissions{
		UserID:       user.ID,
		Role:         user.Role,
		IsSuperAdmin: user.Role == models.RoleSuperAdmin,
		Menus:        []*models.MenuTreeNode{},
		Buttons:      []string{},
	}
	if !user.IsActive {
		return result, nil
	}

	if result.IsSuperAdmin {
		return s.all(db, result)
	}

	var role models.Role
	if err := db.Where("name = ?", user.Role).First(&role).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return result, nil
		}
		return nil, apperrors.Internal("查询角色失败", err)
	}
	if !role.IsActive {
		return result, nil
	}

	var menuIDs []uint
	if err := db.Model(&models.RoleMenuPermission{}).
		Where("role_id = ? AND can_view = ?", role.ID, true).
		Pluck("menu_id", &menuIDs).Error; err != nil {
		return nil, apperrors.Internal("查询菜单权限失败", err)
	}
	menus, err := s.withAncestors(db, menuIDs)
	if err != nil {
		return nil, err
	}
	result.Menus = BuildMenuTree(menus)

	identifiers := make([]string, 0)
	if err := db.Model(&models.Button{}).
		Joins("JOIN role_button_permissions ON role_button_permissions.button_id = buttons.id").
		Where("role_button_permissions.role_id = ? AND role_button_permissions.can_operate = ?", role.ID, true).
		Where("buttons.status = ?", models.ButtonStatusActive).
		Distinct().Order("buttons.identifier").
		Pluck("buttons.identifier", &identifiers).Error; err != nil {
		return nil, apperrors.Internal("查询按钮权限失败", err)
	}
	result.Buttons = identifiers
	return result, nil
}

// all 超级管理员拥有全部可见菜单与可用按钮
func (s *PermissionService) all(db *gorm.DB, result *EffectivePermissions) (*EffectivePermissions, error) {
	var menus []models.Menu
	if err := db.Where("is_visible = ?", true).Order("sort_order, id").Find(&menus).Error; err != nil {
		return nil, apperrors.Internal("查询菜单失败", err)
	}
	result.Menus = BuildMenuTree(menus)

	identifiers := make([]string, 0)
	if err := db.Model(&models.Button{}).Where("status = ?", models.ButtonStatusActive).
		Distinct().Order("identifier").Pluck("identifier", &identifiers).Error; err != nil {
		return nil, apperrors.Internal("查询按钮失败", err)
	}
	result.Buttons = identifiers
	return result, nil
}

// withAncestors 补齐授权菜单的祖先节点，只返回可见菜单
func (s *PermissionService) withAncestors(db *gorm.DB, ids []uint) ([]models.Menu, error) {
	var all []models.Menu
	if err := db.Find(&all).Error; err != nil {
		return nil, apperrors.Internal("查询菜单失败", err)
	}
	byID := make(map[uint]*models.Menu, len(all))
	for i := range all {
		byID[all[i].ID] = &all[i]
	}

	selected := make(map[uint]bool)
	for _, id := range ids {
		current, ok := byID[id]
		for ok && !selected[current.ID] {
			selected[current.ID] = true
			if current.ParentID == nil {
				break
			}
			current, ok = byID[*current.ParentID]
		}
	}

	menus := make([]models.Menu, 0, len(selected))
	for id := range selected {
		if byID[id].IsVisible {
			menus = append(menus, *byID[id])
		}
	}
	sort.Slice(menus, func(i, j int) bool {
		if menus[i].SortOrder == menus[j].SortOrder {
			return menus[i].ID < menus[j].ID
		}
		return menus[i].SortOrder < menus[j].SortOrder
	})
	return menus, nil
}

package services

import (
	"context"

	"salesadmin/internal/models"

	"gorm.io/gorm"
)

// MenuHierarchy 菜单树结构校验
type MenuHierarchy struct {
	db *gorm.DB
}

// NewMenuHierarchy 创建菜单树校验器
func NewMenuHierarchy(db *gorm.DB) *MenuHierarchy {
	return &MenuHierarchy{db: db}
}

// WouldCreateCycle 把 menuID 挂到 proposedParentID 下是否会形成环。
// 从 proposedParentID 沿父链向上查找，遇到 menuID 即为环。
func (h *MenuHierarchy) WouldCreateCycle(ctx context.Context, menuID, proposedParentID uint) (bool, error) {
	visited := make(map[uint]bool)
	current := proposedParentID
	for {
		if current == menuID {
			return true, nil
		}
		// 已有数据中存在环时避免死循环
		if visited[current] {
			return true, nil
		}
		visited[current] = true

		parentID, err := h.parentOf(ctx, current)
		if err != nil {
			return false, err
		}
		if parentID == nil {
			return false, nil
		}
		current = *parentID
	}
}

// Depth 菜单所在层级，根菜单为 1
func (h *MenuHierarchy) Depth(ctx context.Context, menuID uint) (int, error) {
	depth := 0
	visited := make(map[uint]bool)
	current := &menuID
	for current != nil {
		if visited[*current] {
			break
		}
		visited[*current] = true
		depth++

		parentID, err := h.parentOf(ctx, *current)
		if err != nil {
			return 0, err
		}
		current = parentID
	}
	return depth, nil
}

// SubtreeHeight 以 menuID 为根的子树高度，叶子为 1
func (h *MenuHierarchy) SubtreeHeight(ctx context.Context, menuID uint) (int, error) {
	height := 0
	level := []uint{menuID}
	visited := map[uint]bool{menuID: true}
	for len(level) > 0 {
		height++
		var children []uint
		if err := h.db.WithContext(ctx).Model(&models.Menu{}).
			Where("parent_id IN ?", level).Pluck("id", &children).Error; err != nil {
			return 0, err
		}
		next := make([]uint, 0, len(children))
		for _, id := range children {
			if !visited[id] {
				visited[id] = true
				next = append(next, id)
			}
		}
		level = next
	}
	return height, nil
}

func (h *MenuHierarchy) parentOf(ctx context.Context, menuID uint) (*uint, error) {
	var menu models.Menu
	if err := h.db.WithContext(ctx).Select("id", "parent_id").First(&menu, menuID).Error; err != nil {
		return nil, notFoundOr(err, "菜单不存在")
	}
	return menu.ParentID, nil
}

// BuildMenuTree 把平铺的菜单组装成森林，按 sort_order 排序后的输入顺序保留
func BuildMenuTree(menus []models.Menu) []*models.MenuTreeNode {
	nodes := make(map[uint]*models.MenuTreeNode, len(menus))
	for i := range menus {
		nodes[menus[i].ID] = &models.MenuTreeNode{Menu: &menus[i]}
	}

	roots := make([]*models.MenuTreeNode, 0)
	for i := range menus {
		node := nodes[menus[i].ID]
		if menus[i].ParentID != nil {
			if parent, ok := nodes[*menus[i].ParentID]; ok {
				parent.Children = append(parent.Children, node)
				continue
			}
		}
		roots = append(roots, node)
	}
	return roots
}

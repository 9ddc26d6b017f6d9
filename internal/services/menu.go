package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"salesadmin/internal/models"
	apperrors "salesadmin/pkg/errors"
	"salesadmin/pkg/pagination"

	"gorm.io/gorm"
)

// CreateMenuRequest 创建菜单请求
type CreateMenuRequest struct {
	Name        string `json:"name" binding:"required,max=100"`
	DisplayName string `json:"display_name" binding:"required,max=100"`
	Path        string `json:"path" binding:"max=255"`
	Icon        string `json:"icon" binding:"max=100"`
	ParentID    *uint  `json:"parent_id"`
	SortOrder   int    `json:"sort_order"`
	IsVisible   *bool  `json:"is_visible"`
	Description string `json:"description" binding:"max=255"`
}

// UpdateMenuRequest 更新菜单请求；parent_id 为 0 表示移到根级，不传表示不修改
type UpdateMenuRequest struct {
	Name        *string `json:"name" binding:"omitempty,max=100"`
	DisplayName *string `json:"display_name" binding:"omitempty,max=100"`
	Path        *string `json:"path" binding:"omitempty,max=255"`
	Icon        *string `json:"icon" binding:"omitempty,max=100"`
	ParentID    *uint   `json:"parent_id"`
	SortOrder   *int    `json:"sort_order"`
	IsVisible   *bool   `json:"is_visible"`
	Description *string `json:"description" binding:"omitempty,max=255"`
}

// MenuQuery 菜单列表查询条件
type MenuQuery struct {
	Keyword  string
	ParentID *uint
	Page     int
	PageSize int
}

// MenuService 菜单管理
type MenuService struct {
	db        *gorm.DB
	audit     *AuditService
	hierarchy *MenuHierarchy
}

// NewMenuService 创建菜单服务
func NewMenuService(db *gorm.DB, audit *AuditService) *MenuService {
	return &MenuService{db: db, audit: audit, hierarchy: NewMenuHierarchy(db)}
}

// List 分页获取菜单
func (s *MenuService) List(ctx context.Context, q MenuQuery) ([]models.Menu, int64, error) {
	var menus []models.Menu
	var total int64

	query := s.db.WithContext(ctx).Model(&models.Menu{})
	if q.Keyword != "" {
		like := containsPattern(q.Keyword)
		query = query.Where("name LIKE ? ESCAPE '\\' OR display_name LIKE ? ESCAPE '\\' OR path LIKE ? ESCAPE '\\'", like, like, like)
	}
	if q.ParentID != nil {
		if *q.ParentID == 0 {
			query = query.Where("parent_id IS NULL")
		} else {
			query = query.Where("parent_id = ?", *q.ParentID)
		}
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, apperrors.Internal("查询菜单失败", err)
	}
	if err := query.Order("sort_order, id").Scopes(pagination.Paginate(q.Page, q.PageSize)).Find(&menus).Error; err != nil {
		return nil, 0, apperrors.Internal("查询菜单失败", err)
	}
	return menus, total, nil
}

// Tree 获取完整菜单树
func (s *MenuService) Tree(ctx context.Context) ([]*models.MenuTreeNode, error) {
	var menus []models.Menu
	if err := s.db.WithContext(ctx).Order("sort_order, id").Find(&menus).Error; err != nil {
		return nil, apperrors.Internal("查询菜单失败", err)
	}
	return BuildMenuTree(menus), nil
}

// GetByID 根据ID获取菜单
func (s *MenuService) GetByID(ctx context.Context, id uint) (*models.Menu, error) {
	var menu models.Menu
	if err := s.db.WithContext(ctx).First(&menu, id).Error; err != nil {
		return nil, notFoundOr(err, "菜单不存在")
	}
	return &menu, nil
}

// Create 创建菜单
func (s *MenuService) Create(ctx context.Context, actor Actor, req CreateMenuRequest) (*models.Menu, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperrors.Validation("菜单名称不能为空")
	}
	if err := s.ensureNameAvailable(ctx, name, 0); err != nil {
		return nil, err
	}

	parentID := normalizeParentID(req.ParentID)
	if parentID != nil {
		if _, err := s.parent(ctx, *parentID); err != nil {
			return nil, err
		}
		depth, err := s.hierarchy.Depth(ctx, *parentID)
		if err != nil {
			return nil, err
		}
		if depth+1 > models.MaxMenuDepth {
			return nil, apperrors.Validationf("菜单层级不能超过 %d 级", models.MaxMenuDepth)
		}
	}

	menu := &models.Menu{
		Name:        name,
		DisplayName: req.DisplayName,
		Path:        req.Path,
		Icon:        req.Icon,
		ParentID:    parentID,
		SortOrder:   req.SortOrder,
		IsVisible:   req.IsVisible == nil || *req.IsVisible,
		Description: req.Description,
	}

	err := s.audit.Audit(ctx, actor, func() (*AuditEntry, error) {
		if err := s.db.WithContext(ctx).Create(menu).Error; err != nil {
			return nil, apperrors.Internal("创建菜单失败", err)
		}
		return &AuditEntry{
			Action:       models.AuditActionCreate,
			ResourceType: models.ResourceMenu,
			ResourceID:   menu.ID,
			After:        menu,
			Description:  fmt.Sprintf("created menu %s", menu.Name),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return menu, nil
}

// Update 更新菜单，修改父菜单前做环检测与层级检测
func (s *MenuService) Update(ctx context.Context, actor Actor, id uint, req UpdateMenuRequest) (*models.Menu, error) {
	menu, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	before := *menu

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, apperrors.Validation("菜单名称不能为空")
		}
		if name != menu.Name {
			if err := s.ensureNameAvailable(ctx, name, id); err != nil {
				return nil, err
			}
			menu.Name = name
		}
	}

	if req.ParentID != nil {
		newParent := normalizeParentID(req.ParentID)
		if !sameParent(menu.ParentID, newParent) {
			if err := s.validateMove(ctx, id, newParent); err != nil {
				return nil, err
			}
			menu.ParentID = newParent
		}
	}

	if req.DisplayName != nil {
		menu.DisplayName = *req.DisplayName
	}
	if req.Path != nil {
		menu.Path = *req.Path
	}
	if req.Icon != nil {
		menu.Icon = *req.Icon
	}
	if req.SortOrder != nil {
		menu.SortOrder = *req.SortOrder
	}
	if req.IsVisible != nil {
		menu.IsVisible = *req.IsVisible
	}
	if req.Description != nil {
		menu.Description = *req.Description
	}

	err = s.audit.Audit(ctx, actor, func() (*AuditEntry, error) {
		if err := s.db.WithContext(ctx).Save(menu).Error; err != nil {
			return nil, apperrors.Internal("更新菜单失败", err)
		}
		return &AuditEntry{
			Action:       models.AuditActionUpdate,
			ResourceType: models.ResourceMenu,
			ResourceID:   menu.ID,
			Before:       before,
			After:        menu,
			Description:  fmt.Sprintf("updated menu %s", menu.Name),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return menu, nil
}

// validateMove 校验把 menuID 移到 newParent 下：父菜单存在、不成环、不超过最大层级
func (s *MenuService) validateMove(ctx context.Context, menuID uint, newParent *uint) error {
	if newParent == nil {
		return nil
	}
	if _, err := s.parent(ctx, *newParent); err != nil {
		return err
	}

	cycle, err := s.hierarchy.WouldCreateCycle(ctx, menuID, *newParent)
	if err != nil {
		return err
	}
	if cycle {
		return apperrors.Validation("不能将菜单移动到自身或其子菜单下")
	}

	parentDepth, err := s.hierarchy.Depth(ctx, *newParent)
	if err != nil {
		return err
	}
	height, err := s.hierarchy.SubtreeHeight(ctx, menuID)
	if err != nil {
		return err
	}
	if parentDepth+height > models.MaxMenuDepth {
		return apperrors.Validationf("菜单层级不能超过 %d 级", models.MaxMenuDepth)
	}
	return nil
}

// Delete 删除菜单，存在子菜单时拒绝；菜单下的按钮与授权一并删除
func (s *MenuService) Delete(ctx context.Context, actor Actor, id uint) error {
	return s.audit.Audit(ctx, actor, func() (*AuditEntry, error) {
		menu, err := s.deleteOne(ctx, id)
		if err != nil {
			return nil, err
		}
		return &AuditEntry{
			Action:       models.AuditActionDelete,
			ResourceType: models.ResourceMenu,
			ResourceID:   menu.ID,
			Before:       menu,
			Description:  fmt.Sprintf("deleted menu %s", menu.Name),
		}, nil
	})
}

// BatchDelete 批量删除菜单
func (s *MenuService) BatchDelete(ctx context.Context, actor Actor, ids []uint) (*BatchResult, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return nil, apperrors.Validation("请选择要删除的菜单")
	}

	result := newBatchResult()
	err := s.audit.Audit(ctx, actor, func() (*AuditEntry, error) {
		deleted := make([]models.Menu, 0, len(ids))
		for _, id := range ids {
			menu, err := s.deleteOne(ctx, id)
			if err != nil {
				result.fail(id, err)
				continue
			}
			result.Succeeded = append(result.Succeeded, id)
			deleted = append(deleted, *menu)
		}
		if len(deleted) == 0 {
			return nil, nil
		}
		return &AuditEntry{
			Action:       models.AuditActionBatchDelete,
			ResourceType: models.ResourceMenu,
			ResourceID:   0,
			Before:       deleted,
			After:        result,
			Description:  fmt.Sprintf("batch deleted %d menus, %d failed", len(deleted), len(result.Failed)),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *MenuService) deleteOne(ctx context.Context, id uint) (*models.Menu, error) {
	menu, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	var children int64
	if err := s.db.WithContext(ctx).Model(&models.Menu{}).Where("parent_id = ?", id).Count(&children).Error; err != nil {
		return nil, apperrors.Internal("查询子菜单失败", err)
	}
	if children > 0 {
		return nil, apperrors.Validation("该菜单下存在子菜单，不能删除")
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		buttonIDs := tx.Model(&models.Button{}).Select("id").Where("menu_id = ?", id)
		if err := tx.Where("button_id IN (?)", buttonIDs).Delete(&models.RoleButtonPermission{}).Error; err != nil {
			return err
		}
		if err := tx.Where("menu_id = ?", id).Delete(&models.Button{}).Error; err != nil {
			return err
		}
		if err := tx.Where("menu_id = ?", id).Delete(&models.RoleMenuPermission{}).Error; err != nil {
			return err
		}
		return tx.Delete(menu).Error
	})
	if err != nil {
		return nil, apperrors.Internal("删除菜单失败", err)
	}
	return menu, nil
}

func (s *MenuService) parent(ctx context.Context, id uint) (*models.Menu, error) {
	var parent models.Menu
	if err := s.db.WithContext(ctx).First(&parent, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.Validation("父菜单不存在")
		}
		return nil, apperrors.Internal("查询父菜单失败", err)
	}
	return &parent, nil
}

func (s *MenuService) ensureNameAvailable(ctx context.Context, name string, excludeID uint) error {
	var count int64
	query := s.db.WithContext(ctx).Model(&models.Menu{}).Where("name = ?", name)
	if excludeID != 0 {
		query = query.Where("id <> ?", excludeID)
	}
	if err := query.Count(&count).Error; err != nil {
		return apperrors.Internal("查询菜单失败", err)
	}
	if count > 0 {
		return apperrors.Validationf("菜单名称 %s 已存在", name)
	}
	return nil
}

// normalizeParentID parent_id 为 0 视为根菜单
func normalizeParentID(id *uint) *uint {
	if id == nil || *id == 0 {
		return nil
	}
	v := *id
	return &v
}

func sameParent(a, b *uint) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

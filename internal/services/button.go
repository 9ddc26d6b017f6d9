package services

import (
	"context"
	"fmt"
	"strings"

	"salesadmin/internal/models"
	apperrors "salesadmin/pkg/errors"
	"salesadmin/pkg/pagination"

	"gorm.io/gorm"
)

// CreateButtonRequest 创建按钮请求
type CreateButtonRequest struct {
	Name        string `json:"name" binding:"required,max=100"`
	Identifier  string `json:"identifier" binding:"required,max=150"`
	MenuID      uint   `json:"menu_id" binding:"required"`
	Status      string `json:"status" binding:"omitempty,oneof=active inactive absent"`
	Method      string `json:"method" binding:"omitempty,oneof=GET POST PUT DELETE PATCH"`
	RoutePath   string `json:"route_path" binding:"max=255"`
	Description string `json:"description" binding:"max=255"`
}

// UpdateButtonRequest 更新按钮请求
type UpdateButtonRequest struct {
	Name        *string `json:"name" binding:"omitempty,max=100"`
	Identifier  *string `json:"identifier" binding:"omitempty,max=150"`
	MenuID      *uint   `json:"menu_id"`
	Status      *string `json:"status" binding:"omitempty,oneof=active inactive absent"`
	Method      *string `json:"method" binding:"omitempty,oneof=GET POST PUT DELETE PATCH"`
	RoutePath   *string `json:"route_path" binding:"omitempty,max=255"`
	Description *string `json:"description" binding:"omitempty,max=255"`
}

// ButtonQuery 按钮列表查询条件
type ButtonQuery struct {
	MenuID   *uint
	Status   string
	Source   string
	Keyword  string
	Page     int
	PageSize int
}

// ButtonService 按钮权限管理
type ButtonService struct {
	db    *gorm.DB
	audit *AuditService
}

// NewButtonService 创建按钮服务
func NewButtonService(db *gorm.DB, audit *AuditService) *ButtonService {
	return &ButtonService{db: db, audit: audit}
}

// List 分页获取按钮
func (s *ButtonService) List(ctx context.Context, q ButtonQuery) ([]models.Button, int64, error) {
	if q.Status != "" && !models.IsValidButtonStatus(q.Status) {
		return nil, 0, apperrors.Validationf("无效的按钮状态: %s", q.Status)
	}

	var buttons []models.Button
	var total int64

	query := s.db.WithContext(ctx).Model(&models.Button{})
	if q.MenuID != nil {
		query = query.Where("menu_id = ?", *q.MenuID)
	}
	if q.Status != "" {
		query = query.Where("status = ?", q.Status)
	}
	if q.Source != "" {
		query = query.Where("source = ?", q.Source)
	}
	if q.Keyword != "" {
		like := containsPattern(q.Keyword)
		query = query.Where("name LIKE ? ESCAPE '\\' OR identifier LIKE ? ESCAPE '\\' OR route_path LIKE ? ESCAPE '\\'", like, like, like)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, apperrors.Internal("查询按钮失败", err)
	}
	if err := query.Preload("Menu").Order("menu_id, id").Scopes(pagination.Paginate(q.Page, q.PageSize)).Find(&buttons).Error; err != nil {
		return nil, 0, apperrors.Internal("查询按钮失败", err)
	}
	return buttons, total, nil
}

// GetByID 根据ID获取按钮
func (s *ButtonService) GetByID(ctx context.Context, id uint) (*models.Button, error) {
	var button models.Button
	if err := s.db.WithContext(ctx).Preload("Menu").First(&button, id).Error; err != nil {
		return nil, notFoundOr(err, "按钮不存在")
	}
	return &button, nil
}

// Create 创建按钮
func (s *ButtonService) Create(ctx context.Context, actor Actor, req CreateButtonRequest) (*models.Button, error) {
	identifier := strings.TrimSpace(req.Identifier)
	if identifier == "" {
		return nil, apperrors.Validation("按钮标识不能为空")
	}
	status := req.Status
	if status == "" {
		status = models.ButtonStatusActive
	}
	if !models.IsValidButtonStatus(status) {
		return nil, apperrors.Validationf("无效的按钮状态: %s", status)
	}
	if err := s.ensureMenu(ctx, req.MenuID); err != nil {
		return nil, err
	}
	if err := s.ensureIdentifierAvailable(ctx, identifier, req.MenuID, 0); err != nil {
		return nil, err
	}

	button := &models.Button{
		Name:        req.Name,
		Identifier:  identifier,
		MenuID:      req.MenuID,
		Status:      status,
		Source:      models.ButtonSourceManual,
		Method:      strings.ToUpper(req.Method),
		RoutePath:   req.RoutePath,
		Description: req.Description,
	}

	err := s.audit.Audit(ctx, actor, func() (*AuditEntry, error) {
		if err := s.db.WithContext(ctx).Create(button).Error; err != nil {
			return nil, apperrors.Internal("创建按钮失败", err)
		}
		return &AuditEntry{
			Action:       models.AuditActionCreate,
			ResourceType: models.ResourceButton,
			ResourceID:   button.ID,
			After:        button,
			Description:  fmt.Sprintf("created button %s", button.Identifier),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return button, nil
}

// Update 更新按钮
func (s *ButtonService) Update(ctx context.Context, actor Actor, id uint, req UpdateButtonRequest) (*models.Button, error) {
	button, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	button.Menu = nil
	before := *button

	identifier := button.Identifier
	menuID := button.MenuID
	if req.Identifier != nil {
		identifier = strings.TrimSpace(*req.Identifier)
		if identifier == "" {
			return nil, apperrors.Validation("按钮标识不能为空")
		}
	}
	if req.MenuID != nil && *req.MenuID != button.MenuID {
		if err := s.ensureMenu(ctx, *req.MenuID); err != nil {
			return nil, err
		}
		menuID = *req.MenuID
	}
	if identifier != button.Identifier || menuID != button.MenuID {
		if err := s.ensureIdentifierAvailable(ctx, identifier, menuID, id); err != nil {
			return nil, err
		}
	}
	button.Identifier = identifier
	button.MenuID = menuID

	if req.Status != nil {
		if !models.IsValidButtonStatus(*req.Status) {
			return nil, apperrors.Validationf("无效的按钮状态: %s", *req.Status)
		}
		button.Status = *req.Status
	}
	if req.Name != nil {
		button.Name = *req.Name
	}
	if req.Method != nil {
		button.Method = strings.ToUpper(*req.Method)
	}
	if req.RoutePath != nil {
		button.RoutePath = *req.RoutePath
	}
	if req.Description != nil {
		button.Description = *req.Description
	}

	err = s.audit.Audit(ctx, actor, func() (*AuditEntry, error) {
		if err := s.db.WithContext(ctx).Omit("Menu").Save(button).Error; err != nil {
			return nil, apperrors.Internal("更新按钮失败", err)
		}
		return &AuditEntry{
			Action:       models.AuditActionUpdate,
			ResourceType: models.ResourceButton,
			ResourceID:   button.ID,
			Before:       before,
			After:        button,
			Description:  fmt.Sprintf("updated button %s", button.Identifier),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return button, nil
}

// Delete 删除按钮及其授权
func (s *ButtonService) Delete(ctx context.Context, actor Actor, id uint) error {
	return s.audit.Audit(ctx, actor, func() (*AuditEntry, error) {
		button, err := s.deleteOne(ctx, id)
		if err != nil {
			return nil, err
		}
		return &AuditEntry{
			Action:       models.AuditActionDelete,
			ResourceType: models.ResourceButton,
			ResourceID:   button.ID,
			Before:       button,
			Description:  fmt.Sprintf("deleted button %s", button.Identifier),
		}, nil
	})
}

// BatchDelete 批量删除按钮
func (s *ButtonService) BatchDelete(ctx context.Context, actor Actor, ids []uint) (*BatchResult, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return nil, apperrors.Validation("请选择要删除的按钮")
	}

	result := newBatchResult()
	err := s.audit.Audit(ctx, actor, func() (*AuditEntry, error) {
		deleted := make([]models.Button, 0, len(ids))
		for _, id := range ids {
			button, err := s.deleteOne(ctx, id)
			if err != nil {
				result.fail(id, err)
				continue
			}
			result.Succeeded = append(result.Succeeded, id)
			deleted = append(deleted, *button)
		}
		if len(deleted) == 0 {
			return nil, nil
		}
		return &AuditEntry{
			Action:       models.AuditActionBatchDelete,
			ResourceType: models.ResourceButton,
			ResourceID:   0,
			Before:       deleted,
			After:        result,
			Description:  fmt.Sprintf("batch deleted %d buttons, %d failed", len(deleted), len(result.Failed)),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *ButtonService) deleteOne(ctx context.Context, id uint) (*models.Button, error) {
	var button models.Button
	if err := s.db.WithContext(ctx).First(&button, id).Error; err != nil {
		return nil, notFoundOr(err, "按钮不存在")
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("button_id = ?", id).Delete(&models.RoleButtonPermission{}).Error; err != nil {
			return err
		}
		return tx.Delete(&button).Error
	})
	if err != nil {
		return nil, apperrors.Internal("删除按钮失败", err)
	}
	return &button, nil
}

func (s *ButtonService) ensureMenu(ctx context.Context, menuID uint) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Menu{}).Where("id = ?", menuID).Count(&count).Error; err != nil {
		return apperrors.Internal("查询菜单失败", err)
	}
	if count == 0 {
		return apperrors.Validation("所属菜单不存在")
	}
	return nil
}

// ensureIdentifierAvailable 同一菜单下按钮标识唯一
func (s *ButtonService) ensureIdentifierAvailable(ctx context.Context, identifier string, menuID, excludeID uint) error {
	var count int64
	query := s.db.WithContext(ctx).Model(&models.Button{}).
		Where("identifier = ? AND menu_id = ?", identifier, menuID)
	if excludeID != 0 {
		query = query.Where("id <> ?", excludeID)
	}
	if err := query.Count(&count).Error; err != nil {
		return apperrors.Internal("查询按钮失败", err)
	}
	if count > 0 {
		return apperrors.Validationf("菜单下已存在标识为 %s 的按钮", identifier)
	}
	return nil
}

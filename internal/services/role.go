package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"salesadmin/internal/models"
	apperrors "salesadmin/pkg/errors"
	"salesadmin/pkg/pagination"

	"gorm.io/gorm"
)

var roleNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{1,49}$`)

// CreateRoleRequest 创建角色请求
type CreateRoleRequest struct {
	Name        string `json:"name" binding:"required,min=2,max=50"`
	DisplayName string `json:"display_name" binding:"required,max=100"`
	Description string `json:"description" binding:"max=255"`
	IsActive    *bool  `json:"is_active"`
}

// UpdateRoleRequest 更新角色请求，字段为空表示不修改
type UpdateRoleRequest struct {
	Name        *string `json:"name" binding:"omitempty,min=2,max=50"`
	DisplayName *string `json:"display_name" binding:"omitempty,max=100"`
	Description *string `json:"description" binding:"omitempty,max=255"`
	IsActive    *bool   `json:"is_active"`
}

// RoleQuery 角色列表查询条件
type RoleQuery struct {
	Keyword  string
	IsActive *bool
	Page     int
	PageSize int
}

// RoleService 角色管理
type RoleService struct {
	db    *gorm.DB
	audit *AuditService
}

// NewRoleService 创建角色服务
func NewRoleService(db *gorm.DB, audit *AuditService) *RoleService {
	return &RoleService{db: db, audit: audit}
}

// ========== 基础CRUD方法 ==========

// List 分页获取角色
func (s *RoleService) List(ctx context.Context, q RoleQuery) ([]models.Role, int64, error) {
	var roles []models.Role
	var total int64

	query := s.db.WithContext(ctx).Model(&models.Role{})
	if q.Keyword != "" {
		like := containsPattern(q.Keyword)
		query = query.Where("name LIKE ? ESCAPE '\\' OR display_name LIKE ? ESCAPE '\\'", like, like)
	}
	if q.IsActive != nil {
		query = query.Where("is_active = ?", *q.IsActive)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, apperrors.Internal("查询角色失败", err)
	}

	if err := query.Order("id").Scopes(pagination.Paginate(q.Page, q.PageSize)).Find(&roles).Error; err != nil {
		return nil, 0, apperrors.Internal("查询角色失败", err)
	}
	return roles, total, nil
}

// GetByID 根据ID获取角色
func (s *RoleService) GetByID(ctx context.Context, id uint) (*models.Role, error) {
	var role models.Role
	if err := s.db.WithContext(ctx).First(&role, id).Error; err != nil {
		return nil, notFoundOr(err, "角色不存在")
	}
	return &role, nil
}

// Create 创建角色
func (s *RoleService) Create(ctx context.Context, actor Actor, req CreateRoleRequest) (*models.Role, error) {
	name := strings.TrimSpace(req.Name)
	if !roleNamePattern.MatchString(name) {
		return nil, apperrors.Validation("角色标识只能包含小写字母、数字和下划线，且以字母开头")
	}
	if err := s.ensureNameAvailable(ctx, name, 0); err != nil {
		return nil, err
	}

	role := &models.Role{
		Name:        name,
		DisplayName: req.DisplayName,
		Description: req.Description,
		IsActive:    req.IsActive == nil || *req.IsActive,
	}

	err := s.audit.Audit(ctx, actor, func() (*AuditEntry, error) {
		if err := s.db.WithContext(ctx).Create(role).Error; err != nil {
			return nil, apperrors.Internal("创建角色失败", err)
		}
		return &AuditEntry{
			Action:       models.AuditActionCreate,
			ResourceType: models.ResourceRole,
			ResourceID:   role.ID,
			After:        role,
			Description:  fmt.Sprintf("created role %s", role.Name),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return role, nil
}

// Update 更新角色，系统角色不能改名
func (s *RoleService) Update(ctx context.Context, actor Actor, id uint, req UpdateRoleRequest) (*models.Role, error) {
	role, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	before := *role

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name != role.Name {
			if role.IsSystem() {
				return nil, apperrors.Validation("系统角色不允许修改标识")
			}
			if !roleNamePattern.MatchString(name) {
				return nil, apperrors.Validation("角色标识只能包含小写字母、数字和下划线，且以字母开头")
			}
			if err := s.ensureNameAvailable(ctx, name, id); err != nil {
				return nil, err
			}
			if err := s.ensureUnreferenced(ctx, role.Name, "角色正在被用户使用，不能修改标识"); err != nil {
				return nil, err
			}
			role.Name = name
		}
	}
	if req.DisplayName != nil {
		role.DisplayName = *req.DisplayName
	}
	if req.Description != nil {
		role.Description = *req.Description
	}
	if req.IsActive != nil {
		if !*req.IsActive && role.Name == models.RoleSuperAdmin {
			return nil, apperrors.Validation("超级管理员角色不能禁用")
		}
		role.IsActive = *req.IsActive
	}

	err = s.audit.Audit(ctx, actor, func() (*AuditEntry, error) {
		if err := s.db.WithContext(ctx).Save(role).Error; err != nil {
			return nil, apperrors.Internal("更新角色失败", err)
		}
		return &AuditEntry{
			Action:       models.AuditActionUpdate,
			ResourceType: models.ResourceRole,
			ResourceID:   role.ID,
			Before:       before,
			After:        role,
			Description:  fmt.Sprintf("updated role %s", role.Name),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return role, nil
}

// Delete 删除角色及其授权
func (s *RoleService) Delete(ctx context.Context, actor Actor, id uint) error {
	return s.audit.Audit(ctx, actor, func() (*AuditEntry, error) {
		role, err := s.deleteOne(ctx, id)
		if err != nil {
			return nil, err
		}
		return &AuditEntry{
			Action:       models.AuditActionDelete,
			ResourceType: models.ResourceRole,
			ResourceID:   role.ID,
			Before:       role,
			Description:  fmt.Sprintf("deleted role %s", role.Name),
		}, nil
	})
}

// BatchDelete 批量删除角色，逐个处理并汇总失败原因
func (s *RoleService) BatchDelete(ctx context.Context, actor Actor, ids []uint) (*BatchResult, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return nil, apperrors.Validation("请选择要删除的角色")
	}

	result := newBatchResult()
	err := s.audit.Audit(ctx, actor, func() (*AuditEntry, error) {
		deleted := make([]models.Role, 0, len(ids))
		for _, id := range ids {
			role, err := s.deleteOne(ctx, id)
			if err != nil {
				result.fail(id, err)
				continue
			}
			result.Succeeded = append(result.Succeeded, id)
			deleted = append(deleted, *role)
		}
		if len(deleted) == 0 {
			return nil, nil
		}
		return &AuditEntry{
			Action:       models.AuditActionBatchDelete,
			ResourceType: models.ResourceRole,
			ResourceID:   0,
			Before:       deleted,
			After:        result,
			Description:  fmt.Sprintf("batch deleted %d roles, %d failed", len(deleted), len(result.Failed)),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *RoleService) deleteOne(ctx context.Context, id uint) (*models.Role, error) {
	role, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if role.IsSystem() {
		return nil, apperrors.Validation("系统角色不允许删除")
	}
	if err := s.ensureUnreferenced(ctx, role.Name, "角色正在被用户使用，不能删除"); err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("role_id = ?", role.ID).Delete(&models.RoleMenuPermission{}).Error; err != nil {
			return err
		}
		if err := tx.Where("role_id = ?", role.ID).Delete(&models.RoleButtonPermission{}).Error; err != nil {
			return err
		}
		return tx.Delete(role).Error
	})
	if err != nil {
		return nil, apperrors.Internal("删除角色失败", err)
	}
	return role, nil
}

func (s *RoleService) ensureNameAvailable(ctx context.Context, name string, excludeID uint) error {
	var count int64
	query := s.db.WithContext(ctx).Model(&models.Role{}).Where("name = ?", name)
	if excludeID != 0 {
		query = query.Where("id <> ?", excludeID)
	}
	if err := query.Count(&count).Error; err != nil {
		return apperrors.Internal("查询角色失败", err)
	}
	if count > 0 {
		return apperrors.Validationf("角色标识 %s 已存在", name)
	}
	return nil
}

// ensureUnreferenced 角色被用户引用时返回 Conflict
func (s *RoleService) ensureUnreferenced(ctx context.Context, name, message string) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("role = ?", name).Count(&count).Error; err != nil {
		return apperrors.Internal("查询角色引用失败", err)
	}
	if count > 0 {
		return apperrors.Conflict(message)
	}
	return nil
}

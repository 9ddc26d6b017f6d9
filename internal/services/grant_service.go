package services

import (
	"context"
	"fmt"

	"salesadmin/internal/metrics"
	"salesadmin/internal/models"
	apperrors "salesadmin/pkg/errors"

	"gorm.io/gorm"
)

// MenuGrant 角色对单个菜单的授权
type MenuGrant struct {
	MenuID    uint `json:"menu_id" binding:"required"`
	CanView   bool `json:"can_view"`
	CanCreate bool `json:"can_create"`
	CanUpdate bool `json:"can_update"`
	CanDelete bool `json:"can_delete"`
}

// ButtonGrant 角色对单个按钮的授权
type ButtonGrant struct {
	ButtonID   uint `json:"button_id" binding:"required"`
	CanOperate bool `json:"can_operate"`
}

const (
	grantKindMenu   = "menu"
	grantKindButton = "button"
)

// GrantService 角色授权的整体替换，删除后重建，保证结果与输入完全一致
type GrantService struct {
	db      *gorm.DB
	audit   *AuditService
	metrics *metrics.Metrics
}

// NewGrantService 创建授权服务
func NewGrantService(db *gorm.DB, audit *AuditService, m *metrics.Metrics) *GrantService {
	return &GrantService{db: db, audit: audit, metrics: m}
}

// GetMenuGrants 获取角色的菜单授权
func (s *GrantService) GetMenuGrants(ctx context.Context, roleID uint) ([]MenuGrant, error) {
	if err := s.ensureRole(s.db.WithContext(ctx), roleID); err != nil {
		return nil, err
	}
	return s.menuGrants(ctx, roleID)
}

// GetButtonGrants 获取角色的按钮授权
func (s *GrantService) GetButtonGrants(ctx context.Context, roleID uint) ([]ButtonGrant, error) {
	if err := s.ensureRole(s.db.WithContext(ctx), roleID); err != nil {
		return nil, err
	}
	return s.buttonGrants(ctx, roleID)
}

// ReplaceMenuGrants 整体替换角色的菜单授权
func (s *GrantService) ReplaceMenuGrants(ctx context.Context, actor Actor, roleID uint, grants []MenuGrant) error {
	if err := s.validateMenuGrants(ctx, grants); err != nil {
		return err
	}
	if err := s.ensureRole(s.db.WithContext(ctx), roleID); err != nil {
		return err
	}

	return s.audit.Audit(ctx, actor, func() (*AuditEntry, error) {
		before, err := s.menuGrants(ctx, roleID)
		if err != nil {
			return nil, err
		}

		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := s.lockRole(tx, roleID); err != nil {
				return err
			}
			if err := tx.Where("role_id = ?", roleID).Delete(&models.RoleMenuPermission{}).Error; err != nil {
				return err
			}
			if len(grants) == 0 {
				return nil
			}
			rows := make([]models.RoleMenuPermission, 0, len(grants))
			for _, g := range grants {
				rows = append(rows, models.RoleMenuPermission{
					RoleID:    roleID,
					MenuID:    g.MenuID,
					CanView:   g.CanView,
					CanCreate: g.CanCreate,
					CanUpdate: g.CanUpdate,
					CanDelete: g.CanDelete,
				})
			}
			return tx.Create(&rows).Error
		})
		s.metrics.RecordGrantReplacement(grantKindMenu, err)
		if err != nil {
			if apperrors.IsKind(err, apperrors.ErrNotFound) {
				return nil, err
			}
			return nil, apperrors.Internal("更新菜单权限失败", err)
		}

		return &AuditEntry{
			Action:       models.AuditActionUpdate,
			ResourceType: models.ResourceRoleMenuPermission,
			ResourceID:   roleID,
			Before:       before,
			After:        grants,
			Description:  fmt.Sprintf("replaced menu permissions of role %d (%d grants)", roleID, len(grants)),
		}, nil
	})
}

// ReplaceButtonGrants 整体替换角色的按钮授权
func (s *GrantService) ReplaceButtonGrants(ctx context.Context, actor Actor, roleID uint, grants []ButtonGrant) error {
	if err := s.validateButtonGrants(ctx, grants); err != nil {
		return err
	}
	if err := s.ensureRole(s.db.WithContext(ctx), roleID); err != nil {
		return err
	}

	return s.audit.Audit(ctx, actor, func() (*AuditEntry, error) {
		before, err := s.buttonGrants(ctx, roleID)
		if err != nil {
			return nil, err
		}

		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := s.lockRole(tx, roleID); err != nil {
				return err
			}
			if err := tx.Where("role_id = ?", roleID).Delete(&models.RoleButtonPermission{}).Error; err != nil {
				return err
			}
			if len(grants) == 0 {
				return nil
			}
			rows := make([]models.RoleButtonPermission, 0, len(grants))
			for _, g := range grants {
				rows = append(rows, models.RoleButtonPermission{
					RoleID:     roleID,
					ButtonID:   g.ButtonID,
					CanOperate: g.CanOperate,
				})
			}
			return tx.Create(&rows).Error
		})
		s.metrics.RecordGrantReplacement(grantKindButton, err)
		if err != nil {
			if apperrors.IsKind(err, apperrors.ErrNotFound) {
				return nil, err
			}
			return nil, apperrors.Internal("更新按钮权限失败", err)
		}

		return &AuditEntry{
			Action:       models.AuditActionUpdate,
			ResourceType: models.ResourceRoleButtonPermission,
			ResourceID:   roleID,
			Before:       before,
			After:        grants,
			Description:  fmt.Sprintf("replaced button permissions of role %d (%d grants)", roleID, len(grants)),
		}, nil
	})
}

func (s *GrantService) menuGrants(ctx context.Context, roleID uint) ([]MenuGrant, error) {
	var rows []models.RoleMenuPermission
	if err := s.db.WithContext(ctx).Where("role_id = ?", roleID).Order("menu_id").Find(&rows).Error; err != nil {
		return nil, apperrors.Internal("查询菜单权限失败", err)
	}
	grants := make([]MenuGrant, 0, len(rows))
	for _, row := range rows {
		grants = append(grants, MenuGrant{
			MenuID:    row.MenuID,
			CanView:   row.CanView,
			CanCreate: row.CanCreate,
			CanUpdate: row.CanUpdate,
			CanDelete: row.CanDelete,
		})
	}
	return grants, nil
}

func (s *GrantService) buttonGrants(ctx context.Context, roleID uint) ([]ButtonGrant, error) {
	var rows []models.RoleButtonPermission
	if err := s.db.WithContext(ctx).Where("role_id = ?", roleID).Order("button_id").Find(&rows).Error; err != nil {
		return nil, apperrors.Internal("查询按钮权限失败", err)
	}
	grants := make([]ButtonGrant, 0, len(rows))
	for _, row := range rows {
		grants = append(grants, ButtonGrant{ButtonID: row.ButtonID, CanOperate: row.CanOperate})
	}
	return grants, nil
}

func (s *GrantService) ensureRole(db *gorm.DB, roleID uint) error {
	var count int64
	if err := db.Model(&models.Role{}).Where("id = ?", roleID).Count(&count).Error; err != nil {
		return apperrors.Internal("查询角色失败", err)
	}
	if count == 0 {
		return apperrors.NotFound("角色不存在")
	}
	return nil
}

// lockRole 锁定角色行，串行化同一角色的并发替换
func (s *GrantService) lockRole(tx *gorm.DB, roleID uint) error {
	var role models.Role
	if err := lockForUpdate(tx).Select("id").First(&role, roleID).Error; err != nil {
		return notFoundOr(err, "角色不存在")
	}
	return nil
}

// validateMenuGrants 校验菜单存在且不重复，在任何变更之前完成
func (s *GrantService) validateMenuGrants(ctx context.Context, grants []MenuGrant) error {
	ids := make([]uint, 0, len(grants))
	seen := make(map[uint]bool, len(grants))
	for _, g := range grants {
		if g.MenuID == 0 {
			return apperrors.Validation("menu_id 不能为空")
		}
		if seen[g.MenuID] {
			return apperrors.Validationf("菜单 %d 重复授权", g.MenuID)
		}
		seen[g.MenuID] = true
		ids = append(ids, g.MenuID)
	}
	return s.ensureAllExist(ctx, &models.Menu{}, ids, "菜单")
}

func (s *GrantService) validateButtonGrants(ctx context.Context, grants []ButtonGrant) error {
	ids := make([]uint, 0, len(grants))
	seen := make(map[uint]bool, len(grants))
	for _, g := range grants {
		if g.ButtonID == 0 {
			return apperrors.Validation("button_id 不能为空")
		}
		if seen[g.ButtonID] {
			return apperrors.Validationf("按钮 %d 重复授权", g.ButtonID)
		}
		seen[g.ButtonID] = true
		ids = append(ids, g.ButtonID)
	}
	return s.ensureAllExist(ctx, &models.Button{}, ids, "按钮")
}

func (s *GrantService) ensureAllExist(ctx context.Context, model interface{}, ids []uint, label string) error {
	if len(ids) == 0 {
		return nil
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(model).Where("id IN ?", ids).Count(&count).Error; err != nil {
		return apperrors.Internal(fmt.Sprintf("查询%s失败", label), err)
	}
	if int(count) != len(ids) {
		return apperrors.Validationf("部分%s不存在", label)
	}
	return nil
}

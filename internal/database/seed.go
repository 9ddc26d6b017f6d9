package database

import (
	"errors"
	"fmt"

	"salesadmin/internal/models"
	"salesadmin/pkg/config"
	"salesadmin/pkg/logger"

	"gorm.io/gorm"
)

// Seed 初始化种子数据，可重复执行
func Seed(db *gorm.DB, admin config.AdminConfig) error {
	appLogger := logger.GetLogger()
	appLogger.Info("Starting seed data initialization...")

	// 1. 系统角色
	if err := createSystemRoles(db); err != nil {
		return fmt.Errorf("创建系统角色失败: %w", err)
	}

	// 2. 管理菜单
	if err := createDefaultMenus(db); err != nil {
		return fmt.Errorf("创建默认菜单失败: %w", err)
	}

	// 3. 超级管理员
	if err := createDefaultAdmin(db, admin); err != nil {
		return fmt.Errorf("创建默认管理员失败: %w", err)
	}

	appLogger.Info("Seed data initialization completed successfully")
	return nil
}

// createSystemRoles 创建系统角色
func createSystemRoles(db *gorm.DB) error {
	defaultRoles := []models.Role{
		{Name: models.RoleSuperAdmin, DisplayName: "超级管理员", Description: "拥有全部权限，不受授权配置限制"},
		{Name: models.RoleAdmin, DisplayName: "系统管理员", Description: "管理角色、菜单、按钮与用户"},
		{Name: models.RoleSalesManager, DisplayName: "销售经理", Description: "管理案场销售业务"},
		{Name: models.RoleSalesPerson, DisplayName: "置业顾问", Description: "日常销售操作"},
	}

	for _, role := range defaultRoles {
		var count int64
		db.Model(&models.Role{}).Where("name = ?", role.Name).Count(&count)
		if count > 0 {
			continue
		}
		role.IsActive = true
		if err := db.Create(&role).Error; err != nil {
			return fmt.Errorf("创建角色 %s 失败: %w", role.Name, err)
		}
	}

	logger.GetLogger().Info("系统角色初始化完成")
	return nil
}

// createDefaultMenus 创建系统管理菜单
func createDefaultMenus(db *gorm.DB) error {
	root, err := ensureMenu(db, models.Menu{
		Name:        "system",
		DisplayName: "系统管理",
		Path:        "/admin",
		Icon:        "setting",
		SortOrder:   100,
	})
	if err != nil {
		return err
	}

	children := []models.Menu{
		{Name: "system_roles", DisplayName: "角色管理", Path: "/admin/roles", Icon: "team", SortOrder: 1},
		{Name: "system_menus", DisplayName: "菜单管理", Path: "/admin/menus", Icon: "menu", SortOrder: 2},
		{Name: "system_buttons", DisplayName: "按钮权限", Path: "/admin/buttons", Icon: "control", SortOrder: 3},
		{Name: "system_users", DisplayName: "用户管理", Path: "/admin/users", Icon: "user", SortOrder: 4},
		{Name: "system_audit_logs", DisplayName: "审计日志", Path: "/admin/audit-logs", Icon: "audit", SortOrder: 5},
	}
	for _, child := range children {
		child.ParentID = &root.ID
		if _, err := ensureMenu(db, child); err != nil {
			return err
		}
	}

	logger.GetLogger().Info("默认菜单初始化完成")
	return nil
}

func ensureMenu(db *gorm.DB, menu models.Menu) (*models.Menu, error) {
	var existing models.Menu
	err := db.Where("name = ?", menu.Name).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	menu.IsVisible = true
	if err := db.Create(&menu).Error; err != nil {
		return nil, fmt.Errorf("创建菜单 %s 失败: %w", menu.Name, err)
	}
	return &menu, nil
}

// createDefaultAdmin 创建默认超级管理员
func createDefaultAdmin(db *gorm.DB, admin config.AdminConfig) error {
	var count int64
	db.Model(&models.User{}).Where("username = ?", admin.Username).Count(&count)
	if count > 0 {
		logger.GetLogger().Info("管理员用户已存在，跳过创建")
		return nil
	}

	user := &models.User{
		Username: admin.Username,
		Email:    admin.Email,
		Role:     models.RoleSuperAdmin,
		IsActive: true,
	}
	if err := user.SetPassword(admin.Password); err != nil {
		return fmt.Errorf("设置密码失败: %w", err)
	}

	if err := db.Create(user).Error; err != nil {
		return err
	}

	logger.GetLogger().Info("超级管理员创建成功")
	return nil
}

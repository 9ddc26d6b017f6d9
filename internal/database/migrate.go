package database

import (
	"salesadmin/internal/models"
	"salesadmin/pkg/logger"

	"gorm.io/gorm"
)

// Migrate 执行数据库迁移
func Migrate(db *gorm.DB) error {
	appLogger := logger.GetLogger()
	appLogger.Info("Starting database migration...")

	err := db.AutoMigrate(
		&models.Role{},
		&models.Menu{},
		&models.Button{},
		&models.User{},
		&models.RoleMenuPermission{},
		&models.RoleButtonPermission{},
		&models.PermissionAuditLog{},
	)
	if err != nil {
		appLogger.Errorf("Database migration failed: %v", err)
		return err
	}

	appLogger.Info("Database migration completed successfully")
	return nil
}

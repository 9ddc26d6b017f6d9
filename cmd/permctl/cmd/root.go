package cmd

import (
	"fmt"
	"os"

	"salesadmin/internal/database"
	"salesadmin/pkg/config"
	"salesadmin/pkg/logger"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var rootCmd = &cobra.Command{
	Use:   "permctl",
	Short: "Sales admin permission maintenance CLI",
	Long: `Maintenance commands for the sales admin RBAC tables.

Configuration is read from the same environment variables (and .env file)
as the server: DB_DRIVER, DB_HOST, DB_NAME, DB_SQLITE_PATH, REDIS_ENABLED ...`,
	SilenceUsage: true,
}

// Execute 执行根命令
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// bootstrap 加载配置、日志与数据库连接
func bootstrap() (*config.Config, *gorm.DB, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if err := logger.Initialize(cfg); err != nil {
		return nil, nil, fmt.Errorf("initialize logger: %w", err)
	}
	if err := database.Initialize(cfg); err != nil {
		return nil, nil, fmt.Errorf("initialize database: %w", err)
	}
	return cfg, database.GetDB(), nil
}

func shutdown() {
	if err := database.Close(); err != nil {
		logger.GetLogger().Errorf("Failed to close database: %v", err)
	}
	if err := database.CloseRedis(); err != nil {
		logger.GetLogger().Errorf("Failed to close Redis: %v", err)
	}
}

package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"salesadmin/internal/database"
	"salesadmin/internal/metrics"
	"salesadmin/internal/router"
	"salesadmin/internal/services"
	"salesadmin/pkg/config"
	"salesadmin/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	// 加载配置
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化日志
	if err := logger.Initialize(cfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	appLogger := logger.GetLogger()
	appLogger.Info("Starting Sales Admin...")

	// 初始化数据库
	if err := database.Initialize(cfg); err != nil {
		appLogger.Fatalf("Failed to initialize database: %v", err)
	}
	defer func() {
		if err := database.Close(); err != nil {
			appLogger.Error("Failed to close database:", err)
		}
		if err := database.CloseRedis(); err != nil {
			appLogger.Error("Failed to close Redis:", err)
		}
	}()

	db := database.GetDB()
	if err := database.Migrate(db); err != nil {
		appLogger.Fatalf("Failed to migrate database: %v", err)
	}
	if err := database.Seed(db, cfg.Admin); err != nil {
		appLogger.Fatalf("Failed to initialize seed data: %v", err)
	}

	// 设置Gin模式
	gin.SetMode(cfg.Server.Mode)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	// 未启用Redis时同步不加锁
	var locker services.Locker
	if redisLocker := database.GetRedisLocker(); redisLocker != nil {
		if err := redisLocker.Ping(context.Background()); err != nil {
			appLogger.Warnf("Redis unavailable, permission sync will run without lock: %v", err)
		}
		locker = redisLocker
	}

	r, err := router.SetupRouter(router.OptionsFromConfig(cfg, db, m, locker))
	if err != nil {
		appLogger.Fatalf("Failed to setup router: %v", err)
	}

	auditService := services.NewAuditService(db, m)

	// 启动时按路由表同步按钮权限
	if cfg.Permission.SyncOnStartup {
		identifiers := services.NewIdentifierGenerator(cfg.Authz.APIRootPrefix)
		syncService := services.NewPermissionSyncService(db, identifiers, locker, cfg.Permission.SyncLockTTL, m)
		report, err := syncService.ScanAndSync(context.Background(), router.RouteSurface(r))
		switch {
		case err != nil:
			appLogger.Errorf("Permission sync failed: %v", err)
		case report.Skipped:
			appLogger.Info("Permission sync skipped, another instance holds the lock")
		default:
			appLogger.Infof("Permission sync finished: created=%d updated=%d absent=%d failed=%d collisions=%d",
				report.Created, report.Updated, report.MarkedAbsent, len(report.Errors), len(report.Collisions))
		}
	}

	// 审计日志定时清理
	if cfg.Audit.CleanupCron != "" {
		retention := services.NewAuditRetentionScheduler(auditService, cfg.Audit.CleanupCron, cfg.Audit.RetentionDays)
		if err := retention.Start(); err != nil {
			appLogger.Errorf("Failed to start audit retention scheduler: %v", err)
		} else {
			defer retention.Stop()
		}
	}

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatalf("Failed to start server: %v", err)
		}
	}()

	appLogger.Infof("Server started on port %s", cfg.Server.Port)

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown:", err)
	}
	appLogger.Info("Server exited")
}

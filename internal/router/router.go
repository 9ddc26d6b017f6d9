package router

import (
	"fmt"
	"time"

	"salesadmin/internal/handlers"
	"salesadmin/internal/metrics"
	"salesadmin/internal/middleware"
	"salesadmin/internal/models"
	"salesadmin/internal/services"
	"salesadmin/pkg/config"
	"salesadmin/pkg/jwt"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Options 路由依赖，全部由调用方显式传入
type Options struct {
	DB           *gorm.DB
	Metrics      *metrics.Metrics
	JWT          *jwt.JWTManager
	CORS         config.CORSConfig
	APIRoot      string
	DefaultAllow bool
	Locker       services.Locker
	SyncLockTTL  time.Duration
}

// OptionsFromConfig 由配置构造路由依赖
func OptionsFromConfig(cfg *config.Config, db *gorm.DB, m *metrics.Metrics, locker services.Locker) Options {
	return Options{
		DB:           db,
		Metrics:      m,
		JWT:          jwt.GetJWTManager(),
		CORS:         cfg.CORS,
		APIRoot:      cfg.Authz.APIRootPrefix,
		DefaultAllow: cfg.Authz.DefaultAllow,
		Locker:       locker,
		SyncLockTTL:  cfg.Permission.SyncLockTTL,
	}
}

// RouteRules 静态路由-角色表：管理接口默认只对 admin 开放，菜单树对所有业务角色可读。
// 超级管理员不受此表限制。
func RouteRules(apiRoot string) []services.RouteRule {
	return []services.RouteRule{
		{Path: apiRoot + "/admin/*", Methods: "GET", Roles: []string{models.RoleAdmin}},
		{Path: apiRoot + "/admin/*", Methods: "POST|PUT|DELETE", Roles: []string{models.RoleAdmin}},
		{
			Path:    apiRoot + "/admin/menus/tree",
			Methods: "GET",
			Roles:   []string{models.RoleAdmin, models.RoleSalesManager, models.RoleSalesPerson},
		},
	}
}

// RouteSurface 当前引擎注册的全部路由
func RouteSurface(engine *gin.Engine) []services.RouteInfo {
	routes := engine.Routes()
	result := make([]services.RouteInfo, 0, len(routes))
	for _, route := range routes {
		result = append(result, services.RouteInfo{Method: route.Method, Path: route.Path})
	}
	return result
}

// SetupRouter 设置路由
func SetupRouter(opts Options) (*gin.Engine, error) {
	if opts.APIRoot == "" {
		opts.APIRoot = services.DefaultAPIRootPrefix
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNop()
	}

	handlers.RegisterValidators()

	router := gin.New()

	// 中间件
	router.Use(middleware.RequestID())
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.RequestLogger(opts.Metrics))
	router.Use(middleware.SetupCORS(opts.CORS))

	if err := registerRoutes(router, opts); err != nil {
		return nil, err
	}
	return router, nil
}

// 注册所有路由
func registerRoutes(router *gin.Engine, opts Options) error {
	db := opts.DB
	identifiers := services.NewIdentifierGenerator(opts.APIRoot)

	authorizer, err := services.NewAuthorizer(db, RouteRules(identifiers.APIRoot()), opts.DefaultAllow, opts.Metrics)
	if err != nil {
		return fmt.Errorf("build authorizer: %w", err)
	}

	auditService := services.NewAuditService(db, opts.Metrics)
	userService := services.NewUserService(db, auditService)
	permissionService := services.NewPermissionService(db)
	syncService := services.NewPermissionSyncService(db, identifiers, opts.Locker, opts.SyncLockTTL, opts.Metrics)

	auth := middleware.NewAuthMiddleware(authorizer, opts.JWT, identifiers)
	superAdmin := auth.Authorize(models.RoleSuperAdmin)

	authHandler := handlers.NewAuthHandler(userService, permissionService, opts.JWT)
	roleHandler := handlers.NewRoleHandler(
		services.NewRoleService(db, auditService),
		services.NewGrantService(db, auditService, opts.Metrics),
	)
	menuHandler := handlers.NewMenuHandler(services.NewMenuService(db, auditService))
	buttonHandler := handlers.NewButtonHandler(services.NewButtonService(db, auditService))
	userHandler := handlers.NewUserHandler(userService, permissionService, authorizer)
	auditHandler := handlers.NewAuditLogHandler(auditService)
	systemHandler := handlers.NewSystemHandler(db, syncService, identifiers, func() []services.RouteInfo {
		return RouteSurface(router)
	})

	router.GET("/health", systemHandler.Health)
	router.GET("/metrics", gin.WrapH(opts.Metrics.Handler()))

	api := router.Group(identifiers.APIRoot())
	{
		authGroup := api.Group("/auth")
		{
			authGroup.POST("/login", authHandler.Login)
			authGroup.GET("/me", auth.RequireLogin(), authHandler.Me)
			authGroup.GET("/permissions", auth.RequireLogin(), authHandler.Permissions)
		}

		// 管理接口：登录后先按路由表鉴权
		admin := api.Group("/admin", auth.RequireLogin(), auth.Authorize())
		{
			roles := admin.Group("/roles")
			{
				roles.GET("", roleHandler.List)
				roles.GET("/:id", roleHandler.GetByID)
				roles.POST("", superAdmin, roleHandler.Create)
				roles.PUT("/:id", superAdmin, roleHandler.Update)
				roles.DELETE("/:id", superAdmin, roleHandler.Delete)
				roles.DELETE("", superAdmin, roleHandler.BatchDelete)

				// 授权整体替换
				roles.GET("/:id/menu-permissions", roleHandler.GetMenuPermissions)
				roles.PUT("/:id/menu-permissions", superAdmin, roleHandler.ReplaceMenuPermissions)
				roles.GET("/:id/button-permissions", roleHandler.GetButtonPermissions)
				roles.PUT("/:id/button-permissions", superAdmin, roleHandler.ReplaceButtonPermissions)
			}

			menus := admin.Group("/menus")
			{
				menus.GET("", menuHandler.List)
				menus.GET("/tree", menuHandler.Tree)
				menus.GET("/:id", menuHandler.GetByID)
				menus.POST("", menuHandler.Create)
				menus.PUT("/:id", menuHandler.Update)
				menus.DELETE("/:id", menuHandler.Delete)
				menus.DELETE("", menuHandler.BatchDelete)
			}

			buttons := admin.Group("/buttons")
			{
				buttons.GET("", buttonHandler.List)
				buttons.GET("/:id", buttonHandler.GetByID)
				buttons.POST("", buttonHandler.Create)
				buttons.PUT("/:id", buttonHandler.Update)
				buttons.DELETE("/:id", buttonHandler.Delete)
				buttons.DELETE("", buttonHandler.BatchDelete)
			}

			// 账号变更还需要对应的按钮授权
			users := admin.Group("/users")
			{
				users.GET("", userHandler.List)
				users.GET("/:id", userHandler.GetByID)
				users.GET("/:id/permissions", userHandler.Permissions)
				users.GET("/:id/check-permission", userHandler.CheckPermission)
				users.POST("", auth.RequireOperation(), userHandler.Create)
				users.PUT("/:id", auth.RequireOperation(), userHandler.Update)
			}

			auditLogs := admin.Group("/audit-logs")
			{
				auditLogs.GET("", auditHandler.List)
				auditLogs.GET("/:id", auditHandler.GetByID)
				auditLogs.POST("/cleanup", superAdmin, auditHandler.Cleanup)
			}

			permissions := admin.Group("/permissions")
			{
				permissions.GET("/routes", systemHandler.Routes)
				permissions.POST("/sync", superAdmin, systemHandler.SyncPermissions)
			}
		}
	}

	return nil
}

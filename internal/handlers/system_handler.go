package handlers

import (
	"time"

	"salesadmin/internal/services"
	"salesadmin/pkg/response"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// RouteSource 返回当前注册的路由表
type RouteSource func() []services.RouteInfo

// SystemHandler 系统处理器：健康检查与权限同步
type SystemHandler struct {
	db          *gorm.DB
	sync        *services.PermissionSyncService
	identifiers *services.IdentifierGenerator
	routes      RouteSource
}

// NewSystemHandler 创建系统处理器
func NewSystemHandler(db *gorm.DB, sync *services.PermissionSyncService, identifiers *services.IdentifierGenerator, routes RouteSource) *SystemHandler {
	return &SystemHandler{
		db:          db,
		sync:        sync,
		identifiers: identifiers,
		routes:      routes,
	}
}

// RouteIdentifier 路由及其按钮标识
type RouteIdentifier struct {
	Method     string `json:"method"`
	Path       string `json:"path"`
	Identifier string `json:"identifier"`
	Name       string `json:"name"`
}

// Health 健康检查
func (h *SystemHandler) Health(c *gin.Context) {
	data := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now(),
		"service":   "sales-admin",
		"database":  "ok",
	}

	sqlDB, err := h.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		data["status"] = "degraded"
		data["database"] = err.Error()
	}
	response.Success(c, data)
}

// Routes 列出接口路由及推导出的按钮标识
func (h *SystemHandler) Routes(c *gin.Context) {
	routes := h.routes()
	result := make([]RouteIdentifier, 0, len(routes))
	for _, route := range routes {
		result = append(result, RouteIdentifier{
			Method:     route.Method,
			Path:       route.Path,
			Identifier: h.identifiers.Identifier(route.Method, route.Path),
			Name:       h.identifiers.Name(route.Method, route.Path),
		})
	}
	response.Success(c, result)
}

// SyncPermissions 立即按当前路由表同步按钮权限
func (h *SystemHandler) SyncPermissions(c *gin.Context) {
	report, err := h.sync.ScanAndSync(c.Request.Context(), h.routes())
	if err != nil {
		response.Fail(c, err)
		return
	}
	if report.Skipped {
		response.SuccessWithMessage(c, "其他实例正在同步，本次跳过", report)
		return
	}
	response.Success(c, report)
}

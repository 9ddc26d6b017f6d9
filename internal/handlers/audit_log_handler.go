package handlers

import (
	"errors"
	"io"

	"salesadmin/internal/middleware"
	"salesadmin/internal/services"
	"salesadmin/pkg/pagination"
	"salesadmin/pkg/response"

	"github.com/gin-gonic/gin"
)

// AuditLogListRequest 审计日志查询参数
type AuditLogListRequest struct {
	Action       string `form:"action" binding:"omitempty,audit_action"`
	ResourceType string `form:"resource_type" binding:"max=50"`
	UserID       *uint  `form:"user_id"`
	StartDate    string `form:"start_date"`
	EndDate      string `form:"end_date"`
	Search       string `form:"search" binding:"max=200"`
}

// AuditCleanupRequest 清理参数，before_date 优先于 keep_days
type AuditCleanupRequest struct {
	BeforeDate string `json:"before_date"`
	KeepDays   *int   `json:"keep_days" binding:"omitempty,min=0,max=3650"`
}

type AuditLogHandler struct {
	service *services.AuditService
}

func NewAuditLogHandler(service *services.AuditService) *AuditLogHandler {
	return &AuditLogHandler{service: service}
}

// List 分页查询审计日志，附带按动作统计
func (h *AuditLogHandler) List(c *gin.Context) {
	var req AuditLogListRequest
	if !bindQuery(c, &req) {
		return
	}
	startDate, err := parseDate(req.StartDate, false)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	endDate, err := parseDate(req.EndDate, true)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	pageParams := pagination.ParsePageParams(c)
	page, err := h.service.Query(c.Request.Context(), services.AuditLogQuery{
		Action:       req.Action,
		ResourceType: req.ResourceType,
		UserID:       req.UserID,
		StartDate:    startDate,
		EndDate:      endDate,
		Search:       req.Search,
		Page:         pageParams.Page,
		PageSize:     pageParams.PageSize,
	})
	if err != nil {
		response.Fail(c, err)
		return
	}

	pageInfo := pagination.NewPageInfo(pageParams.Page, pageParams.PageSize, page.Total)
	response.SuccessWithStats(c, page.Logs, pageInfo, page.Stats)
}

// GetByID 获取审计日志详情
func (h *AuditLogHandler) GetByID(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	log, err := h.service.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, log)
}

// Cleanup 清理历史审计日志
func (h *AuditLogHandler) Cleanup(c *gin.Context) {
	var req AuditCleanupRequest
	// 请求体可以为空（包括分块传输的空体），按默认保留天数清理
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.BadRequest(c, bindingMessage(err))
		return
	}
	beforeDate, err := parseDate(req.BeforeDate, false)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.service.Cleanup(c.Request.Context(), middleware.CurrentActor(c), services.CleanupParams{
		BeforeDate: beforeDate,
		KeepDays:   req.KeepDays,
	})
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.SuccessWithMessage(c, result.Message, result)
}

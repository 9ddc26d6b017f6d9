package handlers

import (
	"salesadmin/internal/middleware"
	"salesadmin/internal/services"
	"salesadmin/pkg/pagination"
	"salesadmin/pkg/response"

	"github.com/gin-gonic/gin"
)

type UserHandler struct {
	service     *services.UserService
	permissions *services.PermissionService
	authorizer  *services.Authorizer
}

func NewUserHandler(service *services.UserService, permissions *services.PermissionService, authorizer *services.Authorizer) *UserHandler {
	return &UserHandler{
		service:     service,
		permissions: permissions,
		authorizer:  authorizer,
	}
}

// CheckPermissionResponse 按钮权限检查结果
type CheckPermissionResponse struct {
	UserID        uint   `json:"user_id"`
	Identifier    string `json:"identifier"`
	HasPermission bool   `json:"has_permission"`
}

// List 获取用户列表
func (h *UserHandler) List(c *gin.Context) {
	pageParams := pagination.ParsePageParams(c)

	users, total, err := h.service.List(c.Request.Context(), services.UserQuery{
		Keyword:  c.Query("keyword"),
		Role:     c.Query("role"),
		IsActive: optionalBool(c, "is_active"),
		Page:     pageParams.Page,
		PageSize: pageParams.PageSize,
	})
	if err != nil {
		response.Fail(c, err)
		return
	}

	pageInfo := pagination.NewPageInfo(pageParams.Page, pageParams.PageSize, total)
	response.SuccessWithPage(c, users, pageInfo)
}

// GetByID 获取用户
func (h *UserHandler) GetByID(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	user, err := h.service.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, user)
}

// Create 创建用户
func (h *UserHandler) Create(c *gin.Context) {
	var req services.CreateUserRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.service.Create(c.Request.Context(), middleware.CurrentActor(c), req)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, user)
}

// Update 更新用户，包括启用/禁用
func (h *UserHandler) Update(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req services.UpdateUserRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.service.Update(c.Request.Context(), middleware.CurrentActor(c), id, req)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, user)
}

// Permissions 用户的有效权限
func (h *UserHandler) Permissions(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	perms, err := h.permissions.ForUser(c.Request.Context(), id)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, perms)
}

// CheckPermission 检查用户是否拥有指定按钮权限
func (h *UserHandler) CheckPermission(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	identifier := c.Query("identifier")
	if identifier == "" {
		response.BadRequest(c, "identifier 不能为空")
		return
	}

	ctx := c.Request.Context()
	if _, err := h.service.GetByID(ctx, id); err != nil {
		response.Fail(c, err)
		return
	}

	allowed, err := h.authorizer.HasButtonPermission(ctx, id, identifier)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, CheckPermissionResponse{UserID: id, Identifier: identifier, HasPermission: allowed})
}

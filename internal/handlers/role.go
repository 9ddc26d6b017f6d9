package handlers

import (
	"salesadmin/internal/middleware"
	"salesadmin/internal/services"
	"salesadmin/pkg/pagination"
	"salesadmin/pkg/response"

	"github.com/gin-gonic/gin"
)

// ReplaceMenuPermissionsRequest 整体替换角色菜单授权，空数组表示清空
type ReplaceMenuPermissionsRequest struct {
	Permissions []services.MenuGrant `json:"permissions" binding:"required,dive"`
}

// ReplaceButtonPermissionsRequest 整体替换角色按钮授权
type ReplaceButtonPermissionsRequest struct {
	Permissions []services.ButtonGrant `json:"permissions" binding:"required,dive"`
}

type RoleHandler struct {
	service *services.RoleService
	grants  *services.GrantService
}

func NewRoleHandler(service *services.RoleService, grants *services.GrantService) *RoleHandler {
	return &RoleHandler{
		service: service,
		grants:  grants,
	}
}

// ========== 基础CRUD方法 ==========

// List 获取角色列表（支持分页）
func (h *RoleHandler) List(c *gin.Context) {
	pageParams := pagination.ParsePageParams(c)

	roles, total, err := h.service.List(c.Request.Context(), services.RoleQuery{
		Keyword:  c.Query("keyword"),
		IsActive: optionalBool(c, "is_active"),
		Page:     pageParams.Page,
		PageSize: pageParams.PageSize,
	})
	if err != nil {
		response.Fail(c, err)
		return
	}

	pageInfo := pagination.NewPageInfo(pageParams.Page, pageParams.PageSize, total)
	response.SuccessWithPage(c, roles, pageInfo)
}

// GetByID 获取角色
func (h *RoleHandler) GetByID(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	role, err := h.service.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, role)
}

// Create 创建角色
func (h *RoleHandler) Create(c *gin.Context) {
	var req services.CreateRoleRequest
	if !bindJSON(c, &req) {
		return
	}

	role, err := h.service.Create(c.Request.Context(), middleware.CurrentActor(c), req)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, role)
}

// Update 更新角色
func (h *RoleHandler) Update(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req services.UpdateRoleRequest
	if !bindJSON(c, &req) {
		return
	}

	role, err := h.service.Update(c.Request.Context(), middleware.CurrentActor(c), id, req)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, role)
}

// Delete 删除角色
func (h *RoleHandler) Delete(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), middleware.CurrentActor(c), id); err != nil {
		response.Fail(c, err)
		return
	}
	response.SuccessWithMessage(c, "删除成功", nil)
}

// BatchDelete 批量删除角色
func (h *RoleHandler) BatchDelete(c *gin.Context) {
	var req BatchDeleteRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.service.BatchDelete(c.Request.Context(), middleware.CurrentActor(c), req.IDs)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, result)
}

// ========== 授权管理 ==========

// GetMenuPermissions 获取角色菜单授权
func (h *RoleHandler) GetMenuPermissions(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	grants, err := h.grants.GetMenuGrants(c.Request.Context(), id)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, grants)
}

// ReplaceMenuPermissions 整体替换角色菜单授权
func (h *RoleHandler) ReplaceMenuPermissions(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req ReplaceMenuPermissionsRequest
	if !bindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	if err := h.grants.ReplaceMenuGrants(ctx, middleware.CurrentActor(c), id, req.Permissions); err != nil {
		response.Fail(c, err)
		return
	}

	grants, err := h.grants.GetMenuGrants(ctx, id)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.SuccessWithMessage(c, "授权已更新", grants)
}

// GetButtonPermissions 获取角色按钮授权
func (h *RoleHandler) GetButtonPermissions(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	grants, err := h.grants.GetButtonGrants(c.Request.Context(), id)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, grants)
}

// ReplaceButtonPermissions 整体替换角色按钮授权
func (h *RoleHandler) ReplaceButtonPermissions(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req ReplaceButtonPermissionsRequest
	if !bindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	if err := h.grants.ReplaceButtonGrants(ctx, middleware.CurrentActor(c), id, req.Permissions); err != nil {
		response.Fail(c, err)
		return
	}

	grants, err := h.grants.GetButtonGrants(ctx, id)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.SuccessWithMessage(c, "授权已更新", grants)
}

package handlers

import (
	"salesadmin/internal/middleware"
	"salesadmin/internal/services"
	"salesadmin/pkg/pagination"
	"salesadmin/pkg/response"

	"github.com/gin-gonic/gin"
)

type MenuHandler struct {
	service *services.MenuService
}

func NewMenuHandler(service *services.MenuService) *MenuHandler {
	return &MenuHandler{service: service}
}

// List 获取菜单列表
func (h *MenuHandler) List(c *gin.Context) {
	pageParams := pagination.ParsePageParams(c)

	menus, total, err := h.service.List(c.Request.Context(), services.MenuQuery{
		Keyword:  c.Query("keyword"),
		ParentID: optionalUint(c, "parent_id"),
		Page:     pageParams.Page,
		PageSize: pageParams.PageSize,
	})
	if err != nil {
		response.Fail(c, err)
		return
	}

	pageInfo := pagination.NewPageInfo(pageParams.Page, pageParams.PageSize, total)
	response.SuccessWithPage(c, menus, pageInfo)
}

// Tree 获取完整菜单树
func (h *MenuHandler) Tree(c *gin.Context) {
	tree, err := h.service.Tree(c.Request.Context())
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, tree)
}

// GetByID 获取菜单
func (h *MenuHandler) GetByID(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	menu, err := h.service.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, menu)
}

// Create 创建菜单
func (h *MenuHandler) Create(c *gin.Context) {
	var req services.CreateMenuRequest
	if !bindJSON(c, &req) {
		return
	}

	menu, err := h.service.Create(c.Request.Context(), middleware.CurrentActor(c), req)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, menu)
}

// Update 更新菜单，包括调整父菜单
func (h *MenuHandler) Update(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req services.UpdateMenuRequest
	if !bindJSON(c, &req) {
		return
	}

	menu, err := h.service.Update(c.Request.Context(), middleware.CurrentActor(c), id, req)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, menu)
}

// Delete 删除菜单
func (h *MenuHandler) Delete(c *gin.Context) {
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

// BatchDelete 批量删除菜单
func (h *MenuHandler) BatchDelete(c *gin.Context) {
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

package handlers

import (
	"salesadmin/internal/middleware"
	"salesadmin/internal/services"
	"salesadmin/pkg/pagination"
	"salesadmin/pkg/response"

	"github.com/gin-gonic/gin"
)

type ButtonHandler struct {
	service *services.ButtonService
}

func NewButtonHandler(service *services.ButtonService) *ButtonHandler {
	return &ButtonHandler{service: service}
}

// List 获取按钮列表，可按菜单、状态、来源筛选
func (h *ButtonHandler) List(c *gin.Context) {
	pageParams := pagination.ParsePageParams(c)

	buttons, total, err := h.service.List(c.Request.Context(), services.ButtonQuery{
		MenuID:   optionalUint(c, "menu_id"),
		Status:   c.Query("status"),
		Source:   c.Query("source"),
		Keyword:  c.Query("keyword"),
		Page:     pageParams.Page,
		PageSize: pageParams.PageSize,
	})
	if err != nil {
		response.Fail(c, err)
		return
	}

	pageInfo := pagination.NewPageInfo(pageParams.Page, pageParams.PageSize, total)
	response.SuccessWithPage(c, buttons, pageInfo)
}

// GetByID 获取按钮
func (h *ButtonHandler) GetByID(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	button, err := h.service.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, button)
}

// Create 创建按钮
func (h *ButtonHandler) Create(c *gin.Context) {
	var req services.CreateButtonRequest
	if !bindJSON(c, &req) {
		return
	}

	button, err := h.service.Create(c.Request.Context(), middleware.CurrentActor(c), req)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, button)
}

// Update 更新按钮
func (h *ButtonHandler) Update(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req services.UpdateButtonRequest
	if !bindJSON(c, &req) {
		return
	}

	button, err := h.service.Update(c.Request.Context(), middleware.CurrentActor(c), id, req)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, button)
}

// Delete 删除按钮
func (h *ButtonHandler) Delete(c *gin.Context) {
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

// BatchDelete 批量删除按钮
func (h *ButtonHandler) BatchDelete(c *gin.Context) {
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

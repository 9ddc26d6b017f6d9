package handlers

import (
	"salesadmin/internal/middleware"
	"salesadmin/internal/services"
	"salesadmin/pkg/jwt"
	"salesadmin/pkg/response"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	userService       *services.UserService
	permissionService *services.PermissionService
	jwtManager        *jwt.JWTManager
}

func NewAuthHandler(userService *services.UserService, permissionService *services.PermissionService, jwtManager *jwt.JWTManager) *AuthHandler {
	return &AuthHandler{
		userService:       userService,
		permissionService: permissionService,
		jwtManager:        jwtManager,
	}
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	Token     string   `json:"token"`
	ExpiresAt int64    `json:"expires_at"`
	User      UserInfo `json:"user"`
}

type UserInfo struct {
	ID         uint   `json:"id"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	Role       string `json:"role"`
	ProjectIDs []uint `json:"project_ids"`
}

// Login 用户登录
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.userService.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		response.Fail(c, err)
		return
	}

	token, err := h.jwtManager.GenerateToken(user.ID, user.Username)
	if err != nil {
		response.ServerError(c, "生成Token失败")
		return
	}

	response.Success(c, LoginResponse{
		Token:     token,
		ExpiresAt: user.LastLoginAt.Add(h.jwtManager.GetTokenDuration()).Unix(),
		User: UserInfo{
			ID:         user.ID,
			Username:   user.Username,
			Email:      user.Email,
			Role:       user.Role,
			ProjectIDs: []uint(user.ProjectIDs),
		},
	})
}

// Me 当前登录用户
func (h *AuthHandler) Me(c *gin.Context) {
	principal := middleware.CurrentPrincipal(c)
	user, err := h.userService.GetByID(c.Request.Context(), principal.UserID)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, user)
}

// Permissions 当前用户的可见菜单与可操作按钮
func (h *AuthHandler) Permissions(c *gin.Context) {
	principal := middleware.CurrentPrincipal(c)
	perms, err := h.permissionService.ForUser(c.Request.Context(), principal.UserID)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, perms)
}

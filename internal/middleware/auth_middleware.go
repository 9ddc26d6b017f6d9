package middleware

import (
	"strings"

	"salesadmin/internal/services"
	apperrors "salesadmin/pkg/errors"
	"salesadmin/pkg/jwt"
	"salesadmin/pkg/response"

	"github.com/gin-gonic/gin"
)

// 上下文键
const (
	ContextPrincipal = "principal"
	ContextUserID    = "user_id"
	ContextUsername  = "username"
)

// AuthMiddleware 登录与鉴权中间件
type AuthMiddleware struct {
	authorizer  *services.Authorizer
	jwtManager  *jwt.JWTManager
	identifiers *services.IdentifierGenerator
}

// NewAuthMiddleware 创建鉴权中间件
func NewAuthMiddleware(authorizer *services.Authorizer, jwtManager *jwt.JWTManager, identifiers *services.IdentifierGenerator) *AuthMiddleware {
	return &AuthMiddleware{
		authorizer:  authorizer,
		jwtManager:  jwtManager,
		identifiers: identifiers,
	}
}

// RequireLogin 校验 Bearer 令牌并从数据库加载当前用户，角色与状态不从令牌中读取
func (m *AuthMiddleware) RequireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.Unauthorized(c, "请先登录")
			c.Abort()
			return
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			response.Unauthorized(c, "认证头格式错误")
			c.Abort()
			return
		}
		tokenString := strings.TrimSpace(authHeader[7:])

		claims, err := m.jwtManager.VerifyToken(tokenString)
		if err != nil {
			response.Unauthorized(c, "Token无效或已过期")
			c.Abort()
			return
		}

		principal, err := m.authorizer.LoadPrincipal(c.Request.Context(), claims.UserID)
		if err != nil {
			response.Fail(c, err)
			c.Abort()
			return
		}
		if principal == nil {
			response.Unauthorized(c, "用户不存在")
			c.Abort()
			return
		}
		if !principal.IsActive {
			response.Fail(c, apperrors.AccountDisabled("账号已被禁用"))
			c.Abort()
			return
		}

		c.Set(ContextPrincipal, principal)
		c.Set(ContextUserID, principal.UserID)
		c.Set(ContextUsername, principal.Username)

		c.Next()
	}
}

// Authorize 粗粒度鉴权。传入角色时只检查角色归属，否则按路由表判断当前路由
func (m *AuthMiddleware) Authorize(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		decision := m.authorizer.Authorize(CurrentPrincipal(c), c.Request.Method, routePath(c), roles...)
		if !decision.Allowed {
			response.Fail(c, decision.Err())
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireOperation 细粒度鉴权：按当前路由生成按钮标识并检查 can_operate 授权
func (m *AuthMiddleware) RequireOperation() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal := CurrentPrincipal(c)
		if principal == nil {
			response.Unauthorized(c, "请先登录")
			c.Abort()
			return
		}

		identifier := m.identifiers.Identifier(c.Request.Method, routePath(c))
		allowed, err := m.authorizer.HasButtonPermission(c.Request.Context(), principal.UserID, identifier)
		if err != nil {
			response.Fail(c, err)
			c.Abort()
			return
		}
		if !allowed {
			response.Fail(c, apperrors.InsufficientPermission("没有该操作的权限: "+identifier))
			c.Abort()
			return
		}
		c.Next()
	}
}

// CurrentPrincipal 获取当前请求的调用者，未登录返回 nil
func CurrentPrincipal(c *gin.Context) *services.Principal {
	value, exists := c.Get(ContextPrincipal)
	if !exists {
		return nil
	}
	principal, _ := value.(*services.Principal)
	return principal
}

// CurrentActor 审计用的操作人信息
func CurrentActor(c *gin.Context) services.Actor {
	actor := services.Actor{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
	if principal := CurrentPrincipal(c); principal != nil {
		actor.UserID = principal.UserID
	}
	return actor
}

// routePath 优先使用注册时的路由模板，与路由表和按钮标识保持一致
func routePath(c *gin.Context) string {
	if path := c.FullPath(); path != "" {
		return path
	}
	return c.Request.URL.Path
}

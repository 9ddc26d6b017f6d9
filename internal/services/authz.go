package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"salesadmin/internal/metrics"
	"salesadmin/internal/models"
	apperrors "salesadmin/pkg/errors"
	"salesadmin/pkg/logger"

	"github.com/casbin/casbin/v3"
	"github.com/casbin/casbin/v3/model"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// 路由-角色表的 casbin 模型：路由支持 keyMatch 通配，方法支持正则或 *
const routeTableModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && keyMatch(r.obj, p.obj) && (p.act == "*" || regexMatch(r.act, p.act))
`

// declaredSubject 每条规则都会为该主体登记一份，用来判断路由是否在表中声明过
const declaredSubject = "__declared__"

// RouteRule 路由表中的一条规则
type RouteRule struct {
	Path    string   // 支持 /api/admin/* 形式的前缀通配
	Methods string   // GET、GET|POST 或 *
	Roles   []string // 允许访问的角色
}

// Principal 当前请求的调用者
type Principal struct {
	UserID     uint
	Username   string
	Role       string
	IsActive   bool
	ProjectIDs []uint
}

// IsSuperAdmin 是否超级管理员
func (p *Principal) IsSuperAdmin() bool {
	return p != nil && p.Role == models.RoleSuperAdmin
}

// Decision 鉴权结果，拒绝时 Reason 为稳定的错误标识
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(reason string) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// Err 拒绝原因对应的业务错误，放行时返回 nil
func (d Decision) Err() error {
	switch {
	case d.Allowed:
		return nil
	case d.Reason == apperrors.ErrUnauthenticated:
		return apperrors.Unauthenticated("请先登录")
	case d.Reason == apperrors.ErrAccountDisabled:
		return apperrors.AccountDisabled("账号已被禁用")
	case d.Reason == apperrors.ErrInsufficientPermission:
		return apperrors.InsufficientPermission("没有该操作的权限")
	default:
		return apperrors.InsufficientRole("当前角色无权访问")
	}
}

// Authorizer 请求级鉴权，不缓存任何授权数据，每次判断都读取当前状态
type Authorizer struct {
	db           *gorm.DB
	enforcer     *casbin.Enforcer
	defaultAllow bool
	metrics      *metrics.Metrics
}

// NewAuthorizer 创建鉴权器，rules 为静态路由-角色表
func NewAuthorizer(db *gorm.DB, rules []RouteRule, defaultAllow bool, m *metrics.Metrics) (*Authorizer, error) {
	mdl, err := model.NewModelFromString(routeTableModel)
	if err != nil {
		return nil, fmt.Errorf("failed to load route table model: %w", err)
	}
	enforcer, err := casbin.NewEnforcer(mdl)
	if err != nil {
		return nil, fmt.Errorf("failed to create route table enforcer: %w", err)
	}

	for _, rule := range rules {
		methods := methodPattern(rule.Methods)
		if _, err := enforcer.AddPolicy(declaredSubject, rule.Path, methods); err != nil {
			return nil, fmt.Errorf("failed to declare route %s: %w", rule.Path, err)
		}
		for _, role := range rule.Roles {
			if _, err := enforcer.AddPolicy(role, rule.Path, methods); err != nil {
				return nil, fmt.Errorf("failed to add route rule %s for %s: %w", rule.Path, role, err)
			}
		}
	}

	return &Authorizer{db: db, enforcer: enforcer, defaultAllow: defaultAllow, metrics: m}, nil
}

// methodPattern GET|POST 转换为锚定的正则，空或 * 表示任意方法
func methodPattern(methods string) string {
	methods = strings.ToUpper(strings.TrimSpace(methods))
	if methods == "" || methods == "*" {
		return "*"
	}
	return "^(" + methods + ")$"
}

// LoadPrincipal 按用户ID读取调用者，用户不存在时返回 nil
func (a *Authorizer) LoadPrincipal(ctx context.Context, userID uint) (*Principal, error) {
	var user models.User
	err := a.db.WithContext(ctx).First(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Internal("加载用户失败", err)
	}
	return PrincipalFromUser(&user), nil
}

// PrincipalFromUser 由用户构造调用者
func PrincipalFromUser(user *models.User) *Principal {
	return &Principal{
		UserID:     user.ID,
		Username:   user.Username,
		Role:       user.Role,
		IsActive:   user.IsActive,
		ProjectIDs: []uint(user.ProjectIDs),
	}
}

// Authorize 请求级粗粒度鉴权。
// requiredRoles 非空时只检查角色归属，否则查路由表；表中未声明的路由按 defaultAllow 处理。
func (a *Authorizer) Authorize(principal *Principal, method, path string, requiredRoles ...string) Decision {
	decision := a.decide(principal, method, path, requiredRoles)
	a.metrics.RecordAuthz(decision.Allowed, decision.Reason)
	if !decision.Allowed {
		fields := logrus.Fields{"method": method, "path": path, "reason": decision.Reason}
		if principal != nil {
			fields["user_id"] = principal.UserID
			fields["role"] = principal.Role
		}
		logger.GetLogger().WithFields(fields).Warn("Authorization denied")
	}
	return decision
}

func (a *Authorizer) decide(principal *Principal, method, path string, requiredRoles []string) Decision {
	if principal == nil {
		return deny(apperrors.ErrUnauthenticated)
	}
	if !principal.IsActive {
		return deny(apperrors.ErrAccountDisabled)
	}
	if principal.IsSuperAdmin() {
		return allow()
	}

	if len(requiredRoles) > 0 {
		for _, role := range requiredRoles {
			if principal.Role == role {
				return allow()
			}
		}
		return deny(apperrors.ErrInsufficientRole)
	}

	method = strings.ToUpper(method)
	declared, err := a.enforcer.Enforce(declaredSubject, path, method)
	if err != nil {
		logger.GetLogger().Errorf("Route table evaluation failed for %s %s: %v", method, path, err)
		return deny(apperrors.ErrInsufficientRole)
	}
	if !declared {
		if a.defaultAllow {
			return allow()
		}
		return deny(apperrors.ErrInsufficientRole)
	}

	ok, err := a.enforcer.Enforce(principal.Role, path, method)
	if err != nil {
		logger.GetLogger().Errorf("Route table evaluation failed for %s %s: %v", method, path, err)
		return deny(apperrors.ErrInsufficientRole)
	}
	if !ok {
		return deny(apperrors.ErrInsufficientRole)
	}
	return allow()
}

// HasButtonPermission 细粒度检查：用户角色对 identifier 对应的可用按钮是否有 can_operate 授权
func (a *Authorizer) HasButtonPermission(ctx context.Context, userID uint, identifier string) (bool, error) {
	allowed, err := a.hasButtonPermission(ctx, userID, identifier)
	if err != nil {
		return false, err
	}
	a.metrics.RecordButtonCheck(allowed)
	return allowed, nil
}

func (a *Authorizer) hasButtonPermission(ctx context.Context, userID uint, identifier string) (bool, error) {
	db := a.db.WithContext(ctx)

	var user models.User
	if err := db.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, apperrors.Internal("加载用户失败", err)
	}
	if !user.IsActive {
		return false, nil
	}
	if user.Role == models.RoleSuperAdmin {
		return true, nil
	}

	var role models.Role
	if err := db.Where("name = ?", user.Role).First(&role).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, apperrors.Internal("加载角色失败", err)
	}
	if !role.IsActive {
		return false, nil
	}

	var count int64
	err := db.Model(&models.RoleButtonPermission{}).
		Joins("JOIN buttons ON buttons.id = role_button_permissions.button_id").
		Where("role_button_permissions.role_id = ?", role.ID).
		Where("role_button_permissions.can_operate = ?", true).
		Where("buttons.identifier = ? AND buttons.status = ?", identifier, models.ButtonStatusActive).
		Count(&count).Error
	if err != nil {
		return false, apperrors.Internal("查询按钮权限失败", err)
	}
	return count > 0, nil
}

package services

import (
	"fmt"
	"strings"
)

// DefaultAPIRootPrefix 接口根路径
const DefaultAPIRootPrefix = "/api"

// dynamicSegmentToken 动态路由段（:param / *param）统一替换成的占位符。
// 字面量段 id 与动态段得到相同标识（/users/id 与 /users/:id），a_b 与 a/b 同理；
// 这类冲突保留，同步时由 RouteShape 检出并写入报告。
const dynamicSegmentToken = "id"

// 方法对应的动词
var methodVerbs = map[string]string{
	"GET":    "View",
	"POST":   "Create",
	"PUT":    "Update",
	"DELETE": "Delete",
	"PATCH":  "Partially update",
}

// 路径段对应的业务名词，未收录的段原样输出
var segmentNouns = map[string]string{
	"auth":               "Auth",
	"login":              "Login",
	"me":                 "Current User",
	"permissions":        "Permission",
	"roles":              "Role",
	"menus":              "Menu",
	"tree":               "Tree",
	"buttons":            "Button",
	"users":              "User",
	"audit-logs":         "Audit Log",
	"cleanup":            "Cleanup",
	"menu-permissions":   "Menu Permission",
	"button-permissions": "Button Permission",
	"check-permission":   "Permission Check",
	"projects":           "Project",
	"units":              "Sales Unit",
	"parking":            "Parking Space",
	"appointments":       "Appointment",
	"customers":          "Customer",
}

// 仅用于分组的路径段，不出现在名称中
var namespaceSegments = map[string]bool{
	"admin": true,
	"v1":    true,
}

// IdentifierGenerator 由 (HTTP 方法, 路由) 推导权限标识、名称与描述，纯函数
type IdentifierGenerator struct {
	apiRoot string
}

// NewIdentifierGenerator 创建标识生成器，apiRoot 为空时使用 /api
func NewIdentifierGenerator(apiRoot string) *IdentifierGenerator {
	if apiRoot == "" {
		apiRoot = DefaultAPIRootPrefix
	}
	return &IdentifierGenerator{apiRoot: "/" + strings.Trim(apiRoot, "/")}
}

// APIRoot 接口根路径
func (g *IdentifierGenerator) APIRoot() string {
	return g.apiRoot
}

// StripRoot 去掉接口根路径前缀
func (g *IdentifierGenerator) StripRoot(routePath string) string {
	if routePath == g.apiRoot {
		return "/"
	}
	if strings.HasPrefix(routePath, g.apiRoot+"/") {
		return routePath[len(g.apiRoot):]
	}
	return routePath
}

// Identifier 生成权限标识，例如 GET /api/admin/roles/:id -> get_admin_roles_id
func (g *IdentifierGenerator) Identifier(method, routePath string) string {
	parts := make([]string, 0)
	for _, segment := range splitPath(g.StripRoot(routePath)) {
		if isDynamicSegment(segment) {
			parts = append(parts, dynamicSegmentToken)
			continue
		}
		parts = append(parts, sanitizeSegment(segment))
	}

	body := collapseUnderscores(strings.Join(parts, "_"))
	prefix := strings.ToLower(method)
	if body == "" {
		return prefix
	}
	return prefix + "_" + body
}

// RouteShape 路由的结构形状：动态段统一为 ":"，用于区分参数名不同与结构不同的标识冲突
func (g *IdentifierGenerator) RouteShape(routePath string) string {
	segments := splitPath(g.StripRoot(routePath))
	for i, segment := range segments {
		if isDynamicSegment(segment) {
			segments[i] = ":"
		}
	}
	return "/" + strings.Join(segments, "/")
}

// Name 生成可读名称，例如 GET /api/admin/roles -> View Role
func (g *IdentifierGenerator) Name(method, routePath string) string {
	verb, ok := methodVerbs[strings.ToUpper(method)]
	if !ok {
		verb = strings.ToUpper(method)
	}

	nouns := make([]string, 0)
	for _, segment := range splitPath(g.StripRoot(routePath)) {
		if isDynamicSegment(segment) || namespaceSegments[segment] {
			continue
		}
		if noun, ok := segmentNouns[segment]; ok {
			nouns = append(nouns, noun)
		} else {
			nouns = append(nouns, segment)
		}
	}
	if len(nouns) == 0 {
		return verb
	}
	return verb + " " + strings.Join(nouns, " ")
}

// Description 生成描述，包含原始方法与路由
func (g *IdentifierGenerator) Description(method, routePath string) string {
	return fmt.Sprintf("%s (%s %s)", g.Name(method, routePath), strings.ToUpper(method), routePath)
}

func splitPath(p string) []string {
	segments := make([]string, 0)
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	return segments
}

func isDynamicSegment(segment string) bool {
	return strings.HasPrefix(segment, ":") || strings.HasPrefix(segment, "*")
}

// sanitizeSegment 非字母数字字符替换为下划线
func sanitizeSegment(segment string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(segment) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

func collapseUnderscores(s string) string {
	var b strings.Builder
	prev := byte(0)
	for i := 0; i < len(s); i++ {
		if s[i] == '_' && prev == '_' {
			continue
		}
		b.WriteByte(s[i])
		prev = s[i]
	}
	return strings.Trim(b.String(), "_")
}

package router

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"salesadmin/internal/database"
	"salesadmin/internal/database/dbtest"
	"salesadmin/internal/metrics"
	"salesadmin/internal/models"
	"salesadmin/pkg/config"
	apperrors "salesadmin/pkg/errors"
	"salesadmin/pkg/jwt"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type envelope struct {
	Code       int                    `json:"code"`
	Message    string                 `json:"message"`
	ErrorCode  string                 `json:"error_code"`
	Data       json.RawMessage        `json:"data"`
	PageInfo   map[string]interface{} `json:"page_info"`
	Pagination map[string]interface{} `json:"pagination"`
	Stats      map[string]int64       `json:"stats"`
}

type testServer struct {
	t       *testing.T
	db      *gorm.DB
	engine  *gin.Engine
	jwt     *jwt.JWTManager
	metrics *metrics.Metrics
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := dbtest.New(t)
	require.NoError(t, database.Seed(db, config.AdminConfig{Username: "root", Password: "Passw0rd!", Email: "root@example.com"}))

	jwtManager := jwt.NewJWTManager("test-secret", time.Hour)
	m := metrics.NewNop()
	engine, err := SetupRouter(Options{
		DB:      db,
		Metrics: m,
		JWT:     jwtManager,
		CORS:    config.CORSConfig{AllowOrigins: []string{"*"}, AllowMethods: []string{"GET", "POST", "PUT", "DELETE"}},
		APIRoot: "/api",
	})
	require.NoError(t, err)

	return &testServer{t: t, db: db, engine: engine, jwt: jwtManager, metrics: m}
}

func (s *testServer) createUser(username, role string, active bool) *models.User {
	s.t.Helper()
	user := &models.User{Username: username, Email: username + "@example.com", Role: role, IsActive: active}
	require.NoError(s.t, user.SetPassword("Passw0rd!"))
	require.NoError(s.t, s.db.Create(user).Error)
	return user
}

func (s *testServer) tokenFor(user *models.User) string {
	s.t.Helper()
	token, err := s.jwt.GenerateToken(user.ID, user.Username)
	require.NoError(s.t, err)
	return token
}

func (s *testServer) rootToken() string {
	s.t.Helper()
	var root models.User
	require.NoError(s.t, s.db.Where("username = ?", "root").First(&root).Error)
	return s.tokenFor(&root)
}

func (s *testServer) do(method, path, token string, body interface{}) envelope {
	s.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	require.Equal(s.t, http.StatusOK, w.Code, w.Body.String())

	var resp envelope
	require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// doRaw 发送原始请求体，chunked 时不带 Content-Length
func (s *testServer) doRaw(method, path, token, body string, chunked bool) envelope {
	s.t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if chunked {
		req.ContentLength = -1
		req.TransferEncoding = []string{"chunked"}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	require.Equal(s.t, http.StatusOK, w.Code, w.Body.String())

	var resp envelope
	require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

func TestLoginAndMe(t *testing.T) {
	s := newTestServer(t)

	resp := s.do("POST", "/api/auth/login", "", map[string]string{"username": "root", "password": "wrong"})
	assert.Equal(t, apperrors.CodeUnauthorized, resp.Code)
	assert.Equal(t, apperrors.ErrUnauthenticated, resp.ErrorCode)

	resp = s.do("POST", "/api/auth/login", "", map[string]string{"username": "root", "password": "Passw0rd!"})
	require.Equal(t, apperrors.CodeSuccess, resp.Code, resp.Message)
	var login struct {
		Token string `json:"token"`
		User  struct {
			Role string `json:"role"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &login))
	assert.Equal(t, models.RoleSuperAdmin, login.User.Role)

	resp = s.do("GET", "/api/auth/me", login.Token, nil)
	require.Equal(t, apperrors.CodeSuccess, resp.Code)
	assert.Contains(t, string(resp.Data), `"username":"root"`)
	assert.NotContains(t, string(resp.Data), "password")

	resp = s.do("GET", "/api/auth/me", "", nil)
	assert.Equal(t, apperrors.ErrUnauthenticated, resp.ErrorCode)

	resp = s.do("GET", "/api/auth/me", "not-a-token", nil)
	assert.Equal(t, apperrors.ErrUnauthenticated, resp.ErrorCode)
}

func TestDisabledAccountIsRejectedEverywhere(t *testing.T) {
	s := newTestServer(t)
	user := s.createUser("ghost", models.RoleAdmin, true)
	token := s.tokenFor(user)

	resp := s.do("GET", "/api/admin/roles", token, nil)
	require.Equal(t, apperrors.CodeSuccess, resp.Code)

	// 令牌仍然有效，但账号状态每次请求重新读取
	require.NoError(t, s.db.Model(user).Update("is_active", false).Error)
	for _, path := range []string{"/api/admin/roles", "/api/auth/me", "/api/admin/menus/tree"} {
		resp = s.do("GET", path, token, nil)
		assert.Equal(t, apperrors.ErrAccountDisabled, resp.ErrorCode, path)
	}

	resp = s.do("POST", "/api/auth/login", "", map[string]string{"username": "ghost", "password": "Passw0rd!"})
	assert.Equal(t, apperrors.ErrAccountDisabled, resp.ErrorCode)
}

func TestRouteTableAuthorization(t *testing.T) {
	s := newTestServer(t)
	seller := s.tokenFor(s.createUser("seller", models.RoleSalesPerson, true))
	admin := s.tokenFor(s.createUser("ops", models.RoleAdmin, true))

	tests := []struct {
		name      string
		token     string
		method    string
		path      string
		body      interface{}
		errorCode string
	}{
		{"seller cannot list users", seller, "GET", "/api/admin/users", nil, apperrors.ErrInsufficientRole},
		{"seller reads menu tree", seller, "GET", "/api/admin/menus/tree", nil, ""},
		{"admin lists users", admin, "GET", "/api/admin/users", nil, ""},
		{"admin cannot create roles", admin, "POST", "/api/admin/roles", map[string]string{"name": "x_role", "display_name": "x"}, apperrors.ErrInsufficientRole},
		{"admin cannot clean audit logs", admin, "POST", "/api/admin/audit-logs/cleanup", nil, apperrors.ErrInsufficientRole},
		{"admin creates menus", admin, "POST", "/api/admin/menus", map[string]string{"name": "units", "display_name": "房源"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := s.do(tt.method, tt.path, tt.token, tt.body)
			if tt.errorCode == "" {
				assert.Equal(t, apperrors.CodeSuccess, resp.Code, resp.Message)
				return
			}
			assert.Equal(t, apperrors.CodeForbidden, resp.Code)
			assert.Equal(t, tt.errorCode, resp.ErrorCode)
		})
	}
}

func TestRequireOperationUsesButtonGrants(t *testing.T) {
	s := newTestServer(t)
	root := s.rootToken()
	admin := s.tokenFor(s.createUser("ops", models.RoleAdmin, true))
	newUser := map[string]string{"username": "dave", "email": "dave@example.com", "password": "Sup3rSecret", "role": models.RoleSalesPerson}

	resp := s.do("POST", "/api/admin/users", admin, newUser)
	assert.Equal(t, apperrors.ErrInsufficientPermission, resp.ErrorCode)

	// 同步路由得到按钮，再给 admin 角色授权
	resp = s.do("POST", "/api/admin/permissions/sync", root, nil)
	require.Equal(t, apperrors.CodeSuccess, resp.Code, resp.Message)

	var button models.Button
	require.NoError(t, s.db.Where("identifier = ?", "post_admin_users").First(&button).Error)
	var adminRole models.Role
	require.NoError(t, s.db.Where("name = ?", models.RoleAdmin).First(&adminRole).Error)

	path := fmt.Sprintf("/api/admin/roles/%d/button-permissions", adminRole.ID)
	resp = s.do("PUT", path, root, map[string]interface{}{
		"permissions": []map[string]interface{}{{"button_id": button.ID, "can_operate": true}},
	})
	require.Equal(t, apperrors.CodeSuccess, resp.Code, resp.Message)

	resp = s.do("POST", "/api/admin/users", admin, newUser)
	assert.Equal(t, apperrors.CodeSuccess, resp.Code, resp.Message)

	// 撤销后立即生效
	resp = s.do("PUT", path, root, map[string]interface{}{"permissions": []interface{}{}})
	require.Equal(t, apperrors.CodeSuccess, resp.Code)
	newUser["username"], newUser["email"] = "erin", "erin@example.com"
	resp = s.do("POST", "/api/admin/users", admin, newUser)
	assert.Equal(t, apperrors.ErrInsufficientPermission, resp.ErrorCode)
}

func TestReplaceGrantsRequiresPermissionsField(t *testing.T) {
	s := newTestServer(t)
	root := s.rootToken()

	resp := s.do("PUT", "/api/admin/roles/1/menu-permissions", root, map[string]interface{}{})
	assert.Equal(t, apperrors.ErrValidation, resp.ErrorCode)

	resp = s.do("PUT", "/api/admin/roles/abc/menu-permissions", root, map[string]interface{}{"permissions": []interface{}{}})
	assert.Equal(t, apperrors.ErrValidation, resp.ErrorCode)

	resp = s.do("PUT", "/api/admin/roles/999/menu-permissions", root, map[string]interface{}{"permissions": []interface{}{}})
	assert.Equal(t, apperrors.ErrNotFound, resp.ErrorCode)
}

func TestAuditLogListing(t *testing.T) {
	s := newTestServer(t)
	root := s.rootToken()

	resp := s.do("POST", "/api/admin/roles", root, map[string]string{"name": "channel_agent", "display_name": "渠道"})
	require.Equal(t, apperrors.CodeSuccess, resp.Code, resp.Message)
	var role models.Role
	require.NoError(t, json.Unmarshal(resp.Data, &role))

	resp = s.do("PUT", fmt.Sprintf("/api/admin/roles/%d", role.ID), root, map[string]string{"display_name": "渠道经纪"})
	require.Equal(t, apperrors.CodeSuccess, resp.Code, resp.Message)

	resp = s.do("GET", "/api/admin/audit-logs?action=CREATE", root, nil)
	require.Equal(t, apperrors.CodeSuccess, resp.Code, resp.Message)
	assert.Equal(t, float64(1), resp.Pagination["total"])
	assert.Equal(t, map[string]int64{"CREATE": 1, "UPDATE": 1}, resp.Stats)

	var logs []models.PermissionAuditLog
	require.NoError(t, json.Unmarshal(resp.Data, &logs))
	require.Len(t, logs, 1)
	assert.Equal(t, models.ResourceRole, logs[0].ResourceType)

	resp = s.do("GET", "/api/admin/audit-logs?action=RENAME", root, nil)
	assert.Equal(t, apperrors.ErrValidation, resp.ErrorCode)

	resp = s.do("GET", "/api/admin/audit-logs?start_date=2030-01-02&end_date=2030-01-01", root, nil)
	assert.Equal(t, apperrors.ErrValidation, resp.ErrorCode)
}

func TestAuditCleanupEndpoint(t *testing.T) {
	s := newTestServer(t)
	root := s.rootToken()

	resp := s.do("POST", "/api/admin/audit-logs/cleanup", root, nil)
	require.Equal(t, apperrors.CodeSuccess, resp.Code, resp.Message)
	assert.Contains(t, string(resp.Data), `"deleted_count":0`)

	old := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.db.Create(&models.PermissionAuditLog{
		Action: models.AuditActionCreate, ResourceType: models.ResourceRole, CreatedAt: old,
	}).Error)

	resp = s.do("POST", "/api/admin/audit-logs/cleanup", root, map[string]interface{}{"keep_days": 30})
	require.Equal(t, apperrors.CodeSuccess, resp.Code, resp.Message)
	assert.Contains(t, string(resp.Data), `"deleted_count":1`)

	resp = s.do("POST", "/api/admin/audit-logs/cleanup", root, map[string]interface{}{"keep_days": -1})
	assert.Equal(t, apperrors.ErrValidation, resp.ErrorCode)
}

func TestAuditCleanupAcceptsChunkedEmptyBody(t *testing.T) {
	s := newTestServer(t)
	root := s.rootToken()

	require.NoError(t, s.db.Create(&models.PermissionAuditLog{
		Action: models.AuditActionCreate, ResourceType: models.ResourceRole,
		CreatedAt: time.Now().AddDate(0, 0, -120),
	}).Error)

	resp := s.doRaw("POST", "/api/admin/audit-logs/cleanup", root, "", true)
	require.Equal(t, apperrors.CodeSuccess, resp.Code, resp.Message)
	// 默认保留 90 天
	assert.Contains(t, string(resp.Data), `"deleted_count":1`)

	resp = s.doRaw("POST", "/api/admin/audit-logs/cleanup", root, `{"keep_days":`, true)
	assert.Equal(t, apperrors.ErrValidation, resp.ErrorCode)
}

func TestRouteSurfaceAndSync(t *testing.T) {
	s := newTestServer(t)
	root := s.rootToken()

	surface := RouteSurface(s.engine)
	seen := make(map[string]bool, len(surface))
	for _, route := range surface {
		seen[route.Method+" "+route.Path] = true
	}
	assert.True(t, seen["GET /api/admin/roles"])
	assert.True(t, seen["PUT /api/admin/roles/:id/menu-permissions"])
	assert.True(t, seen["GET /health"])

	resp := s.do("POST", "/api/admin/permissions/sync", root, nil)
	require.Equal(t, apperrors.CodeSuccess, resp.Code, resp.Message)
	resp = s.do("POST", "/api/admin/permissions/sync", root, nil)
	require.Equal(t, apperrors.CodeSuccess, resp.Code, resp.Message)

	var count int64
	s.db.Model(&models.Button{}).Where("identifier = ?", "get_admin_roles").Count(&count)
	assert.Equal(t, int64(1), count)

	// 路由挂在种子菜单下
	var button models.Button
	require.NoError(t, s.db.Preload("Menu").Where("identifier = ?", "get_admin_roles_id").First(&button).Error)
	assert.Equal(t, "system_roles", button.Menu.Name)

	resp = s.do("GET", "/api/admin/permissions/routes", root, nil)
	require.Equal(t, apperrors.CodeSuccess, resp.Code)
	assert.Contains(t, string(resp.Data), `"identifier":"delete_admin_roles_id"`)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	resp := s.do("GET", "/health", "", nil)
	assert.Equal(t, apperrors.CodeSuccess, resp.Code)
	assert.Contains(t, string(resp.Data), `"database":"ok"`)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "sales_admin_http_requests_total")
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRouteRulesDeclareRoles(t *testing.T) {
	rules := RouteRules("/api")
	for _, rule := range rules {
		assert.NotEmpty(t, rule.Roles, rule.Path)
	}
}

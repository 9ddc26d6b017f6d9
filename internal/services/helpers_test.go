package services

import (
	"context"
	"testing"

	"salesadmin/internal/database/dbtest"
	"salesadmin/internal/metrics"
	"salesadmin/internal/models"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var testActor = Actor{UserID: 1, IPAddress: "10.0.0.1", UserAgent: "go-test"}

type testEnv struct {
	ctx     context.Context
	db      *gorm.DB
	metrics *metrics.Metrics
	audit   *AuditService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := dbtest.New(t)
	m := metrics.NewNop()
	return &testEnv{
		ctx:     context.Background(),
		db:      db,
		metrics: m,
		audit:   NewAuditService(db, m),
	}
}

func (e *testEnv) createRole(t *testing.T, name string, active bool) *models.Role {
	t.Helper()
	role := &models.Role{Name: name, DisplayName: name, IsActive: active}
	require.NoError(t, e.db.Create(role).Error)
	return role
}

func (e *testEnv) createMenu(t *testing.T, name string, parentID *uint) *models.Menu {
	t.Helper()
	menu := &models.Menu{Name: name, DisplayName: name, Path: "/" + name, ParentID: parentID, IsVisible: true}
	require.NoError(t, e.db.Create(menu).Error)
	return menu
}

func (e *testEnv) createButton(t *testing.T, identifier string, menuID uint, status string) *models.Button {
	t.Helper()
	button := &models.Button{
		Name:       identifier,
		Identifier: identifier,
		MenuID:     menuID,
		Status:     status,
		Source:     models.ButtonSourceManual,
	}
	require.NoError(t, e.db.Create(button).Error)
	return button
}

func (e *testEnv) createUser(t *testing.T, username, role string, active bool) *models.User {
	t.Helper()
	user := &models.User{
		Username: username,
		Email:    username + "@example.com",
		Role:     role,
		IsActive: active,
	}
	require.NoError(t, user.SetPassword("Passw0rd!"))
	require.NoError(t, e.db.Create(user).Error)
	return user
}

func (e *testEnv) auditLogs(t *testing.T) []models.PermissionAuditLog {
	t.Helper()
	var logs []models.PermissionAuditLog
	require.NoError(t, e.db.Order("id").Find(&logs).Error)
	return logs
}

func uintPtr(v uint) *uint {
	return &v
}

func strPtr(v string) *string {
	return &v
}

func boolPtr(v bool) *bool {
	return &v
}

package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"salesadmin/internal/metrics"
	"salesadmin/internal/models"
	apperrors "salesadmin/pkg/errors"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newGrantEnv(t *testing.T) (*testEnv, *GrantService, *models.Role, []*models.Menu) {
	t.Helper()
	env := newTestEnv(t)
	role := env.createRole(t, "sales_manager", true)
	menus := []*models.Menu{
		env.createMenu(t, "units", nil),
		env.createMenu(t, "parking", nil),
		env.createMenu(t, "customers", nil),
	}
	return env, NewGrantService(env.db, env.audit, env.metrics), role, menus
}

func TestReplaceMenuGrants_Exactness(t *testing.T) {
	env, svc, role, menus := newGrantEnv(t)

	first := []MenuGrant{
		{MenuID: menus[0].ID, CanView: true, CanCreate: true},
		{MenuID: menus[1].ID, CanView: true},
	}
	require.NoError(t, svc.ReplaceMenuGrants(env.ctx, testActor, role.ID, first))

	got, err := svc.GetMenuGrants(env.ctx, role.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, first, got)

	second := []MenuGrant{{MenuID: menus[2].ID, CanView: true, CanDelete: true}}
	require.NoError(t, svc.ReplaceMenuGrants(env.ctx, testActor, role.ID, second))

	got, err = svc.GetMenuGrants(env.ctx, role.ID)
	require.NoError(t, err)
	assert.Equal(t, second, got)
}

func TestReplaceMenuGrants_EmptyListClearsGrants(t *testing.T) {
	env, svc, role, menus := newGrantEnv(t)
	require.NoError(t, svc.ReplaceMenuGrants(env.ctx, testActor, role.ID, []MenuGrant{{MenuID: menus[0].ID, CanView: true}}))

	require.NoError(t, svc.ReplaceMenuGrants(env.ctx, testActor, role.ID, []MenuGrant{}))

	got, err := svc.GetMenuGrants(env.ctx, role.ID)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReplaceMenuGrants_OtherRolesUntouched(t *testing.T) {
	env, svc, role, menus := newGrantEnv(t)
	other := env.createRole(t, "sales_person", true)
	require.NoError(t, svc.ReplaceMenuGrants(env.ctx, testActor, other.ID, []MenuGrant{{MenuID: menus[0].ID, CanView: true}}))

	require.NoError(t, svc.ReplaceMenuGrants(env.ctx, testActor, role.ID, []MenuGrant{}))

	got, err := svc.GetMenuGrants(env.ctx, other.ID)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestReplaceMenuGrants_AtomicOnInsertFailure(t *testing.T) {
	env, svc, role, menus := newGrantEnv(t)
	original := []MenuGrant{{MenuID: menus[0].ID, CanView: true, CanUpdate: true}}
	require.NoError(t, svc.ReplaceMenuGrants(env.ctx, testActor, role.ID, original))

	// 删除之后、插入之前注入失败
	require.NoError(t, env.db.Callback().Create().Before("gorm:create").Register("test:fail_menu_grants", func(tx *gorm.DB) {
		if tx.Statement.Schema != nil && tx.Statement.Schema.Table == "role_menu_permissions" {
			_ = tx.AddError(errors.New("injected failure"))
		}
	}))

	err := svc.ReplaceMenuGrants(env.ctx, testActor, role.ID, []MenuGrant{{MenuID: menus[1].ID, CanView: true}})
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.ErrInternal))

	got, err := svc.GetMenuGrants(env.ctx, role.ID)
	require.NoError(t, err)
	assert.Equal(t, original, got)
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.GrantReplacementsTotal.WithLabelValues("menu", "failed")))

	// 失败的替换不写审计
	var updates int64
	env.db.Model(&models.PermissionAuditLog{}).Where("action = ?", models.AuditActionUpdate).Count(&updates)
	assert.Equal(t, int64(1), updates)
}

func TestReplaceMenuGrants_Validation(t *testing.T) {
	env, svc, role, menus := newGrantEnv(t)

	err := svc.ReplaceMenuGrants(env.ctx, testActor, 999, []MenuGrant{})
	assert.True(t, apperrors.IsKind(err, apperrors.ErrNotFound))

	err = svc.ReplaceMenuGrants(env.ctx, testActor, role.ID, []MenuGrant{{MenuID: 999, CanView: true}})
	assert.True(t, apperrors.IsKind(err, apperrors.ErrValidation))

	err = svc.ReplaceMenuGrants(env.ctx, testActor, role.ID, []MenuGrant{
		{MenuID: menus[0].ID, CanView: true},
		{MenuID: menus[0].ID, CanCreate: true},
	})
	assert.True(t, apperrors.IsKind(err, apperrors.ErrValidation))

	assert.Empty(t, env.auditLogs(t))
}

func TestReplaceMenuGrants_AuditSnapshots(t *testing.T) {
	env, svc, role, menus := newGrantEnv(t)
	before := []MenuGrant{{MenuID: menus[0].ID, CanView: true}}
	after := []MenuGrant{{MenuID: menus[1].ID, CanView: true, CanCreate: true}}
	require.NoError(t, svc.ReplaceMenuGrants(env.ctx, testActor, role.ID, before))
	require.NoError(t, svc.ReplaceMenuGrants(env.ctx, testActor, role.ID, after))

	logs := env.auditLogs(t)
	require.Len(t, logs, 2)
	last := logs[1]
	assert.Equal(t, models.AuditActionUpdate, last.Action)
	assert.Equal(t, models.ResourceRoleMenuPermission, last.ResourceType)
	assert.Equal(t, role.ID, last.ResourceID)

	var gotBefore, gotAfter []MenuGrant
	require.NoError(t, json.Unmarshal(last.BeforeData, &gotBefore))
	require.NoError(t, json.Unmarshal(last.AfterData, &gotAfter))
	assert.Equal(t, before, gotBefore)
	assert.Equal(t, after, gotAfter)
}

func TestReplaceMenuGrants_AuditFailureKeepsGrants(t *testing.T) {
	env, svc, role, menus := newGrantEnv(t)
	require.NoError(t, env.db.Migrator().DropTable(&models.PermissionAuditLog{}))

	grants := []MenuGrant{{MenuID: menus[0].ID, CanView: true}}
	require.NoError(t, svc.ReplaceMenuGrants(env.ctx, testActor, role.ID, grants))

	got, err := svc.GetMenuGrants(env.ctx, role.ID)
	require.NoError(t, err)
	assert.Equal(t, grants, got)
}

func TestReplaceButtonGrants(t *testing.T) {
	env, svc, role, menus := newGrantEnv(t)
	b1 := env.createButton(t, "get_units", menus[0].ID, models.ButtonStatusActive)
	b2 := env.createButton(t, "post_units", menus[0].ID, models.ButtonStatusActive)

	grants := []ButtonGrant{{ButtonID: b1.ID, CanOperate: true}, {ButtonID: b2.ID, CanOperate: false}}
	require.NoError(t, svc.ReplaceButtonGrants(env.ctx, testActor, role.ID, grants))

	got, err := svc.GetButtonGrants(env.ctx, role.ID)
	require.NoError(t, err)
	assert.Equal(t, grants, got)

	require.NoError(t, svc.ReplaceButtonGrants(env.ctx, testActor, role.ID, nil))
	got, err = svc.GetButtonGrants(env.ctx, role.ID)
	require.NoError(t, err)
	assert.Empty(t, got)

	err = svc.ReplaceButtonGrants(env.ctx, testActor, role.ID, []ButtonGrant{{ButtonID: 12345, CanOperate: true}})
	assert.True(t, apperrors.IsKind(err, apperrors.ErrValidation))

	logs := env.auditLogs(t)
	require.Len(t, logs, 2)
	assert.Equal(t, models.ResourceRoleButtonPermission, logs[0].ResourceType)
}

func TestGetMenuGrants_RoleNotFound(t *testing.T) {
	env, svc, _, _ := newGrantEnv(t)
	_, err := svc.GetMenuGrants(env.ctx, 404)
	assert.True(t, apperrors.IsKind(err, apperrors.ErrNotFound))
}

// postgres 下替换在事务中加行锁，插入失败时整体回滚
func TestReplaceMenuGrants_PostgresRollback(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	m := metrics.NewNop()
	svc := NewGrantService(db, NewAuditService(db, m), m)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "menus"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`SELECT count\(\*\) FROM "roles"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`SELECT \* FROM "role_menu_permissions" WHERE role_id = \$1`).
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"id", "role_id", "menu_id", "can_view"}).AddRow(1, 3, 4, true))
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT "id" FROM "roles" .* FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))
	mock.ExpectExec(`DELETE FROM "role_menu_permissions" WHERE role_id = \$1`).
		WithArgs(3).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO "role_menu_permissions"`).
		WillReturnError(errors.New("canceling statement due to statement timeout"))
	mock.ExpectRollback()

	err = svc.ReplaceMenuGrants(context.Background(), testActor, 3, []MenuGrant{{MenuID: 5, CanView: true}})
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.ErrInternal))
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GrantReplacementsTotal.WithLabelValues("menu", "failed")))
}

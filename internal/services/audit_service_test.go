package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"salesadmin/internal/models"
	apperrors "salesadmin/pkg/errors"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedAuditLog(t *testing.T, env *testEnv, action string, createdAt time.Time) {
	t.Helper()
	log := &models.PermissionAuditLog{
		UserID:       1,
		Action:       action,
		ResourceType: models.ResourceRole,
		ResourceID:   1,
		Description:  fmt.Sprintf("%s role", action),
		CreatedAt:    createdAt,
	}
	require.NoError(t, env.db.Create(log).Error)
}

func TestAudit_RecordsEntryAfterMutation(t *testing.T) {
	env := newTestEnv(t)

	err := env.audit.Audit(env.ctx, testActor, func() (*AuditEntry, error) {
		return &AuditEntry{
			Action:       models.AuditActionUpdate,
			ResourceType: models.ResourceRole,
			ResourceID:   7,
			Before:       map[string]string{"name": "old"},
			After:        map[string]string{"name": "new"},
			Description:  "renamed role",
		}, nil
	})
	require.NoError(t, err)

	logs := env.auditLogs(t)
	require.Len(t, logs, 1)
	assert.Equal(t, uint(1), logs[0].UserID)
	assert.Equal(t, models.AuditActionUpdate, logs[0].Action)
	assert.Equal(t, uint(7), logs[0].ResourceID)
	assert.Equal(t, "10.0.0.1", logs[0].IPAddress)
	assert.JSONEq(t, `{"name":"old"}`, string(logs[0].BeforeData))
	assert.JSONEq(t, `{"name":"new"}`, string(logs[0].AfterData))
}

func TestAudit_MutationErrorSkipsEntry(t *testing.T) {
	env := newTestEnv(t)

	err := env.audit.Audit(env.ctx, testActor, func() (*AuditEntry, error) {
		return nil, apperrors.Validation("bad input")
	})
	assert.True(t, apperrors.IsKind(err, apperrors.ErrValidation))
	assert.Empty(t, env.auditLogs(t))
}

func TestAudit_WriteFailureIsSwallowed(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.db.Migrator().DropTable(&models.PermissionAuditLog{}))

	mutated := false
	err := env.audit.Audit(env.ctx, testActor, func() (*AuditEntry, error) {
		mutated = true
		return &AuditEntry{Action: models.AuditActionCreate, ResourceType: models.ResourceMenu}, nil
	})
	require.NoError(t, err)
	assert.True(t, mutated)
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.AuditWritesTotal.WithLabelValues("failed")))
}

func TestAudit_NilSnapshotsStoredAsNull(t *testing.T) {
	env := newTestEnv(t)

	env.audit.Record(env.ctx, testActor, &AuditEntry{
		Action:       models.AuditActionCreate,
		ResourceType: models.ResourceMenu,
		After:        map[string]int{"id": 3},
	})

	logs := env.auditLogs(t)
	require.Len(t, logs, 1)
	assert.Nil(t, logs[0].BeforeData)
	assert.NotNil(t, logs[0].AfterData)
}

func TestQuery_FilterByActionKeepsStats(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now()
	seedAuditLog(t, env, models.AuditActionCreate, now)
	seedAuditLog(t, env, models.AuditActionUpdate, now)

	page, err := env.audit.Query(env.ctx, AuditLogQuery{Action: models.AuditActionCreate, Page: 1, PageSize: 10})
	require.NoError(t, err)

	require.Len(t, page.Logs, 1)
	assert.Equal(t, models.AuditActionCreate, page.Logs[0].Action)
	assert.Equal(t, int64(1), page.Total)
	assert.Equal(t, map[string]int64{models.AuditActionCreate: 1, models.AuditActionUpdate: 1}, page.Stats)
}

func TestQuery_Filters(t *testing.T) {
	env := newTestEnv(t)
	old := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	seedAuditLog(t, env, models.AuditActionCreate, old)
	seedAuditLog(t, env, models.AuditActionDelete, old.AddDate(0, 1, 0))
	require.NoError(t, env.db.Create(&models.PermissionAuditLog{
		UserID: 9, Action: models.AuditActionUpdate, ResourceType: models.ResourceMenu,
		Description: "moved menu", CreatedAt: old.AddDate(0, 2, 0),
	}).Error)

	t.Run("resource type", func(t *testing.T) {
		page, err := env.audit.Query(env.ctx, AuditLogQuery{ResourceType: models.ResourceMenu, Page: 1, PageSize: 10})
		require.NoError(t, err)
		assert.Equal(t, int64(1), page.Total)
	})

	t.Run("user", func(t *testing.T) {
		page, err := env.audit.Query(env.ctx, AuditLogQuery{UserID: uintPtr(9), Page: 1, PageSize: 10})
		require.NoError(t, err)
		assert.Equal(t, int64(1), page.Total)
		assert.Equal(t, map[string]int64{models.AuditActionUpdate: 1}, page.Stats)
	})

	t.Run("date range", func(t *testing.T) {
		start := old.AddDate(0, 0, 15)
		end := old.AddDate(0, 1, 15)
		page, err := env.audit.Query(env.ctx, AuditLogQuery{StartDate: &start, EndDate: &end, Page: 1, PageSize: 10})
		require.NoError(t, err)
		require.Len(t, page.Logs, 1)
		assert.Equal(t, models.AuditActionDelete, page.Logs[0].Action)
	})

	t.Run("search", func(t *testing.T) {
		page, err := env.audit.Query(env.ctx, AuditLogQuery{Search: "moved", Page: 1, PageSize: 10})
		require.NoError(t, err)
		assert.Equal(t, int64(1), page.Total)
	})

	t.Run("pagination", func(t *testing.T) {
		page, err := env.audit.Query(env.ctx, AuditLogQuery{Page: 2, PageSize: 2})
		require.NoError(t, err)
		assert.Equal(t, int64(3), page.Total)
		require.Len(t, page.Logs, 1)
		assert.Equal(t, models.AuditActionCreate, page.Logs[0].Action)
	})

	t.Run("invalid action", func(t *testing.T) {
		_, err := env.audit.Query(env.ctx, AuditLogQuery{Action: "PURGE", Page: 1, PageSize: 10})
		assert.True(t, apperrors.IsKind(err, apperrors.ErrValidation))
	})
}

func TestQuery_SearchIsLiteral(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now()
	for _, description := range []string{"granted 100% of menus", "granted 1000 menus", "role sales_lead", "role salesXlead"} {
		require.NoError(t, env.db.Create(&models.PermissionAuditLog{
			Action: models.AuditActionUpdate, ResourceType: models.ResourceRole,
			Description: description, CreatedAt: now,
		}).Error)
	}

	tests := []struct {
		search string
		want   string
	}{
		{"100%", "granted 100% of menus"},
		{"sales_lead", "role sales_lead"},
	}
	for _, tt := range tests {
		page, err := env.audit.Query(env.ctx, AuditLogQuery{Search: tt.search, Page: 1, PageSize: 10})
		require.NoError(t, err)
		require.Len(t, page.Logs, 1, tt.search)
		assert.Equal(t, tt.want, page.Logs[0].Description)
	}

	page, err := env.audit.Query(env.ctx, AuditLogQuery{Search: `\`, Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Zero(t, page.Total)
}

func TestContainsPattern(t *testing.T) {
	assert.Equal(t, "%sales%", containsPattern("sales"))
	assert.Equal(t, `%100\%%`, containsPattern("100%"))
	assert.Equal(t, `%a\_b%`, containsPattern("a_b"))
	assert.Equal(t, `%c:\\%`, containsPattern(`c:\`))
}

func TestCleanup_DefaultWindowNothingToDelete(t *testing.T) {
	env := newTestEnv(t)
	seedAuditLog(t, env, models.AuditActionCreate, time.Now().AddDate(0, 0, -10))

	result, err := env.audit.Cleanup(env.ctx, testActor, CleanupParams{})
	require.NoError(t, err)

	assert.Equal(t, int64(0), result.DeletedCount)
	assert.Equal(t, "no logs needed cleanup", result.Message)

	var cleanups int64
	env.db.Model(&models.PermissionAuditLog{}).Where("action = ?", models.AuditActionCleanup).Count(&cleanups)
	assert.Equal(t, int64(0), cleanups)
}

func TestCleanup_ExplicitCutoff(t *testing.T) {
	env := newTestEnv(t)
	cutoff := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 100; i++ {
		seedAuditLog(t, env, models.AuditActionUpdate, cutoff.Add(-time.Duration(i+1)*time.Hour))
	}
	seedAuditLog(t, env, models.AuditActionUpdate, cutoff.Add(time.Hour))

	result, err := env.audit.Cleanup(env.ctx, testActor, CleanupParams{BeforeDate: &cutoff})
	require.NoError(t, err)
	assert.Equal(t, int64(100), result.DeletedCount)

	var cleanups []models.PermissionAuditLog
	require.NoError(t, env.db.Where("action = ?", models.AuditActionCleanup).Find(&cleanups).Error)
	require.Len(t, cleanups, 1)
	assert.Contains(t, cleanups[0].Description, "100")
	assert.Equal(t, uint(0), cleanups[0].ResourceID)

	var remaining int64
	env.db.Model(&models.PermissionAuditLog{}).Count(&remaining)
	assert.Equal(t, int64(2), remaining)
}

func TestCleanup_BeforeDateTakesPriority(t *testing.T) {
	env := newTestEnv(t)
	seedAuditLog(t, env, models.AuditActionCreate, time.Now().AddDate(0, 0, -5))

	future := time.Now().Add(time.Hour)
	keep := 365
	result, err := env.audit.Cleanup(env.ctx, testActor, CleanupParams{BeforeDate: &future, KeepDays: &keep})
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.DeletedCount)
}

func TestCleanup_KeepDays(t *testing.T) {
	env := newTestEnv(t)
	seedAuditLog(t, env, models.AuditActionCreate, time.Now().AddDate(0, 0, -40))
	seedAuditLog(t, env, models.AuditActionCreate, time.Now().AddDate(0, 0, -5))

	keep := 30
	result, err := env.audit.Cleanup(env.ctx, testActor, CleanupParams{KeepDays: &keep})
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.DeletedCount)

	negative := -1
	_, err = env.audit.Cleanup(env.ctx, testActor, CleanupParams{KeepDays: &negative})
	assert.True(t, apperrors.IsKind(err, apperrors.ErrValidation))
}

func TestCleanup_SummaryEntrySnapshot(t *testing.T) {
	env := newTestEnv(t)
	seedAuditLog(t, env, models.AuditActionCreate, time.Now().AddDate(0, 0, -200))

	_, err := env.audit.Cleanup(env.ctx, testActor, CleanupParams{})
	require.NoError(t, err)

	var entry models.PermissionAuditLog
	require.NoError(t, env.db.Where("action = ?", models.AuditActionCleanup).First(&entry).Error)
	var after map[string]interface{}
	require.NoError(t, json.Unmarshal(entry.AfterData, &after))
	assert.Equal(t, float64(1), after["deleted_count"])
}

func TestGetByID_NotFound(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.audit.GetByID(env.ctx, 42)
	assert.True(t, errors.Is(err, apperrors.NotFound("")))
}

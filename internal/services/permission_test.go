package services

import (
	"testing"

	"salesadmin/internal/models"
	apperrors "salesadmin/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPermissionService_ForUser(t *testing.T) {
	env := newTestEnv(t)
	svc := NewPermissionService(env.db)

	role := env.createRole(t, models.RoleSalesPerson, true)
	sales := env.createMenu(t, "sales", nil)
	units := env.createMenu(t, "units", &sales.ID)
	env.createMenu(t, "parking", &sales.ID)
	hidden := &models.Menu{Name: "hidden", DisplayName: "hidden", Path: "/hidden", IsVisible: false}
	require.NoError(t, env.db.Create(hidden).Error)

	view := env.createButton(t, "get_units", units.ID, models.ButtonStatusActive)
	absent := env.createButton(t, "delete_units_id", units.ID, models.ButtonStatusAbsent)
	env.createButton(t, "post_units", units.ID, models.ButtonStatusActive)

	require.NoError(t, env.db.Create(&[]models.RoleMenuPermission{
		{RoleID: role.ID, MenuID: units.ID, CanView: true},
		{RoleID: role.ID, MenuID: hidden.ID, CanView: true},
	}).Error)
	require.NoError(t, env.db.Create(&[]models.RoleButtonPermission{
		{RoleID: role.ID, ButtonID: view.ID, CanOperate: true},
		{RoleID: role.ID, ButtonID: absent.ID, CanOperate: true},
	}).Error)

	user := env.createUser(t, "alice", models.RoleSalesPerson, true)
	perms, err := svc.ForUser(env.ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, perms.IsSuperAdmin)
	assert.Equal(t, []string{"get_units"}, perms.Buttons)

	// 授权的子菜单带出父菜单，隐藏菜单不返回
	require.Len(t, perms.Menus, 1)
	assert.Equal(t, "sales", perms.Menus[0].Name)
	require.Len(t, perms.Menus[0].Children, 1)
	assert.Equal(t, "units", perms.Menus[0].Children[0].Name)
}

func TestPermissionService_SuperAdmin(t *testing.T) {
	env := newTestEnv(t)
	svc := NewPermissionService(env.db)

	menu := env.createMenu(t, "units", nil)
	env.createButton(t, "get_units", menu.ID, models.ButtonStatusActive)
	env.createButton(t, "post_units", menu.ID, models.ButtonStatusInactive)
	root := env.createUser(t, "root", models.RoleSuperAdmin, true)

	perms, err := svc.ForUser(env.ctx, root.ID)
	require.NoError(t, err)
	assert.True(t, perms.IsSuperAdmin)
	assert.Equal(t, []string{"get_units"}, perms.Buttons)
	assert.Len(t, perms.Menus, 1)
}

func TestPermissionService_NoPermissions(t *testing.T) {
	env := newTestEnv(t)
	svc := NewPermissionService(env.db)

	env.createRole(t, "suspended", false)
	menu := env.createMenu(t, "units", nil)
	env.createButton(t, "get_units", menu.ID, models.ButtonStatusActive)

	users := []*models.User{
		env.createUser(t, "disabled_root", models.RoleSuperAdmin, false),
		env.createUser(t, "suspended_user", "suspended", true),
		env.createUser(t, "orphan", "ghost", true),
	}
	for _, user := range users {
		perms, err := svc.ForUser(env.ctx, user.ID)
		require.NoError(t, err)
		assert.Empty(t, perms.Menus, user.Username)
		assert.NotNil(t, perms.Buttons)
		assert.Empty(t, perms.Buttons, user.Username)
	}

	_, err := svc.ForUser(env.ctx, 404)
	assert.True(t, apperrors.IsKind(err, apperrors.ErrNotFound))
}

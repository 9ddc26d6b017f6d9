package database_test

import (
	"testing"

	"salesadmin/internal/database"
	"salesadmin/internal/database/dbtest"
	"salesadmin/internal/models"
	"salesadmin/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeed_Idempotent(t *testing.T) {
	db := dbtest.New(t)
	admin := config.AdminConfig{Username: "root", Password: "Passw0rd!", Email: "root@example.com"}

	require.NoError(t, database.Seed(db, admin))
	require.NoError(t, database.Seed(db, admin))

	var roleCount, userCount, menuCount int64
	db.Model(&models.Role{}).Count(&roleCount)
	db.Model(&models.User{}).Count(&userCount)
	db.Model(&models.Menu{}).Count(&menuCount)

	assert.Equal(t, int64(len(models.SystemRoles)), roleCount)
	assert.Equal(t, int64(1), userCount)
	assert.Equal(t, int64(6), menuCount)

	var user models.User
	require.NoError(t, db.Where("username = ?", "root").First(&user).Error)
	assert.Equal(t, models.RoleSuperAdmin, user.Role)
	assert.True(t, user.IsActive)
	assert.True(t, user.CheckPassword("Passw0rd!"))

	var child models.Menu
	require.NoError(t, db.Where("name = ?", "system_roles").First(&child).Error)
	require.NotNil(t, child.ParentID)
}

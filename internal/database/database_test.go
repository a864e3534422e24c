package database

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/javajoker/storefront-backend/internal/config"
	"github.com/javajoker/storefront-backend/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, RunMigrations(db))
	return db
}

func testConfig() *config.Config {
	return &config.Config{
		Admin:  config.AdminConfig{Email: "Admin@Example.com", Password: "Admin123!@#"},
		Store:  config.StoreConfig{Name: "Test Shop", Currency: "USD", TaxRate: 8.25, FlatShippingRate: 5, FreeShippingThreshold: 50, LowStockThreshold: 3},
		Backup: config.BackupConfig{Retention: 5},
	}
}

func TestSeedInitialDataIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	cfg := testConfig()

	require.NoError(t, SeedInitialData(db, cfg))
	require.NoError(t, SeedInitialData(db, cfg))

	var permCount int64
	db.Model(&models.Permission{}).Count(&permCount)
	assert.Equal(t, int64(len(models.AllPermissionSlugs())), permCount)

	var admins []models.User
	require.NoError(t, db.Preload("Roles").Where("user_type = ?", models.UserTypeStaff).Find(&admins).Error)
	require.Len(t, admins, 1)
	assert.Equal(t, "admin@example.com", admins[0].Email)
	require.Len(t, admins[0].Roles, 1)
	assert.Equal(t, models.RoleSuperAdmin, admins[0].Roles[0].Name)

	var support models.Role
	require.NoError(t, db.Preload("Permissions").Where("name = ?", "support").First(&support).Error)
	assert.True(t, support.HasPermission(models.PermReturnsWrite))
	assert.False(t, support.HasPermission(models.PermBackupsWrite))

	var manager models.Role
	require.NoError(t, db.Preload("Permissions").Where("name = ?", "manager").First(&manager).Error)
	assert.True(t, manager.HasPermission(models.PermOrdersWrite))
	assert.False(t, manager.HasPermission(models.PermRolesWrite))

	var tax models.Setting
	require.NoError(t, db.Where(&models.Setting{Key: models.SettingTaxRate}).First(&tax).Error)
	assert.Equal(t, "8.25", tax.Value["value"])

	var settingCount int64
	db.Model(&models.Setting{}).Count(&settingCount)
	assert.Equal(t, int64(len(models.SettingDefinitions)), settingCount)
}

func TestWithTransactionRollsBack(t *testing.T) {
	db := setupTestDB(t)

	err := WithTransaction(db, func(tx *gorm.DB) error {
		if err := tx.Create(&models.Category{Name: "Mugs", Slug: "mugs"}).Error; err != nil {
			return err
		}
		return errors.New("abort")
	})
	assert.EqualError(t, err, "abort")

	var count int64
	db.Model(&models.Category{}).Count(&count)
	assert.Zero(t, count)
}

func TestSnapshotTablesExistAfterMigration(t *testing.T) {
	db := setupTestDB(t)
	for _, table := range SnapshotTables {
		assert.True(t, db.Migrator().HasTable(table), table)
	}
}

// internal/database/seed.go
package database

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/storefront-backend/internal/config"
	"github.com/javajoker/storefront-backend/internal/models"
)

type roleSeed struct {
	name        string
	description string
	permissions func(slug string) bool
}

var systemRoles = []roleSeed{
	{
		name:        models.RoleSuperAdmin,
		description: "Full access to every admin operation",
		permissions: func(string) bool { return true },
	},
	{
		name:        "manager",
		description: "Runs the catalog, orders and fulfillment",
		permissions: func(slug string) bool {
			switch {
			case strings.HasPrefix(slug, "roles."), strings.HasPrefix(slug, "backups."),
				slug == models.PermUsersWrite, slug == models.PermSettingsWrite:
				return false
			}
			return true
		},
	},
	{
		name:        "support",
		description: "Handles customers, returns and reviews",
		permissions: func(slug string) bool {
			switch slug {
			case models.PermDashboardRead, models.PermNotificationsRead,
				models.PermOrdersRead, models.PermCustomersRead, models.PermProductsRead,
				models.PermShipmentsRead, models.PermShipmentsWrite,
				models.PermReturnsRead, models.PermReturnsWrite,
				models.PermReviewsRead, models.PermReviewsWrite:
				return true
			}
			return false
		},
	},
}

// SeedInitialData creates the permission catalog, system roles, a first
// staff account and default store settings. It is safe to run repeatedly.
func SeedInitialData(db *gorm.DB, cfg *config.Config) error {
	logrus.Info("Seeding initial data...")

	permissions, err := seedPermissions(db)
	if err != nil {
		return err
	}

	if err := seedRoles(db, permissions); err != nil {
		return err
	}

	if err := seedAdmin(db, cfg.Admin); err != nil {
		return err
	}

	if err := seedSettings(db, cfg.Store, cfg.Backup); err != nil {
		return err
	}

	logrus.Info("Initial data seeding completed")
	return nil
}

func seedPermissions(db *gorm.DB) ([]models.Permission, error) {
	var permissions []models.Permission
	for _, slug := range models.AllPermissionSlugs() {
		resource := strings.SplitN(slug, ".", 2)[0]
		perm := models.Permission{Slug: slug, Resource: resource, Description: permissionDescription(slug)}
		if err := db.Where(models.Permission{Slug: slug}).FirstOrCreate(&perm).Error; err != nil {
			return nil, fmt.Errorf("failed to seed permission %s: %w", slug, err)
		}
		permissions = append(permissions, perm)
	}
	return permissions, nil
}

func permissionDescription(slug string) string {
	parts := strings.SplitN(slug, ".", 2)
	resource := strings.ReplaceAll(parts[0], "_", " ")
	if len(parts) == 2 && parts[1] == "write" {
		return "Create, update and delete " + resource
	}
	return "View " + resource
}

func seedRoles(db *gorm.DB, permissions []models.Permission) error {
	for _, seed := range systemRoles {
		role := models.Role{Name: seed.name}
		if err := db.Where(models.Role{Name: seed.name}).
			Attrs(models.Role{Description: seed.description, IsSystem: true}).
			FirstOrCreate(&role).Error; err != nil {
			return fmt.Errorf("failed to seed role %s: %w", seed.name, err)
		}

		var granted []models.Permission
		for _, p := range permissions {
			if seed.permissions(p.Slug) {
				granted = append(granted, p)
			}
		}
		if err := db.Model(&role).Association("Permissions").Replace(granted); err != nil {
			return fmt.Errorf("failed to grant permissions to %s: %w", seed.name, err)
		}
	}
	return nil
}

func seedAdmin(db *gorm.DB, cfg config.AdminConfig) error {
	var staffCount int64
	db.Model(&models.User{}).Where("user_type = ?", models.UserTypeStaff).Count(&staffCount)
	if staffCount > 0 {
		return nil
	}

	var superAdmin models.Role
	if err := db.Where("name = ?", models.RoleSuperAdmin).First(&superAdmin).Error; err != nil {
		return fmt.Errorf("super admin role missing: %w", err)
	}

	admin := &models.User{
		Email:     strings.ToLower(cfg.Email),
		FirstName: "System",
		LastName:  "Administrator",
		UserType:  models.UserTypeStaff,
		Status:    models.UserStatusActive,
		Roles:     []models.Role{superAdmin},
	}
	if err := admin.SetPassword(cfg.Password); err != nil {
		return fmt.Errorf("failed to set admin password: %w", err)
	}
	if err := db.Create(admin).Error; err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}

	logrus.WithField("email", admin.Email).Info("Default admin user created")
	return nil
}

func seedSettings(db *gorm.DB, store config.StoreConfig, backup config.BackupConfig) error {
	defaults := map[string]interface{}{
		models.SettingStoreName:             store.Name,
		models.SettingCurrency:              store.Currency,
		models.SettingTaxRate:               fmt.Sprintf("%.2f", store.TaxRate),
		models.SettingFlatShippingRate:      fmt.Sprintf("%.2f", store.FlatShippingRate),
		models.SettingFreeShippingThreshold: fmt.Sprintf("%.2f", store.FreeShippingThreshold),
		models.SettingLowStockThreshold:     store.LowStockThreshold,
		models.SettingBackupRetention:       backup.Retention,
	}

	for _, def := range models.SettingDefinitions {
		var count int64
		db.Model(&models.Setting{}).Where(&models.Setting{Key: def.Key}).Count(&count)
		if count > 0 {
			continue
		}

		setting := models.Setting{
			Key:         def.Key,
			Value:       models.JSONB{"value": defaults[def.Key]},
			DataType:    def.DataType,
			Description: def.Description,
		}
		if err := db.Create(&setting).Error; err != nil {
			logrus.WithError(err).WithField("key", def.Key).Warn("Failed to create setting")
		}
	}
	return nil
}

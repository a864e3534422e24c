// internal/models/rbac.go
package models

type Permission struct {
	BaseModel
	Slug        string `json:"slug" gorm:"uniqueIndex;size:100;not null"`
	Resource    string `json:"resource" gorm:"size:50;not null;index"`
	Description string `json:"description" gorm:"type:text"`
}

type Role struct {
	BaseModel
	Name        string `json:"name" gorm:"uniqueIndex;size:100;not null"`
	Description string `json:"description" gorm:"type:text"`
	IsSystem    bool   `json:"is_system" gorm:"default:false"`

	Permissions []Permission `json:"permissions,omitempty" gorm:"many2many:role_permissions;"`
}

// HasPermission reports whether the role grants slug. Permissions must be loaded.
func (r *Role) HasPermission(slug string) bool {
	for _, p := range r.Permissions {
		if p.Slug == slug {
			return true
		}
	}
	return false
}

const RoleSuperAdmin = "super_admin"

// Permission groups and their read/write slugs.
var PermissionResources = []string{
	"products", "categories", "discounts", "orders", "shipments", "returns",
	"refunds", "reviews", "customers", "users", "roles", "settings",
	"backups", "audit_logs",
}

const (
	PermDashboardRead     = "dashboard.read"
	PermNotificationsRead = "notifications.read"

	PermProductsRead    = "products.read"
	PermProductsWrite   = "products.write"
	PermCategoriesRead  = "categories.read"
	PermCategoriesWrite = "categories.write"
	PermDiscountsRead   = "discounts.read"
	PermDiscountsWrite  = "discounts.write"
	PermOrdersRead      = "orders.read"
	PermOrdersWrite     = "orders.write"
	PermShipmentsRead   = "shipments.read"
	PermShipmentsWrite  = "shipments.write"
	PermReturnsRead     = "returns.read"
	PermReturnsWrite    = "returns.write"
	PermRefundsRead     = "refunds.read"
	PermRefundsWrite    = "refunds.write"
	PermReviewsRead     = "reviews.read"
	PermReviewsWrite    = "reviews.write"
	PermCustomersRead   = "customers.read"
	PermCustomersWrite  = "customers.write"
	PermUsersRead       = "users.read"
	PermUsersWrite      = "users.write"
	PermRolesRead       = "roles.read"
	PermRolesWrite      = "roles.write"
	PermSettingsRead    = "settings.read"
	PermSettingsWrite   = "settings.write"
	PermBackupsRead     = "backups.read"
	PermBackupsWrite    = "backups.write"
	PermAuditLogsRead   = "audit_logs.read"
	PermAuditLogsWrite  = "audit_logs.write"
)

// AllPermissionSlugs lists the fixed permission catalog.
func AllPermissionSlugs() []string {
	slugs := []string{PermDashboardRead, PermNotificationsRead}
	for _, res := range PermissionResources {
		slugs = append(slugs, res+".read", res+".write")
	}
	return slugs
}

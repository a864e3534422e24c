// internal/services/authorization_service.go
package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/javajoker/storefront-backend/internal/models"
	"github.com/javajoker/storefront-backend/internal/utils"
)

// AuthorizationService manages roles and answers permission checks.
type AuthorizationService struct {
	db    *gorm.DB
	audit *AuditService
}

type RoleRequest struct {
	Name        string   `json:"name" validate:"required,min=2,max=100"`
	Description string   `json:"description" validate:"max=1000"`
	Permissions []string `json:"permissions" validate:"dive,required"`
}

type AssignRolesRequest struct {
	RoleIDs []uuid.UUID `json:"role_ids" validate:"dive,required"`
}

func NewAuthorizationService(db *gorm.DB, audit *AuditService) *AuthorizationService {
	return &AuthorizationService{db: db, audit: audit}
}

// HasPermission reports whether the active staff user holds slug through any
// role. super_admin holds every permission.
func (s *AuthorizationService) HasPermission(userID uuid.UUID, slug string) (bool, error) {
	perms, err := s.UserPermissions(userID)
	if err != nil {
		return false, err
	}
	for _, p := range perms {
		if p == slug || p == "*" {
			return true, nil
		}
	}
	return false, nil
}

// UserPermissions lists the slugs granted to a user; "*" stands for super_admin.
func (s *AuthorizationService) UserPermissions(userID uuid.UUID) ([]string, error) {
	var user models.User
	if err := s.db.Preload("Roles.Permissions").First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load user roles: %w", err)
	}
	if !user.IsStaff() || user.Status != models.UserStatusActive {
		return nil, nil
	}

	seen := map[string]bool{}
	var out []string
	for _, role := range user.Roles {
		if role.Name == models.RoleSuperAdmin {
			return []string{"*"}, nil
		}
		for _, p := range role.Permissions {
			if !seen[p.Slug] {
				seen[p.Slug] = true
				out = append(out, p.Slug)
			}
		}
	}
	return out, nil
}

func (s *AuthorizationService) ListPermissions() ([]models.Permission, error) {
	var perms []models.Permission
	if err := s.db.Order("resource asc").Order("slug asc").Find(&perms).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch permissions: %w", err)
	}
	return perms, nil
}

func (s *AuthorizationService) ListRoles() ([]models.Role, error) {
	var roles []models.Role
	if err := s.db.Preload("Permissions").Order("is_system desc").Order("name asc").Find(&roles).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch roles: %w", err)
	}
	return roles, nil
}

func (s *AuthorizationService) GetRole(id uuid.UUID) (*models.Role, error) {
	var role models.Role
	if err := s.db.Preload("Permissions").First(&role, "id = ?", id).Error; err != nil {
		return nil, findOrNotFound(err, "Role")
	}
	return &role, nil
}

func (s *AuthorizationService) resolvePermissions(tx *gorm.DB, slugs []string) ([]models.Permission, error) {
	if len(slugs) == 0 {
		return []models.Permission{}, nil
	}
	var perms []models.Permission
	if err := tx.Where("slug IN ?", slugs).Find(&perms).Error; err != nil {
		return nil, fmt.Errorf("failed to load permissions: %w", err)
	}
	if len(perms) != len(uniqueStrings(slugs)) {
		known := map[string]bool{}
		for _, p := range perms {
			known[p.Slug] = true
		}
		var unknown []string
		for _, slug := range slugs {
			if !known[slug] {
				unknown = append(unknown, slug)
			}
		}
		return nil, utils.NewValidationError("unknown permissions: "+strings.Join(unknown, ", "), nil)
	}
	return perms, nil
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0:0]
	for _, v := range in {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

func (s *AuthorizationService) roleNameTaken(tx *gorm.DB, name string, exclude *uuid.UUID) (bool, error) {
	query := tx.Unscoped().Model(&models.Role{}).Where("LOWER(name) = ?", strings.ToLower(name))
	if exclude != nil {
		query = query.Where("id <> ?", *exclude)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check role name: %w", err)
	}
	return count > 0, nil
}

func (s *AuthorizationService) CreateRole(actor Actor, req *RoleRequest) (*models.Role, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	role := &models.Role{Name: strings.TrimSpace(req.Name), Description: req.Description}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		taken, err := s.roleNameTaken(tx, role.Name, nil)
		if err != nil {
			return err
		}
		if taken {
			return utils.NewConflictError("role name already exists")
		}
		perms, err := s.resolvePermissions(tx, req.Permissions)
		if err != nil {
			return err
		}
		role.Permissions = perms
		if err := tx.Create(role).Error; err != nil {
			return fmt.Errorf("failed to create role: %w", err)
		}
		return s.audit.RecordTx(tx, actor, AuditEntry{
			Action:       "role.created",
			ResourceType: "role",
			ResourceID:   &role.ID,
			NewValues:    map[string]interface{}{"name": role.Name, "permissions": req.Permissions},
		})
	})
	if err != nil {
		return nil, err
	}
	return s.GetRole(role.ID)
}

// UpdateRole replaces a role's name, description and permissions. System
// roles keep their name, and super_admin keeps its grants.
func (s *AuthorizationService) UpdateRole(actor Actor, id uuid.UUID, req *RoleRequest) (*models.Role, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var role models.Role
		if err := tx.Preload("Permissions").First(&role, "id = ?", id).Error; err != nil {
			return findOrNotFound(err, "Role")
		}
		name := strings.TrimSpace(req.Name)
		if role.IsSystem && name != role.Name {
			return utils.NewConflictError("system roles cannot be renamed")
		}
		if role.Name == models.RoleSuperAdmin {
			return utils.NewConflictError("the super admin role cannot be modified")
		}
		taken, err := s.roleNameTaken(tx, name, &role.ID)
		if err != nil {
			return err
		}
		if taken {
			return utils.NewConflictError("role name already exists")
		}
		perms, err := s.resolvePermissions(tx, req.Permissions)
		if err != nil {
			return err
		}

		old := map[string]interface{}{"name": role.Name, "description": role.Description, "permissions": permissionSlugs(role.Permissions)}
		if err := tx.Model(&role).Updates(map[string]interface{}{"name": name, "description": req.Description}).Error; err != nil {
			return fmt.Errorf("failed to update role: %w", err)
		}
		if err := tx.Model(&role).Association("Permissions").Replace(perms); err != nil {
			return fmt.Errorf("failed to update role permissions: %w", err)
		}
		return s.audit.RecordTx(tx, actor, AuditEntry{
			Action:       "role.updated",
			ResourceType: "role",
			ResourceID:   &role.ID,
			OldValues:    old,
			NewValues:    map[string]interface{}{"name": name, "description": req.Description, "permissions": req.Permissions},
		})
	})
	if err != nil {
		return nil, err
	}
	return s.GetRole(id)
}

func permissionSlugs(perms []models.Permission) []string {
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = p.Slug
	}
	return out
}

func (s *AuthorizationService) DeleteRole(actor Actor, id uuid.UUID) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var role models.Role
		if err := tx.First(&role, "id = ?", id).Error; err != nil {
			return findOrNotFound(err, "Role")
		}
		if role.IsSystem {
			return utils.NewConflictError("system roles cannot be deleted")
		}
		var assigned int64
		if err := tx.Table("user_roles").Where("role_id = ?", role.ID).Count(&assigned).Error; err != nil {
			return fmt.Errorf("failed to count role assignments: %w", err)
		}
		if assigned > 0 {
			return utils.NewConflictError(fmt.Sprintf("role is assigned to %d users", assigned))
		}
		if err := tx.Model(&role).Association("Permissions").Clear(); err != nil {
			return fmt.Errorf("failed to clear role permissions: %w", err)
		}
		if err := tx.Unscoped().Delete(&role).Error; err != nil {
			return fmt.Errorf("failed to delete role: %w", err)
		}
		return s.audit.RecordTx(tx, actor, AuditEntry{
			Action:       "role.deleted",
			ResourceType: "role",
			ResourceID:   &role.ID,
			OldValues:    map[string]interface{}{"name": role.Name},
		})
	})
}

func (s *AuthorizationService) loadRoles(tx *gorm.DB, ids []uuid.UUID) ([]models.Role, error) {
	if len(ids) == 0 {
		return []models.Role{}, nil
	}
	var roles []models.Role
	if err := tx.Where("id IN ?", ids).Find(&roles).Error; err != nil {
		return nil, fmt.Errorf("failed to load roles: %w", err)
	}
	unique := map[uuid.UUID]bool{}
	for _, id := range ids {
		unique[id] = true
	}
	if len(roles) != len(unique) {
		return nil, utils.NewValidationError("one or more roles do not exist", nil)
	}
	return roles, nil
}

// AssignRolesTx replaces a staff user's roles inside tx.
func (s *AuthorizationService) AssignRolesTx(tx *gorm.DB, actor Actor, user *models.User, roleIDs []uuid.UUID) error {
	if !user.IsStaff() {
		return utils.NewValidationError("roles can only be assigned to staff users", nil)
	}
	roles, err := s.loadRoles(tx, roleIDs)
	if err != nil {
		return err
	}
	if actor.UserID != nil && *actor.UserID == user.ID {
		if err := s.keepsSuperAdmin(tx, user, roles); err != nil {
			return err
		}
	}
	if err := tx.Model(user).Association("Roles").Replace(roles); err != nil {
		return fmt.Errorf("failed to assign roles: %w", err)
	}
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = r.Name
	}
	return s.audit.RecordTx(tx, actor, AuditEntry{
		Action:       "user.roles_assigned",
		ResourceType: "user",
		ResourceID:   &user.ID,
		NewValues:    map[string]interface{}{"roles": names},
	})
}

// keepsSuperAdmin stops a super admin from dropping their own super_admin role.
func (s *AuthorizationService) keepsSuperAdmin(tx *gorm.DB, user *models.User, next []models.Role) error {
	var current []models.Role
	if err := tx.Model(user).Association("Roles").Find(&current); err != nil {
		return fmt.Errorf("failed to load current roles: %w", err)
	}
	had := false
	for _, r := range current {
		had = had || r.Name == models.RoleSuperAdmin
	}
	if !had {
		return nil
	}
	for _, r := range next {
		if r.Name == models.RoleSuperAdmin {
			return nil
		}
	}
	return utils.NewConflictError("you cannot remove your own super admin role")
}

func (s *AuthorizationService) AssignRoles(actor Actor, userID uuid.UUID, req *AssignRolesRequest) (*models.User, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.First(&user, "id = ?", userID).Error; err != nil {
			return findOrNotFound(err, "User")
		}
		return s.AssignRolesTx(tx, actor, &user, req.RoleIDs)
	})
	if err != nil {
		return nil, err
	}

	var user models.User
	if err := s.db.Preload("Roles").First(&user, "id = ?", userID).Error; err != nil {
		return nil, findOrNotFound(err, "User")
	}
	return &user, nil
}

// internal/services/user_service.go
package services

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/javajoker/storefront-backend/internal/models"
	"github.com/javajoker/storefront-backend/internal/utils"
)

type UserService struct {
	db    *gorm.DB
	audit *AuditService
	authz *AuthorizationService
}

type UserFilter struct {
	utils.PaginationParams
	Status   *string `json:"status,omitempty"`
	UserType *string `json:"user_type,omitempty"`
}

type CreateUserRequest struct {
	Email     string      `json:"email" validate:"required,email"`
	Password  string      `json:"password" validate:"required,strong_password"`
	FirstName string      `json:"first_name" validate:"required,max=100"`
	LastName  string      `json:"last_name" validate:"max=100"`
	Phone     string      `json:"phone" validate:"max=50"`
	RoleIDs   []uuid.UUID `json:"role_ids" validate:"dive,required"`
}

type UpdateUserRequest struct {
	FirstName *string            `json:"first_name" validate:"omitempty,max=100"`
	LastName  *string            `json:"last_name" validate:"omitempty,max=100"`
	Phone     *string            `json:"phone" validate:"omitempty,max=50"`
	Status    *models.UserStatus `json:"status" validate:"omitempty,oneof=active suspended"`
	RoleIDs   *[]uuid.UUID       `json:"role_ids"`
}

func NewUserService(db *gorm.DB, audit *AuditService, authz *AuthorizationService) *UserService {
	return &UserService{db: db, audit: audit, authz: authz}
}

func (s *UserService) List(filter UserFilter) ([]models.User, int64, error) {
	query := s.db.Model(&models.User{})

	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.UserType != nil {
		query = query.Where("user_type = ?", *filter.UserType)
	}
	if filter.Search != "" {
		pattern := likePattern(filter.Search)
		query = query.Where("LOWER(email) LIKE ? OR LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ?", pattern, pattern, pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	query = utils.ApplySort(query, filter.PaginationParams, []string{"created_at", "email", "last_login_at"})
	query = utils.ApplyPagination(query, filter.PaginationParams)

	var users []models.User
	if err := query.Preload("Roles").Find(&users).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch users: %w", err)
	}
	return users, total, nil
}

func (s *UserService) GetUserByID(userID uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.db.Preload("Roles.Permissions").First(&user, "id = ?", userID).Error; err != nil {
		return nil, findOrNotFound(err, "User")
	}
	return &user, nil
}

func emailTaken(tx *gorm.DB, email string) (bool, error) {
	var count int64
	if err := tx.Unscoped().Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check email: %w", err)
	}
	return count > 0, nil
}

// CreateStaff creates an active staff account with the given roles.
func (s *UserService) CreateStaff(actor Actor, req *CreateUserRequest) (*models.User, error) {
	req.Email = normalizeEmail(req.Email)
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	if err := validate(req); err != nil {
		return nil, err
	}

	user := &models.User{
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		UserType:  models.UserTypeStaff,
		Status:    models.UserStatusActive,
	}
	if err := user.SetPassword(req.Password); err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		taken, err := emailTaken(tx, user.Email)
		if err != nil {
			return err
		}
		if taken {
			return utils.NewConflictError("user with this email already exists")
		}
		if err := tx.Create(user).Error; err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}
		if err := s.audit.RecordTx(tx, actor, AuditEntry{
			Action:       "user.created",
			ResourceType: "user",
			ResourceID:   &user.ID,
			NewValues:    map[string]interface{}{"email": user.Email, "user_type": user.UserType},
		}); err != nil {
			return err
		}
		return s.authz.AssignRolesTx(tx, actor, user, req.RoleIDs)
	})
	if err != nil {
		return nil, err
	}
	return s.GetUserByID(user.ID)
}

func (s *UserService) Update(actor Actor, id uuid.UUID, req *UpdateUserRequest) (*models.User, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.First(&user, "id = ?", id).Error; err != nil {
			return findOrNotFound(err, "User")
		}

		updates := map[string]interface{}{}
		old := map[string]interface{}{}
		if req.FirstName != nil {
			old["first_name"], updates["first_name"] = user.FirstName, strings.TrimSpace(*req.FirstName)
		}
		if req.LastName != nil {
			old["last_name"], updates["last_name"] = user.LastName, strings.TrimSpace(*req.LastName)
		}
		if req.Phone != nil {
			old["phone"], updates["phone"] = user.Phone, *req.Phone
		}
		if req.Status != nil && *req.Status != user.Status {
			if *req.Status == models.UserStatusSuspended && actor.UserID != nil && *actor.UserID == user.ID {
				return utils.NewConflictError("you cannot suspend your own account")
			}
			old["status"], updates["status"] = user.Status, *req.Status
		}

		if len(updates) > 0 {
			if err := tx.Model(&user).Updates(updates).Error; err != nil {
				return fmt.Errorf("failed to update user: %w", err)
			}
			if err := s.audit.RecordTx(tx, actor, AuditEntry{
				Action:       "user.updated",
				ResourceType: "user",
				ResourceID:   &user.ID,
				OldValues:    old,
				NewValues:    updates,
			}); err != nil {
				return err
			}
		}

		if req.RoleIDs != nil {
			return s.authz.AssignRolesTx(tx, actor, &user, *req.RoleIDs)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetUserByID(id)
}

// Deactivate suspends an account. Staff cannot suspend themselves.
func (s *UserService) Deactivate(actor Actor, id uuid.UUID) (*models.User, error) {
	status := models.UserStatusSuspended
	return s.Update(actor, id, &UpdateUserRequest{Status: &status})
}

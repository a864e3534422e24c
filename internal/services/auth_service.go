// internal/services/auth_service.go
package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/storefront-backend/internal/config"
	"github.com/javajoker/storefront-backend/internal/models"
	"github.com/javajoker/storefront-backend/internal/utils"
)

type AuthService struct {
	db     *gorm.DB
	cfg    *config.Config
	carts  *CartService
	authz  *AuthorizationService
	mailer *Mailer
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RegisterRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,strong_password"`
	FirstName string `json:"first_name" validate:"required,max=100"`
	LastName  string `json:"last_name" validate:"max=100"`
	Phone     string `json:"phone" validate:"max=50"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type UpdateProfileRequest struct {
	FirstName *string `json:"first_name" validate:"omitempty,max=100"`
	LastName  *string `json:"last_name" validate:"omitempty,max=100"`
	Phone     *string `json:"phone" validate:"omitempty,max=50"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,strong_password"`
}

type AuthResponse struct {
	User         *models.User `json:"user"`
	Permissions  []string     `json:"permissions,omitempty"`
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int          `json:"expires_in"` // in seconds
}

func NewAuthService(db *gorm.DB, cfg *config.Config, carts *CartService, authz *AuthorizationService, mailer *Mailer) *AuthService {
	return &AuthService{
		db:     db,
		cfg:    cfg,
		carts:  carts,
		authz:  authz,
		mailer: mailer,
	}
}

func (s *AuthService) issueTokens(user *models.User) (*AuthResponse, error) {
	accessToken, err := utils.GenerateJWT(user.ID, user.Email, string(user.UserType), s.cfg.JWT.AccessTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	refreshToken, err := utils.GenerateRefreshToken(user.ID, s.cfg.JWT.RefreshTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	resp := &AuthResponse{
		User:         user,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    s.cfg.JWT.AccessTokenTTL * 3600, // Convert hours to seconds
	}
	if user.IsStaff() {
		if resp.Permissions, err = s.authz.UserPermissions(user.ID); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

// mergeCart folds a guest cart into the user's cart. Failures are logged and
// never block authentication.
func (s *AuthService) mergeCart(sessionID string, user *models.User) {
	if sessionID == "" || user.IsStaff() {
		return
	}
	if err := s.carts.MergeGuestCart(sessionID, user.ID); err != nil {
		logrus.WithError(err).WithField("user_id", user.ID).Warn("Failed to merge guest cart")
	}
}

// Register creates a customer account. sessionID, when set, names a guest
// cart to merge into the new account.
func (s *AuthService) Register(req *RegisterRequest, sessionID string) (*AuthResponse, error) {
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
		UserType:  models.UserTypeCustomer,
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
			if isUniqueViolation(err) {
				return utils.NewConflictError("user with this email already exists")
			}
			return fmt.Errorf("failed to create user: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.mergeCart(sessionID, user)
	s.mailer.SendWelcome(user)

	return s.issueTokens(user)
}

func (s *AuthService) Login(req *LoginRequest, sessionID string) (*AuthResponse, error) {
	req.Email = normalizeEmail(req.Email)
	if err := validate(req); err != nil {
		return nil, err
	}

	var user models.User
	if err := s.db.Where("email = ?", req.Email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewUnauthorizedError("invalid email or password")
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if err := user.CheckPassword(req.Password); err != nil {
		return nil, utils.NewUnauthorizedError("invalid email or password")
	}

	if user.Status == models.UserStatusSuspended {
		return nil, utils.NewForbiddenError("account is suspended")
	}

	now := time.Now()
	if err := s.db.Model(&user).Update("last_login_at", now).Error; err != nil {
		logrus.WithError(err).WithField("user_id", user.ID).Warn("Failed to record last login")
	}
	user.LastLoginAt = &now

	s.mergeCart(sessionID, &user)

	return s.issueTokens(&user)
}

func (s *AuthService) RefreshToken(req *RefreshTokenRequest) (*AuthResponse, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	userIDStr, err := utils.ValidateRefreshToken(req.RefreshToken)
	if err != nil {
		return nil, utils.NewUnauthorizedError("invalid refresh token")
	}

	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return nil, utils.NewUnauthorizedError("invalid refresh token")
	}

	var user models.User
	if err := s.db.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewUnauthorizedError("user not found")
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if user.Status != models.UserStatusActive {
		return nil, utils.NewForbiddenError("account is not active")
	}

	return s.issueTokens(&user)
}

func (s *AuthService) Me(userID uuid.UUID) (*AuthResponse, error) {
	var user models.User
	if err := s.db.Preload("Roles").First(&user, "id = ?", userID).Error; err != nil {
		return nil, findOrNotFound(err, "User")
	}
	resp := &AuthResponse{User: &user}
	if user.IsStaff() {
		perms, err := s.authz.UserPermissions(user.ID)
		if err != nil {
			return nil, err
		}
		resp.Permissions = perms
	}
	return resp, nil
}

func (s *AuthService) UpdateProfile(userID uuid.UUID, req *UpdateProfileRequest) (*models.User, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	var user models.User
	if err := s.db.First(&user, "id = ?", userID).Error; err != nil {
		return nil, findOrNotFound(err, "User")
	}

	updates := map[string]interface{}{}
	if req.FirstName != nil {
		updates["first_name"] = strings.TrimSpace(*req.FirstName)
	}
	if req.LastName != nil {
		updates["last_name"] = strings.TrimSpace(*req.LastName)
	}
	if req.Phone != nil {
		updates["phone"] = *req.Phone
	}
	if len(updates) > 0 {
		if err := s.db.Model(&user).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("failed to update profile: %w", err)
		}
	}
	return &user, nil
}

func (s *AuthService) ChangePassword(userID uuid.UUID, req *ChangePasswordRequest) error {
	if err := validate(req); err != nil {
		return err
	}

	var user models.User
	if err := s.db.First(&user, "id = ?", userID).Error; err != nil {
		return findOrNotFound(err, "User")
	}
	if err := user.CheckPassword(req.CurrentPassword); err != nil {
		return utils.NewUnauthorizedError("current password is incorrect")
	}
	if err := user.SetPassword(req.NewPassword); err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.db.Model(&user).Update("password_hash", user.PasswordHash).Error; err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return nil
}

// internal/services/common.go
package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/javajoker/storefront-backend/internal/models"
	"github.com/javajoker/storefront-backend/internal/utils"
)

// Actor identifies who performed an operation, for audit logging.
type Actor struct {
	UserID    *uuid.UUID
	IPAddress string
	UserAgent string
}

// SystemActor is used for scheduled jobs.
var SystemActor = Actor{IPAddress: "system", UserAgent: "scheduler"}

func findOrNotFound(err error, resource string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.NewNotFoundError(resource)
	}
	return fmt.Errorf("failed to load %s: %w", strings.ToLower(resource), err)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}

// toJSONB converts a struct or map to the JSONB column type. Nil stays nil.
func toJSONB(v interface{}) models.JSONB {
	if v == nil {
		return nil
	}
	if j, ok := v.(models.JSONB); ok {
		return j
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return models.JSONB{"error": err.Error()}
	}
	var out models.JSONB
	if err := json.Unmarshal(raw, &out); err != nil {
		return models.JSONB{"value": string(raw)}
	}
	return out
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// likePattern builds a case-insensitive LIKE argument.
func likePattern(search string) string {
	return "%" + strings.ToLower(strings.TrimSpace(search)) + "%"
}

func validate(req interface{}) error {
	if errs := utils.GetValidationErrors(utils.ValidateStruct(req)); len(errs) > 0 {
		return utils.NewValidationError("validation failed", errs)
	}
	return nil
}

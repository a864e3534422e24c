// internal/services/discount_service.go
package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/javajoker/storefront-backend/internal/models"
	"github.com/javajoker/storefront-backend/internal/utils"
)

type DiscountService struct {
	db    *gorm.DB
	audit *AuditService
}

type DiscountRequest struct {
	Name        string               `json:"name" validate:"required,max=255"`
	Code        *string              `json:"code" validate:"omitempty,min=3,max=50"`
	Type        models.DiscountType  `json:"type" validate:"required,oneof=percentage fixed_amount free_shipping"`
	Value       decimal.Decimal      `json:"value"`
	IsAutomatic bool                 `json:"is_automatic"`
	IsActive    *bool                `json:"is_active"`
	AppliesTo   models.DiscountScope `json:"applies_to" validate:"omitempty,oneof=all products categories"`
	MinSubtotal decimal.Decimal      `json:"min_subtotal"`
	UsageLimit  *int                 `json:"usage_limit" validate:"omitempty,min=1"`
	StartsAt    *time.Time           `json:"starts_at"`
	EndsAt      *time.Time           `json:"ends_at"`
	ProductIDs  []uuid.UUID          `json:"product_ids"`
	CategoryIDs []uuid.UUID          `json:"category_ids"`
}

type DiscountFilter struct {
	utils.PaginationParams
	IsActive    *bool `json:"is_active,omitempty"`
	IsAutomatic *bool `json:"is_automatic,omitempty"`
}

func NewDiscountService(db *gorm.DB, audit *AuditService) *DiscountService {
	return &DiscountService{db: db, audit: audit}
}

// NormalizeCode trims and upper-cases a discount code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (r *DiscountRequest) check() error {
	if err := validate(r); err != nil {
		return err
	}

	var problems []utils.ValidationError
	add := func(field, msg string) {
		problems = append(problems, utils.ValidationError{Field: field, Tag: "invalid", Message: msg})
	}

	switch r.Type {
	case models.DiscountTypePercentage:
		if !r.Value.IsPositive() || r.Value.GreaterThan(decimal.NewFromInt(100)) {
			add("value", "percentage value must be greater than 0 and at most 100")
		}
	case models.DiscountTypeFixedAmount:
		if !r.Value.IsPositive() {
			add("value", "fixed amount must be greater than 0")
		}
	}
	if r.MinSubtotal.IsNegative() {
		add("min_subtotal", "min_subtotal must not be negative")
	}
	if r.StartsAt != nil && r.EndsAt != nil && !r.EndsAt.After(*r.StartsAt) {
		add("ends_at", "ends_at must be after starts_at")
	}
	if r.AppliesTo == "" {
		r.AppliesTo = models.DiscountScopeAll
	}
	if r.AppliesTo == models.DiscountScopeProducts && len(r.ProductIDs) == 0 {
		add("product_ids", "product_ids are required when applies_to is products")
	}
	if r.AppliesTo == models.DiscountScopeCategories && len(r.CategoryIDs) == 0 {
		add("category_ids", "category_ids are required when applies_to is categories")
	}
	if r.Code != nil {
		code := NormalizeCode(*r.Code)
		if code == "" {
			r.Code = nil
		} else {
			r.Code = &code
		}
	}
	if r.Code == nil && !r.IsAutomatic {
		add("code", "a discount needs a code unless it is automatic")
	}

	if len(problems) > 0 {
		return utils.NewValidationError("invalid discount", problems)
	}
	return nil
}

func (s *DiscountService) codeTaken(tx *gorm.DB, code string, exclude *uuid.UUID) (bool, error) {
	query := tx.Unscoped().Model(&models.Discount{}).Where("UPPER(code) = ?", code)
	if exclude != nil {
		query = query.Where("id <> ?", *exclude)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check discount code: %w", err)
	}
	return count > 0, nil
}

func (s *DiscountService) apply(tx *gorm.DB, d *models.Discount, req *DiscountRequest) error {
	d.Name = req.Name
	d.Code = req.Code
	d.Type = req.Type
	d.Value = req.Value
	d.IsAutomatic = req.IsAutomatic
	d.AppliesTo = req.AppliesTo
	d.MinSubtotal = req.MinSubtotal
	d.UsageLimit = req.UsageLimit
	d.StartsAt = req.StartsAt
	d.EndsAt = req.EndsAt
	if req.Type == models.DiscountTypeFreeShipping {
		d.Value = decimal.Zero
	}

	var products []models.Product
	if len(req.ProductIDs) > 0 {
		if err := tx.Where("id IN ?", req.ProductIDs).Find(&products).Error; err != nil {
			return fmt.Errorf("failed to load discount products: %w", err)
		}
		if len(products) != len(req.ProductIDs) {
			return utils.NewValidationError("one or more products do not exist", nil)
		}
	}
	var categories []models.Category
	if len(req.CategoryIDs) > 0 {
		if err := tx.Where("id IN ?", req.CategoryIDs).Find(&categories).Error; err != nil {
			return fmt.Errorf("failed to load discount categories: %w", err)
		}
		if len(categories) != len(req.CategoryIDs) {
			return utils.NewValidationError("one or more categories do not exist", nil)
		}
	}
	d.Products = products
	d.Categories = categories
	return nil
}

func (s *DiscountService) Create(actor Actor, req *DiscountRequest) (*models.Discount, error) {
	if err := req.check(); err != nil {
		return nil, err
	}

	discount := &models.Discount{IsActive: true}
	if req.IsActive != nil {
		discount.IsActive = *req.IsActive
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if req.Code != nil {
			taken, err := s.codeTaken(tx, *req.Code, nil)
			if err != nil {
				return err
			}
			if taken {
				return utils.NewConflictError("discount code already exists")
			}
		}
		if err := s.apply(tx, discount, req); err != nil {
			return err
		}
		if err := tx.Create(discount).Error; err != nil {
			if isUniqueViolation(err) {
				return utils.NewConflictError("discount code already exists")
			}
			return fmt.Errorf("failed to create discount: %w", err)
		}
		return s.audit.RecordTx(tx, actor, AuditEntry{
			Action:       "discount.created",
			ResourceType: "discount",
			ResourceID:   &discount.ID,
			NewValues:    discount,
		})
	})
	if err != nil {
		return nil, err
	}
	return s.Get(discount.ID)
}

func (s *DiscountService) Update(actor Actor, id uuid.UUID, req *DiscountRequest) (*models.Discount, error) {
	if err := req.check(); err != nil {
		return nil, err
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var discount models.Discount
		if err := tx.First(&discount, "id = ?", id).Error; err != nil {
			return findOrNotFound(err, "Discount")
		}
		old := discount

		if req.Code != nil {
			taken, err := s.codeTaken(tx, *req.Code, &id)
			if err != nil {
				return err
			}
			if taken {
				return utils.NewConflictError("discount code already exists")
			}
		}
		if err := s.apply(tx, &discount, req); err != nil {
			return err
		}
		if req.IsActive != nil {
			discount.IsActive = *req.IsActive
		}
		if req.UsageLimit != nil && *req.UsageLimit < discount.UsageCount {
			return utils.NewValidationError("usage_limit cannot be below the current usage count", nil)
		}

		if err := tx.Omit("Products", "Categories").Save(&discount).Error; err != nil {
			if isUniqueViolation(err) {
				return utils.NewConflictError("discount code already exists")
			}
			return fmt.Errorf("failed to update discount: %w", err)
		}
		if err := tx.Model(&discount).Association("Products").Replace(discount.Products); err != nil {
			return fmt.Errorf("failed to update discount products: %w", err)
		}
		if err := tx.Model(&discount).Association("Categories").Replace(discount.Categories); err != nil {
			return fmt.Errorf("failed to update discount categories: %w", err)
		}

		return s.audit.RecordTx(tx, actor, AuditEntry{
			Action:       "discount.updated",
			ResourceType: "discount",
			ResourceID:   &discount.ID,
			OldValues:    old,
			NewValues:    discount,
		})
	})
	if err != nil {
		return nil, err
	}
	return s.Get(id)
}

func (s *DiscountService) Delete(actor Actor, id uuid.UUID) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var discount models.Discount
		if err := tx.First(&discount, "id = ?", id).Error; err != nil {
			return findOrNotFound(err, "Discount")
		}
		if err := tx.Delete(&discount).Error; err != nil {
			return fmt.Errorf("failed to delete discount: %w", err)
		}
		return s.audit.RecordTx(tx, actor, AuditEntry{
			Action:       "discount.deleted",
			ResourceType: "discount",
			ResourceID:   &discount.ID,
			OldValues:    discount,
		})
	})
}

func (s *DiscountService) Get(id uuid.UUID) (*models.Discount, error) {
	var discount models.Discount
	if err := s.db.Preload("Products").Preload("Categories").First(&discount, "id = ?", id).Error; err != nil {
		return nil, findOrNotFound(err, "Discount")
	}
	return &discount, nil
}

func (s *DiscountService) List(filter DiscountFilter) ([]models.Discount, int64, error) {
	query := s.db.Model(&models.Discount{})

	if filter.IsActive != nil {
		query = query.Where("is_active = ?", *filter.IsActive)
	}
	if filter.IsAutomatic != nil {
		query = query.Where("is_automatic = ?", *filter.IsAutomatic)
	}
	if filter.Search != "" {
		pattern := likePattern(filter.Search)
		query = query.Where("LOWER(name) LIKE ? OR LOWER(code) LIKE ?", pattern, pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count discounts: %w", err)
	}

	query = utils.ApplySort(query, filter.PaginationParams, []string{"created_at", "name", "usage_count", "ends_at"})
	query = utils.ApplyPagination(query, filter.PaginationParams)

	var discounts []models.Discount
	if err := query.Find(&discounts).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch discounts: %w", err)
	}
	return discounts, total, nil
}

// FindByCode returns the active discount for code, or NotFound.
func (s *DiscountService) FindByCode(db *gorm.DB, code string) (*models.Discount, error) {
	var discount models.Discount
	err := db.Preload("Products").Preload("Categories").
		Where("code = ? AND is_active = ?", NormalizeCode(code), true).
		First(&discount).Error
	if err != nil {
		return nil, findOrNotFound(err, "Discount")
	}
	return &discount, nil
}

// Candidates loads every active automatic discount plus the discount for
// code (when given), ordered by creation time for the selection scan.
func (s *DiscountService) Candidates(db *gorm.DB, code *string) ([]models.Discount, error) {
	query := db.Preload("Products").Preload("Categories").Where("is_active = ?", true)
	if code != nil && *code != "" {
		query = query.Where("is_automatic = ? OR code = ?", true, NormalizeCode(*code))
	} else {
		query = query.Where("is_automatic = ?", true)
	}

	var discounts []models.Discount
	if err := query.Order("created_at asc").Order("id asc").Find(&discounts).Error; err != nil {
		return nil, fmt.Errorf("failed to load discounts: %w", err)
	}
	return discounts, nil
}

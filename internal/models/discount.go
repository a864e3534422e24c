// internal/models/discount.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Discount struct {
	BaseModel
	Name        string          `json:"name" gorm:"size:255;not null"`
	Code        *string         `json:"code" gorm:"size:50;uniqueIndex"`
	Type        DiscountType    `json:"type" gorm:"type:varchar(20);not null"`
	Value       decimal.Decimal `json:"value" gorm:"type:decimal(12,2);not null"`
	IsAutomatic bool            `json:"is_automatic" gorm:"index"`
	IsActive    bool            `json:"is_active" gorm:"index"`
	AppliesTo   DiscountScope   `json:"applies_to" gorm:"type:varchar(20);default:'all'"`
	MinSubtotal decimal.Decimal `json:"min_subtotal" gorm:"type:decimal(12,2);default:0"`
	UsageLimit  *int            `json:"usage_limit"`
	UsageCount  int             `json:"usage_count" gorm:"default:0"`
	StartsAt    *time.Time      `json:"starts_at"`
	EndsAt      *time.Time      `json:"ends_at"`

	Products   []Product  `json:"products,omitempty" gorm:"many2many:discount_products;"`
	Categories []Category `json:"categories,omitempty" gorm:"many2many:discount_categories;"`
}

// InWindow reports whether now falls within [StartsAt, EndsAt).
func (d *Discount) InWindow(now time.Time) bool {
	if d.StartsAt != nil && now.Before(*d.StartsAt) {
		return false
	}
	if d.EndsAt != nil && !now.Before(*d.EndsAt) {
		return false
	}
	return true
}

func (d *Discount) UsageExhausted() bool {
	return d.UsageLimit != nil && d.UsageCount >= *d.UsageLimit
}

// Covers reports whether a product falls in the discount's scope.
// Products and Categories must be loaded for scoped discounts.
func (d *Discount) Covers(productID uuid.UUID, categoryID *uuid.UUID) bool {
	switch d.AppliesTo {
	case DiscountScopeProducts:
		for _, p := range d.Products {
			if p.ID == productID {
				return true
			}
		}
		return false
	case DiscountScopeCategories:
		if categoryID == nil {
			return false
		}
		for _, c := range d.Categories {
			if c.ID == *categoryID {
				return true
			}
		}
		return false
	default:
		return true
	}
}

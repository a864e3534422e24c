// internal/models/product.go
package models

import (
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

type Category struct {
	BaseModel
	Name        string     `json:"name" gorm:"size:255;not null"`
	Slug        string     `json:"slug" gorm:"uniqueIndex;size:255;not null"`
	Description string     `json:"description" gorm:"type:text"`
	ParentID    *uuid.UUID `json:"parent_id" gorm:"type:uuid;index"`
	IsActive    bool       `json:"is_active"`

	Parent *Category `json:"parent,omitempty" gorm:"foreignKey:ParentID"`
}

type Product struct {
	BaseModel
	Name           string              `json:"name" gorm:"size:255;not null"`
	Slug           string              `json:"slug" gorm:"uniqueIndex;size:255;not null"`
	Description    string              `json:"description" gorm:"type:text"`
	SKU            string              `json:"sku" gorm:"uniqueIndex;size:100;not null"`
	Price          decimal.Decimal     `json:"price" gorm:"type:decimal(12,2);not null"`
	CompareAtPrice decimal.NullDecimal `json:"compare_at_price" gorm:"type:decimal(12,2)"`
	Stock          int                 `json:"stock" gorm:"default:0"`
	Status         ProductStatus       `json:"status" gorm:"type:varchar(20);default:'draft';index"`
	CategoryID     *uuid.UUID          `json:"category_id" gorm:"type:uuid;index"`
	Images         pq.StringArray      `json:"images" gorm:"type:text[]"`
	Tags           pq.StringArray      `json:"tags" gorm:"type:text[]"`
	Rating         decimal.Decimal     `json:"rating" gorm:"type:decimal(3,2);default:0"`
	ReviewCount    int                 `json:"review_count" gorm:"default:0"`

	// Relationships
	Category *Category        `json:"category,omitempty" gorm:"foreignKey:CategoryID"`
	Variants []ProductVariant `json:"variants,omitempty" gorm:"foreignKey:ProductID"`
}

type ProductVariant struct {
	BaseModel
	ProductID uuid.UUID           `json:"product_id" gorm:"type:uuid;not null;index"`
	Name      string              `json:"name" gorm:"size:255;not null"`
	SKU       string              `json:"sku" gorm:"uniqueIndex;size:100;not null"`
	Price     decimal.NullDecimal `json:"price" gorm:"type:decimal(12,2)"`
	Stock     int                 `json:"stock" gorm:"default:0"`
	IsActive  bool                `json:"is_active"`

	Product *Product `json:"product,omitempty" gorm:"foreignKey:ProductID"`
}

func (p *Product) IsPurchasable() bool {
	return p.Status == ProductStatusActive
}

// EffectivePrice is the variant override when set, otherwise the product price.
func (p *Product) EffectivePrice(v *ProductVariant) decimal.Decimal {
	if v != nil && v.Price.Valid {
		return v.Price.Decimal
	}
	return p.Price
}

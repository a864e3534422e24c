// internal/models/order.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Address is embedded into orders and shipments as a snapshot.
type Address struct {
	Name       string `json:"name" gorm:"size:255" validate:"required,max=255"`
	Line1      string `json:"line1" gorm:"size:255" validate:"required,max=255"`
	Line2      string `json:"line2,omitempty" gorm:"size:255" validate:"max=255"`
	City       string `json:"city" gorm:"size:100" validate:"required,max=100"`
	State      string `json:"state,omitempty" gorm:"size:100" validate:"max=100"`
	PostalCode string `json:"postal_code" gorm:"size:20" validate:"required,max=20"`
	Country    string `json:"country" gorm:"size:2" validate:"required,len=2"`
	Phone      string `json:"phone,omitempty" gorm:"size:50" validate:"max=50"`
}

type Order struct {
	BaseModel
	OrderNumber      string          `json:"order_number" gorm:"uniqueIndex;size:32;not null"`
	UserID           *uuid.UUID      `json:"user_id" gorm:"type:uuid;index"`
	Email            string          `json:"email" gorm:"size:255;not null;index"`
	Status           OrderStatus     `json:"status" gorm:"type:varchar(20);not null;index"`
	PaymentStatus    PaymentStatus   `json:"payment_status" gorm:"type:varchar(20);not null;index"`
	PaymentMethod    string          `json:"payment_method" gorm:"size:30;not null"`
	PaymentReference string          `json:"payment_reference,omitempty" gorm:"size:255"`
	Currency         string          `json:"currency" gorm:"size:3;not null"`
	Subtotal         decimal.Decimal `json:"subtotal" gorm:"type:decimal(12,2);not null"`
	DiscountTotal    decimal.Decimal `json:"discount_total" gorm:"type:decimal(12,2);not null"`
	TaxTotal         decimal.Decimal `json:"tax_total" gorm:"type:decimal(12,2);not null"`
	ShippingTotal    decimal.Decimal `json:"shipping_total" gorm:"type:decimal(12,2);not null"`
	Total            decimal.Decimal `json:"total" gorm:"type:decimal(12,2);not null"`
	RefundedTotal    decimal.Decimal `json:"refunded_total" gorm:"type:decimal(12,2);default:0"`
	DiscountID       *uuid.UUID      `json:"discount_id" gorm:"type:uuid"`
	DiscountCode     string          `json:"discount_code,omitempty" gorm:"size:50"`
	ShippingAddress  Address         `json:"shipping_address" gorm:"embedded;embeddedPrefix:ship_"`
	Notes            string          `json:"notes,omitempty" gorm:"type:text"`
	PlacedAt         time.Time       `json:"placed_at" gorm:"index"`
	CancelledAt      *time.Time      `json:"cancelled_at"`

	// Relationships
	User      *User           `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Items     []OrderItem     `json:"items,omitempty" gorm:"foreignKey:OrderID"`
	Shipments []Shipment      `json:"shipments,omitempty" gorm:"foreignKey:OrderID"`
	Refunds   []Refund        `json:"refunds,omitempty" gorm:"foreignKey:OrderID"`
	Returns   []ReturnRequest `json:"returns,omitempty" gorm:"foreignKey:OrderID"`
}

type OrderItem struct {
	BaseModel
	OrderID     uuid.UUID       `json:"order_id" gorm:"type:uuid;not null;index"`
	ProductID   uuid.UUID       `json:"product_id" gorm:"type:uuid;not null;index"`
	VariantID   *uuid.UUID      `json:"variant_id" gorm:"type:uuid"`
	ProductName string          `json:"product_name" gorm:"size:255;not null"`
	SKU         string          `json:"sku" gorm:"size:100;not null"`
	UnitPrice   decimal.Decimal `json:"unit_price" gorm:"type:decimal(12,2);not null"`
	Quantity    int             `json:"quantity" gorm:"not null"`
	LineTotal   decimal.Decimal `json:"line_total" gorm:"type:decimal(12,2);not null"`
}

// RefundableAmount is what remains of the total after prior refunds.
func (o *Order) RefundableAmount() decimal.Decimal {
	return o.Total.Sub(o.RefundedTotal)
}

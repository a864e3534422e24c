// internal/models/fulfillment.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Shipment struct {
	BaseModel
	OrderID        uuid.UUID      `json:"order_id" gorm:"type:uuid;not null;index"`
	Carrier        string         `json:"carrier" gorm:"size:100"`
	TrackingNumber string         `json:"tracking_number" gorm:"size:255"`
	Status         ShipmentStatus `json:"status" gorm:"type:varchar(20);not null;index"`
	Address        Address        `json:"address" gorm:"embedded;embeddedPrefix:ship_"`
	ShippedAt      *time.Time     `json:"shipped_at"`
	DeliveredAt    *time.Time     `json:"delivered_at"`

	Order *Order `json:"order,omitempty" gorm:"foreignKey:OrderID"`
}

type ReturnRequest struct {
	BaseModel
	OrderID    uuid.UUID    `json:"order_id" gorm:"type:uuid;not null;index"`
	UserID     *uuid.UUID   `json:"user_id" gorm:"type:uuid;index"`
	Status     ReturnStatus `json:"status" gorm:"type:varchar(20);not null;index"`
	Reason     string       `json:"reason" gorm:"type:text;not null"`
	AdminNotes string       `json:"admin_notes,omitempty" gorm:"type:text"`
	ResolvedBy *uuid.UUID   `json:"resolved_by" gorm:"type:uuid"`
	ResolvedAt *time.Time   `json:"resolved_at"`

	Order *Order       `json:"order,omitempty" gorm:"foreignKey:OrderID"`
	Items []ReturnItem `json:"items" gorm:"foreignKey:ReturnRequestID"`
}

type ReturnItem struct {
	BaseModel
	ReturnRequestID uuid.UUID `json:"return_request_id" gorm:"type:uuid;not null;index"`
	OrderItemID     uuid.UUID `json:"order_item_id" gorm:"type:uuid;not null;index"`
	Quantity        int       `json:"quantity" gorm:"not null"`

	OrderItem *OrderItem `json:"order_item,omitempty" gorm:"foreignKey:OrderItemID"`
}

type Refund struct {
	BaseModel
	OrderID           uuid.UUID       `json:"order_id" gorm:"type:uuid;not null;index"`
	ReturnRequestID   *uuid.UUID      `json:"return_request_id" gorm:"type:uuid"`
	Amount            decimal.Decimal `json:"amount" gorm:"type:decimal(12,2);not null"`
	Reason            string          `json:"reason" gorm:"type:text"`
	Status            RefundStatus    `json:"status" gorm:"type:varchar(20);not null;index"`
	ProviderReference string          `json:"provider_reference,omitempty" gorm:"size:255"`
	ProcessedBy       *uuid.UUID      `json:"processed_by" gorm:"type:uuid"`

	Order *Order `json:"order,omitempty" gorm:"foreignKey:OrderID"`
}

type Review struct {
	BaseModel
	ProductID        uuid.UUID    `json:"product_id" gorm:"type:uuid;not null;uniqueIndex:idx_reviews_product_user"`
	UserID           uuid.UUID    `json:"user_id" gorm:"type:uuid;not null;uniqueIndex:idx_reviews_product_user"`
	Rating           int          `json:"rating" gorm:"not null"`
	Title            string       `json:"title" gorm:"size:255"`
	Body             string       `json:"body" gorm:"type:text"`
	Status           ReviewStatus `json:"status" gorm:"type:varchar(20);not null;index"`
	VerifiedPurchase bool         `json:"verified_purchase"`

	Product *Product `json:"product,omitempty" gorm:"foreignKey:ProductID"`
	User    *User    `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

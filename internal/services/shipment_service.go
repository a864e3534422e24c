// internal/services/shipment_service.go
package services

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/javajoker/storefront-backend/internal/metrics"
	"github.com/javajoker/storefront-backend/internal/models"
	"github.com/javajoker/storefront-backend/internal/utils"
)

type ShipmentService struct {
	db            *gorm.DB
	audit         *AuditService
	notifications *NotificationService
	mailer        *Mailer
	now           func() time.Time
}

var shipmentTransitions = map[models.ShipmentStatus][]models.ShipmentStatus{
	models.ShipmentStatusPending:   {models.ShipmentStatusShipped, models.ShipmentStatusReturned},
	models.ShipmentStatusShipped:   {models.ShipmentStatusInTransit, models.ShipmentStatusDelivered, models.ShipmentStatusReturned},
	models.ShipmentStatusInTransit: {models.ShipmentStatusDelivered, models.ShipmentStatusReturned},
	models.ShipmentStatusDelivered: {models.ShipmentStatusReturned},
}

func CanTransitionShipment(from, to models.ShipmentStatus) bool {
	for _, next := range shipmentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type ShipmentFilter struct {
	utils.PaginationParams
	Status  *string    `json:"status,omitempty"`
	Carrier *string    `json:"carrier,omitempty"`
	OrderID *uuid.UUID `json:"order_id,omitempty"`
}

type UpdateShipmentRequest struct {
	Carrier        *string `json:"carrier" validate:"omitempty,max=100"`
	TrackingNumber *string `json:"tracking_number" validate:"omitempty,max=255"`
}

type UpdateShipmentStatusRequest struct {
	Status         models.ShipmentStatus `json:"status" validate:"required,oneof=shipped in_transit delivered returned"`
	Carrier        *string               `json:"carrier" validate:"omitempty,max=100"`
	TrackingNumber *string               `json:"tracking_number" validate:"omitempty,max=255"`
}

func NewShipmentService(db *gorm.DB, audit *AuditService, notifications *NotificationService, mailer *Mailer) *ShipmentService {
	return &ShipmentService{
		db:            db,
		audit:         audit,
		notifications: notifications,
		mailer:        mailer,
		now:           time.Now,
	}
}

func (s *ShipmentService) List(filter ShipmentFilter) ([]models.Shipment, int64, error) {
	query := s.db.Model(&models.Shipment{})

	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.Carrier != nil {
		query = query.Where("LOWER(carrier) = LOWER(?)", *filter.Carrier)
	}
	if filter.OrderID != nil {
		query = query.Where("order_id = ?", *filter.OrderID)
	}
	if filter.Search != "" {
		query = query.Where("LOWER(tracking_number) LIKE ?", likePattern(filter.Search))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count shipments: %w", err)
	}

	query = utils.ApplySort(query, filter.PaginationParams, []string{"created_at", "shipped_at", "delivered_at", "status"})
	query = utils.ApplyPagination(query, filter.PaginationParams)

	var shipments []models.Shipment
	if err := query.Preload("Order").Find(&shipments).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch shipments: %w", err)
	}
	return shipments, total, nil
}

func (s *ShipmentService) Get(id uuid.UUID) (*models.Shipment, error) {
	var shipment models.Shipment
	if err := s.db.Preload("Order.Items").First(&shipment, "id = ?", id).Error; err != nil {
		return nil, findOrNotFound(err, "Shipment")
	}
	return &shipment, nil
}

func trackingUpdates(carrier, tracking *string) map[string]interface{} {
	updates := map[string]interface{}{}
	if carrier != nil {
		updates["carrier"] = *carrier
	}
	if tracking != nil {
		updates["tracking_number"] = *tracking
	}
	return updates
}

func (s *ShipmentService) Update(actor Actor, id uuid.UUID, req *UpdateShipmentRequest) (*models.Shipment, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	updates := trackingUpdates(req.Carrier, req.TrackingNumber)
	if len(updates) == 0 {
		return s.Get(id)
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var shipment models.Shipment
		if err := tx.First(&shipment, "id = ?", id).Error; err != nil {
			return findOrNotFound(err, "Shipment")
		}
		old := map[string]interface{}{"carrier": shipment.Carrier, "tracking_number": shipment.TrackingNumber}
		if err := tx.Model(&shipment).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to update shipment: %w", err)
		}
		return s.audit.RecordTx(tx, actor, AuditEntry{
			Action:       "shipment.updated",
			ResourceType: "shipment",
			ResourceID:   &shipment.ID,
			OldValues:    old,
			NewValues:    updates,
		})
	})
	if err != nil {
		return nil, err
	}
	return s.Get(id)
}

// UpdateStatus moves a shipment along its lifecycle. Shipping moves a
// processing order to shipped; delivering the last open shipment moves a
// shipped order to delivered.
func (s *ShipmentService) UpdateStatus(actor Actor, id uuid.UUID, req *UpdateShipmentStatusRequest) (*models.Shipment, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	var (
		shipment    models.Shipment
		order       models.Order
		orderStatus models.OrderStatus
	)
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&shipment, "id = ?", id).Error; err != nil {
			return findOrNotFound(err, "Shipment")
		}
		if !CanTransitionShipment(shipment.Status, req.Status) {
			return utils.NewConflictError(fmt.Sprintf("cannot change shipment status from %s to %s", shipment.Status, req.Status))
		}
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&order, "id = ?", shipment.OrderID).Error; err != nil {
			return findOrNotFound(err, "Order")
		}
		if order.Status == models.OrderStatusCancelled {
			return utils.NewConflictError("order has been cancelled")
		}

		now := s.now()
		old := shipment.Status
		updates := trackingUpdates(req.Carrier, req.TrackingNumber)
		updates["status"] = req.Status
		switch req.Status {
		case models.ShipmentStatusShipped:
			updates["shipped_at"] = now
		case models.ShipmentStatusDelivered:
			updates["delivered_at"] = now
			if shipment.ShippedAt == nil {
				updates["shipped_at"] = now
			}
		}
		if err := tx.Model(&shipment).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to update shipment: %w", err)
		}

		next, err := s.propagate(tx, &order, req.Status)
		if err != nil {
			return err
		}
		orderStatus = next

		if order.UserID != nil && req.Status == models.ShipmentStatusShipped {
			if err := s.notifications.NotifyUser(tx, *order.UserID, NotificationOrderShipped,
				"Order "+order.OrderNumber+" shipped", "Your order is on its way", "order", &order.ID); err != nil {
				return err
			}
		}

		return s.audit.RecordTx(tx, actor, AuditEntry{
			Action:       "shipment.status_updated",
			ResourceType: "shipment",
			ResourceID:   &shipment.ID,
			OldValues:    map[string]interface{}{"status": old},
			NewValues:    updates,
		})
	})
	if err != nil {
		return nil, err
	}

	updated, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if req.Status == models.ShipmentStatusShipped {
		s.mailer.SendOrderShipped(&order, updated)
	}
	if orderStatus != "" {
		metrics.RecordOrderTransition(string(orderStatus))
	}
	return updated, nil
}

// propagate returns the new order status, or "" when the order is unchanged.
func (s *ShipmentService) propagate(tx *gorm.DB, order *models.Order, status models.ShipmentStatus) (models.OrderStatus, error) {
	var next models.OrderStatus
	switch status {
	case models.ShipmentStatusShipped:
		if order.Status == models.OrderStatusProcessing {
			next = models.OrderStatusShipped
		}
	case models.ShipmentStatusDelivered:
		if order.Status != models.OrderStatusShipped {
			break
		}
		var open int64
		if err := tx.Model(&models.Shipment{}).
			Where("order_id = ? AND status NOT IN ?", order.ID,
				[]models.ShipmentStatus{models.ShipmentStatusDelivered, models.ShipmentStatusReturned}).
			Count(&open).Error; err != nil {
			return "", fmt.Errorf("failed to count open shipments: %w", err)
		}
		if open == 0 {
			next = models.OrderStatusDelivered
		}
	}
	if next == "" {
		return "", nil
	}
	if err := tx.Model(order).Update("status", next).Error; err != nil {
		return "", fmt.Errorf("failed to update order status: %w", err)
	}
	order.Status = next
	return next, nil
}

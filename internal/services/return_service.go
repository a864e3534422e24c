// internal/services/return_service.go
package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/javajoker/storefront-backend/internal/models"
	"github.com/javajoker/storefront-backend/internal/utils"
)

type ReturnService struct {
	db            *gorm.DB
	audit         *AuditService
	notifications *NotificationService
	mailer        *Mailer
	now           func() time.Time
}

var returnTransitions = map[models.ReturnStatus][]models.ReturnStatus{
	models.ReturnStatusRequested: {models.ReturnStatusApproved, models.ReturnStatusRejected},
	models.ReturnStatusApproved:  {models.ReturnStatusReceived},
	models.ReturnStatusReceived:  {models.ReturnStatusCompleted},
}

func CanTransitionReturn(from, to models.ReturnStatus) bool {
	for _, next := range returnTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type ReturnItemRequest struct {
	OrderItemID uuid.UUID `json:"order_item_id" validate:"required"`
	Quantity    int       `json:"quantity" validate:"required,min=1"`
}

type CreateReturnRequest struct {
	Items  []ReturnItemRequest `json:"items" validate:"required,min=1,dive"`
	Reason string              `json:"reason" validate:"required,max=2000"`
}

type ResolveReturnRequest struct {
	Notes string `json:"notes" validate:"max=2000"`
}

type ReceiveReturnRequest struct {
	Restock bool   `json:"restock"`
	Notes   string `json:"notes" validate:"max=2000"`
}

type ReturnFilter struct {
	utils.PaginationParams
	Status  *string    `json:"status,omitempty"`
	OrderID *uuid.UUID `json:"order_id,omitempty"`
	UserID  *uuid.UUID `json:"user_id,omitempty"`
}

func NewReturnService(db *gorm.DB, audit *AuditService, notifications *NotificationService, mailer *Mailer) *ReturnService {
	return &ReturnService{
		db:            db,
		audit:         audit,
		notifications: notifications,
		mailer:        mailer,
		now:           time.Now,
	}
}

// returnedQuantity sums an order item's quantity across non-rejected returns.
func returnedQuantity(tx *gorm.DB, orderItemID uuid.UUID) (int, error) {
	var qty int64
	err := tx.Model(&models.ReturnItem{}).
		Select("COALESCE(SUM(return_items.quantity), 0)").
		Joins("JOIN return_requests ON return_requests.id = return_items.return_request_id AND return_requests.deleted_at IS NULL").
		Where("return_items.order_item_id = ? AND return_requests.status <> ?", orderItemID, models.ReturnStatusRejected).
		Scan(&qty).Error
	if err != nil {
		return 0, fmt.Errorf("failed to sum returned quantity: %w", err)
	}
	return int(qty), nil
}

// RequestReturn opens a return on a delivered order owned by userID.
func (s *ReturnService) RequestReturn(actor Actor, userID, orderID uuid.UUID, req *CreateReturnRequest) (*models.ReturnRequest, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	requested := map[uuid.UUID]int{}
	var order []uuid.UUID
	for _, item := range req.Items {
		if _, seen := requested[item.OrderItemID]; !seen {
			order = append(order, item.OrderItemID)
		}
		requested[item.OrderItemID] += item.Quantity
	}

	var (
		ret       *models.ReturnRequest
		orderCopy models.Order
	)
	err := s.db.Transaction(func(tx *gorm.DB) error {
		o, err := lockOrder(tx, orderID)
		if err != nil {
			return err
		}
		if err := ensureOrderVisible(o, &userID); err != nil {
			return err
		}
		if o.Status != models.OrderStatusDelivered {
			return utils.NewConflictError("only delivered orders can be returned")
		}

		ret = &models.ReturnRequest{
			OrderID: o.ID,
			UserID:  &userID,
			Status:  models.ReturnStatusRequested,
			Reason:  strings.TrimSpace(req.Reason),
		}

		var problems []utils.ValidationError
		for _, itemID := range order {
			var item models.OrderItem
			if err := tx.First(&item, "id = ? AND order_id = ?", itemID, o.ID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					problems = append(problems, utils.ValidationError{
						Field: "items", Tag: "invalid", Message: fmt.Sprintf("item %s is not part of this order", itemID),
					})
					continue
				}
				return fmt.Errorf("failed to load order item: %w", err)
			}
			already, err := returnedQuantity(tx, item.ID)
			if err != nil {
				return err
			}
			if requested[itemID] > item.Quantity-already {
				problems = append(problems, utils.ValidationError{
					Field: "items", Tag: "max",
					Message: fmt.Sprintf("at most %d of %s can be returned", max(item.Quantity-already, 0), item.ProductName),
				})
				continue
			}
			ret.Items = append(ret.Items, models.ReturnItem{OrderItemID: item.ID, Quantity: requested[itemID]})
		}
		if len(problems) > 0 {
			return utils.NewValidationError("invalid return items", problems)
		}

		if err := tx.Create(ret).Error; err != nil {
			return fmt.Errorf("failed to create return request: %w", err)
		}
		if err := s.notifications.NotifyStaff(tx, NotificationReturnRequested,
			"Return requested for "+o.OrderNumber, ret.Reason, "return_request", &ret.ID); err != nil {
			return err
		}
		if err := s.audit.RecordTx(tx, actor, AuditEntry{
			Action:       "return.requested",
			ResourceType: "return_request",
			ResourceID:   &ret.ID,
			NewValues:    map[string]interface{}{"order_id": o.ID, "items": requested},
		}); err != nil {
			return err
		}
		orderCopy = *o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.mailer.SendReturnStatus(&orderCopy, ret)
	return s.Get(ret.ID)
}

func (s *ReturnService) List(filter ReturnFilter) ([]models.ReturnRequest, int64, error) {
	query := s.db.Model(&models.ReturnRequest{})

	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.OrderID != nil {
		query = query.Where("order_id = ?", *filter.OrderID)
	}
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count returns: %w", err)
	}

	query = utils.ApplySort(query, filter.PaginationParams, []string{"created_at", "status", "resolved_at"})
	query = utils.ApplyPagination(query, filter.PaginationParams)

	var returns []models.ReturnRequest
	if err := query.Preload("Items.OrderItem").Preload("Order").Find(&returns).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch returns: %w", err)
	}
	return returns, total, nil
}

func (s *ReturnService) ListForUser(userID uuid.UUID, params utils.PaginationParams) ([]models.ReturnRequest, int64, error) {
	return s.List(ReturnFilter{PaginationParams: params, UserID: &userID})
}

func (s *ReturnService) Get(id uuid.UUID) (*models.ReturnRequest, error) {
	var ret models.ReturnRequest
	if err := s.db.Preload("Items.OrderItem").Preload("Order").First(&ret, "id = ?", id).Error; err != nil {
		return nil, findOrNotFound(err, "Return request")
	}
	return &ret, nil
}

func (s *ReturnService) Approve(actor Actor, id uuid.UUID, req *ResolveReturnRequest) (*models.ReturnRequest, error) {
	if req == nil {
		req = &ResolveReturnRequest{}
	}
	if err := validate(req); err != nil {
		return nil, err
	}
	return s.transition(actor, id, models.ReturnStatusApproved, req.Notes, nil)
}

func (s *ReturnService) Reject(actor Actor, id uuid.UUID, req *ResolveReturnRequest) (*models.ReturnRequest, error) {
	if req == nil || strings.TrimSpace(req.Notes) == "" {
		return nil, utils.NewValidationError("notes are required when rejecting a return", []utils.ValidationError{
			{Field: "notes", Tag: "required", Message: "notes is required"},
		})
	}
	if err := validate(req); err != nil {
		return nil, err
	}
	return s.transition(actor, id, models.ReturnStatusRejected, req.Notes, nil)
}

// MarkReceived records the goods as received and optionally restocks them.
func (s *ReturnService) MarkReceived(actor Actor, id uuid.UUID, req *ReceiveReturnRequest) (*models.ReturnRequest, error) {
	if req == nil {
		req = &ReceiveReturnRequest{}
	}
	if err := validate(req); err != nil {
		return nil, err
	}

	var hook func(tx *gorm.DB, ret *models.ReturnRequest) error
	if req.Restock {
		hook = func(tx *gorm.DB, ret *models.ReturnRequest) error {
			for _, ri := range ret.Items {
				var item models.OrderItem
				if err := tx.First(&item, "id = ?", ri.OrderItemID).Error; err != nil {
					return findOrNotFound(err, "Order item")
				}
				if err := restock(tx, item, ri.Quantity); err != nil {
					return err
				}
			}
			return nil
		}
	}
	return s.transition(actor, id, models.ReturnStatusReceived, req.Notes, hook)
}

func (s *ReturnService) transition(actor Actor, id uuid.UUID, to models.ReturnStatus, notes string, hook func(tx *gorm.DB, ret *models.ReturnRequest) error) (*models.ReturnRequest, error) {
	var order models.Order
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var ret models.ReturnRequest
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Preload("Items").First(&ret, "id = ?", id).Error; err != nil {
			return findOrNotFound(err, "Return request")
		}
		if err := s.apply(tx, actor, &ret, to, notes); err != nil {
			return err
		}
		if hook != nil {
			if err := hook(tx, &ret); err != nil {
				return err
			}
		}
		if err := tx.First(&order, "id = ?", ret.OrderID).Error; err != nil {
			return findOrNotFound(err, "Order")
		}
		if ret.UserID != nil {
			return s.notifications.NotifyUser(tx, *ret.UserID, NotificationReturnUpdated,
				"Return for "+order.OrderNumber+" "+string(to), notes, "return_request", &ret.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	updated, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	s.mailer.SendReturnStatus(&order, updated)
	return updated, nil
}

// apply changes the status of a locked return inside tx.
func (s *ReturnService) apply(tx *gorm.DB, actor Actor, ret *models.ReturnRequest, to models.ReturnStatus, notes string) error {
	if !CanTransitionReturn(ret.Status, to) {
		return utils.NewConflictError(fmt.Sprintf("cannot change return status from %s to %s", ret.Status, to))
	}

	now := s.now()
	old := ret.Status
	updates := map[string]interface{}{
		"status":      to,
		"resolved_by": actor.UserID,
		"resolved_at": now,
	}
	if notes = strings.TrimSpace(notes); notes != "" {
		updates["admin_notes"] = notes
	}
	if err := tx.Model(ret).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update return: %w", err)
	}
	ret.Status = to
	ret.ResolvedAt = &now
	ret.ResolvedBy = actor.UserID

	return s.audit.RecordTx(tx, actor, AuditEntry{
		Action:       "return." + string(to),
		ResourceType: "return_request",
		ResourceID:   &ret.ID,
		OldValues:    map[string]interface{}{"status": old},
		NewValues:    map[string]interface{}{"status": to, "notes": notes},
	})
}

// CompleteTx marks a received return completed once it has been refunded.
func (s *ReturnService) CompleteTx(tx *gorm.DB, actor Actor, id, orderID uuid.UUID) (*models.ReturnRequest, error) {
	var ret models.ReturnRequest
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&ret, "id = ?", id).Error; err != nil {
		return nil, findOrNotFound(err, "Return request")
	}
	if ret.OrderID != orderID {
		return nil, utils.NewValidationError("return request does not belong to this order", nil)
	}
	if ret.Status != models.ReturnStatusReceived {
		return nil, utils.NewValidationError("return must be received before it is refunded", nil)
	}
	if err := s.apply(tx, actor, &ret, models.ReturnStatusCompleted, ""); err != nil {
		return nil, err
	}
	return &ret, nil
}

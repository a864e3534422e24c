// internal/services/order_service.go
package services

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/javajoker/storefront-backend/internal/metrics"
	"github.com/javajoker/storefront-backend/internal/models"
	"github.com/javajoker/storefront-backend/internal/utils"
)

type OrderService struct {
	db            *gorm.DB
	audit         *AuditService
	notifications *NotificationService
	mailer        *Mailer
	now           func() time.Time
}

// orderTransitions lists the statuses an order may move to by hand.
// Refund states are reached only through RefundService.
var orderTransitions = map[models.OrderStatus][]models.OrderStatus{
	models.OrderStatusPending:    {models.OrderStatusProcessing, models.OrderStatusCancelled},
	models.OrderStatusProcessing: {models.OrderStatusShipped, models.OrderStatusCancelled},
	models.OrderStatusShipped:    {models.OrderStatusDelivered},
}

// revenueStatuses are the order states counted as revenue.
var revenueStatuses = []models.OrderStatus{
	models.OrderStatusProcessing,
	models.OrderStatusShipped,
	models.OrderStatusDelivered,
}

func CanTransitionOrder(from, to models.OrderStatus) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type OrderFilter struct {
	utils.PaginationParams
	Status        *string    `json:"status,omitempty"`
	PaymentStatus *string    `json:"payment_status,omitempty"`
	UserID        *uuid.UUID `json:"user_id,omitempty"`
	From          *time.Time `json:"from,omitempty"`
	To            *time.Time `json:"to,omitempty"`
}

type UpdateOrderStatusRequest struct {
	Status models.OrderStatus `json:"status" validate:"required,oneof=processing shipped delivered cancelled"`
	Reason string             `json:"reason" validate:"max=500"`
}

type CancelOrderRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type DailyRevenue struct {
	Date    string          `json:"date"`
	Orders  int64           `json:"orders"`
	Revenue decimal.Decimal `json:"revenue"`
}

type OrderMetrics struct {
	TotalOrders       int64            `json:"total_orders"`
	Revenue           decimal.Decimal  `json:"revenue"`
	AverageOrderValue decimal.Decimal  `json:"average_order_value"`
	ByStatus          map[string]int64 `json:"by_status"`
	RevenueByDay      []DailyRevenue   `json:"revenue_by_day"`
}

func NewOrderService(db *gorm.DB, audit *AuditService, notifications *NotificationService, mailer *Mailer) *OrderService {
	return &OrderService{
		db:            db,
		audit:         audit,
		notifications: notifications,
		mailer:        mailer,
		now:           time.Now,
	}
}

func preloadOrderDetail(db *gorm.DB) *gorm.DB {
	return db.Preload("Items").
		Preload("Shipments", func(db *gorm.DB) *gorm.DB { return db.Order("created_at asc") }).
		Preload("Refunds", func(db *gorm.DB) *gorm.DB { return db.Order("created_at asc") }).
		Preload("Returns.Items")
}

func (s *OrderService) List(filter OrderFilter) ([]models.Order, int64, error) {
	query := s.db.Model(&models.Order{})

	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.PaymentStatus != nil {
		query = query.Where("payment_status = ?", *filter.PaymentStatus)
	}
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.From != nil {
		query = query.Where("placed_at >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("placed_at <= ?", *filter.To)
	}
	if filter.Search != "" {
		pattern := likePattern(filter.Search)
		query = query.Where("LOWER(order_number) LIKE ? OR LOWER(email) LIKE ?", pattern, pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	query = utils.ApplySort(query, filter.PaginationParams, []string{"created_at", "placed_at", "total", "status", "order_number"})
	query = utils.ApplyPagination(query, filter.PaginationParams)

	var orders []models.Order
	if err := query.Preload("Items").Find(&orders).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch orders: %w", err)
	}
	return orders, total, nil
}

func (s *OrderService) Get(id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := preloadOrderDetail(s.db).Preload("User").First(&order, "id = ?", id).Error; err != nil {
		return nil, findOrNotFound(err, "Order")
	}
	return &order, nil
}

func (s *OrderService) ListForUser(userID uuid.UUID, params utils.PaginationParams) ([]models.Order, int64, error) {
	return s.List(OrderFilter{PaginationParams: params, UserID: &userID})
}

// GetForUser returns NotFound for orders owned by someone else.
func (s *OrderService) GetForUser(userID, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := preloadOrderDetail(s.db).First(&order, "id = ? AND user_id = ?", id, userID).Error; err != nil {
		return nil, findOrNotFound(err, "Order")
	}
	return &order, nil
}

func lockOrder(tx *gorm.DB, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&order, "id = ?", id).Error; err != nil {
		return nil, findOrNotFound(err, "Order")
	}
	return &order, nil
}

func (s *OrderService) UpdateStatus(actor Actor, id uuid.UUID, req *UpdateOrderStatusRequest) (*models.Order, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	if req.Status == models.OrderStatusCancelled {
		return s.Cancel(actor, id, &CancelOrderRequest{Reason: req.Reason})
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		order, err := lockOrder(tx, id)
		if err != nil {
			return err
		}
		if !CanTransitionOrder(order.Status, req.Status) {
			return utils.NewConflictError(fmt.Sprintf("cannot change order status from %s to %s", order.Status, req.Status))
		}

		old := order.Status
		if err := tx.Model(order).Update("status", req.Status).Error; err != nil {
			return fmt.Errorf("failed to update order status: %w", err)
		}
		if order.UserID != nil {
			if err := s.notifications.NotifyUser(tx, *order.UserID, NotificationOrderUpdated,
				"Order "+order.OrderNumber+" updated",
				fmt.Sprintf("Your order is now %s", req.Status), "order", &order.ID); err != nil {
				return err
			}
		}
		return s.audit.RecordTx(tx, actor, AuditEntry{
			Action:       "order.status_updated",
			ResourceType: "order",
			ResourceID:   &order.ID,
			OldValues:    map[string]interface{}{"status": old},
			NewValues:    map[string]interface{}{"status": req.Status, "reason": req.Reason},
		})
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordOrderTransition(string(req.Status))
	return s.Get(id)
}

// Cancel restocks the order lines and gives back one use of its discount.
// Staff may cancel pending or processing orders.
func (s *OrderService) Cancel(actor Actor, id uuid.UUID, req *CancelOrderRequest) (*models.Order, error) {
	return s.cancel(actor, id, nil, req)
}

// CancelForUser lets a customer cancel their own order while it is pending.
func (s *OrderService) CancelForUser(actor Actor, userID, id uuid.UUID, req *CancelOrderRequest) (*models.Order, error) {
	return s.cancel(actor, id, &userID, req)
}

func (s *OrderService) cancel(actor Actor, id uuid.UUID, ownerID *uuid.UUID, req *CancelOrderRequest) (*models.Order, error) {
	if req == nil {
		req = &CancelOrderRequest{}
	}
	if err := validate(req); err != nil {
		return nil, err
	}

	var cancelled *models.Order
	err := s.db.Transaction(func(tx *gorm.DB) error {
		order, err := lockOrder(tx, id)
		if err != nil {
			return err
		}
		if ownerID != nil {
			if err := ensureOrderVisible(order, ownerID); err != nil {
				return err
			}
			if order.Status != models.OrderStatusPending {
				return utils.NewConflictError("only pending orders can be cancelled")
			}
		}
		if !CanTransitionOrder(order.Status, models.OrderStatusCancelled) {
			return utils.NewConflictError(fmt.Sprintf("cannot cancel an order that is %s", order.Status))
		}

		var items []models.OrderItem
		if err := tx.Where("order_id = ?", order.ID).Find(&items).Error; err != nil {
			return fmt.Errorf("failed to load order items: %w", err)
		}
		for _, item := range items {
			if err := restock(tx, item, item.Quantity); err != nil {
				return err
			}
		}

		if order.DiscountID != nil {
			if err := tx.Model(&models.Discount{}).
				Where("id = ? AND usage_count > 0", *order.DiscountID).
				UpdateColumn("usage_count", gorm.Expr("usage_count - 1")).Error; err != nil {
				return fmt.Errorf("failed to release discount usage: %w", err)
			}
		}

		now := s.now()
		old := order.Status
		if err := tx.Model(order).Updates(map[string]interface{}{
			"status":       models.OrderStatusCancelled,
			"cancelled_at": now,
		}).Error; err != nil {
			return fmt.Errorf("failed to cancel order: %w", err)
		}
		if err := tx.Model(&models.Shipment{}).
			Where("order_id = ? AND status = ?", order.ID, models.ShipmentStatusPending).
			Delete(&models.Shipment{}).Error; err != nil {
			return fmt.Errorf("failed to drop pending shipments: %w", err)
		}

		if err := s.notifications.NotifyStaff(tx, NotificationOrderCancelled,
			"Order "+order.OrderNumber+" cancelled", req.Reason, "order", &order.ID); err != nil {
			return err
		}
		if err := s.audit.RecordTx(tx, actor, AuditEntry{
			Action:       "order.cancelled",
			ResourceType: "order",
			ResourceID:   &order.ID,
			OldValues:    map[string]interface{}{"status": old},
			NewValues:    map[string]interface{}{"status": models.OrderStatusCancelled, "reason": req.Reason},
		}); err != nil {
			return err
		}

		order.Status = models.OrderStatusCancelled
		order.CancelledAt = &now
		cancelled = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.mailer.SendOrderCancelled(cancelled)
	metrics.RecordOrderTransition(string(models.OrderStatusCancelled))
	return s.Get(id)
}

// restock returns quantity units of an order line to the catalog. Rows
// deleted since the order was placed are skipped.
func restock(tx *gorm.DB, item models.OrderItem, quantity int) error {
	var err error
	if item.VariantID != nil {
		err = tx.Model(&models.ProductVariant{}).Where("id = ?", *item.VariantID).
			UpdateColumn("stock", gorm.Expr("stock + ?", quantity)).Error
	} else {
		err = tx.Model(&models.Product{}).Where("id = ?", item.ProductID).
			UpdateColumn("stock", gorm.Expr("stock + ?", quantity)).Error
	}
	if err != nil {
		return fmt.Errorf("failed to restock %s: %w", item.SKU, err)
	}
	return nil
}

type orderRevenueRow struct {
	PlacedAt time.Time
	Total    decimal.Decimal
}

// Metrics summarises orders; RevenueByDay covers the last days days.
func (s *OrderService) Metrics(days int) (*OrderMetrics, error) {
	if days <= 0 || days > 365 {
		days = 30
	}

	result := &OrderMetrics{ByStatus: map[string]int64{}}
	if err := s.db.Model(&models.Order{}).Count(&result.TotalOrders).Error; err != nil {
		return nil, fmt.Errorf("failed to count orders: %w", err)
	}

	var byStatus []struct {
		Status string
		Count  int64
	}
	if err := s.db.Model(&models.Order{}).Select("status, COUNT(*) AS count").
		Group("status").Scan(&byStatus).Error; err != nil {
		return nil, fmt.Errorf("failed to count orders by status: %w", err)
	}
	for _, row := range byStatus {
		result.ByStatus[row.Status] = row.Count
	}

	var revenue struct {
		Count int64
		Sum   decimal.Decimal
	}
	if err := s.db.Model(&models.Order{}).
		Select("COUNT(*) AS count, COALESCE(SUM(total), 0) AS sum").
		Where("status IN ?", revenueStatuses).
		Scan(&revenue).Error; err != nil {
		return nil, fmt.Errorf("failed to sum revenue: %w", err)
	}
	result.Revenue = utils.RoundMoney(revenue.Sum)
	result.AverageOrderValue = decimal.Zero
	if revenue.Count > 0 {
		result.AverageOrderValue = utils.RoundMoney(revenue.Sum.Div(decimal.NewFromInt(revenue.Count)))
	}

	now := s.now().UTC()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -(days - 1))
	var rows []orderRevenueRow
	if err := s.db.Model(&models.Order{}).Select("placed_at, total").
		Where("status IN ? AND placed_at >= ?", revenueStatuses, start).
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load daily revenue: %w", err)
	}
	result.RevenueByDay = bucketRevenue(rows, start, days)

	return result, nil
}

func bucketRevenue(rows []orderRevenueRow, start time.Time, days int) []DailyRevenue {
	out := make([]DailyRevenue, days)
	index := make(map[string]int, days)
	for i := 0; i < days; i++ {
		day := start.AddDate(0, 0, i).Format("2006-01-02")
		out[i] = DailyRevenue{Date: day, Revenue: decimal.Zero}
		index[day] = i
	}
	for _, row := range rows {
		i, ok := index[row.PlacedAt.UTC().Format("2006-01-02")]
		if !ok {
			continue
		}
		out[i].Orders++
		out[i].Revenue = out[i].Revenue.Add(row.Total)
	}
	for i := range out {
		out[i].Revenue = utils.RoundMoney(out[i].Revenue)
	}
	return out
}

func ensureOrderVisible(order *models.Order, ownerID *uuid.UUID) error {
	if ownerID == nil {
		return nil
	}
	if order.UserID == nil || *order.UserID != *ownerID {
		return utils.NewNotFoundError("Order")
	}
	return nil
}

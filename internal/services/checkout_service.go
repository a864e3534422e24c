// internal/services/checkout_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/javajoker/storefront-backend/internal/cache"
	"github.com/javajoker/storefront-backend/internal/metrics"
	"github.com/javajoker/storefront-backend/internal/models"
	"github.com/javajoker/storefront-backend/internal/utils"
)

// Payment methods accepted at checkout.
const (
	PaymentMethodCard           = "card"
	PaymentMethodCashOnDelivery = "cash_on_delivery"
	PaymentMethodBankTransfer   = "bank_transfer"
)

type CheckoutService struct {
	db            *gorm.DB
	carts         *CartService
	discounts     *DiscountService
	settings      *SettingsService
	notifications *NotificationService
	audit         *AuditService
	payments      *PaymentService
	mailer        *Mailer
	idempotency   cache.IdempotencyStore
	now           func() time.Time
}

type CheckoutRequest struct {
	Email           string         `json:"email" validate:"omitempty,email"`
	ShippingAddress models.Address `json:"shipping_address"`
	PaymentMethod   string         `json:"payment_method" validate:"required,oneof=card cash_on_delivery bank_transfer"`
	Notes           string         `json:"notes" validate:"max=1000"`
}

type ConfirmPaymentRequest struct {
	OrderID         uuid.UUID `json:"order_id" validate:"required"`
	PaymentIntentID string    `json:"payment_intent_id" validate:"required"`
}

type CheckoutResult struct {
	Order        *models.Order  `json:"order"`
	Payment      *PaymentIntent `json:"payment,omitempty"`
	PaymentError string         `json:"payment_error,omitempty"`
}

func NewCheckoutService(
	db *gorm.DB,
	carts *CartService,
	discounts *DiscountService,
	settings *SettingsService,
	notifications *NotificationService,
	audit *AuditService,
	payments *PaymentService,
	mailer *Mailer,
	idempotency cache.IdempotencyStore,
) *CheckoutService {
	return &CheckoutService{
		db:            db,
		carts:         carts,
		discounts:     discounts,
		settings:      settings,
		notifications: notifications,
		audit:         audit,
		payments:      payments,
		mailer:        mailer,
		idempotency:   idempotency,
		now:           time.Now,
	}
}

// GenerateOrderNumber returns ORD-YYYYMMDD-XXXXXX.
func GenerateOrderNumber(now time.Time) (string, error) {
	code, err := utils.GenerateRandomCode(6)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("ORD-%s-%s", now.UTC().Format("20060102"), code), nil
}

func failureReason(err error) string {
	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		return strings.ToLower(appErr.Code)
	}
	return "error"
}

// PlaceOrder turns the owner's cart into an order in one transaction.
// A non-empty idempotencyKey can be used once per 24 hours.
func (s *CheckoutService) PlaceOrder(ctx context.Context, owner CartOwner, actor Actor, req *CheckoutRequest, idempotencyKey string) (result *CheckoutResult, err error) {
	defer func() {
		if err != nil {
			metrics.RecordCheckoutFailure(failureReason(err))
		}
	}()

	req.Email = normalizeEmail(req.Email)
	if vErr := validate(req); vErr != nil {
		return nil, vErr
	}
	if req.PaymentMethod == PaymentMethodCard && !s.payments.Enabled() {
		return nil, utils.NewValidationError("card payments are not available", nil)
	}
	req.ShippingAddress.Country = strings.ToUpper(req.ShippingAddress.Country)

	email, err := s.resolveEmail(owner, req.Email)
	if err != nil {
		return nil, err
	}

	if idempotencyKey != "" {
		key := idempotencyScope(owner) + idempotencyKey
		claimed, mErr := s.idempotency.MarkProcessed(ctx, key, cache.DefaultIdempotencyTTL)
		if mErr != nil {
			return nil, fmt.Errorf("failed to check idempotency key: %w", mErr)
		}
		if !claimed {
			return nil, utils.NewConflictError("this checkout request has already been submitted")
		}
		defer func() {
			if err != nil {
				if releaseErr := s.idempotency.Release(context.Background(), key); releaseErr != nil {
					logrus.WithError(releaseErr).Warn("Failed to release idempotency key")
				}
			}
		}()
	}

	var order *models.Order
	err = s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		order, err = s.placeOrderTx(tx, owner, actor, req, email)
		return err
	})
	if err != nil {
		return nil, err
	}

	result = &CheckoutResult{Order: order}
	if req.PaymentMethod == PaymentMethodCard {
		s.attachPaymentIntent(result)
	}

	s.mailer.SendOrderConfirmation(order)
	metrics.RecordOrderPlaced(order.PaymentMethod, order.Currency, order.Total.InexactFloat64())

	logrus.WithFields(logrus.Fields{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"total":        order.Total.StringFixed(2),
	}).Info("Order placed")

	return result, nil
}

// idempotencyScope keeps keys from different customers apart.
func idempotencyScope(owner CartOwner) string {
	if owner.UserID != nil {
		return "checkout:user:" + owner.UserID.String() + ":"
	}
	return "checkout:session:" + owner.SessionID + ":"
}

func (s *CheckoutService) resolveEmail(owner CartOwner, email string) (string, error) {
	email = normalizeEmail(email)
	if owner.UserID == nil {
		if email == "" {
			return "", utils.NewValidationError("email is required for guest checkout", []utils.ValidationError{
				{Field: "email", Tag: "required", Message: "email is required"},
			})
		}
		return email, nil
	}
	if email != "" {
		return email, nil
	}
	var user models.User
	if err := s.db.First(&user, "id = ?", *owner.UserID).Error; err != nil {
		return "", findOrNotFound(err, "User")
	}
	return user.Email, nil
}

type lockedLine struct {
	item    models.CartItem
	product *models.Product
	variant *models.ProductVariant
}

func (s *CheckoutService) placeOrderTx(tx *gorm.DB, owner CartOwner, actor Actor, req *CheckoutRequest, email string) (*models.Order, error) {
	// 1. cart
	cart, err := s.carts.loadCart(tx, owner, true)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewValidationError("cart is empty", nil)
		}
		return nil, err
	}
	if len(cart.Items) == 0 {
		return nil, utils.NewValidationError("cart is empty", nil)
	}

	// 2. lock catalog rows in a stable order
	items := append([]models.CartItem(nil), cart.Items...)
	sort.Slice(items, func(i, j int) bool {
		return items[i].ProductID.String() < items[j].ProductID.String()
	})

	lines := make([]lockedLine, 0, len(items))
	for _, item := range items {
		line, err := lockLine(tx, item)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}

	// 3. price with fresh catalog data
	pricing := make([]PricingLine, 0, len(lines))
	for _, l := range lines {
		pricing = append(pricing, PricingLine{
			ProductID:  l.product.ID,
			CategoryID: l.product.CategoryID,
			UnitPrice:  l.product.EffectivePrice(l.variant),
			Quantity:   l.item.Quantity,
		})
	}
	settings, err := s.settings.StoreSettings(tx)
	if err != nil {
		return nil, err
	}
	candidates, err := s.discounts.Candidates(tx, cart.DiscountCode)
	if err != nil {
		return nil, err
	}
	now := s.now()
	totals := ComputeTotals(pricing, candidates, settings, now)

	// 4. claim one use of the discount
	applied := totals.AppliedDiscountModel()
	if applied != nil {
		res := tx.Model(&models.Discount{}).
			Where("id = ? AND (usage_limit IS NULL OR usage_count < usage_limit)", applied.ID).
			UpdateColumn("usage_count", gorm.Expr("usage_count + 1"))
		if res.Error != nil {
			return nil, fmt.Errorf("failed to record discount usage: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil, utils.NewConflictError("discount no longer available")
		}
	}

	// 5. order and item snapshots
	number, err := GenerateOrderNumber(now)
	if err != nil {
		return nil, fmt.Errorf("failed to generate order number: %w", err)
	}
	order := &models.Order{
		OrderNumber:     number,
		UserID:          owner.UserID,
		Email:           email,
		Status:          models.OrderStatusPending,
		PaymentStatus:   models.PaymentStatusPending,
		PaymentMethod:   req.PaymentMethod,
		Currency:        settings.Currency,
		Subtotal:        totals.Subtotal,
		DiscountTotal:   totals.DiscountTotal,
		TaxTotal:        totals.TaxTotal,
		ShippingTotal:   totals.ShippingTotal,
		Total:           totals.Total,
		RefundedTotal:   decimal.Zero,
		ShippingAddress: req.ShippingAddress,
		Notes:           req.Notes,
		PlacedAt:        now,
	}
	if applied != nil {
		order.DiscountID = &applied.ID
		if applied.Code != nil {
			order.DiscountCode = *applied.Code
		}
	}
	for i, l := range lines {
		sku := l.product.SKU
		name := l.product.Name
		if l.variant != nil {
			sku = l.variant.SKU
			name = fmt.Sprintf("%s - %s", l.product.Name, l.variant.Name)
		}
		order.Items = append(order.Items, models.OrderItem{
			ProductID:   l.product.ID,
			VariantID:   l.item.VariantID,
			ProductName: name,
			SKU:         sku,
			UnitPrice:   pricing[i].UnitPrice,
			Quantity:    l.item.Quantity,
			LineTotal:   utils.RoundMoney(pricing[i].Total()),
		})
	}
	if err := tx.Create(order).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, utils.NewConflictError("order number collision, please retry")
		}
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	// 6. stock
	for _, l := range lines {
		if err := decrementStock(tx, l); err != nil {
			return nil, err
		}
	}

	// 7. shipment
	shipment := &models.Shipment{
		OrderID: order.ID,
		Status:  models.ShipmentStatusPending,
		Address: req.ShippingAddress,
	}
	if err := tx.Create(shipment).Error; err != nil {
		return nil, fmt.Errorf("failed to create shipment: %w", err)
	}
	order.Shipments = []models.Shipment{*shipment}

	// 8. staff notification
	if err := s.notifications.NotifyStaff(tx, NotificationOrderPlaced, "New order "+order.OrderNumber,
		fmt.Sprintf("%s placed an order for %s %s", order.Email, order.Total.StringFixed(2), order.Currency),
		"order", &order.ID); err != nil {
		return nil, err
	}

	// 9. empty the cart
	if err := clearCart(tx, cart.ID); err != nil {
		return nil, err
	}

	// 10. audit
	if err := s.audit.RecordTx(tx, actor, AuditEntry{
		Action:       "order.placed",
		ResourceType: "order",
		ResourceID:   &order.ID,
		NewValues: map[string]interface{}{
			"order_number": order.OrderNumber,
			"total":        order.Total,
			"discount_id":  order.DiscountID,
			"items":        len(order.Items),
		},
	}); err != nil {
		return nil, err
	}

	return order, nil
}

func lockLine(tx *gorm.DB, item models.CartItem) (lockedLine, error) {
	var product models.Product
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&product, "id = ?", item.ProductID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return lockedLine{}, utils.NewConflictError("a product in your cart is no longer available")
	}
	if err != nil {
		return lockedLine{}, fmt.Errorf("failed to lock product: %w", err)
	}
	if !product.IsPurchasable() {
		return lockedLine{}, utils.NewConflictError(fmt.Sprintf("%s is no longer available", product.Name))
	}

	line := lockedLine{item: item, product: &product}
	if item.VariantID != nil {
		var variant models.ProductVariant
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&variant, "id = ? AND product_id = ?", *item.VariantID, item.ProductID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && !variant.IsActive) {
			return lockedLine{}, utils.NewConflictError(fmt.Sprintf("the selected option of %s is no longer available", product.Name))
		}
		if err != nil {
			return lockedLine{}, fmt.Errorf("failed to lock variant: %w", err)
		}
		line.variant = &variant
	}

	if availableStock(line.product, line.variant) < item.Quantity {
		return lockedLine{}, utils.NewConflictError(fmt.Sprintf("insufficient stock for %s", product.Name))
	}
	return line, nil
}

// decrementStock guards against negative stock even without row locks.
func decrementStock(tx *gorm.DB, l lockedLine) error {
	var res *gorm.DB
	if l.variant != nil {
		res = tx.Model(&models.ProductVariant{}).
			Where("id = ? AND stock >= ?", l.variant.ID, l.item.Quantity).
			UpdateColumn("stock", gorm.Expr("stock - ?", l.item.Quantity))
	} else {
		res = tx.Model(&models.Product{}).
			Where("id = ? AND stock >= ?", l.product.ID, l.item.Quantity).
			UpdateColumn("stock", gorm.Expr("stock - ?", l.item.Quantity))
	}
	if res.Error != nil {
		return fmt.Errorf("failed to decrement stock: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return utils.NewConflictError(fmt.Sprintf("insufficient stock for %s", l.product.Name))
	}
	return nil
}

func (s *CheckoutService) attachPaymentIntent(result *CheckoutResult) {
	order := result.Order
	intent, err := s.payments.CreateIntent(utils.ToCents(order.Total), order.Currency, map[string]string{
		"order_id":     order.ID.String(),
		"order_number": order.OrderNumber,
	}, "order_"+order.ID.String())
	if err != nil {
		logrus.WithError(err).WithField("order_id", order.ID).Error("Failed to create payment intent")
		result.PaymentError = "payment could not be initialised, please retry payment from your order"
		return
	}

	if err := s.db.Model(order).Update("payment_reference", intent.ID).Error; err != nil {
		logrus.WithError(err).WithField("order_id", order.ID).Error("Failed to store payment reference")
	}
	order.PaymentReference = intent.ID
	result.Payment = intent
}

// ConfirmPayment reconciles an order with its payment intent.
func (s *CheckoutService) ConfirmPayment(actor Actor, req *ConfirmPaymentRequest) (*models.Order, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	if !s.payments.Enabled() {
		return nil, utils.NewValidationError("card payments are not available", nil)
	}

	var order models.Order
	if err := s.db.First(&order, "id = ?", req.OrderID).Error; err != nil {
		return nil, findOrNotFound(err, "Order")
	}
	if order.PaymentReference == "" || order.PaymentReference != req.PaymentIntentID {
		return nil, utils.NewValidationError("payment does not belong to this order", nil)
	}
	if order.PaymentStatus == models.PaymentStatusPaid {
		return &order, nil
	}

	intent, err := s.payments.GetIntent(req.PaymentIntentID)
	if err != nil {
		return nil, utils.NewAppError(http.StatusBadGateway, "PAYMENT_ERROR", "could not verify payment", err)
	}

	updates := map[string]interface{}{}
	switch intent.Status {
	case IntentStatusSucceeded:
		updates["payment_status"] = models.PaymentStatusPaid
		if order.Status == models.OrderStatusPending {
			updates["status"] = models.OrderStatusProcessing
		}
	case IntentStatusRequiresPaymentMethod, IntentStatusCanceled:
		updates["payment_status"] = models.PaymentStatusFailed
	default:
		return &order, nil
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&order).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to update payment status: %w", err)
		}
		return s.audit.RecordTx(tx, actor, AuditEntry{
			Action:       "order.payment_confirmed",
			ResourceType: "order",
			ResourceID:   &order.ID,
			NewValues:    map[string]interface{}{"intent_status": intent.Status, "updates": updates},
		})
	})
	if err != nil {
		return nil, err
	}

	if status, ok := updates["status"].(models.OrderStatus); ok {
		metrics.RecordOrderTransition(string(status))
	}

	var updated models.Order
	if err := s.db.Preload("Items").First(&updated, "id = ?", order.ID).Error; err != nil {
		return nil, findOrNotFound(err, "Order")
	}
	return &updated, nil
}

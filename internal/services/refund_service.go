// internal/services/refund_service.go
package services

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/storefront-backend/internal/metrics"
	"github.com/javajoker/storefront-backend/internal/models"
	"github.com/javajoker/storefront-backend/internal/utils"
)

type RefundService struct {
	db            *gorm.DB
	audit         *AuditService
	notifications *NotificationService
	payments      *PaymentService
	returns       *ReturnService
	mailer        *Mailer
}

type CreateRefundRequest struct {
	OrderID         uuid.UUID       `json:"order_id" validate:"required"`
	Amount          decimal.Decimal `json:"amount"`
	Reason          string          `json:"reason" validate:"max=1000"`
	ReturnRequestID *uuid.UUID      `json:"return_request_id"`
}

type RefundFilter struct {
	utils.PaginationParams
	Status  *string    `json:"status,omitempty"`
	OrderID *uuid.UUID `json:"order_id,omitempty"`
}

func NewRefundService(db *gorm.DB, audit *AuditService, notifications *NotificationService, payments *PaymentService, returns *ReturnService, mailer *Mailer) *RefundService {
	return &RefundService{
		db:            db,
		audit:         audit,
		notifications: notifications,
		payments:      payments,
		returns:       returns,
		mailer:        mailer,
	}
}

func pendingRefunds(tx *gorm.DB, orderID uuid.UUID) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := tx.Model(&models.Refund{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("order_id = ? AND status IN ?", orderID,
			[]models.RefundStatus{models.RefundStatusPending, models.RefundStatusNeedsReview}).
		Scan(&sum).Error
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum pending refunds: %w", err)
	}
	return sum, nil
}

func refundableOrder(order *models.Order) error {
	switch {
	case order.Status == models.OrderStatusPending, order.Status == models.OrderStatusCancelled:
		return utils.NewValidationError(fmt.Sprintf("a %s order cannot be refunded", order.Status), nil)
	case order.PaymentStatus == models.PaymentStatusFailed:
		return utils.NewValidationError("order payment failed, nothing to refund", nil)
	case order.PaymentStatus == models.PaymentStatusRefunded:
		return utils.NewValidationError("order is already fully refunded", nil)
	}
	return nil
}

// Create issues a refund in three steps: reserve a pending row against the
// order, call the payment provider, then settle the order totals.
func (s *RefundService) Create(actor Actor, req *CreateRefundRequest) (*models.Refund, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	amount := utils.RoundMoney(req.Amount)
	if !amount.IsPositive() {
		return nil, utils.NewValidationError("refund amount must be greater than zero", []utils.ValidationError{
			{Field: "amount", Tag: "gt", Message: "amount must be greater than 0"},
		})
	}

	refund := &models.Refund{
		OrderID:         req.OrderID,
		ReturnRequestID: req.ReturnRequestID,
		Amount:          amount,
		Reason:          req.Reason,
		Status:          models.RefundStatusPending,
		ProcessedBy:     actor.UserID,
	}

	var paymentRef string
	err := s.db.Transaction(func(tx *gorm.DB) error {
		order, err := lockOrder(tx, req.OrderID)
		if err != nil {
			return err
		}
		if err := refundableOrder(order); err != nil {
			return err
		}
		pending, err := pendingRefunds(tx, order.ID)
		if err != nil {
			return err
		}
		available := order.RefundableAmount().Sub(pending)
		if amount.GreaterThan(available) {
			return utils.NewValidationError(
				fmt.Sprintf("refund amount exceeds refundable balance of %s", available.StringFixed(2)),
				[]utils.ValidationError{{Field: "amount", Tag: "max", Message: "amount exceeds refundable balance"}})
		}
		if req.ReturnRequestID != nil {
			var ret models.ReturnRequest
			if err := tx.First(&ret, "id = ?", *req.ReturnRequestID).Error; err != nil {
				return findOrNotFound(err, "Return request")
			}
			if ret.OrderID != order.ID {
				return utils.NewValidationError("return request does not belong to this order", nil)
			}
			if ret.Status != models.ReturnStatusReceived {
				return utils.NewValidationError("return must be received before it is refunded", nil)
			}
		}
		if err := tx.Create(refund).Error; err != nil {
			return fmt.Errorf("failed to create refund: %w", err)
		}
		paymentRef = order.PaymentReference
		return nil
	})
	if err != nil {
		return nil, err
	}

	var providerRef string
	if paymentRef != "" && s.payments.Enabled() {
		providerRef, err = s.payments.Refund(paymentRef, utils.ToCents(amount), req.Reason)
		if err != nil {
			s.fail(refund, err)
			return nil, utils.NewAppError(http.StatusBadGateway, "PAYMENT_ERROR", "payment provider rejected the refund", err)
		}
	}

	var order *models.Order
	err = s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		order, err = lockOrder(tx, refund.OrderID)
		if err != nil {
			return err
		}

		refunded := order.RefundedTotal.Add(amount)
		updates := map[string]interface{}{"refunded_total": refunded}
		if refunded.GreaterThanOrEqual(order.Total) {
			updates["payment_status"] = models.PaymentStatusRefunded
			updates["status"] = models.OrderStatusRefunded
		} else {
			updates["payment_status"] = models.PaymentStatusPartiallyRefunded
		}
		if err := tx.Model(order).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to update order totals: %w", err)
		}
		order.RefundedTotal = refunded

		if err := tx.Model(refund).Updates(map[string]interface{}{
			"status":             models.RefundStatusSucceeded,
			"provider_reference": providerRef,
		}).Error; err != nil {
			return fmt.Errorf("failed to settle refund: %w", err)
		}
		refund.Status = models.RefundStatusSucceeded
		refund.ProviderReference = providerRef

		if refund.ReturnRequestID != nil {
			if _, err := s.returns.CompleteTx(tx, actor, *refund.ReturnRequestID, order.ID); err != nil {
				return err
			}
		}

		if order.UserID != nil {
			if err := s.notifications.NotifyUser(tx, *order.UserID, NotificationRefundIssued,
				"Refund for "+order.OrderNumber,
				fmt.Sprintf("%s %s has been refunded", amount.StringFixed(2), order.Currency),
				"order", &order.ID); err != nil {
				return err
			}
		}

		return s.audit.RecordTx(tx, actor, AuditEntry{
			Action:       "refund.issued",
			ResourceType: "refund",
			ResourceID:   &refund.ID,
			NewValues: map[string]interface{}{
				"order_id":       order.ID,
				"amount":         amount,
				"refunded_total": refunded,
				"return_id":      refund.ReturnRequestID,
			},
		})
	})
	if err != nil {
		if providerRef == "" {
			s.fail(refund, err)
		} else {
			s.flagForReview(refund, providerRef, err)
		}
		return nil, err
	}

	metrics.RecordRefund(string(models.RefundStatusSucceeded))
	s.mailer.SendRefundProcessed(order, refund)
	return s.Get(refund.ID)
}

func (s *RefundService) fail(refund *models.Refund, cause error) {
	if err := s.db.Model(refund).Update("status", models.RefundStatusFailed).Error; err != nil {
		logrus.WithError(err).WithField("refund_id", refund.ID).Error("Failed to mark refund failed")
	}
	refund.Status = models.RefundStatusFailed
	metrics.RecordRefund(string(models.RefundStatusFailed))
	logrus.WithError(cause).WithFields(logrus.Fields{
		"refund_id": refund.ID,
		"order_id":  refund.OrderID,
	}).Warn("Refund failed")
}

// flagForReview records a provider refund whose order settlement failed so
// it is neither retried nor lost.
func (s *RefundService) flagForReview(refund *models.Refund, providerRef string, cause error) {
	if err := s.db.Model(refund).Updates(map[string]interface{}{
		"status":             models.RefundStatusNeedsReview,
		"provider_reference": providerRef,
	}).Error; err != nil {
		logrus.WithError(err).WithField("refund_id", refund.ID).Error("Failed to flag refund for review")
	}
	refund.Status = models.RefundStatusNeedsReview
	refund.ProviderReference = providerRef

	if err := s.notifications.NotifyStaff(s.db, NotificationRefundReview,
		"Refund needs review",
		fmt.Sprintf("Refund %s was issued by the payment provider (%s) but the order was not updated", refund.ID, providerRef),
		"refund", &refund.ID); err != nil {
		logrus.WithError(err).WithField("refund_id", refund.ID).Error("Failed to notify staff about refund")
	}

	metrics.RecordRefund(string(models.RefundStatusNeedsReview))
	logrus.WithError(cause).WithFields(logrus.Fields{
		"refund_id":    refund.ID,
		"order_id":     refund.OrderID,
		"provider_ref": providerRef,
	}).Error("Refund settled with provider but not recorded")
}

func (s *RefundService) List(filter RefundFilter) ([]models.Refund, int64, error) {
	query := s.db.Model(&models.Refund{})

	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.OrderID != nil {
		query = query.Where("order_id = ?", *filter.OrderID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count refunds: %w", err)
	}

	query = utils.ApplySort(query, filter.PaginationParams, []string{"created_at", "amount", "status"})
	query = utils.ApplyPagination(query, filter.PaginationParams)

	var refunds []models.Refund
	if err := query.Preload("Order").Find(&refunds).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch refunds: %w", err)
	}
	return refunds, total, nil
}

func (s *RefundService) Get(id uuid.UUID) (*models.Refund, error) {
	var refund models.Refund
	if err := s.db.Preload("Order").First(&refund, "id = ?", id).Error; err != nil {
		return nil, findOrNotFound(err, "Refund")
	}
	return &refund, nil
}

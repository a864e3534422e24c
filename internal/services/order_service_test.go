package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/javajoker/storefront-backend/internal/models"
	"github.com/javajoker/storefront-backend/internal/utils"
)

type OrderFlowTestSuite struct {
	suite.Suite
	env     *testEnv
	actor   Actor
	product *models.Product
}

func (s *OrderFlowTestSuite) SetupTest() {
	s.env = newTestEnv(s.T())
	s.actor = s.env.adminActor(s.T())
	s.product = s.env.createProduct(s.T(), "WIDGET", "25", 10, nil)
}

func (s *OrderFlowTestSuite) assertStatus(err error, status int) {
	s.T().Helper()
	var appErr *utils.AppError
	s.Require().ErrorAs(err, &appErr)
	s.Equal(status, appErr.Status, appErr.Message)
}

func (s *OrderFlowTestSuite) stock() int {
	var p models.Product
	s.Require().NoError(s.env.db.First(&p, "id = ?", s.product.ID).Error)
	return p.Stock
}

func (s *OrderFlowTestSuite) order(user *models.User, qty int) *models.Order {
	addToCart(s.T(), s.env, userOwner(user), s.product, nil, qty)
	return placeOrder(s.T(), s.env, userOwner(user), "")
}

func (s *OrderFlowTestSuite) shipment(order *models.Order) *models.Shipment {
	var shipment models.Shipment
	s.Require().NoError(s.env.db.Where("order_id = ?", order.ID).First(&shipment).Error)
	return &shipment
}

// deliver moves an order to delivered through its shipment.
func (s *OrderFlowTestSuite) deliver(order *models.Order) {
	_, err := s.env.orders.UpdateStatus(s.actor, order.ID, &UpdateOrderStatusRequest{Status: models.OrderStatusProcessing})
	s.Require().NoError(err)
	shipment := s.shipment(order)
	_, err = s.env.shipments.UpdateStatus(s.actor, shipment.ID, &UpdateShipmentStatusRequest{
		Status: models.ShipmentStatusShipped, Carrier: pointer("UPS"), TrackingNumber: pointer("1Z999"),
	})
	s.Require().NoError(err)
	_, err = s.env.shipments.UpdateStatus(s.actor, shipment.ID, &UpdateShipmentStatusRequest{Status: models.ShipmentStatusDelivered})
	s.Require().NoError(err)
}

func (s *OrderFlowTestSuite) TestStatusTransitions() {
	user := s.env.createCustomer(s.T(), "t@example.com")
	order := s.order(user, 1)

	_, err := s.env.orders.UpdateStatus(s.actor, order.ID, &UpdateOrderStatusRequest{Status: models.OrderStatusDelivered})
	s.assertStatus(err, 409)

	updated, err := s.env.orders.UpdateStatus(s.actor, order.ID, &UpdateOrderStatusRequest{Status: models.OrderStatusProcessing})
	s.Require().NoError(err)
	s.Equal(models.OrderStatusProcessing, updated.Status)

	var notified int64
	s.env.db.Model(&models.Notification{}).Where("user_id = ? AND type = ?", user.ID, NotificationOrderUpdated).Count(&notified)
	s.Equal(int64(1), notified)

	_, err = s.env.orders.UpdateStatus(s.actor, order.ID, &UpdateOrderStatusRequest{Status: "bogus"})
	s.assertStatus(err, 400)
}

func (s *OrderFlowTestSuite) TestCancelRestocksAndReleasesDiscount() {
	user := s.env.createCustomer(s.T(), "c@example.com")
	discount := s.env.createDiscount(s.T(), &models.Discount{Type: models.DiscountTypePercentage, Value: dec("10"), IsAutomatic: true})
	order := s.order(user, 4)
	s.Equal(6, s.stock())

	var d models.Discount
	s.Require().NoError(s.env.db.First(&d, "id = ?", discount.ID).Error)
	s.Equal(1, d.UsageCount)

	cancelled, err := s.env.orders.Cancel(s.actor, order.ID, &CancelOrderRequest{Reason: "customer request"})
	s.Require().NoError(err)
	s.Equal(models.OrderStatusCancelled, cancelled.Status)
	s.NotNil(cancelled.CancelledAt)
	s.Equal(10, s.stock())

	s.Require().NoError(s.env.db.First(&d, "id = ?", discount.ID).Error)
	s.Zero(d.UsageCount)

	var pending int64
	s.env.db.Model(&models.Shipment{}).Where("order_id = ?", order.ID).Count(&pending)
	s.Zero(pending)

	_, err = s.env.orders.Cancel(s.actor, order.ID, nil)
	s.assertStatus(err, 409)
}

func (s *OrderFlowTestSuite) TestCustomerCancelRules() {
	owner := s.env.createCustomer(s.T(), "owner@example.com")
	other := s.env.createCustomer(s.T(), "other@example.com")
	order := s.order(owner, 1)

	_, err := s.env.orders.CancelForUser(s.actor, other.ID, order.ID, nil)
	s.assertStatus(err, 404)

	_, err = s.env.orders.UpdateStatus(s.actor, order.ID, &UpdateOrderStatusRequest{Status: models.OrderStatusProcessing})
	s.Require().NoError(err)
	_, err = s.env.orders.CancelForUser(s.actor, owner.ID, order.ID, nil)
	s.assertStatus(err, 409)

	// staff may still cancel a processing order
	_, err = s.env.orders.Cancel(s.actor, order.ID, nil)
	s.Require().NoError(err)
}

func (s *OrderFlowTestSuite) TestCustomerSeesOnlyOwnOrders() {
	owner := s.env.createCustomer(s.T(), "mine@example.com")
	other := s.env.createCustomer(s.T(), "yours@example.com")
	order := s.order(owner, 1)

	orders, total, err := s.env.orders.ListForUser(owner.ID, utils.NormalizePagination(utils.PaginationParams{}))
	s.Require().NoError(err)
	s.Equal(int64(1), total)
	s.Len(orders, 1)

	_, err = s.env.orders.GetForUser(other.ID, order.ID)
	s.True(utils.IsNotFound(err))
}

func (s *OrderFlowTestSuite) TestShipmentDrivesOrderStatus() {
	user := s.env.createCustomer(s.T(), "ship@example.com")
	order := s.order(user, 1)
	shipment := s.shipment(order)

	_, err := s.env.shipments.UpdateStatus(s.actor, shipment.ID, &UpdateShipmentStatusRequest{Status: models.ShipmentStatusInTransit})
	s.assertStatus(err, 409)

	s.deliver(order)

	delivered, err := s.env.orders.Get(order.ID)
	s.Require().NoError(err)
	s.Equal(models.OrderStatusDelivered, delivered.Status)

	updated, err := s.env.shipments.Get(shipment.ID)
	s.Require().NoError(err)
	s.Equal("UPS", updated.Carrier)
	s.Equal("1Z999", updated.TrackingNumber)
	s.NotNil(updated.ShippedAt)
	s.NotNil(updated.DeliveredAt)
}

func (s *OrderFlowTestSuite) TestShipmentOfCancelledOrderIsRejected() {
	user := s.env.createCustomer(s.T(), "gone@example.com")
	order := s.order(user, 1)
	shipment := s.shipment(order)
	_, err := s.env.orders.Cancel(s.actor, order.ID, nil)
	s.Require().NoError(err)

	_, err = s.env.shipments.UpdateStatus(s.actor, shipment.ID, &UpdateShipmentStatusRequest{Status: models.ShipmentStatusShipped})
	s.True(utils.IsNotFound(err))
}

func (s *OrderFlowTestSuite) TestReturnRequiresDeliveredOrder() {
	user := s.env.createCustomer(s.T(), "early@example.com")
	order := s.order(user, 2)

	_, err := s.env.returns.RequestReturn(s.actor, user.ID, order.ID, &CreateReturnRequest{
		Items:  []ReturnItemRequest{{OrderItemID: order.Items[0].ID, Quantity: 1}},
		Reason: "changed my mind",
	})
	s.assertStatus(err, 409)
}

func (s *OrderFlowTestSuite) TestReturnQuantityIsLimited() {
	user := s.env.createCustomer(s.T(), "limit@example.com")
	order := s.order(user, 2)
	s.deliver(order)
	itemID := order.Items[0].ID

	_, err := s.env.returns.RequestReturn(s.actor, user.ID, order.ID, &CreateReturnRequest{
		Items:  []ReturnItemRequest{{OrderItemID: itemID, Quantity: 2}, {OrderItemID: itemID, Quantity: 1}},
		Reason: "too many",
	})
	s.assertStatus(err, 400)

	ret, err := s.env.returns.RequestReturn(s.actor, user.ID, order.ID, &CreateReturnRequest{
		Items:  []ReturnItemRequest{{OrderItemID: itemID, Quantity: 1}},
		Reason: "broken",
	})
	s.Require().NoError(err)
	s.Equal(models.ReturnStatusRequested, ret.Status)

	_, err = s.env.returns.RequestReturn(s.actor, user.ID, order.ID, &CreateReturnRequest{
		Items:  []ReturnItemRequest{{OrderItemID: itemID, Quantity: 2}},
		Reason: "again",
	})
	s.assertStatus(err, 400)

	_, err = s.env.returns.Reject(s.actor, ret.ID, &ResolveReturnRequest{Notes: "no damage visible"})
	s.Require().NoError(err)

	// a rejected return frees its quantity again
	_, err = s.env.returns.RequestReturn(s.actor, user.ID, order.ID, &CreateReturnRequest{
		Items:  []ReturnItemRequest{{OrderItemID: itemID, Quantity: 2}},
		Reason: "both broken",
	})
	s.Require().NoError(err)
}

func (s *OrderFlowTestSuite) TestReturnAndRefundFlow() {
	user := s.env.createCustomer(s.T(), "refund@example.com")
	order := s.order(user, 2)
	s.deliver(order)
	s.Equal(8, s.stock())

	ret, err := s.env.returns.RequestReturn(s.actor, user.ID, order.ID, &CreateReturnRequest{
		Items:  []ReturnItemRequest{{OrderItemID: order.Items[0].ID, Quantity: 1}},
		Reason: "arrived damaged",
	})
	s.Require().NoError(err)

	_, err = s.env.refunds.Create(s.actor, &CreateRefundRequest{OrderID: order.ID, Amount: dec("25"), ReturnRequestID: &ret.ID})
	s.assertStatus(err, 400)

	_, err = s.env.returns.MarkReceived(s.actor, ret.ID, nil)
	s.assertStatus(err, 409)

	_, err = s.env.returns.Approve(s.actor, ret.ID, &ResolveReturnRequest{})
	s.Require().NoError(err)
	received, err := s.env.returns.MarkReceived(s.actor, ret.ID, &ReceiveReturnRequest{Restock: true})
	s.Require().NoError(err)
	s.Equal(models.ReturnStatusReceived, received.Status)
	s.Equal(9, s.stock())

	refund, err := s.env.refunds.Create(s.actor, &CreateRefundRequest{
		OrderID: order.ID, Amount: dec("27.50"), Reason: "damaged", ReturnRequestID: &ret.ID,
	})
	s.Require().NoError(err)
	s.Equal(models.RefundStatusSucceeded, refund.Status)

	completed, err := s.env.returns.Get(ret.ID)
	s.Require().NoError(err)
	s.Equal(models.ReturnStatusCompleted, completed.Status)

	refundedOrder, err := s.env.orders.Get(order.ID)
	s.Require().NoError(err)
	s.Equal(models.PaymentStatusPartiallyRefunded, refundedOrder.PaymentStatus)
	s.Equal("27.50", refundedOrder.RefundedTotal.StringFixed(2))

	_, err = s.env.refunds.Create(s.actor, &CreateRefundRequest{OrderID: order.ID, Amount: dec("100")})
	s.assertStatus(err, 400)

	_, err = s.env.refunds.Create(s.actor, &CreateRefundRequest{OrderID: order.ID, Amount: refundedOrder.RefundableAmount()})
	s.Require().NoError(err)

	fully, err := s.env.orders.Get(order.ID)
	s.Require().NoError(err)
	s.Equal(models.PaymentStatusRefunded, fully.PaymentStatus)
	s.Equal(models.OrderStatusRefunded, fully.Status)

	_, err = s.env.refunds.Create(s.actor, &CreateRefundRequest{OrderID: order.ID, Amount: dec("1")})
	s.assertStatus(err, 400)
}

func (s *OrderFlowTestSuite) TestRefundOfPendingOrderIsRejected() {
	user := s.env.createCustomer(s.T(), "pending@example.com")
	order := s.order(user, 1)

	_, err := s.env.refunds.Create(s.actor, &CreateRefundRequest{OrderID: order.ID, Amount: dec("5")})
	s.assertStatus(err, 400)
}

func (s *OrderFlowTestSuite) TestGatewayRefundFailureMarksRefundFailed() {
	owner := guestOwner()
	addToCart(s.T(), s.env, owner, s.product, nil, 1)
	result, err := s.env.checkout.PlaceOrder(context.Background(), owner, SystemActor, &CheckoutRequest{
		Email: "card@example.com", ShippingAddress: testAddress(), PaymentMethod: PaymentMethodCard,
	}, "")
	s.Require().NoError(err)
	_, err = s.env.checkout.ConfirmPayment(SystemActor, &ConfirmPaymentRequest{OrderID: result.Order.ID, PaymentIntentID: result.Payment.ID})
	s.Require().NoError(err)

	s.env.gateway.refundErr = errors.New("card expired")
	_, err = s.env.refunds.Create(s.actor, &CreateRefundRequest{OrderID: result.Order.ID, Amount: dec("5")})
	s.assertStatus(err, 502)

	var refund models.Refund
	s.Require().NoError(s.env.db.Where("order_id = ?", result.Order.ID).First(&refund).Error)
	s.Equal(models.RefundStatusFailed, refund.Status)

	s.env.gateway.refundErr = nil
	issued, err := s.env.refunds.Create(s.actor, &CreateRefundRequest{OrderID: result.Order.ID, Amount: dec("5")})
	s.Require().NoError(err)
	s.Equal("re_1", issued.ProviderReference)
	s.Equal([]int64{500}, s.env.gateway.refunds)
}

func (s *OrderFlowTestSuite) TestSettlementFailureFlagsProviderRefundForReview() {
	owner := guestOwner()
	addToCart(s.T(), s.env, owner, s.product, nil, 1)
	result, err := s.env.checkout.PlaceOrder(context.Background(), owner, SystemActor, &CheckoutRequest{
		Email: "review@example.com", ShippingAddress: testAddress(), PaymentMethod: PaymentMethodCard,
	}, "")
	s.Require().NoError(err)
	_, err = s.env.checkout.ConfirmPayment(SystemActor, &ConfirmPaymentRequest{OrderID: result.Order.ID, PaymentIntentID: result.Payment.ID})
	s.Require().NoError(err)

	s.Require().NoError(s.env.db.Exec(`CREATE TRIGGER block_refund_totals BEFORE UPDATE OF refunded_total ON orders
		BEGIN SELECT RAISE(ABORT, 'orders locked'); END`).Error)

	_, err = s.env.refunds.Create(s.actor, &CreateRefundRequest{OrderID: result.Order.ID, Amount: dec("5")})
	s.Require().Error(err)

	var refund models.Refund
	s.Require().NoError(s.env.db.Where("order_id = ?", result.Order.ID).First(&refund).Error)
	s.Equal(models.RefundStatusNeedsReview, refund.Status)
	s.Equal("re_1", refund.ProviderReference)

	var flagged int64
	s.env.db.Model(&models.Notification{}).Where("type = ? AND user_id IS NULL", NotificationRefundReview).Count(&flagged)
	s.Equal(int64(1), flagged)

	var order models.Order
	s.Require().NoError(s.env.db.First(&order, "id = ?", result.Order.ID).Error)
	s.True(order.RefundedTotal.IsZero())

	// the flagged amount still counts against the refundable balance
	s.Require().NoError(s.env.db.Exec("DROP TRIGGER block_refund_totals").Error)
	_, err = s.env.refunds.Create(s.actor, &CreateRefundRequest{OrderID: result.Order.ID, Amount: order.RefundableAmount()})
	s.assertStatus(err, 400)
}

func (s *OrderFlowTestSuite) TestMetrics() {
	user := s.env.createCustomer(s.T(), "metrics@example.com")
	first := s.order(user, 1)
	s.order(user, 2)
	_, err := s.env.orders.UpdateStatus(s.actor, first.ID, &UpdateOrderStatusRequest{Status: models.OrderStatusProcessing})
	s.Require().NoError(err)

	m, err := s.env.orders.Metrics(7)
	s.Require().NoError(err)
	s.Equal(int64(2), m.TotalOrders)
	s.Equal(int64(1), m.ByStatus[string(models.OrderStatusPending)])
	s.Equal(first.Total.StringFixed(2), m.Revenue.StringFixed(2))
	s.Len(m.RevenueByDay, 7)
	s.Equal(int64(1), m.RevenueByDay[6].Orders)
}

func TestOrderFlowSuite(t *testing.T) {
	suite.Run(t, new(OrderFlowTestSuite))
}

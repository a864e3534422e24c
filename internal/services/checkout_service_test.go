package services

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/javajoker/storefront-backend/internal/models"
	"github.com/javajoker/storefront-backend/internal/utils"
)

type CheckoutServiceTestSuite struct {
	suite.Suite
	env *testEnv
}

func (s *CheckoutServiceTestSuite) SetupTest() {
	s.env = newTestEnv(s.T())
}

func (s *CheckoutServiceTestSuite) assertStatus(err error, status int) {
	s.T().Helper()
	var appErr *utils.AppError
	s.Require().ErrorAs(err, &appErr)
	s.Equal(status, appErr.Status, appErr.Message)
}

func (s *CheckoutServiceTestSuite) checkoutRequest(email, method string) *CheckoutRequest {
	return &CheckoutRequest{Email: email, ShippingAddress: testAddress(), PaymentMethod: method}
}

func (s *CheckoutServiceTestSuite) TestGuestCheckoutPlacesOrder() {
	product := s.env.createProduct(s.T(), "MUG", "20", 5, nil)
	owner := guestOwner()
	addToCart(s.T(), s.env, owner, product, nil, 2)

	result, err := s.env.checkout.PlaceOrder(context.Background(), owner, SystemActor,
		s.checkoutRequest("Guest@Example.com", PaymentMethodCashOnDelivery), "")
	s.Require().NoError(err)
	order := result.Order

	s.Regexp(regexp.MustCompile(`^ORD-\d{8}-[A-Z2-9]{6}$`), order.OrderNumber)
	s.Equal("guest@example.com", order.Email)
	s.Equal(models.OrderStatusPending, order.Status)
	s.Equal(models.PaymentStatusPending, order.PaymentStatus)
	s.Equal("US", order.ShippingAddress.Country)
	s.Equal("40.00", order.Subtotal.StringFixed(2))
	s.Equal("4.00", order.TaxTotal.StringFixed(2))
	s.Equal("5.00", order.ShippingTotal.StringFixed(2))
	s.Equal("49.00", order.Total.StringFixed(2))
	s.Require().Len(order.Items, 1)
	s.Equal("MUG", order.Items[0].SKU)
	s.Equal("40.00", order.Items[0].LineTotal.StringFixed(2))

	var stock models.Product
	s.Require().NoError(s.env.db.First(&stock, "id = ?", product.ID).Error)
	s.Equal(3, stock.Stock)

	view, err := s.env.carts.GetCart(owner)
	s.Require().NoError(err)
	s.Empty(view.Items)

	var shipments []models.Shipment
	s.Require().NoError(s.env.db.Where("order_id = ?", order.ID).Find(&shipments).Error)
	s.Require().Len(shipments, 1)
	s.Equal(models.ShipmentStatusPending, shipments[0].Status)

	var notifications int64
	s.env.db.Model(&models.Notification{}).Where("type = ? AND user_id IS NULL", NotificationOrderPlaced).Count(&notifications)
	s.Equal(int64(1), notifications)

	var audits int64
	s.env.db.Model(&models.AuditLog{}).Where("action = ? AND resource_id = ?", "order.placed", order.ID).Count(&audits)
	s.Equal(int64(1), audits)

	s.Len(s.env.sender.SentTo("guest@example.com"), 1)
}

func (s *CheckoutServiceTestSuite) TestSignedInCheckoutUsesAccountEmail() {
	product := s.env.createProduct(s.T(), "PEN", "3", 5, nil)
	user := s.env.createCustomer(s.T(), "buyer@example.com")
	addToCart(s.T(), s.env, userOwner(user), product, nil, 1)

	order := placeOrder(s.T(), s.env, userOwner(user), "")
	s.Equal("buyer@example.com", order.Email)
	s.Require().NotNil(order.UserID)
	s.Equal(user.ID, *order.UserID)
}

func (s *CheckoutServiceTestSuite) TestVariantStockIsDecremented() {
	product := s.env.createProduct(s.T(), "TEE", "20", 100, nil)
	variant := s.env.createVariant(s.T(), product, "TEE-M", pointer("22"), 3)
	owner := guestOwner()
	addToCart(s.T(), s.env, owner, product, variant, 2)

	order := placeOrder(s.T(), s.env, owner, "v@example.com")
	s.Equal("TEE-M", order.Items[0].SKU)
	s.Equal("Product TEE - Size TEE-M", order.Items[0].ProductName)
	s.Equal("44.00", order.Subtotal.StringFixed(2))

	var v models.ProductVariant
	s.Require().NoError(s.env.db.First(&v, "id = ?", variant.ID).Error)
	s.Equal(1, v.Stock)
	var p models.Product
	s.Require().NoError(s.env.db.First(&p, "id = ?", product.ID).Error)
	s.Equal(100, p.Stock)
}

func (s *CheckoutServiceTestSuite) TestEmptyCartIsRejected() {
	_, err := s.env.checkout.PlaceOrder(context.Background(), guestOwner(), SystemActor,
		s.checkoutRequest("a@example.com", PaymentMethodCashOnDelivery), "")
	s.assertStatus(err, 400)
}

func (s *CheckoutServiceTestSuite) TestGuestCheckoutRequiresEmail() {
	product := s.env.createProduct(s.T(), "CUP", "5", 5, nil)
	owner := guestOwner()
	addToCart(s.T(), s.env, owner, product, nil, 1)

	_, err := s.env.checkout.PlaceOrder(context.Background(), owner, SystemActor,
		s.checkoutRequest("", PaymentMethodCashOnDelivery), "")
	s.assertStatus(err, 400)
}

func (s *CheckoutServiceTestSuite) TestInsufficientStockRollsBack() {
	product := s.env.createProduct(s.T(), "RARE", "100", 2, nil)
	owner := guestOwner()
	addToCart(s.T(), s.env, owner, product, nil, 2)
	s.Require().NoError(s.env.db.Model(product).Update("stock", 1).Error)

	_, err := s.env.checkout.PlaceOrder(context.Background(), owner, SystemActor,
		s.checkoutRequest("a@example.com", PaymentMethodCashOnDelivery), "")
	s.assertStatus(err, 409)

	var orders int64
	s.env.db.Model(&models.Order{}).Count(&orders)
	s.Zero(orders)

	var cartItems int64
	s.env.db.Model(&models.CartItem{}).Count(&cartItems)
	s.Equal(int64(1), cartItems)
}

func (s *CheckoutServiceTestSuite) TestDiscountUsageLimitIsHonoured() {
	product := s.env.createProduct(s.T(), "BAG", "50", 10, nil)
	discount := s.env.createDiscount(s.T(), &models.Discount{
		Code:       pointer("ONCE"),
		Type:       models.DiscountTypeFixedAmount,
		Value:      dec("10"),
		UsageLimit: pointer(1),
	})

	first := guestOwner()
	addToCart(s.T(), s.env, first, product, nil, 1)
	_, err := s.env.carts.ApplyDiscountCode(first, &ApplyDiscountCodeRequest{Code: "ONCE"})
	s.Require().NoError(err)
	order := placeOrder(s.T(), s.env, first, "first@example.com")
	s.Equal("10.00", order.DiscountTotal.StringFixed(2))
	s.Equal("ONCE", order.DiscountCode)
	s.Require().NotNil(order.DiscountID)
	s.Equal(discount.ID, *order.DiscountID)

	var reloaded models.Discount
	s.Require().NoError(s.env.db.First(&reloaded, "id = ?", discount.ID).Error)
	s.Equal(1, reloaded.UsageCount)

	second := guestOwner()
	addToCart(s.T(), s.env, second, product, nil, 1)
	_, err = s.env.carts.ApplyDiscountCode(second, &ApplyDiscountCodeRequest{Code: "ONCE"})
	s.assertStatus(err, 400)

	order = placeOrder(s.T(), s.env, second, "second@example.com")
	s.True(order.DiscountTotal.IsZero())
	s.Nil(order.DiscountID)
}

func (s *CheckoutServiceTestSuite) TestIdempotencyKeyBlocksDuplicates() {
	product := s.env.createProduct(s.T(), "KEY", "10", 10, nil)
	owner := guestOwner()
	req := s.checkoutRequest("k@example.com", PaymentMethodCashOnDelivery)

	// a failed attempt releases the key
	_, err := s.env.checkout.PlaceOrder(context.Background(), owner, SystemActor, req, "abc")
	s.assertStatus(err, 400)

	addToCart(s.T(), s.env, owner, product, nil, 1)
	_, err = s.env.checkout.PlaceOrder(context.Background(), owner, SystemActor, req, "abc")
	s.Require().NoError(err)

	addToCart(s.T(), s.env, owner, product, nil, 1)
	_, err = s.env.checkout.PlaceOrder(context.Background(), owner, SystemActor, req, "abc")
	s.assertStatus(err, 409)

	var orders int64
	s.env.db.Model(&models.Order{}).Count(&orders)
	s.Equal(int64(1), orders)
}

func (s *CheckoutServiceTestSuite) TestIdempotencyKeyIsScopedPerCustomer() {
	product := s.env.createProduct(s.T(), "SCOPE", "10", 10, nil)
	first, second := guestOwner(), guestOwner()

	addToCart(s.T(), s.env, first, product, nil, 1)
	_, err := s.env.checkout.PlaceOrder(context.Background(), first, SystemActor,
		s.checkoutRequest("a@example.com", PaymentMethodCashOnDelivery), "shared-key")
	s.Require().NoError(err)

	addToCart(s.T(), s.env, second, product, nil, 1)
	_, err = s.env.checkout.PlaceOrder(context.Background(), second, SystemActor,
		s.checkoutRequest("b@example.com", PaymentMethodCashOnDelivery), "shared-key")
	s.Require().NoError(err)
}

func (s *CheckoutServiceTestSuite) TestCardCheckoutAndConfirmation() {
	product := s.env.createProduct(s.T(), "CARD", "10", 10, nil)
	owner := guestOwner()
	addToCart(s.T(), s.env, owner, product, nil, 1)

	result, err := s.env.checkout.PlaceOrder(context.Background(), owner, SystemActor,
		s.checkoutRequest("c@example.com", PaymentMethodCard), "")
	s.Require().NoError(err)
	s.Require().NotNil(result.Payment)
	s.Empty(result.PaymentError)
	s.Equal("pi_order_"+result.Order.ID.String(), result.Order.PaymentReference)

	_, err = s.env.checkout.ConfirmPayment(SystemActor, &ConfirmPaymentRequest{OrderID: result.Order.ID, PaymentIntentID: "pi_other"})
	s.assertStatus(err, 400)

	order, err := s.env.checkout.ConfirmPayment(SystemActor, &ConfirmPaymentRequest{
		OrderID:         result.Order.ID,
		PaymentIntentID: result.Payment.ID,
	})
	s.Require().NoError(err)
	s.Equal(models.PaymentStatusPaid, order.PaymentStatus)
	s.Equal(models.OrderStatusProcessing, order.Status)
}

func (s *CheckoutServiceTestSuite) TestFailedPaymentMarksOrder() {
	product := s.env.createProduct(s.T(), "FAIL", "10", 10, nil)
	owner := guestOwner()
	addToCart(s.T(), s.env, owner, product, nil, 1)
	s.env.gateway.intentStatus = IntentStatusRequiresPaymentMethod

	result, err := s.env.checkout.PlaceOrder(context.Background(), owner, SystemActor,
		s.checkoutRequest("f@example.com", PaymentMethodCard), "")
	s.Require().NoError(err)

	order, err := s.env.checkout.ConfirmPayment(SystemActor, &ConfirmPaymentRequest{
		OrderID:         result.Order.ID,
		PaymentIntentID: result.Payment.ID,
	})
	s.Require().NoError(err)
	s.Equal(models.PaymentStatusFailed, order.PaymentStatus)
	s.Equal(models.OrderStatusPending, order.Status)
}

func (s *CheckoutServiceTestSuite) TestGatewayErrorStillPlacesOrder() {
	product := s.env.createProduct(s.T(), "DOWN", "10", 10, nil)
	owner := guestOwner()
	addToCart(s.T(), s.env, owner, product, nil, 1)
	s.env.gateway.createErr = errors.New("gateway down")

	result, err := s.env.checkout.PlaceOrder(context.Background(), owner, SystemActor,
		s.checkoutRequest("d@example.com", PaymentMethodCard), "")
	s.Require().NoError(err)
	s.Nil(result.Payment)
	s.NotEmpty(result.PaymentError)
	s.Empty(result.Order.PaymentReference)
}

func (s *CheckoutServiceTestSuite) TestCardRejectedWhenPaymentsDisabled() {
	product := s.env.createProduct(s.T(), "OFF", "10", 10, nil)
	owner := guestOwner()
	addToCart(s.T(), s.env, owner, product, nil, 1)
	s.env.checkout.payments = &PaymentService{}

	_, err := s.env.checkout.PlaceOrder(context.Background(), owner, SystemActor,
		s.checkoutRequest("o@example.com", PaymentMethodCard), "")
	s.assertStatus(err, 400)
}

func TestCheckoutServiceSuite(t *testing.T) {
	suite.Run(t, new(CheckoutServiceTestSuite))
}

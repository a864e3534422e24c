package services

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/javajoker/storefront-backend/internal/models"
	"github.com/javajoker/storefront-backend/internal/utils"
)

type CartServiceTestSuite struct {
	suite.Suite
	env *testEnv
}

func (s *CartServiceTestSuite) SetupTest() {
	s.env = newTestEnv(s.T())
}

func (s *CartServiceTestSuite) assertStatus(err error, status int) {
	s.T().Helper()
	var appErr *utils.AppError
	s.Require().ErrorAs(err, &appErr)
	s.Equal(status, appErr.Status, appErr.Message)
}

func (s *CartServiceTestSuite) TestAddItemMergesSameLine() {
	product := s.env.createProduct(s.T(), "MUG", "12.50", 10, nil)
	owner := guestOwner()

	addToCart(s.T(), s.env, owner, product, nil, 2)
	view := addToCart(s.T(), s.env, owner, product, nil, 3)

	s.Require().Len(view.Items, 1)
	s.Equal(5, view.Items[0].Quantity)
	s.Equal("62.50", view.Totals.Subtotal.StringFixed(2))
	s.Equal(5, view.Totals.ItemCount)
}

func (s *CartServiceTestSuite) TestVariantsAreSeparateLines() {
	product := s.env.createProduct(s.T(), "TEE", "20", 10, nil)
	small := s.env.createVariant(s.T(), product, "TEE-S", nil, 4)
	large := s.env.createVariant(s.T(), product, "TEE-L", pointer("24"), 4)
	owner := guestOwner()

	addToCart(s.T(), s.env, owner, product, small, 1)
	view := addToCart(s.T(), s.env, owner, product, large, 1)

	s.Require().Len(view.Items, 2)
	s.Equal("44.00", view.Totals.Subtotal.StringFixed(2))
}

func (s *CartServiceTestSuite) TestAddItemRejectsInsufficientStock() {
	product := s.env.createProduct(s.T(), "LAMP", "40", 2, nil)
	owner := guestOwner()

	addToCart(s.T(), s.env, owner, product, nil, 2)
	_, err := s.env.carts.AddItem(owner, &AddCartItemRequest{ProductID: product.ID, Quantity: 1})

	s.assertStatus(err, 409)
}

func (s *CartServiceTestSuite) TestAddItemRejectsUnavailableProduct() {
	product := s.env.createProduct(s.T(), "OLD", "10", 5, nil)
	s.Require().NoError(s.env.db.Model(product).Update("status", models.ProductStatusArchived).Error)

	_, err := s.env.carts.AddItem(guestOwner(), &AddCartItemRequest{ProductID: product.ID, Quantity: 1})
	s.assertStatus(err, 400)
}

func (s *CartServiceTestSuite) TestCartRequiresOwner() {
	_, err := s.env.carts.GetCart(CartOwner{})
	s.assertStatus(err, 400)
}

func (s *CartServiceTestSuite) TestUpdateItemToZeroRemovesLine() {
	product := s.env.createProduct(s.T(), "PEN", "2", 10, nil)
	owner := guestOwner()
	view := addToCart(s.T(), s.env, owner, product, nil, 3)

	view, err := s.env.carts.UpdateItem(owner, view.Items[0].ID, &UpdateCartItemRequest{Quantity: 0})
	s.Require().NoError(err)
	s.Empty(view.Items)
	s.True(view.Totals.Total.IsZero())
}

func (s *CartServiceTestSuite) TestRefreshDropsArchivedProducts() {
	keep := s.env.createProduct(s.T(), "KEEP", "10", 10, nil)
	drop := s.env.createProduct(s.T(), "DROP", "10", 10, nil)
	owner := guestOwner()
	addToCart(s.T(), s.env, owner, keep, nil, 1)
	addToCart(s.T(), s.env, owner, drop, nil, 1)

	s.Require().NoError(s.env.db.Model(drop).Update("status", models.ProductStatusArchived).Error)
	s.Require().NoError(s.env.db.Model(keep).Update("price", dec("12")).Error)

	view, err := s.env.carts.GetCart(owner)
	s.Require().NoError(err)
	s.Require().Len(view.Items, 1)
	s.Equal(keep.ID, view.Items[0].ProductID)
	s.Equal("12.00", view.Items[0].UnitPrice.StringFixed(2))
}

func (s *CartServiceTestSuite) TestApplyDiscountCode() {
	product := s.env.createProduct(s.T(), "BAG", "30", 10, nil)
	owner := guestOwner()
	addToCart(s.T(), s.env, owner, product, nil, 1)
	s.env.createDiscount(s.T(), &models.Discount{Code: pointer("SAVE5"), Type: models.DiscountTypeFixedAmount, Value: dec("5")})

	view, err := s.env.carts.ApplyDiscountCode(owner, &ApplyDiscountCodeRequest{Code: " save5 "})
	s.Require().NoError(err)
	s.True(view.DiscountCodeApplied)
	s.Equal("SAVE5", *view.DiscountCode)
	s.Equal("5.00", view.Totals.DiscountTotal.StringFixed(2))

	view, err = s.env.carts.RemoveDiscountCode(owner)
	s.Require().NoError(err)
	s.Nil(view.DiscountCode)
	s.True(view.Totals.DiscountTotal.IsZero())
}

func (s *CartServiceTestSuite) TestApplyDiscountCodeRejectsUnknownOrIneligible() {
	product := s.env.createProduct(s.T(), "CAP", "10", 10, nil)
	owner := guestOwner()
	addToCart(s.T(), s.env, owner, product, nil, 1)
	s.env.createDiscount(s.T(), &models.Discount{Code: pointer("BIG"), Type: models.DiscountTypeFixedAmount, Value: dec("5"), MinSubtotal: dec("50")})

	_, err := s.env.carts.ApplyDiscountCode(owner, &ApplyDiscountCodeRequest{Code: "NOPE"})
	s.assertStatus(err, 400)

	_, err = s.env.carts.ApplyDiscountCode(owner, &ApplyDiscountCodeRequest{Code: "BIG"})
	s.assertStatus(err, 400)
}

func (s *CartServiceTestSuite) TestAutomaticDiscountAppliesWithoutCode() {
	product := s.env.createProduct(s.T(), "BOX", "50", 10, nil)
	owner := guestOwner()
	s.env.createDiscount(s.T(), &models.Discount{Type: models.DiscountTypePercentage, Value: dec("10"), IsAutomatic: true})

	view := addToCart(s.T(), s.env, owner, product, nil, 1)
	s.Require().NotNil(view.Totals.Discount)
	s.Equal("5.00", view.Totals.DiscountTotal.StringFixed(2))
	s.False(view.DiscountCodeApplied)
}

func (s *CartServiceTestSuite) TestMergeGuestCartCapsAtStock() {
	product := s.env.createProduct(s.T(), "SOCK", "5", 4, nil)
	other := s.env.createProduct(s.T(), "HAT", "15", 5, nil)
	user := s.env.createCustomer(s.T(), "merge@example.com")
	guest := guestOwner()

	addToCart(s.T(), s.env, userOwner(user), product, nil, 3)
	addToCart(s.T(), s.env, guest, product, nil, 3)
	addToCart(s.T(), s.env, guest, other, nil, 2)

	s.Require().NoError(s.env.carts.MergeGuestCart(guest.SessionID, user.ID))

	view, err := s.env.carts.GetCart(userOwner(user))
	s.Require().NoError(err)
	s.Require().Len(view.Items, 2)
	quantities := map[string]int{}
	for _, item := range view.Items {
		quantities[item.Product.SKU] = item.Quantity
	}
	s.Equal(4, quantities["SOCK"])
	s.Equal(2, quantities["HAT"])

	var count int64
	s.env.db.Model(&models.Cart{}).Where("session_id = ?", guest.SessionID).Count(&count)
	s.Zero(count)
}

func (s *CartServiceTestSuite) TestMergeWithoutGuestCartIsNoop() {
	user := s.env.createCustomer(s.T(), "noop@example.com")
	s.NoError(s.env.carts.MergeGuestCart("missing-session", user.ID))
	s.NoError(s.env.carts.MergeGuestCart("", user.ID))
}

func TestCartServiceSuite(t *testing.T) {
	suite.Run(t, new(CartServiceTestSuite))
}

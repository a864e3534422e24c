// internal/services/cart_service.go
package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/javajoker/storefront-backend/internal/models"
	"github.com/javajoker/storefront-backend/internal/utils"
)

type CartService struct {
	db        *gorm.DB
	settings  *SettingsService
	discounts *DiscountService
	now       func() time.Time
}

// CartOwner is a signed-in user or a guest session, never both.
type CartOwner struct {
	UserID    *uuid.UUID
	SessionID string
}

func (o CartOwner) scope(db *gorm.DB) *gorm.DB {
	if o.UserID != nil {
		return db.Where("user_id = ?", *o.UserID)
	}
	return db.Where("session_id = ?", o.SessionID)
}

func (o CartOwner) valid() bool {
	return o.UserID != nil || o.SessionID != ""
}

type CartView struct {
	ID                  uuid.UUID         `json:"id"`
	SessionID           *string           `json:"session_id,omitempty"`
	Items               []models.CartItem `json:"items"`
	DiscountCode        *string           `json:"discount_code"`
	DiscountCodeApplied bool              `json:"discount_code_applied"`
	Totals              Totals            `json:"totals"`
}

type AddCartItemRequest struct {
	ProductID uuid.UUID  `json:"product_id" validate:"required"`
	VariantID *uuid.UUID `json:"variant_id"`
	Quantity  int        `json:"quantity" validate:"required,min=1,max=999"`
}

type UpdateCartItemRequest struct {
	Quantity int `json:"quantity" validate:"min=0,max=999"`
}

type ApplyDiscountCodeRequest struct {
	Code string `json:"code" validate:"required,max=50"`
}

func NewCartService(db *gorm.DB, settings *SettingsService, discounts *DiscountService) *CartService {
	return &CartService{db: db, settings: settings, discounts: discounts, now: time.Now}
}

func preloadCartItems(db *gorm.DB) *gorm.DB {
	return db.Preload("Items", func(db *gorm.DB) *gorm.DB {
		return db.Order("created_at asc").Order("id asc")
	}).Preload("Items.Product").Preload("Items.Variant")
}

// loadCart finds the owner's cart, locking the row when lock is set.
func (s *CartService) loadCart(tx *gorm.DB, owner CartOwner, lock bool) (*models.Cart, error) {
	if !owner.valid() {
		return nil, utils.NewBadRequestError("cart session is required")
	}

	query := owner.scope(preloadCartItems(tx))
	if lock {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var cart models.Cart
	if err := query.First(&cart).Error; err != nil {
		return nil, err
	}
	return &cart, nil
}

func (s *CartService) findOrCreateCart(tx *gorm.DB, owner CartOwner) (*models.Cart, error) {
	cart, err := s.loadCart(tx, owner, true)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	cart = &models.Cart{UserID: owner.UserID}
	if owner.UserID == nil {
		sid := owner.SessionID
		cart.SessionID = &sid
	}
	// A concurrent request may create the same cart; the savepoint keeps
	// the surrounding Postgres transaction usable after the unique violation.
	tx.SavePoint("create_cart")
	if err := tx.Create(cart).Error; err != nil {
		if isUniqueViolation(err) {
			tx.RollbackTo("create_cart")
			return s.loadCart(tx, owner, true)
		}
		return nil, fmt.Errorf("failed to create cart: %w", err)
	}
	cart.Items = []models.CartItem{}
	return cart, nil
}

func cartPricingLines(items []models.CartItem) []PricingLine {
	lines := make([]PricingLine, 0, len(items))
	for _, item := range items {
		line := PricingLine{ProductID: item.ProductID, UnitPrice: item.UnitPrice, Quantity: item.Quantity}
		if item.Product != nil {
			line.CategoryID = item.Product.CategoryID
		}
		lines = append(lines, line)
	}
	return lines
}

// availableStock is the stock of the variant when one is set, else the product.
func availableStock(product *models.Product, variant *models.ProductVariant) int {
	if variant != nil {
		return variant.Stock
	}
	return product.Stock
}

// refresh drops lines that can no longer be bought and reprices the rest.
func (s *CartService) refresh(tx *gorm.DB, cart *models.Cart) error {
	kept := cart.Items[:0]
	for _, item := range cart.Items {
		product := item.Product
		stale := product == nil || !product.IsPurchasable()
		if !stale && item.VariantID != nil {
			stale = item.Variant == nil || !item.Variant.IsActive || item.Variant.ProductID != item.ProductID
		}
		if stale {
			if err := tx.Unscoped().Delete(&models.CartItem{}, "id = ?", item.ID).Error; err != nil {
				return fmt.Errorf("failed to drop unavailable cart item: %w", err)
			}
			continue
		}

		price := product.EffectivePrice(item.Variant)
		if !item.UnitPrice.Equal(price) {
			if err := tx.Model(&models.CartItem{}).Where("id = ?", item.ID).Update("unit_price", price).Error; err != nil {
				return fmt.Errorf("failed to refresh cart price: %w", err)
			}
			item.UnitPrice = price
		}
		kept = append(kept, item)
	}
	cart.Items = kept
	return nil
}

// price computes totals for an already refreshed cart.
func (s *CartService) price(tx *gorm.DB, cart *models.Cart) (Totals, error) {
	settings, err := s.settings.StoreSettings(tx)
	if err != nil {
		return Totals{}, err
	}
	candidates, err := s.discounts.Candidates(tx, cart.DiscountCode)
	if err != nil {
		return Totals{}, err
	}
	return ComputeTotals(cartPricingLines(cart.Items), candidates, settings, s.now()), nil
}

func (s *CartService) view(tx *gorm.DB, cart *models.Cart) (*CartView, error) {
	if err := s.refresh(tx, cart); err != nil {
		return nil, err
	}
	totals, err := s.price(tx, cart)
	if err != nil {
		return nil, err
	}

	applied := false
	if cart.DiscountCode != nil && totals.Discount != nil && totals.Discount.Code != nil {
		applied = *totals.Discount.Code == *cart.DiscountCode
	}

	items := cart.Items
	if items == nil {
		items = []models.CartItem{}
	}
	return &CartView{
		ID:                  cart.ID,
		SessionID:           cart.SessionID,
		Items:               items,
		DiscountCode:        cart.DiscountCode,
		DiscountCodeApplied: applied,
		Totals:              totals,
	}, nil
}

// withCart runs fn on the owner's locked cart and returns the recalculated view.
func (s *CartService) withCart(owner CartOwner, fn func(tx *gorm.DB, cart *models.Cart) error) (*CartView, error) {
	var view *CartView
	err := s.db.Transaction(func(tx *gorm.DB) error {
		cart, err := s.findOrCreateCart(tx, owner)
		if err != nil {
			return err
		}
		if fn != nil {
			if err := fn(tx, cart); err != nil {
				return err
			}
			if cart, err = s.loadCart(tx, owner, false); err != nil {
				return err
			}
		}
		view, err = s.view(tx, cart)
		return err
	})
	return view, err
}

// GetCart returns the recalculated cart, creating an empty one if needed.
func (s *CartService) GetCart(owner CartOwner) (*CartView, error) {
	return s.withCart(owner, nil)
}

func (s *CartService) loadPurchasable(tx *gorm.DB, productID uuid.UUID, variantID *uuid.UUID) (*models.Product, *models.ProductVariant, error) {
	var product models.Product
	if err := tx.First(&product, "id = ?", productID).Error; err != nil {
		return nil, nil, findOrNotFound(err, "Product")
	}
	if !product.IsPurchasable() {
		return nil, nil, utils.NewValidationError("product is not available", nil)
	}

	if variantID == nil {
		return &product, nil, nil
	}
	var variant models.ProductVariant
	if err := tx.First(&variant, "id = ? AND product_id = ?", *variantID, productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, utils.NewValidationError("variant does not belong to product", nil)
		}
		return nil, nil, fmt.Errorf("failed to load variant: %w", err)
	}
	if !variant.IsActive {
		return nil, nil, utils.NewValidationError("variant is not available", nil)
	}
	return &product, &variant, nil
}

func (s *CartService) AddItem(owner CartOwner, req *AddCartItemRequest) (*CartView, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	return s.withCart(owner, func(tx *gorm.DB, cart *models.Cart) error {
		product, variant, err := s.loadPurchasable(tx, req.ProductID, req.VariantID)
		if err != nil {
			return err
		}

		var existing *models.CartItem
		for i := range cart.Items {
			if cart.Items[i].SameLine(req.ProductID, req.VariantID) {
				existing = &cart.Items[i]
				break
			}
		}

		quantity := req.Quantity
		if existing != nil {
			quantity += existing.Quantity
		}
		if quantity > availableStock(product, variant) {
			return utils.NewConflictError("insufficient stock")
		}

		price := product.EffectivePrice(variant)
		if existing != nil {
			return tx.Model(&models.CartItem{}).Where("id = ?", existing.ID).
				Updates(map[string]interface{}{"quantity": quantity, "unit_price": price}).Error
		}

		item := &models.CartItem{
			CartID:    cart.ID,
			ProductID: product.ID,
			VariantID: req.VariantID,
			Quantity:  quantity,
			UnitPrice: price,
		}
		if err := tx.Omit(clause.Associations).Create(item).Error; err != nil {
			return fmt.Errorf("failed to add cart item: %w", err)
		}
		return nil
	})
}

func findCartItem(cart *models.Cart, itemID uuid.UUID) *models.CartItem {
	for i := range cart.Items {
		if cart.Items[i].ID == itemID {
			return &cart.Items[i]
		}
	}
	return nil
}

// UpdateItem sets a line's quantity; zero removes the line.
func (s *CartService) UpdateItem(owner CartOwner, itemID uuid.UUID, req *UpdateCartItemRequest) (*CartView, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	return s.withCart(owner, func(tx *gorm.DB, cart *models.Cart) error {
		item := findCartItem(cart, itemID)
		if item == nil {
			return utils.NewNotFoundError("Cart item")
		}
		if req.Quantity == 0 {
			return tx.Unscoped().Delete(&models.CartItem{}, "id = ?", item.ID).Error
		}

		product, variant, err := s.loadPurchasable(tx, item.ProductID, item.VariantID)
		if err != nil {
			return err
		}
		if req.Quantity > availableStock(product, variant) {
			return utils.NewConflictError("insufficient stock")
		}
		return tx.Model(&models.CartItem{}).Where("id = ?", item.ID).Update("quantity", req.Quantity).Error
	})
}

func (s *CartService) RemoveItem(owner CartOwner, itemID uuid.UUID) (*CartView, error) {
	return s.withCart(owner, func(tx *gorm.DB, cart *models.Cart) error {
		item := findCartItem(cart, itemID)
		if item == nil {
			return utils.NewNotFoundError("Cart item")
		}
		return tx.Unscoped().Delete(&models.CartItem{}, "id = ?", item.ID).Error
	})
}

// Clear removes every line and any discount code.
func (s *CartService) Clear(owner CartOwner) (*CartView, error) {
	return s.withCart(owner, func(tx *gorm.DB, cart *models.Cart) error {
		return clearCart(tx, cart.ID)
	})
}

func clearCart(tx *gorm.DB, cartID uuid.UUID) error {
	if err := tx.Unscoped().Where("cart_id = ?", cartID).Delete(&models.CartItem{}).Error; err != nil {
		return fmt.Errorf("failed to clear cart items: %w", err)
	}
	if err := tx.Model(&models.Cart{}).Where("id = ?", cartID).Update("discount_code", nil).Error; err != nil {
		return fmt.Errorf("failed to clear discount code: %w", err)
	}
	return nil
}

// ApplyDiscountCode stores code on the cart once it is eligible for it.
func (s *CartService) ApplyDiscountCode(owner CartOwner, req *ApplyDiscountCodeRequest) (*CartView, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	code := NormalizeCode(req.Code)

	return s.withCart(owner, func(tx *gorm.DB, cart *models.Cart) error {
		discount, err := s.discounts.FindByCode(tx, code)
		if err != nil {
			if utils.IsNotFound(err) {
				return utils.NewValidationError("invalid discount code", nil)
			}
			return err
		}

		if err := s.refresh(tx, cart); err != nil {
			return err
		}
		settings, err := s.settings.StoreSettings(tx)
		if err != nil {
			return err
		}
		lines := cartPricingLines(cart.Items)
		subtotal := Subtotal(lines)
		shipping := Shipping(lines, subtotal, settings)
		if !IsEligible(discount, lines, subtotal, shipping, s.now()) {
			return utils.NewValidationError("discount code is not applicable to this cart", nil)
		}

		return tx.Model(&models.Cart{}).Where("id = ?", cart.ID).Update("discount_code", code).Error
	})
}

func (s *CartService) RemoveDiscountCode(owner CartOwner) (*CartView, error) {
	return s.withCart(owner, func(tx *gorm.DB, cart *models.Cart) error {
		return tx.Model(&models.Cart{}).Where("id = ?", cart.ID).Update("discount_code", nil).Error
	})
}

// MergeGuestCart moves a guest session's lines into the user's cart and
// deletes the guest cart. Summed quantities are capped at available stock.
func (s *CartService) MergeGuestCart(sessionID string, userID uuid.UUID) error {
	if sessionID == "" {
		return nil
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		guest, err := s.loadCart(tx, CartOwner{SessionID: sessionID}, true)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		userCart, err := s.findOrCreateCart(tx, CartOwner{UserID: &userID})
		if err != nil {
			return err
		}

		for _, item := range guest.Items {
			if item.Product == nil || !item.Product.IsPurchasable() {
				continue
			}
			if item.VariantID != nil && (item.Variant == nil || !item.Variant.IsActive) {
				continue
			}
			stock := availableStock(item.Product, item.Variant)

			var target *models.CartItem
			for i := range userCart.Items {
				if userCart.Items[i].SameLine(item.ProductID, item.VariantID) {
					target = &userCart.Items[i]
					break
				}
			}

			quantity := item.Quantity
			if target != nil {
				quantity += target.Quantity
			}
			if quantity > stock {
				quantity = stock
			}

			price := item.Product.EffectivePrice(item.Variant)
			switch {
			case target != nil && quantity <= 0:
				err = tx.Unscoped().Delete(&models.CartItem{}, "id = ?", target.ID).Error
			case target != nil:
				err = tx.Model(&models.CartItem{}).Where("id = ?", target.ID).
					Updates(map[string]interface{}{"quantity": quantity, "unit_price": price}).Error
			case quantity > 0:
				merged := &models.CartItem{
					CartID:    userCart.ID,
					ProductID: item.ProductID,
					VariantID: item.VariantID,
					Quantity:  quantity,
					UnitPrice: price,
				}
				err = tx.Omit(clause.Associations).Create(merged).Error
				userCart.Items = append(userCart.Items, *merged)
			}
			if err != nil {
				return fmt.Errorf("failed to merge cart item: %w", err)
			}
		}

		if guest.DiscountCode != nil && userCart.DiscountCode == nil {
			if err := tx.Model(&models.Cart{}).Where("id = ?", userCart.ID).
				Update("discount_code", *guest.DiscountCode).Error; err != nil {
				return fmt.Errorf("failed to carry over discount code: %w", err)
			}
		}

		if err := tx.Unscoped().Where("cart_id = ?", guest.ID).Delete(&models.CartItem{}).Error; err != nil {
			return fmt.Errorf("failed to delete guest cart items: %w", err)
		}
		if err := tx.Unscoped().Delete(&models.Cart{}, "id = ?", guest.ID).Error; err != nil {
			return fmt.Errorf("failed to delete guest cart: %w", err)
		}

		logrus.WithFields(logrus.Fields{
			"user_id": userID,
			"items":   len(guest.Items),
		}).Debug("Guest cart merged")
		return nil
	})
}

// internal/handlers/cart.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/javajoker/storefront-backend/internal/i18n"
	"github.com/javajoker/storefront-backend/internal/services"
	"github.com/javajoker/storefront-backend/internal/utils"
)

type CartHandler struct {
	cartService *services.CartService
}

func NewCartHandler(cartService *services.CartService) *CartHandler {
	return &CartHandler{cartService: cartService}
}

func (h *CartHandler) respond(c *gin.Context, cart *services.CartView, err error, key string) {
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	if key == "" {
		utils.SuccessResponse(c, gin.H{"cart": cart})
		return
	}
	utils.SuccessResponse(c, gin.H{"message": message(c, key), "cart": cart})
}

// GET /api/storefront/cart
func (h *CartHandler) Get(c *gin.Context) {
	cart, err := h.cartService.GetCart(cartOwner(c))
	h.respond(c, cart, err, "")
}

// POST /api/storefront/cart/items
func (h *CartHandler) AddItem(c *gin.Context) {
	var req services.AddCartItemRequest
	if !bindJSON(c, &req) {
		return
	}
	cart, err := h.cartService.AddItem(cartOwner(c), &req)
	h.respond(c, cart, err, i18n.KeyCartItemAdded)
}

// PUT /api/storefront/cart/items/:itemId
func (h *CartHandler) UpdateItem(c *gin.Context) {
	itemID, ok := paramUUID(c, "itemId", "cart item")
	if !ok {
		return
	}
	var req services.UpdateCartItemRequest
	if !bindJSON(c, &req) {
		return
	}
	cart, err := h.cartService.UpdateItem(cartOwner(c), itemID, &req)
	h.respond(c, cart, err, i18n.KeyCartItemUpdated)
}

// DELETE /api/storefront/cart/items/:itemId
func (h *CartHandler) RemoveItem(c *gin.Context) {
	itemID, ok := paramUUID(c, "itemId", "cart item")
	if !ok {
		return
	}
	cart, err := h.cartService.RemoveItem(cartOwner(c), itemID)
	h.respond(c, cart, err, i18n.KeyCartItemRemoved)
}

// DELETE /api/storefront/cart
func (h *CartHandler) Clear(c *gin.Context) {
	cart, err := h.cartService.Clear(cartOwner(c))
	h.respond(c, cart, err, i18n.KeyCartCleared)
}

// POST /api/storefront/cart/discount
func (h *CartHandler) ApplyDiscount(c *gin.Context) {
	var req services.ApplyDiscountCodeRequest
	if !bindJSON(c, &req) {
		return
	}
	cart, err := h.cartService.ApplyDiscountCode(cartOwner(c), &req)
	h.respond(c, cart, err, i18n.KeyCartDiscountAdded)
}

// DELETE /api/storefront/cart/discount
func (h *CartHandler) RemoveDiscount(c *gin.Context) {
	cart, err := h.cartService.RemoveDiscountCode(cartOwner(c))
	h.respond(c, cart, err, i18n.KeyCartDiscountRemove)
}

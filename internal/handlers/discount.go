// internal/handlers/discount.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/javajoker/storefront-backend/internal/i18n"
	"github.com/javajoker/storefront-backend/internal/services"
	"github.com/javajoker/storefront-backend/internal/utils"
)

type DiscountHandler struct {
	discountService *services.DiscountService
}

func NewDiscountHandler(discountService *services.DiscountService) *DiscountHandler {
	return &DiscountHandler{discountService: discountService}
}

// GET /api/v1/discounts
func (h *DiscountHandler) List(c *gin.Context) {
	filter := services.DiscountFilter{
		PaginationParams: utils.GetPaginationParams(c),
		IsActive:         utils.QueryBool(c, "is_active"),
		IsAutomatic:      utils.QueryBool(c, "is_automatic"),
	}
	discounts, total, err := h.discountService.List(filter)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	paginated(c, discounts, total, filter.PaginationParams)
}

// GET /api/v1/discounts/:id
func (h *DiscountHandler) Get(c *gin.Context) {
	id, ok := paramUUID(c, "id", "discount")
	if !ok {
		return
	}
	discount, err := h.discountService.Get(id)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"discount": discount})
}

// POST /api/v1/discounts
func (h *DiscountHandler) Create(c *gin.Context) {
	var req services.DiscountRequest
	if !bindJSON(c, &req) {
		return
	}
	discount, err := h.discountService.Create(actorFrom(c), &req)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.CreatedResponse(c, gin.H{
		"message":  message(c, i18n.KeyDiscountCreated),
		"discount": discount,
	})
}

// PUT /api/v1/discounts/:id
func (h *DiscountHandler) Update(c *gin.Context) {
	id, ok := paramUUID(c, "id", "discount")
	if !ok {
		return
	}
	var req services.DiscountRequest
	if !bindJSON(c, &req) {
		return
	}
	discount, err := h.discountService.Update(actorFrom(c), id, &req)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{
		"message":  message(c, i18n.KeyDiscountUpdated),
		"discount": discount,
	})
}

// DELETE /api/v1/discounts/:id
func (h *DiscountHandler) Delete(c *gin.Context) {
	id, ok := paramUUID(c, "id", "discount")
	if !ok {
		return
	}
	if err := h.discountService.Delete(actorFrom(c), id); err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"message": message(c, i18n.KeyDiscountDeleted)})
}

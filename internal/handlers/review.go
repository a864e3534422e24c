// internal/handlers/review.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/javajoker/storefront-backend/internal/i18n"
	"github.com/javajoker/storefront-backend/internal/services"
	"github.com/javajoker/storefront-backend/internal/utils"
)

type ReviewHandler struct {
	reviewService *services.ReviewService
}

func NewReviewHandler(reviewService *services.ReviewService) *ReviewHandler {
	return &ReviewHandler{reviewService: reviewService}
}

// GET /api/storefront/products/:slug/reviews
func (h *ReviewHandler) ListForProduct(c *gin.Context) {
	params := utils.GetPaginationParams(c)
	reviews, total, err := h.reviewService.ListProductReviews(c.Param("slug"), params)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	paginated(c, reviews, total, params)
}

// POST /api/storefront/products/:slug/reviews
func (h *ReviewHandler) Create(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	var req services.CreateReviewRequest
	if !bindJSON(c, &req) {
		return
	}
	review, err := h.reviewService.Create(actorFrom(c), userID, c.Param("slug"), &req)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.CreatedResponse(c, gin.H{
		"message": message(c, i18n.KeyReviewSubmitted),
		"review":  review,
	})
}

// GET /api/v1/reviews
func (h *ReviewHandler) List(c *gin.Context) {
	filter := services.ReviewFilter{
		PaginationParams: utils.GetPaginationParams(c),
		Status:           utils.QueryString(c, "status"),
		ProductID:        utils.QueryUUID(c, "product_id"),
		Rating:           utils.QueryInt(c, "rating"),
	}
	reviews, total, err := h.reviewService.List(filter)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	paginated(c, reviews, total, filter.PaginationParams)
}

// GET /api/v1/reviews/:id
func (h *ReviewHandler) Get(c *gin.Context) {
	id, ok := paramUUID(c, "id", "review")
	if !ok {
		return
	}
	review, err := h.reviewService.Get(id)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"review": review})
}

// POST /api/v1/reviews/:id/approve
func (h *ReviewHandler) Approve(c *gin.Context) {
	id, ok := paramUUID(c, "id", "review")
	if !ok {
		return
	}
	review, err := h.reviewService.Approve(actorFrom(c), id)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"message": message(c, i18n.KeyReviewModerated), "review": review})
}

// POST /api/v1/reviews/:id/reject
func (h *ReviewHandler) Reject(c *gin.Context) {
	id, ok := paramUUID(c, "id", "review")
	if !ok {
		return
	}
	review, err := h.reviewService.Reject(actorFrom(c), id)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"message": message(c, i18n.KeyReviewModerated), "review": review})
}

// DELETE /api/v1/reviews/:id
func (h *ReviewHandler) Delete(c *gin.Context) {
	id, ok := paramUUID(c, "id", "review")
	if !ok {
		return
	}
	if err := h.reviewService.Delete(actorFrom(c), id); err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"message": message(c, i18n.KeyReviewDeleted)})
}

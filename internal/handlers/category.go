// internal/handlers/category.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/javajoker/storefront-backend/internal/i18n"
	"github.com/javajoker/storefront-backend/internal/services"
	"github.com/javajoker/storefront-backend/internal/utils"
)

type CategoryHandler struct {
	categoryService *services.CategoryService
}

func NewCategoryHandler(categoryService *services.CategoryService) *CategoryHandler {
	return &CategoryHandler{categoryService: categoryService}
}

func categoryFilter(c *gin.Context) services.CategoryFilter {
	return services.CategoryFilter{
		PaginationParams: utils.GetPaginationParams(c),
		ParentID:         utils.QueryUUID(c, "parent_id"),
		IsActive:         utils.QueryBool(c, "is_active"),
	}
}

// GET /api/storefront/categories
func (h *CategoryHandler) ListStorefront(c *gin.Context) {
	filter := categoryFilter(c)
	filter.ActiveOnly = true

	categories, total, err := h.categoryService.List(filter)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	paginated(c, categories, total, filter.PaginationParams)
}

// GET /api/storefront/categories/:slug
func (h *CategoryHandler) GetStorefront(c *gin.Context) {
	category, err := h.categoryService.GetBySlug(c.Param("slug"))
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"category": category})
}

// GET /api/v1/categories
func (h *CategoryHandler) List(c *gin.Context) {
	filter := categoryFilter(c)
	categories, total, err := h.categoryService.List(filter)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	paginated(c, categories, total, filter.PaginationParams)
}

// GET /api/v1/categories/:id
func (h *CategoryHandler) Get(c *gin.Context) {
	id, ok := paramUUID(c, "id", "category")
	if !ok {
		return
	}
	category, err := h.categoryService.Get(id)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"category": category})
}

// POST /api/v1/categories
func (h *CategoryHandler) Create(c *gin.Context) {
	var req services.CategoryRequest
	if !bindJSON(c, &req) {
		return
	}
	category, err := h.categoryService.Create(actorFrom(c), &req)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.CreatedResponse(c, gin.H{
		"message":  message(c, i18n.KeyCategoryCreated),
		"category": category,
	})
}

// PUT /api/v1/categories/:id
func (h *CategoryHandler) Update(c *gin.Context) {
	id, ok := paramUUID(c, "id", "category")
	if !ok {
		return
	}
	var req services.CategoryRequest
	if !bindJSON(c, &req) {
		return
	}
	category, err := h.categoryService.Update(actorFrom(c), id, &req)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{
		"message":  message(c, i18n.KeyCategoryUpdated),
		"category": category,
	})
}

// DELETE /api/v1/categories/:id
func (h *CategoryHandler) Delete(c *gin.Context) {
	id, ok := paramUUID(c, "id", "category")
	if !ok {
		return
	}
	if err := h.categoryService.Delete(actorFrom(c), id); err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"message": message(c, i18n.KeyCategoryDeleted)})
}

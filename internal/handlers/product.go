// internal/handlers/product.go
package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/javajoker/storefront-backend/internal/i18n"
	"github.com/javajoker/storefront-backend/internal/models"
	"github.com/javajoker/storefront-backend/internal/services"
	"github.com/javajoker/storefront-backend/internal/utils"
)

type ProductHandler struct {
	productService *services.ProductService
	storageService *services.StorageService
}

func NewProductHandler(productService *services.ProductService, storageService *services.StorageService) *ProductHandler {
	return &ProductHandler{
		productService: productService,
		storageService: storageService,
	}
}

func queryDecimal(c *gin.Context, key string) *decimal.Decimal {
	v := c.Query(key)
	if v == "" {
		return nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return nil
	}
	return &d
}

func productSearchParams(c *gin.Context) services.ProductSearchParams {
	params := services.ProductSearchParams{
		PaginationParams: utils.GetPaginationParams(c),
		Category:         c.Query("category"),
		CategoryID:       utils.QueryUUID(c, "category_id"),
		PriceMin:         queryDecimal(c, "min_price"),
		PriceMax:         queryDecimal(c, "max_price"),
		InStock:          utils.QueryBool(c, "in_stock"),
	}
	if tags := c.Query("tags"); tags != "" {
		params.Tags = strings.Split(tags, ",")
	}
	return params
}

// GET /api/storefront/products
func (h *ProductHandler) ListStorefront(c *gin.Context) {
	params := productSearchParams(c)
	params.Storefront = true

	products, total, err := h.productService.SearchProducts(params)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	paginated(c, products, total, params.PaginationParams)
}

// GET /api/storefront/products/:slug
func (h *ProductHandler) GetStorefront(c *gin.Context) {
	product, err := h.productService.GetStorefrontProduct(c.Param("slug"))
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"product": product})
}

// GET /api/v1/products
func (h *ProductHandler) List(c *gin.Context) {
	params := productSearchParams(c)
	if status := c.Query("status"); status != "" {
		s := models.ProductStatus(status)
		params.Status = &s
	}

	products, total, err := h.productService.SearchProducts(params)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	paginated(c, products, total, params.PaginationParams)
}

// GET /api/v1/products/low-stock
func (h *ProductHandler) LowStock(c *gin.Context) {
	params := utils.GetPaginationParams(c)
	products, total, threshold, err := h.productService.LowStock(params)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	result := utils.CreatePaginationResult(products, total, params)
	utils.SetPaginationHeaders(c, result)
	utils.SuccessResponseWithMeta(c, products, gin.H{
		"threshold": threshold,
		"pagination": gin.H{
			"page":        result.Page,
			"limit":       result.Limit,
			"total":       result.Total,
			"total_pages": result.TotalPages,
		},
	})
}

// GET /api/v1/products/:id
func (h *ProductHandler) Get(c *gin.Context) {
	id, ok := paramUUID(c, "id", "product")
	if !ok {
		return
	}
	product, err := h.productService.GetProduct(id)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"product": product})
}

// POST /api/v1/products
func (h *ProductHandler) Create(c *gin.Context) {
	var req services.ProductRequest
	if !bindJSON(c, &req) {
		return
	}

	product, err := h.productService.CreateProduct(actorFrom(c), &req)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message": message(c, i18n.KeyProductCreated),
		"product": product,
	})
}

// PUT /api/v1/products/:id
func (h *ProductHandler) Update(c *gin.Context) {
	id, ok := paramUUID(c, "id", "product")
	if !ok {
		return
	}
	var req services.ProductRequest
	if !bindJSON(c, &req) {
		return
	}

	product, err := h.productService.UpdateProduct(actorFrom(c), id, &req)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": message(c, i18n.KeyProductUpdated),
		"product": product,
	})
}

// POST /api/v1/products/:id/archive
func (h *ProductHandler) Archive(c *gin.Context) {
	id, ok := paramUUID(c, "id", "product")
	if !ok {
		return
	}
	product, err := h.productService.ArchiveProduct(actorFrom(c), id)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{
		"message": message(c, i18n.KeyProductUpdated),
		"product": product,
	})
}

// DELETE /api/v1/products/:id
func (h *ProductHandler) Delete(c *gin.Context) {
	id, ok := paramUUID(c, "id", "product")
	if !ok {
		return
	}
	if err := h.productService.DeleteProduct(actorFrom(c), id); err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"message": message(c, i18n.KeyProductDeleted)})
}

// POST /api/v1/products/upload-images
// POST /api/v1/products/:id/images
//
// Without :id the uploaded URLs are only returned; with it they are also
// appended to the product.
func (h *ProductHandler) UploadImages(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	form, err := c.MultipartForm()
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "upload"), err.Error())
		return
	}

	files := form.File["images"]
	if len(files) == 0 {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "images"), nil)
		return
	}

	options := h.storageService.GetDefaultUploadOptions("products")
	var uploaded []*services.UploadResult
	var failed []gin.H

	for _, fileHeader := range files {
		file, err := fileHeader.Open()
		if err != nil {
			failed = append(failed, gin.H{"file": fileHeader.Filename, "error": err.Error()})
			continue
		}

		if err := h.storageService.ValidateImage(file); err != nil {
			file.Close()
			failed = append(failed, gin.H{"file": fileHeader.Filename, "error": err.Error()})
			continue
		}

		result, err := h.storageService.UploadFile(file, fileHeader, options)
		file.Close()
		if err != nil {
			failed = append(failed, gin.H{"file": fileHeader.Filename, "error": err.Error()})
			continue
		}
		uploaded = append(uploaded, result)
	}

	if len(uploaded) == 0 {
		utils.ErrorResponse(c, 400, "UPLOAD_FAILED", i18n.T(lang, i18n.KeyValidationInvalid, "upload"), failed)
		return
	}

	payload := gin.H{
		"message": i18n.T(lang, i18n.KeyUploadSuccess),
		"images":  uploaded,
		"failed":  failed,
	}

	if c.Param("id") != "" {
		id, ok := paramUUID(c, "id", "product")
		if !ok {
			return
		}
		urls := make([]string, len(uploaded))
		for i, u := range uploaded {
			urls[i] = u.URL
		}
		product, err := h.productService.AddImages(actorFrom(c), id, urls)
		if err != nil {
			utils.HandleError(c, err)
			return
		}
		payload["product"] = product
	}

	utils.SuccessResponse(c, payload)
}

// GET /api/v1/products/:id/variants
func (h *ProductHandler) ListVariants(c *gin.Context) {
	id, ok := paramUUID(c, "id", "product")
	if !ok {
		return
	}
	variants, err := h.productService.ListVariants(id)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"variants": variants})
}

// POST /api/v1/products/:id/variants
func (h *ProductHandler) CreateVariant(c *gin.Context) {
	id, ok := paramUUID(c, "id", "product")
	if !ok {
		return
	}
	var req services.VariantRequest
	if !bindJSON(c, &req) {
		return
	}

	variant, err := h.productService.CreateVariant(actorFrom(c), id, &req)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.CreatedResponse(c, gin.H{
		"message": message(c, i18n.KeyVariantCreated),
		"variant": variant,
	})
}

// PUT /api/v1/products/:id/variants/:variantId
func (h *ProductHandler) UpdateVariant(c *gin.Context) {
	id, ok := paramUUID(c, "id", "product")
	if !ok {
		return
	}
	variantID, ok := paramUUID(c, "variantId", "variant")
	if !ok {
		return
	}
	var req services.VariantRequest
	if !bindJSON(c, &req) {
		return
	}

	variant, err := h.productService.UpdateVariant(actorFrom(c), id, variantID, &req)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{
		"message": message(c, i18n.KeyVariantUpdated),
		"variant": variant,
	})
}

// DELETE /api/v1/products/:id/variants/:variantId
func (h *ProductHandler) DeleteVariant(c *gin.Context) {
	id, ok := paramUUID(c, "id", "product")
	if !ok {
		return
	}
	variantID, ok := paramUUID(c, "variantId", "variant")
	if !ok {
		return
	}
	if err := h.productService.DeleteVariant(actorFrom(c), id, variantID); err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"message": message(c, i18n.KeyVariantDeleted)})
}

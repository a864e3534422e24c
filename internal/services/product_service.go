// internal/services/product_service.go
package services

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/javajoker/storefront-backend/internal/models"
	"github.com/javajoker/storefront-backend/internal/utils"
)

type ProductService struct {
	db       *gorm.DB
	audit    *AuditService
	settings *SettingsService
}

type ProductRequest struct {
	Name           string               `json:"name" validate:"required,min=2,max=255"`
	Slug           string               `json:"slug" validate:"omitempty,slug"`
	Description    string               `json:"description"`
	SKU            string               `json:"sku" validate:"required,max=100"`
	Price          decimal.Decimal      `json:"price"`
	CompareAtPrice decimal.NullDecimal  `json:"compare_at_price"`
	Stock          int                  `json:"stock" validate:"min=0"`
	Status         models.ProductStatus `json:"status" validate:"omitempty,oneof=draft active archived"`
	CategoryID     *uuid.UUID           `json:"category_id"`
	Images         []string             `json:"images" validate:"omitempty,dive,url"`
	Tags           []string             `json:"tags"`
}

type VariantRequest struct {
	Name     string              `json:"name" validate:"required,max=255"`
	SKU      string              `json:"sku" validate:"required,max=100"`
	Price    decimal.NullDecimal `json:"price"`
	Stock    int                 `json:"stock" validate:"min=0"`
	IsActive *bool               `json:"is_active"`
}

type ProductSearchParams struct {
	utils.PaginationParams
	Category   string                `json:"category,omitempty"`
	CategoryID *uuid.UUID            `json:"category_id,omitempty"`
	Status     *models.ProductStatus `json:"status,omitempty"`
	PriceMin   *decimal.Decimal      `json:"min_price,omitempty"`
	PriceMax   *decimal.Decimal      `json:"max_price,omitempty"`
	Tags       []string              `json:"tags,omitempty"`
	InStock    *bool                 `json:"in_stock,omitempty"`

	// Storefront restricts results to active products.
	Storefront bool `json:"-"`
}

// ProductDetail is the storefront product page.
type ProductDetail struct {
	*models.Product
	RatingBreakdown map[int]int64 `json:"rating_breakdown"`
}

func NewProductService(db *gorm.DB, audit *AuditService, settings *SettingsService) *ProductService {
	return &ProductService{db: db, audit: audit, settings: settings}
}

func (r *ProductRequest) check() error {
	if err := validate(r); err != nil {
		return err
	}
	if r.Price.IsNegative() {
		return utils.NewValidationError("price must not be negative", nil)
	}
	if r.CompareAtPrice.Valid && r.CompareAtPrice.Decimal.LessThan(r.Price) {
		return utils.NewValidationError("compare_at_price must not be below price", nil)
	}
	if r.Slug == "" {
		r.Slug = utils.Slugify(r.Name)
	}
	if r.Slug == "" {
		return utils.NewValidationError("slug could not be derived from name", nil)
	}
	if r.Status == "" {
		r.Status = models.ProductStatusDraft
	}
	r.SKU = strings.ToUpper(strings.TrimSpace(r.SKU))
	return nil
}

func (s *ProductService) checkUnique(tx *gorm.DB, slug, sku string, exclude *uuid.UUID) error {
	var count int64
	query := tx.Unscoped().Model(&models.Product{}).Where("slug = ?", slug)
	if exclude != nil {
		query = query.Where("id <> ?", *exclude)
	}
	if err := query.Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check product slug: %w", err)
	}
	if count > 0 {
		return utils.NewConflictError("product slug already exists")
	}

	return s.checkSKU(tx, sku, exclude, nil)
}

// checkSKU enforces one namespace across products and variants.
func (s *ProductService) checkSKU(tx *gorm.DB, sku string, excludeProduct, excludeVariant *uuid.UUID) error {
	var count int64
	query := tx.Unscoped().Model(&models.Product{}).Where("sku = ?", sku)
	if excludeProduct != nil {
		query = query.Where("id <> ?", *excludeProduct)
	}
	if err := query.Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check sku: %w", err)
	}
	if count == 0 {
		query = tx.Unscoped().Model(&models.ProductVariant{}).Where("sku = ?", sku)
		if excludeVariant != nil {
			query = query.Where("id <> ?", *excludeVariant)
		}
		if err := query.Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check sku: %w", err)
		}
	}
	if count > 0 {
		return utils.NewConflictError("sku already exists")
	}
	return nil
}

func (s *ProductService) checkCategory(tx *gorm.DB, id *uuid.UUID) error {
	if id == nil {
		return nil
	}
	var count int64
	if err := tx.Model(&models.Category{}).Where("id = ?", *id).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check category: %w", err)
	}
	if count == 0 {
		return utils.NewValidationError("category does not exist", nil)
	}
	return nil
}

func (s *ProductService) CreateProduct(actor Actor, req *ProductRequest) (*models.Product, error) {
	if err := req.check(); err != nil {
		return nil, err
	}

	product := &models.Product{
		Name:           req.Name,
		Slug:           req.Slug,
		Description:    req.Description,
		SKU:            req.SKU,
		Price:          utils.RoundMoney(req.Price),
		CompareAtPrice: req.CompareAtPrice,
		Stock:          req.Stock,
		Status:         req.Status,
		CategoryID:     req.CategoryID,
		Images:         pq.StringArray(req.Images),
		Tags:           pq.StringArray(req.Tags),
		Rating:         decimal.Zero,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.checkUnique(tx, product.Slug, product.SKU, nil); err != nil {
			return err
		}
		if err := s.checkCategory(tx, product.CategoryID); err != nil {
			return err
		}
		if err := tx.Create(product).Error; err != nil {
			if isUniqueViolation(err) {
				return utils.NewConflictError("product slug or sku already exists")
			}
			return fmt.Errorf("failed to create product: %w", err)
		}
		return s.audit.RecordTx(tx, actor, AuditEntry{
			Action:       "product.created",
			ResourceType: "product",
			ResourceID:   &product.ID,
			NewValues:    product,
		})
	})
	if err != nil {
		return nil, err
	}

	return s.GetProduct(product.ID)
}

func (s *ProductService) GetProduct(id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := s.db.Preload("Category").Preload("Variants").First(&product, "id = ?", id).Error; err != nil {
		return nil, findOrNotFound(err, "Product")
	}
	return &product, nil
}

// GetStorefrontProduct returns an active product by slug with its active
// variants and review distribution.
func (s *ProductService) GetStorefrontProduct(slug string) (*ProductDetail, error) {
	var product models.Product
	err := s.db.Preload("Category").
		Preload("Variants", "is_active = ?", true).
		Where("slug = ? AND status = ?", slug, models.ProductStatusActive).
		First(&product).Error
	if err != nil {
		return nil, findOrNotFound(err, "Product")
	}

	type bucket struct {
		Rating int
		Count  int64
	}
	var buckets []bucket
	if err := s.db.Model(&models.Review{}).
		Select("rating, COUNT(*) AS count").
		Where("product_id = ? AND status = ?", product.ID, models.ReviewStatusApproved).
		Group("rating").Scan(&buckets).Error; err != nil {
		return nil, fmt.Errorf("failed to load review summary: %w", err)
	}

	breakdown := map[int]int64{1: 0, 2: 0, 3: 0, 4: 0, 5: 0}
	for _, b := range buckets {
		breakdown[b.Rating] = b.Count
	}

	return &ProductDetail{Product: &product, RatingBreakdown: breakdown}, nil
}

func (s *ProductService) UpdateProduct(actor Actor, id uuid.UUID, req *ProductRequest) (*models.Product, error) {
	if err := req.check(); err != nil {
		return nil, err
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var product models.Product
		if err := tx.First(&product, "id = ?", id).Error; err != nil {
			return findOrNotFound(err, "Product")
		}
		old := product

		if err := s.checkUnique(tx, req.Slug, req.SKU, &id); err != nil {
			return err
		}
		if err := s.checkCategory(tx, req.CategoryID); err != nil {
			return err
		}

		product.Name = req.Name
		product.Slug = req.Slug
		product.Description = req.Description
		product.SKU = req.SKU
		product.Price = utils.RoundMoney(req.Price)
		product.CompareAtPrice = req.CompareAtPrice
		product.Stock = req.Stock
		product.Status = req.Status
		product.CategoryID = req.CategoryID
		if req.Images != nil {
			product.Images = pq.StringArray(req.Images)
		}
		if req.Tags != nil {
			product.Tags = pq.StringArray(req.Tags)
		}

		if err := tx.Omit("Category", "Variants").Save(&product).Error; err != nil {
			if isUniqueViolation(err) {
				return utils.NewConflictError("product slug or sku already exists")
			}
			return fmt.Errorf("failed to update product: %w", err)
		}

		return s.audit.RecordTx(tx, actor, AuditEntry{
			Action:       "product.updated",
			ResourceType: "product",
			ResourceID:   &product.ID,
			OldValues:    old,
			NewValues:    product,
		})
	})
	if err != nil {
		return nil, err
	}

	return s.GetProduct(id)
}

// ArchiveProduct hides a product from the storefront but keeps it editable.
func (s *ProductService) ArchiveProduct(actor Actor, id uuid.UUID) (*models.Product, error) {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var product models.Product
		if err := tx.First(&product, "id = ?", id).Error; err != nil {
			return findOrNotFound(err, "Product")
		}
		if err := tx.Model(&product).Update("status", models.ProductStatusArchived).Error; err != nil {
			return fmt.Errorf("failed to archive product: %w", err)
		}
		return s.audit.RecordTx(tx, actor, AuditEntry{
			Action:       "product.archived",
			ResourceType: "product",
			ResourceID:   &product.ID,
			OldValues:    map[string]interface{}{"status": product.Status},
			NewValues:    map[string]interface{}{"status": models.ProductStatusArchived},
		})
	})
	if err != nil {
		return nil, err
	}
	return s.GetProduct(id)
}

// DeleteProduct soft deletes the product. Order items keep their snapshot.
func (s *ProductService) DeleteProduct(actor Actor, id uuid.UUID) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var product models.Product
		if err := tx.First(&product, "id = ?", id).Error; err != nil {
			return findOrNotFound(err, "Product")
		}

		if err := tx.Where("product_id = ?", id).Delete(&models.ProductVariant{}).Error; err != nil {
			return fmt.Errorf("failed to delete variants: %w", err)
		}
		if err := tx.Unscoped().Where("product_id = ?", id).Delete(&models.CartItem{}).Error; err != nil {
			return fmt.Errorf("failed to remove product from carts: %w", err)
		}
		if err := tx.Delete(&product).Error; err != nil {
			return fmt.Errorf("failed to delete product: %w", err)
		}

		return s.audit.RecordTx(tx, actor, AuditEntry{
			Action:       "product.deleted",
			ResourceType: "product",
			ResourceID:   &product.ID,
			OldValues:    product,
		})
	})
}

// AddImages appends uploaded image URLs to the product gallery.
func (s *ProductService) AddImages(actor Actor, id uuid.UUID, urls []string) (*models.Product, error) {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var product models.Product
		if err := tx.First(&product, "id = ?", id).Error; err != nil {
			return findOrNotFound(err, "Product")
		}
		images := append(pq.StringArray{}, product.Images...)
		images = append(images, urls...)
		if err := tx.Model(&product).Update("images", images).Error; err != nil {
			return fmt.Errorf("failed to save product images: %w", err)
		}
		return s.audit.RecordTx(tx, actor, AuditEntry{
			Action:       "product.images_added",
			ResourceType: "product",
			ResourceID:   &product.ID,
			NewValues:    map[string]interface{}{"images": urls},
		})
	})
	if err != nil {
		return nil, err
	}
	return s.GetProduct(id)
}

func (s *ProductService) SearchProducts(params ProductSearchParams) ([]models.Product, int64, error) {
	query := s.db.Model(&models.Product{})

	if params.Storefront {
		query = query.Where("products.status = ?", models.ProductStatusActive)
	} else if params.Status != nil {
		query = query.Where("products.status = ?", *params.Status)
	}

	if params.Category != "" {
		query = query.Where("products.category_id IN (?)",
			s.db.Model(&models.Category{}).Select("id").Where("slug = ?", params.Category))
	}
	if params.CategoryID != nil {
		query = query.Where("products.category_id = ?", *params.CategoryID)
	}

	if params.Search != "" {
		searchTerm := likePattern(params.Search)
		query = query.Where("LOWER(products.name) LIKE ? OR LOWER(products.description) LIKE ? OR LOWER(products.sku) LIKE ?",
			searchTerm, searchTerm, searchTerm)
	}

	if params.PriceMin != nil {
		query = query.Where("products.price >= ?", *params.PriceMin)
	}
	if params.PriceMax != nil {
		query = query.Where("products.price <= ?", *params.PriceMax)
	}

	if len(params.Tags) > 0 && s.db.Dialector.Name() == "postgres" {
		query = query.Where("products.tags && ?", pq.StringArray(params.Tags))
	}

	if params.InStock != nil {
		if *params.InStock {
			query = query.Where("products.stock > 0")
		} else {
			query = query.Where("products.stock <= 0")
		}
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count products: %w", err)
	}

	allowedSortFields := []string{"created_at", "updated_at", "name", "price", "rating", "stock"}
	query = utils.ApplySort(query, params.PaginationParams, allowedSortFields)
	query = utils.ApplyPagination(query, params.PaginationParams)

	variantScope := func(db *gorm.DB) *gorm.DB { return db }
	if params.Storefront {
		variantScope = func(db *gorm.DB) *gorm.DB { return db.Where("is_active = ?", true) }
	}

	var products []models.Product
	if err := query.Preload("Category").Preload("Variants", variantScope).Find(&products).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch products: %w", err)
	}

	return products, total, nil
}

// LowStock lists non-archived products at or below the low stock threshold.
func (s *ProductService) LowStock(params utils.PaginationParams) ([]models.Product, int64, int, error) {
	settings, err := s.settings.StoreSettings(nil)
	if err != nil {
		return nil, 0, 0, err
	}
	threshold := settings.LowStockThreshold

	query := s.db.Model(&models.Product{}).
		Where("status <> ?", models.ProductStatusArchived).
		Where("stock <= ? OR id IN (?)", threshold,
			s.db.Model(&models.ProductVariant{}).Select("product_id").Where("is_active = ? AND stock <= ?", true, threshold))

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, 0, fmt.Errorf("failed to count low stock products: %w", err)
	}

	params.Sort = "stock"
	params.Order = "asc"
	query = utils.ApplySort(query, params, []string{"stock"})
	query = utils.ApplyPagination(query, params)

	var products []models.Product
	if err := query.Preload("Variants").Find(&products).Error; err != nil {
		return nil, 0, 0, fmt.Errorf("failed to fetch low stock products: %w", err)
	}
	return products, total, threshold, nil
}

// CountLowStock is used by the dashboard.
func (s *ProductService) CountLowStock() (int64, error) {
	_, total, _, err := s.LowStock(utils.NormalizePagination(utils.PaginationParams{Limit: 1}))
	return total, err
}

func (s *ProductService) ListVariants(productID uuid.UUID) ([]models.ProductVariant, error) {
	if _, err := s.GetProduct(productID); err != nil {
		return nil, err
	}
	var variants []models.ProductVariant
	if err := s.db.Where("product_id = ?", productID).Order("created_at asc").Find(&variants).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch variants: %w", err)
	}
	return variants, nil
}

func (s *ProductService) CreateVariant(actor Actor, productID uuid.UUID, req *VariantRequest) (*models.ProductVariant, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	if req.Price.Valid && req.Price.Decimal.IsNegative() {
		return nil, utils.NewValidationError("price must not be negative", nil)
	}

	variant := &models.ProductVariant{
		ProductID: productID,
		Name:      req.Name,
		SKU:       strings.ToUpper(strings.TrimSpace(req.SKU)),
		Price:     req.Price,
		Stock:     req.Stock,
		IsActive:  true,
	}
	if req.IsActive != nil {
		variant.IsActive = *req.IsActive
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var product models.Product
		if err := tx.First(&product, "id = ?", productID).Error; err != nil {
			return findOrNotFound(err, "Product")
		}
		if err := s.checkSKU(tx, variant.SKU, nil, nil); err != nil {
			return err
		}
		if err := tx.Create(variant).Error; err != nil {
			if isUniqueViolation(err) {
				return utils.NewConflictError("sku already exists")
			}
			return fmt.Errorf("failed to create variant: %w", err)
		}
		return s.audit.RecordTx(tx, actor, AuditEntry{
			Action:       "variant.created",
			ResourceType: "product_variant",
			ResourceID:   &variant.ID,
			NewValues:    variant,
		})
	})
	if err != nil {
		return nil, err
	}
	return variant, nil
}

func (s *ProductService) UpdateVariant(actor Actor, productID, variantID uuid.UUID, req *VariantRequest) (*models.ProductVariant, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	if req.Price.Valid && req.Price.Decimal.IsNegative() {
		return nil, utils.NewValidationError("price must not be negative", nil)
	}

	var variant models.ProductVariant
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&variant, "id = ? AND product_id = ?", variantID, productID).Error; err != nil {
			return findOrNotFound(err, "Variant")
		}
		old := variant

		sku := strings.ToUpper(strings.TrimSpace(req.SKU))
		if err := s.checkSKU(tx, sku, nil, &variantID); err != nil {
			return err
		}

		variant.Name = req.Name
		variant.SKU = sku
		variant.Price = req.Price
		variant.Stock = req.Stock
		if req.IsActive != nil {
			variant.IsActive = *req.IsActive
		}
		if err := tx.Omit("Product").Save(&variant).Error; err != nil {
			return fmt.Errorf("failed to update variant: %w", err)
		}
		return s.audit.RecordTx(tx, actor, AuditEntry{
			Action:       "variant.updated",
			ResourceType: "product_variant",
			ResourceID:   &variant.ID,
			OldValues:    old,
			NewValues:    variant,
		})
	})
	if err != nil {
		return nil, err
	}
	return &variant, nil
}

func (s *ProductService) DeleteVariant(actor Actor, productID, variantID uuid.UUID) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var variant models.ProductVariant
		if err := tx.First(&variant, "id = ? AND product_id = ?", variantID, productID).Error; err != nil {
			return findOrNotFound(err, "Variant")
		}
		if err := tx.Unscoped().Where("variant_id = ?", variantID).Delete(&models.CartItem{}).Error; err != nil {
			return fmt.Errorf("failed to remove variant from carts: %w", err)
		}
		if err := tx.Delete(&variant).Error; err != nil {
			return fmt.Errorf("failed to delete variant: %w", err)
		}
		return s.audit.RecordTx(tx, actor, AuditEntry{
			Action:       "variant.deleted",
			ResourceType: "product_variant",
			ResourceID:   &variant.ID,
			OldValues:    variant,
		})
	})
}

package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/storefront-backend/internal/models"
	"github.com/javajoker/storefront-backend/internal/utils"
)

func productRequest(name, sku string) *ProductRequest {
	return &ProductRequest{Name: name, SKU: sku, Price: dec("19.99"), Stock: 10, Status: models.ProductStatusActive}
}

func TestCreateProductEnforcesUniqueSlugAndSKU(t *testing.T) {
	env := newTestEnv(t)
	actor := env.adminActor(t)

	lamp, err := env.products.CreateProduct(actor, productRequest("Desk Lamp", " lamp-01 "))
	require.NoError(t, err)
	assert.Equal(t, "desk-lamp", lamp.Slug)
	assert.Equal(t, "LAMP-01", lamp.SKU)

	_, err = env.products.CreateProduct(actor, productRequest("Desk Lamp", "LAMP-02"))
	assert.Equal(t, 409, appStatus(t, err))

	_, err = env.products.CreateProduct(actor, productRequest("Floor Lamp", "Lamp-01"))
	assert.Equal(t, 409, appStatus(t, err))

	_, err = env.products.CreateProduct(actor, &ProductRequest{Name: "Cheap", SKU: "CHEAP", Price: dec("-1")})
	assert.Equal(t, 400, appStatus(t, err))

	_, err = env.products.CreateProduct(actor, &ProductRequest{Name: "Orphan", SKU: "ORPHAN", Price: dec("1"), CategoryID: pointer(uuid.New())})
	assert.Equal(t, 400, appStatus(t, err))

	draft, err := env.products.CreateProduct(actor, &ProductRequest{Name: "Shade", SKU: "SHADE", Price: dec("4")})
	require.NoError(t, err)
	assert.Equal(t, models.ProductStatusDraft, draft.Status)
}

func TestUpdateProductRejectsTakenSlug(t *testing.T) {
	env := newTestEnv(t)
	actor := env.adminActor(t)

	_, err := env.products.CreateProduct(actor, productRequest("Blue Mug", "MUG-B"))
	require.NoError(t, err)
	red, err := env.products.CreateProduct(actor, productRequest("Red Mug", "MUG-R"))
	require.NoError(t, err)

	req := productRequest("Red Mug", "MUG-R")
	req.Slug = "blue-mug"
	_, err = env.products.UpdateProduct(actor, red.ID, req)
	assert.Equal(t, 409, appStatus(t, err))

	req = productRequest("Red Mug Large", "MUG-R")
	updated, err := env.products.UpdateProduct(actor, red.ID, req)
	require.NoError(t, err)
	assert.Equal(t, "red-mug-large", updated.Slug)
}

func TestVariantSKUsShareProductNamespace(t *testing.T) {
	env := newTestEnv(t)
	actor := env.adminActor(t)
	shirt := env.createProduct(t, "SHIRT", "20", 5, nil)
	env.createProduct(t, "SOCKS", "5", 5, nil)

	small, err := env.products.CreateVariant(actor, shirt.ID, &VariantRequest{Name: "Small", SKU: "shirt-s", Stock: 2})
	require.NoError(t, err)
	assert.Equal(t, "SHIRT-S", small.SKU)
	assert.True(t, small.IsActive)

	_, err = env.products.CreateVariant(actor, shirt.ID, &VariantRequest{Name: "Small again", SKU: "SHIRT-S"})
	assert.Equal(t, 409, appStatus(t, err))

	_, err = env.products.CreateVariant(actor, shirt.ID, &VariantRequest{Name: "Socks", SKU: "socks"})
	assert.Equal(t, 409, appStatus(t, err))

	_, err = env.products.CreateVariant(actor, uuid.New(), &VariantRequest{Name: "Lost", SKU: "LOST"})
	assert.Equal(t, 404, appStatus(t, err))

	_, err = env.products.CreateProduct(actor, productRequest("Shirt Small", "SHIRT-S"))
	assert.Equal(t, 409, appStatus(t, err))

	variants, err := env.products.ListVariants(shirt.ID)
	require.NoError(t, err)
	assert.Len(t, variants, 1)
}

func TestCategorySlugIsUnique(t *testing.T) {
	env := newTestEnv(t)
	actor := env.adminActor(t)

	kitchen, err := env.categories.Create(actor, &CategoryRequest{Name: "Kitchen"})
	require.NoError(t, err)
	assert.Equal(t, "kitchen", kitchen.Slug)

	_, err = env.categories.Create(actor, &CategoryRequest{Name: "Kitchen Things", Slug: "kitchen"})
	assert.Equal(t, 409, appStatus(t, err))

	_, err = env.categories.Create(actor, &CategoryRequest{Name: "Pans", ParentID: pointer(uuid.New())})
	assert.Equal(t, 400, appStatus(t, err))

	_, err = env.categories.Update(actor, kitchen.ID, &CategoryRequest{Name: "Kitchen", ParentID: &kitchen.ID})
	assert.Equal(t, 400, appStatus(t, err))
}

func TestLowStockListing(t *testing.T) {
	env := newTestEnv(t)
	actor := env.adminActor(t)

	env.createProduct(t, "LOW", "10", 2, nil)
	env.createProduct(t, "PLENTY", "10", 50, nil)
	withVariant := env.createProduct(t, "SIZED", "10", 50, nil)
	env.createVariant(t, withVariant, "SIZED-XL", nil, 1)
	archived := env.createProduct(t, "GONE", "10", 0, nil)
	_, err := env.products.ArchiveProduct(actor, archived.ID)
	require.NoError(t, err)

	products, total, threshold, err := env.products.LowStock(utils.NormalizePagination(utils.PaginationParams{}))
	require.NoError(t, err)
	assert.Equal(t, 3, threshold)
	assert.Equal(t, int64(2), total)
	require.Len(t, products, 2)
	assert.Equal(t, "LOW", products[0].SKU)
	assert.Equal(t, "SIZED", products[1].SKU)

	count, err := env.products.CountLowStock()
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestStorefrontSearchOnlyShowsActiveProducts(t *testing.T) {
	env := newTestEnv(t)
	actor := env.adminActor(t)

	env.createProduct(t, "LIVE", "10", 5, nil)
	_, err := env.products.CreateProduct(actor, &ProductRequest{Name: "Hidden Draft", SKU: "DRAFT", Price: dec("10")})
	require.NoError(t, err)

	params := ProductSearchParams{PaginationParams: utils.NormalizePagination(utils.PaginationParams{}), Storefront: true}
	products, total, err := env.products.SearchProducts(params)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "LIVE", products[0].SKU)

	params.Storefront = false
	_, total, err = env.products.SearchProducts(params)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	params.Search = "hidden"
	_, total, err = env.products.SearchProducts(params)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

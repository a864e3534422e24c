package services

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/storefront-backend/internal/models"
	"github.com/javajoker/storefront-backend/internal/utils"
)

func codeDiscount(code string, typ models.DiscountType, value string) *DiscountRequest {
	return &DiscountRequest{Name: "Promo " + code, Code: pointer(code), Type: typ, Value: dec(value)}
}

func TestCreateDiscountStoresUpperCaseUniqueCode(t *testing.T) {
	env := newTestEnv(t)
	actor := env.adminActor(t)

	discount, err := env.discounts.Create(actor, codeDiscount(" spring10 ", models.DiscountTypePercentage, "10"))
	require.NoError(t, err)
	require.NotNil(t, discount.Code)
	assert.Equal(t, "SPRING10", *discount.Code)
	assert.Equal(t, models.DiscountScopeAll, discount.AppliesTo)
	assert.True(t, discount.IsActive)

	_, err = env.discounts.Create(actor, codeDiscount("Spring10", models.DiscountTypeFixedAmount, "5"))
	assert.Equal(t, 409, appStatus(t, err))

	// soft deleted codes stay reserved
	require.NoError(t, env.discounts.Delete(actor, discount.ID))
	_, err = env.discounts.Create(actor, codeDiscount("SPRING10", models.DiscountTypeFixedAmount, "5"))
	assert.Equal(t, 409, appStatus(t, err))
}

func TestCreateDiscountValidation(t *testing.T) {
	env := newTestEnv(t)
	actor := env.adminActor(t)
	now := time.Now()

	tests := []struct {
		name string
		req  *DiscountRequest
	}{
		{"percentage above 100", codeDiscount("BIG", models.DiscountTypePercentage, "150")},
		{"percentage zero", codeDiscount("ZERO", models.DiscountTypePercentage, "0")},
		{"fixed not positive", codeDiscount("NEG", models.DiscountTypeFixedAmount, "-1")},
		{"ends before starts", func() *DiscountRequest {
			r := codeDiscount("WINDOW", models.DiscountTypeFixedAmount, "5")
			r.StartsAt = pointer(now)
			r.EndsAt = pointer(now.Add(-time.Hour))
			return r
		}()},
		{"products scope without ids", func() *DiscountRequest {
			r := codeDiscount("PRODS", models.DiscountTypePercentage, "10")
			r.AppliesTo = models.DiscountScopeProducts
			return r
		}()},
		{"categories scope without ids", func() *DiscountRequest {
			r := codeDiscount("CATS", models.DiscountTypePercentage, "10")
			r.AppliesTo = models.DiscountScopeCategories
			return r
		}()},
		{"unknown product id", func() *DiscountRequest {
			r := codeDiscount("GHOST", models.DiscountTypePercentage, "10")
			r.AppliesTo = models.DiscountScopeProducts
			r.ProductIDs = []uuid.UUID{uuid.New()}
			return r
		}()},
		{"manual discount without code", &DiscountRequest{Name: "No code", Type: models.DiscountTypeFixedAmount, Value: dec("5")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.discounts.Create(actor, tt.req)
			assert.Equal(t, 400, appStatus(t, err))
		})
	}

	full, err := env.discounts.Create(actor, codeDiscount("FULL", models.DiscountTypePercentage, "100"))
	require.NoError(t, err)
	assert.True(t, full.Value.Equal(dec("100")))
}

func TestUpdateDiscount(t *testing.T) {
	env := newTestEnv(t)
	actor := env.adminActor(t)
	product := env.createProduct(t, "MUG", "12", 10, nil)

	discount, err := env.discounts.Create(actor, codeDiscount("MUGS", models.DiscountTypeFixedAmount, "3"))
	require.NoError(t, err)
	_, err = env.discounts.Create(actor, codeDiscount("TAKEN", models.DiscountTypeFixedAmount, "3"))
	require.NoError(t, err)

	req := codeDiscount("mugs", models.DiscountTypePercentage, "20")
	req.AppliesTo = models.DiscountScopeProducts
	req.ProductIDs = []uuid.UUID{product.ID}
	updated, err := env.discounts.Update(actor, discount.ID, req)
	require.NoError(t, err)
	assert.Equal(t, models.DiscountTypePercentage, updated.Type)
	require.Len(t, updated.Products, 1)
	assert.Equal(t, product.ID, updated.Products[0].ID)

	_, err = env.discounts.Update(actor, discount.ID, codeDiscount("taken", models.DiscountTypeFixedAmount, "3"))
	assert.Equal(t, 409, appStatus(t, err))

	require.NoError(t, env.db.Model(&models.Discount{}).Where("id = ?", discount.ID).Update("usage_count", 5).Error)
	limited := codeDiscount("MUGS", models.DiscountTypeFixedAmount, "3")
	limited.UsageLimit = pointer(3)
	_, err = env.discounts.Update(actor, discount.ID, limited)
	assert.Equal(t, 400, appStatus(t, err))

	_, err = env.discounts.Update(actor, uuid.New(), codeDiscount("OTHER", models.DiscountTypeFixedAmount, "3"))
	assert.Equal(t, 404, appStatus(t, err))

	var logs int64
	env.db.Model(&models.AuditLog{}).Where("action = ?", "discount.updated").Count(&logs)
	assert.Equal(t, int64(1), logs)
}

func TestListDiscountsFilters(t *testing.T) {
	env := newTestEnv(t)
	actor := env.adminActor(t)

	_, err := env.discounts.Create(actor, codeDiscount("CODE5", models.DiscountTypeFixedAmount, "5"))
	require.NoError(t, err)
	_, err = env.discounts.Create(actor, &DiscountRequest{Name: "Autumn sale", Type: models.DiscountTypePercentage, Value: dec("10"), IsAutomatic: true})
	require.NoError(t, err)
	inactive := codeDiscount("OFF", models.DiscountTypeFixedAmount, "5")
	inactive.IsActive = pointer(false)
	_, err = env.discounts.Create(actor, inactive)
	require.NoError(t, err)

	params := utils.NormalizePagination(utils.PaginationParams{})
	automatic, total, err := env.discounts.List(DiscountFilter{PaginationParams: params, IsAutomatic: pointer(true)})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "Autumn sale", automatic[0].Name)

	_, total, err = env.discounts.List(DiscountFilter{PaginationParams: params, IsActive: pointer(true)})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	params.Search = "code"
	found, total, err := env.discounts.List(DiscountFilter{PaginationParams: params})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "CODE5", *found[0].Code)
}

package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/storefront-backend/internal/models"
	"github.com/javajoker/storefront-backend/internal/utils"
)

func TestReviewModerationUpdatesRating(t *testing.T) {
	env := newTestEnv(t)
	actor := env.adminActor(t)
	product := env.createProduct(t, "BOOK", "12", 10, nil)
	buyer := env.createCustomer(t, "reader@example.com")
	browser := env.createCustomer(t, "browser@example.com")

	addToCart(t, env, userOwner(buyer), product, nil, 1)
	placeOrder(t, env, userOwner(buyer), "")

	first, err := env.reviews.Create(actor, buyer.ID, product.Slug, &CreateReviewRequest{Rating: 5, Title: "Great", Body: "Loved it"})
	require.NoError(t, err)
	assert.True(t, first.VerifiedPurchase)
	assert.Equal(t, models.ReviewStatusPending, first.Status)

	second, err := env.reviews.Create(actor, browser.ID, product.Slug, &CreateReviewRequest{Rating: 4})
	require.NoError(t, err)
	assert.False(t, second.VerifiedPurchase)

	_, err = env.reviews.Create(actor, buyer.ID, product.Slug, &CreateReviewRequest{Rating: 1})
	var appErr *utils.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 409, appErr.Status)

	public, total, err := env.reviews.ListProductReviews(product.Slug, utils.NormalizePagination(utils.PaginationParams{}))
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, public)

	_, err = env.reviews.Approve(actor, first.ID)
	require.NoError(t, err)
	_, err = env.reviews.Approve(actor, second.ID)
	require.NoError(t, err)

	var reloaded models.Product
	require.NoError(t, env.db.First(&reloaded, "id = ?", product.ID).Error)
	assert.Equal(t, "4.50", reloaded.Rating.StringFixed(2))
	assert.Equal(t, 2, reloaded.ReviewCount)

	public, total, err = env.reviews.ListProductReviews(product.Slug, utils.NormalizePagination(utils.PaginationParams{}))
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	for _, r := range public {
		assert.Equal(t, "Casey J.", r.Author)
	}

	_, err = env.reviews.Reject(actor, second.ID)
	require.NoError(t, err)
	require.NoError(t, env.db.First(&reloaded, "id = ?", product.ID).Error)
	assert.Equal(t, "5.00", reloaded.Rating.StringFixed(2))
	assert.Equal(t, 1, reloaded.ReviewCount)

	require.NoError(t, env.reviews.Delete(actor, first.ID))
	require.NoError(t, env.db.First(&reloaded, "id = ?", product.ID).Error)
	assert.True(t, reloaded.Rating.IsZero())
	assert.Zero(t, reloaded.ReviewCount)
}

func TestReviewValidation(t *testing.T) {
	env := newTestEnv(t)
	product := env.createProduct(t, "VASE", "30", 1, nil)
	user := env.createCustomer(t, "critic@example.com")

	_, err := env.reviews.Create(SystemActor, user.ID, product.Slug, &CreateReviewRequest{Rating: 6})
	var appErr *utils.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 400, appErr.Status)

	_, err = env.reviews.Create(SystemActor, user.ID, "missing", &CreateReviewRequest{Rating: 3})
	assert.True(t, utils.IsNotFound(err))
}

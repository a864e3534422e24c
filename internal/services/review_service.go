// internal/services/review_service.go
package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/javajoker/storefront-backend/internal/models"
	"github.com/javajoker/storefront-backend/internal/utils"
)

type ReviewService struct {
	db            *gorm.DB
	audit         *AuditService
	notifications *NotificationService
}

type CreateReviewRequest struct {
	Rating int    `json:"rating" validate:"required,min=1,max=5"`
	Title  string `json:"title" validate:"max=255"`
	Body   string `json:"body" validate:"max=5000"`
}

type ReviewFilter struct {
	utils.PaginationParams
	Status    *string    `json:"status,omitempty"`
	ProductID *uuid.UUID `json:"product_id,omitempty"`
	Rating    *int       `json:"rating,omitempty"`
}

// PublicReview is the storefront view of a review, without customer contact details.
type PublicReview struct {
	ID               uuid.UUID `json:"id"`
	Rating           int       `json:"rating"`
	Title            string    `json:"title"`
	Body             string    `json:"body"`
	Author           string    `json:"author"`
	VerifiedPurchase bool      `json:"verified_purchase"`
	CreatedAt        time.Time `json:"created_at"`
}

func NewReviewService(db *gorm.DB, audit *AuditService, notifications *NotificationService) *ReviewService {
	return &ReviewService{db: db, audit: audit, notifications: notifications}
}

func authorName(u *models.User) string {
	if u == nil {
		return "Customer"
	}
	if u.FirstName == "" {
		return "Customer"
	}
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + strings.ToUpper(string([]rune(u.LastName)[:1])) + "."
}

func (s *ReviewService) activeProductBySlug(slug string) (*models.Product, error) {
	var product models.Product
	if err := s.db.Where("slug = ? AND status = ?", slug, models.ProductStatusActive).First(&product).Error; err != nil {
		return nil, findOrNotFound(err, "Product")
	}
	return &product, nil
}

func (s *ReviewService) ListProductReviews(slug string, params utils.PaginationParams) ([]PublicReview, int64, error) {
	product, err := s.activeProductBySlug(slug)
	if err != nil {
		return nil, 0, err
	}

	query := s.db.Model(&models.Review{}).Where("product_id = ? AND status = ?", product.ID, models.ReviewStatusApproved)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count reviews: %w", err)
	}

	query = utils.ApplySort(query, params, []string{"created_at", "rating"})
	query = utils.ApplyPagination(query, params)

	var reviews []models.Review
	if err := query.Preload("User").Find(&reviews).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch reviews: %w", err)
	}

	out := make([]PublicReview, 0, len(reviews))
	for _, r := range reviews {
		out = append(out, PublicReview{
			ID:               r.ID,
			Rating:           r.Rating,
			Title:            r.Title,
			Body:             r.Body,
			Author:           authorName(r.User),
			VerifiedPurchase: r.VerifiedPurchase,
			CreatedAt:        r.CreatedAt,
		})
	}
	return out, total, nil
}

// Create stores a pending review. A user reviews a product once.
func (s *ReviewService) Create(actor Actor, userID uuid.UUID, slug string, req *CreateReviewRequest) (*models.Review, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	product, err := s.activeProductBySlug(slug)
	if err != nil {
		return nil, err
	}

	review := &models.Review{
		ProductID: product.ID,
		UserID:    userID,
		Rating:    req.Rating,
		Title:     strings.TrimSpace(req.Title),
		Body:      strings.TrimSpace(req.Body),
		Status:    models.ReviewStatusPending,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Unscoped().Model(&models.Review{}).
			Where("product_id = ? AND user_id = ?", product.ID, userID).
			Count(&existing).Error; err != nil {
			return fmt.Errorf("failed to check existing review: %w", err)
		}
		if existing > 0 {
			return utils.NewConflictError("you have already reviewed this product")
		}

		var purchases int64
		if err := tx.Model(&models.OrderItem{}).
			Joins("JOIN orders ON orders.id = order_items.order_id AND orders.deleted_at IS NULL").
			Where("orders.user_id = ? AND order_items.product_id = ? AND orders.status <> ?",
				userID, product.ID, models.OrderStatusCancelled).
			Count(&purchases).Error; err != nil {
			return fmt.Errorf("failed to check purchase history: %w", err)
		}
		review.VerifiedPurchase = purchases > 0

		if err := tx.Create(review).Error; err != nil {
			if isUniqueViolation(err) {
				return utils.NewConflictError("you have already reviewed this product")
			}
			return fmt.Errorf("failed to create review: %w", err)
		}

		if err := s.notifications.NotifyStaff(tx, NotificationReviewSubmitted,
			"New review for "+product.Name, fmt.Sprintf("%d star review awaiting moderation", req.Rating),
			"review", &review.ID); err != nil {
			return err
		}
		return s.audit.RecordTx(tx, actor, AuditEntry{
			Action:       "review.created",
			ResourceType: "review",
			ResourceID:   &review.ID,
			NewValues:    map[string]interface{}{"product_id": product.ID, "rating": req.Rating},
		})
	})
	if err != nil {
		return nil, err
	}
	return review, nil
}

func (s *ReviewService) List(filter ReviewFilter) ([]models.Review, int64, error) {
	query := s.db.Model(&models.Review{})

	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.ProductID != nil {
		query = query.Where("product_id = ?", *filter.ProductID)
	}
	if filter.Rating != nil {
		query = query.Where("rating = ?", *filter.Rating)
	}
	if filter.Search != "" {
		pattern := likePattern(filter.Search)
		query = query.Where("LOWER(title) LIKE ? OR LOWER(body) LIKE ?", pattern, pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count reviews: %w", err)
	}

	query = utils.ApplySort(query, filter.PaginationParams, []string{"created_at", "rating", "status"})
	query = utils.ApplyPagination(query, filter.PaginationParams)

	var reviews []models.Review
	if err := query.Preload("Product").Preload("User").Find(&reviews).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch reviews: %w", err)
	}
	return reviews, total, nil
}

func (s *ReviewService) Get(id uuid.UUID) (*models.Review, error) {
	var review models.Review
	if err := s.db.Preload("Product").Preload("User").First(&review, "id = ?", id).Error; err != nil {
		return nil, findOrNotFound(err, "Review")
	}
	return &review, nil
}

func (s *ReviewService) Approve(actor Actor, id uuid.UUID) (*models.Review, error) {
	return s.moderate(actor, id, models.ReviewStatusApproved)
}

func (s *ReviewService) Reject(actor Actor, id uuid.UUID) (*models.Review, error) {
	return s.moderate(actor, id, models.ReviewStatusRejected)
}

func (s *ReviewService) moderate(actor Actor, id uuid.UUID, status models.ReviewStatus) (*models.Review, error) {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var review models.Review
		if err := tx.First(&review, "id = ?", id).Error; err != nil {
			return findOrNotFound(err, "Review")
		}
		old := review.Status
		if err := tx.Model(&review).Update("status", status).Error; err != nil {
			return fmt.Errorf("failed to update review: %w", err)
		}
		if err := RecomputeProductRating(tx, review.ProductID); err != nil {
			return err
		}
		return s.audit.RecordTx(tx, actor, AuditEntry{
			Action:       "review." + string(status),
			ResourceType: "review",
			ResourceID:   &review.ID,
			OldValues:    map[string]interface{}{"status": old},
			NewValues:    map[string]interface{}{"status": status},
		})
	})
	if err != nil {
		return nil, err
	}
	return s.Get(id)
}

func (s *ReviewService) Delete(actor Actor, id uuid.UUID) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var review models.Review
		if err := tx.First(&review, "id = ?", id).Error; err != nil {
			return findOrNotFound(err, "Review")
		}
		if err := tx.Delete(&review).Error; err != nil {
			return fmt.Errorf("failed to delete review: %w", err)
		}
		if err := RecomputeProductRating(tx, review.ProductID); err != nil {
			return err
		}
		return s.audit.RecordTx(tx, actor, AuditEntry{
			Action:       "review.deleted",
			ResourceType: "review",
			ResourceID:   &review.ID,
			OldValues:    review,
		})
	})
}

// RecomputeProductRating stores the average approved rating and the count
// of approved reviews on the product.
func RecomputeProductRating(tx *gorm.DB, productID uuid.UUID) error {
	var agg struct {
		Average decimal.Decimal
		Count   int64
	}
	if err := tx.Model(&models.Review{}).
		Select("COALESCE(AVG(rating), 0) AS average, COUNT(*) AS count").
		Where("product_id = ? AND status = ?", productID, models.ReviewStatusApproved).
		Scan(&agg).Error; err != nil {
		return fmt.Errorf("failed to aggregate ratings: %w", err)
	}
	if err := tx.Model(&models.Product{}).Where("id = ?", productID).Updates(map[string]interface{}{
		"rating":       agg.Average.Round(2),
		"review_count": agg.Count,
	}).Error; err != nil {
		return fmt.Errorf("failed to update product rating: %w", err)
	}
	return nil
}

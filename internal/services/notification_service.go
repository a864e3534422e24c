// internal/services/notification_service.go
package services

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/javajoker/storefront-backend/internal/models"
	"github.com/javajoker/storefront-backend/internal/utils"
)

// Notification types.
const (
	NotificationOrderPlaced     = "order.placed"
	NotificationOrderCancelled  = "order.cancelled"
	NotificationOrderUpdated    = "order.updated"
	NotificationOrderShipped    = "order.shipped"
	NotificationReturnRequested = "return.requested"
	NotificationReturnUpdated   = "return.updated"
	NotificationRefundIssued    = "refund.issued"
	NotificationRefundReview    = "refund.needs_review"
	NotificationBackupFailed    = "backup.failed"
	NotificationReviewSubmitted = "review.submitted"
)

type NotificationService struct {
	db *gorm.DB
}

type NotificationFilter struct {
	utils.PaginationParams
	UnreadOnly bool `json:"unread_only"`
}

func NewNotificationService(db *gorm.DB) *NotificationService {
	return &NotificationService{db: db}
}

// NotifyStaff creates a notification visible to every staff user.
func (s *NotificationService) NotifyStaff(tx *gorm.DB, kind, title, message, resourceType string, resourceID *uuid.UUID) error {
	return s.create(tx, nil, kind, title, message, resourceType, resourceID)
}

func (s *NotificationService) NotifyUser(tx *gorm.DB, userID uuid.UUID, kind, title, message, resourceType string, resourceID *uuid.UUID) error {
	return s.create(tx, &userID, kind, title, message, resourceType, resourceID)
}

func (s *NotificationService) create(tx *gorm.DB, userID *uuid.UUID, kind, title, message, resourceType string, resourceID *uuid.UUID) error {
	if tx == nil {
		tx = s.db
	}
	n := &models.Notification{
		UserID:       userID,
		Type:         kind,
		Title:        title,
		Message:      message,
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
	if err := tx.Create(n).Error; err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

// visibleTo selects broadcasts plus notifications addressed to viewer.
func visibleTo(db *gorm.DB, viewer uuid.UUID) *gorm.DB {
	return db.Where("user_id IS NULL OR user_id = ?", viewer)
}

func (s *NotificationService) List(viewer uuid.UUID, filter NotificationFilter) ([]models.Notification, int64, error) {
	query := visibleTo(s.db.Model(&models.Notification{}), viewer)
	if filter.UnreadOnly {
		query = query.Where("read_at IS NULL")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count notifications: %w", err)
	}

	query = utils.ApplySort(query, filter.PaginationParams, []string{"created_at"})
	query = utils.ApplyPagination(query, filter.PaginationParams)

	var notifications []models.Notification
	if err := query.Find(&notifications).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch notifications: %w", err)
	}
	return notifications, total, nil
}

func (s *NotificationService) UnreadCount(viewer uuid.UUID) (int64, error) {
	var count int64
	err := visibleTo(s.db.Model(&models.Notification{}), viewer).Where("read_at IS NULL").Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return count, nil
}

func (s *NotificationService) MarkRead(viewer, id uuid.UUID) (*models.Notification, error) {
	var n models.Notification
	if err := visibleTo(s.db, viewer).First(&n, "id = ?", id).Error; err != nil {
		return nil, findOrNotFound(err, "Notification")
	}
	if n.ReadAt == nil {
		now := time.Now()
		if err := s.db.Model(&n).Update("read_at", now).Error; err != nil {
			return nil, fmt.Errorf("failed to mark notification read: %w", err)
		}
		n.ReadAt = &now
	}
	return &n, nil
}

func (s *NotificationService) MarkAllRead(viewer uuid.UUID) (int64, error) {
	result := visibleTo(s.db.Model(&models.Notification{}), viewer).
		Where("read_at IS NULL").
		Update("read_at", time.Now())
	if result.Error != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", result.Error)
	}
	return result.RowsAffected, nil
}

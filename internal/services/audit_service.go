// internal/services/audit_service.go
package services

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/storefront-backend/internal/models"
	"github.com/javajoker/storefront-backend/internal/utils"
)

type AuditService struct {
	db *gorm.DB
}

type AuditEntry struct {
	Action       string
	ResourceType string
	ResourceID   *uuid.UUID
	OldValues    interface{}
	NewValues    interface{}
}

type AuditLogFilter struct {
	utils.PaginationParams
	UserID       *uuid.UUID `json:"user_id,omitempty"`
	Action       string     `json:"action,omitempty"`
	ResourceType string     `json:"resource_type,omitempty"`
	ResourceID   *uuid.UUID `json:"resource_id,omitempty"`
	From         *time.Time `json:"from,omitempty"`
	To           *time.Time `json:"to,omitempty"`
}

func NewAuditService(db *gorm.DB) *AuditService {
	return &AuditService{db: db}
}

// Record writes an audit row outside any transaction. Failures are logged,
// not returned, so a completed mutation is never reported as failed.
func (s *AuditService) Record(actor Actor, entry AuditEntry) {
	if err := s.RecordTx(s.db, actor, entry); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"action":   entry.Action,
			"resource": entry.ResourceType,
		}).Error("Failed to record audit log")
	}
}

// RecordTx writes an audit row inside tx so it commits with the change.
func (s *AuditService) RecordTx(tx *gorm.DB, actor Actor, entry AuditEntry) error {
	log := &models.AuditLog{
		UserID:       actor.UserID,
		Action:       entry.Action,
		ResourceType: entry.ResourceType,
		ResourceID:   entry.ResourceID,
		OldValues:    toJSONB(entry.OldValues),
		NewValues:    toJSONB(entry.NewValues),
		IPAddress:    actor.IPAddress,
		UserAgent:    actor.UserAgent,
	}
	if err := tx.Create(log).Error; err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	return nil
}

func (s *AuditService) List(filter AuditLogFilter) ([]models.AuditLog, int64, error) {
	query := s.db.Model(&models.AuditLog{})

	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.Action != "" {
		query = query.Where("action = ?", filter.Action)
	}
	if filter.ResourceType != "" {
		query = query.Where("resource_type = ?", filter.ResourceType)
	}
	if filter.ResourceID != nil {
		query = query.Where("resource_id = ?", *filter.ResourceID)
	}
	if filter.From != nil {
		query = query.Where("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("created_at <= ?", *filter.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count audit logs: %w", err)
	}

	query = utils.ApplySort(query, filter.PaginationParams, []string{"created_at", "action", "resource_type"})
	query = utils.ApplyPagination(query, filter.PaginationParams)

	var logs []models.AuditLog
	if err := query.Preload("User").Find(&logs).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch audit logs: %w", err)
	}

	return logs, total, nil
}

func (s *AuditService) Get(id uuid.UUID) (*models.AuditLog, error) {
	var log models.AuditLog
	if err := s.db.Preload("User").First(&log, "id = ?", id).Error; err != nil {
		return nil, findOrNotFound(err, "Audit log")
	}
	return &log, nil
}

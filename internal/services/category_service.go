// internal/services/category_service.go
package services

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/javajoker/storefront-backend/internal/models"
	"github.com/javajoker/storefront-backend/internal/utils"
)

type CategoryService struct {
	db    *gorm.DB
	audit *AuditService
}

type CategoryRequest struct {
	Name        string     `json:"name" validate:"required,max=255"`
	Slug        string     `json:"slug" validate:"omitempty,slug"`
	Description string     `json:"description"`
	ParentID    *uuid.UUID `json:"parent_id"`
	IsActive    *bool      `json:"is_active"`
}

type CategoryFilter struct {
	utils.PaginationParams
	ParentID   *uuid.UUID `json:"parent_id,omitempty"`
	IsActive   *bool      `json:"is_active,omitempty"`
	ActiveOnly bool       `json:"-"`
}

func NewCategoryService(db *gorm.DB, audit *AuditService) *CategoryService {
	return &CategoryService{db: db, audit: audit}
}

func (s *CategoryService) List(filter CategoryFilter) ([]models.Category, int64, error) {
	query := s.db.Model(&models.Category{})

	if filter.ActiveOnly {
		query = query.Where("is_active = ?", true)
	} else if filter.IsActive != nil {
		query = query.Where("is_active = ?", *filter.IsActive)
	}
	if filter.ParentID != nil {
		query = query.Where("parent_id = ?", *filter.ParentID)
	}
	if filter.Search != "" {
		query = query.Where("LOWER(name) LIKE ?", likePattern(filter.Search))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count categories: %w", err)
	}

	query = utils.ApplySort(query, filter.PaginationParams, []string{"created_at", "name", "slug"})
	query = utils.ApplyPagination(query, filter.PaginationParams)

	var categories []models.Category
	if err := query.Find(&categories).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch categories: %w", err)
	}
	return categories, total, nil
}

func (s *CategoryService) Get(id uuid.UUID) (*models.Category, error) {
	var category models.Category
	if err := s.db.Preload("Parent").First(&category, "id = ?", id).Error; err != nil {
		return nil, findOrNotFound(err, "Category")
	}
	return &category, nil
}

// GetBySlug returns an active category for the storefront.
func (s *CategoryService) GetBySlug(slug string) (*models.Category, error) {
	var category models.Category
	if err := s.db.Preload("Parent").Where("slug = ? AND is_active = ?", slug, true).First(&category).Error; err != nil {
		return nil, findOrNotFound(err, "Category")
	}
	return &category, nil
}

func (s *CategoryService) prepare(tx *gorm.DB, req *CategoryRequest, exclude *uuid.UUID) error {
	if err := validate(req); err != nil {
		return err
	}
	if req.Slug == "" {
		req.Slug = utils.Slugify(req.Name)
	}

	var count int64
	query := tx.Unscoped().Model(&models.Category{}).Where("slug = ?", req.Slug)
	if exclude != nil {
		query = query.Where("id <> ?", *exclude)
	}
	if err := query.Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check category slug: %w", err)
	}
	if count > 0 {
		return utils.NewConflictError("category slug already exists")
	}

	if req.ParentID != nil {
		if exclude != nil && *req.ParentID == *exclude {
			return utils.NewValidationError("a category cannot be its own parent", nil)
		}
		var parent models.Category
		if err := tx.First(&parent, "id = ?", *req.ParentID).Error; err != nil {
			if utils.IsNotFound(findOrNotFound(err, "Category")) {
				return utils.NewValidationError("parent category does not exist", nil)
			}
			return err
		}
	}
	return nil
}

func (s *CategoryService) Create(actor Actor, req *CategoryRequest) (*models.Category, error) {
	category := &models.Category{IsActive: true}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.prepare(tx, req, nil); err != nil {
			return err
		}
		category.Name = req.Name
		category.Slug = req.Slug
		category.Description = req.Description
		category.ParentID = req.ParentID
		if req.IsActive != nil {
			category.IsActive = *req.IsActive
		}
		if err := tx.Create(category).Error; err != nil {
			if isUniqueViolation(err) {
				return utils.NewConflictError("category slug already exists")
			}
			return fmt.Errorf("failed to create category: %w", err)
		}
		return s.audit.RecordTx(tx, actor, AuditEntry{
			Action:       "category.created",
			ResourceType: "category",
			ResourceID:   &category.ID,
			NewValues:    category,
		})
	})
	if err != nil {
		return nil, err
	}
	return category, nil
}

func (s *CategoryService) Update(actor Actor, id uuid.UUID, req *CategoryRequest) (*models.Category, error) {
	var category models.Category
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&category, "id = ?", id).Error; err != nil {
			return findOrNotFound(err, "Category")
		}
		old := category

		if err := s.prepare(tx, req, &id); err != nil {
			return err
		}
		category.Name = req.Name
		category.Slug = req.Slug
		category.Description = req.Description
		category.ParentID = req.ParentID
		if req.IsActive != nil {
			category.IsActive = *req.IsActive
		}
		if err := tx.Omit("Parent").Save(&category).Error; err != nil {
			return fmt.Errorf("failed to update category: %w", err)
		}
		return s.audit.RecordTx(tx, actor, AuditEntry{
			Action:       "category.updated",
			ResourceType: "category",
			ResourceID:   &category.ID,
			OldValues:    old,
			NewValues:    category,
		})
	})
	if err != nil {
		return nil, err
	}
	return &category, nil
}

// Delete soft deletes a category. Products and child categories are detached.
func (s *CategoryService) Delete(actor Actor, id uuid.UUID) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var category models.Category
		if err := tx.First(&category, "id = ?", id).Error; err != nil {
			return findOrNotFound(err, "Category")
		}
		if err := tx.Model(&models.Product{}).Where("category_id = ?", id).Update("category_id", nil).Error; err != nil {
			return fmt.Errorf("failed to detach products: %w", err)
		}
		if err := tx.Model(&models.Category{}).Where("parent_id = ?", id).Update("parent_id", nil).Error; err != nil {
			return fmt.Errorf("failed to detach child categories: %w", err)
		}
		if err := tx.Delete(&category).Error; err != nil {
			return fmt.Errorf("failed to delete category: %w", err)
		}
		return s.audit.RecordTx(tx, actor, AuditEntry{
			Action:       "category.deleted",
			ResourceType: "category",
			ResourceID:   &category.ID,
			OldValues:    category,
		})
	})
}

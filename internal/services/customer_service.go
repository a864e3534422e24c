// internal/services/customer_service.go
package services

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/javajoker/storefront-backend/internal/models"
	"github.com/javajoker/storefront-backend/internal/utils"
)

type CustomerService struct {
	db  *gorm.DB
	now func() time.Time
}

type CustomerFilter struct {
	utils.PaginationParams
	Status *string `json:"status,omitempty"`
}

// CustomerSummary is a customer with aggregates over non-cancelled orders.
type CustomerSummary struct {
	*models.User
	OrderCount  int64           `json:"order_count"`
	TotalSpent  decimal.Decimal `json:"total_spent"`
	LastOrderAt *time.Time      `json:"last_order_at"`
}

type CustomerDetail struct {
	CustomerSummary
	RecentOrders []models.Order `json:"recent_orders"`
}

type CustomerMetrics struct {
	TotalCustomers       int64           `json:"total_customers"`
	NewThisMonth         int64           `json:"new_this_month"`
	ReturningCustomers   int64           `json:"returning_customers"`
	AverageLifetimeValue decimal.Decimal `json:"average_lifetime_value"`
}

func NewCustomerService(db *gorm.DB) *CustomerService {
	return &CustomerService{db: db, now: time.Now}
}

func (s *CustomerService) customers() *gorm.DB {
	return s.db.Model(&models.User{}).Where("user_type = ?", models.UserTypeCustomer)
}

type customerOrderRow struct {
	UserID   uuid.UUID
	Total    decimal.Decimal
	PlacedAt time.Time
}

// summarize aggregates orders per user in Go so the query stays portable.
func (s *CustomerService) summarize(users []models.User) ([]CustomerSummary, error) {
	out := make([]CustomerSummary, len(users))
	if len(users) == 0 {
		return out, nil
	}

	ids := make([]uuid.UUID, len(users))
	index := make(map[uuid.UUID]int, len(users))
	for i := range users {
		ids[i] = users[i].ID
		index[users[i].ID] = i
		out[i] = CustomerSummary{User: &users[i], TotalSpent: decimal.Zero}
	}

	var rows []customerOrderRow
	if err := s.db.Model(&models.Order{}).Select("user_id, total, placed_at").
		Where("user_id IN ? AND status <> ?", ids, models.OrderStatusCancelled).
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load customer orders: %w", err)
	}
	for _, row := range rows {
		i, ok := index[row.UserID]
		if !ok {
			continue
		}
		sum := &out[i]
		sum.OrderCount++
		sum.TotalSpent = sum.TotalSpent.Add(row.Total)
		if sum.LastOrderAt == nil || row.PlacedAt.After(*sum.LastOrderAt) {
			placed := row.PlacedAt
			sum.LastOrderAt = &placed
		}
	}
	for i := range out {
		out[i].TotalSpent = utils.RoundMoney(out[i].TotalSpent)
	}
	return out, nil
}

func (s *CustomerService) List(filter CustomerFilter) ([]CustomerSummary, int64, error) {
	query := s.customers()
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.Search != "" {
		pattern := likePattern(filter.Search)
		query = query.Where("LOWER(email) LIKE ? OR LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ?", pattern, pattern, pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count customers: %w", err)
	}

	query = utils.ApplySort(query, filter.PaginationParams, []string{"created_at", "email", "last_login_at"})
	query = utils.ApplyPagination(query, filter.PaginationParams)

	var users []models.User
	if err := query.Find(&users).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch customers: %w", err)
	}

	summaries, err := s.summarize(users)
	if err != nil {
		return nil, 0, err
	}
	return summaries, total, nil
}

func (s *CustomerService) Get(id uuid.UUID) (*CustomerDetail, error) {
	var user models.User
	if err := s.customers().First(&user, "id = ?", id).Error; err != nil {
		return nil, findOrNotFound(err, "Customer")
	}

	summaries, err := s.summarize([]models.User{user})
	if err != nil {
		return nil, err
	}

	detail := &CustomerDetail{CustomerSummary: summaries[0]}
	if err := s.db.Where("user_id = ?", id).Order("placed_at desc").Limit(10).
		Find(&detail.RecentOrders).Error; err != nil {
		return nil, fmt.Errorf("failed to load recent orders: %w", err)
	}
	return detail, nil
}

func (s *CustomerService) Metrics() (*CustomerMetrics, error) {
	m := &CustomerMetrics{AverageLifetimeValue: decimal.Zero}

	if err := s.customers().Count(&m.TotalCustomers).Error; err != nil {
		return nil, fmt.Errorf("failed to count customers: %w", err)
	}

	now := s.now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	if err := s.customers().Where("created_at >= ?", monthStart).Count(&m.NewThisMonth).Error; err != nil {
		return nil, fmt.Errorf("failed to count new customers: %w", err)
	}

	repeat := s.db.Model(&models.Order{}).Select("user_id").
		Where("user_id IS NOT NULL AND status <> ?", models.OrderStatusCancelled).
		Group("user_id").Having("COUNT(*) >= ?", 2)
	if err := s.db.Table("(?) AS repeat_customers", repeat).Count(&m.ReturningCustomers).Error; err != nil {
		return nil, fmt.Errorf("failed to count returning customers: %w", err)
	}

	var spent decimal.Decimal
	if err := s.db.Model(&models.Order{}).Select("COALESCE(SUM(total), 0)").
		Where("user_id IS NOT NULL AND status <> ?", models.OrderStatusCancelled).
		Scan(&spent).Error; err != nil {
		return nil, fmt.Errorf("failed to sum customer spend: %w", err)
	}
	if m.TotalCustomers > 0 {
		m.AverageLifetimeValue = utils.RoundMoney(spent.Div(decimal.NewFromInt(m.TotalCustomers)))
	}
	return m, nil
}

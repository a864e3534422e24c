// internal/services/dashboard_service.go
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

type DashboardService struct {
	db            *gorm.DB
	products      *ProductService
	notifications *NotificationService
	now           func() time.Time
}

// PeriodStats covers one calendar month.
type PeriodStats struct {
	Revenue           decimal.Decimal `json:"revenue"`
	Orders            int64           `json:"orders"`
	NewCustomers      int64           `json:"new_customers"`
	AverageOrderValue decimal.Decimal `json:"average_order_value"`
}

type DashboardStats struct {
	CurrentMonth        PeriodStats `json:"current_month"`
	PreviousMonth       PeriodStats `json:"previous_month"`
	RevenueGrowth       float64     `json:"revenue_growth"`
	OrderGrowth         float64     `json:"order_growth"`
	CustomerGrowth      float64     `json:"customer_growth"`
	TotalCustomers      int64       `json:"total_customers"`
	PendingOrders       int64       `json:"pending_orders"`
	PendingReturns      int64       `json:"pending_returns"`
	PendingReviews      int64       `json:"pending_reviews"`
	UnreadNotifications int64       `json:"unread_notifications"`
	LowStockProducts    int64       `json:"low_stock_products"`
}

func NewDashboardService(db *gorm.DB, products *ProductService, notifications *NotificationService) *DashboardService {
	return &DashboardService{
		db:            db,
		products:      products,
		notifications: notifications,
		now:           time.Now,
	}
}

// Stats compares the current month so far with the whole previous month.
// viewer scopes the unread notification count.
func (s *DashboardService) Stats(viewer uuid.UUID) (*DashboardStats, error) {
	now := s.now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	lastMonthStart := monthStart.AddDate(0, -1, 0)

	stats := &DashboardStats{}
	var err error
	if stats.CurrentMonth, err = s.period(monthStart, now.Add(time.Second)); err != nil {
		return nil, err
	}
	if stats.PreviousMonth, err = s.period(lastMonthStart, monthStart); err != nil {
		return nil, err
	}

	stats.RevenueGrowth = growth(stats.CurrentMonth.Revenue, stats.PreviousMonth.Revenue)
	stats.OrderGrowth = growth(decimal.NewFromInt(stats.CurrentMonth.Orders), decimal.NewFromInt(stats.PreviousMonth.Orders))
	stats.CustomerGrowth = growth(decimal.NewFromInt(stats.CurrentMonth.NewCustomers), decimal.NewFromInt(stats.PreviousMonth.NewCustomers))

	if err := s.db.Model(&models.User{}).Where("user_type = ?", models.UserTypeCustomer).
		Count(&stats.TotalCustomers).Error; err != nil {
		return nil, fmt.Errorf("failed to count customers: %w", err)
	}
	if err := s.db.Model(&models.Order{}).Where("status = ?", models.OrderStatusPending).
		Count(&stats.PendingOrders).Error; err != nil {
		return nil, fmt.Errorf("failed to count pending orders: %w", err)
	}
	if err := s.db.Model(&models.ReturnRequest{}).
		Where("status IN ?", []models.ReturnStatus{models.ReturnStatusRequested, models.ReturnStatusApproved}).
		Count(&stats.PendingReturns).Error; err != nil {
		return nil, fmt.Errorf("failed to count pending returns: %w", err)
	}
	if err := s.db.Model(&models.Review{}).Where("status = ?", models.ReviewStatusPending).
		Count(&stats.PendingReviews).Error; err != nil {
		return nil, fmt.Errorf("failed to count pending reviews: %w", err)
	}
	if stats.UnreadNotifications, err = s.notifications.UnreadCount(viewer); err != nil {
		return nil, err
	}
	if stats.LowStockProducts, err = s.products.CountLowStock(); err != nil {
		return nil, err
	}

	return stats, nil
}

func (s *DashboardService) period(from, to time.Time) (PeriodStats, error) {
	p := PeriodStats{Revenue: decimal.Zero, AverageOrderValue: decimal.Zero}

	var revenue struct {
		Count int64
		Sum   decimal.Decimal
	}
	if err := s.db.Model(&models.Order{}).
		Select("COUNT(*) AS count, COALESCE(SUM(total - refunded_total), 0) AS sum").
		Where("status IN ? AND placed_at >= ? AND placed_at < ?", revenueStatuses, from, to).
		Scan(&revenue).Error; err != nil {
		return p, fmt.Errorf("failed to sum revenue: %w", err)
	}
	p.Orders = revenue.Count
	p.Revenue = utils.RoundMoney(revenue.Sum)
	if p.Orders > 0 {
		p.AverageOrderValue = utils.RoundMoney(revenue.Sum.Div(decimal.NewFromInt(p.Orders)))
	}

	if err := s.db.Model(&models.User{}).
		Where("user_type = ? AND created_at >= ? AND created_at < ?", models.UserTypeCustomer, from, to).
		Count(&p.NewCustomers).Error; err != nil {
		return p, fmt.Errorf("failed to count new customers: %w", err)
	}
	return p, nil
}

// growth is the percentage change from previous to current, rounded to one
// decimal. A zero previous value yields 100 when current is positive.
func growth(current, previous decimal.Decimal) float64 {
	if previous.IsZero() {
		if current.IsPositive() {
			return 100
		}
		return 0
	}
	pct := current.Sub(previous).Div(previous).Mul(decimal.NewFromInt(100)).Round(1)
	f, _ := pct.Float64()
	return f
}

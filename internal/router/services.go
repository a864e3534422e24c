// internal/router/services.go
package router

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/storefront-backend/internal/cache"
	"github.com/javajoker/storefront-backend/internal/config"
	"github.com/javajoker/storefront-backend/internal/services"
)

// Services is the wired service graph shared by the HTTP server and the
// backup command.
type Services struct {
	Audit         *services.AuditService
	Settings      *services.SettingsService
	Notifications *services.NotificationService
	Storage       *services.StorageService
	Payments      *services.PaymentService
	Mailer        *services.Mailer
	Idempotency   cache.IdempotencyStore

	Authorization *services.AuthorizationService
	Auth          *services.AuthService
	Users         *services.UserService
	Customers     *services.CustomerService

	Categories *services.CategoryService
	Products   *services.ProductService
	Discounts  *services.DiscountService
	Carts      *services.CartService
	Checkout   *services.CheckoutService
	Orders     *services.OrderService
	Shipments  *services.ShipmentService
	Returns    *services.ReturnService
	Refunds    *services.RefundService
	Reviews    *services.ReviewService

	Dashboard *services.DashboardService
	Backups   *services.BackupService
}

func NewServices(db *gorm.DB, cfg *config.Config) (*Services, error) {
	storage, err := services.NewStorageService(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	s := &Services{
		Storage:     storage,
		Payments:    services.NewPaymentService(cfg),
		Mailer:      services.NewMailer(cfg, nil),
		Idempotency: cache.NewIdempotencyStore(cfg.Redis),
	}
	if !s.Payments.Enabled() {
		logrus.Warn("Stripe is not configured, card payments are disabled")
	}

	s.Audit = services.NewAuditService(db)
	s.Settings = services.NewSettingsService(db, cfg, s.Audit)
	s.Notifications = services.NewNotificationService(db)

	s.Authorization = services.NewAuthorizationService(db, s.Audit)
	s.Users = services.NewUserService(db, s.Audit, s.Authorization)
	s.Customers = services.NewCustomerService(db)

	s.Categories = services.NewCategoryService(db, s.Audit)
	s.Products = services.NewProductService(db, s.Audit, s.Settings)
	s.Discounts = services.NewDiscountService(db, s.Audit)
	s.Carts = services.NewCartService(db, s.Settings, s.Discounts)
	s.Auth = services.NewAuthService(db, cfg, s.Carts, s.Authorization, s.Mailer)

	s.Checkout = services.NewCheckoutService(db, s.Carts, s.Discounts, s.Settings, s.Notifications,
		s.Audit, s.Payments, s.Mailer, s.Idempotency)
	s.Orders = services.NewOrderService(db, s.Audit, s.Notifications, s.Mailer)
	s.Shipments = services.NewShipmentService(db, s.Audit, s.Notifications, s.Mailer)
	s.Returns = services.NewReturnService(db, s.Audit, s.Notifications, s.Mailer)
	s.Refunds = services.NewRefundService(db, s.Audit, s.Notifications, s.Payments, s.Returns, s.Mailer)
	s.Reviews = services.NewReviewService(db, s.Audit, s.Notifications)

	s.Dashboard = services.NewDashboardService(db, s.Products, s.Notifications)

	s.Backups = services.NewBackupService(db, cfg, storage, s.Settings, s.Audit, s.Notifications)

	return s, nil
}

// Close waits for queued emails and releases the idempotency store.
func (s *Services) Close() {
	s.Mailer.Wait()
	if err := s.Idempotency.Close(); err != nil {
		logrus.WithError(err).Warn("Failed to close idempotency store")
	}
}

package services

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/javajoker/storefront-backend/internal/cache"
	"github.com/javajoker/storefront-backend/internal/config"
	"github.com/javajoker/storefront-backend/internal/database"
	"github.com/javajoker/storefront-backend/internal/models"
)

// fakeGateway records payment calls and answers with canned results.
type fakeGateway struct {
	mu           sync.Mutex
	intents      map[string]*PaymentIntent
	refunds      []int64
	createErr    error
	refundErr    error
	intentStatus string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{intents: map[string]*PaymentIntent{}, intentStatus: IntentStatusSucceeded}
}

func (g *fakeGateway) CreateIntent(amountCents int64, currency string, metadata map[string]string, idempotencyKey string) (*PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	intent := &PaymentIntent{
		ID:           "pi_" + idempotencyKey,
		ClientSecret: "secret_" + idempotencyKey,
		Status:       IntentStatusRequiresPaymentMethod,
	}
	g.intents[intent.ID] = intent
	return intent, nil
}

func (g *fakeGateway) GetIntent(id string) (*PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	intent, ok := g.intents[id]
	if !ok {
		return nil, fmt.Errorf("no such payment intent: %s", id)
	}
	return &PaymentIntent{ID: intent.ID, Status: g.intentStatus}, nil
}

func (g *fakeGateway) Refund(intentID string, amountCents int64, reason string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.refundErr != nil {
		return "", g.refundErr
	}
	g.refunds = append(g.refunds, amountCents)
	return fmt.Sprintf("re_%d", len(g.refunds)), nil
}

type sentEmail struct {
	To      string
	Subject string
}

type recordingSender struct {
	mu   sync.Mutex
	sent []sentEmail
}

func (r *recordingSender) Send(to, subject, htmlBody string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentEmail{To: to, Subject: subject})
	return nil
}

func (r *recordingSender) SentTo(to string) []sentEmail {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []sentEmail
	for _, e := range r.sent {
		if e.To == to {
			out = append(out, e)
		}
	}
	return out
}

type testEnv struct {
	db      *gorm.DB
	cfg     *config.Config
	gateway *fakeGateway
	sender  *recordingSender
	clock   time.Time

	audit         *AuditService
	settings      *SettingsService
	notifications *NotificationService
	discounts     *DiscountService
	categories    *CategoryService
	products      *ProductService
	carts         *CartService
	payments      *PaymentService
	mailer        *Mailer
	checkout      *CheckoutService
	orders        *OrderService
	shipments     *ShipmentService
	returns       *ReturnService
	refunds       *RefundService
	reviews       *ReviewService
	customers     *CustomerService
	authz         *AuthorizationService
	users         *UserService
	auth          *AuthService
	dashboard     *DashboardService
}

func testConfig(dir string) *config.Config {
	return &config.Config{
		Environment: "test",
		JWT:         config.JWTConfig{SecretKey: "test-secret", AccessTokenTTL: 1, RefreshTokenTTL: 24},
		Store: config.StoreConfig{
			Name:                  "Test Shop",
			Currency:              "USD",
			TaxRate:               10,
			FlatShippingRate:      5,
			FreeShippingThreshold: 100,
			LowStockThreshold:     3,
		},
		Backup:   config.BackupConfig{Directory: filepath.Join(dir, "backups"), Retention: 2, PgDumpPath: "pg_dump"},
		AWS:      config.AWSConfig{LocalUploadDir: filepath.Join(dir, "uploads")},
		Admin:    config.AdminConfig{Email: "admin@example.com", Password: "Admin123!@#"},
		Frontend: config.FrontendConfig{BaseURL: "http://shop.test"},
	}
}

// openTestDB uses a file database so reads outside a running transaction
// do not wait on the single in-memory connection.
func openTestDB(t *testing.T, dir string) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(dir, "test.db") + "?_busy_timeout=5000"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	require.NoError(t, database.RunMigrations(db))
	return db
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	cfg := testConfig(dir)
	db := openTestDB(t, dir)
	require.NoError(t, database.SeedInitialData(db, cfg))

	env := &testEnv{
		db:      db,
		cfg:     cfg,
		gateway: newFakeGateway(),
		sender:  &recordingSender{},
		clock:   time.Now(),
	}
	env.audit = NewAuditService(db)
	env.settings = NewSettingsService(db, cfg, env.audit)
	env.notifications = NewNotificationService(db)
	env.discounts = NewDiscountService(db, env.audit)
	env.categories = NewCategoryService(db, env.audit)
	env.products = NewProductService(db, env.audit, env.settings)
	env.carts = NewCartService(db, env.settings, env.discounts)
	env.payments = NewPaymentServiceWithGateway(env.gateway)
	env.mailer = NewSyncMailer(cfg, env.sender)
	store := cache.NewInMemoryIdempotencyStore()
	t.Cleanup(func() { store.Close() })
	env.checkout = NewCheckoutService(db, env.carts, env.discounts, env.settings, env.notifications, env.audit, env.payments, env.mailer, store)
	env.orders = NewOrderService(db, env.audit, env.notifications, env.mailer)
	env.shipments = NewShipmentService(db, env.audit, env.notifications, env.mailer)
	env.returns = NewReturnService(db, env.audit, env.notifications, env.mailer)
	env.refunds = NewRefundService(db, env.audit, env.notifications, env.payments, env.returns, env.mailer)
	env.reviews = NewReviewService(db, env.audit, env.notifications)
	env.customers = NewCustomerService(db)
	env.authz = NewAuthorizationService(db, env.audit)
	env.users = NewUserService(db, env.audit, env.authz)
	env.auth = NewAuthService(db, cfg, env.carts, env.authz, env.mailer)
	env.dashboard = NewDashboardService(db, env.products, env.notifications)
	return env
}

func (e *testEnv) admin(t *testing.T) *models.User {
	t.Helper()
	var admin models.User
	require.NoError(t, e.db.Where("email = ?", e.cfg.Admin.Email).First(&admin).Error)
	return &admin
}

func (e *testEnv) adminActor(t *testing.T) Actor {
	admin := e.admin(t)
	return Actor{UserID: &admin.ID, IPAddress: "127.0.0.1", UserAgent: "test"}
}

func (e *testEnv) createCategory(t *testing.T, slug string) *models.Category {
	t.Helper()
	c := &models.Category{Name: slug, Slug: slug, IsActive: true}
	require.NoError(t, e.db.Create(c).Error)
	return c
}

func (e *testEnv) createProduct(t *testing.T, sku string, price string, stock int, category *models.Category) *models.Product {
	t.Helper()
	p := &models.Product{
		Name:   "Product " + sku,
		Slug:   "product-" + sku,
		SKU:    sku,
		Price:  decimal.RequireFromString(price),
		Stock:  stock,
		Status: models.ProductStatusActive,
	}
	if category != nil {
		p.CategoryID = &category.ID
	}
	require.NoError(t, e.db.Create(p).Error)
	return p
}

func (e *testEnv) createVariant(t *testing.T, product *models.Product, sku string, price *string, stock int) *models.ProductVariant {
	t.Helper()
	v := &models.ProductVariant{ProductID: product.ID, Name: "Size " + sku, SKU: sku, Stock: stock, IsActive: true}
	if price != nil {
		v.Price = decimal.NewNullDecimal(decimal.RequireFromString(*price))
	}
	require.NoError(t, e.db.Create(v).Error)
	return v
}

func (e *testEnv) createDiscount(t *testing.T, d *models.Discount) *models.Discount {
	t.Helper()
	if d.Name == "" {
		d.Name = "Discount"
	}
	d.IsActive = true
	require.NoError(t, e.db.Create(d).Error)
	return d
}

func (e *testEnv) createCustomer(t *testing.T, email string) *models.User {
	t.Helper()
	u := &models.User{
		Email:     email,
		FirstName: "Casey",
		LastName:  "Jones",
		UserType:  models.UserTypeCustomer,
		Status:    models.UserStatusActive,
	}
	require.NoError(t, u.SetPassword("Secret123!"))
	require.NoError(t, e.db.Create(u).Error)
	return u
}

func addToCart(t *testing.T, env *testEnv, owner CartOwner, product *models.Product, variant *models.ProductVariant, qty int) *CartView {
	t.Helper()
	req := &AddCartItemRequest{ProductID: product.ID, Quantity: qty}
	if variant != nil {
		req.VariantID = &variant.ID
	}
	view, err := env.carts.AddItem(owner, req)
	require.NoError(t, err)
	return view
}

func testAddress() models.Address {
	return models.Address{
		Name:       "Casey Jones",
		Line1:      "1 Main St",
		City:       "Springfield",
		PostalCode: "12345",
		Country:    "us",
	}
}

// placeOrder checks out whatever is in the owner's cart with cash on delivery.
func placeOrder(t *testing.T, env *testEnv, owner CartOwner, email string) *models.Order {
	t.Helper()
	result, err := env.checkout.PlaceOrder(context.Background(), owner, SystemActor, &CheckoutRequest{
		Email:           email,
		ShippingAddress: testAddress(),
		PaymentMethod:   PaymentMethodCashOnDelivery,
	}, "")
	require.NoError(t, err)
	return result.Order
}

func guestOwner() CartOwner {
	return CartOwner{SessionID: uuid.NewString()}
}

func userOwner(u *models.User) CartOwner {
	return CartOwner{UserID: &u.ID}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func pointer[T any](v T) *T {
	return &v
}

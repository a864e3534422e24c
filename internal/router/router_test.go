package router

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/javajoker/storefront-backend/internal/config"
	"github.com/javajoker/storefront-backend/internal/database"
	"github.com/javajoker/storefront-backend/internal/i18n"
	"github.com/javajoker/storefront-backend/internal/middleware"
	"github.com/javajoker/storefront-backend/internal/utils"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Meta json.RawMessage `json:"meta"`
}

type RouterTestSuite struct {
	suite.Suite
	db       *gorm.DB
	cfg      *config.Config
	services *Services
	router   *gin.Engine
	stop     func()
}

func (suite *RouterTestSuite) SetupSuite() {
	gin.SetMode(gin.TestMode)
	require.NoError(suite.T(), i18n.Initialize())
}

func (suite *RouterTestSuite) SetupTest() {
	t := suite.T()
	dir := t.TempDir()

	suite.cfg = &config.Config{
		Environment: "test",
		JWT:         config.JWTConfig{SecretKey: "router-test-secret", AccessTokenTTL: 1, RefreshTokenTTL: 24},
		Store: config.StoreConfig{
			Name: "Test Shop", Currency: "USD", TaxRate: 10,
			FlatShippingRate: 5, FreeShippingThreshold: 100, LowStockThreshold: 3,
		},
		Backup: config.BackupConfig{Directory: filepath.Join(dir, "backups"), Retention: 2},
		AWS:    config.AWSConfig{LocalUploadDir: filepath.Join(dir, "uploads")},
		Admin:  config.AdminConfig{Email: "admin@example.com", Password: "Admin123!@#"},
		CORS:   config.CORSConfig{AllowedOrigins: []string{"http://shop.test"}},
	}
	utils.SetJWTSecret(suite.cfg.JWT.SecretKey)

	db, err := gorm.Open(sqlite.Open(filepath.Join(dir, "router.db")+"?_busy_timeout=5000"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.RunMigrations(db))
	require.NoError(t, database.SeedInitialData(db, suite.cfg))
	suite.db = db

	suite.services, err = NewServices(db, suite.cfg)
	require.NoError(t, err)
	suite.router, suite.stop = Initialize(suite.cfg, suite.services)
}

func (suite *RouterTestSuite) TearDownTest() {
	suite.stop()
	suite.services.Close()
	if sqlDB, err := suite.db.DB(); err == nil {
		sqlDB.Close()
	}
}

func (suite *RouterTestSuite) request(method, path string, body interface{}, headers map[string]string) (*httptest.ResponseRecorder, envelope) {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(suite.T(), json.NewEncoder(&buf).Encode(body))
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)

	var env envelope
	if w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(suite.T(), json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func (suite *RouterTestSuite) login(path, email, password string) string {
	w, env := suite.request("POST", path, map[string]string{"email": email, "password": password}, nil)
	require.Equal(suite.T(), http.StatusOK, w.Code, w.Body.String())
	var data struct {
		Token string `json:"token"`
	}
	require.NoError(suite.T(), json.Unmarshal(env.Data, &data))
	return data.Token
}

func (suite *RouterTestSuite) adminToken() string {
	return suite.login("/api/v1/auth/login", "admin@example.com", "Admin123!@#")
}

// createProduct creates an active product through the admin API.
func (suite *RouterTestSuite) createProduct(token, sku string, price string, stock int) string {
	w, env := suite.request("POST", "/api/v1/products", map[string]interface{}{
		"name":   "Product " + sku,
		"sku":    sku,
		"price":  price,
		"stock":  stock,
		"status": "active",
	}, bearer(token))
	require.Equal(suite.T(), http.StatusCreated, w.Code, w.Body.String())

	var data struct {
		Product struct {
			ID string `json:"id"`
		} `json:"product"`
	}
	require.NoError(suite.T(), json.Unmarshal(env.Data, &data))
	return data.Product.ID
}

func (suite *RouterTestSuite) TestHealth() {
	w, err := http.NewRequest("GET", "/health", nil)
	require.NoError(suite.T(), err)
	rec := httptest.NewRecorder()
	suite.router.ServeHTTP(rec, w)

	assert.Equal(suite.T(), http.StatusOK, rec.Code)
	assert.Contains(suite.T(), rec.Body.String(), "healthy")
	assert.NotEmpty(suite.T(), rec.Header().Get(middleware.RequestIDHeader))
}

func (suite *RouterTestSuite) TestUserRegistration() {
	w, env := suite.request("POST", "/api/storefront/auth/register", map[string]interface{}{
		"email":      "test@example.com",
		"password":   "TestPass123!",
		"first_name": "Test",
	}, nil)

	assert.Equal(suite.T(), http.StatusCreated, w.Code)
	assert.True(suite.T(), env.Success)

	var data struct {
		Token string `json:"token"`
		User  struct {
			Email    string `json:"email"`
			UserType string `json:"user_type"`
		} `json:"user"`
	}
	require.NoError(suite.T(), json.Unmarshal(env.Data, &data))
	assert.NotEmpty(suite.T(), data.Token)
	assert.Equal(suite.T(), "test@example.com", data.User.Email)
	assert.Equal(suite.T(), "customer", data.User.UserType)

	w, env = suite.request("POST", "/api/storefront/auth/register", map[string]interface{}{
		"email":      "test@example.com",
		"password":   "TestPass123!",
		"first_name": "Again",
	}, nil)
	assert.Equal(suite.T(), http.StatusConflict, w.Code)
	assert.False(suite.T(), env.Success)
}

func (suite *RouterTestSuite) TestUserLogin() {
	suite.request("POST", "/api/storefront/auth/register", map[string]interface{}{
		"email":      "test@example.com",
		"password":   "TestPass123!",
		"first_name": "Test",
	}, nil)

	token := suite.login("/api/storefront/auth/login", "test@example.com", "TestPass123!")
	w, env := suite.request("GET", "/api/storefront/auth/me", nil, bearer(token))
	assert.Equal(suite.T(), http.StatusOK, w.Code)
	assert.True(suite.T(), env.Success)

	w, env = suite.request("POST", "/api/storefront/auth/login", map[string]string{
		"email": "test@example.com", "password": "wrong-password",
	}, nil)
	assert.Equal(suite.T(), http.StatusUnauthorized, w.Code)
	require.NotNil(suite.T(), env.Error)
}

func (suite *RouterTestSuite) TestAdminRoutesRequireStaffPermission() {
	w, env := suite.request("GET", "/api/v1/dashboard/stats", nil, nil)
	assert.Equal(suite.T(), http.StatusUnauthorized, w.Code)
	assert.False(suite.T(), env.Success)

	suite.request("POST", "/api/storefront/auth/register", map[string]interface{}{
		"email": "shopper@example.com", "password": "TestPass123!", "first_name": "Shopper",
	}, nil)
	customer := suite.login("/api/storefront/auth/login", "shopper@example.com", "TestPass123!")
	w, env = suite.request("GET", "/api/v1/dashboard/stats", nil, bearer(customer))
	assert.Equal(suite.T(), http.StatusForbidden, w.Code)
	require.NotNil(suite.T(), env.Error)
	assert.Equal(suite.T(), "FORBIDDEN", env.Error.Code)

	w, env = suite.request("GET", "/api/v1/dashboard/stats", nil, bearer(suite.adminToken()))
	assert.Equal(suite.T(), http.StatusOK, w.Code)
	assert.True(suite.T(), env.Success)
}

func (suite *RouterTestSuite) TestGuestCartCheckout() {
	productID := suite.createProduct(suite.adminToken(), "MUG-1", "20.00", 5)

	w, _ := suite.request("POST", "/api/storefront/cart/items", map[string]interface{}{
		"product_id": productID,
		"quantity":   2,
	}, nil)
	require.Equal(suite.T(), http.StatusOK, w.Code, w.Body.String())
	session := w.Header().Get(middleware.CartSessionHeader)
	require.NotEmpty(suite.T(), session)

	headers := map[string]string{middleware.CartSessionHeader: session}
	w, env := suite.request("GET", "/api/storefront/cart", nil, headers)
	require.Equal(suite.T(), http.StatusOK, w.Code)
	var cart struct {
		Cart struct {
			Items  []json.RawMessage `json:"items"`
			Totals struct {
				Subtotal decimal.Decimal `json:"subtotal"`
				Total    decimal.Decimal `json:"total"`
			} `json:"totals"`
		} `json:"cart"`
	}
	require.NoError(suite.T(), json.Unmarshal(env.Data, &cart))
	assert.Len(suite.T(), cart.Cart.Items, 1)
	assert.True(suite.T(), decimal.NewFromInt(40).Equal(cart.Cart.Totals.Subtotal))
	assert.True(suite.T(), decimal.RequireFromString("49").Equal(cart.Cart.Totals.Total))

	checkout := map[string]interface{}{
		"email":          "guest@example.com",
		"payment_method": "cash_on_delivery",
		"shipping_address": map[string]string{
			"name": "Guest", "line1": "1 Main St", "city": "Springfield",
			"postal_code": "12345", "country": "US",
		},
	}
	headers["Idempotency-Key"] = "checkout-1"
	w, env = suite.request("POST", "/api/storefront/checkout", checkout, headers)
	require.Equal(suite.T(), http.StatusCreated, w.Code, w.Body.String())
	var placed struct {
		Order struct {
			OrderNumber string          `json:"order_number"`
			Total       decimal.Decimal `json:"total"`
		} `json:"order"`
	}
	require.NoError(suite.T(), json.Unmarshal(env.Data, &placed))
	assert.NotEmpty(suite.T(), placed.Order.OrderNumber)
	assert.True(suite.T(), decimal.RequireFromString("49").Equal(placed.Order.Total))

	// A replayed key is rejected before touching the cart.
	w, env = suite.request("POST", "/api/storefront/checkout", checkout, headers)
	assert.Equal(suite.T(), http.StatusConflict, w.Code)
	assert.False(suite.T(), env.Success)

	w, env = suite.request("GET", "/api/v1/orders", nil, bearer(suite.adminToken()))
	require.Equal(suite.T(), http.StatusOK, w.Code)
	assert.Equal(suite.T(), "1", w.Header().Get("X-Total-Count"))
}

func (suite *RouterTestSuite) TestStorefrontHidesDraftProducts() {
	token := suite.adminToken()
	suite.createProduct(token, "LIVE-1", "10.00", 1)

	w, env := suite.request("POST", "/api/v1/products", map[string]interface{}{
		"name": "Hidden", "sku": "DRAFT-1", "price": "10.00", "stock": 1, "status": "draft",
	}, bearer(token))
	require.Equal(suite.T(), http.StatusCreated, w.Code, w.Body.String())

	w, env = suite.request("GET", "/api/storefront/products", nil, nil)
	require.Equal(suite.T(), http.StatusOK, w.Code)
	var products []struct {
		SKU string `json:"sku"`
	}
	require.NoError(suite.T(), json.Unmarshal(env.Data, &products))
	require.Len(suite.T(), products, 1)
	assert.Equal(suite.T(), "LIVE-1", products[0].SKU)

	w, env = suite.request("GET", "/api/v1/products", nil, bearer(token))
	require.Equal(suite.T(), http.StatusOK, w.Code)
	assert.Equal(suite.T(), "2", w.Header().Get("X-Total-Count"))
}

func (suite *RouterTestSuite) TestInvalidIDIsBadRequest() {
	w, env := suite.request("GET", "/api/v1/orders/not-a-uuid", nil, bearer(suite.adminToken()))
	assert.Equal(suite.T(), http.StatusBadRequest, w.Code)
	require.NotNil(suite.T(), env.Error)
	assert.Equal(suite.T(), "Invalid order ID", env.Error.Message)
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterTestSuite))
}

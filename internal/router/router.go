// internal/router/router.go
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/javajoker/storefront-backend/internal/config"
	"github.com/javajoker/storefront-backend/internal/handlers"
	"github.com/javajoker/storefront-backend/internal/metrics"
	"github.com/javajoker/storefront-backend/internal/middleware"
	"github.com/javajoker/storefront-backend/internal/models"
	"github.com/javajoker/storefront-backend/internal/services"
)

const Version = "1.0.0"

// Initialize builds the HTTP engine. The returned function stops the rate
// limiter cleanup goroutines.
func Initialize(cfg *config.Config, s *Services) (*gin.Engine, func()) {
	// Initialize handlers
	authHandler := handlers.NewAuthHandler(s.Auth)
	userHandler := handlers.NewUserHandler(s.Users, s.Authorization)
	productHandler := handlers.NewProductHandler(s.Products, s.Storage)
	categoryHandler := handlers.NewCategoryHandler(s.Categories)
	cartHandler := handlers.NewCartHandler(s.Carts)
	checkoutHandler := handlers.NewCheckoutHandler(s.Checkout)
	orderHandler := handlers.NewOrderHandler(s.Orders, s.Returns)
	fulfillmentHandler := handlers.NewFulfillmentHandler(s.Shipments, s.Returns, s.Refunds)
	reviewHandler := handlers.NewReviewHandler(s.Reviews)
	discountHandler := handlers.NewDiscountHandler(s.Discounts)
	adminHandler := handlers.NewAdminHandler(s.Dashboard, s.Customers, s.Audit, s.Settings, s.Notifications, s.Backups)

	generalLimit := middleware.PerSecond(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	authLimit := middleware.PerMinute(cfg.RateLimit.AuthPerMinute)

	r := gin.New()

	// Global middleware
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.CORS(cfg.CORS.AllowedOrigins))
	r.Use(middleware.I18nMiddleware())
	r.Use(metrics.Middleware())
	r.Use(generalLimit.Handler())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"version": Version,
		})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	if !s.Storage.RemoteEnabled() {
		r.Static(services.LocalUploadsPrefix, cfg.AWS.LocalUploadDir)
	}

	registerStorefront(r.Group("/api/storefront"), authLimit,
		authHandler, productHandler, categoryHandler, reviewHandler,
		cartHandler, checkoutHandler, orderHandler)

	perm := func(slug string) gin.HandlerFunc {
		return middleware.RequirePermission(s.Authorization, slug)
	}

	v1 := r.Group("/api/v1")
	{
		auth := v1.Group("/auth")
		auth.Use(authLimit.Handler())
		{
			auth.POST("/login", authHandler.Login)
			auth.POST("/refresh", authHandler.RefreshToken)
		}

		admin := v1.Group("")
		admin.Use(middleware.AuthRequired(), middleware.StaffRequired())
		{
			admin.GET("/auth/me", authHandler.Me)
			admin.PUT("/auth/me", authHandler.UpdateProfile)
			admin.POST("/auth/change-password", authHandler.ChangePassword)

			admin.GET("/dashboard/stats", perm(models.PermDashboardRead), adminHandler.GetDashboardStats)

			products := admin.Group("/products")
			{
				products.GET("", perm(models.PermProductsRead), productHandler.List)
				products.GET("/low-stock", perm(models.PermProductsRead), productHandler.LowStock)
				products.POST("", perm(models.PermProductsWrite), productHandler.Create)
				products.POST("/upload-images", perm(models.PermProductsWrite), productHandler.UploadImages)
				products.GET("/:id", perm(models.PermProductsRead), productHandler.Get)
				products.PUT("/:id", perm(models.PermProductsWrite), productHandler.Update)
				products.DELETE("/:id", perm(models.PermProductsWrite), productHandler.Delete)
				products.POST("/:id/archive", perm(models.PermProductsWrite), productHandler.Archive)
				products.POST("/:id/images", perm(models.PermProductsWrite), productHandler.UploadImages)
				products.GET("/:id/variants", perm(models.PermProductsRead), productHandler.ListVariants)
				products.POST("/:id/variants", perm(models.PermProductsWrite), productHandler.CreateVariant)
				products.PUT("/:id/variants/:variantId", perm(models.PermProductsWrite), productHandler.UpdateVariant)
				products.DELETE("/:id/variants/:variantId", perm(models.PermProductsWrite), productHandler.DeleteVariant)
			}

			categories := admin.Group("/categories")
			{
				categories.GET("", perm(models.PermCategoriesRead), categoryHandler.List)
				categories.GET("/:id", perm(models.PermCategoriesRead), categoryHandler.Get)
				categories.POST("", perm(models.PermCategoriesWrite), categoryHandler.Create)
				categories.PUT("/:id", perm(models.PermCategoriesWrite), categoryHandler.Update)
				categories.DELETE("/:id", perm(models.PermCategoriesWrite), categoryHandler.Delete)
			}

			discounts := admin.Group("/discounts")
			{
				discounts.GET("", perm(models.PermDiscountsRead), discountHandler.List)
				discounts.GET("/:id", perm(models.PermDiscountsRead), discountHandler.Get)
				discounts.POST("", perm(models.PermDiscountsWrite), discountHandler.Create)
				discounts.PUT("/:id", perm(models.PermDiscountsWrite), discountHandler.Update)
				discounts.DELETE("/:id", perm(models.PermDiscountsWrite), discountHandler.Delete)
			}

			orders := admin.Group("/orders")
			{
				orders.GET("", perm(models.PermOrdersRead), orderHandler.List)
				orders.GET("/metrics", perm(models.PermOrdersRead), orderHandler.Metrics)
				orders.GET("/:id", perm(models.PermOrdersRead), orderHandler.Get)
				orders.PUT("/:id/status", perm(models.PermOrdersWrite), orderHandler.UpdateStatus)
				orders.POST("/:id/cancel", perm(models.PermOrdersWrite), orderHandler.Cancel)
			}

			shipments := admin.Group("/shipments")
			{
				shipments.GET("", perm(models.PermShipmentsRead), fulfillmentHandler.ListShipments)
				shipments.GET("/:id", perm(models.PermShipmentsRead), fulfillmentHandler.GetShipment)
				shipments.PUT("/:id", perm(models.PermShipmentsWrite), fulfillmentHandler.UpdateShipment)
				shipments.PUT("/:id/status", perm(models.PermShipmentsWrite), fulfillmentHandler.UpdateShipmentStatus)
			}

			returns := admin.Group("/returns")
			{
				returns.GET("", perm(models.PermReturnsRead), fulfillmentHandler.ListReturns)
				returns.GET("/:id", perm(models.PermReturnsRead), fulfillmentHandler.GetReturn)
				returns.POST("/:id/approve", perm(models.PermReturnsWrite), fulfillmentHandler.ApproveReturn)
				returns.POST("/:id/reject", perm(models.PermReturnsWrite), fulfillmentHandler.RejectReturn)
				returns.POST("/:id/receive", perm(models.PermReturnsWrite), fulfillmentHandler.ReceiveReturn)
			}

			refunds := admin.Group("/refunds")
			{
				refunds.GET("", perm(models.PermRefundsRead), fulfillmentHandler.ListRefunds)
				refunds.GET("/:id", perm(models.PermRefundsRead), fulfillmentHandler.GetRefund)
				refunds.POST("", perm(models.PermRefundsWrite), fulfillmentHandler.CreateRefund)
			}

			reviews := admin.Group("/reviews")
			{
				reviews.GET("", perm(models.PermReviewsRead), reviewHandler.List)
				reviews.GET("/:id", perm(models.PermReviewsRead), reviewHandler.Get)
				reviews.POST("/:id/approve", perm(models.PermReviewsWrite), reviewHandler.Approve)
				reviews.POST("/:id/reject", perm(models.PermReviewsWrite), reviewHandler.Reject)
				reviews.DELETE("/:id", perm(models.PermReviewsWrite), reviewHandler.Delete)
			}

			customers := admin.Group("/customers")
			{
				customers.GET("", perm(models.PermCustomersRead), adminHandler.ListCustomers)
				customers.GET("/metrics", perm(models.PermCustomersRead), adminHandler.GetCustomerMetrics)
				customers.GET("/:id", perm(models.PermCustomersRead), adminHandler.GetCustomer)
			}

			users := admin.Group("/users")
			{
				users.GET("", perm(models.PermUsersRead), userHandler.List)
				users.GET("/:id", perm(models.PermUsersRead), userHandler.Get)
				users.POST("", perm(models.PermUsersWrite), userHandler.Create)
				users.PUT("/:id", perm(models.PermUsersWrite), userHandler.Update)
				users.DELETE("/:id", perm(models.PermUsersWrite), userHandler.Deactivate)
				users.PUT("/:id/roles", perm(models.PermRolesWrite), userHandler.AssignRoles)
			}

			roles := admin.Group("/roles")
			{
				roles.GET("", perm(models.PermRolesRead), userHandler.ListRoles)
				roles.GET("/:id", perm(models.PermRolesRead), userHandler.GetRole)
				roles.POST("", perm(models.PermRolesWrite), userHandler.CreateRole)
				roles.PUT("/:id", perm(models.PermRolesWrite), userHandler.UpdateRole)
				roles.DELETE("/:id", perm(models.PermRolesWrite), userHandler.DeleteRole)
			}
			admin.GET("/permissions", perm(models.PermRolesRead), userHandler.ListPermissions)

			auditLogs := admin.Group("/audit-logs")
			{
				auditLogs.GET("", perm(models.PermAuditLogsRead), adminHandler.ListAuditLogs)
				auditLogs.GET("/:id", perm(models.PermAuditLogsRead), adminHandler.GetAuditLog)
			}

			settings := admin.Group("/settings")
			{
				settings.GET("", perm(models.PermSettingsRead), adminHandler.GetSettings)
				settings.PUT("", perm(models.PermSettingsWrite), adminHandler.UpdateSettings)
			}

			notifications := admin.Group("/notifications")
			notifications.Use(perm(models.PermNotificationsRead))
			{
				notifications.GET("", adminHandler.ListNotifications)
				notifications.POST("/read-all", adminHandler.MarkAllNotificationsRead)
				notifications.POST("/:id/read", adminHandler.MarkNotificationRead)
			}

			backups := admin.Group("/backups")
			{
				backups.GET("", perm(models.PermBackupsRead), adminHandler.ListBackups)
				backups.POST("", perm(models.PermBackupsWrite), adminHandler.CreateBackup)
				backups.GET("/:id", perm(models.PermBackupsRead), adminHandler.GetBackup)
				backups.GET("/:id/download", perm(models.PermBackupsRead), adminHandler.DownloadBackup)
				backups.POST("/:id/restore", perm(models.PermBackupsWrite), adminHandler.RestoreBackup)
				backups.DELETE("/:id", perm(models.PermBackupsWrite), adminHandler.DeleteBackup)
			}
		}
	}

	stop := func() {
		generalLimit.Stop()
		authLimit.Stop()
	}
	return r, stop
}

func registerStorefront(
	sf *gin.RouterGroup,
	authLimit *middleware.RateLimiter,
	authHandler *handlers.AuthHandler,
	productHandler *handlers.ProductHandler,
	categoryHandler *handlers.CategoryHandler,
	reviewHandler *handlers.ReviewHandler,
	cartHandler *handlers.CartHandler,
	checkoutHandler *handlers.CheckoutHandler,
	orderHandler *handlers.OrderHandler,
) {
	sf.Use(middleware.CartSession(), middleware.OptionalAuth())

	auth := sf.Group("/auth")
	{
		auth.POST("/register", authLimit.Handler(), authHandler.Register)
		auth.POST("/login", authLimit.Handler(), authHandler.Login)
		auth.POST("/refresh", authLimit.Handler(), authHandler.RefreshToken)

		me := auth.Group("")
		me.Use(middleware.AuthRequired())
		{
			me.GET("/me", authHandler.Me)
			me.PUT("/me", authHandler.UpdateProfile)
			me.POST("/change-password", authHandler.ChangePassword)
		}
	}

	sf.GET("/categories", categoryHandler.ListStorefront)
	sf.GET("/categories/:slug", categoryHandler.GetStorefront)

	sf.GET("/products", productHandler.ListStorefront)
	sf.GET("/products/:slug", productHandler.GetStorefront)
	sf.GET("/products/:slug/reviews", reviewHandler.ListForProduct)
	sf.POST("/products/:slug/reviews", middleware.AuthRequired(), reviewHandler.Create)

	cart := sf.Group("/cart")
	{
		cart.GET("", cartHandler.Get)
		cart.DELETE("", cartHandler.Clear)
		cart.POST("/items", cartHandler.AddItem)
		cart.PUT("/items/:itemId", cartHandler.UpdateItem)
		cart.DELETE("/items/:itemId", cartHandler.RemoveItem)
		cart.POST("/discount", cartHandler.ApplyDiscount)
		cart.DELETE("/discount", cartHandler.RemoveDiscount)
	}

	sf.POST("/checkout", checkoutHandler.PlaceOrder)
	sf.POST("/checkout/confirm-payment", checkoutHandler.ConfirmPayment)

	account := sf.Group("")
	account.Use(middleware.AuthRequired())
	{
		account.GET("/orders", orderHandler.ListMine)
		account.GET("/orders/:id", orderHandler.GetMine)
		account.POST("/orders/:id/cancel", orderHandler.CancelMine)
		account.POST("/orders/:id/returns", orderHandler.RequestReturn)
		account.GET("/returns", orderHandler.ListMyReturns)
	}
}

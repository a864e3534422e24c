// internal/i18n/keys.go
package i18n

// Translation keys constants
const (
	// Common
	KeySuccess           = "success"
	KeyValidationInvalid = "validation.invalid"
	KeyInvalidID         = "validation.invalid_id"
	KeyAccessDenied      = "access.denied"
	KeyRateLimited       = "rate_limit.exceeded"

	// Authentication
	KeyAuthRequired           = "auth.required"
	KeyAuthInvalidToken       = "auth.invalid_token"
	KeyAuthTokenExpired       = "auth.token_expired"
	KeyAuthInvalidCredentials = "auth.invalid_credentials"
	KeyAuthLoginSuccess       = "auth.login_success"
	KeyAuthRegisterSuccess    = "auth.register_success"

	// Users and roles
	KeyUserNotFound = "user.not_found"
	KeyUserCreated  = "user.created"
	KeyUserUpdated  = "user.updated"
	KeyRoleNotFound = "role.not_found"
	KeyRoleCreated  = "role.created"
	KeyRoleUpdated  = "role.updated"
	KeyRoleDeleted  = "role.deleted"

	// Catalog
	KeyProductNotFound  = "product.not_found"
	KeyProductCreated   = "product.created"
	KeyProductUpdated   = "product.updated"
	KeyProductDeleted   = "product.deleted"
	KeyCategoryNotFound = "category.not_found"
	KeyCategoryCreated  = "category.created"
	KeyCategoryUpdated  = "category.updated"
	KeyCategoryDeleted  = "category.deleted"
	KeyVariantCreated   = "variant.created"
	KeyVariantUpdated   = "variant.updated"
	KeyVariantDeleted   = "variant.deleted"
	KeyUploadSuccess    = "upload.success"

	// Cart and checkout
	KeyCartItemAdded      = "cart.item_added"
	KeyCartItemUpdated    = "cart.item_updated"
	KeyCartItemRemoved    = "cart.item_removed"
	KeyCartCleared        = "cart.cleared"
	KeyCartDiscountAdded  = "cart.discount_applied"
	KeyCartDiscountRemove = "cart.discount_removed"
	KeyOrderPlaced        = "order.placed"

	// Discounts
	KeyDiscountNotFound = "discount.not_found"
	KeyDiscountCreated  = "discount.created"
	KeyDiscountUpdated  = "discount.updated"
	KeyDiscountDeleted  = "discount.deleted"

	// Orders and fulfillment
	KeyOrderNotFound     = "order.not_found"
	KeyOrderUpdated      = "order.updated"
	KeyOrderCancelled    = "order.cancelled"
	KeyShipmentNotFound  = "shipment.not_found"
	KeyShipmentUpdated   = "shipment.updated"
	KeyReturnNotFound    = "return.not_found"
	KeyReturnRequested   = "return.requested"
	KeyReturnUpdated     = "return.updated"
	KeyRefundNotFound    = "refund.not_found"
	KeyRefundCreated     = "refund.created"
	KeyPaymentConfirmed  = "payment.confirmed"
	KeyReviewNotFound    = "review.not_found"
	KeyReviewSubmitted   = "review.submitted"
	KeyReviewModerated   = "review.moderated"
	KeyReviewDeleted     = "review.deleted"
	KeyCustomerNotFound  = "customer.not_found"
	KeyNotificationsRead = "notification.read"

	// Admin
	KeySettingsUpdated  = "settings.updated"
	KeyAuditLogNotFound = "audit_log.not_found"
	KeyBackupNotFound   = "backup.not_found"
	KeyBackupCreated    = "backup.created"
	KeyBackupRestored   = "backup.restored"
	KeyBackupDeleted    = "backup.deleted"
)

// internal/handlers/admin.go
package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/javajoker/storefront-backend/internal/i18n"
	"github.com/javajoker/storefront-backend/internal/services"
	"github.com/javajoker/storefront-backend/internal/utils"
)

// AdminHandler serves the back-office pages that are not tied to one
// commerce resource.
type AdminHandler struct {
	dashboardService    *services.DashboardService
	customerService     *services.CustomerService
	auditService        *services.AuditService
	settingsService     *services.SettingsService
	notificationService *services.NotificationService
	backupService       *services.BackupService
}

func NewAdminHandler(
	dashboardService *services.DashboardService,
	customerService *services.CustomerService,
	auditService *services.AuditService,
	settingsService *services.SettingsService,
	notificationService *services.NotificationService,
	backupService *services.BackupService,
) *AdminHandler {
	return &AdminHandler{
		dashboardService:    dashboardService,
		customerService:     customerService,
		auditService:        auditService,
		settingsService:     settingsService,
		notificationService: notificationService,
		backupService:       backupService,
	}
}

// GET /api/v1/dashboard/stats
func (h *AdminHandler) GetDashboardStats(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	stats, err := h.dashboardService.Stats(userID)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"stats": stats})
}

// GET /api/v1/customers
func (h *AdminHandler) ListCustomers(c *gin.Context) {
	filter := services.CustomerFilter{
		PaginationParams: utils.GetPaginationParams(c),
		Status:           utils.QueryString(c, "status"),
	}
	customers, total, err := h.customerService.List(filter)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	paginated(c, customers, total, filter.PaginationParams)
}

// GET /api/v1/customers/metrics
func (h *AdminHandler) GetCustomerMetrics(c *gin.Context) {
	metrics, err := h.customerService.Metrics()
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, metrics)
}

// GET /api/v1/customers/:id
func (h *AdminHandler) GetCustomer(c *gin.Context) {
	id, ok := paramUUID(c, "id", "customer")
	if !ok {
		return
	}
	customer, err := h.customerService.Get(id)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"customer": customer})
}

// GET /api/v1/audit-logs
func (h *AdminHandler) ListAuditLogs(c *gin.Context) {
	filter := services.AuditLogFilter{
		PaginationParams: utils.GetPaginationParams(c),
		UserID:           utils.QueryUUID(c, "user_id"),
		Action:           c.Query("action"),
		ResourceType:     c.Query("resource_type"),
		ResourceID:       utils.QueryUUID(c, "resource_id"),
		From:             utils.QueryDate(c, "from"),
		To:               utils.QueryDate(c, "to"),
	}
	logs, total, err := h.auditService.List(filter)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	paginated(c, logs, total, filter.PaginationParams)
}

// GET /api/v1/audit-logs/:id
func (h *AdminHandler) GetAuditLog(c *gin.Context) {
	id, ok := paramUUID(c, "id", "audit log")
	if !ok {
		return
	}
	log, err := h.auditService.Get(id)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"audit_log": log})
}

// GET /api/v1/settings
func (h *AdminHandler) GetSettings(c *gin.Context) {
	settings, err := h.settingsService.List()
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"settings": settings})
}

// PUT /api/v1/settings
//
// Body is a flat object of setting key to new value.
func (h *AdminHandler) UpdateSettings(c *gin.Context) {
	var req map[string]interface{}
	if !bindJSON(c, &req) {
		return
	}
	settings, err := h.settingsService.Update(actorFrom(c), req)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{
		"message":  message(c, i18n.KeySettingsUpdated),
		"settings": settings,
	})
}

// GET /api/v1/notifications
func (h *AdminHandler) ListNotifications(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	filter := services.NotificationFilter{PaginationParams: utils.GetPaginationParams(c)}
	if unread := utils.QueryBool(c, "unread"); unread != nil {
		filter.UnreadOnly = *unread
	}

	notifications, total, err := h.notificationService.List(userID, filter)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	unread, err := h.notificationService.UnreadCount(userID)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	result := utils.CreatePaginationResult(notifications, total, filter.PaginationParams)
	utils.SetPaginationHeaders(c, result)
	utils.SuccessResponseWithMeta(c, notifications, gin.H{
		"unread_count": unread,
		"pagination": gin.H{
			"page":        result.Page,
			"limit":       result.Limit,
			"total":       result.Total,
			"total_pages": result.TotalPages,
		},
	})
}

// POST /api/v1/notifications/:id/read
func (h *AdminHandler) MarkNotificationRead(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	id, ok := paramUUID(c, "id", "notification")
	if !ok {
		return
	}
	notification, err := h.notificationService.MarkRead(userID, id)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"notification": notification})
}

// POST /api/v1/notifications/read-all
func (h *AdminHandler) MarkAllNotificationsRead(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	updated, err := h.notificationService.MarkAllRead(userID)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{
		"message": message(c, i18n.KeyNotificationsRead),
		"updated": updated,
	})
}

// GET /api/v1/backups
func (h *AdminHandler) ListBackups(c *gin.Context) {
	params := utils.GetPaginationParams(c)
	backups, total, err := h.backupService.List(params)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	paginated(c, backups, total, params)
}

// POST /api/v1/backups
func (h *AdminHandler) CreateBackup(c *gin.Context) {
	backup, err := h.backupService.Create(c.Request.Context(), actorFrom(c))
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.CreatedResponse(c, gin.H{
		"message": message(c, i18n.KeyBackupCreated),
		"backup":  backup,
	})
}

// GET /api/v1/backups/:id
func (h *AdminHandler) GetBackup(c *gin.Context) {
	id, ok := paramUUID(c, "id", "backup")
	if !ok {
		return
	}
	backup, err := h.backupService.Get(id)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"backup": backup})
}

// GET /api/v1/backups/:id/download
func (h *AdminHandler) DownloadBackup(c *gin.Context) {
	id, ok := paramUUID(c, "id", "backup")
	if !ok {
		return
	}
	backup, body, err := h.backupService.Open(id)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	defer body.Close()

	c.DataFromReader(http.StatusOK, backup.SizeBytes, "application/octet-stream", body, map[string]string{
		"Content-Disposition": fmt.Sprintf(`attachment; filename="%s"`, backup.Filename),
		"X-Checksum-SHA256":   backup.Checksum,
	})
}

// POST /api/v1/backups/:id/restore
func (h *AdminHandler) RestoreBackup(c *gin.Context) {
	id, ok := paramUUID(c, "id", "backup")
	if !ok {
		return
	}
	backup, err := h.backupService.Restore(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{
		"message": message(c, i18n.KeyBackupRestored),
		"backup":  backup,
	})
}

// DELETE /api/v1/backups/:id
func (h *AdminHandler) DeleteBackup(c *gin.Context) {
	id, ok := paramUUID(c, "id", "backup")
	if !ok {
		return
	}
	if err := h.backupService.Delete(actorFrom(c), id); err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"message": message(c, i18n.KeyBackupDeleted)})
}

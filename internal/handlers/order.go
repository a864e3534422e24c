// internal/handlers/order.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/javajoker/storefront-backend/internal/i18n"
	"github.com/javajoker/storefront-backend/internal/services"
	"github.com/javajoker/storefront-backend/internal/utils"
)

type OrderHandler struct {
	orderService  *services.OrderService
	returnService *services.ReturnService
}

func NewOrderHandler(orderService *services.OrderService, returnService *services.ReturnService) *OrderHandler {
	return &OrderHandler{
		orderService:  orderService,
		returnService: returnService,
	}
}

// Storefront (signed-in customer)

// GET /api/storefront/orders
func (h *OrderHandler) ListMine(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	params := utils.GetPaginationParams(c)
	orders, total, err := h.orderService.ListForUser(userID, params)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	paginated(c, orders, total, params)
}

// GET /api/storefront/orders/:id
func (h *OrderHandler) GetMine(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	id, ok := paramUUID(c, "id", "order")
	if !ok {
		return
	}
	order, err := h.orderService.GetForUser(userID, id)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"order": order})
}

// POST /api/storefront/orders/:id/cancel
func (h *OrderHandler) CancelMine(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	id, ok := paramUUID(c, "id", "order")
	if !ok {
		return
	}
	var req services.CancelOrderRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	order, err := h.orderService.CancelForUser(actorFrom(c), userID, id, &req)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{
		"message": message(c, i18n.KeyOrderCancelled),
		"order":   order,
	})
}

// POST /api/storefront/orders/:id/returns
func (h *OrderHandler) RequestReturn(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	id, ok := paramUUID(c, "id", "order")
	if !ok {
		return
	}
	var req services.CreateReturnRequest
	if !bindJSON(c, &req) {
		return
	}
	ret, err := h.returnService.RequestReturn(actorFrom(c), userID, id, &req)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.CreatedResponse(c, gin.H{
		"message": message(c, i18n.KeyReturnRequested),
		"return":  ret,
	})
}

// GET /api/storefront/returns
func (h *OrderHandler) ListMyReturns(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	params := utils.GetPaginationParams(c)
	returns, total, err := h.returnService.ListForUser(userID, params)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	paginated(c, returns, total, params)
}

// Admin

// GET /api/v1/orders
func (h *OrderHandler) List(c *gin.Context) {
	filter := services.OrderFilter{
		PaginationParams: utils.GetPaginationParams(c),
		Status:           utils.QueryString(c, "status"),
		PaymentStatus:    utils.QueryString(c, "payment_status"),
		UserID:           utils.QueryUUID(c, "user_id"),
		From:             utils.QueryDate(c, "from"),
		To:               utils.QueryDate(c, "to"),
	}
	orders, total, err := h.orderService.List(filter)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	paginated(c, orders, total, filter.PaginationParams)
}

// GET /api/v1/orders/metrics
func (h *OrderHandler) Metrics(c *gin.Context) {
	days := 30
	if d := utils.QueryInt(c, "days"); d != nil {
		days = *d
	}
	metrics, err := h.orderService.Metrics(days)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, metrics)
}

// GET /api/v1/orders/:id
func (h *OrderHandler) Get(c *gin.Context) {
	id, ok := paramUUID(c, "id", "order")
	if !ok {
		return
	}
	order, err := h.orderService.Get(id)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"order": order})
}

// PUT /api/v1/orders/:id/status
func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	id, ok := paramUUID(c, "id", "order")
	if !ok {
		return
	}
	var req services.UpdateOrderStatusRequest
	if !bindJSON(c, &req) {
		return
	}
	order, err := h.orderService.UpdateStatus(actorFrom(c), id, &req)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{
		"message": message(c, i18n.KeyOrderUpdated),
		"order":   order,
	})
}

// POST /api/v1/orders/:id/cancel
func (h *OrderHandler) Cancel(c *gin.Context) {
	id, ok := paramUUID(c, "id", "order")
	if !ok {
		return
	}
	var req services.CancelOrderRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	order, err := h.orderService.Cancel(actorFrom(c), id, &req)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{
		"message": message(c, i18n.KeyOrderCancelled),
		"order":   order,
	})
}

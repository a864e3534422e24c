// internal/handlers/fulfillment.go
package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/javajoker/storefront-backend/internal/i18n"
	"github.com/javajoker/storefront-backend/internal/models"
	"github.com/javajoker/storefront-backend/internal/services"
	"github.com/javajoker/storefront-backend/internal/utils"
)

// FulfillmentHandler serves the admin shipment, return and refund queues.
type FulfillmentHandler struct {
	shipmentService *services.ShipmentService
	returnService   *services.ReturnService
	refundService   *services.RefundService
}

func NewFulfillmentHandler(
	shipmentService *services.ShipmentService,
	returnService *services.ReturnService,
	refundService *services.RefundService,
) *FulfillmentHandler {
	return &FulfillmentHandler{
		shipmentService: shipmentService,
		returnService:   returnService,
		refundService:   refundService,
	}
}

// GET /api/v1/shipments
func (h *FulfillmentHandler) ListShipments(c *gin.Context) {
	filter := services.ShipmentFilter{
		PaginationParams: utils.GetPaginationParams(c),
		Status:           utils.QueryString(c, "status"),
		Carrier:          utils.QueryString(c, "carrier"),
		OrderID:          utils.QueryUUID(c, "order_id"),
	}
	shipments, total, err := h.shipmentService.List(filter)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	paginated(c, shipments, total, filter.PaginationParams)
}

// GET /api/v1/shipments/:id
func (h *FulfillmentHandler) GetShipment(c *gin.Context) {
	id, ok := paramUUID(c, "id", "shipment")
	if !ok {
		return
	}
	shipment, err := h.shipmentService.Get(id)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"shipment": shipment})
}

// PUT /api/v1/shipments/:id
func (h *FulfillmentHandler) UpdateShipment(c *gin.Context) {
	id, ok := paramUUID(c, "id", "shipment")
	if !ok {
		return
	}
	var req services.UpdateShipmentRequest
	if !bindJSON(c, &req) {
		return
	}
	shipment, err := h.shipmentService.Update(actorFrom(c), id, &req)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{
		"message":  message(c, i18n.KeyShipmentUpdated),
		"shipment": shipment,
	})
}

// PUT /api/v1/shipments/:id/status
func (h *FulfillmentHandler) UpdateShipmentStatus(c *gin.Context) {
	id, ok := paramUUID(c, "id", "shipment")
	if !ok {
		return
	}
	var req services.UpdateShipmentStatusRequest
	if !bindJSON(c, &req) {
		return
	}
	shipment, err := h.shipmentService.UpdateStatus(actorFrom(c), id, &req)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{
		"message":  message(c, i18n.KeyShipmentUpdated),
		"shipment": shipment,
	})
}

// GET /api/v1/returns
func (h *FulfillmentHandler) ListReturns(c *gin.Context) {
	filter := services.ReturnFilter{
		PaginationParams: utils.GetPaginationParams(c),
		Status:           utils.QueryString(c, "status"),
		OrderID:          utils.QueryUUID(c, "order_id"),
		UserID:           utils.QueryUUID(c, "user_id"),
	}
	returns, total, err := h.returnService.List(filter)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	paginated(c, returns, total, filter.PaginationParams)
}

// GET /api/v1/returns/:id
func (h *FulfillmentHandler) GetReturn(c *gin.Context) {
	id, ok := paramUUID(c, "id", "return")
	if !ok {
		return
	}
	ret, err := h.returnService.Get(id)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"return": ret})
}

// POST /api/v1/returns/:id/approve
func (h *FulfillmentHandler) ApproveReturn(c *gin.Context) {
	h.resolveReturn(c, h.returnService.Approve)
}

// POST /api/v1/returns/:id/reject
func (h *FulfillmentHandler) RejectReturn(c *gin.Context) {
	h.resolveReturn(c, h.returnService.Reject)
}

func (h *FulfillmentHandler) resolveReturn(c *gin.Context, resolve func(services.Actor, uuid.UUID, *services.ResolveReturnRequest) (*models.ReturnRequest, error)) {
	id, ok := paramUUID(c, "id", "return")
	if !ok {
		return
	}
	var req services.ResolveReturnRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	ret, err := resolve(actorFrom(c), id, &req)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{
		"message": message(c, i18n.KeyReturnUpdated),
		"return":  ret,
	})
}

// POST /api/v1/returns/:id/receive
func (h *FulfillmentHandler) ReceiveReturn(c *gin.Context) {
	id, ok := paramUUID(c, "id", "return")
	if !ok {
		return
	}
	var req services.ReceiveReturnRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	ret, err := h.returnService.MarkReceived(actorFrom(c), id, &req)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{
		"message": message(c, i18n.KeyReturnUpdated),
		"return":  ret,
	})
}

// GET /api/v1/refunds
func (h *FulfillmentHandler) ListRefunds(c *gin.Context) {
	filter := services.RefundFilter{
		PaginationParams: utils.GetPaginationParams(c),
		Status:           utils.QueryString(c, "status"),
		OrderID:          utils.QueryUUID(c, "order_id"),
	}
	refunds, total, err := h.refundService.List(filter)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	paginated(c, refunds, total, filter.PaginationParams)
}

// GET /api/v1/refunds/:id
func (h *FulfillmentHandler) GetRefund(c *gin.Context) {
	id, ok := paramUUID(c, "id", "refund")
	if !ok {
		return
	}
	refund, err := h.refundService.Get(id)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"refund": refund})
}

// POST /api/v1/refunds
func (h *FulfillmentHandler) CreateRefund(c *gin.Context) {
	var req services.CreateRefundRequest
	if !bindJSON(c, &req) {
		return
	}
	refund, err := h.refundService.Create(actorFrom(c), &req)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.CreatedResponse(c, gin.H{
		"message": message(c, i18n.KeyRefundCreated),
		"refund":  refund,
	})
}

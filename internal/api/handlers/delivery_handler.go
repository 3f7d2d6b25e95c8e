package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/Julienbatt/DringDring-sub000/internal/apperrors"
	"github.com/Julienbatt/DringDring-sub000/internal/services"
	"github.com/Julienbatt/DringDring-sub000/internal/tracing"
)

// DeliveryHandler handles delivery-related HTTP requests
type DeliveryHandler struct {
	deliveryService *services.DeliveryService
	tracer          tracing.Tracer
}

// NewDeliveryHandler creates a new delivery handler
func NewDeliveryHandler(deliveryService *services.DeliveryService, tracer tracing.Tracer) *DeliveryHandler {
	return &DeliveryHandler{
		deliveryService: deliveryService,
		tracer:          tracer,
	}
}

// DeliveryRequest represents an incoming delivery request
type DeliveryRequest struct {
	ShopID       uuid.UUID        `json:"shop_id" binding:"required"`
	ClientID     uuid.UUID        `json:"client_id" binding:"required"`
	DeliveryDate string           `json:"delivery_date" binding:"required"`
	Bags         int              `json:"bags"`
	OrderAmount  *decimal.Decimal `json:"order_amount"`
}

func (r DeliveryRequest) payload() (services.DeliveryPayload, error) {
	date, err := time.Parse("2006-01-02", r.DeliveryDate)
	if err != nil {
		return services.DeliveryPayload{}, apperrors.InvalidInput("invalid delivery_date %q, expected YYYY-MM-DD", r.DeliveryDate)
	}
	return services.DeliveryPayload{
		ClientID:     r.ClientID,
		DeliveryDate: date,
		Bags:         r.Bags,
		OrderAmount:  r.OrderAmount,
	}, nil
}

// actorFromHeaders resolves the acting user from the gateway headers.
func actorFromHeaders(c *gin.Context) services.Actor {
	actor := services.Actor{Name: c.GetHeader("X-Actor-Name")}
	if id, err := uuid.Parse(c.GetHeader("X-Actor-Id")); err == nil {
		actor.ID = id
	}
	if actor.Name == "" {
		actor.Name = "system"
	}
	return actor
}

// respondError maps an error kind to its HTTP status.
func respondError(c *gin.Context, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// HandleCreateDelivery records a delivery for a shop
func (h *DeliveryHandler) HandleCreateDelivery(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-create-delivery")
	defer h.tracer.EndTransaction(txn)

	var req DeliveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	payload, err := req.payload()
	if err != nil {
		respondError(c, err)
		return
	}

	h.tracer.AddAttribute(txn, "shop_id", req.ShopID.String())

	id, err := h.deliveryService.Create(c.Request.Context(), req.ShopID, payload)
	if err != nil {
		h.tracer.RecordError(txn, err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"delivery_id": id})
}

// HandlePreviewDelivery prices a delivery without persisting it
func (h *DeliveryHandler) HandlePreviewDelivery(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-preview-delivery")
	defer h.tracer.EndTransaction(txn)

	var req DeliveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	payload, err := req.payload()
	if err != nil {
		respondError(c, err)
		return
	}

	split, err := h.deliveryService.Preview(c.Request.Context(), req.ShopID, payload)
	if err != nil {
		h.tracer.RecordError(txn, err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, split)
}

// HandleCalculateDelivery prices a pre-inserted delivery once
func (h *DeliveryHandler) HandleCalculateDelivery(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-calculate-delivery")
	defer h.tracer.EndTransaction(txn)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid delivery id"})
		return
	}

	split, err := h.deliveryService.Calculate(c.Request.Context(), id)
	if err != nil {
		h.tracer.RecordError(txn, err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, split)
}

// StatusRequest carries a lifecycle event for a delivery
type StatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// HandleAppendStatus appends a status event to a delivery
func (h *DeliveryHandler) HandleAppendStatus(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-append-status")
	defer h.tracer.EndTransaction(txn)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid delivery id"})
		return
	}

	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.deliveryService.AppendStatus(c.Request.Context(), id, req.Status); err != nil {
		h.tracer.RecordError(txn, err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"delivery_id": id, "status": req.Status})
}

// RegisterRoutes registers the handler's routes
func (h *DeliveryHandler) RegisterRoutes(router *gin.Engine) {
	router.POST("/deliveries/shop", h.HandleCreateDelivery)
	router.POST("/deliveries/shop/preview", h.HandlePreviewDelivery)
	router.POST("/deliveries/:id/calculate", h.HandleCalculateDelivery)
	router.POST("/deliveries/:id/status", h.HandleAppendStatus)
}

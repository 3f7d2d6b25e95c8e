package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Julienbatt/DringDring-sub000/internal/services"
	"github.com/Julienbatt/DringDring-sub000/internal/tracing"
)

// BillingHandler handles freeze, aggregation and document requests
type BillingHandler struct {
	freezeService      *services.FreezeService
	aggregationService *services.AggregationService
	documentService    *services.DocumentService
	tracer             tracing.Tracer
}

// NewBillingHandler creates a new billing handler
func NewBillingHandler(
	freeze *services.FreezeService,
	aggregation *services.AggregationService,
	documents *services.DocumentService,
	tracer tracing.Tracer,
) *BillingHandler {
	return &BillingHandler{
		freezeService:      freeze,
		aggregationService: aggregation,
		documentService:    documents,
		tracer:             tracer,
	}
}

// HandleFreezeShopMonth freezes one shop-month
func (h *BillingHandler) HandleFreezeShopMonth(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-freeze-shop-month")
	defer h.tracer.EndTransaction(txn)

	shopID, err := uuid.Parse(c.Query("shop_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid shop_id"})
		return
	}
	month := c.Query("month")

	period, err := h.freezeService.FreezeShopMonth(c.Request.Context(), shopID, month, actorFromHeaders(c))
	if err != nil {
		h.tracer.RecordError(txn, err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, period)
}

// HandleFreezeRegion freezes every shop of a region for one month
func (h *BillingHandler) HandleFreezeRegion(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-freeze-region")
	defer h.tracer.EndTransaction(txn)

	regionID, err := uuid.Parse(c.Query("region_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid region_id"})
		return
	}
	month := c.Query("month")

	outcomes, err := h.freezeService.FreezeRegion(c.Request.Context(), regionID, month, actorFromHeaders(c))
	if err != nil {
		h.tracer.RecordError(txn, err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"month": month, "shops": outcomes})
}

// HandleAggregate rebuilds the payor documents of a region-month
func (h *BillingHandler) HandleAggregate(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-aggregate-region")
	defer h.tracer.EndTransaction(txn)

	regionID, err := uuid.Parse(c.Query("region_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid region_id"})
		return
	}
	month := c.Query("month")

	run, err := h.aggregationService.Aggregate(c.Request.Context(), regionID, month, actorFromHeaders(c))
	if err != nil {
		h.tracer.RecordError(txn, err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, run)
}

// HandleListDocuments lists the documents of a month
func (h *BillingHandler) HandleListDocuments(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-list-documents")
	defer h.tracer.EndTransaction(txn)

	docs, err := h.documentService.List(c.Request.Context(), c.Query("month"), c.Query("recipient_type"))
	if err != nil {
		h.tracer.RecordError(txn, err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"documents": docs})
}

// HandleDocumentPDF renders or fetches one document PDF
func (h *BillingHandler) HandleDocumentPDF(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-document-pdf")
	defer h.tracer.EndTransaction(txn)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid document id"})
		return
	}
	preview := c.Query("preview") == "1"

	pdf, filename, err := h.documentService.Render(c.Request.Context(), id, preview, actorFromHeaders(c))
	if err != nil {
		h.tracer.RecordError(txn, err)
		respondError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/pdf", pdf)
}

// HandleDocumentsZip bundles a month's PDFs into one archive
func (h *BillingHandler) HandleDocumentsZip(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-documents-zip")
	defer h.tracer.EndTransaction(txn)

	archive, filename, err := h.documentService.Zip(c.Request.Context(), c.Query("month"), c.Query("recipient_type"))
	if err != nil {
		h.tracer.RecordError(txn, err)
		respondError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/zip", archive)
}

// RegisterRoutes registers the handler's routes
func (h *BillingHandler) RegisterRoutes(router *gin.Engine) {
	router.POST("/deliveries/shop/freeze", h.HandleFreezeShopMonth)
	router.POST("/billing/region/freeze", h.HandleFreezeRegion)
	router.POST("/billing/region/aggregate", h.HandleAggregate)
	router.GET("/billing/documents", h.HandleListDocuments)
	router.GET("/billing/documents/zip", h.HandleDocumentsZip)
	router.GET("/billing/documents/:id/pdf", h.HandleDocumentPDF)
}

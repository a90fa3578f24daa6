package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/genuinocomercialatacadistaltda-boop/erp-demo-railway-sub000/internal/models"
	"github.com/genuinocomercialatacadistaltda-boop/erp-demo-railway-sub000/internal/services"
	"github.com/genuinocomercialatacadistaltda-boop/erp-demo-railway-sub000/internal/utils"
)

// RestInvoiceHandler handles REST requests related to invoices.
type RestInvoiceHandler struct {
	invoiceService services.IInvoiceService
	entryService   services.IEntryService
}

// NewRestInvoiceHandler creates a new RestInvoiceHandler.
func NewRestInvoiceHandler(invoiceService services.IInvoiceService, entryService services.IEntryService) *RestInvoiceHandler {
	return &RestInvoiceHandler{
		invoiceService: invoiceService,
		entryService:   entryService,
	}
}

// InvoiceDetail is the response of GET /v1/invoice/:id.
type InvoiceDetail struct {
	Invoice *models.Invoice `json:"invoice"`
	Entries []models.Entry  `json:"entries"`
}

// GetInvoiceByID handles GET /v1/invoice/:id
func (h *RestInvoiceHandler) GetInvoiceByID(c *gin.Context) {
	invoiceID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	invoice, err := h.invoiceService.FindByID(c.Request.Context(), invoiceID)
	if err != nil {
		abortWithError(c, err, "Failed to retrieve invoice")
		return
	}
	entries, err := h.entryService.ListByInvoice(c.Request.Context(), invoiceID)
	if err != nil {
		abortWithError(c, err, "Failed to retrieve invoice entries")
		return
	}

	c.JSON(http.StatusOK, InvoiceDetail{Invoice: invoice, Entries: entries})
}

// CloseInvoice handles POST /v1/invoice/:id/close
func (h *RestInvoiceHandler) CloseInvoice(c *gin.Context) {
	invoiceID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	invoice, err := h.invoiceService.Close(c.Request.Context(), invoiceID)
	if err != nil {
		abortWithError(c, err, "Failed to close invoice")
		return
	}
	c.JSON(http.StatusOK, invoice)
}

// PayInvoiceRequest is the body of POST /v1/invoice/:id/pay.
type PayInvoiceRequest struct {
	BankAccountID utils.SixID `json:"bank_account_id" binding:"required"`
	PaymentDate   *time.Time  `json:"payment_date,omitempty"`
}

// PayInvoice handles POST /v1/invoice/:id/pay
func (h *RestInvoiceHandler) PayInvoice(c *gin.Context) {
	invoiceID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req PayInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	paymentDate := time.Now().UTC()
	if req.PaymentDate != nil {
		paymentDate = req.PaymentDate.UTC()
	}

	invoice, err := h.invoiceService.Pay(c.Request.Context(), invoiceID, req.BankAccountID, paymentDate)
	if err != nil {
		abortWithError(c, err, "Failed to pay invoice")
		return
	}
	c.JSON(http.StatusOK, invoice)
}

// ReopenInvoice handles POST /v1/invoice/:id/reopen
func (h *RestInvoiceHandler) ReopenInvoice(c *gin.Context) {
	invoiceID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	invoice, err := h.invoiceService.Reopen(c.Request.Context(), invoiceID)
	if err != nil {
		abortWithError(c, err, "Failed to reopen invoice")
		return
	}
	c.JSON(http.StatusOK, invoice)
}

// DeleteInvoice handles DELETE /v1/invoice/:id
func (h *RestInvoiceHandler) DeleteInvoice(c *gin.Context) {
	invoiceID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.invoiceService.Delete(c.Request.Context(), invoiceID); err != nil {
		abortWithError(c, err, "Failed to delete invoice")
		return
	}
	c.Status(http.StatusNoContent)
}

package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/genuinocomercialatacadistaltda-boop/erp-demo-railway-sub000/internal/services"
	"github.com/genuinocomercialatacadistaltda-boop/erp-demo-railway-sub000/internal/utils"
)

// RestCardHandler handles REST requests related to credit cards.
type RestCardHandler struct {
	cardService        services.ICardService
	invoiceService     services.IInvoiceService
	installmentService services.IInstallmentService
	entryService       services.IEntryService
}

// NewRestCardHandler creates a new RestCardHandler.
func NewRestCardHandler(cardService services.ICardService, invoiceService services.IInvoiceService, installmentService services.IInstallmentService, entryService services.IEntryService) *RestCardHandler {
	return &RestCardHandler{
		cardService:        cardService,
		invoiceService:     invoiceService,
		installmentService: installmentService,
		entryService:       entryService,
	}
}

func parseIDParam(c *gin.Context, name string) (utils.SixID, bool) {
	id, err := utils.ParseSixID(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID format"})
		return utils.SixID{}, false
	}
	return id, true
}

// CreateCard handles POST /v1/card
func (h *RestCardHandler) CreateCard(c *gin.Context) {
	var input services.CardInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	card, err := h.cardService.CreateCard(c.Request.Context(), input)
	if err != nil {
		abortWithError(c, err, "Failed to create card")
		return
	}
	c.JSON(http.StatusCreated, card)
}

// ListCards handles GET /v1/card
func (h *RestCardHandler) ListCards(c *gin.Context) {
	cards, err := h.cardService.ListCards(c.Request.Context())
	if err != nil {
		abortWithError(c, err, "Failed to list cards")
		return
	}
	c.JSON(http.StatusOK, cards)
}

// GetStatement handles GET /v1/card/:id
func (h *RestCardHandler) GetStatement(c *gin.Context) {
	cardID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	statement, err := h.cardService.GetStatement(c.Request.Context(), cardID)
	if err != nil {
		abortWithError(c, err, "Failed to build card statement")
		return
	}
	if statement.FromCache {
		c.Header("X-Cache", "HIT")
	}
	c.JSON(http.StatusOK, statement)
}

// UpdateCard handles PATCH /v1/card/:id
func (h *RestCardHandler) UpdateCard(c *gin.Context) {
	cardID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var update services.CardUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	card, err := h.cardService.UpdateCard(c.Request.Context(), cardID, update)
	if err != nil {
		abortWithError(c, err, "Failed to update card")
		return
	}
	c.JSON(http.StatusOK, card)
}

// ActivateCard handles POST /v1/card/:id/activate
func (h *RestCardHandler) ActivateCard(c *gin.Context) {
	h.setActive(c, true)
}

// DeactivateCard handles POST /v1/card/:id/deactivate
func (h *RestCardHandler) DeactivateCard(c *gin.Context) {
	h.setActive(c, false)
}

func (h *RestCardHandler) setActive(c *gin.Context, active bool) {
	cardID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var err error
	if active {
		err = h.cardService.ActivateCard(c.Request.Context(), cardID)
	} else {
		err = h.cardService.DeactivateCard(c.Request.Context(), cardID)
	}
	if err != nil {
		abortWithError(c, err, "Failed to update card")
		return
	}
	c.JSON(http.StatusOK, gin.H{"active": active})
}

// DeleteCard handles DELETE /v1/card/:id
func (h *RestCardHandler) DeleteCard(c *gin.Context) {
	cardID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.cardService.DeleteCard(c.Request.Context(), cardID); err != nil {
		abortWithError(c, err, "Failed to delete card")
		return
	}
	c.Status(http.StatusNoContent)
}

// PurchaseRequest is the body of POST /v1/card/:id/purchase.
type PurchaseRequest struct {
	Description  string       `json:"description" binding:"required"`
	TotalCents   int64        `json:"total_cents" binding:"required,gt=0"`
	Installments int          `json:"installments" binding:"required,min=1"`
	PurchaseDate time.Time    `json:"purchase_date" binding:"required"`
	CategoryID   *utils.SixID `json:"category_id,omitempty"`
}

// Purchase handles POST /v1/card/:id/purchase
func (h *RestCardHandler) Purchase(c *gin.Context) {
	cardID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.installmentService.Allocate(c.Request.Context(), services.AllocateInput{
		CardID:       cardID,
		Description:  req.Description,
		TotalCents:   req.TotalCents,
		Installments: req.Installments,
		PurchaseDate: req.PurchaseDate,
		CategoryID:   req.CategoryID,
	})
	if err != nil {
		abortWithError(c, err, "Failed to allocate purchase")
		return
	}
	c.JSON(http.StatusCreated, result)
}

// CreateInvoiceRequest is the body of POST /v1/card/:id/invoice.
type CreateInvoiceRequest struct {
	Year  int `json:"year" binding:"required"`
	Month int `json:"month" binding:"required,min=1,max=12"`
}

// CreateInvoice handles POST /v1/card/:id/invoice
func (h *RestCardHandler) CreateInvoice(c *gin.Context) {
	cardID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	invoice, err := h.invoiceService.Create(c.Request.Context(), cardID, req.Year, time.Month(req.Month))
	if err != nil {
		abortWithError(c, err, "Failed to create invoice")
		return
	}
	c.JSON(http.StatusCreated, invoice)
}

// ListUnassigned handles GET /v1/card/:id/unassigned
func (h *RestCardHandler) ListUnassigned(c *gin.Context) {
	cardID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	entries, err := h.entryService.ListUnassigned(c.Request.Context(), cardID)
	if err != nil {
		abortWithError(c, err, "Failed to list unassigned expenses")
		return
	}
	c.JSON(http.StatusOK, entries)
}

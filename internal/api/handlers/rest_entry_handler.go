package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/genuinocomercialatacadistaltda-boop/erp-demo-railway-sub000/internal/models"
	"github.com/genuinocomercialatacadistaltda-boop/erp-demo-railway-sub000/internal/services"
	"github.com/genuinocomercialatacadistaltda-boop/erp-demo-railway-sub000/internal/utils"
)

// RestEntryHandler handles REST requests for invoice expenses and credits.
type RestEntryHandler struct {
	entryService services.IEntryService
}

// NewRestEntryHandler creates a new RestEntryHandler.
func NewRestEntryHandler(entryService services.IEntryService) *RestEntryHandler {
	return &RestEntryHandler{entryService: entryService}
}

// AddExpense handles POST /v1/invoice/:id/expense
func (h *RestEntryHandler) AddExpense(c *gin.Context) {
	invoiceID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var input services.ExpenseInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	input.InvoiceID = invoiceID

	entry, err := h.entryService.AddExpense(c.Request.Context(), input)
	if err != nil {
		abortWithError(c, err, "Failed to add expense")
		return
	}
	c.JSON(http.StatusCreated, entry)
}

// UpdateExpense handles PATCH /v1/expense/:id
func (h *RestEntryHandler) UpdateExpense(c *gin.Context) {
	entryID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var update services.ExpenseUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entry, err := h.entryService.UpdateExpense(c.Request.Context(), entryID, update)
	if err != nil {
		abortWithError(c, err, "Failed to update expense")
		return
	}
	c.JSON(http.StatusOK, entry)
}

// DeleteExpense handles DELETE /v1/expense/:id
func (h *RestEntryHandler) DeleteExpense(c *gin.Context) {
	entryID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.entryService.DeleteExpense(c.Request.Context(), entryID); err != nil {
		abortWithError(c, err, "Failed to delete expense")
		return
	}
	c.Status(http.StatusNoContent)
}

// ReorderRequest is the body of POST /v1/expense/:id/reorder.
type ReorderRequest struct {
	Direction models.ReorderDirection `json:"direction" binding:"required"`
}

// ReorderExpense handles POST /v1/expense/:id/reorder
func (h *RestEntryHandler) ReorderExpense(c *gin.Context) {
	entryID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req ReorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !req.Direction.IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "direction must be 'up' or 'down'"})
		return
	}

	entry, err := h.entryService.Reorder(c.Request.Context(), entryID, req.Direction)
	if err != nil {
		abortWithError(c, err, "Failed to reorder expense")
		return
	}
	c.JSON(http.StatusOK, entry)
}

// AssignRequest is the body of POST /v1/expense/:id/assign.
type AssignRequest struct {
	InvoiceID utils.SixID `json:"invoice_id" binding:"required"`
}

// AssignExpense handles POST /v1/expense/:id/assign
func (h *RestEntryHandler) AssignExpense(c *gin.Context) {
	entryID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req AssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entry, err := h.entryService.AssignExpense(c.Request.Context(), entryID, req.InvoiceID)
	if err != nil {
		abortWithError(c, err, "Failed to assign expense")
		return
	}
	c.JSON(http.StatusOK, entry)
}

// AddCredit handles POST /v1/invoice/:id/credit
func (h *RestEntryHandler) AddCredit(c *gin.Context) {
	invoiceID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var input services.CreditInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	input.InvoiceID = invoiceID

	entry, err := h.entryService.AddCredit(c.Request.Context(), input)
	if err != nil {
		abortWithError(c, err, "Failed to add credit")
		return
	}
	c.JSON(http.StatusCreated, entry)
}

// DeleteCredit handles DELETE /v1/credit/:id
func (h *RestEntryHandler) DeleteCredit(c *gin.Context) {
	entryID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.entryService.DeleteCredit(c.Request.Context(), entryID); err != nil {
		abortWithError(c, err, "Failed to delete credit")
		return
	}
	c.Status(http.StatusNoContent)
}

package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/genuinocomercialatacadistaltda-boop/erp-demo-railway-sub000/internal/api/handlers"
	"github.com/genuinocomercialatacadistaltda-boop/erp-demo-railway-sub000/internal/models"
	"github.com/genuinocomercialatacadistaltda-boop/erp-demo-railway-sub000/internal/services"
	"github.com/genuinocomercialatacadistaltda-boop/erp-demo-railway-sub000/internal/utils"
)

func newEntryTestRouter() (*gin.Engine, *handlers.RestEntryHandler, *MockEntryService) {
	gin.SetMode(gin.TestMode)
	mockEntrySvc := new(MockEntryService)
	handler := handlers.NewRestEntryHandler(mockEntrySvc)
	r := gin.New()
	return r, handler, mockEntrySvc
}

func TestRestEntryHandler_AddExpense_Success(t *testing.T) {
	r, handler, mockEntrySvc := newEntryTestRouter()
	r.POST("/v1/invoice/:id/expense", handler.AddExpense)

	invoiceID := utils.NewSixID()
	purchaseDate := time.Date(2025, time.March, 5, 0, 0, 0, 0, time.UTC)
	expectedInput := services.ExpenseInput{
		InvoiceID:    invoiceID,
		Description:  "Freight",
		AmountCents:  30000,
		PurchaseDate: purchaseDate,
	}
	created := &models.Entry{
		Base:         models.NewBase(),
		Kind:         models.EntryExpense,
		InvoiceID:    &invoiceID,
		Description:  "Freight",
		AmountCents:  30000,
		DisplayOrder: 1,
	}
	mockEntrySvc.On("AddExpense", mock.Anything, expectedInput).Return(created, nil)

	body, _ := json.Marshal(gin.H{
		"description":   "Freight",
		"amount_cents":  30000,
		"purchase_date": purchaseDate,
	})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/invoice/"+invoiceID.String()+"/expense", bytes.NewReader(body))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	var respBody models.Entry
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &respBody))
	assert.Equal(t, 1, respBody.DisplayOrder)
	mockEntrySvc.AssertExpectations(t)
}

func TestRestEntryHandler_AddExpense_ClosedInvoice(t *testing.T) {
	r, handler, mockEntrySvc := newEntryTestRouter()
	r.POST("/v1/invoice/:id/expense", handler.AddExpense)

	invoiceID := utils.NewSixID()
	mockEntrySvc.On("AddExpense", mock.Anything, mock.Anything).Return(nil, services.ErrInvoiceNotEditable)

	body, _ := json.Marshal(gin.H{
		"description":   "Too late",
		"amount_cents":  500,
		"purchase_date": time.Now().UTC(),
	})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/invoice/"+invoiceID.String()+"/expense", bytes.NewReader(body))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
	mockEntrySvc.AssertExpectations(t)
}

func TestRestEntryHandler_ReorderExpense_Success(t *testing.T) {
	r, handler, mockEntrySvc := newEntryTestRouter()
	r.POST("/v1/expense/:id/reorder", handler.ReorderExpense)

	entryID := utils.NewSixID()
	moved := &models.Entry{Base: models.Base{ID: entryID}, Kind: models.EntryExpense, DisplayOrder: 2}
	mockEntrySvc.On("Reorder", mock.Anything, entryID, models.ReorderUp).Return(moved, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/expense/"+entryID.String()+"/reorder", bytes.NewReader([]byte(`{"direction":"up"}`)))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var respBody models.Entry
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &respBody))
	assert.Equal(t, 2, respBody.DisplayOrder)
	mockEntrySvc.AssertExpectations(t)
}

func TestRestEntryHandler_ReorderExpense_BadDirection(t *testing.T) {
	r, handler, mockEntrySvc := newEntryTestRouter()
	r.POST("/v1/expense/:id/reorder", handler.ReorderExpense)

	entryID := utils.NewSixID()

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/expense/"+entryID.String()+"/reorder", bytes.NewReader([]byte(`{"direction":"sideways"}`)))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockEntrySvc.AssertNotCalled(t, "Reorder")
}

func TestRestEntryHandler_AssignExpense_Success(t *testing.T) {
	r, handler, mockEntrySvc := newEntryTestRouter()
	r.POST("/v1/expense/:id/assign", handler.AssignExpense)

	entryID := utils.NewSixID()
	invoiceID := utils.NewSixID()
	assigned := &models.Entry{Base: models.Base{ID: entryID}, InvoiceID: &invoiceID, DisplayOrder: 3}
	mockEntrySvc.On("AssignExpense", mock.Anything, entryID, invoiceID).Return(assigned, nil)

	body, _ := json.Marshal(gin.H{"invoice_id": invoiceID.String()})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/expense/"+entryID.String()+"/assign", bytes.NewReader(body))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	mockEntrySvc.AssertExpectations(t)
}

func TestRestEntryHandler_AddCredit_Success(t *testing.T) {
	r, handler, mockEntrySvc := newEntryTestRouter()
	r.POST("/v1/invoice/:id/credit", handler.AddCredit)

	invoiceID := utils.NewSixID()
	creditDate := time.Date(2025, time.March, 20, 0, 0, 0, 0, time.UTC)
	expectedInput := services.CreditInput{
		InvoiceID:   invoiceID,
		Description: "Returned goods",
		AmountCents: 4599,
		CreditDate:  creditDate,
	}
	created := &models.Entry{
		Base:        models.NewBase(),
		Kind:        models.EntryCredit,
		InvoiceID:   &invoiceID,
		AmountCents: 4599,
	}
	mockEntrySvc.On("AddCredit", mock.Anything, expectedInput).Return(created, nil)

	body, _ := json.Marshal(gin.H{
		"description":  "Returned goods",
		"amount_cents": 4599,
		"credit_date":  creditDate,
	})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/invoice/"+invoiceID.String()+"/credit", bytes.NewReader(body))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	mockEntrySvc.AssertExpectations(t)
}

func TestRestEntryHandler_DeleteExpense_NotFound(t *testing.T) {
	r, handler, mockEntrySvc := newEntryTestRouter()
	r.DELETE("/v1/expense/:id", handler.DeleteExpense)

	entryID := utils.NewSixID()
	mockEntrySvc.On("DeleteExpense", mock.Anything, entryID).Return(services.ErrEntryNotFound)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("DELETE", "/v1/expense/"+entryID.String(), nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	mockEntrySvc.AssertExpectations(t)
}

func TestRestEntryHandler_DeleteCredit_Success(t *testing.T) {
	r, handler, mockEntrySvc := newEntryTestRouter()
	r.DELETE("/v1/credit/:id", handler.DeleteCredit)

	entryID := utils.NewSixID()
	mockEntrySvc.On("DeleteCredit", mock.Anything, entryID).Return(nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("DELETE", "/v1/credit/"+entryID.String(), nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	mockEntrySvc.AssertExpectations(t)
}

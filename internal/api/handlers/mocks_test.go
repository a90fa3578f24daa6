package handlers_test

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/genuinocomercialatacadistaltda-boop/erp-demo-railway-sub000/internal/models"
	"github.com/genuinocomercialatacadistaltda-boop/erp-demo-railway-sub000/internal/services"
	"github.com/genuinocomercialatacadistaltda-boop/erp-demo-railway-sub000/internal/utils"
)

// --- Mocks ---

// MockCardService
type MockCardService struct {
	mock.Mock
}

func (m *MockCardService) CreateCard(ctx context.Context, input services.CardInput) (*models.CreditCard, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CreditCard), args.Error(1)
}

func (m *MockCardService) UpdateCard(ctx context.Context, cardID utils.SixID, update services.CardUpdate) (*models.CreditCard, error) {
	args := m.Called(ctx, cardID, update)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CreditCard), args.Error(1)
}

func (m *MockCardService) ActivateCard(ctx context.Context, cardID utils.SixID) error {
	args := m.Called(ctx, cardID)
	return args.Error(0)
}

func (m *MockCardService) DeactivateCard(ctx context.Context, cardID utils.SixID) error {
	args := m.Called(ctx, cardID)
	return args.Error(0)
}

func (m *MockCardService) DeleteCard(ctx context.Context, cardID utils.SixID) error {
	args := m.Called(ctx, cardID)
	return args.Error(0)
}

func (m *MockCardService) FindCardByID(ctx context.Context, cardID utils.SixID) (*models.CreditCard, error) {
	args := m.Called(ctx, cardID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CreditCard), args.Error(1)
}

func (m *MockCardService) ListCards(ctx context.Context) ([]models.CreditCard, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.CreditCard), args.Error(1)
}

func (m *MockCardService) AvailableLimit(ctx context.Context, cardID utils.SixID) (int64, int64, error) {
	args := m.Called(ctx, cardID)
	return args.Get(0).(int64), args.Get(1).(int64), args.Error(2)
}

func (m *MockCardService) GetStatement(ctx context.Context, cardID utils.SixID) (*models.CardStatement, error) {
	args := m.Called(ctx, cardID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CardStatement), args.Error(1)
}

// MockInvoiceService
type MockInvoiceService struct {
	mock.Mock
}

func (m *MockInvoiceService) Create(ctx context.Context, cardID utils.SixID, year int, month time.Month) (*models.Invoice, error) {
	args := m.Called(ctx, cardID, year, month)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Invoice), args.Error(1)
}

func (m *MockInvoiceService) EnsureInvoice(ctx context.Context, card *models.CreditCard, reference time.Time) (*models.Invoice, error) {
	args := m.Called(ctx, card, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Invoice), args.Error(1)
}

func (m *MockInvoiceService) FindByID(ctx context.Context, id utils.SixID) (*models.Invoice, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Invoice), args.Error(1)
}

func (m *MockInvoiceService) FindByReference(ctx context.Context, cardID utils.SixID, reference time.Time) (*models.Invoice, error) {
	args := m.Called(ctx, cardID, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Invoice), args.Error(1)
}

func (m *MockInvoiceService) ListByCard(ctx context.Context, cardID utils.SixID) ([]models.Invoice, error) {
	args := m.Called(ctx, cardID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Invoice), args.Error(1)
}

func (m *MockInvoiceService) Close(ctx context.Context, invoiceID utils.SixID) (*models.Invoice, error) {
	args := m.Called(ctx, invoiceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Invoice), args.Error(1)
}

func (m *MockInvoiceService) Pay(ctx context.Context, invoiceID, bankAccountID utils.SixID, paymentDate time.Time) (*models.Invoice, error) {
	args := m.Called(ctx, invoiceID, bankAccountID, paymentDate)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Invoice), args.Error(1)
}

func (m *MockInvoiceService) Reopen(ctx context.Context, invoiceID utils.SixID) (*models.Invoice, error) {
	args := m.Called(ctx, invoiceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Invoice), args.Error(1)
}

func (m *MockInvoiceService) Delete(ctx context.Context, invoiceID utils.SixID) error {
	args := m.Called(ctx, invoiceID)
	return args.Error(0)
}

func (m *MockInvoiceService) RecomputeTotal(ctx context.Context, invoiceID utils.SixID) (int64, error) {
	args := m.Called(ctx, invoiceID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockInvoiceService) CloseElapsed(ctx context.Context, now time.Time) (int, error) {
	args := m.Called(ctx, now)
	return args.Int(0), args.Error(1)
}

func (m *MockInvoiceService) MarkOverdue(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

// MockEntryService
type MockEntryService struct {
	mock.Mock
}

func (m *MockEntryService) AddExpense(ctx context.Context, input services.ExpenseInput) (*models.Entry, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Entry), args.Error(1)
}

func (m *MockEntryService) UpdateExpense(ctx context.Context, entryID utils.SixID, update services.ExpenseUpdate) (*models.Entry, error) {
	args := m.Called(ctx, entryID, update)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Entry), args.Error(1)
}

func (m *MockEntryService) DeleteExpense(ctx context.Context, entryID utils.SixID) error {
	args := m.Called(ctx, entryID)
	return args.Error(0)
}

func (m *MockEntryService) AssignExpense(ctx context.Context, entryID, invoiceID utils.SixID) (*models.Entry, error) {
	args := m.Called(ctx, entryID, invoiceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Entry), args.Error(1)
}

func (m *MockEntryService) AddCredit(ctx context.Context, input services.CreditInput) (*models.Entry, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Entry), args.Error(1)
}

func (m *MockEntryService) DeleteCredit(ctx context.Context, entryID utils.SixID) error {
	args := m.Called(ctx, entryID)
	return args.Error(0)
}

func (m *MockEntryService) Reorder(ctx context.Context, entryID utils.SixID, direction models.ReorderDirection) (*models.Entry, error) {
	args := m.Called(ctx, entryID, direction)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Entry), args.Error(1)
}

func (m *MockEntryService) ListByInvoice(ctx context.Context, invoiceID utils.SixID) ([]models.Entry, error) {
	args := m.Called(ctx, invoiceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Entry), args.Error(1)
}

func (m *MockEntryService) ListUnassigned(ctx context.Context, cardID utils.SixID) ([]models.Entry, error) {
	args := m.Called(ctx, cardID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Entry), args.Error(1)
}

// MockInstallmentService
type MockInstallmentService struct {
	mock.Mock
}

func (m *MockInstallmentService) Allocate(ctx context.Context, input services.AllocateInput) (*services.AllocationResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.AllocationResult), args.Error(1)
}

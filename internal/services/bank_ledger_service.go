package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/genuinocomercialatacadistaltda-boop/erp-demo-railway-sub000/internal/db"
	"github.com/genuinocomercialatacadistaltda-boop/erp-demo-railway-sub000/internal/models"
	"github.com/genuinocomercialatacadistaltda-boop/erp-demo-railway-sub000/internal/utils"
)

// IBankLedgerService records settlements against bank accounts. Invoice
// payment is its only caller inside this engine; the accounts-payable screens
// read the same collection.
type IBankLedgerService interface {
	RecordSettlement(ctx context.Context, bankAccountID, invoiceID utils.SixID, amountCents int64, date time.Time) (*models.BankTransaction, error)
	FindByInvoice(ctx context.Context, invoiceID utils.SixID) ([]models.BankTransaction, error)
}

const (
	bankAccountsCollection     = "bank_accounts"
	bankTransactionsCollection = "bank_transactions"
)

type bankLedgerService struct {
	db *mongo.Database
}

// NewBankLedgerService creates a new BankLedgerService.
func NewBankLedgerService(db *mongo.Database) IBankLedgerService {
	return &bankLedgerService{db: db}
}

// RecordSettlement writes one settlement row. The bank account must exist and
// be active; the reference is a fresh UUID so external reconciliation can
// match the row even if the invoice is later reopened and paid again.
func (s *bankLedgerService) RecordSettlement(ctx context.Context, bankAccountID, invoiceID utils.SixID, amountCents int64, date time.Time) (*models.BankTransaction, error) {
	var account models.BankAccount
	err := s.db.Collection(bankAccountsCollection).
		FindOne(ctx, bson.M{"_id": bankAccountID, "active": true}).
		Decode(&account)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrBankAccountNotFound
		}
		return nil, fmt.Errorf("failed to look up bank account %s: %w", bankAccountID.String(), err)
	}

	txn := &models.BankTransaction{
		BankAccountID: bankAccountID,
		InvoiceID:     invoiceID,
		AmountCents:   amountCents,
		Date:          date,
		Reference:     uuid.NewString(),
		CreatedAt:     time.Now().UTC(),
	}

	collection := s.db.Collection(bankTransactionsCollection)
	insertErr := db.Try(func() error {
		txn.GenID()
		_, err := collection.InsertOne(ctx, txn)
		return err
	})
	if insertErr != nil {
		return nil, fmt.Errorf("failed to record settlement for invoice %s: %w", invoiceID.String(), insertErr)
	}
	return txn, nil
}

// FindByInvoice returns all settlement rows recorded for an invoice.
func (s *bankLedgerService) FindByInvoice(ctx context.Context, invoiceID utils.SixID) ([]models.BankTransaction, error) {
	cursor, err := s.db.Collection(bankTransactionsCollection).Find(ctx, bson.M{"invoice_id": invoiceID})
	if err != nil {
		return nil, fmt.Errorf("failed to query settlements for invoice %s: %w", invoiceID.String(), err)
	}
	defer cursor.Close(ctx)

	var txns []models.BankTransaction
	if err := cursor.All(ctx, &txns); err != nil {
		return nil, fmt.Errorf("failed to decode settlements for invoice %s: %w", invoiceID.String(), err)
	}
	return txns, nil
}

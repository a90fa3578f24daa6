package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/genuinocomercialatacadistaltda-boop/erp-demo-railway-sub000/internal/models"
	"github.com/genuinocomercialatacadistaltda-boop/erp-demo-railway-sub000/internal/utils"
)

// IPayableService maintains the accounts-payable mirror of closed invoices.
// One payable per invoice, enforced by a unique index on invoice_id; every
// write is an upsert or a delete so the lifecycle calls are idempotent.
type IPayableService interface {
	CreateForInvoice(ctx context.Context, invoice *models.Invoice, description string) (*models.Payable, error)
	MarkSettled(ctx context.Context, invoiceID utils.SixID, settledAt time.Time) error
	RemoveForInvoice(ctx context.Context, invoiceID utils.SixID) error
	FindByInvoice(ctx context.Context, invoiceID utils.SixID) (*models.Payable, error)
}

const payablesCollection = "payables"

type payableService struct {
	db *mongo.Database
}

// NewPayableService creates a new PayableService.
func NewPayableService(db *mongo.Database) IPayableService {
	return &payableService{db: db}
}

// CreateForInvoice upserts the payable mirroring invoice. Re-closing an
// invoice (reopen, edit, close again) refreshes the amount and due date on
// the existing row instead of growing a second one.
func (s *payableService) CreateForInvoice(ctx context.Context, invoice *models.Invoice, description string) (*models.Payable, error) {
	now := time.Now().UTC()
	update := bson.M{
		"$set": bson.M{
			"card_id":      invoice.CardID,
			"description":  description,
			"amount_cents": invoice.TotalCents,
			"due_date":     invoice.DueDate,
		},
		"$unset": bson.M{"settled_at": ""},
		"$setOnInsert": bson.M{
			"_id":        utils.NewSixID(),
			"invoice_id": invoice.ID,
			"created_at": now,
		},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var payable models.Payable
	err := s.db.Collection(payablesCollection).
		FindOneAndUpdate(ctx, bson.M{"invoice_id": invoice.ID}, update, opts).
		Decode(&payable)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert payable for invoice %s: %w", invoice.ID.String(), err)
	}
	return &payable, nil
}

// MarkSettled stamps the payable for invoiceID as settled. Missing payables
// are not an error: invoices created before the payable mirror existed have
// none.
func (s *payableService) MarkSettled(ctx context.Context, invoiceID utils.SixID, settledAt time.Time) error {
	_, err := s.db.Collection(payablesCollection).UpdateOne(ctx,
		bson.M{"invoice_id": invoiceID},
		bson.M{"$set": bson.M{"settled_at": settledAt}})
	if err != nil {
		return fmt.Errorf("failed to settle payable for invoice %s: %w", invoiceID.String(), err)
	}
	return nil
}

// RemoveForInvoice deletes the payable mirroring invoiceID, if any.
func (s *payableService) RemoveForInvoice(ctx context.Context, invoiceID utils.SixID) error {
	_, err := s.db.Collection(payablesCollection).DeleteOne(ctx, bson.M{"invoice_id": invoiceID})
	if err != nil {
		return fmt.Errorf("failed to remove payable for invoice %s: %w", invoiceID.String(), err)
	}
	return nil
}

// FindByInvoice returns the payable mirroring invoiceID, or nil when the
// invoice has none.
func (s *payableService) FindByInvoice(ctx context.Context, invoiceID utils.SixID) (*models.Payable, error) {
	var payable models.Payable
	err := s.db.Collection(payablesCollection).
		FindOne(ctx, bson.M{"invoice_id": invoiceID}).
		Decode(&payable)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find payable for invoice %s: %w", invoiceID.String(), err)
	}
	return &payable, nil
}

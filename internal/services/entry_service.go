package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/genuinocomercialatacadistaltda-boop/erp-demo-railway-sub000/internal/cache"
	"github.com/genuinocomercialatacadistaltda-boop/erp-demo-railway-sub000/internal/config"
	"github.com/genuinocomercialatacadistaltda-boop/erp-demo-railway-sub000/internal/db"
	"github.com/genuinocomercialatacadistaltda-boop/erp-demo-railway-sub000/internal/models"
	"github.com/genuinocomercialatacadistaltda-boop/erp-demo-railway-sub000/internal/utils"
)

// IEntryService manages the ledger rows of an invoice: expenses with their
// dense display ordering, and credits.
type IEntryService interface {
	AddExpense(ctx context.Context, input ExpenseInput) (*models.Entry, error)
	UpdateExpense(ctx context.Context, entryID utils.SixID, update ExpenseUpdate) (*models.Entry, error)
	DeleteExpense(ctx context.Context, entryID utils.SixID) error
	AssignExpense(ctx context.Context, entryID, invoiceID utils.SixID) (*models.Entry, error)
	AddCredit(ctx context.Context, input CreditInput) (*models.Entry, error)
	DeleteCredit(ctx context.Context, entryID utils.SixID) error
	Reorder(ctx context.Context, entryID utils.SixID, direction models.ReorderDirection) (*models.Entry, error)
	ListByInvoice(ctx context.Context, invoiceID utils.SixID) ([]models.Entry, error)
	ListUnassigned(ctx context.Context, cardID utils.SixID) ([]models.Entry, error)
}

// ExpenseInput holds the fields needed to post an expense to an open invoice.
type ExpenseInput struct {
	InvoiceID    utils.SixID  `json:"invoice_id"`
	Description  string       `json:"description" binding:"required"`
	AmountCents  int64        `json:"amount_cents" binding:"required,gt=0"`
	PurchaseDate time.Time    `json:"purchase_date" binding:"required"`
	CategoryID   *utils.SixID `json:"category_id,omitempty"`

	// Set by the installment allocator; zero for a plain expense.
	InstallmentNumber int `json:"-"`
	Installments      int `json:"-"`
}

// ExpenseUpdate carries optional expense field updates; nil means unchanged.
type ExpenseUpdate struct {
	Description  *string      `json:"description,omitempty"`
	AmountCents  *int64       `json:"amount_cents,omitempty" binding:"omitempty,gt=0"`
	PurchaseDate *time.Time   `json:"purchase_date,omitempty"`
	CategoryID   *utils.SixID `json:"category_id,omitempty"`
}

// CreditInput holds the fields needed to post a credit against an invoice.
type CreditInput struct {
	InvoiceID       utils.SixID `json:"invoice_id"`
	Description     string      `json:"description" binding:"required"`
	AmountCents     int64       `json:"amount_cents" binding:"required,gt=0"`
	CreditDate      time.Time   `json:"credit_date" binding:"required"`
	ReferenceNumber string      `json:"reference_number,omitempty"`
	Notes           string      `json:"notes,omitempty"`
}

const reorderMaxAttempts = 3

type entryService struct {
	db    *mongo.Database
	cfg   *config.Config
	cache *cache.StatementCache
}

// NewEntryService creates a new EntryService.
func NewEntryService(database *mongo.Database, cfg *config.Config, statementCache *cache.StatementCache) IEntryService {
	return &entryService{db: database, cfg: cfg, cache: statementCache}
}

func (s *entryService) findEntry(ctx context.Context, entryID utils.SixID, kind models.EntryKind) (*models.Entry, error) {
	var entry models.Entry
	err := s.db.Collection(entriesCollection).
		FindOne(ctx, bson.M{"_id": entryID, "kind": kind}).
		Decode(&entry)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("failed to find entry %s: %w", entryID.String(), err)
	}
	return &entry, nil
}

func (s *entryService) findInvoice(ctx context.Context, invoiceID utils.SixID) (*models.Invoice, error) {
	var invoice models.Invoice
	err := s.db.Collection(invoicesCollection).FindOne(ctx, bson.M{"_id": invoiceID}).Decode(&invoice)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("failed to find invoice %s: %w", invoiceID.String(), err)
	}
	return &invoice, nil
}

// claimOrderVersion bumps the invoice's order_version, requiring the invoice
// to still be OPEN. When expectedVersion is >= 0 the bump is a CAS on that
// version; otherwise any version is accepted. Serializes appends and reorders
// even when the deployment cannot give us a real transaction.
func (s *entryService) claimOrderVersion(ctx context.Context, invoiceID utils.SixID, expectedVersion int64) error {
	filter := bson.M{"_id": invoiceID, "status": models.InvoiceOpen}
	if expectedVersion >= 0 {
		filter["order_version"] = expectedVersion
	}
	err := s.db.Collection(invoicesCollection).
		FindOneAndUpdate(ctx, filter, bson.M{"$inc": bson.M{"order_version": 1}}).
		Err()
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ErrInvoiceNotEditable
		}
		return fmt.Errorf("failed to claim ordering on invoice %s: %w", invoiceID.String(), err)
	}
	return nil
}

// AddExpense appends an expense to the end of an OPEN invoice's display order
// and re-derives the invoice total.
func (s *entryService) AddExpense(ctx context.Context, input ExpenseInput) (*models.Entry, error) {
	invoice, err := s.findInvoice(ctx, input.InvoiceID)
	if err != nil {
		return nil, err
	}
	if invoice.Status != models.InvoiceOpen {
		return nil, ErrInvoiceNotEditable
	}
	card, err := s.checkCard(ctx, invoice.CardID, input.AmountCents)
	if err != nil {
		return nil, err
	}

	var entry *models.Entry
	err = db.WithTxn(ctx, s.db, func(ctx context.Context) error {
		entry, err = s.appendExpense(ctx, invoice, card.ID, input)
		if err != nil {
			return err
		}
		_, err = recomputeInvoiceTotal(ctx, s.db, invoice.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.invalidateStatement(ctx, card.ID)
	return entry, nil
}

// appendExpense inserts the expense at position count+1. Caller holds the
// transaction and has verified the invoice is OPEN; the order_version claim
// re-checks that and serializes concurrent appends.
func (s *entryService) appendExpense(ctx context.Context, invoice *models.Invoice, cardID utils.SixID, input ExpenseInput) (*models.Entry, error) {
	if err := s.claimOrderVersion(ctx, invoice.ID, -1); err != nil {
		return nil, err
	}

	entries := s.db.Collection(entriesCollection)
	count, err := entries.CountDocuments(ctx, bson.M{"invoice_id": invoice.ID, "kind": models.EntryExpense})
	if err != nil {
		return nil, fmt.Errorf("failed to count expenses on invoice %s: %w", invoice.ID.String(), err)
	}

	now := time.Now().UTC()
	purchaseDate := input.PurchaseDate
	entry := &models.Entry{
		Kind:              models.EntryExpense,
		CardID:            cardID,
		InvoiceID:         &invoice.ID,
		AmountCents:       input.AmountCents,
		Description:       input.Description,
		PurchaseDate:      &purchaseDate,
		CategoryID:        input.CategoryID,
		InstallmentNumber: input.InstallmentNumber,
		Installments:      input.Installments,
		DisplayOrder:      int(count) + 1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	err = db.Try(func() error {
		entry.GenID()
		_, insertErr := entries.InsertOne(ctx, entry)
		return insertErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to insert expense on invoice %s: %w", invoice.ID.String(), err)
	}
	return entry, nil
}

// checkCard verifies the card accepts new charges and, under the block
// policy, that amountCents fits in the available limit.
func (s *entryService) checkCard(ctx context.Context, cardID utils.SixID, amountCents int64) (*models.CreditCard, error) {
	var card models.CreditCard
	err := s.db.Collection(cardsCollection).FindOne(ctx, bson.M{"_id": cardID}).Decode(&card)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCardNotFound
		}
		return nil, fmt.Errorf("failed to find card %s: %w", cardID.String(), err)
	}
	if !card.Active {
		return nil, ErrCardInactive
	}
	if s.cfg.OverLimitPolicy == config.OverLimitBlock {
		consumed, err := consumedLimitCents(ctx, s.db, cardID)
		if err != nil {
			return nil, err
		}
		if card.LimitCents-consumed-amountCents < 0 {
			return nil, ErrLimitExceeded
		}
	}
	return &card, nil
}

// UpdateExpense edits an expense's mutable fields. Assigned expenses are only
// editable while their invoice is OPEN.
func (s *entryService) UpdateExpense(ctx context.Context, entryID utils.SixID, update ExpenseUpdate) (*models.Entry, error) {
	entry, err := s.findEntry(ctx, entryID, models.EntryExpense)
	if err != nil {
		return nil, err
	}
	if entry.InvoiceID != nil {
		invoice, err := s.findInvoice(ctx, *entry.InvoiceID)
		if err != nil {
			return nil, err
		}
		if invoice.Status != models.InvoiceOpen {
			return nil, ErrInvoiceNotEditable
		}
	}

	set := bson.M{"updated_at": time.Now().UTC()}
	if update.Description != nil {
		set["description"] = *update.Description
	}
	if update.AmountCents != nil {
		set["amount_cents"] = *update.AmountCents
	}
	if update.PurchaseDate != nil {
		set["purchase_date"] = *update.PurchaseDate
	}
	if update.CategoryID != nil {
		set["category_id"] = *update.CategoryID
	}

	var updated models.Entry
	err = db.WithTxn(ctx, s.db, func(ctx context.Context) error {
		opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
		err := s.db.Collection(entriesCollection).
			FindOneAndUpdate(ctx, bson.M{"_id": entryID}, bson.M{"$set": set}, opts).
			Decode(&updated)
		if err != nil {
			return fmt.Errorf("failed to update expense %s: %w", entryID.String(), err)
		}
		if update.AmountCents != nil && updated.InvoiceID != nil {
			_, err = recomputeInvoiceTotal(ctx, s.db, *updated.InvoiceID)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	s.invalidateStatement(ctx, entry.CardID)
	return &updated, nil
}

// DeleteExpense removes an expense and closes the display-order gap it leaves
// so the ordering stays dense. Deletion works in any invoice status; it is
// the correction path for wrongly posted charges.
func (s *entryService) DeleteExpense(ctx context.Context, entryID utils.SixID) error {
	entry, err := s.findEntry(ctx, entryID, models.EntryExpense)
	if err != nil {
		return err
	}

	err = db.WithTxn(ctx, s.db, func(ctx context.Context) error {
		entries := s.db.Collection(entriesCollection)
		if _, err := entries.DeleteOne(ctx, bson.M{"_id": entryID}); err != nil {
			return fmt.Errorf("failed to delete expense %s: %w", entryID.String(), err)
		}
		if entry.InvoiceID == nil {
			return nil
		}
		_, err := entries.UpdateMany(ctx,
			bson.M{
				"invoice_id":    *entry.InvoiceID,
				"kind":          models.EntryExpense,
				"display_order": bson.M{"$gt": entry.DisplayOrder},
			},
			bson.M{"$inc": bson.M{"display_order": -1}})
		if err != nil {
			return fmt.Errorf("failed to compact ordering on invoice %s: %w", entry.InvoiceID.String(), err)
		}
		_, err = s.db.Collection(invoicesCollection).UpdateOne(ctx,
			bson.M{"_id": *entry.InvoiceID},
			bson.M{"$inc": bson.M{"order_version": 1}})
		if err != nil {
			return fmt.Errorf("failed to bump order version on invoice %s: %w", entry.InvoiceID.String(), err)
		}
		_, err = recomputeInvoiceTotal(ctx, s.db, *entry.InvoiceID)
		return err
	})
	if err != nil {
		return err
	}
	s.invalidateStatement(ctx, entry.CardID)
	return nil
}

// AssignExpense moves an unassigned expense onto an OPEN invoice, appending
// it at the end of the display order.
func (s *entryService) AssignExpense(ctx context.Context, entryID, invoiceID utils.SixID) (*models.Entry, error) {
	entry, err := s.findEntry(ctx, entryID, models.EntryExpense)
	if err != nil {
		return nil, err
	}
	if entry.InvoiceID != nil {
		return nil, fmt.Errorf("%w: expense %s is already assigned", ErrInvoiceNotEditable, entryID.String())
	}
	invoice, err := s.findInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice.Status != models.InvoiceOpen {
		return nil, ErrInvoiceNotEditable
	}
	if invoice.CardID != entry.CardID {
		return nil, fmt.Errorf("%w: expense %s belongs to another card", ErrInvoiceNotEditable, entryID.String())
	}

	err = db.WithTxn(ctx, s.db, func(ctx context.Context) error {
		if err := s.claimOrderVersion(ctx, invoiceID, -1); err != nil {
			return err
		}
		entries := s.db.Collection(entriesCollection)
		count, err := entries.CountDocuments(ctx, bson.M{"invoice_id": invoiceID, "kind": models.EntryExpense})
		if err != nil {
			return fmt.Errorf("failed to count expenses on invoice %s: %w", invoiceID.String(), err)
		}
		_, err = entries.UpdateOne(ctx,
			bson.M{"_id": entryID},
			bson.M{"$set": bson.M{
				"invoice_id":    invoiceID,
				"display_order": int(count) + 1,
				"updated_at":    time.Now().UTC(),
			}})
		if err != nil {
			return fmt.Errorf("failed to assign expense %s: %w", entryID.String(), err)
		}
		_, err = recomputeInvoiceTotal(ctx, s.db, invoiceID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.invalidateStatement(ctx, entry.CardID)
	return s.findEntry(ctx, entryID, models.EntryExpense)
}

// AddCredit posts a credit against any unsettled invoice. Crediting a CLOSED
// or OVERDUE cycle is the normal refund path; only PAID is off limits.
func (s *entryService) AddCredit(ctx context.Context, input CreditInput) (*models.Entry, error) {
	invoice, err := s.findInvoice(ctx, input.InvoiceID)
	if err != nil {
		return nil, err
	}
	if invoice.Status == models.InvoicePaid {
		return nil, ErrInvoiceNotEditable
	}

	now := time.Now().UTC()
	creditDate := input.CreditDate
	entry := &models.Entry{
		Kind:            models.EntryCredit,
		CardID:          invoice.CardID,
		InvoiceID:       &invoice.ID,
		AmountCents:     input.AmountCents,
		Description:     input.Description,
		CreditDate:      &creditDate,
		ReferenceNumber: input.ReferenceNumber,
		Notes:           input.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err = db.WithTxn(ctx, s.db, func(ctx context.Context) error {
		entries := s.db.Collection(entriesCollection)
		err := db.Try(func() error {
			entry.GenID()
			_, insertErr := entries.InsertOne(ctx, entry)
			return insertErr
		})
		if err != nil {
			return fmt.Errorf("failed to insert credit on invoice %s: %w", invoice.ID.String(), err)
		}
		_, err = recomputeInvoiceTotal(ctx, s.db, invoice.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.invalidateStatement(ctx, invoice.CardID)
	return entry, nil
}

// DeleteCredit removes a credit from an unsettled invoice.
func (s *entryService) DeleteCredit(ctx context.Context, entryID utils.SixID) error {
	entry, err := s.findEntry(ctx, entryID, models.EntryCredit)
	if err != nil {
		return err
	}
	if entry.InvoiceID != nil {
		invoice, err := s.findInvoice(ctx, *entry.InvoiceID)
		if err != nil {
			return err
		}
		if invoice.Status == models.InvoicePaid {
			return ErrInvoiceNotEditable
		}
	}

	err = db.WithTxn(ctx, s.db, func(ctx context.Context) error {
		if _, err := s.db.Collection(entriesCollection).DeleteOne(ctx, bson.M{"_id": entryID}); err != nil {
			return fmt.Errorf("failed to delete credit %s: %w", entryID.String(), err)
		}
		if entry.InvoiceID == nil {
			return nil
		}
		_, err := recomputeInvoiceTotal(ctx, s.db, *entry.InvoiceID)
		return err
	})
	if err != nil {
		return err
	}
	s.invalidateStatement(ctx, entry.CardID)
	return nil
}

// Reorder swaps an expense's display order with its neighbour in the given
// direction. Moving the first expense up or the last one down is a no-op.
// The swap is guarded by a CAS on the invoice's order_version and retried on
// contention, so two concurrent reorders cannot produce a duplicate or a gap.
func (s *entryService) Reorder(ctx context.Context, entryID utils.SixID, direction models.ReorderDirection) (*models.Entry, error) {
	if !direction.IsValid() {
		return nil, fmt.Errorf("unknown reorder direction: %s", direction)
	}

	for attempt := 0; attempt < reorderMaxAttempts; attempt++ {
		entry, err := s.findEntry(ctx, entryID, models.EntryExpense)
		if err != nil {
			return nil, err
		}
		if entry.InvoiceID == nil {
			return nil, fmt.Errorf("%w: expense %s is unassigned", ErrInvoiceNotEditable, entryID.String())
		}
		invoice, err := s.findInvoice(ctx, *entry.InvoiceID)
		if err != nil {
			return nil, err
		}
		if invoice.Status != models.InvoiceOpen {
			return nil, ErrInvoiceNotEditable
		}

		targetOrder := entry.DisplayOrder - 1
		if direction == models.ReorderDown {
			targetOrder = entry.DisplayOrder + 1
		}

		var neighbour models.Entry
		err = s.db.Collection(entriesCollection).FindOne(ctx, bson.M{
			"invoice_id":    invoice.ID,
			"kind":          models.EntryExpense,
			"display_order": targetOrder,
		}).Decode(&neighbour)
		if err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return entry, nil // already at the boundary
			}
			return nil, fmt.Errorf("failed to find reorder neighbour: %w", err)
		}

		swapped := false
		err = db.WithTxn(ctx, s.db, func(ctx context.Context) error {
			claimErr := s.claimOrderVersion(ctx, invoice.ID, invoice.OrderVersion)
			if errors.Is(claimErr, ErrInvoiceNotEditable) {
				// Either the invoice left OPEN or the version moved under
				// us. Distinguish by re-reading outside the claim.
				current, findErr := s.findInvoice(ctx, invoice.ID)
				if findErr != nil {
					return findErr
				}
				if current.Status != models.InvoiceOpen {
					return ErrInvoiceNotEditable
				}
				return nil // lost the CAS race, retry
			}
			if claimErr != nil {
				return claimErr
			}

			entries := s.db.Collection(entriesCollection)
			if _, err := entries.UpdateOne(ctx,
				bson.M{"_id": entry.ID},
				bson.M{"$set": bson.M{"display_order": neighbour.DisplayOrder, "updated_at": time.Now().UTC()}}); err != nil {
				return fmt.Errorf("failed to move expense %s: %w", entry.ID.String(), err)
			}
			if _, err := entries.UpdateOne(ctx,
				bson.M{"_id": neighbour.ID},
				bson.M{"$set": bson.M{"display_order": entry.DisplayOrder, "updated_at": time.Now().UTC()}}); err != nil {
				return fmt.Errorf("failed to move expense %s: %w", neighbour.ID.String(), err)
			}
			swapped = true
			return nil
		})
		if err != nil {
			return nil, err
		}
		if swapped {
			return s.findEntry(ctx, entryID, models.EntryExpense)
		}
		// CAS failure; loop re-reads the new ordering.
	}
	return nil, fmt.Errorf("reorder of expense %s kept losing to concurrent updates", entryID.String())
}

// ListByInvoice returns the invoice's entries, expenses first in display
// order, then credits oldest first.
func (s *entryService) ListByInvoice(ctx context.Context, invoiceID utils.SixID) ([]models.Entry, error) {
	opts := options.Find().SetSort(bson.D{
		{Key: "kind", Value: -1}, // "expense" sorts after "credit"; descending puts expenses first
		{Key: "display_order", Value: 1},
		{Key: "created_at", Value: 1},
	})
	cursor, err := s.db.Collection(entriesCollection).Find(ctx, bson.M{"invoice_id": invoiceID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries for invoice %s: %w", invoiceID.String(), err)
	}
	defer cursor.Close(ctx)

	var entries []models.Entry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode entries for invoice %s: %w", invoiceID.String(), err)
	}
	return entries, nil
}

// ListUnassigned returns the card's expenses that are not linked to any
// invoice, oldest first.
func (s *entryService) ListUnassigned(ctx context.Context, cardID utils.SixID) ([]models.Entry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := s.db.Collection(entriesCollection).Find(ctx, bson.M{
		"card_id":    cardID,
		"kind":       models.EntryExpense,
		"invoice_id": bson.M{"$exists": false},
	}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list unassigned expenses for card %s: %w", cardID.String(), err)
	}
	defer cursor.Close(ctx)

	var entries []models.Entry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode unassigned expenses for card %s: %w", cardID.String(), err)
	}
	return entries, nil
}

func (s *entryService) invalidateStatement(ctx context.Context, cardID utils.SixID) {
	if err := s.cache.Invalidate(ctx, cardID.String()); err != nil {
		log.Printf("WARN: failed to invalidate statement cache for card %s: %v", cardID.String(), err)
	}
}

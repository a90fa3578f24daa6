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

// IInvoiceService owns the invoice lifecycle: creation per reference month,
// the OPEN -> CLOSED -> OVERDUE -> PAID transitions, the derived total, and
// the scheduler sweeps.
type IInvoiceService interface {
	Create(ctx context.Context, cardID utils.SixID, year int, month time.Month) (*models.Invoice, error)
	EnsureInvoice(ctx context.Context, card *models.CreditCard, reference time.Time) (*models.Invoice, error)
	FindByID(ctx context.Context, id utils.SixID) (*models.Invoice, error)
	FindByReference(ctx context.Context, cardID utils.SixID, reference time.Time) (*models.Invoice, error)
	ListByCard(ctx context.Context, cardID utils.SixID) ([]models.Invoice, error)
	Close(ctx context.Context, invoiceID utils.SixID) (*models.Invoice, error)
	Pay(ctx context.Context, invoiceID, bankAccountID utils.SixID, paymentDate time.Time) (*models.Invoice, error)
	Reopen(ctx context.Context, invoiceID utils.SixID) (*models.Invoice, error)
	Delete(ctx context.Context, invoiceID utils.SixID) error
	RecomputeTotal(ctx context.Context, invoiceID utils.SixID) (int64, error)
	CloseElapsed(ctx context.Context, now time.Time) (int, error)
	MarkOverdue(ctx context.Context, now time.Time) (int64, error)
}

const (
	invoicesCollection = "invoices"
	entriesCollection  = "entries"
	cardsCollection    = "credit_cards"
)

type invoiceService struct {
	db         *mongo.Database
	cfg        *config.Config
	bankLedger IBankLedgerService
	payables   IPayableService
	cache      *cache.StatementCache
}

// NewInvoiceService creates a new InvoiceService.
func NewInvoiceService(database *mongo.Database, cfg *config.Config, bankLedger IBankLedgerService, payables IPayableService, statementCache *cache.StatementCache) IInvoiceService {
	return &invoiceService{
		db:         database,
		cfg:        cfg,
		bankLedger: bankLedger,
		payables:   payables,
		cache:      statementCache,
	}
}

// clampDay builds a UTC date in (year, month) on the given day, pulled back to
// the month's last day when the month is shorter. February keeps a card's
// closing day 31 meaningful.
func clampDay(year int, month time.Month, day int) time.Time {
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if day > last {
		day = last
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// cycleDates derives the closing and due dates of the cycle starting at
// reference. The due date lands in the same month as the closing when the
// card's due day comes after its closing day, otherwise in the next month.
func cycleDates(card *models.CreditCard, reference time.Time) (closing, due time.Time) {
	closing = clampDay(reference.Year(), reference.Month(), card.ClosingDay)
	dueMonth := reference
	if card.DueDay <= card.ClosingDay {
		dueMonth = reference.AddDate(0, 1, 0)
	}
	due = clampDay(dueMonth.Year(), dueMonth.Month(), card.DueDay)
	return closing, due
}

func (s *invoiceService) findCard(ctx context.Context, cardID utils.SixID) (*models.CreditCard, error) {
	var card models.CreditCard
	err := s.db.Collection(cardsCollection).FindOne(ctx, bson.M{"_id": cardID}).Decode(&card)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCardNotFound
		}
		return nil, fmt.Errorf("failed to find card %s: %w", cardID.String(), err)
	}
	return &card, nil
}

// Create opens a new invoice for the given card and reference month.
// At most one invoice exists per (card, reference); a second create returns
// ErrDuplicateInvoice.
func (s *invoiceService) Create(ctx context.Context, cardID utils.SixID, year int, month time.Month) (*models.Invoice, error) {
	card, err := s.findCard(ctx, cardID)
	if err != nil {
		return nil, err
	}
	reference := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return s.insertInvoice(ctx, card, reference)
}

func (s *invoiceService) insertInvoice(ctx context.Context, card *models.CreditCard, reference time.Time) (*models.Invoice, error) {
	closing, due := cycleDates(card, reference)
	now := time.Now().UTC()
	invoice := &models.Invoice{
		CardID:      card.ID,
		Reference:   reference,
		ClosingDate: closing,
		DueDate:     due,
		Status:      models.InvoiceOpen,
		TotalCents:  0,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	collection := s.db.Collection(invoicesCollection)
	err := db.Try(func() error {
		invoice.GenID()
		_, insertErr := collection.InsertOne(ctx, invoice)
		// An _id collision is retryable with a fresh ID; a (card, reference)
		// collision is not, so bail out of the retry loop for that one.
		if db.IsMongoDuplicateKeyError(insertErr) {
			if existing, findErr := s.FindByReference(ctx, card.ID, reference); findErr == nil && existing != nil {
				return ErrDuplicateInvoice
			}
		}
		return insertErr
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateInvoice) {
			return nil, ErrDuplicateInvoice
		}
		return nil, fmt.Errorf("failed to create invoice for card %s: %w", card.ID.String(), err)
	}
	return invoice, nil
}

// EnsureInvoice returns the card's invoice for the reference month, creating
// an OPEN one when it does not exist yet. Races on the unique index resolve
// to the row the other writer created.
func (s *invoiceService) EnsureInvoice(ctx context.Context, card *models.CreditCard, reference time.Time) (*models.Invoice, error) {
	reference = models.ReferenceOf(reference)
	existing, err := s.FindByReference(ctx, card.ID, reference)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	invoice, err := s.insertInvoice(ctx, card, reference)
	if errors.Is(err, ErrDuplicateInvoice) {
		return s.findByReferenceStrict(ctx, card.ID, reference)
	}
	return invoice, err
}

func (s *invoiceService) FindByID(ctx context.Context, id utils.SixID) (*models.Invoice, error) {
	var invoice models.Invoice
	err := s.db.Collection(invoicesCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&invoice)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("failed to find invoice %s: %w", id.String(), err)
	}
	return &invoice, nil
}

// FindByReference returns the card's invoice for the reference month, or nil
// when none exists.
func (s *invoiceService) FindByReference(ctx context.Context, cardID utils.SixID, reference time.Time) (*models.Invoice, error) {
	var invoice models.Invoice
	err := s.db.Collection(invoicesCollection).
		FindOne(ctx, bson.M{"card_id": cardID, "reference": models.ReferenceOf(reference)}).
		Decode(&invoice)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find invoice by reference: %w", err)
	}
	return &invoice, nil
}

func (s *invoiceService) findByReferenceStrict(ctx context.Context, cardID utils.SixID, reference time.Time) (*models.Invoice, error) {
	invoice, err := s.FindByReference(ctx, cardID, reference)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, ErrInvoiceNotFound
	}
	return invoice, nil
}

// ListByCard returns all invoices of a card, oldest reference first.
func (s *invoiceService) ListByCard(ctx context.Context, cardID utils.SixID) ([]models.Invoice, error) {
	opts := options.Find().SetSort(bson.D{{Key: "reference", Value: 1}})
	cursor, err := s.db.Collection(invoicesCollection).Find(ctx, bson.M{"card_id": cardID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices for card %s: %w", cardID.String(), err)
	}
	defer cursor.Close(ctx)

	var invoices []models.Invoice
	if err := cursor.All(ctx, &invoices); err != nil {
		return nil, fmt.Errorf("failed to decode invoices for card %s: %w", cardID.String(), err)
	}
	return invoices, nil
}

// Close transitions an OPEN invoice to CLOSED, freezes its derived total and
// mirrors it into accounts payable.
func (s *invoiceService) Close(ctx context.Context, invoiceID utils.SixID) (*models.Invoice, error) {
	var closed *models.Invoice
	err := db.WithTxn(ctx, s.db, func(ctx context.Context) error {
		invoice, err := s.FindByID(ctx, invoiceID)
		if err != nil {
			return err
		}
		if invoice.Status != models.InvoiceOpen {
			return fmt.Errorf("%w: cannot close a %s invoice", ErrInvalidTransition, invoice.Status)
		}
		closed, err = s.closeInvoice(ctx, invoice)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.invalidateStatement(ctx, closed.CardID)
	return closed, nil
}

// closeInvoice does the actual close. Caller has verified the invoice is OPEN
// and holds the transaction.
func (s *invoiceService) closeInvoice(ctx context.Context, invoice *models.Invoice) (*models.Invoice, error) {
	total, err := s.recomputeTotal(ctx, invoice.ID)
	if err != nil {
		return nil, err
	}
	invoice.TotalCents = total

	now := time.Now().UTC()
	_, err = s.db.Collection(invoicesCollection).UpdateOne(ctx,
		bson.M{"_id": invoice.ID},
		bson.M{"$set": bson.M{"status": models.InvoiceClosed, "updated_at": now}})
	if err != nil {
		return nil, fmt.Errorf("failed to close invoice %s: %w", invoice.ID.String(), err)
	}
	invoice.Status = models.InvoiceClosed
	invoice.UpdatedAt = now

	card, err := s.findCard(ctx, invoice.CardID)
	if err != nil {
		return nil, err
	}
	description := fmt.Sprintf("%s invoice %s", card.Name, invoice.Reference.Format("2006-01"))
	if _, err := s.payables.CreateForInvoice(ctx, invoice, description); err != nil {
		return nil, err
	}
	return invoice, nil
}

// Pay settles a CLOSED or OVERDUE invoice from a bank account. The settlement
// row, the payable update and the status change move together; if the bank
// leg fails nothing is paid.
func (s *invoiceService) Pay(ctx context.Context, invoiceID, bankAccountID utils.SixID, paymentDate time.Time) (*models.Invoice, error) {
	var paid *models.Invoice
	err := db.WithTxn(ctx, s.db, func(ctx context.Context) error {
		invoice, err := s.FindByID(ctx, invoiceID)
		if err != nil {
			return err
		}
		if invoice.Status != models.InvoiceClosed && invoice.Status != models.InvoiceOverdue {
			return fmt.Errorf("%w: cannot pay a %s invoice", ErrInvalidTransition, invoice.Status)
		}

		total, err := s.recomputeTotal(ctx, invoice.ID)
		if err != nil {
			return err
		}

		if _, err := s.bankLedger.RecordSettlement(ctx, bankAccountID, invoice.ID, total, paymentDate); err != nil {
			if errors.Is(err, ErrBankAccountNotFound) {
				return err
			}
			return errors.Join(ErrSettlementFailed, err)
		}
		if err := s.payables.MarkSettled(ctx, invoice.ID, paymentDate); err != nil {
			return err
		}

		now := time.Now().UTC()
		_, err = s.db.Collection(invoicesCollection).UpdateOne(ctx,
			bson.M{"_id": invoice.ID},
			bson.M{"$set": bson.M{
				"status":          models.InvoicePaid,
				"paid_at":         paymentDate,
				"bank_account_id": bankAccountID,
				"updated_at":      now,
			}})
		if err != nil {
			return fmt.Errorf("failed to mark invoice %s paid: %w", invoice.ID.String(), err)
		}
		invoice.Status = models.InvoicePaid
		invoice.TotalCents = total
		invoice.PaidAt = &paymentDate
		invoice.BankAccountID = &bankAccountID
		invoice.UpdatedAt = now
		paid = invoice
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.invalidateStatement(ctx, paid.CardID)
	return paid, nil
}

// Reopen puts a CLOSED or OVERDUE invoice back to OPEN so its cycle can be
// corrected. PAID is terminal.
func (s *invoiceService) Reopen(ctx context.Context, invoiceID utils.SixID) (*models.Invoice, error) {
	var reopened *models.Invoice
	err := db.WithTxn(ctx, s.db, func(ctx context.Context) error {
		invoice, err := s.FindByID(ctx, invoiceID)
		if err != nil {
			return err
		}
		if invoice.Status != models.InvoiceClosed && invoice.Status != models.InvoiceOverdue {
			return fmt.Errorf("%w: cannot reopen a %s invoice", ErrInvalidTransition, invoice.Status)
		}

		if err := s.payables.RemoveForInvoice(ctx, invoice.ID); err != nil {
			return err
		}

		now := time.Now().UTC()
		_, err = s.db.Collection(invoicesCollection).UpdateOne(ctx,
			bson.M{"_id": invoice.ID},
			bson.M{"$set": bson.M{"status": models.InvoiceOpen, "updated_at": now}})
		if err != nil {
			return fmt.Errorf("failed to reopen invoice %s: %w", invoice.ID.String(), err)
		}
		invoice.Status = models.InvoiceOpen
		invoice.UpdatedAt = now
		reopened = invoice
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.invalidateStatement(ctx, reopened.CardID)
	return reopened, nil
}

// Delete removes an unsettled invoice together with everything hanging off
// it: every linked expense and credit, and the payable mirror. The status
// check runs inside the transaction so a concurrent Pay cannot slip a
// settlement in between the check and the cascade.
func (s *invoiceService) Delete(ctx context.Context, invoiceID utils.SixID) error {
	var cardID utils.SixID
	err := db.WithTxn(ctx, s.db, func(ctx context.Context) error {
		invoice, err := s.FindByID(ctx, invoiceID)
		if err != nil {
			return err
		}
		if invoice.Status == models.InvoicePaid {
			return ErrCannotDeleteSettled
		}
		cardID = invoice.CardID

		if _, err := s.db.Collection(entriesCollection).DeleteMany(ctx, bson.M{"invoice_id": invoiceID}); err != nil {
			return fmt.Errorf("failed to delete entries of invoice %s: %w", invoiceID.String(), err)
		}
		if err := s.payables.RemoveForInvoice(ctx, invoiceID); err != nil {
			return err
		}
		if _, err := s.db.Collection(invoicesCollection).DeleteOne(ctx, bson.M{"_id": invoiceID}); err != nil {
			return fmt.Errorf("failed to delete invoice %s: %w", invoiceID.String(), err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.invalidateStatement(ctx, cardID)
	return nil
}

// RecomputeTotal re-derives the invoice's total from its entries and persists
// the snapshot.
func (s *invoiceService) RecomputeTotal(ctx context.Context, invoiceID utils.SixID) (int64, error) {
	if _, err := s.FindByID(ctx, invoiceID); err != nil {
		return 0, err
	}
	return s.recomputeTotal(ctx, invoiceID)
}

func (s *invoiceService) recomputeTotal(ctx context.Context, invoiceID utils.SixID) (int64, error) {
	return recomputeInvoiceTotal(ctx, s.db, invoiceID)
}

// signedEntrySum is the aggregation stage summing entries with credits
// negated. Shared by the invoice total and the consumed-limit queries.
func signedEntrySum(match bson.M) []bson.M {
	return []bson.M{
		{"$match": match},
		{"$group": bson.M{
			"_id": nil,
			"total": bson.M{"$sum": bson.M{"$cond": []interface{}{
				bson.M{"$eq": []interface{}{"$kind", models.EntryCredit}},
				bson.M{"$multiply": []interface{}{"$amount_cents", -1}},
				"$amount_cents",
			}}},
		}},
	}
}

func sumEntries(ctx context.Context, database *mongo.Database, match bson.M) (int64, error) {
	cursor, err := database.Collection(entriesCollection).Aggregate(ctx, signedEntrySum(match))
	if err != nil {
		return 0, fmt.Errorf("failed to aggregate entries: %w", err)
	}
	defer cursor.Close(ctx)

	var results []struct {
		Total int64 `bson:"total"`
	}
	if err := cursor.All(ctx, &results); err != nil {
		return 0, fmt.Errorf("failed to decode entry sum: %w", err)
	}
	if len(results) == 0 {
		return 0, nil
	}
	return results[0].Total, nil
}

// recomputeInvoiceTotal sums the invoice's entries (credits negated) and
// writes the result to total_cents. The totals snapshot is never incremented
// in place; concurrent writers each re-derive it inside their own
// transaction.
func recomputeInvoiceTotal(ctx context.Context, database *mongo.Database, invoiceID utils.SixID) (int64, error) {
	total, err := sumEntries(ctx, database, bson.M{"invoice_id": invoiceID})
	if err != nil {
		return 0, fmt.Errorf("failed to total invoice %s: %w", invoiceID.String(), err)
	}

	_, err = database.Collection(invoicesCollection).UpdateOne(ctx,
		bson.M{"_id": invoiceID},
		bson.M{"$set": bson.M{"total_cents": total, "updated_at": time.Now().UTC()}})
	if err != nil {
		return 0, fmt.Errorf("failed to store total for invoice %s: %w", invoiceID.String(), err)
	}
	return total, nil
}

// CloseElapsed closes every OPEN invoice whose closing date has passed and
// seeds the next reference month for the card, so the cycle rolls over even
// when nobody posted an expense that month. Inactive cards close but do not
// roll over.
func (s *invoiceService) CloseElapsed(ctx context.Context, now time.Time) (int, error) {
	cursor, err := s.db.Collection(invoicesCollection).Find(ctx, bson.M{
		"status":       models.InvoiceOpen,
		"closing_date": bson.M{"$lt": now},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to query elapsed invoices: %w", err)
	}
	var elapsed []models.Invoice
	if err := cursor.All(ctx, &elapsed); err != nil {
		return 0, fmt.Errorf("failed to decode elapsed invoices: %w", err)
	}

	closedCount := 0
	for i := range elapsed {
		invoice := elapsed[i]
		err := db.WithTxn(ctx, s.db, func(ctx context.Context) error {
			current, err := s.FindByID(ctx, invoice.ID)
			if err != nil {
				if errors.Is(err, ErrInvoiceNotFound) {
					return nil // deleted since the scan
				}
				return err
			}
			if current.Status != models.InvoiceOpen {
				return nil // raced another close
			}
			_, err = s.closeInvoice(ctx, current)
			return err
		})
		if err != nil {
			return closedCount, fmt.Errorf("failed to roll over invoice %s: %w", invoice.ID.String(), err)
		}
		closedCount++
		s.invalidateStatement(ctx, invoice.CardID)

		card, err := s.findCard(ctx, invoice.CardID)
		if err != nil {
			if errors.Is(err, ErrCardNotFound) {
				continue
			}
			return closedCount, err
		}
		if !card.Active {
			continue
		}
		if _, err := s.EnsureInvoice(ctx, card, invoice.Reference.AddDate(0, 1, 0)); err != nil {
			return closedCount, err
		}
	}
	return closedCount, nil
}

// MarkOverdue flips CLOSED invoices past their due date to OVERDUE and
// returns how many changed.
func (s *invoiceService) MarkOverdue(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.Collection(invoicesCollection).UpdateMany(ctx,
		bson.M{"status": models.InvoiceClosed, "due_date": bson.M{"$lt": now}},
		bson.M{"$set": bson.M{"status": models.InvoiceOverdue, "updated_at": time.Now().UTC()}})
	if err != nil {
		return 0, fmt.Errorf("failed to mark overdue invoices: %w", err)
	}
	return result.ModifiedCount, nil
}

func (s *invoiceService) invalidateStatement(ctx context.Context, cardID utils.SixID) {
	if err := s.cache.Invalidate(ctx, cardID.String()); err != nil {
		log.Printf("WARN: failed to invalidate statement cache for card %s: %v", cardID.String(), err)
	}
}

package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/genuinocomercialatacadistaltda-boop/erp-demo-railway-sub000/internal/cache"
	"github.com/genuinocomercialatacadistaltda-boop/erp-demo-railway-sub000/internal/config"
	"github.com/genuinocomercialatacadistaltda-boop/erp-demo-railway-sub000/internal/db"
	"github.com/genuinocomercialatacadistaltda-boop/erp-demo-railway-sub000/internal/models"
	"github.com/genuinocomercialatacadistaltda-boop/erp-demo-railway-sub000/internal/utils"
)

// IInstallmentService spreads a purchase across future monthly invoices.
type IInstallmentService interface {
	Allocate(ctx context.Context, input AllocateInput) (*AllocationResult, error)
}

// AllocateInput describes a purchase to split into installments.
type AllocateInput struct {
	CardID       utils.SixID  `json:"card_id"`
	Description  string       `json:"description" binding:"required"`
	TotalCents   int64        `json:"total_cents" binding:"required,gt=0"`
	Installments int          `json:"installments" binding:"required,min=1"`
	PurchaseDate time.Time    `json:"purchase_date" binding:"required"`
	CategoryID   *utils.SixID `json:"category_id,omitempty"`
}

// AllocationResult reports what a successful allocation posted and where the
// card's limit landed.
type AllocationResult struct {
	Entries             []models.Entry `json:"entries"`
	AvailableLimitCents int64          `json:"available_limit_cents"`
	OverLimit           bool           `json:"over_limit"`
}

type installmentService struct {
	db       *mongo.Database
	cfg      *config.Config
	invoices IInvoiceService
	entries  *entryService
	cache    *cache.StatementCache
}

// NewInstallmentService creates a new InstallmentService.
func NewInstallmentService(database *mongo.Database, cfg *config.Config, invoiceSvc IInvoiceService, statementCache *cache.StatementCache) IInstallmentService {
	return &installmentService{
		db:       database,
		cfg:      cfg,
		invoices: invoiceSvc,
		entries:  &entryService{db: database, cfg: cfg, cache: statementCache},
		cache:    statementCache,
	}
}

// splitAmount divides total into n installments. The division remainder goes
// to the first installment, so the first month absorbs the odd cents and the
// sum always equals the purchase total.
func splitAmount(total int64, n int) []int64 {
	base := total / int64(n)
	remainder := total % int64(n)
	amounts := make([]int64, n)
	for i := range amounts {
		amounts[i] = base
	}
	amounts[0] += remainder
	return amounts
}

// firstReference picks the reference month the first installment lands in: the
// purchase's own cycle, or the next one when the purchase came after that
// cycle already closed.
func firstReference(card *models.CreditCard, purchaseDate time.Time) time.Time {
	reference := models.ReferenceOf(purchaseDate)
	closing, _ := cycleDates(card, reference)
	if purchaseDate.After(closing) {
		reference = reference.AddDate(0, 1, 0)
	}
	return reference
}

// Allocate posts one expense per installment onto consecutive monthly
// invoices, creating the future invoices that do not exist yet. All
// installments post or none do.
func (s *installmentService) Allocate(ctx context.Context, input AllocateInput) (*AllocationResult, error) {
	if input.Installments < 1 || input.Installments > s.cfg.MaxInstallments {
		return nil, fmt.Errorf("installments must be between 1 and %d, got %d", s.cfg.MaxInstallments, input.Installments)
	}
	if input.TotalCents <= 0 {
		return nil, fmt.Errorf("purchase total must be positive, got %d", input.TotalCents)
	}

	card, err := s.entries.checkCard(ctx, input.CardID, input.TotalCents)
	if err != nil {
		return nil, err
	}

	amounts := splitAmount(input.TotalCents, input.Installments)
	start := firstReference(card, input.PurchaseDate)

	var posted []models.Entry
	err = db.WithTxn(ctx, s.db, func(ctx context.Context) error {
		// The session may retry the whole callback on a transient error, so
		// start from an empty slice every attempt.
		posted = make([]models.Entry, 0, input.Installments)
		for i, amount := range amounts {
			reference := start.AddDate(0, i, 0)
			invoice, err := s.invoices.EnsureInvoice(ctx, card, reference)
			if err != nil {
				return err
			}

			description := input.Description
			if input.Installments > 1 {
				description = fmt.Sprintf("%s (%d/%d)", input.Description, i+1, input.Installments)
			}
			entry, err := s.entries.appendExpense(ctx, invoice, card.ID, ExpenseInput{
				InvoiceID:         invoice.ID,
				Description:       description,
				AmountCents:       amount,
				PurchaseDate:      input.PurchaseDate,
				CategoryID:        input.CategoryID,
				InstallmentNumber: i + 1,
				Installments:      input.Installments,
			})
			if err != nil {
				return err
			}
			if _, err := recomputeInvoiceTotal(ctx, s.db, invoice.ID); err != nil {
				return err
			}
			posted = append(posted, *entry)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Join(ErrPartialAllocation, err)
	}
	s.invalidateStatement(ctx, card.ID)

	consumed, err := consumedLimitCents(ctx, s.db, card.ID)
	if err != nil {
		return nil, err
	}
	available := card.LimitCents - consumed
	return &AllocationResult{
		Entries:             posted,
		AvailableLimitCents: available,
		OverLimit:           available < 0,
	}, nil
}

func (s *installmentService) invalidateStatement(ctx context.Context, cardID utils.SixID) {
	if err := s.cache.Invalidate(ctx, cardID.String()); err != nil {
		log.Printf("WARN: failed to invalidate statement cache for card %s: %v", cardID.String(), err)
	}
}

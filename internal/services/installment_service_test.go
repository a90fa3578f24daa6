package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/genuinocomercialatacadistaltda-boop/erp-demo-railway-sub000/internal/config"
	"github.com/genuinocomercialatacadistaltda-boop/erp-demo-railway-sub000/internal/models"
)

func TestSplitAmount(t *testing.T) {
	assert.Equal(t, []int64{10000}, splitAmount(10000, 1))
	assert.Equal(t, []int64{5000, 5000}, splitAmount(10000, 2))
	// The remainder lands on the first installment.
	assert.Equal(t, []int64{34, 33, 33}, splitAmount(100, 3))
	assert.Equal(t, []int64{3334, 3333, 3333}, splitAmount(10000, 3))
}

func TestInstallmentService_AllocateAcrossMonths(t *testing.T) {
	env := newTestEnv(t, "testdb_installment_allocate")
	ctx := context.Background()
	card := createTestCard(t, env, 100000, 25, 5)

	// Purchase on March 10, before the cycle closes on the 25th: the first
	// installment lands on the March invoice.
	result, err := env.installments.Allocate(ctx, AllocateInput{
		CardID:       card.ID,
		Description:  "Forklift tires",
		TotalCents:   30000,
		Installments: 3,
		PurchaseDate: time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, result.Entries, 3)
	assert.Equal(t, int64(70000), result.AvailableLimitCents)
	assert.False(t, result.OverLimit)

	expectedMonths := []time.Month{time.March, time.April, time.May}
	for i, entry := range result.Entries {
		assert.Equal(t, int64(10000), entry.AmountCents)
		assert.Equal(t, i+1, entry.InstallmentNumber)
		assert.Equal(t, 3, entry.Installments)
		require.NotNil(t, entry.InvoiceID)

		invoice, err := env.invoices.FindByID(ctx, *entry.InvoiceID)
		require.NoError(t, err)
		assert.Equal(t, expectedMonths[i], invoice.Reference.Month())
		assert.Equal(t, models.InvoiceOpen, invoice.Status)
		assert.Equal(t, int64(10000), invoice.TotalCents)
	}
	assert.Equal(t, "Forklift tires (1/3)", result.Entries[0].Description)
	assert.Equal(t, "Forklift tires (3/3)", result.Entries[2].Description)
}

func TestInstallmentService_PurchaseAfterClosingShiftsForward(t *testing.T) {
	env := newTestEnv(t, "testdb_installment_shift")
	ctx := context.Background()
	card := createTestCard(t, env, 100000, 10, 20)

	// Purchase on March 15, after the cycle closed on the 10th: the first
	// installment lands on the April invoice.
	result, err := env.installments.Allocate(ctx, AllocateInput{
		CardID:       card.ID,
		Description:  "Pallet racks",
		TotalCents:   20000,
		Installments: 2,
		PurchaseDate: time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, result.Entries, 2)

	invoice, err := env.invoices.FindByID(ctx, *result.Entries[0].InvoiceID)
	require.NoError(t, err)
	assert.Equal(t, time.April, invoice.Reference.Month())
}

func TestInstallmentService_YearBoundary(t *testing.T) {
	env := newTestEnv(t, "testdb_installment_year")
	ctx := context.Background()
	card := createTestCard(t, env, 100000, 25, 5)

	result, err := env.installments.Allocate(ctx, AllocateInput{
		CardID:       card.ID,
		Description:  "Warehouse shelving",
		TotalCents:   30000,
		Installments: 3,
		PurchaseDate: time.Date(2025, time.November, 5, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, result.Entries, 3)

	references := make([]time.Time, 3)
	for i, entry := range result.Entries {
		invoice, err := env.invoices.FindByID(ctx, *entry.InvoiceID)
		require.NoError(t, err)
		references[i] = invoice.Reference
	}
	assert.Equal(t, time.Date(2025, time.November, 1, 0, 0, 0, 0, time.UTC), references[0])
	assert.Equal(t, time.Date(2025, time.December, 1, 0, 0, 0, 0, time.UTC), references[1])
	assert.Equal(t, time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC), references[2])
}

func TestInstallmentService_ReusesExistingInvoice(t *testing.T) {
	env := newTestEnv(t, "testdb_installment_reuse")
	ctx := context.Background()
	card := createTestCard(t, env, 100000, 25, 5)

	existing, err := env.invoices.Create(ctx, card.ID, 2025, time.March)
	require.NoError(t, err)
	addTestExpense(t, env, existing.ID, 1000, "Standing charge")

	result, err := env.installments.Allocate(ctx, AllocateInput{
		CardID:       card.ID,
		Description:  "Printer",
		TotalCents:   5000,
		Installments: 1,
		PurchaseDate: time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, result.Entries, 1)
	assert.Equal(t, existing.ID, *result.Entries[0].InvoiceID)
	// Single installments keep the plain description.
	assert.Equal(t, "Printer", result.Entries[0].Description)
	assert.Equal(t, 2, result.Entries[0].DisplayOrder)

	invoice, err := env.invoices.FindByID(ctx, existing.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(6000), invoice.TotalCents)
}

func TestInstallmentService_Validation(t *testing.T) {
	env := newTestEnv(t, "testdb_installment_validation")
	ctx := context.Background()
	card := createTestCard(t, env, 100000, 25, 5)

	_, err := env.installments.Allocate(ctx, AllocateInput{
		CardID:       card.ID,
		Description:  "Too many",
		TotalCents:   10000,
		Installments: env.cfg.MaxInstallments + 1,
		PurchaseDate: time.Now().UTC(),
	})
	assert.Error(t, err)

	require.NoError(t, env.cards.DeactivateCard(ctx, card.ID))
	_, err = env.installments.Allocate(ctx, AllocateInput{
		CardID:       card.ID,
		Description:  "Inactive card",
		TotalCents:   10000,
		Installments: 1,
		PurchaseDate: time.Now().UTC(),
	})
	assert.ErrorIs(t, err, ErrCardInactive)
}

func TestInstallmentService_BlockPolicyRejectsOverLimit(t *testing.T) {
	env := newTestEnv(t, "testdb_installment_block")
	env.cfg.OverLimitPolicy = config.OverLimitBlock
	ctx := context.Background()
	card := createTestCard(t, env, 10000, 25, 5)

	_, err := env.installments.Allocate(ctx, AllocateInput{
		CardID:       card.ID,
		Description:  "Oversized purchase",
		TotalCents:   15000,
		Installments: 3,
		PurchaseDate: time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC),
	})
	assert.ErrorIs(t, err, ErrLimitExceeded)

	// Nothing was posted.
	count, err := env.db.Collection("entries").CountDocuments(ctx, bson.M{})
	require.NoError(t, err)
	assert.Zero(t, count)
}

package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genuinocomercialatacadistaltda-boop/erp-demo-railway-sub000/internal/models"
)

func TestEntryService_TotalsFollowEntries(t *testing.T) {
	env := newTestEnv(t, "testdb_entry_totals")
	ctx := context.Background()
	card := createTestCard(t, env, 100000, 10, 20)

	invoice, err := env.invoices.Create(ctx, card.ID, 2025, time.March)
	require.NoError(t, err)

	addTestExpense(t, env, invoice.ID, 30000, "Freight")
	addTestExpense(t, env, invoice.ID, 4599, "Parking")

	current, err := env.invoices.FindByID(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(34599), current.TotalCents)

	credit, err := env.entries.AddCredit(ctx, CreditInput{
		InvoiceID:   invoice.ID,
		Description: "Returned goods",
		AmountCents: 4599,
		CreditDate:  time.Now().UTC(),
	})
	require.NoError(t, err)

	current, err = env.invoices.FindByID(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(30000), current.TotalCents)

	require.NoError(t, env.entries.DeleteCredit(ctx, credit.ID))
	current, err = env.invoices.FindByID(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(34599), current.TotalCents)
}

func TestEntryService_DenseOrderingAfterDelete(t *testing.T) {
	env := newTestEnv(t, "testdb_entry_ordering")
	ctx := context.Background()
	card := createTestCard(t, env, 100000, 10, 20)

	invoice, err := env.invoices.Create(ctx, card.ID, 2025, time.March)
	require.NoError(t, err)

	first := addTestExpense(t, env, invoice.ID, 1000, "First")
	second := addTestExpense(t, env, invoice.ID, 2000, "Second")
	third := addTestExpense(t, env, invoice.ID, 3000, "Third")
	assert.Equal(t, 1, first.DisplayOrder)
	assert.Equal(t, 2, second.DisplayOrder)
	assert.Equal(t, 3, third.DisplayOrder)

	require.NoError(t, env.entries.DeleteExpense(ctx, second.ID))

	entries, err := env.entries.ListByInvoice(ctx, invoice.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "First", entries[0].Description)
	assert.Equal(t, 1, entries[0].DisplayOrder)
	assert.Equal(t, "Third", entries[1].Description)
	assert.Equal(t, 2, entries[1].DisplayOrder)
}

func TestEntryService_Reorder(t *testing.T) {
	env := newTestEnv(t, "testdb_entry_reorder")
	ctx := context.Background()
	card := createTestCard(t, env, 100000, 10, 20)

	invoice, err := env.invoices.Create(ctx, card.ID, 2025, time.March)
	require.NoError(t, err)

	first := addTestExpense(t, env, invoice.ID, 1000, "First")
	second := addTestExpense(t, env, invoice.ID, 2000, "Second")
	third := addTestExpense(t, env, invoice.ID, 3000, "Third")

	// Moving the first expense up is a no-op.
	unchanged, err := env.entries.Reorder(ctx, first.ID, models.ReorderUp)
	require.NoError(t, err)
	assert.Equal(t, 1, unchanged.DisplayOrder)

	// Moving the last expense down is a no-op.
	unchanged, err = env.entries.Reorder(ctx, third.ID, models.ReorderDown)
	require.NoError(t, err)
	assert.Equal(t, 3, unchanged.DisplayOrder)

	moved, err := env.entries.Reorder(ctx, third.ID, models.ReorderUp)
	require.NoError(t, err)
	assert.Equal(t, 2, moved.DisplayOrder)

	entries, err := env.entries.ListByInvoice(ctx, invoice.ID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, []string{"First", "Third", "Second"}, []string{
		entries[0].Description, entries[1].Description, entries[2].Description,
	})
	// Ordering stays dense, no duplicates or gaps.
	assert.Equal(t, []int{1, 2, 3}, []int{
		entries[0].DisplayOrder, entries[1].DisplayOrder, entries[2].DisplayOrder,
	})

	// Reordering a closed invoice is rejected.
	_, err = env.invoices.Close(ctx, invoice.ID)
	require.NoError(t, err)
	_, err = env.entries.Reorder(ctx, second.ID, models.ReorderUp)
	assert.ErrorIs(t, err, ErrInvoiceNotEditable)
}

func TestEntryService_EditGuards(t *testing.T) {
	env := newTestEnv(t, "testdb_entry_guards")
	ctx := context.Background()
	card := createTestCard(t, env, 100000, 10, 20)
	account := createTestBankAccount(t, env)

	invoice, err := env.invoices.Create(ctx, card.ID, 2025, time.March)
	require.NoError(t, err)
	expense := addTestExpense(t, env, invoice.ID, 10000, "Tooling")

	_, err = env.invoices.Close(ctx, invoice.ID)
	require.NoError(t, err)

	// No new expenses and no edits on a closed invoice.
	_, err = env.entries.AddExpense(ctx, ExpenseInput{
		InvoiceID:    invoice.ID,
		Description:  "Too late",
		AmountCents:  500,
		PurchaseDate: time.Now().UTC(),
	})
	assert.ErrorIs(t, err, ErrInvoiceNotEditable)

	newAmount := int64(9000)
	_, err = env.entries.UpdateExpense(ctx, expense.ID, ExpenseUpdate{AmountCents: &newAmount})
	assert.ErrorIs(t, err, ErrInvoiceNotEditable)

	// Credits against a closed cycle are the refund path and stay allowed.
	_, err = env.entries.AddCredit(ctx, CreditInput{
		InvoiceID:   invoice.ID,
		Description: "Chargeback",
		AmountCents: 2500,
		CreditDate:  time.Now().UTC(),
	})
	require.NoError(t, err)

	// Expense deletion is the correction path and works in any status.
	require.NoError(t, env.entries.DeleteExpense(ctx, expense.ID))

	_, err = env.invoices.Pay(ctx, invoice.ID, account.ID, time.Now().UTC())
	require.NoError(t, err)

	// Nothing moves on a settled invoice.
	_, err = env.entries.AddCredit(ctx, CreditInput{
		InvoiceID:   invoice.ID,
		Description: "Too late",
		AmountCents: 100,
		CreditDate:  time.Now().UTC(),
	})
	assert.ErrorIs(t, err, ErrInvoiceNotEditable)
}

func TestEntryService_UpdateExpenseRecomputesTotal(t *testing.T) {
	env := newTestEnv(t, "testdb_entry_update")
	ctx := context.Background()
	card := createTestCard(t, env, 100000, 10, 20)

	invoice, err := env.invoices.Create(ctx, card.ID, 2025, time.March)
	require.NoError(t, err)
	expense := addTestExpense(t, env, invoice.ID, 10000, "Catering")

	newAmount := int64(12500)
	newDescription := "Catering (corrected)"
	updated, err := env.entries.UpdateExpense(ctx, expense.ID, ExpenseUpdate{
		AmountCents: &newAmount,
		Description: &newDescription,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(12500), updated.AmountCents)
	assert.Equal(t, "Catering (corrected)", updated.Description)

	current, err := env.invoices.FindByID(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(12500), current.TotalCents)
}

func TestEntryService_AssignUnassignedExpense(t *testing.T) {
	env := newTestEnv(t, "testdb_entry_assign")
	ctx := context.Background()
	card := createTestCard(t, env, 100000, 10, 20)

	// An imported expense with no invoice yet sits in the unassigned pool.
	purchaseDate := time.Now().UTC()
	expense := &models.Entry{
		Base:         models.NewBase(),
		Kind:         models.EntryExpense,
		CardID:       card.ID,
		AmountCents:  8000,
		Description:  "Spare parts",
		PurchaseDate: &purchaseDate,
		CreatedAt:    purchaseDate,
		UpdatedAt:    purchaseDate,
	}
	_, err := env.db.Collection("entries").InsertOne(ctx, expense)
	require.NoError(t, err)

	unassigned, err := env.entries.ListUnassigned(ctx, card.ID)
	require.NoError(t, err)
	require.Len(t, unassigned, 1)

	replacement, err := env.invoices.Create(ctx, card.ID, 2025, time.April)
	require.NoError(t, err)
	addTestExpense(t, env, replacement.ID, 1000, "Existing charge")

	assigned, err := env.entries.AssignExpense(ctx, expense.ID, replacement.ID)
	require.NoError(t, err)
	require.NotNil(t, assigned.InvoiceID)
	assert.Equal(t, replacement.ID, *assigned.InvoiceID)
	assert.Equal(t, 2, assigned.DisplayOrder)

	current, err := env.invoices.FindByID(ctx, replacement.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(9000), current.TotalCents)

	unassigned, err = env.entries.ListUnassigned(ctx, card.ID)
	require.NoError(t, err)
	assert.Empty(t, unassigned)
}

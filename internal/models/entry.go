package models

import (
	"time"

	"github.com/genuinocomercialatacadistaltda-boop/erp-demo-railway-sub000/internal/utils"
)

// EntryKind distinguishes the two ledger entry kinds sharing the entries
// collection.
type EntryKind string

const (
	EntryExpense EntryKind = "expense" // debit
	EntryCredit  EntryKind = "credit"  // refund
)

// Entry is a single ledger row linked to a card and, once assigned, to an
// invoice. Expenses carry installment metadata and a per-invoice
// display_order that the engine keeps dense (1..n, no gaps, no duplicates).
// Credits offset the invoice they are linked to and carry no ordering.
type Entry struct {
	Base        `bson:",inline"`
	Kind        EntryKind    `bson:"kind" json:"kind"`
	CardID      utils.SixID  `bson:"card_id" json:"card_id"`
	InvoiceID   *utils.SixID `bson:"invoice_id,omitempty" json:"invoice_id,omitempty"` // nil while unassigned (expenses only)
	AmountCents int64        `bson:"amount_cents" json:"amount_cents"`
	Description string       `bson:"description" json:"description"`
	CreatedAt   time.Time    `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time    `bson:"updated_at" json:"updated_at"`

	// Expense fields
	PurchaseDate      *time.Time   `bson:"purchase_date,omitempty" json:"purchase_date,omitempty"`
	CategoryID        *utils.SixID `bson:"category_id,omitempty" json:"category_id,omitempty"`
	InstallmentNumber int          `bson:"installment_number,omitempty" json:"installment_number,omitempty"`
	Installments      int          `bson:"installments,omitempty" json:"installments,omitempty"`
	DisplayOrder      int          `bson:"display_order,omitempty" json:"display_order,omitempty"`

	// Credit fields
	CreditDate      *time.Time `bson:"credit_date,omitempty" json:"credit_date,omitempty"`
	ReferenceNumber string     `bson:"reference_number,omitempty" json:"reference_number,omitempty"`
	Notes           string     `bson:"notes,omitempty" json:"notes,omitempty"`
}

// SignedAmountCents returns the entry's contribution to its invoice total:
// expenses add, credits subtract.
func (e *Entry) SignedAmountCents() int64 {
	if e.Kind == EntryCredit {
		return -e.AmountCents
	}
	return e.AmountCents
}

// ReorderDirection selects which neighbour an expense swaps display order with.
type ReorderDirection string

const (
	ReorderUp   ReorderDirection = "up"
	ReorderDown ReorderDirection = "down"
)

// IsValid reports whether d is a known direction.
func (d ReorderDirection) IsValid() bool {
	return d == ReorderUp || d == ReorderDown
}

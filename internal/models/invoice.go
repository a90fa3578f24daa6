package models

import (
	"time"

	"github.com/genuinocomercialatacadistaltda-boop/erp-demo-railway-sub000/internal/utils"
)

// InvoiceStatus is the billing-cycle state of an invoice.
type InvoiceStatus string

const (
	InvoiceOpen    InvoiceStatus = "OPEN"
	InvoiceClosed  InvoiceStatus = "CLOSED"
	InvoiceOverdue InvoiceStatus = "OVERDUE"
	InvoicePaid    InvoiceStatus = "PAID" // terminal
)

// IsValid reports whether s is a known invoice status.
func (s InvoiceStatus) IsValid() bool {
	switch s {
	case InvoiceOpen, InvoiceClosed, InvoiceOverdue, InvoicePaid:
		return true
	}
	return false
}

// ConsumesLimit reports whether an invoice in this status still occupies the
// card's limit. Settling an invoice frees the credit it occupied.
func (s InvoiceStatus) ConsumesLimit() bool {
	return s != InvoicePaid
}

// Invoice is one monthly billing cycle of a credit card.
//
// Reference is the first day of the calendar month the invoice represents
// (UTC midnight). TotalCents is a derived snapshot: it is recomputed from the
// linked entries inside every mutating transaction and never incremented in
// place, so concurrent writers cannot drift it. OrderVersion is bumped by
// every permutation of the invoice's expense ordering and serves as the CAS
// guard for reorders.
type Invoice struct {
	Base          `bson:",inline"`
	CardID        utils.SixID   `bson:"card_id" json:"card_id"`
	Reference     time.Time     `bson:"reference" json:"reference"`
	ClosingDate   time.Time     `bson:"closing_date" json:"closing_date"`
	DueDate       time.Time     `bson:"due_date" json:"due_date"`
	Status        InvoiceStatus `bson:"status" json:"status"`
	TotalCents    int64         `bson:"total_cents" json:"total_cents"`
	OrderVersion  int64         `bson:"order_version" json:"-"`
	PaidAt        *time.Time    `bson:"paid_at,omitempty" json:"paid_at,omitempty"`
	BankAccountID *utils.SixID  `bson:"bank_account_id,omitempty" json:"bank_account_id,omitempty"`
	CreatedAt     time.Time     `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time     `bson:"updated_at" json:"updated_at"`
}

// ReferenceOf normalizes t to first-of-month UTC, the canonical reference
// value for the unique (card, reference) index.
func ReferenceOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// Payable mirrors a CLOSED/OVERDUE invoice for the accounts-payable views.
// It is created when the invoice closes, settled when it is paid, and removed
// when the invoice reopens or is deleted.
type Payable struct {
	Base        `bson:",inline"`
	InvoiceID   utils.SixID `bson:"invoice_id" json:"invoice_id"`
	CardID      utils.SixID `bson:"card_id" json:"card_id"`
	Description string      `bson:"description" json:"description"`
	AmountCents int64       `bson:"amount_cents" json:"amount_cents"`
	DueDate     time.Time   `bson:"due_date" json:"due_date"`
	SettledAt   *time.Time  `bson:"settled_at,omitempty" json:"settled_at,omitempty"`
	CreatedAt   time.Time   `bson:"created_at" json:"created_at"`
}

// BankTransaction is the settlement row the bank ledger records when an
// invoice is paid.
type BankTransaction struct {
	Base          `bson:",inline"`
	BankAccountID utils.SixID `bson:"bank_account_id" json:"bank_account_id"`
	InvoiceID     utils.SixID `bson:"invoice_id" json:"invoice_id"`
	AmountCents   int64       `bson:"amount_cents" json:"amount_cents"`
	Date          time.Time   `bson:"date" json:"date"`
	Reference     string      `bson:"reference" json:"reference"`
	CreatedAt     time.Time   `bson:"created_at" json:"created_at"`
}

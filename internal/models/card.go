package models

import (
	"time"
)

// CreditCard represents a company credit card whose billing cycles the ledger
// engine manages. All monetary fields are integer cents.
type CreditCard struct {
	Base       `bson:",inline"`
	Name       string    `bson:"name" json:"name"`
	LimitCents int64     `bson:"limit_cents" json:"limit_cents"`
	ClosingDay int       `bson:"closing_day" json:"closing_day"` // 1-31, clamped to month length
	DueDay     int       `bson:"due_day" json:"due_day"`         // 1-31, clamped to month length
	Active     bool      `bson:"active" json:"active"`
	Color      string    `bson:"color" json:"color"` // Display color for the UI
	CreatedAt  time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt  time.Time `bson:"updated_at" json:"updated_at"`
}

// CardStatement is the read model the UI consumes: the card, its open invoice
// (if any), the derived available limit and the invoice history.
type CardStatement struct {
	Card                CreditCard `json:"card"`
	AvailableLimitCents int64      `json:"available_limit_cents"`
	OpenInvoice         *Invoice   `json:"open_invoice,omitempty"`
	Invoices            []Invoice  `json:"invoices"`
	OverLimit           bool       `json:"over_limit"`
	ConsumedLimitCents  int64      `json:"consumed_limit_cents"`
	GeneratedAt         time.Time  `json:"generated_at"`
	FromCache           bool       `json:"-"`
}

// BankAccount is an id-referenced directory entry used when settling invoices.
// Full bank account management lives in a separate screen; the engine only
// needs the reference.
type BankAccount struct {
	Base   `bson:",inline"`
	Name   string `bson:"name" json:"name"`
	Active bool   `bson:"active" json:"active"`
}

// Category is an id-referenced directory entry for expense classification.
type Category struct {
	Base `bson:",inline"`
	Name string `bson:"name" json:"name"`
}

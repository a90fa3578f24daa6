package services

import (
	"errors"
)

// Sentinel errors returned by the ledger engine. Handlers map these to HTTP
// statuses; none of them is retried automatically — only infrastructure
// errors (duplicate random IDs) go through the db retry helper.
var (
	// Lookups
	ErrCardNotFound        = errors.New("credit card not found")
	ErrInvoiceNotFound     = errors.New("invoice not found")
	ErrEntryNotFound       = errors.New("ledger entry not found")
	ErrBankAccountNotFound = errors.New("bank account not found")

	// Lifecycle
	ErrDuplicateInvoice    = errors.New("an invoice already exists for this card and reference month")
	ErrInvalidTransition   = errors.New("invoice status does not allow this transition")
	ErrCannotDeleteSettled = errors.New("settled invoices cannot be deleted")
	ErrInvoiceNotEditable  = errors.New("invoice is not open for editing")

	// Ledger
	ErrPartialAllocation = errors.New("installment allocation failed; no installments were posted")
	ErrSettlementFailed  = errors.New("bank settlement could not be recorded")
	ErrLimitExceeded     = errors.New("purchase exceeds the card's available limit")
	ErrCardInactive      = errors.New("credit card is deactivated")
	ErrCardInUse         = errors.New("credit card still owns invoices")
)

// IsNotFound reports whether err is any of the engine's not-found errors.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrCardNotFound) ||
		errors.Is(err, ErrInvoiceNotFound) ||
		errors.Is(err, ErrEntryNotFound) ||
		errors.Is(err, ErrBankAccountNotFound)
}

// IsConflict reports whether err is a state conflict the caller should surface
// as an actionable message rather than retry.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateInvoice) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrCannotDeleteSettled) ||
		errors.Is(err, ErrInvoiceNotEditable) ||
		errors.Is(err, ErrCardInUse)
}

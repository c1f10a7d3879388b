package domain

import "time"

// LedgerReason enumerates why a credit balance changed.
type LedgerReason string

const (
	ReasonGenerationDebit  LedgerReason = "GENERATION_DEBIT"
	ReasonGenerationRefund LedgerReason = "GENERATION_REFUND"
	ReasonCreditPurchase   LedgerReason = "CREDIT_PURCHASE"
)

// CreditLedgerEntry is an immutable record of a balance change. At most one
// entry may exist per (related task, reason) pair; that uniqueness is what
// makes debit and refund safe to retry.
type CreditLedgerEntry struct {
	ID             string
	UserID         string
	Delta          int64
	Reason         LedgerReason
	RelatedTaskID  string
	IdempotencyKey string
	CreatedAt      time.Time
}

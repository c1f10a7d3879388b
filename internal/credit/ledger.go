// Package credit owns the append-only credit ledger: balances are derived
// from entries, and entries tied to a task are unique per (task, reason) so
// settlement is exactly-once no matter how often a caller retries.
package credit

import (
	"context"
	"fmt"

	"reelgen/internal/domain"
	"reelgen/internal/infra"
	"reelgen/internal/sqlinline"
)

type Ledger struct {
	sql    infra.SQLExecutor
	logger infra.Logger
}

func NewLedger(sql infra.SQLExecutor, logger infra.Logger) *Ledger {
	return &Ledger{sql: sql, logger: logger}
}

// Balance returns the user's current balance as the sum of ledger entries.
func (l *Ledger) Balance(ctx context.Context, userID string) (int64, error) {
	var balance int64
	if err := l.sql.QueryRow(ctx, sqlinline.QSelectBalance, userID).Scan(&balance); err != nil {
		return 0, fmt.Errorf("select balance: %w", err)
	}
	return balance, nil
}

// RefundTask credits back the original debit of a FAILED task. Safe to call
// redundantly: a refund that already landed is a silent no-op, so the client
// poll path and the reconciliation sweep can both invoke it without
// coordination.
func (l *Ledger) RefundTask(ctx context.Context, taskID string) error {
	var inserted, flagged int
	if err := l.sql.QueryRow(ctx, sqlinline.QRefundFailedTask, taskID).Scan(&inserted, &flagged); err != nil {
		return fmt.Errorf("refund task %s: %w", taskID, err)
	}
	if flagged == 0 {
		return fmt.Errorf("refund task %s: %w", taskID, domain.ErrInvalidTaskState)
	}
	if inserted == 0 {
		l.logger.Debug().Str("task_id", taskID).Msg("credit: refund already applied")
		return nil
	}
	l.logger.Info().Str("task_id", taskID).Msg("credit: refund applied")
	return nil
}

// Grant adds purchased credits. The destination account is always the
// authenticated user passed in by the caller; there is deliberately no way
// to route a grant anywhere else. Duplicate idempotency keys are no-ops.
func (l *Ledger) Grant(ctx context.Context, userID string, amount int64, idempotencyKey string) error {
	if amount <= 0 {
		return fmt.Errorf("grant amount must be positive")
	}
	var id string
	err := l.sql.QueryRow(ctx, sqlinline.QInsertCreditPurchase, userID, amount, idempotencyKey).Scan(&id)
	if err != nil {
		if infra.IsNoRows(err) {
			l.logger.Debug().Str("user_id", userID).Str("key", idempotencyKey).Msg("credit: grant already applied")
			return nil
		}
		return fmt.Errorf("grant credits: %w", err)
	}
	l.logger.Info().Str("user_id", userID).Int64("amount", amount).Msg("credit: grant applied")
	return nil
}

// History returns the user's most recent ledger entries, newest first.
func (l *Ledger) History(ctx context.Context, userID string, limit int) ([]domain.CreditLedgerEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := l.sql.Query(ctx, sqlinline.QSelectLedgerEntries, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("select ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.CreditLedgerEntry
	for rows.Next() {
		var e domain.CreditLedgerEntry
		var reason string
		if err := rows.Scan(&e.ID, &e.UserID, &e.Delta, &reason, &e.RelatedTaskID, &e.IdempotencyKey, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		e.Reason = domain.LedgerReason(reason)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger entries: %w", err)
	}
	return entries, nil
}

// EntryCount reports how many ledger entries exist for a task and reason.
// The invariant is that it never exceeds one.
func (l *Ledger) EntryCount(ctx context.Context, taskID string, reason domain.LedgerReason) (int, error) {
	var count int
	if err := l.sql.QueryRow(ctx, sqlinline.QCountLedgerEntries, taskID, string(reason)).Scan(&count); err != nil {
		return 0, fmt.Errorf("count ledger entries: %w", err)
	}
	return count, nil
}

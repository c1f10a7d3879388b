// Package task owns the generation task lifecycle: creation with the atomic
// credit debit, provider submission, and the single PENDING->terminal
// transition function shared by the client poll path and the background
// sweep.
package task

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"reelgen/internal/credit"
	"reelgen/internal/domain"
	"reelgen/internal/infra"
	"reelgen/internal/provider"
	"reelgen/internal/sqlinline"
)

// Manager drives GenerationTask state. All writes to a task's status funnel
// through the conditional updates in sqlinline, so every trigger (poll, TTL
// sweep, submit failure) shares one transition path.
type Manager struct {
	sql             infra.SQLExecutor
	gateway         provider.Gateway
	ledger          *credit.Ledger
	logger          infra.Logger
	ttl             time.Duration
	maxPollFailures int
	now             func() time.Time
}

type ManagerOptions struct {
	SQL             infra.SQLExecutor
	Gateway         provider.Gateway
	Ledger          *credit.Ledger
	Logger          infra.Logger
	TaskTTL         time.Duration
	MaxPollFailures int
	Now             func() time.Time
}

func NewManager(opts ManagerOptions) *Manager {
	ttl := opts.TaskTTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	maxFailures := opts.MaxPollFailures
	if maxFailures <= 0 {
		maxFailures = 10
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{
		sql:             opts.SQL,
		gateway:         opts.Gateway,
		ledger:          opts.Ledger,
		logger:          opts.Logger,
		ttl:             ttl,
		maxPollFailures: maxFailures,
		now:             now,
	}
}

// Create validates the spec, debits the owner and persists the PENDING task
// atomically, then submits to the provider. A synchronous submit failure
// fails and refunds the task before returning, so a job the provider never
// accepted is never observable as PENDING.
func (m *Manager) Create(ctx context.Context, ownerID string, spec domain.GenerationSpec) (*domain.GenerationTask, error) {
	if err := ValidateSpec(spec); err != nil {
		return nil, err
	}
	cost := Cost(spec)
	taskID := uuid.NewString()

	var createdID string
	var remaining int64
	err := m.sql.QueryRow(ctx, sqlinline.QCreateTaskWithDebit,
		taskID, ownerID, spec.Prompt, spec.Model, spec.DurationSeconds, spec.AspectRatio, cost,
	).Scan(&createdID, &remaining)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrInsufficientCredits
		}
		return nil, fmt.Errorf("create task: %w", err)
	}
	m.logger.Info().Str("task_id", taskID).Str("user_id", ownerID).
		Int64("cost", cost).Int64("remaining", remaining).Msg("task: created")

	handle, err := m.gateway.Submit(ctx, provider.SubmitSpec{
		Prompt:          spec.Prompt,
		Model:           spec.Model,
		DurationSeconds: spec.DurationSeconds,
		AspectRatio:     spec.AspectRatio,
		RequestID:       taskID,
	})
	if err != nil {
		kind, detail := classifySubmitError(err)
		m.failAndRefund(ctx, taskID, kind, detail, 0)
		return nil, fmt.Errorf("%w: %s", domain.ErrProviderFailure, detail)
	}

	if _, err := m.sql.Exec(ctx, sqlinline.QAttachProviderHandle, taskID, handle); err != nil {
		// The job is running provider-side; the sweep will still fail the
		// task at TTL if we can never record the handle.
		m.logger.Error().Err(err).Str("task_id", taskID).Msg("task: attach provider handle failed")
	}

	return m.getTask(ctx, taskID)
}

// GetStatus returns the current view of a task. While the task is PENDING it
// performs at most one gateway round trip and applies the transition if the
// provider reports a terminal state.
func (m *Manager) GetStatus(ctx context.Context, ownerID, taskID string) (*domain.GenerationTask, error) {
	t, err := m.getTaskForOwner(ctx, taskID, ownerID)
	if err != nil {
		return nil, err
	}
	if t.Status != domain.TaskStatusPending {
		return t, nil
	}

	if m.now().Sub(t.CreatedAt) > m.ttl {
		m.failAndRefund(ctx, taskID, domain.ErrorKindTimeout, "generation exceeded ttl", 0)
		return m.getTaskForOwner(ctx, taskID, ownerID)
	}

	if t.ProviderHandle == "" {
		return t, nil
	}

	m.pollAndApply(ctx, taskID, t.ProviderHandle)
	return m.getTaskForOwner(ctx, taskID, ownerID)
}

// pollAndApply performs one provider poll and applies the resulting
// transition, if any. Gateway errors are counted but do not fail the task
// until the consecutive-failure budget is exhausted.
func (m *Manager) pollAndApply(ctx context.Context, taskID, handle string) {
	st, err := m.gateway.PollStatus(ctx, handle)
	if err != nil {
		var failures int
		if scanErr := m.sql.QueryRow(ctx, sqlinline.QRecordPollFailure, taskID).Scan(&failures); scanErr != nil {
			if !infra.IsNoRows(scanErr) {
				m.logger.Error().Err(scanErr).Str("task_id", taskID).Msg("task: record poll failure")
			}
			return
		}
		m.logger.Warn().Err(err).Str("task_id", taskID).Int("failures", failures).Msg("task: provider poll failed")
		if failures >= m.maxPollFailures {
			m.failAndRefund(ctx, taskID, domain.ErrorKindTransientProvider, "provider unreachable", 0)
		}
		return
	}

	switch st.Kind {
	case provider.StatusPending:
		if _, err := m.sql.Exec(ctx, sqlinline.QResetPollFailures, taskID); err != nil {
			m.logger.Error().Err(err).Str("task_id", taskID).Msg("task: reset poll failures")
		}
	case provider.StatusSucceeded:
		m.markSucceeded(ctx, taskID, st.AssetURL, st.Cost)
	case provider.StatusFailed:
		m.failAndRefund(ctx, taskID, errorKindFromFailure(st.FailureCode), st.FailureDetail, st.Cost)
	}
}

// markSucceeded applies PENDING->SUCCEEDED. Losing the compare-and-swap to a
// concurrent poller is not an error; the terminal state is already in place.
func (m *Manager) markSucceeded(ctx context.Context, taskID, assetURL string, cost int64) {
	var id string
	err := m.sql.QueryRow(ctx, sqlinline.QMarkTaskSucceeded, taskID, assetURL, cost).Scan(&id)
	if err != nil {
		if infra.IsNoRows(err) {
			m.logger.Debug().Str("task_id", taskID).Msg("task: succeeded transition already applied")
			return
		}
		m.logger.Error().Err(err).Str("task_id", taskID).Msg("task: succeeded transition failed")
		return
	}
	m.logger.Info().Str("task_id", taskID).Msg("task: succeeded, draft ready")
}

// failAndRefund applies PENDING->FAILED and settles the refund. If the
// refund insert cannot land right now the task is left FAILED with
// refunded=false and the reconciliation sweep retries it.
func (m *Manager) failAndRefund(ctx context.Context, taskID string, kind domain.ErrorKind, detail string, providerCost int64) {
	var id string
	err := m.sql.QueryRow(ctx, sqlinline.QMarkTaskFailed, taskID, string(kind), detail, providerCost).Scan(&id)
	if err != nil {
		if infra.IsNoRows(err) {
			m.logger.Debug().Str("task_id", taskID).Msg("task: failed transition already applied")
			return
		}
		m.logger.Error().Err(err).Str("task_id", taskID).Msg("task: failed transition failed")
		return
	}
	m.logger.Info().Str("task_id", taskID).Str("error_kind", string(kind)).Msg("task: failed")

	if err := m.ledger.RefundTask(ctx, taskID); err != nil {
		m.logger.Error().Err(err).Str("task_id", taskID).Msg("task: refund deferred to reconciliation")
	}
}

// SweepOnce claims a batch of stale PENDING tasks and drives each one: tasks
// past TTL are force-failed with TIMEOUT, the rest get one provider poll.
func (m *Manager) SweepOnce(ctx context.Context, notPolledFor time.Duration, batch int) (int, error) {
	interval := fmt.Sprintf("%d seconds", int(notPolledFor.Seconds()))
	rows, err := m.sql.Query(ctx, sqlinline.QClaimPendingTasks, interval, batch)
	if err != nil {
		return 0, fmt.Errorf("claim pending tasks: %w", err)
	}
	type claimed struct {
		id        string
		handle    string
		createdAt time.Time
	}
	var batchTasks []claimed
	for rows.Next() {
		var c claimed
		var ownerID string
		var debited int64
		var failures int
		if err := rows.Scan(&c.id, &ownerID, &c.handle, &debited, &failures, &c.createdAt); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan claimed task: %w", err)
		}
		batchTasks = append(batchTasks, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate claimed tasks: %w", err)
	}

	for _, c := range batchTasks {
		if m.now().Sub(c.createdAt) > m.ttl {
			m.failAndRefund(ctx, c.id, domain.ErrorKindTimeout, "generation exceeded ttl", 0)
			continue
		}
		if c.handle == "" {
			continue
		}
		m.pollAndApply(ctx, c.id, c.handle)
	}
	return len(batchTasks), nil
}

// ReconcileRefunds retries refunds for FAILED tasks whose settlement has not
// landed yet.
func (m *Manager) ReconcileRefunds(ctx context.Context, batch int) (int, error) {
	rows, err := m.sql.Query(ctx, sqlinline.QSelectUnrefundedFailedTasks, batch)
	if err != nil {
		return 0, fmt.Errorf("select unrefunded tasks: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan unrefunded task: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate unrefunded tasks: %w", err)
	}

	for _, id := range ids {
		if err := m.ledger.RefundTask(ctx, id); err != nil {
			m.logger.Error().Err(err).Str("task_id", id).Msg("task: reconciliation refund failed")
		}
	}
	return len(ids), nil
}

func (m *Manager) getTask(ctx context.Context, taskID string) (*domain.GenerationTask, error) {
	return scanTask(m.sql.QueryRow(ctx, sqlinline.QSelectTask, taskID))
}

func (m *Manager) getTaskForOwner(ctx context.Context, taskID, ownerID string) (*domain.GenerationTask, error) {
	return scanTask(m.sql.QueryRow(ctx, sqlinline.QSelectTaskForOwner, taskID, ownerID))
}

func scanTask(row pgx.Row) (*domain.GenerationTask, error) {
	var t domain.GenerationTask
	var status, publishStatus, errorKind string
	if err := row.Scan(
		&t.ID,
		&t.OwnerID,
		&t.Prompt,
		&t.Model,
		&t.DurationSeconds,
		&t.AspectRatio,
		&status,
		&publishStatus,
		&t.DraftAssetURL,
		&t.ProviderHandle,
		&t.ProviderCost,
		&errorKind,
		&t.ErrorDetail,
		&t.CreditsDebited,
		&t.Refunded,
		&t.PollFailures,
		&t.CreatedAt,
		&t.CompletedAt,
	); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scan task: %w", err)
	}
	t.Status = domain.TaskStatus(status)
	t.PublishStatus = domain.PublishStatus(publishStatus)
	t.ErrorKind = domain.ErrorKind(errorKind)
	return &t, nil
}

func classifySubmitError(err error) (domain.ErrorKind, string) {
	if se, ok := provider.IsSubmitRejection(err); ok {
		return errorKindFromFailure(se.Code), se.Detail
	}
	return domain.ErrorKindTransientProvider, err.Error()
}

func errorKindFromFailure(code provider.FailureCode) domain.ErrorKind {
	switch code {
	case provider.FailureContentPolicy:
		return domain.ErrorKindContentPolicy
	case provider.FailureTransient:
		return domain.ErrorKindTransientProvider
	default:
		return domain.ErrorKindUnknown
	}
}

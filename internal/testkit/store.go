// Package testkit provides an in-memory SQLExecutor that mirrors the
// semantics of the sqlinline statements, plus a scriptable provider gateway.
// Service and handler tests run against it without a database.
package testkit

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"reelgen/internal/domain"
	"reelgen/internal/sqlinline"
)

type ledgerEntry struct {
	id        string
	userID    string
	delta     int64
	reason    string
	taskID    string
	key       string
	createdAt time.Time
}

type videoRec struct {
	id          string
	ownerID     string
	videoURL    string
	description string
	hashtags    []string
	musicJSON   []byte
	taskID      string
	createdAt   time.Time
	seq         int
}

// Store is a mutex-guarded in-memory stand-in for the Postgres schema. Each
// sqlinline statement gets the same visible behavior it has against the real
// database, including the compare-and-swap guards and uniqueness rules.
type Store struct {
	mu         sync.Mutex
	tasks      map[string]*domain.GenerationTask
	lastPolled map[string]time.Time
	entries    []ledgerEntry
	entryKeys  map[string]bool
	grantKeys  map[string]bool
	videos     map[string]*videoRec // keyed by source task id
	seq        int

	// Fail forces an error for a given query constant, for injecting
	// storage failures into one statement.
	Fail map[string]error

	Now func() time.Time
}

func NewStore() *Store {
	return &Store{
		tasks:      make(map[string]*domain.GenerationTask),
		lastPolled: make(map[string]time.Time),
		entryKeys:  make(map[string]bool),
		grantKeys:  make(map[string]bool),
		videos:     make(map[string]*videoRec),
		Fail:       make(map[string]error),
		Now:        time.Now,
	}
}

// SeedCredits appends a purchase entry so the derived balance starts at amount.
func (s *Store) SeedCredits(userID string, amount int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.entries = append(s.entries, ledgerEntry{
		id:        fmt.Sprintf("entry-%d", s.seq),
		userID:    userID,
		delta:     amount,
		reason:    string(domain.ReasonCreditPurchase),
		key:       fmt.Sprintf("seed-%d", s.seq),
		createdAt: s.Now(),
	})
}

// BalanceOf sums the ledger for a user.
func (s *Store) BalanceOf(userID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balanceLocked(userID)
}

// TaskByID returns a copy of the stored task, or nil.
func (s *Store) TaskByID(id string) *domain.GenerationTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil
	}
	cp := *t
	return &cp
}

// AllTaskIDs lists the ids of every stored task.
func (s *Store) AllTaskIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.tasks))
	for id := range s.tasks {
		ids = append(ids, id)
	}
	return ids
}

// EntryCountFor counts ledger entries tied to a task with the given reason.
func (s *Store) EntryCountFor(taskID string, reason domain.LedgerReason) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.entries {
		if e.taskID == taskID && e.reason == string(reason) {
			n++
		}
	}
	return n
}

// PutTask inserts a task directly, for arranging non-PENDING fixtures.
func (s *Store) PutTask(t domain.GenerationTask) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := t
	s.tasks[t.ID] = &cp
}

func (s *Store) balanceLocked(userID string) int64 {
	var sum int64
	for _, e := range s.entries {
		if e.userID == userID {
			sum += e.delta
		}
	}
	return sum
}

func (s *Store) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.Fail[query]; err != nil {
		return pgconn.CommandTag{}, err
	}
	switch query {
	case sqlinline.QAttachProviderHandle:
		taskID, handle := args[0].(string), args[1].(string)
		if t, ok := s.tasks[taskID]; ok && t.Status == domain.TaskStatusPending {
			t.ProviderHandle = handle
		}
	case sqlinline.QResetPollFailures:
		taskID := args[0].(string)
		if t, ok := s.tasks[taskID]; ok && t.Status == domain.TaskStatusPending {
			t.PollFailures = 0
			s.lastPolled[taskID] = s.Now()
		}
	default:
		return pgconn.CommandTag{}, fmt.Errorf("testkit: unhandled exec %.40q", query)
	}
	return pgconn.CommandTag{}, nil
}

func (s *Store) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.Fail[query]; err != nil {
		return errRow(err)
	}
	switch query {
	case sqlinline.QCreateTaskWithDebit:
		return s.createTaskWithDebit(args)
	case sqlinline.QSelectTask:
		t, ok := s.tasks[args[0].(string)]
		if !ok {
			return noRow()
		}
		return taskRow(t)
	case sqlinline.QSelectTaskForOwner:
		t, ok := s.tasks[args[0].(string)]
		if !ok || t.OwnerID != args[1].(string) {
			return noRow()
		}
		return taskRow(t)
	case sqlinline.QMarkTaskSucceeded:
		t, ok := s.tasks[args[0].(string)]
		if !ok || t.Status != domain.TaskStatusPending {
			return noRow()
		}
		now := s.Now()
		t.Status = domain.TaskStatusSucceeded
		t.PublishStatus = domain.PublishStatusDraft
		t.DraftAssetURL = args[1].(string)
		t.ProviderCost = asInt64(args[2])
		t.CompletedAt = &now
		return valueRow(t.ID)
	case sqlinline.QMarkTaskFailed:
		t, ok := s.tasks[args[0].(string)]
		if !ok || t.Status != domain.TaskStatusPending {
			return noRow()
		}
		now := s.Now()
		t.Status = domain.TaskStatusFailed
		t.ErrorKind = domain.ErrorKind(args[1].(string))
		t.ErrorDetail = args[2].(string)
		t.ProviderCost = asInt64(args[3])
		t.CompletedAt = &now
		return valueRow(t.ID)
	case sqlinline.QRecordPollFailure:
		t, ok := s.tasks[args[0].(string)]
		if !ok || t.Status != domain.TaskStatusPending {
			return noRow()
		}
		t.PollFailures++
		s.lastPolled[t.ID] = s.Now()
		return valueRow(t.PollFailures)
	case sqlinline.QRefundFailedTask:
		return s.refundFailedTask(args[0].(string))
	case sqlinline.QSelectBalance:
		return valueRow(s.balanceLocked(args[0].(string)))
	case sqlinline.QInsertCreditPurchase:
		key := args[2].(string)
		if s.grantKeys[key] {
			return noRow()
		}
		s.grantKeys[key] = true
		s.seq++
		id := fmt.Sprintf("entry-%d", s.seq)
		s.entries = append(s.entries, ledgerEntry{
			id:        id,
			userID:    args[0].(string),
			delta:     asInt64(args[1]),
			reason:    string(domain.ReasonCreditPurchase),
			key:       key,
			createdAt: s.Now(),
		})
		return valueRow(id)
	case sqlinline.QCountLedgerEntries:
		n := 0
		for _, e := range s.entries {
			if e.taskID == args[0].(string) && e.reason == args[1].(string) {
				n++
			}
		}
		return valueRow(n)
	case sqlinline.QPublishDraftTask:
		return s.publishDraftTask(args)
	case sqlinline.QSelectVideoByTask:
		v, ok := s.videos[args[0].(string)]
		if !ok || v.ownerID != args[1].(string) {
			return noRow()
		}
		return videoRow(v)
	case sqlinline.QRejectDraftTask:
		t, ok := s.tasks[args[0].(string)]
		if !ok || t.OwnerID != args[1].(string) || t.PublishStatus != domain.PublishStatusDraft {
			return noRow()
		}
		t.PublishStatus = domain.PublishStatusRejected
		return valueRow(t.ID)
	case sqlinline.QSelectTaskDecisionState:
		t, ok := s.tasks[args[0].(string)]
		if !ok || t.OwnerID != args[1].(string) {
			return noRow()
		}
		return valueRow(string(t.Status), string(t.PublishStatus))
	default:
		return errRow(fmt.Errorf("testkit: unhandled query_row %.40q", query))
	}
}

func (s *Store) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.Fail[query]; err != nil {
		return nil, err
	}
	switch query {
	case sqlinline.QClaimPendingTasks:
		staleBefore, err := parseInterval(args[0].(string), s.Now())
		if err != nil {
			return nil, err
		}
		batch := args[1].(int)
		var out [][]any
		for _, t := range s.tasks {
			if len(out) >= batch {
				break
			}
			if t.Status != domain.TaskStatusPending {
				continue
			}
			if polled, ok := s.lastPolled[t.ID]; ok && !polled.Before(staleBefore) {
				continue
			}
			s.lastPolled[t.ID] = s.Now()
			out = append(out, []any{t.ID, t.OwnerID, t.ProviderHandle, t.CreditsDebited, t.PollFailures, t.CreatedAt})
		}
		return &Rows{rows: out}, nil
	case sqlinline.QSelectUnrefundedFailedTasks:
		batch := args[0].(int)
		var out [][]any
		for _, t := range s.tasks {
			if len(out) >= batch {
				break
			}
			if t.Status == domain.TaskStatusFailed && !t.Refunded {
				out = append(out, []any{t.ID})
			}
		}
		return &Rows{rows: out}, nil
	case sqlinline.QSelectLedgerEntries:
		userID, limit := args[0].(string), args[1].(int)
		var out [][]any
		for i := len(s.entries) - 1; i >= 0 && len(out) < limit; i-- {
			e := s.entries[i]
			if e.userID != userID {
				continue
			}
			out = append(out, []any{e.id, e.userID, e.delta, e.reason, e.taskID, e.key, e.createdAt})
		}
		return &Rows{rows: out}, nil
	case sqlinline.QListPublishedVideos:
		limit := args[0].(int)
		recs := make([]*videoRec, 0, len(s.videos))
		for _, v := range s.videos {
			recs = append(recs, v)
		}
		// Newest first, matching the statement's created_at ordering.
		sort.Slice(recs, func(i, j int) bool {
			if !recs[i].createdAt.Equal(recs[j].createdAt) {
				return recs[i].createdAt.After(recs[j].createdAt)
			}
			return recs[i].seq > recs[j].seq
		})
		var out [][]any
		for _, v := range recs {
			if len(out) >= limit {
				break
			}
			out = append(out, videoRow(v).vals)
		}
		return &Rows{rows: out}, nil
	default:
		return nil, fmt.Errorf("testkit: unhandled query %.40q", query)
	}
}

func (s *Store) createTaskWithDebit(args []any) Row {
	taskID, ownerID := args[0].(string), args[1].(string)
	cost := asInt64(args[6])
	balance := s.balanceLocked(ownerID)
	if balance < cost {
		return noRow()
	}
	key := taskID + ":" + string(domain.ReasonGenerationDebit)
	if s.entryKeys[key] {
		return errRow(fmt.Errorf("testkit: duplicate debit for task %s", taskID))
	}
	s.entryKeys[key] = true
	s.seq++
	s.entries = append(s.entries, ledgerEntry{
		id:        fmt.Sprintf("entry-%d", s.seq),
		userID:    ownerID,
		delta:     -cost,
		reason:    string(domain.ReasonGenerationDebit),
		taskID:    taskID,
		key:       key,
		createdAt: s.Now(),
	})
	s.tasks[taskID] = &domain.GenerationTask{
		ID:              taskID,
		OwnerID:         ownerID,
		Prompt:          args[2].(string),
		Model:           args[3].(string),
		DurationSeconds: args[4].(int),
		AspectRatio:     args[5].(string),
		Status:          domain.TaskStatusPending,
		CreditsDebited:  cost,
		CreatedAt:       s.Now(),
	}
	return valueRow(taskID, balance-cost)
}

func (s *Store) refundFailedTask(taskID string) Row {
	t, ok := s.tasks[taskID]
	if !ok || t.Status != domain.TaskStatusFailed {
		return valueRow(0, 0)
	}
	inserted := 0
	key := taskID + ":" + string(domain.ReasonGenerationRefund)
	if !s.entryKeys[key] {
		s.entryKeys[key] = true
		s.seq++
		s.entries = append(s.entries, ledgerEntry{
			id:        fmt.Sprintf("entry-%d", s.seq),
			userID:    t.OwnerID,
			delta:     t.CreditsDebited,
			reason:    string(domain.ReasonGenerationRefund),
			taskID:    taskID,
			key:       key,
			createdAt: s.Now(),
		})
		inserted = 1
	}
	t.Refunded = true
	return valueRow(inserted, 1)
}

func (s *Store) publishDraftTask(args []any) Row {
	taskID, ownerID := args[0].(string), args[1].(string)
	t, ok := s.tasks[taskID]
	if ok && t.OwnerID == ownerID && t.PublishStatus == domain.PublishStatusDraft {
		if _, exists := s.videos[taskID]; !exists {
			s.seq++
			s.videos[taskID] = &videoRec{
				id:          args[2].(string),
				ownerID:     t.OwnerID,
				videoURL:    t.DraftAssetURL,
				description: args[3].(string),
				hashtags:    toStrings(args[4]),
				musicJSON:   toBytes(args[5]),
				taskID:      taskID,
				createdAt:   s.Now(),
				seq:         s.seq,
			}
		}
		t.PublishStatus = domain.PublishStatusPublished
	}
	v, exists := s.videos[taskID]
	if !exists || v.ownerID != ownerID {
		return noRow()
	}
	return videoRow(v)
}

func taskRow(t *domain.GenerationTask) Row {
	var completed any
	if t.CompletedAt != nil {
		completed = t.CompletedAt
	}
	return valueRow(
		t.ID, t.OwnerID, t.Prompt, t.Model, t.DurationSeconds, t.AspectRatio,
		string(t.Status), string(t.PublishStatus), t.DraftAssetURL,
		t.ProviderHandle, t.ProviderCost, string(t.ErrorKind), t.ErrorDetail,
		t.CreditsDebited, t.Refunded, t.PollFailures, t.CreatedAt, completed,
	)
}

func videoRow(v *videoRec) Row {
	return valueRow(v.id, v.ownerID, v.videoURL, v.description, v.hashtags, v.musicJSON, v.taskID, v.createdAt)
}

func parseInterval(s string, now time.Time) (time.Time, error) {
	var seconds int
	if _, err := fmt.Sscanf(s, "%d seconds", &seconds); err != nil {
		return time.Time{}, fmt.Errorf("testkit: bad interval %q: %w", s, err)
	}
	return now.Add(-time.Duration(seconds) * time.Second), nil
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	}
	return 0
}

func toStrings(v any) []string {
	if s, ok := v.([]string); ok {
		return s
	}
	return nil
}

func toBytes(v any) []byte {
	if b, ok := v.([]byte); ok {
		return b
	}
	return nil
}

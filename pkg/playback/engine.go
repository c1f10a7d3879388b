// Package playback drives a draft preview session: load the asset under a
// watchdog, retry a bounded number of times on retryable faults, and tear
// down cleanly when the preview closes. One Engine per preview session;
// sessions share nothing.
package playback

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// State is the preview session state.
type State string

const (
	StateIdle     State = "idle"
	StateLoading  State = "loading"
	StateReady    State = "ready"
	StatePlaying  State = "playing"
	StatePaused   State = "paused"
	StateEnded    State = "ended"
	StateRetrying State = "retrying"
	StateError    State = "error"
)

// FaultKind classifies a media fault. Network and abort faults are worth
// retrying; decode and unsupported-format faults are permanent for the asset.
type FaultKind string

const (
	FaultAborted     FaultKind = "aborted"
	FaultNetwork     FaultKind = "network"
	FaultDecode      FaultKind = "decode"
	FaultUnsupported FaultKind = "unsupported"
)

// Retryable reports whether an automatic retry can help.
func (k FaultKind) Retryable() bool {
	return k == FaultNetwork || k == FaultAborted
}

// Message is the user-facing description for the fault.
func (k FaultKind) Message() string {
	switch k {
	case FaultAborted:
		return "Playback was interrupted. Retrying..."
	case FaultNetwork:
		return "A network problem interrupted playback. Retrying..."
	case FaultDecode:
		return "This video could not be decoded."
	case FaultUnsupported:
		return "This video format is not supported."
	default:
		return "Playback failed."
	}
}

// MediaError is a classified media fault reported by the loader or the
// playing surface.
type MediaError struct {
	Kind   FaultKind
	Detail string
}

func (e *MediaError) Error() string {
	if e.Detail == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Detail
}

// LoadFunc prepares the media resource. It must honor ctx cancellation and
// return a *MediaError for classified faults.
type LoadFunc func(ctx context.Context) error

const (
	defaultWatchdog    = 15 * time.Second
	defaultRetryDelay  = 2 * time.Second
	defaultMaxAttempts = 3
)

// Options configures an Engine. Only Load is required.
type Options struct {
	Load        LoadFunc
	Watchdog    time.Duration
	RetryDelay  time.Duration
	MaxAttempts int
	// OnState, when set, observes every state change. It is called from the
	// engine's goroutines after the transition is committed; it must not call
	// back into the engine.
	OnState func(State)
}

// Engine is the bounded playback state machine for one preview session.
type Engine struct {
	mu          sync.Mutex
	state       State
	attempts    int
	fault       *MediaError
	pendingPlay bool
	closed      bool
	gen         int

	load        LoadFunc
	watchdog    time.Duration
	maxAttempts int
	retryWait   backoff.BackOff
	onState     func(State)

	ctx        context.Context
	cancel     context.CancelFunc
	retryTimer *time.Timer
	wg         sync.WaitGroup
}

// NewEngine builds an idle engine. Start begins the first load attempt.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Load == nil {
		return nil, errors.New("playback: Load is required")
	}
	watchdog := opts.Watchdog
	if watchdog <= 0 {
		watchdog = defaultWatchdog
	}
	retryDelay := opts.RetryDelay
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		state:       StateIdle,
		load:        opts.Load,
		watchdog:    watchdog,
		maxAttempts: maxAttempts,
		retryWait:   backoff.NewConstantBackOff(retryDelay),
		onState:     opts.OnState,
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Start begins loading. Calling Start more than once is a no-op.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.state != StateIdle {
		return
	}
	e.beginAttemptLocked()
}

// Play requests playback. While the asset is not Ready the request re-enters
// Loading rather than playing an unprepared resource; after a terminal error
// only Retry can restart the session.
func (e *Engine) Play() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	switch e.state {
	case StateReady, StatePaused, StateEnded:
		e.setStateLocked(StatePlaying)
	case StateIdle:
		e.pendingPlay = true
		e.beginAttemptLocked()
	case StateLoading:
		e.pendingPlay = true
	case StateRetrying:
		e.pendingPlay = true
		e.stopRetryTimerLocked()
		e.beginAttemptLocked()
	case StatePlaying, StateError:
		// nothing to do
	}
}

// Pause pauses active playback.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.state != StatePlaying {
		return
	}
	e.setStateLocked(StatePaused)
}

// Ended signals that the media played to completion.
func (e *Engine) Ended() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.state != StatePlaying {
		return
	}
	e.setStateLocked(StateEnded)
}

// ReportFault feeds a runtime media fault (decode error, network stall)
// observed while playing or paused into the retry machinery.
func (e *Engine) ReportFault(kind FaultKind, detail string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	switch e.state {
	case StatePlaying, StatePaused, StateReady:
		e.handleFailureLocked(&MediaError{Kind: kind, Detail: detail})
	}
}

// Retry is the manual retry affordance surfaced once automatic attempts are
// exhausted. It resets the attempt budget.
func (e *Engine) Retry() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.state != StateError {
		return
	}
	e.attempts = 0
	e.fault = nil
	e.retryWait.Reset()
	e.beginAttemptLocked()
}

// Close tears the session down: the media context is cancelled, pending
// retry timers are discarded, and no callback from a stale attempt can
// mutate state afterwards.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.stopRetryTimerLocked()
	e.cancel()
	e.mu.Unlock()
	e.wg.Wait()
}

// State returns the current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Attempts returns how many load attempts the current budget has used.
func (e *Engine) Attempts() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.attempts
}

// Fault returns the last classified fault, if any.
func (e *Engine) Fault() *MediaError {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fault
}

func (e *Engine) beginAttemptLocked() {
	e.attempts++
	e.gen++
	gen := e.gen
	e.setStateLocked(StateLoading)

	actx, cancel := context.WithTimeout(e.ctx, e.watchdog)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer cancel()
		err := e.load(actx)
		e.finishAttempt(gen, err)
	}()
}

func (e *Engine) finishAttempt(gen int, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || gen != e.gen || e.state != StateLoading {
		return
	}
	if err == nil {
		e.fault = nil
		if e.pendingPlay {
			e.pendingPlay = false
			e.setStateLocked(StatePlaying)
		} else {
			e.setStateLocked(StateReady)
		}
		return
	}
	e.handleFailureLocked(classify(err))
}

// handleFailureLocked applies the bounded-retry policy to a classified
// fault: schedule exactly one retry while budget remains, otherwise park in
// the terminal Error state awaiting a manual retry.
func (e *Engine) handleFailureLocked(me *MediaError) {
	e.fault = me
	if !me.Kind.Retryable() || e.attempts >= e.maxAttempts {
		e.setStateLocked(StateError)
		return
	}
	e.setStateLocked(StateRetrying)
	gen := e.gen
	e.retryTimer = time.AfterFunc(e.retryWait.NextBackOff(), func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.closed || gen != e.gen || e.state != StateRetrying {
			return
		}
		e.beginAttemptLocked()
	})
}

func (e *Engine) stopRetryTimerLocked() {
	if e.retryTimer != nil {
		e.retryTimer.Stop()
		e.retryTimer = nil
	}
}

func (e *Engine) setStateLocked(s State) {
	if e.state == s {
		return
	}
	e.state = s
	if e.onState != nil {
		e.onState(s)
	}
}

// classify maps a load error onto a media fault. A watchdog expiry presents
// as context.DeadlineExceeded and counts as a network-class (retryable)
// fault.
func classify(err error) *MediaError {
	var me *MediaError
	if errors.As(err, &me) {
		return me
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &MediaError{Kind: FaultNetwork, Detail: "loading timed out"}
	}
	if errors.Is(err, context.Canceled) {
		return &MediaError{Kind: FaultAborted, Detail: "loading cancelled"}
	}
	return &MediaError{Kind: FaultNetwork, Detail: err.Error()}
}

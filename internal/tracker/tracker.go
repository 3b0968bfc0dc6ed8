// Package tracker drives one generation job from submission to a terminal
// outcome by polling the status endpoint.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/musicgen/internal/api/dto"
	"github.com/cuongbtq/musicgen/internal/domain"
)

// State is the tracker lifecycle state
type State string

// Tracker states
const (
	StateIdle       State = "IDLE"
	StateSubmitting State = "SUBMITTING"
	StatePolling    State = "POLLING"
	StateComplete   State = "COMPLETE"
	StateFailed     State = "FAILED"
	StateTimedOut   State = "TIMED_OUT"
)

// IsTerminal reports whether the state ends an epoch
func (s State) IsTerminal() bool {
	return s == StateComplete || s == StateFailed || s == StateTimedOut
}

const (
	// DefaultPollInterval is the delay between status polls
	DefaultPollInterval = 3 * time.Second
	// DefaultMaxRetries is the number of consecutive transient poll failures tolerated
	DefaultMaxRetries = 3
	// DefaultMaxPolls is the overall polling ceiling, ten minutes at the default interval
	DefaultMaxPolls = 200

	storeTimeout = 5 * time.Second

	// kindJobFailed marks a snapshot whose job was reported FAILED upstream
	kindJobFailed = "job_failed"
)

var (
	// ErrBusy is returned when a job is already being tracked
	ErrBusy = errors.New("tracker: a job is already in progress")

	// ErrJobFailed wraps the error reported for a FAILED job
	ErrJobFailed = errors.New("generation failed")

	// ErrReset is returned to waiters and in-flight calls of a reset epoch
	ErrReset = errors.New("tracker: reset")

	// ErrClosed is returned once Close has been called
	ErrClosed = errors.New("tracker: closed")

	// ErrIdle is returned by Wait when nothing was submitted
	ErrIdle = errors.New("tracker: no job")

	// ErrNothingToExtend is returned by Extend without a source track
	ErrNothingToExtend = errors.New("tracker: no completed track to extend")
)

// Config holds tracker configuration. Backend is required.
type Config struct {
	Key          string
	PollInterval time.Duration
	MaxRetries   int
	MaxPolls     int
	Backend      Backend
	Store        Store
	Sink         Sink
	Scheduler    Scheduler
	Logger       *slog.Logger
	Clock        func() time.Time
}

// Tracker is the client-side state machine for one job at a time.
// Every submission or reset starts a new epoch; results from older epochs are dropped.
type Tracker struct {
	key          string
	pollInterval time.Duration
	maxRetries   int
	maxPolls     int
	backend      Backend
	store        Store
	sink         Sink
	scheduler    Scheduler
	logger       *slog.Logger
	now          func() time.Time

	mu     sync.Mutex
	state  State
	job    *domain.Job
	err    error
	polls  int
	epoch  uint64
	ctx    context.Context
	cancel context.CancelFunc
	timer  Timer
	done   chan struct{}
	closed bool
}

// New creates a tracker in IDLE
func New(cfg Config) *Tracker {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	maxPolls := cfg.MaxPolls
	if maxPolls <= 0 {
		maxPolls = DefaultMaxPolls
	}
	scheduler := cfg.Scheduler
	if scheduler == nil {
		scheduler = SystemScheduler
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Tracker{
		key:          cfg.Key,
		pollInterval: pollInterval,
		maxRetries:   maxRetries,
		maxPolls:     maxPolls,
		backend:      cfg.Backend,
		store:        cfg.Store,
		sink:         cfg.Sink,
		scheduler:    scheduler,
		logger:       logger.With(slog.String("key", cfg.Key)),
		now:          clock,
		state:        StateIdle,
	}
}

// Submit sends req and starts polling. It is only allowed from IDLE.
// ctx bounds the submission call only; polling continues until a terminal state or Reset.
func (t *Tracker) Submit(ctx context.Context, req dto.GenerateRequest) error {
	t.mu.Lock()
	if err := t.checkStartLocked(); err != nil {
		t.mu.Unlock()
		return err
	}
	epoch, epochCtx := t.beginLocked()
	t.mu.Unlock()

	return t.run(ctx, epoch, epochCtx, func(callCtx context.Context) (*dto.JobEnvelope, error) {
		return t.backend.Submit(callCtx, req)
	})
}

// Extend continues a track. From COMPLETE the finished job is the source when
// req names none, and the tracker is reset before the new submission.
func (t *Tracker) Extend(ctx context.Context, req dto.ExtendRequest) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}

	switch t.state {
	case StateIdle:
	case StateComplete:
		if req.ID == "" && req.AudioID == "" {
			req.ID = t.job.ID
		}
		t.resetLocked(ctx)
	default:
		t.mu.Unlock()
		return ErrBusy
	}

	if req.ID == "" && req.AudioID == "" {
		t.mu.Unlock()
		return ErrNothingToExtend
	}

	epoch, epochCtx := t.beginLocked()
	t.mu.Unlock()

	return t.run(ctx, epoch, epochCtx, func(callCtx context.Context) (*dto.JobEnvelope, error) {
		return t.backend.Extend(callCtx, req)
	})
}

// Resume restores the persisted snapshot. A non-terminal job goes back to
// POLLING under the same id without being submitted again; a terminal one is
// restored as it was. It reports whether anything was restored.
func (t *Tracker) Resume(ctx context.Context) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.checkStartLocked(); err != nil {
		return false, err
	}
	if t.store == nil {
		return false, nil
	}

	snap, err := t.store.Load(ctx)
	if err != nil {
		if errors.Is(err, ErrNoSnapshot) {
			return false, nil
		}
		return false, err
	}

	if snap.Job == nil || snap.Job.ID == "" {
		// the submission never produced an id, so there is nothing to poll
		if err := t.store.Clear(ctx); err != nil {
			t.logger.Warn("Failed to clear stale snapshot", slog.Any("error", err))
		}
		return false, nil
	}

	job := *snap.Job
	t.epoch++
	t.job = &job
	t.polls = snap.Polls
	t.done = make(chan struct{})

	if snap.State.IsTerminal() {
		t.state = snap.State
		t.err = restoreError(snap)
		close(t.done)
		t.logger.Info("Restored terminal snapshot", slog.String("state", string(snap.State)), slog.String("id", job.ID))
		t.renderLocked()
		return true, nil
	}

	t.ctx, t.cancel = context.WithCancel(context.Background())
	t.state = StatePolling
	t.err = nil
	t.logger.Info("Resuming job", slog.String("id", job.ID), slog.Int("polls", t.polls))
	t.persistLocked()
	t.renderLocked()
	t.scheduleLocked(t.epoch, 0)
	return true, nil
}

// Reset abandons the current job, clears the persisted snapshot and returns to IDLE
func (t *Tracker) Reset(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}
	return t.resetLocked(ctx)
}

// Close stops polling without clearing the persisted snapshot, so a later Resume can continue
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}
	t.closed = true
	t.stopLocked()
	t.closeDoneLocked()
}

// Wait blocks until the current job turns terminal and returns its snapshot
// and outcome: nil for COMPLETE, the failure otherwise.
func (t *Tracker) Wait(ctx context.Context) (Snapshot, error) {
	t.mu.Lock()
	done := t.done
	epoch := t.epoch
	t.mu.Unlock()

	if done == nil {
		return t.Snapshot(), ErrIdle
	}

	select {
	case <-done:
	case <-ctx.Done():
		return t.Snapshot(), ctx.Err()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	snap := t.snapshotLocked()
	switch {
	case t.epoch != epoch:
		return snap, ErrReset
	case t.closed && !t.state.IsTerminal():
		return snap, ErrClosed
	default:
		return snap, t.err
	}
}

// Snapshot returns the current view
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// State returns the current state
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Err returns the error of a FAILED or TIMED_OUT job
func (t *Tracker) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *Tracker) checkStartLocked() error {
	if t.closed {
		return ErrClosed
	}
	if t.state != StateIdle {
		return ErrBusy
	}
	return nil
}

// beginLocked opens a new epoch in SUBMITTING
func (t *Tracker) beginLocked() (uint64, context.Context) {
	t.epoch++
	t.ctx, t.cancel = context.WithCancel(context.Background())
	t.state = StateSubmitting
	t.job = nil
	t.err = nil
	t.polls = 0
	t.done = make(chan struct{})

	t.persistLocked()
	t.renderLocked()
	return t.epoch, t.ctx
}

// run performs the submission call of epoch and applies its envelope
func (t *Tracker) run(ctx context.Context, epoch uint64, epochCtx context.Context, call func(context.Context) (*dto.JobEnvelope, error)) error {
	callCtx, cancel := context.WithCancel(epochCtx)
	stop := context.AfterFunc(ctx, cancel)
	env, err := call(callCtx)
	stop()
	cancel()

	t.mu.Lock()
	defer t.mu.Unlock()

	if epoch != t.epoch || t.closed {
		t.logger.Debug("Dropping submission result of a stale epoch")
		return ErrReset
	}

	if err != nil {
		t.logger.Warn("Submission failed", slog.Any("error", err))
		t.finishLocked(StateFailed, err)
		return err
	}

	if env.ID == "" {
		err := &domain.ParseError{Err: errors.New("submission envelope carries no id")}
		t.finishLocked(StateFailed, err)
		return err
	}

	job := &domain.Job{ID: env.ID, Status: domain.JobStatusSubmitted}
	if env.Status != "" && env.Status != domain.JobStatusSubmitted {
		if err := job.Apply(domain.Update{Status: env.Status, AudioURL: env.AudioURL}); err != nil {
			err = &domain.ParseError{Err: err}
			t.finishLocked(StateFailed, err)
			return err
		}
	}
	t.job = job

	t.logger.Info("Job submitted", slog.String("id", job.ID), slog.String("status", string(job.Status)))

	switch job.Status {
	case domain.JobStatusComplete:
		t.finishLocked(StateComplete, nil)
	case domain.JobStatusFailed:
		t.finishLocked(StateFailed, jobFailure(job))
	default:
		t.state = StatePolling
		t.persistLocked()
		t.renderLocked()
		t.scheduleLocked(epoch, t.pollInterval)
	}
	return nil
}

// Notify applies a pushed terminal status for the job being polled.
// Anything else is ignored; it reports whether the job finished.
func (t *Tracker) Notify(env *dto.StatusEnvelope) bool {
	if env == nil || !env.Status.IsTerminal() {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed || t.state != StatePolling || t.job == nil || t.job.ID != env.ID {
		return false
	}

	if err := t.applyLocked(env); err != nil {
		t.logger.Warn("Dropping pushed status", slog.String("id", env.ID), slog.Any("error", err))
		return false
	}
	return t.state.IsTerminal()
}

// tick is one poll of epoch. The status call runs unlocked.
func (t *Tracker) tick(epoch uint64) {
	t.mu.Lock()
	if epoch != t.epoch || t.state != StatePolling || t.closed {
		t.mu.Unlock()
		return
	}
	t.timer = nil
	id := t.job.ID
	ctx := t.ctx
	t.mu.Unlock()

	env, err := t.backend.Status(ctx, id)

	t.mu.Lock()
	defer t.mu.Unlock()

	if epoch != t.epoch || t.state != StatePolling || t.closed || t.job.ID != id {
		t.logger.Debug("Dropping stale poll result", slog.String("id", id))
		return
	}

	t.polls++

	if err == nil {
		err = t.applyLocked(env)
	}

	if err != nil {
		if !domain.IsTransient(err) {
			t.logger.Warn("Poll failed", slog.String("id", id), slog.Any("error", err))
			t.finishLocked(StateFailed, err)
			return
		}

		t.job.RetryCount++
		t.logger.Warn("Transient poll failure",
			slog.String("id", id),
			slog.Int("retry_count", t.job.RetryCount),
			slog.Int("max_retries", t.maxRetries),
			slog.Any("error", err),
		)
		if t.job.RetryCount >= t.maxRetries {
			t.finishLocked(StateTimedOut,
				fmt.Errorf("%w: %d consecutive poll failures, last: %v", domain.ErrTimeoutExceeded, t.job.RetryCount, err))
			return
		}
	} else if t.state.IsTerminal() {
		return
	}

	if t.polls >= t.maxPolls {
		t.finishLocked(StateTimedOut,
			fmt.Errorf("%w: still %s after %d polls", domain.ErrTimeoutExceeded, t.job.Status, t.polls))
		return
	}

	t.renderLocked()
	t.scheduleLocked(epoch, t.pollInterval)
}

// applyLocked folds a status envelope into the job, finishing the epoch on a terminal status
func (t *Tracker) applyLocked(env *dto.StatusEnvelope) error {
	prevID, prevStatus := t.job.ID, t.job.Status

	if err := t.job.Apply(env.Update()); err != nil {
		return &domain.ParseError{Err: err}
	}
	t.job.RetryCount = 0

	switch t.job.Status {
	case domain.JobStatusComplete:
		t.finishLocked(StateComplete, nil)
	case domain.JobStatusFailed:
		t.finishLocked(StateFailed, jobFailure(t.job))
	default:
		if t.job.ID != prevID || t.job.Status != prevStatus {
			t.persistLocked()
		}
	}
	return nil
}

func (t *Tracker) finishLocked(state State, err error) {
	t.state = state
	t.err = err
	t.stopLocked()

	if err != nil {
		t.logger.Warn("Job finished", slog.String("state", string(state)), slog.Any("error", err))
	} else {
		t.logger.Info("Job finished", slog.String("state", string(state)), slog.String("audio_url", t.job.AudioURL))
	}

	t.persistLocked()
	t.renderLocked()
	t.closeDoneLocked()
}

func (t *Tracker) resetLocked(ctx context.Context) error {
	t.stopLocked()
	t.epoch++
	t.state = StateIdle
	t.job = nil
	t.err = nil
	t.polls = 0
	t.closeDoneLocked()
	t.done = nil

	var clearErr error
	if t.store != nil {
		clearErr = t.store.Clear(ctx)
		if clearErr != nil {
			t.logger.Warn("Failed to clear snapshot", slog.Any("error", clearErr))
		}
	}

	t.renderLocked()
	return clearErr
}

// stopLocked cancels the pending tick and the in-flight call
func (t *Tracker) stopLocked() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
}

func (t *Tracker) closeDoneLocked() {
	if t.done == nil {
		return
	}
	select {
	case <-t.done:
	default:
		close(t.done)
	}
}

func (t *Tracker) scheduleLocked(epoch uint64, delay time.Duration) {
	t.timer = t.scheduler.AfterFunc(delay, func() { t.tick(epoch) })
}

func (t *Tracker) snapshotLocked() Snapshot {
	snap := Snapshot{
		Key:       t.key,
		State:     t.state,
		Polls:     t.polls,
		UpdatedAt: t.now().UTC(),
	}
	if t.job != nil {
		job := *t.job
		snap.Job = &job
	}
	if t.err != nil {
		snap.Error = t.err.Error()
		snap.ErrorKind = string(domain.KindOf(t.err))
		if errors.Is(t.err, ErrJobFailed) {
			snap.ErrorKind = kindJobFailed
		}
	}
	return snap
}

func (t *Tracker) persistLocked() {
	if t.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if err := t.store.Save(ctx, t.snapshotLocked()); err != nil {
		t.logger.Error("Failed to persist snapshot", slog.String("state", string(t.state)), slog.Any("error", err))
	}
}

func (t *Tracker) renderLocked() {
	if t.sink != nil {
		t.sink.Render(t.snapshotLocked())
	}
}

func jobFailure(job *domain.Job) error {
	return fmt.Errorf("%w: %s", ErrJobFailed, job.Error)
}

func restoreError(snap *Snapshot) error {
	switch {
	case snap.State == StateComplete:
		return nil
	case snap.ErrorKind == kindJobFailed && snap.Job != nil:
		return jobFailure(snap.Job)
	case snap.State == StateTimedOut && snap.ErrorKind == "":
		return domain.ErrTimeoutExceeded
	default:
		return domain.ErrorFromKind(domain.ErrorKind(snap.ErrorKind), snap.Error, 0, 0)
	}
}

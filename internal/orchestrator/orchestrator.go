// Package orchestrator runs generation requests in the background and tracks
// their progress for pollers.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/forPelevin/tubebite/internal/ports"
	"github.com/forPelevin/tubebite/internal/types"
	"github.com/forPelevin/tubebite/internal/usecase"
)

const (
	DefaultPerUserLimit  = 2
	DefaultRunTimeout    = 45 * time.Minute
	DefaultViewRetention = time.Hour
)

var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrShuttingDown   = errors.New("orchestrator is shutting down")
	errCancelled      = errors.New("run cancelled")
)

// Runner executes one run. *usecase.Usecase satisfies it.
type Runner interface {
	Run(ctx context.Context, in usecase.Input, obs usecase.Observer) (usecase.Result, error)
	Discard(in usecase.Input) error
}

type Config struct {
	ScratchRoot   string
	PerUserLimit  int
	RunTimeout    time.Duration
	ViewRetention time.Duration
}

func (c Config) withDefaults() Config {
	if c.ScratchRoot == "" {
		c.ScratchRoot = filepath.Join(os.TempDir(), "tubebite")
	}
	if c.PerUserLimit <= 0 {
		c.PerUserLimit = DefaultPerUserLimit
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = DefaultRunTimeout
	}
	if c.ViewRetention <= 0 {
		c.ViewRetention = DefaultViewRetention
	}
	return c
}

type Orchestrator struct {
	runner Runner
	store  ports.HistoryStore
	cfg    Config
	log    zerolog.Logger
	now    func() time.Time

	base     context.Context
	stopBase context.CancelCauseFunc
	wg       sync.WaitGroup

	mu     sync.Mutex
	closed bool
	runs   map[string]*run
	slots  map[string]*ownerSlot
}

// ownerSlot caps concurrent runs of one owner. refs counts holders and
// waiters so the entry can be dropped once nobody uses it.
type ownerSlot struct {
	sem  *semaphore.Weighted
	refs int
}

func New(runner Runner, store ports.HistoryStore, cfg Config, log zerolog.Logger) *Orchestrator {
	base, stop := context.WithCancelCause(context.Background())
	return &Orchestrator{
		runner:   runner,
		store:    store,
		cfg:      cfg.withDefaults(),
		log:      log,
		now:      time.Now,
		base:     base,
		stopBase: stop,
		runs:     map[string]*run{},
		slots:    map[string]*ownerSlot{},
	}
}

// Generate records the run and starts it in the background. On error the
// caller keeps ownership of an uploaded source file.
func (o *Orchestrator) Generate(ctx context.Context, ownerID string, req types.GenerationRequest) (string, error) {
	if ownerID == "" {
		return "", fmt.Errorf("%w: owner id is required", ErrInvalidRequest)
	}
	if err := req.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	o.mu.Lock()
	closed := o.closed
	o.mu.Unlock()
	if closed {
		return "", ErrShuttingDown
	}

	runID, err := o.store.CreateRun(ctx, ownerID, req)
	if err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}
	scratch := filepath.Join(o.cfg.ScratchRoot, runID)
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		o.markStatus(runID, types.StatusFailed, types.CategoryInternal)
		return "", fmt.Errorf("create scratch dir: %w", err)
	}

	now := o.now().UTC()
	r := &run{
		orch: o,
		in:   usecase.Input{RunID: runID, OwnerID: ownerID, Request: req, ScratchDir: scratch},
		done: make(chan struct{}),
		view: types.RunView{
			RunID:     runID,
			OwnerID:   ownerID,
			Stage:     types.StageQueued,
			Requested: req.ClipCount,
			Clips:     []types.GeneratedClip{},
			CreatedAt: now,
			UpdatedAt: now,
		},
		log: o.log.With().Str("run_id", runID).Str("owner_id", ownerID).Logger(),
	}
	runCtx, cancel := context.WithCancelCause(o.base)
	r.cancel = cancel

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		cancel(ErrShuttingDown)
		_ = os.RemoveAll(scratch)
		o.markStatus(runID, types.StatusFailed, types.CategoryCancelled)
		return "", ErrShuttingDown
	}
	o.sweepLocked()
	o.runs[runID] = r
	o.wg.Add(1)
	o.mu.Unlock()

	r.log.Info().Str("source", req.Source.Name()).Int("clips", req.ClipCount).Msg("run queued")
	go o.execute(runCtx, r)
	return runID, nil
}

func (o *Orchestrator) execute(ctx context.Context, r *run) {
	defer o.wg.Done()
	defer close(r.done)
	defer r.cancel(nil)

	// the deadline also bounds the wait for a slot
	ctx, cancel := context.WithTimeout(ctx, o.cfg.RunTimeout)
	defer cancel()

	release, err := o.acquireSlot(ctx, r.in.OwnerID)
	if err != nil {
		cat := types.CategoryCancelled
		if errors.Is(err, context.DeadlineExceeded) {
			cat = types.CategoryTimeout
		}
		o.finish(r, types.NewError(cat, "queue", err))
		return
	}
	defer release()

	_, err = o.runner.Run(ctx, r.in, r)
	o.finish(r, err)
}

func (o *Orchestrator) finish(r *run, err error) {
	if derr := o.runner.Discard(r.in); derr != nil {
		r.log.Warn().Err(derr).Msg("scratch cleanup failed")
	}

	status, cat := types.StatusCompleted, types.CategoryNone
	if err != nil {
		status, cat = types.StatusFailed, types.CategoryOf(err)
	}
	o.markStatus(r.in.RunID, status, cat)

	r.mu.Lock()
	r.view.UpdatedAt = o.now().UTC()
	if err != nil {
		r.view.Stage = types.StageFailed
		r.view.ErrorCategory = cat
		r.view.Error = err.Error()
	} else {
		r.view.Stage = types.StageCompleted
		r.view.Percent = 100
	}
	r.finishedAt = o.now()
	clips := len(r.view.Clips)
	r.mu.Unlock()

	if err != nil {
		r.log.Error().Err(err).Str("category", string(cat)).Int("clips", clips).Msg("run failed")
		return
	}
	r.log.Info().Int("clips", clips).Msg("run completed")
}

func (o *Orchestrator) markStatus(runID string, status types.RunStatus, cat types.ErrorCategory) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := o.store.MarkStatus(ctx, runID, status, cat); err != nil {
		o.log.Error().Err(err).Str("run_id", runID).Msg("mark run status")
	}
}

func (o *Orchestrator) acquireSlot(ctx context.Context, ownerID string) (release func(), err error) {
	o.mu.Lock()
	s, ok := o.slots[ownerID]
	if !ok {
		s = &ownerSlot{sem: semaphore.NewWeighted(int64(o.cfg.PerUserLimit))}
		o.slots[ownerID] = s
	}
	s.refs++
	o.mu.Unlock()

	drop := func() {
		o.mu.Lock()
		s.refs--
		if s.refs == 0 && o.slots[ownerID] == s {
			delete(o.slots, ownerID)
		}
		o.mu.Unlock()
	}
	if err := s.sem.Acquire(ctx, 1); err != nil {
		drop()
		return nil, err
	}
	return func() {
		s.sem.Release(1)
		drop()
	}, nil
}

// Status returns the live view, or one rebuilt from history once the run is
// no longer tracked.
func (o *Orchestrator) Status(ctx context.Context, runID string) (types.RunView, error) {
	o.mu.Lock()
	o.sweepLocked()
	r, ok := o.runs[runID]
	o.mu.Unlock()
	if ok {
		return r.snapshot(), nil
	}

	it, err := o.store.GetRun(ctx, runID)
	if err != nil {
		return types.RunView{}, err
	}
	return viewFromHistory(it), nil
}

func viewFromHistory(it types.HistoryItem) types.RunView {
	v := types.RunView{
		RunID:         it.ID,
		OwnerID:       it.OwnerID,
		Requested:     it.Settings.ClipCount,
		Clips:         append([]types.GeneratedClip{}, it.Clips...),
		ErrorCategory: it.ErrorCategory,
		CreatedAt:     it.CreatedAt,
		UpdatedAt:     it.UpdatedAt,
	}
	switch it.Status {
	case types.StatusCompleted:
		v.Stage, v.Percent = types.StageCompleted, 100
	case types.StatusFailed:
		v.Stage = types.StageFailed
	default:
		// processing in history but not tracked here: the process that ran it is gone
		v.Stage = types.StageFailed
		v.ErrorCategory = types.CategoryInternal
		v.Error = "run is no longer tracked"
	}
	return v
}

// Cancel stops a live run. Cancelling a finished run is a no-op.
func (o *Orchestrator) Cancel(runID string) error {
	o.mu.Lock()
	r, ok := o.runs[runID]
	o.mu.Unlock()
	if !ok {
		return types.ErrRunNotFound
	}
	r.cancel(errCancelled)
	return nil
}

// CancelOwner cancels every live run of ownerID and reports how many it hit.
func (o *Orchestrator) CancelOwner(ownerID string) int {
	o.mu.Lock()
	var hit []*run
	for _, r := range o.runs {
		if r.in.OwnerID == ownerID && !r.finished() {
			hit = append(hit, r)
		}
	}
	o.mu.Unlock()
	for _, r := range hit {
		r.cancel(errCancelled)
	}
	return len(hit)
}

// Wait blocks until the run reaches a terminal stage or ctx ends.
func (o *Orchestrator) Wait(ctx context.Context, runID string) (types.RunView, error) {
	o.mu.Lock()
	r, ok := o.runs[runID]
	o.mu.Unlock()
	if !ok {
		return o.Status(ctx, runID)
	}
	select {
	case <-r.done:
		return r.snapshot(), nil
	case <-ctx.Done():
		return r.snapshot(), ctx.Err()
	}
}

// Shutdown refuses new runs, cancels live ones and waits for them to record
// their terminal status.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	o.stopBase(ErrShuttingDown)

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// sweepLocked drops views of runs that finished more than the retention ago.
func (o *Orchestrator) sweepLocked() {
	cutoff := o.now().Add(-o.cfg.ViewRetention)
	for id, r := range o.runs {
		r.mu.Lock()
		expired := !r.finishedAt.IsZero() && r.finishedAt.Before(cutoff)
		r.mu.Unlock()
		if expired {
			delete(o.runs, id)
		}
	}
}

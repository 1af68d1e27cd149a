package scanner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/projectdiscovery/gologger"
	mapsutil "github.com/projectdiscovery/utils/maps"
	"github.com/rs/xid"
)

// DefaultDepth is the number of shuffled candidates evaluated per run
const DefaultDepth = 150

// Option configures an Engine
type Option func(*Engine)

// WithDepth overrides the per-run candidate cap
func WithDepth(depth int) Option {
	return func(e *Engine) {
		e.depth = depth
	}
}

// WithAttemptPolicy replaces the policy deciding which attempts count
func WithAttemptPolicy(policy AttemptPolicy) Option {
	return func(e *Engine) {
		if policy != nil {
			e.prober.policy = policy
		}
	}
}

// WithClock replaces the clock used for latency measurement
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.prober.now = now
		}
	}
}

// Engine runs scans one at a time and owns the live state observers read.
type Engine struct {
	settings Settings
	prober   *Prober
	depth    int
	store    *Store

	mu       sync.RWMutex
	state    State
	scanID   string
	progress Progress
	total    int
	gen      uint64
	cancel   context.CancelFunc

	subscribers *mapsutil.SyncLockMap[string, func(Snapshot)]
}

// New creates an idle engine
func New(settings Settings, transport Transport, opts ...Option) (*Engine, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if transport == nil {
		return nil, fmt.Errorf("%w: nil transport", ErrInvalidSettings)
	}

	e := &Engine{
		settings:    settings,
		prober:      NewProber(settings, transport),
		depth:       DefaultDepth,
		store:       NewStore(),
		state:       StateIdle,
		subscribers: mapsutil.NewSyncLockMap[string, func(Snapshot)](),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Run is a handle on a started scan
type Run struct {
	id     string
	done   chan struct{}
	report Report
}

// ID returns the scan identifier
func (r *Run) ID() string {
	return r.id
}

// Done is closed once the run has returned to idle or was superseded
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the run finished and returns its report
func (r *Run) Wait() Report {
	<-r.done
	return r.report
}

// Start filters and shuffles candidates and begins a scan in the background.
// An invalid filter fails synchronously without touching the engine state.
// Starting while a scan is running discards its results and supersedes it.
func (e *Engine) Start(ctx context.Context, candidates []string) (*Run, error) {
	filtered, err := FilterCandidates(candidates, e.settings.Filter)
	if err != nil {
		return nil, err
	}
	order, truncated := Truncate(Shuffle(filtered), e.depth)

	runCtx, cancel := context.WithCancel(ctx)

	e.mu.Lock()
	if e.cancel != nil {
		e.cancel()
	}
	e.gen++
	gen := e.gen
	e.cancel = cancel
	e.store.Reset()
	e.progress = Progress{}
	e.total = 0
	e.scanID = xid.New().String()
	e.state = StateScanning
	run := &Run{
		id:   e.scanID,
		done: make(chan struct{}),
		report: Report{
			ScanID:          e.scanID,
			Candidates:      len(filtered),
			DeeperAvailable: truncated,
		},
	}
	e.mu.Unlock()

	gologger.Debug().Msgf("scan %s started: %d candidates, %d to evaluate", run.id, len(filtered), len(order))
	e.notify()

	go e.loop(runCtx, cancel, gen, run, order)
	return run, nil
}

// Scan runs a scan to completion
func (e *Engine) Scan(ctx context.Context, candidates []string) (Report, error) {
	run, err := e.Start(ctx, candidates)
	if err != nil {
		return Report{}, err
	}
	return run.Wait(), nil
}

// Rescan is the deeper-search entry point. It reshuffles and probes again,
// possibly revisiting addresses seen by earlier runs.
func (e *Engine) Rescan(ctx context.Context, candidates []string) (Report, error) {
	return e.Scan(ctx, candidates)
}

// Stop asks a running scan to stop after the current candidate.
// In any other state, including a second Stop, the engine is forced to idle.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.state == StateScanning {
		e.state = StateStopping
	} else {
		e.state = StateIdle
		e.progress = Progress{}
		e.total = 0
	}
	e.mu.Unlock()

	e.notify()
}

// State returns the current lifecycle state
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.state
}

// Results returns the ranked results of the current or last run
func (e *Engine) Results() []Result {
	return e.store.Results()
}

// Snapshot returns a copy of the live state
func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return Snapshot{
		ScanID:        e.scanID,
		State:         e.state,
		Progress:      e.progress,
		TotalAttempts: e.total,
		Results:       e.store.Results(),
	}
}

// Subscribe registers fn to be called after every state change.
// fn runs on the goroutine that caused the change and must not block.
func (e *Engine) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	key := xid.New().String()
	_ = e.subscribers.Set(key, fn)
	return func() {
		e.subscribers.Delete(key)
	}
}

func (e *Engine) notify() {
	var fns []func(Snapshot)
	_ = e.subscribers.Iterate(func(_ string, fn func(Snapshot)) error {
		fns = append(fns, fn)
		return nil
	})
	if len(fns) == 0 {
		return
	}

	snapshot := e.Snapshot()
	for _, fn := range fns {
		fn(snapshot)
	}
}

func (e *Engine) loop(ctx context.Context, cancel context.CancelFunc, gen uint64, run *Run, candidates []string) {
	defer close(run.done)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			gologger.Error().Msgf("scan %s aborted: %v", run.id, r)
			run.report.Stopped = true
		}
		if ctx.Err() != nil {
			run.report.Stopped = true
		}
		e.finish(gen, run)
	}()

	for _, candidate := range candidates {
		if ctx.Err() != nil || !e.begin(gen, candidate) {
			break
		}

		verdict := e.prober.Probe(ctx, candidate, func(p Progress) {
			e.publish(gen, p)
		})
		run.report.Evaluated++
		gologger.Debug().Msgf("scan %s: %s successes=%d latency=%dms admitted=%v", run.id, candidate, verdict.Successes, verdict.LatencyMs, verdict.Admitted)

		if verdict.Admitted {
			e.admit(gen, Result{Address: candidate, LatencyMs: verdict.LatencyMs})
		}
		if e.done(gen) {
			break
		}
	}
}

// begin marks a candidate as under test and reports whether the run may go on
func (e *Engine) begin(gen uint64, candidate string) bool {
	e.mu.Lock()
	if e.gen != gen || e.state != StateScanning {
		e.mu.Unlock()
		return false
	}
	e.total++
	e.progress = Progress{Candidate: candidate, Color: ColorCold}
	e.mu.Unlock()

	e.notify()
	return true
}

// publish records in-flight progress. A run forced to idle by a second Stop
// keeps its cleared progress until it exits.
func (e *Engine) publish(gen uint64, p Progress) {
	e.mu.Lock()
	if e.gen != gen || e.state == StateIdle {
		e.mu.Unlock()
		return
	}
	e.progress = p
	e.mu.Unlock()

	e.notify()
}

func (e *Engine) admit(gen uint64, r Result) {
	e.mu.Lock()
	if e.gen != gen {
		e.mu.Unlock()
		return
	}
	e.store.Insert(r)
	e.mu.Unlock()

	e.notify()
}

// done reports whether the loop must stop after the current candidate
func (e *Engine) done(gen uint64) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.gen != gen || e.state != StateScanning || e.store.Len() >= e.settings.MaxIPCount
}

// finish returns the engine to idle unless a newer run took over
func (e *Engine) finish(gen uint64, run *Run) {
	e.mu.Lock()
	if e.gen != gen {
		e.mu.Unlock()
		run.report.Superseded = true
		run.report.Stopped = true
		return
	}
	if e.state != StateScanning {
		run.report.Stopped = true
	}
	e.cancel = nil
	e.state = StateIdle
	e.progress = Progress{}
	e.total = 0
	run.report.Results = e.store.Results()
	e.mu.Unlock()

	gologger.Debug().Msgf("scan %s finished: evaluated=%d results=%d", run.id, run.report.Evaluated, len(run.report.Results))
	e.notify()
}

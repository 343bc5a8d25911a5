// Package scan drives the live recognition loop: periodic frame
// sampling, match scoring, the auto-confirm debounce and the
// pending/confirmed/cancelled state machine. The frame pipeline and the
// matcher are injected, so the orchestrator itself is pure control flow.
package scan

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DSJTechnology/riftbound-snap-export-sub001/logging"
	"github.com/DSJTechnology/riftbound-snap-export-sub001/types"
)

// RecentLimit bounds the confirmed-scan history, newest first.
const RecentLimit = 5

// SampleInfo describes how a sampled frame was obtained.
type SampleInfo struct {
	Detected bool
	Status   string
}

// Sampler is the pull-based frame pipeline: a readiness flag and a
// bounded, synchronous capture-rectify-hash step. Close releases the
// underlying camera and must be idempotent.
type Sampler interface {
	Ready() bool
	Sample(ctx context.Context) (types.Fingerprint, SampleInfo, error)
	Close() error
}

// Matcher answers ranked nearest-neighbor queries over the corpus.
type Matcher interface {
	FindMatches(query types.Fingerprint) ([]types.MatchCandidate, error)
}

// Notifier receives confirmed cards. Implementations own persistence
// and must not block the scan loop on failure.
type Notifier interface {
	CardConfirmed(card types.CardRecord)
}

// Options are the orchestration tunables.
type Options struct {
	SampleInterval       time.Duration
	Cooldown             time.Duration
	AutoConfirmThreshold float64
	TopK                 int
	AutoScan             bool
	Session              string
}

// DefaultOptions returns the standard scan cadence and thresholds.
func DefaultOptions() Options {
	return Options{
		SampleInterval:       800 * time.Millisecond,
		Cooldown:             3000 * time.Millisecond,
		AutoConfirmThreshold: 8,
		TopK:                 5,
		AutoScan:             true,
	}
}

// Orchestrator is the scan state machine. One sample is in flight at a
// time; overlapping timer ticks are dropped, not queued.
type Orchestrator struct {
	opts     Options
	sampler  Sampler
	matcher  Matcher
	notifier Notifier

	mu             sync.Mutex
	state          types.ScanState
	pending        *types.PendingMatch
	candidates     []types.MatchCandidate
	recent         []types.RecentScan
	lastTrigger    map[string]time.Time
	lastDetectedID string
	stopCh         chan struct{}

	inFlight atomic.Bool

	// now is the clock; replaced in tests.
	now func() time.Time
}

// New wires an orchestrator in the Idle state.
func New(sampler Sampler, matcher Matcher, notifier Notifier, opts Options) *Orchestrator {
	return &Orchestrator{
		opts:        opts,
		sampler:     sampler,
		matcher:     matcher,
		notifier:    notifier,
		state:       types.StateIdle,
		lastTrigger: make(map[string]time.Time),
		now:         time.Now,
	}
}

// Start enters Streaming and begins periodic sampling. A sampler that
// is not ready is a recoverable acquisition error: the orchestrator
// stays Idle and the caller decides what to tell the user.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.state != types.StateIdle {
		o.mu.Unlock()
		return fmt.Errorf("scan already running (state %s)", o.state)
	}
	if !o.sampler.Ready() {
		o.mu.Unlock()
		return fmt.Errorf("camera is not ready; check device permissions and availability")
	}
	o.state = types.StateStreaming
	o.stopCh = make(chan struct{})
	stopCh := o.stopCh
	o.mu.Unlock()

	go o.run(ctx, stopCh)
	logging.LogInfo("scan session %s streaming", o.opts.Session)
	return nil
}

// Stop leaves Streaming: the sampler stops, the camera is released and
// the match display state resets. RecentScan history survives. Stop is
// idempotent.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if o.stopCh != nil {
		close(o.stopCh)
		o.stopCh = nil
	}
	wasIdle := o.state == types.StateIdle
	o.state = types.StateIdle
	o.pending = nil
	o.candidates = nil
	o.lastDetectedID = ""
	o.mu.Unlock()

	_ = o.sampler.Close()
	if !wasIdle {
		logging.LogInfo("scan session %s stopped", o.opts.Session)
	}
}

func (o *Orchestrator) run(ctx context.Context, stopCh chan struct{}) {
	ticker := time.NewTicker(o.opts.SampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			o.Stop()
			return
		case <-ticker.C:
			o.tick(ctx)
		}
	}
}

// tick runs one periodic sample. Sampling only happens in Streaming
// with auto-scan on; a sample still being scored drops this tick.
func (o *Orchestrator) tick(ctx context.Context) {
	if !o.opts.AutoScan {
		return
	}
	if !o.inFlight.CompareAndSwap(false, true) {
		return
	}
	defer o.inFlight.Store(false)

	o.mu.Lock()
	streaming := o.state == types.StateStreaming
	o.mu.Unlock()
	if !streaming {
		return
	}

	// A camera that went away mid-stream is an acquisition error: close
	// it and return to Idle.
	if !o.sampler.Ready() {
		logging.LogWarning("camera became unavailable, stopping scan session %s", o.opts.Session)
		o.Stop()
		return
	}

	best, cands, err := o.score(ctx)
	if err != nil {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != types.StateStreaming {
		return
	}
	o.candidates = cands
	if best == nil {
		return
	}
	if best.Distance <= o.opts.AutoConfirmThreshold && o.cooldownAllowsLocked(best.Entry.ID) {
		now := o.now()
		o.lastTrigger[best.Entry.ID] = now
		o.pending = &types.PendingMatch{Candidate: *best, Distance: best.Distance, CreatedAt: now}
		o.state = types.StateAwaitingConfirmation
	}
}

// score samples one frame and ranks it against the corpus. Detection
// failures never surface here; only matcher configuration errors are
// logged loudly.
func (o *Orchestrator) score(ctx context.Context) (*types.MatchCandidate, []types.MatchCandidate, error) {
	fp, info, err := o.sampler.Sample(ctx)
	if err != nil {
		logging.LogWarning("frame sample failed: %v", err)
		return nil, nil, err
	}

	ranked, err := o.matcher.FindMatches(fp)
	if err != nil {
		// Kind or dimension mismatch between query and corpus is a
		// configuration bug, not a per-frame condition.
		logging.LogError("match query invariant violation: %v", err)
		return nil, nil, err
	}
	if len(ranked) == 0 {
		logging.LogScanResult(o.opts.Session, info.Detected, "", 0)
		return nil, nil, nil
	}

	best := ranked[0]
	logging.LogScanResult(o.opts.Session, info.Detected, best.Entry.ID, best.Distance)

	top := ranked
	if len(top) > o.opts.TopK {
		top = top[:o.opts.TopK]
	}
	return &best, top, nil
}

// cooldownAllowsLocked reports whether an auto-trigger for id is
// outside the cooldown window. Stale records are pruned on the way.
func (o *Orchestrator) cooldownAllowsLocked(id string) bool {
	now := o.now()
	for k, v := range o.lastTrigger {
		if now.Sub(v) >= o.opts.Cooldown {
			delete(o.lastTrigger, k)
		}
	}
	last, ok := o.lastTrigger[id]
	return !ok || now.Sub(last) >= o.opts.Cooldown
}

// ScanNow performs a user-initiated scan, bypassing the periodic timer,
// the auto-confirm threshold and the cooldown. The current best
// candidate, whatever its distance, becomes the pending match.
func (o *Orchestrator) ScanNow(ctx context.Context) (*types.PendingMatch, error) {
	o.mu.Lock()
	if o.state != types.StateStreaming {
		o.mu.Unlock()
		return nil, fmt.Errorf("manual scan requires streaming state, currently %s", o.state)
	}
	o.mu.Unlock()

	if !o.inFlight.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("a scan is already in flight")
	}
	defer o.inFlight.Store(false)

	best, cands, err := o.score(ctx)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != types.StateStreaming {
		return nil, fmt.Errorf("scan state changed to %s mid-sample", o.state)
	}
	o.candidates = cands
	if best == nil {
		return nil, nil
	}
	o.pending = &types.PendingMatch{Candidate: *best, Distance: best.Distance, CreatedAt: o.now()}
	o.state = types.StateAwaitingConfirmation
	return o.pendingCopyLocked(), nil
}

// Confirm accepts the pending match: the card joins the recent history,
// the collection collaborator is notified and the orchestrator returns
// to Streaming. Outside AwaitingConfirmation it is a no-op.
func (o *Orchestrator) Confirm() {
	o.mu.Lock()
	if o.state != types.StateAwaitingConfirmation || o.pending == nil {
		o.mu.Unlock()
		return
	}

	entry := o.pending.Candidate.Entry
	o.recent = append([]types.RecentScan{{Entry: entry, ScannedAt: o.now()}}, o.recent...)
	if len(o.recent) > RecentLimit {
		o.recent = o.recent[:RecentLimit]
	}
	o.lastDetectedID = entry.ID
	o.pending = nil
	o.state = types.StateStreaming

	card := types.CardRecord{
		ID:      entry.ID,
		Name:    entry.Name,
		SetName: entry.SetID,
		Rarity:  entry.Rarity,
	}
	o.mu.Unlock()

	logging.LogCardConfirmed(o.opts.Session, card.ID, card.Name)
	if o.notifier != nil {
		o.notifier.CardConfirmed(card)
	}
}

// Cancel discards the pending match without side effects and returns to
// Streaming. Outside AwaitingConfirmation it is a no-op.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != types.StateAwaitingConfirmation {
		return
	}
	o.pending = nil
	o.state = types.StateStreaming
}

// State returns the current orchestrator state.
func (o *Orchestrator) State() types.ScanState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Pending returns a copy of the pending match, or nil.
func (o *Orchestrator) Pending() *types.PendingMatch {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pendingCopyLocked()
}

func (o *Orchestrator) pendingCopyLocked() *types.PendingMatch {
	if o.pending == nil {
		return nil
	}
	p := *o.pending
	return &p
}

// Recent returns a copy of the confirmed-scan history, newest first.
func (o *Orchestrator) Recent() []types.RecentScan {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]types.RecentScan, len(o.recent))
	copy(out, o.recent)
	return out
}

// Candidates returns a copy of the current top-K display candidates.
func (o *Orchestrator) Candidates() []types.MatchCandidate {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]types.MatchCandidate, len(o.candidates))
	copy(out, o.candidates)
	return out
}

// LastDetected returns the id of the most recently confirmed card.
func (o *Orchestrator) LastDetected() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastDetectedID
}

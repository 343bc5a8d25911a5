package scan

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/DSJTechnology/riftbound-snap-export-sub001/index"
	"github.com/DSJTechnology/riftbound-snap-export-sub001/types"
)

type fakeSampler struct {
	ready   bool
	fp      types.Fingerprint
	err     error
	samples int
	closes  int
}

func (f *fakeSampler) Ready() bool { return f.ready }

func (f *fakeSampler) Sample(ctx context.Context) (types.Fingerprint, SampleInfo, error) {
	f.samples++
	if f.err != nil {
		return types.Fingerprint{}, SampleInfo{}, f.err
	}
	return f.fp, SampleInfo{Detected: true, Status: "card detected"}, nil
}

func (f *fakeSampler) Close() error {
	f.closes++
	return nil
}

type fakeNotifier struct {
	cards []types.CardRecord
}

func (f *fakeNotifier) CardConfirmed(card types.CardRecord) {
	f.cards = append(f.cards, card)
}

func hashFP(hash string) types.Fingerprint {
	return types.Fingerprint{Kind: types.FingerprintHash, Hash: hash}
}

func hashCorpus(ids ...string) *index.Index {
	ix := index.New()
	entries := make([]types.CatalogEntry, len(ids))
	for i, id := range ids {
		// One distinctive byte per entry keeps distances distinct.
		entries[i] = types.CatalogEntry{
			ID:          id,
			Name:        "Card " + id,
			Fingerprint: hashFP(fmt.Sprintf("%02x00000000000000", i)),
		}
	}
	ix.SetCorpus(entries, types.FingerprintHash)
	return ix
}

func newTestOrchestrator(t *testing.T, sampler *fakeSampler, ix *index.Index, notifier Notifier) *Orchestrator {
	t.Helper()
	opts := DefaultOptions()
	opts.SampleInterval = time.Hour // ticks are driven directly in tests
	opts.Session = "test"
	o := New(sampler, ix, notifier, opts)
	return o
}

func mustStart(t *testing.T, o *Orchestrator) {
	t.Helper()
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(o.Stop)
}

func TestStartRequiresReadySampler(t *testing.T) {
	sampler := &fakeSampler{ready: false}
	o := newTestOrchestrator(t, sampler, hashCorpus("a"), nil)

	err := o.Start(context.Background())
	if err == nil {
		t.Fatal("Start with an unavailable camera should fail")
	}
	if o.State() != types.StateIdle {
		t.Fatalf("state = %s, want idle", o.State())
	}
}

func TestStartRejectsDoubleStart(t *testing.T) {
	sampler := &fakeSampler{ready: true, fp: hashFP("0000000000000000")}
	o := newTestOrchestrator(t, sampler, hashCorpus("a"), nil)
	mustStart(t, o)

	if err := o.Start(context.Background()); err == nil {
		t.Fatal("second Start should fail while streaming")
	}
}

func TestTickAutoConfirmThenConfirm(t *testing.T) {
	sampler := &fakeSampler{ready: true, fp: hashFP("0000000000000000")}
	notifier := &fakeNotifier{}
	o := newTestOrchestrator(t, sampler, hashCorpus("ace", "far"), notifier)
	mustStart(t, o)

	o.tick(context.Background())

	if o.State() != types.StateAwaitingConfirmation {
		t.Fatalf("state = %s, want awaiting confirmation", o.State())
	}
	pending := o.Pending()
	if pending == nil || pending.Candidate.Entry.ID != "ace" {
		t.Fatalf("pending = %+v, want card ace", pending)
	}
	if pending.Distance != 0 {
		t.Fatalf("pending distance = %g, want 0", pending.Distance)
	}
	if got := o.Candidates(); len(got) != 2 {
		t.Fatalf("display candidates = %d, want 2", len(got))
	}

	o.Confirm()

	if o.State() != types.StateStreaming {
		t.Fatalf("state after confirm = %s, want streaming", o.State())
	}
	if o.Pending() != nil {
		t.Fatal("pending should clear on confirm")
	}
	if o.LastDetected() != "ace" {
		t.Fatalf("last detected = %q, want ace", o.LastDetected())
	}
	recent := o.Recent()
	if len(recent) != 1 || recent[0].Entry.ID != "ace" {
		t.Fatalf("recent = %+v, want [ace]", recent)
	}
	if len(notifier.cards) != 1 || notifier.cards[0].ID != "ace" {
		t.Fatalf("notifier calls = %+v, want one for ace", notifier.cards)
	}
}

func TestTickIgnoresWeakMatches(t *testing.T) {
	// Every corpus hash is at least 56 bits from all-ones, well past the
	// auto-confirm threshold.
	sampler := &fakeSampler{ready: true, fp: hashFP("ffffffffffffffff")}
	o := newTestOrchestrator(t, sampler, hashCorpus("a", "b"), nil)
	mustStart(t, o)

	o.tick(context.Background())

	if o.State() != types.StateStreaming {
		t.Fatalf("state = %s, want streaming", o.State())
	}
	if o.Pending() != nil {
		t.Fatal("a weak match must not become pending")
	}
	if len(o.Candidates()) == 0 {
		t.Fatal("display candidates should still update")
	}
}

func TestCooldownBlocksRetrigger(t *testing.T) {
	sampler := &fakeSampler{ready: true, fp: hashFP("0000000000000000")}
	o := newTestOrchestrator(t, sampler, hashCorpus("ace"), nil)
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	o.now = func() time.Time { return clock }
	mustStart(t, o)

	o.tick(context.Background())
	if o.State() != types.StateAwaitingConfirmation {
		t.Fatalf("state = %s, want awaiting confirmation", o.State())
	}
	o.Confirm()

	// Inside the cooldown window the same card must not re-trigger.
	clock = clock.Add(o.opts.Cooldown / 2)
	o.tick(context.Background())
	if o.Pending() != nil {
		t.Fatal("card re-triggered inside its cooldown window")
	}
	if o.State() != types.StateStreaming {
		t.Fatalf("state = %s, want streaming", o.State())
	}

	// Past the window it triggers again.
	clock = clock.Add(o.opts.Cooldown)
	o.tick(context.Background())
	if p := o.Pending(); p == nil || p.Candidate.Entry.ID != "ace" {
		t.Fatalf("pending after cooldown = %+v, want ace", p)
	}
}

func TestCancelDiscardsWithoutSideEffects(t *testing.T) {
	sampler := &fakeSampler{ready: true, fp: hashFP("0000000000000000")}
	notifier := &fakeNotifier{}
	o := newTestOrchestrator(t, sampler, hashCorpus("ace"), notifier)
	mustStart(t, o)

	o.tick(context.Background())
	o.Cancel()

	if o.State() != types.StateStreaming {
		t.Fatalf("state = %s, want streaming", o.State())
	}
	if o.Pending() != nil {
		t.Fatal("pending should clear on cancel")
	}
	if len(o.Recent()) != 0 || len(notifier.cards) != 0 {
		t.Fatal("cancel must not record or notify")
	}
}

func TestConfirmCancelNoOpOutsideAwaiting(t *testing.T) {
	sampler := &fakeSampler{ready: true, fp: hashFP("0000000000000000")}
	o := newTestOrchestrator(t, sampler, hashCorpus("ace"), nil)

	// Idle.
	o.Confirm()
	o.Cancel()
	if o.State() != types.StateIdle || len(o.Recent()) != 0 {
		t.Fatal("confirm/cancel must be no-ops in idle")
	}

	// Streaming with no pending match.
	mustStart(t, o)
	o.Confirm()
	o.Cancel()
	if o.State() != types.StateStreaming || len(o.Recent()) != 0 {
		t.Fatal("confirm/cancel must be no-ops without a pending match")
	}
}

func TestScanNowBypassesThresholdAndCooldown(t *testing.T) {
	sampler := &fakeSampler{ready: true, fp: hashFP("ffffffffffffffff")}
	o := newTestOrchestrator(t, sampler, hashCorpus("a"), nil)
	mustStart(t, o)

	pending, err := o.ScanNow(context.Background())
	if err != nil {
		t.Fatalf("ScanNow: %v", err)
	}
	if pending == nil || pending.Candidate.Entry.ID != "a" {
		t.Fatalf("pending = %+v, want card a", pending)
	}
	if pending.Distance <= o.opts.AutoConfirmThreshold {
		t.Fatalf("distance = %g, expected a weak match for this test", pending.Distance)
	}
	if o.State() != types.StateAwaitingConfirmation {
		t.Fatalf("state = %s, want awaiting confirmation", o.State())
	}
}

func TestScanNowRequiresStreaming(t *testing.T) {
	sampler := &fakeSampler{ready: true, fp: hashFP("0000000000000000")}
	o := newTestOrchestrator(t, sampler, hashCorpus("a"), nil)

	if _, err := o.ScanNow(context.Background()); err == nil {
		t.Fatal("ScanNow in idle should fail")
	}

	mustStart(t, o)
	o.tick(context.Background())
	if o.State() != types.StateAwaitingConfirmation {
		t.Fatalf("state = %s, want awaiting confirmation", o.State())
	}
	if _, err := o.ScanNow(context.Background()); err == nil {
		t.Fatal("ScanNow while awaiting confirmation should fail")
	}
}

func TestInFlightGuardDropsOverlappingWork(t *testing.T) {
	sampler := &fakeSampler{ready: true, fp: hashFP("0000000000000000")}
	o := newTestOrchestrator(t, sampler, hashCorpus("ace"), nil)
	mustStart(t, o)

	o.inFlight.Store(true)
	o.tick(context.Background())
	if sampler.samples != 0 {
		t.Fatalf("overlapping tick sampled %d times, want 0", sampler.samples)
	}
	if _, err := o.ScanNow(context.Background()); err == nil || !strings.Contains(err.Error(), "in flight") {
		t.Fatalf("ScanNow during an in-flight sample: err = %v", err)
	}
	o.inFlight.Store(false)

	o.tick(context.Background())
	if sampler.samples != 1 {
		t.Fatalf("samples = %d, want 1 once the guard clears", sampler.samples)
	}
}

func TestRecentHistoryBoundedNewestFirst(t *testing.T) {
	sampler := &fakeSampler{ready: true}
	ids := []string{"c0", "c1", "c2", "c3", "c4", "c5", "c6"}
	o := newTestOrchestrator(t, sampler, hashCorpus(ids...), nil)
	mustStart(t, o)

	for i := range ids {
		sampler.fp = hashFP(fmt.Sprintf("%02x00000000000000", i))
		o.tick(context.Background())
		if o.State() != types.StateAwaitingConfirmation {
			t.Fatalf("card %s did not trigger", ids[i])
		}
		o.Confirm()
	}

	recent := o.Recent()
	if len(recent) != RecentLimit {
		t.Fatalf("history length = %d, want %d", len(recent), RecentLimit)
	}
	for i, want := range []string{"c6", "c5", "c4", "c3", "c2"} {
		if recent[i].Entry.ID != want {
			t.Fatalf("recent[%d] = %s, want %s", i, recent[i].Entry.ID, want)
		}
	}
}

func TestStopIdempotentAndPreservesHistory(t *testing.T) {
	sampler := &fakeSampler{ready: true, fp: hashFP("0000000000000000")}
	o := newTestOrchestrator(t, sampler, hashCorpus("ace"), nil)
	mustStart(t, o)

	o.tick(context.Background())
	o.Confirm()

	o.Stop()
	o.Stop()

	if o.State() != types.StateIdle {
		t.Fatalf("state = %s, want idle", o.State())
	}
	if o.Pending() != nil || len(o.Candidates()) != 0 || o.LastDetected() != "" {
		t.Fatal("display state should reset on stop")
	}
	if len(o.Recent()) != 1 {
		t.Fatal("recent history must survive stop")
	}
	if sampler.closes == 0 {
		t.Fatal("stop must release the sampler")
	}
}

func TestCameraLossReturnsToIdle(t *testing.T) {
	sampler := &fakeSampler{ready: true, fp: hashFP("0000000000000000")}
	o := newTestOrchestrator(t, sampler, hashCorpus("ace"), nil)
	mustStart(t, o)

	sampler.ready = false
	o.tick(context.Background())

	if o.State() != types.StateIdle {
		t.Fatalf("state = %s, want idle after camera loss", o.State())
	}
	if sampler.closes == 0 {
		t.Fatal("camera loss must release the sampler")
	}
}

func TestAutoScanOffSkipsPeriodicSampling(t *testing.T) {
	sampler := &fakeSampler{ready: true, fp: hashFP("0000000000000000")}
	opts := DefaultOptions()
	opts.SampleInterval = time.Hour
	opts.AutoScan = false
	o := New(sampler, hashCorpus("ace"), nil, opts)
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(o.Stop)

	o.tick(context.Background())
	if sampler.samples != 0 {
		t.Fatalf("tick sampled %d times with auto-scan off, want 0", sampler.samples)
	}

	// Manual scans still work.
	if _, err := o.ScanNow(context.Background()); err != nil {
		t.Fatalf("ScanNow: %v", err)
	}
}

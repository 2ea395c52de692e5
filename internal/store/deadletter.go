package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/proctorfusion/engine/internal/sessionstate"
)

// DeadLetterEntry is one failed-to-persist report retained for best-effort
// retry identification.
type DeadLetterEntry struct {
	Hash     [32]byte
	Report   sessionstate.SessionReport
	FailedAt time.Time
}

// DeadLetter collects reports a Sink failed to persist, keyed by a content
// hash so an identical failure recorded twice (a crash-and-retry loop, for
// instance) doesn't grow the list unboundedly.
type DeadLetter struct {
	mu      sync.Mutex
	entries map[[32]byte]DeadLetterEntry
}

// NewDeadLetter returns an empty DeadLetter.
func NewDeadLetter() *DeadLetter {
	return &DeadLetter{entries: make(map[[32]byte]DeadLetterEntry)}
}

// Record adds report to the list, keyed by its content hash. Recording the
// same report content again only refreshes FailedAt; it reports whether
// this was already present.
func (d *DeadLetter) Record(report sessionstate.SessionReport, failedAt time.Time) (hash [32]byte, duplicate bool) {
	hash = contentHash(report)

	d.mu.Lock()
	defer d.mu.Unlock()

	_, duplicate = d.entries[hash]
	d.entries[hash] = DeadLetterEntry{Hash: hash, Report: report, FailedAt: failedAt}
	return hash, duplicate
}

// Entries returns a snapshot of every retained dead-letter entry.
func (d *DeadLetter) Entries() []DeadLetterEntry {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]DeadLetterEntry, 0, len(d.entries))
	for _, e := range d.entries {
		out = append(out, e)
	}
	return out
}

// Len reports how many distinct reports are currently dead-lettered.
func (d *DeadLetter) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

func contentHash(report sessionstate.SessionReport) [32]byte {
	// Marshal errors can't occur for a SessionReport (no channels, funcs,
	// or cycles), so the hash of an empty buffer on failure is acceptable
	// and never observed in practice.
	data, _ := json.Marshal(report)
	return blake2b.Sum256(data)
}

// GuardedSink wraps a Sink so a failed Append is captured into a
// DeadLetter instead of only being logged and forgotten, matching the
// external contract's "failure is logged, not fatal" requirement while
// keeping the failed payload retrievable.
type GuardedSink struct {
	inner      Sink
	deadLetter *DeadLetter
	now        func() time.Time
}

// NewGuardedSink wraps inner. now defaults to time.Now when nil.
func NewGuardedSink(inner Sink, deadLetter *DeadLetter, now func() time.Time) *GuardedSink {
	if now == nil {
		now = time.Now
	}
	return &GuardedSink{inner: inner, deadLetter: deadLetter, now: now}
}

// Append delegates to inner; on failure the report is recorded in
// DeadLetter and the original error is still returned so the caller logs
// it, per the engine's non-fatal persistence-failure contract.
func (g *GuardedSink) Append(ctx context.Context, report sessionstate.SessionReport) error {
	err := g.inner.Append(ctx, report)
	if err != nil {
		g.deadLetter.Record(report, g.now())
	}
	return err
}

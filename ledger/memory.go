// Package ledger provides the in-process UsageLedger.
package ledger

import (
	"context"
	"sync"
	"time"

	vr "github.com/ineyio/visionrouter"
)

// Memory is an in-memory UsageLedger. Each (user, provider) key has its own
// lock; the map lock is only held to find or create an entry.
type Memory struct {
	mu      sync.Mutex
	entries map[key]*entry
	now     vr.Clock
}

type key struct {
	user     string
	provider string
}

type entry struct {
	mu   sync.Mutex
	rec  vr.UsageRecord
	dead bool // removed from the map by Prune
}

var _ vr.UsageLedger = (*Memory)(nil)

// MemoryOption configures Memory.
type MemoryOption func(*Memory)

// WithClock sets the time source used for rollover.
func WithClock(c vr.Clock) MemoryOption {
	return func(m *Memory) { m.now = c }
}

// NewMemory creates an empty in-memory ledger.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		entries: make(map[key]*entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CurrentUsage returns the counters of a key after rollover. Reading a key
// never seen before does not create it.
func (m *Memory) CurrentUsage(_ context.Context, userID, provider string) (vr.Counts, error) {
	m.mu.Lock()
	e, ok := m.entries[key{userID, provider}]
	m.mu.Unlock()
	if !ok {
		return vr.Counts{}, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.rec = vr.Rollover(e.rec, m.now())
	return e.rec.Counts(), nil
}

// Increment adds one to both counters of a key after rollover.
// An entry pruned between lookup and lock is looked up again, so the
// increment lands in the map.
func (m *Memory) Increment(_ context.Context, userID, provider string) (vr.Counts, error) {
	for {
		e := m.entry(userID, provider)

		e.mu.Lock()
		if e.dead {
			e.mu.Unlock()
			continue
		}
		e.rec = vr.Rollover(e.rec, m.now())
		e.rec.Daily++
		e.rec.Monthly++
		counts := e.rec.Counts()
		e.mu.Unlock()
		return counts, nil
	}
}

// Record returns the raw record of a key, without rollover.
func (m *Memory) Record(userID, provider string) (vr.UsageRecord, bool) {
	m.mu.Lock()
	e, ok := m.entries[key{userID, provider}]
	m.mu.Unlock()
	if !ok {
		return vr.UsageRecord{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rec, true
}

// Prune drops every record whose month stamp is older than the month of
// before. It returns the number of records removed. Entries created but
// not yet stamped by their first increment are kept.
func (m *Memory) Prune(before time.Time) int {
	cutoff := vr.MonthStamp(before)

	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for k, e := range m.entries {
		e.mu.Lock()
		if e.rec.LastMonth != "" && e.rec.LastMonth < cutoff {
			e.dead = true
			delete(m.entries, k)
			n++
		}
		e.mu.Unlock()
	}
	return n
}

func (m *Memory) entry(userID, provider string) *entry {
	k := key{userID, provider}

	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[k]
	if !ok {
		e = &entry{}
		m.entries[k] = e
	}
	return e
}

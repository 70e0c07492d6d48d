// ABOUTME: Status is an immutable snapshot of engine state, broadcast to
// ABOUTME: observers; Broadcaster multicasts every change (spec section 4.5).
package syncx

import (
	"sync"
	"time"
)

// SyncMode describes how sync_all gets invoked (spec section 4.5).
type SyncMode string

const (
	ModeManual    SyncMode = "manual"
	ModeAutomatic SyncMode = "automatic"
	ModeScheduled SyncMode = "scheduled"
)

// Status is an immutable snapshot of engine state at a moment in time.
// Fields that must distinguish "unset" from "explicitly cleared" (namely
// LastSyncAt, LastError, NextSyncAt) are pointers; With* helpers build a
// copy with the field changed, per the design notes in spec section 9.
type Status struct {
	IsOnline        bool
	IsSyncing       bool
	LastSyncAt      *int64
	PendingCount    int
	FailedCount     int
	LastError       *string
	SyncProgress    float64
	AutoSyncEnabled bool
	SyncMode        SyncMode
	NextSyncAt      *int64
}

// HasPendingItems reports whether any row is waiting to sync.
func (s Status) HasPendingItems() bool { return s.PendingCount > 0 }

// HasFailedSyncs reports whether any table failed during the last sync_all.
func (s Status) HasFailedSyncs() bool { return s.FailedCount > 0 }

// IsHealthy holds iff there were no failures and no outstanding error
// (spec section 8, invariant 7).
func (s Status) IsHealthy() bool { return s.FailedCount == 0 && s.LastError == nil }

// TimeSinceLastSync returns the duration since LastSyncAt, or -1 if the
// engine has never synced.
func (s Status) TimeSinceLastSync(now int64) time.Duration {
	if s.LastSyncAt == nil {
		return -1
	}
	return time.Duration(now-*s.LastSyncAt) * time.Millisecond
}

// IsRecentlySynced reports whether the last sync completed within the hour.
func (s Status) IsRecentlySynced(now int64) bool {
	d := s.TimeSinceLastSync(now)
	return d >= 0 && d <= time.Hour
}

// WithLastSyncAt returns a copy with LastSyncAt set to ms.
func (s Status) WithLastSyncAt(ms int64) Status { c := s; c.LastSyncAt = &ms; return c }

// WithLastError returns a copy with LastError set to msg, or cleared when
// msg is nil.
func (s Status) WithLastError(msg *string) Status { c := s; c.LastError = msg; return c }

// WithNextSyncAt returns a copy with NextSyncAt set to ms, or cleared when
// ms is nil.
func (s Status) WithNextSyncAt(ms *int64) Status { c := s; c.NextSyncAt = ms; return c }

// Broadcaster multicasts every Status change to all subscribed observers.
// Late subscribers receive at least the current snapshot, matching spec
// section 4.5's broadcast-channel requirement.
type Broadcaster struct {
	mu       sync.Mutex
	current  Status
	subs     map[int]chan Status
	nextID   int
	closed   bool
}

// NewBroadcaster creates a broadcaster seeded with an initial snapshot.
func NewBroadcaster(initial Status) *Broadcaster {
	return &Broadcaster{current: initial, subs: make(map[int]chan Status)}
}

// Current returns the latest published snapshot.
func (b *Broadcaster) Current() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// Publish updates the current snapshot and multicasts it to every
// subscriber. Snapshots reach each subscriber in the order Publish calls
// take the broadcaster's lock; subscribers must not reorder what they receive.
func (b *Broadcaster) Publish(s Status) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.current = s
	for _, ch := range b.subs {
		select {
		case ch <- s:
		default:
			// Slow subscriber: drop rather than block the publisher. The
			// subscriber's next Subscribe call still observes Current().
		}
	}
}

// Subscribe returns a channel that receives the current snapshot
// immediately and later ones as they are published (a snapshot published
// while the channel's buffer of 8 is full is dropped for it), and an
// unsubscribe function.
func (b *Broadcaster) Subscribe() (<-chan Status, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Status, 8)
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	if !b.closed {
		ch <- b.current
	}
	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
}

// Close closes the broadcaster and every subscriber channel (spec section
// 5's dispose() semantics).
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}

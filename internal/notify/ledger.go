package notify

import (
	"sync"
	"time"
)

// ledger remembers event ids that already produced a notification. It is
// bounded in both age and size and lives only as long as the process.
type ledger struct {
	mu      sync.Mutex
	entries map[string]time.Time
	ttl     time.Duration
	max     int
}

func newLedger(ttl time.Duration, max int) *ledger {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if max <= 0 {
		max = 5000
	}
	return &ledger{
		entries: make(map[string]time.Time),
		ttl:     ttl,
		max:     max,
	}
}

// claim records id and reports whether it was not already present.
func (l *ledger) claim(id string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.cleanupLocked(now)
	if _, ok := l.entries[id]; ok {
		return false
	}
	if len(l.entries) >= l.max {
		l.evictOldestLocked()
	}
	l.entries[id] = now
	return true
}

// release forgets id so a later delivery of the same event may try again.
func (l *ledger) release(id string) {
	l.mu.Lock()
	delete(l.entries, id)
	l.mu.Unlock()
}

func (l *ledger) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *ledger) cleanupLocked(now time.Time) {
	for id, at := range l.entries {
		if now.Sub(at) > l.ttl {
			delete(l.entries, id)
		}
	}
}

func (l *ledger) evictOldestLocked() {
	var (
		oldestID string
		oldestAt time.Time
	)
	for id, at := range l.entries {
		if oldestID == "" || at.Before(oldestAt) {
			oldestID, oldestAt = id, at
		}
	}
	delete(l.entries, oldestID)
}

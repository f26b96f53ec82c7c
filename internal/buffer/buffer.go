// Package buffer holds the rolling in-memory working set of canonical
// intelligence records. It is the only shared resource with concurrent
// writers (one per feed poller) and concurrent readers (reactive correlation,
// the periodic sweep, and eviction).
package buffer

import (
	"sort"
	"sync"
	"time"

	"github.com/intelsphere/apex-feeds/internal/models"
	"github.com/intelsphere/apex-feeds/internal/utils"
)

// Buffer is a time-ordered, bounded-by-eviction record collection. Records
// are immutable once appended; only append and bulk eviction mutate state.
type Buffer struct {
	mu      sync.RWMutex
	records []models.IntelligenceRecord
	clock   utils.Clock
}

// New constructs an empty buffer on the supplied clock.
func New(clock utils.Clock) *Buffer {
	if clock == nil {
		clock = utils.RealClock()
	}
	return &Buffer{clock: clock}
}

// Append inserts a record. Safe under concurrent writers.
func (b *Buffer) Append(rec models.IntelligenceRecord) {
	b.mu.Lock()
	b.records = append(b.records, rec)
	b.mu.Unlock()
}

// Len returns the current record count.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.records)
}

// Recent returns a point-in-time snapshot of records younger than maxAge,
// sorted newest-first.
func (b *Buffer) Recent(maxAge time.Duration) []models.IntelligenceRecord {
	cutoff := b.clock.Now().Add(-maxAge)

	b.mu.RLock()
	out := make([]models.IntelligenceRecord, 0, len(b.records))
	for _, rec := range b.records {
		if rec.CreatedAt.After(cutoff) {
			out = append(out, rec)
		}
	}
	b.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Latest returns up to limit of the newest records, newest-first.
func (b *Buffer) Latest(limit int) []models.IntelligenceRecord {
	b.mu.RLock()
	out := append([]models.IntelligenceRecord(nil), b.records...)
	b.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// EvictOlderThan removes records whose age exceeds maxAge and reports how
// many were dropped. Idempotent: a second call with no intervening appends
// removes nothing.
func (b *Buffer) EvictOlderThan(maxAge time.Duration) int {
	cutoff := b.clock.Now().Add(-maxAge)

	b.mu.Lock()
	defer b.mu.Unlock()

	kept := b.records[:0]
	for _, rec := range b.records {
		if rec.CreatedAt.After(cutoff) {
			kept = append(kept, rec)
		}
	}
	evicted := len(b.records) - len(kept)
	b.records = kept
	return evicted
}

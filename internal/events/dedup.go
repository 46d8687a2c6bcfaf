package events

import (
	"sync"
	"time"
)

// dedupHorizon bounds how long a locally published change is remembered.
const dedupHorizon = time.Hour

// Dedup remembers changes this process already published so a poll-based
// watch strategy does not replay them to its own subscribers. A change made
// by another process carries a later timestamp and still passes through.
type Dedup struct {
	mu   sync.Mutex
	seen map[int64]time.Time
}

func NewDedup() *Dedup {
	return &Dedup{seen: map[int64]time.Time{}}
}

// Record marks the change to id at ts as published in-process.
func (d *Dedup) Record(id int64, ts time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cur, ok := d.seen[id]; !ok || ts.After(cur) {
		d.seen[id] = ts
	}
	for k, v := range d.seen {
		if time.Since(v) > dedupHorizon {
			delete(d.seen, k)
		}
	}
}

// Observed reports whether the change to id at ts was already published by
// this process. Timestamps after the recorded one are new information.
func (d *Dedup) Observed(id int64, ts time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	cur, ok := d.seen[id]
	return ok && !ts.After(cur)
}

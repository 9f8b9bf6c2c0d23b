package scheduler

import (
	"sync"
)

// DailySnapshot is one flushed view of the digest counters.
type DailySnapshot struct {
	Scanned  int `json:"scanned"`
	Accepted int `json:"accepted"`
	NearMiss int `json:"near_miss"`
}

// DailyLog accumulates per-period digest counters. Counters grow between
// summary flushes and reset after each flush.
type DailyLog struct {
	mu       sync.Mutex
	scanned  int
	accepted int
	nearMiss int
}

// NewDailyLog creates an empty log.
func NewDailyLog() *DailyLog {
	return &DailyLog{}
}

// Record folds one batch into the counters.
func (d *DailyLog) Record(scanned, accepted, nearMiss int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.scanned += scanned
	d.accepted += accepted
	d.nearMiss += nearMiss
}

// Snapshot returns the current counters without resetting them.
func (d *DailyLog) Snapshot() DailySnapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return DailySnapshot{Scanned: d.scanned, Accepted: d.accepted, NearMiss: d.nearMiss}
}

// Flush returns the counters and zeroes them in one step.
func (d *DailyLog) Flush() DailySnapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	snap := DailySnapshot{Scanned: d.scanned, Accepted: d.accepted, NearMiss: d.nearMiss}
	d.scanned, d.accepted, d.nearMiss = 0, 0, 0
	return snap
}

// Reset zeroes the counters.
func (d *DailyLog) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.scanned, d.accepted, d.nearMiss = 0, 0, 0
}

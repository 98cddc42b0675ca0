package monitor

import (
	"sync"
	"time"
)

// Stats are the scheduler's running counters
type Stats struct {
	Cycles            int64         `json:"cycles"`
	SkippedTicks      int64         `json:"skipped_ticks"`
	FailedCycles      int64         `json:"failed_cycles"`
	NotificationsSent int64         `json:"notifications_sent"`
	FetchFailures     int64         `json:"fetch_failures"`
	LastCycleStart    time.Time     `json:"last_cycle_start"`
	LastCycleDuration time.Duration `json:"last_cycle_duration"`
	LastCyclePairs    int           `json:"last_cycle_pairs"`
	LastError         string        `json:"last_error,omitempty"`
}

type statsRecorder struct {
	mu sync.Mutex
	s  Stats
}

func (r *statsRecorder) snapshot() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.s
}

func (r *statsRecorder) skipped() {
	r.mu.Lock()
	r.s.SkippedTicks++
	r.mu.Unlock()
}

func (r *statsRecorder) fetchFailed() {
	r.mu.Lock()
	r.s.FetchFailures++
	r.mu.Unlock()
}

func (r *statsRecorder) sent() {
	r.mu.Lock()
	r.s.NotificationsSent++
	r.mu.Unlock()
}

func (r *statsRecorder) cycleDone(start time.Time, d time.Duration, pairs int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.s.Cycles++
	r.s.LastCycleStart = start
	r.s.LastCycleDuration = d
	r.s.LastCyclePairs = pairs
	if err != nil {
		r.s.FailedCycles++
		r.s.LastError = err.Error()
	} else {
		r.s.LastError = ""
	}
}

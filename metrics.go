package hscl

import (
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// starvationThreshold is the gap between two acquisitions by the same
// thread beyond which the interval counts as a starvation period.
const starvationThreshold = 100 * time.Millisecond

// waitHistogram bounds: lock waits between 1µs and 1 minute at three
// significant figures.
const (
	waitHistMin    = int64(time.Microsecond)
	waitHistMax    = int64(time.Minute)
	waitHistSigFig = 3
)

// Counters are the per-thread statistics. Every field is owned and mutated
// exclusively by its worker while it runs and is read only after the worker
// has joined, so no synchronization is needed on the update path.
type Counters struct {
	InsertCount uint64
	FindCount   uint64
	UpdateCount uint64

	InsertTime time.Duration
	FindTime   time.Duration
	UpdateTime time.Duration

	LockWaitTime     time.Duration
	LockAcquisitions uint64
	TotalOperations  uint64

	SliceViolations uint64

	StarvationPeriods uint64
	MaxStarvationGap  time.Duration
	lastAcquire       time.Time

	MaxConsecutiveAcquisitions int64
	DominatedLower             uint64
	StarvedByHigher            uint64

	ThrottleTime time.Duration

	// WaitHist records individual lock-wait latencies for the report's
	// percentile columns.
	WaitHist *hdrhistogram.Histogram
}

// NewCounters returns zero-initialized counters with the wait histogram
// allocated.
func NewCounters() *Counters {
	return &Counters{
		WaitHist: hdrhistogram.New(waitHistMin, waitHistMax, waitHistSigFig),
	}
}

// recordAcquire folds one lock acquisition into the counters: wait time,
// the wait histogram, and the starvation bookkeeping against the previous
// acquisition by this same thread.
func (c *Counters) recordAcquire(wait time.Duration, now time.Time) {
	c.LockWaitTime += wait
	c.LockAcquisitions++
	_ = c.WaitHist.RecordValue(clampHist(int64(wait)))

	if !c.lastAcquire.IsZero() {
		gap := now.Sub(c.lastAcquire)
		if gap > c.MaxStarvationGap {
			c.MaxStarvationGap = gap
		}
		if gap > starvationThreshold {
			c.StarvationPeriods++
		}
	}
	c.lastAcquire = now
}

// recordOp folds one completed store operation into the counters.
func (c *Counters) recordOp(kind OpKind, elapsed time.Duration) {
	switch kind {
	case OpInsert:
		c.InsertCount++
		c.InsertTime += elapsed
	case OpFind:
		c.FindCount++
		c.FindTime += elapsed
	case OpUpdate:
		c.UpdateCount++
		c.UpdateTime += elapsed
	}
	c.TotalOperations++
}

// clampHist keeps a sample inside the histogram's trackable range.
func clampHist(v int64) int64 {
	if v < waitHistMin {
		return waitHistMin
	}
	if v > waitHistMax {
		return waitHistMax
	}
	return v
}

// AvgWait reports the mean lock wait per acquisition.
func (c *Counters) AvgWait() time.Duration {
	if c.LockAcquisitions == 0 {
		return 0
	}
	return c.LockWaitTime / time.Duration(c.LockAcquisitions)
}

// ClassAggregate is the coarse per-class rollup used by the analyzer and
// the cgroup summary table.
type ClassAggregate struct {
	Threads      int
	TotalOps     uint64
	ThrottleTime time.Duration
}

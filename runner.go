package hscl

import (
	"log/slog"
	"math/rand"
	"runtime"
	"sync"
	"time"

	uatomic "go.uber.org/atomic"
)

// runContext is the shared state of one run. It replaces the global
// variables of a classic benchmark main: the stop flag and key counter are
// atomic, the holder tracker is deliberately best-effort, and everything
// else is read-only while workers are live.
type runContext struct {
	clock   Clock
	logger  *slog.Logger
	store   Store
	lock    LockStrategy
	tracker *HolderTracker

	stop    uatomic.Bool
	nextKey uatomic.Int64 // ids issued so far; first issued id is 1
}

// nextKeyID hands out the next key id with an atomic fetch-and-increment.
func (rc *runContext) nextKeyID() int {
	return int(rc.nextKey.Inc())
}

// keySpace reports how many key ids have been issued. Zero means no Insert
// has happened yet and Find/Update are no-ops.
func (rc *runContext) keySpace() int {
	return int(rc.nextKey.Load())
}

// worker is one benchmark thread: its identity, schedule, workload stream
// and exclusively-owned counters.
type worker struct {
	id      int
	class   Class
	binding Binding
	cgroup  *CGroupProfile // nil outside cgroup mode

	mix      OperationMix
	rng      *rand.Rand
	workCost WorkCostModel
	pinCPUs  []int

	counters *Counters
	throttle throttleState
	valueBuf [DataSize]byte
}

// fairWeight is the weight registered with the lock strategy: the cgroup
// share scaled by the thread's base weight in cgroup mode, otherwise the
// bind weight adjusted by the thread's nice-style priority.
func (w *worker) fairWeight() int {
	if w.cgroup != nil {
		return CGroupWeight(w.cgroup.Weight, w.binding.Weight)
	}
	return FairWeight(w.binding.Weight, w.binding.Priority)
}

// schedulingSpec derives the OS scheduling request for this worker.
func (w *worker) schedulingSpec() schedSpec {
	if w.cgroup != nil {
		return schedSpec{
			Realtime:   w.cgroup.RTPriority > 0,
			RTPriority: w.cgroup.RTPriority,
			Nice:       w.cgroup.Nice,
			CPUs:       w.pinCPUs,
		}
	}
	p := w.class.Profile()
	return schedSpec{
		Realtime:   p.Realtime,
		RTPriority: p.RealtimePriority,
		Nice:       p.Nice,
		CPUs:       w.pinCPUs,
	}
}

// run is the worker loop. The goroutine is pinned to an OS thread so the
// priority/affinity configuration and the lock contention are real. The
// loop polls the stop flag; an in-flight operation is never aborted.
func (w *worker) run(rc *runContext, wg *sync.WaitGroup) {
	defer wg.Done()

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := applyScheduling(w.schedulingSpec()); err != nil {
		rc.logger.Warn("scheduling setup failed, using default OS scheduling",
			"thread", w.id, "class", w.class.String(), "err", err)
	}

	handle, err := rc.lock.ThreadInit(w.fairWeight(), w.binding.LeafID)
	if err != nil {
		rc.logger.Error("lock thread init failed, worker not running",
			"thread", w.id, "err", err)
		return
	}

	gen := NewWorkloadGenerator(w.mix, w.rng)

	for !rc.stop.Load() {
		if w.cgroup != nil {
			if d := w.throttle.maybeThrottle(rc.clock); d > 0 {
				w.counters.ThrottleTime += d
			}
		}

		op := gen.Next()

		wait := handle.Acquire()
		w.counters.recordAcquire(wait, rc.clock.Now())

		obs := rc.tracker.Observe(w.id, w.class)
		if obs.Consecutive > w.counters.MaxConsecutiveAcquisitions {
			w.counters.MaxConsecutiveAcquisitions = obs.Consecutive
		}
		if obs.DominatedLower {
			w.counters.DominatedLower++
		}
		if obs.StarvedByHigher {
			w.counters.StarvedByHigher++
		}

		elapsed := w.perform(rc, op)
		w.counters.recordOp(op, elapsed)

		deadline := handle.Release()
		if !deadline.IsZero() && rc.clock.Now().After(deadline) {
			w.counters.SliceViolations++
		}

		busyWork(w.workCost(w.class))
		w.pace()
	}
}

// perform executes one store operation and returns its duration. Duplicate
// keys and misses are expected outcomes; anything else is logged and the
// loop continues. Find/Update against an empty keyspace are zero-duration
// no-ops.
func (w *worker) perform(rc *runContext, op OpKind) time.Duration {
	start := rc.clock.Now()

	switch op {
	case OpInsert:
		key := KeyFor(w.id, rc.nextKeyID())
		st := rc.store.Insert(key, randomValue(w.rng, w.valueBuf[:]))
		if st != StoreOK && st != StoreDuplicateKey {
			rc.logger.Warn("insert failed", "thread", w.id, "key", key, "status", st.String())
		}

	case OpFind:
		issued := rc.keySpace()
		if issued < 1 {
			return 0
		}
		key := KeyFor(w.rng.Intn(MaxThreads), 1+w.rng.Intn(issued))
		_, st := rc.store.Find(key)
		if st != StoreOK && st != StoreNotFound {
			rc.logger.Warn("find failed", "thread", w.id, "key", key, "status", st.String())
		}

	case OpUpdate:
		issued := rc.keySpace()
		if issued < 1 {
			return 0
		}
		key := KeyFor(w.rng.Intn(MaxThreads), 1+w.rng.Intn(issued))
		st := rc.store.Update(key, randomValue(w.rng, w.valueBuf[:]))
		if st != StoreOK && st != StoreNotFound {
			rc.logger.Warn("update failed", "thread", w.id, "key", key, "status", st.String())
		}
	}

	return rc.clock.Now().Sub(start)
}

// pace applies the cooperative yield policy between operations. Interactive
// cgroup threads take short frequent breaks, batch threads long rare ones;
// class-mode threads yield on their profile period. Every tenth operation
// yields the processor so the scheduler gets a say.
func (w *worker) pace() {
	ops := w.counters.TotalOperations
	if ops == 0 {
		return
	}

	switch {
	case w.cgroup != nil && w.cgroup.Name == "interactive" && ops%50 == 0:
		time.Sleep(500 * time.Microsecond)
	case w.cgroup != nil && w.cgroup.Name == "batch" && ops%500 == 0:
		time.Sleep(2 * time.Millisecond)
	case w.cgroup != nil && ops%100 == 0:
		time.Sleep(time.Millisecond)
	case w.cgroup == nil && ops%uint64(w.class.Profile().YieldEvery) == 0:
		time.Sleep(time.Millisecond)
	}

	if ops%10 == 0 {
		runtime.Gosched()
	}
}

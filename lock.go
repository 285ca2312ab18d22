package hscl

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	uatomic "go.uber.org/atomic"
)

// LockType selects one of the closed set of synchronization strategies the
// harness can put under contention.
type LockType int

const (
	// LockMutex is the plain blocking mutex. No fairness guarantees.
	LockMutex LockType = iota
	// LockSpin busy-polls with a CAS loop, yielding the processor between
	// attempts.
	LockSpin
	// LockRWLock takes the write side of a read-write lock for every
	// operation.
	LockRWLock
	// LockAdaptiveMutex spins a bounded number of attempts before falling
	// back to blocking.
	LockAdaptiveMutex
	// LockHierarchicalFair delegates to an injected FairLock collaborator
	// that consumes the scheduling tree and per-thread weights.
	LockHierarchicalFair
)

var lockTypeNames = [...]string{"MUTEX", "SPINLOCK", "RWLOCK", "ADAPTIVE_MUTEX", "HFAIRLOCK"}

func (t LockType) String() string {
	if t < 0 || int(t) >= len(lockTypeNames) {
		return fmt.Sprintf("LOCK(%d)", int(t))
	}
	return lockTypeNames[t]
}

// LockTypeFromSelector maps a numeric command-line selector to a lock type.
// Unknown selectors report ok=false; callers fall back to LockMutex.
func LockTypeFromSelector(n int) (LockType, bool) {
	if n < 0 || n >= len(lockTypeNames) {
		return LockMutex, false
	}
	return LockType(n), true
}

// ThreadLock is a per-thread handle on the shared lock. Acquire blocks (or
// busy-polls) until ownership is obtained and returns the wait duration.
// Release gives ownership up and returns the slice deadline the holder was
// scheduled against; the zero time means the strategy keeps no slice
// accounting. Go has no thread-local storage, so the per-thread registration
// the contract requires is expressed as a handle instead.
type ThreadLock interface {
	Acquire() time.Duration
	Release() time.Time
}

// LockStrategy is the pluggable synchronization primitive. ThreadInit is
// called once per worker before its first Acquire and is safe to call
// concurrently from the workers themselves. Destroy runs once after all
// workers have joined.
type LockStrategy interface {
	ThreadInit(weight, leafID int) (ThreadLock, error)
	Destroy()
}

// FairHandle is the per-thread face of the external hierarchical fair lock.
type FairHandle interface {
	Acquire()
	Release() time.Time
}

// FairLock is the contract of the external hierarchical fair-lock
// collaborator. The harness owns only the calling discipline: it computes
// the per-thread weight, binds the thread to its tree leaf at ThreadInit,
// and checks slice deadlines after Release. The algorithm behind the
// contract is not this package's responsibility.
type FairLock interface {
	Init(h *Hierarchy) error
	ThreadInit(weight, leafID int) (FairHandle, error)
	Destroy()
}

// LockOptions configure NewLockStrategy.
type LockOptions struct {
	Type      LockType
	Hierarchy *Hierarchy // required for LockHierarchicalFair
	FairLock  FairLock   // required for LockHierarchicalFair
	Clock     Clock      // defaults to SystemClock
}

// NewLockStrategy constructs the selected strategy. A fair-lock selection
// without a collaborator is a resource-initialization error: the run aborts
// before any thread launches.
func NewLockStrategy(opts LockOptions) (LockStrategy, error) {
	clock := opts.Clock
	if clock == nil {
		clock = SystemClock
	}
	switch opts.Type {
	case LockMutex:
		return &mutexStrategy{clock: clock}, nil
	case LockSpin:
		return &spinStrategy{clock: clock}, nil
	case LockRWLock:
		return &rwStrategy{clock: clock}, nil
	case LockAdaptiveMutex:
		return &adaptiveStrategy{clock: clock}, nil
	case LockHierarchicalFair:
		if opts.FairLock == nil {
			return nil, fmt.Errorf("hierarchical fair lock selected but no collaborator provided: %w", ErrLockInit)
		}
		if opts.Hierarchy == nil {
			return nil, fmt.Errorf("hierarchical fair lock requires a scheduling tree: %w", ErrLockInit)
		}
		if err := opts.FairLock.Init(opts.Hierarchy); err != nil {
			return nil, fmt.Errorf("fair lock init: %w", err)
		}
		return &fairStrategy{impl: opts.FairLock, clock: clock}, nil
	default:
		return nil, fmt.Errorf("unknown lock type %d: %w", int(opts.Type), ErrBadConfig)
	}
}

// mutexStrategy: sync.Mutex held for the whole critical section.
type mutexStrategy struct {
	clock Clock
	mu    sync.Mutex
}

func (s *mutexStrategy) ThreadInit(weight, leafID int) (ThreadLock, error) {
	return &mutexHandle{s: s}, nil
}

func (s *mutexStrategy) Destroy() {}

type mutexHandle struct{ s *mutexStrategy }

func (h *mutexHandle) Acquire() time.Duration {
	start := h.s.clock.Now()
	h.s.mu.Lock()
	return h.s.clock.Now().Sub(start)
}

func (h *mutexHandle) Release() time.Time {
	h.s.mu.Unlock()
	return time.Time{}
}

// spinStrategy: CAS loop with a scheduler yield between attempts, so a
// spinner never wedges a GOMAXPROCS slot against the holder.
type spinStrategy struct {
	clock Clock
	state uatomic.Uint32
}

func (s *spinStrategy) ThreadInit(weight, leafID int) (ThreadLock, error) {
	return &spinHandle{s: s}, nil
}

func (s *spinStrategy) Destroy() {}

type spinHandle struct{ s *spinStrategy }

func (h *spinHandle) Acquire() time.Duration {
	start := h.s.clock.Now()
	for !h.s.state.CompareAndSwap(0, 1) {
		runtime.Gosched()
	}
	return h.s.clock.Now().Sub(start)
}

func (h *spinHandle) Release() time.Time {
	h.s.state.Store(0)
	return time.Time{}
}

// rwStrategy: every operation takes the write side, matching the
// rwlock-as-writer variant of the original comparison.
type rwStrategy struct {
	clock Clock
	mu    sync.RWMutex
}

func (s *rwStrategy) ThreadInit(weight, leafID int) (ThreadLock, error) {
	return &rwHandle{s: s}, nil
}

func (s *rwStrategy) Destroy() {}

type rwHandle struct{ s *rwStrategy }

func (h *rwHandle) Acquire() time.Duration {
	start := h.s.clock.Now()
	h.s.mu.Lock()
	return h.s.clock.Now().Sub(start)
}

func (h *rwHandle) Release() time.Time {
	h.s.mu.Unlock()
	return time.Time{}
}

// adaptiveSpinBudget bounds the optimistic TryLock attempts before an
// adaptive handle gives up and blocks.
const adaptiveSpinBudget = 128

// adaptiveStrategy spins briefly on the assumption that critical sections
// are short, then blocks. This is the portable rendition of an adaptive
// mutex.
type adaptiveStrategy struct {
	clock Clock
	mu    sync.Mutex
}

func (s *adaptiveStrategy) ThreadInit(weight, leafID int) (ThreadLock, error) {
	return &adaptiveHandle{s: s}, nil
}

func (s *adaptiveStrategy) Destroy() {}

type adaptiveHandle struct{ s *adaptiveStrategy }

func (h *adaptiveHandle) Acquire() time.Duration {
	start := h.s.clock.Now()
	for i := 0; i < adaptiveSpinBudget; i++ {
		if h.s.mu.TryLock() {
			return h.s.clock.Now().Sub(start)
		}
		if i%16 == 15 {
			runtime.Gosched()
		}
	}
	h.s.mu.Lock()
	return h.s.clock.Now().Sub(start)
}

func (h *adaptiveHandle) Release() time.Time {
	h.s.mu.Unlock()
	return time.Time{}
}

// fairStrategy adapts the external FairLock collaborator to the strategy
// contract, timing acquisitions on the harness clock.
type fairStrategy struct {
	impl  FairLock
	clock Clock
}

func (s *fairStrategy) ThreadInit(weight, leafID int) (ThreadLock, error) {
	fh, err := s.impl.ThreadInit(weight, leafID)
	if err != nil {
		return nil, fmt.Errorf("fair lock thread init (weight=%d leaf=%d): %w", weight, leafID, err)
	}
	return &fairThreadHandle{fh: fh, clock: s.clock}, nil
}

func (s *fairStrategy) Destroy() { s.impl.Destroy() }

type fairThreadHandle struct {
	fh    FairHandle
	clock Clock
}

func (h *fairThreadHandle) Acquire() time.Duration {
	start := h.clock.Now()
	h.fh.Acquire()
	return h.clock.Now().Sub(start)
}

func (h *fairThreadHandle) Release() time.Time {
	return h.fh.Release()
}

// FairWeight computes the priority-adjusted weight registered with the fair
// lock: base weight scaled by (20 + nice), clamped positive so a nice of 19
// still yields a schedulable share.
func FairWeight(weight, nice int) int {
	w := weight * (20 + nice)
	if w < 1 {
		w = 1
	}
	return w
}

// CGroupWeight computes the cgroup-adjusted fair-lock weight: the cgroup's
// share scaled by the thread's base weight relative to the 1024 default.
func CGroupWeight(cgroupWeight, threadWeight int) int {
	w := int(float64(cgroupWeight) * (float64(threadWeight) / 1024.0))
	if w < 1 {
		w = 1
	}
	return w
}

// CycleFairHandle is the per-thread face of a fair lock that accounts time
// in raw CPU cycles. Release reports the cycles remaining in the granted
// slice at release time; negative means the holder ran over.
type CycleFairHandle interface {
	Acquire()
	Release() (sliceRemainingCycles int64)
}

// CycleFairLock is a FairLock variant whose slice accounting lives in the
// cycle domain of the host it was built for.
type CycleFairLock interface {
	Init(h *Hierarchy) error
	ThreadInit(weight, leafID int) (CycleFairHandle, error)
	Destroy()
}

// AdaptCycleFairLock wraps a cycle-domain collaborator into the FairLock
// contract, converting its slice accounting to wall time with the
// cyclesPerUS calibration parameter.
func AdaptCycleFairLock(impl CycleFairLock, cyclesPerUS int, clock Clock) FairLock {
	if clock == nil {
		clock = SystemClock
	}
	if cyclesPerUS <= 0 {
		cyclesPerUS = DefaultCyclesPerMicrosecond
	}
	return &cycleFairAdapter{impl: impl, cyclesPerUS: cyclesPerUS, clock: clock}
}

type cycleFairAdapter struct {
	impl        CycleFairLock
	cyclesPerUS int
	clock       Clock
}

func (a *cycleFairAdapter) Init(h *Hierarchy) error { return a.impl.Init(h) }

func (a *cycleFairAdapter) ThreadInit(weight, leafID int) (FairHandle, error) {
	ch, err := a.impl.ThreadInit(weight, leafID)
	if err != nil {
		return nil, err
	}
	return &cycleFairHandle{ch: ch, a: a}, nil
}

func (a *cycleFairAdapter) Destroy() { a.impl.Destroy() }

type cycleFairHandle struct {
	ch CycleFairHandle
	a  *cycleFairAdapter
}

func (h *cycleFairHandle) Acquire() { h.ch.Acquire() }

func (h *cycleFairHandle) Release() time.Time {
	remaining := h.ch.Release()
	now := h.a.clock.Now()
	if remaining >= 0 {
		return now.Add(CyclesToDuration(uint64(remaining), h.a.cyclesPerUS))
	}
	return now.Add(-CyclesToDuration(uint64(-remaining), h.a.cyclesPerUS))
}

// HolderTracker is the shared last-holder bookkeeping used for consecutive
// acquisition and class-dominance statistics. It is diagnostic, not
// correctness-critical: the cells are individually atomic so reads never
// tear, but the observe sequence is not, so concurrent observers may lose
// updates. The statistic tolerates that; torn reads it would not.
type HolderTracker struct {
	lastThread  uatomic.Int64
	lastClass   uatomic.Int64
	consecutive uatomic.Int64
	sameClass   uatomic.Int64
	switches    uatomic.Int64
}

// HolderObservation summarizes what one acquisition saw of the previous
// holder.
type HolderObservation struct {
	Consecutive     int64
	DominatedLower  bool
	StarvedByHigher bool
}

// NewHolderTracker returns a tracker with no holder observed yet.
func NewHolderTracker() *HolderTracker {
	t := &HolderTracker{}
	t.lastThread.Store(-1)
	t.lastClass.Store(int64(ClassBackground))
	return t
}

// Observe records that threadID of the given class just acquired the lock
// and reports how the acquisition relates to the previous holder.
func (t *HolderTracker) Observe(threadID int, class Class) HolderObservation {
	var obs HolderObservation
	last := t.lastThread.Load()
	if last == int64(threadID) {
		obs.Consecutive = t.consecutive.Inc()
		return obs
	}
	t.consecutive.Store(1)
	obs.Consecutive = 1
	if last >= 0 {
		lastClass := Class(t.lastClass.Load())
		switch {
		case class < lastClass:
			obs.DominatedLower = true
		case class > lastClass:
			obs.StarvedByHigher = true
		}
		if lastClass != class {
			t.switches.Inc()
			t.sameClass.Store(1)
		} else {
			t.sameClass.Inc()
		}
	}
	t.lastThread.Store(int64(threadID))
	t.lastClass.Store(int64(class))
	return obs
}

// Switches reports how many times lock ownership moved between classes.
func (t *HolderTracker) Switches() int64 { return t.switches.Load() }

// Package hfairlock is a weighted hierarchical fair lock. Threads register
// with a weight and a leaf of a scheduling tree; ownership is granted FIFO
// among eligible waiters, each grant carries a weight-proportional time
// slice, and a releasing thread is banned from re-entry for a period
// proportional to the time it held the lock and inversely proportional to
// its weight share:
//
//	ban = held · (Σw - w) / w
//
// A heavy thread that holds briefly re-enters almost immediately; a light
// thread that hogs the lock sits out long enough for the rest of the tree to
// catch up. The ban is also recorded on the thread's leaf node and its
// ancestors, so tree-level bookkeeping (BannedUntil, SliceEnd,
// CriticalSections) reflects what the lock actually did.
//
// The implementation satisfies the hscl.FairLock contract and is what the
// fairbench binary plugs in when the hierarchical fair lock is selected.
package hfairlock

import (
	"errors"
	"fmt"
	"sync"
	"time"

	hscl "github.com/BiswajitRakshit/HSCL"
)

// Slice and ban tuning. The slice scales linearly with weight around the
// 1024 reference; bans are capped so a single long hold cannot park a thread
// for the rest of the run.
const (
	sliceUnit      = 100 * time.Microsecond // slice granted per 1024 weight
	minSlice       = 10 * time.Microsecond
	maxSlice       = 10 * time.Millisecond
	maxBan         = 50 * time.Millisecond
	referenceShare = 1024
)

var (
	errNoHierarchy = errors.New("hfairlock: Init called without a hierarchy")
	errDestroyed   = errors.New("hfairlock: lock already destroyed")
)

// Lock is the shared fair lock. Init once, ThreadInit once per thread, then
// the handles carry all per-thread state.
type Lock struct {
	mu   sync.Mutex
	cond *sync.Cond

	hier        *Tree
	holder      *Handle
	queue       []*Handle
	totalWeight int64
	destroyed   bool
}

// Tree aliases the harness scheduling tree so callers outside the harness
// can construct locks too.
type Tree = hscl.Hierarchy

// New returns an uninitialized lock. Init must run before any ThreadInit.
func New() *Lock {
	l := &Lock{}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// Init binds the lock to its scheduling tree.
func (l *Lock) Init(h *Tree) error {
	if h == nil {
		return errNoHierarchy
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.destroyed {
		return errDestroyed
	}
	l.hier = h
	return nil
}

// ThreadInit registers one thread with its weight and tree leaf and returns
// its handle. Safe to call concurrently.
func (l *Lock) ThreadInit(weight, leafID int) (hscl.FairHandle, error) {
	if weight < 1 {
		return nil, fmt.Errorf("hfairlock: weight %d below 1", weight)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.destroyed {
		return nil, errDestroyed
	}
	if l.hier == nil {
		return nil, errNoHierarchy
	}
	if leafID < 0 || leafID >= len(l.hier.Nodes) {
		return nil, fmt.Errorf("hfairlock: leaf %d outside tree of %d nodes", leafID, len(l.hier.Nodes))
	}
	l.totalWeight += int64(weight)
	return &Handle{l: l, weight: int64(weight), leafID: leafID}, nil
}

// Destroy wakes every waiter. Handles must not be used afterwards.
func (l *Lock) Destroy() {
	l.mu.Lock()
	l.destroyed = true
	l.queue = nil
	l.holder = nil
	l.mu.Unlock()
	l.cond.Broadcast()
}

// Handle is one thread's face of the lock. Not safe for concurrent use by
// multiple goroutines; each registered thread owns exactly one.
type Handle struct {
	l      *Lock
	weight int64
	leafID int

	banUntil  time.Time
	grantedAt time.Time
	sliceEnd  time.Time
}

// slice is the hold budget granted with ownership, linear in weight.
func (h *Handle) slice() time.Duration {
	s := time.Duration(int64(sliceUnit) * h.weight / referenceShare)
	if s < minSlice {
		return minSlice
	}
	if s > maxSlice {
		return maxSlice
	}
	return s
}

// Acquire blocks until the thread owns the lock. A banned thread sleeps out
// its ban before joining the queue, so the ban costs it queue position as
// well as time.
func (h *Handle) Acquire() {
	if ban := time.Until(h.banUntil); ban > 0 {
		time.Sleep(ban)
	}

	l := h.l
	l.mu.Lock()
	l.queue = append(l.queue, h)
	for !l.destroyed && (l.holder != nil || l.queue[0] != h) {
		l.cond.Wait()
	}
	if l.destroyed {
		l.mu.Unlock()
		return
	}
	l.queue = l.queue[1:]
	l.holder = h
	h.grantedAt = time.Now()
	h.sliceEnd = h.grantedAt.Add(h.slice())
	l.mu.Unlock()
}

// Release gives ownership up, computes the re-entry ban from the hold time,
// and returns the slice deadline the hold was scheduled against.
func (h *Handle) Release() time.Time {
	l := h.l
	l.mu.Lock()
	if l.holder != h {
		l.mu.Unlock()
		return time.Time{}
	}

	now := time.Now()
	held := now.Sub(h.grantedAt)
	if rest := l.totalWeight - h.weight; rest > 0 {
		ban := time.Duration(int64(held) * rest / h.weight)
		if ban > maxBan {
			ban = maxBan
		}
		h.banUntil = now.Add(ban)
	}
	deadline := h.sliceEnd

	h.recordLocked()
	l.holder = nil
	l.mu.Unlock()
	l.cond.Broadcast()
	return deadline
}

// recordLocked folds the finished hold into the tree bookkeeping, walking
// from the leaf to the root. Caller holds l.mu.
func (h *Handle) recordLocked() {
	nodes := h.l.hier.Nodes
	for id := h.leafID; ; id = nodes[id].Parent {
		nodes[id].CriticalSections++
		if h.banUntil.After(nodes[id].BannedUntil) {
			nodes[id].BannedUntil = h.banUntil
		}
		nodes[id].SliceEnd = h.sliceEnd
		if id == 0 {
			return
		}
	}
}

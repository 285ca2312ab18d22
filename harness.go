package hscl

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"time"
)

// Sentinel errors. Configuration problems are detected before any thread is
// launched; lock and store initialization failures abort startup with no
// partial run.
var (
	ErrBadConfig = errors.New("invalid configuration")
	ErrLockInit  = errors.New("lock initialization failed")
)

// Config controls a benchmark run.
type Config struct {
	Threads   int           // worker population, [1, MaxThreads]
	Duration  time.Duration // wall-clock run length
	StoreFile string        // backing file for the bundled store

	Mix      OperationMix
	LockType LockType
	Topology Topology

	// CGroups enables cgroup mode when non-nil: the scheduling tree is
	// built from the profile set instead of the topology, and workers are
	// throttled per their cgroup quota.
	CGroups []CGroupProfile

	Thresholds AssessmentThresholds

	// CyclesPerMicrosecond calibrates cycle-domain fair-lock collaborators.
	CyclesPerMicrosecond int

	// Seed fixes the workload random streams; 0 derives one from the clock.
	Seed int64

	// PinCPUs is the affinity set applied to every worker so that threads
	// compete on the same cores. Nil leaves affinity alone.
	PinCPUs []int

	// Injection points. Nil selects the production implementation.
	Clock    Clock
	WorkCost WorkCostModel
	FairLock FairLock // required when LockType is LockHierarchicalFair
	Store    Store    // overrides StoreFile when set
	Logger   *slog.Logger
}

// DefaultConfig returns the canonical configuration: 4 threads, 10 seconds,
// the 30/60/10 insert/find/update mix, a plain mutex over the flat
// topology, contention forced onto CPUs 0 and 1.
func DefaultConfig() Config {
	mix, _ := NewOperationMix(0.3, 0.6)
	return Config{
		Threads:              4,
		Duration:             10 * time.Second,
		Mix:                  mix,
		LockType:             LockMutex,
		Topology:             TopologyFlat,
		Thresholds:           DefaultAssessmentThresholds(),
		CyclesPerMicrosecond: DefaultCyclesPerMicrosecond,
		PinCPUs:              []int{0, 1},
	}
}

// Validate rejects a bad configuration before any resource is created or
// thread launched.
func (c *Config) Validate() error {
	if c.Threads < 1 || c.Threads > MaxThreads {
		return fmt.Errorf("number of threads must be between 1 and %d, got %d: %w", MaxThreads, c.Threads, ErrBadConfig)
	}
	if c.Duration <= 0 {
		return fmt.Errorf("duration must be positive, got %v: %w", c.Duration, ErrBadConfig)
	}
	if err := c.Mix.Validate(); err != nil {
		return err
	}
	if c.Store == nil && c.StoreFile == "" {
		return fmt.Errorf("store file required: %w", ErrBadConfig)
	}
	if c.LockType == LockHierarchicalFair && c.FairLock == nil {
		return fmt.Errorf("hierarchical fair lock selected without a collaborator: %w", ErrBadConfig)
	}
	if c.CGroups != nil {
		if err := ValidateCGroupProfiles(c.CGroups); err != nil {
			return err
		}
	}
	return nil
}

// RunResult is everything a run produced: the tree, the joined per-thread
// counters, and the fairness reduction. WriteReport renders it to the
// stdout contract.
type RunResult struct {
	LockType  LockType
	Topology  Topology
	Duration  time.Duration
	Elapsed   time.Duration
	Hierarchy *Hierarchy
	Threads   []ThreadResult
	Analysis  Analysis

	CGroupMode bool
	CGroups    []CGroupProfile
	CGroupAgg  []ClassAggregate
}

// Run executes one benchmark: build the tree, initialize the lock and the
// store, launch the workers, sleep out the duration, flip the stop flag,
// join, and reduce. The stop flag is polled by the workers; in-flight lock
// holds and store operations always complete.
func Run(cfg Config) (*RunResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	clock := cfg.Clock
	if clock == nil {
		clock = SystemClock
	}
	workCost := cfg.WorkCost
	if workCost == nil {
		workCost = DefaultWorkCost
	}
	if cfg.Thresholds == (AssessmentThresholds{}) {
		cfg.Thresholds = DefaultAssessmentThresholds()
	}

	var (
		hier *Hierarchy
		err  error
	)
	if cfg.CGroups != nil {
		hier, err = BuildCGroupHierarchy(cfg.Threads, cfg.CGroups, clock)
	} else {
		hier, err = BuildHierarchy(cfg.Threads, cfg.Topology, clock)
	}
	if err != nil {
		return nil, err
	}

	store := cfg.Store
	if store == nil {
		fs, err := OpenFileStore(cfg.StoreFile)
		if err != nil {
			return nil, err
		}
		store = fs
	}

	fair := cfg.FairLock
	lock, err := NewLockStrategy(LockOptions{
		Type:      cfg.LockType,
		Hierarchy: hier,
		FairLock:  fair,
		Clock:     clock,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = clock.Now().UnixNano()
	}

	rc := &runContext{
		clock:   clock,
		logger:  logger,
		store:   store,
		lock:    lock,
		tracker: NewHolderTracker(),
	}

	workers := make([]*worker, cfg.Threads)
	for i := 0; i < cfg.Threads; i++ {
		w := &worker{
			id:       i,
			class:    ClassOf(i),
			mix:      cfg.Mix,
			rng:      rand.New(rand.NewSource(seed + int64(i)*0x9E3779B9)),
			workCost: workCost,
			pinCPUs:  cfg.PinCPUs,
			counters: NewCounters(),
		}
		if cfg.CGroups != nil {
			cg := cfg.CGroups[AssignCGroup(i, len(cfg.CGroups))]
			w.cgroup = &cg
			w.throttle = throttleState{quota: cg.ThrottleQuota}
			w.binding = Binding{
				LeafID:   cgroupLeafFor(i, len(cfg.CGroups)),
				Weight:   cgroupBindWeight(i, len(cfg.CGroups)),
				Priority: cg.Nice,
			}
		} else {
			w.binding = hier.Bind(i)
		}
		workers[i] = w
		logger.Info("worker configured",
			"thread", i, "class", w.class.String(),
			"leaf", w.binding.LeafID, "weight", w.fairWeight(),
			"priority", w.binding.Priority)
	}

	start := clock.Now()
	var wg sync.WaitGroup
	for _, w := range workers {
		wg.Add(1)
		go w.run(rc, &wg)
	}

	time.Sleep(cfg.Duration)
	rc.stop.Store(true)
	logger.Info("stopping workers")
	wg.Wait()
	elapsed := clock.Now().Sub(start)

	lock.Destroy()
	if err := store.Close(); err != nil {
		logger.Warn("store close failed", "err", err)
	}

	results := make([]ThreadResult, cfg.Threads)
	for i, w := range workers {
		results[i] = ThreadResult{
			ID:       w.id,
			Class:    w.class,
			Binding:  w.binding,
			Counters: w.counters,
		}
		if w.cgroup != nil {
			results[i].CGroupID = w.cgroup.ID
			results[i].CGroup = w.cgroup.Name
		}
	}

	res := &RunResult{
		LockType:  cfg.LockType,
		Topology:  cfg.Topology,
		Duration:  cfg.Duration,
		Elapsed:   elapsed,
		Hierarchy: hier,
		Threads:   results,
		Analysis:  Analyze(results, cfg.Duration, rc.tracker.Switches(), cfg.Thresholds),
	}
	if cfg.CGroups != nil {
		res.CGroupMode = true
		res.CGroups = cfg.CGroups
		res.CGroupAgg = AggregateCGroups(results, len(cfg.CGroups))
	}
	return res, nil
}

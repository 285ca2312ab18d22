package hscl

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// MaxCGroups bounds a profile set.
const MaxCGroups = 8

// CGroupProfile is a named class of threads with control-group-style
// scheduling knobs. It is modeled after Linux cgroup semantics but lives
// purely in harness configuration: the throttle quota and nice value are
// applied by the workers themselves, not by the kernel.
type CGroupProfile struct {
	ID            int    `yaml:"id"`
	Name          string `yaml:"name"`
	Weight        int    `yaml:"weight"`
	CPUShares     int    `yaml:"cpu_shares"`
	MemoryLimitMB int    `yaml:"memory_limit_mb"`
	IOWeight      int    `yaml:"io_weight"`
	RTPriority    int    `yaml:"rt_priority"`
	Nice          int    `yaml:"nice"`
	ThrottleQuota int    `yaml:"throttle_quota"` // percent of time withheld, 0 = none
	MaxThreads    int    `yaml:"max_threads"`
}

// DefaultCGroupProfiles mirrors the six-profile layout of the original
// cgroup experiment: root, system, realtime, interactive, user, batch.
// Only batch is throttled.
func DefaultCGroupProfiles() []CGroupProfile {
	return []CGroupProfile{
		{ID: 0, Name: "root", Weight: 1024, CPUShares: 1024, IOWeight: 1000, MaxThreads: MaxThreads},
		{ID: 1, Name: "system", Weight: 2048, CPUShares: 2048, MemoryLimitMB: 512, IOWeight: 1000, RTPriority: 10, Nice: -10, MaxThreads: 4},
		{ID: 2, Name: "realtime", Weight: 4096, CPUShares: 4096, MemoryLimitMB: 256, IOWeight: 1000, RTPriority: 20, Nice: -20, MaxThreads: 2},
		{ID: 3, Name: "interactive", Weight: 1536, CPUShares: 1536, MemoryLimitMB: 1024, IOWeight: 800, Nice: -5, MaxThreads: 6},
		{ID: 4, Name: "user", Weight: 1024, CPUShares: 1024, MemoryLimitMB: 2048, IOWeight: 500, MaxThreads: 8},
		{ID: 5, Name: "batch", Weight: 512, CPUShares: 512, MemoryLimitMB: 4096, IOWeight: 200, Nice: 10, ThrottleQuota: 50, MaxThreads: 4},
	}
}

// LoadCGroupProfiles reads a profile set from a YAML file. Profile 0 must
// be the root.
func LoadCGroupProfiles(path string) ([]CGroupProfile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cgroup profiles: %w", err)
	}
	var doc struct {
		CGroups []CGroupProfile `yaml:"cgroups"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse cgroup profiles: %w", err)
	}
	return doc.CGroups, ValidateCGroupProfiles(doc.CGroups)
}

// ValidateCGroupProfiles checks a profile set before any thread launches.
func ValidateCGroupProfiles(profiles []CGroupProfile) error {
	if len(profiles) < 2 {
		return fmt.Errorf("need at least root plus one cgroup, got %d: %w", len(profiles), ErrBadConfig)
	}
	if len(profiles) > MaxCGroups {
		return fmt.Errorf("at most %d cgroups, got %d: %w", MaxCGroups, len(profiles), ErrBadConfig)
	}
	for i, p := range profiles {
		if p.ID != i {
			return fmt.Errorf("cgroup %q has id %d at position %d: %w", p.Name, p.ID, i, ErrBadConfig)
		}
		if p.Weight <= 0 {
			return fmt.Errorf("cgroup %q has non-positive weight %d: %w", p.Name, p.Weight, ErrBadConfig)
		}
		if p.ThrottleQuota < 0 || p.ThrottleQuota > 100 {
			return fmt.Errorf("cgroup %q throttle quota %d outside [0,100]: %w", p.Name, p.ThrottleQuota, ErrBadConfig)
		}
	}
	return nil
}

// defaultCGroupCount is the size of the default profile layout; the fixed
// distribution policy below only makes sense against that layout.
const defaultCGroupCount = 6

// AssignCGroup maps a thread index to its cgroup. A six-profile set gets the
// fixed distribution policy of the default layout: 2 realtime, 2 system,
// 4 interactive, 4 user, the rest batch. Any other validated set assigns
// threads round-robin across the non-root profiles, since the fixed buckets
// name ids that need not exist there.
func AssignCGroup(threadIndex, cgroupCount int) int {
	if cgroupCount != defaultCGroupCount {
		return threadIndex%(cgroupCount-1) + 1
	}
	switch {
	case threadIndex < 2:
		return 2 // realtime
	case threadIndex < 4:
		return 1 // system
	case threadIndex < 8:
		return 3 // interactive
	case threadIndex < 12:
		return 4 // user
	default:
		return 5 // batch
	}
}

// cgroupBindWeight is the per-thread base weight by assignment bucket.
// Custom profile sets keep the 1024 base; their share differences come from
// the profile weights alone.
func cgroupBindWeight(threadIndex, cgroupCount int) int {
	if cgroupCount != defaultCGroupCount {
		return 1024
	}
	switch {
	case threadIndex < 2:
		return 2048
	case threadIndex < 4:
		return 1536
	case threadIndex < 8:
		return 1280
	case threadIndex < 12:
		return 1024
	default:
		return 512
	}
}

// BuildCGroupHierarchy lays out root + cgroup nodes + thread leaves. The
// cgroup nodes carry their profile weights; thread leaves start at the 1024
// base and are scaled per-thread at bind time.
func BuildCGroupHierarchy(threadCount int, profiles []CGroupProfile, clock Clock) (*Hierarchy, error) {
	if threadCount < 1 || threadCount > MaxThreads {
		return nil, fmt.Errorf("thread count %d outside [1, %d]: %w", threadCount, MaxThreads, ErrBadConfig)
	}
	if err := ValidateCGroupProfiles(profiles); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = SystemClock
	}
	now := clock.Now()

	cgroupNodes := len(profiles) - 1 // root is node 0, not a separate cgroup node
	total := 1 + cgroupNodes + threadCount
	h := &Hierarchy{Topology: TopologyGrouped, Threads: threadCount, Groups: cgroupNodes}
	h.Nodes = make([]Node, total)
	h.Nodes[0] = Node{ID: 0, Parent: 0, Weight: profiles[0].Weight, BannedUntil: now}
	for i := 1; i < len(profiles); i++ {
		h.Nodes[i] = Node{ID: i, Parent: 0, Weight: profiles[i].Weight, BannedUntil: now}
	}
	for i := 0; i < threadCount; i++ {
		id := cgroupNodes + 1 + i
		h.Nodes[id] = Node{ID: id, Parent: AssignCGroup(i, len(profiles)), Weight: 1024, BannedUntil: now}
	}
	if err := h.Validate(); err != nil {
		return nil, err
	}
	return h, nil
}

// cgroupLeafFor returns the tree leaf of a thread in a cgroup hierarchy.
func cgroupLeafFor(threadIndex, cgroupCount int) int {
	return (cgroupCount - 1) + 1 + threadIndex
}

// throttleState implements the cgroup throttle quota: after every
// (100 - quota) operations the worker sleeps proportionally to the quota.
type throttleState struct {
	quota  int
	opsRun int
}

// maybeThrottle applies the quota and returns the time spent throttled.
func (t *throttleState) maybeThrottle(clock Clock) time.Duration {
	if t.quota <= 0 {
		return 0
	}
	t.opsRun++
	if t.opsRun <= 100-t.quota {
		return 0
	}
	start := clock.Now()
	time.Sleep(time.Duration(t.quota) * time.Millisecond / 100)
	t.opsRun = 0
	return clock.Now().Sub(start)
}

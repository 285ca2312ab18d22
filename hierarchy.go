package hscl

import (
	"fmt"
	"io"
	"time"
)

// MaxThreads bounds the worker population. The harness binds each worker to
// an OS thread, so the limit keeps a run within one machine's core budget.
const MaxThreads = 16

// GroupCount is the fixed number of intermediate group nodes in the Grouped
// topology.
const GroupCount = 4

// Topology selects the deterministic construction rule for the scheduling
// tree handed to the fair lock.
type Topology int

const (
	// TopologyFlat puts every thread node directly under the root.
	TopologyFlat Topology = iota
	// TopologyBalanced builds a binary tree: parent(i) = (i-1)/2.
	TopologyBalanced
	// TopologySkewed chains the first half of the thread nodes and attaches
	// the rest directly to the root.
	TopologySkewed
	// TopologyDeep builds a single linear chain: parent(i) = i-1.
	TopologyDeep
	// TopologyGrouped attaches GroupCount group nodes to the root and
	// assigns threads to groups round-robin.
	TopologyGrouped
)

var topologyNames = [...]string{"FLAT", "BALANCED", "SKEWED", "DEEP", "GROUPED"}

func (t Topology) String() string {
	if t < 0 || int(t) >= len(topologyNames) {
		return fmt.Sprintf("TOPOLOGY(%d)", int(t))
	}
	return topologyNames[t]
}

// TopologyFromSelector maps a numeric command-line selector to a topology.
// Unknown selectors report ok=false; callers fall back to TopologyFlat.
func TopologyFromSelector(n int) (Topology, bool) {
	if n < 0 || n >= len(topologyNames) {
		return TopologyFlat, false
	}
	return Topology(n), true
}

// Node is one vertex of the scheduling tree. ID 0 is the root and is its own
// parent. CriticalSections, BannedUntil and SliceEnd are bookkeeping slots
// for the fair-lock collaborator; the harness itself never interprets them.
type Node struct {
	ID               int
	Parent           int
	Weight           int
	CriticalSections uint64
	BannedUntil      time.Time
	SliceEnd         time.Time
}

// Hierarchy is the immutable scheduling tree built once per run. Leaves are
// bound 1:1 to threads; topology never changes after construction, only
// bind-time weights are derived later. Groups is the number of intermediate
// nodes between the root and the leaves: GroupCount for the Grouped
// topology, one per cgroup in cgroup mode, zero otherwise.
type Hierarchy struct {
	Topology Topology
	Threads  int
	Groups   int
	Nodes    []Node
}

// Binding holds the bind-time attributes of one thread, reproducible from
// (topology, threadIndex) alone.
type Binding struct {
	LeafID   int
	Weight   int
	Priority int // nice-style value, lower = more favored
}

// BuildHierarchy constructs the scheduling tree for threadCount workers
// under the given topology. threadCount outside [1, MaxThreads] is rejected
// before any node is allocated.
func BuildHierarchy(threadCount int, topo Topology, clock Clock) (*Hierarchy, error) {
	if threadCount < 1 || threadCount > MaxThreads {
		return nil, fmt.Errorf("thread count %d outside [1, %d]: %w", threadCount, MaxThreads, ErrBadConfig)
	}
	if clock == nil {
		clock = SystemClock
	}
	now := clock.Now()

	nodeCount := threadCount + 1
	if topo == TopologyGrouped {
		nodeCount = threadCount + GroupCount + 1
	}

	h := &Hierarchy{Topology: topo, Threads: threadCount}
	if topo == TopologyGrouped {
		h.Groups = GroupCount
	}
	h.Nodes = make([]Node, nodeCount)
	h.Nodes[0] = Node{ID: 0, Parent: 0, BannedUntil: now}

	switch topo {
	case TopologyFlat:
		for i := 1; i < nodeCount; i++ {
			h.Nodes[i] = Node{ID: i, Parent: 0, BannedUntil: now}
		}
	case TopologyBalanced:
		for i := 1; i < nodeCount; i++ {
			h.Nodes[i] = Node{ID: i, Parent: (i - 1) / 2, BannedUntil: now}
		}
	case TopologySkewed:
		mid := threadCount / 2
		for i := 1; i < nodeCount; i++ {
			parent := 0
			if i <= mid {
				parent = i - 1
			}
			h.Nodes[i] = Node{ID: i, Parent: parent, BannedUntil: now}
		}
	case TopologyDeep:
		for i := 1; i < nodeCount; i++ {
			h.Nodes[i] = Node{ID: i, Parent: i - 1, BannedUntil: now}
		}
	case TopologyGrouped:
		for g := 1; g <= GroupCount; g++ {
			h.Nodes[g] = Node{ID: g, Parent: 0, BannedUntil: now}
		}
		for i := 0; i < threadCount; i++ {
			id := GroupCount + 1 + i
			h.Nodes[id] = Node{ID: id, Parent: (i % GroupCount) + 1, Weight: 1024, BannedUntil: now}
		}
	default:
		return nil, fmt.Errorf("unknown topology %d: %w", int(topo), ErrBadConfig)
	}

	if err := h.Validate(); err != nil {
		return nil, err
	}
	return h, nil
}

// Validate checks the rooted-tree invariants: node 0 is its own parent and
// every other node references a previously defined node, which also rules
// out cycles.
func (h *Hierarchy) Validate() error {
	if len(h.Nodes) == 0 {
		return fmt.Errorf("empty hierarchy: %w", ErrBadConfig)
	}
	if h.Nodes[0].Parent != 0 {
		return fmt.Errorf("root parent is %d, want 0: %w", h.Nodes[0].Parent, ErrBadConfig)
	}
	for i := 1; i < len(h.Nodes); i++ {
		p := h.Nodes[i].Parent
		if p < 0 || p >= i {
			return fmt.Errorf("node %d references parent %d before it is defined: %w", i, p, ErrBadConfig)
		}
	}
	return nil
}

// LeafFor returns the node id the given thread is bound to.
func (h *Hierarchy) LeafFor(threadIndex int) int {
	return h.Groups + 1 + threadIndex
}

// Depth returns the number of edges from nodeID to the root.
func (h *Hierarchy) Depth(nodeID int) int {
	d := 0
	for nodeID != 0 {
		nodeID = h.Nodes[nodeID].Parent
		d++
	}
	return d
}

// Bind derives the bind-time weight and priority of a thread. The rules are
// topology-specific and depend only on (topology, threadIndex), so repeated
// runs of the same configuration bind identically. Skewed weights decrease
// exponentially with chain depth.
func (h *Hierarchy) Bind(threadIndex int) Binding {
	b := Binding{LeafID: h.LeafFor(threadIndex)}
	i := threadIndex
	switch h.Topology {
	case TopologyFlat:
		b.Priority = -10 + (i % 20)
		b.Weight = 1024 >> (i % 4)
	case TopologyBalanced:
		b.Priority = -5 + (i % 10)
		b.Weight = 512 + (i%3)*256
	case TopologySkewed:
		if i < h.Threads/2 {
			b.Priority = -10 + i
			b.Weight = 2048 >> uint(i)
		} else {
			b.Priority = 0
			b.Weight = 1024
		}
	case TopologyDeep:
		b.Priority = -15 + i
		b.Weight = 1024 + i*128
	case TopologyGrouped:
		group := i % GroupCount
		b.Priority = -10 + group*5
		b.Weight = 1024 >> uint(group)
	}
	if b.Weight < 1 {
		b.Weight = 1
	}
	return b
}

// WriteStructure prints the node table. The section is informational; the
// fairness report proper is emitted by WriteReport.
func (h *Hierarchy) WriteStructure(w io.Writer) {
	fmt.Fprintf(w, "\n=== HIERARCHY STRUCTURE ===\n")
	fmt.Fprintf(w, "Type: %s\n", h.Topology)
	fmt.Fprintf(w, "Node | Parent | Weight | Description\n")
	fmt.Fprintf(w, "-----|--------|--------|------------\n")
	for _, n := range h.Nodes {
		desc := "Thread node"
		switch {
		case n.ID == 0:
			desc = "Root node"
		case n.ID <= h.Groups:
			desc = fmt.Sprintf("Group %d", n.ID)
		}
		fmt.Fprintf(w, "%4d | %6d | %6d | %s\n", n.ID, n.Parent, n.Weight, desc)
	}
	fmt.Fprintln(w)
}

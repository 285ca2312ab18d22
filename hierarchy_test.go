package hscl

import "testing"

func TestBuildHierarchyBounds(t *testing.T) {
	for _, n := range []int{0, -1, MaxThreads + 1} {
		if _, err := BuildHierarchy(n, TopologyFlat, nil); err == nil {
			t.Errorf("BuildHierarchy(%d) accepted out-of-range thread count", n)
		}
	}
	if _, err := BuildHierarchy(1, TopologyFlat, nil); err != nil {
		t.Errorf("BuildHierarchy(1) failed: %v", err)
	}
	if _, err := BuildHierarchy(MaxThreads, TopologyFlat, nil); err != nil {
		t.Errorf("BuildHierarchy(%d) failed: %v", MaxThreads, err)
	}
}

func TestFlatTopology(t *testing.T) {
	h, err := BuildHierarchy(8, TopologyFlat, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(h.Nodes) != 9 {
		t.Fatalf("flat tree has %d nodes, want 9", len(h.Nodes))
	}
	for i := 1; i < len(h.Nodes); i++ {
		if h.Nodes[i].Parent != 0 {
			t.Errorf("flat node %d has parent %d, want 0", i, h.Nodes[i].Parent)
		}
	}
}

func TestBalancedTopology(t *testing.T) {
	h, err := BuildHierarchy(7, TopologyBalanced, nil)
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i < len(h.Nodes); i++ {
		want := (i - 1) / 2
		if h.Nodes[i].Parent != want {
			t.Errorf("balanced node %d has parent %d, want %d", i, h.Nodes[i].Parent, want)
		}
	}
	// depth of node 7 in a binary heap layout: 7 -> 3 -> 1 -> 0
	if d := h.Depth(7); d != 3 {
		t.Errorf("Depth(7) = %d, want 3", d)
	}
}

func TestSkewedTopology(t *testing.T) {
	h, err := BuildHierarchy(8, TopologySkewed, nil)
	if err != nil {
		t.Fatal(err)
	}
	// first half chains, rest hangs off the root
	for i := 1; i <= 4; i++ {
		if h.Nodes[i].Parent != i-1 {
			t.Errorf("skewed chain node %d has parent %d, want %d", i, h.Nodes[i].Parent, i-1)
		}
	}
	for i := 5; i <= 8; i++ {
		if h.Nodes[i].Parent != 0 {
			t.Errorf("skewed flat node %d has parent %d, want 0", i, h.Nodes[i].Parent)
		}
	}
}

func TestDeepTopology(t *testing.T) {
	h, err := BuildHierarchy(6, TopologyDeep, nil)
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i < len(h.Nodes); i++ {
		if h.Nodes[i].Parent != i-1 {
			t.Errorf("deep node %d has parent %d, want %d", i, h.Nodes[i].Parent, i-1)
		}
	}
	if d := h.Depth(6); d != 6 {
		t.Errorf("Depth(6) = %d, want 6", d)
	}
}

func TestGroupedTopology(t *testing.T) {
	h, err := BuildHierarchy(8, TopologyGrouped, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(h.Nodes) != 1+GroupCount+8 {
		t.Fatalf("grouped tree has %d nodes, want %d", len(h.Nodes), 1+GroupCount+8)
	}
	for g := 1; g <= GroupCount; g++ {
		if h.Nodes[g].Parent != 0 {
			t.Errorf("group node %d has parent %d, want 0", g, h.Nodes[g].Parent)
		}
	}
	for i := 0; i < 8; i++ {
		id := GroupCount + 1 + i
		want := (i % GroupCount) + 1
		if h.Nodes[id].Parent != want {
			t.Errorf("thread %d leaf has parent %d, want group %d", i, h.Nodes[id].Parent, want)
		}
		if h.LeafFor(i) != id {
			t.Errorf("LeafFor(%d) = %d, want %d", i, h.LeafFor(i), id)
		}
	}
}

func TestBindReproducible(t *testing.T) {
	for topo := TopologyFlat; topo <= TopologyGrouped; topo++ {
		a, err := BuildHierarchy(8, topo, nil)
		if err != nil {
			t.Fatalf("%v: %v", topo, err)
		}
		b, err := BuildHierarchy(8, topo, nil)
		if err != nil {
			t.Fatalf("%v: %v", topo, err)
		}
		for i := 0; i < 8; i++ {
			if a.Bind(i) != b.Bind(i) {
				t.Errorf("%v: Bind(%d) differs between identical builds", topo, i)
			}
		}
	}
}

func TestBindWeightsPositive(t *testing.T) {
	// The skewed right-shift can zero out a weight without the clamp.
	h, err := BuildHierarchy(MaxThreads, TopologySkewed, nil)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < MaxThreads; i++ {
		if b := h.Bind(i); b.Weight < 1 {
			t.Errorf("skewed Bind(%d).Weight = %d, want >= 1", i, b.Weight)
		}
	}
}

func TestBindGrouped(t *testing.T) {
	h, err := BuildHierarchy(8, TopologyGrouped, nil)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 8; i++ {
		b := h.Bind(i)
		group := i % GroupCount
		if want := -10 + group*5; b.Priority != want {
			t.Errorf("grouped Bind(%d).Priority = %d, want %d", i, b.Priority, want)
		}
		if want := 1024 >> uint(group); b.Weight != want {
			t.Errorf("grouped Bind(%d).Weight = %d, want %d", i, b.Weight, want)
		}
	}
}

func TestValidateRejectsForwardParent(t *testing.T) {
	h := &Hierarchy{
		Threads: 2,
		Nodes: []Node{
			{ID: 0, Parent: 0},
			{ID: 1, Parent: 2}, // references a node defined later
			{ID: 2, Parent: 0},
		},
	}
	if err := h.Validate(); err == nil {
		t.Error("Validate accepted a forward parent reference")
	}
}

func TestTopologySelectors(t *testing.T) {
	if _, ok := TopologyFromSelector(5); ok {
		t.Error("selector 5 accepted, want fallback")
	}
	if topo, ok := TopologyFromSelector(4); !ok || topo != TopologyGrouped {
		t.Errorf("selector 4 = (%v, %v), want (GROUPED, true)", topo, ok)
	}
	if TopologyGrouped.String() != "GROUPED" {
		t.Errorf("TopologyGrouped.String() = %q", TopologyGrouped.String())
	}
}

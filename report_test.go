package hscl

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func sampleResult(t *testing.T) *RunResult {
	t.Helper()
	hier, err := BuildHierarchy(3, TopologyFlat, nil)
	if err != nil {
		t.Fatal(err)
	}
	results := fakeResults(80, 100, 120)
	for _, r := range results {
		r.Counters.LockAcquisitions = r.Counters.TotalOperations
		r.Counters.LockWaitTime = time.Duration(r.Counters.TotalOperations) * time.Microsecond
	}
	return &RunResult{
		LockType:  LockMutex,
		Topology:  TopologyFlat,
		Duration:  10 * time.Second,
		Hierarchy: hier,
		Threads:   results,
		Analysis:  Analyze(results, 10*time.Second, 7, DefaultAssessmentThresholds()),
	}
}

func TestReportContractLabels(t *testing.T) {
	var buf bytes.Buffer
	WriteReport(&buf, sampleResult(t))
	out := buf.String()

	for _, label := range []string{
		"=== HIERARCHICAL LOCK FAIRNESS ANALYSIS ===",
		"=== COMPREHENSIVE FAIRNESS ANALYSIS ===",
		"Jain's Fairness Index:",
		"Coefficient of Variation:",
		"Gini Coefficient:",
		"Throughput Spread:",
		"Min ops:",
		"Max ops:",
		"Avg ops:",
		"Total hierarchy switches: 7",
		"Overall Fairness Assessment:",
		"Hierarchy Level Performance:",
	} {
		if !strings.Contains(out, label) {
			t.Errorf("report missing label %q", label)
		}
	}
}

func TestReportNumericFormats(t *testing.T) {
	var buf bytes.Buffer
	WriteReport(&buf, sampleResult(t))
	out := buf.String()

	// min 80, max 120, mean 100 -> spread exactly 40.0%
	if !strings.Contains(out, "Throughput Spread:         40.0% (max-min)/avg") {
		t.Errorf("spread line malformed:\n%s", out)
	}
	if !strings.Contains(out, "Min ops: 80, Max ops: 120, Avg ops: 100.0") {
		t.Errorf("operational metrics line malformed:\n%s", out)
	}
	// four decimals on the indices
	if !strings.Contains(out, "Gini Coefficient:          0.0889") {
		t.Errorf("gini line malformed:\n%s", out)
	}
	if !strings.Contains(out, "Lock Type: MUTEX") || !strings.Contains(out, "Topology: FLAT") {
		t.Errorf("header malformed:\n%s", out)
	}
	if !strings.Contains(out, "Duration: 10s") {
		t.Errorf("duration malformed:\n%s", out)
	}
}

func TestReportCGroupMode(t *testing.T) {
	res := sampleResult(t)
	res.CGroupMode = true
	res.CGroups = DefaultCGroupProfiles()
	for i := range res.Threads {
		cg := AssignCGroup(i, len(res.CGroups))
		res.Threads[i].CGroupID = cg
		res.Threads[i].CGroup = res.CGroups[cg].Name
	}
	res.CGroupAgg = AggregateCGroups(res.Threads, len(res.CGroups))

	var buf bytes.Buffer
	WriteReport(&buf, res)
	out := buf.String()

	for _, label := range []string{
		"=== CGROUPS FAIRNESS ANALYSIS ===",
		"=== CGROUP PERFORMANCE SUMMARY ===",
		"CGroup Fairness Analysis:",
		"Expected",
		"Actual",
		"Ratio",
	} {
		if !strings.Contains(out, label) {
			t.Errorf("cgroup report missing %q", label)
		}
	}
	// threads 0,1 land in realtime, thread 2 in system
	if !strings.Contains(out, "realtime") || !strings.Contains(out, "system") {
		t.Errorf("cgroup tables missing group rows:\n%s", out)
	}
	if strings.Contains(out, "Topology:") {
		t.Error("cgroup report printed a topology header")
	}
}

func TestHierarchyStructureOutput(t *testing.T) {
	h, err := BuildHierarchy(4, TopologyGrouped, nil)
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	h.WriteStructure(&buf)
	out := buf.String()

	if !strings.Contains(out, "=== HIERARCHY STRUCTURE ===") {
		t.Error("missing structure header")
	}
	if !strings.Contains(out, "Type: GROUPED") {
		t.Error("missing topology line")
	}
	if !strings.Contains(out, "Root node") || !strings.Contains(out, "Group 1") || !strings.Contains(out, "Thread node") {
		t.Errorf("node descriptions missing:\n%s", out)
	}
}

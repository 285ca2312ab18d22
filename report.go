package hscl

import (
	"fmt"
	"io"
	"time"
)

// WriteReport renders the run to the textual stdout contract. External
// tooling greps the labeled lines ("Jain's Fairness Index:" and friends) by
// exact text and reads the tables positionally by column, so both the label
// strings and the numeric formats here are load-bearing.
func WriteReport(w io.Writer, res *RunResult) {
	if res.CGroupMode {
		fmt.Fprintf(w, "\n=== CGROUPS FAIRNESS ANALYSIS ===\n")
	} else {
		fmt.Fprintf(w, "\n=== HIERARCHICAL LOCK FAIRNESS ANALYSIS ===\n")
	}
	fmt.Fprintf(w, "Lock Type: %s\n", res.LockType)
	if !res.CGroupMode {
		fmt.Fprintf(w, "Topology: %s\n", res.Topology)
	}
	fmt.Fprintf(w, "Duration: %ds\n", int(res.Duration/time.Second))

	if res.CGroupMode {
		writeCGroupThreadTable(w, res)
		writeCGroupSummary(w, res)
	} else {
		writeThreadTable(w, res)
		writeLevelTable(w, res)
	}
	writeComprehensive(w, res)
}

func writeThreadTable(w io.Writer, res *RunResult) {
	secs := res.Duration.Seconds()
	fmt.Fprintf(w, "\nThread | Class      | Ops/sec | Lock Wait(ms) | Avg Wait(us) | P99 Wait(us) | Max Consec | Dominated | Starved | Slice Viol | Starv Periods\n")
	fmt.Fprintf(w, "-------|------------|---------|---------------|--------------|--------------|------------|-----------|---------|------------|--------------\n")

	var totalOps uint64
	var totalWait time.Duration
	for _, t := range res.Threads {
		c := t.Counters
		fmt.Fprintf(w, "  %2d   | %-10s | %7.1f | %13.2f | %12.2f | %12.2f | %10d | %9d | %7d | %10d | %13d\n",
			t.ID, t.Class.String(),
			float64(c.TotalOperations)/secs,
			float64(c.LockWaitTime)/float64(time.Millisecond),
			float64(c.AvgWait())/float64(time.Microsecond),
			float64(c.WaitHist.ValueAtQuantile(99))/float64(time.Microsecond),
			c.MaxConsecutiveAcquisitions, c.DominatedLower, c.StarvedByHigher,
			c.SliceViolations, c.StarvationPeriods)
		totalOps += c.TotalOperations
		totalWait += c.LockWaitTime
	}
	fmt.Fprintf(w, "-------|------------|---------|---------------|--------------|--------------|------------|-----------|---------|------------|--------------\n")
	fmt.Fprintf(w, "Total: %8.1f ops/sec, %.2f ms total lock wait\n",
		float64(totalOps)/secs, float64(totalWait)/float64(time.Millisecond))
}

func writeLevelTable(w io.Writer, res *RunResult) {
	if len(res.Analysis.Levels) == 0 {
		return
	}
	fmt.Fprintf(w, "\nHierarchy Level Performance:\n")
	fmt.Fprintf(w, "Level      | Avg Ops/sec | Threads | Fairness Index | CoV    | Assessment\n")
	fmt.Fprintf(w, "-----------|-------------|---------|----------------|--------|------------------\n")
	for _, l := range res.Analysis.Levels {
		fmt.Fprintf(w, "%-10s | %11.1f | %7d | %14.4f | %6.3f | %s\n",
			l.Class.String(), l.AvgOpsSec, l.Threads, l.Jain, l.CoV, l.Assessment)
	}
}

func writeCGroupThreadTable(w io.Writer, res *RunResult) {
	secs := res.Duration.Seconds()
	fmt.Fprintf(w, "\nThread | CGroup      |  Ops/sec | Lock Wait(ms) | Avg Wait(us) | Throttle(ms) | Slice Viol | Priority\n")
	fmt.Fprintf(w, "-------|-------------|----------|---------------|--------------|--------------|------------|----------\n")

	var totalOps uint64
	var totalWait time.Duration
	for _, t := range res.Threads {
		c := t.Counters
		fmt.Fprintf(w, "  %2d   | %-11s | %8.1f | %13.2f | %12.2f | %12.2f | %10d | %6d\n",
			t.ID, t.CGroup,
			float64(c.TotalOperations)/secs,
			float64(c.LockWaitTime)/float64(time.Millisecond),
			float64(c.AvgWait())/float64(time.Microsecond),
			float64(c.ThrottleTime)/float64(time.Millisecond),
			c.SliceViolations, t.Binding.Priority)
		totalOps += c.TotalOperations
		totalWait += c.LockWaitTime
	}
	fmt.Fprintf(w, "-------|-------------|----------|---------------|--------------|--------------|------------|----------\n")
	fmt.Fprintf(w, "Total: %8.1f ops/sec, %.2f ms total lock wait\n",
		float64(totalOps)/secs, float64(totalWait)/float64(time.Millisecond))
}

func writeCGroupSummary(w io.Writer, res *RunResult) {
	fmt.Fprintf(w, "\n=== CGROUP PERFORMANCE SUMMARY ===\n")
	fmt.Fprintf(w, "CGroup      | Threads | Total Ops | Avg Ops/Thread | Ops/sec | Throttle(ms)\n")
	fmt.Fprintf(w, "------------|---------|-----------|----------------|---------|-------------\n")

	secs := res.Duration.Seconds()
	var totalOps uint64
	for _, agg := range res.CGroupAgg {
		totalOps += agg.TotalOps
	}
	for i := 1; i < len(res.CGroups); i++ { // skip root
		agg := res.CGroupAgg[i]
		if agg.Threads == 0 {
			continue
		}
		fmt.Fprintf(w, "%-11s | %7d | %9d | %14.1f | %7.1f | %11.2f\n",
			res.CGroups[i].Name, agg.Threads, agg.TotalOps,
			float64(agg.TotalOps)/float64(agg.Threads),
			float64(agg.TotalOps)/secs,
			float64(agg.ThrottleTime)/float64(time.Millisecond))
	}

	if totalOps == 0 {
		return
	}
	// Expected share is the cgroup's cpu_shares over the total shares of the
	// populated cgroups; the ratio tells whether throughput tracked shares.
	var totalShares int
	for i := 1; i < len(res.CGroups); i++ {
		if res.CGroupAgg[i].Threads > 0 {
			totalShares += res.CGroups[i].CPUShares
		}
	}
	if totalShares == 0 {
		return
	}
	fmt.Fprintf(w, "\nCGroup Fairness Analysis:\n")
	for i := 1; i < len(res.CGroups); i++ {
		agg := res.CGroupAgg[i]
		if agg.Threads == 0 {
			continue
		}
		expected := float64(res.CGroups[i].CPUShares) / float64(totalShares)
		actual := float64(agg.TotalOps) / float64(totalOps)
		fmt.Fprintf(w, "  %s: Expected %.1f%%, Actual %.1f%%, Ratio %.2f\n",
			res.CGroups[i].Name, expected*100, actual*100, actual/expected)
	}
}

func writeComprehensive(w io.Writer, res *RunResult) {
	a := res.Analysis

	fmt.Fprintf(w, "\n=== COMPREHENSIVE FAIRNESS ANALYSIS ===\n")
	fmt.Fprintf(w, "Overall Fairness Indices:\n")
	fmt.Fprintf(w, "  Jain's Fairness Index:     %.4f  (1.0 = perfect fair, 0.0 = completely unfair)\n", a.Global.Jain)
	fmt.Fprintf(w, "  Coefficient of Variation:  %.4f  (0.0 = equal, higher = more variable)\n", a.Global.CoV)
	fmt.Fprintf(w, "  Gini Coefficient:          %.4f  (0.0 = equal, 1.0 = maximum inequality)\n", a.Global.Gini)
	fmt.Fprintf(w, "  Throughput Spread:         %.1f%% (max-min)/avg\n", a.Global.Spread)

	fmt.Fprintf(w, "\nOperational Metrics:\n")
	fmt.Fprintf(w, "  Total hierarchy switches: %d\n", a.HierarchySwitches)
	fmt.Fprintf(w, "  Min ops: %.0f, Max ops: %.0f, Avg ops: %.1f\n", a.Global.Min, a.Global.Max, a.Global.Mean)

	fmt.Fprintf(w, "\nOverall Fairness Assessment: %s\n", a.Assessment)
	if a.DominanceJudgment != "" {
		fmt.Fprintf(w, "  Critical vs Background ratio: %.2f:1 (%s)\n",
			a.CriticalBackgroundRatio, a.DominanceJudgment)
	}
}

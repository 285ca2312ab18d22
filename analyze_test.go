package hscl

import (
	"math"
	"testing"
	"time"
)

func approx(got, want, tol float64) bool {
	return math.Abs(got-want) <= tol
}

func TestComputeFairnessEqualShares(t *testing.T) {
	m := ComputeFairness([]float64{100, 100, 100, 100})
	if !approx(m.Jain, 1.0, 1e-12) {
		t.Errorf("Jain = %v, want 1.0", m.Jain)
	}
	if !approx(m.CoV, 0, 1e-12) {
		t.Errorf("CoV = %v, want 0", m.CoV)
	}
	if !approx(m.Gini, 0, 1e-12) {
		t.Errorf("Gini = %v, want 0", m.Gini)
	}
	if !approx(m.Spread, 0, 1e-12) {
		t.Errorf("Spread = %v, want 0", m.Spread)
	}
}

func TestComputeFairnessSingleDominator(t *testing.T) {
	// One thread gets everything: Jain collapses to 1/n, Gini to (n-1)/n.
	m := ComputeFairness([]float64{0, 0, 0, 40})
	if !approx(m.Jain, 0.25, 1e-12) {
		t.Errorf("Jain = %v, want 0.25", m.Jain)
	}
	if !approx(m.Gini, 0.75, 1e-12) {
		t.Errorf("Gini = %v, want 0.75", m.Gini)
	}
}

func TestComputeFairnessAllZero(t *testing.T) {
	m := ComputeFairness([]float64{0, 0, 0})
	if m.Jain != 1.0 {
		t.Errorf("all-zero Jain = %v, want 1.0 (equal shares)", m.Jain)
	}
	if m.Gini != 0 || m.CoV != 0 {
		t.Errorf("all-zero Gini/CoV = %v/%v, want 0/0", m.Gini, m.CoV)
	}
}

func TestComputeFairnessSpread(t *testing.T) {
	// max 120, min 80, mean 100 -> spread 40%
	m := ComputeFairness([]float64{80, 100, 120})
	if !approx(m.Spread, 40.0, 1e-9) {
		t.Errorf("Spread = %v, want 40.0", m.Spread)
	}
}

func TestComputeFairnessSingleThread(t *testing.T) {
	m := ComputeFairness([]float64{1234})
	if m.Jain != 1.0 {
		t.Errorf("single-thread Jain = %v, want 1.0", m.Jain)
	}
}

func TestComputeFairnessEmpty(t *testing.T) {
	m := ComputeFairness(nil)
	if m.N != 0 || m.Jain != 0 {
		t.Errorf("empty vector: N=%d Jain=%v, want zero value", m.N, m.Jain)
	}
}

func TestAssessmentLadder(t *testing.T) {
	th := DefaultAssessmentThresholds()
	cases := []struct {
		jain float64
		want string
	}{
		{1.00, "EXCELLENT (Very Fair)"},
		{0.95, "EXCELLENT (Very Fair)"},
		{0.90, "GOOD (Mostly Fair)"},
		{0.80, "GOOD (Mostly Fair)"},
		{0.70, "MODERATE (Some Unfairness)"},
		{0.50, "POOR (Significant Unfairness)"},
		{0.20, "VERY POOR (Highly Unfair)"},
	}
	for _, c := range cases {
		if got := th.Assess(c.jain); got != c.want {
			t.Errorf("Assess(%.2f) = %q, want %q", c.jain, got, c.want)
		}
	}
}

func TestCustomThresholds(t *testing.T) {
	th := AssessmentThresholds{Excellent: 0.99, Good: 0.90, Moderate: 0.70, Poor: 0.50}
	if got := th.Assess(0.95); got != "GOOD (Mostly Fair)" {
		t.Errorf("custom Assess(0.95) = %q, want GOOD", got)
	}
}

func TestJudgeDominance(t *testing.T) {
	if got := JudgeDominance(3.0); got != "GOOD - hierarchy working" {
		t.Errorf("JudgeDominance(3.0) = %q", got)
	}
	if got := JudgeDominance(1.5); got != "FAIR - some hierarchy effect" {
		t.Errorf("JudgeDominance(1.5) = %q", got)
	}
	if got := JudgeDominance(0.8); got != "POOR - hierarchy not working" {
		t.Errorf("JudgeDominance(0.8) = %q", got)
	}
}

// fakeResults builds a joined result set where thread i performed ops[i]
// operations, classes assigned cyclically like the harness does.
func fakeResults(ops ...uint64) []ThreadResult {
	results := make([]ThreadResult, len(ops))
	for i, n := range ops {
		c := NewCounters()
		c.TotalOperations = n
		results[i] = ThreadResult{ID: i, Class: ClassOf(i), Counters: c}
	}
	return results
}

func TestAnalyzeLevels(t *testing.T) {
	// 10 threads: two per class.
	a := Analyze(fakeResults(100, 100, 100, 100, 100, 100, 100, 100, 100, 100),
		10*time.Second, 0, DefaultAssessmentThresholds())
	if len(a.Levels) != NumClasses {
		t.Fatalf("got %d levels, want %d", len(a.Levels), NumClasses)
	}
	for _, l := range a.Levels {
		if l.Threads != 2 {
			t.Errorf("level %v has %d threads, want 2", l.Class, l.Threads)
		}
		if !approx(l.AvgOpsSec, 10, 1e-9) {
			t.Errorf("level %v AvgOpsSec = %v, want 10", l.Class, l.AvgOpsSec)
		}
		if l.Jain != 1.0 {
			t.Errorf("level %v Jain = %v, want 1.0", l.Class, l.Jain)
		}
	}
	if a.Global.Jain != 1.0 {
		t.Errorf("global Jain = %v, want 1.0", a.Global.Jain)
	}
	if a.Assessment != "EXCELLENT (Very Fair)" {
		t.Errorf("assessment = %q", a.Assessment)
	}
}

func TestAnalyzeDominanceRatio(t *testing.T) {
	// Critical threads (0, 5) outrun background (4, 9) 3:1.
	a := Analyze(fakeResults(300, 200, 150, 120, 100, 300, 200, 150, 120, 100),
		10*time.Second, 42, DefaultAssessmentThresholds())
	if a.HierarchySwitches != 42 {
		t.Errorf("HierarchySwitches = %d, want 42", a.HierarchySwitches)
	}
	if !approx(a.CriticalBackgroundRatio, 3.0, 1e-9) {
		t.Errorf("ratio = %v, want 3.0", a.CriticalBackgroundRatio)
	}
	if a.DominanceJudgment != "GOOD - hierarchy working" {
		t.Errorf("judgment = %q", a.DominanceJudgment)
	}
}

func TestAnalyzeFewThreads(t *testing.T) {
	// Two threads cover only the first two classes; no background level, so
	// the dominance check still has a top and bottom to compare.
	a := Analyze(fakeResults(200, 100), 10*time.Second, 0, DefaultAssessmentThresholds())
	if len(a.Levels) != 2 {
		t.Fatalf("got %d levels, want 2", len(a.Levels))
	}
	if !approx(a.CriticalBackgroundRatio, 2.0, 1e-9) {
		t.Errorf("ratio = %v, want 2.0", a.CriticalBackgroundRatio)
	}
}

func TestAnalyzeStarvedBottomLevel(t *testing.T) {
	// The background threads (4, 9) never got the lock: there is no ratio
	// to report, so both the ratio and the judgment stay zero-valued and
	// the report omits the line entirely.
	a := Analyze(fakeResults(300, 200, 150, 120, 0, 300, 200, 150, 120, 0),
		10*time.Second, 0, DefaultAssessmentThresholds())
	if a.CriticalBackgroundRatio != 0 {
		t.Errorf("ratio = %v for a starved bottom level, want 0", a.CriticalBackgroundRatio)
	}
	if a.DominanceJudgment != "" {
		t.Errorf("judgment = %q, want empty", a.DominanceJudgment)
	}
}

func TestAggregateCGroups(t *testing.T) {
	results := fakeResults(100, 200, 300, 400)
	results[0].CGroupID = 2
	results[1].CGroupID = 2
	results[2].CGroupID = 1
	results[3].CGroupID = 5
	results[3].Counters.ThrottleTime = time.Second

	agg := AggregateCGroups(results, 6)
	if agg[2].Threads != 2 || agg[2].TotalOps != 300 {
		t.Errorf("cgroup 2: threads=%d ops=%d, want 2/300", agg[2].Threads, agg[2].TotalOps)
	}
	if agg[1].TotalOps != 300 {
		t.Errorf("cgroup 1: ops=%d, want 300", agg[1].TotalOps)
	}
	if agg[5].ThrottleTime != time.Second {
		t.Errorf("cgroup 5: throttle=%v, want 1s", agg[5].ThrottleTime)
	}
	if agg[0].Threads != 0 {
		t.Errorf("cgroup 0 (root) has %d threads, want 0", agg[0].Threads)
	}
}

package hscl

import (
	"math"
	"time"
)

// FairnessMetrics reduces a vector of per-thread shares into the standard
// inequality measures:
//
//	Jain's Index:  J = (Σx)² / (n·Σx²)     range (0,1], 1 iff all equal
//	CoV:           stddev(x) / mean(x)     0 iff all equal
//	Gini:          ΣᵢΣⱼ|xᵢ-xⱼ| / (2n·Σx)   range [0,1), 0 iff all equal
//	Spread:        (max-min)/mean · 100%
//
// The Jain form above is the standard one; the algebraically equivalent
// (avg²·n)/(total²/n) variant collapses to it when avg = total/n, which the
// analyzer guarantees by construction.
type FairnessMetrics struct {
	N      int
	Min    float64
	Max    float64
	Mean   float64
	Jain   float64
	CoV    float64
	Gini   float64
	Spread float64 // percent
}

// ComputeFairness reduces the share vector. An all-zero vector is perfectly
// equal: J=1, CoV=0, Gini=0. A population of one is perfectly fair by
// definition.
func ComputeFairness(x []float64) FairnessMetrics {
	m := FairnessMetrics{N: len(x)}
	if len(x) == 0 {
		return m
	}

	var sum, sumSq float64
	m.Min = x[0]
	m.Max = x[0]
	for _, v := range x {
		sum += v
		sumSq += v * v
		if v < m.Min {
			m.Min = v
		}
		if v > m.Max {
			m.Max = v
		}
	}
	n := float64(len(x))
	m.Mean = sum / n

	if sumSq == 0 {
		m.Jain = 1.0
		return m
	}
	m.Jain = (sum * sum) / (n * sumSq)

	var variance float64
	for _, v := range x {
		d := v - m.Mean
		variance += d * d
	}
	variance /= n
	if m.Mean > 0 {
		m.CoV = math.Sqrt(variance) / m.Mean
		m.Spread = (m.Max - m.Min) / m.Mean * 100.0
	}

	var absDiff float64
	for i := range x {
		for j := range x {
			absDiff += math.Abs(x[i] - x[j])
		}
	}
	if sum > 0 {
		m.Gini = absDiff / (2.0 * n * sum)
	}
	return m
}

// AssessmentThresholds are the Jain cutoffs for the categorical fairness
// verdict. They are configuration, not constants: different consumers of
// the harness draw the fair/unfair line at different points (0.6 vs 0.8
// cutoffs both exist in the wild).
type AssessmentThresholds struct {
	Excellent float64
	Good      float64
	Moderate  float64
	Poor      float64
}

// DefaultAssessmentThresholds returns the 0.95/0.80/0.60/0.40 ladder.
func DefaultAssessmentThresholds() AssessmentThresholds {
	return AssessmentThresholds{Excellent: 0.95, Good: 0.80, Moderate: 0.60, Poor: 0.40}
}

// Assess maps a Jain index to the categorical verdict.
func (t AssessmentThresholds) Assess(jain float64) string {
	switch {
	case jain >= t.Excellent:
		return "EXCELLENT (Very Fair)"
	case jain >= t.Good:
		return "GOOD (Mostly Fair)"
	case jain >= t.Moderate:
		return "MODERATE (Some Unfairness)"
	case jain >= t.Poor:
		return "POOR (Significant Unfairness)"
	default:
		return "VERY POOR (Highly Unfair)"
	}
}

// JudgeDominance interprets the critical-to-background mean throughput
// ratio: above 2 the hierarchy is doing its job, between 1 and 2 the effect
// is weak, at or below 1 the hierarchy is ineffective.
func JudgeDominance(ratio float64) string {
	switch {
	case ratio > 2:
		return "GOOD - hierarchy working"
	case ratio > 1:
		return "FAIR - some hierarchy effect"
	default:
		return "POOR - hierarchy not working"
	}
}

// ThreadResult pairs a worker's identity with its final counters. Counters
// are read only after the worker has joined.
type ThreadResult struct {
	ID       int
	Class    Class
	CGroupID int
	CGroup   string // empty outside cgroup mode
	Binding  Binding
	Counters *Counters
}

// LevelStats are the per-hierarchy-level fairness figures. A level with a
// single thread is perfectly fair: J=1, CoV=0.
type LevelStats struct {
	Class      Class
	Threads    int
	TotalOps   uint64
	AvgOpsSec  float64
	Jain       float64
	CoV        float64
	Assessment string
}

// Analysis is the full reduction of a run: global inequality metrics, the
// categorical verdict, per-level breakdowns and the priority-dominance
// check.
type Analysis struct {
	Global     FairnessMetrics
	Assessment string
	Levels     []LevelStats

	HierarchySwitches int64

	// CriticalBackgroundRatio compares mean throughput of the highest
	// represented class to the lowest. Zero when either end is missing or
	// the lowest level recorded no operations at all.
	CriticalBackgroundRatio float64
	DominanceJudgment       string
}

// Analyze reduces the joined per-thread counters into the fairness report
// model. duration is the configured run length used for throughput rates.
func Analyze(results []ThreadResult, duration time.Duration, switches int64, th AssessmentThresholds) Analysis {
	secs := duration.Seconds()
	if secs <= 0 {
		secs = 1
	}

	ops := make([]float64, len(results))
	for i, r := range results {
		ops[i] = float64(r.Counters.TotalOperations)
	}

	a := Analysis{
		Global:            ComputeFairness(ops),
		HierarchySwitches: switches,
	}
	a.Assessment = th.Assess(a.Global.Jain)

	// Per-level reduction over ops/sec of the threads sharing the class.
	for c := Class(0); c < NumClasses; c++ {
		var rates []float64
		var total uint64
		for _, r := range results {
			if r.Class != c {
				continue
			}
			rates = append(rates, float64(r.Counters.TotalOperations)/secs)
			total += r.Counters.TotalOperations
		}
		if len(rates) == 0 {
			continue
		}
		fm := ComputeFairness(rates)
		a.Levels = append(a.Levels, LevelStats{
			Class:      c,
			Threads:    len(rates),
			TotalOps:   total,
			AvgOpsSec:  fm.Mean,
			Jain:       fm.Jain,
			CoV:        fm.CoV,
			Assessment: th.Assess(fm.Jain),
		})
	}

	// A fully starved bottom level has no meaningful ratio; the zero value
	// keeps the report's ratio line out rather than printing a rate as one.
	if len(a.Levels) >= 2 {
		top := a.Levels[0]
		bottom := a.Levels[len(a.Levels)-1]
		if top.Class < bottom.Class && bottom.AvgOpsSec > 0 {
			a.CriticalBackgroundRatio = top.AvgOpsSec / bottom.AvgOpsSec
			a.DominanceJudgment = JudgeDominance(a.CriticalBackgroundRatio)
		}
	}
	return a
}

// AggregateCGroups rolls per-thread counters up into per-cgroup totals,
// indexed by cgroup id.
func AggregateCGroups(results []ThreadResult, cgroupCount int) []ClassAggregate {
	agg := make([]ClassAggregate, cgroupCount)
	for _, r := range results {
		if r.CGroupID < 0 || r.CGroupID >= cgroupCount {
			continue
		}
		agg[r.CGroupID].Threads++
		agg[r.CGroupID].TotalOps += r.Counters.TotalOperations
		agg[r.CGroupID].ThrottleTime += r.Counters.ThrottleTime
	}
	return agg
}

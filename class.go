package hscl

import "fmt"

// Class is a thread's priority class. Classes are ordered: a lower value is
// a higher priority. Under an unfair lock the higher classes are expected to
// dominate the lower ones; the analyzer quantifies by how much.
type Class int

const (
	ClassCritical Class = iota
	ClassHigh
	ClassNormal
	ClassLow
	ClassBackground

	// NumClasses is the size of the closed class set.
	NumClasses = 5
)

func (c Class) String() string {
	if c < 0 || c >= NumClasses {
		return fmt.Sprintf("CLASS(%d)", int(c))
	}
	return classProfiles[c].Name
}

// ClassProfile describes how a class is scheduled and how much CPU-bound
// work its threads perform between lock acquisitions. WorkIntensity is a
// multiplier over the base work unit: critical threads do little work and
// return to the lock quickly, background threads hold off longer.
type ClassProfile struct {
	Name             string
	RealtimePriority int  // SCHED_FIFO priority, 0 = none
	Nice             int  // fallback niceness when RT is unavailable
	Realtime         bool // request the real-time scheduling class
	WorkIntensity    float64
	YieldEvery       int // cooperative sleep period, in operations
}

var classProfiles = [NumClasses]ClassProfile{
	{Name: "CRITICAL", RealtimePriority: 50, Nice: -20, Realtime: true, WorkIntensity: 0.1, YieldEvery: 100},
	{Name: "HIGH", RealtimePriority: 30, Nice: -10, Realtime: true, WorkIntensity: 0.3, YieldEvery: 100},
	{Name: "NORMAL", RealtimePriority: 0, Nice: 0, Realtime: false, WorkIntensity: 1.0, YieldEvery: 100},
	{Name: "LOW", RealtimePriority: 0, Nice: 5, Realtime: false, WorkIntensity: 2.0, YieldEvery: 100},
	{Name: "BACKGROUND", RealtimePriority: 0, Nice: 19, Realtime: false, WorkIntensity: 5.0, YieldEvery: 500},
}

// Profile returns the scheduling profile of the class.
func (c Class) Profile() ClassProfile {
	if c < 0 || c >= NumClasses {
		return classProfiles[ClassNormal]
	}
	return classProfiles[c]
}

// ClassOf assigns classes cyclically so every class has representatives
// whenever the thread count allows it.
func ClassOf(threadIndex int) Class {
	return Class(threadIndex % NumClasses)
}

// WorkCostModel maps a class to a unit of CPU-bound work (busy-loop
// iterations) performed between lock acquisitions. Tests substitute a cheap
// deterministic model for the default busy-spin.
type WorkCostModel func(c Class) int

// baseWorkCycles is the work unit scaled by each class's intensity. It is
// sized so the intensity spread (0.1x vs 5x) dominates the periodic yield
// sleeps: a background thread spends most of its iteration in busy work,
// which is what lets higher classes out-run it under any lock.
const baseWorkCycles = 50000

// DefaultWorkCost scales the base work unit by the class intensity.
func DefaultWorkCost(c Class) int {
	return int(baseWorkCycles * c.Profile().WorkIntensity)
}

// workSink keeps the busy loop from being optimized away.
var workSink int64

// busyWork burns roughly n loop iterations of CPU.
func busyWork(n int) {
	sum := int64(0)
	for i := 0; i < n; i++ {
		sum += int64(i) * int64(i)
	}
	workSink = sum
}

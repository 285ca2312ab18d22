package hscl

import (
	"fmt"
	"math/rand"
)

// OpKind is the operation a worker performs against the store while holding
// the lock.
type OpKind int

const (
	OpInsert OpKind = iota
	OpFind
	OpUpdate
)

func (k OpKind) String() string {
	switch k {
	case OpInsert:
		return "insert"
	case OpFind:
		return "find"
	case OpUpdate:
		return "update"
	}
	return fmt.Sprintf("op(%d)", int(k))
}

// mixTolerance absorbs float parsing noise when checking that the three
// ratios sum to one.
const mixTolerance = 1e-9

// OperationMix is the per-iteration operation distribution. All three ratios
// are in [0,1] and sum to 1; the update ratio is always derived as the
// remainder of insert+find.
type OperationMix struct {
	Insert float64
	Update float64
	Find   float64
}

// NewOperationMix derives the full mix from the two configured ratios.
// insert+find > 1 is rejected, as are ratios outside [0,1].
func NewOperationMix(insertRatio, findRatio float64) (OperationMix, error) {
	m := OperationMix{
		Insert: insertRatio,
		Find:   findRatio,
		Update: 1.0 - insertRatio - findRatio,
	}
	if err := m.Validate(); err != nil {
		return OperationMix{}, err
	}
	return m, nil
}

// Validate checks the mix invariants.
func (m OperationMix) Validate() error {
	if m.Insert < 0 || m.Insert > 1 || m.Find < 0 || m.Find > 1 || m.Update < 0 || m.Update > 1 {
		return fmt.Errorf("operation ratios must be in [0,1] (insert=%.2f find=%.2f update=%.2f): %w",
			m.Insert, m.Find, m.Update, ErrBadConfig)
	}
	if m.Insert+m.Find > 1.0+mixTolerance {
		return fmt.Errorf("insert_ratio + find_ratio must be <= 1.0 (got %.2f): %w",
			m.Insert+m.Find, ErrBadConfig)
	}
	sum := m.Insert + m.Find + m.Update
	if sum < 1.0-mixTolerance || sum > 1.0+mixTolerance {
		return fmt.Errorf("operation ratios sum to %.6f, want 1.0: %w", sum, ErrBadConfig)
	}
	return nil
}

// WorkloadGenerator draws operations from a fixed mix. The random stream is
// injected rather than seeded from the wall clock, so a given seed produces
// the same operation sequence on every run.
type WorkloadGenerator struct {
	mix OperationMix
	rng *rand.Rand
}

// NewWorkloadGenerator builds a generator over the given stream. A nil rng
// panics deliberately: callers own seeding policy.
func NewWorkloadGenerator(mix OperationMix, rng *rand.Rand) *WorkloadGenerator {
	if rng == nil {
		panic("hscl: WorkloadGenerator requires an injected rand stream")
	}
	return &WorkloadGenerator{mix: mix, rng: rng}
}

// Next draws the next operation: r < insert -> Insert,
// r < insert+find -> Find, else Update.
func (g *WorkloadGenerator) Next() OpKind {
	r := g.rng.Float64()
	switch {
	case r < g.mix.Insert:
		return OpInsert
	case r < g.mix.Insert+g.mix.Find:
		return OpFind
	default:
		return OpUpdate
	}
}

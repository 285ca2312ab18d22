package hscl

import "time"

// Clock abstracts the monotonic high-resolution time source used for lock
// wait measurement, starvation tracking and slice-violation detection.
// Production code uses SystemClock; tests inject a fake to make timing
// assertions deterministic.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock reads the runtime monotonic clock.
var SystemClock Clock = systemClock{}

// DefaultCyclesPerMicrosecond is the calibration constant used to interpret
// slice deadlines reported by fair-lock implementations that count raw CPU
// cycles instead of wall time. It is a configuration parameter, not a
// compile-time constant: set Config.CyclesPerMicrosecond to match the host.
const DefaultCyclesPerMicrosecond = 2400

// CyclesToDuration converts a raw cycle count to wall time using the given
// calibration constant.
func CyclesToDuration(cycles uint64, cyclesPerUS int) time.Duration {
	if cyclesPerUS <= 0 {
		cyclesPerUS = DefaultCyclesPerMicrosecond
	}
	return time.Duration(cycles/uint64(cyclesPerUS)) * time.Microsecond
}

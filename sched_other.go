//go:build !linux

package hscl

import "errors"

type schedSpec struct {
	Realtime   bool
	RTPriority int
	Nice       int
	CPUs       []int
}

var errSchedUnsupported = errors.New("thread scheduling configuration is only supported on linux")

// applyScheduling is a stub off Linux: priority, niceness and affinity are
// hints, and a host without them still produces a valid (if less contended)
// run.
func applyScheduling(spec schedSpec) error {
	return errSchedUnsupported
}

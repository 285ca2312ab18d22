//go:build linux

package hscl

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// schedSpec is the OS scheduling configuration applied to a worker thread
// before it enters its loop.
type schedSpec struct {
	Realtime   bool
	RTPriority int
	Nice       int
	CPUs       []int // affinity set, nil leaves affinity alone
}

// applyScheduling pins the calling thread and sets its scheduling class.
// The caller must hold runtime.LockOSThread. Real-time setup requires
// privilege; on failure the thread falls back to the nice value, and only
// if that also fails is an error returned. The run never aborts on a
// scheduling error, it is reported once and tolerated.
func applyScheduling(spec schedSpec) error {
	if len(spec.CPUs) > 0 {
		var set unix.CPUSet
		set.Zero()
		for _, cpu := range spec.CPUs {
			set.Set(cpu)
		}
		// Affinity failures are not worth a warning on their own; the
		// priority path below reports if the host refuses everything.
		_ = unix.SchedSetaffinity(0, &set)
	}

	if spec.Realtime && spec.RTPriority > 0 {
		attr := unix.SchedAttr{
			Size:     unix.SizeofSchedAttr,
			Policy:   unix.SCHED_FIFO,
			Priority: uint32(spec.RTPriority),
		}
		if err := unix.SchedSetAttr(0, &attr, 0); err == nil {
			return nil
		}
		// No privilege for SCHED_FIFO; fall through to niceness.
	}

	tid := unix.Gettid()
	if err := unix.Setpriority(unix.PRIO_PROCESS, tid, spec.Nice); err != nil {
		return fmt.Errorf("setpriority(nice=%d): %w", spec.Nice, err)
	}
	return nil
}

// Package hscl is a lock-fairness benchmark harness. It puts a population of
// OS-pinned worker threads into contention on a pluggable lock guarding a
// shared key/value store, runs them for a fixed wall-clock duration, and
// reduces the per-thread throughput vector into the standard inequality
// measures:
//
//	Jain's Index:  J = (Σx)² / (n·Σx²)
//	CoV:           stddev / mean
//	Gini:          ΣᵢΣⱼ|xᵢ-xⱼ| / (2n·Σx)
//	Spread:        (max-min)/mean
//
// Four lock strategies are built in (mutex, spinlock, rwlock-as-writer,
// adaptive mutex) plus a slot for an external hierarchical fair lock that
// consumes the scheduling tree built by BuildHierarchy. Workers are split
// into five priority classes with distinct OS scheduling (SCHED_FIFO for the
// top two, nice values for the rest) so the harness measures fairness under
// genuinely asymmetric pressure, not just goroutine interleaving.
//
// A run is one call:
//
//	cfg := hscl.DefaultConfig()
//	cfg.StoreFile = "bench.db"
//	res, err := hscl.Run(cfg)
//	...
//	hscl.WriteReport(os.Stdout, res)
//
// The cgroup mode replaces the topology-derived tree with one built from a
// set of cgroup-style profiles (weight, nice, throttle quota) loaded from
// YAML, and throttles workers per their profile's quota.
package hscl

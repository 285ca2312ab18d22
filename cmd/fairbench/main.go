// Command fairbench runs the lock-fairness benchmark and prints the
// hierarchy structure and fairness report to stdout. Diagnostics go to
// stderr as structured logs.
//
// Usage:
//
//	fairbench <threads> <duration_s> <store_file> [insert_ratio] [find_ratio] [lock_type]
//
// Lock types: 0=mutex 1=spinlock 2=rwlock 3=adaptive_mutex 4=hfairlock.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/lmittmann/tint"
	"github.com/rs/xid"
	"github.com/spf13/cobra"

	hscl "github.com/BiswajitRakshit/HSCL"
	"github.com/BiswajitRakshit/HSCL/hfairlock"
)

type options struct {
	topology   int
	cgroups    bool
	cgroupFile string
	seed       int64
	cpus       []int
	cyclesUS   int
	thresholds []float64
	logLevel   string
}

func main() {
	var opts options

	cmd := &cobra.Command{
		Use:   "fairbench <threads> <duration_s> <store_file> [insert_ratio] [find_ratio] [lock_type]",
		Short: "measure lock fairness across competing OS threads",
		Long: `fairbench launches a population of OS-pinned worker threads that contend
on a shared lock around a key/value store, runs them for a fixed duration,
and reports Jain's index, coefficient of variation, Gini coefficient and
throughput spread over the per-thread operation counts.`,
		Args:          cobra.RangeArgs(3, 6),
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args, opts)
		},
	}

	f := cmd.Flags()
	f.IntVar(&opts.topology, "topology", 0, "scheduling tree: 0=flat 1=balanced 2=skewed 3=deep 4=grouped")
	f.BoolVar(&opts.cgroups, "cgroups", false, "run in cgroup mode with the default profile set")
	f.StringVar(&opts.cgroupFile, "cgroup-file", "", "YAML cgroup profile file (implies cgroup mode)")
	f.Int64Var(&opts.seed, "seed", 0, "workload random seed (0 = derive from clock)")
	f.IntSliceVar(&opts.cpus, "cpus", []int{0, 1}, "CPU affinity set for all workers (empty = no pinning)")
	f.IntVar(&opts.cyclesUS, "cycles-per-us", hscl.DefaultCyclesPerMicrosecond, "cycle calibration for cycle-domain fair locks")
	f.Float64SliceVar(&opts.thresholds, "thresholds", nil, "Jain cutoffs excellent,good,moderate,poor (default 0.95,0.80,0.60,0.40)")
	f.StringVar(&opts.logLevel, "log-level", "info", "log level: debug, info, warn, error")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string, opts options) error {
	logger := newLogger(opts.logLevel)

	threads, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("threads: %w", err)
	}
	seconds, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("duration: %w", err)
	}

	cfg := hscl.DefaultConfig()
	cfg.Threads = threads
	cfg.Duration = time.Duration(seconds) * time.Second
	cfg.StoreFile = args[2]
	cfg.Seed = opts.seed
	cfg.PinCPUs = opts.cpus
	cfg.CyclesPerMicrosecond = opts.cyclesUS
	cfg.Logger = logger

	insert, find := 0.3, 0.6
	if len(args) > 3 {
		if insert, err = strconv.ParseFloat(args[3], 64); err != nil {
			return fmt.Errorf("insert ratio: %w", err)
		}
	}
	if len(args) > 4 {
		if find, err = strconv.ParseFloat(args[4], 64); err != nil {
			return fmt.Errorf("find ratio: %w", err)
		}
	}
	if cfg.Mix, err = hscl.NewOperationMix(insert, find); err != nil {
		return err
	}

	if len(args) > 5 {
		sel, err := strconv.Atoi(args[5])
		if err != nil {
			return fmt.Errorf("lock type: %w", err)
		}
		lt, ok := hscl.LockTypeFromSelector(sel)
		if !ok {
			logger.Warn("unknown lock type selector, using mutex", "selector", sel)
		}
		cfg.LockType = lt
	}

	topo, ok := hscl.TopologyFromSelector(opts.topology)
	if !ok {
		logger.Warn("unknown topology selector, using flat", "selector", opts.topology)
	}
	cfg.Topology = topo

	switch {
	case opts.cgroupFile != "":
		profiles, err := hscl.LoadCGroupProfiles(opts.cgroupFile)
		if err != nil {
			return err
		}
		cfg.CGroups = profiles
	case opts.cgroups:
		cfg.CGroups = hscl.DefaultCGroupProfiles()
	}

	if len(opts.thresholds) > 0 {
		if len(opts.thresholds) != 4 {
			return fmt.Errorf("--thresholds wants 4 values, got %d", len(opts.thresholds))
		}
		cfg.Thresholds = hscl.AssessmentThresholds{
			Excellent: opts.thresholds[0],
			Good:      opts.thresholds[1],
			Moderate:  opts.thresholds[2],
			Poor:      opts.thresholds[3],
		}
	}

	if cfg.LockType == hscl.LockHierarchicalFair {
		cfg.FairLock = hfairlock.New()
	}

	logger.Info("benchmark starting",
		"threads", cfg.Threads,
		"duration", cfg.Duration,
		"lock", cfg.LockType.String(),
		"topology", cfg.Topology.String(),
		"cgroups", cfg.CGroups != nil,
		"store", cfg.StoreFile)

	// Show the tree the run will use before the workers start; the build is
	// deterministic so the display copy matches the run copy exactly.
	if cfg.CGroups != nil {
		if hier, err := hscl.BuildCGroupHierarchy(cfg.Threads, cfg.CGroups, nil); err == nil {
			hier.WriteStructure(os.Stdout)
		}
	} else {
		if hier, err := hscl.BuildHierarchy(cfg.Threads, cfg.Topology, nil); err == nil {
			hier.WriteStructure(os.Stdout)
		}
	}

	res, err := hscl.Run(cfg)
	if err != nil {
		return err
	}

	var totalOps uint64
	for _, t := range res.Threads {
		totalOps += t.Counters.TotalOperations
	}
	logger.Info("benchmark complete",
		"elapsed", res.Elapsed.Round(time.Millisecond),
		"total_ops", humanize.Comma(int64(totalOps)),
		"jain", fmt.Sprintf("%.4f", res.Analysis.Global.Jain))

	hscl.WriteReport(os.Stdout, res)
	return nil
}

// newLogger builds the stderr diagnostic logger. Every line carries the run
// id so interleaved runs stay separable.
func newLogger(level string) *slog.Logger {
	var lv slog.Level
	switch level {
	case "debug":
		lv = slog.LevelDebug
	case "warn":
		lv = slog.LevelWarn
	case "error":
		lv = slog.LevelError
	default:
		lv = slog.LevelInfo
	}
	h := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      lv,
		TimeFormat: time.TimeOnly,
	})
	return slog.New(h).With("run", xid.New().String())
}

// Command goguard-benchcheck compares two `go test -bench` outputs and fails
// when a tracked benchmark regressed past the threshold.
package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/pflag"
)

const defaultThreshold = 0.30

var defaultTracked = []string{
	"BenchmarkResolveCached:ns/op,allocs/op",
	"BenchmarkEvaluateCached:ns/op,allocs/op",
	"BenchmarkGuardDecideMemoized:ns/op",
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		baselinePath  string
		candidatePath string
		threshold     float64
		trackedSpecs  []string
	)

	flagSet := pflag.NewFlagSet("goguard-benchcheck", pflag.ContinueOnError)
	flagSet.StringVar(&baselinePath, "baseline", "", "path to baseline benchmark output")
	flagSet.StringVar(&candidatePath, "candidate", "", "path to candidate benchmark output")
	flagSet.Float64Var(&threshold, "threshold", defaultThreshold, "maximum allowed regression ratio (0.30 = +30%)")
	flagSet.StringSliceVar(&trackedSpecs, "track", defaultTracked, "benchmark:unit[,unit] to compare; repeatable")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	if baselinePath == "" || candidatePath == "" {
		return fmt.Errorf("--baseline and --candidate are required")
	}
	if threshold < 0 {
		return fmt.Errorf("--threshold must be >= 0")
	}

	tracked, err := parseTracked(trackedSpecs)
	if err != nil {
		return err
	}
	baseline, err := parseBenchmarkFile(baselinePath, tracked)
	if err != nil {
		return fmt.Errorf("parse baseline: %w", err)
	}
	candidate, err := parseBenchmarkFile(candidatePath, tracked)
	if err != nil {
		return fmt.Errorf("parse candidate: %w", err)
	}

	rows, failures := compare(tracked, baseline, candidate, threshold)
	fmt.Println("benchmark metric baseline candidate delta")
	for _, r := range rows {
		fmt.Printf("%s %s %.3f %.3f %+0.2f%%\n", r.benchmark, r.unit, r.baseline, r.candidate, r.delta*100)
	}

	if len(failures) > 0 {
		fmt.Fprintln(os.Stderr, "performance regression threshold exceeded:")
		for _, f := range failures {
			fmt.Fprintf(os.Stderr, "  - %s\n", f)
		}
		return fmt.Errorf("%d regression(s)", len(failures))
	}
	return nil
}

type row struct {
	benchmark string
	unit      string
	baseline  float64
	candidate float64
	delta     float64
}

func compare(tracked map[string][]string, baseline, candidate sampleSet, threshold float64) ([]row, []string) {
	names := make([]string, 0, len(tracked))
	for name := range tracked {
		names = append(names, name)
	}
	sort.Strings(names)

	var (
		rows     []row
		failures []string
	)
	for _, name := range names {
		for _, unit := range tracked[name] {
			base := baseline[name][unit]
			cand := candidate[name][unit]
			if len(base) == 0 || len(cand) == 0 {
				failures = append(failures, fmt.Sprintf("missing samples for %s %s", name, unit))
				continue
			}

			baseMedian, candMedian := median(base), median(cand)
			if baseMedian <= 0 {
				// Zero-alloc baselines only regress when allocations appear.
				if candMedian > 0 {
					failures = append(failures, fmt.Sprintf("%s %s rose from zero to %.0f", name, unit, candMedian))
				}
				continue
			}

			delta := (candMedian - baseMedian) / baseMedian
			rows = append(rows, row{benchmark: name, unit: unit, baseline: baseMedian, candidate: candMedian, delta: delta})
			if delta > threshold {
				failures = append(failures, fmt.Sprintf("%s %s regressed by %+0.2f%% (limit %+0.2f%%)", name, unit, delta*100, threshold*100))
			}
		}
	}
	return rows, failures
}

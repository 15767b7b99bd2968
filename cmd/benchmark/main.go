// Command benchmark runs the built-in guest workloads on the emulator and
// reports instruction counts, cache behaviour and exit-code validation.
//
// Usage:
//
//	go run ./cmd/benchmark [flags]
//
// Flags:
//
//	-csv        Output results in CSV format (default: human-readable)
//	-json       Output results as a JSON report
//	-no-icache  Run without the cache in front of guest memory
//	-core       Run only the three core workloads
//	-max N      Per-workload instruction budget (0 = unbounded)
//	-v          Print a line per workload as it finishes
//
// Example:
//
//	# Run all benchmarks with human-readable output
//	go run ./cmd/benchmark
//
//	# Output CSV for spreadsheet comparison
//	go run ./cmd/benchmark -csv > results.csv
//
// The exit status is 1 if any workload does not exit with its expected code.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/S-YOU/nsemu/benchmarks"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("benchmark", flag.ContinueOnError)
	flags.SetOutput(stderr)
	csvOutput := flags.Bool("csv", false, "Output results in CSV format")
	jsonOutput := flags.Bool("json", false, "Output results as a JSON report")
	noICache := flags.Bool("no-icache", false, "Run without the cache")
	coreOnly := flags.Bool("core", false, "Run only the core workloads")
	maxInsts := flags.Uint64("max", benchmarks.DefaultConfig().MaxInstructions, "Per-workload instruction budget (0 = unbounded)")
	verbose := flags.Bool("v", false, "Print a line per workload")
	if err := flags.Parse(args); err != nil {
		return 2
	}
	if *csvOutput && *jsonOutput {
		_, _ = fmt.Fprintln(stderr, "error: -csv and -json are mutually exclusive")
		return 2
	}

	// Configure harness
	config := benchmarks.DefaultConfig()
	config.EnableICache = !*noICache
	config.MaxInstructions = *maxInsts
	config.Output = stdout
	config.Verbose = *verbose

	harness := benchmarks.NewHarness(config)
	if *coreOnly {
		harness.AddBenchmarks(benchmarks.GetCoreBenchmarks())
	} else {
		harness.AddBenchmarks(benchmarks.GetMicrobenchmarks())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	results := harness.RunAll(ctx)

	switch {
	case *csvOutput:
		harness.PrintCSV(results)
	case *jsonOutput:
		if err := harness.PrintJSON(results); err != nil {
			_, _ = fmt.Fprintf(stderr, "error: %v\n", err)
			return 1
		}
	default:
		_, _ = fmt.Fprintln(stdout, "nsemu Benchmark Harness")
		_, _ = fmt.Fprintln(stdout, "=======================")
		_, _ = fmt.Fprintf(stdout, "I-Cache: %v\n\n", config.EnableICache)
		harness.PrintResults(results)

		summary := benchmarks.Summarize(results)
		_, _ = fmt.Fprintln(stdout, "=== Summary ===")
		_, _ = fmt.Fprintf(stdout, "Passed: %d/%d\n", summary.Passed, summary.TotalBenchmarks)
		_, _ = fmt.Fprintf(stdout, "Total instructions: %d\n", summary.TotalInstructions)
	}

	if ctx.Err() != nil {
		_, _ = fmt.Fprintln(stderr, "interrupted")
		return 1
	}
	if summary := benchmarks.Summarize(results); summary.Passed != summary.TotalBenchmarks {
		return 1
	}
	return 0
}

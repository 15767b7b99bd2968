// Package benchmarks provides small A64 guest workloads and a harness that
// runs them on the execution engine and reports what they did.
package benchmarks

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/S-YOU/nsemu/cache"
	"github.com/S-YOU/nsemu/emu"
)

// Guest memory layout shared by every workload.
const (
	CodeBase  = 0x1000
	DataBase  = 0x8000
	DataSize  = 0x2000
	StackTop  = 0x10000
	StackSize = 0x2000
)

// BenchmarkResult holds the outcome of a single workload run.
type BenchmarkResult struct {
	// Name identifies the benchmark
	Name string `json:"name"`

	// Description explains what the benchmark exercises
	Description string `json:"description"`

	// Instructions is the number of retired instructions
	Instructions uint64 `json:"instructions"`

	// ICacheHits/Misses/Evictions (if cache enabled)
	ICacheHits      uint64 `json:"icache_hits,omitempty"`
	ICacheMisses    uint64 `json:"icache_misses,omitempty"`
	ICacheEvictions uint64 `json:"icache_evictions,omitempty"`

	// ExitCode is the program's exit code
	ExitCode int64 `json:"exit_code"`

	// ExpectedExit is copied from the benchmark for reporting
	ExpectedExit int64 `json:"expected_exit"`

	// Error is the run error, if the program did not exit cleanly
	Error string `json:"error,omitempty"`

	// WallTime is the host time taken to run the program
	WallTime time.Duration `json:"wall_time_ns"`
}

// Passed reports whether the program exited cleanly with the expected code.
func (r BenchmarkResult) Passed() bool {
	return r.Error == "" && r.ExitCode == r.ExpectedExit
}

// MIPS returns millions of guest instructions per host second.
func (r BenchmarkResult) MIPS() float64 {
	if r.WallTime <= 0 {
		return 0
	}
	return float64(r.Instructions) / r.WallTime.Seconds() / 1e6
}

// Benchmark defines a single benchmark program.
type Benchmark struct {
	// Name identifies the benchmark
	Name string

	// Description explains what the benchmark exercises
	Description string

	// Setup prepares registers and the data region before the first step
	Setup func(regFile *emu.RegFile, memory *emu.SparseMemory) error

	// Program is the A64 machine code, loaded at CodeBase
	Program []byte

	// ExpectedExit is the expected exit code (for validation)
	ExpectedExit int64
}

// HarnessConfig configures the benchmark harness.
type HarnessConfig struct {
	// EnableICache routes fetches and loads through a cache
	EnableICache bool

	// ICache is the cache geometry used when EnableICache is set
	ICache cache.Config

	// MaxInstructions bounds each run; zero means unbounded
	MaxInstructions uint64

	// Output is where to write results (default: os.Stdout)
	Output io.Writer

	// Verbose prints a line per benchmark as it finishes
	Verbose bool
}

// DefaultConfig returns a default harness configuration.
func DefaultConfig() HarnessConfig {
	return HarnessConfig{
		EnableICache:    true,
		ICache:          cache.DefaultL1IConfig(),
		MaxInstructions: 1_000_000,
		Output:          os.Stdout,
		Verbose:         false,
	}
}

// Harness runs benchmarks and reports results.
type Harness struct {
	config     HarnessConfig
	benchmarks []Benchmark
}

// NewHarness creates a new benchmark harness.
func NewHarness(config HarnessConfig) *Harness {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	return &Harness{
		config:     config,
		benchmarks: []Benchmark{},
	}
}

// AddBenchmark adds a benchmark to the harness.
func (h *Harness) AddBenchmark(b Benchmark) {
	h.benchmarks = append(h.benchmarks, b)
}

// AddBenchmarks adds multiple benchmarks to the harness.
func (h *Harness) AddBenchmarks(benchmarks []Benchmark) {
	h.benchmarks = append(h.benchmarks, benchmarks...)
}

// RunAll executes all benchmarks and returns results. It stops early, with
// the results gathered so far, if ctx is cancelled.
func (h *Harness) RunAll(ctx context.Context) []BenchmarkResult {
	results := make([]BenchmarkResult, 0, len(h.benchmarks))

	for _, bench := range h.benchmarks {
		if ctx.Err() != nil {
			break
		}

		result := h.runBenchmark(ctx, bench)
		results = append(results, result)

		if h.config.Verbose {
			status := "ok"
			if !result.Passed() {
				status = "FAIL"
			}
			_, _ = fmt.Fprintf(h.config.Output, "%-24s %-4s exit=%d insts=%d\n",
				result.Name, status, result.ExitCode, result.Instructions)
		}
	}

	return results
}

// runBenchmark executes a single benchmark on fresh memory.
func (h *Harness) runBenchmark(ctx context.Context, bench Benchmark) BenchmarkResult {
	result := BenchmarkResult{
		Name:         bench.Name,
		Description:  bench.Description,
		ExpectedExit: bench.ExpectedExit,
	}

	memory, err := newGuestMemory(bench.Program)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	var (
		view   emu.Memory = memory
		icache *cache.Cache
	)
	if h.config.EnableICache {
		icache = cache.New(h.config.ICache, memory)
		view = icache
	}

	e := emu.NewEmulator(CodeBase,
		emu.WithMemory(view),
		emu.WithStackPointer(StackTop),
		emu.WithStdout(io.Discard),
		emu.WithStderr(io.Discard),
		emu.WithMaxInstructions(h.config.MaxInstructions),
	)

	if bench.Setup != nil {
		if err := bench.Setup(e.RegFile(), memory); err != nil {
			result.Error = fmt.Sprintf("setup: %v", err)
			return result
		}
	}

	start := time.Now()
	exitCode, err := e.Run(ctx)
	result.WallTime = time.Since(start)

	result.ExitCode = exitCode
	result.Instructions = e.InstructionCount()
	if err != nil {
		result.Error = err.Error()
	}

	if icache != nil {
		stats := icache.Stats()
		result.ICacheHits = stats.Hits
		result.ICacheMisses = stats.Misses
		result.ICacheEvictions = stats.Evictions
	}

	return result
}

// newGuestMemory maps code, data and stack, and loads program at CodeBase.
func newGuestMemory(program []byte) (*emu.SparseMemory, error) {
	if len(program) == 0 {
		return nil, fmt.Errorf("empty program")
	}

	memory := emu.NewSparseMemory()
	if err := memory.Map(CodeBase, uint64(len(program)), emu.PermRX); err != nil {
		return nil, err
	}
	if err := memory.Map(DataBase, DataSize, emu.PermRW); err != nil {
		return nil, err
	}
	if err := memory.Map(StackTop-StackSize, StackSize, emu.PermRW); err != nil {
		return nil, err
	}
	if err := memory.LoadBytes(CodeBase, program); err != nil {
		return nil, err
	}
	return memory, nil
}

// PrintResults outputs benchmark results in a human-readable format.
func (h *Harness) PrintResults(results []BenchmarkResult) {
	_, _ = fmt.Fprintln(h.config.Output, "=== nsemu Benchmark Results ===")
	_, _ = fmt.Fprintln(h.config.Output, "")

	for _, r := range results {
		_, _ = fmt.Fprintf(h.config.Output, "Benchmark: %s\n", r.Name)
		_, _ = fmt.Fprintf(h.config.Output, "  Description: %s\n", r.Description)
		_, _ = fmt.Fprintf(h.config.Output, "  Exit Code: %d (expected %d)\n", r.ExitCode, r.ExpectedExit)
		if r.Error != "" {
			_, _ = fmt.Fprintf(h.config.Output, "  Error: %s\n", r.Error)
		}
		_, _ = fmt.Fprintf(h.config.Output, "  Instructions: %d\n", r.Instructions)

		if r.ICacheHits > 0 || r.ICacheMisses > 0 {
			_, _ = fmt.Fprintln(h.config.Output, "  --- I-Cache ---")
			_, _ = fmt.Fprintf(h.config.Output, "  Hits:      %d\n", r.ICacheHits)
			_, _ = fmt.Fprintf(h.config.Output, "  Misses:    %d\n", r.ICacheMisses)
			_, _ = fmt.Fprintf(h.config.Output, "  Evictions: %d\n", r.ICacheEvictions)
		}

		_, _ = fmt.Fprintf(h.config.Output, "  Wall Time: %v (%.2f MIPS)\n", r.WallTime, r.MIPS())
		_, _ = fmt.Fprintln(h.config.Output, "")
	}
}

// PrintCSV outputs benchmark results in CSV format for easy comparison.
func (h *Harness) PrintCSV(results []BenchmarkResult) {
	_, _ = fmt.Fprintln(h.config.Output,
		"name,instructions,icache_hits,icache_misses,icache_evictions,exit_code,expected_exit,passed")

	for _, r := range results {
		_, _ = fmt.Fprintf(h.config.Output, "%s,%d,%d,%d,%d,%d,%d,%t\n",
			r.Name,
			r.Instructions,
			r.ICacheHits,
			r.ICacheMisses,
			r.ICacheEvictions,
			r.ExitCode,
			r.ExpectedExit,
			r.Passed(),
		)
	}
}

// BenchmarkReport is the complete output format for benchmark results.
type BenchmarkReport struct {
	// Metadata about the benchmark run
	Metadata ReportMetadata `json:"metadata"`

	// Results is the list of individual benchmark results
	Results []BenchmarkResult `json:"results"`

	// Summary contains aggregate statistics
	Summary ReportSummary `json:"summary"`
}

// ReportMetadata contains information about the benchmark run.
type ReportMetadata struct {
	// Timestamp when the benchmark was run
	Timestamp string `json:"timestamp"`

	// Config describes the benchmark configuration
	Config BenchmarkConfig `json:"config"`
}

// BenchmarkConfig describes the harness configuration used.
type BenchmarkConfig struct {
	ICacheEnabled   bool         `json:"icache_enabled"`
	ICache          cache.Config `json:"icache"`
	MaxInstructions uint64       `json:"max_instructions"`
}

// ReportSummary contains aggregate statistics across all benchmarks.
type ReportSummary struct {
	// TotalBenchmarks is the number of benchmarks run
	TotalBenchmarks int `json:"total_benchmarks"`

	// Passed is the number of benchmarks that exited as expected
	Passed int `json:"passed"`

	// TotalInstructions is the sum of all retired instructions
	TotalInstructions uint64 `json:"total_instructions"`

	// TotalWallTime is the total wall clock time for all benchmarks
	TotalWallTime time.Duration `json:"total_wall_time_ns"`
}

// Summarize aggregates results.
func Summarize(results []BenchmarkResult) ReportSummary {
	summary := ReportSummary{TotalBenchmarks: len(results)}
	for _, r := range results {
		if r.Passed() {
			summary.Passed++
		}
		summary.TotalInstructions += r.Instructions
		summary.TotalWallTime += r.WallTime
	}
	return summary
}

// PrintJSON outputs benchmark results in JSON format for automated comparison.
func (h *Harness) PrintJSON(results []BenchmarkResult) error {
	report := BenchmarkReport{
		Metadata: ReportMetadata{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Config: BenchmarkConfig{
				ICacheEnabled:   h.config.EnableICache,
				ICache:          h.config.ICache,
				MaxInstructions: h.config.MaxInstructions,
			},
		},
		Results: results,
		Summary: Summarize(results),
	}

	encoder := json.NewEncoder(h.config.Output)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}

// BuildProgram assembles instruction words into a byte slice.
func BuildProgram(instrs ...uint32) []byte {
	program := make([]byte, 4*len(instrs))
	for i, inst := range instrs {
		binary.LittleEndian.PutUint32(program[4*i:], inst)
	}
	return program
}

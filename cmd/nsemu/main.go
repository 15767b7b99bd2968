// Package main provides the nsemu command, which loads an AArch64 program
// image and runs it on the functional emulator.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"

	"github.com/S-YOU/nsemu/cache"
	"github.com/S-YOU/nsemu/config"
	"github.com/S-YOU/nsemu/emu"
	"github.com/S-YOU/nsemu/loader"
)

// Exit statuses used when the program did not exit by itself.
const (
	exitSetupError = 1
	exitRunError   = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the command and returns the process exit status.
func run(args []string, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("nsemu", flag.ContinueOnError)
	flags.SetOutput(stderr)
	var (
		raw        = flags.Bool("raw", false, "Treat the image as a flat binary instead of ELF")
		base       = flags.Uint64("base", config.DefaultLoadAddress, "Load address of a raw image")
		entry      = flags.Uint64("entry", 0, "Override the entry point")
		configPath = flags.String("config", "", "Path to run configuration JSON file")
		verbose    = flags.Bool("v", false, "Trace every instruction and print a run summary")
		maxInsts   = flags.Uint64("max", 0, "Stop after this many instructions (0 = no limit)")
		icache     = flags.Bool("icache", false, "Run through an instruction cache")
		color      = flags.Bool("color", false, "Colorize error output")
	)
	flags.Usage = func() {
		fmt.Fprintf(stderr, "Usage: nsemu [options] <program>\n")
		fmt.Fprintf(stderr, "\nOptions:\n")
		flags.PrintDefaults()
	}

	if err := flags.Parse(args); err != nil {
		return exitSetupError
	}
	if flags.NArg() != 1 {
		flags.Usage()
		return exitSetupError
	}
	programPath := flags.Arg(0)

	logger := logrus.New()
	logger.SetOutput(stderr)

	// File values first, then flags given on the command line
	cfg := config.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadConfig(*configPath)
		if err != nil {
			newReporter(stderr, false, logger).printError(err)
			return exitSetupError
		}
	}
	flags.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "base":
			cfg.LoadAddress = *base
		case "entry":
			cfg.Entry = *entry
		case "v":
			cfg.Debug = *verbose
		case "max":
			cfg.MaxInstructions = *maxInsts
		case "icache":
			cfg.ICache.Enabled = *icache
		case "color":
			cfg.Color = *color
		}
	})

	report := newReporter(stderr, cfg.Color, logger)
	if err := cfg.Validate(); err != nil {
		report.printError(fmt.Errorf("invalid configuration: %w", err))
		return exitSetupError
	}

	prog, err := loadProgram(programPath, *raw, cfg)
	if err != nil {
		report.printError(err)
		return exitSetupError
	}

	mem := emu.NewSparseMemory()
	if err := prog.MapInto(mem, cfg.StackSize); err != nil {
		report.printError(fmt.Errorf("failed to map program: %w", err))
		return exitSetupError
	}

	var memory emu.Memory = mem
	var icacheModel *cache.Cache
	if cfg.ICache.Enabled {
		icacheModel = cache.New(cfg.ICache.Config, mem)
		memory = icacheModel
	}

	level := emu.RunLevelRelease
	if cfg.Debug {
		level = emu.RunLevelDebug
	}

	entryPoint := prog.EntryPoint
	if cfg.Entry != 0 {
		entryPoint = cfg.Entry
	}

	emulator := emu.NewEmulator(entryPoint,
		emu.WithMemory(memory),
		emu.WithSink(emu.NewLogSink(logger, level)),
		emu.WithStdout(stdout),
		emu.WithStderr(stderr),
		emu.WithStackPointer(prog.InitialSP),
		emu.WithMaxInstructions(cfg.MaxInstructions),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	exitCode, runErr := emulator.Run(ctx)

	if cfg.Debug {
		report.summary(programPath, emulator, icacheModel)
	}

	if runErr != nil {
		var fault *emu.Fault
		if errors.As(runErr, &fault) {
			report.printError(fault)
		} else {
			report.printError(fmt.Errorf("run stopped at pc 0x%x: %w", emulator.RegFile().PC, runErr))
		}
		return exitRunError
	}

	return int(exitCode)
}

// loadProgram reads the image and applies the configured stack top.
func loadProgram(path string, raw bool, cfg *config.Config) (*loader.Program, error) {
	var (
		prog *loader.Program
		err  error
	)
	if raw {
		prog, err = loader.LoadRaw(path, cfg.LoadAddress)
	} else {
		prog, err = loader.Load(path)
	}
	if err != nil {
		return nil, fmt.Errorf("error loading program: %w", err)
	}

	prog.InitialSP = cfg.StackTop
	return prog, nil
}

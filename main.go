// Package main provides the entry point for nsemu.
// nsemu is a functional AArch64 (A64) user-mode emulator.
//
// For the full CLI, use: go run ./cmd/nsemu
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("nsemu - AArch64 user-mode emulator")
	fmt.Println("")
	fmt.Println("Usage: nsemu [options] <program.elf | image.bin>")
	fmt.Println("")
	fmt.Println("Options:")
	fmt.Println("  -raw       Treat the image as a flat binary")
	fmt.Println("  -base      Load address for raw images")
	fmt.Println("  -entry     Override the entry point")
	fmt.Println("  -config    Path to configuration JSON file")
	fmt.Println("  -max       Instruction budget (0 = unbounded)")
	fmt.Println("  -icache    Fetch through the instruction cache")
	fmt.Println("  -color     Colorize diagnostics")
	fmt.Println("  -v         Trace every instruction and print a summary")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/nsemu' for the full CLI.")
	fmt.Println("Run 'go run ./cmd/benchmark' for the built-in workloads.")

	if len(os.Args) > 1 {
		fmt.Println("\nNote: You provided arguments. Use 'go run ./cmd/nsemu' instead.")
	}
}

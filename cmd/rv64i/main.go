// Command rv64i loads a flat RV64I binary image into a simulated address
// space and runs it to completion (a fatal fault; this core has no halt
// instruction, per spec.md §9 note 6). The CLI, image loader, and host
// stdout sink are all external collaborators per spec.md §1 — this file
// is the only place that wires them to the core.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/elttil/r5/internal/monitor"
	"github.com/elttil/r5/pkg/cpu"
	"github.com/elttil/r5/pkg/device"
	"github.com/elttil/r5/pkg/loader"
	"github.com/elttil/r5/pkg/mmu"
)

// Reference configuration from spec.md §6.
const (
	defaultMemSize = 1 << 20 // 1 MiB
	defaultLoad    = 0x1000
	defaultEntry   = 0x1000
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("rv64i", flag.ContinueOnError)
	memSize := fs.Uint64("mem", defaultMemSize, "RAM size in bytes")
	load := fs.Uint64("load", defaultLoad, "byte offset to load the image at")
	entry := fs.Uint64("entry", defaultEntry, "initial program counter")
	useMonitor := fs.Bool("monitor", false, "attach an interactive host monitor (q: stop, d: dump registers)")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: rv64i [flags] <image-file>\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}
	image := fs.Arg(0)

	mem, err := mmu.New(*memSize)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rv64i: %v\n", err)
		return 1
	}

	uart := device.NewUART(os.Stdout)
	mem.MapDevice(mmu.UARTBase, mmu.UARTBase, nil, uart.HandleWrite)

	if _, err := loader.LoadFile(mem, image, *load); err != nil {
		fmt.Fprintf(os.Stderr, "rv64i: %v\n", err)
		return 1
	}

	engine := cpu.New(*entry)

	if *useMonitor {
		mon := monitor.New(engine, os.Stderr)
		if err := mon.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "rv64i: %v\n", err)
			return 1
		}
		defer mon.Stop()
	}

	runErr := engine.Run(mem)
	if runErr == cpu.ErrStopped {
		fmt.Fprintln(os.Stderr, "rv64i: stopped by monitor")
		return 0
	}

	fmt.Fprintf(os.Stderr, "rv64i: fatal fault: %v\n", runErr)
	fmt.Fprint(os.Stderr, engine.RegisterDump())
	return 1
}

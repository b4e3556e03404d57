// Command rfvd-probe opens a device description backend and prints its
// identity and BAR layout. It is a smoke-test harness, not part of the
// device core: a real host emulator realizes the device directly through
// internal/rfvd, never through this binary.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/tinyrange/rfvd/internal/backend"
	"github.com/tinyrange/rfvd/internal/pcihost"
	"github.com/tinyrange/rfvd/internal/rfvd"
	"github.com/tinyrange/rfvd/internal/rfvdcfg"
)

func run() error {
	configPath := flag.String("config", "", "path to a YAML config file (optional)")
	flag.Parse()

	if rfvdcfg.DebugEnabled() {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	descPath, err := rfvdcfg.BackendDescriptorPath()
	if err != nil {
		return err
	}
	libPath := rfvdcfg.BackendLibraryPath()

	ambient, err := rfvdcfg.Load(*configPath)
	if err != nil {
		return err
	}

	b, err := backend.Open(libPath, descPath)
	if err != nil {
		return fmt.Errorf("open backend: %w", err)
	}

	id := b.Identity()
	fmt.Printf("vid=%#04x pid=%#04x subvid=%#04x subpid=%#04x revision=%#02x class=%#06x\n",
		id.VID, id.PID, id.SubVID, id.SubPID, id.Revision, id.ClassID)
	if id.Name != "" {
		fmt.Printf("name: %s\n", id.Name)
	}
	if id.Desc != "" {
		fmt.Printf("desc: %s\n", id.Desc)
	}
	if id.ROM != "" {
		fmt.Printf("romfile: %s\n", id.ROM)
	}

	count, err := b.BARCount()
	if err != nil {
		return fmt.Errorf("bar_count: %w", err)
	}
	for i := 0; i < count; i++ {
		size, err := b.BARSize(i)
		if err != nil {
			return fmt.Errorf("bar_size(%d): %w", i, err)
		}
		if size == 0 {
			continue
		}
		kind, err := b.BARKind(i)
		if err != nil {
			return fmt.Errorf("bar_kind(%d): %w", i, err)
		}
		kindName := "PIO"
		if kind == backend.KindMMIO {
			kindName = "MMIO"
		}
		fmt.Printf("bar[%d]: %s %d bytes\n", i, kindName, size)
	}

	host := pcihost.NewEndpoint(1<<20, ambient.PCIExpress)
	dev := rfvd.New(b, rfvd.ConfigFromAmbient(ambient))
	if err := dev.Realize(host); err != nil {
		return fmt.Errorf("realize: %w", err)
	}
	defer dev.Exit()

	fmt.Println("realized against in-process demo host")
	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "rfvd-probe: %v\n", err)
		os.Exit(1)
	}
}

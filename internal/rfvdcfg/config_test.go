package rfvdcfg

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatchdogIntervalDefaultsWhenUnset(t *testing.T) {
	c := Config{}
	if got := c.WatchdogInterval(); got != time.Millisecond {
		t.Fatalf("expected default 1ms, got %v", got)
	}
	c.WatchdogIntervalMS = -5
	if got := c.WatchdogInterval(); got != time.Millisecond {
		t.Fatalf("expected default 1ms for a negative value, got %v", got)
	}
}

func TestWatchdogIntervalHonorsConfiguredValue(t *testing.T) {
	c := Config{WatchdogIntervalMS: 50}
	if got := c.WatchdogInterval(); got != 50*time.Millisecond {
		t.Fatalf("expected 50ms, got %v", got)
	}
}

func TestLoadEmptyPathReturnsDefault(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c != Default() {
		t.Fatalf("expected Default(), got %+v", c)
	}
}

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c != Default() {
		t.Fatalf("expected Default() for a missing file, got %+v", c)
	}
}

func TestLoadParsesYAMLOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rfvd.yaml")
	contents := "bar_prefix: custom\nwatchdog_interval_ms: 10\nexpose_msi: false\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.BARPrefix != "custom" {
		t.Fatalf("expected bar_prefix override, got %q", c.BARPrefix)
	}
	if c.WatchdogIntervalMS != 10 {
		t.Fatalf("expected watchdog_interval_ms override, got %d", c.WatchdogIntervalMS)
	}
	if c.ExposeMSI {
		t.Fatalf("expected expose_msi override to false")
	}
	// pci_express was absent from the fixture; Default()'s value survives
	// because Load unmarshals onto a pre-populated Config.
	if !c.PCIExpress {
		t.Fatalf("expected pci_express to keep its default of true")
	}
}

func TestBackendDescriptorPathRequiresEnv(t *testing.T) {
	t.Setenv(EnvBackendPath, "")
	if _, err := BackendDescriptorPath(); err == nil {
		t.Fatalf("expected an error when %s is unset", EnvBackendPath)
	}
	t.Setenv(EnvBackendPath, "/tmp/desc.yaml")
	got, err := BackendDescriptorPath()
	if err != nil {
		t.Fatalf("descriptor path: %v", err)
	}
	if got != "/tmp/desc.yaml" {
		t.Fatalf("expected /tmp/desc.yaml, got %q", got)
	}
}

func TestBackendLibraryPathFallsBackToDefault(t *testing.T) {
	t.Setenv(EnvBackendLibrary, "")
	if got := BackendLibraryPath(); got != defaultBackendLibrary {
		t.Fatalf("expected default library name, got %q", got)
	}
	t.Setenv(EnvBackendLibrary, "/opt/lib/custom.so")
	if got := BackendLibraryPath(); got != "/opt/lib/custom.so" {
		t.Fatalf("expected override, got %q", got)
	}
}

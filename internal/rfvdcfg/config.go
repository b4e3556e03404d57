// Package rfvdcfg holds the device's ambient configuration: the YAML file
// an operator may point a device instance at, and the EnvKnob helper used
// to read the device's environment variables.
package rfvdcfg

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variable names: one names the backend descriptor path, one
// toggles debug logging.
const (
	EnvBackendPath = "RFVD_BACKEND_PATH"
	EnvDebugLog    = "RFVD_DEBUG"

	// EnvBackendLibrary names the backend shared object to dlopen. The
	// upstream device was statically linked into its host process, so
	// there was nothing to locate at runtime; here the backend is a
	// separately-built shared object purego dlopen's.
	EnvBackendLibrary = "RFVD_BACKEND_LIB"

	defaultBackendLibrary = "librfvd_backend.so"
)

// Config is the realize-time tunable set, loadable from an optional YAML
// file.
type Config struct {
	BARPrefix          string `yaml:"bar_prefix"`
	WatchdogIntervalMS int    `yaml:"watchdog_interval_ms"`
	ExposeMSI          bool   `yaml:"expose_msi"`
	PCIExpress         bool   `yaml:"pci_express"`
}

// WatchdogInterval converts the configured millisecond value to a
// time.Duration, defaulting to a 1ms poll cadence when unset or
// non-positive.
func (c Config) WatchdogInterval() time.Duration {
	if c.WatchdogIntervalMS <= 0 {
		return time.Millisecond
	}
	return time.Duration(c.WatchdogIntervalMS) * time.Millisecond
}

// Default returns the tunable set a device realizes with when no YAML
// config file is given.
func Default() Config {
	return Config{
		BARPrefix:          "rfvd",
		WatchdogIntervalMS: 1,
		ExposeMSI:          true,
		PCIExpress:         true,
	}
}

// Load reads and parses a YAML config file. A missing path is not an
// error; it yields Default().
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return Config{}, fmt.Errorf("rfvdcfg: read %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("rfvdcfg: parse %s: %w", path, err)
	}
	return cfg, nil
}

// BackendLibraryPath resolves the shared object purego should dlopen,
// honoring an override and otherwise falling back to the conventional
// name resolved through the platform's normal dynamic-linker search path.
func BackendLibraryPath() string {
	knob := NewEnvKnob(EnvBackendLibrary)
	if knob.Present() {
		return knob.String()
	}
	return defaultBackendLibrary
}

// DebugEnabled reports the coerced value of the debug-logging knob.
func DebugEnabled() bool {
	return NewEnvKnob(EnvDebugLog).Bool()
}

// BackendDescriptorPath reads the backend descriptor path knob, returning
// an error if it is unset — class init cannot proceed without it.
func BackendDescriptorPath() (string, error) {
	knob := NewEnvKnob(EnvBackendPath)
	if !knob.Present() {
		return "", fmt.Errorf("rfvdcfg: %s is not set", EnvBackendPath)
	}
	return knob.String(), nil
}

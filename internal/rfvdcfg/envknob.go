package rfvdcfg

import (
	"fmt"
	"os"
	"strconv"
)

// EnvKnob reads a single environment variable once and exposes it through
// the same small set of coercions the original device's EnvKnob helper
// provided: presence, boolean, 16/32-bit integer, and raw string.
type EnvKnob struct {
	name    string
	value   string
	present bool
}

// NewEnvKnob reads name from the environment.
func NewEnvKnob(name string) EnvKnob {
	v, ok := os.LookupEnv(name)
	return EnvKnob{name: name, value: v, present: ok && v != ""}
}

// Present reports whether the variable was set to a non-empty value.
func (k EnvKnob) Present() bool {
	return k.present
}

// Bool coerces the value the way the original EnvKnob::isSet did: absent or
// empty is false, "true" is true, "false" or "0" is false, and any other
// non-empty value (including "1") is true.
func (k EnvKnob) Bool() bool {
	if !k.present {
		return false
	}
	switch k.value {
	case "true":
		return true
	case "false", "0":
		return false
	default:
		return true
	}
}

// Uint16 parses the value as a base-10 16-bit unsigned integer.
func (k EnvKnob) Uint16() (uint16, error) {
	if !k.present {
		return 0, fmt.Errorf("rfvdcfg: %s is not set", k.name)
	}
	v, err := strconv.ParseUint(k.value, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("rfvdcfg: parse %s=%q: %w", k.name, k.value, err)
	}
	return uint16(v), nil
}

// Uint32 parses the value as a base-10 32-bit unsigned integer.
func (k EnvKnob) Uint32() (uint32, error) {
	if !k.present {
		return 0, fmt.Errorf("rfvdcfg: %s is not set", k.name)
	}
	v, err := strconv.ParseUint(k.value, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("rfvdcfg: parse %s=%q: %w", k.name, k.value, err)
	}
	return uint32(v), nil
}

// String returns the raw value, or "" if unset.
func (k EnvKnob) String() string {
	return k.value
}

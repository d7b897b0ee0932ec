package env

import (
	"errors"
	"fmt"
	"strings"
)

// Mode is the execution mode a matrix targets. It decides which attributes
// every spec must carry.
type Mode int

// Execution modes.
const (
	BrowserMode Mode = iota
	DeviceMode
)

func (m Mode) String() string {
	switch m {
	case BrowserMode:
		return "browser"
	case DeviceMode:
		return "device"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode parses "browser" or "device". An empty string means BrowserMode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "browser":
		return BrowserMode, nil
	case "device":
		return DeviceMode, nil
	default:
		return 0, fmt.Errorf("unknown execution mode %q", s)
	}
}

// Required returns the attributes a spec must carry in this mode.
func (m Mode) Required() []string {
	switch m {
	case DeviceMode:
		return []string{DeviceName, PlatformName}
	default:
		return []string{PlatformName, BrowserName}
	}
}

// ConfigurationError reports a spec that lacks attributes required by the
// execution mode.
type ConfigurationError struct {
	Spec    Spec
	Mode    Mode
	Missing []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("environment %q: missing required %s mode attribute(s): %s",
		e.Spec.Key(), e.Mode, strings.Join(e.Missing, ", "))
}

// Matrix is the static, ordered list of environments to test against.
type Matrix struct {
	mode  Mode
	specs []Spec
}

// NewMatrix returns a matrix of specs in the given mode.
func NewMatrix(mode Mode, specs ...Spec) *Matrix {
	m := &Matrix{mode: mode, specs: make([]Spec, len(specs))}
	copy(m.specs, specs)
	return m
}

// Mode returns the execution mode of the matrix.
func (m *Matrix) Mode() Mode { return m.mode }

// Len returns the number of specs.
func (m *Matrix) Len() int { return len(m.specs) }

// Enumerate returns the specs in declaration order. Every call returns a
// fresh slice with the same contents.
func (m *Matrix) Enumerate() []Spec {
	specs := make([]Spec, len(m.specs))
	copy(specs, m.specs)
	return specs
}

// Validate checks spec against the attributes required by the matrix mode.
func (m *Matrix) Validate(spec Spec) error {
	var missing []string
	for _, name := range m.mode.Required() {
		if !spec.Has(name) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return &ConfigurationError{Spec: spec, Mode: m.mode, Missing: missing}
	}
	return nil
}

// ValidateAll validates every spec and joins the errors.
func (m *Matrix) ValidateAll() error {
	var errs []error
	for _, s := range m.specs {
		if err := m.Validate(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

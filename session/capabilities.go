package session

import (
	"fmt"
	"strings"

	"github.com/grafana/browsermatrix/api"
	"github.com/grafana/browsermatrix/env"
)

// Capability names added on top of the spec attributes.
const (
	CapName  = "name"
	CapBuild = "build"
)

// Device mode defaults, applied when the spec leaves them unset.
const (
	defaultDeviceOrientation = "portrait"
	defaultAppiumVersion     = "1.15.0"
)

// DisplayName returns the human readable name shown by the provider for a
// session running testName against spec.
func DisplayName(spec env.Spec, testName string, mode env.Mode) string {
	var name string
	switch mode {
	case env.DeviceMode:
		name = fmt.Sprintf("%s - %s: %s %s", testName,
			spec.Value(env.DeviceName), spec.Value(env.BrowserName), spec.Value(env.PlatformVersion))
	default:
		name = fmt.Sprintf("%s test - %s: %s %s", testName,
			spec.Value(env.PlatformName), spec.Value(env.BrowserName), spec.Value(env.BrowserVersion))
	}
	return strings.TrimSpace(name)
}

// Capabilities builds the descriptor sent to the provider: every spec
// attribute, device mode defaults, the display name and, when known, the run
// identifier as the build name.
func Capabilities(spec env.Spec, testName string, mode env.Mode, runID string) api.Capabilities {
	caps := make(api.Capabilities, spec.Len()+4)
	for _, a := range spec.Attrs() {
		if a.Value == "" {
			continue
		}
		caps[a.Name] = a.Value
	}
	if mode == env.DeviceMode {
		if _, ok := caps[env.DeviceOrientation]; !ok {
			caps[env.DeviceOrientation] = defaultDeviceOrientation
		}
		if _, ok := caps[env.AppiumVersion]; !ok {
			caps[env.AppiumVersion] = defaultAppiumVersion
		}
	}
	caps[CapName] = DisplayName(spec, testName, mode)
	if runID != "" {
		caps[CapBuild] = runID
	}
	return caps
}

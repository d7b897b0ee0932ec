// Package env describes the environments (platform, browser, device
// combinations) a test run fans out over.
package env

import (
	"fmt"
	"strings"
)

// Well-known attribute names.
const (
	PlatformName      = "platformName"
	PlatformVersion   = "platformVersion"
	BrowserName       = "browserName"
	BrowserVersion    = "browserVersion"
	DeviceName        = "deviceName"
	DeviceOrientation = "deviceOrientation"
	AppiumVersion     = "appiumVersion"
)

// Attr is one named attribute of an environment.
type Attr struct {
	Name  string
	Value string
}

// Spec is an ordered set of attributes identifying one execution lane.
// The zero value is an empty spec. A Spec is never mutated after creation.
type Spec struct {
	attrs []Attr
}

// NewSpec returns a spec holding a copy of attrs. A later attribute with the
// same name replaces the value of an earlier one but keeps its position.
func NewSpec(attrs ...Attr) Spec {
	s := Spec{attrs: make([]Attr, 0, len(attrs))}
	for _, a := range attrs {
		if i := s.index(a.Name); i >= 0 {
			s.attrs[i].Value = a.Value
			continue
		}
		s.attrs = append(s.attrs, a)
	}
	return s
}

// Pairs builds a spec from alternating names and values.
// It panics if given an odd number of arguments.
func Pairs(kv ...string) Spec {
	if len(kv)%2 != 0 {
		panic(fmt.Sprintf("env.Pairs: odd number of arguments: %d", len(kv)))
	}
	attrs := make([]Attr, 0, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		attrs = append(attrs, Attr{Name: kv[i], Value: kv[i+1]})
	}
	return NewSpec(attrs...)
}

func (s Spec) index(name string) int {
	for i, a := range s.attrs {
		if a.Name == name {
			return i
		}
	}
	return -1
}

// Get returns the value of the named attribute.
func (s Spec) Get(name string) (string, bool) {
	if i := s.index(name); i >= 0 {
		return s.attrs[i].Value, true
	}
	return "", false
}

// Value returns the value of the named attribute or "" if it is not set.
func (s Spec) Value(name string) string {
	v, _ := s.Get(name)
	return v
}

// Has reports whether the named attribute is set to a non-empty value.
func (s Spec) Has(name string) bool {
	return s.Value(name) != ""
}

// Attrs returns a copy of the attributes in declaration order.
func (s Spec) Attrs() []Attr {
	attrs := make([]Attr, len(s.attrs))
	copy(attrs, s.attrs)
	return attrs
}

// Len returns the number of attributes.
func (s Spec) Len() int { return len(s.attrs) }

// Key returns a stable identifier for the spec built from its attributes in
// declaration order, e.g. "platformName=Windows 10,browserName=chrome".
func (s Spec) Key() string {
	var sb strings.Builder
	for i, a := range s.attrs {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(a.Name)
		sb.WriteByte('=')
		sb.WriteString(a.Value)
	}
	return sb.String()
}

func (s Spec) String() string { return s.Key() }

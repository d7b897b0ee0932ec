package env

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

type matrixFile struct {
	Mode         string      `yaml:"mode"`
	Environments []yaml.Node `yaml:"environments"`
}

// LoadMatrix reads a YAML matrix document:
//
//	mode: browser
//	environments:
//	  - platformName: Windows 10
//	    browserName: chrome
//	    browserVersion: latest
//
// Attribute order within each environment is preserved.
func LoadMatrix(r io.Reader) (*Matrix, error) {
	var mf matrixFile
	if err := yaml.NewDecoder(r).Decode(&mf); err != nil {
		return nil, fmt.Errorf("decoding matrix: %w", err)
	}

	mode, err := ParseMode(mf.Mode)
	if err != nil {
		return nil, err
	}

	specs := make([]Spec, 0, len(mf.Environments))
	for i := range mf.Environments {
		s, err := specFromNode(&mf.Environments[i])
		if err != nil {
			return nil, fmt.Errorf("environment #%d: %w", i, err)
		}
		specs = append(specs, s)
	}

	return NewMatrix(mode, specs...), nil
}

// LoadMatrixFile reads a YAML matrix document from path on fs.
func LoadMatrixFile(fs afero.Fs, path string) (*Matrix, error) {
	f, err := fs.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("opening matrix file: %w", err)
	}
	defer func() { _ = f.Close() }()

	m, err := LoadMatrix(f)
	if err != nil {
		return nil, fmt.Errorf("loading matrix file %q: %w", path, err)
	}
	return m, nil
}

func specFromNode(n *yaml.Node) (Spec, error) {
	if n.Kind != yaml.MappingNode {
		return Spec{}, fmt.Errorf("line %d: expected a mapping of attributes", n.Line)
	}
	attrs := make([]Attr, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i], n.Content[i+1]
		if v.Kind != yaml.ScalarNode {
			return Spec{}, fmt.Errorf("line %d: attribute %q must be a scalar", v.Line, k.Value)
		}
		attrs = append(attrs, Attr{Name: k.Value, Value: v.Value})
	}
	return NewSpec(attrs...), nil
}

package plan

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// File is the on-disk plan format.
type File struct {
	Version    int          `yaml:"version"`
	Registry   string       `yaml:"registry,omitempty"`
	Proxy      *ProxyConfig `yaml:"proxy,omitempty"`
	Externals  Externals    `yaml:"externals,omitempty"`
	Components []Descriptor `yaml:"components"`
}

// External is an address supplied from outside the plan, such as a
// counterpart contract on another chain.
type External struct {
	Name    string
	Address common.Address
}

// Externals decodes from a YAML mapping and keeps its declared order.
type Externals []External

// UnmarshalYAML decodes a name: address mapping.
func (e *Externals) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("%w: line %d: externals must be a mapping", ErrInvalidPlan, value.Line)
	}

	out := make(Externals, 0, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		key, val := value.Content[i], value.Content[i+1]
		if val.Kind != yaml.ScalarNode || !common.IsHexAddress(val.Value) {
			return fmt.Errorf("%w: line %d: external %s: %q is not a valid address", ErrInvalidPlan, val.Line, key.Value, val.Value)
		}
		out = append(out, External{Name: key.Value, Address: common.HexToAddress(val.Value)})
	}
	*e = out
	return nil
}

// MarshalYAML encodes externals as an ordered mapping.
func (e Externals) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, ext := range e {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: ext.Name},
			&yaml.Node{Kind: yaml.ScalarNode, Value: ext.Address.Hex()},
		)
	}
	return node, nil
}

// Parse decodes a plan file. Unknown keys are rejected.
func Parse(data []byte) (*File, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty plan", ErrInvalidPlan)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}
	return &f, nil
}

// Load reads, parses and builds the plan at path.
func Load(path string, opts ...Option) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	p, err := Build(f, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

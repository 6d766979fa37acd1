package plan

import (
	"github.com/ethereum/go-ethereum/common"
)

// DefaultProxyArtifact is the proxy contract used for components marked proxy.
const DefaultProxyArtifact = "TransparentUpgradeableProxy"

// Descriptor describes one component of a deployment plan.
type Descriptor struct {
	// Name is the unique logical name of the component.
	Name string `yaml:"name"`
	// Artifact is the compiled contract to instantiate. Defaults to Name.
	Artifact string `yaml:"artifact,omitempty"`
	// Address binds the component to an existing deployment.
	Address string `yaml:"address,omitempty"`
	// Proxy deploys the component behind a transparent proxy.
	Proxy bool `yaml:"proxy,omitempty"`
	// Constructor arguments. References here are instantiation dependencies.
	Constructor []Arg `yaml:"constructor,omitempty"`
	// Initializer is called once every component is registered.
	Initializer *Initializer `yaml:"initialize,omitempty"`
	// Register controls whether the component is written to the registry.
	Register *bool `yaml:"register,omitempty"`
	// RegistryName is the registry key. Defaults to Name.
	RegistryName string `yaml:"registry_name,omitempty"`
}

// Initializer is the post-registration setup call of a component.
type Initializer struct {
	Method string `yaml:"method"`
	Args   []Arg  `yaml:"args,omitempty"`
	// Needs lists names whose addresses must be bound. References in Args
	// are added implicitly.
	Needs []string `yaml:"needs,omitempty"`
	// After lists components whose initializer must confirm first.
	After []string `yaml:"after,omitempty"`
}

// ArtifactName returns the compiled contract name.
func (d *Descriptor) ArtifactName() string {
	if d.Artifact != "" {
		return d.Artifact
	}
	return d.Name
}

// PreexistingAddress returns the explicit address, if any.
func (d *Descriptor) PreexistingAddress() (common.Address, bool) {
	if d.Address == "" {
		return common.Address{}, false
	}
	return common.HexToAddress(d.Address), true
}

// Registered reports whether the component is written to the registry.
func (d *Descriptor) Registered() bool {
	return d.Register == nil || *d.Register
}

// RegistryKey returns the name the component is registered under.
func (d *Descriptor) RegistryKey() string {
	if d.RegistryName != "" {
		return d.RegistryName
	}
	return d.Name
}

// HasInitializer reports whether the component has a setup call.
func (d *Descriptor) HasInitializer() bool {
	return d.Initializer != nil
}

// ConstructorRefs returns the names referenced by constructor arguments.
func (d *Descriptor) ConstructorRefs() []string {
	return refs(d.Constructor)
}

// InitNeeds returns every name that must have an address before the
// initializer is submitted.
func (d *Descriptor) InitNeeds() []string {
	if d.Initializer == nil {
		return nil
	}
	return dedup(append(append([]string{}, d.Initializer.Needs...), refs(d.Initializer.Args)...))
}

// InitAfter returns the components whose initializer must confirm first.
func (d *Descriptor) InitAfter() []string {
	if d.Initializer == nil {
		return nil
	}
	return dedup(d.Initializer.After)
}

func (d *Descriptor) clone() *Descriptor {
	c := *d
	c.Constructor = append([]Arg(nil), d.Constructor...)
	if d.Initializer != nil {
		init := *d.Initializer
		init.Args = append([]Arg(nil), d.Initializer.Args...)
		init.Needs = append([]string(nil), d.Initializer.Needs...)
		init.After = append([]string(nil), d.Initializer.After...)
		c.Initializer = &init
	}
	if d.Register != nil {
		r := *d.Register
		c.Register = &r
	}
	return &c
}

func refs(args []Arg) []string {
	var names []string
	for _, a := range args {
		names = append(names, a.Refs()...)
	}
	return dedup(names)
}

func dedup(names []string) []string {
	if len(names) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

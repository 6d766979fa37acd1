// Package plan models a deployment plan: the components to provision, their
// tagged arguments, and the two orderings the orchestrator follows. The
// instantiation order is a DAG over constructor references. Initializer
// ordering is tracked separately so a component may need another's address
// long before that other component is initialized.
package plan

import (
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ProxyConfig configures how proxied components are deployed.
type ProxyConfig struct {
	// Artifact is the proxy contract. Defaults to DefaultProxyArtifact.
	Artifact string `yaml:"artifact,omitempty"`
	// Admin is the proxy admin: a reference to a plan component or a literal
	// address. Unset means the deploying account.
	Admin Arg `yaml:"admin,omitempty"`
}

// ArtifactName returns the proxy contract name.
func (c *ProxyConfig) ArtifactName() string {
	if c == nil || c.Artifact == "" {
		return DefaultProxyArtifact
	}
	return c.Artifact
}

// Option configures Build.
type Option func(*buildOptions)

type buildOptions struct {
	lookupEnv func(string) (string, bool)
}

// WithEnv overrides how {env: VAR} arguments are read.
func WithEnv(lookup func(string) (string, bool)) Option {
	return func(o *buildOptions) {
		o.lookupEnv = lookup
	}
}

// Plan is a validated, immutable deployment plan.
type Plan struct {
	order     []*Descriptor
	byName    map[string]*Descriptor
	deps      dependencyGraph
	initOrder []*Descriptor
	externals []External
	registry  string
	proxy     *ProxyConfig
}

// Build validates a plan file and computes its orderings. Missing
// references fail with ErrDependencyUnresolved and cycles with
// ErrDependencyCycle, before anything touches a chain.
func Build(f *File, opts ...Option) (*Plan, error) {
	o := buildOptions{lookupEnv: os.LookupEnv}
	for _, opt := range opts {
		opt(&o)
	}

	if f == nil {
		return nil, fmt.Errorf("%w: nil plan", ErrInvalidPlan)
	}
	if f.Version > 1 {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidPlan, f.Version)
	}
	if len(f.Components) == 0 {
		return nil, fmt.Errorf("%w: no components", ErrInvalidPlan)
	}

	p := &Plan{
		byName:    make(map[string]*Descriptor, len(f.Components)),
		deps:      make(dependencyGraph, len(f.Components)),
		externals: append([]External(nil), f.Externals...),
		registry:  f.Registry,
	}

	externals := make(map[string]bool, len(f.Externals))
	addresses := make(map[common.Address]string)
	for _, ext := range f.Externals {
		if err := validateName(ext.Name); err != nil {
			return nil, fmt.Errorf("external %q: %w", ext.Name, err)
		}
		if externals[ext.Name] {
			return nil, fmt.Errorf("%w: duplicate external %s", ErrInvalidPlan, ext.Name)
		}
		externals[ext.Name] = true
	}

	declared := make([]string, 0, len(f.Components))
	for i := range f.Components {
		d := f.Components[i].clone()
		if err := validateName(d.Name); err != nil {
			return nil, fmt.Errorf("component %d: %w", i, err)
		}
		if _, dup := p.byName[d.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate component %s", ErrInvalidPlan, d.Name)
		}
		if externals[d.Name] {
			return nil, fmt.Errorf("%w: %s is declared as both component and external", ErrInvalidPlan, d.Name)
		}
		if d.Address != "" {
			if !common.IsHexAddress(d.Address) {
				return nil, fmt.Errorf("%w: %s: address %q is not a valid address", ErrInvalidPlan, d.Name, d.Address)
			}
			addr := common.HexToAddress(d.Address)
			if other, ok := addresses[addr]; ok {
				return nil, fmt.Errorf("%w: %s and %s share address %s", ErrInvalidPlan, other, d.Name, addr.Hex())
			}
			addresses[addr] = d.Name
		}
		if d.Initializer != nil && strings.TrimSpace(d.Initializer.Method) == "" {
			return nil, fmt.Errorf("%w: %s: initializer method is required", ErrInvalidPlan, d.Name)
		}
		if err := d.expandEnv(o.lookupEnv); err != nil {
			return nil, fmt.Errorf("component %s: %w", d.Name, err)
		}
		p.byName[d.Name] = d
		declared = append(declared, d.Name)
	}

	if f.Proxy != nil {
		proxy := *f.Proxy
		admin, err := proxy.Admin.expandEnv(o.lookupEnv)
		if err != nil {
			return nil, fmt.Errorf("proxy admin: %w", err)
		}
		proxy.Admin = admin
		p.proxy = &proxy
	}

	if err := p.checkRegistry(declared, externals); err != nil {
		return nil, err
	}

	known := func(name string) bool {
		_, ok := p.byName[name]
		return ok || externals[name]
	}

	var adminRef string
	if p.proxy != nil {
		if name, ok := p.proxy.Admin.RefName(); ok {
			if !known(name) {
				return nil, fmt.Errorf("%w: proxy admin references unknown component %s", ErrDependencyUnresolved, name)
			}
			adminRef = name
		}
	}

	for _, name := range declared {
		d := p.byName[name]
		var deps []string
		for _, ref := range d.ConstructorRefs() {
			if !known(ref) {
				return nil, fmt.Errorf("%w: %s: constructor references unknown component %s", ErrDependencyUnresolved, d.Name, ref)
			}
			if !externals[ref] {
				deps = append(deps, ref)
			}
		}
		if d.Proxy && adminRef != "" && !externals[adminRef] {
			deps = append(deps, adminRef)
		}
		p.deps[d.Name] = dedup(deps)

		for _, need := range d.InitNeeds() {
			if !known(need) {
				return nil, fmt.Errorf("%w: %s: initializer needs unknown component %s", ErrDependencyUnresolved, d.Name, need)
			}
		}
		for _, after := range d.InitAfter() {
			dep, ok := p.byName[after]
			if !ok {
				return nil, fmt.Errorf("%w: %s: initializer runs after unknown component %s", ErrDependencyUnresolved, d.Name, after)
			}
			if !dep.HasInitializer() {
				return nil, fmt.Errorf("%w: %s: initializer runs after %s, which has no initializer", ErrInvalidPlan, d.Name, after)
			}
		}
	}

	order, err := stableTopoSort(declared, p.deps)
	if err != nil {
		return nil, fmt.Errorf("instantiation order: %w", err)
	}
	for _, name := range order {
		p.order = append(p.order, p.byName[name])
	}

	if err := p.buildInitOrder(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Plan) checkRegistry(declared []string, externals map[string]bool) error {
	if p.registry == "" {
		return nil
	}
	if _, ok := p.byName[p.registry]; !ok {
		if externals[p.registry] {
			return fmt.Errorf("%w: registry %s must be a component, not an external", ErrInvalidPlan, p.registry)
		}
		return fmt.Errorf("%w: registry %s is not a component", ErrDependencyUnresolved, p.registry)
	}

	keys := make(map[string]string)
	claim := func(key, owner string) error {
		if other, ok := keys[key]; ok {
			return fmt.Errorf("%w: %s and %s both register as %s", ErrInvalidPlan, other, owner, key)
		}
		keys[key] = owner
		return nil
	}
	for _, name := range declared {
		d := p.byName[name]
		if d.Name == p.registry || !d.Registered() {
			continue
		}
		if err := claim(d.RegistryKey(), d.Name); err != nil {
			return err
		}
	}
	for _, ext := range p.externals {
		if err := claim(ext.Name, ext.Name); err != nil {
			return err
		}
	}
	return nil
}

func (p *Plan) buildInitOrder() error {
	var names []string
	graph := make(dependencyGraph)
	for _, d := range p.order {
		if !d.HasInitializer() {
			continue
		}
		names = append(names, d.Name)
		graph[d.Name] = d.InitAfter()
	}

	order, err := stableTopoSort(names, graph)
	if err != nil {
		return fmt.Errorf("initializer order: %w", err)
	}
	for _, name := range order {
		p.initOrder = append(p.initOrder, p.byName[name])
	}
	return nil
}

func (d *Descriptor) expandEnv(lookupEnv func(string) (string, bool)) error {
	for i, a := range d.Constructor {
		v, err := a.expandEnv(lookupEnv)
		if err != nil {
			return fmt.Errorf("constructor argument %d: %w", i, err)
		}
		d.Constructor[i] = v
	}
	if d.Initializer == nil {
		return nil
	}
	for i, a := range d.Initializer.Args {
		v, err := a.expandEnv(lookupEnv)
		if err != nil {
			return fmt.Errorf("initializer argument %d: %w", i, err)
		}
		d.Initializer.Args[i] = v
	}
	return nil
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidPlan)
	}
	if strings.TrimSpace(name) != name {
		return fmt.Errorf("%w: name %q has surrounding whitespace", ErrInvalidPlan, name)
	}
	return nil
}

// Descriptors returns the components in instantiation order. Callers must
// not modify them.
func (p *Plan) Descriptors() []*Descriptor {
	return append([]*Descriptor(nil), p.order...)
}

// Descriptor returns the named component.
func (p *Plan) Descriptor(name string) (*Descriptor, bool) {
	d, ok := p.byName[name]
	return d, ok
}

// Len returns the number of components.
func (p *Plan) Len() int {
	return len(p.order)
}

// Dependencies returns the components whose addresses name's constructor
// needs.
func (p *Plan) Dependencies(name string) []string {
	return append([]string(nil), p.deps[name]...)
}

// Initializers returns the components with an initializer, ordered so every
// "after" dependency comes first.
func (p *Plan) Initializers() []*Descriptor {
	return append([]*Descriptor(nil), p.initOrder...)
}

// Externals returns the externally supplied addresses in declared order.
func (p *Plan) Externals() []External {
	return append([]External(nil), p.externals...)
}

// External returns the address of an externally supplied name.
func (p *Plan) External(name string) (common.Address, bool) {
	for _, ext := range p.externals {
		if ext.Name == name {
			return ext.Address, true
		}
	}
	return common.Address{}, false
}

// Registry returns the registry component, if the plan names one.
func (p *Plan) Registry() (*Descriptor, bool) {
	if p.registry == "" {
		return nil, false
	}
	d, ok := p.byName[p.registry]
	return d, ok
}

// Proxy returns the proxy settings, or nil if none were given.
func (p *Plan) Proxy() *ProxyConfig {
	return p.proxy
}

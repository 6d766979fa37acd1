package deploy

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Bidon15/rollupctl/internal/manifest"
	"github.com/Bidon15/rollupctl/internal/plan"
)

// Source records how a component got its address.
type Source string

const (
	SourceManifest     Source = "manifest"
	SourcePreexisting  Source = "preexisting"
	SourceJournal      Source = "journal"
	SourceInstantiated Source = "instantiated"
	SourceExternal     Source = "external"
)

// Instance is a component bound to an address during a run.
type Instance struct {
	Name    string
	Address common.Address
	Source  Source

	InstantiationTx  *common.Hash
	Implementation   *common.Address
	ImplementationTx *common.Hash
	InitializationTx *common.Hash

	// Initialized is set once the initializer confirmed, in this run or an
	// earlier one, or when the component is known to be provisioned.
	Initialized bool
}

// WorkingSet holds the components bound so far. It is safe for concurrent
// use.
type WorkingSet struct {
	mu    sync.RWMutex
	order []string
	bound map[string]*Instance
}

// NewWorkingSet returns an empty working set.
func NewWorkingSet() *WorkingSet {
	return &WorkingSet{bound: make(map[string]*Instance)}
}

// Bind records inst. Rebinding a name replaces it in place.
func (w *WorkingSet) Bind(inst *Instance) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.bound[inst.Name]; !ok {
		w.order = append(w.order, inst.Name)
	}
	c := *inst
	w.bound[inst.Name] = &c
}

// Get returns a copy of the named instance.
func (w *WorkingSet) Get(name string) (Instance, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	inst, ok := w.bound[name]
	if !ok {
		return Instance{}, false
	}
	return *inst, true
}

// Lookup returns the address bound to name. It satisfies plan.Lookup.
func (w *WorkingSet) Lookup(name string) (common.Address, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	inst, ok := w.bound[name]
	if !ok {
		return common.Address{}, false
	}
	return inst.Address, true
}

// MarkInitialized records a confirmed initializer.
func (w *WorkingSet) MarkInitialized(name string, hash common.Hash) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if inst, ok := w.bound[name]; ok {
		inst.Initialized = true
		inst.InitializationTx = &hash
	}
}

// Instances returns copies of every bound instance in bind order.
func (w *WorkingSet) Instances() []Instance {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]Instance, 0, len(w.order))
	for _, name := range w.order {
		out = append(out, *w.bound[name])
	}
	return out
}

// Len returns the number of bound names.
func (w *WorkingSet) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.order)
}

// Manifest assembles the manifest for p: prior entries keep their order,
// bound components follow in plan order, and externals are merged last.
func (w *WorkingSet) Manifest(p *plan.Plan, prior *manifest.Manifest) *manifest.Manifest {
	out := manifest.New()
	out.Merge(prior)
	for _, d := range p.Descriptors() {
		addr, ok := w.Lookup(d.Name)
		if !ok {
			continue
		}
		if _, seen := out.Get(d.Name); !seen {
			out.SetAddress(d.Name, addr)
		}
	}
	for _, ext := range p.Externals() {
		out.SetAddress(ext.Name, ext.Address)
	}
	return out
}

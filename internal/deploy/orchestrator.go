// Package deploy drives a deployment plan against a chain. A run binds every
// component to an address, registers the bound addresses, then initializes
// the components, and finally persists the resulting manifest.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Bidon15/rollupctl/internal/chain"
	"github.com/Bidon15/rollupctl/internal/component"
	"github.com/Bidon15/rollupctl/internal/journal"
	"github.com/Bidon15/rollupctl/internal/manifest"
	"github.com/Bidon15/rollupctl/internal/metrics"
	"github.com/Bidon15/rollupctl/internal/plan"
	"github.com/Bidon15/rollupctl/internal/registry"
)

// Mode selects how unbound components are treated.
type Mode string

const (
	// ModeDeploy instantiates every component that has no address yet.
	ModeDeploy Mode = "deploy"
	// ModeAttach requires every component to already have an address.
	ModeAttach Mode = "attach"
)

// Progress is one completed step of a run.
type Progress struct {
	Phase   Phase
	Name    string
	Action  string
	Address common.Address
	TxHash  common.Hash
}

// ProgressFunc is called after each completed step. Calls never overlap.
type ProgressFunc func(Progress)

// CodeReader reads the code deployed at an address. *ethclient.Client
// satisfies it.
type CodeReader interface {
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
}

// RegistryOpener wraps a bound registry component.
type RegistryOpener func(inst component.Instance, logger *slog.Logger) (*registry.Registry, error)

// Config configures an Orchestrator.
type Config struct {
	Logger *slog.Logger
	Mode   Mode
	// Parallelism bounds concurrent instantiations. Values below 2 run
	// strictly in plan order.
	Parallelism int
	// ChainID scopes journal records.
	ChainID int64
	// Journal records runs and instances. Defaults to an in-memory journal.
	Journal journal.Repository
	// Store persists the final manifest. Nil skips persisting.
	Store      manifest.Store
	Metrics    *metrics.Recorder
	OnProgress ProgressFunc
	// OpenRegistry defaults to registry.New.
	OpenRegistry RegistryOpener
	// Code is asked whether recorded addresses still hold code before they
	// are bound. Nil skips the check.
	Code CodeReader
}

// Orchestrator runs deployment plans.
type Orchestrator struct {
	factory component.Factory
	config  Config
	logger  *slog.Logger
}

// New creates an orchestrator that instantiates components through factory.
func New(factory component.Factory, config Config) *Orchestrator {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if config.Mode == "" {
		config.Mode = ModeDeploy
	}
	if config.Parallelism < 1 {
		config.Parallelism = 1
	}
	if config.Journal == nil {
		config.Journal = journal.NewMemory()
	}
	if config.OpenRegistry == nil {
		config.OpenRegistry = registry.New
	}
	return &Orchestrator{factory: factory, config: config, logger: logger}
}

// run is the state of one Run call.
type run struct {
	o     *Orchestrator
	plan  *plan.Plan
	prior *manifest.Manifest
	ws    *WorkingSet
	id    uuid.UUID
	phase Phase

	// records are the journal entries found for plan components at start.
	records map[string]*journal.Instance
	// implementations are proxy implementations confirmed by an earlier run
	// whose proxy deploy failed.
	implementations map[string]common.Address

	progressed atomic.Bool
	progressMu sync.Mutex
}

// Run executes p. prior is the manifest of an earlier run, or nil. On
// success the final manifest is returned and saved to the store. On failure
// the error is an *Error carrying a partial manifest.
func (o *Orchestrator) Run(ctx context.Context, p *plan.Plan, prior *manifest.Manifest) (*manifest.Manifest, error) {
	if prior == nil {
		prior = manifest.New()
	}
	r := &run{
		o:               o,
		plan:            p,
		prior:           prior,
		ws:              NewWorkingSet(),
		records:         make(map[string]*journal.Instance),
		implementations: make(map[string]common.Address),
	}

	rec := &journal.Run{Mode: string(o.config.Mode), ChainID: o.config.ChainID}
	if err := o.config.Journal.CreateRun(ctx, rec); err != nil {
		return nil, r.fail(ManifestIOFailure, "", fmt.Errorf("create run: %w", err))
	}
	r.id = rec.ID

	o.logger.Info("starting run",
		slog.String("run_id", r.id.String()),
		slog.String("mode", string(o.config.Mode)),
		slog.Int("components", p.Len()),
		slog.Int("parallelism", o.config.Parallelism),
	)

	out, err := r.execute(ctx)
	if err != nil {
		r.markFailed(ctx, err)
		return nil, err
	}

	if err := o.config.Journal.UpdateRunStatus(ctx, r.id, journal.StatusCompleted, nil); err != nil {
		o.logger.Error("failed to mark run completed",
			slog.String("run_id", r.id.String()),
			slog.String("error", err.Error()),
		)
	}
	o.config.Metrics.Run(string(o.config.Mode), string(journal.StatusCompleted))
	o.logger.Info("run completed",
		slog.String("run_id", r.id.String()),
		slog.Int("manifest_entries", out.Len()),
	)
	return out, nil
}

func (r *run) execute(ctx context.Context) (*manifest.Manifest, error) {
	if err := r.prepare(ctx); err != nil {
		return nil, err
	}

	steps := []struct {
		phase Phase
		fn    func(context.Context) error
	}{
		{PhaseResolve, r.resolve},
		{PhaseRegister, r.register},
		{PhaseInitialize, r.initialize},
	}
	for _, step := range steps {
		if err := r.enter(ctx, step.phase); err != nil {
			return nil, err
		}
		start := time.Now()
		if err := step.fn(ctx); err != nil {
			return nil, err
		}
		r.o.config.Metrics.Phase(string(step.phase), time.Since(start))
	}

	if err := r.enter(ctx, PhasePersist); err != nil {
		return nil, err
	}
	return r.persist(ctx)
}

// prepare loads journal state and runs every check that must pass before a
// transaction is sent.
func (r *run) prepare(ctx context.Context) error {
	r.phase = PhaseResolve
	cfg := r.o.config

	owners := make(map[common.Address]string)
	for _, d := range r.plan.Descriptors() {
		addr, ok := r.prior.Address(d.Name)
		if !ok {
			continue
		}
		if other, dup := owners[addr]; dup {
			return r.fail(ManifestIOFailure, d.Name,
				fmt.Errorf("prior manifest maps both %s and %s to %s", other, d.Name, addr.Hex()))
		}
		owners[addr] = d.Name
	}

	for _, d := range r.plan.Descriptors() {
		addr, ok := r.prior.Address(d.Name)
		origin := "manifest"
		if !ok {
			if addr, ok = d.PreexistingAddress(); !ok {
				continue
			}
			origin = "plan"
		}
		live, err := r.hasCode(ctx, addr)
		if err != nil {
			return r.fail(DependencyUnresolved, d.Name, err)
		}
		if !live {
			return r.fail(DependencyUnresolved, d.Name,
				fmt.Errorf("%s address %s of %s has no code", origin, addr.Hex(), d.Name))
		}
	}

	for _, d := range r.plan.Descriptors() {
		rec, err := cfg.Journal.GetInstance(ctx, cfg.ChainID, d.Name)
		if err != nil {
			return r.fail(ManifestIOFailure, d.Name, fmt.Errorf("read journal: %w", err))
		}
		if rec == nil {
			continue
		}
		if err := r.loadRecord(ctx, d, rec); err != nil {
			return err
		}
	}

	if cfg.Mode == ModeAttach {
		var missing []string
		for _, d := range r.plan.Descriptors() {
			if !r.bindable(d) {
				missing = append(missing, d.Name)
			}
		}
		if len(missing) > 0 {
			return r.fail(DependencyUnresolved, missing[0],
				fmt.Errorf("attach mode has no address for %s", strings.Join(missing, ", ")))
		}
	}

	for _, ext := range r.plan.Externals() {
		r.ws.Bind(&Instance{Name: ext.Name, Address: ext.Address, Source: SourceExternal})
	}
	return nil
}

// loadRecord keeps rec for resolution when the addresses it names still
// hold code.
func (r *run) loadRecord(ctx context.Context, d *plan.Descriptor, rec *journal.Instance) error {
	if common.IsHexAddress(rec.Address) {
		addr := common.HexToAddress(rec.Address)
		live, err := r.hasCode(ctx, addr)
		if err != nil {
			return r.fail(DependencyUnresolved, d.Name, err)
		}
		if !live {
			r.o.logger.Warn("ignoring journal record without code",
				slog.String("name", d.Name),
				slog.String("address", addr.Hex()),
			)
			return nil
		}
		r.records[d.Name] = rec
		return nil
	}

	if !d.Proxy || rec.Implementation == nil || !common.IsHexAddress(*rec.Implementation) {
		return nil
	}
	impl := common.HexToAddress(*rec.Implementation)
	live, err := r.hasCode(ctx, impl)
	if err != nil {
		return r.fail(DependencyUnresolved, d.Name, err)
	}
	if live {
		r.implementations[d.Name] = impl
	}
	return nil
}

// hasCode reports whether addr holds code. Without a CodeReader every
// address does.
func (r *run) hasCode(ctx context.Context, addr common.Address) (bool, error) {
	if r.o.config.Code == nil {
		return true, nil
	}
	code, err := r.o.config.Code.CodeAt(ctx, addr, nil)
	if err != nil {
		return false, fmt.Errorf("read code at %s: %w", addr.Hex(), err)
	}
	return len(code) > 0, nil
}

func (r *run) bindable(d *plan.Descriptor) bool {
	if _, ok := r.prior.Address(d.Name); ok {
		return true
	}
	if _, ok := d.PreexistingAddress(); ok {
		return true
	}
	_, ok := r.records[d.Name]
	return ok
}

func (r *run) enter(ctx context.Context, phase Phase) error {
	r.phase = phase
	name := string(phase)
	if err := r.o.config.Journal.UpdateRunStatus(ctx, r.id, journal.StatusRunning, &name); err != nil {
		return r.fail(ManifestIOFailure, "", fmt.Errorf("update run: %w", err))
	}
	r.o.logger.Debug("entering phase",
		slog.String("run_id", r.id.String()),
		slog.String("phase", name),
	)
	return nil
}

// resolve binds every descriptor, instantiating those without an address.
func (r *run) resolve(ctx context.Context) error {
	descriptors := r.plan.Descriptors()
	if r.o.config.Parallelism <= 1 {
		for _, d := range descriptors {
			if err := r.resolveOne(ctx, d); err != nil {
				return err
			}
		}
		return nil
	}

	type node struct {
		done chan struct{}
		ok   bool
	}
	nodes := make(map[string]*node, len(descriptors))
	for _, d := range descriptors {
		nodes[d.Name] = &node{done: make(chan struct{})}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.o.config.Parallelism)
	for _, d := range descriptors {
		g.Go(func() error {
			n := nodes[d.Name]
			defer close(n.done)
			for _, dep := range r.plan.Dependencies(d.Name) {
				depNode := nodes[dep]
				select {
				case <-depNode.done:
				case <-gctx.Done():
					return gctx.Err()
				}
				if !depNode.ok {
					// The dependency's own error fails the group.
					return nil
				}
			}
			if err := r.resolveOne(gctx, d); err != nil {
				return err
			}
			n.ok = true
			return nil
		})
	}
	err := g.Wait()
	var de *Error
	if err != nil && !errors.As(err, &de) {
		return r.fail(InstantiationFailure, "", err)
	}
	return err
}

func (r *run) resolveOne(ctx context.Context, d *plan.Descriptor) error {
	if addr, ok := r.prior.Address(d.Name); ok {
		inst := r.fromRecord(d.Name, addr, SourceManifest)
		_, journaled := r.matchingRecord(d.Name, addr)
		if !journaled && !r.prior.Partial() && r.o.config.Mode == ModeDeploy {
			// Stored manifests are only written by successful runs.
			inst.Initialized = true
		}
		return r.bind(ctx, inst)
	}
	if addr, ok := d.PreexistingAddress(); ok {
		return r.bind(ctx, r.fromRecord(d.Name, addr, SourcePreexisting))
	}
	if rec, ok := r.records[d.Name]; ok {
		return r.bind(ctx, r.fromRecord(d.Name, common.HexToAddress(rec.Address), SourceJournal))
	}
	return r.instantiate(ctx, d)
}

// fromRecord builds an instance for addr, carrying over journal state
// recorded for the same address.
func (r *run) fromRecord(name string, addr common.Address, source Source) *Instance {
	inst := &Instance{Name: name, Address: addr, Source: source}
	rec, ok := r.matchingRecord(name, addr)
	if !ok {
		return inst
	}
	inst.Initialized = rec.Initialized
	inst.InstantiationTx = hashPtr(rec.InstantiationTx)
	inst.InitializationTx = hashPtr(rec.InitializationTx)
	if rec.Implementation != nil && common.IsHexAddress(*rec.Implementation) {
		impl := common.HexToAddress(*rec.Implementation)
		inst.Implementation = &impl
	}
	return inst
}

func (r *run) matchingRecord(name string, addr common.Address) (*journal.Instance, bool) {
	rec, ok := r.records[name]
	if !ok || common.HexToAddress(rec.Address) != addr {
		return nil, false
	}
	return rec, true
}

func (r *run) instantiate(ctx context.Context, d *plan.Descriptor) error {
	args, err := plan.Values(d.Constructor, r.ws.Lookup)
	if err != nil {
		return r.fail(kindOf(err, InstantiationFailure), d.Name, fmt.Errorf("constructor: %w", err))
	}
	req := component.Request{Args: args}
	if d.Proxy {
		admin, err := r.proxyAdmin()
		if err != nil {
			return r.fail(kindOf(err, InstantiationFailure), d.Name, err)
		}
		req.ProxyAdmin = admin
		if impl, ok := r.implementations[d.Name]; ok {
			req.Implementation = &impl
		}
	}

	h, err := r.o.factory.Handle(d)
	if err != nil {
		return r.fail(InstantiationFailure, d.Name, err)
	}

	r.o.logger.Info("instantiating component",
		slog.String("name", d.Name),
		slog.String("artifact", d.ArtifactName()),
		slog.Bool("proxy", d.Proxy),
	)
	out, err := h.Instantiate(ctx, req)
	if err != nil {
		if out != nil && out.Implementation != nil && req.Implementation == nil {
			r.keepImplementation(ctx, d.Name, out)
		}
		return r.failTx(InstantiationFailure, d.Name, err)
	}
	r.progressed.Store(true)

	inst := &Instance{
		Name:            d.Name,
		Address:         out.Address,
		Source:          SourceInstantiated,
		InstantiationTx: &out.TxHash,
		Implementation:  out.Implementation,
	}
	if out.Implementation != nil && out.ImplementationTx != (common.Hash{}) {
		implTx := out.ImplementationTx
		inst.ImplementationTx = &implTx
		if err := r.recordTx(ctx, d.Name, "implement", implTx); err != nil {
			return err
		}
	}
	if err := r.recordTx(ctx, d.Name, string(PhaseResolve), out.TxHash); err != nil {
		return err
	}
	return r.bind(ctx, inst)
}

// keepImplementation journals the implementation of a component whose proxy
// failed to deploy, so the next run deploys only the proxy. Journal errors
// are logged so the deploy failure is what the caller sees.
func (r *run) keepImplementation(ctx context.Context, name string, out *component.Instantiation) {
	r.progressed.Store(true)
	r.o.config.Metrics.Transaction("implement")
	err := r.o.config.Journal.RecordTransaction(ctx, &journal.Transaction{
		RunID: r.id, Component: name, Phase: "implement", Hash: out.ImplementationTx.Hex(),
	})
	if err == nil {
		err = r.o.config.Journal.UpsertInstance(ctx, &journal.Instance{
			ChainID:        r.o.config.ChainID,
			Name:           name,
			Implementation: addrString(out.Implementation),
			RunID:          r.id,
		})
	}
	if err != nil {
		r.o.logger.Error("failed to record implementation",
			slog.String("name", name),
			slog.String("implementation", out.Implementation.Hex()),
			slog.String("error", err.Error()),
		)
	}
}

// proxyAdmin resolves the configured proxy admin. Nil means the deployer.
func (r *run) proxyAdmin() (*common.Address, error) {
	cfg := r.plan.Proxy()
	if cfg == nil || cfg.Admin.IsZero() {
		return nil, nil
	}
	v, err := cfg.Admin.Value(r.ws.Lookup)
	if err != nil {
		return nil, fmt.Errorf("proxy admin: %w", err)
	}
	switch a := v.(type) {
	case common.Address:
		return &a, nil
	case string:
		if common.IsHexAddress(a) {
			addr := common.HexToAddress(a)
			return &addr, nil
		}
	}
	return nil, fmt.Errorf("proxy admin: %s is not an address", cfg.Admin)
}

func (r *run) bind(ctx context.Context, inst *Instance) error {
	rec := &journal.Instance{
		ChainID:          r.o.config.ChainID,
		Name:             inst.Name,
		Address:          inst.Address.Hex(),
		Implementation:   addrString(inst.Implementation),
		InstantiationTx:  hashString(inst.InstantiationTx),
		InitializationTx: hashString(inst.InitializationTx),
		Initialized:      inst.Initialized,
		RunID:            r.id,
	}
	if err := r.o.config.Journal.UpsertInstance(ctx, rec); err != nil {
		return r.fail(ManifestIOFailure, inst.Name, fmt.Errorf("record instance: %w", err))
	}
	r.ws.Bind(inst)
	r.o.config.Metrics.Bound(string(inst.Source))

	r.o.logger.Info("component bound",
		slog.String("name", inst.Name),
		slog.String("address", inst.Address.Hex()),
		slog.String("source", string(inst.Source)),
	)
	p := Progress{Phase: PhaseResolve, Name: inst.Name, Action: string(inst.Source), Address: inst.Address}
	if inst.InstantiationTx != nil && inst.Source == SourceInstantiated {
		p.TxHash = *inst.InstantiationTx
	}
	r.report(p)
	return nil
}

// register writes every registered address into the plan's registry,
// skipping entries that already match.
func (r *run) register(ctx context.Context) error {
	d, ok := r.plan.Registry()
	if !ok {
		r.o.logger.Info("plan has no registry, skipping registration")
		return nil
	}
	addr, ok := r.ws.Lookup(d.Name)
	if !ok {
		return r.fail(DependencyUnresolved, d.Name, errors.New("registry is not bound"))
	}
	h, err := r.o.factory.Handle(d)
	if err != nil {
		return r.fail(RegistrationFailure, d.Name, err)
	}
	reg, err := r.o.config.OpenRegistry(h.Attach(addr), r.o.logger)
	if err != nil {
		return r.fail(RegistrationFailure, d.Name, err)
	}

	var wanted []registry.Entry
	for _, c := range r.plan.Descriptors() {
		if c.Name == d.Name || !c.Registered() {
			continue
		}
		a, _ := r.ws.Lookup(c.Name)
		wanted = append(wanted, registry.Entry{Key: c.RegistryKey(), Address: a})
	}
	for _, ext := range r.plan.Externals() {
		wanted = append(wanted, registry.Entry{Key: ext.Name, Address: ext.Address})
	}

	keys := make([]string, len(wanted))
	for i, e := range wanted {
		keys[i] = e.Key
	}
	current, err := reg.GetAll(ctx, keys)
	if err != nil {
		return r.fail(RegistrationFailure, d.Name, err)
	}
	pending := registry.Pending(current, wanted)
	if len(pending) == 0 {
		r.o.logger.Info("registry up to date", slog.Int("entries", len(wanted)))
		return nil
	}

	hashes, err := reg.Write(ctx, pending)
	for _, hash := range hashes {
		r.progressed.Store(true)
		if jerr := r.recordTx(ctx, d.Name, string(PhaseRegister), hash); jerr != nil {
			return jerr
		}
	}
	if err != nil {
		return r.failTx(RegistrationFailure, d.Name, err)
	}

	for i, e := range pending {
		p := Progress{Phase: PhaseRegister, Name: e.Key, Action: "registered", Address: e.Address}
		if len(hashes) == len(pending) {
			p.TxHash = hashes[i]
		} else {
			p.TxHash = hashes[0]
		}
		r.report(p)
	}
	return nil
}

// initialize calls each initializer in initializer order.
func (r *run) initialize(ctx context.Context) error {
	done := make(map[string]bool)
	for _, d := range r.plan.Initializers() {
		inst, ok := r.ws.Get(d.Name)
		if !ok {
			return r.fail(DependencyUnresolved, d.Name, errors.New("component is not bound"))
		}
		for _, need := range d.InitNeeds() {
			if _, ok := r.ws.Lookup(need); !ok {
				return r.fail(DependencyUnresolved, d.Name, fmt.Errorf("%s has no bound address", need))
			}
		}
		if inst.Initialized {
			done[d.Name] = true
			r.o.logger.Info("skipping initialized component", slog.String("name", d.Name))
			r.report(Progress{Phase: PhaseInitialize, Name: d.Name, Action: "skipped", Address: inst.Address})
			continue
		}
		for _, after := range d.InitAfter() {
			if !done[after] {
				return r.fail(InitializationFailure, d.Name, fmt.Errorf("%s is not initialized", after))
			}
		}

		args, err := plan.Values(d.Initializer.Args, r.ws.Lookup)
		if err != nil {
			return r.fail(kindOf(err, InitializationFailure), d.Name, fmt.Errorf("initializer: %w", err))
		}
		h, err := r.o.factory.Handle(d)
		if err != nil {
			return r.fail(InitializationFailure, d.Name, err)
		}

		r.o.logger.Info("initializing component",
			slog.String("name", d.Name),
			slog.String("method", d.Initializer.Method),
		)
		hash, err := h.Attach(inst.Address).Transact(ctx, d.Initializer.Method, args...)
		if err != nil {
			return r.failTx(InitializationFailure, d.Name, err)
		}
		r.progressed.Store(true)

		if err := r.recordTx(ctx, d.Name, string(PhaseInitialize), hash); err != nil {
			return err
		}
		if err := r.o.config.Journal.MarkInitialized(ctx, r.o.config.ChainID, d.Name, hash.Hex()); err != nil {
			return r.fail(ManifestIOFailure, d.Name, fmt.Errorf("record initialization: %w", err))
		}
		r.ws.MarkInitialized(d.Name, hash)
		done[d.Name] = true
		r.report(Progress{Phase: PhaseInitialize, Name: d.Name, Action: "initialized", Address: inst.Address, TxHash: hash})
	}
	return nil
}

func (r *run) persist(ctx context.Context) (*manifest.Manifest, error) {
	out := r.ws.Manifest(r.plan, r.prior)
	store := r.o.config.Store
	if store == nil {
		return out, nil
	}
	if err := store.Save(ctx, out); err != nil {
		return nil, r.fail(ManifestIOFailure, "", err)
	}
	r.report(Progress{Phase: PhasePersist, Action: "saved"})
	return out, nil
}

func (r *run) recordTx(ctx context.Context, name, phase string, hash common.Hash) error {
	r.o.config.Metrics.Transaction(phase)
	tx := &journal.Transaction{RunID: r.id, Component: name, Phase: phase, Hash: hash.Hex()}
	if err := r.o.config.Journal.RecordTransaction(ctx, tx); err != nil {
		return r.fail(ManifestIOFailure, name, fmt.Errorf("record transaction: %w", err))
	}
	return nil
}

func (r *run) report(p Progress) {
	fn := r.o.config.OnProgress
	if fn == nil {
		return
	}
	r.progressMu.Lock()
	defer r.progressMu.Unlock()
	fn(p)
}

func (r *run) fail(kind Kind, name string, err error) *Error {
	partial := r.ws.Manifest(r.plan, r.prior)
	partial.MarkPartial()
	return &Error{
		Kind:       kind,
		Phase:      r.phase,
		Name:       name,
		Err:        err,
		Partial:    partial,
		Progressed: r.progressed.Load(),
	}
}

func (r *run) failTx(kind Kind, name string, err error) *Error {
	e := r.fail(kind, name, err)
	if hash, ok := chain.TxHashOf(err); ok {
		e.TxHash = hash
	}
	return e
}

// markFailed records the failure in the journal. Journal errors are logged
// so the original error is what the caller sees.
func (r *run) markFailed(ctx context.Context, err error) {
	kind := string(InstantiationFailure)
	var de *Error
	if errors.As(err, &de) {
		kind = string(de.Kind)
	}
	r.o.config.Metrics.Failure(kind)
	r.o.config.Metrics.Run(string(r.o.config.Mode), string(journal.StatusFailed))

	r.o.logger.Error("run failed",
		slog.String("run_id", r.id.String()),
		slog.String("phase", string(r.phase)),
		slog.String("error", err.Error()),
	)
	if r.id == uuid.Nil {
		return
	}
	// The run context may be what failed.
	ctx = context.WithoutCancel(ctx)
	if jerr := r.o.config.Journal.SetRunError(ctx, r.id, err.Error()); jerr != nil {
		r.o.logger.Error("failed to record run error", slog.String("error", jerr.Error()))
	}
	phase := string(r.phase)
	if jerr := r.o.config.Journal.UpdateRunStatus(ctx, r.id, journal.StatusFailed, &phase); jerr != nil {
		r.o.logger.Error("failed to mark run failed", slog.String("error", jerr.Error()))
	}
}

// kindOf reports DependencyUnresolved for unresolved references and
// fallback otherwise.
func kindOf(err error, fallback Kind) Kind {
	if errors.Is(err, plan.ErrDependencyUnresolved) {
		return DependencyUnresolved
	}
	return fallback
}

func hashPtr(s *string) *common.Hash {
	if s == nil || *s == "" {
		return nil
	}
	h := common.HexToHash(*s)
	return &h
}

func hashString(h *common.Hash) *string {
	if h == nil {
		return nil
	}
	return journal.Ptr(h.Hex())
}

func addrString(a *common.Address) *string {
	if a == nil {
		return nil
	}
	return journal.Ptr(a.Hex())
}

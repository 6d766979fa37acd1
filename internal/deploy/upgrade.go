package deploy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Bidon15/rollupctl/internal/component"
	"github.com/Bidon15/rollupctl/internal/journal"
	"github.com/Bidon15/rollupctl/internal/manifest"
	"github.com/Bidon15/rollupctl/internal/plan"
)

// Proxy upgrade methods.
const (
	MethodAdminUpgrade = "upgrade"
	MethodUpgradeTo    = "upgradeTo"
)

// UpgradeResult describes a completed upgrade.
type UpgradeResult struct {
	Name             string
	Proxy            common.Address
	Implementation   common.Address
	ImplementationTx common.Hash
	UpgradeTx        common.Hash
	// Via is the component that executed the upgrade: the proxy admin or
	// the proxy itself.
	Via string
}

// Upgrade deploys a new implementation of the proxied component name and
// points its proxy at it. The proxy address comes from prior, or from the
// journal when prior lacks it. Only that one component is touched.
func (o *Orchestrator) Upgrade(ctx context.Context, p *plan.Plan, prior *manifest.Manifest, name string) (*UpgradeResult, error) {
	if prior == nil {
		prior = manifest.New()
	}
	r := &run{
		o:       o,
		plan:    p,
		prior:   prior,
		ws:      NewWorkingSet(),
		records: make(map[string]*journal.Instance),
		phase:   PhaseUpgrade,
	}

	d, ok := p.Descriptor(name)
	if !ok {
		return nil, r.fail(DependencyUnresolved, name, fmt.Errorf("%s is not a plan component", name))
	}
	if !d.Proxy {
		return nil, fmt.Errorf("%w: %s is not deployed behind a proxy", ErrNotUpgradeable, name)
	}

	rec := &journal.Run{Mode: string(PhaseUpgrade), ChainID: o.config.ChainID}
	if err := o.config.Journal.CreateRun(ctx, rec); err != nil {
		return nil, r.fail(ManifestIOFailure, name, fmt.Errorf("create run: %w", err))
	}
	r.id = rec.ID

	res, err := r.upgrade(ctx, d)
	if err != nil {
		r.markFailed(ctx, err)
		return nil, err
	}
	if err := o.config.Journal.UpdateRunStatus(ctx, r.id, journal.StatusCompleted, nil); err != nil {
		o.logger.Error("failed to mark run completed", slog.String("error", err.Error()))
	}
	o.config.Metrics.Run(string(PhaseUpgrade), string(journal.StatusCompleted))
	return res, nil
}

func (r *run) upgrade(ctx context.Context, d *plan.Descriptor) (*UpgradeResult, error) {
	cfg := r.o.config

	// Bind what the prior manifest and the journal know, for argument
	// resolution.
	for _, c := range r.plan.Descriptors() {
		if addr, ok := r.prior.Address(c.Name); ok {
			r.ws.Bind(&Instance{Name: c.Name, Address: addr, Source: SourceManifest})
			continue
		}
		if addr, ok := c.PreexistingAddress(); ok {
			r.ws.Bind(&Instance{Name: c.Name, Address: addr, Source: SourcePreexisting})
			continue
		}
		got, err := cfg.Journal.GetInstance(ctx, cfg.ChainID, c.Name)
		if err != nil {
			return nil, r.fail(ManifestIOFailure, c.Name, fmt.Errorf("read journal: %w", err))
		}
		if got != nil && common.IsHexAddress(got.Address) {
			r.records[c.Name] = got
			r.ws.Bind(&Instance{Name: c.Name, Address: common.HexToAddress(got.Address), Source: SourceJournal})
		}
	}
	for _, ext := range r.plan.Externals() {
		r.ws.Bind(&Instance{Name: ext.Name, Address: ext.Address, Source: SourceExternal})
	}

	proxy, ok := r.ws.Get(d.Name)
	if !ok {
		return nil, r.fail(DependencyUnresolved, d.Name, fmt.Errorf("%s has no deployed proxy", d.Name))
	}
	live, err := r.hasCode(ctx, proxy.Address)
	if err != nil {
		return nil, r.fail(DependencyUnresolved, d.Name, err)
	}
	if !live {
		return nil, r.fail(DependencyUnresolved, d.Name, fmt.Errorf("proxy %s of %s has no code", proxy.Address.Hex(), d.Name))
	}

	args, err := plan.Values(d.Constructor, r.ws.Lookup)
	if err != nil {
		return nil, r.fail(kindOf(err, InstantiationFailure), d.Name, fmt.Errorf("constructor: %w", err))
	}
	h, err := r.o.factory.Handle(d)
	if err != nil {
		return nil, r.fail(InstantiationFailure, d.Name, err)
	}

	impl, err := h.Implement(ctx, args...)
	if err != nil {
		return nil, r.failTx(InstantiationFailure, d.Name, err)
	}
	r.progressed.Store(true)
	if err := r.recordTx(ctx, d.Name, "implement", impl.TxHash); err != nil {
		return nil, err
	}
	r.o.logger.Info("implementation deployed",
		slog.String("name", d.Name),
		slog.String("implementation", impl.Address.Hex()),
		slog.String("tx_hash", impl.TxHash.Hex()),
	)

	res := &UpgradeResult{
		Name:             d.Name,
		Proxy:            proxy.Address,
		Implementation:   impl.Address,
		ImplementationTx: impl.TxHash,
	}

	admin, via, err := r.upgradeAdmin()
	if err != nil {
		return nil, r.fail(InitializationFailure, d.Name, err)
	}
	if admin != nil {
		res.Via = via
		res.UpgradeTx, err = admin.Transact(ctx, MethodAdminUpgrade, proxy.Address, impl.Address)
	} else {
		res.Via = d.Name
		res.UpgradeTx, err = h.Attach(proxy.Address).Transact(ctx, MethodUpgradeTo, impl.Address)
	}
	if err != nil {
		return nil, r.failTx(InitializationFailure, d.Name, err)
	}
	if err := r.recordTx(ctx, d.Name, string(PhaseUpgrade), res.UpgradeTx); err != nil {
		return nil, err
	}

	implAddr := impl.Address
	implTx := impl.TxHash
	proxy.Implementation = &implAddr
	proxy.ImplementationTx = &implTx
	if rec, ok := r.matchingRecord(d.Name, proxy.Address); ok {
		proxy.Initialized = rec.Initialized
		proxy.InitializationTx = hashPtr(rec.InitializationTx)
	}
	if err := cfg.Journal.UpsertInstance(ctx, &journal.Instance{
		ChainID:          cfg.ChainID,
		Name:             d.Name,
		Address:          proxy.Address.Hex(),
		Implementation:   addrString(proxy.Implementation),
		InitializationTx: hashString(proxy.InitializationTx),
		Initialized:      proxy.Initialized,
		RunID:            r.id,
	}); err != nil {
		return nil, r.fail(ManifestIOFailure, d.Name, fmt.Errorf("record instance: %w", err))
	}

	r.o.logger.Info("proxy upgraded",
		slog.String("name", d.Name),
		slog.String("proxy", proxy.Address.Hex()),
		slog.String("via", res.Via),
		slog.String("tx_hash", res.UpgradeTx.Hex()),
	)
	r.report(Progress{Phase: PhaseUpgrade, Name: d.Name, Action: "upgraded", Address: impl.Address, TxHash: res.UpgradeTx})
	return res, nil
}

// upgradeAdmin returns the proxy admin component when the plan names one
// that exposes upgrade. A nil instance means the proxy is upgraded directly.
func (r *run) upgradeAdmin() (component.Instance, string, error) {
	cfg := r.plan.Proxy()
	if cfg == nil {
		return nil, "", nil
	}
	name, ok := cfg.Admin.RefName()
	if !ok {
		return nil, "", nil
	}
	d, ok := r.plan.Descriptor(name)
	if !ok {
		return nil, "", nil
	}
	addr, ok := r.ws.Lookup(name)
	if !ok {
		return nil, "", fmt.Errorf("proxy admin %s has no bound address", name)
	}
	h, err := r.o.factory.Handle(d)
	if err != nil {
		return nil, "", err
	}
	inst := h.Attach(addr)
	if !inst.HasMethod(MethodAdminUpgrade) {
		return nil, "", nil
	}
	return inst, name, nil
}

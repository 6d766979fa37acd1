package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/spf13/cobra"

	"github.com/Bidon15/rollupctl/internal/artifacts"
	"github.com/Bidon15/rollupctl/internal/chain"
	"github.com/Bidon15/rollupctl/internal/config"
	"github.com/Bidon15/rollupctl/internal/deploy"
	"github.com/Bidon15/rollupctl/internal/journal"
	"github.com/Bidon15/rollupctl/internal/manifest"
	"github.com/Bidon15/rollupctl/internal/metrics"
	"github.com/Bidon15/rollupctl/internal/plan"
)

func (a *app) deployCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deploy",
		Short: "Deploy, register and initialize every plan component",
		Long: `Deploy the components of the plan that have no address yet, write every
address into the registry, run the initializers and save the manifest.

Components already in the manifest, bound to an explicit address or recorded
by an earlier run in the journal are not deployed again.

Examples:
  rollupctl deploy
  rollupctl deploy --dry-run --from 0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266
  rollupctl deploy --parallelism 4 --metrics-file /var/lib/node_exporter/rollupctl.prom`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runDeploy(cmd.Context(), deploy.ModeDeploy)
		},
	}
}

func (a *app) attachCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "attach",
		Short: "Register and initialize components that are already deployed",
		Long: `Bind every plan component to an existing address, from the manifest, the
plan or the journal, then register and initialize them. Nothing is deployed;
the command fails before sending any transaction if a component has no
address.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runDeploy(cmd.Context(), deploy.ModeAttach)
		},
	}
}

func (a *app) upgradeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upgrade <name>",
		Short: "Deploy a new implementation of a proxied component",
		Long: `Deploy a fresh implementation of a proxied component and point its proxy at
it, through the plan's proxy admin when it has an upgrade method, or through
the proxy's own upgradeTo otherwise.

Examples:
  rollupctl upgrade RollupStateChain`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runUpgrade(cmd.Context(), args[0])
		},
	}
}

// session is everything a deploy, attach or upgrade needs.
type session struct {
	cfg     *config.Config
	logger  *slog.Logger
	plan    *plan.Plan
	prior   *manifest.Manifest
	store   *manifest.FileStore
	client  *ethclient.Client
	dryRun  *chain.DryRunSubmitter
	journal journal.Repository
	metrics *metrics.Recorder
	orch    *deploy.Orchestrator
}

func (a *app) openSession(ctx context.Context, mode deploy.Mode) (s *session, err error) {
	cfg, err := a.config(true)
	if err != nil {
		return nil, err
	}
	s = &session{cfg: cfg, logger: a.logger(cfg), metrics: metrics.New()}
	defer func() {
		if err != nil {
			s.Close()
		}
	}()

	if s.plan, err = plan.Load(cfg.Plan); err != nil {
		return nil, err
	}
	lib, err := artifacts.LoadFromDirectory(cfg.Artifacts, artifacts.RequiredNames(s.plan))
	if err != nil {
		return nil, err
	}

	s.store = manifest.NewFileStore(cfg.Manifest)
	if s.prior, err = s.store.Load(ctx); err != nil {
		return nil, err
	}

	var backend chain.Backend
	if cfg.RPCURL != "" {
		if s.client, err = chain.Dial(ctx, cfg.RPCURL, cfg.ChainID); err != nil {
			return nil, err
		}
		backend = s.client
	}

	signer, err := newSigner(cfg)
	if err != nil {
		return nil, err
	}

	var submitter chain.Submitter
	if cfg.DryRun {
		s.dryRun = chain.NewDryRunSubmitter(backend, signer)
		submitter = s.dryRun
		s.journal = journal.NewMemory()
	} else {
		minGasPrice, err := cfg.MinGasPrice()
		if err != nil {
			return nil, err
		}
		submitter = chain.NewEthSubmitter(backend, signer, chain.Config{
			GasBoostPercent: uint64(cfg.GasBoostPercent),
			MinGasPrice:     minGasPrice,
			DefaultGasLimit: cfg.DefaultGasLimit,
			ConfirmTimeout:  cfg.ConfirmTimeout,
			Logger:          s.logger,
		})
		if s.journal, err = journal.Open(ctx, cfg.State); err != nil {
			return nil, err
		}
	}

	factory := artifacts.NewFactory(lib, submitter, s.plan.Proxy().ArtifactName(), s.logger)
	orchCfg := deploy.Config{
		Logger:      s.logger,
		Mode:        mode,
		Parallelism: cfg.Parallelism,
		ChainID:     int64(cfg.ChainID),
		Journal:     s.journal,
		Metrics:     s.metrics,
	}
	if s.client != nil {
		orchCfg.Code = s.client
	}
	if !cfg.DryRun {
		orchCfg.Store = s.store
	}
	if !cfg.Quiet {
		orchCfg.OnProgress = a.printProgress
	}
	s.orch = deploy.New(factory, orchCfg)

	s.logger.Debug("session ready",
		slog.String("plan", cfg.Plan),
		slog.String("deployer", submitter.From().Hex()),
		slog.Bool("dry_run", cfg.DryRun),
		slog.Int("components", s.plan.Len()),
	)
	return s, nil
}

// Close releases connections and writes the metrics textfile.
func (s *session) Close() {
	if s.journal != nil {
		if err := s.journal.Close(); err != nil {
			s.logger.Warn("failed to close journal", slog.String("error", err.Error()))
		}
	}
	if s.client != nil {
		s.client.Close()
	}
	if s.cfg.MetricsFile != "" {
		if err := s.metrics.WriteTextfile(s.cfg.MetricsFile); err != nil {
			s.logger.Warn("failed to write metrics", slog.String("path", s.cfg.MetricsFile), slog.String("error", err.Error()))
		}
	}
}

func newSigner(cfg *config.Config) (chain.Signer, error) {
	if cfg.PrivateKey != "" {
		return chain.NewKeySigner(cfg.PrivateKey, new(big.Int).SetUint64(cfg.ChainID))
	}
	if cfg.From != "" && common.IsHexAddress(cfg.From) {
		return chain.NewAddressSigner(common.HexToAddress(cfg.From)), nil
	}
	return nil, errors.New("private_key or from is required")
}

func (a *app) runDeploy(ctx context.Context, mode deploy.Mode) error {
	s, err := a.openSession(ctx, mode)
	if err != nil {
		return err
	}
	defer s.Close()

	m, err := s.orch.Run(ctx, s.plan, s.prior)
	if err != nil {
		return err
	}

	if s.cfg.DryRun {
		data, err := m.MarshalIndent()
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "%s\n", data)
		fmt.Fprintf(a.errOut, "%s %d transactions signed, nothing was broadcast\n",
			colorYellow(a.errOut, "Dry run:"), len(s.dryRun.Planned()))
		return nil
	}

	if a.jsonOut {
		data, err := m.MarshalIndent()
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "%s\n", data)
		return nil
	}
	printManifest(a.out, m)
	fmt.Fprintf(a.out, "\n%s manifest written to %s\n", colorGreen(a.out, "✓"), s.store.Path())
	return nil
}

func (a *app) runUpgrade(ctx context.Context, name string) error {
	s, err := a.openSession(ctx, deploy.ModeDeploy)
	if err != nil {
		return err
	}
	defer s.Close()

	res, err := s.orch.Upgrade(ctx, s.plan, s.prior, name)
	if err != nil {
		return err
	}

	if a.jsonOut {
		return printJSON(a.out, map[string]string{
			"name":              res.Name,
			"proxy":             res.Proxy.Hex(),
			"implementation":    res.Implementation.Hex(),
			"implementation_tx": res.ImplementationTx.Hex(),
			"upgrade_tx":        res.UpgradeTx.Hex(),
			"via":               res.Via,
		})
	}
	fmt.Fprintf(a.out, "%s %s upgraded\n", colorGreen(a.out, "✓"), res.Name)
	fmt.Fprintf(a.out, "  Proxy:          %s\n", res.Proxy.Hex())
	fmt.Fprintf(a.out, "  Implementation: %s\n", res.Implementation.Hex())
	fmt.Fprintf(a.out, "  Via:            %s\n", res.Via)
	fmt.Fprintf(a.out, "  Tx:             %s\n", res.UpgradeTx.Hex())
	return nil
}

// printProgress reports completed steps on stderr so stdout carries only
// results.
func (a *app) printProgress(p deploy.Progress) {
	detail := ""
	switch {
	case p.TxHash != (common.Hash{}):
		detail = p.TxHash.Hex()
	case p.Address != (common.Address{}):
		detail = p.Address.Hex()
	}
	fmt.Fprintf(a.errOut, "%-10s %-24s %-12s %s\n", p.Phase, p.Name, p.Action, detail)
}

func printManifest(w io.Writer, m *manifest.Manifest) {
	t := newTable(w)
	printTableHeader(t, w, "NAME", "ADDRESS")
	for _, name := range m.Keys() {
		addr, _ := m.Get(name)
		fmt.Fprintf(t, "%s\t%s\n", name, addr)
	}
	t.Flush()
}

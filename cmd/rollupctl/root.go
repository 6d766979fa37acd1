package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Bidon15/rollupctl/internal/config"
	"github.com/Bidon15/rollupctl/internal/deploy"
)

// Version information, set via ldflags during build.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// app holds the state shared by every command of one invocation.
type app struct {
	v       *viper.Viper
	cfgFile string
	jsonOut bool
	verbose bool
	out     io.Writer
	errOut  io.Writer
}

func newApp(out, errOut io.Writer) *app {
	return &app{v: config.New(), out: out, errOut: errOut}
}

// flag name to config key
var boundFlags = []struct{ flag, key string }{
	{"rpc-url", "rpc_url"},
	{"chain-id", "chain_id"},
	{"private-key", "private_key"},
	{"from", "from"},
	{"plan", "plan"},
	{"artifacts", "artifacts"},
	{"manifest", "manifest"},
	{"state", "state"},
	{"parallelism", "parallelism"},
	{"dry-run", "dry_run"},
	{"metrics-file", "metrics_file"},
	{"log-level", "log_level"},
	{"log-format", "log_format"},
	{"quiet", "quiet"},
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "rollupctl",
		Short: "rollupctl - deploy and wire the layer-1 contracts of a rollup",
		Long: `rollupctl deploys the contracts named in a deployment plan, writes their
addresses into the on-chain address registry, initializes them and records the
result in an address manifest. Re-running a deployment resumes where the last
run stopped.

Configuration (in order of priority):
  1. Command-line flags (--rpc-url, --chain-id, --private-key, ...)
  2. Environment variables (ROLLUPCTL_RPC_URL, ROLLUPCTL_CHAIN_ID, ...)
  3. Config file (rollupctl.yaml in the working or home directory)

Get started:
  $ rollupctl plan init          # Write the default rollup plan
  $ rollupctl preflight          # Check the endpoint, account and artifacts
  $ rollupctl deploy --dry-run   # Show the manifest a deployment would produce
  $ rollupctl deploy             # Deploy`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if a.cfgFile != "" {
				a.v.SetConfigFile(a.cfgFile)
			}
			return nil
		},
	}
	root.SetOut(a.out)
	root.SetErr(a.errOut)

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default is rollupctl.yaml in . or $HOME)")
	flags.BoolVar(&a.jsonOut, "json", false, "output in JSON format")
	flags.String("rpc-url", "", "JSON-RPC endpoint (or ROLLUPCTL_RPC_URL)")
	flags.Uint64("chain-id", 0, "expected chain ID (or ROLLUPCTL_CHAIN_ID)")
	flags.String("private-key", "", "deployer private key, hex (or ROLLUPCTL_PRIVATE_KEY)")
	flags.String("from", "", "deployer address for dry runs without a key")
	flags.String("plan", "", "deployment plan (default "+config.DefaultPlan+")")
	flags.String("artifacts", "", "compiled contracts directory (default "+config.DefaultArtifacts+")")
	flags.String("manifest", "", "address manifest (default "+config.DefaultManifest+")")
	flags.String("state", "", "run journal: SQLite path, postgres:// URL or memory (default "+config.DefaultState+")")
	flags.Int("parallelism", 0, "concurrent instantiations (default 1)")
	flags.Bool("dry-run", false, "sign transactions without broadcasting them")
	flags.String("metrics-file", "", "write Prometheus metrics to this file at exit")
	flags.String("log-level", "", "debug, info, warn or error (default info)")
	flags.String("log-format", "", "text or json (default text)")
	flags.BoolP("quiet", "q", false, "only log warnings and errors")
	for _, b := range boundFlags {
		_ = a.v.BindPFlag(b.key, flags.Lookup(b.flag))
	}

	root.AddCommand(
		a.deployCmd(),
		a.attachCmd(),
		a.upgradeCmd(),
		a.planCmd(),
		a.manifestCmd(),
		a.runsCmd(),
		a.preflightCmd(),
		a.versionCmd(),
	)
	return root
}

func (a *app) versionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(a.out, "rollupctl %s\n", Version)
			if a.verbose {
				fmt.Fprintf(a.out, "  commit:  %s\n", Commit)
				fmt.Fprintf(a.out, "  built:   %s\n", BuildDate)
			}
		},
	}
	cmd.Flags().BoolVarP(&a.verbose, "verbose", "v", false, "include commit and build date")
	return cmd
}

// Execute runs rollupctl with args and returns the process exit code.
func Execute(ctx context.Context, args []string, out, errOut io.Writer) int {
	a := newApp(out, errOut)
	root := a.rootCmd()
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		printError(errOut, err)
		return deploy.ExitCode(err)
	}
	return deploy.ExitOK
}

// config decodes the configuration. Commands that send transactions
// validate it fully.
func (a *app) config(validate bool) (*config.Config, error) {
	if validate {
		return config.Load(a.v)
	}
	return config.Decode(a.v)
}

// logger builds the slog logger described by cfg. Logs go to stderr.
func (a *app) logger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	if cfg.Quiet && level < slog.LevelWarn {
		level = slog.LevelWarn
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(a.errOut, opts))
	}
	return slog.New(slog.NewTextHandler(a.errOut, opts))
}

// Output helpers

// printJSON writes v as formatted JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printError prints err, with the failing transaction and a resume hint for
// deployment errors.
func printError(w io.Writer, err error) {
	fmt.Fprintf(w, "%s %s\n", colorRed(w, "Error:"), err.Error())

	var de *deploy.Error
	if !errors.As(err, &de) {
		return
	}
	if de.TxHash != (common.Hash{}) {
		fmt.Fprintf(w, "  Tx: %s\n", de.TxHash.Hex())
	}
	if de.Progressed {
		fmt.Fprintln(w, "  The run made on-chain progress. Re-run the same command to resume.")
	}
}

// newTable creates a tabwriter for aligned output.
func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

// printTableHeader prints a bold header row.
func printTableHeader(w *tabwriter.Writer, out io.Writer, columns ...string) {
	for i := range columns {
		columns[i] = colorBold(out, columns[i])
	}
	fmt.Fprintln(w, strings.Join(columns, "\t"))
}

// Terminal colors

func colorRed(w io.Writer, s string) string {
	return colorize(w, "\033[31m", s)
}

func colorGreen(w io.Writer, s string) string {
	return colorize(w, "\033[32m", s)
}

func colorYellow(w io.Writer, s string) string {
	return colorize(w, "\033[33m", s)
}

func colorBold(w io.Writer, s string) string {
	return colorize(w, "\033[1m", s)
}

func colorize(w io.Writer, code, s string) string {
	if !isTTY(w) {
		return s
	}
	return code + s + "\033[0m"
}

func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// truncate shortens s to maxLen characters.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

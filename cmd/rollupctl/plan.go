package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Bidon15/rollupctl/internal/plan"
	"github.com/Bidon15/rollupctl/plans"
)

func (a *app) planCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Create and inspect deployment plans",
		Long: `Deployment plan commands.

Examples:
  rollupctl plan init
  rollupctl plan init --template l2-rollup l2.yaml
  rollupctl plan validate --plan plan.yaml
  rollupctl plan show`,
	}

	var (
		force    bool
		template string
	)
	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write an embedded rollup plan",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config(false)
			if err != nil {
				return err
			}
			path := cfg.Plan
			if len(args) == 1 {
				path = args[0]
			}
			return a.runPlanInit(path, template, force)
		},
	}
	initCmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing plan")
	initCmd.Flags().StringVarP(&template, "template", "t", plans.DefaultTemplate,
		"plan to write: "+strings.Join(plans.Names(), ", "))

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a plan for unresolved references and cycles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, path, err := a.loadPlan()
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s %s: %d components, %d initializers, %d externals\n",
				colorGreen(a.out, "✓"), path, p.Len(), len(p.Initializers()), len(p.Externals()))
			return nil
		},
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the instantiation and initialization order of a plan",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, _, err := a.loadPlan()
			if err != nil {
				return err
			}
			if a.jsonOut {
				return printJSON(a.out, planSummary(p))
			}
			renderPlan(a.out, p)
			return nil
		},
	}

	cmd.AddCommand(initCmd, validateCmd, showCmd)
	return cmd
}

func (a *app) loadPlan() (*plan.Plan, string, error) {
	cfg, err := a.config(false)
	if err != nil {
		return nil, "", err
	}
	p, err := plan.Load(cfg.Plan)
	if err != nil {
		return nil, "", err
	}
	return p, cfg.Plan, nil
}

func (a *app) runPlanInit(path, template string, force bool) error {
	data, err := plans.Template(template)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write plan: %w", err)
	}
	fmt.Fprintf(a.out, "%s wrote %s\n", colorGreen(a.out, "✓"), path)
	return nil
}

// renderPlan writes a plain-text outline of p.
func renderPlan(w io.Writer, p *plan.Plan) {
	if reg, ok := p.Registry(); ok {
		fmt.Fprintf(w, "registry: %s\n", reg.Name)
	}
	if proxied(p) {
		fmt.Fprintf(w, "proxy: %s, admin %s\n", p.Proxy().ArtifactName(), proxyAdmin(p))
	}

	fmt.Fprintln(w, "\ninstantiate:")
	for i, d := range p.Descriptors() {
		line := fmt.Sprintf("  %d. %s", i+1, d.Name)
		if d.ArtifactName() != d.Name {
			line += " [" + d.ArtifactName() + "]"
		}
		if d.Proxy {
			line += " (proxy)"
		}
		if addr, ok := d.PreexistingAddress(); ok {
			line += " at " + addr.Hex()
		}
		if deps := p.Dependencies(d.Name); len(deps) > 0 {
			line += " <- " + strings.Join(deps, ", ")
		}
		if !d.Registered() {
			line += " (unregistered)"
		} else if d.RegistryKey() != d.Name {
			line += " as " + d.RegistryKey()
		}
		fmt.Fprintln(w, line)
	}

	if inits := p.Initializers(); len(inits) > 0 {
		fmt.Fprintln(w, "\ninitialize:")
		for i, d := range inits {
			line := fmt.Sprintf("  %d. %s.%s(%s)", i+1, d.Name, d.Initializer.Method, joinArgs(d.Initializer.Args))
			if after := d.InitAfter(); len(after) > 0 {
				line += " after " + strings.Join(after, ", ")
			}
			fmt.Fprintln(w, line)
		}
	}

	if exts := p.Externals(); len(exts) > 0 {
		fmt.Fprintln(w, "\nexternals:")
		for _, ext := range exts {
			fmt.Fprintf(w, "  %s %s\n", ext.Name, ext.Address.Hex())
		}
	}
}

type componentSummary struct {
	Name         string   `json:"name"`
	Artifact     string   `json:"artifact"`
	Proxy        bool     `json:"proxy,omitempty"`
	Address      string   `json:"address,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
	RegistryKey  string   `json:"registry_key,omitempty"`
}

type initializerSummary struct {
	Name   string   `json:"name"`
	Method string   `json:"method"`
	Args   []string `json:"args,omitempty"`
	After  []string `json:"after,omitempty"`
}

type externalSummary struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// planSummary is the JSON form of renderPlan.
func planSummary(p *plan.Plan) map[string]any {
	var components []componentSummary
	for _, d := range p.Descriptors() {
		c := componentSummary{
			Name:         d.Name,
			Artifact:     d.ArtifactName(),
			Proxy:        d.Proxy,
			Address:      d.Address,
			Dependencies: p.Dependencies(d.Name),
		}
		if d.Registered() {
			c.RegistryKey = d.RegistryKey()
		}
		components = append(components, c)
	}

	var inits []initializerSummary
	for _, d := range p.Initializers() {
		s := initializerSummary{Name: d.Name, Method: d.Initializer.Method, After: d.InitAfter()}
		for _, arg := range d.Initializer.Args {
			s.Args = append(s.Args, arg.String())
		}
		inits = append(inits, s)
	}

	var exts []externalSummary
	for _, ext := range p.Externals() {
		exts = append(exts, externalSummary{Name: ext.Name, Address: ext.Address.Hex()})
	}

	out := map[string]any{
		"components":   components,
		"initializers": inits,
		"externals":    exts,
	}
	if reg, ok := p.Registry(); ok {
		out["registry"] = reg.Name
	}
	return out
}

func proxied(p *plan.Plan) bool {
	for _, d := range p.Descriptors() {
		if d.Proxy {
			return true
		}
	}
	return false
}

func proxyAdmin(p *plan.Plan) string {
	if cfg := p.Proxy(); cfg != nil && !cfg.Admin.IsZero() {
		return cfg.Admin.String()
	}
	return "deployer"
}

func joinArgs(args []plan.Arg) string {
	parts := make([]string, len(args))
	for i, arg := range args {
		parts[i] = arg.String()
	}
	return strings.Join(parts, ", ")
}

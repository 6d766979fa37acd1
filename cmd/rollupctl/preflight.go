package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Bidon15/rollupctl/internal/plan"
	"github.com/Bidon15/rollupctl/internal/preflight"
)

var errPreflightFailed = errors.New("preflight checks failed")

func (a *app) preflightCmd() *cobra.Command {
	var skipArtifacts bool
	cmd := &cobra.Command{
		Use:   "preflight",
		Short: "Check the endpoint, deployer account and artifacts before deploying",
		Long: `Run the checks a deployment depends on: the RPC endpoint answers, serves the
configured chain ID, the deployer holds enough ETH, every contract the plan
names has a compiled artifact and the registry contract can be written.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config(false)
			if err != nil {
				return err
			}
			signer, err := newSigner(cfg)
			if err != nil {
				return err
			}

			req := &preflight.Request{
				RPCURL:   cfg.RPCURL,
				ChainID:  cfg.ChainID,
				Deployer: signer.Address().Hex(),
			}
			if !skipArtifacts {
				p, err := plan.Load(cfg.Plan)
				if err != nil {
					return err
				}
				req.Plan = p
				req.ArtifactsDir = cfg.Artifacts
			}

			resp, err := preflight.NewChecker().RunChecks(cmd.Context(), req)
			if err != nil {
				return err
			}

			if a.jsonOut {
				if err := printJSON(a.out, resp); err != nil {
					return err
				}
			} else {
				a.printChecks(resp)
			}
			if !resp.OK {
				return errPreflightFailed
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&skipArtifacts, "skip-artifacts", false, "only check the endpoint and account")
	return cmd
}

func (a *app) printChecks(resp *preflight.Response) {
	fmt.Fprintf(a.out, "Network:  %s\n", resp.Network)
	fmt.Fprintf(a.out, "Deployer: %s\n", resp.Deployer)
	if resp.CurrentBalanceETH != "" {
		fmt.Fprintf(a.out, "Balance:  %s ETH (need %s ETH)\n", resp.CurrentBalanceETH, resp.RequiredFundingETH)
	}
	fmt.Fprintln(a.out)
	for _, c := range resp.Checks {
		mark := colorGreen(a.out, "✓")
		if !c.Passed {
			mark = colorRed(a.out, "✗")
		}
		fmt.Fprintf(a.out, "%s %-20s %s\n", mark, c.Name, c.Message)
	}
}

// Package preflight provides pre-deployment validation checks.
package preflight

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/Bidon15/rollupctl/internal/artifacts"
	"github.com/Bidon15/rollupctl/internal/plan"
	"github.com/Bidon15/rollupctl/internal/registry"
)

// DefaultTimeout is the default timeout for RPC calls.
const DefaultTimeout = 10 * time.Second

// CheckName identifies a specific pre-flight check.
type CheckName string

const (
	// CheckRPCReachable verifies the RPC endpoint is reachable.
	CheckRPCReachable CheckName = "rpc_reachable"
	// CheckChainIDMatch verifies the chain ID matches the expected value.
	CheckChainIDMatch CheckName = "chain_id_match"
	// CheckDeployerBalance verifies the deployer has sufficient funds.
	CheckDeployerBalance CheckName = "deployer_balance"
	// CheckArtifactsPresent verifies every contract the plan needs is compiled.
	CheckArtifactsPresent CheckName = "artifacts_present"
	// CheckRegistryInterface verifies the registry contract can be written.
	CheckRegistryInterface CheckName = "registry_interface"
)

// CheckResult represents the result of a single pre-flight check.
type CheckResult struct {
	Name    CheckName      `json:"name"`
	Passed  bool           `json:"passed"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Request contains the parameters for pre-flight checks.
type Request struct {
	RPCURL   string
	ChainID  uint64
	Deployer string
	// MinBalance overrides the per-network funding requirement.
	MinBalance *big.Int
	// Plan and ArtifactsDir enable the artifact checks.
	Plan         *plan.Plan
	ArtifactsDir string
}

// Response contains the results of all pre-flight checks.
type Response struct {
	OK                 bool          `json:"ok"`
	Checks             []CheckResult `json:"checks"`
	Deployer           string        `json:"deployer"`
	Network            string        `json:"network"`
	RequiredFundingETH string        `json:"required_funding_eth"`
	CurrentBalanceETH  string        `json:"current_balance_eth,omitempty"`
}

// Client is the part of an RPC client the checks use.
type Client interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	Close()
}

// Dialer connects to an RPC endpoint.
type Dialer func(ctx context.Context, rpcURL string) (Client, error)

// DialEthclient dials with go-ethereum's ethclient.
func DialEthclient(ctx context.Context, rpcURL string) (Client, error) {
	c, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Checker performs pre-flight validation checks.
type Checker struct {
	timeout time.Duration
	dial    Dialer
}

// NewChecker creates a new pre-flight checker.
func NewChecker() *Checker {
	return &Checker{
		timeout: DefaultTimeout,
		dial:    DialEthclient,
	}
}

// WithTimeout sets a custom timeout for RPC calls.
func (c *Checker) WithTimeout(timeout time.Duration) *Checker {
	c.timeout = timeout
	return c
}

// WithDialer replaces how the RPC endpoint is reached.
func (c *Checker) WithDialer(dial Dialer) *Checker {
	c.dial = dial
	return c
}

// RunChecks performs all pre-flight checks and returns the results.
func (c *Checker) RunChecks(ctx context.Context, req *Request) (*Response, error) {
	if err := c.validateRequest(req); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	rpcCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	requiredWei := req.MinBalance
	if requiredWei == nil {
		requiredWei = c.getRequiredFunding(req.ChainID)
	}
	response := &Response{
		OK:                 true,
		Checks:             make([]CheckResult, 0, 5),
		Deployer:           req.Deployer,
		Network:            GetNetworkName(req.ChainID),
		RequiredFundingETH: weiToETHString(requiredWei),
	}
	add := func(r CheckResult) {
		response.Checks = append(response.Checks, r)
		if !r.Passed {
			response.OK = false
		}
	}

	client, reachable := c.checkRPCReachable(rpcCtx, req.RPCURL)
	add(reachable)
	if client != nil {
		defer client.Close()

		add(c.checkChainIDMatch(rpcCtx, client, req.ChainID))

		balance := c.checkDeployerBalance(rpcCtx, client, req.Deployer, requiredWei)
		add(balance)
		if haveETH, ok := balance.Details["have_eth"].(string); ok {
			response.CurrentBalanceETH = haveETH
		}
	}

	if req.Plan != nil && req.ArtifactsDir != "" {
		lib, present := c.checkArtifactsPresent(req.Plan, req.ArtifactsDir)
		add(present)
		if lib != nil {
			if r, ok := c.checkRegistryInterface(req.Plan, lib); ok {
				add(r)
			}
		}
	}

	return response, nil
}

// validateRequest validates the pre-flight request parameters.
func (c *Checker) validateRequest(req *Request) error {
	if req.RPCURL == "" {
		return fmt.Errorf("rpc_url is required")
	}
	if req.ChainID == 0 {
		return fmt.Errorf("chain_id is required")
	}
	if req.Deployer == "" {
		return fmt.Errorf("deployer address is required")
	}
	if !common.IsHexAddress(req.Deployer) {
		return fmt.Errorf("deployer address is not a valid Ethereum address")
	}
	return nil
}

// checkRPCReachable verifies the RPC endpoint is reachable.
func (c *Checker) checkRPCReachable(ctx context.Context, rpcURL string) (Client, CheckResult) {
	result := CheckResult{
		Name: CheckRPCReachable,
	}

	client, err := c.dial(ctx, rpcURL)
	if err != nil {
		result.Message = fmt.Sprintf("Failed to connect to RPC: %v", err)
		result.Details = map[string]any{"error": err.Error()}
		return nil, result
	}

	// Dialing is lazy for HTTP endpoints, so make a call.
	if _, err := client.ChainID(ctx); err != nil {
		client.Close()
		result.Message = fmt.Sprintf("RPC connection failed: %v", err)
		result.Details = map[string]any{"error": err.Error()}
		return nil, result
	}

	result.Passed = true
	result.Message = "Connected to RPC successfully"
	return client, result
}

// checkChainIDMatch verifies the chain ID matches the expected value.
func (c *Checker) checkChainIDMatch(ctx context.Context, client Client, expectedChainID uint64) CheckResult {
	result := CheckResult{
		Name: CheckChainIDMatch,
	}

	actualChainID, err := client.ChainID(ctx)
	if err != nil {
		result.Message = fmt.Sprintf("Failed to get chain ID: %v", err)
		result.Details = map[string]any{"error": err.Error()}
		return result
	}

	expected := new(big.Int).SetUint64(expectedChainID)
	if actualChainID.Cmp(expected) != 0 {
		result.Message = fmt.Sprintf("Chain ID mismatch: expected %d, got %s", expectedChainID, actualChainID)
		result.Details = map[string]any{
			"expected": expectedChainID,
			"actual":   actualChainID.String(),
		}
		return result
	}

	result.Passed = true
	result.Message = fmt.Sprintf("Chain ID %d (%s) confirmed", expectedChainID, GetNetworkName(expectedChainID))
	result.Details = map[string]any{"chain_id": expectedChainID}
	return result
}

// checkDeployerBalance verifies the deployer has sufficient funds.
func (c *Checker) checkDeployerBalance(ctx context.Context, client Client, deployerAddr string, requiredWei *big.Int) CheckResult {
	result := CheckResult{
		Name: CheckDeployerBalance,
	}

	addr := common.HexToAddress(deployerAddr)
	balance, err := client.BalanceAt(ctx, addr, nil)
	if err != nil {
		result.Message = fmt.Sprintf("Failed to get deployer balance: %v", err)
		result.Details = map[string]any{"error": err.Error()}
		return result
	}

	haveETH := weiToETHString(balance)
	needETH := weiToETHString(requiredWei)
	result.Details = map[string]any{
		"have_wei": balance.String(),
		"need_wei": requiredWei.String(),
		"have_eth": haveETH,
		"need_eth": needETH,
	}

	if balance.Cmp(requiredWei) < 0 {
		result.Message = fmt.Sprintf("Insufficient deployer balance: have %s ETH, need %s ETH", haveETH, needETH)
		return result
	}

	result.Passed = true
	result.Message = fmt.Sprintf("Deployer has sufficient balance: %s ETH", haveETH)
	return result
}

// checkArtifactsPresent loads every artifact the plan needs.
func (c *Checker) checkArtifactsPresent(p *plan.Plan, dir string) (*artifacts.Library, CheckResult) {
	result := CheckResult{
		Name: CheckArtifactsPresent,
	}

	names := artifacts.RequiredNames(p)
	lib, err := artifacts.LoadFromDirectory(dir, names)
	if err != nil {
		result.Message = fmt.Sprintf("Artifacts incomplete: %v", err)
		result.Details = map[string]any{"dir": dir, "error": err.Error()}
		return nil, result
	}

	result.Passed = true
	result.Message = fmt.Sprintf("All %d artifacts found", len(names))
	result.Details = map[string]any{"dir": dir, "count": len(names)}
	return lib, result
}

// checkRegistryInterface verifies the registry ABI. It reports false when
// the plan has no registry.
func (c *Checker) checkRegistryInterface(p *plan.Plan, lib *artifacts.Library) (CheckResult, bool) {
	d, ok := p.Registry()
	if !ok {
		return CheckResult{}, false
	}
	result := CheckResult{
		Name: CheckRegistryInterface,
	}

	a, err := lib.Get(d.ArtifactName())
	if err != nil {
		result.Message = err.Error()
		return result, true
	}

	var missing []string
	for _, m := range []string{registry.MethodSetAddress, registry.MethodGetAddr} {
		if !a.HasMethod(m) {
			missing = append(missing, m)
		}
	}
	if len(missing) > 0 {
		result.Message = fmt.Sprintf("Registry %s lacks %v", d.ArtifactName(), missing)
		result.Details = map[string]any{"missing": missing}
		return result, true
	}

	result.Passed = true
	result.Message = fmt.Sprintf("Registry %s supports setAddress and getAddr", d.ArtifactName())
	result.Details = map[string]any{"batch": a.HasMethod(registry.MethodSetAddressBatch)}
	return result, true
}

// getRequiredFunding returns the required funding in wei based on the network.
func (c *Checker) getRequiredFunding(chainID uint64) *big.Int {
	switch chainID {
	case 1: // Ethereum Mainnet
		return new(big.Int).Mul(big.NewInt(5), big.NewInt(1e18))
	case 31337, 1337: // local development chains
		return big.NewInt(0)
	default:
		return big.NewInt(1e18)
	}
}

// weiToETHString converts wei to a human-readable ETH string.
func weiToETHString(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	ethFloat := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(1e18))
	return ethFloat.Text('f', 4)
}

// GetNetworkName returns a human-readable name for a chain ID.
func GetNetworkName(chainID uint64) string {
	switch chainID {
	case 1:
		return "Ethereum Mainnet"
	case 11155111:
		return "Sepolia"
	case 17000:
		return "Holesky"
	case 31337:
		return "Hardhat"
	case 1337:
		return "Local devnet"
	default:
		return fmt.Sprintf("Chain %d", chainID)
	}
}

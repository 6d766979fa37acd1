package preflight

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Bidon15/rollupctl/internal/plan"
)

const (
	testDeployer = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	hardhatDir   = "../artifacts/testdata/hardhat"
)

type MockClient struct {
	mock.Mock
}

func (m *MockClient) ChainID(ctx context.Context) (*big.Int, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*big.Int), args.Error(1)
}

func (m *MockClient) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	args := m.Called(ctx, account, blockNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*big.Int), args.Error(1)
}

func (m *MockClient) Close() {
	m.Called()
}

func dialerFor(c Client) Dialer {
	return func(context.Context, string) (Client, error) { return c, nil }
}

func validRequest() *Request {
	return &Request{
		RPCURL:   "http://localhost:8545",
		ChainID:  11155111,
		Deployer: testDeployer,
	}
}

func TestNewChecker(t *testing.T) {
	checker := NewChecker()
	assert.NotNil(t, checker)
	assert.Equal(t, DefaultTimeout, checker.timeout)
	assert.Equal(t, 5*time.Second, NewChecker().WithTimeout(5*time.Second).timeout)
}

func TestChecker_ValidateRequest(t *testing.T) {
	checker := NewChecker()

	tests := []struct {
		name    string
		mutate  func(*Request)
		wantErr string
	}{
		{name: "valid request", mutate: func(*Request) {}},
		{name: "missing rpc_url", mutate: func(r *Request) { r.RPCURL = "" }, wantErr: "rpc_url is required"},
		{name: "missing chain_id", mutate: func(r *Request) { r.ChainID = 0 }, wantErr: "chain_id is required"},
		{name: "missing deployer", mutate: func(r *Request) { r.Deployer = "" }, wantErr: "deployer address is required"},
		{name: "invalid deployer", mutate: func(r *Request) { r.Deployer = "not-an-address" }, wantErr: "not a valid Ethereum address"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest()
			tc.mutate(req)
			err := checker.validateRequest(req)
			if tc.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tc.wantErr)
			}
		})
	}
}

func TestChecker_RunChecks_AllPass(t *testing.T) {
	client := new(MockClient)
	client.On("ChainID", mock.Anything).Return(big.NewInt(11155111), nil)
	client.On("BalanceAt", mock.Anything, common.HexToAddress(testDeployer), (*big.Int)(nil)).
		Return(new(big.Int).Mul(big.NewInt(2), big.NewInt(1e18)), nil)
	client.On("Close").Return()

	resp, err := NewChecker().WithDialer(dialerFor(client)).RunChecks(context.Background(), validRequest())
	require.NoError(t, err)

	assert.True(t, resp.OK)
	require.Len(t, resp.Checks, 3)
	assert.Equal(t, CheckRPCReachable, resp.Checks[0].Name)
	assert.Equal(t, CheckChainIDMatch, resp.Checks[1].Name)
	assert.Equal(t, CheckDeployerBalance, resp.Checks[2].Name)
	assert.Equal(t, "2.0000", resp.CurrentBalanceETH)
	assert.Equal(t, "1.0000", resp.RequiredFundingETH)
	assert.Equal(t, "Sepolia", resp.Network)
	client.AssertExpectations(t)
}

func TestChecker_RunChecks_Failures(t *testing.T) {
	tests := []struct {
		name    string
		chainID *big.Int
		balance *big.Int
		failed  CheckName
	}{
		{name: "chain id mismatch", chainID: big.NewInt(1), balance: big.NewInt(1e18), failed: CheckChainIDMatch},
		{name: "insufficient balance", chainID: big.NewInt(11155111), balance: big.NewInt(1e17), failed: CheckDeployerBalance},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client := new(MockClient)
			client.On("ChainID", mock.Anything).Return(tc.chainID, nil)
			client.On("BalanceAt", mock.Anything, mock.Anything, mock.Anything).Return(tc.balance, nil)
			client.On("Close").Return()

			resp, err := NewChecker().WithDialer(dialerFor(client)).RunChecks(context.Background(), validRequest())
			require.NoError(t, err)
			assert.False(t, resp.OK)
			for _, c := range resp.Checks {
				assert.Equal(t, c.Name != tc.failed, c.Passed, c.Name)
			}
		})
	}
}

func TestChecker_RunChecks_Unreachable(t *testing.T) {
	dial := func(context.Context, string) (Client, error) { return nil, errors.New("connection refused") }

	resp, err := NewChecker().WithDialer(dial).RunChecks(context.Background(), validRequest())
	require.NoError(t, err)
	require.Len(t, resp.Checks, 1)
	assert.Equal(t, CheckRPCReachable, resp.Checks[0].Name)
	assert.False(t, resp.Checks[0].Passed)
	assert.False(t, resp.OK)
}

func TestChecker_RunChecks_UnresponsiveClientIsClosed(t *testing.T) {
	client := new(MockClient)
	client.On("ChainID", mock.Anything).Return(nil, errors.New("timeout"))
	client.On("Close").Return().Once()

	resp, err := NewChecker().WithDialer(dialerFor(client)).RunChecks(context.Background(), validRequest())
	require.NoError(t, err)
	assert.False(t, resp.OK)
	assert.Len(t, resp.Checks, 1)
	client.AssertExpectations(t)
}

func TestChecker_RunChecks_InvalidRequest(t *testing.T) {
	req := validRequest()
	req.Deployer = ""

	resp, err := NewChecker().RunChecks(context.Background(), req)
	assert.Nil(t, resp)
	assert.ErrorContains(t, err, "deployer address is required")
}

func TestChecker_ArtifactChecks(t *testing.T) {
	build := func(t *testing.T, f *plan.File) *plan.Plan {
		p, err := plan.Build(f, plan.WithEnv(func(string) (string, bool) { return "", false }))
		require.NoError(t, err)
		return p
	}
	run := func(t *testing.T, p *plan.Plan) *Response {
		dial := func(context.Context, string) (Client, error) { return nil, errors.New("offline") }
		req := validRequest()
		req.Plan = p
		req.ArtifactsDir = hardhatDir
		resp, err := NewChecker().WithDialer(dial).RunChecks(context.Background(), req)
		require.NoError(t, err)
		return resp
	}
	byName := func(resp *Response) map[CheckName]CheckResult {
		out := make(map[CheckName]CheckResult)
		for _, c := range resp.Checks {
			out[c.Name] = c
		}
		return out
	}

	t.Run("registry supports writes", func(t *testing.T) {
		checks := byName(run(t, build(t, &plan.File{
			Registry:   "AddressManager",
			Components: []plan.Descriptor{{Name: "AddressManager"}},
		})))
		assert.True(t, checks[CheckArtifactsPresent].Passed)
		require.Contains(t, checks, CheckRegistryInterface)
		assert.True(t, checks[CheckRegistryInterface].Passed)
		assert.Equal(t, true, checks[CheckRegistryInterface].Details["batch"])
	})

	t.Run("proxy contract is not a registry", func(t *testing.T) {
		checks := byName(run(t, build(t, &plan.File{
			Registry:   "Proxy",
			Components: []plan.Descriptor{{Name: "Proxy", Artifact: "TransparentUpgradeableProxy"}},
		})))
		assert.True(t, checks[CheckArtifactsPresent].Passed)
		assert.False(t, checks[CheckRegistryInterface].Passed)
	})

	t.Run("missing artifacts", func(t *testing.T) {
		checks := byName(run(t, build(t, &plan.File{
			Components: []plan.Descriptor{{Name: "AddressManager"}, {Name: "Whitelist"}},
		})))
		assert.False(t, checks[CheckArtifactsPresent].Passed)
		assert.Contains(t, checks[CheckArtifactsPresent].Message, "Whitelist")
		assert.NotContains(t, checks, CheckRegistryInterface)
	})
}

func TestChecker_GetRequiredFunding(t *testing.T) {
	checker := NewChecker()

	tests := []struct {
		name     string
		chainID  uint64
		expected *big.Int
	}{
		{name: "mainnet requires 5 ETH", chainID: 1, expected: new(big.Int).Mul(big.NewInt(5), big.NewInt(1e18))},
		{name: "sepolia requires 1 ETH", chainID: 11155111, expected: big.NewInt(1e18)},
		{name: "hardhat requires nothing", chainID: 31337, expected: big.NewInt(0)},
		{name: "unknown chain requires 1 ETH", chainID: 999999, expected: big.NewInt(1e18)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, checker.getRequiredFunding(tc.chainID))
		})
	}
}

func TestWeiToETHString(t *testing.T) {
	tests := []struct {
		name     string
		wei      *big.Int
		expected string
	}{
		{name: "nil returns 0", wei: nil, expected: "0"},
		{name: "0 wei", wei: big.NewInt(0), expected: "0.0000"},
		{name: "1 ETH", wei: big.NewInt(1e18), expected: "1.0000"},
		{name: "0.1234 ETH", wei: big.NewInt(1234e14), expected: "0.1234"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, weiToETHString(tc.wei))
		})
	}
}

func TestGetNetworkName(t *testing.T) {
	assert.Equal(t, "Ethereum Mainnet", GetNetworkName(1))
	assert.Equal(t, "Hardhat", GetNetworkName(31337))
	assert.Equal(t, "Chain 999999", GetNetworkName(999999))
}

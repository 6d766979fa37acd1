package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bidon15/rollupctl/internal/deploy"
	"github.com/Bidon15/rollupctl/internal/journal"
	"github.com/Bidon15/rollupctl/plans"
)

const (
	testFrom     = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	hardhatDir   = "../../internal/artifacts/testdata/hardhat"
	samplePlan   = "testdata/plan.yaml"
	singlePlan   = "testdata/single.yaml"
	localChainID = "31337"
)

type result struct {
	stdout string
	stderr string
	code   int
}

func execute(t *testing.T, args ...string) result {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	var out, errOut bytes.Buffer
	code := Execute(context.Background(), args, &out, &errOut)
	return result{stdout: out.String(), stderr: errOut.String(), code: code}
}

func TestVersionCommand(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		wantContain []string
	}{
		{name: "basic version", args: []string{"version"}, wantContain: []string{"rollupctl dev"}},
		{name: "verbose version", args: []string{"version", "--verbose"}, wantContain: []string{"rollupctl dev", "commit:", "built:"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := execute(t, tc.args...)
			require.Equal(t, deploy.ExitOK, res.code, res.stderr)
			for _, want := range tc.wantContain {
				assert.Contains(t, res.stdout, want)
			}
		})
	}
}

func TestRootCommand_Help(t *testing.T) {
	res := execute(t, "--help")
	require.Equal(t, deploy.ExitOK, res.code)
	for _, want := range []string{"ROLLUPCTL_RPC_URL", "--dry-run", "--chain-id", "deploy", "upgrade", "preflight"} {
		assert.Contains(t, res.stdout, want)
	}
}

func TestPlanInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plans", "plan.yaml")

	res := execute(t, "plan", "init", path)
	require.Equal(t, deploy.ExitOK, res.code, res.stderr)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, plans.L1Rollup, data)

	res = execute(t, "plan", "init", path)
	assert.Equal(t, deploy.ExitFailed, res.code)
	assert.Contains(t, res.stderr, "already exists")

	res = execute(t, "plan", "init", "--force", path)
	assert.Equal(t, deploy.ExitOK, res.code, res.stderr)

	res = execute(t, "plan", "validate", "--plan", path)
	require.Equal(t, deploy.ExitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "15 components, 10 initializers, 3 externals")
}

func TestPlanInit_L2Template(t *testing.T) {
	path := filepath.Join(t.TempDir(), "l2.yaml")

	res := execute(t, "plan", "init", "--template", "l2-rollup", path)
	require.Equal(t, deploy.ExitOK, res.code, res.stderr)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, plans.L2Rollup, data)

	t.Setenv("L2_FEE_COLLECTOR_OWNER", "0x00000000000000000000000000000000000000aa")
	res = execute(t, "plan", "validate", "--plan", path)
	require.Equal(t, deploy.ExitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "2 components, 2 initializers, 0 externals")

	res = execute(t, "plan", "init", "--template", "l3", filepath.Join(t.TempDir(), "x.yaml"))
	assert.Equal(t, deploy.ExitFailed, res.code)
	assert.Contains(t, res.stderr, "unknown plan template")
}

func TestPlanValidate_UnresolvedReference(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
version: 1
components:
  - name: A
    constructor: [{ref: Missing}]
`), 0o600))

	res := execute(t, "plan", "validate", "--plan", path)
	assert.Equal(t, deploy.ExitFailed, res.code)
	assert.Contains(t, res.stderr, "dependency unresolved")
	assert.Contains(t, res.stderr, "Missing")
}

func TestPlanShow(t *testing.T) {
	res := execute(t, "plan", "show", "--plan", samplePlan)
	require.Equal(t, deploy.ExitOK, res.code, res.stderr)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "plan_show", []byte(res.stdout))
}

func TestPlanShow_JSON(t *testing.T) {
	res := execute(t, "plan", "show", "--json", "--plan", samplePlan)
	require.Equal(t, deploy.ExitOK, res.code, res.stderr)

	var out struct {
		Registry   string `json:"registry"`
		Components []struct {
			Name         string   `json:"name"`
			Dependencies []string `json:"dependencies"`
		} `json:"components"`
		Initializers []struct {
			Name  string   `json:"name"`
			After []string `json:"after"`
		} `json:"initializers"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &out))
	assert.Equal(t, "Registry", out.Registry)
	require.Len(t, out.Components, 3)
	assert.Equal(t, []string{"A"}, out.Components[2].Dependencies)
	require.Len(t, out.Initializers, 2)
	assert.Equal(t, []string{"A"}, out.Initializers[1].After)
}

func TestDeploy_DryRun(t *testing.T) {
	manifestPath := filepath.Join(t.TempDir(), "manifest.json")

	res := execute(t, "deploy", "--dry-run", "-q",
		"--chain-id", localChainID,
		"--from", testFrom,
		"--plan", singlePlan,
		"--artifacts", hardhatDir,
		"--manifest", manifestPath,
	)
	require.Equal(t, deploy.ExitOK, res.code, res.stderr)

	var m map[string]string
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &m))
	want := crypto.CreateAddress(common.HexToAddress(testFrom), 0)
	assert.Equal(t, map[string]string{"AddressManager": want.Hex()}, m)
	assert.Contains(t, res.stderr, "2 transactions signed")

	_, err := os.Stat(manifestPath)
	assert.True(t, os.IsNotExist(err), "dry run must not write the manifest")
}

func TestAttach_UnboundComponentFailsBeforeAnyTransaction(t *testing.T) {
	res := execute(t, "attach", "--dry-run",
		"--chain-id", localChainID,
		"--from", testFrom,
		"--plan", singlePlan,
		"--artifacts", hardhatDir,
		"--manifest", filepath.Join(t.TempDir(), "manifest.json"),
	)
	assert.Equal(t, deploy.ExitFailed, res.code)
	assert.Contains(t, res.stderr, "AddressManager")
	assert.NotContains(t, res.stderr, "Re-run")
}

func TestDeploy_InvalidConfig(t *testing.T) {
	res := execute(t, "deploy", "--plan", singlePlan, "--artifacts", hardhatDir)
	assert.Equal(t, deploy.ExitFailed, res.code)
	assert.Contains(t, res.stderr, "chain_id is required")
	assert.Contains(t, res.stderr, "private_key is required")
}

func TestManifestShow(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
  "AddressManager": "0x5FbDB2315678afecb367f032d93F642f64180aa3",
  "DAO": "0x0000000000000000000000000000000000000042"
}
`), 0o600))

	res := execute(t, "manifest", "show", "--manifest", path)
	require.Equal(t, deploy.ExitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "AddressManager")
	assert.Contains(t, res.stdout, "0x5FbDB2315678afecb367f032d93F642f64180aa3")

	res = execute(t, "manifest", "show", "--json", "--manifest", path)
	require.Equal(t, deploy.ExitOK, res.code, res.stderr)
	var m map[string]string
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &m))
	assert.Len(t, m, 2)

	res = execute(t, "manifest", "show", "--manifest", filepath.Join(dir, "missing.json"))
	require.Equal(t, deploy.ExitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "No addresses recorded")
}

func TestRuns(t *testing.T) {
	ctx := context.Background()
	state := filepath.Join(t.TempDir(), "state.db")

	repo, err := journal.OpenSQLite(state)
	require.NoError(t, err)
	run := &journal.Run{Mode: "deploy", ChainID: 31337}
	require.NoError(t, repo.CreateRun(ctx, run))
	require.NoError(t, repo.UpdateRunStatus(ctx, run.ID, journal.StatusCompleted, nil))
	require.NoError(t, repo.UpsertInstance(ctx, &journal.Instance{
		ChainID: 31337,
		Name:    "AddressManager",
		Address: "0x5FbDB2315678afecb367f032d93F642f64180aa3",
		RunID:   run.ID,
	}))
	require.NoError(t, repo.Close())

	res := execute(t, "runs", "list", "--state", state)
	require.Equal(t, deploy.ExitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, run.ID.String())
	assert.Contains(t, res.stdout, "completed")

	res = execute(t, "runs", "instances", "--state", state, "--chain-id", localChainID)
	require.Equal(t, deploy.ExitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "AddressManager")

	res = execute(t, "runs", "instances", "--state", state, "--chain-id", "1")
	require.Equal(t, deploy.ExitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "No instances recorded.")
}

func TestPreflight_Unreachable(t *testing.T) {
	res := execute(t, "preflight", "--skip-artifacts",
		"--rpc-url", "http://127.0.0.1:1",
		"--chain-id", localChainID,
		"--from", testFrom,
	)
	assert.Equal(t, deploy.ExitFailed, res.code)
	assert.Contains(t, res.stdout, "rpc_reachable")
	assert.Contains(t, res.stderr, "preflight checks failed")
}

func TestPrintError(t *testing.T) {
	var buf bytes.Buffer
	hash := common.HexToHash("0xabc")
	printError(&buf, &deploy.Error{
		Kind:       deploy.RegistrationFailure,
		Phase:      deploy.PhaseRegister,
		TxHash:     hash,
		Progressed: true,
	})

	out := buf.String()
	assert.Contains(t, out, "Error:")
	assert.Contains(t, out, "Tx: "+hash.Hex())
	assert.Contains(t, out, "Re-run the same command to resume")
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func testViper(t *testing.T, yaml string) *viper.Viper {
	t.Helper()
	dir := t.TempDir()
	v := viper.New()
	v.SetEnvPrefix("ROLLUPCTL")
	v.AutomaticEnv()
	SetDefaults(v)
	if yaml != "" {
		path := filepath.Join(dir, "rollupctl.yaml")
		require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("rollupctl")
		v.SetConfigType("yaml")
		v.AddConfigPath(dir)
	}
	return v
}

func TestLoad_FromFile(t *testing.T) {
	v := testViper(t, `
rpc_url: http://localhost:8545
chain_id: 31337
private_key: `+testKey+`
plan: plans/l1.yaml
parallelism: 4
confirm_timeout: 30s
log_format: JSON
`)

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8545", cfg.RPCURL)
	assert.Equal(t, uint64(31337), cfg.ChainID)
	assert.Equal(t, "plans/l1.yaml", cfg.Plan)
	assert.Equal(t, 4, cfg.Parallelism)
	assert.Equal(t, 30*time.Second, cfg.ConfirmTimeout)
	assert.Equal(t, "json", cfg.LogFormat)

	assert.Equal(t, DefaultArtifacts, cfg.Artifacts)
	assert.Equal(t, DefaultManifest, cfg.Manifest)
	assert.Equal(t, DefaultState, cfg.State)
	assert.Equal(t, DefaultGasBoostPercent, cfg.GasBoostPercent)
	assert.Equal(t, uint64(DefaultGasLimit), cfg.DefaultGasLimit)
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	t.Setenv("ROLLUPCTL_CHAIN_ID", "11155111")
	t.Setenv("ROLLUPCTL_PRIVATE_KEY", testKey)

	v := testViper(t, `
rpc_url: http://localhost:8545
chain_id: 31337
`)
	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, uint64(11155111), cfg.ChainID)
	assert.Equal(t, testKey, cfg.PrivateKey)
}

func TestLoad_MissingFileIsNotAnError(t *testing.T) {
	t.Setenv("ROLLUPCTL_RPC_URL", "http://localhost:8545")
	t.Setenv("ROLLUPCTL_CHAIN_ID", "1337")
	t.Setenv("ROLLUPCTL_PRIVATE_KEY", testKey)

	cfg, err := Load(testViper(t, ""))
	require.NoError(t, err)
	assert.Equal(t, uint64(1337), cfg.ChainID)
}

func TestLoad_MalformedFile(t *testing.T) {
	_, err := Load(testViper(t, "chain_id: [1, 2\n"))
	assert.ErrorContains(t, err, "read config")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := &Config{
			RPCURL:     "http://localhost:8545",
			ChainID:    31337,
			PrivateKey: "0x" + testKey,
		}
		c.ApplyDefaults()
		return c
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr []string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:    "missing chain id",
			mutate:  func(c *Config) { c.ChainID = 0 },
			wantErr: []string{"chain_id is required"},
		},
		{
			name:    "missing key and rpc",
			mutate:  func(c *Config) { c.RPCURL = ""; c.PrivateKey = "" },
			wantErr: []string{"rpc_url is required", "private_key is required"},
		},
		{
			name:    "bad rpc url",
			mutate:  func(c *Config) { c.RPCURL = "localhost" },
			wantErr: []string{"rpc_url must be a valid URL"},
		},
		{
			name:    "key is not hex",
			mutate:  func(c *Config) { c.PrivateKey = "secret" },
			wantErr: []string{"private_key must be hex encoded"},
		},
		{
			name:    "parallelism out of range",
			mutate:  func(c *Config) { c.Parallelism = 100 },
			wantErr: []string{"parallelism must be at most 64"},
		},
		{
			name:    "gas boost below 100",
			mutate:  func(c *Config) { c.GasBoostPercent = 50 },
			wantErr: []string{"gas_boost_percent must be at least 100"},
		},
		{
			name:    "unknown log level",
			mutate:  func(c *Config) { c.LogLevel = "trace" },
			wantErr: []string{"log_level must be one of: debug info warn error"},
		},
		{
			name:    "dry run with deployer address",
			mutate:  func(c *Config) { c.DryRun = true; c.RPCURL = ""; c.PrivateKey = ""; c.From = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266" },
			wantErr: nil,
		},
		{
			name:    "dry run without account",
			mutate:  func(c *Config) { c.DryRun = true; c.PrivateKey = "" },
			wantErr: []string{"private_key or from is required"},
		},
		{
			name:    "bad from address",
			mutate:  func(c *Config) { c.DryRun = true; c.PrivateKey = ""; c.From = "0x1234" },
			wantErr: []string{"from must be an Ethereum address"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := valid()
			tc.mutate(c)
			err := c.Validate()
			if len(tc.wantErr) == 0 {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrInvalid)
			for _, want := range tc.wantErr {
				assert.ErrorContains(t, err, want)
			}
		})
	}
}

func TestMinGasPrice(t *testing.T) {
	c := &Config{MinGasPriceGwei: "1.5"}
	wei, err := c.MinGasPrice()
	require.NoError(t, err)
	assert.Equal(t, "1500000000", wei.String())

	c.MinGasPriceGwei = "abc"
	_, err = c.MinGasPrice()
	assert.Error(t, err)
}

func TestDecode_SkipsValidation(t *testing.T) {
	cfg, err := Decode(testViper(t, "plan: other.yaml\n"))
	require.NoError(t, err)
	assert.Equal(t, "other.yaml", cfg.Plan)
	assert.Zero(t, cfg.ChainID)

	_, err = Load(testViper(t, "plan: other.yaml\n"))
	assert.ErrorIs(t, err, ErrInvalid)
}

// Package config loads rollupctl settings from flags, ROLLUPCTL_ environment
// variables and an optional rollupctl.yaml, in that order of priority.
package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/Bidon15/rollupctl/internal/plan"
)

// ErrInvalid is returned when the configuration fails validation.
var ErrInvalid = errors.New("config: invalid")

// Defaults.
const (
	DefaultPlan            = "plan.yaml"
	DefaultArtifacts       = "artifacts"
	DefaultManifest        = "deployments/manifest.json"
	DefaultState           = ".rollupctl/state.db"
	DefaultParallelism     = 1
	DefaultGasBoostPercent = 150
	DefaultMinGasPriceGwei = "2"
	DefaultGasLimit        = 8_000_000
	DefaultConfirmTimeout  = 5 * time.Minute
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "text"
)

// Config is the resolved configuration of one invocation.
type Config struct {
	RPCURL  string `mapstructure:"rpc_url" validate:"omitempty,url"`
	ChainID uint64 `mapstructure:"chain_id" validate:"required"`

	PrivateKey string `mapstructure:"private_key" validate:"omitempty,hexadecimal"`
	// From is the deploying account for dry runs without a key.
	From string `mapstructure:"from" validate:"omitempty,eth_addr"`

	Plan      string `mapstructure:"plan" validate:"required"`
	Artifacts string `mapstructure:"artifacts" validate:"required"`
	Manifest  string `mapstructure:"manifest" validate:"required"`
	// State is the journal DSN: a SQLite path, a postgres:// URL or "memory".
	State string `mapstructure:"state"`

	Parallelism     int           `mapstructure:"parallelism" validate:"min=1,max=64"`
	GasBoostPercent int           `mapstructure:"gas_boost_percent" validate:"min=100,max=1000"`
	MinGasPriceGwei string        `mapstructure:"min_gas_price_gwei" validate:"omitempty,numeric"`
	DefaultGasLimit uint64        `mapstructure:"default_gas_limit" validate:"min=21000"`
	ConfirmTimeout  time.Duration `mapstructure:"confirm_timeout"`

	DryRun      bool   `mapstructure:"dry_run"`
	MetricsFile string `mapstructure:"metrics_file"`

	LogLevel  string `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	LogFormat string `mapstructure:"log_format" validate:"oneof=text json"`
	Quiet     bool   `mapstructure:"quiet"`
}

// New returns a viper instance reading rollupctl.yaml from the working
// directory or the home directory, and ROLLUPCTL_ variables.
func New() *viper.Viper {
	v := viper.New()
	v.SetConfigName("rollupctl")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(home)
	}
	v.SetEnvPrefix("ROLLUPCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// SetDefaults registers every key so environment variables apply to keys
// that have no file value.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("rpc_url", "")
	v.SetDefault("chain_id", 0)
	v.SetDefault("private_key", "")
	v.SetDefault("from", "")
	v.SetDefault("plan", DefaultPlan)
	v.SetDefault("artifacts", DefaultArtifacts)
	v.SetDefault("manifest", DefaultManifest)
	v.SetDefault("state", DefaultState)
	v.SetDefault("parallelism", DefaultParallelism)
	v.SetDefault("gas_boost_percent", DefaultGasBoostPercent)
	v.SetDefault("min_gas_price_gwei", DefaultMinGasPriceGwei)
	v.SetDefault("default_gas_limit", DefaultGasLimit)
	v.SetDefault("confirm_timeout", DefaultConfirmTimeout)
	v.SetDefault("dry_run", false)
	v.SetDefault("metrics_file", "")
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("log_format", DefaultLogFormat)
	v.SetDefault("quiet", false)
}

// Load decodes v and validates the result.
func Load(v *viper.Viper) (*Config, error) {
	cfg, err := Decode(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Decode reads the config file, if any, and decodes v with defaults
// applied. A missing config file is not an error.
func Decode(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Plan == "" {
		c.Plan = DefaultPlan
	}
	if c.Artifacts == "" {
		c.Artifacts = DefaultArtifacts
	}
	if c.Manifest == "" {
		c.Manifest = DefaultManifest
	}
	if c.Parallelism == 0 {
		c.Parallelism = DefaultParallelism
	}
	if c.GasBoostPercent == 0 {
		c.GasBoostPercent = DefaultGasBoostPercent
	}
	if c.MinGasPriceGwei == "" {
		c.MinGasPriceGwei = DefaultMinGasPriceGwei
	}
	if c.DefaultGasLimit == 0 {
		c.DefaultGasLimit = DefaultGasLimit
	}
	if c.ConfirmTimeout == 0 {
		c.ConfirmTimeout = DefaultConfirmTimeout
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = DefaultLogFormat
	}
	c.LogLevel = strings.ToLower(c.LogLevel)
	c.LogFormat = strings.ToLower(c.LogFormat)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// Validate checks field constraints, then the settings that depend on
// each other.
func (c *Config) Validate() error {
	var problems []string
	if err := validate.Struct(c); err != nil {
		var fieldErrors validator.ValidationErrors
		if !errors.As(err, &fieldErrors) {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		for _, fe := range fieldErrors {
			problems = append(problems, describe(fe))
		}
	}

	if !c.DryRun {
		if c.RPCURL == "" {
			problems = append(problems, "rpc_url is required")
		}
		if c.PrivateKey == "" {
			problems = append(problems, "private_key is required")
		}
	} else if c.PrivateKey == "" && c.From == "" {
		problems = append(problems, "private_key or from is required for a dry run")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

func describe(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "url":
		return field + " must be a valid URL"
	case "hexadecimal":
		return field + " must be hex encoded"
	case "eth_addr":
		return field + " must be an Ethereum address"
	case "numeric":
		return field + " must be a number"
	case "min":
		return field + " must be at least " + fe.Param()
	case "max":
		return field + " must be at most " + fe.Param()
	case "oneof":
		return field + " must be one of: " + fe.Param()
	default:
		return field + " is invalid"
	}
}

// MinGasPrice returns the gas price floor in wei.
func (c *Config) MinGasPrice() (*big.Int, error) {
	wei, err := plan.ParseUnits(c.MinGasPriceGwei, 9)
	if err != nil {
		return nil, fmt.Errorf("min_gas_price_gwei: %w", err)
	}
	return wei, nil
}

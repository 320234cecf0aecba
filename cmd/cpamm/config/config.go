// Package config loads the cpamm binary configuration from a YAML file,
// CPAMM_ environment variables and command line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/holiman/uint256"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/defistate/cpamm-engine/protocols/cpamm"
	"github.com/defistate/cpamm-engine/protocols/cpamm/basefee"
	"github.com/defistate/cpamm-engine/protocols/cpamm/calculator/transferfee"
	"github.com/defistate/cpamm-engine/protocols/cpamm/constants"
	"github.com/defistate/cpamm-engine/protocols/cpamm/types"
	"github.com/defistate/cpamm-engine/protocols/mintregistry"
)

const (
	ClockSystem = "system"
	ClockManual = "manual"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	Cluster         string        `mapstructure:"cluster"`
	ProgramID       string        `mapstructure:"program-id"`
	Listen          string        `mapstructure:"listen"`
	AllowedOrigins  []string      `mapstructure:"allowed-origins"`
	LogLevel        string        `mapstructure:"log-level"`
	RefreshInterval time.Duration `mapstructure:"refresh-interval"`
	BufferSize      int           `mapstructure:"buffer-size"`

	Clock    ClockConfig    `mapstructure:"clock"`
	Postgres PostgresConfig `mapstructure:"postgres"`

	Mints []MintConfig `mapstructure:"mints"`
	Pools []PoolConfig `mapstructure:"pools"`
}

type ClockConfig struct {
	Mode         string        `mapstructure:"mode"`
	Slot         uint64        `mapstructure:"slot"`
	Timestamp    uint64        `mapstructure:"timestamp"`
	GenesisUnix  int64         `mapstructure:"genesis-unix"`
	SlotDuration time.Duration `mapstructure:"slot-duration"`
}

// PostgresConfig enables the swap event sink when DSN is set.
type PostgresConfig struct {
	DSN           string        `mapstructure:"dsn"`
	BatchSize     int           `mapstructure:"batch-size"`
	FlushInterval time.Duration `mapstructure:"flush-interval"`
}

type MintConfig struct {
	Address        string `mapstructure:"address"`
	Symbol         string `mapstructure:"symbol"`
	Decimals       uint8  `mapstructure:"decimals"`
	TransferFeeBps uint16 `mapstructure:"transfer-fee-bps"`
	TransferFeeMax uint64 `mapstructure:"transfer-fee-max"`
}

// PoolConfig describes a pool as it is seeded into the engine.
// Big integers are decimal strings; BaseFee is the hex wire record.
type PoolConfig struct {
	Address    string `mapstructure:"address"`
	TokenAMint string `mapstructure:"token-a-mint"`
	TokenBMint string `mapstructure:"token-b-mint"`
	Partner    string `mapstructure:"partner"`

	BaseFee            string `mapstructure:"base-fee"`
	ProtocolFeePercent *uint8 `mapstructure:"protocol-fee-percent"`
	PartnerFeePercent  uint8  `mapstructure:"partner-fee-percent"`
	ReferralFeePercent *uint8 `mapstructure:"referral-fee-percent"`
	DynamicFee         bool   `mapstructure:"dynamic-fee"`

	Liquidity     string `mapstructure:"liquidity"`
	SqrtPrice     string `mapstructure:"sqrt-price"`
	SqrtMinPrice  string `mapstructure:"sqrt-min-price"`
	SqrtMaxPrice  string `mapstructure:"sqrt-max-price"`
	InitSqrtPrice string `mapstructure:"init-sqrt-price"`

	ActivationPoint uint64 `mapstructure:"activation-point"`
	ActivationType  string `mapstructure:"activation-type"`
	CollectFeeMode  string `mapstructure:"collect-fee-mode"`
	Disabled        bool   `mapstructure:"disabled"`
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CPAMM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	v.SetDefault("cluster", "localnet")
	v.SetDefault("program-id", "")
	v.SetDefault("listen", ":8545")
	v.SetDefault("allowed-origins", []string{"*"})
	v.SetDefault("log-level", "info")
	v.SetDefault("refresh-interval", time.Duration(0))
	v.SetDefault("buffer-size", 64)
	v.SetDefault("clock.mode", ClockSystem)
	v.SetDefault("clock.slot", uint64(0))
	v.SetDefault("clock.timestamp", uint64(0))
	v.SetDefault("clock.genesis-unix", int64(0))
	v.SetDefault("clock.slot-duration", 400*time.Millisecond)
	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.batch-size", 100)
	v.SetDefault("postgres.flush-interval", time.Second)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("cpamm")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// --- Builders ---

// BuildClock returns the clock selected by Clock.Mode.
func (c Config) BuildClock() (cpamm.Clock, error) {
	switch c.Clock.Mode {
	case ClockSystem, "":
		return cpamm.SystemClock{
			Genesis:      time.Unix(c.Clock.GenesisUnix, 0),
			SlotDuration: c.Clock.SlotDuration,
		}, nil
	case ClockManual:
		return cpamm.NewManualClock(c.Clock.Slot, c.Clock.Timestamp), nil
	default:
		return nil, fmt.Errorf("clock: unknown mode %q", c.Clock.Mode)
	}
}

// BuildProgramID parses the program id, or returns the zero key when unset.
func (c Config) BuildProgramID() (types.Pubkey, error) {
	return parseOptionalKey(c.ProgramID)
}

// BuildMints converts the configured mints into registry entries.
func (c Config) BuildMints() ([]mintregistry.Mint, error) {
	mints := make([]mintregistry.Mint, 0, len(c.Mints))
	for i, m := range c.Mints {
		address, err := types.ParsePubkey(m.Address)
		if err != nil {
			return nil, fmt.Errorf("mints[%d].address: %w", i, err)
		}
		mints = append(mints, mintregistry.Mint{
			Address:  address,
			Symbol:   m.Symbol,
			Decimals: m.Decimals,
			TransferFee: transferfee.Config{
				BasisPoints: m.TransferFeeBps,
				MaximumFee:  m.TransferFeeMax,
			},
		})
	}
	return mints, nil
}

// BuildPools converts the configured pools. Each pool is validated and,
// when DynamicFee is set, starts with the default dynamic fee for its cliff fee.
func (c Config) BuildPools(clock cpamm.Clock) ([]*cpamm.Pool, error) {
	pools := make([]*cpamm.Pool, 0, len(c.Pools))
	for i, pc := range c.Pools {
		pool, err := pc.build(clock)
		if err != nil {
			return nil, fmt.Errorf("pools[%d]: %w", i, err)
		}
		pools = append(pools, pool)
	}
	return pools, nil
}

func (pc PoolConfig) build(clock cpamm.Clock) (*cpamm.Pool, error) {
	pool := &cpamm.Pool{
		Version:          constants.CurrentPoolVersion,
		ActivationPoint:  pc.ActivationPoint,
		FeeAPerLiquidity: new(uint256.Int),
		FeeBPerLiquidity: new(uint256.Int),
	}

	var err error
	if pool.Address, err = types.ParsePubkey(pc.Address); err != nil {
		return nil, fmt.Errorf("address: %w", err)
	}
	if pool.TokenAMint, err = types.ParsePubkey(pc.TokenAMint); err != nil {
		return nil, fmt.Errorf("token-a-mint: %w", err)
	}
	if pool.TokenBMint, err = types.ParsePubkey(pc.TokenBMint); err != nil {
		return nil, fmt.Errorf("token-b-mint: %w", err)
	}
	if pool.Partner, err = parseOptionalKey(pc.Partner); err != nil {
		return nil, fmt.Errorf("partner: %w", err)
	}

	if pool.ActivationType, err = parseActivationType(pc.ActivationType); err != nil {
		return nil, err
	}
	if pool.CollectFeeMode, err = parseCollectFeeMode(pc.CollectFeeMode); err != nil {
		return nil, err
	}
	if pc.Disabled {
		pool.Status = cpamm.PoolDisabled
	}

	if pool.Liquidity, err = parseU256("liquidity", pc.Liquidity); err != nil {
		return nil, err
	}
	if pool.SqrtPrice, err = parseU256("sqrt-price", pc.SqrtPrice); err != nil {
		return nil, err
	}
	if pool.SqrtMinPrice, err = parseU256("sqrt-min-price", pc.SqrtMinPrice); err != nil {
		return nil, err
	}
	if pool.SqrtMaxPrice, err = parseU256("sqrt-max-price", pc.SqrtMaxPrice); err != nil {
		return nil, err
	}
	initSqrtPrice := pc.InitSqrtPrice
	if initSqrtPrice == "" {
		initSqrtPrice = pc.SqrtPrice
	}
	if pool.PoolFees.InitSqrtPrice, err = parseU256("init-sqrt-price", initSqrtPrice); err != nil {
		return nil, err
	}

	var params basefee.Parameters
	if err := params.UnmarshalText([]byte(pc.BaseFee)); err != nil {
		return nil, fmt.Errorf("base-fee: %w", err)
	}
	if pool.PoolFees.BaseFee, err = basefee.ParametersToInfo(params); err != nil {
		return nil, fmt.Errorf("base-fee: %w", err)
	}
	pool.PoolFees.ProtocolFeePercent = valueOr(pc.ProtocolFeePercent, constants.ProtocolFeePercent)
	pool.PoolFees.ReferralFeePercent = valueOr(pc.ReferralFeePercent, constants.HostFeePercent)
	pool.PoolFees.PartnerFeePercent = pc.PartnerFeePercent

	if pc.DynamicFee {
		dynamic, err := cpamm.DefaultDynamicFeeParameters(pool.PoolFees.BaseFee.CliffFeeNumerator())
		if err != nil {
			return nil, fmt.Errorf("dynamic-fee: %w", err)
		}
		point, err := cpamm.CurrentPoint(clock, pool.ActivationType)
		if err != nil {
			return nil, err
		}
		if err := pool.UpdatePoolFees(cpamm.UpdatePoolFeesParameters{DynamicFee: &dynamic}, point); err != nil {
			return nil, fmt.Errorf("dynamic-fee: %w", err)
		}
	}

	if err := pool.Validate(); err != nil {
		return nil, err
	}
	return pool, nil
}

// --- Parsing helpers ---

func parseOptionalKey(s string) (types.Pubkey, error) {
	if s == "" {
		return types.Pubkey{}, nil
	}
	return types.ParsePubkey(s)
}

func parseU256(field, s string) (*uint256.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("%s is required", field)
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	return v, nil
}

func parseActivationType(s string) (types.ActivationType, error) {
	switch strings.ToLower(s) {
	case "slot":
		return types.ActivationSlot, nil
	case "timestamp", "":
		return types.ActivationTimestamp, nil
	default:
		return 0, fmt.Errorf("activation-type: unknown value %q", s)
	}
}

func parseCollectFeeMode(s string) (types.CollectFeeMode, error) {
	switch strings.ToLower(s) {
	case "both", "both-token", "":
		return types.BothToken, nil
	case "only-b", "onlyb":
		return types.OnlyB, nil
	default:
		return 0, fmt.Errorf("collect-fee-mode: unknown value %q", s)
	}
}

func valueOr(v *uint8, fallback uint8) uint8 {
	if v == nil {
		return fallback
	}
	return *v
}

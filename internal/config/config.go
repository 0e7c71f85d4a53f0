package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"github.com/duggee/stakeboard/internal/logging"
)

// SepoliaChainID is added to the allowed chains when testnets are enabled.
const SepoliaChainID uint64 = 11155111

type ChainConfig struct {
	RPCURL              string        `yaml:"rpc_url"`
	ContractAddress     string        `yaml:"contract_address"`
	TokenAddress        string        `yaml:"token_address"` // zero address = native pool
	PoolID              uint64        `yaml:"pool_id"`
	AllowedChainIDs     []uint64      `yaml:"allowed_chain_ids"`
	EnableTestnets      bool          `yaml:"enable_testnets"`
	Symbol              string        `yaml:"symbol"`
	RewardSymbol        string        `yaml:"reward_symbol"`
	GasFeeCapMultiplier float64       `yaml:"gas_fee_cap_multiplier"`
	GasLimitMultiplier  float64       `yaml:"gas_limit_multiplier"`
	GasLimitCap         uint64        `yaml:"gas_limit_cap"`
	DialTimeout         time.Duration `yaml:"dial_timeout"`
	CallTimeout         time.Duration `yaml:"call_timeout"`
}

type SnapshotConfig struct {
	PollInterval  time.Duration `yaml:"poll_interval"`
	MinRefreshGap time.Duration `yaml:"min_refresh_gap"`
}

type APIConfig struct {
	Port int    `yaml:"port"`
	Bind string `yaml:"bind"`
	// Browser origins, besides the dashboard itself, that may call the API.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type WalletConfig struct {
	Key string `yaml:"key"` // hex secp256k1 private key; empty = connect later
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Config struct {
	DataDir  string         `yaml:"data_dir"`
	Chain    ChainConfig    `yaml:"chain"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
	API      APIConfig      `yaml:"api"`
	Wallet   WalletConfig   `yaml:"wallet"`
	Log      LogConfig      `yaml:"log"`
}

func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		DataDir: filepath.Join(home, ".stakeboard"),
		Chain: ChainConfig{
			RPCURL:              "http://127.0.0.1:8545",
			ContractAddress:     "0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512",
			TokenAddress:        "0x0000000000000000000000000000000000000000",
			PoolID:              0,
			AllowedChainIDs:     []uint64{31337, 31338},
			Symbol:              "lETH",
			RewardSymbol:        "TOKEN",
			GasFeeCapMultiplier: 2.0,
			GasLimitMultiplier:  1.2,
			GasLimitCap:         3_000_000,
			DialTimeout:         10 * time.Second,
			CallTimeout:         10 * time.Second,
		},
		Snapshot: SnapshotConfig{
			PollInterval:  12 * time.Second,
			MinRefreshGap: time.Second,
		},
		API: APIConfig{
			Port: 9402,
			Bind: "127.0.0.1",
		},
		Wallet: WalletConfig{},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DefaultPath is the config file used when -config is not given.
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".stakeboard", "stakeboard.yaml")
}

// Load reads a YAML config file and merges it with defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// No config file, use defaults + env overlay
			cfg.applyEnv()
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg.expandHome()
	cfg.applyEnv()
	return cfg, nil
}

// LoadFromBytes parses YAML config from bytes and merges with defaults.
// Used by the mobile package where there's no config file on disk.
func LoadFromBytes(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}
	cfg.expandHome()
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) expandHome() {
	if len(c.DataDir) > 0 && c.DataDir[0] == '~' {
		home, _ := os.UserHomeDir()
		c.DataDir = filepath.Join(home, c.DataDir[1:])
	}
}

// applyEnv overlays environment variables on top of config values.
func (c *Config) applyEnv() {
	if v := os.Getenv("STAKEBOARD_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("STAKEBOARD_RPC_URL"); v != "" {
		c.Chain.RPCURL = v
	}
	if v := os.Getenv("STAKEBOARD_CONTRACT"); v != "" {
		c.Chain.ContractAddress = v
	}
	if v := os.Getenv("STAKEBOARD_WALLET_KEY"); v != "" {
		c.Wallet.Key = v
	}
	if v := os.Getenv("STAKEBOARD_ENABLE_TESTNETS"); v == "true" || v == "1" {
		c.Chain.EnableTestnets = true
	}
}

// Validate rejects configurations the daemon cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("data_dir is empty")
	}
	if strings.TrimSpace(c.Chain.RPCURL) == "" {
		return fmt.Errorf("chain.rpc_url is empty")
	}
	if !common.IsHexAddress(c.Chain.ContractAddress) {
		return fmt.Errorf("chain.contract_address %q is not an address", c.Chain.ContractAddress)
	}
	if !common.IsHexAddress(c.Chain.TokenAddress) {
		return fmt.Errorf("chain.token_address %q is not an address", c.Chain.TokenAddress)
	}
	if len(c.AllowedChainIDs()) == 0 {
		return fmt.Errorf("chain.allowed_chain_ids is empty")
	}
	if c.Chain.GasFeeCapMultiplier <= 0 || c.Chain.GasLimitMultiplier <= 0 {
		return fmt.Errorf("gas multipliers must be positive")
	}
	if c.Chain.DialTimeout <= 0 || c.Chain.CallTimeout <= 0 {
		return fmt.Errorf("chain timeouts must be positive")
	}
	if c.Snapshot.PollInterval <= 0 || c.Snapshot.MinRefreshGap <= 0 {
		return fmt.Errorf("snapshot intervals must be positive")
	}
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("api.port %d out of range", c.API.Port)
	}
	for _, origin := range c.API.AllowedOrigins {
		u, err := url.Parse(origin)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" || u.Path != "" {
			return fmt.Errorf("api.allowed_origins: %q is not a scheme://host[:port] origin", origin)
		}
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}

// AllowedChainIDs returns the configured chain ids plus Sepolia when
// testnets are enabled.
func (c *Config) AllowedChainIDs() []uint64 {
	ids := append([]uint64(nil), c.Chain.AllowedChainIDs...)
	if c.Chain.EnableTestnets {
		for _, id := range ids {
			if id == SepoliaChainID {
				return ids
			}
		}
		ids = append(ids, SepoliaChainID)
	}
	return ids
}

// ContractAddress returns the staking contract address.
func (c *Config) ContractAddress() common.Address {
	return common.HexToAddress(c.Chain.ContractAddress)
}

// TokenAddress returns the pool token address.
func (c *Config) TokenAddress() common.Address {
	return common.HexToAddress(c.Chain.TokenAddress)
}

// DBPath returns the full path to the SQLite database file.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "stakeboard.db")
}

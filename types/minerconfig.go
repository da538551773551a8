package types

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// MinerConfig is the configuration of the mining client, read from a YAML
// file and overridden by command line flags.
type MinerConfig struct {
	RPCURL        string `yaml:"rpc_url" json:"rpc_url"`
	ColonyNetwork string `yaml:"colony_network" json:"colony_network"`
	MinerAddress  string `yaml:"miner_address" json:"miner_address"`
	PrivateKey    string `yaml:"private_key" json:"-"`
	ChainID       uint64 `yaml:"chain_id" json:"chain_id"`
	DataDir       string `yaml:"data_dir" json:"data_dir"`
	LogLevel      string `yaml:"log_level" json:"log_level"`
	LogJSON       bool   `yaml:"log_json" json:"log_json"`
	DebugModules  string `yaml:"debug_modules" json:"debug_modules"`

	EntryIndex    uint64 `yaml:"entry_index" json:"entry_index"`
	StrictLog     bool   `yaml:"strict_log" json:"strict_log"`
	StrictCache   bool   `yaml:"strict_cache" json:"strict_cache"`
	MaxRounds     uint64 `yaml:"max_rounds" json:"max_rounds"`
	MaxRoundIndex uint64 `yaml:"max_round_index" json:"max_round_index"`

	SubmitJRHGas          uint64        `yaml:"submit_jrh_gas" json:"submit_jrh_gas"`
	BinarySearchGas       uint64        `yaml:"binary_search_gas" json:"binary_search_gas"`
	RespondToChallengeGas uint64        `yaml:"respond_to_challenge_gas" json:"respond_to_challenge_gas"`
	ReceiptPollInterval   time.Duration `yaml:"receipt_poll_interval" json:"receipt_poll_interval"`
	ReceiptTimeout        time.Duration `yaml:"receipt_timeout" json:"receipt_timeout"`
	DisputePollInterval   time.Duration `yaml:"dispute_poll_interval" json:"dispute_poll_interval"`
}

func DefaultMinerConfig() MinerConfig {
	return MinerConfig{
		RPCURL:                "http://127.0.0.1:8545",
		ChainID:               1337,
		DataDir:               "./repminer-data",
		LogLevel:              "info",
		EntryIndex:            1,
		MaxRounds:             64,
		MaxRoundIndex:         1024,
		SubmitJRHGas:          6_000_000,
		BinarySearchGas:       1_000_000,
		RespondToChallengeGas: 4_000_000,
		ReceiptPollInterval:   time.Second,
		ReceiptTimeout:        2 * time.Minute,
		DisputePollInterval:   5 * time.Second,
	}
}

// LoadMinerConfig reads path over the defaults. An empty path gives the
// defaults.
func LoadMinerConfig(path string) (MinerConfig, error) {
	cfg := DefaultMinerConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks the fields every command needs.
func (c *MinerConfig) Validate() error {
	if c.MaxRounds == 0 || c.MaxRoundIndex == 0 {
		return fmt.Errorf("max_rounds and max_round_index must be positive")
	}
	if c.ReceiptPollInterval <= 0 || c.ReceiptTimeout <= 0 {
		return fmt.Errorf("receipt_poll_interval and receipt_timeout must be positive")
	}
	if c.DisputePollInterval <= 0 {
		return fmt.Errorf("dispute_poll_interval must be positive")
	}
	return nil
}

// String method returns the MinerConfig as a formatted JSON string
func (c *MinerConfig) String() string {
	jsonData, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Sprintf("Error marshaling JSON: %v", err)
	}
	return string(jsonData)
}

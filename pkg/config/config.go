package config

// Package config provides a reusable loader for wallet configuration files
// and environment variables. It is versioned so that applications embedding
// the wallet can depend on a stable API contract.
//
// Version: v0.1.0

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/HathorNetwork/hathor-wallet-core-go/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config represents the unified configuration for a wallet process. It
// mirrors the structure of the YAML files under config/.
type Config struct {
	Network struct {
		Name              string `mapstructure:"name" json:"name"` // "mainnet", "testnet", ...
		AddressByte       byte   `mapstructure:"address_byte" json:"address_byte"`
		P2SHByte          byte   `mapstructure:"p2sh_byte" json:"p2sh_byte"`
		TokenDepositPct   int    `mapstructure:"token_deposit_percentage" json:"token_deposit_percentage"`
		RewardSpendBlocks int    `mapstructure:"reward_spend_min_blocks" json:"reward_spend_min_blocks"`
	} `mapstructure:"network" json:"network"`

	Wallet struct {
		GapLimit              int `mapstructure:"gap_limit" json:"gap_limit"`
		MaxNumberInputs       int `mapstructure:"max_number_inputs" json:"max_number_inputs"`
		MaxNumberOutputs      int `mapstructure:"max_number_outputs" json:"max_number_outputs"`
		MetadataRetryLimit    int `mapstructure:"metadata_retry_limit" json:"metadata_retry_limit"`
		MetadataRetryInterval int `mapstructure:"metadata_retry_interval_ms" json:"metadata_retry_interval_ms"`
	} `mapstructure:"wallet" json:"wallet"`

	Storage struct {
		CacheEntries int `mapstructure:"cache_entries" json:"cache_entries"`
	} `mapstructure:"storage" json:"storage"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads configuration files and merges any environment specific
// overrides. The resulting configuration is stored in AppConfig and returned.
//
// The function uses the provided environment name to merge additional config
// files. If env is empty, only the default configuration is loaded.
func Load(env string) (*Config, error) {
	viper.SetConfigName("default")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return nil, utils.Wrap(err, "load config")
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.SetEnvPrefix("HATHOR_WALLET")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv() // picks up HATHOR_WALLET_* overrides

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the HATHOR_WALLET_ENV environment variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("HATHOR_WALLET_ENV", ""))
}

// Defaults returns a Config populated with the library's built-in defaults,
// for embedders that construct a wallet without a YAML file on disk.
func Defaults() Config {
	var c Config
	c.Network.Name = "mainnet"
	c.Network.AddressByte = 0x28
	c.Network.P2SHByte = 0x64
	c.Network.TokenDepositPct = 1
	c.Network.RewardSpendBlocks = 300
	c.Wallet.GapLimit = 20
	c.Wallet.MaxNumberInputs = 255
	c.Wallet.MaxNumberOutputs = 255
	c.Wallet.MetadataRetryLimit = 3
	c.Wallet.MetadataRetryInterval = 3000
	c.Storage.CacheEntries = 10_000
	c.Logging.Level = "info"
	return c
}

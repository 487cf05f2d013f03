// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"math/big"
	"net/url"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

type Config struct {
	RPCList            []string `mapstructure:"rpc_list"`
	ChainID            int64    `mapstructure:"chain_id"`
	AggregatorURL      string   `mapstructure:"aggregator_url"`
	SwapFeeToken       string   `mapstructure:"swap_fee_token"`
	TimedSaleMintFee   string   `mapstructure:"timed_sale_mint_fee"` // wei, decimal string
	SalesConfigAddress string   `mapstructure:"sales_config_address"`
	MarketAddress      string   `mapstructure:"market_address"`
	WalletsFile        string   `mapstructure:"wallets_file"`
	TasksFile          string   `mapstructure:"tasks_file"`
	ExportDir          string   `mapstructure:"export_dir"`
	ExportFormat       string   `mapstructure:"export_format"`
	DebounceMillis     int      `mapstructure:"debounce_ms"`
	Retries            int      `mapstructure:"retries"`
	RetryDelayMillis   int      `mapstructure:"retry_delay_ms"`
	ReceiptPollMillis  int      `mapstructure:"receipt_poll_ms"`
	DebugLogging       bool     `mapstructure:"debug_logging"`
}

const (
	DefaultDebounceMillis    = 400
	DefaultRetries           = 4
	DefaultRetryDelayMillis  = 250
	DefaultReceiptPollMillis = 1000

	// Per-quantity fee that marks a sale as a timed sale. The platform mints
	// timed sales at exactly this fee, so the resolver keys off it.
	DefaultTimedSaleMintFee = "111000000000000"
)

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	defaults := map[string]interface{}{
		"debounce_ms":         DefaultDebounceMillis,
		"retries":             DefaultRetries,
		"retry_delay_ms":      DefaultRetryDelayMillis,
		"receipt_poll_ms":     DefaultReceiptPollMillis,
		"timed_sale_mint_fee": DefaultTimedSaleMintFee,
		"wallets_file":        "configs/wallets.csv",
		"tasks_file":          "configs/tasks.yaml",
		"export_format":       "csv",
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := loadEnvironmentVariables(v, &cfg); err != nil {
		return nil, err
	}

	return &cfg, validateConfig(&cfg)
}

// TimedSaleMintFeeWei parses the configured timed-sale fee into wei.
func (cfg *Config) TimedSaleMintFeeWei() *big.Int {
	fee, ok := new(big.Int).SetString(cfg.TimedSaleMintFee, 10)
	if !ok {
		fee, _ = new(big.Int).SetString(DefaultTimedSaleMintFee, 10)
	}
	return fee
}

func validateConfig(cfg *Config) error {
	if len(cfg.RPCList) == 0 {
		return errors.New("rpc_list is empty")
	}
	if cfg.ChainID <= 0 {
		return errors.New("invalid chain_id")
	}
	for _, rpcURL := range cfg.RPCList {
		if err := validateURLWithCache(rpcURL, "http"); err != nil {
			return errors.New("invalid RPC URL protocol")
		}
	}
	if cfg.AggregatorURL != "" {
		if err := validateURLWithCache(cfg.AggregatorURL, "http"); err != nil {
			return errors.New("invalid aggregator URL protocol")
		}
	}
	if _, ok := new(big.Int).SetString(cfg.TimedSaleMintFee, 10); !ok {
		return errors.New("invalid timed_sale_mint_fee")
	}
	return validateNumericParams(cfg)
}

func validateNumericParams(cfg *Config) error {
	if cfg.DebounceMillis <= 0 {
		return errors.New("invalid debounce_ms")
	}
	if cfg.Retries < 1 {
		return errors.New("invalid retries count")
	}
	if cfg.RetryDelayMillis <= 0 {
		return errors.New("invalid retry_delay_ms")
	}
	if cfg.ReceiptPollMillis <= 0 {
		return errors.New("invalid receipt_poll_ms")
	}
	return nil
}

var urlCache sync.Map

func validateURLWithCache(rawURL string, protocol string) error {
	if _, ok := urlCache.Load(rawURL); ok {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) {
		return errors.New("invalid URL protocol")
	}
	urlCache.Store(rawURL, parsed)
	return nil
}

func loadEnvironmentVariables(v *viper.Viper, cfg *Config) error {
	v.AutomaticEnv()
	v.SetEnvPrefix("CERTTRADE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	envRPCList := v.GetString("RPC_LIST")
	if envRPCList != "" {
		rpcs := strings.Split(envRPCList, ",")
		var cleanRPCs []string
		for _, rpc := range rpcs {
			clean := strings.TrimSpace(rpc)
			if clean != "" {
				cleanRPCs = append(cleanRPCs, clean)
			}
		}
		if len(cleanRPCs) > 0 {
			cfg.RPCList = cleanRPCs
		}
	}

	envAggregator := v.GetString("AGGREGATOR_URL")
	if envAggregator != "" {
		cfg.AggregatorURL = envAggregator
	}
	return nil
}

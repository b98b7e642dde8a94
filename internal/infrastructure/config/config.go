package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Environment string           `mapstructure:"environment"`
	LogLevel    string           `mapstructure:"log_level"`
	Server      ServerConfig     `mapstructure:"server"`
	Database    DatabaseConfig   `mapstructure:"database"`
	Redis       RedisConfig      `mapstructure:"redis"`
	Security    SecurityConfig   `mapstructure:"security"`
	Blockchain  BlockchainConfig `mapstructure:"blockchain"`
	Withdraw    WithdrawConfig   `mapstructure:"withdraw"`
	Otc         OtcConfig        `mapstructure:"otc"`
	Scan        ScanConfig       `mapstructure:"scan"`
	Sweep       SweepConfig      `mapstructure:"sweep"`
}

type ServerConfig struct {
	Port         int    `mapstructure:"port"`
	Host         string `mapstructure:"host"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	URL             string `mapstructure:"url"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// SecurityConfig carries the key used to encrypt custodial private keys and
// 2FA secrets at rest.
type SecurityConfig struct {
	EncryptionKey string `mapstructure:"encryption_key"`
	TOTPIssuer    string `mapstructure:"totp_issuer"`
}

// BlockchainConfig maps each supported network to its provider settings.
// Keys are network tags (ERC20, BEP20, TRC20).
type BlockchainConfig struct {
	Networks map[string]NetworkConfig `mapstructure:"networks"`
}

type NetworkConfig struct {
	Name               string `mapstructure:"name"`
	ChainID            int64  `mapstructure:"chain_id"`
	RPC                string `mapstructure:"rpc"`
	TokenContract      string `mapstructure:"token_contract"`
	TokenDecimals      int32  `mapstructure:"token_decimals"`
	NativeDecimals     int32  `mapstructure:"native_decimals"`
	GasLimit           uint64 `mapstructure:"gas_limit"`
	SweepGasLimit      uint64 `mapstructure:"sweep_gas_limit"`
	MaxFeeNative       string `mapstructure:"max_fee_native"`
	ConfirmationMargin int64  `mapstructure:"confirmation_margin"`
}

// WithdrawConfig carries the withdrawal fee schedule.
type WithdrawConfig struct {
	FeePercent float64 `mapstructure:"fee_percent"`
}

// OtcConfig carries OTC desk pricing and security limits.
type OtcConfig struct {
	Asset                string  `mapstructure:"asset"`
	SpreadPercent        float64 `mapstructure:"spread_percent"`
	QuoteValidityMinutes int     `mapstructure:"quote_validity_minutes"`
	MinOrderAmount       float64 `mapstructure:"min_order_amount"`
	MaxOrderAmount       float64 `mapstructure:"max_order_amount"`
	MaxSingleOrderFiat   float64 `mapstructure:"max_single_order_fiat"`
	MaxDailyVolumeFiat   float64 `mapstructure:"max_daily_volume_fiat"`
	MaxFailedPerHour     int     `mapstructure:"max_failed_per_hour"`
	SlippageTolerance    float64 `mapstructure:"slippage_tolerance"`
	MatchTolerance       float64 `mapstructure:"match_tolerance"`
	PreOrderExpiryHours  int     `mapstructure:"pre_order_expiry_hours"`
	FiatCurrency         string  `mapstructure:"fiat_currency"`
}

// ScanConfig controls the deposit scanner.
type ScanConfig struct {
	IntervalSeconds  int   `mapstructure:"interval_seconds"`
	BlockWindow      int64 `mapstructure:"block_window"`
	LookbackMinutes  int   `mapstructure:"lookback_minutes"`
	AddressCacheTTLs int   `mapstructure:"address_cache_ttl_seconds"`
}

// SweepConfig controls fund consolidation into the master wallet.
type SweepConfig struct {
	IntervalSeconds int     `mapstructure:"interval_seconds"`
	MinCollect      float64 `mapstructure:"min_collect"`
}

// Load reads configuration from ./configs/config.yaml and the environment
func Load() (*Config, error) {
	// Load .env file if it exists (ignore errors if file doesn't exist)
	godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	overrideFromEnv()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Build database URL if not provided
	if config.Database.URL == "" {
		config.Database.URL = fmt.Sprintf(
			"postgres://%s:%s@%s:%d/%s?sslmode=%s",
			config.Database.User,
			config.Database.Password,
			config.Database.Host,
			config.Database.Port,
			config.Database.Name,
			config.Database.SSLMode,
		)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.read_timeout", 30)
	viper.SetDefault("server.write_timeout", 30)

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.name", "custody")
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 300)

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("security.totp_issuer", "CUSTODY")

	viper.SetDefault("withdraw.fee_percent", 1.0)

	viper.SetDefault("otc.asset", "USDT")
	viper.SetDefault("otc.spread_percent", 1.0)
	viper.SetDefault("otc.quote_validity_minutes", 5)
	viper.SetDefault("otc.min_order_amount", 100)
	viper.SetDefault("otc.max_order_amount", 100000)
	viper.SetDefault("otc.max_single_order_fiat", 50000)
	viper.SetDefault("otc.max_daily_volume_fiat", 100000)
	viper.SetDefault("otc.max_failed_per_hour", 5)
	viper.SetDefault("otc.slippage_tolerance", 0.01)
	viper.SetDefault("otc.match_tolerance", 0.001)
	viper.SetDefault("otc.pre_order_expiry_hours", 72)
	viper.SetDefault("otc.fiat_currency", "USD")

	viper.SetDefault("scan.interval_seconds", 30)
	viper.SetDefault("scan.block_window", 10)
	viper.SetDefault("scan.lookback_minutes", 20)
	viper.SetDefault("scan.address_cache_ttl_seconds", 60)

	viper.SetDefault("sweep.interval_seconds", 30)
	viper.SetDefault("sweep.min_collect", 10)

	// RPC endpoints and token contracts come from deployment configuration;
	// gas limits and decimals carry workable defaults.
	viper.SetDefault("blockchain.networks.ERC20.chain_id", 1)
	viper.SetDefault("blockchain.networks.ERC20.gas_limit", 100000)
	viper.SetDefault("blockchain.networks.ERC20.sweep_gas_limit", 2100000)
	viper.SetDefault("blockchain.networks.ERC20.token_decimals", 6)
	viper.SetDefault("blockchain.networks.ERC20.native_decimals", 18)
	viper.SetDefault("blockchain.networks.ERC20.confirmation_margin", 32)
	viper.SetDefault("blockchain.networks.ERC20.max_fee_native", "0.01")
	viper.SetDefault("blockchain.networks.BEP20.chain_id", 56)
	viper.SetDefault("blockchain.networks.BEP20.gas_limit", 80000)
	viper.SetDefault("blockchain.networks.BEP20.sweep_gas_limit", 2000000)
	viper.SetDefault("blockchain.networks.BEP20.token_decimals", 18)
	viper.SetDefault("blockchain.networks.BEP20.native_decimals", 18)
	viper.SetDefault("blockchain.networks.BEP20.confirmation_margin", 32)
	viper.SetDefault("blockchain.networks.BEP20.max_fee_native", "0.01")
	viper.SetDefault("blockchain.networks.TRC20.token_decimals", 6)
	viper.SetDefault("blockchain.networks.TRC20.native_decimals", 6)
}

func overrideFromEnv() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			viper.Set("server.port", p)
		}
	}

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		viper.Set("database.url", dbURL)
	}

	if encKey := os.Getenv("ENCRYPTION_KEY"); encKey != "" {
		viper.Set("security.encryption_key", encKey)
	}

	if rpc := os.Getenv("ETH_RPC_URL"); rpc != "" {
		viper.Set("blockchain.networks.ERC20.rpc", rpc)
	}
	if rpc := os.Getenv("BSC_RPC_URL"); rpc != "" {
		viper.Set("blockchain.networks.BEP20.rpc", rpc)
	}
	if rpc := os.Getenv("TRON_FULL_NODE"); rpc != "" {
		viper.Set("blockchain.networks.TRC20.rpc", rpc)
	}
}

func validate(config *Config) error {
	if config.Security.EncryptionKey == "" {
		return fmt.Errorf("encryption key is required")
	}

	if config.Database.URL == "" && (config.Database.Host == "" || config.Database.Name == "") {
		return fmt.Errorf("database configuration is incomplete")
	}

	if len(config.Blockchain.Networks) == 0 {
		return fmt.Errorf("at least one blockchain network must be configured")
	}

	return nil
}

// Network returns the provider settings for one network tag, or false if
// the network is not configured.
func (c *Config) Network(tag string) (NetworkConfig, bool) {
	nc, ok := c.Blockchain.Networks[tag]
	return nc, ok
}

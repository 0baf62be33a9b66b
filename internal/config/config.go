package config

import (
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Chain    ChainConfig    `mapstructure:"chain"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Risk     RiskConfig     `mapstructure:"risk"`
	Markets  []MarketConfig `mapstructure:"markets"`
	Tenants  []TenantConfig `mapstructure:"tenants"`
}

type ServerConfig struct {
	Port     string `mapstructure:"port"`
	ReadOnly bool   `mapstructure:"read_only"`
	LogLevel string `mapstructure:"log_level"`
}

type AuthConfig struct {
	RequireAPIKey bool   `mapstructure:"require_api_key"`
	APIKey        string `mapstructure:"api_key"`
	AdminKey      string `mapstructure:"admin_key"`
}

type DatabaseConfig struct {
	DSN                string `mapstructure:"dsn"`
	EventRetentionDays int    `mapstructure:"event_retention_days"`
	AuditRetentionDays int    `mapstructure:"audit_retention_days"`
}

type RedisConfig struct {
	Addr                  string `mapstructure:"addr"`
	Password              string `mapstructure:"password"`
	DB                    int    `mapstructure:"db"`
	IdempotencyTTLSeconds int    `mapstructure:"idempotency_ttl_seconds"`
}

type ChainConfig struct {
	RPCURL        string `mapstructure:"rpc_url"`
	ChainID       int64  `mapstructure:"chain_id"`
	LedgerAddress string `mapstructure:"ledger_address"`
	WaitMined     bool   `mapstructure:"wait_mined"`
}

type GatewayConfig struct {
	// Private key of the custody account; this key signs every forwarded
	// transaction and holds the recoverable balances.
	PrivateKey string `mapstructure:"private_key"`
	// Owner address allowed to call emergency recovery.
	Owner string `mapstructure:"owner"`
	// Interval in seconds between market-state cache refreshes.
	CacheRefreshSeconds int `mapstructure:"cache_refresh_seconds"`
	EventLogDir         string `mapstructure:"event_log_dir"`
}

type RiskConfig struct {
	MaxSupplyAssets   string   `mapstructure:"max_supply_assets"`
	MaxBorrowAssets   string   `mapstructure:"max_borrow_assets"`
	RestrictedMarkets []string `mapstructure:"restricted_markets"`
}

// MarketConfig is a statically configured market the cache keeps warm.
type MarketConfig struct {
	LoanToken       string `mapstructure:"loan_token"`
	CollateralToken string `mapstructure:"collateral_token"`
	Oracle          string `mapstructure:"oracle"`
	RateModel       string `mapstructure:"rate_model"`
	LLTV            string `mapstructure:"lltv"`
}

type TenantConfig struct {
	ID      string     `mapstructure:"id"`
	Name    string     `mapstructure:"name"`
	APIKey  string     `mapstructure:"api_key"`
	Address string     `mapstructure:"address"`
	Risk    RiskConfig `mapstructure:"risk"`
	QPS     float64    `mapstructure:"qps"`
	Burst   int        `mapstructure:"burst"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")

	// Environment variables support
	// e.g. MORPHGATE_CHAIN_RPC_URL
	viper.SetEnvPrefix("morphgate")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("auth.require_api_key", false)
	viper.SetDefault("auth.admin_key", "")
	viper.SetDefault("redis.idempotency_ttl_seconds", 86400)
	viper.SetDefault("chain.chain_id", 1)
	viper.SetDefault("chain.wait_mined", true)
	viper.SetDefault("gateway.cache_refresh_seconds", 15)
	viper.SetDefault("gateway.event_log_dir", "./logs")
	viper.SetDefault("database.event_retention_days", 30)
	viper.SetDefault("database.audit_retention_days", 30)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("No config file found, using defaults and env vars")
		} else {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

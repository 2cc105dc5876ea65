package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"aether-vault/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Local     LocalConfig     `mapstructure:"local"`
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Vault     VaultConfig     `mapstructure:"vault"`
	Guardian  GuardianConfig  `mapstructure:"guardian"`
	Raydium   RaydiumConfig   `mapstructure:"raydium"`
	PriceFeed PriceFeedConfig `mapstructure:"pricefeed"`
	Cache     CacheConfig     `mapstructure:"cache"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Solana    SolanaConfig    `mapstructure:"solana"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates the durable store. Driver "memory" keeps
// everything in-process, which is only useful for local development.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// LocalConfig points at the client-side flag file.
type LocalConfig struct {
	Path string `mapstructure:"path"`
}

// ServerConfig governs the HTTP API.
type ServerConfig struct {
	Addr              string        `mapstructure:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	Issuer    string        `mapstructure:"issuer"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// VaultConfig tunes funding operations.
type VaultConfig struct {
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
}

// GuardianConfig governs the risk poller.
type GuardianConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Interval        time.Duration `mapstructure:"interval"`
	Latch           bool          `mapstructure:"latch"`
	ServerPoll      bool          `mapstructure:"server_poll"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// RaydiumConfig captures the AMM pool listing API.
type RaydiumConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
	MaxPools int           `mapstructure:"max_pools"`
}

// PriceFeedConfig captures the CoinGecko price API.
type PriceFeedConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	CoinID      string        `mapstructure:"coin_id"`
	APIKey      string        `mapstructure:"api_key"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MinInterval time.Duration `mapstructure:"min_interval"`
}

// CacheConfig selects where last-good upstream payloads are kept.
type CacheConfig struct {
	Backend       string        `mapstructure:"backend"`
	TTL           time.Duration `mapstructure:"ttl"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
}

// LLMConfig selects the text-generation provider.
type LLMConfig struct {
	Provider  string        `mapstructure:"provider"`
	BaseURL   string        `mapstructure:"base_url"`
	APIKey    string        `mapstructure:"api_key"`
	Model     string        `mapstructure:"model"`
	MaxTokens int           `mapstructure:"max_tokens"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// SolanaConfig covers on-chain reads.
type SolanaConfig struct {
	Network string        `mapstructure:"network"`
	RPCURL  string        `mapstructure:"rpc_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// AlertingConfig defines guardian notification routing.
type AlertingConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("AETHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "aetherd")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stderr")

	// 仅靠环境变量注入的密钥也需要注册默认值，否则 Unmarshal 读不到
	for _, key := range []string{
		"database.dsn",
		"auth.jwt_secret",
		"pricefeed.api_key",
		"llm.api_key",
		"solana.rpc_url",
		"cache.redis_password",
		"alerting.telegram.bot_token",
		"alerting.telegram.chat_id",
	} {
		v.SetDefault(key, "")
	}

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("local.path", ".aether/local.db")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_header_timeout", "5s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("auth.issuer", "aetherd")
	v.SetDefault("auth.token_ttl", "24h")

	v.SetDefault("vault.max_retries", 8)
	v.SetDefault("vault.retry_backoff", "10ms")

	v.SetDefault("guardian.enabled", true)
	v.SetDefault("guardian.interval", "60s")
	v.SetDefault("guardian.latch", false)
	v.SetDefault("guardian.server_poll", false)
	v.SetDefault("guardian.advisory_lock_key", int64(0x61657468))
	v.SetDefault("guardian.startup_delay", "0s")

	v.SetDefault("raydium.base_url", "https://api.raydium.io/v2")
	v.SetDefault("raydium.timeout", "8s")
	v.SetDefault("raydium.max_pools", 20)

	v.SetDefault("pricefeed.base_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("pricefeed.coin_id", "solana")
	v.SetDefault("pricefeed.timeout", "10s")
	v.SetDefault("pricefeed.min_interval", "2s")

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.ttl", "30m")
	v.SetDefault("cache.redis_addr", "localhost:6379")

	v.SetDefault("llm.provider", "gateway")
	v.SetDefault("llm.base_url", "https://ai.gateway.lovable.dev/v1")
	v.SetDefault("llm.model", "google/gemini-2.5-flash")
	v.SetDefault("llm.max_tokens", 1024)
	v.SetDefault("llm.timeout", "30s")

	v.SetDefault("solana.network", "devnet")
	v.SetDefault("solana.timeout", "10s")

	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 10000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("database.driver must be postgres or memory, got %q", c.Database.Driver)
	}
	if c.Guardian.Interval <= 0 {
		return fmt.Errorf("guardian.interval must be greater than zero")
	}
	if c.Raydium.MaxPools <= 0 {
		return fmt.Errorf("raydium.max_pools must be greater than zero")
	}
	if c.Vault.MaxRetries < 1 {
		return fmt.Errorf("vault.max_retries must be at least 1")
	}
	if c.Vault.RetryBackoff < 0 {
		return fmt.Errorf("vault.retry_backoff must not be negative")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	switch c.Cache.Backend {
	case "memory", "redis", "none":
	default:
		return fmt.Errorf("cache.backend must be memory, redis or none, got %q", c.Cache.Backend)
	}
	switch c.LLM.Provider {
	case "gateway", "anthropic", "gemini":
	default:
		return fmt.Errorf("llm.provider must be gateway, anthropic or gemini, got %q", c.LLM.Provider)
	}
	switch c.Solana.Network {
	case "devnet", "mainnet-beta":
	default:
		return fmt.Errorf("solana.network must be devnet or mainnet-beta, got %q", c.Solana.Network)
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id 必须配置")
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}

// Package config defines the top-level configuration for the settlement
// engine and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/settled/internal/market"
	"github.com/alanyoungcy/settled/internal/resolution"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by SETTLED_* environment variables.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	GRPC     GRPCConfig     `toml:"grpc"`
	Engine   EngineConfig   `toml:"engine"`
	Identity IdentityConfig `toml:"identity"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Journal  JournalConfig  `toml:"journal"`
	Outbox   OutboxConfig   `toml:"outbox"`
	Broker   BrokerConfig   `toml:"broker"`
	Notify   NotifyConfig   `toml:"notify"`
	Log      LogConfig      `toml:"log"`
	Metrics  MetricsConfig  `toml:"metrics"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// RateLimit is the number of requests one caller may make per
	// RateWindow. Zero disables limiting. Needs redis.
	RateLimit    int      `toml:"rate_limit"`
	RateWindow   duration `toml:"rate_window"`
	ReadTimeout  duration `toml:"read_timeout"`
	WriteTimeout duration `toml:"write_timeout"`
}

// GRPCConfig holds the gRPC listener parameters.
type GRPCConfig struct {
	Enabled bool `toml:"enabled"`
	Port    int  `toml:"port"`
}

// EngineConfig holds the fee schedule and dispute policy.
type EngineConfig struct {
	Judge            string   `toml:"judge"`
	FeeAccount       string   `toml:"fee_account"`
	MaxCreatorFeePct int64    `toml:"max_creator_fee_pct"`
	ResolutionFeePct int64    `toml:"resolution_fee_pct"`
	InitialBond      int64    `toml:"initial_bond"`
	BondMultiplier   int64    `toml:"bond_multiplier"`
	MaxRounds        int      `toml:"max_rounds"`
	DisputeWindow    duration `toml:"dispute_window"`
	// LockTTL bounds how long a distributed market lock is held.
	LockTTL duration `toml:"lock_ttl"`
	// TokenDecimals is used only for display formatting in the API.
	TokenDecimals int32 `toml:"token_decimals"`
	AllowMint     bool  `toml:"allow_mint"`
}

// Market converts the engine section into a market.Config.
func (e EngineConfig) Market() market.Config {
	fee := e.FeeAccount
	if fee == "" {
		fee = e.Judge
	}
	return market.Config{
		Judge:            e.Judge,
		FeeAccount:       fee,
		MaxCreatorFeePct: e.MaxCreatorFeePct,
		ResolutionFeePct: e.ResolutionFeePct,
		Policy: resolution.Policy{
			InitialBond:    e.InitialBond,
			BondMultiplier: e.BondMultiplier,
			MaxRounds:      e.MaxRounds,
			DisputeWindow:  e.DisputeWindow.Duration,
		},
	}
}

// IdentityConfig controls caller authentication and the operator key.
type IdentityConfig struct {
	// Mode is "signature" (EIP-191 signed requests) or "header" (trust
	// X-Settled-Account, for development only).
	Mode        string   `toml:"mode"`
	MaxSkew     duration `toml:"max_skew"`
	AdminSecret string   `toml:"admin_secret" secret:"true"`

	OperatorKey      string `toml:"operator_key" secret:"true"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password" secret:"true"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled        bool     `toml:"enabled"`
	DSN            string   `toml:"dsn" secret:"true"`
	Host           string   `toml:"host"`
	Port           int      `toml:"port"`
	Database       string   `toml:"database"`
	User           string   `toml:"user"`
	Password       string   `toml:"password" secret:"true"`
	SSLMode        string   `toml:"ssl_mode"`
	PoolMaxConns   int      `toml:"pool_max_conns"`
	PoolMinConns   int      `toml:"pool_min_conns"`
	ConnectTimeout duration `toml:"connect_timeout"`
	RunMigrations  bool     `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled      bool     `toml:"enabled"`
	Addr         string   `toml:"addr"`
	Password     string   `toml:"password" secret:"true"`
	DB           int      `toml:"db"`
	PoolSize     int      `toml:"pool_size"`
	MaxRetries   int      `toml:"max_retries"`
	TLSEnabled   bool     `toml:"tls_enabled"`
	SummaryTTL   duration `toml:"summary_ttl"`
	LockWait     duration `toml:"lock_wait"`
	StreamMaxLen int64    `toml:"stream_max_len"`
	Namespace    string   `toml:"namespace"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key" secret:"true"`
	SecretKey      string `toml:"secret_key" secret:"true"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	// AuditCron schedules the audit log export (5-field cron, UTC).
	// Empty disables it.
	AuditCron string `toml:"audit_cron"`
	// AuditRetention is how old an audit entry must be before export.
	AuditRetention duration `toml:"audit_retention"`
}

// JournalConfig holds the command journal parameters.
type JournalConfig struct {
	Enabled     bool   `toml:"enabled"`
	Dir         string `toml:"dir"`
	SegmentSize int64  `toml:"segment_size"`
	Sync        bool   `toml:"sync"`
	// Replay rebuilds markets from the journal at startup when no
	// snapshot store is configured.
	Replay bool `toml:"replay"`
}

// OutboxConfig holds the event outbox parameters.
type OutboxConfig struct {
	Enabled bool `toml:"enabled"`
	// Dir is the pebble directory; empty keeps the outbox in memory.
	Dir string `toml:"dir"`
}

// BrokerConfig holds the Kafka relay parameters.
type BrokerConfig struct {
	Enabled bool `toml:"enabled"`
	// Driver is "sarama" or "kafka-go".
	Driver     string   `toml:"driver"`
	Brokers    []string `toml:"brokers"`
	Topic      string   `toml:"topic"`
	ClientID   string   `toml:"client_id"`
	Interval   duration `toml:"interval"`
	MaxRetries uint32   `toml:"max_retries"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token" secret:"true"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url" secret:"true"`
	Events            []string `toml:"events"`
}

// LogConfig selects the log level.
type LogConfig struct {
	Level string `toml:"level"`
}

// MetricsConfig controls the Prometheus registry.
type MetricsConfig struct {
	Enabled   bool   `toml:"enabled"`
	Namespace string `toml:"namespace"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	policy := resolution.DefaultPolicy()
	return Config{
		Server: ServerConfig{
			Enabled:      true,
			Port:         8080,
			CORSOrigins:  []string{"http://localhost:3000"},
			RateWindow:   duration{time.Minute},
			ReadTimeout:  duration{15 * time.Second},
			WriteTimeout: duration{15 * time.Second},
		},
		GRPC: GRPCConfig{Port: 9090},
		Engine: EngineConfig{
			MaxCreatorFeePct: market.DefaultMaxFeePct,
			ResolutionFeePct: market.DefaultResFeePct,
			InitialBond:      policy.InitialBond,
			BondMultiplier:   policy.BondMultiplier,
			MaxRounds:        policy.MaxRounds,
			DisputeWindow:    duration{policy.DisputeWindow},
			LockTTL:          duration{10 * time.Second},
			TokenDecimals:    2,
		},
		Identity: IdentityConfig{
			Mode:    "signature",
			MaxSkew: duration{30 * time.Second},
		},
		Postgres: PostgresConfig{
			Host:           "localhost",
			Port:           5432,
			Database:       "settled",
			User:           "postgres",
			SSLMode:        "disable",
			PoolMaxConns:   10,
			PoolMinConns:   2,
			ConnectTimeout: duration{5 * time.Second},
			RunMigrations:  true,
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			PoolSize:     20,
			MaxRetries:   3,
			SummaryTTL:   duration{30 * time.Second},
			LockWait:     duration{2 * time.Second},
			StreamMaxLen: 10_000,
			Namespace:    "settled",
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "settled-archive",
			ForcePathStyle: true,
			AuditCron:      "0 3 * * *",
			AuditRetention: duration{7 * 24 * time.Hour},
		},
		Journal: JournalConfig{
			Enabled:     true,
			Dir:         "data/journal",
			SegmentSize: 64 << 20,
			Replay:      true,
		},
		Outbox: OutboxConfig{Dir: "data/outbox"},
		Broker: BrokerConfig{
			Driver:     "sarama",
			Brokers:    []string{"localhost:9092"},
			Topic:      "settled.events",
			ClientID:   "settled",
			Interval:   duration{time.Second},
			MaxRetries: 5,
		},
		Notify: NotifyConfig{
			Events: []string{"market_resoluted", "market_disputed", "market_finalized"},
		},
		Log:     LogConfig{Level: "info"},
		Metrics: MetricsConfig{Enabled: true, Namespace: "settled"},
	}
}

// validLogLevels enumerates the accepted values for Log.Level.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

func validPort(p int) bool { return p > 0 && p <= 65535 }

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, fmt.Sprintf("unknown log.level %q (valid: debug, info, warn, error)", c.Log.Level))
	}

	// Engine
	if c.Engine.Judge == "" {
		errs = append(errs, "engine: judge must be set")
	}
	if c.Engine.MaxCreatorFeePct < 0 || c.Engine.MaxCreatorFeePct > 100 {
		errs = append(errs, "engine: max_creator_fee_pct must be 0-100")
	}
	if c.Engine.ResolutionFeePct < 0 || c.Engine.ResolutionFeePct > 100 {
		errs = append(errs, "engine: resolution_fee_pct must be 0-100")
	}
	if err := c.Engine.Market().Policy.Validate(); err != nil {
		errs = append(errs, "engine: "+err.Error())
	}
	if c.Engine.TokenDecimals < 0 {
		errs = append(errs, "engine: token_decimals must be >= 0")
	}

	// Identity
	switch c.Identity.Mode {
	case "signature", "header":
	default:
		errs = append(errs, fmt.Sprintf("identity: unknown mode %q (valid: signature, header)", c.Identity.Mode))
	}
	if c.Identity.EncryptedKeyPath != "" && c.Identity.KeyPassword == "" {
		errs = append(errs, "identity: key_password is required when encrypted_key_path is set")
	}
	if c.Engine.AllowMint && c.Identity.AdminSecret == "" {
		errs = append(errs, "identity: admin_secret is required when engine.allow_mint is set")
	}

	if c.Server.Enabled && !validPort(c.Server.Port) {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, "server: rate_limit must be >= 0")
	}
	if c.Server.RateLimit > 0 && !c.Redis.Enabled {
		errs = append(errs, "server: rate_limit needs redis.enabled")
	}
	if c.GRPC.Enabled && !validPort(c.GRPC.Port) {
		errs = append(errs, fmt.Sprintf("grpc: port must be 1-65535, got %d", c.GRPC.Port))
	}
	if c.Server.Enabled && c.GRPC.Enabled && c.Server.Port == c.GRPC.Port {
		errs = append(errs, "grpc: port must differ from server.port")
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if !validPort(c.Postgres.Port) {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
		if c.S3.AuditCron != "" && len(strings.Fields(c.S3.AuditCron)) != 5 {
			errs = append(errs, "s3: audit_cron must have 5 fields")
		}
	}

	if c.Journal.Enabled && c.Journal.Dir == "" {
		errs = append(errs, "journal: dir must not be empty")
	}

	if c.Broker.Enabled {
		if c.Broker.Driver != "sarama" && c.Broker.Driver != "kafka-go" {
			errs = append(errs, fmt.Sprintf("broker: unknown driver %q (valid: sarama, kafka-go)", c.Broker.Driver))
		}
		if len(c.Broker.Brokers) == 0 {
			errs = append(errs, "broker: brokers must not be empty")
		}
		if c.Broker.Topic == "" {
			errs = append(errs, "broker: topic must not be empty")
		}
		if !c.Outbox.Enabled {
			errs = append(errs, "broker: needs outbox.enabled")
		}
		if c.Broker.Interval.Duration <= 0 {
			errs = append(errs, "broker: interval must be > 0")
		}
	}

	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

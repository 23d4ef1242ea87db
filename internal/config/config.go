// Package config defines the top-level configuration for the marketplace
// daemon and provides validation helpers.
package config

import (
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by CABOZ_* environment variables.
type Config struct {
	Authority AuthorityConfig `toml:"authority"`
	Market    MarketConfig    `toml:"market"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Server    ServerConfig    `toml:"server"`
	LogLevel  string          `toml:"log_level"`
}

// AuthorityConfig holds the marketplace authority keypair source. Exactly
// one of PrivateKey or EncryptedKeyPath must be set.
type AuthorityConfig struct {
	// PrivateKey is the base58-encoded ed25519 private key.
	PrivateKey string `toml:"private_key"`
	// EncryptedKeyPath points at an encrypted keyfile.
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	// KeyPassword decrypts the file at EncryptedKeyPath.
	KeyPassword string `toml:"key_password"`
}

// MarketConfig holds marketplace protocol parameters.
type MarketConfig struct {
	// ProgramID is the settlement program address used for wallet and
	// registry address derivation.
	ProgramID string `toml:"program_id"`
	// FeeReceiver collects marketplace fees.
	FeeReceiver string `toml:"fee_receiver"`
	// LoyaltyCollection is the collection whose verified members earn fee
	// discounts.
	LoyaltyCollection string `toml:"loyalty_collection"`
	// RentReserve is the minimum native balance kept on every account, in
	// the smallest currency unit. Zero selects the built-in default.
	RentReserve uint64 `toml:"rent_reserve"`
	// AuthorityFloat is the native balance seeded into the authority's
	// escrow wallet at startup. It pays for holding accounts provisioned
	// when payment mints are whitelisted.
	AuthorityFloat uint64 `toml:"authority_float"`
	// CreateOrderRateLimit caps order creations per buyer per minute.
	CreateOrderRateLimit int `toml:"create_order_rate_limit"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for item-set
// manifests.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// AdminAPIKey protects the payment-mint registry endpoints.
	AdminAPIKey string `toml:"admin_api_key"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Market: MarketConfig{
			CreateOrderRateLimit: 10,
			AuthorityFloat:       1_000_000_000,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "caboz",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "caboz-itemsets",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		LogLevel: "info",
	}
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Authority — exactly one key source.
	if c.Authority.PrivateKey == "" && c.Authority.EncryptedKeyPath == "" {
		errs = append(errs, "authority: either private_key or encrypted_key_path must be set")
	}
	if c.Authority.EncryptedKeyPath != "" && c.Authority.KeyPassword == "" {
		errs = append(errs, "authority: key_password is required when encrypted_key_path is set")
	}

	// Market — addresses must parse when set.
	if c.Market.ProgramID == "" {
		errs = append(errs, "market: program_id must not be empty")
	} else if _, err := solana.PublicKeyFromBase58(c.Market.ProgramID); err != nil {
		errs = append(errs, fmt.Sprintf("market: program_id is not a valid address: %v", err))
	}
	if c.Market.FeeReceiver == "" {
		errs = append(errs, "market: fee_receiver must not be empty")
	} else if _, err := solana.PublicKeyFromBase58(c.Market.FeeReceiver); err != nil {
		errs = append(errs, fmt.Sprintf("market: fee_receiver is not a valid address: %v", err))
	}
	if c.Market.LoyaltyCollection != "" {
		if _, err := solana.PublicKeyFromBase58(c.Market.LoyaltyCollection); err != nil {
			errs = append(errs, fmt.Sprintf("market: loyalty_collection is not a valid address: %v", err))
		}
	}
	if c.Market.CreateOrderRateLimit < 1 {
		errs = append(errs, "market: create_order_rate_limit must be >= 1")
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3
	if c.S3.Endpoint == "" {
		errs = append(errs, "s3: endpoint must not be empty")
	}
	if c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.AdminAPIKey == "" {
			errs = append(errs, "server: admin_api_key must be set when the server is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies CABOZ_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known CABOZ_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e.
// not empty). This lets operators inject secrets at deploy time without
// touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Authority ──
	setStr(&cfg.Authority.PrivateKey, "CABOZ_AUTHORITY_PRIVATE_KEY")
	setStr(&cfg.Authority.EncryptedKeyPath, "CABOZ_AUTHORITY_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Authority.KeyPassword, "CABOZ_AUTHORITY_KEY_PASSWORD")

	// ── Market ──
	setStr(&cfg.Market.ProgramID, "CABOZ_MARKET_PROGRAM_ID")
	setStr(&cfg.Market.FeeReceiver, "CABOZ_MARKET_FEE_RECEIVER")
	setStr(&cfg.Market.LoyaltyCollection, "CABOZ_MARKET_LOYALTY_COLLECTION")
	setUint64(&cfg.Market.RentReserve, "CABOZ_MARKET_RENT_RESERVE")
	setUint64(&cfg.Market.AuthorityFloat, "CABOZ_MARKET_AUTHORITY_FLOAT")
	setInt(&cfg.Market.CreateOrderRateLimit, "CABOZ_MARKET_CREATE_ORDER_RATE_LIMIT")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "CABOZ_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "CABOZ_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "CABOZ_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "CABOZ_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "CABOZ_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "CABOZ_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "CABOZ_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "CABOZ_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "CABOZ_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "CABOZ_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "CABOZ_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "CABOZ_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "CABOZ_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "CABOZ_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "CABOZ_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "CABOZ_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "CABOZ_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "CABOZ_S3_REGION")
	setStr(&cfg.S3.Bucket, "CABOZ_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "CABOZ_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "CABOZ_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "CABOZ_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "CABOZ_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "CABOZ_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "CABOZ_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "CABOZ_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.AdminAPIKey, "CABOZ_SERVER_ADMIN_API_KEY")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "CABOZ_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}

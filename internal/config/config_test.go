package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleTOML = `
log_level = "debug"

[authority]
private_key = "5K86GAdy2XDMRMSrjTRdGYRJVFjzQCTveQ3T8FvzFmcFWCNSPCv4hGGTVPvVzeGSUXqjHbEnH18jSpELShYCZf4k"

[market]
program_id = "133Sr1TwJf1uxJj1N5vtGSHZMDmbNJFpxxZTNhr84PJU"
fee_receiver = "So11111111111111111111111111111111111111112"
create_order_rate_limit = 5

[postgres]
host = "db.internal"
port = 5433
database = "caboz"
user = "caboz"
password = "secret"

[server]
enabled = true
port = 9000
admin_api_key = "letmein"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMergesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleTOML))
	require.NoError(t, err)

	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, "db.internal", cfg.Postgres.Host)
	require.Equal(t, 5433, cfg.Postgres.Port)
	require.Equal(t, 5, cfg.Market.CreateOrderRateLimit)

	// Untouched sections keep their defaults.
	require.Equal(t, "localhost:6379", cfg.Redis.Addr)
	require.Equal(t, 20, cfg.Redis.PoolSize)
	require.True(t, cfg.Postgres.RunMigrations)

	require.NoError(t, cfg.Validate())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CABOZ_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("CABOZ_POSTGRES_PASSWORD", "from-env")
	t.Setenv("CABOZ_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("CABOZ_MARKET_RENT_RESERVE", "2039280")

	cfg, err := Load(writeConfig(t, sampleTOML))
	require.NoError(t, err)

	require.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
	require.Equal(t, "from-env", cfg.Postgres.Password)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	require.Equal(t, uint64(2039280), cfg.Market.RentReserve)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Defaults()
	cfg.LogLevel = "verbose"
	cfg.Market.ProgramID = "not-an-address"
	cfg.Server.Enabled = true
	cfg.Server.Port = 0

	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "log_level")
	require.Contains(t, err.Error(), "program_id")
	require.Contains(t, err.Error(), "port")
	require.Contains(t, err.Error(), "authority")
}

func TestRedactedConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleTOML))
	require.NoError(t, err)

	red := RedactedConfig(cfg)
	require.Equal(t, "***", red.Authority.PrivateKey)
	require.Equal(t, "***", red.Postgres.Password)
	require.Equal(t, "***", red.Server.AdminAPIKey)

	// Original untouched.
	require.Equal(t, "secret", cfg.Postgres.Password)
}

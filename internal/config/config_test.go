package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"prediction-amm/internal/amm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_DSN", "file::memory:")
}

func TestLoadDefaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, amm.DefaultParams(), cfg.AMM)
	assert.Equal(t, time.Minute, cfg.Jobs.SnapshotInterval)
	assert.False(t, cfg.Redis.Enabled())
	assert.False(t, cfg.S3.Enabled())
	assert.Equal(t, "file::memory:", cfg.GetDSN())
}

func TestLoadRequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("DB_DRIVER", "postgres")

	_, err := Load()
	assert.ErrorContains(t, err, "JWT_SECRET")
}

func TestLoadAMMFileAndOverrides(t *testing.T) {
	setBaseEnv(t)

	path := filepath.Join(t.TempDir(), "amm.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[amm]
price_cap = "0.95"
min_price = "0.05"
default_virtual_liquidity = "500"
protocol_fee_bps = 100
sell_fee_bps = 25
`), 0o600))
	t.Setenv("AMM_CONFIG_FILE", path)
	t.Setenv("AMM_SELL_FEE_BPS", "10")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, amm.MustParseAmount("0.95"), cfg.AMM.PriceCap)
	assert.Equal(t, amm.MustParseAmount("0.05"), cfg.AMM.MinPrice)
	assert.Equal(t, amm.MustParseAmount("500"), cfg.AMM.DefaultVirtualLiquidity)
	assert.Equal(t, uint64(100), cfg.AMM.ProtocolFeeBps)
	assert.Equal(t, uint64(10), cfg.AMM.SellFeeBps)
}

func TestLoadRejectsInvalidAMMParams(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("AMM_PRICE_CAP", "1.5")

	_, err := Load()
	assert.ErrorIs(t, err, amm.ErrInvalidArgument)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("SNAPSHOT_INTERVAL", "soon")

	_, err := Load()
	assert.ErrorContains(t, err, "SNAPSHOT_INTERVAL")
}

func TestPostgresDSN(t *testing.T) {
	cfg := &Config{Database: DatabaseConfig{
		Host: "db", Port: "5432", User: "u", Password: "p", DBName: "amm", SSLMode: "disable",
	}}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=amm sslmode=disable", cfg.GetDSN())
}

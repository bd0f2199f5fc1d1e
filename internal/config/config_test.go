package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shop-pricing/internal/errors"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.NoError(t, cfg.Validate())
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9090"
  read_timeout: 5s
  write_timeout: 30
store:
  backend: postgres
  dsn: postgres://localhost/pricing
pricing:
  default_catalog_file: seed.hcl
logging:
  level: debug
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout.Std())
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout.Std())
	assert.Equal(t, BackendPostgres, cfg.Store.Backend)
	assert.Equal(t, 10, cfg.Store.MaxOpenConns, "unset keys keep their defaults")
	assert.Equal(t, "seed.hcl", cfg.Pricing.DefaultCatalogFile)
	assert.Equal(t, "USD", cfg.Pricing.Currency)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.NoError(t, cfg.Validate())
}

func TestLoadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"server":{"read_timeout":"2m"},"auth":{"issuer":"shop"}}`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, cfg.Server.ReadTimeout.Std())
	assert.Equal(t, "shop", cfg.Auth.Issuer)
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"server":`), 0o600))

	_, err := Load(path)
	assert.True(t, errors.IsType(err, errors.TypeConfig), "got %v", err)
}

func TestEnvOverrides(t *testing.T) {
	env := map[string]string{
		"SHOP_PRICING_ADDR":           ":7000",
		"SHOP_PRICING_STORE_BACKEND":  "postgres",
		"SHOP_PRICING_DATABASE_URL":   "postgres://db/pricing",
		"SHOP_PRICING_JWT_SECRET":     "s3cret",
		"SHOP_PRICING_MAX_OPEN_CONNS": "25",
		"SHOP_PRICING_READ_TIMEOUT":   "1s",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	require.NoError(t, cfg.applyEnv(lookup))
	assert.Equal(t, ":7000", cfg.Server.Addr)
	assert.Equal(t, "postgres://db/pricing", cfg.Store.DSN)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, 25, cfg.Store.MaxOpenConns)
	assert.Equal(t, time.Second, cfg.Server.ReadTimeout.Std())

	env["SHOP_PRICING_MAX_OPEN_CONNS"] = "many"
	assert.True(t, errors.IsType(Default().applyEnv(lookup), errors.TypeConfig))
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("SHOP_PRICING_JWT_ISSUER=from-dotenv\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("SHOP_PRICING_JWT_ISSUER") })

	cfg := Default()
	require.NoError(t, cfg.LoadEnv(path))
	assert.Equal(t, "from-dotenv", cfg.Auth.Issuer)

	// a missing file is not an error
	require.NoError(t, Default().LoadEnv(filepath.Join(t.TempDir(), "none.env")))
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Store.Backend = BackendPostgres
	assert.True(t, errors.IsType(cfg.Validate(), errors.TypeConfig))

	cfg = Default()
	cfg.Store.Backend = "sqlite"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Pricing.Currency = "dollars"
	assert.Error(t, cfg.Validate())
}

func TestSaveRoundTripsYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "config.yaml")
	cfg := Default()
	cfg.Server.Addr = ":1234"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

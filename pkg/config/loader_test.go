package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
bot:
  token: "123:abc"
database:
  user: gifpick
  name: gifpick
tenor:
  api_key: "tenor-key"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFile_Defaults(t *testing.T) {
	cfg, v, err := LoadFile(writeConfig(t, minimalYAML), "test")
	require.NoError(t, err)
	require.NotNil(t, v)

	assert.Equal(t, "test", cfg.AppEnv)
	assert.Equal(t, "polling", cfg.Bot.Mode)
	assert.Equal(t, "/gif", cfg.Bot.Command)
	assert.Equal(t, 5, cfg.Tenor.Limit)
	assert.Equal(t, "en_GB", cfg.Tenor.Locale)
	assert.Equal(t, 10*time.Second, cfg.Tenor.Timeout)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 24*time.Hour, cfg.Idempotency.TTL)
	assert.Equal(t, "@every 15m", cfg.Jobs.ExpireSchedule)
	assert.Equal(t, "1m", cfg.RateLimit.Searches.Window)
}

func TestLoadFile_EnvOverrides(t *testing.T) {
	t.Setenv("TENOR_API_KEY", "from-env")
	t.Setenv("TENOR_LIMIT", "20")

	cfg, _, err := LoadFile(writeConfig(t, minimalYAML), "test")
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Tenor.APIKey)
	assert.Equal(t, 20, cfg.Tenor.Limit)
}

func TestLoadFile_Validation(t *testing.T) {
	cases := map[string]string{
		"missing token":       "database:\n  user: u\n  name: n\ntenor:\n  api_key: k\n",
		"webhook without url": "bot:\n  token: t\n  mode: webhook\ndatabase:\n  user: u\n  name: n\ntenor:\n  api_key: k\n",
		"jobs without redis":  minimalYAML + "jobs:\n  enabled: true\n",
		"bad command":         "bot:\n  token: t\n  command: gif\ndatabase:\n  user: u\n  name: n\ntenor:\n  api_key: k\n",
		"page too large":      minimalYAML + "  limit: 500\n",
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := LoadFile(writeConfig(t, body), "test")
			assert.Error(t, err)
		})
	}
}

func TestLoadFile_Missing(t *testing.T) {
	_, _, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"), "test")
	assert.Error(t, err)
}

func TestDatabaseDSN(t *testing.T) {
	dsn := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Name: "n"}.DSN()
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=n sslmode=disable", dsn)
}

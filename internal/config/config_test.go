package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{configPathEnv, databaseDSNEnv, databaseDrvEnv, repoBaseEnv,
		ncbiAPIKeyEnv, notifyURLEnv, logLevelEnv, listenEnv} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, ":8080", cfg.Server.Listen)
	assert.Equal(t, "03:00", cfg.Scheduler.Schedule)
	assert.Equal(t, []string{"eutils"}, cfg.PubMed.Sources)
	assert.Equal(t, 15, cfg.PubMed.StaleDays)
	assert.Equal(t, 10*time.Minute, cfg.Cache.TermsTTL)
	assert.Equal(t, time.UTC.String(), cfg.Scheduler.Location().String())
	assert.NotEmpty(t, cfg.Notifications.Host)
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "ebms.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
logging:
  level: debug
  format: json
database:
  driver: sqlite3
  dsn: /var/lib/ebms/ebms.db
scheduler:
  enabled: true
  schedule: "@every 6h"
  timezone: America/New_York
pubmed:
  sources: [repo, eutils]
  staleDays: 30
  initialBackoff: 250ms
notifications:
  urls: ["smtp://mail.example.org:25/?from=ebms@example.org&to=dev@example.org"]
  host: ebms-prod
`), 0o600))

	t.Setenv(configPathEnv, path)
	t.Setenv(ncbiAPIKeyEnv, "abc123")
	t.Setenv(listenEnv, "127.0.0.1:9000")
	t.Setenv(notifyURLEnv, "logger://, slack://token@channel")

	cfg := Load()
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, "/var/lib/ebms/ebms.db", cfg.Database.DSN)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, "@every 6h", cfg.Scheduler.Schedule)
	assert.Equal(t, "America/New_York", cfg.Scheduler.Location().String())
	assert.Equal(t, []string{"repo", "eutils"}, cfg.PubMed.Sources)
	assert.Equal(t, 30, cfg.PubMed.StaleDays)
	assert.Equal(t, 250*time.Millisecond, cfg.PubMed.InitialBackoff)
	assert.Equal(t, 10, cfg.PubMed.MaxTries)
	assert.Equal(t, "abc123", cfg.PubMed.APIKey)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Listen)
	assert.Equal(t, []string{"logger://", "slack://token@channel"}, cfg.Notifications.URLs)
	assert.Equal(t, "ebms-prod", cfg.Notifications.Host)
}

func TestLoadFallsBackOnBrokenFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database: [unterminated"), 0o600))
	t.Setenv(configPathEnv, path)

	cfg := Load()
	assert.Equal(t, "postgres", cfg.Database.Driver)
}

func TestUnknownTimezoneFallsBack(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "tz.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scheduler:\n  timezone: Mars/Olympus\n"), 0o600))
	t.Setenv(configPathEnv, path)

	cfg := Load()
	assert.Equal(t, "UTC", cfg.Scheduler.Location().String())
}

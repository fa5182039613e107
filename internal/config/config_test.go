package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		t.Setenv(s.env, "")
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := loadWith(newFileBackend(filepath.Join(t.TempDir(), "missing.json")), nil)
	require.NoError(t, err)

	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, 5, cfg.Reminders.FreeLimit)
	assert.Equal(t, "America/Argentina/Buenos_Aires", cfg.Reminders.Timezone)

	d, err := cfg.Reminders.Interval()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, d)
}

func TestFileValues(t *testing.T) {
	clearEnv(t)
	path := writeTempConfig(t, `{
		"server.port": 6000,
		"storage.data_dir": "/tmp/recordar-test",
		"reminders.tick_interval": "10s",
		"reminders.free_limit": "3",
		"reminders.unlimited_owners": "admin, foschi",
		"log.level": "debug"
	}`)

	cfg, err := loadWith(newFileBackend(path), nil)
	require.NoError(t, err)
	assert.Equal(t, 6000, cfg.Server.Port)
	assert.Equal(t, "/tmp/recordar-test", cfg.Storage.DataDir)
	assert.Equal(t, "10s", cfg.Reminders.TickInterval)
	assert.Equal(t, 3, cfg.Reminders.FreeLimit)
	assert.Equal(t, []string{"admin", "foschi"}, cfg.Reminders.UnlimitedOwners)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeTempConfig(t, `{"server.port": 6000}`)
	t.Setenv("RECORDAR_SERVER_PORT", "7000")
	t.Setenv("RECORDAR_REMINDERS_UNLIMITED_OWNERS", "x,y")
	t.Setenv("RECORDAR_REMINDERS_FREE_LIMIT", "not-a-number")

	cfg, err := loadWith(newFileBackend(path), nil)
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, []string{"x", "y"}, cfg.Reminders.UnlimitedOwners)
	assert.Equal(t, 5, cfg.Reminders.FreeLimit, "unparseable env keeps the default")
}

func TestSecretsFallback(t *testing.T) {
	clearEnv(t)
	secrets := newSecretsFile(filepath.Join(t.TempDir(), "secrets.json"))
	require.NoError(t, secrets.Set(SecretOpenRouterKey, "file-key"))

	cfg, err := loadWith(newFileBackend(filepath.Join(t.TempDir(), "none.json")), secrets)
	require.NoError(t, err)
	assert.Equal(t, "file-key", cfg.Proxy.OpenRouterAPIKey)

	t.Setenv("RECORDAR_OPENROUTER_API_KEY", "env-key")
	cfg, err = loadWith(newFileBackend(filepath.Join(t.TempDir(), "none.json")), secrets)
	require.NoError(t, err)
	assert.Equal(t, "env-key", cfg.Proxy.OpenRouterAPIKey)
}

func TestSecretsIgnoredInConfigFile(t *testing.T) {
	clearEnv(t)
	path := writeTempConfig(t, `{"proxy.openrouter_api_key": "leaked"}`)
	cfg, err := loadWith(newFileBackend(path), nil)
	require.NoError(t, err)
	assert.Empty(t, cfg.Proxy.OpenRouterAPIKey)
}

func TestValidate(t *testing.T) {
	clearEnv(t)
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad driver", map[string]string{"RECORDAR_STORAGE_DRIVER": "mysql"}},
		{"postgres without dsn", map[string]string{"RECORDAR_STORAGE_DRIVER": "postgres"}},
		{"bad interval", map[string]string{"RECORDAR_REMINDERS_TICK_INTERVAL": "soon"}},
		{"interval too short", map[string]string{"RECORDAR_REMINDERS_TICK_INTERVAL": "10ms"}},
		{"bad zone", map[string]string{"RECORDAR_REMINDERS_TIMEZONE": "Mars/Olympus"}},
		{"bad port", map[string]string{"RECORDAR_SERVER_PORT": "70000"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := loadWith(newFileBackend(filepath.Join(t.TempDir(), "none.json")), nil)
			assert.Error(t, err)
		})
	}
}

func TestSetKeyAndShowAll(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	b := newFileBackend(filepath.Join(dir, "config.json"))
	secrets := newSecretsFile(filepath.Join(dir, "secrets.json"))

	require.NoError(t, setKeyWith(b, secrets, "server.port", "6100"))
	require.NoError(t, setKeyWith(b, secrets, "proxy.openrouter_api_key", "sk-123"))
	assert.Error(t, setKeyWith(b, secrets, "server.port", "abc"))
	assert.Error(t, setKeyWith(b, secrets, "nope", "x"))

	reloaded := newFileBackend(filepath.Join(dir, "config.json"))
	cfg, err := loadWith(reloaded, secrets)
	require.NoError(t, err)
	assert.Equal(t, 6100, cfg.Server.Port)
	assert.Equal(t, "sk-123", cfg.Proxy.OpenRouterAPIKey)

	for _, k := range ShowAll(cfg) {
		if k.Key == "proxy.openrouter_api_key" {
			assert.Equal(t, "********", k.Value)
		}
	}
	assert.Contains(t, ValidKeys(), "reminders.free_limit")
}

func TestEnsureAPIToken(t *testing.T) {
	secrets := newSecretsFile(filepath.Join(t.TempDir(), "secrets.json"))

	_, err := GetAPIToken(secrets)
	assert.ErrorIs(t, err, ErrSecretNotFound)

	tok, err := EnsureAPIToken(secrets)
	require.NoError(t, err)
	assert.Len(t, tok, 64)

	again, err := EnsureAPIToken(secrets)
	require.NoError(t, err)
	assert.Equal(t, tok, again)

	info, err := os.Stat(secrets.path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestCorruptConfigFileFallsBackToDefaults(t *testing.T) {
	clearEnv(t)
	path := writeTempConfig(t, `{not json`)
	cfg, err := loadWith(newFileBackend(path), nil)
	require.NoError(t, err)
	assert.Equal(t, 5000, cfg.Server.Port)
}

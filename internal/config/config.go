package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata" // reminders are scheduled in a named zone
)

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Reminders RemindersConfig
	Proxy     ProxyConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port int
}

type StorageConfig struct {
	DataDir string
	// Driver is "sqlite" or "postgres".
	Driver      string
	PostgresDSN string
}

type RemindersConfig struct {
	TickInterval    string
	Timezone        string
	FreeLimit       int
	UnlimitedOwners []string
}

type ProxyConfig struct {
	OpenRouterAPIKey string
	DefaultModel     string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 5000,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
			Driver:  "sqlite",
		},
		Reminders: RemindersConfig{
			TickInterval: "30s",
			Timezone:     "America/Argentina/Buenos_Aires",
			FreeLimit:    5,
		},
		Proxy: ProxyConfig{
			DefaultModel: "openai/gpt-4o-mini",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration in three layers: built-in defaults, the JSON
// file at $XDG_CONFIG_HOME/recordar/config.json, then RECORDAR_* environment
// variables. Secrets not set in the environment are read from the secrets
// file.
func Load() (Config, error) {
	return loadWith(newFileBackend(configFilePath()), newSecretsFile(secretsFilePath()))
}

// secretStore abstracts the secrets file for testing.
type secretStore interface {
	Get(name string) (string, error)
}

func loadWith(b ConfigBackend, secrets secretStore) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)
	applySecrets(&cfg, secrets)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports settings the server cannot start with.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	switch c.Storage.Driver {
	case "sqlite":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("storage.driver is postgres but no DSN is set; use RECORDAR_STORAGE_POSTGRES_DSN"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.driver %q (want sqlite or postgres)", c.Storage.Driver))
	}
	if _, err := c.Reminders.Interval(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Reminders.Location(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Interval parses TickInterval.
func (r RemindersConfig) Interval() (time.Duration, error) {
	d, err := time.ParseDuration(r.TickInterval)
	if err != nil {
		return 0, fmt.Errorf("reminders.tick_interval: %w", err)
	}
	if d < time.Second {
		return 0, fmt.Errorf("reminders.tick_interval %s is below 1s", d)
	}
	return d, nil
}

// Location loads the named zone reminders are parsed and shown in.
func (r RemindersConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		return nil, fmt.Errorf("reminders.timezone: %w", err)
	}
	return loc, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func xdgDir(env string, fallback ...string) string {
	dir := os.Getenv(env)
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(append([]string{home}, fallback...)...)
		} else {
			dir = "."
		}
	}
	return dir
}

func defaultDataDir() string {
	return filepath.Join(xdgDir("XDG_DATA_HOME", ".local", "share"), "recordar")
}

func configFilePath() string {
	return filepath.Join(xdgDir("XDG_CONFIG_HOME", ".config"), "recordar", "config.json")
}

func secretsFilePath() string {
	return filepath.Join(xdgDir("XDG_DATA_HOME", ".local", "share"), "recordar", "secrets.json")
}

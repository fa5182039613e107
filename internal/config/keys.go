package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kList
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  string // name in the secrets file; empty for plain keys
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "RECORDAR_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "storage.data_dir", typ: kString, env: "RECORDAR_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "storage.driver", typ: kString, env: "RECORDAR_STORAGE_DRIVER",
		apply:   func(cfg *Config, v any) { cfg.Storage.Driver = strings.ToLower(v.(string)) },
		extract: func(cfg Config) any { return cfg.Storage.Driver },
	},
	{
		key: "storage.postgres_dsn", typ: kString, env: "RECORDAR_STORAGE_POSTGRES_DSN",
		secret:  SecretPostgresDSN,
		apply:   func(cfg *Config, v any) { cfg.Storage.PostgresDSN = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.PostgresDSN },
	},
	{
		key: "reminders.tick_interval", typ: kString, env: "RECORDAR_REMINDERS_TICK_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Reminders.TickInterval = v.(string) },
		extract: func(cfg Config) any { return cfg.Reminders.TickInterval },
	},
	{
		key: "reminders.timezone", typ: kString, env: "RECORDAR_REMINDERS_TIMEZONE",
		apply:   func(cfg *Config, v any) { cfg.Reminders.Timezone = v.(string) },
		extract: func(cfg Config) any { return cfg.Reminders.Timezone },
	},
	{
		key: "reminders.free_limit", typ: kInt, env: "RECORDAR_REMINDERS_FREE_LIMIT",
		apply:   func(cfg *Config, v any) { cfg.Reminders.FreeLimit = v.(int) },
		extract: func(cfg Config) any { return cfg.Reminders.FreeLimit },
	},
	{
		key: "reminders.unlimited_owners", typ: kList, env: "RECORDAR_REMINDERS_UNLIMITED_OWNERS",
		apply:   func(cfg *Config, v any) { cfg.Reminders.UnlimitedOwners = v.([]string) },
		extract: func(cfg Config) any { return strings.Join(cfg.Reminders.UnlimitedOwners, ",") },
	},
	{
		key: "proxy.openrouter_api_key", typ: kString, env: "RECORDAR_OPENROUTER_API_KEY",
		secret:  SecretOpenRouterKey,
		apply:   func(cfg *Config, v any) { cfg.Proxy.OpenRouterAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Proxy.OpenRouterAPIKey },
	},
	{
		key: "proxy.default_model", typ: kString, env: "RECORDAR_PROXY_DEFAULT_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Proxy.DefaultModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Proxy.DefaultModel },
	},
	{
		key: "log.level", typ: kString, env: "RECORDAR_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret != "" {
			continue
		}
		switch s.typ {
		case kString, kList:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if !ok {
				continue
			}
			if s.typ == kList {
				s.apply(cfg, splitList(v))
			} else {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kList:
			s.apply(cfg, splitList(raw))
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}

// applySecrets fills secret keys the environment left empty.
func applySecrets(cfg *Config, secrets secretStore) {
	if secrets == nil {
		return
	}
	for _, s := range specs {
		if s.secret == "" || s.extract(*cfg).(string) != "" {
			continue
		}
		if v, err := secrets.Get(s.secret); err == nil && v != "" {
			s.apply(cfg, v)
		}
	}
}

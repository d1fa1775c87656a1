package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Auth      AuthConfig      `koanf:"auth"`
	RateLimit RateLimitConfig `koanf:"ratelimit"`
	Proxy     ProxyConfig     `koanf:"proxy"`
	Log       LogConfig       `koanf:"log"`
	Health    HealthConfig    `koanf:"health"`
}

type ServerConfig struct {
	Port int `koanf:"port"`
}

// AuthConfig holds the shared signing secret and the default validity
// used when issuing tokens.
type AuthConfig struct {
	Secret   string        `koanf:"secret"`
	TokenTTL time.Duration `koanf:"token_ttl"`
}

type RateLimitConfig struct {
	Limit  int           `koanf:"limit"`
	Window time.Duration `koanf:"window"`
}

type ProxyConfig struct {
	BackendURL string        `koanf:"backend_url"`
	Timeout    time.Duration `koanf:"timeout"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // "json" or "text"
	File   string `koanf:"file"`   // optional; stdout when empty
}

// HealthConfig maps dependency names to the URLs probed by the readiness
// endpoint.
type HealthConfig struct {
	Dependencies map[string]string `koanf:"dependencies"`
}

// Load builds the configuration from an optional YAML file (pointed at by
// GATEWAY_CONFIG) layered under GATEWAY_-prefixed environment variables.
func Load() (*Config, error) {
	k := koanf.New(".")

	if path := os.Getenv("GATEWAY_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// Environment variables override the file. The env mapper turns every
	// underscore into a dot, so keys whose names contain an underscore are
	// remapped back afterwards.
	if err := k.Load(env.Provider("GATEWAY_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "GATEWAY_")), "_", ".")
	}), nil); err != nil {
		return nil, err
	}
	for src, dst := range map[string]string{
		"auth.token.ttl":    "auth.token_ttl",
		"proxy.backend.url": "proxy.backend_url",
	} {
		if k.Exists(src) {
			k.Set(dst, k.Get(src))
			k.Delete(src)
		}
	}

	// Development defaults
	defaults := map[string]any{
		"server.port":       8080,
		"auth.secret":       "supersecretjwtkey",
		"auth.token_ttl":    "3600s",
		"ratelimit.limit":   5,
		"ratelimit.window":  "60s",
		"proxy.backend_url": "http://localhost:9000",
		"proxy.timeout":     "30s",
		"log.level":         "info",
		"log.format":        "json",
	}
	for key, val := range defaults {
		if !k.Exists(key) {
			k.Set(key, val)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

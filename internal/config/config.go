package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full agent configuration, loaded from YAML with environment
// variable expansion.
type Config struct {
	Server struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"server"`

	Upstream struct {
		// BaseURL is the origin this agent fronts, e.g. https://example.com
		BaseURL string `yaml:"base_url"`
		// NavigationTimeoutMs bounds network-first navigation fetches.
		NavigationTimeoutMs int `yaml:"navigation_timeout_ms"`
	} `yaml:"upstream"`

	Cache struct {
		// Version tags the live cache generation; bumping it retires the
		// previous precache/runtime namespaces on activation.
		Version           string   `yaml:"version"`
		MaxRuntimeEntries int      `yaml:"max_runtime_entries"`
		PrecacheManifest  []string `yaml:"precache_manifest"`
		// SQLitePath is the durable store location. Empty selects the
		// in-memory store (no persistence across restarts).
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"cache"`

	Sync struct {
		// Endpoint is the remote sync path, resolved against Upstream.BaseURL.
		Endpoint    string `yaml:"endpoint"`
		MaxAttempts int    `yaml:"max_attempts"`
		// Schedule is a cron expression for periodic drains; empty disables.
		Schedule string `yaml:"schedule"`
	} `yaml:"sync"`

	Classify struct {
		SensitivePaths  []string `yaml:"sensitive_paths"`
		SensitiveParams []string `yaml:"sensitive_params"`
		StaticExts      []string `yaml:"static_exts"`
		CDNHosts        []string `yaml:"cdn_hosts"`
	} `yaml:"classify"`
}

// LoadFromBytes loads configuration from YAML bytes with environment variable
// expansion, then applies defaults.
func LoadFromBytes(data []byte) (Config, error) {
	var c Config
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &c); err != nil {
		return c, fmt.Errorf("parse config: %w", err)
	}
	c.applyDefaults()
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8970
	}
	if c.Upstream.NavigationTimeoutMs <= 0 {
		c.Upstream.NavigationTimeoutMs = 3000
	}
	if c.Cache.Version == "" {
		c.Cache.Version = "v1"
	}
	if c.Cache.MaxRuntimeEntries <= 0 {
		c.Cache.MaxRuntimeEntries = 50
	}
	if len(c.Cache.PrecacheManifest) == 0 {
		c.Cache.PrecacheManifest = []string{"/", "/index.html", "/offline.html"}
	}
	if c.Sync.Endpoint == "" {
		c.Sync.Endpoint = "/api/sync"
	}
	if c.Sync.MaxAttempts <= 0 {
		c.Sync.MaxAttempts = 3
	}
	if len(c.Classify.SensitivePaths) == 0 {
		c.Classify.SensitivePaths = []string{"/api/auth", "/api/payment", "/login", "/account"}
	}
	if len(c.Classify.SensitiveParams) == 0 {
		c.Classify.SensitiveParams = []string{"token", "password", "card"}
	}
	if len(c.Classify.StaticExts) == 0 {
		c.Classify.StaticExts = []string{
			".js", ".css", ".png", ".jpg", ".jpeg", ".gif", ".svg",
			".webp", ".ico", ".woff", ".woff2", ".ttf",
		}
	}
	if len(c.Classify.CDNHosts) == 0 {
		c.Classify.CDNHosts = []string{"cdn.jsdelivr.net", "fonts.googleapis.com", "fonts.gstatic.com"}
	}
}

// NavigationTimeout returns the network-first timeout as a duration.
func (c Config) NavigationTimeout() time.Duration {
	return time.Duration(c.Upstream.NavigationTimeoutMs) * time.Millisecond
}

// ListenAddr returns the host:port the HTTP surface binds to.
func (c Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

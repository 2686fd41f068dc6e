package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	configPathEnv     = "HERALD_CONFIG"
	addrEnv           = "HERALD_ADDR"
	adminTokenEnv     = "ADMIN_TOKEN"
	databaseURLEnv    = "DATABASE_URL"
	redisURLEnv       = "REDIS_URL"
	cacheBackendEnv   = "CACHE_BACKEND"
	logLevelEnv       = "LOG_LEVEL"
	logFormatEnv      = "LOG_FORMAT"
	cacheLocalSizeEnv = "CACHE_LOCAL_SIZE"
)

// Cache backends understood by cmd/server.
const (
	CacheBackendRedis = "redis"
	CacheBackendLocal = "local"
)

// Config is the full service configuration.
type Config struct {
	Server   Server         `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Cache    CacheConfig    `yaml:"cache"`
	Log      LogConfig      `yaml:"log"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr       string `yaml:"addr"`
	AdminToken string `yaml:"admin_token"`
}

// DatabaseConfig describes the PostgreSQL connection. An empty URL selects the
// in-memory stores.
type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// RedisConfig describes the Redis connection used as cache backend.
type RedisConfig struct {
	URL          string        `yaml:"url"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// CacheConfig selects the cache backend and carries the invalidation targets.
type CacheConfig struct {
	Backend    string        `yaml:"backend"`
	LocalSize  int           `yaml:"local_size"`
	ListingTTL time.Duration `yaml:"listing_ttl"`
	// ClearKeys are flat keys dropped after every publication write.
	ClearKeys []string `yaml:"clear_keys"`
	// ClearTemplateKeys maps a fragment name to the ordered vary-on values
	// whose fragment cache entry is dropped after every publication write.
	ClearTemplateKeys map[string][]string `yaml:"clear_template_keys"`
}

// LogConfig selects slog level and output format (json or text).
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Invalidation is the slice of configuration the invalidation hook consumes.
type Invalidation struct {
	ClearKeys         []string
	ClearTemplateKeys map[string][]string
}

// Invalidation extracts the hook configuration. Flat keys are trimmed and
// deduplicated; vary-on values are copied verbatim since they feed a hash.
func (c CacheConfig) Invalidation() Invalidation {
	templates := make(map[string][]string, len(c.ClearTemplateKeys))
	for name, vary := range c.ClearTemplateKeys {
		templates[name] = append([]string(nil), vary...)
	}
	return Invalidation{ClearKeys: dedupeKeys(c.ClearKeys), ClearTemplateKeys: templates}
}

// WithKeys returns a copy of inv that also clears extra.
func (inv Invalidation) WithKeys(extra ...string) Invalidation {
	keys := make([]string, 0, len(inv.ClearKeys)+len(extra))
	keys = append(keys, inv.ClearKeys...)
	keys = append(keys, extra...)
	inv.ClearKeys = dedupeKeys(keys)
	return inv
}

// dedupeKeys drops blanks and repeats, keeping first-seen order.
func dedupeKeys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// Load reads defaults, then the optional YAML file named by HERALD_CONFIG,
// then environment overrides.
func Load() (Config, error) {
	cfg := Default()
	if path := os.Getenv(configPathEnv); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := Parse(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnvOverrides(os.Getenv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse overlays YAML onto cfg; fields absent from raw keep their values.
func Parse(raw []byte, cfg *Config) error {
	return yaml.Unmarshal(raw, cfg)
}

// Validate rejects configurations cmd/server cannot start with.
func (c Config) Validate() error {
	switch c.Cache.Backend {
	case CacheBackendRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("cache backend %q requires redis.url", CacheBackendRedis)
		}
	case CacheBackendLocal:
		if c.Cache.LocalSize <= 0 {
			return fmt.Errorf("cache.local_size must be positive, got %d", c.Cache.LocalSize)
		}
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}
	for name, vary := range c.Cache.ClearTemplateKeys {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("cache.clear_template_keys has an empty fragment name")
		}
		if vary == nil {
			return fmt.Errorf("cache.clear_template_keys[%s] must be a list", name)
		}
	}
	return nil
}

func (c *Config) applyEnvOverrides(getenv func(string) string) error {
	if v := getenv(addrEnv); v != "" {
		c.Server.Addr = v
	}
	if v := getenv(adminTokenEnv); v != "" {
		c.Server.AdminToken = v
	}
	if v := getenv(databaseURLEnv); v != "" {
		c.Database.URL = v
	}
	if v := getenv(redisURLEnv); v != "" {
		c.Redis.URL = v
	}
	if v := getenv(cacheBackendEnv); v != "" {
		c.Cache.Backend = strings.ToLower(v)
	}
	if v := getenv(logLevelEnv); v != "" {
		c.Log.Level = v
	}
	if v := getenv(logFormatEnv); v != "" {
		c.Log.Format = v
	}
	if v := getenv(cacheLocalSizeEnv); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", cacheLocalSizeEnv, err)
		}
		c.Cache.LocalSize = n
	}
	return nil
}

// Default returns a configuration that runs fully in memory.
func Default() Config {
	return Config{
		Server: Server{Addr: ":8080"},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Cache: CacheConfig{
			Backend:           CacheBackendLocal,
			LocalSize:         1024,
			ListingTTL:        10 * time.Minute,
			ClearKeys:         []string{},
			ClearTemplateKeys: map[string][]string{},
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}

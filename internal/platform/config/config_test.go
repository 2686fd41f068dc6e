package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	raw := []byte(`
server:
  addr: ":9090"
cache:
  backend: redis
  listing_ttl: 2m
  clear_keys:
    - frontpage.latest
    - frontpage.banners
  clear_template_keys:
    frontpage_sidebar: ["nl", "home"]
    footer: []
redis:
  url: redis://localhost:6379/0
`)
	cfg := Default()
	require.NoError(t, Parse(raw, &cfg))

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, CacheBackendRedis, cfg.Cache.Backend)
	assert.Equal(t, 2*time.Minute, cfg.Cache.ListingTTL)
	assert.Equal(t, []string{"frontpage.latest", "frontpage.banners"}, cfg.Cache.ClearKeys)
	assert.Equal(t, []string{"nl", "home"}, cfg.Cache.ClearTemplateKeys["frontpage_sidebar"])
	// untouched sections keep defaults
	assert.Equal(t, 10, cfg.Redis.PoolSize)
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	t.Run("redis backend needs url", func(t *testing.T) {
		cfg := Default()
		cfg.Cache.Backend = CacheBackendRedis
		require.Error(t, cfg.Validate())
	})

	t.Run("unknown backend rejected", func(t *testing.T) {
		cfg := Default()
		cfg.Cache.Backend = "memcached"
		require.Error(t, cfg.Validate())
	})

	t.Run("defaults are valid", func(t *testing.T) {
		require.NoError(t, Default().Validate())
	})
}

func TestEnvOverrides(t *testing.T) {
	env := map[string]string{
		"HERALD_ADDR":      ":7000",
		"DATABASE_URL":     "postgres://herald@localhost/herald",
		"CACHE_BACKEND":    "REDIS",
		"REDIS_URL":        "redis://cache:6379/1",
		"ADMIN_TOKEN":      "s3cret",
		"CACHE_LOCAL_SIZE": " 256 ",
	}
	cfg := Default()
	require.NoError(t, cfg.applyEnvOverrides(func(k string) string { return env[k] }))

	assert.Equal(t, ":7000", cfg.Server.Addr)
	assert.Equal(t, "s3cret", cfg.Server.AdminToken)
	assert.Equal(t, "postgres://herald@localhost/herald", cfg.Database.URL)
	assert.Equal(t, CacheBackendRedis, cfg.Cache.Backend)
	assert.Equal(t, "redis://cache:6379/1", cfg.Redis.URL)
	assert.Equal(t, 256, cfg.Cache.LocalSize)
}

func TestEnvOverridesRejectNonNumericLocalSize(t *testing.T) {
	cfg := Default()
	size := cfg.Cache.LocalSize
	err := cfg.applyEnvOverrides(func(k string) string {
		if k == cacheLocalSizeEnv {
			return "lots"
		}
		return ""
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CACHE_LOCAL_SIZE")
	assert.Equal(t, size, cfg.Cache.LocalSize)
}

func TestLoadFailsOnBadLocalSize(t *testing.T) {
	t.Setenv(configPathEnv, "")
	t.Setenv(cacheLocalSizeEnv, "12x")
	_, err := Load()
	require.Error(t, err)
}

func TestInvalidationIsACopy(t *testing.T) {
	cfg := Default()
	cfg.Cache.ClearKeys = []string{"a"}
	cfg.Cache.ClearTemplateKeys = map[string][]string{"side": {"x"}}

	inv := cfg.Cache.Invalidation()
	inv.ClearKeys[0] = "mutated"
	inv.ClearTemplateKeys["side"][0] = "mutated"

	assert.Equal(t, "a", cfg.Cache.ClearKeys[0])
	assert.Equal(t, "x", cfg.Cache.ClearTemplateKeys["side"][0])
}

func TestInvalidationKeysAreDeduplicated(t *testing.T) {
	cfg := Default()
	cfg.Cache.ClearKeys = []string{" frontpage ", "", "published.list", "frontpage"}

	inv := cfg.Cache.Invalidation().WithKeys("published.list", "published.list.article")

	assert.Equal(t, []string{"frontpage", "published.list", "published.list.article"}, inv.ClearKeys)
	assert.Equal(t, []string{"frontpage", "published.list"}, cfg.Cache.Invalidation().ClearKeys)
}

package config

import (
	"strings"
	"time"
)

// CacheConfig defines settings for the response cache middleware.  Only the
// QR image route is cached: a ticket's QR payload is captured once at open
// time and never changes, so its rendering is safe to serve from Redis.
// When Enabled is false or no Redis client is configured, caching will be
// disabled.  Methods lists the HTTP methods to cache.  TTL defines the
// lifetime of cache entries.  KeyStrategy determines which parts of the
// request contribute to the cache key.
type CacheConfig struct {
	Enabled      bool
	Methods      map[string]bool
	TTL          time.Duration
	KeyStrategy  string
	Prefix       string
	MaxBodyBytes int
}

// LoadCacheConfig reads environment variables to build a CacheConfig.  Defaults
// are used when variables are not set.  All methods are upper-cased.
func LoadCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled:      getenv("CACHE_ENABLED", "true") == "true",
		Methods:      parseMethods(getenv("CACHE_METHODS", "GET")),
		TTL:          parseDur(getenv("CACHE_TTL", "24h")),
		KeyStrategy:  getenv("CACHE_KEY_STRATEGY", "device_path_query"),
		Prefix:       getenv("CACHE_PREFIX", "qrcache"),
		MaxBodyBytes: atoi(getenv("CACHE_MAX_BODY_BYTES", "262144")),
	}
}

func parseMethods(s string) map[string]bool {
	m := map[string]bool{}
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(strings.ToUpper(p))
		if p != "" {
			m[p] = true
		}
	}
	return m
}

func getenv(key, def string) string { return envStr(key, def) }

func parseDur(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return time.Hour
	}
	return d
}

package config

import (
	"strings"
	"time"
)

// CacheConfig defines settings for the response cache middleware used on
// reporting endpoints.  When Enabled is false or no Redis client is
// configured, caching is disabled.  Methods lists the HTTP methods to
// cache (e.g. GET, HEAD).  KeyStrategy determines which parts of the
// request contribute to the cache key.
type CacheConfig struct {
	Enabled      bool          `env:"CACHE_ENABLED"        env-default:"true"`
	Methods      string        `env:"CACHE_METHODS"        env-default:"GET"`
	TTL          time.Duration `env:"CACHE_TTL"            env-default:"30s"`
	KeyStrategy  string        `env:"CACHE_KEY_STRATEGY"   env-default:"user_route_query"`
	Prefix       string        `env:"CACHE_PREFIX"         env-default:"cache"`
	MaxBodyBytes int           `env:"CACHE_MAX_BODY_BYTES" env-default:"1048576"`
}

// MethodSet returns the upper-cased set of cacheable methods.
func (c CacheConfig) MethodSet() map[string]bool {
	m := map[string]bool{}
	for _, p := range strings.Split(c.Methods, ",") {
		p = strings.TrimSpace(strings.ToUpper(p))
		if p != "" {
			m[p] = true
		}
	}
	return m
}

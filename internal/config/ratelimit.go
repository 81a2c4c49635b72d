package config

import (
    "os"
    "time"
)

// RateLimitConfig tunes the Redis token bucket sitting in front of
// the booking routes.  The defaults allow a short burst of calls and
// refill one token per second: enough for a customer clicking
// through a checkout, low enough to blunt scripted seat hoarding
// during a popular trip's on-sale.
type RateLimitConfig struct {
    Enabled      bool
    Capacity     int // bucket size, i.e. the largest permitted burst
    RefillTokens int // tokens added per refill interval
    RefillInterval time.Duration
    // TTL bounds how long an idle bucket lives in Redis.  Clamped to
    // at least five refill intervals so a bucket cannot expire
    // between refills.
    TTL         time.Duration
    KeyStrategy string // how requests are bucketed, e.g. "ip_user_route"
    Prefix      string // Redis key prefix
    Debug       bool
}

// LoadRateLimitConfig reads the RATE_LIMIT_* environment variables
// and clamps the result to usable values.  Every variable is
// optional.
func LoadRateLimitConfig() RateLimitConfig {
    cfg := RateLimitConfig{
        Enabled:        envBool("RATE_LIMIT_ENABLED", true),
        Capacity:       intOr("RATE_LIMIT_CAPACITY", 30),
        RefillTokens:   intOr("RATE_LIMIT_REFILL_TOKENS", 1),
        RefillInterval: envDur("RATE_LIMIT_REFILL_INTERVAL", time.Second),
        TTL:            envDur("RATE_LIMIT_TTL", 10*time.Minute),
        KeyStrategy:    strOr("RATE_LIMIT_KEY_STRATEGY", "ip_user_route"),
        Prefix:         strOr("RATE_LIMIT_PREFIX", "rl:booking"),
        Debug:          envBool("RATE_LIMIT_DEBUG", false),
    }
    // Shorthand overrides for deployments that only want two knobs:
    // a burst size and a refill period.
    if b := intOr("RATE_LIMIT_BURST", -1); b > 0 {
        cfg.Capacity = b
    }
    if every := envDur("RATE_LIMIT_REFILL_EVERY", 0); every > 0 {
        cfg.RefillTokens = 1
        cfg.RefillInterval = every
    }
    if cfg.Capacity < 1 {
        cfg.Capacity = 1
    }
    if cfg.RefillTokens < 1 {
        cfg.RefillTokens = 1
    }
    if cfg.RefillInterval <= 0 {
        cfg.RefillInterval = time.Second
    }
    if minTTL := 5 * cfg.RefillInterval; cfg.TTL < minTTL {
        cfg.TTL = minTTL
    }
    return cfg
}

func envBool(key string, def bool) bool {
    switch os.Getenv(key) {
    case "":
        return def
    case "1", "true", "TRUE", "True", "yes", "YES", "on", "ON":
        return true
    case "0", "false", "FALSE", "False", "no", "NO", "off", "OFF":
        return false
    }
    return def
}

func envDur(key string, def time.Duration) time.Duration {
    v := os.Getenv(key)
    if v == "" {
        return def
    }
    if d, err := time.ParseDuration(v); err == nil {
        return d
    }
    return def
}

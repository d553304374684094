package config

import (
	"os"
	"strconv"
	"time"
)

// Bucket sizes one token bucket: Capacity requests in a burst, then one more
// every Refill.
type Bucket struct {
	Capacity int
	Refill   time.Duration
}

// FullAfter is how long an empty bucket takes to refill completely.  Bucket
// state older than this carries no information and may expire.
func (b Bucket) FullAfter() time.Duration {
	return time.Duration(b.Capacity) * b.Refill
}

// RateLimitConfig drives the Redis token buckets in front of the API.  Each
// route class has its own budget:
//
//	API    every authenticated ticket route, per device
//	Scan   POST /v1/verify, per device; a scanner loop is the main abuse case
//	Login  device registration and login, per client IP; guards passcodes
type RateLimitConfig struct {
	Enabled bool
	Prefix  string
	API     Bucket
	Scan    Bucket
	Login   Bucket
}

func LoadRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled: envBool("RATE_LIMIT_ENABLED", true),
		Prefix:  envStr("RATE_LIMIT_PREFIX", "parking:rl"),
		API:     loadBucket("RATE_LIMIT_API", Bucket{Capacity: 120, Refill: 500 * time.Millisecond}),
		Scan:    loadBucket("RATE_LIMIT_SCAN", Bucket{Capacity: 30, Refill: 2 * time.Second}),
		Login:   loadBucket("RATE_LIMIT_LOGIN", Bucket{Capacity: 5, Refill: time.Minute}),
	}
}

// loadBucket reads <prefix>_CAPACITY and <prefix>_REFILL, falling back to def
// for missing or unusable values.
func loadBucket(prefix string, def Bucket) Bucket {
	b := Bucket{
		Capacity: envInt(prefix+"_CAPACITY", def.Capacity),
		Refill:   envDur(prefix+"_REFILL", def.Refill),
	}
	if b.Capacity < 1 {
		b.Capacity = def.Capacity
	}
	if b.Refill <= 0 {
		b.Refill = def.Refill
	}
	return b
}

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envBool(k string, d bool) bool {
	switch os.Getenv(k) {
	case "1", "true", "TRUE", "True", "yes", "YES", "on", "ON":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "off", "OFF":
		return false
	}
	return d
}

func envInt(k string, d int) int {
	if n, err := strconv.Atoi(os.Getenv(k)); err == nil {
		return n
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	if dur, err := time.ParseDuration(os.Getenv(k)); err == nil {
		return dur
	}
	return d
}

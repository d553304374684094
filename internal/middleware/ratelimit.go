package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/parking-ticket-tracker/internal/clock"
	"github.com/iliyamo/parking-ticket-tracker/internal/config"
	"github.com/iliyamo/parking-ticket-tracker/internal/logger"
)

// takeToken refills the bucket in whole Refill steps since its last refill,
// then spends one token if it can.  A missing hash is a full bucket, so the
// key only needs to live until the bucket would be full again.
//
// KEYS[1] bucket hash
// ARGV    now_ms, capacity, refill_ms, expire_ms
// returns {allowed (0|1), tokens left, wait_ms}
var takeToken = redis.NewScript(`
local now, cap, every = tonumber(ARGV[1]), tonumber(ARGV[2]), tonumber(ARGV[3])
local st = redis.call('HMGET', KEYS[1], 'tokens', 'ts')
local tokens = tonumber(st[1]) or cap
local ts = tonumber(st[2]) or now
local steps = math.floor(math.max(0, now - ts) / every)
if steps > 0 then
  tokens = math.min(cap, tokens + steps)
  ts = ts + steps * every
end
local allowed, wait = 0, every - (now - ts)
if tokens >= 1 then
  allowed, wait, tokens = 1, 0, tokens - 1
end
redis.call('HSET', KEYS[1], 'tokens', tokens, 'ts', ts)
redis.call('PEXPIRE', KEYS[1], ARGV[4])
return {allowed, tokens, wait}
`)

// RateLimits holds one limiter per route class.  A nil field means that
// class is not limited; the router skips it.
type RateLimits struct {
	API   echo.MiddlewareFunc
	Scan  echo.MiddlewareFunc
	Login echo.MiddlewareFunc
}

// NewRateLimits builds Redis token buckets from cfg.  Authenticated classes
// are keyed by device, login by client IP since the caller has no token
// yet.  With limiting disabled or no Redis client, every field is nil.  When
// Redis errors at request time the request is let through and logged.
func NewRateLimits(cfg config.RateLimitConfig, rdb *redis.Client, clk clock.Clock, log *zap.Logger) RateLimits {
	if !cfg.Enabled || rdb == nil {
		return RateLimits{}
	}
	if clk == nil {
		clk = clock.Real()
	}
	b := &bucketLimiter{rdb: rdb, prefix: cfg.Prefix, clock: clk, log: logger.OrNop(log)}
	return RateLimits{
		API:   b.limit("api", cfg.API, byDevice),
		Scan:  b.limit("scan", cfg.Scan, byDevice),
		Login: b.limit("login", cfg.Login, byIP),
	}
}

type bucketLimiter struct {
	rdb    *redis.Client
	prefix string
	clock  clock.Clock
	log    *zap.Logger
}

// byDevice keys on the id DeviceAuth stored; it must run after DeviceAuth.
func byDevice(c echo.Context) string { return "device:" + currentDevice(c) }

func byIP(c echo.Context) string {
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	return "ip:" + ip
}

func (l *bucketLimiter) limit(class string, b config.Bucket, key func(echo.Context) string) echo.MiddlewareFunc {
	limit := strconv.Itoa(b.Capacity)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			k := l.prefix + ":" + class + ":" + key(c)
			res, err := takeToken.Run(c.Request().Context(), l.rdb, []string{k},
				l.clock.Now().UnixMilli(), b.Capacity, b.Refill.Milliseconds(), b.FullAfter().Milliseconds(),
			).Int64Slice()
			if err != nil || len(res) != 3 {
				l.log.Warn("rate limit check failed; request allowed", zap.String("key", k), zap.Error(err))
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(res[1], 10))
			if res[0] == 1 {
				return next(c)
			}

			wait := time.Duration(res[2]) * time.Millisecond
			secs := int((wait + time.Second - 1) / time.Second)
			h.Set("Retry-After", strconv.Itoa(secs))
			l.log.Info("rate limited", zap.String("class", class), zap.String("key", k), zap.Duration("retry_in", wait))
			return c.JSON(http.StatusTooManyRequests, echo.Map{
				"error":       "rate limit exceeded",
				"retry_after": secs,
			})
		}
	}
}

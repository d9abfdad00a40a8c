package middleware

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Shivamkadam692/WorkConnect/internal/ids"
	"github.com/Shivamkadam692/WorkConnect/internal/metrics"
)

const (
	violationLimit  = 10
	violationWindow = time.Hour
	blockDuration   = 24 * time.Hour
)

// RateLimit caps requests matching Pattern per caller.
type RateLimit struct {
	Pattern  string // "METHOD /path-prefix"; a "*" segment matches one path segment
	Requests int
	Window   time.Duration
	KeyFunc  func(r *http.Request) string
}

// RateLimiterConfig holds configuration for the rate limiter.
type RateLimiterConfig struct {
	Whitelist        []string // IPs or CIDRs exempt from rate limiting
	AutoBlockEnabled bool     // block an IP for a day after repeated violations
}

// RateLimiter applies per-endpoint sliding windows stored in Redis.
type RateLimiter struct {
	client    *redis.Client
	limits    []RateLimit
	logger    zerolog.Logger
	exempt    []netip.Prefix
	autoBlock bool
}

// NewRateLimiter creates a rate limiter. Limits are matched in order, so more
// specific patterns come first.
func NewRateLimiter(client *redis.Client, logger zerolog.Logger, cfg RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		client:    client,
		logger:    logger,
		autoBlock: cfg.AutoBlockEnabled,
		limits: []RateLimit{
			{"POST /requests/*/messages", 30, time.Minute, userKey},
			{"POST /requests/*/location", 120, time.Minute, userKey},
			{"POST /requests/*/", 30, time.Minute, userKey},
			{"POST /requests", 20, time.Hour, userKey},
			{"GET /requests", 120, time.Minute, userKey},
			{"GET /notifications", 120, time.Minute, userKey},
			{"PUT /notifications", 60, time.Minute, userKey},
			{"DELETE /notifications", 60, time.Minute, userKey},
			{"PUT /workers/", 30, time.Minute, userKey},
			{"GET /ws", 30, time.Minute, ipKey},
			{"POST /internal/", 300, time.Minute, ipKey},
		},
	}

	for _, entry := range cfg.Whitelist {
		prefix, err := parseExempt(entry)
		if err != nil {
			logger.Warn().Str("entry", entry).Err(err).Msg("invalid whitelist entry")
			continue
		}
		rl.exempt = append(rl.exempt, prefix)
	}
	if len(rl.exempt) > 0 {
		logger.Info().Int("entries", len(rl.exempt)).Msg("rate limit whitelist configured")
	}
	return rl
}

// parseExempt accepts a bare IP or a CIDR.
func parseExempt(entry string) (netip.Prefix, error) {
	if strings.Contains(entry, "/") {
		return netip.ParsePrefix(entry)
	}
	addr, err := netip.ParseAddr(entry)
	if err != nil {
		return netip.Prefix{}, err
	}
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

func (rl *RateLimiter) isWhitelisted(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range rl.exempt {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func ipKey(r *http.Request) string {
	return "ip:" + RealIP(r)
}

// userKey buckets identified callers per user and everyone else per IP.
func userKey(r *http.Request) string {
	if userID := r.Header.Get(HeaderUserID); userID != "" {
		return "user:" + userID
	}
	return ipKey(r)
}

// RealIP extracts the client IP from proxy headers or the connection.
func RealIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// allow records one hit in the caller's window for limit and reports whether
// it fits, with the hits left and when the oldest one ages out.
func (rl *RateLimiter) allow(ctx context.Context, limit *RateLimit, caller string) (bool, int, time.Time) {
	now := time.Now()
	defer func() { metrics.RedisLatency.Observe(time.Since(now).Seconds()) }()

	key := "ratelimit:" + limit.Pattern + ":" + caller
	cutoff := now.Add(-limit.Window).UnixMilli()

	var count *redis.IntCmd
	_, err := rl.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(cutoff, 10))
		count = pipe.ZCard(ctx, key)
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixMilli()), Member: ids.NewMessageID()})
		pipe.PExpire(ctx, key, limit.Window)
		return nil
	})
	if err != nil {
		// Fail open: Redis trouble must not take the API down.
		rl.logger.Warn().Err(err).Str("key", key).Msg("rate limit check failed")
		return true, limit.Requests, now.Add(limit.Window)
	}

	used := int(count.Val())
	remaining := max(limit.Requests-used-1, 0)
	return used < limit.Requests, remaining, now.Add(limit.Window)
}

// Middleware returns the rate limiting middleware.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := RealIP(r)
		if rl.isWhitelisted(ip) {
			next.ServeHTTP(w, r)
			return
		}

		if rl.blocked(r.Context(), ip) {
			rl.logger.Warn().
				Str("type", "security").
				Str("event", "blocked_request").
				Str("ip", ip).
				Str("endpoint", r.URL.Path).
				Msg("blocked IP attempted request")
			metrics.BlockedRequests.WithLabelValues("ip_blocked").Inc()
			jsonError(w, http.StatusForbidden, "temporarily blocked")
			return
		}

		limit := rl.findLimit(r)
		if limit == nil {
			next.ServeHTTP(w, r)
			return
		}

		caller := limit.KeyFunc(r)
		allowed, remaining, resetAt := rl.allow(r.Context(), limit, caller)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit.Requests))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(limit.Window.Seconds())))
			metrics.RateLimitHits.WithLabelValues(limit.Pattern).Inc()
			rl.logger.Warn().
				Str("type", "security").
				Str("event", "rate_limit_exceeded").
				Str("ip", ip).
				Str("caller", caller).
				Str("limit", limit.Pattern).
				Msg("rate limit exceeded")
			rl.recordViolation(r.Context(), ip)

			jsonError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// findLimit returns the first limit matching the request, or nil.
func (rl *RateLimiter) findLimit(r *http.Request) *RateLimit {
	for i := range rl.limits {
		if matchPattern(rl.limits[i].Pattern, r.Method, r.URL.Path) {
			return &rl.limits[i]
		}
	}
	return nil
}

// matchPattern reports whether "METHOD /path" starts with pattern, where a
// "*" segment in pattern matches any single path segment.
func matchPattern(pattern, method, path string) bool {
	pm, pp, ok := strings.Cut(pattern, " ")
	if !ok || pm != method {
		return false
	}
	want := strings.Split(pp, "/")
	got := strings.Split(path, "/")
	if len(got) < len(want) {
		return false
	}
	for i, seg := range want {
		last := i == len(want)-1
		switch {
		case seg == "*":
		case last:
			if !strings.HasPrefix(got[i], seg) {
				return false
			}
		case got[i] != seg:
			return false
		}
	}
	return true
}

func (rl *RateLimiter) blocked(ctx context.Context, ip string) bool {
	n, err := rl.client.Exists(ctx, "blocked:ip:"+ip).Result()
	return err == nil && n > 0
}

// recordViolation counts limit breaches per IP and blocks repeat offenders.
func (rl *RateLimiter) recordViolation(ctx context.Context, ip string) {
	if !rl.autoBlock {
		return
	}
	key := "violations:ip:" + ip
	count, err := rl.client.Incr(ctx, key).Result()
	if err != nil {
		return
	}
	if count == 1 {
		rl.client.Expire(ctx, key, violationWindow)
	}
	if count < violationLimit {
		return
	}

	rl.client.Set(ctx, "blocked:ip:"+ip, "repeated rate limit violations", blockDuration)
	rl.client.Del(ctx, key)
	metrics.BlockedRequests.WithLabelValues("auto_block").Inc()
	rl.logger.Warn().
		Str("type", "security").
		Str("event", "ip_auto_blocked").
		Str("ip", ip).
		Int64("violations", count).
		Msg("IP auto-blocked for repeated violations")
}

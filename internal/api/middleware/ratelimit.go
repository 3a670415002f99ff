package middleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/abxy/internal/metrics"
)

// RateLimit allows Requests per sliding Window. AutoBlock counts each
// rejection as a violation toward a temporary ban of the client IP.
type RateLimit struct {
	Requests  int
	Window    time.Duration
	AutoBlock bool
}

// DefaultLimits are keyed by "METHOD /path".
var DefaultLimits = map[string]RateLimit{
	"POST /signup":     {Requests: 10, Window: time.Hour, AutoBlock: true},
	"POST /login":      {Requests: 30, Window: time.Minute, AutoBlock: true},
	"POST /v1/graphql": {Requests: 120, Window: time.Minute},
}

const (
	defaultBlockThreshold  = 10
	defaultBlockDuration   = 24 * time.Hour
	defaultViolationWindow = time.Hour
)

// RateLimiterConfig holds configuration for the rate limiter.
type RateLimiterConfig struct {
	Whitelist        []string             // IPs or CIDRs exempt from limiting
	Limits           map[string]RateLimit // nil means DefaultLimits
	AutoBlockEnabled bool                 // ban IPs after repeated violations
	BlockThreshold   int                  // violations before a ban, default 10
	BlockDuration    time.Duration        // default 24h
}

// RateLimiter counts requests per client IP in sliding windows kept as
// Redis sorted sets.
type RateLimiter struct {
	client    *redis.Client
	limits    map[string]RateLimit
	whitelist []netip.Prefix
	blocker   *IPBlocker
	logger    zerolog.Logger
	now       func() time.Time
	seq       atomic.Uint64

	autoBlock      bool
	blockThreshold int
	blockDuration  time.Duration
}

// NewRateLimiter creates a rate limiter. A nil client disables limiting.
func NewRateLimiter(client *redis.Client, logger zerolog.Logger, cfg RateLimiterConfig) *RateLimiter {
	limits := cfg.Limits
	if limits == nil {
		limits = DefaultLimits
	}
	rl := &RateLimiter{
		client:         client,
		limits:         limits,
		blocker:        NewIPBlocker(client),
		logger:         logger,
		now:            time.Now,
		autoBlock:      cfg.AutoBlockEnabled,
		blockThreshold: cfg.BlockThreshold,
		blockDuration:  cfg.BlockDuration,
	}
	if rl.blockThreshold <= 0 {
		rl.blockThreshold = defaultBlockThreshold
	}
	if rl.blockDuration <= 0 {
		rl.blockDuration = defaultBlockDuration
	}

	for _, entry := range cfg.Whitelist {
		prefix, err := parsePrefix(entry)
		if err != nil {
			logger.Warn().Str("entry", entry).Err(err).Msg("ignoring invalid whitelist entry")
			continue
		}
		rl.whitelist = append(rl.whitelist, prefix)
	}
	if len(rl.whitelist) > 0 {
		logger.Info().Int("entries", len(rl.whitelist)).Msg("rate limit whitelist configured")
	}

	return rl
}

// parsePrefix accepts a CIDR or a bare IP (treated as a single-host prefix).
func parsePrefix(entry string) (netip.Prefix, error) {
	if strings.Contains(entry, "/") {
		return netip.ParsePrefix(entry)
	}
	addr, err := netip.ParseAddr(entry)
	if err != nil {
		return netip.Prefix{}, err
	}
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

func (rl *RateLimiter) whitelisted(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range rl.whitelist {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// clientIP returns the host part of RemoteAddr. chi's RealIP middleware has
// already rewritten it from proxy headers.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Allow records one request against key and reports whether it fits within
// limit over the trailing window. Rejected requests are not kept, so a
// client that backs off regains capacity as its accepted requests age out.
// Redis failures let the request through.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit RateLimit) (allowed bool, remaining int, resetAt time.Time) {
	now := rl.now()
	member := strconv.FormatInt(now.UnixNano(), 10) + "-" + strconv.FormatUint(rl.seq.Add(1), 10)
	cutoff := strconv.FormatInt(now.Add(-limit.Window).UnixMilli(), 10)

	pipe := rl.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", "("+cutoff)
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixMilli()), Member: member})
	card := pipe.ZCard(ctx, key)
	oldest := pipe.ZRangeWithScores(ctx, key, 0, 0)
	pipe.PExpire(ctx, key, limit.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		rl.logger.Warn().Err(err).Str("key", key).Msg("rate limit check failed, allowing request")
		return true, limit.Requests, now.Add(limit.Window)
	}

	resetAt = now.Add(limit.Window)
	if zs := oldest.Val(); len(zs) > 0 {
		resetAt = time.UnixMilli(int64(zs[0].Score)).Add(limit.Window)
	}

	count := int(card.Val())
	if count > limit.Requests {
		if err := rl.client.ZRem(ctx, key, member).Err(); err != nil {
			rl.logger.Debug().Err(err).Str("key", key).Msg("dropping rejected request failed")
		}
		return false, 0, resetAt
	}
	return true, limit.Requests - count, resetAt
}

// Middleware rejects blocked IPs and enforces the configured limits.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	if rl.client == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if rl.whitelisted(ip) {
			next.ServeHTTP(w, r)
			return
		}

		if rl.blocker.IsBlocked(r.Context(), ip) {
			metrics.BlockedRequests.WithLabelValues("ip_blocked").Inc()
			rl.logger.Warn().
				Str("event", "blocked_request").
				Str("ip", ip).
				Str("path", r.URL.Path).
				Msg("blocked IP attempted request")
			jsonError(w, http.StatusForbidden, "temporarily blocked")
			return
		}

		endpoint := r.Method + " " + r.URL.Path
		limit, ok := rl.limits[endpoint]
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		allowed, remaining, resetAt := rl.Allow(r.Context(), "ratelimit:"+endpoint+":"+ip, limit)

		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(limit.Requests))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if !allowed {
			retry := int(math.Ceil(resetAt.Sub(rl.now()).Seconds()))
			if retry < 1 {
				retry = 1
			}
			h.Set("Retry-After", strconv.Itoa(retry))
			metrics.RateLimitHits.WithLabelValues(r.URL.Path).Inc()
			rl.logger.Warn().
				Str("event", "rate_limit_exceeded").
				Str("ip", ip).
				Str("endpoint", endpoint).
				Msg("rate limit exceeded")
			if limit.AutoBlock {
				rl.trackViolation(r.Context(), ip)
			}
			jsonError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// trackViolation counts a rejection for ip and bans it once the count
// within the violation window reaches the threshold.
func (rl *RateLimiter) trackViolation(ctx context.Context, ip string) {
	if !rl.autoBlock {
		return
	}

	key := "violations:ip:" + ip
	count, err := rl.client.Incr(ctx, key).Result()
	if err != nil {
		rl.logger.Warn().Err(err).Str("ip", ip).Msg("violation tracking failed")
		return
	}
	if count == 1 {
		rl.client.Expire(ctx, key, defaultViolationWindow)
	}
	if count < int64(rl.blockThreshold) {
		return
	}

	if err := rl.blocker.Block(ctx, ip, rl.blockDuration, "repeated rate limit violations"); err != nil {
		rl.logger.Error().Err(err).Str("ip", ip).Msg("auto-block failed")
		return
	}
	rl.client.Del(ctx, key)
	metrics.IPAutoBlocks.Inc()
	rl.logger.Warn().
		Str("event", "ip_auto_blocked").
		Str("ip", ip).
		Int64("violations", count).
		Dur("duration", rl.blockDuration).
		Msg("IP auto-blocked for repeated violations")
}

// IPBlocker keeps temporary IP bans in Redis under blocked:ip:<ip>.
type IPBlocker struct {
	client *redis.Client
}

// NewIPBlocker creates a new IP blocker.
func NewIPBlocker(client *redis.Client) *IPBlocker {
	return &IPBlocker{client: client}
}

func blockKey(ip string) string {
	return "blocked:ip:" + ip
}

// IsBlocked reports whether ip is banned. Lookup failures count as not blocked.
func (b *IPBlocker) IsBlocked(ctx context.Context, ip string) bool {
	n, err := b.client.Exists(ctx, blockKey(ip)).Result()
	return err == nil && n > 0
}

// Block bans ip for d, recording reason as the value.
func (b *IPBlocker) Block(ctx context.Context, ip string, d time.Duration, reason string) error {
	return b.client.Set(ctx, blockKey(ip), reason, d).Err()
}

// Unblock lifts a ban.
func (b *IPBlocker) Unblock(ctx context.Context, ip string) error {
	return b.client.Del(ctx, blockKey(ip)).Err()
}

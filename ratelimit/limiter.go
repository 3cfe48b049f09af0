package ratelimit

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable is an exported constant or variable used by the credential engine.
var ErrRedisUnavailable = errors.New("ratelimit redis unavailable")

// Rule is one sliding-window budget: at most Limit cost units inside any
// rolling Window.
type Rule struct {
	Limit  int
	Window time.Duration
}

// DefaultRules is the per-scope budget table applied when the caller does
// not override a scope at construction.
var DefaultRules = map[string]Rule{
	"api":   {Limit: 100, Window: time.Minute},
	"auth":  {Limit: 5, Window: time.Minute},
	"heavy": {Limit: 10, Window: 5 * time.Minute},
}

// Options tunes a single check. Cost weighs the request (default 1);
// Burst extends the budget for this check; BypassDev skips the check
// entirely when the limiter runs in dev mode.
type Options struct {
	Cost      int
	Burst     int
	BypassDev bool
}

// Status is a point-in-time view of one window.
type Status struct {
	Remaining int
	Reset     time.Time
	Total     int
	Used      int
}

// Config defines a public type used by authcore APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Prefix  string
	DevMode bool
	Rules   map[string]Rule
}

// checkWindowLua runs one rate-limit check as a single atomic unit:
// prune members older than the window, insert the new marker, sum the
// cost encoded in each surviving member, refresh the key TTL for garbage
// collection.
//
// KEYS[1] = window key
// ARGV[1] = now millis
// ARGV[2] = window millis
// ARGV[3] = member ("now:rand:cost", collision-free within a millisecond)
//
// Returns the post-insert cost sum.
var checkWindowLua = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])

redis.call('ZREMRANGEBYSCORE', KEYS[1], 0, now - window)
redis.call('ZADD', KEYS[1], now, ARGV[3])

local members = redis.call('ZRANGE', KEYS[1], 0, -1)
local used = 0
for i = 1, #members do
  used = used + (tonumber(string.match(members[i], ':(%d+)$')) or 1)
end

redis.call('PEXPIRE', KEYS[1], window)
return used
`)

// Limiter is a Redis-backed sliding-window rate limiter. Any backing
// store failure fails open: availability is prioritized over strict
// throttling during outages.
//
//	Docs: docs/ratelimit.md
type Limiter struct {
	redis   redis.UniversalClient
	prefix  string
	devMode bool
	rules   map[string]Rule
}

// New creates a [Limiter] backed by the given Redis client. Scope rules
// from cfg.Rules override [DefaultRules] per scope.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	if cfg.Prefix == "" {
		cfg.Prefix = "arl"
	}

	rules := make(map[string]Rule, len(DefaultRules)+len(cfg.Rules))
	for scope, rule := range DefaultRules {
		rules[scope] = rule
	}
	for scope, rule := range cfg.Rules {
		rules[scope] = rule
	}

	return &Limiter{
		redis:   redisClient,
		prefix:  cfg.Prefix,
		devMode: cfg.DevMode,
		rules:   rules,
	}
}

func (l *Limiter) key(key string) string {
	return l.prefix + ":" + key
}

// RuleFor returns the configured rule for a scope.
func (l *Limiter) RuleFor(scope string) (Rule, bool) {
	rule, ok := l.rules[scope]
	return rule, ok
}

// IsLimited records one request against the window and reports whether
// the budget is exceeded. The check is limited iff the post-insert cost
// sum is greater than limit (plus burst when set). Store errors report
// not-limited.
//
//	Performance: 1 Lua EVALSHA (atomic prune + insert + sum + expire).
//	Docs: docs/ratelimit.md
func (l *Limiter) IsLimited(ctx context.Context, key string, limit int, window time.Duration, opts Options) bool {
	if l.devMode && opts.BypassDev {
		return false
	}
	if limit <= 0 || window <= 0 {
		return false
	}

	cost := opts.Cost
	if cost < 1 {
		cost = 1
	}

	used, err := l.check(ctx, key, window, cost)
	if err != nil {
		// Fail open.
		return false
	}

	budget := limit
	if opts.Burst > 0 {
		budget += opts.Burst
	}
	return used > budget
}

// IsLimitedScope looks up the scope's rule and checks key
// "scope:identifier" against it. Unknown scopes are never limited.
func (l *Limiter) IsLimitedScope(ctx context.Context, scope, identifier string, opts Options) bool {
	rule, ok := l.rules[scope]
	if !ok {
		return false
	}
	return l.IsLimited(ctx, scope+":"+identifier, rule.Limit, rule.Window, opts)
}

func (l *Limiter) check(ctx context.Context, key string, window time.Duration, cost int) (int, error) {
	now := time.Now().UnixMilli()

	member, err := windowMember(now, cost)
	if err != nil {
		return 0, err
	}

	used, err := checkWindowLua.Run(ctx, l.redis,
		[]string{l.key(key)},
		now,
		window.Milliseconds(),
		member,
	).Int()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return used, nil
}

// Status prunes the window and reports its current occupancy without
// recording a request.
//
// Status may return an error when input validation, dependency calls, or security checks fail.
func (l *Limiter) Status(ctx context.Context, key string, limit int, window time.Duration) (*Status, error) {
	now := time.Now()
	rkey := l.key(key)

	pipe := l.redis.Pipeline()
	pipe.ZRemRangeByScore(ctx, rkey, "0", fmt.Sprintf("%d", now.UnixMilli()-window.Milliseconds()))
	rangeCmd := pipe.ZRange(ctx, rkey, 0, -1)
	ttlCmd := pipe.PTTL(ctx, rkey)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	used := 0
	for _, member := range rangeCmd.Val() {
		used += memberCost(member)
	}

	reset := now.Add(window)
	if ttl := ttlCmd.Val(); ttl > 0 {
		reset = now.Add(ttl)
	}

	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}

	return &Status{
		Remaining: remaining,
		Reset:     reset,
		Total:     limit,
		Used:      used,
	}, nil
}

func windowMember(now int64, cost int) (string, error) {
	var nonce [4]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", err
	}
	return fmt.Sprintf("%d:%s:%d", now, hex.EncodeToString(nonce[:]), cost), nil
}

func memberCost(member string) int {
	for i := len(member) - 1; i >= 0; i-- {
		if member[i] == ':' {
			cost := 0
			for _, c := range member[i+1:] {
				if c < '0' || c > '9' {
					return 1
				}
				cost = cost*10 + int(c-'0')
			}
			if cost < 1 {
				return 1
			}
			return cost
		}
	}
	return 1
}

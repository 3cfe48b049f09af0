package authcore

import (
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/carewire/authcore/challenge"
	"github.com/carewire/authcore/internal/audit"
	"github.com/carewire/authcore/internal/blacklist"
	internalmetrics "github.com/carewire/authcore/internal/metrics"
	"github.com/carewire/authcore/jwt"
	"github.com/carewire/authcore/password"
	"github.com/carewire/authcore/ratelimit"
	"github.com/carewire/authcore/session"
)

// Builder assembles a Service. A builder is single-use: Build consumes
// it.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config    Config
	redis     redis.UniversalClient
	auditSink AuditSink

	built bool
}

// New returns a builder preloaded with DefaultConfig. Signing material
// must still be supplied via WithConfig before Build.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the builder's configuration wholesale.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis sets the Redis client backing every engine store. The
// client is owned by the caller.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithAuditSink sets the destination for audit events. When unset and
// auditing is enabled, events go to a no-op sink.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles counter collection.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the validate-latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatency = enabled
	return b
}

// Build validates the configuration, constructs every store, and
// returns the ready engine.
//
// Build may return an error when input validation, dependency calls, or security checks fail.
func (b *Builder) Build() (*Service, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	b.built = true

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if err := b.config.Validate(); err != nil {
		return nil, err
	}

	tokens, err := jwt.NewManager(jwt.Config{
		AccessTTL:     b.config.JWT.AccessTTL,
		RefreshTTL:    b.config.JWT.RefreshTTL,
		SigningMethod: b.config.JWT.SigningMethod,
		PrivateKey:    b.config.JWT.PrivateKey,
		PublicKey:     b.config.JWT.PublicKey,
		Issuer:        b.config.JWT.Issuer,
		Audience:      b.config.JWT.Audience,
		Leeway:        b.config.JWT.Leeway,
	})
	if err != nil {
		return nil, err
	}

	hasher, err := password.NewHasher(password.Params{
		Memory:      b.config.Password.Memory,
		Time:        b.config.Password.Time,
		Parallelism: b.config.Password.Parallelism,
		SaltLength:  b.config.Password.SaltLength,
		KeyLength:   b.config.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	sink := b.auditSink
	if sink == nil {
		sink = audit.NoOpSink{}
	}

	return &Service{
		config:     b.config,
		tokens:     tokens,
		sessions:   session.NewStore(b.redis, b.config.Session.RedisPrefix, b.config.Session.MaxPerUser),
		blacklist:  blacklist.New(b.redis, "abl"),
		challenges: challenge.NewStore(b.redis, b.config.Challenge.RedisPrefix),
		limiter: ratelimit.New(b.redis, ratelimit.Config{
			Prefix:  b.config.RateLimit.RedisPrefix,
			DevMode: b.config.RateLimit.DevMode,
			Rules:   b.config.RateLimit.Rules,
		}),
		hasher: hasher,
		metrics: internalmetrics.New(internalmetrics.Config{
			Enabled:       b.config.Metrics.Enabled,
			EnableLatency: b.config.Metrics.EnableLatency,
		}),
		audit: audit.NewDispatcher(audit.Config{
			Enabled:    b.config.Audit.Enabled,
			BufferSize: b.config.Audit.BufferSize,
			DropIfFull: b.config.Audit.DropIfFull,
		}, sink),
	}, nil
}

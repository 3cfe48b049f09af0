package authcore

import (
	"fmt"
	"time"

	"github.com/carewire/authcore/jwt"
	"github.com/carewire/authcore/ratelimit"
)

// Config defines a public type used by authcore APIs.
type Config struct {
	JWT       JWTConfig
	Session   SessionConfig
	Challenge ChallengeConfig
	RateLimit RateLimitConfig
	Password  PasswordConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

// JWTConfig defines a public type used by authcore APIs.
type JWTConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod jwt.SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

// SessionConfig defines a public type used by authcore APIs.
type SessionConfig struct {
	RedisPrefix string
	// IdleTimeout is the sliding inactivity window; each successful
	// validation extends the session by this amount.
	IdleTimeout time.Duration
	// AbsoluteLifetime caps a session's total age regardless of
	// activity. Zero disables the cap.
	AbsoluteLifetime time.Duration
	MaxPerUser       int
}

// ChallengeConfig defines a public type used by authcore APIs.
type ChallengeConfig struct {
	RedisPrefix      string
	OTPDigits        int
	OTPMaxAttempts   int
	OTPTTL           time.Duration
	MagicLinkTTL     time.Duration
	PasswordResetTTL time.Duration
}

// RateLimitConfig defines a public type used by authcore APIs.
type RateLimitConfig struct {
	RedisPrefix string
	DevMode     bool
	// Rules overrides or extends the built-in per-scope defaults.
	Rules map[string]ratelimit.Rule
}

// PasswordConfig defines a public type used by authcore APIs.
type PasswordConfig struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// AuditConfig defines a public type used by authcore APIs.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig defines a public type used by authcore APIs.
type MetricsConfig struct {
	Enabled       bool
	EnableLatency bool
}

// DefaultConfig returns the engine defaults. Signing material is not
// defaulted and must be supplied by the caller.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: jwt.MethodEd25519,
			Leeway:        30 * time.Second,
		},
		Session: SessionConfig{
			RedisPrefix: "as",
			IdleTimeout: 30 * time.Minute,
			MaxPerUser:  5,
		},
		Challenge: ChallengeConfig{
			RedisPrefix:      "ach",
			OTPDigits:        6,
			OTPMaxAttempts:   3,
			OTPTTL:           5 * time.Minute,
			MagicLinkTTL:     15 * time.Minute,
			PasswordResetTTL: 30 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			RedisPrefix: "arl",
		},
		Password: PasswordConfig{
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:       true,
			EnableLatency: true,
		},
	}
}

// Validate checks the configuration for internally inconsistent or unsafe
// values. It is called by the builder before any store is constructed.
func (c *Config) Validate() error {
	switch {
	case c.JWT.AccessTTL <= 0:
		return fmt.Errorf("jwt: access ttl must be positive")
	case c.JWT.RefreshTTL < c.JWT.AccessTTL:
		return fmt.Errorf("jwt: refresh ttl must be >= access ttl")
	case c.Session.IdleTimeout <= 0:
		return fmt.Errorf("session: idle timeout must be positive")
	case c.Session.AbsoluteLifetime < 0:
		return fmt.Errorf("session: absolute lifetime cannot be negative")
	case c.Session.MaxPerUser <= 0:
		return fmt.Errorf("session: max per user must be positive")
	case c.Challenge.OTPDigits < 4 || c.Challenge.OTPDigits > 10:
		return fmt.Errorf("challenge: otp digits must be between 4 and 10")
	case c.Challenge.OTPMaxAttempts <= 0:
		return fmt.Errorf("challenge: otp max attempts must be positive")
	case c.Challenge.OTPTTL <= 0 || c.Challenge.MagicLinkTTL <= 0 || c.Challenge.PasswordResetTTL <= 0:
		return fmt.Errorf("challenge: all ttls must be positive")
	case c.Audit.Enabled && c.Audit.BufferSize <= 0:
		return fmt.Errorf("audit: buffer size must be positive when enabled")
	}
	if c.Session.AbsoluteLifetime > 0 && c.Session.AbsoluteLifetime < c.Session.IdleTimeout {
		return fmt.Errorf("session: absolute lifetime cannot be shorter than idle timeout")
	}
	return nil
}

package authcore

import (
	"errors"

	"github.com/carewire/authcore/challenge"
	"github.com/carewire/authcore/internal/blacklist"
	"github.com/carewire/authcore/ratelimit"
	"github.com/carewire/authcore/session"
)

var (
	// ErrInvalidUser is an exported constant or variable used by the credential engine.
	ErrInvalidUser = errors.New("invalid user")
	// ErrTokenInvalid is an exported constant or variable used by the credential engine.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenBlacklisted is an exported constant or variable used by the credential engine.
	ErrTokenBlacklisted = errors.New("token blacklisted")
	// ErrRevocationUnavailable is returned when the blacklist cannot be
	// consulted. Revocation checks fail closed: a token whose status is
	// unknown is treated as revoked.
	ErrRevocationUnavailable = errors.New("revocation state unavailable")
	// ErrSessionNotFound is an exported constant or variable used by the credential engine.
	ErrSessionNotFound = errors.New("no active session for token")
	// ErrSessionCreationFailed is an exported constant or variable used by the credential engine.
	ErrSessionCreationFailed = errors.New("session creation failed")
	// ErrSessionInvalidationFailed is an exported constant or variable used by the credential engine.
	ErrSessionInvalidationFailed = errors.New("session invalidation failed")
	// ErrRefreshInvalid is an exported constant or variable used by the credential engine.
	ErrRefreshInvalid = errors.New("invalid refresh token")
	// ErrRefreshReuse is an exported constant or variable used by the credential engine.
	ErrRefreshReuse = errors.New("refresh token reuse detected")
	// ErrRateLimited is an exported constant or variable used by the credential engine.
	ErrRateLimited = errors.New("rate limited")
	// ErrEngineNotReady is an exported constant or variable used by the credential engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// IsAuthorizationFailure reports whether err is terminal for the current
// request: the caller must re-authenticate or request a new challenge.
func IsAuthorizationFailure(err error) bool {
	for _, target := range []error{
		ErrTokenInvalid,
		ErrTokenBlacklisted,
		ErrRevocationUnavailable,
		ErrSessionNotFound,
		ErrRefreshInvalid,
		ErrRefreshReuse,
		challenge.ErrNotFound,
		challenge.ErrExpired,
		challenge.ErrExhausted,
		challenge.ErrAlreadyUsed,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsValidationFailure reports whether err is recoverable: the caller may
// retry within policy limits (e.g. wrong OTP digits).
func IsValidationFailure(err error) bool {
	return errors.Is(err, challenge.ErrMismatch)
}

// IsRateLimited reports whether the caller must back off.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// IsStoreUnavailable reports whether err stems from the backing cache
// store rather than the presented credentials.
func IsStoreUnavailable(err error) bool {
	for _, target := range []error{
		session.ErrRedisUnavailable,
		challenge.ErrRedisUnavailable,
		ratelimit.ErrRedisUnavailable,
		blacklist.ErrRedisUnavailable,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

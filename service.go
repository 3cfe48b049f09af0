package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/carewire/authcore/challenge"
	"github.com/carewire/authcore/internal"
	"github.com/carewire/authcore/internal/audit"
	"github.com/carewire/authcore/internal/blacklist"
	internalmetrics "github.com/carewire/authcore/internal/metrics"
	"github.com/carewire/authcore/jwt"
	"github.com/carewire/authcore/password"
	"github.com/carewire/authcore/ratelimit"
	"github.com/carewire/authcore/session"
)

// Service is the credential engine. It issues and validates token pairs,
// tracks sessions, manages short-lived challenges, and enforces rate
// limits, all against a single Redis backend.
//
// Service instances are safe for concurrent use.
type Service struct {
	config     Config
	tokens     *jwt.Manager
	sessions   *session.Store
	blacklist  *blacklist.Store
	challenges *challenge.Store
	limiter    *ratelimit.Limiter
	hasher     *password.Hasher
	metrics    *internalmetrics.Metrics
	audit      *audit.Dispatcher
}

// Issue authenticates nothing; the caller has already verified the user
// by password, challenge, or upstream identity provider. It mints an
// access/refresh pair bound to a fresh session. When the user is at the
// per-user session cap, the oldest sessions are evicted and their tokens
// blacklisted before the new pair is returned.
func (s *Service) Issue(ctx context.Context, user User, meta SessionMeta) (*TokenPair, error) {
	if user.ID == "" || user.Domain == "" {
		return nil, fmt.Errorf("%w: id and domain are required", ErrInvalidUser)
	}

	sessionID := uuid.NewString()

	access, err := s.tokens.Create(jwt.KindAccess, user.ID, user.Email, user.Domain, user.Roles, user.Permissions, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	refresh, err := s.tokens.Create(jwt.KindRefresh, user.ID, user.Email, user.Domain, user.Roles, user.Permissions, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	now := time.Now()
	sess := &session.Session{
		SessionID:    sessionID,
		UserID:       user.ID,
		Domain:       user.Domain,
		AccessHash:   internal.HashToken(access),
		RefreshHash:  internal.HashToken(refresh),
		UserAgent:    meta.UserAgent,
		IPAddress:    meta.IPAddress,
		CreatedAt:    now.Unix(),
		LastActiveAt: now.Unix(),
		ExpiresAt:    now.Add(s.config.Session.IdleTimeout).Unix(),
		Active:       true,
	}

	evicted, err := s.sessions.Create(ctx, sess, s.config.Session.IdleTimeout)
	if err != nil {
		s.metrics.Inc(internalmetrics.MetricValidateFailure)
		return nil, fmt.Errorf("%w: %v", ErrSessionCreationFailed, err)
	}

	for _, victim := range evicted {
		s.retireSession(ctx, victim)
		s.metrics.Inc(internalmetrics.MetricSessionEvicted)
		s.emit(ctx, AuditEvent{
			EventType: EventSessionEvicted,
			UserID:    victim.UserID,
			Domain:    victim.Domain,
			SessionID: victim.SessionID,
			Success:   true,
		})
	}

	s.metrics.Inc(internalmetrics.MetricTokenIssued)
	s.metrics.Inc(internalmetrics.MetricSessionCreated)
	s.emit(ctx, AuditEvent{
		EventType: EventTokenIssued,
		UserID:    user.ID,
		Domain:    user.Domain,
		SessionID: sessionID,
		IP:        meta.IPAddress,
		Success:   true,
	})

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.config.JWT.AccessTTL.Seconds()),
		SessionID:    sessionID,
	}, nil
}

// Validate checks a presented token end to end: revocation state first,
// then signature and claims, then the backing session. The blacklist
// check fails closed; the session activity touch fails open.
func (s *Service) Validate(ctx context.Context, token string) (*jwt.Claims, error) {
	start := time.Now()
	defer func() {
		s.metrics.Observe(internalmetrics.MetricValidateLatency, time.Since(start))
	}()

	hash := internal.HashToken(token)

	revoked, err := s.blacklist.Contains(ctx, hash)
	if err != nil {
		s.metrics.Inc(internalmetrics.MetricValidateFailure)
		return nil, fmt.Errorf("%w: %v", ErrRevocationUnavailable, err)
	}
	if revoked {
		s.metrics.Inc(internalmetrics.MetricValidateFailure)
		s.emit(ctx, AuditEvent{EventType: EventTokenRejected, Error: ErrTokenBlacklisted.Error()})
		return nil, ErrTokenBlacklisted
	}

	claims, err := s.parseAnyKind(token)
	if err != nil {
		s.metrics.Inc(internalmetrics.MetricValidateFailure)
		s.emit(ctx, AuditEvent{EventType: EventTokenRejected, Error: err.Error()})
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	ok, err := s.sessions.Validate(ctx, claims.Domain, claims.Subject, &hash,
		s.config.Session.IdleTimeout, s.config.Session.AbsoluteLifetime)
	if err != nil {
		// The token passed every cryptographic and revocation check;
		// a transient session-store failure does not invalidate it.
		s.metrics.Inc(internalmetrics.MetricValidateSuccess)
		return claims, nil
	}
	if !ok {
		s.metrics.Inc(internalmetrics.MetricValidateFailure)
		s.emit(ctx, AuditEvent{
			EventType: EventTokenRejected,
			UserID:    claims.Subject,
			Domain:    claims.Domain,
			SessionID: claims.SessionID,
			Error:     ErrSessionNotFound.Error(),
		})
		return nil, ErrSessionNotFound
	}

	s.metrics.Inc(internalmetrics.MetricValidateSuccess)
	return claims, nil
}

// Refresh rotates a refresh token: the presented token is atomically
// consumed and a new pair with a new session is issued. Concurrent
// presentations of the same refresh token resolve to exactly one winner;
// losers get ErrRefreshReuse and the backing session is revoked, on the
// assumption that one of the two presenters is an attacker.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.tokens.Parse(refreshToken, jwt.KindRefresh)
	if err != nil {
		s.metrics.Inc(internalmetrics.MetricRefreshFailure)
		return nil, fmt.Errorf("%w: %v", ErrRefreshInvalid, err)
	}

	hash := internal.HashToken(refreshToken)
	ttl := s.config.JWT.RefreshTTL
	if exp := claims.ExpiresAt; exp != nil {
		if remaining := time.Until(exp.Time); remaining > 0 {
			ttl = remaining
		}
	}

	won, err := s.blacklist.Claim(ctx, hash, ttl)
	if err != nil {
		s.metrics.Inc(internalmetrics.MetricRefreshFailure)
		return nil, fmt.Errorf("%w: %v", ErrRevocationUnavailable, err)
	}
	if !won {
		s.metrics.Inc(internalmetrics.MetricRefreshReuseBlocked)
		s.emit(ctx, AuditEvent{
			EventType: EventRefreshReuse,
			UserID:    claims.Subject,
			Domain:    claims.Domain,
			SessionID: claims.SessionID,
			Error:     ErrRefreshReuse.Error(),
		})
		// Best effort: the legitimate holder must re-authenticate.
		_ = s.RevokeSession(ctx, claims.Domain, claims.SessionID)
		return nil, ErrRefreshReuse
	}

	meta := SessionMeta{}
	old, err := s.sessions.Revoke(ctx, claims.Domain, claims.SessionID)
	if err == nil && old != nil {
		meta = SessionMeta{UserAgent: old.UserAgent, IPAddress: old.IPAddress}
		if addErr := s.blacklist.Add(ctx, old.AccessHash, s.config.JWT.AccessTTL); addErr == nil {
			s.metrics.Inc(internalmetrics.MetricTokenBlacklisted)
		}
	}

	user := User{
		ID:          claims.Subject,
		Email:       claims.Email,
		Domain:      claims.Domain,
		Roles:       claims.Roles,
		Permissions: claims.Permissions,
	}
	pair, err := s.Issue(ctx, user, meta)
	if err != nil {
		s.metrics.Inc(internalmetrics.MetricRefreshFailure)
		return nil, err
	}

	s.metrics.Inc(internalmetrics.MetricRefreshSuccess)
	s.emit(ctx, AuditEvent{
		EventType: EventTokenRefreshed,
		UserID:    user.ID,
		Domain:    user.Domain,
		SessionID: pair.SessionID,
		Success:   true,
	})
	return pair, nil
}

// Blacklist revokes a single token ahead of its natural expiry. The
// entry's TTL is sized from the token's own exp claim so revocation
// state never outlives the token it covers.
func (s *Service) Blacklist(ctx context.Context, token string) error {
	ttl := s.config.JWT.RefreshTTL
	if exp, ok := s.tokens.ExpiryOf(token); ok {
		remaining := time.Until(exp)
		if remaining <= 0 {
			// Already expired; validation rejects it without our help.
			return nil
		}
		ttl = remaining
	}

	if err := s.blacklist.Add(ctx, internal.HashToken(token), ttl); err != nil {
		return fmt.Errorf("%w: %v", ErrRevocationUnavailable, err)
	}

	s.metrics.Inc(internalmetrics.MetricTokenBlacklisted)
	s.emit(ctx, AuditEvent{EventType: EventTokenBlacklisted, Success: true})
	return nil
}

// RevokeSession deletes one session and blacklists both of its tokens.
// Revoking a session that does not exist is a no-op.
func (s *Service) RevokeSession(ctx context.Context, domain, sessionID string) error {
	sess, err := s.sessions.Revoke(ctx, domain, sessionID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSessionInvalidationFailed, err)
	}
	if sess == nil {
		return nil
	}

	s.retireSession(ctx, sess)
	s.metrics.Inc(internalmetrics.MetricSessionRevoked)
	s.emit(ctx, AuditEvent{
		EventType: EventSessionRevoked,
		UserID:    sess.UserID,
		Domain:    sess.Domain,
		SessionID: sess.SessionID,
		Success:   true,
	})
	return nil
}

// RevokeAllSessions force-logs-out a user everywhere and returns how
// many sessions were revoked.
func (s *Service) RevokeAllSessions(ctx context.Context, domain, userID string) (int, error) {
	revoked, err := s.sessions.RevokeAll(ctx, domain, userID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSessionInvalidationFailed, err)
	}

	for _, sess := range revoked {
		s.retireSession(ctx, sess)
		s.metrics.Inc(internalmetrics.MetricSessionRevoked)
	}
	if len(revoked) > 0 {
		s.emit(ctx, AuditEvent{
			EventType: EventSessionRevoked,
			UserID:    userID,
			Domain:    domain,
			Success:   true,
			Metadata:  map[string]string{"count": fmt.Sprintf("%d", len(revoked))},
		})
	}
	return len(revoked), nil
}

// ActiveSessions returns the IDs of the user's live sessions, oldest
// first.
func (s *Service) ActiveSessions(ctx context.Context, domain, userID string) ([]string, error) {
	return s.sessions.ActiveSessionIDs(ctx, domain, userID)
}

// GenerateOTP issues a numeric one-time passcode for the identifier and
// returns the plaintext code for out-of-band delivery. Only its hash is
// stored.
func (s *Service) GenerateOTP(ctx context.Context, identifier, domain string) (string, error) {
	code, err := s.challenges.Generate(ctx, challenge.KindOTP, identifier, domain, challenge.Options{
		TTL:         s.config.Challenge.OTPTTL,
		Digits:      s.config.Challenge.OTPDigits,
		MaxAttempts: s.config.Challenge.OTPMaxAttempts,
	})
	if err != nil {
		return "", err
	}
	s.metrics.Inc(internalmetrics.MetricChallengeIssued)
	s.emit(ctx, AuditEvent{
		EventType: EventChallengeIssued,
		UserID:    identifier,
		Domain:    domain,
		Success:   true,
		Metadata:  map[string]string{"kind": challenge.KindOTP.String()},
	})
	return code, nil
}

// GenerateMagicLink issues a single-use login link secret for the
// identifier. The returned secret is embedded in the link the caller
// sends; redirectURL is replayed to the caller on successful
// verification.
func (s *Service) GenerateMagicLink(ctx context.Context, identifier, domain, email, redirectURL string) (string, error) {
	secret, err := s.challenges.Generate(ctx, challenge.KindMagicLink, identifier, domain, challenge.Options{
		TTL:         s.config.Challenge.MagicLinkTTL,
		Email:       email,
		RedirectURL: redirectURL,
	})
	if err != nil {
		return "", err
	}
	s.metrics.Inc(internalmetrics.MetricChallengeIssued)
	s.emit(ctx, AuditEvent{
		EventType: EventChallengeIssued,
		UserID:    identifier,
		Domain:    domain,
		Success:   true,
		Metadata:  map[string]string{"kind": challenge.KindMagicLink.String()},
	})
	return secret, nil
}

// GeneratePasswordReset issues a single-use password reset secret for
// the identifier.
func (s *Service) GeneratePasswordReset(ctx context.Context, identifier, domain, email string) (string, error) {
	secret, err := s.challenges.Generate(ctx, challenge.KindPasswordReset, identifier, domain, challenge.Options{
		TTL:   s.config.Challenge.PasswordResetTTL,
		Email: email,
	})
	if err != nil {
		return "", err
	}
	s.metrics.Inc(internalmetrics.MetricChallengeIssued)
	s.emit(ctx, AuditEvent{
		EventType: EventChallengeIssued,
		UserID:    identifier,
		Domain:    domain,
		Success:   true,
		Metadata:  map[string]string{"kind": challenge.KindPasswordReset.String()},
	})
	return secret, nil
}

// VerifyChallenge checks a presented secret against the pending
// challenge for the identifier. A correct OTP consumes the challenge; a
// correct link secret marks it used. The returned record carries the
// challenge's email and redirect URL for the caller's follow-up flow.
func (s *Service) VerifyChallenge(ctx context.Context, kind challenge.Kind, identifier, domain, presented string) (*challenge.Record, error) {
	rec, err := s.challenges.Verify(ctx, kind, identifier, domain, presented)
	if err != nil {
		s.metrics.Inc(internalmetrics.MetricChallengeRejected)
		s.emit(ctx, AuditEvent{
			EventType: EventChallengeRejected,
			UserID:    identifier,
			Domain:    domain,
			Error:     err.Error(),
			Metadata:  map[string]string{"kind": kind.String()},
		})
		return nil, err
	}

	s.metrics.Inc(internalmetrics.MetricChallengeAccepted)
	s.emit(ctx, AuditEvent{
		EventType: EventChallengeAccepted,
		UserID:    identifier,
		Domain:    domain,
		Success:   true,
		Metadata:  map[string]string{"kind": kind.String()},
	})
	return rec, nil
}

// InvalidateChallenge cancels a pending challenge, e.g. when the user
// requests a new code before consuming the old one.
func (s *Service) InvalidateChallenge(ctx context.Context, kind challenge.Kind, identifier, domain string) error {
	return s.challenges.Invalidate(ctx, kind, identifier, domain)
}

// HasActiveChallenge reports whether an unconsumed, unexpired challenge
// exists for the identifier. Useful for resend throttling.
func (s *Service) HasActiveChallenge(ctx context.Context, kind challenge.Kind, identifier, domain string) (bool, error) {
	return s.challenges.HasActive(ctx, kind, identifier, domain)
}

// CheckRateLimit records one hit for the identifier under the named
// scope and reports whether the scope's limit is now exceeded. Store
// failures fail open.
func (s *Service) CheckRateLimit(ctx context.Context, scope, identifier string, opts ratelimit.Options) bool {
	limited := s.limiter.IsLimitedScope(ctx, scope, identifier, opts)
	if limited {
		s.metrics.Inc(internalmetrics.MetricRateLimitHit)
		s.emit(ctx, AuditEvent{
			EventType: EventRateLimitExceeded,
			UserID:    identifier,
			Metadata:  map[string]string{"scope": scope},
		})
	}
	return limited
}

// RateLimitStatus returns the remaining allowance for the identifier
// under the named scope without recording a hit.
func (s *Service) RateLimitStatus(ctx context.Context, scope, identifier string) (*ratelimit.Status, error) {
	rule, ok := s.limiter.RuleFor(scope)
	if !ok {
		return nil, fmt.Errorf("unknown rate limit scope %q", scope)
	}
	return s.limiter.Status(ctx, scope+":"+identifier, rule.Limit, rule.Window)
}

// Challenges exposes the challenge store for callers that need kinds or
// options beyond the typed helpers.
func (s *Service) Challenges() *challenge.Store { return s.challenges }

// RateLimiter exposes the underlying limiter for ad hoc keys.
func (s *Service) RateLimiter() *ratelimit.Limiter { return s.limiter }

// PasswordHasher exposes the argon2id hasher configured for the engine.
func (s *Service) PasswordHasher() *password.Hasher { return s.hasher }

// MetricsSnapshot returns a point-in-time copy of all engine counters
// and histograms.
func (s *Service) MetricsSnapshot() MetricsSnapshot { return s.metrics.Snapshot() }

// AuditDropped returns how many audit events were discarded because the
// dispatcher buffer was full.
func (s *Service) AuditDropped() uint64 { return s.audit.Dropped() }

// Close drains the audit dispatcher. The Redis client is owned by the
// caller and is not closed.
func (s *Service) Close() {
	s.audit.Close()
}

// parseAnyKind accepts either token kind; Validate serves both bearer
// access tokens and refresh tokens presented for introspection.
func (s *Service) parseAnyKind(token string) (*jwt.Claims, error) {
	claims, err := s.tokens.Parse(token, jwt.KindAccess)
	if err == nil {
		return claims, nil
	}
	if errors.Is(err, jwt.ErrKindMismatch) {
		return s.tokens.Parse(token, jwt.KindRefresh)
	}
	return nil, err
}

// retireSession blacklists both token hashes of a session that is being
// removed. Failures are swallowed; the session record itself is already
// gone and the tokens expire naturally.
func (s *Service) retireSession(ctx context.Context, sess *session.Session) {
	if err := s.blacklist.Add(ctx, sess.AccessHash, s.config.JWT.AccessTTL); err == nil {
		s.metrics.Inc(internalmetrics.MetricTokenBlacklisted)
	}
	if err := s.blacklist.Add(ctx, sess.RefreshHash, s.config.JWT.RefreshTTL); err == nil {
		s.metrics.Inc(internalmetrics.MetricTokenBlacklisted)
	}
}

func (s *Service) emit(ctx context.Context, event AuditEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	s.audit.Emit(ctx, event)
}

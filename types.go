package authcore

import (
	"io"

	"github.com/carewire/authcore/internal/audit"
)

// User carries the identity attributes embedded in issued tokens. The
// engine never persists it; only derived claims and hashes are stored.
type User struct {
	ID          string
	Email       string
	Domain      string
	Roles       []string
	Permissions []string
}

// SessionMeta defines a public type used by authcore APIs.
type SessionMeta struct {
	UserAgent string
	IPAddress string
}

// TokenPair defines a public type used by authcore APIs.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	SessionID    string `json:"session_id"`
}

// AuditEvent defines a public type used by authcore APIs.
type AuditEvent = audit.Event

// AuditSink defines a public type used by authcore APIs.
type AuditSink = audit.Sink

// NoOpAuditSink defines a public type used by authcore APIs.
type NoOpAuditSink = audit.NoOpSink

// ChannelAuditSink defines a public type used by authcore APIs.
type ChannelAuditSink = audit.ChannelSink

// NewChannelAuditSink returns a sink that buffers events on a channel
// for consumption by the embedding application.
func NewChannelAuditSink(buffer int) *ChannelAuditSink {
	return audit.NewChannelSink(buffer)
}

// NewJSONAuditSink returns a sink that writes one JSON object per event
// to w.
func NewJSONAuditSink(w io.Writer) AuditSink {
	return audit.NewJSONWriterSink(w)
}

// Audit event types emitted by the engine.
const (
	EventTokenIssued       = "token.issued"
	EventTokenValidated    = "token.validated"
	EventTokenRejected     = "token.rejected"
	EventTokenBlacklisted  = "token.blacklisted"
	EventTokenRefreshed    = "token.refreshed"
	EventRefreshReuse      = "token.refresh_reuse"
	EventSessionEvicted    = "session.evicted"
	EventSessionRevoked    = "session.revoked"
	EventChallengeIssued   = "challenge.issued"
	EventChallengeAccepted = "challenge.accepted"
	EventChallengeRejected = "challenge.rejected"
	EventRateLimitExceeded = "ratelimit.exceeded"
)

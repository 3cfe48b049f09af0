package session

// Session defines a public type used by authcore APIs.
//
// Session records are owned exclusively by the [Store]: created on token
// issuance, rewritten on activity touch, deleted on revoke or natural TTL
// expiry. Token references are SHA-256 hashes; the bearer strings are
// never stored.
type Session struct {
	SessionID string
	UserID    string
	Domain    string

	AccessHash  [32]byte
	RefreshHash [32]byte

	UserAgent string
	IPAddress string

	CreatedAt    int64
	LastActiveAt int64
	ExpiresAt    int64

	Active bool
}

// Package authcore provides a Redis-backed credential engine: JWT access
// and refresh token pairs, FIFO-capped session tracking, one-time
// challenges (OTP, magic link, password reset), and sliding-window rate
// limiting.
//
// The package is designed for concurrent server workloads: Service
// methods are safe to call from multiple goroutines after initialization
// through [Builder.Build].
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Service], [Builder],
// [Config], and value types (TokenPair, MetricsSnapshot, etc.).
// Token hashing, revocation storage, audit dispatch, and metric
// collection live under internal/ and are never exported.
//
// # Failure policy
//
// Revocation checks fail closed: when the blacklist cannot be read, the
// token is rejected. Rate limiting and session activity touches fail
// open: a cache outage degrades enforcement, it does not lock users out.
package authcore

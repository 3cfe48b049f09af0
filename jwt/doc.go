// Package jwt wraps token signing and verification for the credential
// engine. It supports HS256 (shared secret) and Ed25519 (keypair) and
// produces the access/refresh claim sets consumed by the root package.
//
//	Docs: docs/jwt.md
package jwt

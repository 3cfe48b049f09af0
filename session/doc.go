// Package session implements the capped, Redis-backed session store.
// Sessions make signed tokens revocable: a token with no active backing
// session is rejected no matter how valid its signature is.
//
//	Docs: docs/session.md
package session

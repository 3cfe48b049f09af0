// Package challenge implements single-use, time-boxed credential
// challenges: one-time codes, magic links, and password-reset tokens.
// All three share one storage protocol with kind-specific consumption
// semantics, decoded once at the store boundary.
//
//	Docs: docs/challenge.md
package challenge

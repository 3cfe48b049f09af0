// Package internal contains shared helpers that are not part of the
// public authcore API surface: secret generation and token reference
// hashing.
package internal

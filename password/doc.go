// Package password provides the argon2id credential hashing primitive
// used around the login flows. It is deliberately self-contained: the
// credential core consumes it but never stores password material itself.
package password

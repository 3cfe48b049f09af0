// Package blacklist implements the token revocation side-table. Signed
// tokens are self-contained, so revocation is modeled as external state:
// validation consults this table before trusting any signature.
package blacklist

package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

const (
	challengeSecretSize = 48
	minOTPDigits        = 4
	maxOTPDigits        = 10
)

// NewChallengeSecret returns a high-entropy single-use token encoded as
// unpadded base64url. Used for magic links and password-reset tokens.
func NewChallengeSecret() (string, error) {
	var raw [challengeSecretSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// NewOTP returns a fixed-length numeric one-time code. Each digit is drawn
// independently from crypto/rand so the code has no modulo bias.
func NewOTP(digits int) (string, error) {
	if digits < minOTPDigits || digits > maxOTPDigits {
		return "", errors.New("invalid otp digits")
	}

	var b strings.Builder
	b.Grow(digits)

	max := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	otp := b.String()
	if len(otp) != digits {
		return "", fmt.Errorf("invalid otp generation length")
	}
	return otp, nil
}

// HashToken derives the 32-byte reference under which a bearer token is
// tracked in session records and in the revocation side-table. The token
// itself is never persisted.
func HashToken(token string) [32]byte {
	return sha256.Sum256([]byte(token))
}

// HashSecret hashes a challenge secret (OTP code or link token) for
// storage. The plaintext leaves the process exactly once, at generation.
func HashSecret(secret string) [32]byte {
	return sha256.Sum256([]byte(secret))
}

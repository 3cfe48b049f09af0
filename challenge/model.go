package challenge

// Kind tags the credential-challenge union. Each kind proves possession
// of an identity channel through a different single-use secret shape.
type Kind uint8

const (
	// KindOTP is a fixed-length numeric code with a bounded attempt budget.
	KindOTP Kind = 1
	// KindMagicLink is a high-entropy login token delivered by email.
	KindMagicLink Kind = 2
	// KindPasswordReset is a high-entropy reset token delivered by email.
	KindPasswordReset Kind = 3
)

func (k Kind) String() string {
	switch k {
	case KindOTP:
		return "otp"
	case KindMagicLink:
		return "magic_link"
	case KindPasswordReset:
		return "password_reset"
	default:
		return "unknown"
	}
}

func (k Kind) valid() bool {
	return k == KindOTP || k == KindMagicLink || k == KindPasswordReset
}

// singleUse reports whether consumption flags the record as used instead
// of deleting it. Link kinds keep the flagged record until TTL cleanup so
// a replay inside the remaining window is provably rejected.
func (k Kind) singleUse() bool {
	return k == KindMagicLink || k == KindPasswordReset
}

// Record is the stored form of a credential challenge. Only the fields
// relevant to the tagged kind are populated: attempt counters for OTP,
// email/redirect/used for the link kinds. The secret itself is stored as
// a SHA-256 hash.
type Record struct {
	Kind       Kind
	Identifier string
	Domain     string

	SecretHash [32]byte

	CreatedAt int64
	ExpiresAt int64

	// OTP only.
	Attempts    uint16
	MaxAttempts uint16

	// Link kinds only.
	Email       string
	RedirectURL string
	Used        bool
}

package challenge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*miniredis.Miniredis, *Store) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, NewStore(client, "ach")
}

func TestOTPVerifySuccessConsumesChallenge(t *testing.T) {
	_, store := newTestStore(t)
	ctx := context.Background()

	code, err := store.Generate(ctx, KindOTP, "user@example.com", "app", Options{
		TTL:         5 * time.Minute,
		Digits:      6,
		MaxAttempts: 3,
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(code) != 6 {
		t.Fatalf("expected 6-digit code, got %q", code)
	}

	rec, err := store.Verify(ctx, KindOTP, "user@example.com", "app", code)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if rec.Kind != KindOTP || rec.Identifier != "user@example.com" {
		t.Fatalf("record mismatch: %+v", rec)
	}

	// Consumed: a second presentation of the correct code finds nothing.
	if _, err := store.Verify(ctx, KindOTP, "user@example.com", "app", code); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after consumption, got %v", err)
	}
}

func TestOTPAttemptBudget(t *testing.T) {
	_, store := newTestStore(t)
	ctx := context.Background()

	code, err := store.Generate(ctx, KindOTP, "u1", "app", Options{
		TTL:         5 * time.Minute,
		Digits:      6,
		MaxAttempts: 3,
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}

	// Two wrong guesses advance the counter but keep the challenge alive.
	for i := 0; i < 2; i++ {
		if _, err := store.Verify(ctx, KindOTP, "u1", "app", wrong); !errors.Is(err, ErrMismatch) {
			t.Fatalf("attempt %d: expected ErrMismatch, got %v", i+1, err)
		}
	}

	// The third wrong guess spends the budget and deletes the record.
	if _, err := store.Verify(ctx, KindOTP, "u1", "app", wrong); !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted on final attempt, got %v", err)
	}

	// Even the correct code is now rejected: the record is gone.
	if _, err := store.Verify(ctx, KindOTP, "u1", "app", code); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after exhaustion, got %v", err)
	}
}

func TestOTPMismatchPreservesRemainingTTL(t *testing.T) {
	mr, store := newTestStore(t)
	ctx := context.Background()

	code, err := store.Generate(ctx, KindOTP, "u1", "app", Options{
		TTL:         5 * time.Minute,
		MaxAttempts: 5,
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	wrong := "999999"
	if wrong == code {
		wrong = "999998"
	}
	if _, err := store.Verify(ctx, KindOTP, "u1", "app", wrong); !errors.Is(err, ErrMismatch) {
		t.Fatalf("expected ErrMismatch, got %v", err)
	}

	// The counter rewrite must not reset the expiry clock.
	ttl := mr.TTL("ach:app:otp:u1")
	if ttl <= 0 || ttl > 5*time.Minute {
		t.Fatalf("expected remaining TTL within the original window, got %v", ttl)
	}
}

func TestMagicLinkSingleUse(t *testing.T) {
	_, store := newTestStore(t)
	ctx := context.Background()

	secret, err := store.Generate(ctx, KindMagicLink, "u1", "app", Options{
		TTL:         15 * time.Minute,
		Email:       "u1@example.com",
		RedirectURL: "https://app.example.com/welcome",
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	rec, err := store.Verify(ctx, KindMagicLink, "u1", "app", secret)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if rec.Email != "u1@example.com" || rec.RedirectURL != "https://app.example.com/welcome" {
		t.Fatalf("link payload mismatch: %+v", rec)
	}
	if !rec.Used {
		t.Fatal("expected returned record to be marked used")
	}

	// Replay inside the TTL window is distinguishable from absence.
	if _, err := store.Verify(ctx, KindMagicLink, "u1", "app", secret); !errors.Is(err, ErrAlreadyUsed) {
		t.Fatalf("expected ErrAlreadyUsed on replay, got %v", err)
	}
}

func TestPasswordResetWrongSecretDoesNotConsume(t *testing.T) {
	_, store := newTestStore(t)
	ctx := context.Background()

	secret, err := store.Generate(ctx, KindPasswordReset, "u1", "app", Options{
		TTL:   30 * time.Minute,
		Email: "u1@example.com",
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if _, err := store.Verify(ctx, KindPasswordReset, "u1", "app", "bogus-secret"); !errors.Is(err, ErrMismatch) {
		t.Fatalf("expected ErrMismatch, got %v", err)
	}

	// The real secret still works after a failed guess.
	if _, err := store.Verify(ctx, KindPasswordReset, "u1", "app", secret); err != nil {
		t.Fatalf("Verify with correct secret failed: %v", err)
	}
}

func TestVerifyExpiredChallenge(t *testing.T) {
	mr, store := newTestStore(t)
	ctx := context.Background()

	code, err := store.Generate(ctx, KindOTP, "u1", "app", Options{
		TTL:         time.Minute,
		MaxAttempts: 3,
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	if _, err := store.Verify(ctx, KindOTP, "u1", "app", code); !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrExpired) {
		t.Fatalf("expected expiry rejection, got %v", err)
	}
}

func TestRegenerateReplacesPreviousChallenge(t *testing.T) {
	_, store := newTestStore(t)
	ctx := context.Background()

	first, err := store.Generate(ctx, KindOTP, "u1", "app", Options{TTL: 5 * time.Minute, MaxAttempts: 3})
	if err != nil {
		t.Fatalf("first Generate failed: %v", err)
	}
	second, err := store.Generate(ctx, KindOTP, "u1", "app", Options{TTL: 5 * time.Minute, MaxAttempts: 3})
	if err != nil {
		t.Fatalf("second Generate failed: %v", err)
	}

	if first != second {
		if _, err := store.Verify(ctx, KindOTP, "u1", "app", first); !errors.Is(err, ErrMismatch) {
			t.Fatalf("expected first code invalidated by regeneration, got %v", err)
		}
	}
	if _, err := store.Verify(ctx, KindOTP, "u1", "app", second); err != nil {
		t.Fatalf("Verify with current code failed: %v", err)
	}
}

func TestInvalidateAndHasActive(t *testing.T) {
	_, store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Generate(ctx, KindMagicLink, "u1", "app", Options{TTL: 15 * time.Minute}); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	active, err := store.HasActive(ctx, KindMagicLink, "u1", "app")
	if err != nil {
		t.Fatalf("HasActive failed: %v", err)
	}
	if !active {
		t.Fatal("expected an active challenge")
	}

	if err := store.Invalidate(ctx, KindMagicLink, "u1", "app"); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}

	active, err = store.HasActive(ctx, KindMagicLink, "u1", "app")
	if err != nil {
		t.Fatalf("HasActive failed: %v", err)
	}
	if active {
		t.Fatal("expected no active challenge after invalidate")
	}
}

func TestKindsAreIsolated(t *testing.T) {
	_, store := newTestStore(t)
	ctx := context.Background()

	otp, err := store.Generate(ctx, KindOTP, "u1", "app", Options{TTL: 5 * time.Minute, MaxAttempts: 3})
	if err != nil {
		t.Fatalf("Generate OTP failed: %v", err)
	}
	if _, err := store.Generate(ctx, KindMagicLink, "u1", "app", Options{TTL: 15 * time.Minute}); err != nil {
		t.Fatalf("Generate link failed: %v", err)
	}

	// An OTP code presented against the link kind must not find the OTP
	// record.
	if _, err := store.Verify(ctx, KindMagicLink, "u1", "app", otp); !errors.Is(err, ErrMismatch) {
		t.Fatalf("expected ErrMismatch across kinds, got %v", err)
	}
	if _, err := store.Verify(ctx, KindOTP, "u1", "app", otp); err != nil {
		t.Fatalf("Verify OTP failed: %v", err)
	}
}

func TestRecordCodecRoundTrip(t *testing.T) {
	rec := &Record{
		Kind:        KindMagicLink,
		Identifier:  "u1",
		Domain:      "app",
		CreatedAt:   time.Now().Unix(),
		ExpiresAt:   time.Now().Add(time.Hour).Unix(),
		Attempts:    2,
		MaxAttempts: 5,
		Email:       "u1@example.com",
		RedirectURL: "https://app.example.com/next",
		Used:        true,
	}
	for i := range rec.SecretHash {
		rec.SecretHash[i] = byte(i)
	}

	data, err := encodeRecord(rec)
	if err != nil {
		t.Fatalf("encodeRecord failed: %v", err)
	}
	got, err := decodeRecord(data)
	if err != nil {
		t.Fatalf("decodeRecord failed: %v", err)
	}
	if *got != *rec {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, rec)
	}

	if _, err := decodeRecord(data[:10]); err == nil {
		t.Fatal("expected error decoding truncated record")
	}
}

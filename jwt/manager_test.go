package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"
)

func newTestManager(t *testing.T, mutate func(*Config)) *Manager {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("ed25519.GenerateKey failed: %v", err)
	}

	cfg := Config{
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
		Issuer:        "authcore-test",
	}
	if mutate != nil {
		mutate(&cfg)
	}

	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return m
}

func TestCreateAndParseRoundTrip(t *testing.T) {
	m := newTestManager(t, nil)

	token, err := m.Create(KindAccess, "u1", "u1@example.com", "app", []string{"admin"}, []string{"users.read"}, "s1")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	claims, err := m.Parse(token, KindAccess)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if claims.Subject != "u1" || claims.Email != "u1@example.com" || claims.Domain != "app" {
		t.Fatalf("claims mismatch: %+v", claims)
	}
	if claims.SessionID != "s1" || claims.Kind != KindAccess {
		t.Fatalf("session/kind mismatch: %+v", claims)
	}
	if len(claims.Roles) != 1 || claims.Roles[0] != "admin" {
		t.Fatalf("roles mismatch: %v", claims.Roles)
	}
	if len(claims.Permissions) != 1 || claims.Permissions[0] != "users.read" {
		t.Fatalf("permissions mismatch: %v", claims.Permissions)
	}
}

func TestParseRejectsKindMismatch(t *testing.T) {
	m := newTestManager(t, nil)

	refresh, err := m.Create(KindRefresh, "u1", "", "app", nil, nil, "s1")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if _, err := m.Parse(refresh, KindAccess); !errors.Is(err, ErrKindMismatch) {
		t.Fatalf("expected ErrKindMismatch, got %v", err)
	}
	if _, err := m.Parse(refresh, KindRefresh); err != nil {
		t.Fatalf("Parse as refresh failed: %v", err)
	}
}

func TestParseRejectsForeignSignature(t *testing.T) {
	m1 := newTestManager(t, nil)
	m2 := newTestManager(t, nil)

	token, err := m1.Create(KindAccess, "u1", "", "app", nil, nil, "s1")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if _, err := m2.Parse(token, KindAccess); err == nil {
		t.Fatal("expected signature verification to fail across key pairs")
	}
}

func TestParseRejectsExpiredToken(t *testing.T) {
	m := newTestManager(t, func(cfg *Config) {
		cfg.AccessTTL = time.Millisecond
		cfg.RefreshTTL = time.Millisecond
		cfg.Leeway = 0
	})

	token, err := m.Create(KindAccess, "u1", "", "app", nil, nil, "s1")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	time.Sleep(5 * time.Millisecond)

	if _, err := m.Parse(token, KindAccess); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestHS256RoundTrip(t *testing.T) {
	secret := []byte("0123456789abcdef0123456789abcdef")
	m, err := NewManager(Config{
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
		SigningMethod: MethodHS256,
		PrivateKey:    secret,
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	token, err := m.Create(KindAccess, "u1", "", "app", nil, nil, "s1")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := m.Parse(token, KindAccess); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
}

func TestNewManagerRejectsBadConfig(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("ed25519.GenerateKey failed: %v", err)
	}

	cases := []struct {
		name string
		cfg  Config
	}{
		{"zero access ttl", Config{RefreshTTL: time.Hour, SigningMethod: MethodEd25519, PrivateKey: priv, PublicKey: pub}},
		{"refresh shorter than access", Config{AccessTTL: time.Hour, RefreshTTL: time.Minute, SigningMethod: MethodEd25519, PrivateKey: priv, PublicKey: pub}},
		{"short hs256 secret", Config{AccessTTL: time.Minute, RefreshTTL: time.Hour, SigningMethod: MethodHS256, PrivateKey: []byte("short")}},
		{"missing ed25519 public key", Config{AccessTTL: time.Minute, RefreshTTL: time.Hour, SigningMethod: MethodEd25519, PrivateKey: priv}},
		{"unknown method", Config{AccessTTL: time.Minute, RefreshTTL: time.Hour, SigningMethod: "rs256", PrivateKey: priv, PublicKey: pub}},
		{"excessive leeway", Config{AccessTTL: time.Minute, RefreshTTL: time.Hour, SigningMethod: MethodEd25519, PrivateKey: priv, PublicKey: pub, Leeway: time.Hour}},
	}
	for _, tc := range cases {
		if _, err := NewManager(tc.cfg); err == nil {
			t.Fatalf("%s: expected config rejection", tc.name)
		}
	}
}

func TestExpiryOf(t *testing.T) {
	m := newTestManager(t, nil)

	token, err := m.Create(KindAccess, "u1", "", "app", nil, nil, "s1")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	exp, ok := m.ExpiryOf(token)
	if !ok {
		t.Fatal("expected exp claim")
	}
	until := time.Until(exp)
	if until < 14*time.Minute || until > 16*time.Minute {
		t.Fatalf("expected ~15m expiry, got %v", until)
	}

	if _, ok := m.ExpiryOf("not-a-token"); ok {
		t.Fatal("expected failure on garbage input")
	}
}

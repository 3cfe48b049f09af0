package challenge

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/carewire/authcore/internal"
)

var (
	// ErrNotFound is returned when no challenge exists for the key, or the
	// record was already consumed and deleted.
	ErrNotFound = errors.New("challenge not found")
	// ErrExpired is returned when the challenge outlived its window. The
	// record is deleted as a side effect.
	ErrExpired = errors.New("challenge expired")
	// ErrExhausted is returned when the OTP attempt budget is spent. The
	// record is deleted as a side effect.
	ErrExhausted = errors.New("challenge attempts exhausted")
	// ErrAlreadyUsed is returned when a single-use link or reset token is
	// presented a second time inside its TTL window.
	ErrAlreadyUsed = errors.New("challenge already used")
	// ErrMismatch is returned when the presented secret does not match.
	// For OTP the attempt counter has been advanced.
	ErrMismatch = errors.New("challenge secret mismatch")
	// ErrRedisUnavailable is an exported constant or variable used by the credential engine.
	ErrRedisUnavailable = errors.New("challenge redis unavailable")
)

// consumeChallengeLua atomically performs GET, validate, and DEL/rewrite
// on a challenge record. Ordering follows the verification protocol:
// missing, expired (delete), exhausted (delete), match (delete for OTP,
// mark used for link kinds), mismatch (OTP attempts++ rewrite at the same
// remaining TTL, so attempts may continue until the original expiry).
//
// KEYS[1] = record key
// ARGV[1] = provided secret hash (32 bytes)
// ARGV[2] = expected kind (byte value as string)
// ARGV[3] = current unix timestamp
//
// Returns record bytes on success, or an error string:
// "not_found", "expired", "exhausted", "used", "mismatch".
var consumeChallengeLua = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
  return {err='not_found'}
end

local version = string.byte(data, 1)
if version ~= 1 then
  redis.call('DEL', KEYS[1])
  return {err='not_found'}
end

local kind = string.byte(data, 2)
if kind ~= tonumber(ARGV[2]) then
  return {err='not_found'}
end

local flags = string.byte(data, 3)
local attempts = string.byte(data, 4) * 256 + string.byte(data, 5)
local maxAttempts = string.byte(data, 6) * 256 + string.byte(data, 7)

local expiresAt = 0
for i = 16, 23 do
  expiresAt = expiresAt * 256 + string.byte(data, i)
end

if tonumber(ARGV[3]) > expiresAt then
  redis.call('DEL', KEYS[1])
  return {err='expired'}
end

local stored = string.sub(data, 24, 55)

if kind == 1 then
  if maxAttempts > 0 and attempts >= maxAttempts then
    redis.call('DEL', KEYS[1])
    return {err='exhausted'}
  end

  if stored == ARGV[1] then
    redis.call('DEL', KEYS[1])
    return data
  end

  attempts = attempts + 1
  if maxAttempts > 0 and attempts >= maxAttempts then
    redis.call('DEL', KEYS[1])
    return {err='exhausted'}
  end

  local ttlMs = redis.call('PTTL', KEYS[1])
  if ttlMs <= 0 then
    redis.call('DEL', KEYS[1])
    return {err='expired'}
  end

  local updated = string.sub(data, 1, 3) .. string.char(math.floor(attempts / 256), attempts % 256) .. string.sub(data, 6)
  redis.call('SET', KEYS[1], updated, 'PX', ttlMs)
  return {err='mismatch'}
end

if flags % 2 == 1 then
  return {err='used'}
end

if stored ~= ARGV[1] then
  return {err='mismatch'}
end

local ttlMs = redis.call('PTTL', KEYS[1])
if ttlMs <= 0 then
  redis.call('DEL', KEYS[1])
  return {err='expired'}
end

local updated = string.sub(data, 1, 2) .. string.char(flags + 1) .. string.sub(data, 4)
redis.call('SET', KEYS[1], updated, 'PX', ttlMs)
return updated
`)

// Options carries kind-specific generation parameters. TTL applies to all
// kinds; Digits and MaxAttempts to OTP; Email and RedirectURL to the link
// kinds.
type Options struct {
	TTL         time.Duration
	Digits      int
	MaxAttempts int
	Email       string
	RedirectURL string
}

// Store persists credential challenges in Redis. One record per
// (kind, identifier, domain); regenerating replaces any previous record.
// TTL expiry is the sole garbage-collection mechanism.
//
//	Docs: docs/challenge.md
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a challenge [Store] backed by the given Redis client.
func NewStore(redisClient redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "ach"
	}
	return &Store{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *Store) key(kind Kind, identifier, domain string) string {
	if domain == "" {
		domain = "0"
	}
	return s.prefix + ":" + domain + ":" + kind.String() + ":" + identifier
}

// Generate creates and stores a challenge of the given kind and returns
// the plaintext secret: a numeric code for OTP, a base64url token for the
// link kinds. Only the secret's hash is persisted.
//
// Generate may return an error when input validation, dependency calls, or security checks fail.
func (s *Store) Generate(ctx context.Context, kind Kind, identifier, domain string, opts Options) (string, error) {
	if !kind.valid() {
		return "", errors.New("invalid challenge kind")
	}
	if identifier == "" {
		return "", errors.New("challenge identifier required")
	}
	if opts.TTL <= 0 {
		return "", errors.New("challenge TTL required")
	}

	var secret string
	var err error
	if kind == KindOTP {
		digits := opts.Digits
		if digits == 0 {
			digits = 6
		}
		secret, err = internal.NewOTP(digits)
	} else {
		secret, err = internal.NewChallengeSecret()
	}
	if err != nil {
		return "", err
	}

	now := time.Now()
	record := &Record{
		Kind:       kind,
		Identifier: identifier,
		Domain:     domain,
		SecretHash: internal.HashSecret(secret),
		CreatedAt:  now.Unix(),
		ExpiresAt:  now.Add(opts.TTL).Unix(),
	}
	if kind.singleUse() {
		record.Email = opts.Email
		record.RedirectURL = opts.RedirectURL
	} else {
		record.MaxAttempts = uint16(opts.MaxAttempts)
	}

	encoded, err := encodeRecord(record)
	if err != nil {
		return "", err
	}

	if err := s.redis.Set(ctx, s.key(kind, identifier, domain), encoded, opts.TTL).Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return secret, nil
}

// Verify consumes a presented secret against the stored challenge. On
// success OTP records are deleted and link records flagged used; the
// decoded record is returned. Rejections map to the sentinel errors of
// this package.
//
//	Performance: 1 Lua EVALSHA (atomic get + validate + delete/rewrite).
//	Docs: docs/challenge.md
func (s *Store) Verify(ctx context.Context, kind Kind, identifier, domain, presented string) (*Record, error) {
	if !kind.valid() {
		return nil, ErrNotFound
	}

	providedHash := internal.HashSecret(presented)

	result, err := consumeChallengeLua.Run(ctx, s.redis,
		[]string{s.key(kind, identifier, domain)},
		string(providedHash[:]),
		int(kind),
		time.Now().Unix(),
	).Result()
	if err != nil {
		switch err.Error() {
		case "not_found":
			return nil, ErrNotFound
		case "expired":
			return nil, ErrExpired
		case "exhausted":
			return nil, ErrExhausted
		case "used":
			return nil, ErrAlreadyUsed
		case "mismatch":
			return nil, ErrMismatch
		default:
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	data := scriptBytes(result)
	if data == nil {
		return nil, fmt.Errorf("%w: unexpected lua result type", ErrRedisUnavailable)
	}

	record, decErr := decodeRecord(data)
	if decErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, decErr)
	}

	// Constant-time recheck in Go as defense-in-depth: Lua string
	// comparison is not constant-time.
	if subtle.ConstantTimeCompare(record.SecretHash[:], providedHash[:]) != 1 {
		return nil, ErrMismatch
	}

	return record, nil
}

// Invalidate unconditionally deletes a challenge (explicit cancel).
func (s *Store) Invalidate(ctx context.Context, kind Kind, identifier, domain string) error {
	if err := s.redis.Del(ctx, s.key(kind, identifier, domain)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// HasActive reports whether an unexpired, unconsumed challenge exists
// for the key.
func (s *Store) HasActive(ctx context.Context, kind Kind, identifier, domain string) (bool, error) {
	data, err := s.redis.Get(ctx, s.key(kind, identifier, domain)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	record, decErr := decodeRecord(data)
	if decErr != nil {
		return false, nil
	}

	return !record.Used && time.Now().Unix() < record.ExpiresAt, nil
}

func scriptBytes(v interface{}) []byte {
	switch t := v.(type) {
	case string:
		return []byte(t)
	case []byte:
		return t
	default:
		return nil
	}
}

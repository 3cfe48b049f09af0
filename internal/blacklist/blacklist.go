package blacklist

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrRedisUnavailable = errors.New("blacklist redis unavailable")
)

const minEntryTTL = time.Second

// Store is the authoritative revocation side-table for signed tokens.
// Entries are keyed by the SHA-256 of the token and expire together with
// the token's natural lifetime, so the table never outgrows the set of
// tokens that could still verify.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

func New(redisClient redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "abl"
	}
	return &Store{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *Store) key(tokenHash [32]byte) string {
	return s.prefix + ":" + hex.EncodeToString(tokenHash[:])
}

// Add inserts a revocation entry. The insert is idempotent: revoking an
// already-revoked token refreshes the TTL and reports success.
func (s *Store) Add(ctx context.Context, tokenHash [32]byte, ttl time.Duration) error {
	if ttl < minEntryTTL {
		ttl = minEntryTTL
	}
	if err := s.redis.Set(ctx, s.key(tokenHash), "1", ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Claim inserts a revocation entry only if none exists and reports whether
// this caller won. Refresh rotation uses it as an atomic check-and-blacklist
// so that of two concurrent rotations of the same token at most one succeeds.
func (s *Store) Claim(ctx context.Context, tokenHash [32]byte, ttl time.Duration) (bool, error) {
	if ttl < minEntryTTL {
		ttl = minEntryTTL
	}
	won, err := s.redis.SetNX(ctx, s.key(tokenHash), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return won, nil
}

// Contains reports whether the token hash is currently revoked.
func (s *Store) Contains(ctx context.Context, tokenHash [32]byte) (bool, error) {
	n, err := s.redis.Exists(ctx, s.key(tokenHash)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n > 0, nil
}

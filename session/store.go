package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable is an exported constant or variable used by the credential engine.
var ErrRedisUnavailable = errors.New("session redis unavailable")

// ErrSessionCorrupt is returned when a stored session blob fails to decode.
var ErrSessionCorrupt = errSessionCorrupt

const minSessionTTL = time.Second

// createSessionScript enforces the per-user session cap as one atomic
// unit: prune stale index entries, evict from the front while at cap,
// append the new ID, write the record, refresh both TTLs. Splitting the
// read and the trim would let two concurrent logins both pass the cap
// check.
//
// KEYS[1] = user index (insertion-ordered list)
// KEYS[2] = new session key
// ARGV[1] = new session ID
// ARGV[2] = encoded session blob
// ARGV[3] = ttl millis
// ARGV[4] = session cap
// ARGV[5] = session key prefix for this domain
//
// Returns a flat list of (evicted ID, evicted blob) pairs.
const createSessionScript = `
local ids = redis.call("LRANGE", KEYS[1], 0, -1)
for i = 1, #ids do
  if redis.call("EXISTS", ARGV[5] .. ids[i]) == 0 then
    redis.call("LREM", KEYS[1], 1, ids[i])
  end
end

local evicted = {}
while redis.call("LLEN", KEYS[1]) >= tonumber(ARGV[4]) do
  local victim = redis.call("LPOP", KEYS[1])
  if not victim then
    break
  end
  local vkey = ARGV[5] .. victim
  local blob = redis.call("GET", vkey)
  redis.call("DEL", vkey)
  if blob then
    evicted[#evicted + 1] = victim
    evicted[#evicted + 1] = blob
  end
end

redis.call("RPUSH", KEYS[1], ARGV[1])
redis.call("SET", KEYS[2], ARGV[2], "PX", ARGV[3])
redis.call("PEXPIRE", KEYS[1], ARGV[3])

return evicted
`

var createSessionLua = redis.NewScript(createSessionScript)

// Store is a Redis-backed session store with a per-user concurrency cap.
// The index per user is an insertion-ordered list; when a new session
// would exceed the cap the front entry is evicted first (FIFO, not LRU).
//
//	Docs: docs/session.md
type Store struct {
	redis       redis.UniversalClient
	prefix      string
	indexPrefix string
	maxPerUser  int
}

// NewStore creates a session [Store] backed by the given Redis client.
// prefix sets the Redis key namespace; maxPerUser is the session cap.
//
//	Docs: docs/session.md
func NewStore(redisClient redis.UniversalClient, prefix string, maxPerUser int) *Store {
	if prefix == "" {
		prefix = "as"
	}
	if maxPerUser < 1 {
		maxPerUser = 1
	}
	return &Store{
		redis:       redisClient,
		prefix:      prefix,
		indexPrefix: prefix + "u",
		maxPerUser:  maxPerUser,
	}
}

func (s *Store) keyPrefix(domain string) string {
	return s.prefix + ":" + normalizeDomain(domain) + ":"
}

func (s *Store) key(domain, sessionID string) string {
	return s.keyPrefix(domain) + sessionID
}

func (s *Store) indexKey(domain, userID string) string {
	return s.indexPrefix + ":" + normalizeDomain(domain) + ":" + userID
}

func normalizeDomain(domain string) string {
	if domain == "" {
		return "0"
	}
	return domain
}

// Create persists a new [Session] with the given TTL, enforcing the
// per-user cap. Returns the sessions evicted to make room, oldest first,
// so the caller can blacklist their token references.
//
//	Performance: 1 Lua EVALSHA (atomic prune + evict + append + write).
//	Docs: docs/session.md
func (s *Store) Create(ctx context.Context, sess *Session, ttl time.Duration) ([]*Session, error) {
	if ttl < minSessionTTL {
		ttl = minSessionTTL
	}

	data, err := Encode(sess)
	if err != nil {
		return nil, err
	}

	result, err := createSessionLua.Run(
		ctx,
		s.redis,
		[]string{s.indexKey(sess.Domain, sess.UserID), s.key(sess.Domain, sess.SessionID)},
		sess.SessionID,
		data,
		ttl.Milliseconds(),
		s.maxPerUser,
		s.keyPrefix(sess.Domain),
	).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	parts, ok := result.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: invalid create script response", ErrRedisUnavailable)
	}

	evicted := make([]*Session, 0, len(parts)/2)
	for i := 0; i+1 < len(parts); i += 2 {
		id, blob := scriptString(parts[i]), scriptBytes(parts[i+1])
		if id == "" || blob == nil {
			continue
		}
		victim, decErr := Decode(blob)
		if decErr != nil {
			continue
		}
		victim.SessionID = id
		evicted = append(evicted, victim)
	}

	return evicted, nil
}

// Get fetches a single session without mutating any Redis state.
func (s *Store) Get(ctx context.Context, domain, sessionID string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(domain, sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return nil, err
	}
	sess.SessionID = sessionID
	if time.Now().Unix() >= sess.ExpiresAt {
		return nil, nil
	}
	return sess, nil
}

// Validate scans the user's sessions for one that is active, unexpired,
// and (when a token hash is supplied) token-matching. A hit is "touched":
// the record is rewritten with a full idle TTL, making the configured
// duration behave as an idle timeout. When absolute > 0 the rewritten TTL
// is additionally bounded by CreatedAt + absolute, turning the idle
// timeout into a window inside a hard session lifetime.
//
// Touch failures are swallowed: a session proven to exist stays valid even
// when the activity rewrite cannot land.
//
//	Docs: docs/session.md
func (s *Store) Validate(
	ctx context.Context,
	domain, userID string,
	tokenHash *[32]byte,
	idle time.Duration,
	absolute time.Duration,
) (bool, error) {
	ids, err := s.redis.LRange(ctx, s.indexKey(domain, userID), 0, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(ids) == 0 {
		return false, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, s.key(domain, id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	now := time.Now()
	for i, cmd := range cmds {
		data, cmdErr := cmd.Bytes()
		if cmdErr != nil {
			continue
		}

		sess, decErr := Decode(data)
		if decErr != nil {
			continue
		}
		sess.SessionID = ids[i]

		if !sess.Active || now.Unix() >= sess.ExpiresAt {
			continue
		}
		if tokenHash != nil && *tokenHash != sess.AccessHash && *tokenHash != sess.RefreshHash {
			continue
		}

		s.touch(ctx, sess, now, idle, absolute)
		return true, nil
	}

	return false, nil
}

func (s *Store) touch(ctx context.Context, sess *Session, now time.Time, idle, absolute time.Duration) {
	ttl := idle
	if absolute > 0 {
		remaining := time.Unix(sess.CreatedAt, 0).Add(absolute).Sub(now)
		if remaining <= 0 {
			return
		}
		if remaining < ttl {
			ttl = remaining
		}
	}
	if ttl < minSessionTTL {
		ttl = minSessionTTL
	}

	sess.LastActiveAt = now.Unix()
	sess.ExpiresAt = now.Add(ttl).Unix()

	data, err := Encode(sess)
	if err != nil {
		return
	}

	// Best effort: validation already succeeded against the stored record.
	_, _ = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(sess.Domain, sess.SessionID), data, ttl)
		pipe.PExpire(ctx, s.indexKey(sess.Domain, sess.UserID), ttl)
		return nil
	})
}

// Revoke deletes a session record and removes its ID from the user index.
// Returns the deleted session so the caller can blacklist its token
// references, or nil when the session was already gone (idempotent).
//
//	Performance: 1 GET + 1 MULTI/EXEC (DEL + LREM).
//	Docs: docs/session.md
func (s *Store) Revoke(ctx context.Context, domain, sessionID string) (*Session, error) {
	key := s.key(domain, sessionID)

	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return nil, err
	}
	sess.SessionID = sessionID

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.LRem(ctx, s.indexKey(sess.Domain, sess.UserID), 1, sessionID)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return sess, nil
}

// RevokeAll deletes every session currently in the user's index and the
// index itself ("sign out everywhere"). Returns the deleted sessions.
//
// A session created between the index read and the delete is not captured;
// it expires naturally or is caught by the next RevokeAll call.
func (s *Store) RevokeAll(ctx context.Context, domain, userID string) ([]*Session, error) {
	indexKey := s.indexKey(domain, userID)

	ids, err := s.redis.LRange(ctx, indexKey, 0, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	var revoked []*Session
	keys := make([]string, 0, len(ids))
	if len(ids) > 0 {
		pipe := s.redis.Pipeline()
		cmds := make([]*redis.StringCmd, len(ids))
		for i, id := range ids {
			keys = append(keys, s.key(domain, id))
			cmds[i] = pipe.Get(ctx, s.key(domain, id))
		}
		if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		for i, cmd := range cmds {
			data, cmdErr := cmd.Bytes()
			if cmdErr != nil {
				continue
			}
			sess, decErr := Decode(data)
			if decErr != nil {
				continue
			}
			sess.SessionID = ids[i]
			revoked = append(revoked, sess)
		}
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(keys) > 0 {
			pipe.Del(ctx, keys...)
		}
		pipe.Del(ctx, indexKey)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return revoked, nil
}

// ActiveSessionIDs returns the user's tracked session IDs, oldest first.
func (s *Store) ActiveSessionIDs(ctx context.Context, domain, userID string) ([]string, error) {
	ids, err := s.redis.LRange(ctx, s.indexKey(domain, userID), 0, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return ids, nil
}

// ActiveSessionCount returns the length of the user's session index.
func (s *Store) ActiveSessionCount(ctx context.Context, domain, userID string) (int, error) {
	count, err := s.redis.LLen(ctx, s.indexKey(domain, userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(count), nil
}

func scriptString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return ""
	}
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

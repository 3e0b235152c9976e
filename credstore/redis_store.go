package credstore

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/donmezahmet/ring-unlock/ring"
)

const defaultSessionKey = "ring-unlock:session"

var _ Store = (*RedisStore)(nil)

// RedisStore keeps the session under a single Redis key. Intended for
// deployments without a persistent disk, where a file store would lose the
// session on every restart. Redis SET is atomic, satisfying the overwrite
// contract without extra machinery.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore creates a Redis-backed store from a redis:// URL.
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, errors.Wrap(err, "[NewRedisStore] parse url")
	}
	return &RedisStore{
		client: redis.NewClient(opts),
		key:    defaultSessionKey,
	}, nil
}

// Load reads the persisted session. A missing key means absent.
func (rs *RedisStore) Load() (*ring.Session, error) {
	raw, err := rs.client.Get(context.Background(), rs.key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(ErrStorage, "[RedisStore.Load] %v", err)
	}

	var session ring.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, errors.Wrapf(ErrStorage, "[RedisStore.Load] corrupt session record: %v", err)
	}
	return &session, nil
}

// Save overwrites the slot with the given session. No TTL: the session's own
// expiry governs its usefulness, and a stale record must stay readable for
// diagnostics after a failed refresh.
func (rs *RedisStore) Save(session *ring.Session) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return errors.Wrapf(ErrStorage, "[RedisStore.Save] marshal: %v", err)
	}
	if err := rs.client.Set(context.Background(), rs.key, raw, 0).Err(); err != nil {
		return errors.Wrapf(ErrStorage, "[RedisStore.Save] %v", err)
	}
	return nil
}

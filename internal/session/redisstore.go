package session

import (
	"context"
	"errors"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	platformerrors "voxd-server/internal/platform/errors"
)

// RedisStore persists session history in Redis, one string value per
// session holding the marshaled Record. Intended for multi-instance
// deployments where several stateless server processes front the
// single process-global LLM backend and need a shared session store.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// RedisStoreConfig configures the Redis connection.
type RedisStoreConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// NewRedisStore connects to Redis and verifies reachability with a ping.
func NewRedisStore(cfg RedisStoreConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindFatal, "session.redis_store.open", "redis ping failed", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "voxd:session:"
	}
	return &RedisStore{client: client, prefix: prefix}, nil
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}

// Load fetches and unmarshals a session record. A missing key or a
// corrupt value both return (nil, nil), keeping Load best-effort.
func (s *RedisStore) Load(ctx context.Context, id string) (*Record, error) {
	raw, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, platformerrors.Wrap(platformerrors.KindTransient, "session.redis_store.load", "redis get failed", err)
	}

	var rec Record
	if err := sonic.Unmarshal(raw, &rec); err != nil {
		return nil, nil
	}
	return &rec, nil
}

// Save marshals and stores the session record with no expiry; sessions
// persist until explicitly evicted by an operator.
func (s *RedisStore) Save(ctx context.Context, rec *Record) error {
	data, err := sonic.Marshal(rec)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindPermanent, "session.redis_store.save", "failed to marshal session record", err)
	}
	if err := s.client.Set(ctx, s.key(rec.ID), data, 0).Err(); err != nil {
		return platformerrors.Wrap(platformerrors.KindTransient, "session.redis_store.save", "redis set failed", err)
	}
	return nil
}

// Close releases the underlying Redis connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

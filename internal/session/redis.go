package session

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBackend keeps each session under its own key namespace with a sliding TTL.
type RedisBackend struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisBackend(client *redis.Client, ttl time.Duration) *RedisBackend {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisBackend{client: client, ttl: ttl}
}

func (b *RedisBackend) Storage(sid string) Storage {
	return &redisStorage{backend: b, ns: sessionNamespace(sid)}
}

func sessionNamespace(sid string) string { return "session:" + sid + ":" }

func userSessionsKey(userID string) string { return "session:user:" + userID }

// Track adds sid to the user's session set. The set lives as long as the
// newest session in it.
func (b *RedisBackend) Track(ctx context.Context, userID, sid string) error {
	key := userSessionsKey(userID)

	_, err := b.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.SAdd(ctx, key, sid)
		p.Expire(ctx, key, b.ttl)
		return nil
	})
	return err
}

// EndAll deletes every tracked session of the user along with the set.
func (b *RedisBackend) EndAll(ctx context.Context, userID string) error {
	key := userSessionsKey(userID)

	sids, err := b.client.SMembers(ctx, key).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}

	keys := make([]string, 0, len(sids)*len(allKeys)+1)
	for _, sid := range sids {
		ns := sessionNamespace(sid)
		for _, k := range allKeys {
			keys = append(keys, ns+k)
		}
	}
	keys = append(keys, key)

	return b.client.Del(ctx, keys...).Err()
}

type redisStorage struct {
	backend *RedisBackend
	ns      string
}

func (s *redisStorage) Get(ctx context.Context, key string) (string, error) {
	v, err := s.backend.client.GetEx(ctx, s.ns+key, s.backend.ttl).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrMissing
		}
		return "", err
	}
	return v, nil
}

func (s *redisStorage) Set(ctx context.Context, key, value string) error {
	return s.backend.client.Set(ctx, s.ns+key, value, s.backend.ttl).Err()
}

func (s *redisStorage) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	full := make([]string, 0, len(keys))
	for _, k := range keys {
		full = append(full, s.ns+k)
	}
	return s.backend.client.Del(ctx, full...).Err()
}

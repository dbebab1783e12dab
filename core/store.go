package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient returns a configured go-redis client from URL (e.g., redis://localhost:6379/0).
func NewRedisClient(redisURL string) (*redis.Client, error) {
	if redisURL == "" {
		return nil, errors.New("empty redis url")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return client, nil
}

// Store is the typed wrapper over the shared ephemeral key/value store. It
// carries captcha codes, one-time mail codes, rate-limit markers, and lock
// ownership. Transport errors are wrapped in ErrStoreUnavailable and always
// surfaced to the caller.
type Store struct {
	client *redis.Client
}

// NewStore wraps a redis.Client.
func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

// compareAndDeleteScript deletes the key only when its current value matches
// the expected one. Must run server-side as a single atomic step so a lock
// holder cannot delete a lock re-acquired by someone else after TTL expiry.
var compareAndDeleteScript = redis.NewScript(`
if redis.call('get', KEYS[1]) == ARGV[1] then
  return redis.call('del', KEYS[1])
else
  return 0
end
`)

// Get returns the string value for key, reporting absence separately from
// transport failure.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrapStoreErr(err)
	}
	return v, true, nil
}

// Has reports whether key exists.
func (s *Store) Has(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, wrapStoreErr(err)
	}
	return n > 0, nil
}

// SetWithTTL stores value under key with an expiry. A second write under the
// same key overwrites and re-arms the TTL.
func (s *Store) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return wrapStoreErr(err)
	}
	return nil
}

// SetIfAbsent atomically stores value under key with an expiry only when the
// key does not exist. Reports whether the write happened.
func (s *Store) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, wrapStoreErr(err)
	}
	return ok, nil
}

// Delete removes key. Deleting an absent key is a no-op.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return wrapStoreErr(err)
	}
	return nil
}

// CompareAndDelete removes key only if its value equals expected, atomically.
// Reports whether the key was deleted.
func (s *Store) CompareAndDelete(ctx context.Context, key, expected string) (bool, error) {
	res, err := compareAndDeleteScript.Run(ctx, s.client, []string{key}, expected).Int64()
	if err != nil {
		return false, wrapStoreErr(err)
	}
	return res == 1, nil
}

// Decrement decreases the integer value at key by one and returns the result.
func (s *Store) Decrement(ctx context.Context, key string) (int64, error) {
	n, err := s.client.Decr(ctx, key).Result()
	if err != nil {
		return 0, wrapStoreErr(err)
	}
	return n, nil
}

func wrapStoreErr(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

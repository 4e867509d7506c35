// Package redisstore holds the short-lived coordination keys: dedup claims
// and per-conversation locks.
package redisstore

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrLockTimeout = errors.New("redisstore: lock wait timed out")

type Store struct {
	client *redis.Client
	// lockPoll is the retry interval while waiting for a held lock.
	lockPoll time.Duration
}

func New(addr, password string, db int) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &Store{client: client, lockPoll: 50 * time.Millisecond}, nil
}

func (s *Store) Close() error { return s.client.Close() }

// Claim sets key if absent. It reports false when someone else holds it.
func (s *Store) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, key, time.Now().Unix(), ttl).Result()
}

func (s *Store) Release(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lock acquires key with SET NX PX, waiting at most wait. The returned
// unlock only deletes the key while it still holds this caller's token.
func (s *Store) Lock(ctx context.Context, key string, ttl, wait time.Duration) (func(), error) {
	token, err := randomToken()
	if err != nil {
		return nil, err
	}
	deadline := time.Now().Add(wait)
	for {
		ok, err := s.client.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return func() {
				// the caller's ctx may already be done
				uctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_ = unlockScript.Run(uctx, s.client, []string{key}, token).Err()
			}, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrLockTimeout
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.lockPoll):
		}
	}
}

func randomToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

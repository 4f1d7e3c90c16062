package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisCommands is the slice of the go-redis client the store uses.
type redisCommands interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisRevocationStore shares revocations between instances. Entries carry a
// TTL so Redis expires them along with the tokens.
type RedisRevocationStore struct {
	client redisCommands
	prefix string
	now    func() time.Time
}

func NewRedisRevocationStore(client redisCommands, prefix string) *RedisRevocationStore {
	if prefix == "" {
		prefix = "bp:revoked"
	}
	return &RedisRevocationStore{client: client, prefix: prefix, now: time.Now}
}

func (s *RedisRevocationStore) jtiKey(jti string) string {
	return s.prefix + ":jti:" + jti
}

func (s *RedisRevocationStore) userKey(userID string) string {
	return s.prefix + ":user:" + userID
}

func (s *RedisRevocationStore) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, s.jtiKey(jti), 1, ttl).Err(); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (s *RedisRevocationStore) RevokeUser(ctx context.Context, userID string, issuedBefore time.Time, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.userKey(userID), issuedBefore.Unix(), ttl).Err(); err != nil {
		return fmt.Errorf("revoke user tokens: %w", err)
	}
	return nil
}

func (s *RedisRevocationStore) IsRevoked(ctx context.Context, jti, userID string, issuedAt time.Time) (bool, error) {
	if jti != "" {
		n, err := s.client.Exists(ctx, s.jtiKey(jti)).Result()
		if err != nil {
			return false, fmt.Errorf("check token revocation: %w", err)
		}
		if n > 0 {
			return true, nil
		}
	}
	if userID == "" {
		return false, nil
	}

	val, err := s.client.Get(ctx, s.userKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check user revocation: %w", err)
	}
	before, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return false, fmt.Errorf("parse user revocation: %w", err)
	}
	return issuedAt.Unix() <= before, nil
}

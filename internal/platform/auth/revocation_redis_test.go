package auth

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type fakeRedis struct {
	values map[string]string
	ttls   map[string]time.Duration
	err    error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: make(map[string]string), ttls: make(map[string]time.Duration)}
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	if f.err != nil {
		return redis.NewStatusResult("", f.err)
	}
	switch v := value.(type) {
	case int:
		f.values[key] = strconv.Itoa(v)
	case int64:
		f.values[key] = strconv.FormatInt(v, 10)
	default:
		f.values[key] = ""
	}
	f.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	v, ok := f.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Exists(_ context.Context, keys ...string) *redis.IntCmd {
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	var n int64
	for _, k := range keys {
		if _, ok := f.values[k]; ok {
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func TestRedisRevocation_Revoke(t *testing.T) {
	fake := newFakeRedis()
	store := NewRedisRevocationStore(fake, "")
	ctx := context.Background()

	if err := store.Revoke(ctx, "jti-1", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, ok := fake.values["bp:revoked:jti:jti-1"]; !ok {
		t.Fatalf("expected key bp:revoked:jti:jti-1, got %v", fake.values)
	}
	if ttl := fake.ttls["bp:revoked:jti:jti-1"]; ttl <= 0 || ttl > time.Hour {
		t.Errorf("unexpected ttl %v", ttl)
	}

	revoked, err := store.IsRevoked(ctx, "jti-1", "user-1", time.Now())
	if err != nil || !revoked {
		t.Errorf("expected revoked, got %v %v", revoked, err)
	}
	revoked, err = store.IsRevoked(ctx, "jti-2", "user-1", time.Now())
	if err != nil || revoked {
		t.Errorf("expected not revoked, got %v %v", revoked, err)
	}
}

func TestRedisRevocation_ExpiredTokenIsNotStored(t *testing.T) {
	fake := newFakeRedis()
	store := NewRedisRevocationStore(fake, "test")

	if err := store.Revoke(context.Background(), "old", time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if len(fake.values) != 0 {
		t.Errorf("expected nothing stored, got %v", fake.values)
	}
}

func TestRedisRevocation_RevokeUser(t *testing.T) {
	fake := newFakeRedis()
	store := NewRedisRevocationStore(fake, "test")
	ctx := context.Background()

	cutoff := time.Unix(1_700_000_000, 0)
	if err := store.RevokeUser(ctx, "user-42", cutoff, 24*time.Hour); err != nil {
		t.Fatalf("revoke user: %v", err)
	}
	if fake.values["test:user:user-42"] != "1700000000" {
		t.Errorf("unexpected stored value %q", fake.values["test:user:user-42"])
	}

	if revoked, _ := store.IsRevoked(ctx, "a", "user-42", cutoff.Add(-time.Hour)); !revoked {
		t.Error("expected token issued before cutoff to be revoked")
	}
	if revoked, _ := store.IsRevoked(ctx, "b", "user-42", cutoff.Add(time.Hour)); revoked {
		t.Error("expected token issued after cutoff to be accepted")
	}
}

func TestRedisRevocation_Errors(t *testing.T) {
	fake := newFakeRedis()
	fake.err = errors.New("connection refused")
	store := NewRedisRevocationStore(fake, "test")
	ctx := context.Background()

	if err := store.Revoke(ctx, "jti", time.Now().Add(time.Hour)); err == nil {
		t.Error("expected revoke error")
	}
	if _, err := store.IsRevoked(ctx, "jti", "user", time.Now()); err == nil {
		t.Error("expected check error")
	}
}

package auth

import (
	"context"
	"sync"
	"time"
)

// RevocationStore records tokens that must no longer be accepted before
// their natural expiry.
type RevocationStore interface {
	// Revoke rejects a single token until expiresAt.
	Revoke(ctx context.Context, jti string, expiresAt time.Time) error
	// RevokeUser rejects every token of userID issued before the given time.
	// The marker is kept for ttl, which should cover the longest token life.
	RevokeUser(ctx context.Context, userID string, issuedBefore time.Time, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti, userID string, issuedAt time.Time) (bool, error)
}

type userRevocation struct {
	issuedBefore time.Time
	expiresAt    time.Time
}

// MemoryRevocationStore keeps revocations in process. It suits a single
// instance; use RedisRevocationStore when running several.
type MemoryRevocationStore struct {
	mu    sync.RWMutex
	jtis  map[string]time.Time // jti -> token expiry
	users map[string]userRevocation
	now   func() time.Time
	done  chan struct{}
	once  sync.Once
}

// NewMemoryRevocationStore starts a background goroutine that drops expired
// entries every interval. Call Close to stop it.
func NewMemoryRevocationStore(interval time.Duration) *MemoryRevocationStore {
	s := &MemoryRevocationStore{
		jtis:  make(map[string]time.Time),
		users: make(map[string]userRevocation),
		now:   time.Now,
		done:  make(chan struct{}),
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	go s.cleanupLoop(interval)
	return s
}

func (s *MemoryRevocationStore) Revoke(_ context.Context, jti string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jtis[jti] = expiresAt
	return nil
}

func (s *MemoryRevocationStore) RevokeUser(_ context.Context, userID string, issuedBefore time.Time, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[userID] = userRevocation{issuedBefore: issuedBefore, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *MemoryRevocationStore) IsRevoked(_ context.Context, jti, userID string, issuedAt time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.jtis[jti]; ok && jti != "" {
		return true, nil
	}
	if u, ok := s.users[userID]; ok && !issuedAt.After(u.issuedBefore) {
		return true, nil
	}
	return false, nil
}

// Count returns the number of individually revoked tokens.
func (s *MemoryRevocationStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jtis)
}

// Close stops the cleanup goroutine. Safe to call more than once.
func (s *MemoryRevocationStore) Close() {
	s.once.Do(func() { close(s.done) })
}

func (s *MemoryRevocationStore) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

// cleanup drops entries for tokens that have expired anyway.
func (s *MemoryRevocationStore) cleanup() {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for jti, exp := range s.jtis {
		if now.After(exp) {
			delete(s.jtis, jti)
		}
	}
	for id, u := range s.users {
		if now.After(u.expiresAt) {
			delete(s.users, id)
		}
	}
}

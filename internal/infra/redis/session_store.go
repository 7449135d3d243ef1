package redis

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"quiz-arena-service/internal/app"
	"quiz-arena-service/internal/domain"
)

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Notes:
//   - Sessions live in a local map; each one is an in-process actor.
//   - Redis reserves room codes with SETNX so two instances sharing a Redis
//     never hand out the same code.
//   - Reservations carry a TTL and are refreshed by KeepAlive while the
//     session is live.
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		sessions: make(map[string]*app.Session),
	}
}

func (s *SessionStore) Create(ctx context.Context, code string, newSession func() *app.Session) (*app.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[code]; ok {
		return nil, domain.ErrRoomCodeTaken
	}

	reserved, err := s.client.SetNX(ctx, s.key(code), "1", s.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("reserve room code: %w", err)
	}
	if !reserved {
		return nil, domain.ErrRoomCodeTaken
	}

	session := newSession()
	s.sessions[code] = session
	return session, nil
}

func (s *SessionStore) Get(code string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[code]
	return session, ok
}

func (s *SessionStore) Delete(ctx context.Context, code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[code]; !ok {
		return
	}
	delete(s.sessions, code)
	if err := s.client.Del(ctx, s.key(code)).Err(); err != nil {
		log.Printf("[session-store] release %s: %v", code, err)
	}
}

func (s *SessionStore) List() []*app.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*app.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session)
	}
	return out
}

// KeepAlive extends the reservation of every local room code.
func (s *SessionStore) KeepAlive(ctx context.Context) error {
	if s.ttl <= 0 {
		return nil
	}
	s.mu.RLock()
	codes := make([]string, 0, len(s.sessions))
	for code := range s.sessions {
		codes = append(codes, code)
	}
	s.mu.RUnlock()
	if len(codes) == 0 {
		return nil
	}

	pipe := s.client.Pipeline()
	for _, code := range codes {
		pipe.Expire(ctx, s.key(code), s.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *SessionStore) key(code string) string {
	return "quiz:room:" + code
}

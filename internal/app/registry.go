package app

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"math/big"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"quiz-arena-service/internal/domain"
)

const (
	roomCodeLength   = 6
	roomCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	roomCodeAttempts = 16

	// DefaultRetention keeps completed sessions readable for late reconnects.
	DefaultRetention = 30 * time.Minute
	// DefaultIdleTimeout retires lobbies and games nobody acts on.
	DefaultIdleTimeout = 2 * time.Hour
)

// SessionRepository abstracts where live sessions are indexed (in-memory, Redis, etc).
type SessionRepository interface {
	// Create reserves code and stores the session built by newSession.
	// It returns domain.ErrRoomCodeTaken when code is already live.
	Create(ctx context.Context, code string, newSession func() *Session) (*Session, error)
	Get(code string) (*Session, bool)
	Delete(ctx context.Context, code string)
	List() []*Session
}

// GenerateRoomCode returns a random 6-character code from [A-Z0-9].
func GenerateRoomCode() (string, error) {
	buf := make([]byte, roomCodeLength)
	max := big.NewInt(int64(len(roomCodeAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("room code: %w", err)
		}
		buf[i] = roomCodeAlphabet[n.Int64()]
	}
	return string(buf), nil
}

// Registry maps room codes to live sessions and retires completed ones.
type Registry struct {
	store     SessionRepository
	clock     clockwork.Clock
	retention time.Duration
	idle      time.Duration
	newCode   func() (string, error)

	mu        sync.Mutex
	completed map[string]time.Time
}

func NewRegistry(store SessionRepository, clock clockwork.Clock, retention time.Duration) *Registry {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Registry{
		store:     store,
		clock:     clock,
		retention: retention,
		idle:      DefaultIdleTimeout,
		newCode:   GenerateRoomCode,
		completed: make(map[string]time.Time),
	}
}

// WithCodeGenerator swaps the room code source; used by tests to pin codes.
func (r *Registry) WithCodeGenerator(gen func() (string, error)) *Registry {
	r.newCode = gen
	return r
}

// WithIdleTimeout sets how long an unfinished session may go without client
// activity before Sweep retires it. Non-positive values keep the default.
func (r *Registry) WithIdleTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.idle = d
	}
	return r
}

// Create picks a free room code and registers the session built for it.
func (r *Registry) Create(ctx context.Context, build func(code string) *Session) (*Session, error) {
	for attempt := 0; attempt < roomCodeAttempts; attempt++ {
		code, err := r.newCode()
		if err != nil {
			return nil, err
		}
		session, err := r.store.Create(ctx, code, func() *Session { return build(code) })
		if errors.Is(err, domain.ErrRoomCodeTaken) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return session, nil
	}
	return nil, domain.ErrRoomCodeTaken
}

// Lookup finds the live session for a room code.
func (r *Registry) Lookup(code string) (*Session, error) {
	session, ok := r.store.Get(code)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

// MarkCompleted starts the retention countdown of a finished session.
func (r *Registry) MarkCompleted(code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.completed[code]; !ok {
		r.completed[code] = r.clock.Now()
	}
}

// Retire stops a session and forgets its room code.
func (r *Registry) Retire(ctx context.Context, code string) error {
	session, ok := r.store.Get(code)
	if !ok {
		return domain.ErrSessionNotFound
	}
	r.store.Delete(ctx, code)
	session.Close()

	r.mu.Lock()
	delete(r.completed, code)
	r.mu.Unlock()
	log.Printf("[registry] retired session %s (%s)", code, session.ID())
	return nil
}

// Sweep retires completed sessions older than the retention window and
// unfinished sessions idle past the idle timeout. It returns how many were
// removed.
func (r *Registry) Sweep(ctx context.Context) int {
	now := r.clock.Now()
	cutoff := now.Add(-r.retention)
	idleCutoff := now.Add(-r.idle)

	r.mu.Lock()
	expired := make([]string, 0)
	for code, at := range r.completed {
		if !at.After(cutoff) {
			expired = append(expired, code)
		}
	}
	completed := make(map[string]struct{}, len(r.completed))
	for code := range r.completed {
		completed[code] = struct{}{}
	}
	r.mu.Unlock()

	for _, session := range r.store.List() {
		code := session.RoomCode()
		if _, done := completed[code]; done {
			continue
		}
		if !session.LastActivity().After(idleCutoff) {
			log.Printf("[registry] session %s idle since %s", code, session.LastActivity().Format(time.RFC3339))
			expired = append(expired, code)
		}
	}

	retired := 0
	for _, code := range expired {
		if err := r.Retire(ctx, code); err == nil {
			retired++
		} else {
			r.mu.Lock()
			delete(r.completed, code)
			r.mu.Unlock()
		}
	}
	return retired
}

// Live returns the number of indexed sessions.
func (r *Registry) Live() int {
	return len(r.store.List())
}

// Shutdown closes every session, used when the process stops.
func (r *Registry) Shutdown(ctx context.Context) {
	for _, session := range r.store.List() {
		r.store.Delete(ctx, session.RoomCode())
		session.Close()
	}
}

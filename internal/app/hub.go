package app

import (
	"context"
	"sync"

	"quiz-arena-service/internal/domain"
)

// DefaultSubscriberBuffer bounds how far a subscriber may fall behind before
// its backlog is replaced by a fresh snapshot.
const DefaultSubscriberBuffer = 256

// Hub fans one session's committed events out to its subscribers. Publish
// never blocks on a subscriber: each one owns a queue that its connection
// drains at its own pace.
type Hub struct {
	mu       sync.Mutex
	subs     map[*Subscription]struct{}
	closed   bool
	buffer   int
	snapshot func() domain.Snapshot
}

func newHub(buffer int, snapshot func() domain.Snapshot) *Hub {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	return &Hub{
		subs:     make(map[*Subscription]struct{}),
		buffer:   buffer,
		snapshot: snapshot,
	}
}

// Subscribe registers a subscriber whose first message is a state snapshot.
// The snapshot is taken under the publish lock, so every event committed
// after it is delivered and none folded into it is repeated.
func (h *Hub) Subscribe(role domain.Role, teamID string) *Subscription {
	sub := &Subscription{
		hub:    h,
		role:   role,
		teamID: teamID,
		notify: make(chan struct{}, 1),
	}

	h.mu.Lock()
	snap := h.snapshot()
	sub.lastSeq = snap.Version
	sub.queue = []domain.Envelope{snapshotEnvelope(snap, role)}
	if h.closed {
		sub.closed = true
	} else {
		h.subs[sub] = struct{}{}
	}
	h.mu.Unlock()

	sub.signal()
	return sub
}

// Publish appends events, in commit order, to every subscriber.
func (h *Hub) Publish(events []domain.Event) {
	if len(events) == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for sub := range h.subs {
		sub.push(events, h.buffer)
	}
}

// Close ends every subscription once its queued events have been read.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subs {
		sub.close()
		delete(h.subs, sub)
	}
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) unsubscribe(sub *Subscription) {
	h.mu.Lock()
	delete(h.subs, sub)
	h.mu.Unlock()
	sub.close()
}

func snapshotEnvelope(snap domain.Snapshot, role domain.Role) domain.Envelope {
	return domain.Envelope{
		Type:    domain.EventStateSnapshot,
		Seq:     snap.Version,
		Payload: snap.ForRole(role),
	}
}

// Subscription is one connection's ordered view of a session.
type Subscription struct {
	hub    *Hub
	role   domain.Role
	teamID string
	notify chan struct{}

	mu      sync.Mutex
	queue   []domain.Envelope
	lastSeq uint64
	resync  bool
	closed  bool
}

// Role reports who the subscription was opened for.
func (s *Subscription) Role() domain.Role { return s.role }

// TeamID is empty for the facilitator.
func (s *Subscription) TeamID() string { return s.teamID }

// Next blocks until messages are available and returns all of them in order.
// It returns domain.ErrSubscriptionClosed once the hub closed and the backlog
// is drained.
func (s *Subscription) Next(ctx context.Context) ([]domain.Envelope, error) {
	for {
		s.mu.Lock()
		if s.resync {
			s.resyncLocked()
		}
		if len(s.queue) > 0 {
			out := s.queue
			s.queue = nil
			s.mu.Unlock()
			return out, nil
		}
		if s.closed {
			s.mu.Unlock()
			return nil, domain.ErrSubscriptionClosed
		}
		s.mu.Unlock()

		select {
		case <-s.notify:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Close detaches the subscription; the session keeps running.
func (s *Subscription) Close() {
	s.hub.unsubscribe(s)
}

func (s *Subscription) push(events []domain.Event, limit int) {
	s.mu.Lock()
	for _, ev := range events {
		if ev.Seq <= s.lastSeq || !ev.VisibleTo(s.role) {
			continue
		}
		s.queue = append(s.queue, ev.Envelope(s.role))
		s.lastSeq = ev.Seq
	}
	if len(s.queue) > limit {
		s.queue = nil
		s.resync = true
	}
	s.mu.Unlock()
	s.signal()
}

// resyncLocked replaces a dropped backlog with the current snapshot followed
// by any queued event newer than it.
func (s *Subscription) resyncLocked() {
	s.resync = false
	snap := s.hub.snapshot()
	kept := make([]domain.Envelope, 0, len(s.queue)+1)
	kept = append(kept, snapshotEnvelope(snap, s.role))
	for _, env := range s.queue {
		if env.Seq > snap.Version {
			kept = append(kept, env)
		}
	}
	s.queue = kept
	if snap.Version > s.lastSeq {
		s.lastSeq = snap.Version
	}
}

func (s *Subscription) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.signal()
}

func (s *Subscription) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

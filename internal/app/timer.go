package app

import (
	"time"

	"github.com/jonboulle/clockwork"
	"quiz-arena-service/internal/domain"
)

// turnTimer is the single countdown of a session; dice and answer windows are
// mutually exclusive so one slot is enough. It is owned by the session's
// writer loop and never touched from elsewhere.
type turnTimer struct {
	clock    clockwork.Clock
	kind     domain.TimerKind
	gen      uint64
	deadline time.Time
	timer    clockwork.Timer
}

func newTurnTimer(clock clockwork.Clock) *turnTimer {
	return &turnTimer{clock: clock}
}

// start replaces any running countdown. fire runs on the clock's goroutine
// and must only enqueue work for the writer loop.
func (t *turnTimer) start(kind domain.TimerKind, d time.Duration, fire func(kind domain.TimerKind, gen uint64)) {
	t.stop()
	t.gen++
	gen := t.gen
	t.kind = kind
	t.deadline = t.clock.Now().Add(d)
	t.timer = t.clock.AfterFunc(d, func() { fire(kind, gen) })
}

func (t *turnTimer) stop() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.kind = domain.TimerNone
	t.deadline = time.Time{}
}

// current reports whether an expiry for (kind, gen) still belongs to the
// running countdown. A stale expiry raced a cancellation and is ignored.
func (t *turnTimer) current(kind domain.TimerKind, gen uint64) bool {
	return t.kind == kind && t.gen == gen && t.timer != nil
}

// expired clears the slot after the writer accepted an expiry.
func (t *turnTimer) expired() {
	t.timer = nil
	t.kind = domain.TimerNone
	t.deadline = time.Time{}
}

func (t *turnTimer) running() (domain.TimerKind, *time.Time) {
	if t.kind == domain.TimerNone {
		return domain.TimerNone, nil
	}
	deadline := t.deadline
	return t.kind, &deadline
}

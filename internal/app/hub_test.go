package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"quiz-arena-service/internal/app"
	"quiz-arena-service/internal/domain"
)

func TestReconnectSnapshotPlusDeltas(t *testing.T) {
	h := newHarness(t, quizOf(written("m1", domain.Medium), written("m2", domain.Medium), written("m3", domain.Medium), written("m4", domain.Medium)), 2, 2, app.SessionConfig{}, 2)
	teams := h.join("Red", "Blue")
	h.start()
	h.roll(teams[0])
	q := h.serve()
	answerID := h.submit(teams[0], q.ID, "guess")

	// A client reconnects mid-turn.
	late := newFeed(t, h.session.Subscribe(domain.RoleFacilitator, ""))
	first, err := late.next(time.Second)
	if err != nil {
		t.Fatalf("late subscriber: %v", err)
	}
	if first.Type != domain.EventStateSnapshot {
		t.Fatalf("expected snapshot first, got %s", first.Type)
	}
	snap := first.Payload.(domain.Snapshot)
	if first.Seq != snap.Version || snap.Phase != domain.PhaseGrading || snap.PendingAnswer == nil || snap.PendingAnswer.ID != answerID {
		t.Fatalf("snapshot does not reflect the pending answer: %+v", snap)
	}

	if _, err := h.session.GradeAnswer(ctxT(t), facilitator, answerID, true, 0); err != nil {
		t.Fatalf("grade: %v", err)
	}
	h.roll(teams[1])

	lateDeltas := late.drain()
	h.feed.drain()
	var tail []domain.Envelope
	for _, env := range h.feed.seen {
		if env.Type != domain.EventStateSnapshot && env.Seq > snap.Version {
			tail = append(tail, env)
		}
	}

	if len(lateDeltas) == 0 || len(lateDeltas) != len(tail) {
		t.Fatalf("expected %d deltas after reconnect, got %d", len(tail), len(lateDeltas))
	}
	expected := snap.Version + 1
	for i, env := range lateDeltas {
		if env.Seq != expected {
			t.Fatalf("delta %d: expected seq %d, got %d", i, expected, env.Seq)
		}
		if env.Type != tail[i].Type || env.Seq != tail[i].Seq {
			t.Fatalf("delta %d differs from the always-connected stream: %s/%d vs %s/%d", i, env.Type, env.Seq, tail[i].Type, tail[i].Seq)
		}
		expected++
	}

	final := h.state()
	if last := lateDeltas[len(lateDeltas)-1]; last.Seq != final.Version {
		t.Fatalf("deltas end at %d but state is at %d", last.Seq, final.Version)
	}
	if final.Teams[0].Score != 2 || final.Dice == nil || final.Dice.TeamID != teams[1].ID {
		t.Fatalf("unexpected final state %+v", final)
	}
}

func TestSlowSubscriberIsResynced(t *testing.T) {
	h := newHarness(t, quizOf(easyPool(3)...), 3, 1, app.SessionConfig{SubscriberBuffer: 2})
	slow := h.session.Subscribe(domain.RolePlayer, "")
	defer slow.Close()

	h.join("Red", "Blue", "Green")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	batch, err := slow.Next(ctx)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if len(batch) != 1 || batch[0].Type != domain.EventStateSnapshot {
		t.Fatalf("expected a single fresh snapshot, got %+v", batch)
	}
	snap := batch[0].Payload.(domain.Snapshot)
	if snap.Version != 3 || len(snap.Teams) != 3 {
		t.Fatalf("expected snapshot with all three teams at version 3, got %+v", snap)
	}

	h.start()
	batch, err = slow.Next(ctx)
	if err != nil {
		t.Fatalf("next after resync: %v", err)
	}
	if batch[0].Type != domain.EventGameStarted || batch[0].Seq != 4 {
		t.Fatalf("expected game_started at seq 4 after resync, got %s/%d", batch[0].Type, batch[0].Seq)
	}
}

func TestSubscriptionClose(t *testing.T) {
	h := newHarness(t, quizOf(easyPool(2)...), 2, 1, app.SessionConfig{})
	if got := h.session.Subscribers(); got != 1 {
		t.Fatalf("expected harness subscriber only, got %d", got)
	}
	sub := h.session.Subscribe(domain.RolePlayer, "")
	if got := h.session.Subscribers(); got != 2 {
		t.Fatalf("expected 2 subscribers, got %d", got)
	}
	sub.Close()
	if got := h.session.Subscribers(); got != 1 {
		t.Fatalf("expected subscriber removed, got %d", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	// The initial snapshot is still readable, then the stream reports closure.
	if _, err := sub.Next(ctx); err != nil {
		t.Fatalf("expected queued snapshot, got %v", err)
	}
	if _, err := sub.Next(ctx); !errors.Is(err, domain.ErrSubscriptionClosed) {
		t.Fatalf("expected closed subscription, got %v", err)
	}
}

func TestSessionCloseStopsActions(t *testing.T) {
	h := newHarness(t, quizOf(easyPool(2)...), 2, 1, app.SessionConfig{})
	h.session.Close()

	select {
	case <-h.session.Done():
	case <-time.After(time.Second):
		t.Fatalf("session loop did not stop")
	}
	if _, err := h.session.Join(ctxT(t), "Red"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected closed session to reject actions, got %v", err)
	}
	h.feed.drain()
	if _, err := h.feed.next(100 * time.Millisecond); !errors.Is(err, domain.ErrSubscriptionClosed) {
		t.Fatalf("expected subscriptions closed, got %v", err)
	}
}

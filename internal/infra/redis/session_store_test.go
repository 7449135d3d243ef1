package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"quiz-arena-service/internal/app"
	"quiz-arena-service/internal/domain"
)

func TestSessionStoreSetsAndClearsKeys(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	store := NewSessionStore(newClient(mr), time.Minute)

	session, err := store.Create(ctx, "ABC123", func() *app.Session { return newTestSession("ABC123") })
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer session.Close()
	if !mr.Exists("quiz:room:ABC123") {
		t.Fatalf("expected redis key to be set")
	}

	store.Delete(ctx, "ABC123")
	if mr.Exists("quiz:room:ABC123") {
		t.Fatalf("expected redis key to be removed")
	}
	if _, ok := store.Get("ABC123"); ok {
		t.Fatalf("expected session removed locally")
	}
}

func TestSessionStoreRespectsOtherInstanceReservation(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	// Another instance already owns the code.
	if err := mr.Set("quiz:room:ABC123", "1"); err != nil {
		t.Fatalf("seed key: %v", err)
	}

	store := NewSessionStore(newClient(mr), time.Minute)
	_, err = store.Create(context.Background(), "ABC123", func() *app.Session {
		t.Fatalf("session must not be built for a reserved code")
		return nil
	})
	if !errors.Is(err, domain.ErrRoomCodeTaken) {
		t.Fatalf("expected room code taken, got %v", err)
	}
}

func TestSessionStoreKeepAliveRefreshesTTL(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	store := NewSessionStore(newClient(mr), time.Minute)
	session, err := store.Create(ctx, "ABC123", func() *app.Session { return newTestSession("ABC123") })
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer session.Close()

	mr.FastForward(50 * time.Second)
	if err := store.KeepAlive(ctx); err != nil {
		t.Fatalf("keep alive: %v", err)
	}
	mr.FastForward(50 * time.Second)
	if !mr.Exists("quiz:room:ABC123") {
		t.Fatalf("expected reservation to survive after keep alive")
	}
}

func newTestSession(code string) *app.Session {
	return app.NewSession(app.SessionParams{
		ID:        "session-" + code,
		RoomCode:  code,
		Quiz:      sampleQuiz(),
		NumTeams:  1,
		NumRounds: 2,
	}, app.SessionConfig{})
}

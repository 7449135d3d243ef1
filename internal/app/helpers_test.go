package app_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"quiz-arena-service/internal/app"
	"quiz-arena-service/internal/domain"
)

const facilitatorToken = "facilitator-secret"

var facilitator = domain.Facilitator()

type harness struct {
	t       *testing.T
	session *app.Session
	clock   *clockwork.FakeClock
	feed    *feed
}

// newHarness starts a session with a fake clock, scripted dice and pool order
// kept as authored. The harness holds a facilitator subscription from launch.
func newHarness(t *testing.T, quiz domain.Quiz, numTeams, numRounds int, cfg app.SessionConfig, dice ...int) *harness {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 11, 22, 18, 0, 0, 0, time.UTC))
	cfg.Clock = clock
	cfg.Dice = diceSeq(dice...)
	cfg.Shuffle = func(int, func(i, j int)) {}

	session := app.NewSession(app.SessionParams{
		ID:               "session-1",
		RoomCode:         "ABC123",
		Quiz:             quiz,
		NumTeams:         numTeams,
		NumRounds:        numRounds,
		FacilitatorToken: facilitatorToken,
	}, cfg)
	t.Cleanup(session.Close)

	h := &harness{t: t, session: session, clock: clock}
	h.feed = newFeed(t, session.Subscribe(domain.RoleFacilitator, ""))
	return h
}

func diceSeq(values ...int) func() int {
	if len(values) == 0 {
		values = []int{1}
	}
	i := 0
	return func() int {
		v := values[i%len(values)]
		i++
		return v
	}
}

func ctxT(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func (h *harness) join(names ...string) []domain.Team {
	h.t.Helper()
	teams := make([]domain.Team, 0, len(names))
	for _, name := range names {
		team, err := h.session.Join(ctxT(h.t), name)
		if err != nil {
			h.t.Fatalf("join %s: %v", name, err)
		}
		teams = append(teams, team)
	}
	return teams
}

func (h *harness) start() {
	h.t.Helper()
	if err := h.session.Start(ctxT(h.t), facilitator); err != nil {
		h.t.Fatalf("start: %v", err)
	}
}

func (h *harness) roll(team domain.Team) app.RollResult {
	h.t.Helper()
	res, err := h.session.RollDice(ctxT(h.t), domain.Player(team.ID))
	if err != nil {
		h.t.Fatalf("roll for %s: %v", team.Name, err)
	}
	return res
}

func (h *harness) serve() domain.Question {
	h.t.Helper()
	q, err := h.session.ServeQuestion(ctxT(h.t), facilitator)
	if err != nil {
		h.t.Fatalf("serve: %v", err)
	}
	return q
}

func (h *harness) submit(team domain.Team, questionID, value string) string {
	h.t.Helper()
	id, err := h.session.SubmitAnswer(ctxT(h.t), domain.Player(team.ID), questionID, value)
	if err != nil {
		h.t.Fatalf("submit for %s: %v", team.Name, err)
	}
	return id
}

func (h *harness) state() domain.Snapshot {
	return h.session.Snapshot(domain.RoleFacilitator)
}

// feed buffers a subscription so tests can wait for specific events.
type feed struct {
	t       *testing.T
	sub     *app.Subscription
	pending []domain.Envelope
	seen    []domain.Envelope
}

func newFeed(t *testing.T, sub *app.Subscription) *feed {
	t.Cleanup(sub.Close)
	return &feed{t: t, sub: sub}
}

func (f *feed) next(timeout time.Duration) (domain.Envelope, error) {
	if len(f.pending) == 0 {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		batch, err := f.sub.Next(ctx)
		if err != nil {
			return domain.Envelope{}, err
		}
		f.pending = batch
	}
	env := f.pending[0]
	f.pending = f.pending[1:]
	f.seen = append(f.seen, env)
	return env, nil
}

// waitFor returns the next envelope of type typ, skipping others.
func (f *feed) waitFor(typ domain.EventType) domain.Envelope {
	f.t.Helper()
	for {
		env, err := f.next(2 * time.Second)
		if err != nil {
			f.t.Fatalf("waiting for %s: %v", typ, err)
		}
		if env.Type == typ {
			return env
		}
	}
}

// drain returns everything already delivered without waiting for more.
func (f *feed) drain() []domain.Envelope {
	var out []domain.Envelope
	for {
		env, err := f.next(50 * time.Millisecond)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, domain.ErrSubscriptionClosed) {
				return out
			}
			f.t.Fatalf("drain: %v", err)
		}
		out = append(out, env)
	}
}

func countType(envs []domain.Envelope, typ domain.EventType) int {
	n := 0
	for _, env := range envs {
		if env.Type == typ {
			n++
		}
	}
	return n
}

func mcq(id string, d domain.Difficulty, correct string) domain.Question {
	return domain.Question{
		ID:         id,
		Prompt:     "Question " + id,
		Type:       domain.MCQ,
		Difficulty: d,
		TimeLimit:  30,
		Options: []domain.Option{
			{Key: "A", Text: "first"},
			{Key: "B", Text: "second"},
			{Key: "C", Text: "third"},
		},
		CorrectKey: correct,
	}
}

func written(id string, d domain.Difficulty) domain.Question {
	return domain.Question{
		ID:          id,
		Prompt:      "Question " + id,
		Type:        domain.FillBlank,
		Difficulty:  d,
		TimeLimit:   30,
		ModelAnswer: "answer " + id,
	}
}

func quizOf(questions ...domain.Question) domain.Quiz {
	return domain.Quiz{ID: "quiz-1", Name: "Test quiz", NumTeams: 2, NumRounds: 1, Questions: questions}
}

// easyPool builds n Easy MCQs whose correct key is B.
func easyPool(n int) []domain.Question {
	out := make([]domain.Question, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, mcq(fmt.Sprintf("e%d", i+1), domain.Easy, "B"))
	}
	return out
}

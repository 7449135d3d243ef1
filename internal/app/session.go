package app

import (
	"context"
	"crypto/subtle"
	"log"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"quiz-arena-service/internal/domain"
)

const (
	// DefaultDiceWindow is how long the active team has to roll.
	DefaultDiceWindow = 30 * time.Second
	// DefaultAnswerWindow applies to questions authored without a time limit.
	DefaultAnswerWindow = 30 * time.Second
)

// SessionConfig tunes a session. Zero values fall back to defaults.
type SessionConfig struct {
	DiceWindow       time.Duration
	AutoServe        bool
	SubscriberBuffer int
	Clock            clockwork.Clock
	// Dice returns a die value; tests pin it, production rolls 1-6.
	Dice func() int
	// Shuffle orders the pool once at launch.
	Shuffle func(n int, swap func(i, j int))
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.DiceWindow <= 0 {
		c.DiceWindow = DefaultDiceWindow
	}
	if c.SubscriberBuffer <= 0 {
		c.SubscriberBuffer = DefaultSubscriberBuffer
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Dice == nil {
		c.Dice = func() int { return rand.IntN(6) + 1 }
	}
	if c.Shuffle == nil {
		c.Shuffle = rand.Shuffle
	}
	return c
}

// SessionParams identifies a session and the game it runs.
type SessionParams struct {
	ID               string
	RoomCode         string
	Quiz             domain.Quiz
	NumTeams         int
	NumRounds        int
	FacilitatorToken string
}

// RollResult reports a dice roll and, with auto-serve, whether a question
// followed it.
type RollResult struct {
	Dice          domain.DiceRoll `json:"dice"`
	Served        bool            `json:"served"`
	PoolExhausted bool            `json:"poolExhausted"`
}

type command struct {
	apply func() (any, error)
	reply chan result
}

type result struct {
	value any
	err   error
}

// Session is the single writer of one room's game state. Every mutation,
// client-originated or timer-driven, runs on its loop goroutine one at a
// time; readers use the published snapshot and never wait for the loop.
type Session struct {
	id        string
	code      string
	quizID    string
	quizName  string
	numTeams  int
	numRounds int
	token     string
	pool      []domain.Question
	cfg       SessionConfig
	clock     clockwork.Clock
	createdAt time.Time

	cmds      chan command
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	hub  *Hub
	snap atomic.Pointer[domain.Snapshot]
	// Unix nanoseconds of the last client command.
	lastActive atomic.Int64

	// Owned by the loop goroutine.
	status        domain.SessionStatus
	phase         domain.Phase
	teams         []*domain.Team
	round         int
	slot          int
	turnState     domain.TurnState
	dice          *domain.DiceRoll
	question      *domain.Question
	answer        *domain.Answer
	answers       []*domain.Answer
	served        map[string]struct{}
	resolvedTurns int
	skipAvailable bool
	poolExhausted bool
	leaderboard   domain.Leaderboard
	timer         *turnTimer
	seq           uint64
	pending       []domain.Event
}

// NewSession builds a session and starts its loop.
func NewSession(params SessionParams, cfg SessionConfig) *Session {
	cfg = cfg.withDefaults()
	pool := append([]domain.Question(nil), params.Quiz.Questions...)
	cfg.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })

	s := &Session{
		id:        params.ID,
		code:      params.RoomCode,
		quizID:    params.Quiz.ID,
		quizName:  params.Quiz.Name,
		numTeams:  params.NumTeams,
		numRounds: params.NumRounds,
		token:     params.FacilitatorToken,
		pool:      pool,
		cfg:       cfg,
		clock:     cfg.Clock,
		createdAt: cfg.Clock.Now(),
		cmds:      make(chan command, 64),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
		status:    domain.StatusLobby,
		phase:     domain.PhaseLobby,
		served:    make(map[string]struct{}),
		timer:     newTurnTimer(cfg.Clock),
	}
	s.leaderboard = BuildLeaderboard(s.id, nil, s.createdAt)
	s.hub = newHub(cfg.SubscriberBuffer, s.currentSnapshot)
	s.storeSnapshot()
	s.lastActive.Store(s.createdAt.UnixNano())

	go s.run()
	return s
}

func (s *Session) ID() string       { return s.id }
func (s *Session) RoomCode() string { return s.code }
func (s *Session) QuizID() string   { return s.quizID }
func (s *Session) QuizName() string { return s.quizName }

// CreatedAt is when the session was launched.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// LastActivity is when a client last acted on the session. Timer expiries do
// not count.
func (s *Session) LastActivity() time.Time {
	return time.Unix(0, s.lastActive.Load())
}

// CheckFacilitator compares a presented facilitator token.
func (s *Session) CheckFacilitator(token string) bool {
	if token == "" || s.token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.token)) == 1
}

// HasTeam reports whether teamID has joined, using the published snapshot.
func (s *Session) HasTeam(teamID string) bool {
	for _, team := range s.currentSnapshot().Teams {
		if team.ID == teamID {
			return true
		}
	}
	return false
}

// Snapshot returns the latest published state as seen by role.
func (s *Session) Snapshot(role domain.Role) domain.Snapshot {
	return s.currentSnapshot().ForRole(role)
}

// Subscribe opens an ordered event stream starting with a snapshot.
func (s *Session) Subscribe(role domain.Role, teamID string) *Subscription {
	return s.hub.Subscribe(role, teamID)
}

// Subscribers reports how many connections are attached.
func (s *Session) Subscribers() int { return s.hub.Subscribers() }

// Close stops the loop, cancels any countdown and ends every subscription.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.quit)
		<-s.done
		s.hub.Close()
	})
}

// Done is closed once the session loop has stopped.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) Join(ctx context.Context, name string) (domain.Team, error) {
	v, err := s.do(ctx, func() (any, error) { return s.join(name) })
	if err != nil {
		return domain.Team{}, err
	}
	return v.(domain.Team), nil
}

func (s *Session) Start(ctx context.Context, actor domain.Actor) error {
	_, err := s.do(ctx, func() (any, error) { return nil, s.start(actor) })
	return err
}

func (s *Session) RollDice(ctx context.Context, actor domain.Actor) (RollResult, error) {
	v, err := s.do(ctx, func() (any, error) { return s.roll(actor) })
	if err != nil {
		return RollResult{}, err
	}
	return v.(RollResult), nil
}

func (s *Session) ServeQuestion(ctx context.Context, actor domain.Actor) (domain.Question, error) {
	v, err := s.do(ctx, func() (any, error) { return s.serveRequested(actor) })
	if err != nil {
		return domain.Question{}, err
	}
	return v.(domain.Question), nil
}

// SubmitAnswer returns the new answer's id.
func (s *Session) SubmitAnswer(ctx context.Context, actor domain.Actor, questionID, value string) (string, error) {
	v, err := s.do(ctx, func() (any, error) { return s.submit(actor, questionID, value) })
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (s *Session) GradeAnswer(ctx context.Context, actor domain.Actor, answerID string, correct bool, points int) (domain.Answer, error) {
	v, err := s.do(ctx, func() (any, error) { return s.grade(actor, answerID, correct, points) })
	if err != nil {
		return domain.Answer{}, err
	}
	return v.(domain.Answer), nil
}

func (s *Session) Skip(ctx context.Context, actor domain.Actor) (domain.Answer, error) {
	v, err := s.do(ctx, func() (any, error) { return s.skip(actor) })
	if err != nil {
		return domain.Answer{}, err
	}
	return v.(domain.Answer), nil
}

func (s *Session) Hop(ctx context.Context, actor domain.Actor) error {
	_, err := s.do(ctx, func() (any, error) { return nil, s.hop(actor) })
	return err
}

func (s *Session) Finish(ctx context.Context, actor domain.Actor) (domain.FinalResults, error) {
	v, err := s.do(ctx, func() (any, error) { return s.finish(actor) })
	if err != nil {
		return domain.FinalResults{}, err
	}
	return v.(domain.FinalResults), nil
}

// do runs apply on the loop goroutine and waits for its result.
func (s *Session) do(ctx context.Context, apply func() (any, error)) (any, error) {
	reply := make(chan result, 1)
	select {
	case s.cmds <- command{apply: apply, reply: reply}:
	case <-s.done:
		return nil, domain.ErrSessionNotFound
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-reply:
		return r.value, r.err
	case <-s.done:
		return nil, domain.ErrSessionNotFound
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// enqueue hands timer expiries to the loop without waiting for a result.
func (s *Session) enqueue(apply func()) {
	select {
	case s.cmds <- command{apply: func() (any, error) { apply(); return nil, nil }}:
	case <-s.done:
	}
}

func (s *Session) run() {
	defer close(s.done)
	for {
		select {
		case cmd := <-s.cmds:
			v, err := cmd.apply()
			s.commit()
			if cmd.reply != nil {
				s.lastActive.Store(s.clock.Now().UnixNano())
				cmd.reply <- result{value: v, err: err}
			}
		case <-s.quit:
			s.timer.stop()
			return
		}
	}
}

func (s *Session) onTimer(kind domain.TimerKind, gen uint64) {
	s.enqueue(func() {
		if !s.timer.current(kind, gen) {
			return
		}
		s.timer.expired()
		switch kind {
		case domain.TimerDice:
			s.diceTimedOut()
		case domain.TimerAnswer:
			s.timeUp()
		}
	})
}

func (s *Session) emit(typ domain.EventType, audience domain.Audience, payload, playerPayload any) {
	s.seq++
	s.pending = append(s.pending, domain.Event{
		Seq:           s.seq,
		Type:          typ,
		Audience:      audience,
		Payload:       payload,
		PlayerPayload: playerPayload,
	})
}

// commit publishes the step's snapshot before its events so that a
// subscriber joining in between sees them folded into its snapshot.
func (s *Session) commit() {
	if len(s.pending) == 0 {
		return
	}
	events := s.pending
	s.pending = nil
	s.storeSnapshot()
	s.hub.Publish(events)
	if s.status == domain.StatusCompleted {
		s.hub.Close()
		log.Printf("[session %s] completed, subscribers closed", s.code)
	}
}

func (s *Session) currentSnapshot() domain.Snapshot {
	return *s.snap.Load()
}

func (s *Session) storeSnapshot() {
	snap := s.buildSnapshot()
	s.snap.Store(&snap)
}

func (s *Session) buildSnapshot() domain.Snapshot {
	teams := make([]domain.Team, 0, len(s.teams))
	for _, team := range s.teams {
		teams = append(teams, *team)
	}
	snap := domain.Snapshot{
		Version:         s.seq,
		SessionID:       s.id,
		RoomCode:        s.code,
		QuizID:          s.quizID,
		Status:          s.status,
		Phase:           s.phase,
		NumTeams:        s.numTeams,
		NumRounds:       s.numRounds,
		Round:           s.round,
		Teams:           teams,
		Leaderboard:     s.leaderboard,
		WaitingForDice:  s.phase == domain.PhaseRolling,
		SkipAvailable:   s.skipAvailable,
		PoolExhausted:   s.poolExhausted,
		ServedQuestions: len(s.served),
		ResolvedTurns:   s.resolvedTurns,
	}
	if team := s.activeTeam(); team != nil {
		ref := teamRef(team)
		snap.ActiveTeam = &ref
		snap.TurnState = s.turnState
	}
	if s.dice != nil {
		dice := *s.dice
		snap.Dice = &dice
	}
	if s.question != nil {
		q := *s.question
		snap.CurrentQuestion = &q
	}
	if s.answer != nil {
		answer := *s.answer
		snap.AnswerSubmitted = !answer.Unanswered
		snap.PendingAnswer = &answer
	}
	snap.Timer, snap.Deadline = s.timer.running()
	if s.status == domain.StatusCompleted {
		snap.Winners = s.leaderboard.Winners()
	}
	return snap
}

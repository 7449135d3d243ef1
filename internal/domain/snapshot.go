package domain

import "time"

// TimerKind names the countdown currently running, if any.
type TimerKind string

const (
	TimerNone   TimerKind = ""
	TimerDice   TimerKind = "dice"
	TimerAnswer TimerKind = "answer"
)

// Snapshot is a full point-in-time view of a session. Version equals the
// sequence number of the last event folded into it, so a client that applies
// a snapshot followed by every event with a greater Seq stays consistent.
// Snapshots are immutable once published.
type Snapshot struct {
	Version   uint64        `json:"version"`
	SessionID string        `json:"sessionId"`
	RoomCode  string        `json:"roomCode"`
	QuizID    string        `json:"quizId"`
	Status    SessionStatus `json:"status"`
	Phase     Phase         `json:"phase"`
	NumTeams  int           `json:"numTeams"`
	NumRounds int           `json:"numRounds"`
	Round     int           `json:"round"`

	ActiveTeam      *TeamRef    `json:"activeTeam,omitempty"`
	TurnState       TurnState   `json:"turnState,omitempty"`
	Teams           []Team      `json:"teams"`
	Leaderboard     Leaderboard `json:"leaderboard"`
	Dice            *DiceRoll   `json:"dice,omitempty"`
	CurrentQuestion *Question   `json:"currentQuestion,omitempty"`
	WaitingForDice  bool        `json:"waitingForDice"`

	Timer    TimerKind  `json:"timer,omitempty"`
	Deadline *time.Time `json:"deadline,omitempty"`

	AnswerSubmitted bool    `json:"answerSubmitted"`
	PendingAnswer   *Answer `json:"pendingAnswer,omitempty"`
	SkipAvailable   bool    `json:"skipAvailable"`
	PoolExhausted   bool    `json:"poolExhausted"`

	ServedQuestions int                `json:"servedQuestions"`
	ResolvedTurns   int                `json:"resolvedTurns"`
	Winners         []LeaderboardEntry `json:"winners,omitempty"`
}

// ForRole returns the view a given role is allowed to see.
func (s Snapshot) ForRole(role Role) Snapshot {
	if role == RoleFacilitator {
		return s
	}
	out := s
	if s.CurrentQuestion != nil {
		q := s.CurrentQuestion.PlayerView()
		out.CurrentQuestion = &q
	}
	out.PendingAnswer = nil
	out.SkipAvailable = false
	out.PoolExhausted = false
	return out
}

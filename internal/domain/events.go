package domain

import "time"

// EventType names an outbound event.
type EventType string

const (
	EventStateSnapshot          EventType = "state_snapshot"
	EventTeamJoined             EventType = "team_joined"
	EventGameStarted            EventType = "game_started"
	EventQuestionReadyForDice   EventType = "question_ready_for_dice"
	EventDiceRolled             EventType = "dice_rolled"
	EventQuestionServed         EventType = "question_served"
	EventAnswerSubmitted        EventType = "answer_submitted"
	EventAnswerSubmittedDetails EventType = "answer_submitted_details"
	EventAnswerGraded           EventType = "answer_graded"
	EventLeaderboardUpdate      EventType = "leaderboard_update"
	EventTimeUp                 EventType = "time_up"
	EventGameEnded              EventType = "game_ended"
	EventDiceTimeout            EventType = "dice_timeout"
	EventSkipAvailable          EventType = "skip_available"
	EventPoolExhausted          EventType = "pool_exhausted"
	EventTurnSkipped            EventType = "turn_skipped"
)

// Audience limits who receives an event.
type Audience int

const (
	AudienceAll Audience = iota
	AudienceFacilitator
)

// Event is one committed state change. Seq is monotonic per session.
// PlayerPayload, when set, replaces Payload for player connections.
type Event struct {
	Seq           uint64
	Type          EventType
	Audience      Audience
	Payload       any
	PlayerPayload any
}

// VisibleTo reports whether role receives the event.
func (e Event) VisibleTo(role Role) bool {
	return e.Audience == AudienceAll || role == RoleFacilitator
}

// Envelope renders the event for role.
func (e Event) Envelope(role Role) Envelope {
	payload := e.Payload
	if role != RoleFacilitator && e.PlayerPayload != nil {
		payload = e.PlayerPayload
	}
	return Envelope{Type: e.Type, Seq: e.Seq, Payload: payload}
}

// Envelope is the wire shape of every outbound message.
type Envelope struct {
	Type    EventType `json:"type"`
	Seq     uint64    `json:"seq"`
	Payload any       `json:"payload"`
}

// TeamRef identifies a team in event payloads.
type TeamRef struct {
	TeamID   string `json:"teamId"`
	TeamName string `json:"teamName"`
}

type TeamJoinedPayload struct {
	TeamID    string `json:"teamId"`
	Name      string `json:"name"`
	SessionID string `json:"sessionId"`
	JoinOrder int    `json:"joinOrder"`
	Score     int    `json:"score"`
	Position  int    `json:"position"`
}

type GameStartedPayload struct {
	NumRounds int       `json:"numRounds"`
	TurnOrder []TeamRef `json:"turnOrder"`
}

type QuestionReadyPayload struct {
	TeamRef
	Round    int       `json:"round"`
	Deadline time.Time `json:"deadline"`
}

type DiceRolledPayload struct {
	TeamRef
	Value int  `json:"value"`
	Band  Band `json:"band"`
}

type QuestionServedPayload struct {
	TeamRef
	Question  Question  `json:"question"`
	Round     int       `json:"round"`
	TimeLimit int       `json:"timeLimit"`
	Deadline  time.Time `json:"deadline"`
}

type AnswerSubmittedPayload struct {
	TeamRef
}

type AnswerDetailsPayload struct {
	TeamRef
	AnswerID      string       `json:"answerId"`
	QuestionID    string       `json:"questionId"`
	QuestionType  QuestionType `json:"questionType"`
	Value         string       `json:"value"`
	AutoGraded    bool         `json:"autoGraded"`
	AutoIsCorrect bool         `json:"autoIsCorrect"`
	AutoPoints    int          `json:"autoPoints"`
	CorrectAnswer string       `json:"correctAnswer,omitempty"`
}

type AnswerGradedPayload struct {
	TeamRef
	AnswerID      string        `json:"answerId"`
	IsCorrect     bool          `json:"isCorrect"`
	PointsAwarded int           `json:"pointsAwarded"`
	Source        GradingSource `json:"source"`
	CorrectAnswer string        `json:"correctAnswer,omitempty"`
}

type TimeUpPayload struct {
	TeamRef
	QuestionID string `json:"questionId"`
}

type GameEndedPayload struct {
	Winners     []LeaderboardEntry `json:"winners"`
	Leaderboard Leaderboard        `json:"leaderboard"`
	Forced      bool               `json:"forced"`
}

type DiceTimeoutPayload struct {
	TeamRef
	Round int `json:"round"`
}

type SkipAvailablePayload struct {
	TeamRef
	AnswerID string `json:"answerId"`
}

type PoolExhaustedPayload struct {
	TeamRef
	Band Band `json:"band"`
}

type TurnSkippedPayload struct {
	TeamRef
	Round int `json:"round"`
}

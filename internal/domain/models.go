package domain

import (
	"strings"
	"time"
)

// Difficulty is an individual question tier.
type Difficulty string

const (
	Easy   Difficulty = "Easy"
	Medium Difficulty = "Medium"
	Hard   Difficulty = "Hard"
	Insane Difficulty = "Insane"
)

// Valid reports whether d is one of the four known tiers.
func (d Difficulty) Valid() bool {
	switch d {
	case Easy, Medium, Hard, Insane:
		return true
	}
	return false
}

// Band groups two tiers; a dice roll selects one band.
type Band string

const (
	BandLow  Band = "easy_medium"
	BandHigh Band = "hard_insane"
)

// Tiers returns the band's candidate tiers, lower index first.
func (b Band) Tiers() [2]Difficulty {
	if b == BandHigh {
		return [2]Difficulty{Hard, Insane}
	}
	return [2]Difficulty{Easy, Medium}
}

// BandForRoll maps a die value to its band: 1-3 low, 4-6 high.
func BandForRoll(value int) (Band, error) {
	switch {
	case value >= 1 && value <= 3:
		return BandLow, nil
	case value >= 4 && value <= 6:
		return BandHigh, nil
	}
	return "", ErrInvalidDiceValue
}

// QuestionType distinguishes auto-gradable questions from manual ones.
type QuestionType string

const (
	MCQ       QuestionType = "MCQ"
	FillBlank QuestionType = "FillBlank"
	OpenEnded QuestionType = "OpenEnded"
)

// Option is one lettered choice of a multiple-choice question.
type Option struct {
	Key  string `json:"key"`
	Text string `json:"text"`
}

// Question is read-only quiz content.
type Question struct {
	ID          string       `json:"id"`
	Prompt      string       `json:"prompt"`
	Type        QuestionType `json:"type"`
	Difficulty  Difficulty   `json:"difficulty"`
	TimeLimit   int          `json:"timeLimit"` // seconds
	Options     []Option     `json:"options,omitempty"`
	CorrectKey  string       `json:"correctKey,omitempty"`
	ModelAnswer string       `json:"modelAnswer,omitempty"`
}

// PlayerView strips the fields that would give the answer away.
func (q Question) PlayerView() Question {
	out := q
	out.CorrectKey = ""
	out.ModelAnswer = ""
	if len(q.Options) > 0 {
		out.Options = append([]Option(nil), q.Options...)
	}
	return out
}

// CheckMCQ compares a submitted option key against the correct key.
func (q Question) CheckMCQ(submitted string) bool {
	if q.CorrectKey == "" {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(submitted), strings.TrimSpace(q.CorrectKey))
}

// CorrectAnswerText renders the answer shown to the facilitator, "B: Paris" for MCQs.
func (q Question) CorrectAnswerText() string {
	if q.Type != MCQ {
		return q.ModelAnswer
	}
	if q.CorrectKey == "" {
		return ""
	}
	for _, opt := range q.Options {
		if strings.EqualFold(opt.Key, q.CorrectKey) {
			return q.CorrectKey + ": " + opt.Text
		}
	}
	return q.CorrectKey
}

// Quiz is the question pool plus the game shape it was authored for.
type Quiz struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	NumTeams  int        `json:"numTeams"`
	NumRounds int        `json:"numRounds"`
	Questions []Question `json:"questions"`
}

// CountByDifficulty tallies the pool per tier.
func (q Quiz) CountByDifficulty() map[Difficulty]int {
	counts := make(map[Difficulty]int, 4)
	for _, question := range q.Questions {
		counts[question.Difficulty]++
	}
	return counts
}

// SessionStatus is the coarse lifecycle of a session.
type SessionStatus string

const (
	StatusLobby      SessionStatus = "lobby"
	StatusInProgress SessionStatus = "in_progress"
	StatusCompleted  SessionStatus = "completed"
)

// Phase is the authoritative state machine position of a session.
type Phase string

const (
	PhaseLobby           Phase = "lobby"
	PhaseRolling         Phase = "rolling"
	PhaseQuestionPending Phase = "question_pending"
	PhaseAnswering       Phase = "answering"
	PhaseGrading         Phase = "grading"
	PhaseAwaitingFinish  Phase = "awaiting_finish"
	PhaseCompleted       Phase = "completed"
)

// TurnState tracks one team's turn inside a round.
type TurnState string

const (
	TurnPendingRoll     TurnState = "pending_roll"
	TurnPendingQuestion TurnState = "pending_question"
	TurnPendingAnswer   TurnState = "pending_answer"
	TurnPendingGrading  TurnState = "pending_grading"
	TurnResolved        TurnState = "resolved"
)

// Role identifies who is on the other end of a connection.
type Role string

const (
	RoleFacilitator Role = "facilitator"
	RolePlayer      Role = "player"
)

// Actor is the authenticated origin of an inbound action.
type Actor struct {
	Role   Role
	TeamID string
}

// Facilitator builds the facilitator actor.
func Facilitator() Actor { return Actor{Role: RoleFacilitator} }

// Player builds a team actor.
func Player(teamID string) Actor { return Actor{Role: RolePlayer, TeamID: teamID} }

// Team is a joined team and its accumulated score.
type Team struct {
	ID            string `json:"id"`
	SessionID     string `json:"sessionId"`
	Name          string `json:"name"`
	Score         int    `json:"score"`
	Position      int    `json:"position"`
	JoinOrder     int    `json:"joinOrder"`
	ResolvedTurns int    `json:"resolvedTurns"`
}

// GradingSource records who finalized an answer.
type GradingSource string

const (
	SourceAuto        GradingSource = "auto"
	SourceFacilitator GradingSource = "facilitator"
)

// Answer is a team's submission for its turn.
type Answer struct {
	ID          string        `json:"id"`
	QuestionID  string        `json:"questionId"`
	TeamID      string        `json:"teamId"`
	Round       int           `json:"round"`
	Value       string        `json:"value"`
	Unanswered  bool          `json:"unanswered"`
	AutoVerdict *bool         `json:"autoVerdict,omitempty"`
	Correct     bool          `json:"correct"`
	Points      int           `json:"points"`
	Source      GradingSource `json:"source,omitempty"`
	Finalized   bool          `json:"finalized"`
	SubmittedAt time.Time     `json:"submittedAt"`
	GradedAt    time.Time     `json:"gradedAt,omitempty"`
}

// DiceRoll is the server-generated roll of the current turn.
type DiceRoll struct {
	TeamID string `json:"teamId"`
	Value  int    `json:"value"`
	Band   Band   `json:"band"`
}

// LeaderboardEntry is one ranked team.
type LeaderboardEntry struct {
	TeamID   string `json:"teamId"`
	Name     string `json:"name"`
	Score    int    `json:"score"`
	Position int    `json:"position"`
	Rank     int    `json:"rank"`
}

// Leaderboard captures the ordered scoreboard for a session.
type Leaderboard struct {
	SessionID string             `json:"sessionId"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// Winners returns every entry sharing rank 1.
func (lb Leaderboard) Winners() []LeaderboardEntry {
	winners := make([]LeaderboardEntry, 0, 1)
	for _, entry := range lb.Entries {
		if entry.Rank == 1 {
			winners = append(winners, entry)
		}
	}
	return winners
}

// FinalResults is what a completed session leaves behind.
type FinalResults struct {
	SessionID   string             `json:"sessionId"`
	RoomCode    string             `json:"roomCode"`
	QuizID      string             `json:"quizId"`
	Winners     []LeaderboardEntry `json:"winners"`
	Leaderboard Leaderboard        `json:"leaderboard"`
	Answers     []Answer           `json:"answers"`
	CompletedAt time.Time          `json:"completedAt"`
}

// LaunchedSession is returned to the facilitator on launch.
type LaunchedSession struct {
	SessionID        string `json:"sessionId"`
	RoomCode         string `json:"roomCode"`
	QuizID           string `json:"quizId"`
	NumTeams         int    `json:"numTeams"`
	NumRounds        int    `json:"numRounds"`
	FacilitatorToken string `json:"facilitatorToken"`
}

// RoomInfo is the public view of a room, served before a team joins. Team
// ids are credentials and never appear in it.
type RoomInfo struct {
	RoomCode  string          `json:"roomCode"`
	QuizID    string          `json:"quizId"`
	QuizName  string          `json:"quizName"`
	Status    SessionStatus   `json:"status"`
	Phase     Phase           `json:"phase"`
	NumTeams  int             `json:"numTeams"`
	NumRounds int             `json:"numRounds"`
	Teams     []RoomTeamEntry `json:"teams"`
}

// RoomTeamEntry lists a joined team by name.
type RoomTeamEntry struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}

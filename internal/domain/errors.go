package domain

import "errors"

var (
	// ErrSessionNotFound is returned when no live session owns the room code.
	ErrSessionNotFound = errors.New("game session not found")
	// ErrTeamNotFound is returned when a team acts before joining.
	ErrTeamNotFound = errors.New("team not found in session")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuestionNotFound indicates a submitted question ID is not the one being served.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrAnswerNotFound indicates a grading request for an unknown answer.
	ErrAnswerNotFound = errors.New("answer not found")

	ErrInvalidTeamName       = errors.New("team name must be 2-50 characters")
	ErrInvalidDiceValue      = errors.New("dice value must be between 1 and 6")
	ErrInvalidPoints         = errors.New("points do not match the question difficulty")
	ErrInvalidDifficulty     = errors.New("unknown difficulty")
	ErrInvalidQuizConfig     = errors.New("quiz needs at least one team and one round")
	ErrInsufficientQuestions = errors.New("quiz does not have enough questions for every turn")
	ErrInvalidAction         = errors.New("unsupported action")
	ErrInvalidPayload        = errors.New("invalid action payload")

	ErrDuplicateTeamName  = errors.New("team name already taken")
	ErrLobbyFull          = errors.New("game is full")
	ErrNotEnoughTeams     = errors.New("not every team has joined yet")
	ErrWrongPhase         = errors.New("action not allowed in the current phase")
	ErrNotYourTurn        = errors.New("it is not this team's turn")
	ErrAlreadySubmitted   = errors.New("answer already submitted for this turn")
	ErrAlreadyGraded      = errors.New("answer already graded")
	ErrAnswerWindowClosed = errors.New("answer window has closed")
	ErrSessionCompleted   = errors.New("game session already completed")
	ErrNothingToSkip      = errors.New("no timed-out answer to skip")
	ErrRoomCodeTaken      = errors.New("room code already in use")
	ErrSubscriptionClosed = errors.New("subscription closed")

	// ErrPoolExhausted is not fatal: the facilitator can hop or finish.
	ErrPoolExhausted = errors.New("no unserved question left in the rolled band")

	ErrFacilitatorOnly = errors.New("only the facilitator can do that")
	ErrUnauthorized    = errors.New("invalid credentials")
)

// ErrorKind buckets errors for transport mapping.
type ErrorKind string

const (
	KindValidation   ErrorKind = "validation"
	KindConflict     ErrorKind = "conflict"
	KindExhausted    ErrorKind = "pool_exhausted"
	KindNotFound     ErrorKind = "not_found"
	KindForbidden    ErrorKind = "forbidden"
	KindUnauthorized ErrorKind = "unauthorized"
	KindInternal     ErrorKind = "internal"
)

var errorKinds = []struct {
	err  error
	kind ErrorKind
}{
	{ErrSessionNotFound, KindNotFound},
	{ErrTeamNotFound, KindNotFound},
	{ErrQuizNotFound, KindNotFound},
	{ErrQuestionNotFound, KindValidation},
	{ErrAnswerNotFound, KindNotFound},
	{ErrInvalidTeamName, KindValidation},
	{ErrInvalidDiceValue, KindValidation},
	{ErrInvalidPoints, KindValidation},
	{ErrInvalidDifficulty, KindValidation},
	{ErrInvalidQuizConfig, KindValidation},
	{ErrInsufficientQuestions, KindValidation},
	{ErrInvalidAction, KindValidation},
	{ErrInvalidPayload, KindValidation},
	{ErrDuplicateTeamName, KindConflict},
	{ErrLobbyFull, KindConflict},
	{ErrNotEnoughTeams, KindConflict},
	{ErrWrongPhase, KindConflict},
	{ErrNotYourTurn, KindConflict},
	{ErrAlreadySubmitted, KindConflict},
	{ErrAlreadyGraded, KindConflict},
	{ErrAnswerWindowClosed, KindConflict},
	{ErrSessionCompleted, KindConflict},
	{ErrNothingToSkip, KindConflict},
	{ErrRoomCodeTaken, KindConflict},
	{ErrSubscriptionClosed, KindConflict},
	{ErrPoolExhausted, KindExhausted},
	{ErrFacilitatorOnly, KindForbidden},
	{ErrUnauthorized, KindUnauthorized},
}

// KindOf classifies err; unknown errors are internal.
func KindOf(err error) ErrorKind {
	for _, candidate := range errorKinds {
		if errors.Is(err, candidate.err) {
			return candidate.kind
		}
	}
	return KindInternal
}

package app

import (
	"context"
	"log"

	"github.com/google/uuid"
	"quiz-arena-service/internal/domain"
)

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// ResultArchive keeps the outcome of completed sessions.
type ResultArchive interface {
	SaveResults(ctx context.Context, results domain.FinalResults) error
}

// CredentialChecker decides who may launch sessions.
type CredentialChecker interface {
	CheckFacilitatorKey(ctx context.Context, key string) error
}

// LaunchRequest selects a quiz; zero counts fall back to the quiz's own shape.
type LaunchRequest struct {
	QuizID    string `json:"quizId"`
	NumTeams  int    `json:"numTeams"`
	NumRounds int    `json:"numRounds"`
}

// GameService contains the live game use cases. Every call is routed by room
// code to the owning session.
type GameService struct {
	registry *Registry
	quizzes  QuizRepository
	archive  ResultArchive
	creds    CredentialChecker
	cfg      SessionConfig
}

func NewGameService(registry *Registry, quizzes QuizRepository, archive ResultArchive, creds CredentialChecker, cfg SessionConfig) *GameService {
	return &GameService{
		registry: registry,
		quizzes:  quizzes,
		archive:  archive,
		creds:    creds,
		cfg:      cfg,
	}
}

// Launch creates a lobby for a quiz. The question pool is fetched here once
// and owned by the session for its lifetime.
func (s *GameService) Launch(ctx context.Context, facilitatorKey string, req LaunchRequest) (domain.LaunchedSession, error) {
	if s.creds != nil {
		if err := s.creds.CheckFacilitatorKey(ctx, facilitatorKey); err != nil {
			return domain.LaunchedSession{}, err
		}
	}

	quiz, err := s.quizzes.GetQuiz(ctx, req.QuizID)
	if err != nil {
		return domain.LaunchedSession{}, err
	}
	numTeams, numRounds := req.NumTeams, req.NumRounds
	if numTeams == 0 {
		numTeams = quiz.NumTeams
	}
	if numRounds == 0 {
		numRounds = quiz.NumRounds
	}
	if err := ValidatePool(quiz, numTeams, numRounds); err != nil {
		return domain.LaunchedSession{}, err
	}

	sessionID := uuid.NewString()
	token := uuid.NewString()
	session, err := s.registry.Create(ctx, func(code string) *Session {
		return NewSession(SessionParams{
			ID:               sessionID,
			RoomCode:         code,
			Quiz:             quiz,
			NumTeams:         numTeams,
			NumRounds:        numRounds,
			FacilitatorToken: token,
		}, s.cfg)
	})
	if err != nil {
		return domain.LaunchedSession{}, err
	}
	log.Printf("[session %s] launched quiz %s (%d teams, %d rounds)", session.RoomCode(), quiz.ID, numTeams, numRounds)

	return domain.LaunchedSession{
		SessionID:        sessionID,
		RoomCode:         session.RoomCode(),
		QuizID:           quiz.ID,
		NumTeams:         numTeams,
		NumRounds:        numRounds,
		FacilitatorToken: token,
	}, nil
}

// Authenticate resolves connection credentials into an actor.
func (s *GameService) Authenticate(_ context.Context, roomCode string, role domain.Role, credential string) (domain.Actor, error) {
	session, err := s.registry.Lookup(roomCode)
	if err != nil {
		return domain.Actor{}, err
	}
	switch role {
	case domain.RoleFacilitator:
		if !session.CheckFacilitator(credential) {
			return domain.Actor{}, domain.ErrUnauthorized
		}
		return domain.Facilitator(), nil
	case domain.RolePlayer:
		if !session.HasTeam(credential) {
			return domain.Actor{}, domain.ErrTeamNotFound
		}
		return domain.Player(credential), nil
	}
	return domain.Actor{}, domain.ErrUnauthorized
}

// JoinTeam registers a team in a lobby.
func (s *GameService) JoinTeam(ctx context.Context, roomCode, teamName string) (domain.Team, error) {
	session, err := s.registry.Lookup(roomCode)
	if err != nil {
		return domain.Team{}, err
	}
	return session.Join(ctx, teamName)
}

func (s *GameService) StartGame(ctx context.Context, roomCode string, actor domain.Actor) error {
	session, err := s.registry.Lookup(roomCode)
	if err != nil {
		return err
	}
	return session.Start(ctx, actor)
}

func (s *GameService) RollDice(ctx context.Context, roomCode string, actor domain.Actor) (RollResult, error) {
	session, err := s.registry.Lookup(roomCode)
	if err != nil {
		return RollResult{}, err
	}
	return session.RollDice(ctx, actor)
}

func (s *GameService) ServeQuestion(ctx context.Context, roomCode string, actor domain.Actor) (domain.Question, error) {
	session, err := s.registry.Lookup(roomCode)
	if err != nil {
		return domain.Question{}, err
	}
	return session.ServeQuestion(ctx, actor)
}

// SubmitAnswer records the active team's answer and returns its id.
func (s *GameService) SubmitAnswer(ctx context.Context, roomCode string, actor domain.Actor, questionID, value string) (string, error) {
	session, err := s.registry.Lookup(roomCode)
	if err != nil {
		return "", err
	}
	return session.SubmitAnswer(ctx, actor, questionID, value)
}

// GradeAnswer finalizes an answer. points may be 0 for the difficulty default.
func (s *GameService) GradeAnswer(ctx context.Context, roomCode string, actor domain.Actor, answerID string, correct bool, points int) (domain.Answer, error) {
	session, err := s.registry.Lookup(roomCode)
	if err != nil {
		return domain.Answer{}, err
	}
	return session.GradeAnswer(ctx, actor, answerID, correct, points)
}

func (s *GameService) SkipAnswer(ctx context.Context, roomCode string, actor domain.Actor) (domain.Answer, error) {
	session, err := s.registry.Lookup(roomCode)
	if err != nil {
		return domain.Answer{}, err
	}
	return session.Skip(ctx, actor)
}

func (s *GameService) HopTurn(ctx context.Context, roomCode string, actor domain.Actor) error {
	session, err := s.registry.Lookup(roomCode)
	if err != nil {
		return err
	}
	return session.Hop(ctx, actor)
}

// FinishGame completes the session and archives the results. Archive
// failures are logged; the game outcome stands.
func (s *GameService) FinishGame(ctx context.Context, roomCode string, actor domain.Actor) (domain.FinalResults, error) {
	session, err := s.registry.Lookup(roomCode)
	if err != nil {
		return domain.FinalResults{}, err
	}
	results, err := session.Finish(ctx, actor)
	if err != nil {
		return domain.FinalResults{}, err
	}
	s.registry.MarkCompleted(roomCode)
	log.Printf("[session %s] finished, %d winner(s)", roomCode, len(results.Winners))

	if s.archive != nil {
		if err := s.archive.SaveResults(ctx, results); err != nil {
			log.Printf("[session %s] archive results: %v", roomCode, err)
		}
	}
	return results, nil
}

// GetState returns the snapshot a reconnecting client starts from.
func (s *GameService) GetState(_ context.Context, roomCode string, actor domain.Actor) (domain.Snapshot, error) {
	session, err := s.registry.Lookup(roomCode)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return session.Snapshot(actor.Role), nil
}

// LookupRoom returns the public lobby view of a room; it needs no credentials.
func (s *GameService) LookupRoom(_ context.Context, roomCode string) (domain.RoomInfo, error) {
	session, err := s.registry.Lookup(roomCode)
	if err != nil {
		return domain.RoomInfo{}, err
	}
	snap := session.Snapshot(domain.RolePlayer)
	info := domain.RoomInfo{
		RoomCode:  snap.RoomCode,
		QuizID:    snap.QuizID,
		QuizName:  session.QuizName(),
		Status:    snap.Status,
		Phase:     snap.Phase,
		NumTeams:  snap.NumTeams,
		NumRounds: snap.NumRounds,
		Teams:     make([]domain.RoomTeamEntry, 0, len(snap.Teams)),
	}
	for _, team := range snap.Teams {
		info.Teams = append(info.Teams, domain.RoomTeamEntry{Name: team.Name, Score: team.Score})
	}
	return info, nil
}

// Leaderboard returns the current standings from the published snapshot.
func (s *GameService) Leaderboard(_ context.Context, roomCode string) (domain.Leaderboard, error) {
	session, err := s.registry.Lookup(roomCode)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	return session.Snapshot(domain.RolePlayer).Leaderboard, nil
}

// Subscribe returns an ordered event stream; the caller must Close it.
func (s *GameService) Subscribe(_ context.Context, roomCode string, actor domain.Actor) (*Subscription, error) {
	session, err := s.registry.Lookup(roomCode)
	if err != nil {
		return nil, err
	}
	return session.Subscribe(actor.Role, actor.TeamID), nil
}

// Teardown retires a session immediately.
func (s *GameService) Teardown(ctx context.Context, roomCode string, actor domain.Actor) error {
	if err := requireFacilitator(actor); err != nil {
		return err
	}
	return s.registry.Retire(ctx, roomCode)
}

// SweepCompleted retires completed sessions past their retention window.
func (s *GameService) SweepCompleted(ctx context.Context) int {
	return s.registry.Sweep(ctx)
}

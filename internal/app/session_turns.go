package app

import (
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"quiz-arena-service/internal/domain"
)

const (
	minTeamName = 2
	maxTeamName = 50
)

func teamRef(team *domain.Team) domain.TeamRef {
	return domain.TeamRef{TeamID: team.ID, TeamName: team.Name}
}

func (s *Session) activeTeam() *domain.Team {
	if s.status != domain.StatusInProgress || s.phase == domain.PhaseAwaitingFinish {
		return nil
	}
	if s.slot < 0 || s.slot >= len(s.teams) {
		return nil
	}
	return s.teams[s.slot]
}

func (s *Session) findTeam(id string) *domain.Team {
	for _, team := range s.teams {
		if team.ID == id {
			return team
		}
	}
	return nil
}

func (s *Session) requireOpen() error {
	if s.status == domain.StatusCompleted {
		return domain.ErrSessionCompleted
	}
	return nil
}

func requireFacilitator(actor domain.Actor) error {
	if actor.Role != domain.RoleFacilitator {
		return domain.ErrFacilitatorOnly
	}
	return nil
}

// requireActiveTeam checks that actor is the team whose turn it is.
func (s *Session) requireActiveTeam(actor domain.Actor) (*domain.Team, error) {
	if actor.Role != domain.RolePlayer {
		return nil, domain.ErrNotYourTurn
	}
	team := s.findTeam(actor.TeamID)
	if team == nil {
		return nil, domain.ErrTeamNotFound
	}
	if active := s.activeTeam(); active == nil || active.ID != team.ID {
		return nil, domain.ErrNotYourTurn
	}
	return team, nil
}

func (s *Session) join(name string) (domain.Team, error) {
	name = strings.TrimSpace(name)
	if n := utf8.RuneCountInString(name); n < minTeamName || n > maxTeamName {
		return domain.Team{}, domain.ErrInvalidTeamName
	}
	if err := s.requireOpen(); err != nil {
		return domain.Team{}, err
	}
	if s.phase != domain.PhaseLobby {
		return domain.Team{}, domain.ErrWrongPhase
	}
	if len(s.teams) >= s.numTeams {
		return domain.Team{}, domain.ErrLobbyFull
	}
	for _, team := range s.teams {
		if strings.EqualFold(team.Name, name) {
			return domain.Team{}, domain.ErrDuplicateTeamName
		}
	}

	team := &domain.Team{
		ID:        uuid.NewString(),
		SessionID: s.id,
		Name:      name,
		JoinOrder: len(s.teams),
	}
	s.teams = append(s.teams, team)
	s.rebuildLeaderboard()
	s.emit(domain.EventTeamJoined, domain.AudienceAll, domain.TeamJoinedPayload{
		TeamID:    team.ID,
		Name:      team.Name,
		SessionID: s.id,
		JoinOrder: team.JoinOrder,
	}, nil)
	return *team, nil
}

func (s *Session) start(actor domain.Actor) error {
	if err := requireFacilitator(actor); err != nil {
		return err
	}
	if err := s.requireOpen(); err != nil {
		return err
	}
	if s.phase != domain.PhaseLobby {
		return domain.ErrWrongPhase
	}
	if len(s.teams) != s.numTeams {
		return domain.ErrNotEnoughTeams
	}

	s.status = domain.StatusInProgress
	s.round = 1
	s.slot = 0
	order := make([]domain.TeamRef, 0, len(s.teams))
	for _, team := range s.teams {
		order = append(order, teamRef(team))
	}
	s.emit(domain.EventGameStarted, domain.AudienceAll, domain.GameStartedPayload{
		NumRounds: s.numRounds,
		TurnOrder: order,
	}, nil)
	log.Printf("[session %s] game started with %d teams, %d rounds", s.code, len(s.teams), s.numRounds)
	s.beginTurn()
	return nil
}

// beginTurn puts the team at the cursor into the rolling phase.
func (s *Session) beginTurn() {
	s.phase = domain.PhaseRolling
	s.turnState = domain.TurnPendingRoll
	s.dice = nil
	s.question = nil
	s.answer = nil
	s.skipAvailable = false
	s.poolExhausted = false
	s.timer.start(domain.TimerDice, s.cfg.DiceWindow, s.onTimer)

	team := s.activeTeam()
	s.emit(domain.EventQuestionReadyForDice, domain.AudienceAll, domain.QuestionReadyPayload{
		TeamRef:  teamRef(team),
		Round:    s.round,
		Deadline: s.timer.deadline,
	}, nil)
}

func (s *Session) roll(actor domain.Actor) (RollResult, error) {
	if err := s.requireOpen(); err != nil {
		return RollResult{}, err
	}
	if s.phase != domain.PhaseRolling {
		return RollResult{}, domain.ErrWrongPhase
	}
	team, err := s.requireActiveTeam(actor)
	if err != nil {
		return RollResult{}, err
	}
	value := s.cfg.Dice()
	band, err := domain.BandForRoll(value)
	if err != nil {
		return RollResult{}, err
	}

	s.timer.stop()
	s.dice = &domain.DiceRoll{TeamID: team.ID, Value: value, Band: band}
	s.phase = domain.PhaseQuestionPending
	s.turnState = domain.TurnPendingQuestion
	s.emit(domain.EventDiceRolled, domain.AudienceAll, domain.DiceRolledPayload{
		TeamRef: teamRef(team),
		Value:   value,
		Band:    band,
	}, nil)

	res := RollResult{Dice: *s.dice}
	if s.cfg.AutoServe {
		if _, err := s.serve(); err != nil {
			res.PoolExhausted = true
		} else {
			res.Served = true
		}
	}
	return res, nil
}

func (s *Session) serveRequested(actor domain.Actor) (domain.Question, error) {
	if err := requireFacilitator(actor); err != nil {
		return domain.Question{}, err
	}
	if err := s.requireOpen(); err != nil {
		return domain.Question{}, err
	}
	if s.phase != domain.PhaseQuestionPending {
		return domain.Question{}, domain.ErrWrongPhase
	}
	return s.serve()
}

// serve allocates a question for the rolled band and opens the answer window.
// Exhaustion is reported to the facilitator once per turn.
func (s *Session) serve() (domain.Question, error) {
	team := s.activeTeam()
	q, err := AllocateQuestion(s.pool, s.dice.Band, s.served)
	if err != nil {
		if !s.poolExhausted {
			s.poolExhausted = true
			s.emit(domain.EventPoolExhausted, domain.AudienceFacilitator, domain.PoolExhaustedPayload{
				TeamRef: teamRef(team),
				Band:    s.dice.Band,
			}, nil)
			log.Printf("[session %s] pool exhausted for band %s", s.code, s.dice.Band)
		}
		return domain.Question{}, err
	}

	window := time.Duration(q.TimeLimit) * time.Second
	if window <= 0 {
		window = DefaultAnswerWindow
	}
	s.served[q.ID] = struct{}{}
	s.question = &q
	s.phase = domain.PhaseAnswering
	s.turnState = domain.TurnPendingAnswer
	s.timer.start(domain.TimerAnswer, window, s.onTimer)

	payload := domain.QuestionServedPayload{
		TeamRef:   teamRef(team),
		Question:  q,
		Round:     s.round,
		TimeLimit: int(window / time.Second),
		Deadline:  s.timer.deadline,
	}
	playerPayload := payload
	playerPayload.Question = q.PlayerView()
	s.emit(domain.EventQuestionServed, domain.AudienceAll, payload, playerPayload)
	return q, nil
}

func (s *Session) submit(actor domain.Actor, questionID, value string) (string, error) {
	if err := s.requireOpen(); err != nil {
		return "", err
	}
	team, err := s.requireActiveTeam(actor)
	if err != nil {
		return "", err
	}
	if s.answer != nil {
		if s.answer.Unanswered {
			return "", domain.ErrAnswerWindowClosed
		}
		return "", domain.ErrAlreadySubmitted
	}
	if s.phase != domain.PhaseAnswering {
		return "", domain.ErrWrongPhase
	}
	if s.question == nil || s.question.ID != questionID {
		return "", domain.ErrQuestionNotFound
	}
	now := s.clock.Now()
	if !now.Before(s.timer.deadline) {
		// The expiry is already queued behind this request.
		return "", domain.ErrAnswerWindowClosed
	}

	s.timer.stop()
	q := *s.question
	answer := &domain.Answer{
		ID:          uuid.NewString(),
		QuestionID:  q.ID,
		TeamID:      team.ID,
		Round:       s.round,
		Value:       value,
		SubmittedAt: now,
	}
	details := domain.AnswerDetailsPayload{
		TeamRef:       teamRef(team),
		AnswerID:      answer.ID,
		QuestionID:    q.ID,
		QuestionType:  q.Type,
		Value:         value,
		CorrectAnswer: q.CorrectAnswerText(),
	}
	if q.Type == domain.MCQ {
		verdict := q.CheckMCQ(value)
		answer.AutoVerdict = &verdict
		details.AutoGraded = true
		details.AutoIsCorrect = verdict
		details.AutoPoints, _ = Points(q.Difficulty, verdict, 0)
	}
	s.answer = answer
	s.answers = append(s.answers, answer)
	s.phase = domain.PhaseGrading
	s.turnState = domain.TurnPendingGrading

	s.emit(domain.EventAnswerSubmitted, domain.AudienceAll, domain.AnswerSubmittedPayload{TeamRef: teamRef(team)}, nil)
	s.emit(domain.EventAnswerSubmittedDetails, domain.AudienceFacilitator, details, nil)
	s.closeWindow()
	return answer.ID, nil
}

// closeWindow resolves the end of an answer window, whether it closed by
// submission or by expiry.
func (s *Session) closeWindow() {
	switch {
	case s.answer == nil:
		return
	case s.answer.Unanswered:
		s.skipAvailable = true
		s.emit(domain.EventSkipAvailable, domain.AudienceFacilitator, domain.SkipAvailablePayload{
			TeamRef:  teamRef(s.activeTeam()),
			AnswerID: s.answer.ID,
		}, nil)
	case s.answer.AutoVerdict != nil && *s.answer.AutoVerdict:
		s.finalize(s.answer, true, 0, domain.SourceAuto)
	}
}

func (s *Session) timeUp() {
	if s.phase != domain.PhaseAnswering || s.question == nil {
		return
	}
	team := s.activeTeam()
	s.emit(domain.EventTimeUp, domain.AudienceAll, domain.TimeUpPayload{
		TeamRef:    teamRef(team),
		QuestionID: s.question.ID,
	}, nil)

	answer := &domain.Answer{
		ID:          uuid.NewString(),
		QuestionID:  s.question.ID,
		TeamID:      team.ID,
		Round:       s.round,
		Unanswered:  true,
		SubmittedAt: s.clock.Now(),
	}
	s.answer = answer
	s.answers = append(s.answers, answer)
	s.phase = domain.PhaseGrading
	s.turnState = domain.TurnPendingGrading
	s.closeWindow()
}

func (s *Session) diceTimedOut() {
	if s.phase != domain.PhaseRolling {
		return
	}
	s.emit(domain.EventDiceTimeout, domain.AudienceFacilitator, domain.DiceTimeoutPayload{
		TeamRef: teamRef(s.activeTeam()),
		Round:   s.round,
	}, nil)
}

func (s *Session) findAnswer(id string) *domain.Answer {
	for _, answer := range s.answers {
		if answer.ID == id {
			return answer
		}
	}
	return nil
}

func (s *Session) grade(actor domain.Actor, answerID string, correct bool, points int) (domain.Answer, error) {
	if err := requireFacilitator(actor); err != nil {
		return domain.Answer{}, err
	}
	if err := s.requireOpen(); err != nil {
		return domain.Answer{}, err
	}
	answer := s.findAnswer(answerID)
	if answer == nil {
		return domain.Answer{}, domain.ErrAnswerNotFound
	}
	if answer.Finalized {
		return domain.Answer{}, domain.ErrAlreadyGraded
	}
	if answer != s.answer || s.question == nil {
		return domain.Answer{}, domain.ErrWrongPhase
	}
	bonus, err := bonusFromPoints(s.question.Difficulty, correct, points)
	if err != nil {
		return domain.Answer{}, err
	}
	s.finalize(answer, correct, bonus, domain.SourceFacilitator)
	return *answer, nil
}

func (s *Session) skip(actor domain.Actor) (domain.Answer, error) {
	if err := requireFacilitator(actor); err != nil {
		return domain.Answer{}, err
	}
	if err := s.requireOpen(); err != nil {
		return domain.Answer{}, err
	}
	if s.phase != domain.PhaseGrading || s.answer == nil || !s.answer.Unanswered || s.answer.Finalized {
		return domain.Answer{}, domain.ErrNothingToSkip
	}
	answer := s.answer
	s.finalize(answer, false, 0, domain.SourceFacilitator)
	return *answer, nil
}

// finalize settles an answer exactly once, scores it and advances the turn.
func (s *Session) finalize(answer *domain.Answer, correct bool, bonus int, source domain.GradingSource) {
	difficulty := s.question.Difficulty
	points, err := Points(difficulty, correct, bonus)
	if err != nil {
		points = 0
	}
	answer.Correct = correct
	answer.Points = points
	answer.Source = source
	answer.Finalized = true
	answer.GradedAt = s.clock.Now()

	team := s.findTeam(answer.TeamID)
	team.Score += points
	team.Position = team.Score

	s.emit(domain.EventAnswerGraded, domain.AudienceAll, domain.AnswerGradedPayload{
		TeamRef:       teamRef(team),
		AnswerID:      answer.ID,
		IsCorrect:     correct,
		PointsAwarded: points,
		Source:        source,
		CorrectAnswer: s.question.CorrectAnswerText(),
	}, nil)
	s.rebuildLeaderboard()
	s.emit(domain.EventLeaderboardUpdate, domain.AudienceAll, s.leaderboard, nil)
	s.resolveTurn()
}

func (s *Session) hop(actor domain.Actor) error {
	if err := requireFacilitator(actor); err != nil {
		return err
	}
	if err := s.requireOpen(); err != nil {
		return err
	}
	if s.phase == domain.PhaseLobby || s.phase == domain.PhaseAwaitingFinish {
		return domain.ErrWrongPhase
	}

	team := s.activeTeam()
	s.timer.stop()
	s.emit(domain.EventTurnSkipped, domain.AudienceAll, domain.TurnSkippedPayload{
		TeamRef: teamRef(team),
		Round:   s.round,
	}, nil)
	log.Printf("[session %s] facilitator hopped turn of %q in round %d", s.code, team.Name, s.round)
	if s.answer != nil && !s.answer.Finalized {
		s.finalize(s.answer, false, 0, domain.SourceFacilitator)
		return nil
	}
	s.resolveTurn()
	return nil
}

func (s *Session) resolveTurn() {
	team := s.activeTeam()
	team.ResolvedTurns++
	s.resolvedTurns++
	s.turnState = domain.TurnResolved
	s.skipAvailable = false
	s.advance()
}

// advance moves the cursor forward in join order, opening the next round
// once every team has had its turn.
func (s *Session) advance() {
	s.timer.stop()
	s.slot++
	if s.slot >= len(s.teams) {
		s.slot = 0
		s.round++
	}
	if s.round > s.numRounds {
		s.round = s.numRounds
		s.phase = domain.PhaseAwaitingFinish
		s.turnState = ""
		s.dice = nil
		s.question = nil
		s.answer = nil
		s.poolExhausted = false
		return
	}
	s.beginTurn()
}

func (s *Session) finish(actor domain.Actor) (domain.FinalResults, error) {
	if err := requireFacilitator(actor); err != nil {
		return domain.FinalResults{}, err
	}
	if err := s.requireOpen(); err != nil {
		return domain.FinalResults{}, err
	}

	forced := s.phase != domain.PhaseAwaitingFinish
	s.timer.stop()
	s.status = domain.StatusCompleted
	s.phase = domain.PhaseCompleted
	s.turnState = ""
	s.skipAvailable = false
	s.poolExhausted = false
	s.rebuildLeaderboard()

	winners := s.leaderboard.Winners()
	s.emit(domain.EventGameEnded, domain.AudienceAll, domain.GameEndedPayload{
		Winners:     winners,
		Leaderboard: s.leaderboard,
		Forced:      forced,
	}, nil)

	answers := make([]domain.Answer, 0, len(s.answers))
	for _, answer := range s.answers {
		answers = append(answers, *answer)
	}
	return domain.FinalResults{
		SessionID:   s.id,
		RoomCode:    s.code,
		QuizID:      s.quizID,
		Winners:     winners,
		Leaderboard: s.leaderboard,
		Answers:     answers,
		CompletedAt: s.clock.Now(),
	}, nil
}

func (s *Session) rebuildLeaderboard() {
	teams := make([]domain.Team, 0, len(s.teams))
	for _, team := range s.teams {
		teams = append(teams, *team)
	}
	s.leaderboard = BuildLeaderboard(s.id, teams, s.clock.Now())
}

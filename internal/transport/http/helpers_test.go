package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"quiz-arena-service/internal/app"
	"quiz-arena-service/internal/domain"
	"quiz-arena-service/internal/infra/memory"
)

const launchKey = "launch-key"

type testServer struct {
	*httptest.Server
	service  *app.GameService
	registry *app.Registry
}

// newTestServer mounts both transports over in-memory infrastructure with
// dice pinned to 2 and the pool kept in authored order.
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	registry := app.NewRegistry(memory.NewSessionStore(), nil, time.Minute)
	service := app.NewGameService(
		registry,
		memory.NewQuizRepository(memory.NewStaticQuizLoader(sampleQuiz()), time.Minute),
		memory.NewResultArchive(),
		app.FacilitatorKeys{launchKey},
		app.SessionConfig{
			Dice:    func() int { return 2 },
			Shuffle: func(int, func(i, j int)) {},
		},
	)

	mux := http.NewServeMux()
	NewAPIHandler(service).Register(mux)
	mux.HandleFunc("/ws", NewWSHandler(service).ServeWS)
	server := httptest.NewServer(mux)
	t.Cleanup(func() {
		server.Close()
		registry.Shutdown(context.Background())
	})
	return &testServer{Server: server, service: service, registry: registry}
}

// launchWithTeams opens a lobby and joins the named teams.
func (s *testServer) launchWithTeams(t *testing.T, names ...string) (domain.LaunchedSession, []domain.Team) {
	t.Helper()
	ctx := context.Background()
	launched, err := s.service.Launch(ctx, launchKey, app.LaunchRequest{QuizID: "quiz-1"})
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	teams := make([]domain.Team, 0, len(names))
	for _, name := range names {
		team, err := s.service.JoinTeam(ctx, launched.RoomCode, name)
		if err != nil {
			t.Fatalf("join %s: %v", name, err)
		}
		teams = append(teams, team)
	}
	return launched, teams
}

func sampleQuiz() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:        "quiz-1",
			Name:      "Capitals",
			NumTeams:  2,
			NumRounds: 1,
			Questions: []domain.Question{
				{
					ID:         "q1",
					Prompt:     "Capital of France?",
					Type:       domain.MCQ,
					Difficulty: domain.Easy,
					TimeLimit:  30,
					Options: []domain.Option{
						{Key: "A", Text: "Lyon"},
						{Key: "B", Text: "Paris"},
						{Key: "C", Text: "Nice"},
					},
					CorrectKey: "B",
				},
				{
					ID:          "q2",
					Prompt:      "Longest river in Africa?",
					Type:        domain.FillBlank,
					Difficulty:  domain.Medium,
					TimeLimit:   45,
					ModelAnswer: "Nile",
				},
			},
		},
	}
}

package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
	"quiz-arena-service/internal/app"
	"quiz-arena-service/internal/domain"
	pginfra "quiz-arena-service/internal/infra/postgres"
	pgmigrations "quiz-arena-service/internal/infra/postgres/migrations"
	infraredis "quiz-arena-service/internal/infra/redis"
)

func TestGameEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	db := openBun(pgURL)
	defer db.Close()
	seedQuiz(t, ctx, db, sampleQuiz())

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	loader := pginfra.NewQuizLoader(pool)

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	quizRepo := infraredis.NewQuizRepository(redisClient, loader, 5*time.Minute)
	sessionStore := infraredis.NewSessionStore(redisClient, 5*time.Minute)
	archive := pginfra.NewResultArchive(db)
	registry := app.NewRegistry(sessionStore, nil, time.Minute)
	defer registry.Shutdown(ctx)
	service := app.NewGameService(registry, quizRepo, archive, nil, app.SessionConfig{
		Dice:    func() int { return 2 },
		Shuffle: func(int, func(i, j int)) {},
	})

	launched, err := service.Launch(ctx, "", app.LaunchRequest{QuizID: "quiz-1"})
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	room := launched.RoomCode
	if n, err := redisClient.Exists(ctx, "quiz:room:"+room).Result(); err != nil || n != 1 {
		t.Fatalf("expected room reservation in redis, got %d %v", n, err)
	}

	host := domain.Facilitator()
	var teams []domain.Team
	for _, name := range []string{"Red", "Blue"} {
		team, err := service.JoinTeam(ctx, room, name)
		if err != nil {
			t.Fatalf("join %s: %v", name, err)
		}
		teams = append(teams, team)
	}
	red, blue := domain.Player(teams[0].ID), domain.Player(teams[1].ID)
	if err := service.StartGame(ctx, room, host); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Red: Easy MCQ, auto-graded.
	if _, err := service.RollDice(ctx, room, red); err != nil {
		t.Fatalf("red roll: %v", err)
	}
	q, err := service.ServeQuestion(ctx, room, host)
	if err != nil {
		t.Fatalf("serve: %v", err)
	}
	if q.ID != "q1" {
		t.Fatalf("expected Easy q1 first, got %s", q.ID)
	}
	if _, err := service.SubmitAnswer(ctx, room, red, q.ID, "B"); err != nil {
		t.Fatalf("red submit: %v", err)
	}

	// Blue: Medium fill-in, graded by the facilitator with the bonus point.
	if _, err := service.RollDice(ctx, room, blue); err != nil {
		t.Fatalf("blue roll: %v", err)
	}
	q, err = service.ServeQuestion(ctx, room, host)
	if err != nil {
		t.Fatalf("serve: %v", err)
	}
	answerID, err := service.SubmitAnswer(ctx, room, blue, q.ID, "the nile")
	if err != nil {
		t.Fatalf("blue submit: %v", err)
	}
	if _, err := service.GradeAnswer(ctx, room, host, answerID, true, 3); err != nil {
		t.Fatalf("grade: %v", err)
	}

	results, err := service.FinishGame(ctx, room, host)
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if len(results.Winners) != 1 || results.Winners[0].TeamID != teams[1].ID {
		t.Fatalf("expected Blue to win, got %+v", results.Winners)
	}

	stored, err := archive.LoadResults(ctx, launched.SessionID)
	if err != nil {
		t.Fatalf("load results: %v", err)
	}
	if stored.RoomCode != room || len(stored.Answers) != 2 {
		t.Fatalf("unexpected archived results %+v", stored)
	}
	if stored.Leaderboard.Entries[0].Score != 3 || stored.Leaderboard.Entries[1].Score != 2 {
		t.Fatalf("unexpected archived leaderboard %+v", stored.Leaderboard.Entries)
	}

	if err := service.Teardown(ctx, room, host); err != nil {
		t.Fatalf("teardown: %v", err)
	}
	if n, _ := redisClient.Exists(ctx, "quiz:room:"+room).Result(); n != 0 {
		t.Fatalf("expected room reservation released")
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func openBun(dsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

func seedQuiz(t *testing.T, ctx context.Context, db *bun.DB, quiz domain.Quiz) {
	t.Helper()
	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	if _, err := db.ExecContext(ctx, `INSERT INTO quizzes (id, name, num_teams, num_rounds) VALUES (?, ?, ?, ?)`,
		quiz.ID, quiz.Name, quiz.NumTeams, quiz.NumRounds); err != nil {
		t.Fatalf("insert quiz: %v", err)
	}
	for i, q := range quiz.Questions {
		var options any
		if len(q.Options) > 0 {
			data, err := json.Marshal(q.Options)
			if err != nil {
				t.Fatalf("marshal options: %v", err)
			}
			options = string(data)
		}
		if _, err := db.ExecContext(ctx, `
			INSERT INTO questions (id, quiz_id, position, prompt, type, difficulty, time_limit, options, correct_key, model_answer)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?::jsonb, ?, ?)`,
			q.ID, quiz.ID, i, q.Prompt, string(q.Type), string(q.Difficulty), q.TimeLimit, options, q.CorrectKey, q.ModelAnswer); err != nil {
			t.Fatalf("insert question %s: %v", q.ID, err)
		}
	}
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:        "quiz-1",
		Name:      "Geography",
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
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}

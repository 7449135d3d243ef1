package cli

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"golang.org/x/sync/errgroup"
	"quiz-arena-service/internal/app"
	"quiz-arena-service/internal/config"
	"quiz-arena-service/internal/domain"
	"quiz-arena-service/internal/infra/memory"
	pgstore "quiz-arena-service/internal/infra/postgres"
	redisstore "quiz-arena-service/internal/infra/redis"
	transport "quiz-arena-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the game server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	var (
		pool *pgxpool.Pool
		db   *bun.DB
	)
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		db = bun.NewDB(sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL))), pgdialect.New())
		defer db.Close()
	}

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	if pool != nil {
		loader = pgstore.NewQuizLoader(pool)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	if redisClient != nil {
		quizRepo = redisstore.NewQuizRepository(redisClient, loader, quizTTL)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
	}

	var archive app.ResultArchive = memory.NewResultArchive()
	if db != nil {
		archive = pgstore.NewResultArchive(db)
	}

	var (
		store      app.SessionRepository
		redisRooms *redisstore.SessionStore
	)
	if redisClient != nil {
		redisRooms = redisstore.NewSessionStore(redisClient, redisTTL)
		store = redisRooms
	} else {
		store = memory.NewSessionStore()
	}

	if len(cfg.Auth.FacilitatorKeys) == 0 {
		log.Printf("no facilitator keys configured; anyone may launch sessions")
	}
	registry := app.NewRegistry(store, nil, config.TTLDuration(cfg.Game.Retention, app.DefaultRetention)).
		WithIdleTimeout(config.TTLDuration(cfg.Game.IdleTimeout, app.DefaultIdleTimeout))
	service := app.NewGameService(registry, quizRepo, archive, app.FacilitatorKeys(cfg.Auth.FacilitatorKeys), app.SessionConfig{
		DiceWindow:       config.TTLDuration(cfg.Game.DiceWindow, app.DefaultDiceWindow),
		AutoServe:        cfg.Game.AutoServe,
		SubscriberBuffer: cfg.Game.SubscriberBuffer,
	})

	sched, err := startMaintenance(service, redisRooms, config.TTLDuration(cfg.Game.SweepInterval, time.Minute))
	if err != nil {
		return err
	}
	defer func() {
		if err := sched.Shutdown(); err != nil {
			log.Printf("scheduler shutdown: %v", err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", transport.NewWSHandler(service).ServeWS)
	transport.NewAPIHandler(service).Register(mux)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("starting game service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		registry.Shutdown(shutdownCtx)
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// sampleQuizzes provides a playable demo pool; Postgres replaces it when configured.
func sampleQuizzes() map[string]domain.Quiz {
	mcq := func(id, prompt string, d domain.Difficulty, correct string, options ...string) domain.Question {
		q := domain.Question{ID: id, Prompt: prompt, Type: domain.MCQ, Difficulty: d, TimeLimit: 30, CorrectKey: correct}
		for i, text := range options {
			q.Options = append(q.Options, domain.Option{Key: string(rune('A' + i)), Text: text})
		}
		return q
	}
	open := func(id, prompt string, d domain.Difficulty, t domain.QuestionType, answer string) domain.Question {
		return domain.Question{ID: id, Prompt: prompt, Type: t, Difficulty: d, TimeLimit: 45, ModelAnswer: answer}
	}

	return map[string]domain.Quiz{
		"demo": {
			ID:        "demo",
			Name:      "Demo night",
			NumTeams:  2,
			NumRounds: 2,
			Questions: []domain.Question{
				mcq("e1", "What is 2 + 2?", domain.Easy, "B", "3", "4", "5"),
				mcq("e2", "Capital of France?", domain.Easy, "C", "Lyon", "Nice", "Paris"),
				open("m1", "The chemical symbol for gold is __.", domain.Medium, domain.FillBlank, "Au"),
				mcq("m2", "Which planet is known as the red planet?", domain.Medium, "A", "Mars", "Venus", "Jupiter"),
				open("h1", "Name the longest river in Africa.", domain.Hard, domain.FillBlank, "Nile"),
				mcq("h2", "In which year did the Berlin Wall fall?", domain.Hard, "B", "1987", "1989", "1991"),
				open("i1", "Explain why the sky is blue.", domain.Insane, domain.OpenEnded, "Rayleigh scattering of shorter wavelengths"),
				open("i2", "State Fermat's last theorem.", domain.Insane, domain.OpenEnded, "No a^n + b^n = c^n for integers n > 2"),
			},
		},
	}
}

package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"quiz-session-runner/internal/app"
	"quiz-session-runner/internal/config"
	"quiz-session-runner/internal/domain"
	"quiz-session-runner/internal/infra/memory"
	pgstore "quiz-session-runner/internal/infra/postgres"
	"quiz-session-runner/internal/infra/rabbit"
	redisstore "quiz-session-runner/internal/infra/redis"
	"quiz-session-runner/internal/infra/remote"
	"quiz-session-runner/internal/infra/sqlite"
	"quiz-session-runner/internal/logging"
	transport "quiz-session-runner/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz session server",
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
	log := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
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
	idleTTL := config.TTLDuration(cfg.Session.IdleTTL, 30*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	loader, client := quizSource(cfg, pool)

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	if redisClient != nil {
		quizRepo = redisstore.NewQuizRepository(redisClient, loader, quizTTL)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
	}

	var store sessionStore
	if redisClient != nil {
		store = redisstore.NewSessionStore(redisClient, idleTTL)
	} else {
		store = memory.NewSessionStore(memory.WithIdleTTL(idleTTL))
	}
	janitorCtx, stopJanitor := context.WithCancel(ctx)
	defer stopJanitor()
	go store.Run(janitorCtx, time.Minute)

	var attempts app.AttemptStore
	switch {
	case pool != nil:
		attempts = pgstore.NewAttemptStore(pool)
	case cfg.SQLite.Path != "":
		db, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			return err
		}
		defer db.Close()
		attempts = db
	default:
		attempts = memory.NewAttemptStore()
	}

	opts := []app.ServiceOption{app.WithLogger(log)}
	if client != nil {
		opts = append(opts, app.WithRegistrar(client))
	}
	if cfg.RabbitMQ.URL != "" {
		publisher, err := rabbit.Dial(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange)
		if err != nil {
			return err
		}
		defer publisher.Close()
		opts = append(opts, app.WithPublisher(publisher))
	}

	service := app.NewSessionService(quizRepo, store, attempts, opts...)
	router := transport.NewRouter(
		transport.NewAPI(service, log),
		transport.NewWSHandler(service, log),
		log,
	)

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
	}

	go func() {
		log.WithField("port", finalPort).Info("starting quiz session server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("server stopped")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server...")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sessionStore is a session repository that can evict idle sessions.
type sessionStore interface {
	app.SessionRepository
	Run(ctx context.Context, interval time.Duration)
}

// quizSource picks where quiz content comes from: the quiz API when configured,
// then Postgres, then the bundled samples. The client is nil unless the API is used.
func quizSource(cfg config.Config, pool *pgxpool.Pool) (memory.QuizLoader, *remote.Client) {
	if cfg.API.BaseURL != "" {
		client := newRemoteClient(cfg)
		return client, client
	}
	if pool != nil {
		return pgstore.NewQuizLoader(pool), nil
	}
	return memory.NewStaticQuizLoader(sampleQuizzes()), nil
}

func newRemoteClient(cfg config.Config) *remote.Client {
	return remote.NewClient(cfg.API.BaseURL,
		config.TTLDuration(cfg.API.Timeout, remote.DefaultTimeout),
		remote.WithToken(cfg.API.Token),
	)
}

// sampleQuizzes is the quiz set used when neither the quiz API nor Postgres is configured.
func sampleQuizzes() map[int64]domain.Quiz {
	ten, fifteen := 10, 15
	return map[int64]domain.Quiz{
		1: {
			ID:          1,
			Title:       "Warm-up",
			Description: "A few quick questions",
			IsPublic:    true,
			Questions: []domain.Question{
				{
					ID:         1,
					QuizID:     1,
					Text:       "What is 2 + 2?",
					Type:       domain.QuestionMultipleChoice,
					TimeLimit:  &fifteen,
					OrderIndex: 0,
					Answers: []domain.Answer{
						{ID: 1, QuestionID: 1, Text: "3"},
						{ID: 2, QuestionID: 1, Text: "4", IsCorrect: true},
						{ID: 3, QuestionID: 1, Text: "5"},
					},
				},
				{
					ID:         2,
					QuizID:     1,
					Text:       "The Earth orbits the Sun.",
					Type:       domain.QuestionTrueFalse,
					TimeLimit:  &ten,
					OrderIndex: 1,
					Answers: []domain.Answer{
						{ID: 4, QuestionID: 2, Text: "True", IsCorrect: true},
						{ID: 5, QuestionID: 2, Text: "False"},
					},
				},
				{
					ID:         3,
					QuizID:     1,
					Text:       "Name the largest ocean.",
					Type:       domain.QuestionShortAnswer,
					OrderIndex: 2,
				},
			},
		},
	}
}

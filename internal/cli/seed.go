package cli

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"quiz-session-runner/internal/config"
	"quiz-session-runner/internal/domain"
	pgstore "quiz-session-runner/internal/infra/postgres"
	"quiz-session-runner/internal/logging"
)

const catalogPage = 100

// quizCatalog is the part of the quiz API needed to mirror quizzes.
type quizCatalog interface {
	ListQuizzes(ctx context.Context, skip, limit int) ([]domain.Quiz, error)
	LoadQuiz(ctx context.Context, quizID int64) (domain.Quiz, error)
}

// NewSeedCmd copies quiz content into Postgres so the server can run without the quiz API.
func NewSeedCmd(configPath *string) *cobra.Command {
	var maxQuizzes int
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Copy quizzes from the quiz API (or the bundled samples) into Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Postgres.URL == "" {
				return fmt.Errorf("postgres url not configured")
			}
			log := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
			ctx := cmd.Context()

			if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
				return err
			}
			pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
			if err != nil {
				return err
			}
			defer pool.Close()

			var quizzes []domain.Quiz
			if cfg.API.BaseURL != "" {
				quizzes, err = fetchCatalog(ctx, newRemoteClient(cfg), maxQuizzes)
				if err != nil {
					return err
				}
			} else {
				for _, q := range sampleQuizzes() {
					quizzes = append(quizzes, q)
				}
			}

			store := pgstore.NewQuizLoader(pool)
			for _, quiz := range quizzes {
				if err := store.SaveQuiz(ctx, quiz); err != nil {
					return err
				}
				log.WithField("quiz_id", quiz.ID).WithField("questions", len(quiz.Questions)).Info("quiz seeded")
			}
			log.WithField("count", len(quizzes)).Info("seed complete")
			return nil
		},
	}
	cmd.Flags().IntVar(&maxQuizzes, "max", 0, "maximum number of quizzes to copy (0 = all)")
	return cmd
}

// fetchCatalog lists quizzes page by page and loads each with its questions.
func fetchCatalog(ctx context.Context, catalog quizCatalog, limit int) ([]domain.Quiz, error) {
	var ids []int64
	for skip := 0; ; skip += catalogPage {
		page, err := catalog.ListQuizzes(ctx, skip, catalogPage)
		if err != nil {
			return nil, fmt.Errorf("list quizzes: %w", err)
		}
		for _, q := range page {
			ids = append(ids, q.ID)
		}
		if len(page) < catalogPage || (limit > 0 && len(ids) >= limit) {
			break
		}
	}
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	quizzes := make([]domain.Quiz, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			quiz, err := catalog.LoadQuiz(gctx, id)
			if err != nil {
				return fmt.Errorf("load quiz %d: %w", id, err)
			}
			quizzes[i] = quiz
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Slice(quizzes, func(i, j int) bool { return quizzes[i].ID < quizzes[j].ID })
	return quizzes, nil
}

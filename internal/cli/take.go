package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"quiz-session-runner/internal/app"
	"quiz-session-runner/internal/auth"
	"quiz-session-runner/internal/config"
	"quiz-session-runner/internal/domain"
	"quiz-session-runner/internal/infra/memory"
	"quiz-session-runner/internal/infra/sqlite"
	"quiz-session-runner/internal/logging"
	"quiz-session-runner/internal/runner"
)

var errQuit = errors.New("quit")

const takeHelp = "commands: a <n> choose answer n, t <text> type an answer, n next, p previous, s submit, q quit"

// NewTakeCmd runs one quiz session in the terminal and stores the attempt in SQLite.
func NewTakeCmd(configPath *string) *cobra.Command {
	var (
		quizID int64
		user   string
	)
	cmd := &cobra.Command{
		Use:   "take",
		Short: "Take a quiz in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTake(cmd.Context(), *configPath, quizID, user, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().Int64Var(&quizID, "quiz", 0, "id of the quiz to take")
	cmd.Flags().StringVar(&user, "user", os.Getenv("USER"), "name recorded with the attempt")
	_ = cmd.MarkFlagRequired("quiz")
	return cmd
}

func runTake(ctx context.Context, configPath string, quizID int64, user string, in io.Reader, out io.Writer) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)

	id := auth.Identity{UserID: user, Username: user}
	if cfg.API.Token != "" {
		id, err = auth.FromToken(cfg.API.Token, time.Now())
		if err != nil {
			return err
		}
		id.Token = cfg.API.Token
	}
	if !id.Valid() {
		id = auth.Identity{UserID: "guest", Username: "guest"}
	}
	ctx = auth.ContextWithIdentity(ctx, id)

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	if cfg.API.BaseURL != "" {
		loader = newRemoteClient(cfg)
	}

	path := cfg.SQLite.Path
	if path == "" {
		path = "quiz-attempts.db"
	}
	attempts, err := sqlite.Open(path)
	if err != nil {
		return err
	}
	defer attempts.Close()

	service := app.NewSessionService(
		memory.NewQuizRepository(loader, config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)),
		memory.NewSessionStore(),
		attempts,
		app.WithLogger(log),
	)

	result, err := playSession(ctx, service, quizID, in, out)
	switch {
	case errors.Is(err, errQuit), errors.Is(err, domain.ErrNoQuestions):
		return nil
	case err != nil:
		return err
	}
	log.WithField("quiz_id", quizID).WithField("percentage", result.Percentage).Debug("attempt stored")
	return nil
}

// playSession is the terminal event loop: countdown snapshots and stdin
// commands are handled one at a time until the session is submitted or quit.
func playSession(ctx context.Context, service *app.SessionService, quizID int64, in io.Reader, out io.Writer) (domain.Result, error) {
	fmt.Fprintln(out, "Loading quiz...")
	session, snap, err := service.Start(ctx, quizID)
	if errors.Is(err, domain.ErrNoQuestions) {
		fmt.Fprintln(out, "No questions available for this quiz.")
		return domain.Result{}, err
	}
	if err != nil {
		return domain.Result{}, err
	}
	defer func() { _ = service.Close(context.WithoutCancel(ctx), session.ID) }()

	updates, cancel, err := service.Subscribe(ctx, session.ID)
	if err != nil {
		return domain.Result{}, err
	}
	defer cancel()

	lines := make(chan string)
	done := make(chan struct{})
	defer close(done)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- strings.TrimSpace(scanner.Text()):
			case <-done:
				return
			}
		}
	}()

	fmt.Fprintf(out, "%s\n%s\n", snap.QuizTitle, takeHelp)
	shown := snap
	renderQuestion(out, shown)

	// show refreshes from the session itself so queued snapshots never rewind the view.
	show := func() error {
		fresh, err := service.Snapshot(ctx, session.ID)
		if err != nil {
			return err
		}
		switch {
		case fresh.Position != shown.Position || fresh.State != shown.State:
			renderQuestion(out, fresh)
		case fresh.Expired && !shown.Expired:
			fmt.Fprintln(out, "Time is up. Submit with s.")
		case fresh.Remaining != nil && (shown.Remaining == nil || *fresh.Remaining != *shown.Remaining):
			fmt.Fprintf(out, "  %ds left\n", *fresh.Remaining)
		}
		shown = fresh
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return domain.Result{}, ctx.Err()
		case _, ok := <-updates:
			if !ok {
				return domain.Result{}, errQuit
			}
			if err := show(); err != nil {
				return domain.Result{}, err
			}
		case line, ok := <-lines:
			if !ok || line == "q" {
				fmt.Fprintln(out, "Session abandoned.")
				return domain.Result{}, errQuit
			}
			if line == "s" {
				result, err := service.Submit(ctx, session.ID)
				if errors.Is(err, domain.ErrNotOnLastQuestion) {
					fmt.Fprintln(out, "Answer the remaining questions first (n for next).")
					continue
				}
				if err != nil && !errors.Is(err, domain.ErrAlreadySubmitted) {
					return result, err
				}
				fmt.Fprintf(out, "Score: %d/%d (%d%%)\n", result.Correct, result.Total, result.Percentage)
				return result, nil
			}
			if err := runCommand(ctx, service, session.ID, line); err != nil {
				fmt.Fprintln(out, err)
				continue
			}
			if err := show(); err != nil {
				return domain.Result{}, err
			}
		}
	}
}

func runCommand(ctx context.Context, service *app.SessionService, sessionID string, line string) error {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	if cmd == "a" || cmd == "t" {
		return answerCommand(ctx, service, sessionID, cmd, arg)
	}
	switch cmd {
	case "n":
		_, err := service.Advance(ctx, sessionID)
		return err
	case "p":
		_, err := service.Retreat(ctx, sessionID)
		return err
	case "", "h", "?":
		return errors.New(takeHelp)
	default:
		return fmt.Errorf("unknown command %q; %s", cmd, takeHelp)
	}
}

// answerCommand answers whatever question is current now, which may differ from
// the one last printed if its countdown just ran out.
func answerCommand(ctx context.Context, service *app.SessionService, sessionID, cmd, arg string) error {
	snap, err := service.Snapshot(ctx, sessionID)
	if err != nil {
		return err
	}
	q := snap.Question
	if q == nil {
		return domain.ErrAlreadySubmitted
	}
	if cmd == "t" {
		if arg == "" {
			return errors.New("type an answer after t")
		}
		_, err = service.Answer(ctx, sessionID, q.ID, domain.TextResponse(arg))
		return err
	}
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > len(q.Answers) {
		return errors.New("pick an answer by its number")
	}
	_, err = service.Answer(ctx, sessionID, q.ID, domain.ChoiceResponse(q.Answers[n-1].ID))
	return err
}

func renderQuestion(out io.Writer, snap runner.Snapshot) {
	q := snap.Question
	if q == nil {
		return
	}
	timer := "no time limit"
	if snap.Remaining != nil {
		timer = fmt.Sprintf("%ds", *snap.Remaining)
	}
	fmt.Fprintf(out, "\nQuestion %d/%d [%s]\n%s\n", snap.Position, snap.Total, timer, q.Text)
	if !q.Type.IsChoice() {
		fmt.Fprintln(out, "  (t <your answer>)")
		return
	}
	chosen := snap.Responses[q.ID]
	for i, a := range q.Answers {
		mark := " "
		if chosen.AnswerID == a.ID {
			mark = "*"
		}
		fmt.Fprintf(out, " %s%d) %s\n", mark, i+1, a.Text)
	}
}

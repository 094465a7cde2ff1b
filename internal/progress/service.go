package progress

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/victornm/greensafari/internal/domain"
	"github.com/victornm/greensafari/internal/store"
)

// attemptWindow is how many of the latest challenge attempts are read to compute stats.
const attemptWindow = 30

type Store interface {
	ListProgress(ctx context.Context, userID string) ([]domain.QuizProgress, error)
	UpsertProgress(ctx context.Context, p domain.QuizProgress) error
	ListChallengeAttempts(ctx context.Context, userID string, limit int) ([]domain.ChallengeAttempt, error)
}

type Config struct {
	Store Store
	Now   func() time.Time
}

type Service struct {
	store Store
	now   func() time.Time
}

func NewService(c Config) *Service {
	s := &Service{
		store: c.Store,
		now:   c.Now,
	}

	if s.now == nil {
		s.now = time.Now
	}

	return s
}

// Stats summarizes a user's quizzes and daily challenges. Storage errors degrade to zero values.
func (s *Service) Stats(ctx context.Context, userID string) domain.UserStats {
	var stats domain.UserStats

	progress, err := s.store.ListProgress(ctx, userID)
	if err != nil {
		logReadError(ctx, "user_progress", err)
		return stats
	}

	stats.TotalQuizzes = len(progress)
	for _, p := range progress {
		if p.Completed {
			stats.CompletedQuizzes++
		}
	}

	attempts, err := s.store.ListChallengeAttempts(ctx, userID, attemptWindow)
	if err != nil {
		logReadError(ctx, "user_daily_challenges", err)
		if store.IsMissingTable(err) {
			return stats
		}
		return domain.UserStats{}
	}

	for _, a := range attempts {
		if a.Correct {
			stats.CorrectAnswers++
		}
	}
	stats.Streak = Streak(attempts, s.now())

	return stats
}

// Streak returns the user's current daily challenge streak, 0 when it cannot be read.
func (s *Service) Streak(ctx context.Context, userID string) int {
	attempts, err := s.store.ListChallengeAttempts(ctx, userID, attemptWindow)
	if err != nil {
		logReadError(ctx, "user_daily_challenges", err)
		return 0
	}

	return Streak(attempts, s.now())
}

type RecordQuizRequest struct {
	UserID    string
	QuizID    string
	Completed bool
	Score     int
}

// RecordQuiz saves a quiz result. Failures are logged and otherwise ignored.
func (s *Service) RecordQuiz(ctx context.Context, req RecordQuizRequest) {
	err := s.store.UpsertProgress(ctx, domain.QuizProgress{
		UserID:      req.UserID,
		QuizID:      req.QuizID,
		Completed:   req.Completed,
		Score:       req.Score,
		LastAttempt: s.now().UTC(),
	})
	if err != nil {
		slog.WarnContext(ctx, "progress: record quiz failed",
			"user_id", req.UserID,
			"quiz_id", req.QuizID,
			"error", err,
		)
	}
}

// Streak counts the consecutive calendar days, ending on the day of now, that have at least one attempt.
// There is no streak when nothing was attempted on the day of now.
func Streak(attempts []domain.ChallengeAttempt, now time.Time) int {
	days := make(map[time.Time]struct{}, len(attempts))
	for _, a := range attempts {
		days[domain.Day(a.Date)] = struct{}{}
	}

	streak := 0
	for d := domain.Day(now); ; d = d.AddDate(0, 0, -1) {
		if _, ok := days[d]; !ok {
			return streak
		}
		streak++
	}
}

func logReadError(ctx context.Context, table string, err error) {
	switch {
	case stderrors.Is(err, store.ErrNotConfigured):
		slog.DebugContext(ctx, "progress: database not configured")
	case store.IsMissingTable(err):
		slog.InfoContext(ctx, "progress: table does not exist", "table", table)
	default:
		slog.ErrorContext(ctx, "progress: read failed", "table", table, "error", err)
	}
}

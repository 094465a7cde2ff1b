package challenge

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/victornm/greensafari/internal/domain"
	"github.com/victornm/greensafari/internal/errors"
	"github.com/victornm/greensafari/internal/event"
	"github.com/victornm/greensafari/internal/store"
)

// fallbackTopics are used when the daily list is empty.
var fallbackTopics = []string{"Wildlife", "Geography", "History", "Culture", "Fun Facts"}

type Store interface {
	GetDailyChallenge(ctx context.Context, date time.Time) (*domain.DailyChallenge, error)
	InsertDailyChallenge(ctx context.Context, c *domain.DailyChallenge) error
	InsertChallengeAttempt(ctx context.Context, a domain.ChallengeAttempt) error
}

type Generator interface {
	Generate(ctx context.Context, topic string) domain.QuizQuestion
}

type Streaker interface {
	Streak(ctx context.Context, userID string) int
}

type Config struct {
	EventBus  *event.Bus
	Store     Store
	Generator Generator
	Streaker  Streaker
	// Daily is the list the challenge of the day is picked from.
	Daily []domain.QuizQuestion
	Now   func() time.Time
}

type Service struct {
	eb        *event.Bus
	store     Store
	generator Generator
	streaker  Streaker
	daily     []domain.QuizQuestion
	now       func() time.Time
}

func NewService(c Config) *Service {
	s := &Service{
		eb:        c.EventBus,
		store:     c.Store,
		generator: c.Generator,
		streaker:  c.Streaker,
		daily:     c.Daily,
		now:       c.Now,
	}

	if s.now == nil {
		s.now = time.Now
	}

	return s
}

// Today returns the challenge of the current day, creating and storing it on first use.
// The same question is returned all day once it has been stored. Storage failures never reach the caller:
// the freshly picked challenge is returned without being persisted.
func (s *Service) Today(ctx context.Context) domain.DailyChallenge {
	now := s.now()

	existing, err := s.store.GetDailyChallenge(ctx, now)
	switch {
	case err == nil:
		return *existing
	case stderrors.Is(err, store.ErrNotConfigured):
		return s.candidate(ctx, now)
	case errors.Is(err, errors.CodeNotFound):
	case store.IsMissingTable(err):
		slog.InfoContext(ctx, "challenge: daily_challenges table does not exist")
	default:
		slog.ErrorContext(ctx, "challenge: get daily challenge failed", "error", err)
	}

	c := s.candidate(ctx, now)

	err = s.store.InsertDailyChallenge(ctx, &c)
	switch {
	case err == nil:
		slog.InfoContext(ctx, "challenge: daily challenge created",
			"challenge_id", c.ChallengeID,
			"date", c.Date.Format(time.DateOnly),
		)
	case store.IsUniqueViolation(err):
		// Another request stored the challenge of the day first.
		if winner, err := s.store.GetDailyChallenge(ctx, now); err == nil {
			return *winner
		}
	case store.IsMissingTable(err):
		slog.InfoContext(ctx, "challenge: daily challenge not persisted, table does not exist")
	default:
		slog.ErrorContext(ctx, "challenge: store daily challenge failed", "error", err)
	}

	return c
}

// Random returns a challenge picked at random, not tied to the current day.
func (s *Service) Random(ctx context.Context) domain.DailyChallenge {
	var q domain.QuizQuestion
	if len(s.daily) > 0 {
		q = s.daily[rand.IntN(len(s.daily))]
	} else {
		q = s.generator.Generate(ctx, fallbackTopics[rand.IntN(len(fallbackTopics))])
	}

	id := newID()
	q.ID = id

	return domain.DailyChallenge{
		QuizQuestion: q,
		ChallengeID:  id,
		Date:         domain.Day(s.now()),
		IsDaily:      false,
	}
}

type SubmitRequest struct {
	// UserID may be empty for anonymous players, whose attempts are not recorded.
	UserID  string
	Country string
	Answer  string
	// CorrectAnswer is only used for anonymous players, e.g. answering a random challenge.
	// Answers of known users are always checked against today's challenge.
	CorrectAnswer string
}

type SubmitResponse struct {
	Correct       bool
	CorrectAnswer string
	Streak        int
	XP            decimal.Decimal
	// AlreadyAnswered is set when the user answered today's challenge before. No XP is awarded again.
	AlreadyAnswered bool
}

// Submit checks an answer to the daily challenge and records the attempt.
// Only the first attempt of a user on a day earns XP and is published.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*SubmitResponse, error) {
	if req.Answer == "" {
		return nil, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("answer is required"))
	}

	now := s.now()

	if req.UserID == "" {
		correctAnswer := req.CorrectAnswer
		if correctAnswer == "" {
			correctAnswer = s.Today(ctx).CorrectAnswer
		}
		correct := req.Answer == correctAnswer

		return &SubmitResponse{
			Correct:       correct,
			CorrectAnswer: correctAnswer,
			XP:            domain.ChallengeXP(correct, 0),
		}, nil
	}

	correctAnswer := s.Today(ctx).CorrectAnswer
	correct := req.Answer == correctAnswer

	resp := &SubmitResponse{
		Correct:       correct,
		CorrectAnswer: correctAnswer,
	}

	err := s.store.InsertChallengeAttempt(ctx, domain.ChallengeAttempt{
		UserID:  req.UserID,
		Date:    now,
		Correct: correct,
	})
	switch {
	case err == nil, stderrors.Is(err, store.ErrNotConfigured):
	case store.IsUniqueViolation(err):
		resp.AlreadyAnswered = true
		resp.Streak = max(s.streaker.Streak(ctx, req.UserID), 1)
		resp.XP = decimal.Zero
		return resp, nil
	default:
		slog.WarnContext(ctx, "challenge: store attempt failed",
			"user_id", req.UserID,
			"error", err,
		)
	}

	// The attempt just made counts even if it could not be stored.
	resp.Streak = max(s.streaker.Streak(ctx, req.UserID), 1)
	resp.XP = domain.ChallengeXP(correct, resp.Streak)

	s.eb.Publish(ctx, domain.EventChallengeSubmitted{
		UserID:     req.UserID,
		Country:    req.Country,
		Correct:    correct,
		Streak:     resp.Streak,
		XP:         resp.XP,
		SubmitTime: now,
	})

	return resp, nil
}

func (s *Service) candidate(ctx context.Context, now time.Time) domain.DailyChallenge {
	var q domain.QuizQuestion
	if len(s.daily) > 0 {
		q = s.daily[now.UTC().YearDay()%len(s.daily)]
	} else {
		q = s.generator.Generate(ctx, fallbackTopics[rand.IntN(len(fallbackTopics))])
	}

	id := newID()
	q.ID = id

	return domain.DailyChallenge{
		QuizQuestion: q,
		ChallengeID:  id,
		Date:         domain.Day(now),
		IsDaily:      true,
	}
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Sprintf("challenge-%d", time.Now().UnixNano())
	}

	return id.String()
}

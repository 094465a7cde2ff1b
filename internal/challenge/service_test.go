package challenge_test

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/victornm/greensafari/internal/bank"
	"github.com/victornm/greensafari/internal/challenge"
	"github.com/victornm/greensafari/internal/domain"
	"github.com/victornm/greensafari/internal/errors"
	"github.com/victornm/greensafari/internal/event"
	"github.com/victornm/greensafari/internal/store"
)

var (
	now = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

	nile = domain.QuizQuestion{
		Question:      "Which is the longest river in Africa?",
		Options:       []string{"Nile", "Congo", "Niger", "Zambezi"},
		CorrectAnswer: "Nile",
		Explanation:   "The Nile flows about 6,650 km to the Mediterranean.",
		Topic:         "Geography",
	}
)

func TestService_Today(t *testing.T) {
	tests := map[string]struct {
		store  *fakeStore
		assert func(t *testing.T, s *challenge.Service, fs *fakeStore)
	}{
		"should return the same challenge twice once it is stored": {
			store: newFakeStore(),
			assert: func(t *testing.T, s *challenge.Service, fs *fakeStore) {
				first := s.Today(context.Background())
				second := s.Today(context.Background())

				require.Equal(t, first, second)
				require.True(t, first.IsDaily)
				require.Equal(t, domain.Day(now), first.Date)
				require.Equal(t, 1, fs.inserts)
			},
		},
		"should pick the daily question by day of year": {
			store: newFakeStore(),
			assert: func(t *testing.T, s *challenge.Service, _ *fakeStore) {
				daily := bank.Default().Daily()
				want := daily[now.YearDay()%len(daily)]

				got := s.Today(context.Background())
				require.Equal(t, want.Question, got.Question)
				require.Equal(t, want.CorrectAnswer, got.CorrectAnswer)
			},
		},
		"should return an unpersisted challenge when the table is missing": {
			store: &fakeStore{
				getErr:    &pgconn.PgError{Code: "42P01", Message: `relation "daily_challenges" does not exist`},
				insertErr: &pgconn.PgError{Code: "42P01", Message: `relation "daily_challenges" does not exist`},
			},
			assert: func(t *testing.T, s *challenge.Service, _ *fakeStore) {
				first := s.Today(context.Background())
				second := s.Today(context.Background())

				require.True(t, first.HasAnswer())
				require.Equal(t, first.Question, second.Question, "the day still selects the same question")
			},
		},
		"should return the stored winner on a unique violation": {
			store: func() *fakeStore {
				fs := newFakeStore()
				fs.raceWinner = &domain.DailyChallenge{
					QuizQuestion: domain.QuizQuestion{
						Question:      "Winner?",
						Options:       []string{"A", "B", "C", "D"},
						CorrectAnswer: "A",
					},
					ChallengeID: "winner",
					Date:        domain.Day(now),
					IsDaily:     true,
				}
				return fs
			}(),
			assert: func(t *testing.T, s *challenge.Service, _ *fakeStore) {
				got := s.Today(context.Background())
				require.Equal(t, "winner", got.ChallengeID)
			},
		},
		"should not touch the database when it is not configured": {
			store: &fakeStore{getErr: store.ErrNotConfigured, insertErr: stderrors.New("must not be called")},
			assert: func(t *testing.T, s *challenge.Service, fs *fakeStore) {
				got := s.Today(context.Background())
				require.True(t, got.HasAnswer())
				require.Equal(t, 0, fs.inserts)
			},
		},
		"should not fail on an unexpected storage error": {
			store: &fakeStore{getErr: stderrors.New("connection refused"), insertErr: stderrors.New("connection refused")},
			assert: func(t *testing.T, s *challenge.Service, _ *fakeStore) {
				got := s.Today(context.Background())
				require.True(t, got.HasAnswer())
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			s := makeService(t, tt.store)
			tt.assert(t, s, tt.store)
		})
	}
}

func TestService_Random(t *testing.T) {
	s := makeService(t, newFakeStore())

	got := s.Random(context.Background())
	require.False(t, got.IsDaily)
	require.True(t, got.HasAnswer())
	require.NotEmpty(t, got.ChallengeID)
}

func TestService_Submit(t *testing.T) {
	type outputs struct {
		resp   *challenge.SubmitResponse
		err    error
		events []domain.EventChallengeSubmitted
		store  *fakeStore
	}

	tests := map[string]struct {
		req    challenge.SubmitRequest
		streak int
		assert func(t *testing.T, out outputs)
	}{
		"should score a correct answer with the streak multiplier": {
			req:    challenge.SubmitRequest{UserID: "u1", Country: "Kenya", Answer: "Nile"},
			streak: 3,
			assert: func(t *testing.T, out outputs) {
				require.NoError(t, out.err)
				require.True(t, out.resp.Correct)
				require.Equal(t, 3, out.resp.Streak)
				require.Equal(t, "13", out.resp.XP.String())

				require.Len(t, out.store.attempts, 1)
				require.True(t, out.store.attempts[0].Correct)

				require.Len(t, out.events, 1)
				require.Equal(t, "Kenya", out.events[0].Country)
				require.Equal(t, "13", out.events[0].XP.String())
			},
		},
		"should not award XP for a wrong answer": {
			req:    challenge.SubmitRequest{UserID: "u1", Answer: "Congo"},
			streak: 2,
			assert: func(t *testing.T, out outputs) {
				require.NoError(t, out.err)
				require.False(t, out.resp.Correct)
				require.Equal(t, "Nile", out.resp.CorrectAnswer)
				require.True(t, out.resp.XP.IsZero())
			},
		},
		"should check known users against today's challenge": {
			req:    challenge.SubmitRequest{UserID: "u1", Answer: "Congo", CorrectAnswer: "Congo"},
			streak: 2,
			assert: func(t *testing.T, out outputs) {
				require.False(t, out.resp.Correct)
				require.Equal(t, "Nile", out.resp.CorrectAnswer)
				require.True(t, out.resp.XP.IsZero())
				require.Len(t, out.events, 1)
				require.True(t, out.events[0].XP.IsZero())
			},
		},
		"should count today's attempt even when it could not be stored": {
			req:    challenge.SubmitRequest{UserID: "u1", Answer: "Nile"},
			streak: 0,
			assert: func(t *testing.T, out outputs) {
				require.Equal(t, 1, out.resp.Streak)
				require.Equal(t, "11", out.resp.XP.String())
			},
		},
		"should use the answer key of anonymous players": {
			req: challenge.SubmitRequest{Answer: "Congo", CorrectAnswer: "Congo"},
			assert: func(t *testing.T, out outputs) {
				require.True(t, out.resp.Correct)
				require.Empty(t, out.store.attempts)
				require.Empty(t, out.events)
				require.Equal(t, "10", out.resp.XP.String())
			},
		},
		"should compare anonymous answers with today's challenge without answer key": {
			req: challenge.SubmitRequest{Answer: "Nile"},
			assert: func(t *testing.T, out outputs) {
				require.True(t, out.resp.Correct)
				require.Empty(t, out.events)
			},
		},
		"should reject an empty answer": {
			req: challenge.SubmitRequest{UserID: "u1"},
			assert: func(t *testing.T, out outputs) {
				require.True(t, errors.Is(out.err, errors.CodeInvalidArgument))
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			fs := newFakeStore()
			eb := event.NewBus()

			var (
				mu     sync.Mutex
				events []domain.EventChallengeSubmitted
			)
			eb.Subscribe(domain.EventNameChallengeSubmitted, func(_ context.Context, e event.Event) error {
				mu.Lock()
				defer mu.Unlock()
				events = append(events, e.(domain.EventChallengeSubmitted))
				return nil
			})

			s := challenge.NewService(challenge.Config{
				EventBus:  eb,
				Store:     fs,
				Generator: fakeGenerator{},
				Streaker:  fixedStreak(tt.streak),
				Daily:     []domain.QuizQuestion{nile},
				Now:       func() time.Time { return now },
			})

			resp, err := s.Submit(context.Background(), tt.req)
			eb.Stop()

			tt.assert(t, outputs{resp: resp, err: err, events: events, store: fs})
		})
	}
}

func TestService_Submit_OncePerDay(t *testing.T) {
	fs := newFakeStore()
	eb := event.NewBus()

	var (
		mu     sync.Mutex
		events []domain.EventChallengeSubmitted
	)
	eb.Subscribe(domain.EventNameChallengeSubmitted, func(_ context.Context, e event.Event) error {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e.(domain.EventChallengeSubmitted))
		return nil
	})

	s := challenge.NewService(challenge.Config{
		EventBus:  eb,
		Store:     fs,
		Generator: fakeGenerator{},
		Streaker:  fixedStreak(1),
		Daily:     []domain.QuizQuestion{nile},
		Now:       func() time.Time { return now },
	})

	first, err := s.Submit(context.Background(), challenge.SubmitRequest{UserID: "u1", Answer: "Nile"})
	require.NoError(t, err)
	require.False(t, first.AlreadyAnswered)
	require.Equal(t, "11", first.XP.String())

	for range 5 {
		again, err := s.Submit(context.Background(), challenge.SubmitRequest{UserID: "u1", Answer: "Nile"})
		require.NoError(t, err)
		require.True(t, again.AlreadyAnswered)
		require.True(t, again.Correct)
		require.True(t, again.XP.IsZero())
	}
	eb.Stop()

	require.Len(t, fs.attempts, 1)
	require.Len(t, events, 1)
	require.Equal(t, "11", events[0].XP.String())
}

func makeService(t *testing.T, fs *fakeStore) *challenge.Service {
	t.Helper()

	eb := event.NewBus()
	t.Cleanup(eb.Stop)

	return challenge.NewService(challenge.Config{
		EventBus:  eb,
		Store:     fs,
		Generator: fakeGenerator{},
		Streaker:  fixedStreak(0),
		Daily:     bank.Default().Daily(),
		Now:       func() time.Time { return now },
	})
}

type fakeStore struct {
	mu         sync.Mutex
	rows       map[time.Time]domain.DailyChallenge
	raceWinner *domain.DailyChallenge
	getErr     error
	insertErr  error
	inserts    int
	attempts   []domain.ChallengeAttempt
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[time.Time]domain.DailyChallenge)}
}

func (f *fakeStore) GetDailyChallenge(_ context.Context, date time.Time) (*domain.DailyChallenge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.getErr != nil {
		return nil, f.getErr
	}

	c, ok := f.rows[domain.Day(date)]
	if !ok {
		return nil, errors.New(errors.CodeNotFound)
	}

	return &c, nil
}

func (f *fakeStore) InsertDailyChallenge(_ context.Context, c *domain.DailyChallenge) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.inserts++
	if f.insertErr != nil {
		return f.insertErr
	}

	if f.raceWinner != nil {
		f.rows[domain.Day(c.Date)] = *f.raceWinner
		return &pgconn.PgError{Code: "23505"}
	}

	if _, ok := f.rows[domain.Day(c.Date)]; ok {
		return &pgconn.PgError{Code: "23505"}
	}

	f.rows[domain.Day(c.Date)] = *c
	return nil
}

func (f *fakeStore) InsertChallengeAttempt(_ context.Context, a domain.ChallengeAttempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	// user_daily_challenges is unique on (user_id, date).
	for _, prev := range f.attempts {
		if prev.UserID == a.UserID && domain.Day(prev.Date).Equal(domain.Day(a.Date)) {
			return &pgconn.PgError{Code: "23505"}
		}
	}

	f.attempts = append(f.attempts, a)
	return nil
}

type fakeGenerator struct{}

func (fakeGenerator) Generate(_ context.Context, topic string) domain.QuizQuestion {
	return domain.QuizQuestion{
		Question:      "Generated?",
		Options:       []string{"A", "B", "C", "D"},
		CorrectAnswer: "A",
		Topic:         topic,
	}
}

type fixedStreak int

func (s fixedStreak) Streak(context.Context, string) int {
	return int(s)
}

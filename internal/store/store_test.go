package store_test

import (
	"context"
	stderrors "errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/victornm/greensafari/internal/domain"
	"github.com/victornm/greensafari/internal/errors"
	"github.com/victornm/greensafari/internal/store"
)

var today = time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

func TestStore_GetDailyChallenge(t *testing.T) {
	tests := map[string]struct {
		arrange func(mock pgxmock.PgxPoolIface)
		assert  func(t *testing.T, c *domain.DailyChallenge, err error)
	}{
		"should return the stored challenge": {
			arrange: func(mock pgxmock.PgxPoolIface) {
				rows := mock.NewRows([]string{"id", "date", "question", "options", "correct_answer", "explanation", "topic"}).
					AddRow("c1", today, "Which river?", []string{"Nile", "Congo", "Niger", "Zambezi"}, "Nile", "Longest.", "Geography")
				mock.ExpectQuery(regexp.QuoteMeta("FROM daily_challenges")).
					WithArgs(today).
					WillReturnRows(rows)
			},
			assert: func(t *testing.T, c *domain.DailyChallenge, err error) {
				require.NoError(t, err)
				require.Equal(t, "c1", c.ChallengeID)
				require.Equal(t, "c1", c.ID)
				require.True(t, c.IsDaily)
				require.True(t, c.HasAnswer())
			},
		},
		"should return not found when no row exists": {
			arrange: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(regexp.QuoteMeta("FROM daily_challenges")).
					WithArgs(today).
					WillReturnError(pgx.ErrNoRows)
			},
			assert: func(t *testing.T, c *domain.DailyChallenge, err error) {
				require.Nil(t, c)
				require.True(t, errors.Is(err, errors.CodeNotFound))
			},
		},
		"should surface a missing table": {
			arrange: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(regexp.QuoteMeta("FROM daily_challenges")).
					WithArgs(today).
					WillReturnError(&pgconn.PgError{Code: "42P01", Message: `relation "daily_challenges" does not exist`})
			},
			assert: func(t *testing.T, c *domain.DailyChallenge, err error) {
				require.Nil(t, c)
				require.True(t, store.IsMissingTable(err))
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			s, mock := makeStore(t)
			tt.arrange(mock)

			c, err := s.GetDailyChallenge(context.Background(), today.Add(15*time.Hour))
			tt.assert(t, c, err)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestStore_InsertDailyChallenge(t *testing.T) {
	s, mock := makeStore(t)

	c := &domain.DailyChallenge{
		QuizQuestion: domain.QuizQuestion{
			Question:      "Which river?",
			Options:       []string{"Nile", "Congo", "Niger", "Zambezi"},
			CorrectAnswer: "Nile",
			Explanation:   "Longest.",
			Topic:         "Geography",
		},
		ChallengeID: "c1",
		Date:        today.Add(time.Hour),
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO daily_challenges")).
		WithArgs("c1", today, c.Question, c.Options, c.CorrectAnswer, c.Explanation, c.Topic).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := s.InsertDailyChallenge(context.Background(), c)
	require.True(t, store.IsUniqueViolation(err))
	require.False(t, store.IsMissingTable(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ChallengeAttempts(t *testing.T) {
	s, mock := makeStore(t)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO user_daily_challenges")).
		WithArgs("u1", today, true).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	rows := mock.NewRows([]string{"user_id", "date", "correct"}).
		AddRow("u1", today, true).
		AddRow("u1", today.AddDate(0, 0, -1), false)
	mock.ExpectQuery(regexp.QuoteMeta("FROM user_daily_challenges")).
		WithArgs("u1", 30).
		WillReturnRows(rows)

	require.NoError(t, s.InsertChallengeAttempt(ctx, domain.ChallengeAttempt{UserID: "u1", Date: today, Correct: true}))

	got, err := s.ListChallengeAttempts(ctx, "u1", 30)
	require.NoError(t, err)
	require.Equal(t, []domain.ChallengeAttempt{
		{UserID: "u1", Date: today, Correct: true},
		{UserID: "u1", Date: today.AddDate(0, 0, -1), Correct: false},
	}, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Progress(t *testing.T) {
	s, mock := makeStore(t)
	ctx := context.Background()

	p := domain.QuizProgress{UserID: "u1", QuizID: "geography", Completed: true, Score: 4, LastAttempt: today}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO user_progress")).
		WithArgs(p.UserID, p.QuizID, p.Completed, p.Score, p.LastAttempt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	mock.ExpectQuery(regexp.QuoteMeta("FROM user_progress")).
		WithArgs("u1").
		WillReturnRows(mock.NewRows([]string{"user_id", "quiz_id", "completed", "score", "last_attempt"}).
			AddRow(p.UserID, p.QuizID, p.Completed, p.Score, p.LastAttempt))

	require.NoError(t, s.UpsertProgress(ctx, p))

	got, err := s.ListProgress(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, []domain.QuizProgress{p}, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_InsertSubscription(t *testing.T) {
	s, mock := makeStore(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO email_subscriptions")).
		WithArgs("a@b.co").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO email_subscriptions")).
		WithArgs("a@b.co").
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"})

	require.NoError(t, s.InsertSubscription(context.Background(), "a@b.co"))
	require.True(t, store.IsUniqueViolation(s.InsertSubscription(context.Background(), "a@b.co")))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_NotConfigured(t *testing.T) {
	s := store.New(store.Config{})
	ctx := context.Background()

	_, err := s.GetDailyChallenge(ctx, today)
	require.ErrorIs(t, err, store.ErrNotConfigured)
	require.ErrorIs(t, s.InsertSubscription(ctx, "a@b.co"), store.ErrNotConfigured)
	require.ErrorIs(t, s.Ping(ctx), store.ErrNotConfigured)
	_, err = s.ListProgress(ctx, "u1")
	require.ErrorIs(t, err, store.ErrNotConfigured)
}

func TestIsMissingTable(t *testing.T) {
	tests := map[string]struct {
		err  error
		want bool
	}{
		"nil":              {err: nil, want: false},
		"undefined table":  {err: &pgconn.PgError{Code: "42P01"}, want: true},
		"wrapped message":  {err: fmt.Errorf("select: %w", stderrors.New(`relation "user_progress" does not exist`)), want: true},
		"unique violation": {err: &pgconn.PgError{Code: "23505"}, want: false},
		"connection error": {err: stderrors.New("connection refused"), want: false},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			require.Equal(t, tt.want, store.IsMissingTable(tt.err))
		})
	}
}

func makeStore(t *testing.T) (*store.Store, pgxmock.PgxPoolIface) {
	t.Helper()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	return store.New(store.Config{DB: mock}), mock
}

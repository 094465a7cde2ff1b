package store

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/victornm/greensafari/internal/domain"
	"github.com/victornm/greensafari/internal/errors"
)

const (
	codeUndefinedTable  = "42P01"
	codeUniqueViolation = "23505"
)

// ErrNotConfigured is returned by every call when no database URL was configured.
var ErrNotConfigured = stderrors.New("store: database not configured")

// DB is the subset of *pgxpool.Pool used by the store.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

type Config struct {
	// DB may be nil, every call then fails with ErrNotConfigured.
	DB DB
}

// Store reads and writes the hosted database. Tables are created outside this service and may be missing.
type Store struct {
	db DB
}

func New(c Config) *Store {
	return &Store{
		db: c.DB,
	}
}

func (s *Store) Ping(ctx context.Context) error {
	if s.db == nil {
		return ErrNotConfigured
	}

	return s.db.Ping(ctx)
}

// GetDailyChallenge returns the challenge stored for the day of date, or a CodeNotFound error.
func (s *Store) GetDailyChallenge(ctx context.Context, date time.Time) (*domain.DailyChallenge, error) {
	if s.db == nil {
		return nil, ErrNotConfigured
	}

	const stmt = `
SELECT id, date, question, options, correct_answer, explanation, topic
FROM daily_challenges
WHERE date = $1
LIMIT 1;`

	day := domain.Day(date)

	var c domain.DailyChallenge
	err := s.db.QueryRow(ctx, stmt, day).Scan(
		&c.ChallengeID,
		&c.Date,
		&c.Question,
		&c.Options,
		&c.CorrectAnswer,
		&c.Explanation,
		&c.Topic,
	)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("daily challenge not found: date=%s", day.Format(time.DateOnly)))
	}
	if err != nil {
		return nil, fmt.Errorf("select daily challenge: %w", err)
	}

	c.ID = c.ChallengeID
	c.IsDaily = true

	return &c, nil
}

func (s *Store) InsertDailyChallenge(ctx context.Context, c *domain.DailyChallenge) error {
	if s.db == nil {
		return ErrNotConfigured
	}

	const stmt = `
INSERT INTO daily_challenges (id, date, question, options, correct_answer, explanation, topic)
VALUES ($1, $2, $3, $4, $5, $6, $7);`

	_, err := s.db.Exec(ctx, stmt,
		c.ChallengeID,
		domain.Day(c.Date),
		c.Question,
		c.Options,
		c.CorrectAnswer,
		c.Explanation,
		c.Topic,
	)
	if err != nil {
		return fmt.Errorf("insert daily challenge: %w", err)
	}

	return nil
}

// InsertChallengeAttempt stores an answer to the challenge of a day. The table is unique on (user_id, date),
// so a second answer of the same day fails with a unique violation.
func (s *Store) InsertChallengeAttempt(ctx context.Context, a domain.ChallengeAttempt) error {
	if s.db == nil {
		return ErrNotConfigured
	}

	const stmt = `INSERT INTO user_daily_challenges (user_id, date, correct) VALUES ($1, $2, $3);`

	if _, err := s.db.Exec(ctx, stmt, a.UserID, domain.Day(a.Date), a.Correct); err != nil {
		return fmt.Errorf("insert challenge attempt: %w", err)
	}

	return nil
}

// ListChallengeAttempts returns the latest attempts of a user, newest first.
func (s *Store) ListChallengeAttempts(ctx context.Context, userID string, limit int) ([]domain.ChallengeAttempt, error) {
	if s.db == nil {
		return nil, ErrNotConfigured
	}

	const stmt = `
SELECT user_id, date, correct
FROM user_daily_challenges
WHERE user_id = $1
ORDER BY date DESC
LIMIT $2;`

	rows, err := s.db.Query(ctx, stmt, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("select challenge attempts: %w", err)
	}

	attempts, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.ChallengeAttempt, error) {
		var a domain.ChallengeAttempt
		err := r.Scan(&a.UserID, &a.Date, &a.Correct)
		return a, err
	})
	if err != nil {
		return nil, fmt.Errorf("collect challenge attempts: %w", err)
	}

	return attempts, nil
}

func (s *Store) ListProgress(ctx context.Context, userID string) ([]domain.QuizProgress, error) {
	if s.db == nil {
		return nil, ErrNotConfigured
	}

	const stmt = `
SELECT user_id, quiz_id, completed, score, last_attempt
FROM user_progress
WHERE user_id = $1;`

	rows, err := s.db.Query(ctx, stmt, userID)
	if err != nil {
		return nil, fmt.Errorf("select progress: %w", err)
	}

	progress, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.QuizProgress, error) {
		var p domain.QuizProgress
		err := r.Scan(&p.UserID, &p.QuizID, &p.Completed, &p.Score, &p.LastAttempt)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("collect progress: %w", err)
	}

	return progress, nil
}

// UpsertProgress keeps the best score of a user for a quiz. A quiz stays completed once completed.
func (s *Store) UpsertProgress(ctx context.Context, p domain.QuizProgress) error {
	if s.db == nil {
		return ErrNotConfigured
	}

	const stmt = `
INSERT INTO user_progress (user_id, quiz_id, completed, score, last_attempt)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (user_id, quiz_id) DO UPDATE
SET completed = user_progress.completed OR EXCLUDED.completed,
	score = GREATEST(user_progress.score, EXCLUDED.score),
	last_attempt = EXCLUDED.last_attempt;`

	if _, err := s.db.Exec(ctx, stmt, p.UserID, p.QuizID, p.Completed, p.Score, p.LastAttempt); err != nil {
		return fmt.Errorf("upsert progress: %w", err)
	}

	return nil
}

func (s *Store) InsertSubscription(ctx context.Context, email string) error {
	if s.db == nil {
		return ErrNotConfigured
	}

	const stmt = `INSERT INTO email_subscriptions (email) VALUES ($1);`

	if _, err := s.db.Exec(ctx, stmt, email); err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}

	return nil
}

// IsMissingTable reports whether err was caused by a table that has not been created.
func IsMissingTable(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) && pgErr.Code == codeUndefinedTable {
		return true
	}

	return strings.Contains(err.Error(), "does not exist")
}

func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return stderrors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation
}

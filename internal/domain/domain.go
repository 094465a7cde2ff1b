package domain

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

var (
	baseXP        = decimal.NewFromInt(10)
	streakBonus   = decimal.RequireFromString("0.1")
	maxMultiplier = decimal.NewFromInt(2)
)

// QuizQuestion is a single multiple-choice question. It is not modified after it has been generated.
type QuizQuestion struct {
	ID            string   `json:"id,omitempty" yaml:"-"`
	Question      string   `json:"question" yaml:"question"`
	Options       []string `json:"options" yaml:"options"`
	CorrectAnswer string   `json:"correctAnswer" yaml:"correctAnswer"`
	Explanation   string   `json:"explanation" yaml:"explanation"`
	Topic         string   `json:"topic" yaml:"topic"`
}

// HasAnswer reports whether the correct answer is one of the options.
func (q QuizQuestion) HasAnswer() bool {
	return slices.Contains(q.Options, q.CorrectAnswer)
}

// DailyChallenge is the featured question of a calendar day.
type DailyChallenge struct {
	QuizQuestion
	ChallengeID string
	Date        time.Time
	IsDaily     bool
}

// Category groups quiz topics, e.g. geography or cuisine.
type Category struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Topics      []string `json:"topics"`
}

// ChallengeAttempt is a user's answer to a daily challenge.
type ChallengeAttempt struct {
	UserID  string
	Date    time.Time
	Correct bool
}

// QuizProgress tracks a user's result for a quiz category.
type QuizProgress struct {
	UserID      string
	QuizID      string
	Completed   bool
	Score       int
	LastAttempt time.Time
}

type UserStats struct {
	TotalQuizzes     int `json:"totalQuizzes"`
	CompletedQuizzes int `json:"completedQuizzes"`
	CorrectAnswers   int `json:"correctAnswers"`
	Streak           int `json:"streak"`
}

type SubscriptionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Leaderboard is the weekly ranking of users, sorted by XP in descending order.
type Leaderboard struct {
	Period  string             `json:"period"`
	Entries []LeaderboardEntry `json:"entries"`
}

type LeaderboardEntry struct {
	Rank    int64   `json:"rank"`
	Name    string  `json:"name"`
	XP      float64 `json:"xp"`
	Streak  int64   `json:"streak"`
	Country string  `json:"country"`
}

// CountryEntry aggregates the XP of all users of a country within a period.
type CountryEntry struct {
	Rank         int64   `json:"rank"`
	Country      string  `json:"country"`
	XP           float64 `json:"xp"`
	Participants int64   `json:"participants"`
}

// Day truncates t to the start of its calendar day in UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ChallengeXP is the XP earned by a daily challenge answer: 10 for a correct answer,
// multiplied by 1 + 0.1 per streak day, up to twice the base.
func ChallengeXP(correct bool, streak int) decimal.Decimal {
	if !correct {
		return decimal.Zero
	}

	m := decimal.NewFromInt(1).Add(streakBonus.Mul(decimal.NewFromInt(int64(streak))))
	if m.GreaterThan(maxMultiplier) {
		m = maxMultiplier
	}

	return baseXP.Mul(m)
}

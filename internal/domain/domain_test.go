package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/victornm/greensafari/internal/domain"
)

func TestChallengeXP(t *testing.T) {
	tests := map[string]struct {
		correct bool
		streak  int
		want    string
	}{
		"wrong answer earns nothing": {correct: false, streak: 5, want: "0"},
		"no streak":                  {correct: true, streak: 0, want: "10"},
		"three day streak":           {correct: true, streak: 3, want: "13"},
		"multiplier is capped":       {correct: true, streak: 25, want: "20"},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			got := domain.ChallengeXP(tt.correct, tt.streak)
			require.Equal(t, tt.want, got.String())
		})
	}
}

func TestDay(t *testing.T) {
	loc := time.FixedZone("EAT", 3*60*60)
	got := domain.Day(time.Date(2026, 5, 2, 1, 30, 0, 0, loc))
	require.Equal(t, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), got)
}

func TestQuizQuestion_HasAnswer(t *testing.T) {
	q := domain.QuizQuestion{Options: []string{"A", "B"}, CorrectAnswer: "B"}
	require.True(t, q.HasAnswer())

	q.CorrectAnswer = "b"
	require.False(t, q.HasAnswer())
}

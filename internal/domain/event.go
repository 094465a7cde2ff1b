package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventNameChallengeSubmitted = "challenge.submitted"
	EventNameLeaderboardUpdated = "leaderboard.updated"
)

// EventChallengeSubmitted is published after a user answers the daily challenge.
type EventChallengeSubmitted struct {
	UserID     string
	Country    string
	Correct    bool
	Streak     int
	XP         decimal.Decimal
	SubmitTime time.Time
}

func (EventChallengeSubmitted) Name() string { return EventNameChallengeSubmitted }

type EventLeaderboardUpdated struct {
	Leaderboard Leaderboard
}

func (EventLeaderboardUpdated) Name() string { return EventNameLeaderboardUpdated }

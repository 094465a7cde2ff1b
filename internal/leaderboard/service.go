package leaderboard

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/greensafari/internal/domain"
	"github.com/victornm/greensafari/internal/event"
)

const (
	publishInterval = 200 * time.Millisecond
	// Weekly keys outlive their week so the previous ranking can still be read for a while.
	keyTTL = 15 * 24 * time.Hour

	DefaultLimit = 10
	MaxLimit     = 100
)

type Config struct {
	EventBus *event.Bus
	Redis    redis.UniversalClient
	Prefix   string
	Now      func() time.Time
}

// Service ranks users and countries by the XP earned with daily challenges within an ISO week.
type Service struct {
	eb     *event.Bus
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewService(c Config) *Service {
	s := &Service{
		eb:     c.EventBus,
		redis:  c.Redis,
		prefix: c.Prefix,
		now:    c.Now,
	}

	if s.now == nil {
		s.now = time.Now
	}

	s.eb.Subscribe(domain.EventNameChallengeSubmitted, func(ctx context.Context, e event.Event) error {
		return s.UpdateLeaderboard(ctx, e.(domain.EventChallengeSubmitted))
	})

	return s
}

type GetLeaderboardRequest struct {
	Limit int
	// Period defaults to the current week.
	Period string
}

// GetLeaderboard returns the top users of a week. Users without a country have an empty one.
func (s *Service) GetLeaderboard(ctx context.Context, req GetLeaderboardRequest) (*domain.Leaderboard, error) {
	period := req.Period
	if period == "" {
		period = Period(s.now())
	}
	keys := s.keys(period)

	res, err := s.redis.ZRevRangeWithScores(ctx, keys.xp, 0, int64(clampLimit(req.Limit))-1).Result()
	if err != nil {
		return nil, fmt.Errorf("get leaderboard: %w", err)
	}

	l := &domain.Leaderboard{
		Period:  period,
		Entries: make([]domain.LeaderboardEntry, 0, len(res)),
	}
	if len(res) == 0 {
		return l, nil
	}

	names := make([]string, 0, len(res))
	for _, z := range res {
		names = append(names, z.Member.(string))
	}

	var (
		streaks   []*redis.FloatCmd
		countries *redis.SliceCmd
	)
	_, err = s.redis.Pipelined(ctx, func(p redis.Pipeliner) error {
		for _, n := range names {
			streaks = append(streaks, p.ZScore(ctx, keys.streak, n))
		}
		countries = p.HMGet(ctx, keys.country, names...)
		return nil
	})
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get leaderboard details: %w", err)
	}

	cs := countries.Val()
	for i, z := range res {
		e := domain.LeaderboardEntry{
			Rank:   int64(i) + 1,
			Name:   names[i],
			XP:     z.Score,
			Streak: int64(streaks[i].Val()),
		}
		if i < len(cs) {
			e.Country, _ = cs[i].(string)
		}
		l.Entries = append(l.Entries, e)
	}

	return l, nil
}

type GetCountriesRequest struct {
	Limit int
}

// GetCountries ranks countries by the total XP of their users in the current week.
func (s *Service) GetCountries(ctx context.Context, req GetCountriesRequest) ([]domain.CountryEntry, error) {
	keys := s.keys(Period(s.now()))

	res, err := s.redis.ZRevRangeWithScores(ctx, keys.countries, 0, int64(clampLimit(req.Limit))-1).Result()
	if err != nil {
		return nil, fmt.Errorf("get countries: %w", err)
	}

	cards := make([]*redis.IntCmd, 0, len(res))
	_, err = s.redis.Pipelined(ctx, func(p redis.Pipeliner) error {
		for _, z := range res {
			cards = append(cards, p.SCard(ctx, keys.members(z.Member.(string))))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("count participants: %w", err)
	}

	entries := make([]domain.CountryEntry, 0, len(res))
	for i, z := range res {
		entries = append(entries, domain.CountryEntry{
			Rank:         int64(i) + 1,
			Country:      z.Member.(string),
			XP:           z.Score,
			Participants: cards[i].Val(),
		})
	}

	return entries, nil
}

// UpdateLeaderboard adds the XP of a challenge answer and overwrites the user's current streak.
// Only the first answer of a user on a day is counted.
func (s *Service) UpdateLeaderboard(ctx context.Context, e domain.EventChallengeSubmitted) error {
	period := Period(e.SubmitTime)
	keys := s.keys(period)
	xp := e.XP.InexactFloat64()

	answered := keys.answered(e.UserID, e.SubmitTime)
	first, err := s.redis.SetNX(ctx, answered, 1, keyTTL).Result()
	if err != nil {
		return fmt.Errorf("setnx answered: %w", err)
	}
	if !first {
		return nil
	}

	_, err = s.redis.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZIncrBy(ctx, keys.xp, xp, e.UserID)
		p.ZAdd(ctx, keys.streak, redis.Z{Score: float64(e.Streak), Member: e.UserID})
		expire := []string{keys.xp, keys.streak}

		if e.Country != "" {
			p.HSet(ctx, keys.country, e.UserID, e.Country)
			p.ZIncrBy(ctx, keys.countries, xp, e.Country)
			p.SAdd(ctx, keys.members(e.Country), e.UserID)
			expire = append(expire, keys.country, keys.countries, keys.members(e.Country))
		}

		for _, k := range expire {
			p.Expire(ctx, k, keyTTL)
		}
		return nil
	})
	if err != nil {
		// Let the answer be counted when it is delivered again.
		_ = s.redis.Del(ctx, answered).Err()
		return fmt.Errorf("update leaderboard: %w", err)
	}

	return s.schedulePublishLeaderboard(ctx, period, e.SubmitTime)
}

type SeedEntry struct {
	Name    string
	XP      float64
	Streak  int
	Country string
}

// DefaultSeed is a starter ranking for new deployments.
var DefaultSeed = []SeedEntry{
	{Name: "Sarah K.", Streak: 42, XP: 385, Country: "Kenya"},
	{Name: "Michael T.", Streak: 36, XP: 320, Country: "Nigeria"},
	{Name: "Amara O.", Streak: 29, XP: 290, Country: "Ghana"},
	{Name: "David L.", Streak: 25, XP: 245, Country: "South Africa"},
	{Name: "Fatima M.", Streak: 21, XP: 210, Country: "Morocco"},
	{Name: "James W.", Streak: 18, XP: 180, Country: "Tanzania"},
	{Name: "Zainab A.", Streak: 15, XP: 150, Country: "Egypt"},
	{Name: "Robert C.", Streak: 14, XP: 140, Country: "Uganda"},
	{Name: "Chioma N.", Streak: 12, XP: 120, Country: "Nigeria"},
	{Name: "Hassan M.", Streak: 10, XP: 100, Country: "Algeria"},
}

// Seed adds entries to the current week. Users already ranked keep their scores.
func (s *Service) Seed(ctx context.Context, entries []SeedEntry) error {
	keys := s.keys(Period(s.now()))

	_, err := s.redis.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for _, e := range entries {
			p.ZAddNX(ctx, keys.xp, redis.Z{Score: e.XP, Member: e.Name})
			p.ZAddNX(ctx, keys.streak, redis.Z{Score: float64(e.Streak), Member: e.Name})
			if e.Country == "" {
				continue
			}
			p.HSetNX(ctx, keys.country, e.Name, e.Country)
			p.SAdd(ctx, keys.members(e.Country), e.Name)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("seed leaderboard: %w", err)
	}

	return s.rebuildCountries(ctx, keys)
}

// rebuildCountries recomputes the country totals from the user scores.
func (s *Service) rebuildCountries(ctx context.Context, keys keys) error {
	users, err := s.redis.ZRangeWithScores(ctx, keys.xp, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("read scores: %w", err)
	}

	countries, err := s.redis.HGetAll(ctx, keys.country).Result()
	if err != nil {
		return fmt.Errorf("read countries: %w", err)
	}

	totals := make(map[string]float64)
	for _, z := range users {
		if c, ok := countries[z.Member.(string)]; ok {
			totals[c] += z.Score
		}
	}

	_, err = s.redis.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, keys.countries)
		for c, xp := range totals {
			p.ZAdd(ctx, keys.countries, redis.Z{Score: xp, Member: c})
		}
		for _, k := range []string{keys.xp, keys.streak, keys.country, keys.countries} {
			p.Expire(ctx, k, keyTTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("write countries: %w", err)
	}

	return nil
}

// schedulePublishLeaderboard publishes the leaderboard at most once per interval.
// Many answers arrive in a short time, so most updates are not published on their own.
func (s *Service) schedulePublishLeaderboard(ctx context.Context, period string, at time.Time) error {
	// SETNX keeps multiple instances from publishing the same change.
	ok, err := s.redis.SetNX(ctx, s.keys(period).time, at.UnixMilli(), publishInterval).Result()
	if err != nil {
		return fmt.Errorf("setnx: %w", err)
	}

	if !ok {
		return nil
	}

	return s.publishLeaderboard(ctx, period)
}

func (s *Service) publishLeaderboard(ctx context.Context, period string) error {
	l, err := s.GetLeaderboard(ctx, GetLeaderboardRequest{Limit: DefaultLimit, Period: period})
	if err != nil {
		return fmt.Errorf("get leaderboard failed: period=%s: %w", period, err)
	}

	s.eb.Publish(ctx, domain.EventLeaderboardUpdated{
		Leaderboard: *l,
	})

	return nil
}

// Period names the ISO week of t, e.g. 2026-W11.
func Period(t time.Time) string {
	y, w := t.UTC().ISOWeek()
	return fmt.Sprintf("%d-W%02d", y, w)
}

type keys struct {
	prefix    string
	xp        string
	streak    string
	country   string
	countries string
	time      string
}

func (s *Service) keys(period string) keys {
	p := fmt.Sprintf("%s:leaderboard:%s", s.prefix, period)
	return keys{
		prefix:    p,
		xp:        p + ":xp",
		streak:    p + ":streak",
		country:   p + ":country",
		countries: p + ":countries",
		time:      p + ":time",
	}
}

func (k keys) members(country string) string {
	return fmt.Sprintf("%s:members:%s", k.prefix, country)
}

func (k keys) answered(user string, at time.Time) string {
	return fmt.Sprintf("%s:answered:%s:%s", k.prefix, domain.Day(at).Format(time.DateOnly), user)
}

func clampLimit(n int) int {
	if n <= 0 {
		return DefaultLimit
	}

	return min(n, MaxLimit)
}

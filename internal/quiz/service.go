package quiz

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/victornm/greensafari/internal/bank"
	"github.com/victornm/greensafari/internal/domain"
	"github.com/victornm/greensafari/internal/history"
)

const (
	DefaultCount = 5
	MaxCount     = 20

	// NoteFallback is set on a batch made only of static questions.
	NoteFallback = "Using fallback questions"

	generateLimit = 5
)

var randomTopics = []string{"Geography", "Wildlife", "Culture", "History", "Cuisine", "General Knowledge"}

type Generator interface {
	Generate(ctx context.Context, topic string) domain.QuizQuestion
	Dynamic(ctx context.Context, topic string) (domain.QuizQuestion, error)
}

type Config struct {
	Generator Generator
	Bank      *bank.Bank
	History   *history.Store
	Now       func() time.Time
}

type Service struct {
	generator Generator
	bank      *bank.Bank
	history   *history.Store
	now       func() time.Time
}

func NewService(c Config) *Service {
	s := &Service{
		generator: c.Generator,
		bank:      c.Bank,
		history:   c.History,
		now:       c.Now,
	}

	if s.now == nil {
		s.now = time.Now
	}

	return s
}

func (s *Service) Categories() []domain.Category {
	return s.bank.Categories()
}

type QuestionBatchRequest struct {
	// Category defaults to the random category. Unknown categories are treated as random.
	Category string
	// Count defaults to DefaultCount and is clamped to [1, MaxCount].
	Count  int
	UserID string
}

type Batch struct {
	Questions []domain.QuizQuestion
	Note      string
}

// QuestionBatch generates questions on topics of a category. Each question that cannot be generated
// is replaced by a static question of the category the user has not seen yet.
func (s *Service) QuestionBatch(ctx context.Context, req QuestionBatchRequest) Batch {
	category := req.Category
	if !s.bank.HasCategory(category) {
		category = bank.CategoryRandom
	}
	count := clampCount(req.Count)
	topics := s.bank.Topics(category)

	questions := make([]domain.QuizQuestion, count)
	fellBack := make([]bool, count)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(generateLimit)
	for i := range count {
		topic := topics[rand.IntN(len(topics))]

		g.Go(func() error {
			q, err := s.generator.Dynamic(gctx, topic)
			if err != nil {
				slog.DebugContext(gctx, "quiz: generation failed, using fallback",
					"category", category,
					"topic", topic,
					"error", err,
				)
				questions[i] = s.fallback(category, req.UserID, i)
				fellBack[i] = true
				return nil
			}

			q.ID = fmt.Sprintf("%s-%s-%d-%d", category, topic, s.now().UnixMilli(), i)
			s.history.Add(req.UserID, q.ID)
			questions[i] = q
			return nil
		})
	}
	_ = g.Wait()

	b := Batch{Questions: questions}
	if allTrue(fellBack) {
		b.Note = NoteFallback
	}

	return b
}

// RandomBatch returns questions on random topics from every category.
func (s *Service) RandomBatch(ctx context.Context, count int) []domain.QuizQuestion {
	count = clampCount(count)
	questions := make([]domain.QuizQuestion, count)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(generateLimit)
	for i := range count {
		topic := randomTopics[rand.IntN(len(randomTopics))]

		g.Go(func() error {
			questions[i] = s.generator.Generate(gctx, topic)
			return nil
		})
	}
	_ = g.Wait()

	return questions
}

func (s *Service) fallback(category, userID string, slot int) domain.QuizQuestion {
	qs := s.bank.Category(category)

	ids := make([]string, len(qs))
	for i := range qs {
		ids[i] = fmt.Sprintf("fallback-%s-%d", category, i)
	}

	idx := s.history.Next(userID, ids, slot%len(ids))
	q := qs[idx]
	q.ID = ids[idx]

	return q
}

func clampCount(n int) int {
	if n == 0 {
		return DefaultCount
	}

	return min(max(n, 1), MaxCount)
}

func allTrue(bs []bool) bool {
	for _, b := range bs {
		if !b {
			return false
		}
	}

	return len(bs) > 0
}

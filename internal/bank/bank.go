package bank

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"math/rand/v2"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/victornm/greensafari/internal/domain"
)

// CategoryRandom mixes the questions of every category.
const CategoryRandom = "random"

//go:embed questions.yaml
var defaultQuestions []byte

type category struct {
	domain.Category `yaml:",inline"`
	Questions       []domain.QuizQuestion `yaml:"questions"`
}

type file struct {
	General    []domain.QuizQuestion `yaml:"general"`
	Daily      []domain.QuizQuestion `yaml:"daily"`
	Categories []category            `yaml:"categories"`
}

// Bank holds the static questions used when no question can be generated.
type Bank struct {
	general    []domain.QuizQuestion
	daily      []domain.QuizQuestion
	categories []category
	index      map[string]int
	mixed      []domain.QuizQuestion
}

// Default returns the bank compiled into the binary.
func Default() *Bank {
	b, err := Load(bytes.NewReader(defaultQuestions))
	if err != nil {
		panic(fmt.Sprintf("bank: embedded questions: %v", err))
	}
	return b
}

// Load decodes a bank from YAML. Every question must list its correct answer among its options,
// and every category needs at least one topic and one question.
func Load(r io.Reader) (*Bank, error) {
	var f file
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	if len(f.General) == 0 {
		return nil, fmt.Errorf("general questions are empty")
	}

	b := &Bank{
		general:    f.General,
		daily:      f.Daily,
		categories: f.Categories,
		index:      make(map[string]int, len(f.Categories)),
	}

	check := func(section string, qs []domain.QuizQuestion) error {
		for i, q := range qs {
			if !q.HasAnswer() {
				return fmt.Errorf("%s[%d]: correct answer %q is not an option", section, i, q.CorrectAnswer)
			}
		}
		return nil
	}

	if err := check("general", b.general); err != nil {
		return nil, err
	}
	if err := check("daily", b.daily); err != nil {
		return nil, err
	}

	if len(b.categories) == 0 {
		return nil, fmt.Errorf("categories are empty")
	}

	for i, c := range b.categories {
		if len(c.Topics) == 0 {
			return nil, fmt.Errorf("%s: topics are empty", c.ID)
		}
		if len(c.Questions) == 0 {
			return nil, fmt.Errorf("%s: questions are empty", c.ID)
		}
		if err := check(c.ID, c.Questions); err != nil {
			return nil, err
		}
		b.index[c.ID] = i
		b.mixed = append(b.mixed, c.Questions...)
	}

	return b, nil
}

// ForTopic returns a random general question whose topic equals topic, ignoring case.
// If none matches, any general question is returned.
func (b *Bank) ForTopic(topic string) domain.QuizQuestion {
	var matched []domain.QuizQuestion
	for _, q := range b.general {
		if strings.EqualFold(q.Topic, topic) {
			matched = append(matched, q)
		}
	}

	if len(matched) > 0 {
		return pick(matched)
	}

	return pick(b.general)
}

// Random returns any general question.
func (b *Bank) Random() domain.QuizQuestion {
	return pick(b.general)
}

// Category returns the fallback questions of a category. Unknown ids and CategoryRandom
// return the questions of all categories.
func (b *Bank) Category(id string) []domain.QuizQuestion {
	if i, ok := b.index[id]; ok {
		return b.categories[i].Questions
	}
	return b.mixed
}

func (b *Bank) HasCategory(id string) bool {
	_, ok := b.index[id]
	return ok
}

// Categories lists the quiz categories, followed by the random category.
func (b *Bank) Categories() []domain.Category {
	cs := make([]domain.Category, 0, len(b.categories)+1)
	var topics []string
	for _, c := range b.categories {
		cs = append(cs, c.Category)
		topics = append(topics, c.Name)
	}

	return append(cs, domain.Category{
		ID:          CategoryRandom,
		Name:        "Random Mix",
		Description: "Questions from every category",
		Topics:      topics,
	})
}

// Topics returns the generation topics of a category, or those of the random category.
func (b *Bank) Topics(id string) []string {
	if i, ok := b.index[id]; ok {
		return b.categories[i].Topics
	}

	topics := make([]string, 0, len(b.categories))
	for _, c := range b.categories {
		topics = append(topics, strings.ToUpper(c.ID[:1])+c.ID[1:])
	}
	return topics
}

// Daily returns the daily challenge questions.
func (b *Bank) Daily() []domain.QuizQuestion {
	return b.daily
}

func pick(qs []domain.QuizQuestion) domain.QuizQuestion {
	return qs[rand.IntN(len(qs))]
}

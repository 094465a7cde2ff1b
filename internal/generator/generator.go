package generator

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/victornm/greensafari/internal/bank"
	"github.com/victornm/greensafari/internal/domain"
	"github.com/victornm/greensafari/internal/errors"
)

const (
	defaultTimeout        = 8 * time.Second
	defaultCooldownPeriod = time.Hour

	outcomeSuccess  = "success"
	outcomeError    = "error"
	outcomeQuota    = "quota"
	outcomeSkipped  = "skipped"
	outcomeFallback = "fallback"

	bankProvider = "bank"
)

var (
	ErrNoQuestion  = stderrors.New("no provider produced a question")
	errCoolingDown = stderrors.New("cooling down after quota error")

	quotaMarkers = []string{"quota", "exceeded", "billing", "rate limit"}

	attempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "greensafari",
		Subsystem: "generator",
		Name:      "attempts_total",
		Help:      "Question generation attempts by provider and outcome.",
	}, []string{"provider", "outcome"})

	tracer = otel.Tracer("github.com/victornm/greensafari/internal/generator")
)

// Provider generates a question about a topic, typically by calling an LLM API.
type Provider interface {
	Name() string
	Generate(ctx context.Context, topic string) (domain.QuizQuestion, error)
}

type Config struct {
	// Providers are tried in order.
	Providers []Provider
	Bank      *bank.Bank
	// Cooldown defaults to an in-memory cooldown.
	Cooldown       Cooldown
	CooldownPeriod time.Duration
	// Timeout bounds the whole provider stage of a single generation.
	Timeout time.Duration
}

// Generator produces quiz questions, falling back from one provider to the next and finally to the static bank.
type Generator struct {
	providers      []Provider
	bank           *bank.Bank
	cooldown       Cooldown
	cooldownPeriod time.Duration
	timeout        time.Duration
}

func New(c Config) *Generator {
	g := &Generator{
		providers:      c.Providers,
		bank:           c.Bank,
		cooldown:       c.Cooldown,
		cooldownPeriod: c.CooldownPeriod,
		timeout:        c.Timeout,
	}

	if g.cooldown == nil {
		g.cooldown = NewMemoryCooldown(nil)
	}
	if g.cooldownPeriod <= 0 {
		g.cooldownPeriod = defaultCooldownPeriod
	}
	if g.timeout <= 0 {
		g.timeout = defaultTimeout
	}

	return g
}

// Generate returns a question about topic. It never fails: when no provider answers,
// a static question matching the topic, or any static question, is returned.
func (g *Generator) Generate(ctx context.Context, topic string) domain.QuizQuestion {
	q, err := g.Dynamic(ctx, topic)
	if err == nil {
		return q
	}

	slog.InfoContext(ctx, "generator: using fallback question",
		"topic", topic,
		"error", err,
	)
	attempts.WithLabelValues(bankProvider, outcomeFallback).Inc()

	return g.bank.ForTopic(topic)
}

// Dynamic asks the providers only. The error wraps ErrNoQuestion when every provider failed or was skipped.
func (g *Generator) Dynamic(ctx context.Context, topic string) (q domain.QuizQuestion, err error) {
	ctx, span := tracer.Start(ctx, "Generator.Dynamic", trace.WithAttributes(
		attribute.String("quiz.topic", topic),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var errs []error
	for _, p := range g.providers {
		q, err := g.try(ctx, p, topic)
		if err == nil {
			span.SetAttributes(attribute.String("quiz.provider", p.Name()))
			return q, nil
		}

		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}

	if len(errs) == 0 {
		return domain.QuizQuestion{}, ErrNoQuestion
	}

	return domain.QuizQuestion{}, fmt.Errorf("%w: %w", ErrNoQuestion, stderrors.Join(errs...))
}

// Available reports whether at least one provider is configured and not cooling down.
func (g *Generator) Available(ctx context.Context) bool {
	for _, p := range g.providers {
		active, err := g.cooldown.Active(ctx, p.Name())
		if err != nil || !active {
			return true
		}
	}

	return false
}

func (g *Generator) try(ctx context.Context, p Provider, topic string) (domain.QuizQuestion, error) {
	name := p.Name()

	active, err := g.cooldown.Active(ctx, name)
	if err != nil {
		slog.WarnContext(ctx, "generator: read cooldown failed", "provider", name, "error", err)
	}

	if active {
		attempts.WithLabelValues(name, outcomeSkipped).Inc()
		slog.DebugContext(ctx, "generator: provider skipped", "provider", name)
		return domain.QuizQuestion{}, fmt.Errorf("%s: %w", name, errCoolingDown)
	}

	q, err := p.Generate(ctx, topic)
	if err == nil {
		err = validate(q)
	}

	if err != nil {
		if IsQuota(err) {
			attempts.WithLabelValues(name, outcomeQuota).Inc()
			slog.WarnContext(ctx, "generator: provider quota exceeded, skipping it for a while",
				"provider", name,
				"cooldown", g.cooldownPeriod.String(),
				"error", err,
			)
			if terr := g.cooldown.Trip(ctx, name, g.cooldownPeriod); terr != nil {
				slog.WarnContext(ctx, "generator: trip cooldown failed", "provider", name, "error", terr)
			}
		} else {
			attempts.WithLabelValues(name, outcomeError).Inc()
			slog.ErrorContext(ctx, "generator: provider failed",
				"provider", name,
				"topic", topic,
				"error", err,
			)
		}

		return domain.QuizQuestion{}, fmt.Errorf("%s: %w", name, err)
	}

	attempts.WithLabelValues(name, outcomeSuccess).Inc()
	q.Topic = topic

	return q, nil
}

// IsQuota reports whether err means the provider refused because of quota, billing or rate limits.
// Timeouts and cancellations never count, even though their messages mention "exceeded".
func IsQuota(err error) bool {
	if err == nil || stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, context.Canceled) {
		return false
	}

	if errors.Is(err, errors.CodeResourceExhausted) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, m := range quotaMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}

	return false
}

func validate(q domain.QuizQuestion) error {
	if len(q.Options) != 4 {
		return fmt.Errorf("malformed question: want 4 options, got %d", len(q.Options))
	}

	if !q.HasAnswer() {
		return fmt.Errorf("malformed question: correct answer %q is not an option", q.CorrectAnswer)
	}

	return nil
}

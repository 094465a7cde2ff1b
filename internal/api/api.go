package api

import (
	"context"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/victornm/greensafari/internal/challenge"
	"github.com/victornm/greensafari/internal/domain"
	"github.com/victornm/greensafari/internal/errors"
	"github.com/victornm/greensafari/internal/event"
	"github.com/victornm/greensafari/internal/generator"
	"github.com/victornm/greensafari/internal/leaderboard"
	"github.com/victornm/greensafari/internal/progress"
	"github.com/victornm/greensafari/internal/quiz"
	"github.com/victornm/greensafari/internal/store"
	"github.com/victornm/greensafari/internal/subscription"
)

// GeneratorService is the gRPC health service reporting whether questions can be generated.
const GeneratorService = "quiz.generator"

type Config struct {
	Router       gin.IRouter
	GRPC         *grpc.Server
	EventBus     *event.Bus
	Generator    *generator.Generator
	Quiz         *quiz.Service
	Challenge    *challenge.Service
	Subscription *subscription.Service
	Progress     *progress.Service
	Store        *store.Store
	// Leaderboard and Redis are nil when Redis is not configured.
	Leaderboard  *leaderboard.Service
	Redis        Redis
	PubsubPrefix string
}

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

type API struct {
	gs  *generator.Generator
	qs  *quiz.Service
	cs  *challenge.Service
	ss  *subscription.Service
	ps  *progress.Service
	ls  *leaderboard.Service
	db  *store.Store
	hs  *health.Server

	redis  Redis
	prefix string
}

func New(c Config) *API {
	a := &API{
		gs:     c.Generator,
		qs:     c.Quiz,
		cs:     c.Challenge,
		ss:     c.Subscription,
		ps:     c.Progress,
		ls:     c.Leaderboard,
		db:     c.Store,
		hs:     health.NewServer(),
		redis:  c.Redis,
		prefix: c.PubsubPrefix,
	}

	// HTTP APIs
	a.registerRoutes(c.Router)

	// gRPC APIs
	if c.GRPC != nil {
		healthpb.RegisterHealthServer(c.GRPC, a.hs)
	}

	// Register event handlers
	if a.redis != nil {
		c.EventBus.Subscribe(domain.EventNameLeaderboardUpdated, func(ctx context.Context, e event.Event) error {
			return a.PublishLeaderboardUpdated(ctx, e.(domain.EventLeaderboardUpdated))
		})
	}

	return a
}

func (a *API) registerRoutes(r gin.IRouter) {
	r.GET("/healthz", a.healthz)

	g := r.Group("/api")
	g.GET("/categories", a.listCategories)
	g.GET("/quiz-questions", a.listQuizQuestions)
	g.GET("/random-quiz", a.listRandomQuiz)
	g.GET("/daily-challenge", a.getDailyChallenge)
	g.POST("/daily-challenge/submit", a.submitDailyChallenge)
	g.POST("/subscriptions", a.subscribe)
	g.GET("/users/:userId/stats", a.getUserStats)
	g.POST("/users/:userId/progress", a.recordProgress)
	g.GET("/leaderboard", a.getLeaderboard)
	g.GET("/leaderboard/countries", a.getCountries)
	g.GET("/leaderboard/live", a.liveLeaderboard)
}

// writeError replies with the status of err. Internal causes are logged, never sent.
func writeError(c *gin.Context, err error) {
	e := errors.Convert(err)
	if e.Code == errors.CodeInternal {
		slog.ErrorContext(c.Request.Context(), "api: request failed",
			"path", c.FullPath(),
			"error", err,
		)
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(e.HTTPStatusCode(), gin.H{"error": e.Message})
}

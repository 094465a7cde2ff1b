package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/victornm/greensafari/internal/api"
	"github.com/victornm/greensafari/internal/bank"
	"github.com/victornm/greensafari/internal/challenge"
	"github.com/victornm/greensafari/internal/event"
	"github.com/victornm/greensafari/internal/generator"
	"github.com/victornm/greensafari/internal/history"
	"github.com/victornm/greensafari/internal/leaderboard"
	"github.com/victornm/greensafari/internal/progress"
	"github.com/victornm/greensafari/internal/provider"
	"github.com/victornm/greensafari/internal/quiz"
	"github.com/victornm/greensafari/internal/store"
	"github.com/victornm/greensafari/internal/subscription"
	"github.com/victornm/greensafari/internal/telemetry"
)

const healthInterval = 30 * time.Second

type ProviderConfig struct {
	Name    string
	APIKey  string
	BaseURL string
	Model   string
}

type Config struct {
	HTTP struct {
		Port int32
	}

	GRPC struct {
		Port int32
	}

	Log struct {
		Level string
	}

	// Postgres and Redis are optional, the server degrades to the static bank and in-memory state without them.
	Postgres struct {
		URL string
	}

	Redis struct {
		Addrs  []string
		Pass   string
		Prefix string
	}

	Providers struct {
		Primary   ProviderConfig
		Secondary ProviderConfig
	}

	Generator struct {
		Timeout  time.Duration
		Cooldown time.Duration
	}

	Leaderboard struct {
		Seed bool
	}
}

// DefaultConfig returns the values used for the keys missing from the config file and env.
func DefaultConfig() Config {
	var c Config
	c.HTTP.Port = 8080
	c.GRPC.Port = 8081
	c.Log.Level = "info"
	c.Redis.Prefix = "local"
	c.Providers.Primary = ProviderConfig{Name: "openai", Model: "gpt-4o"}
	c.Providers.Secondary = ProviderConfig{
		Name:    "perplexity",
		BaseURL: "https://api.perplexity.ai",
		Model:   "mixtral-8x7b-instruct",
	}
	c.Generator.Timeout = 8 * time.Second
	c.Generator.Cooldown = time.Hour
	return c
}

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		redis    redis.UniversalClient
		postgres *pgxpool.Pool
	}

	service struct {
		generator    *generator.Generator
		quiz         *quiz.Service
		challenge    *challenge.Service
		subscription *subscription.Service
		progress     *progress.Service
		leaderboard  *leaderboard.Service
	}

	store *store.Store
	api   *api.API

	// ctx is canceled on shutdown to stop the background work started by Start.
	ctx    context.Context
	cancel context.CancelFunc
	http   *http.Server
	grpc   *grpc.Server
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.eb = event.NewBus()

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	s.initService()
	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if err := s.initRedis(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := s.initPostgres(); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	return nil
}

func (s *Server) initRedis() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if len(s.c.Redis.Addrs) == 0 {
		slog.WarnContext(ctx, "server: redis not configured, leaderboard disabled")
		return nil
	}

	r := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    s.c.Redis.Addrs,
		Password: s.c.Redis.Pass,
	})

	if err := telemetry.MonitorRedis(r); err != nil {
		return err
	}

	if err := r.Ping(ctx).Err(); err != nil {
		slog.ErrorContext(ctx, "server: redis unreachable, leaderboard disabled", "error", err)
		return r.Close()
	}

	s.infra.redis = r
	return nil
}

// initPostgres connects lazily: an unreachable database only degrades the features using it.
func (s *Server) initPostgres() error {
	ctx := context.Background()

	if s.c.Postgres.URL == "" {
		slog.WarnContext(ctx, "server: postgres not configured, progress and subscriptions disabled")
		return nil
	}

	cc, err := pgxpool.ParseConfig(s.c.Postgres.URL)
	if err != nil {
		return err
	}

	db, err := pgxpool.NewWithConfig(ctx, cc)
	if err != nil {
		return err
	}

	pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.Ping(pctx); err != nil {
		slog.WarnContext(ctx, "server: postgres unreachable", "error", err)
	}

	s.infra.postgres = db
	return nil
}

func (s *Server) initService() {
	var providers []generator.Provider
	if p := s.c.Providers.Primary; p.APIKey != "" {
		providers = append(providers, provider.New(provider.Config{
			Name:     p.Name,
			APIKey:   p.APIKey,
			BaseURL:  p.BaseURL,
			Model:    p.Model,
			JSONMode: true,
		}))
	}
	if p := s.c.Providers.Secondary; p.APIKey != "" {
		providers = append(providers, provider.New(provider.Config{
			Name:    p.Name,
			APIKey:  p.APIKey,
			BaseURL: p.BaseURL,
			Model:   p.Model,
		}))
	}
	if len(providers) == 0 {
		slog.Warn("server: no question provider configured, using the static bank")
	}

	var cooldown generator.Cooldown
	if s.infra.redis != nil {
		cooldown = generator.NewRedisCooldown(s.infra.redis, s.c.Redis.Prefix)
	}

	b := bank.Default()

	s.service.generator = generator.New(generator.Config{
		Providers:      providers,
		Bank:           b,
		Cooldown:       cooldown,
		CooldownPeriod: s.c.Generator.Cooldown,
		Timeout:        s.c.Generator.Timeout,
	})

	// A nil pool must stay a nil interface.
	sc := store.Config{}
	if s.infra.postgres != nil {
		sc.DB = s.infra.postgres
	}
	s.store = store.New(sc)

	s.service.progress = progress.NewService(progress.Config{
		Store: s.store,
	})

	s.service.quiz = quiz.NewService(quiz.Config{
		Generator: s.service.generator,
		Bank:      b,
		History:   history.NewStore(),
	})

	s.service.challenge = challenge.NewService(challenge.Config{
		EventBus:  s.eb,
		Store:     s.store,
		Generator: s.service.generator,
		Streaker:  s.service.progress,
		Daily:     b.Daily(),
	})

	s.service.subscription = subscription.NewService(subscription.Config{
		Store: s.store,
	})

	if s.infra.redis != nil {
		s.service.leaderboard = leaderboard.NewService(leaderboard.Config{
			EventBus: s.eb,
			Redis:    s.infra.redis,
			Prefix:   s.c.Redis.Prefix,
		})
	}
}

func (s *Server) initAPI() {
	e := gin.New()
	e.Use(telemetry.GinLogger("/metrics", "/healthz"), gin.Recovery())
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")

	s.grpc = grpc.NewServer(telemetry.GRPCServerInterceptor(), telemetry.GRPCStreamInterceptor())

	ac := api.Config{
		Router:       e,
		GRPC:         s.grpc,
		EventBus:     s.eb,
		Generator:    s.service.generator,
		Quiz:         s.service.quiz,
		Challenge:    s.service.challenge,
		Subscription: s.service.subscription,
		Progress:     s.service.progress,
		Store:        s.store,
		Leaderboard:  s.service.leaderboard,
		PubsubPrefix: s.c.Redis.Prefix,
	}
	if s.infra.redis != nil {
		ac.Redis = s.infra.redis
	}
	s.api = api.New(ac)

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) Start() {
	ctx := s.ctx

	if s.c.Leaderboard.Seed && s.service.leaderboard != nil {
		if err := s.service.leaderboard.Seed(ctx, leaderboard.DefaultSeed); err != nil {
			slog.ErrorContext(ctx, "server: seed leaderboard failed", "error", err)
		}
	}

	go s.api.WatchHealth(ctx, healthInterval)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.c.GRPC.Port))
	if err != nil {
		slog.ErrorContext(ctx, "grpc server: listen failed", "error", err)
		panic(err)
	}

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: gRPC listening on port %d", s.c.GRPC.Port))
		return s.grpc.Serve(lis)
	})

	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	err = eg.Wait()
	if err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.cancel()

	s.api.Shutdown()
	s.grpc.GracefulStop()
	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	s.eb.Stop()

	if s.infra.redis != nil {
		if err := s.infra.redis.Close(); err != nil {
			slog.ErrorContext(ctx, "server: close redis failed", "error", err)
		}
	}
	if s.infra.postgres != nil {
		s.infra.postgres.Close()
	}

	slog.InfoContext(ctx, "server: shutdown completed")
}

package main

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/victornm/greensafari/internal/config"
	"github.com/victornm/greensafari/internal/server"
)

func main() {
	if err := godotenv.Load(); err != nil && !stderrors.Is(err, fs.ErrNotExist) {
		log.Fatalf("Load .env failed: %v", err)
	}

	c, err := loadConfig()
	if err != nil {
		log.Fatalf("Load config failed: %v", err)
	}

	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Log.Level)); err != nil {
		log.Fatalf("Invalid log level %q: %v", c.Log.Level, err)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})))

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGTERM, os.Interrupt)

	s, err := server.Init(c)
	if err != nil {
		log.Fatalf("Init server failed: %v", err)
	}

	go s.Start()

	<-shutdown
	s.Shutdown()
}

// loadConfig reads CONFIG_PATH when it is set. The env alone is enough to run the server.
func loadConfig() (server.Config, error) {
	c := server.DefaultConfig()

	err := config.Load(os.Getenv("CONFIG_PATH"), &c,
		config.WithEnvAlias("providers.primary.apikey", "OPENAI_API_KEY"),
		config.WithEnvAlias("providers.secondary.apikey", "PERPLEXITY_API_KEY"),
		config.WithEnvAlias("postgres.url", "DATABASE_URL"),
		config.WithEnvAlias("redis.addrs", "REDIS_ADDR"),
	)
	if err != nil {
		return c, fmt.Errorf("load config: %w", err)
	}

	return c, nil
}

package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	defaultAddr          = "127.0.0.1:8091"
	defaultCheckInterval = 30 * time.Second
	defaultWorkers       = 4
)

type Config struct {
	DBPath        string
	Addr          string
	CheckInterval time.Duration
	Workers       int
	RedisAddr     string

	UserKey   string
	AgentKey  string
	EngineKey string
}

func LoadConfig(args []string) (Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, fmt.Errorf("failed to get cwd: %w", err)
	}

	defaultDBPath := filepath.Join(cwd, "ghostcart.db")

	dbPath := envOrDefault("GHOSTCART_DB_PATH", defaultDBPath)
	addr := addrFromEnv(defaultAddr)
	checkInterval := defaultCheckInterval
	if intervalEnv := os.Getenv("GHOSTCART_CHECK_INTERVAL"); intervalEnv != "" {
		parsed, err := time.ParseDuration(intervalEnv)
		if err != nil {
			return Config{}, fmt.Errorf("invalid GHOSTCART_CHECK_INTERVAL: %w", err)
		}
		checkInterval = parsed
	}
	redisAddr := os.Getenv("GHOSTCART_REDIS_ADDR")

	flagSet := flag.NewFlagSet("ghostcart-d", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagDB := flagSet.String("db", dbPath, "path to SQLite database")
	flagAddr := flagSet.String("addr", addr, "HTTP listen address for /metrics")
	flagCheckInterval := flagSet.String("check-interval", checkInterval.String(), "monitoring job poll interval")
	flagWorkers := flagSet.Int("workers", defaultWorkers, "concurrent evaluation workers")
	flagRedis := flagSet.String("redis", redisAddr, "redis address for the distributed job lock (empty disables)")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			flagSet.SetOutput(os.Stdout)
			flagSet.PrintDefaults()
			return Config{}, err
		}
		return Config{}, err
	}

	checkIntervalParsed, err := time.ParseDuration(*flagCheckInterval)
	if err != nil {
		return Config{}, fmt.Errorf("invalid check interval: %w", err)
	}
	if checkIntervalParsed <= 0 {
		return Config{}, errors.New("check interval must be positive")
	}
	if *flagWorkers < 1 {
		return Config{}, errors.New("workers must be at least 1")
	}

	config := Config{
		DBPath:        resolvePath(*flagDB, cwd),
		Addr:          strings.TrimSpace(*flagAddr),
		CheckInterval: checkIntervalParsed,
		Workers:       *flagWorkers,
		RedisAddr:     strings.TrimSpace(*flagRedis),
		UserKey:       os.Getenv("GHOSTCART_USER_KEY"),
		AgentKey:      os.Getenv("GHOSTCART_AGENT_KEY"),
		EngineKey:     os.Getenv("GHOSTCART_ENGINE_KEY"),
	}

	if config.Addr == "" {
		return Config{}, errors.New("addr cannot be empty")
	}
	if config.UserKey == "" || config.AgentKey == "" || config.EngineKey == "" {
		return Config{}, errors.New("GHOSTCART_USER_KEY, GHOSTCART_AGENT_KEY, and GHOSTCART_ENGINE_KEY must all be set")
	}

	return config, nil
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func addrFromEnv(fallback string) string {
	if value := os.Getenv("GHOSTCART_ADDR"); value != "" {
		return value
	}
	if port := os.Getenv("GHOSTCART_PORT"); port != "" {
		return fmt.Sprintf("127.0.0.1:%s", port)
	}
	return fallback
}

func resolvePath(path string, cwd string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return trimmed
	}
	if filepath.IsAbs(trimmed) {
		return trimmed
	}
	return filepath.Join(cwd, trimmed)
}

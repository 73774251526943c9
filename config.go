package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the server settings
type Config struct {
	Addr            string
	DBPath          string
	LogLevel        string
	LogFormat       string
	PublicURL       string
	AllowedOrigins  []string
	MaxRooms        int
	RoomIdleTimeout time.Duration
}

// DefaultConfig returns the settings used when nothing is configured
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		DBPath:          "pew.db",
		LogLevel:        "info",
		LogFormat:       "console",
		PublicURL:       "http://localhost:8080",
		MaxRooms:        DefaultMaxRooms,
		RoomIdleTimeout: DefaultRoomIdleTimeout,
	}
}

// LoadConfig reads an optional .env file, then PEW_* environment variables,
// then command-line flags, each layer overriding the previous one.
func LoadConfig(args []string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := DefaultConfig()
	cfg.Addr = envString("PEW_ADDR", cfg.Addr)
	cfg.DBPath = envString("PEW_DB_PATH", cfg.DBPath)
	cfg.LogLevel = envString("PEW_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = envString("PEW_LOG_FORMAT", cfg.LogFormat)
	cfg.PublicURL = envString("PEW_PUBLIC_URL", cfg.PublicURL)
	origins := envString("PEW_ALLOWED_ORIGINS", "")

	var err error
	if cfg.MaxRooms, err = envInt("PEW_MAX_ROOMS", cfg.MaxRooms); err != nil {
		return Config{}, err
	}
	if cfg.RoomIdleTimeout, err = envDuration("PEW_ROOM_IDLE_TIMEOUT", cfg.RoomIdleTimeout); err != nil {
		return Config{}, err
	}

	fset := flag.NewFlagSet("pew-server", flag.ContinueOnError)
	fset.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP listen address")
	fset.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path (empty disables persistence)")
	fset.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	fset.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "console or json")
	fset.StringVar(&cfg.PublicURL, "public-url", cfg.PublicURL, "Base URL used in room share links")
	fset.StringVar(&origins, "origins", origins, "Comma separated extra allowed websocket origins")
	fset.IntVar(&cfg.MaxRooms, "max-rooms", cfg.MaxRooms, "Maximum number of live rooms")
	fset.DurationVar(&cfg.RoomIdleTimeout, "room-idle-timeout", cfg.RoomIdleTimeout, "Remove rooms without connections after this long")
	if err := fset.Parse(args); err != nil {
		return Config{}, err
	}

	cfg.AllowedOrigins = splitList(origins)
	if cfg.MaxRooms <= 0 {
		return Config{}, fmt.Errorf("max rooms must be positive, got %d", cfg.MaxRooms)
	}
	if cfg.RoomIdleTimeout <= 0 {
		return Config{}, fmt.Errorf("room idle timeout must be positive, got %s", cfg.RoomIdleTimeout)
	}
	return cfg, nil
}

func envString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

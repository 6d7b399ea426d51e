// Package config loads runtime settings from environment variables with
// sane defaults, so the binary runs with no configuration at all.
package config

import (
	"os"
	"strconv"
	"time"

	"dotchat/internal/chat"
)

// Config holds the server's tunables.
type Config struct {
	Addr            string
	StaticDir       string
	MaxWait         time.Duration
	ShutdownTimeout time.Duration
	Rooms           chat.Options
}

func defaults() Config {
	return Config{
		Addr:            ":5000",
		StaticDir:       "./public",
		MaxWait:         600 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		Rooms: chat.Options{
			MaxPrivateChannels:  chat.DefaultMaxPrivateChannels,
			HeartbeatInterval:   chat.DefaultHeartbeatInterval,
			IdleTimeout:         chat.DefaultIdleTimeout,
			DefibrillationDelay: chat.DefaultDefibrillationDelay,
		},
	}
}

// Load builds a Config from the environment, falling back to defaults for
// anything unset or unparsable.
func Load() Config {
	cfg := defaults()

	if addr := os.Getenv("SERVER_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	if dir := os.Getenv("STATIC_DIR"); dir != "" {
		cfg.StaticDir = dir
	}
	cfg.MaxWait = secondsEnv("MAX_POLL_WAIT", cfg.MaxWait)
	cfg.ShutdownTimeout = secondsEnv("SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	cfg.Rooms.MaxPrivateChannels = intEnv("MAX_PRIVATE_CHANNELS", cfg.Rooms.MaxPrivateChannels)
	cfg.Rooms.HeartbeatInterval = secondsEnv("HEARTBEAT_INTERVAL", cfg.Rooms.HeartbeatInterval)
	cfg.Rooms.IdleTimeout = secondsEnv("IDLE_TIMEOUT", cfg.Rooms.IdleTimeout)
	cfg.Rooms.DefibrillationDelay = secondsEnv("DEFIBRILLATION_DELAY", cfg.Rooms.DefibrillationDelay)

	return cfg
}

func intEnv(key string, fallback int) int {
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			return v
		}
	}
	return fallback
}

func secondsEnv(key string, fallback time.Duration) time.Duration {
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			return time.Duration(v) * time.Second
		}
	}
	return fallback
}

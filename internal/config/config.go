// Package config reads server settings from the environment, after loading
// a .env file when one is present.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"
	"go.uber.org/zap/zapcore"
)

type StoreKind string

const (
	StoreMemory   StoreKind = "memory"
	StoreRedis    StoreKind = "redis"
	StorePostgres StoreKind = "postgres"
)

var ErrInvalid = errors.New("invalid config")

type Config struct {
	Addr        string
	Store       StoreKind
	RedisURL    string
	DatabaseURL string
	LogLevel    zapcore.Level
	DropTime    time.Duration
	RoomTTL     time.Duration
	// Origins allowed to open a websocket from another host.
	Origins []string
}

func Default() Config {
	return Config{
		Addr:     ":8080",
		Store:    StoreMemory,
		LogLevel: zapcore.InfoLevel,
		DropTime: 300 * time.Millisecond,
		RoomTTL:  24 * time.Hour,
	}
}

// Load reads files (".env" when none are given) and then the environment.
// Missing files are not an error.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from a lookup function such as os.LookupEnv.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	c := Default()
	var errs []error

	if v, ok := lookup("CONNECT4_ADDR"); ok && v != "" {
		c.Addr = v
	}
	if v, ok := lookup("CONNECT4_STORE"); ok && v != "" {
		c.Store = StoreKind(strings.ToLower(v))
	}
	c.RedisURL, _ = lookup("CONNECT4_REDIS_URL")
	c.DatabaseURL, _ = lookup("CONNECT4_DATABASE_URL")

	if v, ok := lookup("CONNECT4_LOG_LEVEL"); ok && v != "" {
		lvl, err := zapcore.ParseLevel(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("CONNECT4_LOG_LEVEL: %w", err))
		}
		c.LogLevel = lvl
	}
	if v, ok := lookup("CONNECT4_DROP_MS"); ok && v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms < 0 {
			errs = append(errs, fmt.Errorf("CONNECT4_DROP_MS: want a non-negative integer, got %q", v))
		}
		c.DropTime = time.Duration(ms) * time.Millisecond
	}
	if v, ok := lookup("CONNECT4_ROOM_TTL"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("CONNECT4_ROOM_TTL: %w", err))
		}
		c.RoomTTL = d
	}
	if v, ok := lookup("CONNECT4_ORIGINS"); ok && v != "" {
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.Origins = append(c.Origins, o)
			}
		}
	}

	if err := multierr.Combine(errs...); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	switch c.Store {
	case StoreMemory:
	case StoreRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("%w: CONNECT4_REDIS_URL is required for the redis store", ErrInvalid)
		}
		if c.RoomTTL <= 0 {
			return fmt.Errorf("%w: CONNECT4_ROOM_TTL must be positive", ErrInvalid)
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("%w: CONNECT4_DATABASE_URL is required for the postgres store", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown store %q", ErrInvalid, c.Store)
	}
	if c.Addr == "" {
		return fmt.Errorf("%w: empty listen address", ErrInvalid)
	}
	return nil
}

// Package config loads client settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// State backends.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Config captures environment driven configuration values for the client.
type Config struct {
	APIURL string
	WSURL  string
	Token  string

	StateBackend  string
	StatePath     string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	ReconnectDelay time.Duration
	QueueSize      int
	HTTPTimeout    time.Duration

	// MetricsAddr, when set, is where /metrics is served.
	MetricsAddr string
}

// Load reads env files and parses the environment. With no files it reads
// ./.env if present. Variables already set in the process take precedence
// over the files.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil {
		if len(files) > 0 || !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to read env file: %w", err)
		}
	}
	return FromEnv()
}

// FromEnv parses configuration values from the current process environment.
//
// Defaults apply to optional fields. Missing required values and invalid
// values are each reported in a single error.
func FromEnv() (Config, error) {
	cfg := Config{
		StateBackend:   BackendSQLite,
		StatePath:      "./data/whobought.db",
		RedisAddr:      "localhost:6379",
		ReconnectDelay: time.Second,
		QueueSize:      64,
		HTTPTimeout:    10 * time.Second,
	}

	missing := make([]string, 0, 2)
	invalid := make([]string, 0, 2)

	if v := getEnv("WHOBOUGHT_API_URL"); v == "" {
		missing = append(missing, "WHOBOUGHT_API_URL")
	} else if !validURL(v, "http", "https") {
		invalid = append(invalid, "WHOBOUGHT_API_URL")
	} else {
		cfg.APIURL = v
	}

	if v := getEnv("WHOBOUGHT_WS_URL"); v == "" {
		missing = append(missing, "WHOBOUGHT_WS_URL")
	} else if !validURL(v, "ws", "wss") {
		invalid = append(invalid, "WHOBOUGHT_WS_URL")
	} else {
		cfg.WSURL = v
	}

	cfg.Token = getEnv("WHOBOUGHT_TOKEN")

	if v := getEnv("WHOBOUGHT_STATE_BACKEND"); v != "" {
		switch v = strings.ToLower(v); v {
		case BackendSQLite, BackendRedis:
			cfg.StateBackend = v
		default:
			invalid = append(invalid, "WHOBOUGHT_STATE_BACKEND")
		}
	}

	if v := getEnv("WHOBOUGHT_STATE_PATH"); v != "" {
		cfg.StatePath = v
	}
	if v := getEnv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")

	if v := getEnv("REDIS_DB"); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil || db < 0 {
			invalid = append(invalid, "REDIS_DB")
		} else {
			cfg.RedisDB = db
		}
	}

	if v := getEnv("WHOBOUGHT_RECONNECT_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			invalid = append(invalid, "WHOBOUGHT_RECONNECT_DELAY")
		} else {
			cfg.ReconnectDelay = d
		}
	}

	if v := getEnv("WHOBOUGHT_QUEUE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			invalid = append(invalid, "WHOBOUGHT_QUEUE_SIZE")
		} else {
			cfg.QueueSize = n
		}
	}

	if v := getEnv("WHOBOUGHT_HTTP_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			invalid = append(invalid, "WHOBOUGHT_HTTP_TIMEOUT")
		} else {
			cfg.HTTPTimeout = d
		}
	}

	cfg.MetricsAddr = getEnv("WHOBOUGHT_METRICS_ADDR")

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("required environment variables not set: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("invalid environment variable values: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

func getEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func validURL(raw string, schemes ...string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return true
		}
	}
	return false
}

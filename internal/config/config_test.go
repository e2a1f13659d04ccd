package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var allKeys = []string{
	"WHOBOUGHT_API_URL", "WHOBOUGHT_WS_URL", "WHOBOUGHT_TOKEN",
	"WHOBOUGHT_STATE_BACKEND", "WHOBOUGHT_STATE_PATH",
	"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
	"WHOBOUGHT_RECONNECT_DELAY", "WHOBOUGHT_QUEUE_SIZE", "WHOBOUGHT_HTTP_TIMEOUT",
	"WHOBOUGHT_METRICS_ADDR",
}

// clearEnv blanks every key so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range allKeys {
		t.Setenv(k, "")
	}
}

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("WHOBOUGHT_API_URL", "http://localhost:8000/api/v1/whobought")
	t.Setenv("WHOBOUGHT_WS_URL", "ws://localhost:8000/ws")
}

func TestFromEnv_Defaults(t *testing.T) {
	clearEnv(t)
	setRequired(t)

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv failed: %v", err)
	}
	if cfg.StateBackend != BackendSQLite || cfg.StatePath != "./data/whobought.db" {
		t.Errorf("unexpected state defaults: %+v", cfg)
	}
	if cfg.ReconnectDelay != time.Second || cfg.QueueSize != 64 || cfg.HTTPTimeout != 10*time.Second {
		t.Errorf("unexpected transport defaults: %+v", cfg)
	}
	if cfg.RedisAddr != "localhost:6379" || cfg.MetricsAddr != "" {
		t.Errorf("unexpected optional defaults: %+v", cfg)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	clearEnv(t)
	setRequired(t)
	t.Setenv("WHOBOUGHT_TOKEN", " abc ")
	t.Setenv("WHOBOUGHT_STATE_BACKEND", "Redis")
	t.Setenv("REDIS_ADDR", "cache:6380")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("WHOBOUGHT_RECONNECT_DELAY", "250ms")
	t.Setenv("WHOBOUGHT_QUEUE_SIZE", "8")
	t.Setenv("WHOBOUGHT_HTTP_TIMEOUT", "3s")
	t.Setenv("WHOBOUGHT_METRICS_ADDR", ":9090")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv failed: %v", err)
	}
	want := Config{
		APIURL:         "http://localhost:8000/api/v1/whobought",
		WSURL:          "ws://localhost:8000/ws",
		Token:          "abc",
		StateBackend:   BackendRedis,
		StatePath:      "./data/whobought.db",
		RedisAddr:      "cache:6380",
		RedisDB:        2,
		ReconnectDelay: 250 * time.Millisecond,
		QueueSize:      8,
		HTTPTimeout:    3 * time.Second,
		MetricsAddr:    ":9090",
	}
	if cfg != want {
		t.Errorf("FromEnv() = %+v, want %+v", cfg, want)
	}
}

func TestFromEnv_Errors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr []string
	}{
		{
			name:    "missing required",
			env:     map[string]string{},
			wantErr: []string{"WHOBOUGHT_API_URL", "WHOBOUGHT_WS_URL"},
		},
		{
			name: "wrong url schemes",
			env: map[string]string{
				"WHOBOUGHT_API_URL": "ws://localhost",
				"WHOBOUGHT_WS_URL":  "http://localhost",
			},
			wantErr: []string{"WHOBOUGHT_API_URL", "WHOBOUGHT_WS_URL"},
		},
		{
			name: "invalid values",
			env: map[string]string{
				"WHOBOUGHT_API_URL":         "http://localhost",
				"WHOBOUGHT_WS_URL":          "ws://localhost",
				"WHOBOUGHT_STATE_BACKEND":   "postgres",
				"WHOBOUGHT_RECONNECT_DELAY": "soon",
				"WHOBOUGHT_QUEUE_SIZE":      "0",
				"REDIS_DB":                  "-1",
			},
			wantErr: []string{"WHOBOUGHT_STATE_BACKEND", "WHOBOUGHT_RECONNECT_DELAY", "WHOBOUGHT_QUEUE_SIZE", "REDIS_DB"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := FromEnv()
			if err == nil {
				t.Fatal("expected error")
			}
			for _, key := range tt.wantErr {
				if !strings.Contains(err.Error(), key) {
					t.Errorf("error %q does not mention %s", err, key)
				}
			}
		})
	}
}

func TestLoad_DotEnv(t *testing.T) {
	clearEnv(t)
	// godotenv never overrides a variable that is set, even to "".
	os.Unsetenv("WHOBOUGHT_API_URL")
	os.Unsetenv("WHOBOUGHT_WS_URL")

	dir := t.TempDir()
	env := "WHOBOUGHT_API_URL=https://api.example.com/api/v1/whobought\nWHOBOUGHT_WS_URL=wss://push.example.com/ws\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(env), 0o600); err != nil {
		t.Fatalf("failed to write .env: %v", err)
	}
	t.Chdir(dir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.APIURL != "https://api.example.com/api/v1/whobought" || cfg.WSURL != "wss://push.example.com/ws" {
		t.Errorf("unexpected urls: %+v", cfg)
	}
}

func TestLoad_NoDotEnv(t *testing.T) {
	clearEnv(t)
	setRequired(t)
	t.Chdir(t.TempDir())

	if _, err := Load(); err != nil {
		t.Fatalf("Load without .env failed: %v", err)
	}
}

func TestLoad_ExplicitFileMissing(t *testing.T) {
	clearEnv(t)
	setRequired(t)

	if _, err := Load(filepath.Join(t.TempDir(), "missing.env")); err == nil {
		t.Fatal("expected error for a missing explicit env file")
	}
}

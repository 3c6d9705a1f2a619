package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseRateLimit(t *testing.T) {
	tests := []struct {
		in      string
		want    RateLimit
		wantErr bool
	}{
		{in: "100 per hour", want: RateLimit{100, time.Hour}},
		{in: "100/hour", want: RateLimit{100, time.Hour}},
		{in: "5 per minute", want: RateLimit{5, time.Minute}},
		{in: "10 per 5 minutes", want: RateLimit{10, 5 * time.Minute}},
		{in: " 2 PER SECOND ", want: RateLimit{2, time.Second}},
		{in: "1000 per day", want: RateLimit{1000, 24 * time.Hour}},
		{in: "lots", wantErr: true},
		{in: "0 per hour", wantErr: true},
		{in: "5 per fortnight", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseRateLimit(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("ParseRateLimit(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Fatalf("ParseRateLimit(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.App.Port != 8080 || cfg.Limits.MaxMessages != 50 || cfg.Limits.MaxMessageLength != 2000 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.RateLimit != (RateLimit{100, time.Hour}) {
		t.Fatalf("rate limit = %v", cfg.RateLimit)
	}
	if got := cfg.Origins(); len(got) != 1 || got[0] != "*" {
		t.Fatalf("origins = %v", got)
	}
	if cfg.Log.Level != "INFO" || cfg.Development() {
		t.Fatalf("log defaults = %q dev=%v", cfg.Log.Level, cfg.Development())
	}
	if cfg.CacheTTL != time.Hour || cfg.FetchTimeout != 10*time.Second {
		t.Fatalf("derived durations = %s %s", cfg.CacheTTL, cfg.FetchTimeout)
	}
}

func TestLoadLegacyEnvironment(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("RATE_LIMIT", "5 per minute")
	t.Setenv("MAX_MESSAGES", "3")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("CHAT2PNG_CACHE_REDIS_ADDR", "localhost:6379")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.App.Port != 9000 || cfg.Limits.MaxMessages != 3 || cfg.Log.Level != "DEBUG" {
		t.Fatalf("legacy variables ignored: %+v", cfg)
	}
	if cfg.RateLimit != (RateLimit{5, time.Minute}) {
		t.Fatalf("rate limit = %v", cfg.RateLimit)
	}
	if got := cfg.Origins(); len(got) != 2 || got[1] != "https://b.example" {
		t.Fatalf("origins = %v", got)
	}
	if cfg.Cache.RedisAddr != "localhost:6379" {
		t.Fatalf("redis addr = %q", cfg.Cache.RedisAddr)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat2png.yaml")
	body := "app:\n  env: development\nrender:\n  method: browser\n  width: 640\ncache:\n  enabled: false\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Development() || cfg.Render.Method != "browser" || cfg.Render.Width != 640 || cfg.Cache.Enabled {
		t.Fatalf("file values ignored: %+v", cfg)
	}
}

func TestLoadRejectsBadRateLimit(t *testing.T) {
	t.Setenv("RATE_LIMIT", "often")
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for malformed RATE_LIMIT")
	}
}

package server

import (
	"bytes"
	"image"
	_ "image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/arran4/chat2png"
	"github.com/arran4/chat2png/internal/cache"
	"github.com/arran4/chat2png/internal/config"
)

const scenarioBody = `{"messages":[{"username":"roo","content":"Hey everyone!","color":"#ff66ff","timestamp":"2024-03-09 14:05","reactions":[{"emoji":"👋","count":3,"userHasReacted":true}]}]}`

func testConfig(rl config.RateLimit) *config.Config {
	cfg := &config.Config{RateLimit: rl, RenderTimeout: 30 * time.Second}
	cfg.App.Port = 0
	cfg.Limits.MaxMessages = 50
	cfg.Limits.MaxMessageLength = 2000
	cfg.CORS.AllowedOrigins = "*"
	cfg.Render.Method = "canvas"
	cfg.Render.Width = 800
	cfg.Render.Theme = "dark"
	return cfg
}

func newTestServer(t *testing.T, rl config.RateLimit) *Server {
	t.Helper()
	r, err := chat2png.NewRenderer(chat2png.Config{})
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	s := New(testConfig(rl), r, cache.NewMemory(16, time.Minute), nil)
	t.Cleanup(s.stop)
	return s
}

func do(t *testing.T, s *Server, method, target, body string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.App().Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, target, err)
	}
	return resp
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, config.RateLimit{})
	resp := do(t, s, http.MethodGet, "/health", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body["status"] != "healthy" {
		t.Fatalf("body = %v, %v", body, err)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatalf("missing request id")
	}
}

func TestGenerateCachesImage(t *testing.T) {
	s := newTestServer(t, config.RateLimit{})

	first := do(t, s, http.MethodPost, "/generate", scenarioBody)
	if first.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(first.Body)
		t.Fatalf("status = %d: %s", first.StatusCode, b)
	}
	if first.Header.Get("Content-Type") != "image/png" {
		t.Fatalf("content type = %q", first.Header.Get("Content-Type"))
	}
	if got := first.Header.Get("Content-Disposition"); got != `attachment; filename="discord_messages.png"` {
		t.Fatalf("content disposition = %q", got)
	}
	if first.Header.Get("X-Cache") != "MISS" {
		t.Fatalf("first request should miss the cache")
	}
	data, _ := io.ReadAll(first.Body)
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if img.Bounds().Dx() != 800 || img.Bounds().Dy() != 94 {
		t.Fatalf("image = %v", img.Bounds())
	}

	second := do(t, s, http.MethodPost, "/render", scenarioBody)
	if second.Header.Get("X-Cache") != "HIT" {
		t.Fatalf("second request should hit the cache")
	}
	again, _ := io.ReadAll(second.Body)
	if !bytes.Equal(data, again) {
		t.Fatalf("cached image differs")
	}

	third := do(t, s, http.MethodPost, "/generate?nocache=1", scenarioBody)
	if third.Header.Get("X-Cache") != "MISS" {
		t.Fatalf("nocache should bypass the cache")
	}
}

func TestGenerateRejectsInvalidColor(t *testing.T) {
	s := newTestServer(t, config.RateLimit{})
	resp := do(t, s, http.MethodPost, "/generate", `{"messages":[{"username":"roo","content":"hi","color":"red"}]}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body struct {
		Error      string               `json:"error"`
		Violations []chat2png.Violation `json:"violations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Violations) != 1 || body.Violations[0].Field != "messages[0].color" {
		t.Fatalf("violations = %+v", body.Violations)
	}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "image/") {
		t.Fatalf("no image may be returned for invalid input")
	}
}

func TestGenerateRejectsUnknownMethodOverride(t *testing.T) {
	s := newTestServer(t, config.RateLimit{})
	resp := do(t, s, http.MethodPost, "/generate?method=vector", scenarioBody)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestGenerateRejectsMalformedJSON(t *testing.T) {
	s := newTestServer(t, config.RateLimit{})
	resp := do(t, s, http.MethodPost, "/generate", `{"messages": [`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestGenerateRateLimited(t *testing.T) {
	s := newTestServer(t, config.RateLimit{Count: 1, Per: time.Hour})
	if resp := do(t, s, http.MethodPost, "/generate", scenarioBody); resp.StatusCode != http.StatusOK {
		t.Fatalf("first request status = %d", resp.StatusCode)
	}
	resp := do(t, s, http.MethodPost, "/generate", scenarioBody)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d", resp.StatusCode)
	}
	if resp := do(t, s, http.MethodGet, "/health", ""); resp.StatusCode != http.StatusOK {
		t.Fatalf("health must not be rate limited")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, config.RateLimit{})
	do(t, s, http.MethodPost, "/generate", scenarioBody)
	resp := do(t, s, http.MethodGet, "/metrics", "")
	body, _ := io.ReadAll(resp.Body)
	for _, want := range []string{"chat2png_renders_total", "chat2png_cache_requests_total", "go_goroutines"} {
		if !bytes.Contains(body, []byte(want)) {
			t.Fatalf("metrics missing %s", want)
		}
	}
}

func TestJPEGAttachmentName(t *testing.T) {
	s := newTestServer(t, config.RateLimit{})
	body := strings.Replace(scenarioBody, `{"messages"`, `{"format":"jpeg","quality":0.8,"messages"`, 1)
	resp := do(t, s, http.MethodPost, "/generate", body)
	if resp.Header.Get("Content-Type") != "image/jpeg" {
		t.Fatalf("content type = %q", resp.Header.Get("Content-Type"))
	}
	if got := resp.Header.Get("Content-Disposition"); got != `attachment; filename="discord_messages.jpg"` {
		t.Fatalf("content disposition = %q", got)
	}
}

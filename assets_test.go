package chat2png

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{0x20, 0x80, 0xF0, 0xFF})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func TestFetchAllAbsorbsFailures(t *testing.T) {
	body := testPNG(t, 4, 3)
	mux := http.NewServeMux()
	mux.HandleFunc("/ok.png", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" {
			t.Errorf("missing user agent")
		}
		_, _ = w.Write(body)
	})
	mux.HandleFunc("/missing.png", http.NotFound)
	mux.HandleFunc("/garbage.png", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not an image"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := NewFetcher(FetchConfig{Timeout: time.Second}, nil)
	urls := []string{srv.URL + "/ok.png", srv.URL + "/missing.png", srv.URL + "/garbage.png", "ftp://example.com/a.png"}
	assets := f.FetchAll(context.Background(), urls)
	if assets.Len() != 1 {
		t.Fatalf("expected one fetched asset, got %d", assets.Len())
	}
	img, ok := assets.Get(srv.URL + "/ok.png")
	if !ok || img.Bounds().Dx() != 4 || img.Bounds().Dy() != 3 {
		t.Fatalf("unexpected asset %v", img)
	}
	if _, ok := assets.Get(srv.URL + "/missing.png"); ok {
		t.Fatalf("failed fetch must not be stored")
	}
}

func TestFetchRetriesServerErrors(t *testing.T) {
	body := testPNG(t, 2, 2)
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	f := NewFetcher(FetchConfig{Timeout: 5 * time.Second, Retries: 3}, nil)
	if _, err := f.Fetch(context.Background(), srv.URL); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestFetchDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	f := NewFetcher(FetchConfig{Timeout: 5 * time.Second, Retries: 3}, nil)
	if _, err := f.Fetch(context.Background(), srv.URL); err == nil {
		t.Fatalf("expected an error")
	}
	if calls.Load() != 1 {
		t.Fatalf("client errors must not be retried, got %d attempts", calls.Load())
	}
}

func TestFetchTimesOut(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	f := NewFetcher(FetchConfig{Timeout: 100 * time.Millisecond}, nil)
	start := time.Now()
	assets := f.FetchAll(context.Background(), []string{srv.URL + "/slow.png"})
	if assets.Len() != 0 {
		t.Fatalf("stalled fetch should be dropped")
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("stalled fetch blocked for %s", time.Since(start))
	}
}

func TestFetchSizeLimit(t *testing.T) {
	body := testPNG(t, 64, 64)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	f := NewFetcher(FetchConfig{MaxBytes: 16}, nil)
	if _, err := f.Fetch(context.Background(), srv.URL); err == nil {
		t.Fatalf("oversized image should be rejected")
	}
}

func TestFetchDataURL(t *testing.T) {
	dest := "data:image/png;base64," + base64.StdEncoding.EncodeToString(testPNG(t, 5, 7))
	img, err := NewFetcher(FetchConfig{}, nil).Fetch(context.Background(), dest)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if img.Bounds().Dx() != 5 || img.Bounds().Dy() != 7 {
		t.Fatalf("data image size = %v", img.Bounds())
	}
}

func TestFetchLocalRequiresOptIn(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.png")
	if err := os.WriteFile(path, testPNG(t, 3, 3), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := NewFetcher(FetchConfig{}, nil).Fetch(context.Background(), "file://"+path); err == nil {
		t.Fatalf("local files must be refused by default")
	}
	local := NewFetcher(FetchConfig{AllowLocal: true, BaseDir: dir}, nil)
	for _, dest := range []string{"file://" + path, "a.png"} {
		if _, err := local.Fetch(context.Background(), dest); err != nil {
			t.Fatalf("Fetch(%s): %v", dest, err)
		}
	}
}

func TestDocumentImageURLs(t *testing.T) {
	a := roo()
	a.AvatarURL = "https://example.com/roo.png"
	b := roo()
	b.AvatarURL = "https://example.com/roo.png"
	b.Embeds = []Embed{{Title: "x", ThumbnailURL: "https://example.com/t.png"}}
	d := LayoutDocument(fixedMetrics{}, DarkTheme, Document{Messages: []Message{a, b}}, 800)
	urls := d.ImageURLs()
	if len(urls) != 2 || urls[0] != "https://example.com/roo.png" || urls[1] != "https://example.com/t.png" {
		t.Fatalf("ImageURLs = %v", urls)
	}
}

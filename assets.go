package chat2png

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"
)

// FetchConfig controls how avatars, attachments and embed images are loaded.
type FetchConfig struct {
	// Timeout bounds one URL including retries.
	Timeout     time.Duration
	Concurrency int
	MaxBytes    int64
	Retries     uint64
	// AllowLocal enables file:// and bare paths. Only the CLI turns it on.
	AllowLocal bool
	BaseDir    string
	Client     *http.Client
}

const (
	defaultFetchTimeout     = 10 * time.Second
	defaultFetchConcurrency = 8
	defaultFetchMaxBytes    = 10 << 20
)

func (c FetchConfig) withDefaults() FetchConfig {
	if c.Timeout <= 0 {
		c.Timeout = defaultFetchTimeout
	}
	if c.Concurrency <= 0 {
		c.Concurrency = defaultFetchConcurrency
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = defaultFetchMaxBytes
	}
	if c.Client == nil {
		c.Client = &http.Client{Timeout: c.Timeout}
	}
	return c
}

type imageResolver func(ctx context.Context, dest string) (image.Image, error)

// Fetcher loads images by URL scheme. It is safe for concurrent use.
type Fetcher struct {
	cfg       FetchConfig
	log       *zap.Logger
	resolvers map[string]imageResolver
}

// NewFetcher returns a Fetcher. A nil logger discards fetch warnings.
func NewFetcher(cfg FetchConfig, log *zap.Logger) *Fetcher {
	if log == nil {
		log = zap.NewNop()
	}
	f := &Fetcher{cfg: cfg.withDefaults(), log: log}
	f.resolvers = map[string]imageResolver{
		"http":  f.resolveRemote,
		"https": f.resolveRemote,
		"data":  resolveData,
	}
	if f.cfg.AllowLocal {
		f.resolvers[""] = f.resolveLocal
		f.resolvers["file"] = f.resolveLocal
	}
	return f
}

func scheme(dest string) string {
	if strings.HasPrefix(strings.ToLower(dest), "data:") {
		return "data"
	}
	if idx := strings.Index(dest, "://"); idx != -1 {
		return strings.ToLower(dest[:idx])
	}
	return ""
}

// Fetch loads and decodes one image, bounded by the configured timeout.
func (f *Fetcher) Fetch(ctx context.Context, dest string) (image.Image, error) {
	dest = strings.TrimSpace(dest)
	if dest == "" {
		return nil, errors.New("chat2png: empty image destination")
	}
	s := scheme(dest)
	resolver, ok := f.resolvers[s]
	if !ok {
		if s != "" {
			return nil, fmt.Errorf("chat2png: unsupported image scheme: %s", s)
		}
		return nil, fmt.Errorf("chat2png: unsupported image destination: %s", dest)
	}
	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()
	return resolver(ctx, dest)
}

// Assets holds the images fetched for one render. Missing entries are
// drawn as placeholders.
type Assets struct {
	mu     sync.RWMutex
	images map[string]image.Image
}

// NewAssets returns an empty asset set.
func NewAssets() *Assets {
	return &Assets{images: make(map[string]image.Image)}
}

func (a *Assets) Get(url string) (image.Image, bool) {
	if a == nil {
		return nil, false
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	img, ok := a.images[url]
	return img, ok
}

func (a *Assets) put(url string, img image.Image) {
	a.mu.Lock()
	a.images[url] = img
	a.mu.Unlock()
}

func (a *Assets) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.images)
}

// FetchAll loads every URL concurrently. A failed or timed out fetch is
// logged and left out of the result; it never fails the render.
func (f *Fetcher) FetchAll(ctx context.Context, urls []string) *Assets {
	assets := NewAssets()
	var g errgroup.Group
	g.SetLimit(f.cfg.Concurrency)
	for _, u := range urls {
		u := u
		g.Go(func() error {
			img, err := f.Fetch(ctx, u)
			if err != nil {
				f.log.Warn("asset fetch failed", zap.String("url", u), zap.Error(err))
				return nil
			}
			assets.put(u, img)
			return nil
		})
	}
	_ = g.Wait()
	return assets
}

// ImageURLs lists every distinct image URL referenced by the layout.
func (d *DocumentLayout) ImageURLs() []string {
	seen := map[string]bool{}
	var urls []string
	d.Root.Walk(func(n *Node, _, _ int) bool {
		if n.Image != nil && n.Image.URL != "" && !seen[n.Image.URL] {
			seen[n.Image.URL] = true
			urls = append(urls, n.Image.URL)
		}
		return true
	})
	return urls
}

func (f *Fetcher) resolveRemote(ctx context.Context, dest string) (image.Image, error) {
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(backoff.WithInitialInterval(200*time.Millisecond)), f.cfg.Retries),
		ctx,
	)
	return backoff.RetryWithData(func() (image.Image, error) {
		return f.get(ctx, dest)
	}, b)
}

func (f *Fetcher) get(ctx context.Context, dest string) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, dest, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("User-Agent", "chat2png/1.0")
	resp, err := f.cfg.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("chat2png: fetching image %s: %s", dest, resp.Status)
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > f.cfg.MaxBytes {
		return nil, backoff.Permanent(fmt.Errorf("chat2png: image %s exceeds %d bytes", dest, f.cfg.MaxBytes))
	}
	img, _, err := image.Decode(bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("chat2png: decoding image %s: %w", dest, err))
	}
	return img, nil
}

func resolveData(_ context.Context, dest string) (image.Image, error) {
	meta, payload, ok := strings.Cut(dest[len("data:"):], ",")
	if !ok {
		return nil, errors.New("chat2png: malformed data URL")
	}
	var raw []byte
	var err error
	if strings.HasSuffix(strings.ToLower(meta), ";base64") {
		raw, err = base64.StdEncoding.DecodeString(payload)
	} else {
		var s string
		s, err = url.PathUnescape(payload)
		raw = []byte(s)
	}
	if err != nil {
		return nil, fmt.Errorf("chat2png: malformed data URL: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	return img, err
}

func (f *Fetcher) resolveLocal(_ context.Context, dest string) (image.Image, error) {
	path := strings.TrimPrefix(dest, "file://")
	if !filepath.IsAbs(path) && f.cfg.BaseDir != "" {
		path = filepath.Join(f.cfg.BaseDir, path)
	}
	fh, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	img, _, err := image.Decode(fh)
	return img, err
}

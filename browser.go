package chat2png

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"os/exec"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// BrowserConfig controls the headless Chrome used by the browser backend.
type BrowserConfig struct {
	// ExecPath overrides Chrome discovery.
	ExecPath string
	// Timeout bounds one render including browser startup.
	Timeout time.Duration
	// ImageWait bounds how long the page may spend loading images.
	ImageWait time.Duration
	// ViewportHeight is the initial window height; the screenshot always
	// covers the full page.
	ViewportHeight int
}

const (
	defaultBrowserTimeout   = 30 * time.Second
	defaultBrowserImageWait = 10 * time.Second
	defaultViewportHeight   = 600
)

func (c BrowserConfig) withDefaults() BrowserConfig {
	if c.Timeout <= 0 {
		c.Timeout = defaultBrowserTimeout
	}
	if c.ImageWait <= 0 {
		c.ImageWait = defaultBrowserImageWait
	}
	if c.ViewportHeight <= 0 {
		c.ViewportHeight = defaultViewportHeight
	}
	return c
}

// BrowserBackend renders the layout as HTML and screenshots it in a
// headless Chrome started for that request alone.
type BrowserBackend struct {
	cfg   BrowserConfig
	fonts *Fonts
	log   *zap.Logger
}

// NewBrowserBackend returns a browser backend. Chrome is only looked up
// when a render starts.
func NewBrowserBackend(cfg BrowserConfig, fonts *Fonts, log *zap.Logger) *BrowserBackend {
	if log == nil {
		log = zap.NewNop()
	}
	return &BrowserBackend{cfg: cfg.withDefaults(), fonts: fonts, log: log}
}

func (b *BrowserBackend) Method() RenderMethod { return MethodBrowser }

// Available reports whether a Chrome binary can be found.
func (b *BrowserBackend) Available() bool {
	if b.cfg.ExecPath != "" {
		_, err := os.Stat(b.cfg.ExecPath)
		return err == nil
	}
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "headless-shell", "chrome"} {
		if _, err := exec.LookPath(name); err == nil {
			return true
		}
	}
	return false
}

func (b *BrowserBackend) layout(doc Document, opts Options) (*DocumentLayout, error) {
	theme, err := ThemeByName(opts.Theme)
	if err != nil {
		return nil, err
	}
	d := LayoutDocument(b.fonts.NewMetrics(), theme, doc, opts.Width)
	if err := checkLayout(d); err != nil {
		return nil, err
	}
	return d, nil
}

func (b *BrowserBackend) Render(ctx context.Context, doc Document, opts Options) (*Result, error) {
	opts = opts.WithDefaults()
	d, err := b.layout(doc, opts)
	if err != nil {
		return nil, err
	}
	var shot []byte
	err = b.run(ctx, d, chromedp.FullScreenshot(&shot, 100))
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(shot))
	if err != nil {
		return nil, fmt.Errorf("chat2png: decode screenshot: %w", err)
	}
	return encodeResult(img, opts)
}

// messageHeightsJS measures every message element after images settled.
const messageHeightsJS = `Array.from(document.querySelectorAll("div.message")).map(e => Math.round(e.getBoundingClientRect().height))`

func (b *BrowserBackend) MessageHeights(ctx context.Context, doc Document, opts Options) ([]int, error) {
	opts = opts.WithDefaults()
	d, err := b.layout(doc, opts)
	if err != nil {
		return nil, err
	}
	var hs []int
	if err := b.run(ctx, d, chromedp.Evaluate(messageHeightsJS, &hs)); err != nil {
		return nil, err
	}
	return hs, nil
}

// run writes the page to a temp file, loads it in a fresh browser and runs
// capture once the body and its images are ready. The browser process and
// the temp file are released on every return path.
func (b *BrowserBackend) run(ctx context.Context, d *DocumentLayout, capture chromedp.Action) error {
	page, err := BuildMarkup(d, b.fonts)
	if err != nil {
		return err
	}
	f, err := os.CreateTemp("", "chat2png-*.html")
	if err != nil {
		return err
	}
	path := f.Name()
	defer os.Remove(path)
	if _, err := f.Write(page); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.WindowSize(d.Width, b.cfg.ViewportHeight),
	)
	if b.cfg.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(b.cfg.ExecPath))
	}

	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	start := time.Now()
	err = chromedp.Run(browserCtx,
		chromedp.EmulateViewport(int64(d.Width), int64(b.cfg.ViewportHeight)),
		chromedp.Navigate("file://"+path),
		chromedp.WaitReady("body", chromedp.ByQuery),
		b.waitImages(),
		capture,
	)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("chat2png: browser render timed out after %s: %w", b.cfg.Timeout, err)
		}
		return fmt.Errorf("chat2png: browser render: %w", err)
	}
	b.log.Debug("browser render finished", zap.Duration("elapsed", time.Since(start)), zap.Int("width", d.Width))
	return nil
}

// waitImages polls until every image finished loading or failed. Running
// out of time is not an error: unloaded images keep their placeholder.
func (b *BrowserBackend) waitImages() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		err := chromedp.Poll(`Array.from(document.images).every(i => i.complete)`, nil,
			chromedp.WithPollingTimeout(b.cfg.ImageWait),
			chromedp.WithPollingInterval(50*time.Millisecond),
		).Do(ctx)
		if err != nil && ctx.Err() == nil {
			b.log.Warn("images still loading at capture", zap.Error(err))
			return nil
		}
		return err
	})
}

// Package chat2png renders chat conversations (messages with markdown
// bodies, reactions, attachments, embeds and code blocks) to PNG or JPEG.
//
// A Document is laid out once into a tree of positioned nodes. Two
// backends turn that tree into pixels: the canvas backend draws it directly
// and the browser backend emits equivalent markup and screenshots it in
// headless Chrome.
package chat2png

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Backend turns a validated Document into encoded image bytes.
type Backend interface {
	Method() RenderMethod
	Render(ctx context.Context, doc Document, opts Options) (*Result, error)
	// MessageHeights reports the laid out height of each message.
	MessageHeights(ctx context.Context, doc Document, opts Options) ([]int, error)
}

// Result is an encoded image.
type Result struct {
	Data        []byte
	Format      Format
	ContentType string
	Width       int
	Height      int
}

// Config wires a Renderer. Nil Fonts loads the bundled Go fonts.
type Config struct {
	Fonts   *Fonts
	Fetch   FetchConfig
	Browser BrowserConfig
	Logger  *zap.Logger
}

// Renderer dispatches documents to the backend named in the options. It
// keeps no per-request state and is safe for concurrent use.
type Renderer struct {
	backends map[RenderMethod]Backend
	log      *zap.Logger
}

// NewRenderer builds a Renderer with both backends registered.
func NewRenderer(cfg Config) (*Renderer, error) {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	fonts := cfg.Fonts
	if fonts == nil {
		var err error
		if fonts, err = LoadFonts(FontConfig{}); err != nil {
			return nil, err
		}
	}
	fetcher := NewFetcher(cfg.Fetch, log.Named("fetch"))
	r := &Renderer{backends: map[RenderMethod]Backend{}, log: log}
	r.Register(NewCanvasBackend(fonts, fetcher, log.Named("canvas")))
	r.Register(NewBrowserBackend(cfg.Browser, fonts, log.Named("browser")))
	return r, nil
}

// Register adds or replaces the backend for b.Method().
func (r *Renderer) Register(b Backend) {
	r.backends[b.Method()] = b
}

// Backend returns the backend registered for method.
func (r *Renderer) Backend(method RenderMethod) (Backend, error) {
	if method == "" {
		method = MethodCanvas
	}
	b, ok := r.backends[method]
	if !ok {
		return nil, &InvalidInputError{Violations: []Violation{{
			Field:   "renderMethod",
			Message: fmt.Sprintf("unknown render method %q", method),
		}}}
	}
	return b, nil
}

func (r *Renderer) checkOptions(opts Options) error {
	if _, err := ThemeByName(opts.Theme); err != nil {
		return &InvalidInputError{Violations: []Violation{{Field: "theme", Message: err.Error()}}}
	}
	return nil
}

// Render produces the image for doc. Asset failures are absorbed; a
// backend failure returns a *BackendError and no bytes.
func (r *Renderer) Render(ctx context.Context, doc Document, opts Options) (*Result, error) {
	opts = opts.WithDefaults()
	if err := r.checkOptions(opts); err != nil {
		return nil, err
	}
	b, err := r.Backend(opts.Method)
	if err != nil {
		return nil, err
	}
	res, err := b.Render(ctx, doc, opts)
	if err != nil {
		var invalid *InvalidInputError
		if errors.As(err, &invalid) {
			return nil, err
		}
		r.log.Error("render failed", zap.String("method", string(opts.Method)), zap.Error(err))
		return nil, backendError(opts.Method, err)
	}
	return res, nil
}

// MessageHeights returns per-message heights from the selected backend.
func (r *Renderer) MessageHeights(ctx context.Context, doc Document, opts Options) ([]int, error) {
	opts = opts.WithDefaults()
	if err := r.checkOptions(opts); err != nil {
		return nil, err
	}
	b, err := r.Backend(opts.Method)
	if err != nil {
		return nil, err
	}
	hs, err := b.MessageHeights(ctx, doc, opts)
	if err != nil {
		var invalid *InvalidInputError
		if errors.As(err, &invalid) {
			return nil, err
		}
		return nil, backendError(opts.Method, err)
	}
	return hs, nil
}

package chat2png

import (
	"context"
	"image"

	"go.uber.org/zap"
)

// CanvasBackend rasterizes the layout tree directly. It needs no external
// process and produces identical bytes for identical input and assets.
type CanvasBackend struct {
	fonts   *Fonts
	fetcher *Fetcher
	log     *zap.Logger
}

// NewCanvasBackend returns a canvas backend drawing with fonts and loading
// images through fetcher.
func NewCanvasBackend(fonts *Fonts, fetcher *Fetcher, log *zap.Logger) *CanvasBackend {
	if log == nil {
		log = zap.NewNop()
	}
	return &CanvasBackend{fonts: fonts, fetcher: fetcher, log: log}
}

func (b *CanvasBackend) Method() RenderMethod { return MethodCanvas }

func (b *CanvasBackend) layout(doc Document, opts Options) (*DocumentLayout, *FaceMetrics, error) {
	theme, err := ThemeByName(opts.Theme)
	if err != nil {
		return nil, nil, err
	}
	m := b.fonts.NewMetrics()
	d := LayoutDocument(m, theme, doc, opts.Width)
	if err := checkLayout(d); err != nil {
		return nil, nil, err
	}
	return d, m, nil
}

// checkLayout rejects a layout with nothing to draw. The image height is
// always the layout height, and a zero-height image cannot be encoded.
func checkLayout(d *DocumentLayout) error {
	if d.Height > 0 {
		return nil
	}
	return &InvalidInputError{Violations: []Violation{{Field: "messages", Message: "document has nothing to render"}}}
}

// MessageHeights returns the height of every message as laid out.
func (b *CanvasBackend) MessageHeights(_ context.Context, doc Document, opts Options) ([]int, error) {
	d, _, err := b.layout(doc, opts.WithDefaults())
	if err != nil {
		return nil, err
	}
	return d.MessageHeights(), nil
}

func (b *CanvasBackend) Render(ctx context.Context, doc Document, opts Options) (*Result, error) {
	opts = opts.WithDefaults()
	d, m, err := b.layout(doc, opts)
	if err != nil {
		return nil, err
	}
	assets := b.fetcher.FetchAll(ctx, d.ImageURLs())
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img := Rasterize(d, b.fonts, m, assets)
	b.log.Debug("rasterized document",
		zap.Int("width", d.Width), zap.Int("height", d.Height),
		zap.Int("messages", len(doc.Messages)), zap.Int("assets", assets.Len()))
	return encodeResult(img, opts)
}

func encodeResult(img image.Image, opts Options) (*Result, error) {
	data, err := Encode(img, opts.Format, *opts.Quality)
	if err != nil {
		return nil, err
	}
	bounds := img.Bounds()
	return &Result{
		Data:        data,
		Format:      opts.Format,
		ContentType: opts.Format.ContentType(),
		Width:       bounds.Dx(),
		Height:      bounds.Dy(),
	}, nil
}

package chat2png

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"github.com/golang/freetype"
	"golang.org/x/image/font"
)

// canvas owns the pixel surface for one render. Shapes go through gg and
// glyphs through a freetype context drawing onto the same RGBA image.
type canvas struct {
	img    *image.RGBA
	dc     *gg.Context
	tc     *freetype.Context
	th     Theme
	fonts  *Fonts
	m      *FaceMetrics
	assets *Assets
}

func newCanvas(width, height int, th Theme, fonts *Fonts, m *FaceMetrics, assets *Assets) *canvas {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(th.BG), image.Point{}, draw.Src)

	tc := freetype.NewContext()
	tc.SetDPI(fontDPI)
	tc.SetClip(img.Bounds())
	tc.SetDst(img)
	tc.SetHinting(font.HintingFull)

	return &canvas{
		img:    img,
		dc:     gg.NewContextForRGBA(img),
		tc:     tc,
		th:     th,
		fonts:  fonts,
		m:      m,
		assets: assets,
	}
}

func (c *canvas) setFace(tf *Typeface, col color.Color, size float64) {
	c.tc.SetFont(tf.Font)
	c.tc.SetFontSize(size)
	c.tc.SetSrc(image.NewUniform(col))
}

// Rasterize draws a document layout. Images missing from assets are drawn
// as placeholders of the same box, so the output size never depends on
// fetch results.
func Rasterize(d *DocumentLayout, fonts *Fonts, m *FaceMetrics, assets *Assets) *image.RGBA {
	c := newCanvas(d.Width, d.Height, d.Theme, fonts, m, assets)
	d.Root.Walk(func(n *Node, x, y int) bool {
		c.drawNode(n, x, y)
		return true
	})
	return c.img
}

func (c *canvas) drawNode(n *Node, x, y int) {
	if n.Rect != nil {
		c.drawRect(n.Rect, x, y, n.W, n.H)
	}
	switch n.Kind {
	case NodeText:
		c.drawLine(n.Text, x, y, n.H)
	case NodeImage:
		c.drawImage(n.Image, x, y, n.W, n.H)
	}
}

func (c *canvas) roundedRect(x, y, w, h, r float64) {
	if r > 0 {
		c.dc.DrawRoundedRectangle(x, y, w, h, r)
	} else {
		c.dc.DrawRectangle(x, y, w, h)
	}
}

func (c *canvas) drawRect(s *RectStyle, xi, yi, wi, hi int) {
	x, y, w, h, r := float64(xi), float64(yi), float64(wi), float64(hi), float64(s.Radius)
	if w <= 0 || h <= 0 {
		return
	}
	if s.Fill.A > 0 {
		c.roundedRect(x, y, w, h, r)
		c.dc.SetColor(s.Fill)
		c.dc.Fill()
	}
	if s.AccentWidth > 0 && s.Accent.A > 0 {
		c.dc.Push()
		c.roundedRect(x, y, w, h, r)
		c.dc.Clip()
		c.dc.DrawRectangle(x, y, float64(s.AccentWidth), h)
		c.dc.SetColor(s.Accent)
		c.dc.Fill()
		c.dc.ResetClip()
		c.dc.Pop()
	}
	if s.StrokeWidth > 0 && s.Stroke.A > 0 {
		half := float64(s.StrokeWidth) / 2
		c.roundedRect(x+half, y+half, w-2*half, h-2*half, r)
		c.dc.SetLineWidth(float64(s.StrokeWidth))
		c.dc.SetColor(s.Stroke)
		c.dc.Stroke()
	}
}

func (c *canvas) clipShape(s *ImageStyle, x, y, w, h float64) {
	switch {
	case s.Circle:
		c.dc.DrawEllipse(x+w/2, y+h/2, w/2, h/2)
	default:
		c.roundedRect(x, y, w, h, float64(s.Radius))
	}
}

func (c *canvas) drawImage(s *ImageStyle, xi, yi, wi, hi int) {
	if wi <= 0 || hi <= 0 {
		return
	}
	x, y, w, h := float64(xi), float64(yi), float64(wi), float64(hi)
	img, ok := c.assets.Get(s.URL)
	if !ok || img == nil {
		c.drawPlaceholder(s, x, y, w, h)
		return
	}
	fitted := imaging.Fill(img, wi, hi, imaging.Center, imaging.Lanczos)
	c.dc.Push()
	c.clipShape(s, x, y, w, h)
	c.dc.Clip()
	c.dc.DrawImage(fitted, xi, yi)
	c.dc.ResetClip()
	c.dc.Pop()
}

func (c *canvas) drawPlaceholder(s *ImageStyle, x, y, w, h float64) {
	c.clipShape(s, x, y, w, h)
	if s.FallbackTo != (color.NRGBA{}) {
		g := gg.NewLinearGradient(x, y, x+w, y+h)
		g.AddColorStop(0, s.Fallback)
		g.AddColorStop(1, s.FallbackTo)
		c.dc.SetFillStyle(g)
	} else {
		c.dc.SetColor(s.Fallback)
	}
	c.dc.Fill()
}

// baseline centres the base font's em box vertically in a line box.
func (c *canvas) baseline(p FontProfile, y, h int) int {
	asc, desc := c.m.Ascent(p), c.m.Descent(p)
	return y + (h-(asc+desc))/2 + asc
}

// runColor is the foreground of a run drawn on a line whose default is base.
func runColor(th Theme, r Run, base color.NRGBA) color.NRGBA {
	switch {
	case r.Color != nil:
		return *r.Color
	case r.Kind == RunLink:
		return th.Link
	case r.Kind == RunMention:
		return th.MentionFG
	case r.Kind == RunCode:
		return th.CodeFG
	}
	return base
}

func (c *canvas) drawLine(t *TextStyle, x, y, h int) {
	if t == nil {
		return
	}
	baseline := c.baseline(t.Base, y, h)
	for _, f := range t.Line.Fragments {
		fx := x + f.X
		switch f.Run.Kind {
		case RunEmoji:
			c.drawEmoji(f, t.Base, fx, y, h, baseline)
			continue
		case RunCommand:
			c.drawCommand(f, fx, y, h)
			continue
		case RunMention:
			c.roundedRect(float64(fx), float64(y), float64(f.Width), float64(h), 3)
			c.dc.SetColor(c.th.MentionBG)
			c.dc.Fill()
		case RunCode:
			c.roundedRect(float64(fx), float64(y+1), float64(f.Width), float64(h-2), 3)
			c.dc.SetColor(c.th.CodeBG)
			c.dc.Fill()
		}
		p := runProfile(t.Base, f.Run)
		col := runColor(c.th, f.Run, t.Color)
		c.drawText(f.Text, p, col, fx, baseline)
		if f.Run.Strike {
			sy := float64(baseline) - float64(c.m.Ascent(p))*0.3
			c.dc.SetLineWidth(1)
			c.dc.SetColor(col)
			c.dc.DrawLine(float64(fx), sy, float64(fx+f.Width), sy)
			c.dc.Stroke()
		}
	}
}

// drawText places glyphs one by one at the advances layout measured, so
// drawn text never drifts from the computed geometry.
func (c *canvas) drawText(s string, p FontProfile, col color.NRGBA, x, baseline int) {
	c.setFace(c.fonts.typeface(p), col, p.Size)
	for _, r := range s {
		adv := c.m.Advance(p, r)
		if r != ' ' && r != '\t' {
			_, _ = c.tc.DrawString(string(r), freetype.Pt(x, baseline))
		}
		x += adv
	}
}

func (c *canvas) drawEmoji(f Fragment, base FontProfile, x, y, h, baseline int) {
	size := emojiSizeFor(base.Size)
	if c.fonts.Emoji != nil {
		c.setFace(c.fonts.Emoji, c.th.FG, float64(size))
		_, _ = c.tc.DrawString(f.Text, freetype.Pt(x, baseline))
		return
	}
	side := float64(min(size, h) - 2)
	ex := float64(x) + (float64(f.Width)-side)/2
	ey := float64(y) + (float64(h)-side)/2
	c.dc.DrawRoundedRectangle(ex, ey, side, side, math.Max(2, side/4))
	c.dc.SetColor(c.th.Placeholder)
	c.dc.Fill()
}

func (c *canvas) drawCommand(f Fragment, x, y, h int) {
	side := float64(min(f.Width, h) - 4)
	bx := float64(x) + (float64(f.Width)-side)/2
	by := float64(y) + (float64(h)-side)/2
	c.dc.DrawRoundedRectangle(bx, by, side, side, 4)
	c.dc.SetColor(c.th.Muted)
	c.dc.Fill()
	c.dc.SetLineWidth(2)
	c.dc.SetColor(c.th.BG)
	c.dc.DrawLine(bx+side*0.62, by+side*0.22, bx+side*0.38, by+side*0.78)
	c.dc.Stroke()
}

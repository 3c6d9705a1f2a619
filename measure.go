package chat2png

import (
	"math"
	"unicode/utf8"

	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
)

const (
	fontDPI         = 72
	lineHeightRatio = 1.375
	emojiRatio      = 1.25
)

// Metrics is the glyph-metrics provider layout depends on. Widths are whole
// pixels so that every backend sums advances identically.
type Metrics interface {
	Advance(p FontProfile, r rune) int
	EmojiAdvance(p FontProfile, glyph string) int
	LineHeight(p FontProfile) int
}

func lineHeightFor(size float64) int {
	return int(math.Round(size * lineHeightRatio))
}

func emojiSizeFor(size float64) int {
	return int(math.Round(size * emojiRatio))
}

type advanceKey struct {
	p FontProfile
	r rune
}

// FaceMetrics measures glyphs with truetype faces created from a shared
// Fonts registry. truetype faces keep an internal glyph cache, so a
// FaceMetrics belongs to one request and must not be shared.
type FaceMetrics struct {
	fonts    *Fonts
	faces    map[FontProfile]font.Face
	emoji    map[float64]font.Face
	advances map[advanceKey]int
}

// NewMetrics returns a request-scoped metrics provider.
func (f *Fonts) NewMetrics() *FaceMetrics {
	return &FaceMetrics{
		fonts:    f,
		faces:    make(map[FontProfile]font.Face),
		emoji:    make(map[float64]font.Face),
		advances: make(map[advanceKey]int),
	}
}

func newFace(tf *Typeface, size float64) font.Face {
	return truetype.NewFace(tf.Font, &truetype.Options{Size: size, DPI: fontDPI, Hinting: font.HintingFull})
}

func (m *FaceMetrics) face(p FontProfile) font.Face {
	if f, ok := m.faces[p]; ok {
		return f
	}
	f := newFace(m.fonts.typeface(p), p.Size)
	m.faces[p] = f
	return f
}

func (m *FaceMetrics) emojiFace(size float64) font.Face {
	if m.fonts.Emoji == nil {
		return nil
	}
	if f, ok := m.emoji[size]; ok {
		return f
	}
	f := newFace(m.fonts.Emoji, size)
	m.emoji[size] = f
	return f
}

func (m *FaceMetrics) Advance(p FontProfile, r rune) int {
	k := advanceKey{p, r}
	if a, ok := m.advances[k]; ok {
		return a
	}
	face := m.face(p)
	var a int
	if r == '\t' {
		adv, _ := face.GlyphAdvance(' ')
		a = 4 * adv.Round()
	} else {
		adv, _ := face.GlyphAdvance(r)
		a = adv.Round()
	}
	m.advances[k] = a
	return a
}

func (m *FaceMetrics) EmojiAdvance(p FontProfile, glyph string) int {
	face := m.emojiFace(float64(emojiSizeFor(p.Size)))
	if face == nil {
		return emojiSizeFor(p.Size)
	}
	r, _ := utf8.DecodeRuneInString(glyph)
	if adv, ok := face.GlyphAdvance(r); ok && adv > 0 {
		return adv.Round()
	}
	return emojiSizeFor(p.Size)
}

func (m *FaceMetrics) LineHeight(p FontProfile) int {
	return lineHeightFor(p.Size)
}

// Ascent is the distance from the top of the em box to the baseline.
func (m *FaceMetrics) Ascent(p FontProfile) int {
	return m.face(p).Metrics().Ascent.Round()
}

// Descent is the distance from the baseline to the bottom of the em box.
func (m *FaceMetrics) Descent(p FontProfile) int {
	return m.face(p).Metrics().Descent.Round()
}

// measureString sums per-rune advances without kerning, so widths are
// additive across tokens.
func measureString(m Metrics, p FontProfile, s string) int {
	w := 0
	for _, r := range s {
		w += m.Advance(p, r)
	}
	return w
}

package chat2png

import (
	"fmt"
	"os"

	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gobolditalic"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomedium"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/gomonobold"
	"golang.org/x/image/font/gofont/goregular"
)

// ---- Font loading ----

// Family is the abstract font family a run is drawn with.
type Family uint8

const (
	FamilySans Family = iota
	FamilyMono
)

// FontProfile fully identifies the face used to measure and draw a run.
type FontProfile struct {
	Family Family
	Weight int
	Italic bool
	Size   float64
}

func (p FontProfile) bold() FontProfile {
	p.Weight = 700
	return p
}

// Typeface is a parsed TrueType font together with its source bytes. The
// bytes are kept so the markup backend can embed the exact same font.
type Typeface struct {
	Name string
	Font *truetype.Font
	Data []byte
}

// Fonts is the process-wide font registry. It is loaded once at startup and
// is read-only afterwards; per-request faces come from NewMetrics.
type Fonts struct {
	Regular    *Typeface
	Medium     *Typeface
	Bold       *Typeface
	Italic     *Typeface
	BoldItalic *Typeface
	Mono       *Typeface
	MonoBold   *Typeface
	// Emoji is optional. Without it emoji are drawn as placeholder tiles.
	Emoji *Typeface
}

type FontConfig struct {
	RegularPath string
	MediumPath  string
	BoldPath    string
	ItalicPath  string
	MonoPath    string
	EmojiPath   string
}

func loadTypeface(name string, ttfBytes []byte) (*Typeface, error) {
	ft, err := truetype.Parse(ttfBytes)
	if err != nil {
		return nil, fmt.Errorf("chat2png: parse font %s: %w", name, err)
	}
	return &Typeface{Name: name, Font: ft, Data: ttfBytes}, nil
}

func loadTypefaceOr(name, path string, fallback []byte) (*Typeface, error) {
	if path == "" {
		return loadTypeface(name, fallback)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return loadTypeface(name, b)
}

// LoadFonts returns a Fonts set using the provided FontConfig. When no
// custom paths are supplied it falls back to Go's bundled fonts.
func LoadFonts(cfg FontConfig) (*Fonts, error) {
	var f Fonts
	var err error
	if f.Regular, err = loadTypefaceOr("regular", cfg.RegularPath, goregular.TTF); err != nil {
		return nil, err
	}
	if f.Medium, err = loadTypefaceOr("medium", cfg.MediumPath, gomedium.TTF); err != nil {
		return nil, err
	}
	if f.Bold, err = loadTypefaceOr("bold", cfg.BoldPath, gobold.TTF); err != nil {
		return nil, err
	}
	if f.Italic, err = loadTypefaceOr("italic", cfg.ItalicPath, goitalic.TTF); err != nil {
		return nil, err
	}
	if f.BoldItalic, err = loadTypeface("bolditalic", gobolditalic.TTF); err != nil {
		return nil, err
	}
	if f.Mono, err = loadTypefaceOr("mono", cfg.MonoPath, gomono.TTF); err != nil {
		return nil, err
	}
	if f.MonoBold, err = loadTypeface("monobold", gomonobold.TTF); err != nil {
		return nil, err
	}
	if cfg.EmojiPath != "" {
		b, err := os.ReadFile(cfg.EmojiPath)
		if err != nil {
			return nil, err
		}
		if f.Emoji, err = loadTypeface("emoji", b); err != nil {
			return nil, err
		}
	}
	return &f, nil
}

// typeface resolves a profile to one of the registered fonts. Weights 300
// and 400 share the regular face, 900 uses bold.
func (f *Fonts) typeface(p FontProfile) *Typeface {
	if p.Family == FamilyMono {
		if p.Weight >= 600 {
			return f.MonoBold
		}
		return f.Mono
	}
	switch {
	case p.Italic && p.Weight >= 600:
		return f.BoldItalic
	case p.Italic:
		return f.Italic
	case p.Weight >= 600:
		return f.Bold
	case p.Weight >= 500:
		return f.Medium
	default:
		return f.Regular
	}
}

// all lists every registered typeface with the CSS family/weight/style it
// stands for.
func (f *Fonts) all() []fontFace {
	faces := []fontFace{
		{"ChatSans", 400, false, f.Regular},
		{"ChatSans", 500, false, f.Medium},
		{"ChatSans", 700, false, f.Bold},
		{"ChatSans", 400, true, f.Italic},
		{"ChatSans", 700, true, f.BoldItalic},
		{"ChatMono", 400, false, f.Mono},
		{"ChatMono", 700, false, f.MonoBold},
	}
	if f.Emoji != nil {
		faces = append(faces, fontFace{"ChatEmoji", 400, false, f.Emoji})
	}
	return faces
}

type fontFace struct {
	Family string
	Weight int
	Italic bool
	Face   *Typeface
}

package chat2png

import (
	"errors"
	"fmt"
	"image/color"
	"strconv"
	"strings"
)

// ---- Styles & theme ----

type Theme struct {
	Name        string
	BG          color.NRGBA
	FG          color.NRGBA
	Muted       color.NRGBA
	Header      color.NRGBA
	Link        color.NRGBA
	CodeBG      color.NRGBA
	CodeBorder  color.NRGBA
	CodeFG      color.NRGBA
	Highlight   color.NRGBA
	EmbedBG     color.NRGBA
	EmbedBorder color.NRGBA
	HRule       color.NRGBA
	ChipBG      color.NRGBA
	ChipBorder  color.NRGBA
	ChipActive  color.NRGBA
	ChipActBG   color.NRGBA
	MentionFG   color.NRGBA
	MentionBG   color.NRGBA
	Badge       color.NRGBA
	Placeholder color.NRGBA
	// ChromaStyle names the syntax highlighting style used for code blocks.
	ChromaStyle string
}

var (
	darkTheme = Theme{
		Name:        "dark",
		BG:          rgb(0x31, 0x33, 0x38),
		FG:          rgb(0xDB, 0xDE, 0xE1),
		Muted:       rgb(0x94, 0x9B, 0xA4),
		Header:      rgb(0xF2, 0xF3, 0xF5),
		Link:        rgb(0x00, 0xA8, 0xFC),
		CodeBG:      rgb(0x2B, 0x2D, 0x31),
		CodeBorder:  rgb(0x1E, 0x1F, 0x22),
		CodeFG:      rgb(0xDB, 0xDE, 0xE1),
		Highlight:   color.NRGBA{0xF0, 0xB2, 0x32, 0x30},
		EmbedBG:     rgb(0x2B, 0x2D, 0x31),
		EmbedBorder: rgb(0x1E, 0x1F, 0x22),
		HRule:       rgb(0x3F, 0x41, 0x47),
		ChipBG:      rgb(0x2B, 0x2D, 0x31),
		ChipBorder:  rgb(0x2B, 0x2D, 0x31),
		ChipActive:  rgb(0x58, 0x65, 0xF2),
		ChipActBG:   color.NRGBA{0x37, 0x3A, 0x54, 0xFF},
		MentionFG:   rgb(0xC9, 0xCD, 0xFB),
		MentionBG:   color.NRGBA{0x3C, 0x41, 0x70, 0xFF},
		Badge:       rgb(0x58, 0x65, 0xF2),
		Placeholder: rgb(0x40, 0x44, 0x4B),
		ChromaStyle: "monokai",
	}
	lightTheme = Theme{
		Name:        "light",
		BG:          rgb(0xFF, 0xFF, 0xFF),
		FG:          rgb(0x31, 0x33, 0x38),
		Muted:       rgb(0x5C, 0x5E, 0x66),
		Header:      rgb(0x06, 0x06, 0x07),
		Link:        rgb(0x00, 0x67, 0xE0),
		CodeBG:      rgb(0xF2, 0xF3, 0xF5),
		CodeBorder:  rgb(0xE3, 0xE5, 0xE8),
		CodeFG:      rgb(0x31, 0x33, 0x38),
		Highlight:   color.NRGBA{0xF0, 0xB2, 0x32, 0x40},
		EmbedBG:     rgb(0xF2, 0xF3, 0xF5),
		EmbedBorder: rgb(0xE3, 0xE5, 0xE8),
		HRule:       rgb(0xE3, 0xE5, 0xE8),
		ChipBG:      rgb(0xF2, 0xF3, 0xF5),
		ChipBorder:  rgb(0xF2, 0xF3, 0xF5),
		ChipActive:  rgb(0x58, 0x65, 0xF2),
		ChipActBG:   color.NRGBA{0xE7, 0xE9, 0xFD, 0xFF},
		MentionFG:   rgb(0x50, 0x5C, 0xDC),
		MentionBG:   color.NRGBA{0xE6, 0xE8, 0xFD, 0xFF},
		Badge:       rgb(0x58, 0x65, 0xF2),
		Placeholder: rgb(0xD4, 0xD7, 0xDC),
		ChromaStyle: "github",
	}
)

func rgb(r, g, b uint8) color.NRGBA { return color.NRGBA{r, g, b, 0xFF} }

// LightTheme and DarkTheme expose the built-in themes for convenience.
var (
	LightTheme = lightTheme
	DarkTheme  = darkTheme
)

// ThemeByName returns a built-in theme by name ("dark" or "light").
func ThemeByName(name string) (Theme, error) {
	switch strings.ToLower(name) {
	case "dark", "":
		return darkTheme, nil
	case "light":
		return lightTheme, nil
	default:
		return Theme{}, errors.New("chat2png: unknown theme: " + name)
	}
}

// ParseHexColor parses "#rgb", "#rrggbb" or the same without the leading '#'.
func ParseHexColor(s string) (color.NRGBA, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	switch len(h) {
	case 3:
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	case 6:
	default:
		return color.NRGBA{}, fmt.Errorf("chat2png: invalid hex color %q", s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("chat2png: invalid hex color %q", s)
	}
	return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xFF}, nil
}

func hexString(c color.NRGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// cssColor renders c including alpha, for the markup backend.
func cssColor(c color.NRGBA) string {
	if c.A == 0xFF {
		return hexString(c)
	}
	return fmt.Sprintf("rgba(%d,%d,%d,%.3f)", c.R, c.G, c.B, float64(c.A)/255)
}

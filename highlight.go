package chat2png

import (
	"image/color"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

// Highlighter colours code block source with a chroma style.
type Highlighter struct {
	style *chroma.Style
}

// NewHighlighter returns a highlighter for the named chroma style, falling
// back to chroma's default style when the name is unknown.
func NewHighlighter(style string) *Highlighter {
	return &Highlighter{style: styles.Get(style)}
}

func lexerFor(lang string) chroma.Lexer {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if lang == "" {
		return nil
	}
	if l := lexers.Get(lang); l != nil {
		return l
	}
	return lexers.Match("file." + lang)
}

// Lines splits code into source lines and returns the runs of each one.
// Unknown languages and lexer errors produce uncoloured runs.
func (h *Highlighter) Lines(lang, code string) [][]Run {
	code = strings.TrimSuffix(strings.ReplaceAll(code, "\r\n", "\n"), "\n")
	src := strings.Split(code, "\n")
	out := make([][]Run, len(src))

	lexer := lexerFor(lang)
	if lexer == nil {
		return plainLines(src)
	}
	it, err := chroma.Coalesce(lexer).Tokenise(nil, code)
	if err != nil {
		return plainLines(src)
	}
	for i, tokens := range chroma.SplitTokensIntoLines(it.Tokens()) {
		if i >= len(out) {
			break
		}
		for _, tok := range tokens {
			text := strings.TrimRight(tok.Value, "\n")
			if text == "" {
				continue
			}
			out[i] = append(out[i], h.run(tok.Type, text))
		}
	}
	for i := range out {
		out[i] = normalizeRuns(out[i])
	}
	return out
}

func (h *Highlighter) run(tt chroma.TokenType, text string) Run {
	r := Run{Kind: RunText, Text: text}
	entry := h.style.Get(tt)
	if entry.Colour.IsSet() {
		c := color.NRGBA{entry.Colour.Red(), entry.Colour.Green(), entry.Colour.Blue(), 0xFF}
		r.Color = &c
	}
	r.Bold = entry.Bold == chroma.Yes
	r.Italic = entry.Italic == chroma.Yes
	return r
}

func plainLines(src []string) [][]Run {
	out := make([][]Run, len(src))
	for i, s := range src {
		if s != "" {
			out[i] = []Run{{Kind: RunText, Text: s}}
		}
	}
	return out
}

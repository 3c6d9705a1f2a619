package chat2png

import (
	"math"

	"github.com/rivo/uniseg"
)

// Fragment is the part of a Run placed on one line.
type Fragment struct {
	Run   Run
	Text  string
	X     int
	Width int
}

// Line is one wrapped line. Width excludes trailing whitespace.
type Line struct {
	Fragments []Fragment
	Width     int
}

// Wrapped is the result of wrapping a run sequence.
type Wrapped struct {
	Lines      []Line
	LineHeight int
	Height     int
}

// runProfile resolves the font profile a run is measured and drawn with.
func runProfile(base FontProfile, r Run) FontProfile {
	p := base
	switch r.Kind {
	case RunCode:
		p.Family = FamilyMono
		p.Size = codeSpanSize(base.Size)
		p.Italic = false
	case RunMention:
		if p.Weight < 500 {
			p.Weight = 500
		}
	}
	if r.Bold {
		p.Weight = 700
	}
	if r.Italic && r.Kind != RunCode {
		p.Italic = true
	}
	return p
}

func codeSpanSize(size float64) float64 {
	return math.Round(size * 0.875)
}

// commandAdvance is the fixed width of the slash-command glyph.
func commandAdvance(p FontProfile) int {
	return lineHeightFor(p.Size)
}

func fragmentWidth(m Metrics, base FontProfile, r Run, s string) int {
	switch r.Kind {
	case RunEmoji:
		return m.EmojiAdvance(base, s)
	case RunCommand:
		return commandAdvance(base)
	}
	return measureString(m, runProfile(base, r), s)
}

type piece struct {
	run   Run
	text  string
	width int
}

type wrapper struct {
	m     Metrics
	base  FontProfile
	max   int
	lines []Line
	cur   Line
	x     int
}

func (w *wrapper) newLine() {
	w.cur.Width = w.x
	w.lines = append(w.lines, w.cur)
	w.cur = Line{}
	w.x = 0
}

func (w *wrapper) place(p piece) {
	if n := len(w.cur.Fragments); n > 0 {
		last := &w.cur.Fragments[n-1]
		if last.Run.mergeable(p.run) && last.X+last.Width == w.x {
			last.Text += p.text
			last.Width += p.width
			w.x += p.width
			return
		}
	}
	w.cur.Fragments = append(w.cur.Fragments, Fragment{Run: p.run, Text: p.text, X: w.x, Width: p.width})
	w.x += p.width
}

func sumWidth(ps []piece) int {
	n := 0
	for _, p := range ps {
		n += p.width
	}
	return n
}

func (w *wrapper) word(word, spaces []piece) {
	ww := sumWidth(word)
	sw := sumWidth(spaces)
	switch {
	case ww == 0:
		// zero-width tokens never trigger a break
		if w.x+sw > w.max {
			spaces = nil
		}
	case w.x > 0 && w.x+sw+ww > w.max:
		w.newLine()
		spaces = nil
	}
	for _, s := range spaces {
		w.place(s)
	}
	if w.x+ww <= w.max || ww == 0 {
		for _, p := range word {
			w.place(p)
		}
		return
	}
	w.hardBreak(word)
}

// hardBreak splits an over-long token at grapheme boundaries, keeping at
// least one grapheme on every line.
func (w *wrapper) hardBreak(word []piece) {
	for _, p := range word {
		if p.run.Kind == RunEmoji || p.run.Kind == RunCommand || p.run.Kind == RunMention {
			if w.x > 0 && w.x+p.width > w.max {
				w.newLine()
			}
			w.place(p)
			continue
		}
		g := uniseg.NewGraphemes(p.text)
		for g.Next() {
			s := g.Str()
			cw := fragmentWidth(w.m, w.base, p.run, s)
			if w.x > 0 && w.x+cw > w.max {
				w.newLine()
			}
			w.place(piece{run: p.run, text: s, width: cw})
		}
	}
}

func isSpace(r rune) bool { return r == ' ' || r == '\t' }

// Wrap lays runs out greedily into lines no wider than maxWidth. Only a
// single token wider than maxWidth is split, and it is split at grapheme
// boundaries. Results depend only on the inputs and m.
func Wrap(m Metrics, runs []Run, base FontProfile, maxWidth int) Wrapped {
	if maxWidth <= 0 {
		maxWidth = math.MaxInt32
	}
	w := &wrapper{m: m, base: base, max: maxWidth}
	var word, spaces []piece
	flush := func() {
		if len(word) > 0 {
			w.word(word, spaces)
			spaces = nil
		}
		word = nil
	}
	addSpace := func(p piece) {
		flush()
		spaces = append(spaces, p)
	}
	for _, r := range runs {
		switch r.Kind {
		case RunBreak:
			flush()
			spaces = nil
			w.newLine()
			continue
		case RunEmoji, RunCommand, RunMention:
			// atomic, but glued to adjacent non-space text
			word = append(word, piece{run: r, text: r.Text, width: fragmentWidth(m, base, r, r.Text)})
			continue
		}
		start := 0
		inSpace := false
		emit := func(end int) {
			if end <= start {
				return
			}
			s := r.Text[start:end]
			p := piece{run: r, text: s, width: fragmentWidth(m, base, r, s)}
			if inSpace {
				addSpace(p)
			} else {
				word = append(word, p)
			}
		}
		for i, c := range r.Text {
			sp := isSpace(c)
			if i == 0 {
				inSpace = sp
				continue
			}
			if sp != inSpace {
				emit(i)
				start = i
				inSpace = sp
			}
		}
		emit(len(r.Text))
	}
	flush()
	if len(w.cur.Fragments) > 0 || w.x > 0 || len(w.lines) > 0 {
		w.newLine()
	}
	lh := m.LineHeight(base)
	return Wrapped{Lines: w.lines, LineHeight: lh, Height: len(w.lines) * lh}
}

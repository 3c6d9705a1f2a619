package chat2png

import (
	"fmt"
	"image/color"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/forPelevin/gomoji"
	"github.com/rivo/uniseg"
	"github.com/yuin/goldmark"
	emoji "github.com/yuin/goldmark-emoji"
	emojiAST "github.com/yuin/goldmark-emoji/ast"
	"github.com/yuin/goldmark-emoji/definition"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extensionAST "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// RunKind is the type of an inline run.
type RunKind uint8

const (
	RunText RunKind = iota
	RunCode
	RunMention
	RunEmoji
	RunLink
	// RunCommand is the slash-command marker drawn before a command body.
	RunCommand
	// RunBreak forces a new line.
	RunBreak
)

func (k RunKind) String() string {
	switch k {
	case RunText:
		return "text"
	case RunCode:
		return "code"
	case RunMention:
		return "mention"
	case RunEmoji:
		return "emoji"
	case RunLink:
		return "link"
	case RunCommand:
		return "command"
	case RunBreak:
		return "break"
	}
	return fmt.Sprintf("RunKind(%d)", k)
}

// Run is a styled piece of inline content.
type Run struct {
	Kind   RunKind
	Text   string
	Bold   bool
	Italic bool
	Strike bool
	URL    string
	// Color overrides the block text colour; used for syntax highlighting.
	Color *color.NRGBA
}

func (r Run) mergeable(o Run) bool {
	switch r.Kind {
	case RunText, RunCode, RunLink:
	default:
		return false
	}
	return r.Kind == o.Kind && r.Bold == o.Bold && r.Italic == o.Italic && r.Strike == o.Strike &&
		r.URL == o.URL && sameColor(r.Color, o.Color)
}

func sameColor(a, b *color.NRGBA) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// InlineOptions carry the message flags that influence parsing.
type InlineOptions struct {
	Command  bool
	Mentions []string
}

var markdownPool = sync.Pool{
	New: func() any {
		return goldmark.New(
			goldmark.WithExtensions(
				extension.Linkify,
				extension.Strikethrough,
				emoji.New(emoji.WithEmojis(definition.Github())),
			),
		)
	},
}

// ParseInline converts a raw message body into runs that cover the whole
// body. It never fails: unknown or malformed markup degrades to text.
func ParseInline(body string, opts InlineOptions) []Run {
	c := &inlineCollector{src: []byte(body), mentions: mentionSet(opts.Mentions)}
	if opts.Command {
		c.runs = append(c.runs, Run{Kind: RunCommand, Text: "/"})
	}
	if strings.TrimSpace(body) != "" {
		md := markdownPool.Get().(goldmark.Markdown)
		doc := md.Parser().Parse(text.NewReader(c.src))
		markdownPool.Put(md)
		c.blocks(doc)
	}
	return normalizeRuns(c.runs)
}

type inlineStyle struct {
	bold, italic, strike bool
	link                 string
}

type inlineCollector struct {
	src      []byte
	runs     []Run
	mentions map[string]bool
}

func mentionSet(ids []string) map[string]bool {
	m := make(map[string]bool, len(ids))
	for _, id := range ids {
		m[strings.ToLower(strings.TrimPrefix(id, "@"))] = true
	}
	return m
}

func (c *inlineCollector) lineBreak() {
	c.runs = append(c.runs, Run{Kind: RunBreak})
}

func (c *inlineCollector) blocks(parent ast.Node) {
	for child := parent.FirstChild(); child != nil; child = child.NextSibling() {
		if prev := child.PreviousSibling(); prev != nil {
			c.lineBreak()
			if prev.Kind() == ast.KindParagraph && child.Kind() == ast.KindParagraph {
				c.lineBreak()
			}
		}
		c.block(child)
	}
}

func (c *inlineCollector) block(n ast.Node) {
	switch nd := n.(type) {
	case *ast.Paragraph, *ast.TextBlock:
		c.inline(nd, inlineStyle{})
	case *ast.Heading:
		c.inline(nd, inlineStyle{bold: true})
	case *ast.List:
		index := nd.Start
		for item := nd.FirstChild(); item != nil; item = item.NextSibling() {
			if item.PreviousSibling() != nil {
				c.lineBreak()
			}
			marker := "• "
			if nd.IsOrdered() {
				marker = fmt.Sprintf("%d%c ", index, nd.Marker)
				index++
			}
			c.runs = append(c.runs, Run{Kind: RunText, Text: marker})
			c.blocks(item)
		}
	case *ast.Blockquote:
		c.runs = append(c.runs, Run{Kind: RunText, Text: "▎ "})
		c.blocks(nd)
	case *ast.FencedCodeBlock, *ast.CodeBlock:
		lines := nd.Lines()
		for i := 0; i < lines.Len(); i++ {
			if i > 0 {
				c.lineBreak()
			}
			seg := lines.At(i)
			line := strings.TrimRight(string(seg.Value(c.src)), "\r\n")
			if line != "" {
				c.runs = append(c.runs, Run{Kind: RunCode, Text: line})
			}
		}
	case *ast.HTMLBlock:
		lines := nd.Lines()
		for i := 0; i < lines.Len(); i++ {
			if i > 0 {
				c.lineBreak()
			}
			seg := lines.At(i)
			c.text(strings.TrimRight(string(seg.Value(c.src)), "\r\n"), inlineStyle{})
		}
	case *ast.ThematicBreak:
		c.text("---", inlineStyle{})
	default:
		if nd.HasChildren() {
			c.blocks(nd)
		}
	}
}

func (c *inlineCollector) inline(node ast.Node, st inlineStyle) {
	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		switch nd := child.(type) {
		case *ast.Text:
			c.text(string(nd.Segment.Value(c.src)), st)
			if nd.SoftLineBreak() || nd.HardLineBreak() {
				c.lineBreak()
			}
		case *ast.String:
			c.text(string(nd.Value), st)
		case *ast.CodeSpan:
			var b strings.Builder
			for t := nd.FirstChild(); t != nil; t = t.NextSibling() {
				if seg, ok := t.(*ast.Text); ok {
					b.Write(seg.Segment.Value(c.src))
				}
			}
			if b.Len() > 0 {
				c.runs = append(c.runs, Run{Kind: RunCode, Text: b.String()})
			}
		case *ast.Emphasis:
			next := st
			if nd.Level >= 2 {
				next.bold = true
			} else {
				next.italic = true
			}
			c.inline(nd, next)
		case *extensionAST.Strikethrough:
			next := st
			next.strike = true
			c.inline(nd, next)
		case *ast.Link:
			next := st
			next.link = string(nd.Destination)
			c.inline(nd, next)
		case *ast.AutoLink:
			url := string(nd.URL(c.src))
			label := string(nd.Label(c.src))
			if label == "" {
				label = url
			}
			if nd.AutoLinkType == ast.AutoLinkEmail && !strings.HasPrefix(url, "mailto:") {
				url = "mailto:" + url
			}
			c.runs = append(c.runs, Run{Kind: RunLink, Text: label, URL: url, Bold: st.bold, Italic: st.italic, Strike: st.strike})
		case *ast.Image:
			next := st
			next.link = string(nd.Destination)
			if nd.HasChildren() {
				c.inline(nd, next)
			} else {
				c.text(next.link, next)
			}
		case *emojiAST.Emoji:
			if nd.Value != nil && nd.Value.IsUnicode() {
				c.runs = append(c.runs, Run{Kind: RunEmoji, Text: string(nd.Value.Unicode)})
			} else {
				c.text(":"+string(nd.ShortName)+":", st)
			}
		case *ast.RawHTML:
			for i := 0; i < nd.Segments.Len(); i++ {
				seg := nd.Segments.At(i)
				c.text(string(seg.Value(c.src)), st)
			}
		default:
			if child.HasChildren() {
				c.inline(child, st)
			}
		}
	}
}

var mentionPattern = regexp.MustCompile(`<@!?([0-9A-Za-z_]+)>|@(everyone|here|[\p{L}\p{N}_](?:[\p{L}\p{N}_.]*[\p{L}\p{N}_])?)`)

// text emits plain (or linked) text, splitting out mentions and emoji.
func (c *inlineCollector) text(s string, st inlineStyle) {
	if s == "" {
		return
	}
	base := Run{Kind: RunText, Bold: st.bold, Italic: st.italic, Strike: st.strike}
	if st.link != "" {
		base.Kind = RunLink
		base.URL = st.link
		c.emoji(s, base)
		return
	}
	last := 0
	for _, m := range mentionPattern.FindAllStringSubmatchIndex(s, -1) {
		var label string
		switch {
		case m[2] >= 0:
			label = "@" + s[m[2]:m[3]]
		case c.mentions[strings.ToLower(s[m[4]:m[5]])] || s[m[4]:m[5]] == "everyone" || s[m[4]:m[5]] == "here":
			label = s[m[0]:m[1]]
		default:
			continue
		}
		c.emoji(s[last:m[0]], base)
		c.runs = append(c.runs, Run{Kind: RunMention, Text: label, Bold: st.bold, Italic: st.italic})
		last = m[1]
	}
	c.emoji(s[last:], base)
}

// emoji splits s at grapheme clusters that are emoji.
func (c *inlineCollector) emoji(s string, base Run) {
	if s == "" {
		return
	}
	var plain strings.Builder
	flush := func() {
		if plain.Len() > 0 {
			r := base
			r.Text = plain.String()
			c.runs = append(c.runs, r)
			plain.Reset()
		}
	}
	g := uniseg.NewGraphemes(s)
	for g.Next() {
		cluster := g.Str()
		if isEmojiCluster(cluster) {
			flush()
			c.runs = append(c.runs, Run{Kind: RunEmoji, Text: cluster, URL: base.URL})
			continue
		}
		plain.WriteString(cluster)
	}
	flush()
}

// isEmojiCluster reports whether a grapheme cluster renders as an emoji.
// ASCII digits, '#' and '*' are keycap bases and stay text.
func isEmojiCluster(cluster string) bool {
	r, _ := utf8.DecodeRuneInString(cluster)
	if r < 0x80 {
		return false
	}
	return gomoji.ContainsEmoji(cluster)
}

// normalizeRuns merges adjacent runs with identical style and trims
// leading and trailing line breaks.
func normalizeRuns(runs []Run) []Run {
	out := make([]Run, 0, len(runs))
	for _, r := range runs {
		if r.Kind != RunBreak && r.Kind != RunCommand && r.Text == "" {
			continue
		}
		if n := len(out); n > 0 && out[n-1].mergeable(r) {
			out[n-1].Text += r.Text
			continue
		}
		out = append(out, r)
	}
	for len(out) > 0 && out[0].Kind == RunBreak {
		out = out[1:]
	}
	for len(out) > 0 && out[len(out)-1].Kind == RunBreak {
		out = out[:len(out)-1]
	}
	return out
}

// plainText flattens runs back to text, used for alt text and excerpts.
func plainText(runs []Run) string {
	var b strings.Builder
	for _, r := range runs {
		switch r.Kind {
		case RunBreak:
			b.WriteByte(' ')
		case RunCommand:
		default:
			b.WriteString(r.Text)
		}
	}
	return b.String()
}

var githubEmoji = definition.Github()

// ResolveEmoji turns a ":shortcode:" into its glyph. Anything else,
// including unknown shortcodes, is returned unchanged.
func ResolveEmoji(token string) string {
	if len(token) > 2 && strings.HasPrefix(token, ":") && strings.HasSuffix(token, ":") {
		if e, ok := githubEmoji.Get(token[1 : len(token)-1]); ok && e.IsUnicode() {
			return string(e.Unicode)
		}
	}
	return token
}

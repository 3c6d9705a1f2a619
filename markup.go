package chat2png

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"html/template"
	"image/color"
	"strings"
)

// ---- Markup generation ----
//
// The markup backend mirrors the layout tree one element per node. Stack
// containers become flex columns so that an attachment image loaded at its
// natural size pushes later blocks down; every other node is positioned at
// its computed offset.

type markupNode struct {
	Class    string
	ID       string
	Href     string
	Src      template.URL
	Style    template.CSS
	Spans    []markupSpan
	Children []*markupNode
}

type markupSpan struct {
	Text  string
	Href  string
	Style template.CSS
}

type markupPage struct {
	CSS  template.CSS
	Root *markupNode
}

var markupTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><style>{{.CSS}}</style></head>
<body>{{template "node" .Root}}</body></html>
{{define "node"}}{{if .Href}}<a class="{{.Class}}"{{if .ID}} id="{{.ID}}"{{end}} href="{{.Href}}" style="{{.Style}}">{{template "inner" .}}</a>{{else if .Src}}<img class="{{.Class}}" src="{{.Src}}" alt="" style="{{.Style}}">{{else}}<div class="{{.Class}}"{{if .ID}} id="{{.ID}}"{{end}} style="{{.Style}}">{{template "inner" .}}</div>{{end}}{{end}}
{{define "inner"}}{{range .Spans}}{{if .Href}}<a href="{{.Href}}" style="{{.Style}}">{{.Text}}</a>{{else}}<span style="{{.Style}}">{{.Text}}</span>{{end}}{{end}}{{range .Children}}{{template "node" .}}{{end}}{{end}}`))

// BuildMarkup renders d as a standalone HTML page. Fonts are embedded so
// the browser measures text with the same faces the layout used.
func BuildMarkup(d *DocumentLayout, fonts *Fonts) ([]byte, error) {
	mb := &markupBuilder{th: d.Theme}
	page := markupPage{
		CSS:  template.CSS(pageCSS(d, fonts)),
		Root: mb.node(d.Root, nil, 0),
	}
	var buf bytes.Buffer
	if err := markupTemplate.Execute(&buf, page); err != nil {
		return nil, fmt.Errorf("chat2png: build markup: %w", err)
	}
	return buf.Bytes(), nil
}

func pageCSS(d *DocumentLayout, fonts *Fonts) string {
	var b strings.Builder
	for _, f := range fonts.all() {
		style := "normal"
		if f.Italic {
			style = "italic"
		}
		fmt.Fprintf(&b, "@font-face{font-family:%q;src:url(data:font/ttf;base64,%s) format(\"truetype\");font-weight:%d;font-style:%s}\n",
			f.Family, base64.StdEncoding.EncodeToString(f.Face.Data), f.Weight, style)
	}
	b.WriteString("*{margin:0;padding:0;box-sizing:border-box}\n")
	fmt.Fprintf(&b, "html,body{width:%dpx;background:%s}\n", d.Width, cssColor(d.Theme.BG))
	fmt.Fprintf(&b, "body{font-family:\"ChatSans\",sans-serif;color:%s;-webkit-font-smoothing:antialiased}\n", cssColor(d.Theme.FG))
	b.WriteString("a{color:inherit;text-decoration:none}\n")
	b.WriteString("span,a{white-space:pre;overflow:visible}\n")
	return b.String()
}

type styleBuilder struct {
	strings.Builder
}

func (s *styleBuilder) px(prop string, v int) {
	fmt.Fprintf(s, "%s:%dpx;", prop, v)
}

func (s *styleBuilder) set(prop, v string) {
	s.WriteString(prop)
	s.WriteByte(':')
	s.WriteString(v)
	s.WriteByte(';')
}

func (s *styleBuilder) css() template.CSS { return template.CSS(s.String()) }

type markupBuilder struct {
	th Theme
}

// node converts n. parent is nil for the root; prevBottom is the bottom
// edge of the previous sibling inside a stack parent.
func (b *markupBuilder) node(n *Node, parent *Node, prevBottom int) *markupNode {
	out := &markupNode{Class: n.Block, Href: n.Href}
	if n.Anchor != "" {
		out.ID = messageAnchor(n.Anchor)
	}
	var s styleBuilder
	switch {
	case parent == nil:
		s.set("position", "relative")
	case parent.Flow == FlowStack:
		s.set("position", "relative")
		s.set("flex-shrink", "0")
		s.px("margin-top", n.Y-prevBottom)
		s.px("margin-left", n.X)
	default:
		s.set("position", "absolute")
		s.px("left", n.X)
		s.px("top", n.Y)
	}
	s.px("width", n.W)

	if n.Flow == FlowStack {
		s.set("display", "flex")
		s.set("flex-direction", "column")
		s.set("align-items", "flex-start")
	} else if n.Image == nil || n.Block != "attachment-image" {
		s.set("display", "block")
		s.px("height", n.H)
	}
	if n.Rect != nil {
		b.rect(&s, n.Rect)
	}
	if n.Image != nil {
		b.image(&s, out, n)
	}
	if n.Text != nil {
		out.Spans = b.spans(n.Text, n.H)
	}
	out.Style = s.css()

	bottom := 0
	for _, c := range n.Children {
		out.Children = append(out.Children, b.node(c, n, bottom))
		bottom = c.Y + c.H
	}
	return out
}

func (b *markupBuilder) rect(s *styleBuilder, r *RectStyle) {
	if r.Fill.A > 0 {
		s.set("background", cssColor(r.Fill))
	}
	if r.Radius > 0 {
		s.px("border-radius", r.Radius)
	}
	var shadows []string
	if r.AccentWidth > 0 && r.Accent.A > 0 {
		shadows = append(shadows, fmt.Sprintf("inset %dpx 0 0 0 %s", r.AccentWidth, cssColor(r.Accent)))
	}
	if r.StrokeWidth > 0 && r.Stroke.A > 0 {
		shadows = append(shadows, fmt.Sprintf("inset 0 0 0 %dpx %s", r.StrokeWidth, cssColor(r.Stroke)))
	}
	if len(shadows) > 0 {
		s.set("box-shadow", strings.Join(shadows, ","))
	}
	if r.Radius > 0 && r.AccentWidth > 0 {
		s.set("overflow", "hidden")
	}
}

func fallbackBackground(img *ImageStyle) string {
	if img.FallbackTo != (color.NRGBA{}) {
		return fmt.Sprintf("linear-gradient(135deg,%s,%s)", cssColor(img.Fallback), cssColor(img.FallbackTo))
	}
	return cssColor(img.Fallback)
}

// image styles an image node. Attachment images keep their declared aspect
// ratio until the real image arrives and then take its natural ratio.
func (b *markupBuilder) image(s *styleBuilder, out *markupNode, n *Node) {
	img := n.Image
	if img.URL != "" && isAssetURL(img.URL) {
		out.Src = template.URL(img.URL)
	}
	s.set("background", fallbackBackground(img))
	s.set("object-fit", "cover")
	switch {
	case img.Circle:
		s.set("border-radius", "50%")
	case img.Radius > 0:
		s.px("border-radius", img.Radius)
	}
	if n.Block == "attachment-image" {
		s.set("display", "block")
		s.set("height", "auto")
		s.set("aspect-ratio", fmt.Sprintf("auto %d / %d", n.W, n.H))
	}
}

func cssFont(p FontProfile) string {
	family := `"ChatSans",sans-serif`
	if p.Family == FamilyMono {
		family = `"ChatMono",monospace`
	}
	style := "normal"
	if p.Italic {
		style = "italic"
	}
	return fmt.Sprintf("%s %d %gpx %s", style, p.Weight, p.Size, family)
}

// spans places each fragment at the offset the wrapper measured.
func (b *markupBuilder) spans(t *TextStyle, h int) []markupSpan {
	spans := make([]markupSpan, 0, len(t.Line.Fragments))
	for _, f := range t.Line.Fragments {
		var s styleBuilder
		s.set("position", "absolute")
		s.set("display", "block")
		sp := markupSpan{Text: f.Text}
		switch f.Run.Kind {
		case RunEmoji:
			s.px("left", f.X)
			s.px("top", 0)
			s.px("width", f.Width)
			s.px("height", h)
			s.px("line-height", h)
			s.set("text-align", "center")
			s.set("font", fmt.Sprintf("normal 400 %dpx \"ChatEmoji\",\"Noto Color Emoji\",\"Apple Color Emoji\",sans-serif", emojiSizeFor(t.Base.Size)))
			spans = append(spans, markupSpan{Text: f.Text, Style: s.css()})
			continue
		case RunCommand:
			side := min(f.Width, h) - 4
			s.px("left", f.X+(f.Width-side)/2)
			s.px("top", (h-side)/2)
			s.px("width", side)
			s.px("height", side)
			s.px("line-height", side)
			s.set("text-align", "center")
			s.set("border-radius", "4px")
			s.set("background", cssColor(b.th.Muted))
			s.set("color", cssColor(b.th.BG))
			s.set("font", cssFont(FontProfile{Family: FamilySans, Weight: 700, Size: float64(side) * 0.8}))
			sp.Text = "/"
			sp.Style = s.css()
			spans = append(spans, sp)
			continue
		}
		p := runProfile(t.Base, f.Run)
		s.px("left", f.X)
		s.px("top", 0)
		s.px("width", f.Width)
		s.px("height", h)
		s.px("line-height", h)
		s.set("font", cssFont(p))
		s.set("color", cssColor(runColor(b.th, f.Run, t.Color)))
		switch f.Run.Kind {
		case RunMention:
			s.set("background", cssColor(b.th.MentionBG))
			s.set("border-radius", "3px")
		case RunCode:
			s.set("background", cssColor(b.th.CodeBG))
			s.set("border-radius", "3px")
		case RunLink:
			sp.Href = f.Run.URL
		}
		if f.Run.Strike {
			s.set("text-decoration", "line-through")
		}
		sp.Style = s.css()
		spans = append(spans, sp)
	}
	return spans
}

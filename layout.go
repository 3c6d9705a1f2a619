package chat2png

import (
	"image/color"
	"math"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/rivo/uniseg"
)

// Geometry shared by every backend, in pixels.
const (
	pageMargin          = 20
	avatarSize          = 40
	avatarGap           = 16
	gutter              = avatarSize + avatarGap
	blockGap            = 4
	messageGap          = 20
	replyHeight         = 22
	headerItemGap       = 8
	badgePadX           = 4
	badgeHeight         = 15
	pinnedMarkerWidth   = 16
	channelHeaderHeight = 48
	threadIndent        = 24
	threadRuleX         = 11
	threadRuleWidth     = 2
	threadBannerHeight  = 24
	codePadding         = 8
	codeRadius          = 4
	attachmentMaxWidth  = 400
	placeholderWidth    = 400
	placeholderHeight   = 225
	attachmentRadius    = 8
	attachmentGap       = 8
	fileChipHeight      = 56
	fileChipMaxWidth    = 432
	fileIconWidth       = 24
	fileIconHeight      = 30
	chipHeight          = 24
	chipPadX            = 8
	chipInnerGap        = 4
	chipGap             = 4
	chipRowGap          = 4
	chipRadius          = 8
)

var (
	bodyFont      = FontProfile{Family: FamilySans, Weight: 400, Size: 16}
	usernameFont  = FontProfile{Family: FamilySans, Weight: 500, Size: 16}
	timestampFont = FontProfile{Family: FamilySans, Weight: 400, Size: 12}
	editedFont    = FontProfile{Family: FamilySans, Weight: 400, Size: 10}
	badgeFont     = FontProfile{Family: FamilySans, Weight: 500, Size: 10}
	replyFont     = FontProfile{Family: FamilySans, Weight: 400, Size: 14}
	codeFont      = FontProfile{Family: FamilyMono, Weight: 400, Size: 14}
	fileNameFont  = FontProfile{Family: FamilySans, Weight: 500, Size: 16}
	fileSizeFont  = FontProfile{Family: FamilySans, Weight: 400, Size: 12}
	chipEmojiFont = FontProfile{Family: FamilySans, Weight: 400, Size: 16}
	chipCountFont = FontProfile{Family: FamilySans, Weight: 500, Size: 14}
	channelFont   = FontProfile{Family: FamilySans, Weight: 700, Size: 16}
	threadFont    = FontProfile{Family: FamilySans, Weight: 700, Size: 14}
)

type layouter struct {
	m     Metrics
	theme Theme
	hl    *Highlighter
}

// LayoutMessage lays one message out inside a box of the given width and
// returns its subtree. The node's H is the message height.
func LayoutMessage(m Metrics, theme Theme, msg Message, width int) *Node {
	l := &layouter{m: m, theme: theme, hl: NewHighlighter(theme.ChromaStyle)}
	return l.message(msg, width)
}

func (l *layouter) message(msg Message, width int) *Node {
	n := &Node{Kind: NodeGroup, Block: "message", W: width, Anchor: msg.ID}
	contentW := width - gutter
	if contentW < 1 {
		contentW = 1
	}
	s := newStack(n, blockGap)
	if msg.ReplyTo != nil {
		s.push(l.reply(msg.ReplyTo, contentW))
	}
	s.push(l.header(msg, width))
	s.push(l.body(msg, contentW))
	for _, cb := range msg.CodeBlocks {
		s.push(l.codeBlock(cb, contentW))
	}
	s.push(l.attachments(msg.Attachments, contentW))
	for _, e := range msg.Embeds {
		s.push(l.embed(e, contentW))
	}
	s.push(l.reactions(msg.Reactions, contentW))
	return s.done()
}

func (l *layouter) reply(r *ReplyReference, w int) *Node {
	runs := []Run{
		{Kind: RunText, Text: "replying to "},
		{Kind: RunMention, Text: "@" + r.Username},
	}
	if excerpt := strings.Join(strings.Fields(plainText(ParseInline(r.Content, InlineOptions{}))), " "); excerpt != "" {
		runs = append(runs, Run{Kind: RunText, Text: " " + excerpt})
	}
	n := &Node{Kind: NodeGroup, Block: "reply", X: gutter, W: w, H: replyHeight}
	if r.Jump && r.MessageID != "" {
		n.Href = "#" + messageAnchor(r.MessageID)
	}
	wrapped := Wrap(l.m, runs, replyFont, w)
	if len(wrapped.Lines) > 0 {
		line := wrapped.Lines[0]
		n.add(&Node{
			Kind: NodeText,
			Y:    (replyHeight - wrapped.LineHeight) / 2,
			W:    line.Width,
			H:    wrapped.LineHeight,
			Text: &TextStyle{Line: line, Base: replyFont, Color: l.theme.Muted},
		})
	}
	return n
}

func messageAnchor(id string) string { return "msg-" + id }

func (l *layouter) header(msg Message, width int) *Node {
	lh := l.m.LineHeight(usernameFont)
	row := &Node{Kind: NodeGroup, Block: "header", W: width, H: max(avatarSize, lh)}
	center := func(h int) int { return (row.H - h) / 2 }

	row.add(&Node{
		Kind:  NodeImage,
		Block: "avatar",
		Y:     center(avatarSize),
		W:     avatarSize,
		H:     avatarSize,
		Image: &ImageStyle{URL: msg.AvatarURL, Circle: true, Fallback: msg.Color, FallbackTo: shade(msg.Color, 0.55)},
	})
	if msg.Pinned {
		marker := l.emojiNode("📌", editedFont, l.theme.Muted)
		marker.Block = "pinned"
		marker.X = -pinnedMarkerWidth - 2
		marker.Y = center(marker.H)
		row.add(marker)
	}

	var badgeW, tsW, editedW int
	if msg.IsApp {
		badgeW = measureString(l.m, badgeFont, "APP") + 2*badgePadX
	}
	if msg.Timestamp != "" {
		tsW = measureString(l.m, timestampFont, msg.Timestamp)
	}
	if msg.Edited {
		editedW = measureString(l.m, editedFont, "(edited)")
	}
	avail := width - gutter
	for _, w := range []int{badgeW, tsW} {
		if w > 0 {
			avail -= w + headerItemGap
		}
	}
	if editedW > 0 {
		avail -= editedW + chipInnerGap
	}

	x := gutter
	name := l.textNode(ellipsize(l.m, usernameFont, msg.Username, avail), usernameFont, msg.Color)
	name.Block = "username"
	name.X, name.Y = x, center(name.H)
	row.add(name)
	x += name.W

	if msg.IsApp {
		x += headerItemGap
		label := l.textNode("APP", badgeFont, color.NRGBA{0xFF, 0xFF, 0xFF, 0xFF})
		label.X, label.Y = badgePadX, (badgeHeight-label.H)/2
		row.add(&Node{
			Kind:     NodeRect,
			Block:    "badge",
			X:        x,
			Y:        center(badgeHeight),
			W:        badgeW,
			H:        badgeHeight,
			Rect:     &RectStyle{Fill: l.theme.Badge, Radius: 3},
			Children: []*Node{label},
		})
		x += badgeW
	}
	if msg.Timestamp != "" {
		x += headerItemGap
		ts := l.textNode(msg.Timestamp, timestampFont, l.theme.Muted)
		ts.Block = "timestamp"
		ts.X, ts.Y = x, center(ts.H)
		row.add(ts)
		x += ts.W
	}
	if msg.Edited {
		x += chipInnerGap
		ed := l.textNode("(edited)", editedFont, l.theme.Muted)
		ed.Block = "edited"
		ed.X, ed.Y = x, center(ed.H)
		row.add(ed)
	}
	return row
}

func (l *layouter) body(msg Message, w int) *Node {
	runs := ParseInline(msg.Content, InlineOptions{Command: msg.Command, Mentions: msg.Mentions})
	if len(runs) == 0 {
		return nil
	}
	n := l.textBlock(Wrap(l.m, runs, bodyFont, w), bodyFont, l.theme.FG)
	n.Block = "body"
	n.X = gutter
	n.W = w
	return n
}

// codeBlock wraps every source line on its own so highlighted lines keep
// their tint across wrapped continuation lines.
func (l *layouter) codeBlock(cb CodeBlock, w int) *Node {
	box := &Node{
		Kind:  NodeRect,
		Block: "code",
		X:     gutter,
		W:     w,
		Rect:  &RectStyle{Fill: l.theme.CodeBG, Stroke: l.theme.CodeBorder, StrokeWidth: 1, Radius: codeRadius},
	}
	inner := w - 2*codePadding
	lh := l.m.LineHeight(codeFont)
	y := codePadding
	for i, runs := range l.hl.Lines(cb.Language, cb.Code) {
		wrapped := Wrap(l.m, runs, codeFont, inner)
		h := max(wrapped.Height, lh)
		if cb.Highlight[i+1] {
			box.add(&Node{
				Kind:  NodeRect,
				Block: "code-highlight",
				X:     1,
				Y:     y,
				W:     w - 2,
				H:     h,
				Rect:  &RectStyle{Fill: l.theme.Highlight},
			})
		}
		for j, line := range wrapped.Lines {
			box.add(&Node{
				Kind: NodeText,
				X:    codePadding,
				Y:    y + j*lh,
				W:    line.Width,
				H:    lh,
				Text: &TextStyle{Line: line, Base: codeFont, Color: l.theme.CodeFG},
			})
		}
		y += h
	}
	box.H = y + codePadding
	return box
}

func (l *layouter) attachments(atts []Attachment, w int) *Node {
	if len(atts) == 0 {
		return nil
	}
	s := newStack(&Node{Kind: NodeGroup, Block: "attachments", X: gutter, W: w}, attachmentGap)
	for _, a := range atts {
		if a.Type == AttachmentImage {
			iw, ih := fitImage(a.Width, a.Height, min(attachmentMaxWidth, w))
			s.push(&Node{
				Kind:  NodeImage,
				Block: "attachment-image",
				W:     iw,
				H:     ih,
				Image: &ImageStyle{URL: a.URL, Radius: attachmentRadius, Fallback: l.theme.Placeholder},
			})
			continue
		}
		s.push(l.fileChip(a, min(fileChipMaxWidth, w)))
	}
	return s.done()
}

// fitImage scales declared dimensions down to maxW preserving aspect ratio.
// Unknown dimensions use the placeholder box.
func fitImage(w, h, maxW int) (int, int) {
	if w <= 0 || h <= 0 {
		w, h = placeholderWidth, placeholderHeight
	}
	if maxW > 0 && w > maxW {
		h = int(math.Round(float64(h) * float64(maxW) / float64(w)))
		w = maxW
	}
	return w, max(h, 1)
}

func (l *layouter) fileChip(a Attachment, w int) *Node {
	chip := &Node{
		Kind:  NodeRect,
		Block: "attachment-file",
		W:     w,
		H:     fileChipHeight,
		Rect:  &RectStyle{Fill: l.theme.ChipBG, Stroke: l.theme.CodeBorder, StrokeWidth: 1, Radius: attachmentRadius},
	}
	chip.add(&Node{
		Kind:  NodeRect,
		Block: "file-icon",
		X:     12,
		Y:     (fileChipHeight - fileIconHeight) / 2,
		W:     fileIconWidth,
		H:     fileIconHeight,
		Rect:  &RectStyle{Fill: l.theme.Link, Radius: 3},
	})
	textX := 12 + fileIconWidth + 12
	avail := w - textX - 12
	name := a.Name
	if name == "" {
		name = fileNameFromURL(a.URL)
	}
	nameNode := l.textNode(ellipsize(l.m, fileNameFont, name, avail), fileNameFont, l.theme.Link)
	detail := string(a.Type)
	if a.Size > 0 {
		detail = humanize.Bytes(uint64(a.Size))
	}
	detailNode := l.textNode(ellipsize(l.m, fileSizeFont, detail, avail), fileSizeFont, l.theme.Muted)
	top := (fileChipHeight - nameNode.H - detailNode.H) / 2
	nameNode.X, nameNode.Y = textX, top
	detailNode.X, detailNode.Y = textX, top+nameNode.H
	chip.add(nameNode, detailNode)
	return chip
}

func fileNameFromURL(u string) string {
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	u = strings.TrimRight(u, "/")
	if i := strings.LastIndexByte(u, '/'); i >= 0 && i < len(u)-1 {
		return u[i+1:]
	}
	return u
}

// reactionChipWidth is the full width of one chip including padding.
func reactionChipWidth(m Metrics, r Reaction) int {
	return chipPadX + m.EmojiAdvance(chipEmojiFont, ResolveEmoji(r.Emoji)) + chipInnerGap +
		measureString(m, chipCountFont, itoa(r.Count)) + chipPadX
}

// reactions flows chips left to right, starting a new row whenever the next
// chip would overflow w.
func (l *layouter) reactions(rs []Reaction, w int) *Node {
	if len(rs) == 0 {
		return nil
	}
	row := &Node{Kind: NodeChipRow, Block: "reactions", X: gutter, W: w}
	x, y := 0, 0
	for _, r := range rs {
		cw := reactionChipWidth(l.m, r)
		if x > 0 && x+cw > w {
			x = 0
			y += chipHeight + chipRowGap
		}
		style := &RectStyle{Fill: l.theme.ChipBG, Stroke: l.theme.ChipBorder, StrokeWidth: 1, Radius: chipRadius}
		countColor := l.theme.Muted
		if r.UserHasReacted {
			style.Fill = l.theme.ChipActBG
			style.Stroke = l.theme.ChipActive
			countColor = l.theme.MentionFG
		}
		chip := &Node{Kind: NodeRect, Block: "reaction", X: x, Y: y, W: cw, H: chipHeight, Rect: style}
		glyph := l.emojiNode(ResolveEmoji(r.Emoji), chipEmojiFont, l.theme.FG)
		glyph.X, glyph.Y = chipPadX, (chipHeight-glyph.H)/2
		count := l.textNode(itoa(r.Count), chipCountFont, countColor)
		count.X, count.Y = chipPadX+glyph.W+chipInnerGap, (chipHeight-count.H)/2
		chip.add(glyph, count)
		row.add(chip)
		x += cw + chipGap
	}
	row.H = y + chipHeight
	return row
}

// textNode is a single unwrapped line of plain text.
func (l *layouter) textNode(s string, p FontProfile, c color.NRGBA) *Node {
	w := measureString(l.m, p, s)
	lh := l.m.LineHeight(p)
	run := Run{Kind: RunText, Text: s}
	return &Node{
		Kind: NodeText,
		W:    w,
		H:    lh,
		Text: &TextStyle{Line: Line{Fragments: []Fragment{{Run: run, Text: s, Width: w}}, Width: w}, Base: p, Color: c},
	}
}

func (l *layouter) emojiNode(glyph string, p FontProfile, c color.NRGBA) *Node {
	w := l.m.EmojiAdvance(p, glyph)
	run := Run{Kind: RunEmoji, Text: glyph}
	return &Node{
		Kind: NodeText,
		W:    w,
		H:    l.m.LineHeight(p),
		Text: &TextStyle{Line: Line{Fragments: []Fragment{{Run: run, Text: glyph, Width: w}}, Width: w}, Base: p, Color: c},
	}
}

// textBlock turns wrapped lines into a stack of line nodes.
func (l *layouter) textBlock(w Wrapped, p FontProfile, c color.NRGBA) *Node {
	n := &Node{Kind: NodeGroup, Flow: FlowStack, H: w.Height}
	for i, line := range w.Lines {
		n.add(&Node{
			Kind: NodeText,
			Y:    i * w.LineHeight,
			W:    line.Width,
			H:    w.LineHeight,
			Text: &TextStyle{Line: line, Base: p, Color: c},
		})
		n.W = max(n.W, line.Width)
	}
	return n
}

// ellipsize shortens s with a trailing ellipsis until it fits maxW.
func ellipsize(m Metrics, p FontProfile, s string, maxW int) string {
	if measureString(m, p, s) <= maxW {
		return s
	}
	limit := maxW - measureString(m, p, "…")
	var b strings.Builder
	x := 0
	g := uniseg.NewGraphemes(s)
	for g.Next() {
		cw := measureString(m, p, g.Str())
		if x+cw > limit {
			break
		}
		b.WriteString(g.Str())
		x += cw
	}
	return b.String() + "…"
}

func shade(c color.NRGBA, f float64) color.NRGBA {
	return color.NRGBA{uint8(float64(c.R) * f), uint8(float64(c.G) * f), uint8(float64(c.B) * f), c.A}
}

func itoa(n int) string {
	return humanize.Comma(int64(n))
}

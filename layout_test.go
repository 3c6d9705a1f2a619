package chat2png

import (
	"image/color"
	"testing"
)

func findAll(root *Node, block string) []*Node {
	var out []*Node
	root.Walk(func(n *Node, _, _ int) bool {
		if n.Block == block {
			out = append(out, n)
		}
		return true
	})
	return out
}

func roo() Message {
	return Message{
		Username: "roo",
		Content:  "Hey everyone!",
		Color:    color.NRGBA{0xFF, 0x66, 0xFF, 0xFF},
	}
}

func TestLayoutSingleMessageScenario(t *testing.T) {
	msg := roo()
	msg.Reactions = []Reaction{{Emoji: "👋", Count: 3, UserHasReacted: true}}
	doc := LayoutDocument(fixedMetrics{}, DarkTheme, Document{Messages: []Message{msg}}, 800)

	header := doc.Root.Find("header")
	body := doc.Root.Find("body")
	reactions := doc.Root.Find("reactions")
	if header == nil || body == nil || reactions == nil {
		t.Fatalf("missing blocks: header=%v body=%v reactions=%v", header, body, reactions)
	}
	if header.H != 40 {
		t.Fatalf("header height = %d, want 40", header.H)
	}
	if len(body.Children) != 1 || body.H != lineHeightFor(16) {
		t.Fatalf("expected a single body line, got %d lines height %d", len(body.Children), body.H)
	}
	want := header.H + body.H + reactions.H + 2*blockGap
	if doc.Height != want {
		t.Fatalf("document height = %d, want %d", doc.Height, want)
	}
	if doc.Height != 40+22+24+8 {
		t.Fatalf("document height = %d, want 94", doc.Height)
	}
	chip := reactions.Find("reaction")
	if chip == nil || chip.Rect.Stroke != DarkTheme.ChipActive {
		t.Fatalf("reacted chip should use the active style: %+v", chip)
	}
}

func TestLayoutEmbedScenario(t *testing.T) {
	red := color.NRGBA{0xFF, 0, 0, 0xFF}
	msg := roo()
	msg.Content = ""
	msg.Embeds = []Embed{{Title: "Call Status", Description: "No active calls", Color: &red}}
	n := LayoutMessage(fixedMetrics{}, DarkTheme, msg, 760)

	embed := n.Find("embed")
	if embed == nil {
		t.Fatalf("embed block missing")
	}
	want := lineHeightFor(embedTitleFont.Size) + lineHeightFor(embedTextFont.Size) + embedPadTop + embedPadBottom
	if embed.H != want {
		t.Fatalf("embed height = %d, want %d", embed.H, want)
	}
	if embed.Rect.Accent != red || embed.Rect.AccentWidth != embedAccent {
		t.Fatalf("embed accent = %+v", embed.Rect)
	}
}

func TestLayoutReactionRowsWrap(t *testing.T) {
	m := fixedMetrics{emoji: 10}
	if w := reactionChipWidth(m, Reaction{Emoji: "👍", Count: 1}); w != 40 {
		t.Fatalf("chip width = %d, want 40", w)
	}
	msg := roo()
	for i := 0; i < 10; i++ {
		msg.Reactions = append(msg.Reactions, Reaction{Emoji: "👍", Count: 1})
	}
	n := LayoutMessage(m, DarkTheme, msg, 300+gutter)
	reactions := n.Find("reactions")
	rows := map[int]int{}
	for _, c := range reactions.Children {
		rows[c.Y]++
		if c.X+c.W > 300 {
			t.Fatalf("chip overflows content width: x=%d w=%d", c.X, c.W)
		}
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 reaction rows, got %d", len(rows))
	}
	if rows[0] != 6 {
		t.Fatalf("expected 6 chips on the first row, got %d", rows[0])
	}
	if reactions.H != 2*chipHeight+chipRowGap {
		t.Fatalf("reaction row height = %d", reactions.H)
	}
}

func TestLayoutHeightAdditivity(t *testing.T) {
	msg := roo()
	msg.ReplyTo = &ReplyReference{MessageID: "1", Username: "bob", Content: "hello", Jump: true}
	msg.CodeBlocks = []CodeBlock{{Language: "go", Code: "a := 1"}}
	msg.Attachments = []Attachment{{URL: "https://example.com/a.png", Type: AttachmentImage}}
	msg.Embeds = []Embed{{Title: "t"}}
	msg.Reactions = []Reaction{{Emoji: ":wave:", Count: 2}}

	full := LayoutMessage(fixedMetrics{}, DarkTheme, msg, 760)
	sum := 0
	for i, c := range full.Children {
		if i > 0 {
			sum += blockGap
		}
		sum += c.H
	}
	if sum != full.H {
		t.Fatalf("message height %d != sum of blocks %d", full.H, sum)
	}

	reactions := full.Find("reactions")
	msg.Reactions = nil
	without := LayoutMessage(fixedMetrics{}, DarkTheme, msg, 760)
	if full.H-without.H != reactions.H+blockGap {
		t.Fatalf("removing reactions changed height by %d, want %d", full.H-without.H, reactions.H+blockGap)
	}
	if reply := full.Find("reply"); reply == nil || reply.H != replyHeight || reply.Href != "#msg-1" {
		t.Fatalf("unexpected reply block %+v", reply)
	}
}

func TestLayoutMinimalMessage(t *testing.T) {
	msg := roo()
	n := LayoutMessage(fixedMetrics{}, DarkTheme, msg, 760)
	if len(n.Children) != 2 {
		t.Fatalf("expected header and body only, got %d blocks", len(n.Children))
	}
	msg.Content = ""
	n = LayoutMessage(fixedMetrics{}, DarkTheme, msg, 760)
	if n.H != avatarSize {
		t.Fatalf("header-only message height = %d", n.H)
	}
}

func TestLayoutCodeBlockHighlight(t *testing.T) {
	msg := roo()
	msg.Content = ""
	msg.CodeBlocks = []CodeBlock{{
		Language:  "go",
		Code:      "a := 1\nb := 2\nc := 3\n",
		Highlight: map[int]bool{2: true},
	}}
	n := LayoutMessage(fixedMetrics{}, DarkTheme, msg, 760)
	code := n.Find("code")
	lh := lineHeightFor(codeFont.Size)
	if code.H != 2*codePadding+3*lh {
		t.Fatalf("code height = %d, want %d", code.H, 2*codePadding+3*lh)
	}
	marks := findAll(code, "code-highlight")
	if len(marks) != 1 || marks[0].Y != codePadding+lh {
		t.Fatalf("unexpected highlight rows %+v", marks)
	}
}

func TestLayoutEmbedFieldGrid(t *testing.T) {
	field := EmbedField{Name: "Name", Value: "v", Inline: true}
	msg := roo()
	msg.Embeds = []Embed{{Fields: []EmbedField{field, field, field, field, {Name: "Wide", Value: "v"}}}}
	n := LayoutMessage(fixedMetrics{}, DarkTheme, msg, 760)
	grid := n.Find("embed-fields")
	if grid == nil {
		t.Fatalf("field grid missing")
	}
	fields := findAll(grid, "embed-field")
	if len(fields) != 5 {
		t.Fatalf("expected 5 fields, got %d", len(fields))
	}
	inner := embedMaxWidth - embedAccent - embedPadLeft - embedPadRight
	colW := embedColumnWidth(inner)
	fh := lineHeightFor(fieldNameFont.Size) + lineHeightFor(embedTextFont.Size)
	if fields[1].X != colW+fieldGap || fields[1].Y != 0 || fields[1].W != colW {
		t.Fatalf("second field at x=%d y=%d w=%d", fields[1].X, fields[1].Y, fields[1].W)
	}
	if fields[3].X != 0 || fields[3].Y != fh+fieldRowGap {
		t.Fatalf("fourth field should start a new row, got x=%d y=%d", fields[3].X, fields[3].Y)
	}
	if fields[4].W != inner || fields[4].Y != 2*(fh+fieldRowGap) {
		t.Fatalf("non-inline field should take a full row, got y=%d w=%d", fields[4].Y, fields[4].W)
	}
	if grid.H != 3*fh+2*fieldRowGap {
		t.Fatalf("grid height = %d", grid.H)
	}
}

func TestLayoutEmptyEmbed(t *testing.T) {
	msg := roo()
	msg.Embeds = []Embed{{}}
	embed := LayoutMessage(fixedMetrics{}, DarkTheme, msg, 760).Find("embed")
	if embed.H != embedPadTop+embedPadBottom {
		t.Fatalf("empty embed height = %d", embed.H)
	}
	if embed.Rect.Accent != DarkTheme.EmbedBorder {
		t.Fatalf("empty embed should use the neutral accent")
	}
}

func TestLayoutAttachments(t *testing.T) {
	msg := roo()
	msg.Attachments = []Attachment{
		{URL: "https://example.com/big.png", Type: AttachmentImage, Width: 800, Height: 600},
		{URL: "https://example.com/unknown.png", Type: AttachmentImage},
		{URL: "https://example.com/files/report.pdf", Type: AttachmentFile, Size: 2048},
		{URL: "https://example.com/clip.mp4", Type: AttachmentVideo},
	}
	atts := LayoutMessage(fixedMetrics{}, DarkTheme, msg, 760).Find("attachments")
	c := atts.Children
	if len(c) != 4 {
		t.Fatalf("expected 4 attachments, got %d", len(c))
	}
	if c[0].W != 400 || c[0].H != 300 {
		t.Fatalf("scaled image = %dx%d, want 400x300", c[0].W, c[0].H)
	}
	if c[1].W != placeholderWidth || c[1].H != placeholderHeight {
		t.Fatalf("placeholder = %dx%d", c[1].W, c[1].H)
	}
	if c[2].Block != "attachment-file" || c[2].H != fileChipHeight || c[3].Block != "attachment-file" {
		t.Fatalf("non-image attachments should be file chips")
	}
	if c[2].Y != c[1].Y+c[1].H+attachmentGap {
		t.Fatalf("attachments are not stacked with a fixed gap")
	}
	names := findAll(c[2], "")
	var sawName bool
	for _, n := range names {
		if n.Text != nil && n.Text.Line.Fragments[0].Text == "report.pdf" {
			sawName = true
		}
	}
	if !sawName {
		t.Fatalf("file chip should fall back to the URL's file name")
	}
}

func TestLayoutPinnedMarker(t *testing.T) {
	msg := roo()
	plain := LayoutMessage(fixedMetrics{}, DarkTheme, msg, 760)
	msg.Pinned = true
	pinned := LayoutMessage(fixedMetrics{}, DarkTheme, msg, 760)
	marker := pinned.Find("pinned")
	if marker == nil || marker.X >= 0 {
		t.Fatalf("pinned marker should sit left of the message box: %+v", marker)
	}
	if pinned.W != plain.W || pinned.H != plain.H {
		t.Fatalf("pinned marker changed the message box")
	}
}

func TestLayoutDocumentHeaders(t *testing.T) {
	a, b := roo(), roo()
	a.ID, b.ID = "a", "b"
	doc := LayoutDocument(fixedMetrics{}, LightTheme, Document{
		Messages:    []Message{a, b},
		ChannelName: "general",
		ThreadName:  "planning",
	}, 800)
	hs := doc.MessageHeights()
	want := channelHeaderHeight + messageGap + threadBannerHeight + messageGap + hs[0] + messageGap + hs[1]
	if doc.Height != want {
		t.Fatalf("document height = %d, want %d", doc.Height, want)
	}
	if doc.Offsets[0] != channelHeaderHeight+messageGap+threadBannerHeight+messageGap {
		t.Fatalf("first message offset = %d", doc.Offsets[0])
	}
	if doc.Offsets[1] != doc.Offsets[0]+hs[0]+messageGap {
		t.Fatalf("second message offset = %d", doc.Offsets[1])
	}
	var absX int
	doc.Root.Walk(func(n *Node, x, _ int) bool {
		if n == doc.Messages[0] {
			absX = x
		}
		return true
	})
	if absX != pageMargin+threadIndent {
		t.Fatalf("thread messages should be indented, x=%d", absX)
	}
	if doc.Messages[0].W != 800-2*pageMargin-threadIndent {
		t.Fatalf("thread message width = %d", doc.Messages[0].W)
	}
	if doc.Messages[0].Anchor != "a" {
		t.Fatalf("message anchor = %q", doc.Messages[0].Anchor)
	}
}

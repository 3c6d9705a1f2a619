package chat2png

// DocumentLayout is the positioned tree for one render. It is built per
// request and only read afterwards.
type DocumentLayout struct {
	Root   *Node
	Theme  Theme
	Width  int
	Height int
	// Messages holds the message nodes in input order.
	Messages []*Node
	// Offsets holds the absolute top of each message.
	Offsets []int
}

// MessageHeights returns the computed height of every message.
func (d *DocumentLayout) MessageHeights() []int {
	hs := make([]int, len(d.Messages))
	for i, n := range d.Messages {
		hs[i] = n.H
	}
	return hs
}

// LayoutDocument stacks the optional channel header, the optional thread
// banner and every message. The result height is the image height.
func LayoutDocument(m Metrics, theme Theme, doc Document, width int) *DocumentLayout {
	l := &layouter{m: m, theme: theme, hl: NewHighlighter(theme.ChromaStyle)}
	root := &Node{Kind: NodeGroup, Block: "document", W: width}
	s := newStack(root, messageGap)

	if doc.ChannelName != "" {
		s.push(l.channelHeader(doc.ChannelName, width))
	}

	msgW := width - 2*pageMargin
	list := &Node{Kind: NodeGroup, Block: "messages", X: pageMargin}
	msgX := 0
	if doc.ThreadName != "" {
		s.push(l.threadBanner(doc.ThreadName, width))
		msgW -= threadIndent
		msgX = threadIndent - threadRuleX
		list.Kind = NodeRect
		list.Block = "thread"
		list.X = pageMargin + threadRuleX
		list.Rect = &RectStyle{Accent: theme.HRule, AccentWidth: threadRuleWidth}
	}
	msgW = max(msgW, 1)
	list.W = msgX + msgW

	ms := newStack(list, messageGap)
	out := &DocumentLayout{Root: root, Theme: theme, Width: width}
	for _, msg := range doc.Messages {
		n := l.message(msg, msgW)
		n.X = msgX
		ms.push(n)
		out.Messages = append(out.Messages, n)
	}
	if len(doc.Messages) > 0 {
		s.push(ms.done())
	}
	s.done()

	base := 0
	if len(doc.Messages) > 0 {
		base = list.Y
	}
	for _, n := range out.Messages {
		out.Offsets = append(out.Offsets, base+n.Y)
	}
	out.Height = root.H
	return out
}

func (l *layouter) channelHeader(name string, width int) *Node {
	n := &Node{
		Kind:  NodeRect,
		Block: "channel-header",
		W:     width,
		H:     channelHeaderHeight,
		Rect:  &RectStyle{Fill: l.theme.BG},
	}
	hash := l.textNode("#", channelFont, l.theme.Muted)
	hash.X, hash.Y = pageMargin, (channelHeaderHeight-hash.H)/2
	title := l.textNode(ellipsize(l.m, channelFont, name, width-2*pageMargin-hash.W-headerItemGap), channelFont, l.theme.Header)
	title.X, title.Y = pageMargin+hash.W+headerItemGap, hash.Y
	border := &Node{
		Kind:  NodeRect,
		Block: "channel-border",
		Y:     channelHeaderHeight - 1,
		W:     width,
		H:     1,
		Rect:  &RectStyle{Fill: l.theme.HRule},
	}
	n.add(hash, title, border)
	return n
}

func (l *layouter) threadBanner(name string, width int) *Node {
	n := &Node{Kind: NodeGroup, Block: "thread-banner", X: pageMargin, W: width - 2*pageMargin, H: threadBannerHeight}
	icon := l.emojiNode("🧵", threadFont, l.theme.Header)
	icon.Y = (threadBannerHeight - icon.H) / 2
	title := l.textNode(ellipsize(l.m, threadFont, name, n.W-icon.W-headerItemGap), threadFont, l.theme.Header)
	title.X, title.Y = icon.W+headerItemGap, (threadBannerHeight-title.H)/2
	n.add(icon, title)
	return n
}

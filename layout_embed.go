package chat2png

import "image/color"

const (
	embedMaxWidth  = 520
	embedAccent    = 4
	embedPadTop    = 8
	embedPadRight  = 16
	embedPadBottom = 16
	embedPadLeft   = 12
	embedPartGap   = 8
	embedRadius    = 4
	embedIconSize  = 20
	fieldGap       = 8
	fieldRowGap    = 8
	fieldsPerRow   = 3
	thumbnailSize  = 80
	thumbnailGap   = 16
)

var (
	embedAuthorFont = FontProfile{Family: FamilySans, Weight: 500, Size: 14}
	embedTitleFont  = FontProfile{Family: FamilySans, Weight: 700, Size: 16}
	embedTextFont   = FontProfile{Family: FamilySans, Weight: 400, Size: 14}
	fieldNameFont   = FontProfile{Family: FamilySans, Weight: 700, Size: 14}
	embedFooterFont = FontProfile{Family: FamilySans, Weight: 400, Size: 12}
)

// embedColumnWidth is the width of one inline field column.
func embedColumnWidth(inner int) int {
	return (inner - 2*fieldGap) / fieldsPerRow
}

// embed lays out a bordered card: author, title and description stack
// directly, while the field grid, image and footer are each separated from
// the preceding part by embedPartGap.
func (l *layouter) embed(e Embed, w int) *Node {
	boxW := min(embedMaxWidth, w)
	accent := l.theme.EmbedBorder
	if e.Color != nil {
		accent = *e.Color
	}
	box := &Node{
		Kind:  NodeRect,
		Block: "embed",
		X:     gutter,
		W:     boxW,
		Rect:  &RectStyle{Fill: l.theme.EmbedBG, Radius: embedRadius, Accent: accent, AccentWidth: embedAccent},
	}
	left := embedAccent + embedPadLeft
	inner := max(boxW-left-embedPadRight, 1)
	textW := inner
	if e.ThumbnailURL != "" {
		textW = max(inner-thumbnailSize-thumbnailGap, 1)
		box.add(&Node{
			Kind:  NodeImage,
			Block: "embed-thumbnail",
			X:     left + inner - thumbnailSize,
			Y:     embedPadTop,
			W:     thumbnailSize,
			H:     thumbnailSize,
			Image: &ImageStyle{URL: e.ThumbnailURL, Radius: embedRadius, Fallback: l.theme.Placeholder},
		})
	}

	y := embedPadTop
	place := func(n *Node, gap bool) {
		if n == nil {
			return
		}
		if gap && y > embedPadTop {
			y += embedPartGap
		}
		n.X += left
		n.Y = y
		y += n.H
		box.add(n)
	}

	if e.Author != nil && e.Author.Name != "" {
		place(l.iconRow("embed-author", e.Author.Name, e.Author.IconURL, embedAuthorFont, l.theme.Header, textW), false)
	}
	if e.Title != "" {
		run := Run{Kind: RunText, Text: e.Title}
		titleColor := l.theme.Header
		if e.URL != "" {
			run.Kind, run.URL = RunLink, e.URL
			titleColor = l.theme.Link
		}
		title := l.textBlock(Wrap(l.m, []Run{run}, embedTitleFont, textW), embedTitleFont, titleColor)
		title.Block = "embed-title"
		place(title, false)
	}
	if runs := ParseInline(e.Description, InlineOptions{}); len(runs) > 0 {
		desc := l.textBlock(Wrap(l.m, runs, embedTextFont, textW), embedTextFont, l.theme.FG)
		desc.Block = "embed-description"
		place(desc, false)
	}
	place(l.fieldGrid(e.Fields, textW), true)
	if e.ThumbnailURL != "" {
		y = max(y, embedPadTop+thumbnailSize)
	}
	if e.Image != nil && e.Image.URL != "" {
		iw, ih := fitImage(e.Image.Width, e.Image.Height, inner)
		place(&Node{
			Kind:  NodeImage,
			Block: "embed-image",
			W:     iw,
			H:     ih,
			Image: &ImageStyle{URL: e.Image.URL, Radius: embedRadius, Fallback: l.theme.Placeholder},
		}, true)
	}
	if footer := footerText(e); footer != "" {
		var icon string
		if e.Footer != nil {
			icon = e.Footer.IconURL
		}
		place(l.iconRow("embed-footer", footer, icon, embedFooterFont, l.theme.Muted, inner), true)
	}
	box.H = y + embedPadBottom
	return box
}

func footerText(e Embed) string {
	var text string
	if e.Footer != nil {
		text = e.Footer.Text
	}
	switch {
	case text != "" && e.Timestamp != "":
		return text + " • " + e.Timestamp
	case text != "":
		return text
	}
	return e.Timestamp
}

// iconRow is an optional round icon followed by one ellipsized line.
func (l *layouter) iconRow(block, text, iconURL string, p FontProfile, c color.NRGBA, w int) *Node {
	lh := l.m.LineHeight(p)
	row := &Node{Kind: NodeGroup, Block: block, W: w}
	x := 0
	if iconURL != "" {
		row.H = max(embedIconSize, lh)
		row.add(&Node{
			Kind:  NodeImage,
			X:     0,
			Y:     (row.H - embedIconSize) / 2,
			W:     embedIconSize,
			H:     embedIconSize,
			Image: &ImageStyle{URL: iconURL, Circle: true, Fallback: l.theme.Placeholder},
		})
		x = embedIconSize + headerItemGap
	} else {
		row.H = lh
	}
	t := l.textNode(ellipsize(l.m, p, text, w-x), p, c)
	t.X, t.Y = x, (row.H-lh)/2
	row.add(t)
	return row
}

// fieldGrid flows inline fields three to a row; a non-inline field takes a
// full row of its own. Row height is the tallest field in the row.
func (l *layouter) fieldGrid(fields []EmbedField, w int) *Node {
	if len(fields) == 0 {
		return nil
	}
	grid := &Node{Kind: NodeGrid, Block: "embed-fields", W: w}
	colW := max(embedColumnWidth(w), 1)
	col, rowY, rowH := 0, 0, 0
	endRow := func() {
		if col == 0 && rowH == 0 {
			return
		}
		rowY += rowH + fieldRowGap
		col, rowH = 0, 0
	}
	for _, f := range fields {
		if !f.Inline {
			endRow()
			n := l.field(f, w)
			n.Y = rowY
			grid.add(n)
			rowH = n.H
			endRow()
			continue
		}
		n := l.field(f, colW)
		n.X = col * (colW + fieldGap)
		n.Y = rowY
		grid.add(n)
		rowH = max(rowH, n.H)
		col++
		if col == fieldsPerRow {
			endRow()
		}
	}
	if col > 0 || rowH > 0 {
		grid.H = rowY + rowH
	} else {
		grid.H = max(rowY-fieldRowGap, 0)
	}
	return grid
}

func (l *layouter) field(f EmbedField, w int) *Node {
	n := &Node{Kind: NodeGroup, Block: "embed-field", W: w}
	s := newStack(n, 0)
	if f.Name != "" {
		s.push(l.textBlock(Wrap(l.m, []Run{{Kind: RunText, Text: f.Name}}, fieldNameFont, w), fieldNameFont, l.theme.Header))
	}
	if runs := ParseInline(f.Value, InlineOptions{}); len(runs) > 0 {
		s.push(l.textBlock(Wrap(l.m, runs, embedTextFont, w), embedTextFont, l.theme.FG))
	}
	return s.done()
}

package chat2png

import "image/color"

// NodeKind identifies what a layout node draws.
type NodeKind uint8

const (
	// NodeGroup only positions its children.
	NodeGroup NodeKind = iota
	// NodeRect fills and strokes a box before drawing its children.
	NodeRect
	NodeText
	NodeImage
	NodeChipRow
	NodeGrid
)

// Flow tells the markup backend how a container positions its children.
// The canvas backend always uses the computed coordinates.
type Flow uint8

const (
	FlowAbsolute Flow = iota
	// FlowStack children are ordered top to bottom without overlap.
	FlowStack
)

type RectStyle struct {
	Fill        color.NRGBA
	Stroke      color.NRGBA
	StrokeWidth int
	Radius      int
	// Accent is a solid bar of AccentWidth pixels along the left edge.
	Accent      color.NRGBA
	AccentWidth int
}

type TextStyle struct {
	Line  Line
	Base  FontProfile
	Color color.NRGBA
}

type ImageStyle struct {
	URL    string
	Circle bool
	Radius int
	// Fallback fills the box when there is no image or it fails to load.
	// A non-zero FallbackTo turns the fill into a diagonal gradient.
	Fallback   color.NRGBA
	FallbackTo color.NRGBA
}

// Node is a positioned box of the layout tree. X and Y are relative to the
// parent node.
type Node struct {
	Kind   NodeKind
	Block  string
	Flow   Flow
	X, Y   int
	W, H   int
	Anchor string
	Href   string

	Rect  *RectStyle
	Text  *TextStyle
	Image *ImageStyle

	Children []*Node
}

func (n *Node) add(children ...*Node) {
	n.Children = append(n.Children, children...)
}

// Walk visits n and its descendants in pre-order with absolute coordinates.
// Returning false from fn skips the node's children.
func (n *Node) Walk(fn func(n *Node, x, y int) bool) {
	n.walk(0, 0, fn)
}

func (n *Node) walk(ox, oy int, fn func(n *Node, x, y int) bool) {
	x, y := ox+n.X, oy+n.Y
	if !fn(n, x, y) {
		return
	}
	for _, c := range n.Children {
		c.walk(x, y, fn)
	}
}

// Find returns the first node in pre-order whose Block equals block.
func (n *Node) Find(block string) *Node {
	var found *Node
	n.Walk(func(c *Node, _, _ int) bool {
		if found != nil {
			return false
		}
		if c.Block == block {
			found = c
			return false
		}
		return true
	})
	return found
}

// stack places children top to bottom with a fixed gap between them.
type stack struct {
	node *Node
	gap  int
	y    int
}

func newStack(n *Node, gap int) *stack {
	n.Flow = FlowStack
	return &stack{node: n, gap: gap}
}

func (s *stack) push(child *Node) {
	if child == nil {
		return
	}
	if len(s.node.Children) > 0 {
		s.y += s.gap
	}
	child.Y = s.y
	s.y += child.H
	s.node.add(child)
}

func (s *stack) done() *Node {
	s.node.H = s.y
	return s.node
}

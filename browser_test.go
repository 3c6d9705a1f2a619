package chat2png

import (
	"context"
	"testing"
	"time"
)

func browserOrSkip(t *testing.T) *BrowserBackend {
	t.Helper()
	if testing.Short() {
		t.Skip("browser tests are slow")
	}
	b := NewBrowserBackend(BrowserConfig{Timeout: time.Minute}, loadTestFonts(t), nil)
	if !b.Available() {
		t.Skip("no Chrome binary found")
	}
	return b
}

func parityDocument() Document {
	a := roo()
	a.ID = "1"
	b := roo()
	b.ID = "2"
	b.Content = "A longer message that wraps across more than one line when the page is narrow enough, with `code` and **bold** text."
	b.Reactions = []Reaction{{Emoji: "👍", Count: 12}, {Emoji: "🎉", Count: 3, UserHasReacted: true}}
	b.Embeds = []Embed{{Title: "Call Status", Description: "No active calls"}}
	b.CodeBlocks = []CodeBlock{{Language: "go", Code: "package main\n\nfunc main() {}\n"}}
	return Document{Messages: []Message{a, b}, ChannelName: "general"}
}

func TestBrowserHeightsMatchCanvas(t *testing.T) {
	b := browserOrSkip(t)
	doc := parityDocument()
	opts := Options{Width: 600}

	want, err := NewCanvasBackend(b.fonts, NewFetcher(FetchConfig{}, nil), nil).MessageHeights(context.Background(), doc, opts)
	if err != nil {
		t.Fatalf("canvas heights: %v", err)
	}
	got, err := b.MessageHeights(context.Background(), doc, opts)
	if err != nil {
		t.Fatalf("browser heights: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("browser found %d messages, want %d", len(got), len(want))
	}
	const tolerance = 2
	for i := range want {
		if d := got[i] - want[i]; d > tolerance || d < -tolerance {
			t.Fatalf("message %d: browser height %d, canvas height %d", i, got[i], want[i])
		}
	}
}

func TestBrowserRender(t *testing.T) {
	b := browserOrSkip(t)
	res, err := b.Render(context.Background(), parityDocument(), Options{Width: 600, Format: FormatJPEG})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if res.Width != 600 || res.ContentType != "image/jpeg" {
		t.Fatalf("unexpected result %dx%d %s", res.Width, res.Height, res.ContentType)
	}
}

func TestBrowserMissingExecutable(t *testing.T) {
	b := NewBrowserBackend(BrowserConfig{ExecPath: "/nonexistent/chrome", Timeout: 5 * time.Second}, loadTestFonts(t), nil)
	if b.Available() {
		t.Fatalf("missing binary reported as available")
	}
	if _, err := b.Render(context.Background(), Document{Messages: []Message{roo()}}, Options{}); err == nil {
		t.Fatalf("expected an error without a browser")
	}
}

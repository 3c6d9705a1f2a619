package main

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/arran4/chat2png"
)

func TestFormatForPath(t *testing.T) {
	tests := []struct {
		path    string
		want    chat2png.Format
		wantErr bool
	}{
		{path: "out.png", want: chat2png.FormatPNG},
		{path: "OUT.JPG", want: chat2png.FormatJPEG},
		{path: "a/b.jpeg", want: chat2png.FormatJPEG},
		{path: "out.gif", wantErr: true},
	}
	for _, tt := range tests {
		got, err := formatForPath(tt.path)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Fatalf("formatForPath(%q) = %q, %v", tt.path, got, err)
		}
	}
}

func TestDecodeRequestYAML(t *testing.T) {
	doc := `
theme: light
messages:
  - username: roo
    content: Hey everyone!
    color: "#ff66ff"
    avatarUrl: avatar.png
    reactions:
      - emoji: "👋"
        count: 3
        userHasReacted: true
`
	req, err := decodeRequest([]byte(doc), ".yaml")
	if err != nil {
		t.Fatalf("decodeRequest: %v", err)
	}
	if req.Theme != "light" || len(req.Messages) != 1 {
		t.Fatalf("unexpected request %+v", req)
	}
	m := req.Messages[0]
	if m.Username != "roo" || m.Color != "#ff66ff" || !m.Reactions[0].UserHasReacted {
		t.Fatalf("unexpected message %+v", m)
	}
}

func TestRunRenderLocalAvatar(t *testing.T) {
	dir := t.TempDir()
	avatar := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for i := range avatar.Pix {
		avatar.Pix[i] = 0xFF
	}
	avatar.Set(0, 0, color.NRGBA{0, 0, 0, 0xFF})
	var buf bytes.Buffer
	if err := png.Encode(&buf, avatar); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "avatar.png"), buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	in := filepath.Join(dir, "doc.json")
	body := `{"messages":[{"username":"roo","content":"Hey everyone!","avatarUrl":"file://` + filepath.Join(dir, "avatar.png") + `"}]}`
	if err := os.WriteFile(in, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	out := filepath.Join(dir, "out.jpg")

	f := renderFlags{in: in, out: out, allowLocal: true, timeout: 30 * time.Second}
	if err := runRender(context.Background(), f, strings.NewReader("")); err != nil {
		t.Fatalf("runRender: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if format != "jpeg" || img.Bounds().Dx() != chat2png.DefaultWidth {
		t.Fatalf("output %s %v", format, img.Bounds())
	}
}

func TestRunRenderInvalidInput(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.png")
	f := renderFlags{out: out, timeout: 30 * time.Second}
	err := runRender(context.Background(), f, strings.NewReader(`{"messages":[{"username":"roo","color":"red"}]}`))
	if err == nil || !strings.Contains(err.Error(), "messages[0].color") {
		t.Fatalf("expected color violation, got %v", err)
	}
	if _, statErr := os.Stat(out); !os.IsNotExist(statErr) {
		t.Fatalf("no output may be written for invalid input")
	}
}

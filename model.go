package chat2png

import "image/color"

// Message is one chat message as accepted by the renderer. Values are built
// once from a validated RenderRequest and never mutated afterwards.
type Message struct {
	ID        string
	Username  string
	Color     color.NRGBA
	AvatarURL string
	IsApp     bool
	Command   bool
	Edited    bool
	Pinned    bool
	Timestamp string
	Content   string

	Reactions   []Reaction
	Attachments []Attachment
	Embeds      []Embed
	CodeBlocks  []CodeBlock
	ReplyTo     *ReplyReference
	Mentions    []string
}

type Reaction struct {
	Emoji          string
	Count          int
	UserHasReacted bool
}

// AttachmentType is the closed set of attachment kinds.
type AttachmentType string

const (
	AttachmentImage AttachmentType = "image"
	AttachmentVideo AttachmentType = "video"
	AttachmentFile  AttachmentType = "file"
	AttachmentAudio AttachmentType = "audio"
)

type Attachment struct {
	URL    string
	Type   AttachmentType
	Name   string
	Size   int64
	Width  int
	Height int
}

// CodeBlock is a fenced block of source. Highlight holds 1-based line numbers.
type CodeBlock struct {
	Language  string
	Code      string
	Highlight map[int]bool
}

type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

type EmbedAuthor struct {
	Name    string
	URL     string
	IconURL string
}

type EmbedFooter struct {
	Text    string
	IconURL string
}

type EmbedImage struct {
	URL    string
	Width  int
	Height int
}

// Embed is a rich card attached to a message. Color is nil when the
// request omitted it or supplied something unparsable.
type Embed struct {
	Title        string
	Description  string
	URL          string
	Color        *color.NRGBA
	Fields       []EmbedField
	ThumbnailURL string
	Image        *EmbedImage
	Author       *EmbedAuthor
	Footer       *EmbedFooter
	Timestamp    string
}

type ReplyReference struct {
	MessageID string
	Username  string
	Content   string
	Jump      bool
}

// Document is the ordered set of messages rendered by a single request.
type Document struct {
	Messages    []Message
	ChannelName string
	ThreadName  string
}

// RenderMethod selects the backend.
type RenderMethod string

const (
	MethodCanvas  RenderMethod = "canvas"
	MethodBrowser RenderMethod = "browser"
)

// Format is the encoded output format.
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
)

// ContentType returns the MIME type for f.
func (f Format) ContentType() string {
	if f == FormatJPEG {
		return "image/jpeg"
	}
	return "image/png"
}

// Ext returns the file extension for f, without the dot.
func (f Format) Ext() string {
	if f == FormatJPEG {
		return "jpg"
	}
	return "png"
}

// Options configure how a Document is turned into image bytes. Zero values
// are replaced with defaults by WithDefaults.
type Options struct {
	Theme  string
	Method RenderMethod
	Format Format
	// Quality is the JPEG quality in [0,1]. Nil selects DefaultQuality; an
	// explicit 0 is kept and encodes at the lowest quality.
	Quality *float64
	Width   int
}

// Quality returns a pointer to q for use in Options.
func Quality(q float64) *float64 { return &q }

const (
	DefaultWidth   = 800
	DefaultQuality = 0.92
)

// WithDefaults returns o with empty fields filled in.
func (o Options) WithDefaults() Options {
	if o.Theme == "" {
		o.Theme = "dark"
	}
	if o.Method == "" {
		o.Method = MethodCanvas
	}
	if o.Format == "" {
		o.Format = FormatPNG
	}
	if o.Quality == nil || *o.Quality < 0 || *o.Quality > 1 {
		o.Quality = Quality(DefaultQuality)
	}
	if o.Width <= 0 {
		o.Width = DefaultWidth
	}
	return o
}

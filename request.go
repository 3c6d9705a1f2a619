package chat2png

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
)

// ---- Wire request ----

// RenderRequest is the wire form of a render call, decoded from JSON or YAML
// and turned into a Document by Validate.
type RenderRequest struct {
	Messages    []MessageRequest `json:"messages" yaml:"messages" validate:"required,min=1,dive"`
	ChannelName string           `json:"channelName,omitempty" yaml:"channelName,omitempty" validate:"max=100"`
	ThreadName  string           `json:"threadName,omitempty" yaml:"threadName,omitempty" validate:"max=100"`

	Theme        string   `json:"theme,omitempty" yaml:"theme,omitempty" validate:"omitempty,oneof=dark light"`
	RenderMethod string   `json:"renderMethod,omitempty" yaml:"renderMethod,omitempty" validate:"omitempty,oneof=canvas browser"`
	Format       string   `json:"format,omitempty" yaml:"format,omitempty" validate:"omitempty,oneof=png jpeg jpg"`
	Quality      *float64 `json:"quality,omitempty" yaml:"quality,omitempty" validate:"omitempty,gte=0,lte=1"`
	Width        int      `json:"width,omitempty" yaml:"width,omitempty" validate:"omitempty,min=200,max=4096"`
}

type MessageRequest struct {
	ID        string `json:"id,omitempty" yaml:"id,omitempty" validate:"max=64"`
	Username  string `json:"username" yaml:"username" validate:"required,max=32"`
	Content   string `json:"content,omitempty" yaml:"content,omitempty"`
	Color     string `json:"color,omitempty" yaml:"color,omitempty" validate:"omitempty,hexcolor36"`
	AvatarURL string `json:"avatarUrl,omitempty" yaml:"avatarUrl,omitempty" validate:"omitempty,asseturl"`
	Timestamp string `json:"timestamp,omitempty" yaml:"timestamp,omitempty" validate:"max=64"`
	IsApp     bool   `json:"isApp,omitempty" yaml:"isApp,omitempty"`
	Command   bool   `json:"command,omitempty" yaml:"command,omitempty"`
	Edited    bool   `json:"edited,omitempty" yaml:"edited,omitempty"`
	Pinned    bool   `json:"pinned,omitempty" yaml:"pinned,omitempty"`

	Reactions   []ReactionRequest   `json:"reactions,omitempty" yaml:"reactions,omitempty" validate:"max=40,dive"`
	Attachments []AttachmentRequest `json:"attachments,omitempty" yaml:"attachments,omitempty" validate:"max=10,dive"`
	Embeds      []EmbedRequest      `json:"embeds,omitempty" yaml:"embeds,omitempty" validate:"max=10,dive"`
	CodeBlocks  []CodeBlockRequest  `json:"codeBlocks,omitempty" yaml:"codeBlocks,omitempty" validate:"max=10,dive"`
	ReplyTo     *ReplyRequest       `json:"replyTo,omitempty" yaml:"replyTo,omitempty"`
	Mentions    []string            `json:"mentions,omitempty" yaml:"mentions,omitempty" validate:"max=50,dive,max=64"`

	// Legacy spellings accepted by the first version of the service.
	LegacyMessage   string `json:"message,omitempty" yaml:"message,omitempty"`
	LegacyAvatarURL string `json:"avatar_url,omitempty" yaml:"avatar_url,omitempty"`
}

type ReactionRequest struct {
	Emoji          string `json:"emoji" yaml:"emoji" validate:"required,max=64"`
	Count          int    `json:"count" yaml:"count" validate:"gte=1"`
	UserHasReacted bool   `json:"userHasReacted,omitempty" yaml:"userHasReacted,omitempty"`
}

type AttachmentRequest struct {
	URL    string `json:"url" yaml:"url" validate:"required,asseturl"`
	Type   string `json:"type,omitempty" yaml:"type,omitempty" validate:"omitempty,oneof=image video file audio"`
	Name   string `json:"name,omitempty" yaml:"name,omitempty" validate:"max=256"`
	Size   int64  `json:"size,omitempty" yaml:"size,omitempty" validate:"gte=0"`
	Width  int    `json:"width,omitempty" yaml:"width,omitempty" validate:"gte=0"`
	Height int    `json:"height,omitempty" yaml:"height,omitempty" validate:"gte=0"`
}

type EmbedFieldRequest struct {
	Name   string `json:"name" yaml:"name" validate:"max=256"`
	Value  string `json:"value" yaml:"value" validate:"max=1024"`
	Inline bool   `json:"inline,omitempty" yaml:"inline,omitempty"`
}

type EmbedAuthorRequest struct {
	Name    string `json:"name" yaml:"name" validate:"max=256"`
	URL     string `json:"url,omitempty" yaml:"url,omitempty" validate:"omitempty,url"`
	IconURL string `json:"iconUrl,omitempty" yaml:"iconUrl,omitempty" validate:"omitempty,asseturl"`
}

type EmbedFooterRequest struct {
	Text    string `json:"text" yaml:"text" validate:"max=2048"`
	IconURL string `json:"iconUrl,omitempty" yaml:"iconUrl,omitempty" validate:"omitempty,asseturl"`
}

type EmbedImageRequest struct {
	URL    string `json:"url" yaml:"url" validate:"required,asseturl"`
	Width  int    `json:"width,omitempty" yaml:"width,omitempty" validate:"gte=0"`
	Height int    `json:"height,omitempty" yaml:"height,omitempty" validate:"gte=0"`
}

// EmbedRequest is an embed card. Its color is deliberately not validated:
// an unparsable value falls back to the theme border.
type EmbedRequest struct {
	Title       string              `json:"title,omitempty" yaml:"title,omitempty" validate:"max=256"`
	Description string              `json:"description,omitempty" yaml:"description,omitempty" validate:"max=4096"`
	URL         string              `json:"url,omitempty" yaml:"url,omitempty" validate:"omitempty,url"`
	Color       string              `json:"color,omitempty" yaml:"color,omitempty"`
	Fields      []EmbedFieldRequest `json:"fields,omitempty" yaml:"fields,omitempty" validate:"max=25,dive"`
	Thumbnail   *EmbedImageRequest  `json:"thumbnail,omitempty" yaml:"thumbnail,omitempty"`
	Image       *EmbedImageRequest  `json:"image,omitempty" yaml:"image,omitempty"`
	Author      *EmbedAuthorRequest `json:"author,omitempty" yaml:"author,omitempty"`
	Footer      *EmbedFooterRequest `json:"footer,omitempty" yaml:"footer,omitempty"`
	Timestamp   string              `json:"timestamp,omitempty" yaml:"timestamp,omitempty" validate:"max=64"`
}

type CodeBlockRequest struct {
	Language       string `json:"language,omitempty" yaml:"language,omitempty" validate:"max=32"`
	Code           string `json:"code" yaml:"code"`
	HighlightLines []int  `json:"highlightLines,omitempty" yaml:"highlightLines,omitempty" validate:"dive,gte=1"`
}

type ReplyRequest struct {
	MessageID string `json:"messageId,omitempty" yaml:"messageId,omitempty" validate:"max=64"`
	Username  string `json:"username" yaml:"username" validate:"required,max=32"`
	Content   string `json:"content,omitempty" yaml:"content,omitempty" validate:"max=2000"`
	Jump      bool   `json:"jump,omitempty" yaml:"jump,omitempty"`
}

// ---- Validation ----

// Limits bound request size. Zero values disable the bound.
type Limits struct {
	MaxMessages      int
	MaxMessageLength int
}

const (
	DefaultMaxMessages      = 50
	DefaultMaxMessageLength = 2000
	defaultUserColor        = "#ffffff"
	timestampLayout         = "2006-01-02 15:04"
)

var hexColorPattern = regexp.MustCompile(`^#?([0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func requestValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New()
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
		_ = v.RegisterValidation("hexcolor36", func(fl validator.FieldLevel) bool {
			return hexColorPattern.MatchString(fl.Field().String())
		})
		_ = v.RegisterValidation("asseturl", func(fl validator.FieldLevel) bool {
			return isAssetURL(fl.Field().String())
		})
		validate = v
	})
	return validate
}

func isAssetURL(s string) bool {
	if strings.HasPrefix(strings.ToLower(s), "data:image/") {
		return strings.Contains(s, ",")
	}
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return u.Host != ""
	case "file":
		return u.Host != "" || u.Path != ""
	}
	return false
}

// ParseRequest decodes a JSON render request. Decoding failures are
// reported as invalid input.
func ParseRequest(data []byte) (*RenderRequest, error) {
	var req RenderRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, &InvalidInputError{Violations: []Violation{{Field: "body", Message: err.Error()}}}
	}
	return &req, nil
}

// normalize folds legacy aliases into their current fields and fills
// defaults that do not depend on validation.
func (r *RenderRequest) normalize(now time.Time) {
	for i := range r.Messages {
		m := &r.Messages[i]
		if m.Content == "" {
			m.Content = m.LegacyMessage
		}
		if m.AvatarURL == "" {
			m.AvatarURL = m.LegacyAvatarURL
		}
		if strings.TrimSpace(m.Color) == "" {
			m.Color = defaultUserColor
		}
		if m.Timestamp == "" {
			m.Timestamp = now.Format(timestampLayout)
		}
	}
}

// Validate checks the request against its schema and limits and converts
// it into the immutable model. Either every violation is reported or a
// Document is returned; there is no partial result.
func (r *RenderRequest) Validate(limits Limits) (Document, Options, error) {
	return r.validateAt(limits, time.Now())
}

func (r *RenderRequest) validateAt(limits Limits, now time.Time) (Document, Options, error) {
	r.normalize(now)

	var vs []Violation
	if err := requestValidator().Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return Document{}, Options{}, err
		}
		for _, fe := range verrs {
			vs = append(vs, Violation{Field: fieldPath(fe.Namespace()), Message: violationMessage(fe)})
		}
	}
	if limits.MaxMessages > 0 && len(r.Messages) > limits.MaxMessages {
		vs = append(vs, Violation{
			Field:   "messages",
			Message: fmt.Sprintf("at most %d messages are allowed", limits.MaxMessages),
		})
	}
	for i, m := range r.Messages {
		if limits.MaxMessageLength > 0 && utf8.RuneCountInString(m.Content) > limits.MaxMessageLength {
			vs = append(vs, Violation{
				Field:   fmt.Sprintf("messages[%d].content", i),
				Message: fmt.Sprintf("must be at most %d characters", limits.MaxMessageLength),
			})
		}
		if strings.TrimSpace(m.Username) == "" && m.Username != "" {
			vs = append(vs, Violation{Field: fmt.Sprintf("messages[%d].username", i), Message: "must not be blank"})
		}
	}
	if len(vs) > 0 {
		return Document{}, Options{}, &InvalidInputError{Violations: vs}
	}
	return r.document(), r.options(), nil
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func violationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "hexcolor36":
		return "must be a hex color such as #ff66ff"
	case "asseturl":
		return "must be an http(s), file or data:image URL"
	case "url":
		return "must be a valid URL"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "min", "max":
		bound := "at least "
		if fe.Tag() == "max" {
			bound = "at most "
		}
		switch fe.Kind() {
		case reflect.String:
			return "must be " + bound + fe.Param() + " characters"
		case reflect.Slice, reflect.Array:
			return "must contain " + bound + fe.Param() + " items"
		}
		return "must be " + bound + fe.Param()
	}
	return "failed " + fe.Tag() + " validation"
}

func (r *RenderRequest) options() Options {
	format := Format(strings.ToLower(r.Format))
	if format == "jpg" {
		format = FormatJPEG
	}
	opts := Options{
		Theme:  r.Theme,
		Method: RenderMethod(r.RenderMethod),
		Format: format,
		Width:  r.Width,
	}
	if r.Quality != nil {
		opts.Quality = Quality(*r.Quality)
	}
	return opts.WithDefaults()
}

func (r *RenderRequest) document() Document {
	doc := Document{
		Messages:    make([]Message, len(r.Messages)),
		ChannelName: strings.TrimSpace(r.ChannelName),
		ThreadName:  strings.TrimSpace(r.ThreadName),
	}
	for i, m := range r.Messages {
		doc.Messages[i] = m.message(i)
	}
	return doc
}

func (m MessageRequest) message(i int) Message {
	col, _ := ParseHexColor(m.Color)
	id := m.ID
	if id == "" {
		id = fmt.Sprintf("%d", i+1)
	}
	msg := Message{
		ID:        id,
		Username:  m.Username,
		Color:     col,
		AvatarURL: m.AvatarURL,
		IsApp:     m.IsApp,
		Command:   m.Command,
		Edited:    m.Edited,
		Pinned:    m.Pinned,
		Timestamp: m.Timestamp,
		Content:   m.Content,
		Mentions:  m.Mentions,
	}
	for _, r := range m.Reactions {
		msg.Reactions = append(msg.Reactions, Reaction{Emoji: r.Emoji, Count: r.Count, UserHasReacted: r.UserHasReacted})
	}
	for _, a := range m.Attachments {
		typ := AttachmentType(a.Type)
		if typ == "" {
			typ = AttachmentFile
		}
		msg.Attachments = append(msg.Attachments, Attachment{
			URL: a.URL, Type: typ, Name: a.Name, Size: a.Size, Width: a.Width, Height: a.Height,
		})
	}
	for _, e := range m.Embeds {
		msg.Embeds = append(msg.Embeds, e.embed())
	}
	for _, cb := range m.CodeBlocks {
		block := CodeBlock{Language: cb.Language, Code: cb.Code}
		if len(cb.HighlightLines) > 0 {
			block.Highlight = make(map[int]bool, len(cb.HighlightLines))
			for _, n := range cb.HighlightLines {
				block.Highlight[n] = true
			}
		}
		msg.CodeBlocks = append(msg.CodeBlocks, block)
	}
	if m.ReplyTo != nil {
		msg.ReplyTo = &ReplyReference{
			MessageID: m.ReplyTo.MessageID,
			Username:  m.ReplyTo.Username,
			Content:   m.ReplyTo.Content,
			Jump:      m.ReplyTo.Jump && m.ReplyTo.MessageID != "",
		}
	}
	return msg
}

func (e EmbedRequest) embed() Embed {
	out := Embed{
		Title:       e.Title,
		Description: e.Description,
		URL:         e.URL,
		Timestamp:   e.Timestamp,
	}
	if c, err := ParseHexColor(e.Color); err == nil {
		out.Color = &c
	}
	for _, f := range e.Fields {
		out.Fields = append(out.Fields, EmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	if e.Thumbnail != nil {
		out.ThumbnailURL = e.Thumbnail.URL
	}
	if e.Image != nil {
		out.Image = &EmbedImage{URL: e.Image.URL, Width: e.Image.Width, Height: e.Image.Height}
	}
	if e.Author != nil {
		out.Author = &EmbedAuthor{Name: e.Author.Name, URL: e.Author.URL, IconURL: e.Author.IconURL}
	}
	if e.Footer != nil {
		out.Footer = &EmbedFooter{Text: e.Footer.Text, IconURL: e.Footer.IconURL}
	}
	return out
}

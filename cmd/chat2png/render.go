package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/arran4/chat2png"
	"github.com/arran4/chat2png/internal/logging"
)

type renderFlags struct {
	in, out     string
	method      string
	theme       string
	width       int
	quality     float64
	qualitySet  bool
	allowLocal  bool
	timeout     time.Duration
	verbose     bool
	fontRegular string
	fontBold    string
	fontMono    string
	fontEmoji   string
	chromePath  string
}

func init() {
	var f renderFlags
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render a JSON or YAML document to an image file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f.qualitySet = cmd.Flags().Changed("quality")
			return runRender(cmd.Context(), f, cmd.InOrStdin())
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.in, "in", "", "Input document, .json or .yaml (default: stdin as JSON)")
	fl.StringVar(&f.out, "out", "out.png", "Output image file (.png or .jpg)")
	fl.StringVar(&f.method, "method", "", "Render method: canvas|browser (overrides the document)")
	fl.StringVar(&f.theme, "theme", "", "Theme: dark|light (overrides the document)")
	fl.IntVar(&f.width, "width", 0, "Output width in pixels (overrides the document)")
	fl.Float64Var(&f.quality, "quality", 0, "JPEG quality in [0,1] (overrides the document)")
	fl.BoolVar(&f.allowLocal, "allow-local", true, "Allow file:// image URLs, relative ones resolved against the input file")
	fl.DurationVar(&f.timeout, "timeout", time.Minute, "Overall render timeout")
	fl.BoolVarP(&f.verbose, "verbose", "v", false, "Log asset failures and timings")
	fl.StringVar(&f.fontRegular, "font", "", "Path to TTF for regular text (optional; default Go Regular)")
	fl.StringVar(&f.fontBold, "fontbold", "", "Path to TTF for bold text (optional; default Go Bold)")
	fl.StringVar(&f.fontMono, "fontmono", "", "Path to TTF for code (optional; default Go Mono)")
	fl.StringVar(&f.fontEmoji, "fontemoji", "", "Path to a TTF emoji font (optional)")
	fl.StringVar(&f.chromePath, "chrome", "", "Chrome executable for the browser method")
	rootCmd.AddCommand(cmd)
}

// decodeRequest reads a document as YAML when ext says so and as JSON
// otherwise.
func decodeRequest(data []byte, ext string) (*chat2png.RenderRequest, error) {
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		var req chat2png.RenderRequest
		if err := yaml.Unmarshal(data, &req); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
		return &req, nil
	default:
		return chat2png.ParseRequest(data)
	}
}

func formatForPath(path string) (chat2png.Format, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".png":
		return chat2png.FormatPNG, nil
	case ".jpg", ".jpeg":
		return chat2png.FormatJPEG, nil
	default:
		return "", errors.New("unsupported output extension: " + ext)
	}
}

func (f renderFlags) apply(req *chat2png.RenderRequest) {
	if f.method != "" {
		req.RenderMethod = f.method
	}
	if f.theme != "" {
		req.Theme = f.theme
	}
	if f.width > 0 {
		req.Width = f.width
	}
	if f.qualitySet {
		req.Quality = chat2png.Quality(f.quality)
	}
}

func runRender(ctx context.Context, f renderFlags, stdin io.Reader) error {
	if ctx == nil {
		ctx = context.Background()
	}
	format, err := formatForPath(f.out)
	if err != nil {
		return err
	}

	var data []byte
	baseDir := "."
	if f.in == "" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(f.in)
		baseDir = filepath.Dir(f.in)
	}
	if err != nil {
		return err
	}
	req, err := decodeRequest(data, filepath.Ext(f.in))
	if err != nil {
		return err
	}
	f.apply(req)
	req.Format = string(format)
	doc, opts, err := req.Validate(chat2png.Limits{})
	if err != nil {
		return err
	}

	log := zap.NewNop()
	if f.verbose {
		if log, err = logging.New("debug", true); err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()
	}
	fonts, err := chat2png.LoadFonts(chat2png.FontConfig{
		RegularPath: f.fontRegular,
		BoldPath:    f.fontBold,
		MonoPath:    f.fontMono,
		EmojiPath:   f.fontEmoji,
	})
	if err != nil {
		return err
	}
	r, err := chat2png.NewRenderer(chat2png.Config{
		Fonts:   fonts,
		Fetch:   chat2png.FetchConfig{AllowLocal: f.allowLocal, BaseDir: baseDir, Retries: 2},
		Browser: chat2png.BrowserConfig{ExecPath: f.chromePath},
		Logger:  log,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	res, err := r.Render(ctx, doc, opts)
	if err != nil {
		return err
	}
	return os.WriteFile(f.out, res.Data, 0o644)
}

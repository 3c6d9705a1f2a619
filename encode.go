package chat2png

import (
	"bytes"
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// jpegQuality maps a [0,1] quality onto the encoder's 1..100 scale.
func jpegQuality(q float64) int {
	return min(max(int(math.Round(q*100)), 1), 100)
}

// Encode writes img in the requested format. PNG is lossless and ignores
// quality.
func Encode(img image.Image, format Format, quality float64) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch format {
	case FormatJPEG:
		err = imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(jpegQuality(quality)))
	default:
		err = imaging.Encode(&buf, img, imaging.PNG)
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

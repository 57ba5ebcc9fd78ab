package transform

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
)

// DefaultQuality is the lossy re-encode setting used when none is configured.
const DefaultQuality = 75

var (
	ErrDecode            = errors.New("failed to decode image")
	ErrEncode            = errors.New("failed to encode image")
	ErrUnsupportedFormat = errors.New("unsupported image format")
)

// Output is the re-encoded image. Format always equals the detected input
// format.
type Output struct {
	Data   []byte
	Format string
}

type Transformer struct {
	// Quality is on a 0-100 scale. Formats without a lossy setting ignore it.
	Quality int
}

func New(quality int) *Transformer {
	return &Transformer{Quality: quality}
}

func (t *Transformer) Transform(data []byte) (Output, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Output{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	var buf bytes.Buffer
	switch format {
	case "webp":
		err = webp.Encode(&buf, img, &webp.Options{Quality: float32(t.Quality)})
	default:
		var f imaging.Format
		f, err = imaging.FormatFromExtension(format)
		if err != nil {
			return Output{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
		}
		err = imaging.Encode(&buf, img, f, imaging.JPEGQuality(t.Quality))
	}
	if err != nil {
		return Output{}, fmt.Errorf("%w as %s: %v", ErrEncode, format, err)
	}

	return Output{Data: buf.Bytes(), Format: format}, nil
}

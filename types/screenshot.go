package types

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"time"
)

// JPEGQuality is the encoder quality used for model-bound frames.
const JPEGQuality = 85

// screenshotTimeLayout 对应 dd/mm/YYYY HH:MM:SS。
const screenshotTimeLayout = "02/01/2006 15:04:05"

// Screenshot is one captured frame: the decoded pixel buffer plus its
// compressed encoding. It is immutable once built and can be shared across
// goroutines without locking.
type Screenshot struct {
	Timestamp time.Time
	Image     *image.RGBA
	Encoded   []byte // JPEG
}

// NewScreenshot normalizes img into an origin-anchored RGBA buffer and encodes it as JPEG.
func NewScreenshot(img image.Image, ts time.Time) (*Screenshot, error) {
	if img == nil {
		return nil, NewError(ErrResourceUnavailable, "nil image")
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, rgba, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, NewError(ErrResourceUnavailable, "failed to encode screenshot").WithCause(err)
	}
	return &Screenshot{
		Timestamp: ts,
		Image:     rgba,
		Encoded:   buf.Bytes(),
	}, nil
}

// Width returns the frame width in pixels.
func (s *Screenshot) Width() int {
	if s == nil || s.Image == nil {
		return 0
	}
	return s.Image.Rect.Dx()
}

// Height returns the frame height in pixels.
func (s *Screenshot) Height() int {
	if s == nil || s.Image == nil {
		return 0
	}
	return s.Image.Rect.Dy()
}

// Equal reports exact pixel-buffer equality.
func (s *Screenshot) Equal(other *Screenshot) bool {
	if s == nil || other == nil || s.Image == nil || other.Image == nil {
		return false
	}
	if s == other || s.Image == other.Image {
		return true
	}
	w, h := s.Width(), s.Height()
	if w != other.Width() || h != other.Height() {
		return false
	}
	for y := 0; y < h; y++ {
		if !bytes.Equal(s.row(y, w), other.row(y, w)) {
			return false
		}
	}
	return true
}

// CountMatchingPixels counts pixels at identical coordinates with identical
// RGBA values, over the rectangle both frames cover.
func CountMatchingPixels(a, b *Screenshot) int {
	if a == nil || b == nil || a.Image == nil || b.Image == nil {
		return 0
	}
	w := min(a.Width(), b.Width())
	h := min(a.Height(), b.Height())
	count := 0
	for y := 0; y < h; y++ {
		ra, rb := a.row(y, w), b.row(y, w)
		for x := 0; x < len(ra); x += 4 {
			if ra[x] == rb[x] && ra[x+1] == rb[x+1] && ra[x+2] == rb[x+2] && ra[x+3] == rb[x+3] {
				count++
			}
		}
	}
	return count
}

// row returns the first w pixels of row y relative to the image origin.
func (s *Screenshot) row(y, w int) []byte {
	start := s.Image.PixOffset(s.Image.Rect.Min.X, s.Image.Rect.Min.Y+y)
	return s.Image.Pix[start : start+4*w]
}

// Base64 returns the encoded frame ready for transport.
func (s *Screenshot) Base64() string {
	return base64.StdEncoding.EncodeToString(s.Encoded)
}

// ImageContent returns the frame as a message image block.
func (s *Screenshot) ImageContent() ImageContent {
	return ImageContent{Type: "base64", MediaType: "image/jpeg", Data: s.Base64()}
}

// Caption returns the timestamp caption attached to the frame in model context.
func (s *Screenshot) Caption(suffix string) string {
	caption := fmt.Sprintf("[Screenshot taken at %s]", s.Timestamp.UTC().Format(screenshotTimeLayout))
	if suffix != "" {
		caption += " " + suffix
	}
	return caption
}

// ToMessage renders the frame as a user image message.
func (s *Screenshot) ToMessage(suffix string) Message {
	return Message{
		Role:      RoleUser,
		Content:   s.Caption(suffix),
		Images:    []ImageContent{s.ImageContent()},
		Timestamp: s.Timestamp,
	}
}

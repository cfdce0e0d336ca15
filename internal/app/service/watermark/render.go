package watermark

import (
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	chaiwebp "github.com/chai2010/webp"
	"github.com/fogleman/gg"
	xwebp "golang.org/x/image/webp"
)

const (
	// images smaller than this are not worth watermarking
	minDimension = 100

	minFontSize = 8
	maxFontSize = 32

	jpegQuality = 85
	webpQuality = 85
)

var (
	ErrImageTooSmall     = errors.New("watermark: image smaller than 100x100")
	ErrUnsupportedFormat = errors.New("watermark: unsupported image format")
)

// render decodes the source, burns in the overlay and publishes the result
// atomically: encode to a temp file in the cache dir, then rename into place.
// A concurrent reader of the same cache key never observes a partial file;
// two concurrent renders of the same key simply clobber each other with
// byte-identical output.
func (e *Engine) render(src, dst string, st Settings) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	img, err := decode(f, src)
	f.Close()
	if err != nil {
		return err
	}

	b := img.Bounds()
	if b.Dx() < minDimension || b.Dy() < minDimension {
		return ErrImageTooSmall
	}

	out := e.overlay(img, st)

	tmp, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp cache file: %w", err)
	}
	if err := encode(tmp, out, dst); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to flush cache file: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to publish cache file: %w", err)
	}
	return nil
}

// overlay draws the diagonal repeating pattern plus the central mark onto a
// copy of the image.
func (e *Engine) overlay(img image.Image, st Settings) image.Image {
	b := img.Bounds()
	w := float64(b.Dx())
	h := float64(b.Dy())

	// font size scales with the smaller dimension, clamped to keep tiny
	// thumbnails legible and huge originals subtle
	fontSize := math.Min(w, h) * st.SizePercent / 100
	fontSize = math.Max(minFontSize, math.Min(maxFontSize, fontSize))

	dc := gg.NewContextForImage(img)
	dc.SetRGBA(1, 1, 1, st.alpha())

	face, rotatable := e.font.face(fontSize)
	dc.SetFontFace(face)
	e.drawDiagonalPattern(dc, w, h, fontSize, st, rotatable)

	// central mark: same text, 1.5x the tile size, unrotated
	centerFace, _ := e.font.face(fontSize * 1.5)
	dc.SetFontFace(centerFace)
	cw, ch := dc.MeasureString(st.Text)
	dc.DrawString(st.Text, (w-cw)/2, (h+ch)/2)

	return dc.Image()
}

// drawDiagonalPattern tiles the text across the canvas with a half-spacing
// offset on alternating rows, so the repetition reads as a brick pattern
// instead of a visible grid. The fixed-width fallback face cannot rotate.
func (e *Engine) drawDiagonalPattern(dc *gg.Context, w, h, fontSize float64, st Settings, rotatable bool) {
	text := st.Text
	if text == "" {
		return
	}
	spacing := st.Spacing
	if spacing <= 0 {
		spacing = 1
	}

	// estimate, not a measurement: the original sizes tiles off character count
	textW := fontSize * float64(len(text)) * 0.6
	textH := fontSize
	spacingX := textW * spacing
	spacingY := textH * (spacing + 1)

	diag := math.Hypot(w, h)
	steps := int(math.Ceil(diag / (spacingX * 0.7)))

	for i := -steps; i <= steps; i++ {
		for j := -steps; j <= steps; j++ {
			x := float64(i)*spacingX + float64((j%2+2)%2)*(spacingX/2)
			y := float64(j) * spacingY

			if x < -textW || x > w+textW || y < -textH || y > h+textH {
				continue
			}

			if rotatable {
				dc.Push()
				dc.RotateAbout(gg.Radians(-st.Angle), x, y)
				dc.DrawString(text, x, y)
				dc.Pop()
			} else {
				dc.DrawString(text, x, y)
			}
		}
	}
}

func decode(r io.Reader, path string) (image.Image, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		img, err := jpeg.Decode(r)
		if err != nil {
			return nil, fmt.Errorf("failed to decode jpeg: %w", err)
		}
		return img, nil
	case ".png":
		img, err := png.Decode(r)
		if err != nil {
			return nil, fmt.Errorf("failed to decode png: %w", err)
		}
		return img, nil
	case ".gif":
		img, err := gif.Decode(r)
		if err != nil {
			return nil, fmt.Errorf("failed to decode gif: %w", err)
		}
		return img, nil
	case ".webp":
		img, err := xwebp.Decode(r)
		if err != nil {
			return nil, fmt.Errorf("failed to decode webp: %w", err)
		}
		return img, nil
	default:
		return nil, ErrUnsupportedFormat
	}
}

func encode(w io.Writer, img image.Image, path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return jpeg.Encode(w, img, &jpeg.Options{Quality: jpegQuality})
	case ".png":
		enc := png.Encoder{CompressionLevel: png.DefaultCompression}
		return enc.Encode(w, img)
	case ".gif":
		return gif.Encode(w, img, nil)
	case ".webp":
		return chaiwebp.Encode(w, img, &chaiwebp.Options{Quality: webpQuality})
	default:
		return ErrUnsupportedFormat
	}
}

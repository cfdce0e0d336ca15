package watermark

import (
	"os"
	"sync"

	"github.com/golang/freetype/truetype"
	"go.uber.org/zap"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
)

// systemFontPaths are probed when no font is configured.
var systemFontPaths = []string{
	"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/truetype/liberation/LiberationSans-Regular.ttf",
	"/System/Library/Fonts/Supplemental/Arial.ttf",
	"/Windows/Fonts/arial.ttf",
}

// fontSource parses one TrueType font at startup and derives faces per point
// size. Without a usable TTF it falls back to a fixed-width bitmap face,
// which cannot be rotated or scaled.
type fontSource struct {
	ttf *truetype.Font

	mu    sync.Mutex
	faces map[float64]font.Face
}

func newFontSource(configured string, log *zap.SugaredLogger) *fontSource {
	fs := &fontSource{faces: map[float64]font.Face{}}

	paths := systemFontPaths
	if configured != "" {
		paths = append([]string{configured}, systemFontPaths...)
	}
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		f, err := truetype.Parse(data)
		if err != nil {
			log.Warnw("failed to parse font, skipping", "path", p, "err", err)
			continue
		}
		fs.ttf = f
		log.Infow("watermark font loaded", "path", p)
		return fs
	}
	log.Warn("no TrueType font available, watermark text will use the fixed-width fallback without rotation")
	return fs
}

// face returns a face for the point size and whether it supports rotation.
func (fs *fontSource) face(points float64) (font.Face, bool) {
	if fs.ttf == nil {
		return basicfont.Face7x13, false
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if f, ok := fs.faces[points]; ok {
		return f, true
	}
	f := truetype.NewFace(fs.ttf, &truetype.Options{Size: points})
	fs.faces[points] = f
	return f, true
}

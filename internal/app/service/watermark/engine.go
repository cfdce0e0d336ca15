// Package watermark renders cached, watermarked renditions of source images on
// demand. A rendition is valid while its file exists, is at least as new as
// the source, and carries the current settings fingerprint in its name. A
// failed render always falls back to the original URL; watermark trouble must
// never hide the product.
package watermark

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lightboxhq/lightbox/internal/app/service/catalog"
	"github.com/lightboxhq/lightbox/internal/models"
	cfgpkg "github.com/lightboxhq/lightbox/pkg/config"
	"github.com/lightboxhq/lightbox/pkg/logctx"
	"github.com/lightboxhq/lightbox/pkg/metrics"
	"github.com/lightboxhq/lightbox/pkg/types"
)

// retention for abandoned cache entries; the janitor deletes anything older.
const cacheMaxAge = 30 * 24 * time.Hour

type Engine struct {
	cfg     *cfgpkg.Config
	catalog *catalog.Service
	log     *zap.SugaredLogger
	font    *fontSource

	mu       sync.RWMutex
	settings Settings
}

func NewEngine(cfg *cfgpkg.Config, cat *catalog.Service, log *zap.SugaredLogger) (*Engine, error) {
	if err := os.MkdirAll(cfg.Media.WatermarkDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create watermark dir: %w", err)
	}
	e := &Engine{
		cfg:     cfg,
		catalog: cat,
		log:     log,
		font:    newFontSource(cfg.Watermark.FontPath, log),
		settings: Settings{
			Text:        cfg.Watermark.Text,
			Opacity:     cfg.Watermark.Opacity,
			SizePercent: cfg.Watermark.SizePercent,
			Angle:       cfg.Watermark.Angle,
			Spacing:     cfg.Watermark.Spacing,
		},
	}
	return e, nil
}

func (e *Engine) Settings() Settings {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.settings
}

// UpdateSettings swaps the active settings and purges the whole cache. Old
// fingerprints would never be requested again anyway; purging keeps disk
// usage honest.
func (e *Engine) UpdateSettings(ctx context.Context, st Settings) (int, error) {
	e.mu.Lock()
	e.settings = st
	e.mu.Unlock()
	n, err := e.ClearCache(ctx)
	if err != nil {
		return n, err
	}
	logctx.FromCtx(ctx, e.log).Infow("watermark settings updated, cache purged", "purged", n)
	return n, nil
}

// ShouldWatermarkProduct gates the engine: recognized access types are
// watermarked, as is anything carrying the configured catalog tag. Unknown
// types are left alone.
func (e *Engine) ShouldWatermarkProduct(p *models.Product) bool {
	if p == nil {
		return false
	}
	switch p.AccessType {
	case types.AccessTypeFree, types.AccessTypeSubscription, types.AccessTypePremium:
		return true
	}
	return e.cfg.Watermark.WatermarkTag != "" && slices.Contains(p.Tags, e.cfg.Watermark.WatermarkTag)
}

// GetWatermarkedImageURL returns the public URL of the cached watermarked
// rendition for an attachment and size variant, rendering it on a cache miss.
// On any render failure the original URL comes back instead, and the failure
// is logged.
func (e *Engine) GetWatermarkedImageURL(ctx context.Context, attachmentID, size string) (string, error) {
	att, err := e.catalog.GetAttachment(ctx, attachmentID)
	if err != nil {
		return "", err
	}

	src := e.catalog.SourcePath(att, size)
	srcInfo, err := os.Stat(src)
	if err != nil {
		return "", fmt.Errorf("watermark source missing for attachment %s: %w", attachmentID, err)
	}

	st := e.Settings()
	name := cacheFilename(src, sizeSuffix(size), st.Fingerprint())
	dst := filepath.Join(e.cfg.Media.WatermarkDir, name)
	url := e.cfg.Media.WatermarkURL + "/" + name

	// Cache hit: entry exists and is at least as new as the source.
	if info, err := os.Stat(dst); err == nil && !info.ModTime().Before(srcInfo.ModTime()) {
		metrics.WatermarkCacheHits.Inc()
		return url, nil
	}
	metrics.WatermarkCacheMisses.Inc()

	if err := e.render(src, dst, st); err != nil {
		metrics.WatermarkFailures.Inc()
		logctx.FromCtx(ctx, e.log).Warnw("watermark render failed, serving original",
			"attachment_id", attachmentID, "size", size, "err", err)
		return e.catalog.SourceURL(att), nil
	}
	return url, nil
}

// WarmProductImages renders renditions for the product's featured and gallery
// images, so the migration worker can rely on cache entries existing before
// local files are deleted.
func (e *Engine) WarmProductImages(ctx context.Context, p *models.Product) {
	if !e.ShouldWatermarkProduct(p) {
		return
	}
	for _, id := range catalog.ProductImageIDs(p) {
		if _, err := e.GetWatermarkedImageURL(ctx, id, "full"); err != nil {
			logctx.FromCtx(ctx, e.log).Warnw("failed to warm watermark", "attachment_id", id, "err", err)
		}
	}
}

// IsCacheEntryFor reports whether a filename under the media tree is a live
// cache entry under the current fingerprint. The migration worker keeps such
// files when it sweeps local derivatives.
func (e *Engine) IsCacheEntryFor(filename string) bool {
	return strings.Contains(filename, "_watermarked_") &&
		strings.Contains(filename, e.Settings().Fingerprint())
}

// ClearCache unconditionally deletes every cache entry, returning the count.
func (e *Engine) ClearCache(ctx context.Context) (int, error) {
	return e.sweep(ctx, func(os.FileInfo) bool { return true })
}

// CleanupOld deletes entries older than the retention window; abandoned size
// variants would otherwise grow the directory without bound.
func (e *Engine) CleanupOld(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-cacheMaxAge)
	n, err := e.sweep(ctx, func(info os.FileInfo) bool {
		return info.ModTime().Before(cutoff)
	})
	if n > 0 {
		logctx.FromCtx(ctx, e.log).Infow("cleaned up old watermark files", "deleted", n)
	}
	return n, err
}

// CacheStats summarizes the cache directory for the admin surface.
type CacheStats struct {
	Count     int    `json:"count"`
	SizeBytes int64  `json:"size_bytes"`
	Directory string `json:"directory"`
}

func (e *Engine) Stats(ctx context.Context) (*CacheStats, error) {
	st := &CacheStats{Directory: e.cfg.Media.WatermarkDir}
	entries, err := os.ReadDir(e.cfg.Media.WatermarkDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read watermark dir: %w", err)
	}
	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		st.Count++
		st.SizeBytes += info.Size()
	}
	return st, nil
}

func (e *Engine) sweep(ctx context.Context, del func(os.FileInfo) bool) (int, error) {
	entries, err := os.ReadDir(e.cfg.Media.WatermarkDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read watermark dir: %w", err)
	}
	deleted := 0
	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		if !del(info) {
			continue
		}
		if err := os.Remove(filepath.Join(e.cfg.Media.WatermarkDir, de.Name())); err != nil {
			logctx.FromCtx(ctx, e.log).Warnw("failed to delete cache entry", "file", de.Name(), "err", err)
			continue
		}
		deleted++
	}
	return deleted, nil
}

// cacheFilename is {basename}_watermarked_{sizeSuffix}_{fingerprint}{ext}.
func cacheFilename(srcPath, sizeSuffix, fingerprint string) string {
	base := filepath.Base(srcPath)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return fmt.Sprintf("%s_watermarked_%s_%s%s", stem, sizeSuffix, fingerprint, ext)
}

func sizeSuffix(size string) string {
	if size == "" {
		return "full"
	}
	return size
}

package migration

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/lightboxhq/lightbox/internal/app/service/catalog"
	"github.com/lightboxhq/lightbox/internal/app/service/watermark"
	"github.com/lightboxhq/lightbox/internal/models"
	cfgpkg "github.com/lightboxhq/lightbox/pkg/config"
	"github.com/lightboxhq/lightbox/pkg/tool"
	"github.com/lightboxhq/lightbox/pkg/types"
)

// memStore records uploads without any network.
type memStore struct {
	objects map[string][]byte
}

func (m *memStore) PresignGet(_ context.Context, key string) (string, error) {
	return "https://example.invalid/" + key, nil
}

func (m *memStore) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.objects[key] = b
	return nil
}

func (m *memStore) Exists(_ context.Context, key string) (bool, error) {
	_, ok := m.objects[key]
	return ok, nil
}

type workerFixture struct {
	worker *Worker
	db     *gorm.DB
	store  *memStore
	cfg    *cfgpkg.Config
	engine *watermark.Engine
}

func newWorkerFixture(t *testing.T) *workerFixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&models.Product{}, &models.Attachment{}, &models.ObjectStorageKey{},
	))

	cfg := &cfgpkg.Config{}
	cfg.Media.BaseDir = t.TempDir()
	cfg.Media.BaseURL = "/media"
	cfg.Media.WatermarkDir = t.TempDir()
	cfg.Media.WatermarkURL = "/media/watermarks"
	cfg.ObjectStore.Namespace = "lightbox"
	cfg.Watermark.Text = "Lightbox"
	cfg.Watermark.Opacity = 90
	cfg.Watermark.SizePercent = 2.5
	cfg.Watermark.Spacing = 2.0

	log := zap.NewNop().Sugar()
	cat := catalog.NewService(db, cfg, log)
	engine, err := watermark.NewEngine(cfg, cat, log)
	require.NoError(t, err)
	store := &memStore{objects: map[string][]byte{}}
	w := NewWorker(db, cat, engine, store, cfg, log)
	return &workerFixture{worker: w, db: db, store: store, cfg: cfg, engine: engine}
}

func (f *workerFixture) writeImage(t *testing.T, rel string, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 90, G: 90, B: 90, A: 255})
		}
	}
	path := filepath.Join(f.cfg.Media.BaseDir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	out, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(out, img))
	require.NoError(t, out.Close())
	return path
}

func TestOnProductSaved(t *testing.T) {
	ctx := context.Background()

	t.Run("uploads, records key, marks uploaded, deletes local files", func(t *testing.T) {
		f := newWorkerFixture(t)
		local := f.writeImage(t, "u/photo.png", 200, 150)
		thumb := f.writeImage(t, "u/photo-150x150.png", 150, 150)

		att := &models.Attachment{
			ID:   tool.GenerateUUIDV7(),
			Path: "u/photo.png",
			Sizes: datatypes.NewJSONType(map[string]models.AttachmentSize{
				"thumbnail": {File: "photo-150x150.png", Width: 150, Height: 150},
			}),
		}
		require.NoError(t, f.db.Create(att).Error)
		p := &models.Product{
			ID:                   tool.GenerateUUIDV7(),
			AccessType:           types.AccessTypeFree,
			Downloadable:         true,
			Virtual:              true,
			FeaturedAttachmentID: att.ID,
		}
		require.NoError(t, f.db.Create(p).Error)

		require.NoError(t, f.worker.OnProductSaved(ctx, p.ID))

		// object landed under the namespaced key
		_, ok := f.store.objects["lightbox/u/photo.png"]
		assert.True(t, ok)

		var mapping models.ObjectStorageKey
		require.NoError(t, f.db.First(&mapping, "attachment_id = ?", att.ID).Error)
		assert.Equal(t, "lightbox/u/photo.png", mapping.ObjectKey)

		var gotAtt models.Attachment
		require.NoError(t, f.db.First(&gotAtt, "id = ?", att.ID).Error)
		assert.True(t, gotAtt.Uploaded)

		// original and thumbnail are gone, watermark cache survives
		assert.NoFileExists(t, local)
		assert.NoFileExists(t, thumb)
		entries, err := os.ReadDir(f.cfg.Media.WatermarkDir)
		require.NoError(t, err)
		assert.NotEmpty(t, entries, "warmed rendition must exist before local deletion")
	})

	t.Run("already uploaded attachment is skipped", func(t *testing.T) {
		f := newWorkerFixture(t)
		att := &models.Attachment{ID: tool.GenerateUUIDV7(), Path: "u/gone.png", Uploaded: true}
		require.NoError(t, f.db.Create(att).Error)
		p := &models.Product{
			ID: tool.GenerateUUIDV7(), AccessType: types.AccessTypeFree,
			Downloadable: true, Virtual: true, DownloadAttachmentID: att.ID,
		}
		require.NoError(t, f.db.Create(p).Error)

		// local file does not exist; the skip must come before any open
		require.NoError(t, f.worker.OnProductSaved(ctx, p.ID))
		assert.Empty(t, f.store.objects)
	})

	t.Run("unknown product is a no-op", func(t *testing.T) {
		f := newWorkerFixture(t)
		require.NoError(t, f.worker.OnProductSaved(ctx, "no-such"))
	})

	t.Run("shared attachment is migrated once", func(t *testing.T) {
		f := newWorkerFixture(t)
		f.writeImage(t, "u/shared.png", 200, 150)
		att := &models.Attachment{ID: tool.GenerateUUIDV7(), Path: "u/shared.png"}
		require.NoError(t, f.db.Create(att).Error)
		p := &models.Product{
			ID: tool.GenerateUUIDV7(), AccessType: types.AccessTypeFree,
			Downloadable: true, Virtual: true,
			FeaturedAttachmentID: att.ID, DownloadAttachmentID: att.ID,
		}
		require.NoError(t, f.db.Create(p).Error)

		require.NoError(t, f.worker.OnProductSaved(ctx, p.ID))

		var n int64
		require.NoError(t, f.db.Model(&models.ObjectStorageKey{}).Where("attachment_id = ?", att.ID).Count(&n).Error)
		assert.Equal(t, int64(1), n)
	})
}

func TestInflightSet(t *testing.T) {
	f := newWorkerFixture(t)
	w := f.worker

	require.True(t, w.acquire("a"))
	assert.False(t, w.acquire("a"), "second acquire of the same id must fail")
	require.True(t, w.acquire("b"), "other ids are independent")
	w.release("a")
	assert.True(t, w.acquire("a"))
}

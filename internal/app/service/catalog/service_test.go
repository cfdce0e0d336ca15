package catalog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/lightboxhq/lightbox/internal/models"
	cfgpkg "github.com/lightboxhq/lightbox/pkg/config"
	"github.com/lightboxhq/lightbox/pkg/types"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.Product{}, &models.Attachment{}))

	cfg := &cfgpkg.Config{}
	cfg.Media.BaseDir = "/srv/media"
	cfg.Media.BaseURL = "https://cdn.example.com/media"
	return NewService(db, cfg, zap.NewNop().Sugar())
}

func TestUpsertProductPreservesObjectKey(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)

	p := &models.Product{ID: "p1", Name: "Pack", AccessType: types.AccessTypeFree, Downloadable: true, Virtual: true}
	require.NoError(t, s.UpsertProduct(ctx, p))
	require.NoError(t, s.SetProductObjectKey(ctx, "p1", "lightbox/files/pack.zip"))

	// re-sync from the commerce platform carries no key
	resync := &models.Product{ID: "p1", Name: "Pack v2", AccessType: types.AccessTypeFree, Downloadable: true, Virtual: true}
	require.NoError(t, s.UpsertProduct(ctx, resync))

	got, err := s.GetProduct(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Pack v2", got.Name)
	assert.Equal(t, "lightbox/files/pack.zip", got.ObjectKey)
}

func TestSetProductObjectKeyFirstWriteWins(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)

	require.NoError(t, s.UpsertProduct(ctx, &models.Product{ID: "p1", Downloadable: true, Virtual: true}))
	require.NoError(t, s.SetProductObjectKey(ctx, "p1", "first-key"))
	require.NoError(t, s.SetProductObjectKey(ctx, "p1", "second-key"))

	got, err := s.GetProduct(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "first-key", got.ObjectKey)
}

func TestGetProductNotFound(t *testing.T) {
	s := newTestService(t)
	_, err := s.GetProduct(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSourcePath(t *testing.T) {
	s := newTestService(t)
	att := &models.Attachment{
		ID:   "a1",
		Path: "2024/07/photo.png",
		Sizes: datatypes.NewJSONType(map[string]models.AttachmentSize{
			"thumbnail": {File: "photo-150x150.png", Width: 150, Height: 150},
		}),
	}

	tests := []struct {
		name string
		size string
		want string
	}{
		{name: "original for empty size", size: "", want: filepath.Join("/srv/media", "2024/07/photo.png")},
		{name: "original for full", size: "full", want: filepath.Join("/srv/media", "2024/07/photo.png")},
		{name: "named variant resolves next to the original", size: "thumbnail", want: filepath.Join("/srv/media", "2024/07", "photo-150x150.png")},
		{name: "unknown variant falls back to original", size: "huge", want: filepath.Join("/srv/media", "2024/07/photo.png")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.SourcePath(att, tt.size))
		})
	}
}

func TestProductImageIDs(t *testing.T) {
	p := &models.Product{
		FeaturedAttachmentID: "f1",
		GalleryAttachmentIDs: []string{"g1", "", "g2"},
	}
	assert.Equal(t, []string{"f1", "g1", "g2"}, ProductImageIDs(p))
	assert.Empty(t, ProductImageIDs(&models.Product{}))
}

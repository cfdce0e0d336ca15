// Package catalog holds the slice of commerce-platform state this service
// depends on: product download metadata and media attachments. The commerce
// platform owns the catalog; rows here are synced in through the
// product-saved hook and read by the gateway, watermark engine and migration
// worker.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/lightboxhq/lightbox/internal/models"
	cfgpkg "github.com/lightboxhq/lightbox/pkg/config"
)

var ErrNotFound = errors.New("catalog: not found")

type Service struct {
	db  *gorm.DB
	cfg *cfgpkg.Config
	log *zap.SugaredLogger
}

func NewService(db *gorm.DB, cfg *cfgpkg.Config, log *zap.SugaredLogger) *Service {
	return &Service{db: db, cfg: cfg, log: log}
}

func (s *Service) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	var p models.Product
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load product %s: %w", id, err)
	}
	return &p, nil
}

// UpsertProduct syncs a product row from the commerce platform. The cached
// ObjectKey survives re-syncs so a resolved key is not lost on product edits.
func (s *Service) UpsertProduct(ctx context.Context, p *models.Product) error {
	var existing models.Product
	err := s.db.WithContext(ctx).Where("id = ?", p.ID).First(&existing).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to load product %s: %w", p.ID, err)
	}
	if err == nil {
		if p.ObjectKey == "" {
			p.ObjectKey = existing.ObjectKey
		}
		p.CreatedAt = existing.CreatedAt
	}
	if err := s.db.WithContext(ctx).Save(p).Error; err != nil {
		return fmt.Errorf("failed to upsert product %s: %w", p.ID, err)
	}
	return nil
}

// SetProductObjectKey backfills the cached object-store key. First write wins.
func (s *Service) SetProductObjectKey(ctx context.Context, productID, key string) error {
	res := s.db.WithContext(ctx).Model(&models.Product{}).
		Where("id = ? AND (object_key = '' OR object_key IS NULL)", productID).
		Update("object_key", key)
	if res.Error != nil {
		return fmt.Errorf("failed to backfill product key: %w", res.Error)
	}
	return nil
}

func (s *Service) GetAttachment(ctx context.Context, id string) (*models.Attachment, error) {
	var a models.Attachment
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&a).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load attachment %s: %w", id, err)
	}
	return &a, nil
}

func (s *Service) UpsertAttachment(ctx context.Context, a *models.Attachment) error {
	if err := s.db.WithContext(ctx).Save(a).Error; err != nil {
		return fmt.Errorf("failed to upsert attachment %s: %w", a.ID, err)
	}
	return nil
}

// MarkAttachmentUploaded flips the migration idempotency flag.
func (s *Service) MarkAttachmentUploaded(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Model(&models.Attachment{}).
		Where("id = ?", id).Update("uploaded", true).Error; err != nil {
		return fmt.Errorf("failed to mark attachment uploaded: %w", err)
	}
	return nil
}

// SourcePath resolves the local file path of an attachment for a size
// variant. Size "" or "full" means the original; named variants resolve
// through the attachment's size metadata and fall back to the original when
// the variant does not exist.
func (s *Service) SourcePath(a *models.Attachment, size string) string {
	orig := filepath.Join(s.cfg.Media.BaseDir, filepath.FromSlash(a.Path))
	if size == "" || size == "full" {
		return orig
	}
	sizes := a.Sizes.Data()
	if v, ok := sizes[size]; ok && v.File != "" {
		return filepath.Join(filepath.Dir(orig), v.File)
	}
	return orig
}

// SourceURL is the public URL of an attachment's original file.
func (s *Service) SourceURL(a *models.Attachment) string {
	return s.cfg.Media.BaseURL + "/" + a.Path
}

// ProductImageIDs returns featured plus gallery attachment ids, skipping blanks.
func ProductImageIDs(p *models.Product) []string {
	ids := make([]string, 0, 1+len(p.GalleryAttachmentIDs))
	if p.FeaturedAttachmentID != "" {
		ids = append(ids, p.FeaturedAttachmentID)
	}
	for _, id := range p.GalleryAttachmentIDs {
		if id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

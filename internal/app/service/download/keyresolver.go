package download

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/lightboxhq/lightbox/internal/app/service/catalog"
	"github.com/lightboxhq/lightbox/internal/models"
	"github.com/lightboxhq/lightbox/internal/platform/objectstore"
	"github.com/lightboxhq/lightbox/pkg/logctx"
	"github.com/lightboxhq/lightbox/pkg/tool"
)

// keyResolver is one strategy for locating the object-store key of a
// product's downloadable file. Strategies are tried in order from cheapest to
// most expensive; the first hit wins and cheaper representations are
// backfilled so the next request short-circuits.
type keyResolver interface {
	resolve(ctx context.Context, p *models.Product) (string, error)
}

// resolveKey walks the chain and backfills on a hit. Exhausting the chain is
// not an error here; the caller treats an empty key as a configuration error.
func (s *Service) resolveKey(ctx context.Context, p *models.Product) (string, error) {
	for i, r := range s.resolvers {
		key, err := r.resolve(ctx, p)
		if err != nil {
			return "", err
		}
		if key == "" {
			continue
		}
		if i > 0 {
			s.backfill(ctx, p, key)
		}
		return key, nil
	}
	return "", nil
}

// backfill records the resolved key in the cheaper-to-check places: the
// product row and the per-attachment mapping. Both writes are first-write-wins
// and best effort; a failed backfill only costs the next request a re-walk.
func (s *Service) backfill(ctx context.Context, p *models.Product, key string) {
	log := logctx.FromCtx(ctx, s.log)
	if err := s.catalog.SetProductObjectKey(ctx, p.ID, key); err != nil {
		log.Warnw("failed to backfill product object key", "product_id", p.ID, "err", err)
	}
	if p.DownloadAttachmentID == "" {
		return
	}
	row := &models.ObjectStorageKey{
		ID:           tool.GenerateUUIDV7(),
		AttachmentID: p.DownloadAttachmentID,
		ObjectKey:    key,
		UploadedAt:   time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		// unique index on attachment_id makes repeat backfills a no-op
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			log.Debugw("attachment key backfill skipped", "attachment_id", p.DownloadAttachmentID, "err", err)
		}
	}
}

// productKeyResolver reads the key cached on the product row itself.
type productKeyResolver struct{}

func (productKeyResolver) resolve(_ context.Context, p *models.Product) (string, error) {
	return p.ObjectKey, nil
}

// attachmentKeyResolver looks up the migration worker's per-attachment
// mapping for the product's downloadable file.
type attachmentKeyResolver struct {
	db *gorm.DB
}

func (r attachmentKeyResolver) resolve(ctx context.Context, p *models.Product) (string, error) {
	if p.DownloadAttachmentID == "" {
		return "", nil
	}
	var row models.ObjectStorageKey
	err := r.db.WithContext(ctx).
		Where("attachment_id = ?", p.DownloadAttachmentID).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return row.ObjectKey, nil
}

// storeProbeResolver derives the key the migration worker would have used and
// asks the object store whether it exists. Last and most expensive strategy.
type storeProbeResolver struct {
	cat       *catalog.Service
	store     objectstore.Store
	namespace string
}

func (r storeProbeResolver) resolve(ctx context.Context, p *models.Product) (string, error) {
	if p.DownloadAttachmentID == "" {
		return "", nil
	}
	att, err := r.cat.GetAttachment(ctx, p.DownloadAttachmentID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	key := r.namespace + "/" + strings.TrimPrefix(att.Path, "/")
	ok, err := r.store.Exists(ctx, key)
	if err != nil || !ok {
		return "", nil
	}
	return key, nil
}

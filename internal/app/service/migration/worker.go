// Package migration relocates the authoritative bytes of product assets from
// local disk into object storage once a watermark rendition exists to take
// over preview duty. After a successful upload the local original and its
// thumbnail derivatives are deleted; the per-attachment key mapping is then
// the only path to the bytes.
package migration

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/lightboxhq/lightbox/internal/app/service/catalog"
	"github.com/lightboxhq/lightbox/internal/app/service/watermark"
	"github.com/lightboxhq/lightbox/internal/models"
	"github.com/lightboxhq/lightbox/internal/platform/objectstore"
	cfgpkg "github.com/lightboxhq/lightbox/pkg/config"
	"github.com/lightboxhq/lightbox/pkg/logctx"
	"github.com/lightboxhq/lightbox/pkg/tool"
)

type Worker struct {
	db        *gorm.DB
	catalog   *catalog.Service
	engine    *watermark.Engine
	store     objectstore.Store
	cfg       *cfgpkg.Config
	log       *zap.SugaredLogger
	inflight  map[string]struct{}
	inflightM sync.Mutex
}

func NewWorker(
	db *gorm.DB,
	cat *catalog.Service,
	engine *watermark.Engine,
	store objectstore.Store,
	cfg *cfgpkg.Config,
	log *zap.SugaredLogger,
) *Worker {
	return &Worker{
		db:       db,
		catalog:  cat,
		engine:   engine,
		store:    store,
		cfg:      cfg,
		log:      log,
		inflight: map[string]struct{}{},
	}
}

// OnProductSaved is the hook the commerce platform's product-save event wires
// into. Watermark renditions are warmed before any local deletion so a later
// cache miss always has either a source file or a durable cache entry.
func (w *Worker) OnProductSaved(ctx context.Context, productID string) error {
	p, err := w.catalog.GetProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return nil
		}
		return err
	}

	w.engine.WarmProductImages(ctx, p)

	ids := catalog.ProductImageIDs(p)
	if p.DownloadAttachmentID != "" {
		ids = append(ids, p.DownloadAttachmentID)
	}
	ids = lo.Uniq(ids)

	for _, id := range ids {
		if err := w.migrateAttachment(ctx, id); err != nil {
			logctx.FromCtx(ctx, w.log).Errorw("attachment migration failed",
				"product_id", productID, "attachment_id", id, "err", err)
		}
	}
	return nil
}

// migrateAttachment uploads one attachment and sweeps its local files. The
// in-flight set is keyed by attachment id so a concurrent save of the same
// product (or of two products sharing an attachment) cannot double-process
// it; there is deliberately no process-wide flag.
func (w *Worker) migrateAttachment(ctx context.Context, attachmentID string) error {
	if !w.acquire(attachmentID) {
		return nil
	}
	defer w.release(attachmentID)

	att, err := w.catalog.GetAttachment(ctx, attachmentID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return nil
		}
		return err
	}
	if att.Uploaded {
		return nil
	}

	local := filepath.Join(w.cfg.Media.BaseDir, filepath.FromSlash(att.Path))
	f, err := os.Open(local)
	if err != nil {
		return fmt.Errorf("failed to open local original: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to stat local original: %w", err)
	}

	key := w.cfg.ObjectStore.Namespace + "/" + strings.TrimPrefix(filepath.ToSlash(att.Path), "/")
	ct := mime.TypeByExtension(filepath.Ext(local))
	err = w.store.Put(ctx, key, f, info.Size(), ct)
	f.Close()
	if err != nil {
		return err
	}

	if err := w.recordKey(ctx, attachmentID, key); err != nil {
		return err
	}
	if err := w.catalog.MarkAttachmentUploaded(ctx, attachmentID); err != nil {
		return err
	}

	w.sweepLocal(ctx, att, local)
	logctx.FromCtx(ctx, w.log).Infow("attachment migrated",
		"attachment_id", attachmentID, "key", key)
	return nil
}

// recordKey persists the attachment→key mapping. First write wins: once the
// local file is gone the mapping must never change.
func (w *Worker) recordKey(ctx context.Context, attachmentID, key string) error {
	row := &models.ObjectStorageKey{
		ID:           tool.GenerateUUIDV7(),
		AttachmentID: attachmentID,
		ObjectKey:    key,
		UploadedAt:   time.Now(),
	}
	err := w.db.WithContext(ctx).Create(row).Error
	if err != nil && !errors.Is(err, gorm.ErrDuplicatedKey) {
		var existing models.ObjectStorageKey
		if lookupErr := w.db.WithContext(ctx).
			Where("attachment_id = ?", attachmentID).First(&existing).Error; lookupErr == nil {
			return nil
		}
		return fmt.Errorf("failed to record object key: %w", err)
	}
	return nil
}

// sweepLocal deletes the original and every thumbnail derivative, preserving
// anything that is a live watermark cache entry under the current settings.
func (w *Worker) sweepLocal(ctx context.Context, att *models.Attachment, local string) {
	log := logctx.FromCtx(ctx, w.log)

	targets := []string{local}
	dir := filepath.Dir(local)
	for _, sz := range att.Sizes.Data() {
		if sz.File != "" {
			targets = append(targets, filepath.Join(dir, sz.File))
		}
	}

	for _, t := range targets {
		if w.engine.IsCacheEntryFor(filepath.Base(t)) {
			continue
		}
		if err := os.Remove(t); err != nil && !os.IsNotExist(err) {
			log.Warnw("failed to delete local file", "path", t, "err", err)
		}
	}
}

func (w *Worker) acquire(id string) bool {
	w.inflightM.Lock()
	defer w.inflightM.Unlock()
	if _, busy := w.inflight[id]; busy {
		return false
	}
	w.inflight[id] = struct{}{}
	return true
}

func (w *Worker) release(id string) {
	w.inflightM.Lock()
	defer w.inflightM.Unlock()
	delete(w.inflight, id)
}

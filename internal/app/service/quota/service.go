// Package quota is the store of subscription consumption state. Its one hard
// concurrency invariant: consuming a download unit is a single conditional
// UPDATE at the database, never a read-then-write, so concurrent requests
// against the last remaining unit cannot all succeed.
package quota

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/lightboxhq/lightbox/internal/models"
	cfgpkg "github.com/lightboxhq/lightbox/pkg/config"
	"github.com/lightboxhq/lightbox/pkg/logctx"
	"github.com/lightboxhq/lightbox/pkg/types"
)

type Service struct {
	db  *gorm.DB
	cfg *cfgpkg.Config
	log *zap.SugaredLogger
}

func NewService(db *gorm.DB, cfg *cfgpkg.Config, log *zap.SugaredLogger) *Service {
	return &Service{db: db, cfg: cfg, log: log}
}

// GetActiveQuota returns the authoritative quota row for a user: the newest
// active row whose renewal date is unset or not yet passed. A missing row is
// not an error, it means "no entitlement" — callers get (nil, nil).
func (s *Service) GetActiveQuota(ctx context.Context, userID string) (*models.UserQuota, error) {
	var q models.UserQuota
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, types.QuotaStatusActive).
		Where("quota_renewal_date IS NULL OR quota_renewal_date >= ?", today()).
		Order("created_at DESC").
		First(&q).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load active quota for user %s: %w", userID, err)
	}
	return &q, nil
}

// HasRemaining reports whether the quota row still permits a download.
func (s *Service) HasRemaining(q *models.UserQuota) bool {
	if q == nil {
		return false
	}
	return q.IsUnlimited || q.QuotaUsed < q.QuotaTotal
}

// ConsumeOne decrements one unit of quota. The WHERE clause re-checks the
// limit inside the UPDATE itself; with N concurrent callers and k units left,
// exactly min(N, k) updates match. RowsAffected == 0 is disambiguated with a
// follow-up read: the row may be gone, no longer active, or exhausted.
func (s *Service) ConsumeOne(ctx context.Context, quotaID string) (types.ConsumeResult, error) {
	now := time.Now()
	res := s.db.WithContext(ctx).Model(&models.UserQuota{}).
		Where("id = ? AND status = ?", quotaID, types.QuotaStatusActive).
		Where("is_unlimited OR quota_used < quota_total").
		Updates(map[string]any{
			"quota_used":    gorm.Expr("quota_used + ?", 1),
			"last_download": now,
			"updated_at":    now,
		})
	if res.Error != nil {
		return types.ConsumeNotFound, fmt.Errorf("failed to consume quota %s: %w", quotaID, res.Error)
	}
	if res.RowsAffected > 0 {
		return types.ConsumeOK, nil
	}

	var q models.UserQuota
	err := s.db.WithContext(ctx).Where("id = ?", quotaID).First(&q).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return types.ConsumeNotFound, nil
		}
		return types.ConsumeNotFound, fmt.Errorf("failed to re-read quota %s: %w", quotaID, err)
	}
	if q.Status != types.QuotaStatusActive {
		return types.ConsumeNotFound, nil
	}
	return types.ConsumeExhausted, nil
}

// ExpireOverdue transitions every active row with a passed renewal date to
// expired. Idempotent: the status filter excludes already-expired rows, so a
// second run affects nothing new.
func (s *Service) ExpireOverdue(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.UserQuota{}).
		Where("status = ? AND quota_renewal_date IS NOT NULL AND quota_renewal_date < ?",
			types.QuotaStatusActive, today()).
		Update("status", types.QuotaStatusExpired)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to expire overdue quotas: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		logctx.FromCtx(ctx, s.log).Infow("expired overdue quotas", "count", res.RowsAffected)
	}
	return res.RowsAffected, nil
}

// MaybeExpireInline opportunistically runs the overdue sweep on a small
// fraction of requests, as a backstop against a missed scheduled run. Errors
// are logged, never surfaced to the request that happened to trigger it.
func (s *Service) MaybeExpireInline(ctx context.Context) {
	p := s.cfg.Expiration.InlineProbability
	if p <= 0 || rand.Float64() >= p {
		return
	}
	if _, err := s.ExpireOverdue(ctx); err != nil {
		logctx.FromCtx(ctx, s.log).Errorw("inline expiration sweep failed", "err", err)
	}
}

func today() time.Time {
	y, m, d := time.Now().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.Local)
}

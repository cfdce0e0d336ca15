package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lightboxhq/lightbox/internal/models"
	"github.com/lightboxhq/lightbox/pkg/types"
)

var ErrQuotaNotFound = errors.New("quota: not found")

// ListFilter narrows admin quota listings.
type ListFilter struct {
	UserID string
	Status types.QuotaStatus
	From   int
	Size   int
}

func (s *Service) ListQuotas(ctx context.Context, f ListFilter) ([]*models.UserQuota, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.UserQuota{})
	if f.UserID != "" {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count quotas: %w", err)
	}
	size := f.Size
	if size <= 0 || size > 500 {
		size = 50
	}
	var rows []*models.UserQuota
	if err := q.Order(clause.OrderByColumn{Column: clause.Column{Name: "created_at"}, Desc: true}).
		Offset(f.From).Limit(size).Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list quotas: %w", err)
	}
	return rows, total, nil
}

// QuotaUpdate carries admin-editable fields; nil pointers are left untouched.
type QuotaUpdate struct {
	Status           *types.QuotaStatus `json:"status"`
	QuotaTotal       *int               `json:"quota_total"`
	QuotaRenewalDate *time.Time         `json:"quota_renewal_date"`
}

func (s *Service) UpdateQuota(ctx context.Context, id string, u QuotaUpdate) error {
	updates := map[string]any{}
	if u.Status != nil {
		updates["status"] = *u.Status
	}
	if u.QuotaTotal != nil {
		updates["quota_total"] = *u.QuotaTotal
	}
	if u.QuotaRenewalDate != nil {
		updates["quota_renewal_date"] = *u.QuotaRenewalDate
	}
	if len(updates) == 0 {
		return nil
	}
	res := s.db.WithContext(ctx).Model(&models.UserQuota{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to update quota %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrQuotaNotFound
	}
	return nil
}

// BulkExpire force-expires the given rows regardless of renewal date.
func (s *Service) BulkExpire(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Model(&models.UserQuota{}).
		Where("id IN ?", ids).
		Update("status", types.QuotaStatusExpired)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to bulk expire quotas: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// ResetUsage zeroes consumption on a row, e.g. at manual renewal.
func (s *Service) ResetUsage(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Model(&models.UserQuota{}).
		Where("id = ?", id).Update("quota_used", 0)
	if res.Error != nil {
		return fmt.Errorf("failed to reset quota %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrQuotaNotFound
	}
	return nil
}

// Cancel stamps a row cancelled with reason and operator. Cancelled rows stay
// behind as audit history.
func (s *Service) Cancel(ctx context.Context, id, reason, by string) error {
	now := time.Now()
	res := s.db.WithContext(ctx).Model(&models.UserQuota{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        types.QuotaStatusCancelled,
			"cancel_reason": reason,
			"cancelled_by":  by,
			"cancelled_at":  now,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to cancel quota %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrQuotaNotFound
	}
	return nil
}

// Stats summarizes quota rows for the admin dashboard.
type Stats struct {
	Active    int64 `json:"active"`
	Expired   int64 `json:"expired"`
	Cancelled int64 `json:"cancelled"`
	Overdue   int64 `json:"overdue"`
}

func (s *Service) GetStats(ctx context.Context) (*Stats, error) {
	var st Stats
	counts := []struct {
		dst  *int64
		cond *gorm.DB
	}{
		{&st.Active, s.db.WithContext(ctx).Model(&models.UserQuota{}).Where("status = ?", types.QuotaStatusActive)},
		{&st.Expired, s.db.WithContext(ctx).Model(&models.UserQuota{}).Where("status = ?", types.QuotaStatusExpired)},
		{&st.Cancelled, s.db.WithContext(ctx).Model(&models.UserQuota{}).Where("status = ?", types.QuotaStatusCancelled)},
		{&st.Overdue, s.db.WithContext(ctx).Model(&models.UserQuota{}).
			Where("status = ? AND quota_renewal_date IS NOT NULL AND quota_renewal_date < ?", types.QuotaStatusActive, today())},
	}
	for _, c := range counts {
		if err := c.cond.Count(c.dst).Error; err != nil {
			return nil, fmt.Errorf("failed to compute quota stats: %w", err)
		}
	}
	return &st, nil
}

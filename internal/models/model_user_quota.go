package models

import (
	"time"

	"github.com/lightboxhq/lightbox/pkg/types"
)

// UserQuota tracks one subscription grant and its consumption. Rows are
// append-only from the download path's perspective: consumption increments
// QuotaUsed in place, expiration flips Status, and superseded rows stay behind
// as the audit trail. At most one row per user is authoritative at a time
// (newest active row).
type UserQuota struct {
	ID     string `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID string `gorm:"column:user_id;type:varchar(64);not null;index:idx_user_status_created,priority:1" json:"user_id"`
	// PlanID references the plan the grant came from. The plan may be deleted
	// later; QuotaTotal and IsUnlimited are copied here at grant time so the
	// row stands on its own.
	PlanID           string            `gorm:"column:plan_id;type:uuid;not null" json:"plan_id"`
	QuotaTotal       int               `gorm:"column:quota_total;not null;default:0" json:"quota_total"`
	QuotaUsed        int               `gorm:"column:quota_used;not null;default:0" json:"quota_used"`
	IsUnlimited      bool              `gorm:"column:is_unlimited;not null;default:false" json:"is_unlimited"`
	Status           types.QuotaStatus `gorm:"column:status;type:varchar(16);not null;index:idx_user_status_created,priority:2" json:"status"`
	QuotaRenewalDate *time.Time        `gorm:"column:quota_renewal_date;default:null" json:"quota_renewal_date"`
	CancelReason     string            `gorm:"column:cancel_reason;type:varchar(255)" json:"cancel_reason"`
	CancelledBy      string            `gorm:"column:cancelled_by;type:varchar(64)" json:"cancelled_by"`
	CancelledAt      *time.Time        `gorm:"column:cancelled_at;default:null" json:"cancelled_at"`
	LastDownload     *time.Time        `gorm:"column:last_download;default:null" json:"last_download"`
	CreatedAt        time.Time         `gorm:"index:idx_user_status_created,priority:3" json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

func (UserQuota) TableName() string {
	return "user_quota"
}

// Remaining returns how many downloads are left, or -1 for unlimited rows.
func (q *UserQuota) Remaining() int {
	if q.IsUnlimited {
		return -1
	}
	if left := q.QuotaTotal - q.QuotaUsed; left > 0 {
		return left
	}
	return 0
}

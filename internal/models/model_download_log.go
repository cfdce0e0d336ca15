package models

import (
	"time"

	"github.com/lightboxhq/lightbox/pkg/types"
)

// DownloadLog is the append-only audit record of served downloads. One row per
// request that passed authorization and the quota check; never updated, only
// deleted by explicit admin purge.
type DownloadLog struct {
	ID           string    `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID       string    `gorm:"column:user_id;type:varchar(64);not null;index" json:"user_id"`
	ProductID    string    `gorm:"column:product_id;type:varchar(64);not null;index" json:"product_id"`
	DownloadTime time.Time `gorm:"column:download_time;not null;index" json:"download_time"`
	// DownloadType snapshots the product's access type at the time of the
	// download; the product may be reclassified later.
	DownloadType types.AccessType `gorm:"column:download_type;type:varchar(16);not null" json:"download_type"`
	IPAddress    string           `gorm:"column:ip_address;type:varchar(64)" json:"ip_address"`
	UserAgent    string           `gorm:"column:user_agent;type:varchar(512)" json:"user_agent"`
}

func (DownloadLog) TableName() string {
	return "download_log"
}

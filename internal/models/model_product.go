package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/lightboxhq/lightbox/pkg/types"
)

// Product mirrors the catalog metadata this service needs from the commerce
// platform. Rows are synced in through the product-saved hook; the commerce
// platform stays the source of truth for everything except ObjectKey, which
// the download gateway backfills once resolved.
type Product struct {
	ID           string           `gorm:"column:id;type:varchar(64);primaryKey" json:"id"`
	Name         string           `gorm:"column:name;type:varchar(255)" json:"name"`
	AccessType   types.AccessType `gorm:"column:access_type;type:varchar(16)" json:"access_type"`
	Downloadable bool             `gorm:"column:downloadable;not null;default:false" json:"downloadable"`
	Virtual      bool             `gorm:"column:virtual;not null;default:false" json:"virtual"`
	// ObjectKey caches the resolved object-store key for the product's
	// downloadable file. Empty until the resolver chain finds one.
	ObjectKey string `gorm:"column:object_key;type:varchar(1024)" json:"object_key"`
	// DownloadAttachmentID is the product's first downloadable file.
	DownloadAttachmentID string `gorm:"column:download_attachment_id;type:uuid" json:"download_attachment_id"`
	FeaturedAttachmentID string `gorm:"column:featured_attachment_id;type:uuid" json:"featured_attachment_id"`
	// GalleryAttachmentIDs holds additional preview image attachment ids.
	GalleryAttachmentIDs datatypes.JSONSlice[string] `gorm:"column:gallery_attachment_ids;type:jsonb;default:'[]'" json:"gallery_attachment_ids"`
	// Tags carries catalog tags; the watermark gate also fires on a specific tag.
	Tags      datatypes.JSONSlice[string] `gorm:"column:tags;type:jsonb;default:'[]'" json:"tags"`
	CreatedAt time.Time                   `json:"created_at"`
	UpdatedAt time.Time                   `json:"updated_at"`
}

func (Product) TableName() string {
	return "product"
}

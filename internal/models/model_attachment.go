package models

import (
	"time"

	"gorm.io/datatypes"
)

// AttachmentSize describes one generated thumbnail derivative of an attachment.
type AttachmentSize struct {
	File   string `json:"file"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Attachment is a media file managed under the local media directory until the
// migration worker relocates it to object storage.
type Attachment struct {
	ID string `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	// Path is relative to the media base directory.
	Path   string `gorm:"column:path;type:varchar(1024);not null" json:"path"`
	Mime   string `gorm:"column:mime;type:varchar(64)" json:"mime"`
	Width  int    `gorm:"column:width" json:"width"`
	Height int    `gorm:"column:height" json:"height"`
	// Sizes maps a named size variant (thumbnail, medium, ...) to its file,
	// which lives next to the original.
	Sizes datatypes.JSONType[map[string]AttachmentSize] `gorm:"column:sizes;type:jsonb;default:'{}'" json:"sizes"`
	// Uploaded marks that the original has been migrated to object storage,
	// preventing re-upload on repeated product saves.
	Uploaded  bool      `gorm:"column:uploaded;not null;default:false" json:"uploaded"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Attachment) TableName() string {
	return "attachment"
}

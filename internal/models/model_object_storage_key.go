package models

import "time"

// ObjectStorageKey maps a local attachment to its key in the remote object
// store. First write wins: once the local file has been deleted by the
// migration worker, the key is the only path to the bytes and must never be
// rewritten.
type ObjectStorageKey struct {
	ID           string    `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	AttachmentID string    `gorm:"column:attachment_id;type:uuid;not null;uniqueIndex" json:"attachment_id"`
	ObjectKey    string    `gorm:"column:object_key;type:varchar(1024);not null" json:"object_key"`
	UploadedAt   time.Time `gorm:"column:uploaded_at;not null" json:"uploaded_at"`
}

func (ObjectStorageKey) TableName() string {
	return "object_storage_key"
}

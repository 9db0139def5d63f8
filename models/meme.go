package models

import (
	"time"

	"gorm.io/datatypes"
)

// Meme is one uploaded asset. FilePath and ThumbnailPath are opaque names
// relative to the upload directory; FileSize is the byte count of FilePath
// and is what the storage quota sums over.
type Meme struct {
	ID            string                      `gorm:"primaryKey;size:36" json:"id"`
	Title         string                      `gorm:"size:500;not null" json:"title"`
	Tags          datatypes.JSONSlice[string] `gorm:"not null" json:"tags"`
	FilePath      *string                     `gorm:"size:500" json:"filePath"`
	ThumbnailPath *string                     `gorm:"size:500" json:"thumbnailPath"`
	FileSize      int64                       `gorm:"not null;default:0" json:"fileSize"`
	CreatedAt     time.Time                   `gorm:"precision:3;not null;index" json:"createdAt"`
}

// TableName pins the table name shared with the SQL migrations.
func (Meme) TableName() string { return "memes" }

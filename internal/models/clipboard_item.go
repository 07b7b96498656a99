package models

import (
	"time"
)

// Item kinds.
const (
	KindText = "text"
	KindFile = "file"
)

type ClipboardItem struct {
	ID          string    `json:"id" gorm:"primaryKey;size:191"` // blob store upload identifier
	Kind        string    `json:"kind" gorm:"size:16;not null"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size" gorm:"not null"` // bytes
	Chunked     bool      `json:"chunked" gorm:"default:false"`
	ChunkCount  int       `json:"chunkCount"`
	Owner       string    `json:"owner,omitempty" gorm:"index"`
	Checksum    string    `json:"checksum,omitempty"`
	ExpiresAt   time.Time `json:"expiresAt" gorm:"index;not null"`
	CreatedAt   time.Time `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt   time.Time `json:"updatedAt" gorm:"autoUpdateTime"`
	Deleted     bool      `json:"deleted" gorm:"default:false"`
}

// Expired reports whether the item is past its retention at now.
func (c ClipboardItem) Expired(now time.Time) bool {
	return c.Deleted || !now.Before(c.ExpiresAt)
}

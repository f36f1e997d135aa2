package entities

import (
	"time"

	"github.com/google/uuid"

	"proctor-recorder/constant"
)

type MediaChunk struct {
	ID         uuid.UUID            `json:"id" gorm:"type:uuid;primary_key"`
	SessionID  string               `json:"session_id" gorm:"type:varchar(64);not null;uniqueIndex:idx_media_chunks_session_stream_index,priority:1"`
	StreamType constant.StreamType  `json:"stream_type" gorm:"type:varchar(16);not null;uniqueIndex:idx_media_chunks_session_stream_index,priority:2"`
	ChunkIndex int                  `json:"chunk_index" gorm:"not null;uniqueIndex:idx_media_chunks_session_stream_index,priority:3"`
	Status     constant.ChunkStatus `json:"status" gorm:"type:varchar(20);not null"`
	Checksum   *string              `json:"checksum" gorm:"type:varchar(128)"`
	ByteSize   *int64               `json:"byte_size" gorm:"type:bigint"`
	StorageKey string               `json:"storage_key" gorm:"type:varchar(500);not null"`
	UploadURL  string               `json:"upload_url" gorm:"type:text"`
	ExpiresAt  *time.Time           `json:"expires_at"`
	CreatedAt  time.Time            `json:"created_at" gorm:"not null"`
	UpdatedAt  time.Time            `json:"updated_at" gorm:"not null"`
}

func (MediaChunk) TableName() string {
	return "media_chunks"
}

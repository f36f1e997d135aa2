package entities

import (
	"time"

	"github.com/google/uuid"
)

// RecordingChunk pins a media chunk to its 0-based position in a
// recording's final order.
type RecordingChunk struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	RecordingID uuid.UUID `json:"recording_id" gorm:"type:uuid;not null;uniqueIndex:idx_recording_chunks_recording_position,priority:1"`
	ChunkID     uuid.UUID `json:"chunk_id" gorm:"type:uuid;not null"`
	Position    int       `json:"position" gorm:"not null;uniqueIndex:idx_recording_chunks_recording_position,priority:2"`
	CreatedAt   time.Time `json:"created_at" gorm:"not null"`
}

func (RecordingChunk) TableName() string {
	return "recording_chunks"
}

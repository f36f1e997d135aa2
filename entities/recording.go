package entities

import (
	"time"

	"github.com/google/uuid"

	"proctor-recorder/constant"
)

// Recording is created once per (session, stream) at finalize time.
// ManifestJSON is frozen on creation and never rewritten.
type Recording struct {
	ID           uuid.UUID           `json:"id" gorm:"type:uuid;primary_key"`
	SessionID    string              `json:"session_id" gorm:"type:varchar(64);not null;uniqueIndex:idx_recordings_session_stream,priority:1"`
	StreamType   constant.StreamType `json:"stream_type" gorm:"type:varchar(16);not null;uniqueIndex:idx_recordings_session_stream,priority:2"`
	DurationMs   int64               `json:"duration_ms" gorm:"type:bigint;not null"`
	ManifestJSON string              `json:"manifest_json" gorm:"type:text;not null"`
	CreatedAt    time.Time           `json:"created_at" gorm:"not null"`
	UpdatedAt    time.Time           `json:"updated_at" gorm:"not null"`
}

func (Recording) TableName() string {
	return "recordings"
}

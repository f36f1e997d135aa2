package dto

import (
	"time"

	"github.com/google/uuid"

	"proctor-recorder/constant"
)

type ManifestChunkEntry struct {
	ChunkID    uuid.UUID `json:"chunkId"`
	ChunkIndex int       `json:"chunkIndex"`
	StorageKey string    `json:"storageKey"`
	Checksum   string    `json:"checksum"`
	ByteSize   int64     `json:"byteSize"`
}

type ManifestStream struct {
	StreamType constant.StreamType  `json:"streamType"`
	DurationMs int64                `json:"durationMs"`
	Chunks     []ManifestChunkEntry `json:"chunks"`
}

// RecordingManifest is the frozen description of a finished recording,
// one entry list per stream ordered by chunk index.
type RecordingManifest struct {
	SessionID       string           `json:"sessionId"`
	CreatedAt       time.Time        `json:"createdAt"`
	TotalDurationMs int64            `json:"totalDurationMs"`
	Streams         []ManifestStream `json:"streams"`
}

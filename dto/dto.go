package dto

import (
	"time"

	"github.com/google/uuid"

	"proctor-recorder/constant"
	"proctor-recorder/entities"
)

type StartSessionRequest struct {
	IncludeScreen bool `json:"includeScreen"`
}

type StartSessionResponse struct {
	Session   *entities.ExamSession `json:"session"`
	Recording RecordingSettings     `json:"recording"`
}

// RecordingSettings are the knobs the server recommends to the capture client.
type RecordingSettings struct {
	ChunkDurationMs int64 `json:"chunkDurationMs"`
	MaxRetries      int   `json:"maxRetries"`
}

type SignChunkRequest struct {
	StreamType constant.StreamType `json:"streamType" binding:"required"`
	ChunkIndex *int                `json:"chunkIndex" binding:"required"`
	ByteSize   int64               `json:"byteSize" binding:"required,gt=0"`
	Checksum   string              `json:"checksum" binding:"required,min=32"`
	MimeType   string              `json:"mimeType"`
}

type SignChunkResponse struct {
	ChunkID    uuid.UUID `json:"chunkId"`
	UploadURL  string    `json:"uploadUrl"`
	StorageKey string    `json:"storageKey"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

type CompleteChunkRequest struct {
	Checksum string `json:"checksum" binding:"required,min=32"`
	ByteSize int64  `json:"byteSize" binding:"required,gt=0"`
}

type FinalizeChunkRef struct {
	ChunkID    uuid.UUID `json:"chunkId" binding:"required"`
	ChunkIndex int       `json:"chunkIndex"`
}

type FinalizeStream struct {
	StreamType constant.StreamType `json:"streamType" binding:"required"`
	DurationMs int64               `json:"durationMs" binding:"min=0"`
	Chunks     []FinalizeChunkRef  `json:"chunks" binding:"required,min=1"`
}

type FinalizeRequest struct {
	TotalDurationMs int64            `json:"totalDurationMs" binding:"required,gt=0"`
	ManifestURL     string           `json:"manifestUrl"`
	Streams         []FinalizeStream `json:"streams" binding:"required,min=1"`
}

type FinalizeResponse struct {
	Manifest   *RecordingManifest    `json:"manifest"`
	Recordings []*entities.Recording `json:"recordings"`
}

type AbortSessionRequest struct {
	Reason string `json:"reason"`
}

type AbortSessionResponse struct {
	OK          bool     `json:"ok"`
	DeletedKeys []string `json:"deletedKeys"`
}

// RecordingFinalizedMessage is published after finalize so downstream
// workers (merge/transcode) can pick up the finished recording.
type RecordingFinalizedMessage struct {
	SessionID       string      `json:"sessionId"`
	RecordingIDs    []uuid.UUID `json:"recordingIds"`
	TotalDurationMs int64       `json:"totalDurationMs"`
}

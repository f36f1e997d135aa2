package client

import (
	"time"

	"proctor-recorder/constant"
)

type Status string

const (
	StatusIdle         Status = "idle"
	StatusInitialising Status = "initialising"
	StatusActive       Status = "active"
	StatusPaused       Status = "paused"
	StatusStopped      Status = "stopped"
	StatusFailed       Status = "failed"
)

// PendingChunk is a captured segment waiting in the upload queue. It is
// destroyed once the server confirms the upload.
type PendingChunk struct {
	ID         string
	StreamType constant.StreamType
	ChunkIndex int
	DurationMs int64
	Data       []byte

	// persistedID is set when the chunk has been staged in the offline
	// store, so the staged copy can be purged after a confirmed upload.
	persistedID string
}

type ChunkUploadResult struct {
	ChunkID    string
	ChunkIndex int
	StreamType constant.StreamType
	ByteSize   int64
	Checksum   string
	StorageKey string
	UploadedAt time.Time
}

// NetworkStatus reports connectivity. Injected so retry-vs-stage decisions
// are deterministic under test.
type NetworkStatus interface {
	Online() bool
	// OnlineSignal delivers a value every time connectivity returns.
	OnlineSignal() <-chan struct{}
}

// AlwaysOnline is the production default for environments without a
// connectivity probe.
type AlwaysOnline struct{}

func (AlwaysOnline) Online() bool                  { return true }
func (AlwaysOnline) OnlineSignal() <-chan struct{} { return nil }

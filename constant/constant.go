package constant

type SessionStatus string

const (
	SessionStatusPending   SessionStatus = "PENDING"
	SessionStatusActive    SessionStatus = "ACTIVE"
	SessionStatusCompleted SessionStatus = "COMPLETED"
	SessionStatusFailed    SessionStatus = "FAILED"
	SessionStatusAborted   SessionStatus = "ABORTED"
)

func (s SessionStatus) Terminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusFailed || s == SessionStatusAborted
}

type ChunkStatus string

// A chunk is PENDING from sign until the client confirms the transfer.
// Abort removes chunk rows outright rather than tombstoning them.
const (
	ChunkStatusPending  ChunkStatus = "PENDING"
	ChunkStatusUploaded ChunkStatus = "UPLOADED"
)

type StreamType string

const (
	StreamTypeWebcam StreamType = "webcam"
	StreamTypeScreen StreamType = "screen"
)

func (s StreamType) Valid() bool {
	return s == StreamTypeWebcam || s == StreamTypeScreen
}

func (s StreamType) String() string {
	return string(s)
}

type Environment string

const (
	EnvironmentProduction Environment = "production"
	EnvironmentStaging    Environment = "staging"
	EnvironmentDevelop    Environment = "develop"
)

func (e Environment) String() string {
	return string(e)
}

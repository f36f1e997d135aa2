package service

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

type FlagType string

const (
	FlagFaceMissing      FlagType = "FACE_MISSING"
	FlagMultipleFaces    FlagType = "MULTIPLE_FACES"
	FlagSpeaking         FlagType = "SPEAKING"
	FlagTabSwitch        FlagType = "TAB_SWITCH"
	FlagScreenShareEnded FlagType = "SCREEN_SHARE_ENDED"
)

func (t FlagType) Valid() bool {
	switch t {
	case FlagFaceMissing, FlagMultipleFaces, FlagSpeaking, FlagTabSwitch, FlagScreenShareEnded:
		return true
	}
	return false
}

type FlagSeverity string

const (
	FlagSeverityInfo     FlagSeverity = "info"
	FlagSeverityWarning  FlagSeverity = "warning"
	FlagSeverityCritical FlagSeverity = "critical"
)

func (s FlagSeverity) Valid() bool {
	return s == FlagSeverityInfo || s == FlagSeverityWarning || s == FlagSeverityCritical
}

type FlagEventInput struct {
	Type       FlagType       `json:"type" binding:"required"`
	Severity   FlagSeverity   `json:"severity" binding:"required"`
	RelativeMs int64          `json:"relativeMs" binding:"min=0"`
	Metadata   map[string]any `json:"metadata"`
}

type FlagEvent struct {
	ID         uuid.UUID      `json:"id"`
	SessionID  string         `json:"sessionId"`
	OccurredAt time.Time      `json:"occurredAt"`
	Type       FlagType       `json:"type"`
	Severity   FlagSeverity   `json:"severity"`
	RelativeMs int64          `json:"relativeMs"`
	Metadata   map[string]any `json:"metadata"`
}

type SessionFlagLog struct {
	SessionID string      `json:"sessionId"`
	StartedAt time.Time   `json:"startedAt"`
	Events    []FlagEvent `json:"events"`
}

type flagSession struct {
	startedAt time.Time
	events    []FlagEvent
}

// FlagStore collects proctoring flag events emitted by external detection
// sources. It is constructed per process and reset between tests rather
// than living as a package-level global.
type FlagStore struct {
	mu       sync.Mutex
	sessions map[string]*flagSession
}

func NewFlagStore() *FlagStore {
	return &FlagStore{sessions: make(map[string]*flagSession)}
}

func (s *FlagStore) AddEvent(sessionID string, input FlagEventInput) (*FlagEvent, error) {
	if !input.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown flag type %q", ErrValidation, input.Type)
	}
	if !input.Severity.Valid() {
		return nil, fmt.Errorf("%w: unknown flag severity %q", ErrValidation, input.Severity)
	}
	if input.RelativeMs < 0 {
		return nil, fmt.Errorf("%w: relativeMs must be non-negative", ErrValidation)
	}

	metadata := input.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	session, ok := s.sessions[sessionID]
	if !ok {
		session = &flagSession{startedAt: now}
		s.sessions[sessionID] = session
	}

	event := FlagEvent{
		ID:         uuid.New(),
		SessionID:  sessionID,
		OccurredAt: now,
		Type:       input.Type,
		Severity:   input.Severity,
		RelativeMs: input.RelativeMs,
		Metadata:   metadata,
	}
	session.events = append(session.events, event)
	return &event, nil
}

func (s *FlagStore) Events(sessionID string) []FlagEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return []FlagEvent{}
	}
	out := make([]FlagEvent, len(session.events))
	copy(out, session.events)
	return out
}

func (s *FlagStore) SessionLog(sessionID string) (*SessionFlagLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: flag log for session %s", ErrNotFound, sessionID)
	}
	events := make([]FlagEvent, len(session.events))
	copy(events, session.events)
	return &SessionFlagLog{
		SessionID: sessionID,
		StartedAt: session.startedAt,
		Events:    events,
	}, nil
}

func (s *FlagStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string]*flagSession)
}

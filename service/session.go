package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"proctor-recorder/constant"
	"proctor-recorder/entities"
	"proctor-recorder/repository"
)

type SessionService interface {
	StartSession(ctx context.Context, sessionID, ownerID string, includeScreen bool) (*entities.ExamSession, error)
	GetSession(ctx context.Context, sessionID string) (*entities.ExamSession, error)
	GetOwnedSession(ctx context.Context, sessionID, ownerID string) (*entities.ExamSession, error)
	MarkCompleted(ctx context.Context, sessionID string, totalDurationMs int64, manifestURL string) (*entities.ExamSession, error)
	MarkFailed(ctx context.Context, sessionID, reason string) (*entities.ExamSession, error)
	MarkAborted(ctx context.Context, sessionID, reason string) (*entities.ExamSession, error)
}

type sessionService struct {
	repo repository.Repository
}

func NewSessionService(repo repository.Repository) SessionService {
	return &sessionService{repo: repo}
}

func (s *sessionService) StartSession(ctx context.Context, sessionID, ownerID string, includeScreen bool) (*entities.ExamSession, error) {
	existing, err := s.repo.FindSessionByID(ctx, sessionID)
	if err != nil && !isRecordNotFound(err) {
		return nil, err
	}
	if existing != nil && existing.OwnerID != ownerID {
		return nil, fmt.Errorf("%w: owner mismatch for session %s", ErrForbidden, sessionID)
	}

	session, err := s.repo.UpsertSession(ctx, sessionID, ownerID, includeScreen)
	if err != nil {
		return nil, err
	}

	zerolog.Ctx(ctx).Info().
		Str("session_id", sessionID).
		Bool("include_screen", includeScreen).
		Msg("session started")

	return session, nil
}

func (s *sessionService) GetSession(ctx context.Context, sessionID string) (*entities.ExamSession, error) {
	session, err := s.repo.FindSessionByID(ctx, sessionID)
	if err != nil {
		if isRecordNotFound(err) {
			return nil, fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
		}
		return nil, err
	}
	return session, nil
}

// GetOwnedSession is the ownership guard applied before every mutation.
// A missing session and a foreign-owned session are distinct failures.
func (s *sessionService) GetOwnedSession(ctx context.Context, sessionID, ownerID string) (*entities.ExamSession, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.OwnerID != ownerID {
		return nil, fmt.Errorf("%w: owner mismatch for session %s", ErrForbidden, sessionID)
	}
	return session, nil
}

func (s *sessionService) MarkCompleted(ctx context.Context, sessionID string, totalDurationMs int64, manifestURL string) (*entities.ExamSession, error) {
	now := time.Now().UTC()
	return s.repo.UpdateSessionStatus(ctx, sessionID, constant.SessionStatusCompleted, repository.SessionStatusUpdate{
		EndedAt:         &now,
		TotalDurationMs: &totalDurationMs,
		ManifestURL:     &manifestURL,
	})
}

func (s *sessionService) MarkFailed(ctx context.Context, sessionID, reason string) (*entities.ExamSession, error) {
	now := time.Now().UTC()
	return s.repo.UpdateSessionStatus(ctx, sessionID, constant.SessionStatusFailed, repository.SessionStatusUpdate{
		EndedAt:       &now,
		FailureReason: &reason,
	})
}

func (s *sessionService) MarkAborted(ctx context.Context, sessionID, reason string) (*entities.ExamSession, error) {
	now := time.Now().UTC()
	return s.repo.UpdateSessionStatus(ctx, sessionID, constant.SessionStatusAborted, repository.SessionStatusUpdate{
		EndedAt:       &now,
		FailureReason: &reason,
	})
}

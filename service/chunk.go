package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"proctor-recorder/constant"
	"proctor-recorder/dto"
	"proctor-recorder/entities"
	"proctor-recorder/pkg/ratelimit"
	"proctor-recorder/pkg/storage"
	"proctor-recorder/repository"
)

const defaultMimeType = "video/webm"

type ChunkService interface {
	RequestUploadURL(ctx context.Context, sessionID, ownerID string, req dto.SignChunkRequest) (*dto.SignChunkResponse, error)
	MarkUploaded(ctx context.Context, sessionID, ownerID string, chunkID uuid.UUID, checksum string, byteSize int64) error
	DeleteChunks(ctx context.Context, sessionID string) ([]string, error)
}

type chunkService struct {
	repo       repository.Repository
	sessions   SessionService
	storage    storage.Storage
	limiter    *ratelimit.Limiter
	bucket     string
	presignTTL time.Duration
}

func NewChunkService(
	repo repository.Repository,
	sessions SessionService,
	store storage.Storage,
	limiter *ratelimit.Limiter,
	bucket string,
	presignTTL time.Duration,
) ChunkService {
	return &chunkService{
		repo:       repo,
		sessions:   sessions,
		storage:    store,
		limiter:    limiter,
		bucket:     bucket,
		presignTTL: presignTTL,
	}
}

func (s *chunkService) RequestUploadURL(ctx context.Context, sessionID, ownerID string, req dto.SignChunkRequest) (*dto.SignChunkResponse, error) {
	if !req.StreamType.Valid() {
		return nil, fmt.Errorf("%w: unknown stream type %q", ErrValidation, req.StreamType)
	}
	if req.ChunkIndex == nil || *req.ChunkIndex < 0 {
		return nil, fmt.Errorf("%w: chunk index must be a non-negative integer", ErrValidation)
	}
	chunkIndex := *req.ChunkIndex

	session, err := s.sessions.GetOwnedSession(ctx, sessionID, ownerID)
	if err != nil {
		return nil, err
	}
	if session.Status != constant.SessionStatusActive {
		return nil, fmt.Errorf("%w: cannot upload when session status is %s", ErrConflict, session.Status)
	}
	if req.StreamType == constant.StreamTypeScreen && !session.IncludeScreen {
		return nil, fmt.Errorf("%w: screen recording not enabled for this session", ErrValidation)
	}

	if !s.limiter.Allow(fmt.Sprintf("%s:%s", sessionID, req.StreamType)) {
		return nil, fmt.Errorf("%w: too many signing requests for %s/%s", ErrRateLimited, sessionID, req.StreamType)
	}

	mimeType := req.MimeType
	if mimeType == "" {
		mimeType = defaultMimeType
	}

	// An index already holding an uploaded chunk is a hard conflict. A
	// still-pending chunk at the same index means the client's previous
	// target expired before the transfer finished, so a fresh target is
	// reissued on the existing row instead.
	existing, err := s.repo.FindChunkByPosition(ctx, sessionID, req.StreamType, chunkIndex)
	if err != nil && !isRecordNotFound(err) {
		return nil, err
	}
	if existing != nil {
		if existing.Status != constant.ChunkStatusPending {
			return nil, fmt.Errorf("%w: chunk index %d already exists for %s", ErrConflict, chunkIndex, req.StreamType)
		}
		signed, err := s.storage.PresignUpload(ctx, storage.PresignRequest{
			Bucket:      s.bucket,
			Key:         existing.StorageKey,
			ContentType: mimeType,
			ByteSize:    req.ByteSize,
			Checksum:    req.Checksum,
			TTL:         s.presignTTL,
		})
		if err != nil {
			return nil, err
		}
		if err := s.repo.UpdateChunkTarget(ctx, existing.ID, signed.UploadURL, signed.ExpiresAt); err != nil {
			return nil, err
		}

		zerolog.Ctx(ctx).Info().
			Str("session_id", sessionID).
			Str("chunk_id", existing.ID.String()).
			Int("chunk_index", chunkIndex).
			Msg("reissued upload target for pending chunk")

		return &dto.SignChunkResponse{
			ChunkID:    existing.ID,
			UploadURL:  signed.UploadURL,
			StorageKey: existing.StorageKey,
			ExpiresAt:  signed.ExpiresAt,
		}, nil
	}

	storageKey := fmt.Sprintf("examSessions/%s/%s/chunk-%d.webm", sessionID, req.StreamType, chunkIndex)
	signed, err := s.storage.PresignUpload(ctx, storage.PresignRequest{
		Bucket:      s.bucket,
		Key:         storageKey,
		ContentType: mimeType,
		ByteSize:    req.ByteSize,
		Checksum:    req.Checksum,
		TTL:         s.presignTTL,
	})
	if err != nil {
		return nil, err
	}

	chunk := &entities.MediaChunk{
		SessionID:  sessionID,
		StreamType: req.StreamType,
		ChunkIndex: chunkIndex,
		Status:     constant.ChunkStatusPending,
		StorageKey: storageKey,
		UploadURL:  signed.UploadURL,
		ExpiresAt:  &signed.ExpiresAt,
	}
	if err := s.repo.CreateChunk(ctx, chunk); err != nil {
		return nil, err
	}

	zerolog.Ctx(ctx).Info().
		Str("session_id", sessionID).
		Str("chunk_id", chunk.ID.String()).
		Str("stream_type", req.StreamType.String()).
		Int("chunk_index", chunkIndex).
		Str("storage_key", storageKey).
		Msg("issued upload target")

	return &dto.SignChunkResponse{
		ChunkID:    chunk.ID,
		UploadURL:  signed.UploadURL,
		StorageKey: storageKey,
		ExpiresAt:  signed.ExpiresAt,
	}, nil
}

func (s *chunkService) MarkUploaded(ctx context.Context, sessionID, ownerID string, chunkID uuid.UUID, checksum string, byteSize int64) error {
	if _, err := s.sessions.GetOwnedSession(ctx, sessionID, ownerID); err != nil {
		return err
	}

	chunk, err := s.repo.FindChunkByID(ctx, chunkID)
	if err != nil {
		if isRecordNotFound(err) {
			return fmt.Errorf("%w: chunk %s", ErrNotFound, chunkID)
		}
		return err
	}
	if chunk.SessionID != sessionID {
		return fmt.Errorf("%w: chunk %s does not belong to session %s", ErrValidation, chunkID, sessionID)
	}

	if err := s.repo.UpdateChunkUploaded(ctx, chunkID, checksum, byteSize); err != nil {
		return err
	}

	zerolog.Ctx(ctx).Info().
		Str("session_id", sessionID).
		Str("chunk_id", chunkID.String()).
		Int64("byte_size", byteSize).
		Msg("chunk upload confirmed")

	return nil
}

// DeleteChunks removes every chunk object for the session from storage,
// best-effort, then drops the chunk rows. Returns the keys actually removed.
func (s *chunkService) DeleteChunks(ctx context.Context, sessionID string) ([]string, error) {
	chunks, err := s.repo.FindChunksBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	deletedKeys := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		if chunk.StorageKey == "" {
			continue
		}
		if err := s.storage.DeleteObject(ctx, s.bucket, chunk.StorageKey); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).
				Str("storage_key", chunk.StorageKey).
				Msg("failed to delete chunk object")
			continue
		}
		deletedKeys = append(deletedKeys, chunk.StorageKey)
	}

	if err := s.repo.DeleteChunksBySession(ctx, sessionID); err != nil {
		return nil, err
	}

	zerolog.Ctx(ctx).Info().
		Str("session_id", sessionID).
		Int("deleted_objects", len(deletedKeys)).
		Msg("session chunks deleted")

	return deletedKeys, nil
}

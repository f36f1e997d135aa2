package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"proctor-recorder/constant"
	"proctor-recorder/dto"
	"proctor-recorder/entities"
	"proctor-recorder/pkg/rabbitmq"
	"proctor-recorder/repository"
)

type RecordingService interface {
	FinalizeRecording(ctx context.Context, sessionID, ownerID string, req dto.FinalizeRequest) (*dto.FinalizeResponse, error)
	GetManifest(ctx context.Context, sessionID string) (*dto.RecordingManifest, error)
}

type recordingService struct {
	repo      repository.Repository
	sessions  SessionService
	publisher rabbitmq.Publisher
}

// NewRecordingService builds the finalizer. publisher may be nil, in which
// case no finalized event is emitted.
func NewRecordingService(repo repository.Repository, sessions SessionService, publisher rabbitmq.Publisher) RecordingService {
	return &recordingService{
		repo:      repo,
		sessions:  sessions,
		publisher: publisher,
	}
}

func (s *recordingService) FinalizeRecording(ctx context.Context, sessionID, ownerID string, req dto.FinalizeRequest) (*dto.FinalizeResponse, error) {
	session, err := s.sessions.GetOwnedSession(ctx, sessionID, ownerID)
	if err != nil {
		return nil, err
	}
	if session.Status == constant.SessionStatusCompleted {
		return nil, fmt.Errorf("%w: session %s is already finalized", ErrConflict, sessionID)
	}

	manifestStreams := make([]dto.ManifestStream, 0, len(req.Streams))
	for _, stream := range req.Streams {
		if !stream.StreamType.Valid() {
			return nil, fmt.Errorf("%w: unknown stream type %q", ErrValidation, stream.StreamType)
		}
		if len(stream.Chunks) == 0 {
			return nil, fmt.Errorf("%w: stream %s has no chunks", ErrValidation, stream.StreamType)
		}

		entries := make([]dto.ManifestChunkEntry, 0, len(stream.Chunks))
		for _, ref := range stream.Chunks {
			record, err := s.repo.FindChunkByID(ctx, ref.ChunkID)
			if err != nil {
				if isRecordNotFound(err) {
					return nil, fmt.Errorf("%w: chunk %s", ErrNotFound, ref.ChunkID)
				}
				return nil, err
			}
			if record.SessionID != sessionID {
				return nil, fmt.Errorf("%w: chunk %s does not belong to session %s", ErrValidation, ref.ChunkID, sessionID)
			}
			if record.Status != constant.ChunkStatusUploaded {
				return nil, fmt.Errorf("%w: chunk %s is not uploaded", ErrConflict, ref.ChunkID)
			}
			// The caller-supplied index must match the stored one; a
			// mismatch means the client is reordering chunks.
			if record.ChunkIndex != ref.ChunkIndex {
				return nil, fmt.Errorf("%w: chunk index mismatch for %s", ErrValidation, ref.ChunkID)
			}
			if record.Checksum == nil || record.ByteSize == nil {
				return nil, fmt.Errorf("%w: chunk %s missing confirmed metadata", ErrValidation, ref.ChunkID)
			}

			entries = append(entries, dto.ManifestChunkEntry{
				ChunkID:    record.ID,
				ChunkIndex: record.ChunkIndex,
				StorageKey: record.StorageKey,
				Checksum:   *record.Checksum,
				ByteSize:   *record.ByteSize,
			})
		}

		// Upload completion order is irrelevant, only index order matters.
		sort.Slice(entries, func(i, j int) bool {
			return entries[i].ChunkIndex < entries[j].ChunkIndex
		})

		manifestStreams = append(manifestStreams, dto.ManifestStream{
			StreamType: stream.StreamType,
			DurationMs: stream.DurationMs,
			Chunks:     entries,
		})
	}

	manifest := &dto.RecordingManifest{
		SessionID:       sessionID,
		CreatedAt:       time.Now().UTC(),
		TotalDurationMs: req.TotalDurationMs,
		Streams:         manifestStreams,
	}

	manifestJSON, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, err
	}

	recordings := make([]*entities.Recording, 0, len(manifestStreams))
	err = s.repo.Transaction(ctx, func(ctx context.Context) error {
		for _, stream := range manifestStreams {
			recording := &entities.Recording{
				SessionID:    sessionID,
				StreamType:   stream.StreamType,
				DurationMs:   stream.DurationMs,
				ManifestJSON: string(manifestJSON),
			}
			if err := s.repo.CreateRecording(ctx, recording); err != nil {
				return err
			}
			for position, chunk := range stream.Chunks {
				if err := s.repo.CreateRecordingChunk(ctx, &entities.RecordingChunk{
					RecordingID: recording.ID,
					ChunkID:     chunk.ChunkID,
					Position:    position,
				}); err != nil {
					return err
				}
			}
			recordings = append(recordings, recording)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	manifestURL := req.ManifestURL
	if manifestURL == "" {
		manifestURL = fmt.Sprintf("/api/exam-sessions/%s/manifest", sessionID)
	}
	if _, err := s.sessions.MarkCompleted(ctx, sessionID, req.TotalDurationMs, manifestURL); err != nil {
		return nil, err
	}

	zerolog.Ctx(ctx).Info().
		Str("session_id", sessionID).
		Int("streams", len(manifestStreams)).
		Int64("total_duration_ms", req.TotalDurationMs).
		Msg("recording finalized")

	if s.publisher != nil {
		message := dto.RecordingFinalizedMessage{
			SessionID:       sessionID,
			TotalDurationMs: req.TotalDurationMs,
		}
		for _, recording := range recordings {
			message.RecordingIDs = append(message.RecordingIDs, recording.ID)
		}
		if err := s.publisher.PublishRecordingFinalized(ctx, message); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Str("session_id", sessionID).Msg("failed to publish finalized event")
		}
	}

	return &dto.FinalizeResponse{
		Manifest:   manifest,
		Recordings: recordings,
	}, nil
}

func (s *recordingService) GetManifest(ctx context.Context, sessionID string) (*dto.RecordingManifest, error) {
	manifestJSON, err := s.repo.FindManifestBySession(ctx, sessionID)
	if err != nil {
		if isRecordNotFound(err) {
			return nil, fmt.Errorf("%w: manifest for session %s", ErrNotFound, sessionID)
		}
		return nil, err
	}

	manifest := &dto.RecordingManifest{}
	if err := json.Unmarshal([]byte(manifestJSON), manifest); err != nil {
		return nil, err
	}
	return manifest, nil
}

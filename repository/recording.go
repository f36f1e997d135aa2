package repository

import (
	"context"

	"github.com/google/uuid"

	"proctor-recorder/entities"
)

func (r *repo) CreateRecording(ctx context.Context, recording *entities.Recording) error {
	if recording.ID == uuid.Nil {
		recording.ID = uuid.New()
	}
	return r.dbFrom(ctx).WithContext(ctx).Create(recording).Error
}

func (r *repo) CreateRecordingChunk(ctx context.Context, chunk *entities.RecordingChunk) error {
	if chunk.ID == uuid.Nil {
		chunk.ID = uuid.New()
	}
	return r.dbFrom(ctx).WithContext(ctx).Create(chunk).Error
}

func (r *repo) FindManifestBySession(ctx context.Context, sessionID string) (string, error) {
	recording := &entities.Recording{}
	err := r.dbFrom(ctx).WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		First(recording).Error
	if err != nil {
		return "", err
	}
	return recording.ManifestJSON, nil
}

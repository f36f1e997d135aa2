package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"proctor-recorder/constant"
	"proctor-recorder/entities"
)

func (r *repo) CreateChunk(ctx context.Context, chunk *entities.MediaChunk) error {
	if chunk.ID == uuid.Nil {
		chunk.ID = uuid.New()
	}
	return r.dbFrom(ctx).WithContext(ctx).Create(chunk).Error
}

func (r *repo) FindChunkByID(ctx context.Context, id uuid.UUID) (*entities.MediaChunk, error) {
	chunk := &entities.MediaChunk{}
	err := r.dbFrom(ctx).WithContext(ctx).First(chunk, "id = ?", id).Error
	if err != nil {
		return nil, err
	}

	return chunk, nil
}

func (r *repo) FindChunkByPosition(ctx context.Context, sessionID string, streamType constant.StreamType, chunkIndex int) (*entities.MediaChunk, error) {
	chunk := &entities.MediaChunk{}
	err := r.dbFrom(ctx).WithContext(ctx).
		First(chunk, "session_id = ? AND stream_type = ? AND chunk_index = ?", sessionID, streamType, chunkIndex).Error
	if err != nil {
		return nil, err
	}

	return chunk, nil
}

func (r *repo) FindChunksBySession(ctx context.Context, sessionID string) ([]*entities.MediaChunk, error) {
	var chunks []*entities.MediaChunk
	err := r.dbFrom(ctx).WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("stream_type, chunk_index ASC").
		Find(&chunks).Error
	if err != nil {
		return nil, err
	}
	return chunks, nil
}

func (r *repo) UpdateChunkUploaded(ctx context.Context, id uuid.UUID, checksum string, byteSize int64) error {
	updates := map[string]interface{}{
		"status":     constant.ChunkStatusUploaded,
		"checksum":   checksum,
		"byte_size":  byteSize,
		"updated_at": time.Now().UTC(),
	}
	return r.dbFrom(ctx).WithContext(ctx).Model(&entities.MediaChunk{}).Where("id = ?", id).Updates(updates).Error
}

// UpdateChunkTarget reissues the upload target on a still-pending chunk.
func (r *repo) UpdateChunkTarget(ctx context.Context, id uuid.UUID, uploadURL string, expiresAt time.Time) error {
	updates := map[string]interface{}{
		"upload_url": uploadURL,
		"expires_at": expiresAt,
		"updated_at": time.Now().UTC(),
	}
	return r.dbFrom(ctx).WithContext(ctx).Model(&entities.MediaChunk{}).Where("id = ?", id).Updates(updates).Error
}

func (r *repo) DeleteChunksBySession(ctx context.Context, sessionID string) error {
	return r.dbFrom(ctx).WithContext(ctx).Where("session_id = ?", sessionID).Delete(&entities.MediaChunk{}).Error
}

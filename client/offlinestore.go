package client

import (
	"context"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"proctor-recorder/constant"
)

// StoredChunk is a chunk staged locally because it could not be uploaded.
// It survives process restarts.
type StoredChunk struct {
	ID         string    `gorm:"type:varchar(64);primaryKey"`
	SessionID  string    `gorm:"type:varchar(64);not null;index"`
	StreamType string    `gorm:"type:varchar(16);not null"`
	ChunkIndex int       `gorm:"not null"`
	DurationMs int64     `gorm:"not null"`
	CreatedAt  time.Time `gorm:"not null"`
	Payload    []byte    `gorm:"not null"`
}

func (StoredChunk) TableName() string {
	return "offline_chunks"
}

// OfflineChunkStore is the durable staging area for chunks that failed to
// upload while offline. When local storage is unavailable every operation
// degrades to a no-op so capture keeps running best-effort.
type OfflineChunkStore struct {
	db *gorm.DB
}

func OpenOfflineChunkStore(path string) *OfflineChunkStore {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("offline chunk store unavailable")
		return &OfflineChunkStore{}
	}
	if err := db.AutoMigrate(&StoredChunk{}); err != nil {
		log.Warn().Err(err).Msg("offline chunk store migration failed")
		return &OfflineChunkStore{}
	}
	return &OfflineChunkStore{db: db}
}

func (s *OfflineChunkStore) Available() bool {
	return s != nil && s.db != nil
}

func (s *OfflineChunkStore) Save(ctx context.Context, chunk *StoredChunk) error {
	if !s.Available() {
		return nil
	}
	if chunk.CreatedAt.IsZero() {
		chunk.CreatedAt = time.Now().UTC()
	}
	return s.db.WithContext(ctx).Save(chunk).Error
}

func (s *OfflineChunkStore) Delete(ctx context.Context, id string) error {
	if !s.Available() {
		return nil
	}
	return s.db.WithContext(ctx).Delete(&StoredChunk{}, "id = ?", id).Error
}

func (s *OfflineChunkStore) ReadAll(ctx context.Context) ([]*StoredChunk, error) {
	if !s.Available() {
		return nil, nil
	}
	var chunks []*StoredChunk
	err := s.db.WithContext(ctx).
		Order("stream_type, chunk_index ASC").
		Find(&chunks).Error
	if err != nil {
		return nil, err
	}
	return chunks, nil
}

func (s *OfflineChunkStore) Clear(ctx context.Context) error {
	if !s.Available() {
		return nil
	}
	return s.db.WithContext(ctx).Where("1 = 1").Delete(&StoredChunk{}).Error
}

func (s *OfflineChunkStore) pendingChunk(stored *StoredChunk) *PendingChunk {
	return &PendingChunk{
		ID:          stored.ID,
		StreamType:  constant.StreamType(stored.StreamType),
		ChunkIndex:  stored.ChunkIndex,
		DurationMs:  stored.DurationMs,
		Data:        stored.Payload,
		persistedID: stored.ID,
	}
}

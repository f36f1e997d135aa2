package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"proctor-recorder/constant"
	"proctor-recorder/entities"
)

// SessionStatusUpdate carries the optional terminal-state fields. Each is
// written with set-if-not-already-set semantics so repeated transitions
// are safe.
type SessionStatusUpdate struct {
	EndedAt         *time.Time
	TotalDurationMs *int64
	ManifestURL     *string
	FailureReason   *string
}

type Repository interface {
	Transaction(ctx context.Context, callback func(ctx context.Context) error, opts ...*sql.TxOptions) error
	GetDB() *gorm.DB

	FindSessionByID(ctx context.Context, id string) (*entities.ExamSession, error)
	UpsertSession(ctx context.Context, id, ownerID string, includeScreen bool) (*entities.ExamSession, error)
	UpdateSessionStatus(ctx context.Context, id string, status constant.SessionStatus, update SessionStatusUpdate) (*entities.ExamSession, error)

	CreateChunk(ctx context.Context, chunk *entities.MediaChunk) error
	FindChunkByID(ctx context.Context, id uuid.UUID) (*entities.MediaChunk, error)
	FindChunkByPosition(ctx context.Context, sessionID string, streamType constant.StreamType, chunkIndex int) (*entities.MediaChunk, error)
	FindChunksBySession(ctx context.Context, sessionID string) ([]*entities.MediaChunk, error)
	UpdateChunkUploaded(ctx context.Context, id uuid.UUID, checksum string, byteSize int64) error
	UpdateChunkTarget(ctx context.Context, id uuid.UUID, uploadURL string, expiresAt time.Time) error
	DeleteChunksBySession(ctx context.Context, sessionID string) error

	CreateRecording(ctx context.Context, recording *entities.Recording) error
	CreateRecordingChunk(ctx context.Context, chunk *entities.RecordingChunk) error
	FindManifestBySession(ctx context.Context, sessionID string) (string, error)
}

type repo struct {
	db *gorm.DB
}

func NewRepo(db *sql.DB) Repository {
	gormDB, _ := gorm.Open(postgres.New(postgres.Config{
		Conn: db}),
		&gorm.Config{
			Logger: logger.Default.LogMode(logger.Info),
		},
	)
	return &repo{
		db: gormDB,
	}
}

// NewRepoWithGorm wires an already-open gorm handle; tests use this with
// an in-memory sqlite database.
func NewRepoWithGorm(db *gorm.DB) Repository {
	return &repo{db: db}
}

// Migrate creates the schema, including the (session, stream, index)
// uniqueness constraint on media chunks.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&entities.ExamSession{},
		&entities.MediaChunk{},
		&entities.Recording{},
		&entities.RecordingChunk{},
	)
}

func (r *repo) GetDB() *gorm.DB {
	return r.db
}

type txKey struct{}

// dbFrom returns the transaction bound to ctx when one is open, so repo
// methods called inside a Transaction callback join it instead of drawing
// a fresh connection.
func (r *repo) dbFrom(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx
	}
	return r.db
}

func (r *repo) Transaction(ctx context.Context, callback func(ctx context.Context) error, opts ...*sql.TxOptions) error {
	return r.GetDB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return callback(context.WithValue(ctx, txKey{}, tx))
	}, opts...)
}

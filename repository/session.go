package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"proctor-recorder/constant"
	"proctor-recorder/entities"
)

func (r *repo) FindSessionByID(ctx context.Context, id string) (*entities.ExamSession, error) {
	session := &entities.ExamSession{}
	err := r.dbFrom(ctx).WithContext(ctx).First(session, "id = ?", id).Error
	if err != nil {
		return nil, err
	}

	return session, nil
}

// UpsertSession creates the session as ACTIVE or refreshes an existing one
// in a single statement, so concurrent first-starts cannot race the insert.
// The first observed started_at wins across repeated starts.
func (r *repo) UpsertSession(ctx context.Context, id, ownerID string, includeScreen bool) (*entities.ExamSession, error) {
	now := time.Now().UTC()

	session := &entities.ExamSession{
		ID:            id,
		OwnerID:       ownerID,
		IncludeScreen: includeScreen,
		Status:        constant.SessionStatusActive,
		StartedAt:     &now,
	}
	err := r.dbFrom(ctx).WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"status":         constant.SessionStatusActive,
			"include_screen": includeScreen,
			"updated_at":     now,
			"started_at":     gorm.Expr("COALESCE(started_at, ?)", now),
		}),
	}).Create(session).Error
	if err != nil {
		return nil, err
	}
	return r.FindSessionByID(ctx, id)
}

func (r *repo) UpdateSessionStatus(ctx context.Context, id string, status constant.SessionStatus, update SessionStatusUpdate) (*entities.ExamSession, error) {
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": time.Now().UTC(),
	}
	if update.EndedAt != nil {
		updates["ended_at"] = gorm.Expr("COALESCE(ended_at, ?)", *update.EndedAt)
	}
	if update.TotalDurationMs != nil {
		updates["total_duration_ms"] = gorm.Expr("COALESCE(total_duration_ms, ?)", *update.TotalDurationMs)
	}
	if update.ManifestURL != nil {
		updates["manifest_url"] = gorm.Expr("COALESCE(manifest_url, ?)", *update.ManifestURL)
	}
	if update.FailureReason != nil {
		updates["failure_reason"] = gorm.Expr("COALESCE(failure_reason, ?)", *update.FailureReason)
	}

	err := r.dbFrom(ctx).WithContext(ctx).Model(&entities.ExamSession{}).Where("id = ?", id).Updates(updates).Error
	if err != nil {
		return nil, err
	}
	return r.FindSessionByID(ctx, id)
}

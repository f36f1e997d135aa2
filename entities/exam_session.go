package entities

import (
	"time"

	"proctor-recorder/constant"
)

type ExamSession struct {
	ID              string                 `json:"id" gorm:"type:varchar(64);primary_key"`
	OwnerID         string                 `json:"owner_id" gorm:"type:varchar(128);not null;index:idx_exam_sessions_owner"`
	IncludeScreen   bool                   `json:"include_screen" gorm:"not null;default:false"`
	Status          constant.SessionStatus `json:"status" gorm:"type:varchar(20);not null;index:idx_exam_sessions_status"`
	CreatedAt       time.Time              `json:"created_at" gorm:"not null"`
	UpdatedAt       time.Time              `json:"updated_at" gorm:"not null"`
	StartedAt       *time.Time             `json:"started_at"`
	EndedAt         *time.Time             `json:"ended_at"`
	TotalDurationMs *int64                 `json:"total_duration_ms" gorm:"type:bigint"`
	ManifestURL     *string                `json:"manifest_url" gorm:"type:varchar(500)"`
	FailureReason   *string                `json:"failure_reason" gorm:"type:text"`
}

func (ExamSession) TableName() string {
	return "exam_sessions"
}

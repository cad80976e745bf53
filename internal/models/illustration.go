package models

import (
	"time"

	"github.com/google/uuid"
)

// IllustrationStatus - итог попытки иллюстрирования главы.
type IllustrationStatus string

const (
	IllustrationStatusPending IllustrationStatus = "pending"
	IllustrationStatusReady   IllustrationStatus = "ready"
	IllustrationStatusFailed  IllustrationStatus = "failed"
)

// IllustrationRecord - иллюстрация главы. Записи в статусах pending и failed читаются как отсутствие иллюстрации.
type IllustrationRecord struct {
	ChapterID    uuid.UUID          `json:"chapter_id" db:"chapter_id"`
	Status       IllustrationStatus `json:"status" db:"status"`
	AssetURL     *string            `json:"asset_url,omitempty" db:"asset_url"`
	Style        string             `json:"style" db:"style"`
	ErrorDetails *string            `json:"-" db:"error_details"`
	GeneratedAt  time.Time          `json:"generated_at" db:"generated_at"`
}

// IsReady сообщает, есть ли у главы готовая иллюстрация.
func (r *IllustrationRecord) IsReady() bool {
	return r != nil && r.Status == IllustrationStatusReady && r.AssetURL != nil
}

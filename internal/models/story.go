package models

import (
	"time"

	"github.com/google/uuid"
)

// StoryStatus определяет жизненный цикл истории.
// Совпадает с CHECK-ограничением колонки stories.status.
type StoryStatus string

const (
	StoryStatusVoting    StoryStatus = "voting"    // Открыт раунд голосования по текущей главе
	StoryStatusWriting   StoryStatus = "writing"   // Идет генерация следующей главы
	StoryStatusCompleted StoryStatus = "completed" // История завершена
)

// Story представляет историю, главы которой пишутся по результатам голосований.
type Story struct {
	ID               uuid.UUID   `json:"id" db:"id"`
	Title            string      `json:"title" db:"title"`
	Genre            string      `json:"genre" db:"genre"`
	Status           StoryStatus `json:"status" db:"status"`
	CurrentChapterID *uuid.UUID  `json:"current_chapter_id,omitempty" db:"current_chapter_id"`
	CreatedAt        time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at" db:"updated_at"`
}

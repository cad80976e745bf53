package models

import (
	"time"

	"github.com/google/uuid"
)

// VotingStatus определяет статус голосования по главе.
type VotingStatus string

const (
	// VotingStatusOpen - голоса принимаются.
	VotingStatusOpen VotingStatus = "open"
	// VotingStatusClosed - порог достигнут (или раунд истек), генерация захвачена, но еще не завершена.
	VotingStatusClosed VotingStatus = "closed"
	// VotingStatusGenerated - следующая глава создана. Терминальный статус.
	VotingStatusGenerated VotingStatus = "generated"
)

// Chapter - глава истории вместе с набором вариантов продолжения.
type Chapter struct {
	ID             uuid.UUID      `json:"id" db:"id"`
	StoryID        uuid.UUID      `json:"story_id" db:"story_id"`
	SequenceNumber int            `json:"sequence_number" db:"sequence_number"`
	Title          string         `json:"title" db:"title"`
	Body           string         `json:"body" db:"body"`
	Summary        string         `json:"summary" db:"summary"`
	Tags           []string       `json:"tags" db:"tags"`
	VotingStatus   VotingStatus   `json:"voting_status" db:"voting_status"`
	VotingDeadline *time.Time     `json:"voting_deadline,omitempty" db:"voting_deadline"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
	Options        []VotingOption `json:"options" db:"-"`
}

// VotingOption - вариант продолжения (A/B/C...). Position задает фиксированный порядок,
// он же используется для разрешения ничьих.
type VotingOption struct {
	ChapterID   uuid.UUID `json:"-" db:"chapter_id"`
	OptionID    string    `json:"id" db:"option_id"`
	Label       string    `json:"label" db:"label"`
	Description string    `json:"description" db:"description"`
	Position    int       `json:"position" db:"position"`
}

// AcceptsVotes возвращает true, если глава открыта и дедлайн (если он есть) не прошел.
func (c *Chapter) AcceptsVotes(now time.Time) bool {
	if c.VotingStatus != VotingStatusOpen {
		return false
	}
	if c.VotingDeadline != nil && now.After(*c.VotingDeadline) {
		return false
	}
	return true
}

// Option ищет вариант по идентификатору.
func (c *Chapter) Option(optionID string) (VotingOption, bool) {
	for _, o := range c.Options {
		if o.OptionID == optionID {
			return o, true
		}
	}
	return VotingOption{}, false
}

// DefaultOptionIDs - идентификаторы, которые переиспользуются для каждой новой главы.
var DefaultOptionIDs = []string{"A", "B", "C"}

// BuildOptions превращает черновики вариантов в варианты главы.
// Идентификаторы назначаются по порядку из DefaultOptionIDs, идентификаторы черновиков игнорируются.
func BuildOptions(chapterID uuid.UUID, drafts []OptionDraft) []VotingOption {
	n := len(drafts)
	if n > len(DefaultOptionIDs) {
		n = len(DefaultOptionIDs)
	}
	opts := make([]VotingOption, 0, n)
	for i := 0; i < n; i++ {
		opts = append(opts, VotingOption{
			ChapterID:   chapterID,
			OptionID:    DefaultOptionIDs[i],
			Label:       drafts[i].Label,
			Description: drafts[i].Description,
			Position:    i,
		})
	}
	return opts
}

package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GenerationStatus - статус записи генерации.
type GenerationStatus string

const (
	GenerationStatusPending    GenerationStatus = "pending"
	GenerationStatusProcessing GenerationStatus = "processing"
	GenerationStatusCompleted  GenerationStatus = "completed"
	GenerationStatusFailed     GenerationStatus = "failed"
)

// TriggerReason - что запустило генерацию.
type TriggerReason string

const (
	TriggerThreshold TriggerReason = "threshold"
	TriggerDeadline  TriggerReason = "deadline"
	TriggerRetry     TriggerReason = "retry"
)

// CanTransitionTo описывает допустимые переходы: pending -> processing -> completed|failed.
func (s GenerationStatus) CanTransitionTo(next GenerationStatus) bool {
	switch s {
	case GenerationStatusPending:
		return next == GenerationStatusProcessing
	case GenerationStatusProcessing:
		return next == GenerationStatusCompleted || next == GenerationStatusFailed
	default:
		return false
	}
}

// IsTerminal возвращает true для completed и failed.
func (s GenerationStatus) IsTerminal() bool {
	return s == GenerationStatusCompleted || s == GenerationStatusFailed
}

// GenerationInput - снимок входных данных, фиксируемый в момент захвата.
type GenerationInput struct {
	StoryID         uuid.UUID        `json:"story_id"`
	StoryTitle      string           `json:"story_title"`
	Genre           string           `json:"genre"`
	SourceChapterID uuid.UUID        `json:"source_chapter_id"`
	SourceSequence  int              `json:"source_sequence"`
	PreviousContext string           `json:"previous_context"`
	WinningOption   VotingOption     `json:"winning_option"`
	VoteCount       int64            `json:"vote_count"`
	TotalVotes      int64            `json:"total_votes"`
	Percentage      float64          `json:"percentage"`
	VoteCounts      map[string]int64 `json:"vote_counts"`
	Trigger         TriggerReason    `json:"trigger"`
}

// OptionDraft - вариант продолжения, предложенный генератором.
type OptionDraft struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

// GenerationOutput - результат генерации главы.
type GenerationOutput struct {
	Title       string        `json:"title"`
	Body        string        `json:"body"`
	Summary     string        `json:"summary"`
	Tags        []string      `json:"tags"`
	NextOptions []OptionDraft `json:"nextOptions"`
}

// Validate отсекает пустые и некорректные ответы генератора.
func (o *GenerationOutput) Validate(requireOptions bool) error {
	if o == nil {
		return fmt.Errorf("%w: empty output", ErrMalformedOutput)
	}
	if o.Title == "" || o.Body == "" {
		return fmt.Errorf("%w: title and body are required", ErrMalformedOutput)
	}
	if !requireOptions {
		return nil
	}
	if len(o.NextOptions) < 2 || len(o.NextOptions) > len(DefaultOptionIDs) {
		return fmt.Errorf("%w: expected 2..%d next options, got %d", ErrMalformedOutput, len(DefaultOptionIDs), len(o.NextOptions))
	}
	for i, opt := range o.NextOptions {
		if opt.Label == "" {
			return fmt.Errorf("%w: option %d has empty label", ErrMalformedOutput, i)
		}
	}
	return nil
}

// UsageInfo - статистика использования модели.
type UsageInfo struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	EstimatedCostUSD float64 `json:"estimated_cost_usd"`
}

// GenerationRecord - аудит задачи генерации, единственный источник истины о ее статусе.
type GenerationRecord struct {
	ID               uuid.UUID         `json:"id" db:"id"`
	StoryID          uuid.UUID         `json:"story_id" db:"story_id"`
	SourceChapterID  uuid.UUID         `json:"source_chapter_id" db:"source_chapter_id"`
	Status           GenerationStatus  `json:"status" db:"status"`
	Attempt          int               `json:"attempt" db:"attempt"`
	RetryOf          *uuid.UUID        `json:"retry_of,omitempty" db:"retry_of"`
	Input            GenerationInput   `json:"input" db:"input"`
	Output           *GenerationOutput `json:"output,omitempty" db:"output"`
	ErrorDetails     *string           `json:"error_details,omitempty" db:"error_details"`
	ResultChapterID  *uuid.UUID        `json:"result_chapter_id,omitempty" db:"result_chapter_id"`
	PromptTokens     int               `json:"prompt_tokens" db:"prompt_tokens"`
	CompletionTokens int               `json:"completion_tokens" db:"completion_tokens"`
	CreatedAt        time.Time         `json:"created_at" db:"created_at"`
	StartedAt        *time.Time        `json:"started_at,omitempty" db:"started_at"`
	CompletedAt      *time.Time        `json:"completed_at,omitempty" db:"completed_at"`
}

// ProcessingTime возвращает длительность обработки, если она известна.
func (r *GenerationRecord) ProcessingTime() time.Duration {
	if r.StartedAt == nil || r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(*r.StartedAt)
}

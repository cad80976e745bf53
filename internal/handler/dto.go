package handler

import (
	"time"

	"novel-vote-server/internal/models"

	"github.com/google/uuid"
)

// submitVoteRequest - тело POST /chapters/:id/votes. Сессию можно передать и заголовком.
type submitVoteRequest struct {
	OptionID     string `json:"optionId" validate:"required,max=8"`
	VoterSession string `json:"voterSession" validate:"omitempty,max=128"`
}

// voteResponse - ответ на принятый голос.
type voteResponse struct {
	VoteCounts        map[string]int64 `json:"voteCounts"`
	TotalVotes        int64            `json:"totalVotes"`
	UserVoted         bool             `json:"userVoted"`
	ThresholdReached  bool             `json:"thresholdReached"`
	TriggerGeneration bool             `json:"triggerGeneration"`
	LeadingOption     string           `json:"leadingOption,omitempty"`
	GenerationID      *uuid.UUID       `json:"generationId,omitempty"`
}

func newVoteResponse(r *models.VoteResult) voteResponse {
	return voteResponse{
		VoteCounts:        nonNilCounts(r.Tallies.Counts),
		TotalVotes:        r.Tallies.Total,
		UserVoted:         true,
		ThresholdReached:  r.ThresholdReached,
		TriggerGeneration: r.TriggerGeneration,
		LeadingOption:     r.LeadingOption,
		GenerationID:      r.GenerationID,
	}
}

// voteStatusResponse - ответ GET /chapters/:id/votes.
type voteStatusResponse struct {
	VoteCounts     map[string]int64    `json:"voteCounts"`
	TotalVotes     int64               `json:"totalVotes"`
	UserVoted      bool                `json:"userVoted"`
	UserChoice     *string             `json:"userChoice,omitempty"`
	VotingActive   bool                `json:"votingActive"`
	VotingStatus   models.VotingStatus `json:"votingStatus"`
	VotingDeadline *time.Time          `json:"votingDeadline,omitempty"`
}

func newVoteStatusResponse(s *models.VoteStatus) voteStatusResponse {
	return voteStatusResponse{
		VoteCounts:     nonNilCounts(s.Tallies.Counts),
		TotalVotes:     s.Tallies.Total,
		UserVoted:      s.UserChoice != nil,
		UserChoice:     s.UserChoice,
		VotingActive:   s.VotingActive,
		VotingStatus:   s.VotingStatus,
		VotingDeadline: s.Deadline,
	}
}

// generationStatusResponse - публичное представление записи генерации без входа и выхода модели.
type generationStatusResponse struct {
	ID              uuid.UUID               `json:"id"`
	SourceChapterID uuid.UUID               `json:"sourceChapterId"`
	Status          models.GenerationStatus `json:"status"`
	Attempt         int                     `json:"attempt"`
	ResultChapterID *uuid.UUID              `json:"resultChapterId,omitempty"`
	CreatedAt       time.Time               `json:"createdAt"`
	CompletedAt     *time.Time              `json:"completedAt,omitempty"`
}

func newGenerationStatusResponse(r *models.GenerationRecord) generationStatusResponse {
	return generationStatusResponse{
		ID:              r.ID,
		SourceChapterID: r.SourceChapterID,
		Status:          r.Status,
		Attempt:         r.Attempt,
		ResultChapterID: r.ResultChapterID,
		CreatedAt:       r.CreatedAt,
		CompletedAt:     r.CompletedAt,
	}
}

// createStoryRequest - тело POST /admin/stories.
type createStoryRequest struct {
	Title   string            `json:"title" validate:"required,max=200"`
	Genre   string            `json:"genre" validate:"max=64"`
	Opening openingChapterDTO `json:"opening" validate:"required"`
	Options []optionDraftDTO  `json:"options" validate:"required,min=2,max=3,dive"`
}

type openingChapterDTO struct {
	Title   string   `json:"title" validate:"required,max=200"`
	Body    string   `json:"body" validate:"required"`
	Summary string   `json:"summary"`
	Tags    []string `json:"tags" validate:"max=10,dive,max=32"`
}

type optionDraftDTO struct {
	Label       string `json:"label" validate:"required,max=200"`
	Description string `json:"description" validate:"max=1000"`
}

// createStoryResponse - созданная история и первая глава.
type createStoryResponse struct {
	Story   *models.Story   `json:"story"`
	Chapter *models.Chapter `json:"chapter"`
}

type dispatchedResponse struct {
	ChapterID uuid.UUID `json:"chapterId"`
	Status    string    `json:"status"`
}

func nonNilCounts(counts map[string]int64) map[string]int64 {
	if counts == nil {
		return map[string]int64{}
	}
	return counts
}

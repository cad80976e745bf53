package models

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
)

// VoterIdentity - анонимная идентичность голосующего.
// Ни IP, ни сессия по отдельности не считаются надежными, ключом дедупликации служит пара.
type VoterIdentity struct {
	IP      string `json:"ip"`
	Session string `json:"session"`
}

// Validate проверяет, что обе части идентичности заданы.
func (v VoterIdentity) Validate() error {
	if strings.TrimSpace(v.IP) == "" {
		return fmt.Errorf("%w: voter ip is required", ErrInvalidInput)
	}
	if net.ParseIP(v.IP) == nil {
		return fmt.Errorf("%w: voter ip %q is not a valid address", ErrInvalidInput, v.IP)
	}
	if strings.TrimSpace(v.Session) == "" {
		return fmt.Errorf("%w: voter session is required", ErrInvalidInput)
	}
	return nil
}

// Normalized возвращает идентичность с каноническим представлением IP.
func (v VoterIdentity) Normalized() VoterIdentity {
	if ip := net.ParseIP(strings.TrimSpace(v.IP)); ip != nil {
		v.IP = ip.String()
	}
	v.Session = strings.TrimSpace(v.Session)
	return v
}

// Vote - запись журнала голосов. Не изменяется и не удаляется.
type Vote struct {
	ID           uuid.UUID `json:"id" db:"id"`
	ChapterID    uuid.UUID `json:"chapter_id" db:"chapter_id"`
	VoterIP      string    `json:"-" db:"voter_ip"`
	VoterSession string    `json:"-" db:"voter_session"`
	OptionID     string    `json:"option_id" db:"option_id"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// TallyRow - агрегированный счетчик по варианту главы.
type TallyRow struct {
	ChapterID uuid.UUID `json:"chapter_id" db:"chapter_id"`
	OptionID  string    `json:"option_id" db:"option_id"`
	Count     int64     `json:"count" db:"count"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Tallies - снимок счетчиков главы.
type Tallies struct {
	Counts map[string]int64 `json:"vote_counts"`
	Total  int64            `json:"total_votes"`
}

// NewTallies строит снимок из строк агрегатора.
func NewTallies(rows []TallyRow) Tallies {
	t := Tallies{Counts: make(map[string]int64, len(rows))}
	for _, r := range rows {
		t.Counts[r.OptionID] += r.Count
		t.Total += r.Count
	}
	return t
}

// Percentage возвращает долю голосов за вариант в процентах.
func (t Tallies) Percentage(optionID string) float64 {
	if t.Total == 0 {
		return 0
	}
	return float64(t.Counts[optionID]) * 100 / float64(t.Total)
}

// VoteResult - ответ на принятый голос.
type VoteResult struct {
	Tallies           Tallies
	ThresholdReached  bool
	TriggerGeneration bool
	LeadingOption     string
	GenerationID      *uuid.UUID
}

// VoteStatus - состояние голосования для конкретного голосующего.
type VoteStatus struct {
	Tallies      Tallies
	UserChoice   *string
	VotingActive bool
	VotingStatus VotingStatus
	Deadline     *time.Time
}

package voting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"novel-vote-server/internal/interfaces"
	"novel-vote-server/internal/metrics"
	"novel-vote-server/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service принимает голоса (журнал + агрегатор в одной транзакции) и отдает состояние голосования.
type Service struct {
	tx            interfaces.Transactor
	chapters      interfaces.ChapterRepository
	votes         interfaces.VoteRepository
	tallies       interfaces.TallyRepository
	gate          *ThresholdGate
	cache         interfaces.TallyCache
	cooldown      interfaces.VoterCooldown
	roundDuration time.Duration
	logger        *zap.Logger
	now           func() time.Time
}

// Deps - зависимости сервиса голосования. Cache и Cooldown необязательны.
type Deps struct {
	Tx            interfaces.Transactor
	Chapters      interfaces.ChapterRepository
	Votes         interfaces.VoteRepository
	Tallies       interfaces.TallyRepository
	Gate          *ThresholdGate
	Cache         interfaces.TallyCache
	Cooldown      interfaces.VoterCooldown
	RoundDuration time.Duration
}

// NewService создает сервис голосования.
func NewService(deps Deps, logger *zap.Logger) *Service {
	return &Service{
		tx:            deps.Tx,
		chapters:      deps.Chapters,
		votes:         deps.Votes,
		tallies:       deps.Tallies,
		gate:          deps.Gate,
		cache:         deps.Cache,
		cooldown:      deps.Cooldown,
		roundDuration: deps.RoundDuration,
		logger:        logger.Named("VotingService"),
		now:           time.Now,
	}
}

// SubmitVote записывает голос и обновляет счетчик в одной транзакции, затем проверяет порог.
// Ошибки: models.ErrInvalidInput, models.ErrNotFound, models.ErrVotingClosed,
// models.ErrInvalidOption, models.ErrDuplicateVote, models.ErrRateLimited.
func (s *Service) SubmitVote(ctx context.Context, chapterID uuid.UUID, voter models.VoterIdentity, optionID string) (result *models.VoteResult, err error) {
	start := s.now()
	defer func() {
		metrics.VoteDuration.Observe(time.Since(start).Seconds())
		metrics.VotesTotal.WithLabelValues(voteOutcome(err)).Inc()
	}()

	voter = voter.Normalized()
	optionID = strings.TrimSpace(optionID)
	logFields := []zap.Field{
		zap.String("chapterID", chapterID.String()),
		zap.String("optionID", optionID),
	}

	if err := voter.Validate(); err != nil {
		return nil, err
	}
	if optionID == "" {
		return nil, fmt.Errorf("%w: option id is required", models.ErrInvalidInput)
	}

	cooldownHeld := false
	err = s.tx.WithTx(ctx, func(ctx context.Context, tx interfaces.DBTX) error {
		chapter, err := s.chapters.GetForVoting(ctx, tx, chapterID)
		if err != nil {
			return err
		}
		if !chapter.AcceptsVotes(s.now()) {
			return models.ErrVotingClosed
		}
		if _, ok := chapter.Option(optionID); !ok {
			return models.ErrInvalidOption
		}

		exists, err := s.votes.Exists(ctx, tx, chapterID, voter)
		if err != nil {
			return err
		}
		if exists {
			return models.ErrDuplicateVote
		}
		// Кулдаун проверяется после журнала: повтор того же голоса всегда DuplicateVote.
		if cooldownHeld, err = s.acquireCooldown(ctx, voter, chapterID); err != nil {
			return err
		}

		vote := &models.Vote{
			ID:           uuid.New(),
			ChapterID:    chapterID,
			VoterIP:      voter.IP,
			VoterSession: voter.Session,
			OptionID:     optionID,
			CreatedAt:    s.now().UTC(),
		}
		if err := s.votes.Insert(ctx, tx, vote); err != nil {
			return err
		}
		return s.tallies.Increment(ctx, tx, chapterID, optionID)
	})
	if err != nil {
		if cooldownHeld && !isConflict(err) {
			s.releaseCooldown(ctx, voter, chapterID)
		}
		if isExpected(err) {
			s.logger.Info("Vote rejected", append(logFields, zap.Error(err))...)
		} else {
			s.logger.Error("Vote transaction failed", append(logFields, zap.Error(err))...)
		}
		return nil, err
	}
	s.logger.Info("Vote accepted", logFields...)
	s.invalidateCache(ctx, chapterID)

	result = &models.VoteResult{}
	eval, evalErr := s.gate.Evaluate(ctx, chapterID)
	if eval != nil {
		result.Tallies = eval.Tallies
		result.ThresholdReached = eval.Reached
		result.TriggerGeneration = eval.ShouldTrigger
		result.LeadingOption = eval.LeadingOption
		result.GenerationID = eval.GenerationID
	}
	if evalErr != nil {
		// Голос уже зафиксирован. Следующий голос снова проверит порог.
		s.logger.Error("Threshold evaluation failed after accepted vote", append(logFields, zap.Error(evalErr))...)
		if eval == nil {
			tallies, err := s.GetTallies(ctx, chapterID)
			if err != nil {
				return nil, err
			}
			result.Tallies = tallies
		}
	}
	return result, nil
}

// GetTallies возвращает текущие счетчики главы напрямую из БД.
func (s *Service) GetTallies(ctx context.Context, chapterID uuid.UUID) (models.Tallies, error) {
	rows, err := s.tallies.GetByChapter(ctx, s.tx.DB(), chapterID)
	if err != nil {
		return models.Tallies{}, err
	}
	return models.NewTallies(rows), nil
}

// GetVoteStatus возвращает счетчики, выбор голосующего (если известен) и активность голосования.
func (s *Service) GetVoteStatus(ctx context.Context, chapterID uuid.UUID, voter models.VoterIdentity) (*models.VoteStatus, error) {
	chapter, err := s.chapters.GetByID(ctx, s.tx.DB(), chapterID)
	if err != nil {
		return nil, err
	}

	tallies, err := s.cachedTallies(ctx, chapterID)
	if err != nil {
		return nil, err
	}

	status := &models.VoteStatus{
		Tallies:      fillZeroCounts(tallies, chapter.Options),
		VotingActive: chapter.AcceptsVotes(s.now()),
		VotingStatus: chapter.VotingStatus,
		Deadline:     chapter.VotingDeadline,
	}

	voter = voter.Normalized()
	if voter.Validate() == nil {
		choice, err := s.votes.GetChoice(ctx, s.tx.DB(), chapterID, voter)
		if err != nil {
			return nil, err
		}
		status.UserChoice = choice
	}
	return status, nil
}

// CloseExpiredRounds обрабатывает открытые главы с истекшим дедлайном:
// при наличии голосов запускает генерацию по лидеру, без голосов продлевает раунд.
func (s *Service) CloseExpiredRounds(ctx context.Context, limit int) (claimed, extended int, err error) {
	ids, err := s.chapters.ListExpiredOpen(ctx, s.tx.DB(), s.now().UTC(), limit)
	if err != nil {
		return 0, 0, err
	}
	for _, id := range ids {
		logFields := []zap.Field{zap.String("chapterID", id.String())}
		tallies, err := s.GetTallies(ctx, id)
		if err != nil {
			s.logger.Error("Failed to read tallies for expired round", append(logFields, zap.Error(err))...)
			continue
		}
		if tallies.Total == 0 {
			deadline := s.now().UTC().Add(s.roundDuration)
			if err := s.chapters.ExtendDeadline(ctx, s.tx.DB(), id, deadline); err != nil && !errors.Is(err, models.ErrVotingClosed) {
				s.logger.Error("Failed to extend expired round", append(logFields, zap.Error(err))...)
				continue
			}
			s.logger.Info("Expired round without votes extended", append(logFields, zap.Time("deadline", deadline))...)
			extended++
			continue
		}
		record, err := s.gate.Claim(ctx, id, models.TriggerDeadline)
		if err != nil {
			continue
		}
		if record != nil {
			claimed++
		}
	}
	return claimed, extended, nil
}

func (s *Service) cachedTallies(ctx context.Context, chapterID uuid.UUID) (models.Tallies, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, chapterID)
		if err != nil {
			s.logger.Warn("Tally cache read failed, falling back to database", zap.String("chapterID", chapterID.String()), zap.Error(err))
		} else if cached != nil {
			return *cached, nil
		}
	}

	tallies, err := s.GetTallies(ctx, chapterID)
	if err != nil {
		return models.Tallies{}, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, chapterID, tallies); err != nil {
			s.logger.Warn("Tally cache write failed", zap.String("chapterID", chapterID.String()), zap.Error(err))
		}
	}
	return tallies, nil
}

func (s *Service) acquireCooldown(ctx context.Context, voter models.VoterIdentity, chapterID uuid.UUID) (bool, error) {
	if s.cooldown == nil {
		return false, nil
	}
	ok, err := s.cooldown.Acquire(ctx, voter, chapterID)
	if err != nil {
		// Redis недоступен: пропускаем голос, уникальность все равно гарантирует БД.
		s.logger.Warn("Voter cooldown unavailable, failing open", zap.Error(err))
		return false, nil
	}
	if !ok {
		return false, models.ErrRateLimited
	}
	return true, nil
}

func (s *Service) releaseCooldown(ctx context.Context, voter models.VoterIdentity, chapterID uuid.UUID) {
	if err := s.cooldown.Release(ctx, voter, chapterID); err != nil {
		s.logger.Warn("Failed to release voter cooldown", zap.Error(err))
	}
}

func (s *Service) invalidateCache(ctx context.Context, chapterID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, chapterID); err != nil {
		s.logger.Warn("Failed to invalidate tally cache", zap.String("chapterID", chapterID.String()), zap.Error(err))
	}
}

func isConflict(err error) bool {
	return errors.Is(err, models.ErrDuplicateVote) || errors.Is(err, models.ErrVotingClosed)
}

func isExpected(err error) bool {
	return isConflict(err) ||
		errors.Is(err, models.ErrInvalidOption) ||
		errors.Is(err, models.ErrRateLimited) ||
		errors.Is(err, models.ErrNotFound) ||
		errors.Is(err, models.ErrInvalidInput)
}

func voteOutcome(err error) string {
	switch {
	case err == nil:
		return "accepted"
	case errors.Is(err, models.ErrDuplicateVote):
		return "duplicate"
	case errors.Is(err, models.ErrVotingClosed):
		return "closed"
	case errors.Is(err, models.ErrInvalidOption):
		return "invalid_option"
	case errors.Is(err, models.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	case errors.Is(err, models.ErrInvalidInput):
		return "invalid_input"
	default:
		return "error"
	}
}

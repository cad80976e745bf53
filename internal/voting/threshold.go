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

// Decision - результат чистой проверки порога.
type Decision struct {
	Reached       bool
	LeadingOption string
	LeadingCount  int64
}

// Decide определяет лидера и достижение порога.
// options должны быть упорядочены по позиции: при равенстве голосов побеждает вариант с меньшей позицией.
func Decide(options []models.VotingOption, tallies models.Tallies, threshold int64) Decision {
	var d Decision
	for _, opt := range options {
		count := tallies.Counts[opt.OptionID]
		if d.LeadingOption == "" || count > d.LeadingCount {
			d.LeadingOption = opt.OptionID
			d.LeadingCount = count
		}
	}
	d.Reached = d.LeadingOption != "" && threshold > 0 && d.LeadingCount >= threshold
	return d
}

// Evaluation - результат ThresholdGate.Evaluate.
type Evaluation struct {
	Tallies       models.Tallies
	Reached       bool
	LeadingOption string
	ShouldTrigger bool
	GenerationID  *uuid.UUID
}

// ThresholdGate решает, пора ли генерировать следующую главу, и гарантирует,
// что запуск произойдет ровно один раз на главу.
type ThresholdGate struct {
	threshold   int64
	tx          interfaces.Transactor
	stories     interfaces.StoryRepository
	chapters    interfaces.ChapterRepository
	tallies     interfaces.TallyRepository
	generations interfaces.GenerationRecordRepository
	dispatcher  interfaces.GenerationDispatcher
	cache       interfaces.TallyCache
	logger      *zap.Logger
	now         func() time.Time
}

// NewThresholdGate создает гейт. cache может быть nil.
func NewThresholdGate(
	threshold int64,
	tx interfaces.Transactor,
	stories interfaces.StoryRepository,
	chapters interfaces.ChapterRepository,
	tallies interfaces.TallyRepository,
	generations interfaces.GenerationRecordRepository,
	dispatcher interfaces.GenerationDispatcher,
	cache interfaces.TallyCache,
	logger *zap.Logger,
) *ThresholdGate {
	return &ThresholdGate{
		threshold:   threshold,
		tx:          tx,
		stories:     stories,
		chapters:    chapters,
		tallies:     tallies,
		generations: generations,
		dispatcher:  dispatcher,
		cache:       cache,
		logger:      logger.Named("ThresholdGate"),
		now:         time.Now,
	}
}

// Threshold возвращает действующий порог.
func (g *ThresholdGate) Threshold() int64 {
	return g.threshold
}

// Evaluate читает актуальные счетчики и, если порог достигнут, пытается захватить генерацию.
// ShouldTrigger истинно только у того вызова, чей условный UPDATE выиграл.
func (g *ThresholdGate) Evaluate(ctx context.Context, chapterID uuid.UUID) (*Evaluation, error) {
	chapter, err := g.chapters.GetByID(ctx, g.tx.DB(), chapterID)
	if err != nil {
		return nil, err
	}
	rows, err := g.tallies.GetByChapter(ctx, g.tx.DB(), chapterID)
	if err != nil {
		return nil, err
	}
	tallies := fillZeroCounts(models.NewTallies(rows), chapter.Options)
	decision := Decide(chapter.Options, tallies, g.threshold)

	eval := &Evaluation{
		Tallies:       tallies,
		Reached:       decision.Reached,
		LeadingOption: decision.LeadingOption,
	}
	if !decision.Reached || chapter.VotingStatus != models.VotingStatusOpen {
		return eval, nil
	}

	record, err := g.Claim(ctx, chapterID, models.TriggerThreshold)
	if err != nil {
		return eval, err
	}
	if record != nil {
		eval.ShouldTrigger = true
		eval.GenerationID = &record.ID
		eval.LeadingOption = record.Input.WinningOption.OptionID
		eval.Tallies = fillZeroCounts(models.Tallies{Counts: record.Input.VoteCounts, Total: record.Input.TotalVotes}, chapter.Options)
	}
	return eval, nil
}

// Claim атомарно закрывает голосование и создает запись генерации в статусе pending.
// Возвращает nil без ошибки, если захват выиграл кто-то другой.
func (g *ThresholdGate) Claim(ctx context.Context, chapterID uuid.UUID, trigger models.TriggerReason) (*models.GenerationRecord, error) {
	var record *models.GenerationRecord
	err := g.tx.WithTx(ctx, func(ctx context.Context, tx interfaces.DBTX) error {
		won, err := g.chapters.ClaimForGeneration(ctx, tx, chapterID)
		if err != nil {
			return err
		}
		if !won {
			return nil
		}

		// UPDATE дождался всех транзакций голосов, державших FOR SHARE, поэтому счетчики здесь окончательные.
		chapter, err := g.chapters.GetByID(ctx, tx, chapterID)
		if err != nil {
			return err
		}
		story, err := g.stories.GetByID(ctx, tx, chapter.StoryID)
		if err != nil {
			return err
		}
		rows, err := g.tallies.GetByChapter(ctx, tx, chapterID)
		if err != nil {
			return err
		}
		tallies := fillZeroCounts(models.NewTallies(rows), chapter.Options)
		decision := Decide(chapter.Options, tallies, g.threshold)
		winner, ok := chapter.Option(decision.LeadingOption)
		if !ok {
			return fmt.Errorf("%w: chapter %s has no options to choose from", models.ErrInvalidInput, chapterID)
		}

		previousContext, err := g.buildPreviousContext(ctx, tx, chapter)
		if err != nil {
			return err
		}

		record = &models.GenerationRecord{
			ID:              uuid.New(),
			StoryID:         story.ID,
			SourceChapterID: chapter.ID,
			Status:          models.GenerationStatusPending,
			Attempt:         1,
			Input: models.GenerationInput{
				StoryID:         story.ID,
				StoryTitle:      story.Title,
				Genre:           story.Genre,
				SourceChapterID: chapter.ID,
				SourceSequence:  chapter.SequenceNumber,
				PreviousContext: previousContext,
				WinningOption:   winner,
				VoteCount:       decision.LeadingCount,
				TotalVotes:      tallies.Total,
				Percentage:      tallies.Percentage(winner.OptionID),
				VoteCounts:      tallies.Counts,
				Trigger:         trigger,
			},
			CreatedAt: g.now().UTC(),
		}
		if err := g.generations.Create(ctx, tx, record); err != nil {
			return err
		}
		return g.stories.UpdateStatus(ctx, tx, story.ID, models.StoryStatusWriting, nil)
	})
	if err != nil {
		record = nil
		g.logger.Error("Generation claim failed", zap.String("chapterID", chapterID.String()), zap.Error(err))
		return nil, fmt.Errorf("claim generation for chapter %s: %w", chapterID, err)
	}

	if record == nil {
		metrics.ClaimsTotal.WithLabelValues("lost", string(trigger)).Inc()
		g.logger.Debug("Generation claim lost", zap.String("chapterID", chapterID.String()))
		return nil, nil
	}
	metrics.ClaimsTotal.WithLabelValues("won", string(trigger)).Inc()
	g.logger.Info("Generation claimed",
		zap.String("chapterID", chapterID.String()),
		zap.String("generationID", record.ID.String()),
		zap.String("winningOption", record.Input.WinningOption.OptionID),
		zap.Int64("voteCount", record.Input.VoteCount),
		zap.String("trigger", string(trigger)),
	)

	if g.cache != nil {
		if err := g.cache.Invalidate(ctx, chapterID); err != nil {
			g.logger.Warn("Failed to invalidate tally cache after claim", zap.String("chapterID", chapterID.String()), zap.Error(err))
		}
	}
	g.dispatch(ctx, record)
	return record, nil
}

// dispatch отправляет задачу исполнителю. Ошибка не откатывает захват: запись остается pending
// и будет переотправлена при восстановлении устаревших задач.
func (g *ThresholdGate) dispatch(ctx context.Context, record *models.GenerationRecord) {
	if g.dispatcher == nil {
		return
	}
	payload := models.GenerationTaskPayload{
		GenerationID:    record.ID,
		SourceChapterID: record.SourceChapterID,
		Attempt:         record.Attempt,
	}
	if err := g.dispatcher.DispatchGeneration(ctx, payload); err != nil {
		g.logger.Error("Failed to dispatch generation task, record stays pending",
			zap.String("generationID", record.ID.String()), zap.Error(err))
	}
}

// buildPreviousContext собирает краткое содержание предыдущих глав и полный текст текущей.
func (g *ThresholdGate) buildPreviousContext(ctx context.Context, tx interfaces.DBTX, current *models.Chapter) (string, error) {
	chapters, err := g.chapters.ListByStory(ctx, tx, current.StoryID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return "", err
	}
	var b strings.Builder
	for _, ch := range chapters {
		if ch.SequenceNumber >= current.SequenceNumber {
			continue
		}
		summary := ch.Summary
		if summary == "" {
			summary = ch.Title
		}
		fmt.Fprintf(&b, "Chapter %d: %s\n", ch.SequenceNumber, summary)
	}
	if b.Len() > 0 {
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Chapter %d: %s\n\n%s", current.SequenceNumber, current.Title, current.Body)
	return b.String(), nil
}

// fillZeroCounts добавляет варианты без голосов, чтобы клиент видел полный набор.
func fillZeroCounts(t models.Tallies, options []models.VotingOption) models.Tallies {
	if t.Counts == nil {
		t.Counts = make(map[string]int64, len(options))
	}
	for _, opt := range options {
		if _, ok := t.Counts[opt.OptionID]; !ok {
			t.Counts[opt.OptionID] = 0
		}
	}
	return t
}

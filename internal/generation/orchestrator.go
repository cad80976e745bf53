package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"novel-vote-server/internal/interfaces"
	"novel-vote-server/internal/metrics"
	"novel-vote-server/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Orchestrator ведет запись генерации pending -> processing -> completed|failed.
// Повторов внутри Run нет: повтор создается только через Retry.
type Orchestrator struct {
	tx          interfaces.Transactor
	generations interfaces.GenerationRecordRepository
	generator   interfaces.ContentGenerator
	chainer     *Chainer
	dispatcher  interfaces.GenerationDispatcher
	illustrator interfaces.IllustrationDispatcher
	timeout     time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

// Deps - зависимости оркестратора. Generator нужен только воркеру,
// Illustrator необязателен.
type Deps struct {
	Tx          interfaces.Transactor
	Generations interfaces.GenerationRecordRepository
	Generator   interfaces.ContentGenerator
	Chainer     *Chainer
	Dispatcher  interfaces.GenerationDispatcher
	Illustrator interfaces.IllustrationDispatcher
	Timeout     time.Duration
}

// NewOrchestrator создает оркестратор генерации.
func NewOrchestrator(deps Deps, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		tx:          deps.Tx,
		generations: deps.Generations,
		generator:   deps.Generator,
		chainer:     deps.Chainer,
		dispatcher:  deps.Dispatcher,
		illustrator: deps.Illustrator,
		timeout:     deps.Timeout,
		logger:      logger.Named("GenerationOrchestrator"),
		now:         time.Now,
	}
}

// Run выполняет одну задачу генерации. Повторная доставка той же задачи безопасна:
// переход pending -> processing выигрывает только один исполнитель.
// Ошибка генератора фиксируется в записи и не возвращается; ошибка возвращается только
// если не удалось сохранить сам исход.
func (o *Orchestrator) Run(ctx context.Context, generationID uuid.UUID) error {
	logFields := []zap.Field{zap.String("generationID", generationID.String())}

	record, err := o.generations.GetByID(ctx, o.tx.DB(), generationID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			o.logger.Warn("Generation record not found, skipping task", logFields...)
			return nil
		}
		return err
	}
	if record.Status != models.GenerationStatusPending {
		o.logger.Info("Generation record is not pending, skipping task",
			append(logFields, zap.String("status", string(record.Status)))...)
		return nil
	}

	startedAt := o.now().UTC()
	won, err := o.generations.MarkProcessing(ctx, o.tx.DB(), generationID, startedAt)
	if err != nil {
		return err
	}
	if !won {
		o.logger.Info("Generation already taken by another worker", logFields...)
		return nil
	}
	record.Status = models.GenerationStatusProcessing
	record.StartedAt = &startedAt

	final := o.chainer.IsFinal(record.Input.SourceSequence + 1)
	o.logger.Info("Generation started", append(logFields,
		zap.String("sourceChapterID", record.SourceChapterID.String()),
		zap.String("winningOption", record.Input.WinningOption.OptionID),
		zap.Int("attempt", record.Attempt),
		zap.Bool("final", final),
	)...)

	begin := time.Now()
	output, usage, genErr := o.generate(ctx, record.Input, final)
	recordUsage(usage)
	elapsed := time.Since(begin)
	if genErr != nil {
		return o.fail(ctx, record, models.GenerationStatusProcessing, failureReason(genErr), genErr.Error(), usage)
	}

	chapter, err := o.complete(ctx, record, output, usage)
	if err != nil {
		o.logger.Error("Failed to persist generation result", append(logFields, zap.Error(err))...)
		reason := "persist"
		if errors.Is(err, models.ErrSequenceTaken) {
			reason = "sequence_conflict"
		}
		return o.fail(ctx, record, models.GenerationStatusProcessing, reason, fmt.Sprintf("persist result: %v", err), usage)
	}
	metrics.GenerationDuration.WithLabelValues(string(record.Status)).Observe(record.ProcessingTime().Seconds())
	metrics.GenerationsTotal.WithLabelValues(string(models.GenerationStatusCompleted), "ok").Inc()
	o.logger.Info("Generation completed", append(logFields,
		zap.String("chapterID", chapter.ID.String()),
		zap.Int("sequence", chapter.SequenceNumber),
		zap.Duration("elapsed", elapsed),
		zap.Duration("processingTime", record.ProcessingTime()),
	)...)

	o.requestIllustration(ctx, chapter.ID)
	return nil
}

func (o *Orchestrator) generate(ctx context.Context, input models.GenerationInput, final bool) (*models.GenerationOutput, models.UsageInfo, error) {
	if o.generator == nil {
		return nil, models.UsageInfo{}, fmt.Errorf("%w: no content generator configured", models.ErrGenerationFailed)
	}
	genCtx := ctx
	if o.timeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	output, usage, err := o.generator.Generate(genCtx, input, final)
	if err != nil {
		if errors.Is(genCtx.Err(), context.DeadlineExceeded) {
			return nil, usage, fmt.Errorf("%w: %w after %s: %v", models.ErrGenerationFailed, context.DeadlineExceeded, o.timeout, err)
		}
		return nil, usage, err
	}
	if err := output.Validate(!final); err != nil {
		return nil, usage, err
	}
	return output, usage, nil
}

// complete в одной транзакции завершает запись и создает следующую главу.
// После успеха record отражает сохраненное состояние.
func (o *Orchestrator) complete(ctx context.Context, record *models.GenerationRecord, output *models.GenerationOutput, usage models.UsageInfo) (*models.Chapter, error) {
	var chapter *models.Chapter
	completed := *record
	err := o.tx.WithTx(ctx, func(ctx context.Context, tx interfaces.DBTX) error {
		chapterID := uuid.New()
		completedAt := o.now().UTC()
		if err := o.generations.MarkCompleted(ctx, tx, record.ID, output, usage, chapterID, completedAt); err != nil {
			return err
		}
		completed.Status = models.GenerationStatusCompleted
		completed.Output = output
		completed.ResultChapterID = &chapterID
		completed.CompletedAt = &completedAt

		var err error
		chapter, err = o.chainer.Chain(ctx, tx, &completed)
		return err
	})
	if err != nil {
		return nil, err
	}
	*record = completed
	return chapter, nil
}

func (o *Orchestrator) fail(ctx context.Context, record *models.GenerationRecord, from models.GenerationStatus, reason, details string, usage models.UsageInfo) error {
	logFields := []zap.Field{
		zap.String("generationID", record.ID.String()),
		zap.String("reason", reason),
		zap.String("details", details),
	}
	completedAt := o.now().UTC()
	ok, err := o.generations.MarkFailed(ctx, o.tx.DB(), record.ID, from, details, usage, completedAt)
	if err != nil {
		o.logger.Error("Failed to record generation failure", append(logFields, zap.Error(err))...)
		return err
	}
	if !ok {
		o.logger.Warn("Generation record left the expected status before failure was recorded",
			append(logFields, zap.String("expected", string(from)))...)
		return nil
	}
	record.Status = models.GenerationStatusFailed
	record.CompletedAt = &completedAt
	metrics.GenerationDuration.WithLabelValues(string(record.Status)).Observe(record.ProcessingTime().Seconds())
	metrics.GenerationsTotal.WithLabelValues(string(models.GenerationStatusFailed), reason).Inc()
	o.logger.Error("Generation failed", append(logFields, zap.Duration("processingTime", record.ProcessingTime()))...)
	return nil
}

func (o *Orchestrator) requestIllustration(ctx context.Context, chapterID uuid.UUID) {
	if o.illustrator == nil {
		return
	}
	payload := models.IllustrationTaskPayload{TaskID: uuid.NewString(), ChapterID: chapterID}
	if err := o.illustrator.DispatchIllustration(ctx, payload); err != nil {
		o.logger.Warn("Failed to dispatch illustration task", zap.String("chapterID", chapterID.String()), zap.Error(err))
	}
}

// Retry создает новую запись pending для главы-источника проваленной записи.
// Повторять можно только последнюю попытку и только в статусе failed.
func (o *Orchestrator) Retry(ctx context.Context, generationID uuid.UUID) (*models.GenerationRecord, error) {
	var retry *models.GenerationRecord
	err := o.tx.WithTx(ctx, func(ctx context.Context, tx interfaces.DBTX) error {
		record, err := o.generations.GetByID(ctx, tx, generationID)
		if err != nil {
			return err
		}
		if record.Status != models.GenerationStatusFailed {
			return fmt.Errorf("%w: record %s is %s", models.ErrGenerationNotRetryable, record.ID, record.Status)
		}
		latest, err := o.generations.GetLatestBySourceChapter(ctx, tx, record.SourceChapterID)
		if err != nil {
			return err
		}
		if latest.ID != record.ID {
			return fmt.Errorf("%w: newer attempt %s exists", models.ErrGenerationNotRetryable, latest.ID)
		}

		input := record.Input
		input.Trigger = models.TriggerRetry
		retryOf := record.ID
		retry = &models.GenerationRecord{
			ID:              uuid.New(),
			StoryID:         record.StoryID,
			SourceChapterID: record.SourceChapterID,
			Status:          models.GenerationStatusPending,
			Attempt:         record.Attempt + 1,
			RetryOf:         &retryOf,
			Input:           input,
			CreatedAt:       o.now().UTC(),
		}
		return o.generations.Create(ctx, tx, retry)
	})
	if err != nil {
		o.logger.Warn("Generation retry rejected", zap.String("generationID", generationID.String()), zap.Error(err))
		return nil, err
	}

	o.logger.Info("Generation retry created",
		zap.String("generationID", retry.ID.String()),
		zap.String("retryOf", generationID.String()),
		zap.Int("attempt", retry.Attempt),
	)
	o.Dispatch(ctx, retry)
	return retry, nil
}

// Dispatch отправляет запись исполнителю. Ошибка не меняет запись: она остается pending.
func (o *Orchestrator) Dispatch(ctx context.Context, record *models.GenerationRecord) {
	if o.dispatcher == nil {
		return
	}
	payload := models.GenerationTaskPayload{
		GenerationID:    record.ID,
		SourceChapterID: record.SourceChapterID,
		Attempt:         record.Attempt,
	}
	if err := o.dispatcher.DispatchGeneration(ctx, payload); err != nil {
		o.logger.Error("Failed to dispatch generation task, record stays pending",
			zap.String("generationID", record.ID.String()), zap.Error(err))
	}
}

// FailPending проваливает запись, которая так и не была взята в работу (задача ушла в DLQ).
// Переход pending -> processing -> failed выполняется в одной транзакции.
func (o *Orchestrator) FailPending(ctx context.Context, generationID uuid.UUID, details string) error {
	logFields := []zap.Field{
		zap.String("generationID", generationID.String()),
		zap.String("details", details),
	}
	failed := false
	err := o.tx.WithTx(ctx, func(ctx context.Context, tx interfaces.DBTX) error {
		record, err := o.generations.GetByID(ctx, tx, generationID)
		if err != nil {
			return err
		}
		if record.Status != models.GenerationStatusPending {
			return nil
		}
		now := o.now().UTC()
		won, err := o.generations.MarkProcessing(ctx, tx, generationID, now)
		if err != nil || !won {
			return err
		}
		ok, err := o.generations.MarkFailed(ctx, tx, generationID, models.GenerationStatusProcessing, details, models.UsageInfo{}, now)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: generation %s left processing", models.ErrInvalidTransition, generationID)
		}
		failed = true
		return nil
	})
	if err != nil {
		o.logger.Error("Failed to fail dead-lettered generation", append(logFields, zap.Error(err))...)
		return err
	}
	if failed {
		metrics.GenerationsTotal.WithLabelValues(string(models.GenerationStatusFailed), "dead_letter").Inc()
		o.logger.Error("Generation failed", append(logFields, zap.String("reason", "dead_letter"))...)
	}
	return nil
}

// Get возвращает запись генерации.
func (o *Orchestrator) Get(ctx context.Context, generationID uuid.UUID) (*models.GenerationRecord, error) {
	return o.generations.GetByID(ctx, o.tx.DB(), generationID)
}

// GetLatestForChapter возвращает последнюю попытку генерации продолжения главы.
func (o *Orchestrator) GetLatestForChapter(ctx context.Context, chapterID uuid.UUID) (*models.GenerationRecord, error) {
	return o.generations.GetLatestBySourceChapter(ctx, o.tx.DB(), chapterID)
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, models.ErrMalformedOutput):
		return "malformed"
	default:
		return "error"
	}
}

func recordUsage(usage models.UsageInfo) {
	if usage.PromptTokens > 0 {
		metrics.AITokensTotal.WithLabelValues("prompt").Add(float64(usage.PromptTokens))
	}
	if usage.CompletionTokens > 0 {
		metrics.AITokensTotal.WithLabelValues("completion").Add(float64(usage.CompletionTokens))
	}
}

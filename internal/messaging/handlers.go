package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"novel-vote-server/internal/models"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// GenerationRunner исполняет задачу генерации.
type GenerationRunner interface {
	Run(ctx context.Context, generationID uuid.UUID) error
}

// DeadLetterRecorder фиксирует задачу генерации, ушедшую в DLQ.
type DeadLetterRecorder interface {
	FailPending(ctx context.Context, generationID uuid.UUID, details string) error
}

// Illustrator выполняет задачу иллюстрирования. Ошибок не возвращает.
type Illustrator interface {
	RequestIllustration(ctx context.Context, chapterID uuid.UUID) *models.IllustrationRecord
}

func decodeGenerationTask(body []byte) (models.GenerationTaskPayload, error) {
	var payload models.GenerationTaskPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return payload, fmt.Errorf("%w: generation task: %v", ErrUndecodable, err)
	}
	if payload.GenerationID == uuid.Nil {
		return payload, fmt.Errorf("%w: generation task without generation_id", ErrUndecodable)
	}
	return payload, nil
}

// GenerationHandler передает задачу из очереди генерации оркестратору.
func GenerationHandler(runner GenerationRunner, logger *zap.Logger) Handler {
	return func(ctx context.Context, d amqp.Delivery) error {
		payload, err := decodeGenerationTask(d.Body)
		if err != nil {
			return err
		}
		logger.Debug("Generation task received",
			zap.String("generationID", payload.GenerationID.String()),
			zap.Int("attempt", payload.Attempt),
			zap.Bool("redelivered", d.Redelivered))
		return runner.Run(ctx, payload.GenerationID)
	}
}

// IllustrationHandler передает задачу иллюстрирования сервису иллюстраций.
// Неудача иллюстрации фиксируется сервисом, поэтому сообщение всегда подтверждается.
func IllustrationHandler(illustrator Illustrator, logger *zap.Logger) Handler {
	return func(ctx context.Context, d amqp.Delivery) error {
		var payload models.IllustrationTaskPayload
		if err := json.Unmarshal(d.Body, &payload); err != nil {
			return fmt.Errorf("%w: illustration task: %v", ErrUndecodable, err)
		}
		if payload.ChapterID == uuid.Nil {
			return fmt.Errorf("%w: illustration task without chapter_id", ErrUndecodable)
		}
		logger.Debug("Illustration task received",
			zap.String("taskID", payload.TaskID), zap.String("chapterID", payload.ChapterID.String()))
		illustrator.RequestIllustration(ctx, payload.ChapterID)
		return nil
	}
}

// DeadLetterHandler помечает failed запись, чья задача ушла в DLQ и так и не была взята.
// Битые сообщения из DLQ подтверждаются и отбрасываются: дальше им идти некуда.
func DeadLetterHandler(recorder DeadLetterRecorder, logger *zap.Logger) Handler {
	return func(ctx context.Context, d amqp.Delivery) error {
		payload, err := decodeGenerationTask(d.Body)
		if err != nil {
			logger.Error("Dropping undecodable dead-lettered message", zap.Error(err), zap.ByteString("body", d.Body))
			return nil
		}
		reason := deathReason(d.Headers)
		logger.Warn("Generation task dead-lettered",
			zap.String("generationID", payload.GenerationID.String()), zap.String("reason", reason))
		return recorder.FailPending(ctx, payload.GenerationID, fmt.Sprintf("task dead-lettered (reason: %s)", reason))
	}
}

// deathReason достает причину из заголовка x-death, который ставит брокер.
func deathReason(headers amqp.Table) string {
	xDeath, ok := headers["x-death"].([]interface{})
	if !ok || len(xDeath) == 0 {
		return "unknown"
	}
	info, ok := xDeath[0].(amqp.Table)
	if !ok {
		return "unknown"
	}
	if reason, ok := info["reason"].(string); ok && reason != "" {
		return reason
	}
	return "unknown"
}

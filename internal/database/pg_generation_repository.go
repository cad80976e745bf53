package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"novel-vote-server/internal/interfaces"
	"novel-vote-server/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const generationColumns = `id, story_id, source_chapter_id, status, attempt, retry_of, input, output, error_details,
        result_chapter_id, prompt_tokens, completion_tokens, created_at, started_at, completed_at`

const (
	createGenerationQuery = `
        INSERT INTO generation_records (id, story_id, source_chapter_id, status, attempt, retry_of, input, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	getGenerationByIDQuery    = `SELECT ` + generationColumns + ` FROM generation_records WHERE id = $1`
	getLatestGenerationQuery  = `SELECT ` + generationColumns + ` FROM generation_records WHERE source_chapter_id = $1 ORDER BY attempt DESC, created_at DESC LIMIT 1`
	markGenerationProcessingQ = `
        UPDATE generation_records SET status = 'processing', started_at = $2
        WHERE id = $1 AND status = 'pending'`
	markGenerationCompletedQ = `
        UPDATE generation_records
        SET status = 'completed', output = $2, prompt_tokens = $3, completion_tokens = $4,
            result_chapter_id = $5, completed_at = $6
        WHERE id = $1 AND status = 'processing'`
	markGenerationFailedQ = `
        UPDATE generation_records
        SET status = 'failed', error_details = $3, prompt_tokens = $4, completion_tokens = $5, completed_at = $6
        WHERE id = $1 AND status = $2`
	listStalePendingQuery = `SELECT ` + generationColumns + ` FROM generation_records
        WHERE status = 'pending' AND created_at < $1 ORDER BY created_at LIMIT $2`
	listStaleProcessingQuery = `SELECT ` + generationColumns + ` FROM generation_records
        WHERE status = 'processing' AND started_at < $1 ORDER BY started_at LIMIT $2`
)

type pgGenerationRecordRepository struct {
	logger *zap.Logger
}

var _ interfaces.GenerationRecordRepository = (*pgGenerationRecordRepository)(nil)

// NewPgGenerationRecordRepository создает репозиторий аудита генераций.
func NewPgGenerationRecordRepository(logger *zap.Logger) interfaces.GenerationRecordRepository {
	return &pgGenerationRecordRepository{logger: logger.Named("PgGenerationRepo")}
}

func (r *pgGenerationRecordRepository) Create(ctx context.Context, querier interfaces.DBTX, record *models.GenerationRecord) error {
	logFields := []zap.Field{
		zap.String("generationID", record.ID.String()),
		zap.String("sourceChapterID", record.SourceChapterID.String()),
		zap.Int("attempt", record.Attempt),
	}
	r.logger.Debug("Creating generation record", logFields...)

	input, err := json.Marshal(record.Input)
	if err != nil {
		return fmt.Errorf("failed to marshal generation input: %w", err)
	}
	_, err = querier.Exec(ctx, createGenerationQuery,
		record.ID, record.StoryID, record.SourceChapterID, record.Status, record.Attempt, record.RetryOf, input, record.CreatedAt)
	if err != nil {
		if code, _ := pgErrorCode(err); code == pgUniqueViolation {
			r.logger.Warn("Active generation already exists for source chapter", logFields...)
			return models.ErrGenerationInFlight
		}
		r.logger.Error("Failed to create generation record", append(logFields, zap.Error(err))...)
		return fmt.Errorf("failed to create generation record: %w", err)
	}
	r.logger.Info("Generation record created", logFields...)
	return nil
}

func (r *pgGenerationRecordRepository) GetByID(ctx context.Context, querier interfaces.DBTX, id uuid.UUID) (*models.GenerationRecord, error) {
	record, err := scanGenerationRecord(querier.QueryRow(ctx, getGenerationByIDQuery, id))
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			r.logger.Error("Failed to get generation record", zap.String("generationID", id.String()), zap.Error(err))
		}
		return nil, err
	}
	return record, nil
}

func (r *pgGenerationRecordRepository) GetLatestBySourceChapter(ctx context.Context, querier interfaces.DBTX, chapterID uuid.UUID) (*models.GenerationRecord, error) {
	record, err := scanGenerationRecord(querier.QueryRow(ctx, getLatestGenerationQuery, chapterID))
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			r.logger.Error("Failed to get latest generation record", zap.String("chapterID", chapterID.String()), zap.Error(err))
		}
		return nil, err
	}
	return record, nil
}

func (r *pgGenerationRecordRepository) MarkProcessing(ctx context.Context, querier interfaces.DBTX, id uuid.UUID, startedAt time.Time) (bool, error) {
	tag, err := querier.Exec(ctx, markGenerationProcessingQ, id, startedAt)
	if err != nil {
		r.logger.Error("Failed to mark generation processing", zap.String("generationID", id.String()), zap.Error(err))
		return false, fmt.Errorf("failed to mark generation processing: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *pgGenerationRecordRepository) MarkCompleted(ctx context.Context, querier interfaces.DBTX, id uuid.UUID, output *models.GenerationOutput, usage models.UsageInfo, resultChapterID uuid.UUID, completedAt time.Time) error {
	outputJSON, err := json.Marshal(output)
	if err != nil {
		return fmt.Errorf("failed to marshal generation output: %w", err)
	}
	tag, err := querier.Exec(ctx, markGenerationCompletedQ,
		id, outputJSON, usage.PromptTokens, usage.CompletionTokens, resultChapterID, completedAt)
	if err != nil {
		r.logger.Error("Failed to mark generation completed", zap.String("generationID", id.String()), zap.Error(err))
		return fmt.Errorf("failed to mark generation completed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		r.logger.Warn("Generation record is not processing, cannot complete", zap.String("generationID", id.String()))
		return fmt.Errorf("%w: generation %s is not processing", models.ErrInvalidTransition, id)
	}
	return nil
}

func (r *pgGenerationRecordRepository) MarkFailed(ctx context.Context, querier interfaces.DBTX, id uuid.UUID, from models.GenerationStatus, details string, usage models.UsageInfo, completedAt time.Time) (bool, error) {
	if !from.CanTransitionTo(models.GenerationStatusFailed) {
		return false, fmt.Errorf("%w: %s -> failed", models.ErrInvalidTransition, from)
	}
	tag, err := querier.Exec(ctx, markGenerationFailedQ,
		id, from, details, usage.PromptTokens, usage.CompletionTokens, completedAt)
	if err != nil {
		r.logger.Error("Failed to mark generation failed", zap.String("generationID", id.String()), zap.Error(err))
		return false, fmt.Errorf("failed to mark generation failed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *pgGenerationRecordRepository) ListStale(ctx context.Context, querier interfaces.DBTX, status models.GenerationStatus, before time.Time, limit int) ([]*models.GenerationRecord, error) {
	var query string
	switch status {
	case models.GenerationStatusPending:
		query = listStalePendingQuery
	case models.GenerationStatusProcessing:
		query = listStaleProcessingQuery
	default:
		return nil, fmt.Errorf("%w: stale lookup is only defined for active statuses", models.ErrInvalidInput)
	}

	rows, err := querier.Query(ctx, query, before, limit)
	if err != nil {
		r.logger.Error("Failed to list stale generations", zap.String("status", string(status)), zap.Error(err))
		return nil, fmt.Errorf("failed to list stale generations: %w", err)
	}
	defer rows.Close()

	var records []*models.GenerationRecord
	for rows.Next() {
		record, err := scanGenerationRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate stale generations: %w", err)
	}
	return records, nil
}

// scanGenerationRecord сканирует строку generation_records, разбирая JSONB-снимки.
func scanGenerationRecord(row pgx.Row) (*models.GenerationRecord, error) {
	var (
		rec        models.GenerationRecord
		inputJSON  []byte
		outputJSON []byte
	)
	err := row.Scan(
		&rec.ID, &rec.StoryID, &rec.SourceChapterID, &rec.Status, &rec.Attempt, &rec.RetryOf,
		&inputJSON, &outputJSON, &rec.ErrorDetails, &rec.ResultChapterID,
		&rec.PromptTokens, &rec.CompletionTokens, &rec.CreatedAt, &rec.StartedAt, &rec.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan generation record: %w", err)
	}
	if err := json.Unmarshal(inputJSON, &rec.Input); err != nil {
		return nil, fmt.Errorf("failed to unmarshal generation input %s: %w", rec.ID, err)
	}
	if len(outputJSON) > 0 {
		var out models.GenerationOutput
		if err := json.Unmarshal(outputJSON, &out); err != nil {
			return nil, fmt.Errorf("failed to unmarshal generation output %s: %w", rec.ID, err)
		}
		rec.Output = &out
	}
	return &rec, nil
}

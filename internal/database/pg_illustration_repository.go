package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"novel-vote-server/internal/interfaces"
	"novel-vote-server/internal/models"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const (
	getIllustrationQuery = `
        SELECT chapter_id, status, asset_url, style, error_details, generated_at
        FROM chapter_illustrations WHERE chapter_id = $1 AND status <> 'pending'`
	// Захват проходит для отсутствующей, проваленной или зависшей pending-записи.
	claimIllustrationQuery = `
        INSERT INTO chapter_illustrations (chapter_id, status, style, generated_at)
        VALUES ($1, 'pending', $2, $3)
        ON CONFLICT (chapter_id) DO UPDATE SET
            status = 'pending',
            asset_url = NULL,
            style = EXCLUDED.style,
            error_details = NULL,
            generated_at = EXCLUDED.generated_at
        WHERE chapter_illustrations.status = 'failed'
           OR (chapter_illustrations.status = 'pending' AND chapter_illustrations.generated_at < $4)`
	// Неудачная попытка не затирает уже готовую иллюстрацию.
	upsertIllustrationQuery = `
        INSERT INTO chapter_illustrations (chapter_id, status, asset_url, style, error_details, generated_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (chapter_id) DO UPDATE SET
            status = EXCLUDED.status,
            asset_url = EXCLUDED.asset_url,
            style = EXCLUDED.style,
            error_details = EXCLUDED.error_details,
            generated_at = EXCLUDED.generated_at
        WHERE chapter_illustrations.status <> 'ready' OR EXCLUDED.status = 'ready'`
)

type pgIllustrationRepository struct {
	logger *zap.Logger
}

var _ interfaces.IllustrationRepository = (*pgIllustrationRepository)(nil)

// NewPgIllustrationRepository создает репозиторий иллюстраций.
func NewPgIllustrationRepository(logger *zap.Logger) interfaces.IllustrationRepository {
	return &pgIllustrationRepository{logger: logger.Named("PgIllustrationRepo")}
}

func (r *pgIllustrationRepository) Get(ctx context.Context, querier interfaces.DBTX, chapterID uuid.UUID) (*models.IllustrationRecord, error) {
	var rec models.IllustrationRecord
	if err := pgxscan.Get(ctx, querier, &rec, getIllustrationQuery, chapterID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		r.logger.Error("Failed to get illustration", zap.String("chapterID", chapterID.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to get illustration: %w", err)
	}
	return &rec, nil
}

func (r *pgIllustrationRepository) ClaimPending(ctx context.Context, querier interfaces.DBTX, chapterID uuid.UUID, style string, claimedAt, staleBefore time.Time) (bool, error) {
	tag, err := querier.Exec(ctx, claimIllustrationQuery, chapterID, style, claimedAt, staleBefore)
	if err != nil {
		if code, _ := pgErrorCode(err); code == pgForeignKeyViolation {
			r.logger.Warn("Chapter not found for illustration claim (foreign key violation)", zap.String("chapterID", chapterID.String()))
			return false, models.ErrNotFound
		}
		r.logger.Error("Failed to claim illustration", zap.String("chapterID", chapterID.String()), zap.Error(err))
		return false, fmt.Errorf("failed to claim illustration: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *pgIllustrationRepository) Upsert(ctx context.Context, querier interfaces.DBTX, record *models.IllustrationRecord) error {
	logFields := []zap.Field{
		zap.String("chapterID", record.ChapterID.String()),
		zap.String("status", string(record.Status)),
	}
	_, err := querier.Exec(ctx, upsertIllustrationQuery,
		record.ChapterID, record.Status, record.AssetURL, record.Style, record.ErrorDetails, record.GeneratedAt)
	if err != nil {
		if code, _ := pgErrorCode(err); code == pgForeignKeyViolation {
			r.logger.Warn("Chapter not found for illustration (foreign key violation)", logFields...)
			return models.ErrNotFound
		}
		r.logger.Error("Failed to upsert illustration", append(logFields, zap.Error(err))...)
		return fmt.Errorf("failed to upsert illustration: %w", err)
	}
	r.logger.Debug("Illustration record saved", logFields...)
	return nil
}

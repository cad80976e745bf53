package database

import (
	"context"
	"fmt"

	"novel-vote-server/internal/interfaces"
	"novel-vote-server/internal/models"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	incrementTallyQuery = `
        INSERT INTO vote_tallies (chapter_id, option_id, count, updated_at)
        VALUES ($1, $2, 1, NOW())
        ON CONFLICT (chapter_id, option_id) DO UPDATE SET
            count = vote_tallies.count + 1,
            updated_at = NOW()`
	getTalliesQuery = `
        SELECT t.chapter_id, t.option_id, t.count, t.updated_at
        FROM vote_tallies t
        JOIN chapter_options o ON o.chapter_id = t.chapter_id AND o.option_id = t.option_id
        WHERE t.chapter_id = $1
        ORDER BY o.position, t.option_id`
)

type pgTallyRepository struct {
	logger *zap.Logger
}

var _ interfaces.TallyRepository = (*pgTallyRepository)(nil)

// NewPgTallyRepository создает репозиторий агрегированных счетчиков.
func NewPgTallyRepository(logger *zap.Logger) interfaces.TallyRepository {
	return &pgTallyRepository{logger: logger.Named("PgTallyRepo")}
}

func (r *pgTallyRepository) Increment(ctx context.Context, querier interfaces.DBTX, chapterID uuid.UUID, optionID string) error {
	if _, err := querier.Exec(ctx, incrementTallyQuery, chapterID, optionID); err != nil {
		r.logger.Error("Failed to increment tally",
			zap.String("chapterID", chapterID.String()), zap.String("optionID", optionID), zap.Error(err))
		return fmt.Errorf("failed to increment tally: %w", err)
	}
	return nil
}

func (r *pgTallyRepository) GetByChapter(ctx context.Context, querier interfaces.DBTX, chapterID uuid.UUID) ([]models.TallyRow, error) {
	var rows []models.TallyRow
	if err := pgxscan.Select(ctx, querier, &rows, getTalliesQuery, chapterID); err != nil {
		r.logger.Error("Failed to get tallies", zap.String("chapterID", chapterID.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to get tallies: %w", err)
	}
	return rows, nil
}

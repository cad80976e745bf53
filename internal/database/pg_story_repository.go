package database

import (
	"context"
	"errors"
	"fmt"

	"novel-vote-server/internal/interfaces"
	"novel-vote-server/internal/models"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const (
	createStoryQuery = `
        INSERT INTO stories (id, title, genre, status, current_chapter_id, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $6)`
	getStoryByIDQuery = `
        SELECT id, title, genre, status, current_chapter_id, created_at, updated_at
        FROM stories WHERE id = $1`
	updateStoryStatusQuery = `
        UPDATE stories
        SET status = $2,
            current_chapter_id = COALESCE($3, current_chapter_id),
            updated_at = NOW()
        WHERE id = $1`
)

type pgStoryRepository struct {
	logger *zap.Logger
}

var _ interfaces.StoryRepository = (*pgStoryRepository)(nil)

// NewPgStoryRepository создает репозиторий историй.
func NewPgStoryRepository(logger *zap.Logger) interfaces.StoryRepository {
	return &pgStoryRepository{logger: logger.Named("PgStoryRepo")}
}

func (r *pgStoryRepository) Create(ctx context.Context, querier interfaces.DBTX, story *models.Story) error {
	logFields := []zap.Field{zap.String("storyID", story.ID.String())}
	r.logger.Debug("Creating story", logFields...)

	_, err := querier.Exec(ctx, createStoryQuery,
		story.ID, story.Title, story.Genre, story.Status, story.CurrentChapterID, story.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to create story", append(logFields, zap.Error(err))...)
		return fmt.Errorf("failed to create story: %w", err)
	}
	return nil
}

func (r *pgStoryRepository) GetByID(ctx context.Context, querier interfaces.DBTX, id uuid.UUID) (*models.Story, error) {
	var story models.Story
	if err := pgxscan.Get(ctx, querier, &story, getStoryByIDQuery, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		r.logger.Error("Failed to get story", zap.String("storyID", id.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to get story %s: %w", id, err)
	}
	return &story, nil
}

func (r *pgStoryRepository) UpdateStatus(ctx context.Context, querier interfaces.DBTX, id uuid.UUID, status models.StoryStatus, currentChapterID *uuid.UUID) error {
	logFields := []zap.Field{
		zap.String("storyID", id.String()),
		zap.String("status", string(status)),
	}
	r.logger.Debug("Updating story status", logFields...)

	tag, err := querier.Exec(ctx, updateStoryStatusQuery, id, status, currentChapterID)
	if err != nil {
		r.logger.Error("Failed to update story status", append(logFields, zap.Error(err))...)
		return fmt.Errorf("failed to update story status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		r.logger.Warn("Story not found for status update", logFields...)
		return models.ErrNotFound
	}
	return nil
}

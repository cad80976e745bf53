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

const chapterColumns = `id, story_id, sequence_number, title, body, summary, tags, voting_status, voting_deadline, created_at`

const (
	createChapterQuery = `
        INSERT INTO chapters (id, story_id, sequence_number, title, body, summary, tags, voting_status, voting_deadline, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	createChapterOptionQuery = `
        INSERT INTO chapter_options (chapter_id, option_id, label, description, position)
        VALUES ($1, $2, $3, $4, $5)`
	getChapterByIDQuery     = `SELECT ` + chapterColumns + ` FROM chapters WHERE id = $1`
	getChapterForShareQuery = `SELECT ` + chapterColumns + ` FROM chapters WHERE id = $1 FOR SHARE`
	listChaptersByStory     = `SELECT ` + chapterColumns + ` FROM chapters WHERE story_id = $1 ORDER BY sequence_number`
	getChapterOptionsQuery  = `
        SELECT chapter_id, option_id, label, description, position
        FROM chapter_options WHERE chapter_id = $1 ORDER BY position, option_id`
	getOptionsForChapters = `
        SELECT chapter_id, option_id, label, description, position
        FROM chapter_options WHERE chapter_id = ANY($1) ORDER BY chapter_id, position, option_id`
	maxSequenceQuery = `SELECT COALESCE(MAX(sequence_number), 0) FROM chapters WHERE story_id = $1`
	// Единственный вызывающий, чей UPDATE затронул строку, выигрывает захват.
	claimChapterQuery = `
        UPDATE chapters SET voting_status = 'closed'
        WHERE id = $1 AND voting_status = 'open'`
	markChapterGeneratedQuery = `
        UPDATE chapters SET voting_status = 'generated'
        WHERE id = $1 AND voting_status = 'closed'`
	listExpiredOpenQuery = `
        SELECT id FROM chapters
        WHERE voting_status = 'open' AND voting_deadline IS NOT NULL AND voting_deadline < $1
        ORDER BY voting_deadline
        LIMIT $2`
	extendDeadlineQuery = `
        UPDATE chapters SET voting_deadline = $2
        WHERE id = $1 AND voting_status = 'open'`
)

type pgChapterRepository struct {
	logger *zap.Logger
}

var _ interfaces.ChapterRepository = (*pgChapterRepository)(nil)

// NewPgChapterRepository создает репозиторий глав.
func NewPgChapterRepository(logger *zap.Logger) interfaces.ChapterRepository {
	return &pgChapterRepository{logger: logger.Named("PgChapterRepo")}
}

func (r *pgChapterRepository) Create(ctx context.Context, querier interfaces.DBTX, chapter *models.Chapter) error {
	logFields := []zap.Field{
		zap.String("chapterID", chapter.ID.String()),
		zap.String("storyID", chapter.StoryID.String()),
		zap.Int("sequence", chapter.SequenceNumber),
	}
	r.logger.Debug("Creating chapter", logFields...)

	tags := chapter.Tags
	if tags == nil {
		tags = []string{}
	}
	_, err := querier.Exec(ctx, createChapterQuery,
		chapter.ID, chapter.StoryID, chapter.SequenceNumber, chapter.Title, chapter.Body, chapter.Summary,
		tags, chapter.VotingStatus, chapter.VotingDeadline, chapter.CreatedAt)
	if err != nil {
		code, constraint := pgErrorCode(err)
		if code == pgUniqueViolation && constraint == "chapters_story_sequence_key" {
			r.logger.Warn("Chapter sequence already taken", logFields...)
			return models.ErrSequenceTaken
		}
		if code == pgForeignKeyViolation {
			r.logger.Warn("Story not found for chapter (foreign key violation)", logFields...)
			return models.ErrNotFound
		}
		r.logger.Error("Failed to create chapter", append(logFields, zap.Error(err))...)
		return fmt.Errorf("failed to create chapter: %w", err)
	}

	for _, opt := range chapter.Options {
		if _, err := querier.Exec(ctx, createChapterOptionQuery,
			chapter.ID, opt.OptionID, opt.Label, opt.Description, opt.Position); err != nil {
			r.logger.Error("Failed to create chapter option", append(logFields, zap.String("optionID", opt.OptionID), zap.Error(err))...)
			return fmt.Errorf("failed to create option %s: %w", opt.OptionID, err)
		}
	}

	r.logger.Info("Chapter created", append(logFields, zap.Int("options", len(chapter.Options)))...)
	return nil
}

func (r *pgChapterRepository) GetByID(ctx context.Context, querier interfaces.DBTX, id uuid.UUID) (*models.Chapter, error) {
	return r.getWithOptions(ctx, querier, getChapterByIDQuery, id)
}

func (r *pgChapterRepository) GetForVoting(ctx context.Context, querier interfaces.DBTX, id uuid.UUID) (*models.Chapter, error) {
	return r.getWithOptions(ctx, querier, getChapterForShareQuery, id)
}

func (r *pgChapterRepository) getWithOptions(ctx context.Context, querier interfaces.DBTX, query string, id uuid.UUID) (*models.Chapter, error) {
	var chapter models.Chapter
	if err := pgxscan.Get(ctx, querier, &chapter, query, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		r.logger.Error("Failed to get chapter", zap.String("chapterID", id.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to get chapter %s: %w", id, err)
	}
	if err := pgxscan.Select(ctx, querier, &chapter.Options, getChapterOptionsQuery, id); err != nil {
		r.logger.Error("Failed to get chapter options", zap.String("chapterID", id.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to get options for chapter %s: %w", id, err)
	}
	return &chapter, nil
}

func (r *pgChapterRepository) ListByStory(ctx context.Context, querier interfaces.DBTX, storyID uuid.UUID) ([]*models.Chapter, error) {
	var chapters []*models.Chapter
	if err := pgxscan.Select(ctx, querier, &chapters, listChaptersByStory, storyID); err != nil {
		r.logger.Error("Failed to list chapters", zap.String("storyID", storyID.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to list chapters for story %s: %w", storyID, err)
	}
	if len(chapters) == 0 {
		return chapters, nil
	}

	ids := make([]uuid.UUID, 0, len(chapters))
	byID := make(map[uuid.UUID]*models.Chapter, len(chapters))
	for _, ch := range chapters {
		ids = append(ids, ch.ID)
		byID[ch.ID] = ch
	}
	var options []models.VotingOption
	if err := pgxscan.Select(ctx, querier, &options, getOptionsForChapters, ids); err != nil {
		r.logger.Error("Failed to list chapter options", zap.String("storyID", storyID.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to list options for story %s: %w", storyID, err)
	}
	for _, opt := range options {
		if ch, ok := byID[opt.ChapterID]; ok {
			ch.Options = append(ch.Options, opt)
		}
	}
	return chapters, nil
}

func (r *pgChapterRepository) MaxSequence(ctx context.Context, querier interfaces.DBTX, storyID uuid.UUID) (int, error) {
	var seq int
	if err := querier.QueryRow(ctx, maxSequenceQuery, storyID).Scan(&seq); err != nil {
		r.logger.Error("Failed to get max chapter sequence", zap.String("storyID", storyID.String()), zap.Error(err))
		return 0, fmt.Errorf("failed to get max sequence: %w", err)
	}
	return seq, nil
}

func (r *pgChapterRepository) ClaimForGeneration(ctx context.Context, querier interfaces.DBTX, id uuid.UUID) (bool, error) {
	tag, err := querier.Exec(ctx, claimChapterQuery, id)
	if err != nil {
		r.logger.Error("Failed to claim chapter for generation", zap.String("chapterID", id.String()), zap.Error(err))
		return false, fmt.Errorf("failed to claim chapter: %w", err)
	}
	won := tag.RowsAffected() == 1
	r.logger.Debug("Chapter claim attempted", zap.String("chapterID", id.String()), zap.Bool("won", won))
	return won, nil
}

func (r *pgChapterRepository) MarkGenerated(ctx context.Context, querier interfaces.DBTX, id uuid.UUID) error {
	tag, err := querier.Exec(ctx, markChapterGeneratedQuery, id)
	if err != nil {
		r.logger.Error("Failed to mark chapter generated", zap.String("chapterID", id.String()), zap.Error(err))
		return fmt.Errorf("failed to mark chapter generated: %w", err)
	}
	if tag.RowsAffected() == 0 {
		r.logger.Warn("Chapter is not in closed state, cannot mark generated", zap.String("chapterID", id.String()))
		return fmt.Errorf("%w: chapter %s is not closed", models.ErrInvalidTransition, id)
	}
	return nil
}

func (r *pgChapterRepository) ListExpiredOpen(ctx context.Context, querier interfaces.DBTX, now time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := querier.Query(ctx, listExpiredOpenQuery, now, limit)
	if err != nil {
		r.logger.Error("Failed to list expired chapters", zap.Error(err))
		return nil, fmt.Errorf("failed to list expired chapters: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("failed to scan expired chapters: %w", err)
	}
	return ids, nil
}

func (r *pgChapterRepository) ExtendDeadline(ctx context.Context, querier interfaces.DBTX, id uuid.UUID, deadline time.Time) error {
	tag, err := querier.Exec(ctx, extendDeadlineQuery, id, deadline)
	if err != nil {
		r.logger.Error("Failed to extend voting deadline", zap.String("chapterID", id.String()), zap.Error(err))
		return fmt.Errorf("failed to extend deadline: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrVotingClosed
	}
	return nil
}

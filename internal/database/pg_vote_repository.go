package database

import (
	"context"
	"errors"
	"fmt"

	"novel-vote-server/internal/interfaces"
	"novel-vote-server/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const (
	voteExistsQuery = `
        SELECT EXISTS (SELECT 1 FROM votes WHERE chapter_id = $1 AND voter_ip = $2 AND voter_session = $3)`
	insertVoteQuery = `
        INSERT INTO votes (id, chapter_id, voter_ip, voter_session, option_id, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)`
	getVoteChoiceQuery = `
        SELECT option_id FROM votes WHERE chapter_id = $1 AND voter_ip = $2 AND voter_session = $3`
	countVotesByOptionQuery = `
        SELECT option_id, COUNT(*) FROM votes WHERE chapter_id = $1 GROUP BY option_id`
)

type pgVoteRepository struct {
	logger *zap.Logger
}

var _ interfaces.VoteRepository = (*pgVoteRepository)(nil)

// NewPgVoteRepository создает репозиторий журнала голосов.
func NewPgVoteRepository(logger *zap.Logger) interfaces.VoteRepository {
	return &pgVoteRepository{logger: logger.Named("PgVoteRepo")}
}

func (r *pgVoteRepository) Exists(ctx context.Context, querier interfaces.DBTX, chapterID uuid.UUID, voter models.VoterIdentity) (bool, error) {
	var exists bool
	if err := querier.QueryRow(ctx, voteExistsQuery, chapterID, voter.IP, voter.Session).Scan(&exists); err != nil {
		r.logger.Error("Failed to check vote existence", zap.String("chapterID", chapterID.String()), zap.Error(err))
		return false, fmt.Errorf("failed to check vote existence: %w", err)
	}
	return exists, nil
}

// Insert вставляет голос. Уникальное ограничение votes_chapter_voter_key - окончательный арбитр дубликатов.
func (r *pgVoteRepository) Insert(ctx context.Context, querier interfaces.DBTX, vote *models.Vote) error {
	logFields := []zap.Field{
		zap.String("chapterID", vote.ChapterID.String()),
		zap.String("optionID", vote.OptionID),
	}
	r.logger.Debug("Inserting vote", logFields...)

	_, err := querier.Exec(ctx, insertVoteQuery,
		vote.ID, vote.ChapterID, vote.VoterIP, vote.VoterSession, vote.OptionID, vote.CreatedAt)
	if err != nil {
		code, constraint := pgErrorCode(err)
		switch code {
		case pgUniqueViolation:
			r.logger.Warn("Duplicate vote (unique constraint violation)", append(logFields, zap.String("constraint", constraint))...)
			return models.ErrDuplicateVote
		case pgForeignKeyViolation:
			if constraint == "votes_option_fkey" {
				r.logger.Warn("Vote references unknown option (foreign key violation)", logFields...)
				return models.ErrInvalidOption
			}
			r.logger.Warn("Chapter not found (foreign key violation)", logFields...)
			return models.ErrNotFound
		}
		r.logger.Error("Failed to insert vote", append(logFields, zap.Error(err))...)
		return fmt.Errorf("failed to insert vote: %w", err)
	}
	return nil
}

func (r *pgVoteRepository) GetChoice(ctx context.Context, querier interfaces.DBTX, chapterID uuid.UUID, voter models.VoterIdentity) (*string, error) {
	var optionID string
	err := querier.QueryRow(ctx, getVoteChoiceQuery, chapterID, voter.IP, voter.Session).Scan(&optionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get vote choice", zap.String("chapterID", chapterID.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to get vote choice: %w", err)
	}
	return &optionID, nil
}

func (r *pgVoteRepository) CountByOption(ctx context.Context, querier interfaces.DBTX, chapterID uuid.UUID) (map[string]int64, error) {
	rows, err := querier.Query(ctx, countVotesByOptionQuery, chapterID)
	if err != nil {
		r.logger.Error("Failed to count votes", zap.String("chapterID", chapterID.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to count votes: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var optionID string
		var count int64
		if err := rows.Scan(&optionID, &count); err != nil {
			return nil, fmt.Errorf("failed to scan vote count: %w", err)
		}
		counts[optionID] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate vote counts: %w", err)
	}
	return counts, nil
}

package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"novel-vote-server/internal/interfaces"
	"novel-vote-server/internal/models"

	"go.uber.org/zap"
)

// Chainer создает следующую главу по завершенной записи генерации.
type Chainer struct {
	stories       interfaces.StoryRepository
	chapters      interfaces.ChapterRepository
	roundDuration time.Duration
	maxChapters   int
	logger        *zap.Logger
	now           func() time.Time
}

// NewChainer создает Chainer. maxChapters <= 0 означает бесконечную историю.
func NewChainer(stories interfaces.StoryRepository, chapters interfaces.ChapterRepository, roundDuration time.Duration, maxChapters int, logger *zap.Logger) *Chainer {
	return &Chainer{
		stories:       stories,
		chapters:      chapters,
		roundDuration: roundDuration,
		maxChapters:   maxChapters,
		logger:        logger.Named("Chainer"),
		now:           time.Now,
	}
}

// IsFinal сообщает, станет ли глава с номером sequence последней в истории.
func (c *Chainer) IsFinal(sequence int) bool {
	return c.maxChapters > 0 && sequence >= c.maxChapters
}

// Chain вставляет новую главу внутри транзакции завершения записи.
// Запись должна быть completed и иметь заранее выделенный ResultChapterID.
// Глава-источник переводится closed -> generated, история получает новую текущую главу.
func (c *Chainer) Chain(ctx context.Context, tx interfaces.DBTX, record *models.GenerationRecord) (*models.Chapter, error) {
	if record.Status != models.GenerationStatusCompleted || record.Output == nil || record.ResultChapterID == nil {
		return nil, fmt.Errorf("%w: only completed records with output can be chained (record %s is %s)",
			models.ErrInvalidTransition, record.ID, record.Status)
	}

	maxSeq, err := c.chapters.MaxSequence(ctx, tx, record.StoryID)
	if err != nil {
		return nil, err
	}
	seq := maxSeq + 1
	final := c.IsFinal(seq)
	now := c.now().UTC()

	out := record.Output
	chapter := &models.Chapter{
		ID:             *record.ResultChapterID,
		StoryID:        record.StoryID,
		SequenceNumber: seq,
		Title:          out.Title,
		Body:           out.Body,
		Summary:        out.Summary,
		Tags:           out.Tags,
		VotingStatus:   models.VotingStatusOpen,
		CreatedAt:      now,
	}
	if chapter.Tags == nil {
		chapter.Tags = []string{}
	}
	if final {
		chapter.VotingStatus = models.VotingStatusClosed
	} else {
		chapter.Options = models.BuildOptions(chapter.ID, out.NextOptions)
		if c.roundDuration > 0 {
			deadline := now.Add(c.roundDuration)
			chapter.VotingDeadline = &deadline
		}
	}

	if err := c.chapters.Create(ctx, tx, chapter); err != nil {
		if errors.Is(err, models.ErrSequenceTaken) {
			// Номер занят главой, вставленной параллельно. Транзакция уже прервана, повторять нечего.
			c.logger.Warn("Chapter sequence taken concurrently, chaining aborted",
				zap.String("generationID", record.ID.String()),
				zap.String("storyID", record.StoryID.String()),
				zap.Int("sequence", seq),
			)
			return nil, fmt.Errorf("%w: story %s, sequence %d", models.ErrSequenceTaken, record.StoryID, seq)
		}
		return nil, err
	}
	if err := c.chapters.MarkGenerated(ctx, tx, record.SourceChapterID); err != nil {
		return nil, err
	}

	storyStatus := models.StoryStatusVoting
	if final {
		storyStatus = models.StoryStatusCompleted
	}
	current := chapter.ID
	if err := c.stories.UpdateStatus(ctx, tx, record.StoryID, storyStatus, &current); err != nil {
		return nil, err
	}

	c.logger.Info("Chapter chained",
		zap.String("generationID", record.ID.String()),
		zap.String("sourceChapterID", record.SourceChapterID.String()),
		zap.String("chapterID", chapter.ID.String()),
		zap.Int("sequence", seq),
		zap.Bool("final", final),
	)
	return chapter, nil
}


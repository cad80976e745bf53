package story

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"novel-vote-server/internal/interfaces"
	"novel-vote-server/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CreateStoryParams - данные для создания истории с первой главой.
type CreateStoryParams struct {
	Title   string
	Genre   string
	Opening OpeningChapter
	Options []models.OptionDraft
}

// OpeningChapter - текст первой главы, заданный администратором.
type OpeningChapter struct {
	Title   string
	Body    string
	Summary string
	Tags    []string
}

// ChapterView - глава для чтения вместе с готовой иллюстрацией (если она есть).
type ChapterView struct {
	*models.Chapter
	Illustration *models.IllustrationRecord `json:"illustration,omitempty"`
}

// StoryView - история и ее текущая глава.
type StoryView struct {
	*models.Story
	CurrentChapter *models.Chapter `json:"current_chapter,omitempty"`
}

// Service управляет историями и выдачей глав.
type Service struct {
	tx            interfaces.Transactor
	stories       interfaces.StoryRepository
	chapters      interfaces.ChapterRepository
	illustrations interfaces.IllustrationRepository
	roundDuration time.Duration
	logger        *zap.Logger
	now           func() time.Time
}

// NewService создает сервис историй. illustrations может быть nil.
func NewService(
	tx interfaces.Transactor,
	stories interfaces.StoryRepository,
	chapters interfaces.ChapterRepository,
	illustrations interfaces.IllustrationRepository,
	roundDuration time.Duration,
	logger *zap.Logger,
) *Service {
	return &Service{
		tx:            tx,
		stories:       stories,
		chapters:      chapters,
		illustrations: illustrations,
		roundDuration: roundDuration,
		logger:        logger.Named("StoryService"),
		now:           time.Now,
	}
}

// CreateStory создает историю, первую главу с вариантами и открывает раунд голосования.
func (s *Service) CreateStory(ctx context.Context, params CreateStoryParams) (*models.Story, *models.Chapter, error) {
	if err := validateParams(params); err != nil {
		return nil, nil, err
	}

	now := s.now().UTC()
	chapterID := uuid.New()
	story := &models.Story{
		ID:               uuid.New(),
		Title:            strings.TrimSpace(params.Title),
		Genre:            strings.TrimSpace(params.Genre),
		Status:           models.StoryStatusVoting,
		CurrentChapterID: &chapterID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	chapter := &models.Chapter{
		ID:             chapterID,
		StoryID:        story.ID,
		SequenceNumber: 1,
		Title:          strings.TrimSpace(params.Opening.Title),
		Body:           params.Opening.Body,
		Summary:        params.Opening.Summary,
		Tags:           params.Opening.Tags,
		VotingStatus:   models.VotingStatusOpen,
		CreatedAt:      now,
		Options:        models.BuildOptions(chapterID, params.Options),
	}
	if s.roundDuration > 0 {
		deadline := now.Add(s.roundDuration)
		chapter.VotingDeadline = &deadline
	}
	if chapter.Tags == nil {
		chapter.Tags = []string{}
	}

	err := s.tx.WithTx(ctx, func(ctx context.Context, tx interfaces.DBTX) error {
		if err := s.stories.Create(ctx, tx, story); err != nil {
			return err
		}
		return s.chapters.Create(ctx, tx, chapter)
	})
	if err != nil {
		s.logger.Error("Failed to create story", zap.String("title", story.Title), zap.Error(err))
		return nil, nil, err
	}

	s.logger.Info("Story created",
		zap.String("storyID", story.ID.String()),
		zap.String("chapterID", chapter.ID.String()),
		zap.Int("options", len(chapter.Options)),
	)
	return story, chapter, nil
}

// GetStory возвращает историю и ее текущую главу.
func (s *Service) GetStory(ctx context.Context, id uuid.UUID) (*StoryView, error) {
	story, err := s.stories.GetByID(ctx, s.tx.DB(), id)
	if err != nil {
		return nil, err
	}
	view := &StoryView{Story: story}
	if story.CurrentChapterID != nil {
		chapter, err := s.chapters.GetByID(ctx, s.tx.DB(), *story.CurrentChapterID)
		if err != nil && !errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
		view.CurrentChapter = chapter
	}
	return view, nil
}

// GetChapter возвращает главу. Иллюстрация прикладывается только готовая: неудачная попытка читается как отсутствие.
func (s *Service) GetChapter(ctx context.Context, id uuid.UUID) (*ChapterView, error) {
	chapter, err := s.chapters.GetByID(ctx, s.tx.DB(), id)
	if err != nil {
		return nil, err
	}
	view := &ChapterView{Chapter: chapter}
	if s.illustrations == nil {
		return view, nil
	}
	ill, err := s.illustrations.Get(ctx, s.tx.DB(), id)
	switch {
	case err == nil:
		if ill.IsReady() {
			view.Illustration = ill
		}
	case errors.Is(err, models.ErrNotFound):
	default:
		// Иллюстрация необязательна, глава отдается без нее.
		s.logger.Warn("Failed to load chapter illustration", zap.String("chapterID", id.String()), zap.Error(err))
	}
	return view, nil
}

// ListChapters возвращает главы истории по порядку.
func (s *Service) ListChapters(ctx context.Context, storyID uuid.UUID) ([]*models.Chapter, error) {
	if _, err := s.stories.GetByID(ctx, s.tx.DB(), storyID); err != nil {
		return nil, err
	}
	chapters, err := s.chapters.ListByStory(ctx, s.tx.DB(), storyID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return []*models.Chapter{}, nil
		}
		return nil, err
	}
	return chapters, nil
}

func validateParams(p CreateStoryParams) error {
	if strings.TrimSpace(p.Title) == "" {
		return fmt.Errorf("%w: story title is required", models.ErrInvalidInput)
	}
	if strings.TrimSpace(p.Opening.Title) == "" || strings.TrimSpace(p.Opening.Body) == "" {
		return fmt.Errorf("%w: opening chapter title and body are required", models.ErrInvalidInput)
	}
	if len(p.Options) < 2 || len(p.Options) > len(models.DefaultOptionIDs) {
		return fmt.Errorf("%w: expected 2..%d options, got %d", models.ErrInvalidInput, len(models.DefaultOptionIDs), len(p.Options))
	}
	for i, opt := range p.Options {
		if strings.TrimSpace(opt.Label) == "" {
			return fmt.Errorf("%w: option %d has empty label", models.ErrInvalidInput, i+1)
		}
	}
	return nil
}

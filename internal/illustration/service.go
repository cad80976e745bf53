package illustration

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

// claimTTL - через сколько захват pending считается брошенным и может быть перехвачен.
const claimTTL = 10 * time.Minute

// Service иллюстрирует главы. Это побочный эффект: ошибки логируются,
// записываются как отсутствие иллюстрации и никогда не возвращаются вызывающему.
type Service struct {
	tx            interfaces.Transactor
	stories       interfaces.StoryRepository
	chapters      interfaces.ChapterRepository
	illustrations interfaces.IllustrationRepository
	images        interfaces.ImageGenerator
	store         interfaces.AssetStore
	style         string
	logger        *zap.Logger
	now           func() time.Time
}

// NewService создает сервис иллюстраций.
func NewService(
	tx interfaces.Transactor,
	stories interfaces.StoryRepository,
	chapters interfaces.ChapterRepository,
	illustrations interfaces.IllustrationRepository,
	images interfaces.ImageGenerator,
	store interfaces.AssetStore,
	style string,
	logger *zap.Logger,
) *Service {
	return &Service{
		tx:            tx,
		stories:       stories,
		chapters:      chapters,
		illustrations: illustrations,
		images:        images,
		store:         store,
		style:         style,
		logger:        logger.Named("IllustrationService"),
		now:           time.Now,
	}
}

// RequestIllustration генерирует и сохраняет иллюстрацию главы.
// Если готовая иллюстрация уже есть, ничего не делает и возвращает ее.
// Генерацию запускает только исполнитель, захвативший запись pending.
// Возвращает nil, если иллюстрацию получить не удалось.
func (s *Service) RequestIllustration(ctx context.Context, chapterID uuid.UUID) *models.IllustrationRecord {
	logFields := []zap.Field{zap.String("chapterID", chapterID.String())}

	existing, err := s.illustrations.Get(ctx, s.tx.DB(), chapterID)
	switch {
	case err == nil && existing.IsReady():
		s.logger.Debug("Chapter already illustrated, skipping", logFields...)
		metrics.IllustrationsTotal.WithLabelValues("skipped").Inc()
		return existing
	case err != nil && !errors.Is(err, models.ErrNotFound):
		s.logger.Warn("Failed to check existing illustration", append(logFields, zap.Error(err))...)
	}

	chapter, err := s.chapters.GetByID(ctx, s.tx.DB(), chapterID)
	if err != nil {
		// Главы нет или БД недоступна: записать результат некуда.
		s.logger.Warn("Cannot illustrate chapter", append(logFields, zap.Error(err))...)
		metrics.IllustrationsTotal.WithLabelValues("failed").Inc()
		return nil
	}

	now := s.now().UTC()
	claimed, err := s.illustrations.ClaimPending(ctx, s.tx.DB(), chapterID, s.style, now, now.Add(-claimTTL))
	if err != nil {
		s.logger.Warn("Failed to claim chapter illustration", append(logFields, zap.Error(err))...)
		metrics.IllustrationsTotal.WithLabelValues("failed").Inc()
		return nil
	}
	if !claimed {
		s.logger.Info("Chapter illustration is already in progress or ready, skipping", logFields...)
		metrics.IllustrationsTotal.WithLabelValues("skipped").Inc()
		return nil
	}

	genre := ""
	if story, err := s.stories.GetByID(ctx, s.tx.DB(), chapter.StoryID); err == nil {
		genre = story.Genre
	}

	url, err := s.generate(ctx, models.IllustrationRequest{
		ChapterID: chapter.ID,
		Title:     chapter.Title,
		Body:      chapter.Body,
		GenreHint: genre,
		Style:     s.style,
	})
	if err != nil {
		s.logger.Error("Chapter illustration failed", append(logFields, zap.Error(err))...)
		s.recordFailure(ctx, chapterID, err)
		metrics.IllustrationsTotal.WithLabelValues("failed").Inc()
		return nil
	}

	record := &models.IllustrationRecord{
		ChapterID:   chapterID,
		Status:      models.IllustrationStatusReady,
		AssetURL:    &url,
		Style:       s.style,
		GeneratedAt: s.now().UTC(),
	}
	if err := s.illustrations.Upsert(ctx, s.tx.DB(), record); err != nil {
		s.logger.Error("Failed to save chapter illustration", append(logFields, zap.Error(err))...)
		metrics.IllustrationsTotal.WithLabelValues("failed").Inc()
		return nil
	}
	metrics.IllustrationsTotal.WithLabelValues("ready").Inc()
	s.logger.Info("Chapter illustrated", append(logFields, zap.String("url", url))...)
	return record
}

func (s *Service) generate(ctx context.Context, req models.IllustrationRequest) (string, error) {
	if s.images == nil || s.store == nil {
		return "", fmt.Errorf("%w: illustration backend is not configured", models.ErrIllustrationFailed)
	}
	data, contentType, err := s.images.Generate(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", models.ErrIllustrationFailed, err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty image", models.ErrIllustrationFailed)
	}
	url, err := s.store.Put(ctx, objectKey(req.ChapterID, contentType), data, contentType)
	if err != nil {
		return "", fmt.Errorf("%w: upload: %w", models.ErrIllustrationFailed, err)
	}
	return url, nil
}

func (s *Service) recordFailure(ctx context.Context, chapterID uuid.UUID, cause error) {
	details := cause.Error()
	record := &models.IllustrationRecord{
		ChapterID:    chapterID,
		Status:       models.IllustrationStatusFailed,
		Style:        s.style,
		ErrorDetails: &details,
		GeneratedAt:  s.now().UTC(),
	}
	if err := s.illustrations.Upsert(ctx, s.tx.DB(), record); err != nil {
		s.logger.Warn("Failed to record illustration failure", zap.String("chapterID", chapterID.String()), zap.Error(err))
	}
}

// objectKey строит ключ объекта: illustrations/<chapterId>.<ext>.
func objectKey(chapterID uuid.UUID, contentType string) string {
	ext := ".jpg"
	switch contentType {
	case "image/png":
		ext = ".png"
	case "image/webp":
		ext = ".webp"
	}
	return fmt.Sprintf("illustrations/%s%s", chapterID, ext)
}

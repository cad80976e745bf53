package interfaces

import (
	"context"
	"time"

	"novel-vote-server/internal/models"

	"github.com/google/uuid"
)

// StoryRepository - доступ к историям.
//
//go:generate mockery --name StoryRepository --output ./mocks --outpkg mocks --case=underscore
type StoryRepository interface {
	Create(ctx context.Context, querier DBTX, story *models.Story) error
	// GetByID возвращает models.ErrNotFound, если истории нет.
	GetByID(ctx context.Context, querier DBTX, id uuid.UUID) (*models.Story, error)
	// UpdateStatus меняет статус и (если передан) текущую главу.
	UpdateStatus(ctx context.Context, querier DBTX, id uuid.UUID, status models.StoryStatus, currentChapterID *uuid.UUID) error
}

// ChapterRepository - доступ к главам и вариантам голосования.
//
//go:generate mockery --name ChapterRepository --output ./mocks --outpkg mocks --case=underscore
type ChapterRepository interface {
	// Create вставляет главу вместе с вариантами. models.ErrSequenceTaken, если номер главы в истории занят.
	Create(ctx context.Context, querier DBTX, chapter *models.Chapter) error
	GetByID(ctx context.Context, querier DBTX, id uuid.UUID) (*models.Chapter, error)
	// GetForVoting читает главу с блокировкой FOR SHARE, чтобы захват генерации
	// не проскочил между проверкой статуса и вставкой голоса.
	GetForVoting(ctx context.Context, querier DBTX, id uuid.UUID) (*models.Chapter, error)
	ListByStory(ctx context.Context, querier DBTX, storyID uuid.UUID) ([]*models.Chapter, error)
	// MaxSequence возвращает максимальный номер главы истории (0, если глав нет).
	MaxSequence(ctx context.Context, querier DBTX, storyID uuid.UUID) (int, error)
	// ClaimForGeneration атомарно переводит open -> closed. true только у одного вызывающего.
	ClaimForGeneration(ctx context.Context, querier DBTX, id uuid.UUID) (bool, error)
	// MarkGenerated переводит closed -> generated. Иначе models.ErrInvalidTransition.
	MarkGenerated(ctx context.Context, querier DBTX, id uuid.UUID) error
	// ListExpiredOpen возвращает открытые главы с истекшим дедлайном.
	ListExpiredOpen(ctx context.Context, querier DBTX, now time.Time, limit int) ([]uuid.UUID, error)
	// ExtendDeadline продлевает раунд открытой главы.
	ExtendDeadline(ctx context.Context, querier DBTX, id uuid.UUID, deadline time.Time) error
}

// VoteRepository - журнал голосов.
//
//go:generate mockery --name VoteRepository --output ./mocks --outpkg mocks --case=underscore
type VoteRepository interface {
	// Exists проверяет, голосовала ли идентичность за главу.
	Exists(ctx context.Context, querier DBTX, chapterID uuid.UUID, voter models.VoterIdentity) (bool, error)
	// Insert добавляет голос. models.ErrDuplicateVote при нарушении уникальности,
	// models.ErrNotFound при отсутствии главы.
	Insert(ctx context.Context, querier DBTX, vote *models.Vote) error
	// GetChoice возвращает выбранный вариант или nil.
	GetChoice(ctx context.Context, querier DBTX, chapterID uuid.UUID, voter models.VoterIdentity) (*string, error)
	// CountByOption считает голоса напрямую по журналу.
	CountByOption(ctx context.Context, querier DBTX, chapterID uuid.UUID) (map[string]int64, error)
}

// TallyRepository - агрегированные счетчики.
//
//go:generate mockery --name TallyRepository --output ./mocks --outpkg mocks --case=underscore
type TallyRepository interface {
	// Increment увеличивает счетчик варианта на 1. Вызывается в той же транзакции, что и вставка голоса.
	Increment(ctx context.Context, querier DBTX, chapterID uuid.UUID, optionID string) error
	GetByChapter(ctx context.Context, querier DBTX, chapterID uuid.UUID) ([]models.TallyRow, error)
}

// GenerationRecordRepository - аудит генераций.
//
//go:generate mockery --name GenerationRecordRepository --output ./mocks --outpkg mocks --case=underscore
type GenerationRecordRepository interface {
	// Create вставляет запись в статусе pending. models.ErrGenerationInFlight, если у главы-источника уже есть активная запись.
	Create(ctx context.Context, querier DBTX, record *models.GenerationRecord) error
	GetByID(ctx context.Context, querier DBTX, id uuid.UUID) (*models.GenerationRecord, error)
	GetLatestBySourceChapter(ctx context.Context, querier DBTX, chapterID uuid.UUID) (*models.GenerationRecord, error)
	// MarkProcessing: pending -> processing. false, если запись уже не pending.
	MarkProcessing(ctx context.Context, querier DBTX, id uuid.UUID, startedAt time.Time) (bool, error)
	// MarkCompleted: processing -> completed. models.ErrInvalidTransition, если статус другой.
	MarkCompleted(ctx context.Context, querier DBTX, id uuid.UUID, output *models.GenerationOutput, usage models.UsageInfo, resultChapterID uuid.UUID, completedAt time.Time) error
	// MarkFailed: processing -> failed. false, если запись не в статусе from;
	// недопустимый from дает models.ErrInvalidTransition.
	MarkFailed(ctx context.Context, querier DBTX, id uuid.UUID, from models.GenerationStatus, details string, usage models.UsageInfo, completedAt time.Time) (bool, error)
	// ListStale возвращает записи в статусе status, созданные (pending) или начатые (processing) раньше before.
	ListStale(ctx context.Context, querier DBTX, status models.GenerationStatus, before time.Time, limit int) ([]*models.GenerationRecord, error)
}

// IllustrationRepository - иллюстрации глав.
//
//go:generate mockery --name IllustrationRepository --output ./mocks --outpkg mocks --case=underscore
type IllustrationRepository interface {
	// Get возвращает models.ErrNotFound, если записи нет или генерация еще идет (pending).
	Get(ctx context.Context, querier DBTX, chapterID uuid.UUID) (*models.IllustrationRecord, error)
	// ClaimPending захватывает генерацию иллюстрации главы. false, если иллюстрация готова
	// или ее генерирует другой исполнитель, захвативший запись не раньше staleBefore.
	ClaimPending(ctx context.Context, querier DBTX, chapterID uuid.UUID, style string, claimedAt, staleBefore time.Time) (bool, error)
	// Upsert сохраняет результат. Готовую иллюстрацию неудачная попытка не перезаписывает.
	Upsert(ctx context.Context, querier DBTX, record *models.IllustrationRecord) error
}

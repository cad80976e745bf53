package interfaces

import (
	"context"

	"novel-vote-server/internal/models"

	"github.com/google/uuid"
)

// ContentGenerator - внешний генератор текста главы.
//
//go:generate mockery --name ContentGenerator --output ./mocks --outpkg mocks --case=underscore
type ContentGenerator interface {
	Generate(ctx context.Context, input models.GenerationInput, final bool) (*models.GenerationOutput, models.UsageInfo, error)
}

// ImageGenerator - внешний генератор иллюстраций. Возвращает байты изображения и content-type.
//
//go:generate mockery --name ImageGenerator --output ./mocks --outpkg mocks --case=underscore
type ImageGenerator interface {
	Generate(ctx context.Context, req models.IllustrationRequest) ([]byte, string, error)
}

// AssetStore - объектное хранилище для иллюстраций. Возвращает публичный URL.
//
//go:generate mockery --name AssetStore --output ./mocks --outpkg mocks --case=underscore
type AssetStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// GenerationDispatcher отправляет задачу генерации фоновому исполнителю.
//
//go:generate mockery --name GenerationDispatcher --output ./mocks --outpkg mocks --case=underscore
type GenerationDispatcher interface {
	DispatchGeneration(ctx context.Context, payload models.GenerationTaskPayload) error
}

// IllustrationDispatcher отправляет задачу иллюстрирования фоновому исполнителю.
//
//go:generate mockery --name IllustrationDispatcher --output ./mocks --outpkg mocks --case=underscore
type IllustrationDispatcher interface {
	DispatchIllustration(ctx context.Context, payload models.IllustrationTaskPayload) error
}

// TallyCache - кэш снимков счетчиков для опроса. Не является источником истины.
//
//go:generate mockery --name TallyCache --output ./mocks --outpkg mocks --case=underscore
type TallyCache interface {
	Get(ctx context.Context, chapterID uuid.UUID) (*models.Tallies, error)
	Set(ctx context.Context, chapterID uuid.UUID, tallies models.Tallies) error
	Invalidate(ctx context.Context, chapterID uuid.UUID) error
}

// VoterCooldown ограничивает частоту голосов одной идентичности (IP + сессия) за разные главы.
//
//go:generate mockery --name VoterCooldown --output ./mocks --outpkg mocks --case=underscore
type VoterCooldown interface {
	// Acquire возвращает false, если окно, открытое голосом за другую главу, еще не истекло.
	// Повтор за ту же главу не отклоняется: его разбирает журнал голосов.
	Acquire(ctx context.Context, voter models.VoterIdentity, chapterID uuid.UUID) (bool, error)
	// Release снимает окно, только если его открыла эта глава.
	Release(ctx context.Context, voter models.VoterIdentity, chapterID uuid.UUID) error
}

package mocks

import (
	"context"
	"time"

	"novel-vote-server/internal/interfaces"
	"novel-vote-server/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockChapterRepository is a mock type for the ChapterRepository type
type MockChapterRepository struct {
	mock.Mock
}

// Create provides a mock function with given fields: ctx, querier, chapter
func (_m *MockChapterRepository) Create(ctx context.Context, querier interfaces.DBTX, chapter *models.Chapter) error {
	ret := _m.Called(ctx, querier, chapter)
	return ret.Error(0)
}

// GetByID provides a mock function with given fields: ctx, querier, id
func (_m *MockChapterRepository) GetByID(ctx context.Context, querier interfaces.DBTX, id uuid.UUID) (*models.Chapter, error) {
	ret := _m.Called(ctx, querier, id)
	var r0 *models.Chapter
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*models.Chapter)
	}
	return r0, ret.Error(1)
}

// GetForVoting provides a mock function with given fields: ctx, querier, id
func (_m *MockChapterRepository) GetForVoting(ctx context.Context, querier interfaces.DBTX, id uuid.UUID) (*models.Chapter, error) {
	ret := _m.Called(ctx, querier, id)
	var r0 *models.Chapter
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*models.Chapter)
	}
	return r0, ret.Error(1)
}

// ListByStory provides a mock function with given fields: ctx, querier, storyID
func (_m *MockChapterRepository) ListByStory(ctx context.Context, querier interfaces.DBTX, storyID uuid.UUID) ([]*models.Chapter, error) {
	ret := _m.Called(ctx, querier, storyID)
	var r0 []*models.Chapter
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]*models.Chapter)
	}
	return r0, ret.Error(1)
}

// MaxSequence provides a mock function with given fields: ctx, querier, storyID
func (_m *MockChapterRepository) MaxSequence(ctx context.Context, querier interfaces.DBTX, storyID uuid.UUID) (int, error) {
	ret := _m.Called(ctx, querier, storyID)
	return ret.Int(0), ret.Error(1)
}

// ClaimForGeneration provides a mock function with given fields: ctx, querier, id
func (_m *MockChapterRepository) ClaimForGeneration(ctx context.Context, querier interfaces.DBTX, id uuid.UUID) (bool, error) {
	ret := _m.Called(ctx, querier, id)
	return ret.Bool(0), ret.Error(1)
}

// MarkGenerated provides a mock function with given fields: ctx, querier, id
func (_m *MockChapterRepository) MarkGenerated(ctx context.Context, querier interfaces.DBTX, id uuid.UUID) error {
	ret := _m.Called(ctx, querier, id)
	return ret.Error(0)
}

// ListExpiredOpen provides a mock function with given fields: ctx, querier, now, limit
func (_m *MockChapterRepository) ListExpiredOpen(ctx context.Context, querier interfaces.DBTX, now time.Time, limit int) ([]uuid.UUID, error) {
	ret := _m.Called(ctx, querier, now, limit)
	var r0 []uuid.UUID
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]uuid.UUID)
	}
	return r0, ret.Error(1)
}

// ExtendDeadline provides a mock function with given fields: ctx, querier, id, deadline
func (_m *MockChapterRepository) ExtendDeadline(ctx context.Context, querier interfaces.DBTX, id uuid.UUID, deadline time.Time) error {
	ret := _m.Called(ctx, querier, id, deadline)
	return ret.Error(0)
}

// NewMockChapterRepository creates a new instance of MockChapterRepository and registers expectation assertions on cleanup.
func NewMockChapterRepository(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockChapterRepository {
	m := &MockChapterRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var _ interfaces.ChapterRepository = (*MockChapterRepository)(nil)

package mocks

import (
	"context"

	"novel-vote-server/internal/interfaces"
	"novel-vote-server/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockStoryRepository is a mock type for the StoryRepository type
type MockStoryRepository struct {
	mock.Mock
}

// Create provides a mock function with given fields: ctx, querier, story
func (_m *MockStoryRepository) Create(ctx context.Context, querier interfaces.DBTX, story *models.Story) error {
	ret := _m.Called(ctx, querier, story)
	return ret.Error(0)
}

// GetByID provides a mock function with given fields: ctx, querier, id
func (_m *MockStoryRepository) GetByID(ctx context.Context, querier interfaces.DBTX, id uuid.UUID) (*models.Story, error) {
	ret := _m.Called(ctx, querier, id)
	var r0 *models.Story
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*models.Story)
	}
	return r0, ret.Error(1)
}

// UpdateStatus provides a mock function with given fields: ctx, querier, id, status, currentChapterID
func (_m *MockStoryRepository) UpdateStatus(ctx context.Context, querier interfaces.DBTX, id uuid.UUID, status models.StoryStatus, currentChapterID *uuid.UUID) error {
	ret := _m.Called(ctx, querier, id, status, currentChapterID)
	return ret.Error(0)
}

// NewMockStoryRepository creates a new instance of MockStoryRepository and registers expectation assertions on cleanup.
func NewMockStoryRepository(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockStoryRepository {
	m := &MockStoryRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var _ interfaces.StoryRepository = (*MockStoryRepository)(nil)

package mocks

import (
	"context"

	"novel-vote-server/internal/interfaces"
	"novel-vote-server/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockTallyRepository is a mock type for the TallyRepository type
type MockTallyRepository struct {
	mock.Mock
}

// Increment provides a mock function with given fields: ctx, querier, chapterID, optionID
func (_m *MockTallyRepository) Increment(ctx context.Context, querier interfaces.DBTX, chapterID uuid.UUID, optionID string) error {
	ret := _m.Called(ctx, querier, chapterID, optionID)
	return ret.Error(0)
}

// GetByChapter provides a mock function with given fields: ctx, querier, chapterID
func (_m *MockTallyRepository) GetByChapter(ctx context.Context, querier interfaces.DBTX, chapterID uuid.UUID) ([]models.TallyRow, error) {
	ret := _m.Called(ctx, querier, chapterID)
	var r0 []models.TallyRow
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]models.TallyRow)
	}
	return r0, ret.Error(1)
}

// NewMockTallyRepository creates a new instance of MockTallyRepository and registers expectation assertions on cleanup.
func NewMockTallyRepository(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockTallyRepository {
	m := &MockTallyRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var _ interfaces.TallyRepository = (*MockTallyRepository)(nil)

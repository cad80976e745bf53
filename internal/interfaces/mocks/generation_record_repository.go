package mocks

import (
	"context"
	"time"

	"novel-vote-server/internal/interfaces"
	"novel-vote-server/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockGenerationRecordRepository is a mock type for the GenerationRecordRepository type
type MockGenerationRecordRepository struct {
	mock.Mock
}

// Create provides a mock function with given fields: ctx, querier, record
func (_m *MockGenerationRecordRepository) Create(ctx context.Context, querier interfaces.DBTX, record *models.GenerationRecord) error {
	ret := _m.Called(ctx, querier, record)
	return ret.Error(0)
}

// GetByID provides a mock function with given fields: ctx, querier, id
func (_m *MockGenerationRecordRepository) GetByID(ctx context.Context, querier interfaces.DBTX, id uuid.UUID) (*models.GenerationRecord, error) {
	ret := _m.Called(ctx, querier, id)
	var r0 *models.GenerationRecord
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*models.GenerationRecord)
	}
	return r0, ret.Error(1)
}

// GetLatestBySourceChapter provides a mock function with given fields: ctx, querier, chapterID
func (_m *MockGenerationRecordRepository) GetLatestBySourceChapter(ctx context.Context, querier interfaces.DBTX, chapterID uuid.UUID) (*models.GenerationRecord, error) {
	ret := _m.Called(ctx, querier, chapterID)
	var r0 *models.GenerationRecord
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*models.GenerationRecord)
	}
	return r0, ret.Error(1)
}

// MarkProcessing provides a mock function with given fields: ctx, querier, id, startedAt
func (_m *MockGenerationRecordRepository) MarkProcessing(ctx context.Context, querier interfaces.DBTX, id uuid.UUID, startedAt time.Time) (bool, error) {
	ret := _m.Called(ctx, querier, id, startedAt)
	return ret.Bool(0), ret.Error(1)
}

// MarkCompleted provides a mock function with given fields: ctx, querier, id, output, usage, resultChapterID, completedAt
func (_m *MockGenerationRecordRepository) MarkCompleted(ctx context.Context, querier interfaces.DBTX, id uuid.UUID, output *models.GenerationOutput, usage models.UsageInfo, resultChapterID uuid.UUID, completedAt time.Time) error {
	ret := _m.Called(ctx, querier, id, output, usage, resultChapterID, completedAt)
	return ret.Error(0)
}

// MarkFailed provides a mock function with given fields: ctx, querier, id, from, details, usage, completedAt
func (_m *MockGenerationRecordRepository) MarkFailed(ctx context.Context, querier interfaces.DBTX, id uuid.UUID, from models.GenerationStatus, details string, usage models.UsageInfo, completedAt time.Time) (bool, error) {
	ret := _m.Called(ctx, querier, id, from, details, usage, completedAt)
	return ret.Bool(0), ret.Error(1)
}

// ListStale provides a mock function with given fields: ctx, querier, status, before, limit
func (_m *MockGenerationRecordRepository) ListStale(ctx context.Context, querier interfaces.DBTX, status models.GenerationStatus, before time.Time, limit int) ([]*models.GenerationRecord, error) {
	ret := _m.Called(ctx, querier, status, before, limit)
	var r0 []*models.GenerationRecord
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]*models.GenerationRecord)
	}
	return r0, ret.Error(1)
}

// NewMockGenerationRecordRepository creates a new instance of MockGenerationRecordRepository and registers expectation assertions on cleanup.
func NewMockGenerationRecordRepository(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockGenerationRecordRepository {
	m := &MockGenerationRecordRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var _ interfaces.GenerationRecordRepository = (*MockGenerationRecordRepository)(nil)

package mocks

import (
	"context"
	"time"

	"novel-vote-server/internal/interfaces"
	"novel-vote-server/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockIllustrationRepository is a mock type for the IllustrationRepository type
type MockIllustrationRepository struct {
	mock.Mock
}

// Get provides a mock function with given fields: ctx, querier, chapterID
func (_m *MockIllustrationRepository) Get(ctx context.Context, querier interfaces.DBTX, chapterID uuid.UUID) (*models.IllustrationRecord, error) {
	ret := _m.Called(ctx, querier, chapterID)
	var r0 *models.IllustrationRecord
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*models.IllustrationRecord)
	}
	return r0, ret.Error(1)
}

// ClaimPending provides a mock function with given fields: ctx, querier, chapterID, style, claimedAt, staleBefore
func (_m *MockIllustrationRepository) ClaimPending(ctx context.Context, querier interfaces.DBTX, chapterID uuid.UUID, style string, claimedAt time.Time, staleBefore time.Time) (bool, error) {
	ret := _m.Called(ctx, querier, chapterID, style, claimedAt, staleBefore)
	return ret.Bool(0), ret.Error(1)
}

// Upsert provides a mock function with given fields: ctx, querier, record
func (_m *MockIllustrationRepository) Upsert(ctx context.Context, querier interfaces.DBTX, record *models.IllustrationRecord) error {
	ret := _m.Called(ctx, querier, record)
	return ret.Error(0)
}

// NewMockIllustrationRepository creates a new instance of MockIllustrationRepository and registers expectation assertions on cleanup.
func NewMockIllustrationRepository(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockIllustrationRepository {
	m := &MockIllustrationRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var _ interfaces.IllustrationRepository = (*MockIllustrationRepository)(nil)

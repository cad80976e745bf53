package mocks

import (
	"context"

	"novel-vote-server/internal/interfaces"
	"novel-vote-server/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockVoteRepository is a mock type for the VoteRepository type
type MockVoteRepository struct {
	mock.Mock
}

// Exists provides a mock function with given fields: ctx, querier, chapterID, voter
func (_m *MockVoteRepository) Exists(ctx context.Context, querier interfaces.DBTX, chapterID uuid.UUID, voter models.VoterIdentity) (bool, error) {
	ret := _m.Called(ctx, querier, chapterID, voter)
	return ret.Bool(0), ret.Error(1)
}

// Insert provides a mock function with given fields: ctx, querier, vote
func (_m *MockVoteRepository) Insert(ctx context.Context, querier interfaces.DBTX, vote *models.Vote) error {
	ret := _m.Called(ctx, querier, vote)
	return ret.Error(0)
}

// GetChoice provides a mock function with given fields: ctx, querier, chapterID, voter
func (_m *MockVoteRepository) GetChoice(ctx context.Context, querier interfaces.DBTX, chapterID uuid.UUID, voter models.VoterIdentity) (*string, error) {
	ret := _m.Called(ctx, querier, chapterID, voter)
	var r0 *string
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*string)
	}
	return r0, ret.Error(1)
}

// CountByOption provides a mock function with given fields: ctx, querier, chapterID
func (_m *MockVoteRepository) CountByOption(ctx context.Context, querier interfaces.DBTX, chapterID uuid.UUID) (map[string]int64, error) {
	ret := _m.Called(ctx, querier, chapterID)
	var r0 map[string]int64
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(map[string]int64)
	}
	return r0, ret.Error(1)
}

// NewMockVoteRepository creates a new instance of MockVoteRepository and registers expectation assertions on cleanup.
func NewMockVoteRepository(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockVoteRepository {
	m := &MockVoteRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var _ interfaces.VoteRepository = (*MockVoteRepository)(nil)

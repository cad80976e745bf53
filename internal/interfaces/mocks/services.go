package mocks

import (
	"context"

	"novel-vote-server/internal/interfaces"
	"novel-vote-server/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

type testingT interface {
	mock.TestingT
	Cleanup(func())
}

// MockContentGenerator is a mock type for the ContentGenerator type
type MockContentGenerator struct {
	mock.Mock
}

// Generate provides a mock function with given fields: ctx, input, final
func (_m *MockContentGenerator) Generate(ctx context.Context, input models.GenerationInput, final bool) (*models.GenerationOutput, models.UsageInfo, error) {
	ret := _m.Called(ctx, input, final)
	if rf, ok := ret.Get(0).(func(context.Context, models.GenerationInput, bool) (*models.GenerationOutput, models.UsageInfo, error)); ok {
		return rf(ctx, input, final)
	}
	var r0 *models.GenerationOutput
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*models.GenerationOutput)
	}
	return r0, ret.Get(1).(models.UsageInfo), ret.Error(2)
}

// NewMockContentGenerator creates a new instance of MockContentGenerator.
func NewMockContentGenerator(t testingT) *MockContentGenerator {
	m := &MockContentGenerator{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// MockImageGenerator is a mock type for the ImageGenerator type
type MockImageGenerator struct {
	mock.Mock
}

// Generate provides a mock function with given fields: ctx, req
func (_m *MockImageGenerator) Generate(ctx context.Context, req models.IllustrationRequest) ([]byte, string, error) {
	ret := _m.Called(ctx, req)
	var r0 []byte
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]byte)
	}
	return r0, ret.String(1), ret.Error(2)
}

// NewMockImageGenerator creates a new instance of MockImageGenerator.
func NewMockImageGenerator(t testingT) *MockImageGenerator {
	m := &MockImageGenerator{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// MockAssetStore is a mock type for the AssetStore type
type MockAssetStore struct {
	mock.Mock
}

// Put provides a mock function with given fields: ctx, key, data, contentType
func (_m *MockAssetStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	ret := _m.Called(ctx, key, data, contentType)
	return ret.String(0), ret.Error(1)
}

// NewMockAssetStore creates a new instance of MockAssetStore.
func NewMockAssetStore(t testingT) *MockAssetStore {
	m := &MockAssetStore{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// MockGenerationDispatcher is a mock type for the GenerationDispatcher type
type MockGenerationDispatcher struct {
	mock.Mock
}

// DispatchGeneration provides a mock function with given fields: ctx, payload
func (_m *MockGenerationDispatcher) DispatchGeneration(ctx context.Context, payload models.GenerationTaskPayload) error {
	ret := _m.Called(ctx, payload)
	return ret.Error(0)
}

// NewMockGenerationDispatcher creates a new instance of MockGenerationDispatcher.
func NewMockGenerationDispatcher(t testingT) *MockGenerationDispatcher {
	m := &MockGenerationDispatcher{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// MockIllustrationDispatcher is a mock type for the IllustrationDispatcher type
type MockIllustrationDispatcher struct {
	mock.Mock
}

// DispatchIllustration provides a mock function with given fields: ctx, payload
func (_m *MockIllustrationDispatcher) DispatchIllustration(ctx context.Context, payload models.IllustrationTaskPayload) error {
	ret := _m.Called(ctx, payload)
	return ret.Error(0)
}

// NewMockIllustrationDispatcher creates a new instance of MockIllustrationDispatcher.
func NewMockIllustrationDispatcher(t testingT) *MockIllustrationDispatcher {
	m := &MockIllustrationDispatcher{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// MockTallyCache is a mock type for the TallyCache type
type MockTallyCache struct {
	mock.Mock
}

// Get provides a mock function with given fields: ctx, chapterID
func (_m *MockTallyCache) Get(ctx context.Context, chapterID uuid.UUID) (*models.Tallies, error) {
	ret := _m.Called(ctx, chapterID)
	var r0 *models.Tallies
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*models.Tallies)
	}
	return r0, ret.Error(1)
}

// Set provides a mock function with given fields: ctx, chapterID, tallies
func (_m *MockTallyCache) Set(ctx context.Context, chapterID uuid.UUID, tallies models.Tallies) error {
	ret := _m.Called(ctx, chapterID, tallies)
	return ret.Error(0)
}

// Invalidate provides a mock function with given fields: ctx, chapterID
func (_m *MockTallyCache) Invalidate(ctx context.Context, chapterID uuid.UUID) error {
	ret := _m.Called(ctx, chapterID)
	return ret.Error(0)
}

// NewMockTallyCache creates a new instance of MockTallyCache.
func NewMockTallyCache(t testingT) *MockTallyCache {
	m := &MockTallyCache{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// MockVoterCooldown is a mock type for the VoterCooldown type
type MockVoterCooldown struct {
	mock.Mock
}

// Acquire provides a mock function with given fields: ctx, voter, chapterID
func (_m *MockVoterCooldown) Acquire(ctx context.Context, voter models.VoterIdentity, chapterID uuid.UUID) (bool, error) {
	ret := _m.Called(ctx, voter, chapterID)
	return ret.Bool(0), ret.Error(1)
}

// Release provides a mock function with given fields: ctx, voter, chapterID
func (_m *MockVoterCooldown) Release(ctx context.Context, voter models.VoterIdentity, chapterID uuid.UUID) error {
	ret := _m.Called(ctx, voter, chapterID)
	return ret.Error(0)
}

// NewMockVoterCooldown creates a new instance of MockVoterCooldown.
func NewMockVoterCooldown(t testingT) *MockVoterCooldown {
	m := &MockVoterCooldown{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var (
	_ interfaces.ContentGenerator       = (*MockContentGenerator)(nil)
	_ interfaces.ImageGenerator         = (*MockImageGenerator)(nil)
	_ interfaces.AssetStore             = (*MockAssetStore)(nil)
	_ interfaces.GenerationDispatcher   = (*MockGenerationDispatcher)(nil)
	_ interfaces.IllustrationDispatcher = (*MockIllustrationDispatcher)(nil)
	_ interfaces.TallyCache             = (*MockTallyCache)(nil)
	_ interfaces.VoterCooldown          = (*MockVoterCooldown)(nil)
)

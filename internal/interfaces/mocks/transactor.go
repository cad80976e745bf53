package mocks

import (
	"context"

	"novel-vote-server/internal/interfaces"

	"github.com/stretchr/testify/mock"
)

// MockTransactor is a mock type for the Transactor type.
// By default WithTx runs fn with the configured querier and returns its error.
type MockTransactor struct {
	mock.Mock
	Querier interfaces.DBTX
}

// WithTx provides a mock function with given fields: ctx, fn
func (_m *MockTransactor) WithTx(ctx context.Context, fn func(ctx context.Context, tx interfaces.DBTX) error) error {
	if len(_m.ExpectedCalls) == 0 {
		return fn(ctx, _m.Querier)
	}
	ret := _m.Called(ctx, fn)
	if rf, ok := ret.Get(0).(func(context.Context, func(context.Context, interfaces.DBTX) error) error); ok {
		return rf(ctx, fn)
	}
	return ret.Error(0)
}

// DB provides the configured querier.
func (_m *MockTransactor) DB() interfaces.DBTX {
	return _m.Querier
}

// NewMockTransactor creates a transactor that runs callbacks inline.
func NewMockTransactor(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockTransactor {
	m := &MockTransactor{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var _ interfaces.Transactor = (*MockTransactor)(nil)

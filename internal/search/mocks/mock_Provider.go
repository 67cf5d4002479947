// Package mocks provides test doubles for search providers.
package mocks

import (
	"context"

	mock "github.com/stretchr/testify/mock"
)

// MockProvider is a mock type for the search.Provider interface.
type MockProvider struct {
	mock.Mock
}

// Name provides a mock function with given fields:
func (_m *MockProvider) Name() string {
	ret := _m.Called()

	if len(ret) == 0 {
		return "mock"
	}
	return ret.String(0)
}

// Search provides a mock function with given fields: ctx, query
func (_m *MockProvider) Search(ctx context.Context, query string) (string, error) {
	ret := _m.Called(ctx, query)

	if len(ret) == 0 {
		panic("no return value specified for Search")
	}

	if rf, ok := ret.Get(0).(func(context.Context, string) (string, error)); ok {
		return rf(ctx, query)
	}
	return ret.String(0), ret.Error(1)
}

// NewMockProvider creates a new instance of MockProvider.
func NewMockProvider(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockProvider {
	m := &MockProvider{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}

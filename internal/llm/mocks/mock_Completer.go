// Package mocks provides test doubles for language-model completers.
package mocks

import (
	"context"

	mock "github.com/stretchr/testify/mock"
)

// MockCompleter is a mock type for the llm.Completer interface.
type MockCompleter struct {
	mock.Mock
}

// Name provides a mock function with given fields:
func (_m *MockCompleter) Name() string {
	ret := _m.Called()

	if len(ret) == 0 {
		return "mock"
	}
	return ret.String(0)
}

// Complete provides a mock function with given fields: ctx, system, prompt
func (_m *MockCompleter) Complete(ctx context.Context, system string, prompt string) (string, error) {
	ret := _m.Called(ctx, system, prompt)

	if len(ret) == 0 {
		panic("no return value specified for Complete")
	}

	if rf, ok := ret.Get(0).(func(context.Context, string, string) (string, error)); ok {
		return rf(ctx, system, prompt)
	}
	return ret.String(0), ret.Error(1)
}

// NewMockCompleter creates a new instance of MockCompleter.
func NewMockCompleter(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockCompleter {
	m := &MockCompleter{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}

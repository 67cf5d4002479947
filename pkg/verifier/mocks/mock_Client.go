// Package mocks provides test doubles for the verifier client.
package mocks

import (
	"context"

	mock "github.com/stretchr/testify/mock"

	verifier "github.com/sells-group/lead-enricher/pkg/verifier"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// Verify provides a mock function with given fields: ctx, email
func (_m *MockClient) Verify(ctx context.Context, email string) (*verifier.Result, error) {
	ret := _m.Called(ctx, email)

	if len(ret) == 0 {
		panic("no return value specified for Verify")
	}

	var r0 *verifier.Result
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string) (*verifier.Result, error)); ok {
		return rf(ctx, email)
	}
	if rf, ok := ret.Get(0).(func(context.Context, string) *verifier.Result); ok {
		r0 = rf(ctx, email)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*verifier.Result)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, string) error); ok {
		r1 = rf(ctx, email)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NewMockClient creates a new instance of MockClient.
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	m := &MockClient{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}

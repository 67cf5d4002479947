package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/lead-enricher/internal/model"
	"github.com/sells-group/lead-enricher/internal/resolver"
)

// --- Domain finder mock ---

type mockDomainFinder struct {
	mock.Mock
}

func (m *mockDomainFinder) Resolve(ctx context.Context, company string) (resolver.DomainResult, error) {
	args := m.Called(ctx, company)
	return args.Get(0).(resolver.DomainResult), args.Error(1)
}

// --- Executive finder mock ---

type mockExecutiveFinder struct {
	mock.Mock
}

func (m *mockExecutiveFinder) Resolve(ctx context.Context, company, domain string) (resolver.ExecutiveResult, error) {
	args := m.Called(ctx, company, domain)
	return args.Get(0).(resolver.ExecutiveResult), args.Error(1)
}

// --- Email finder mock ---

type mockEmailFinder struct {
	mock.Mock
}

func (m *mockEmailFinder) Resolve(ctx context.Context, firstName, lastName, domain string) (resolver.EmailResult, error) {
	args := m.Called(ctx, firstName, lastName, domain)
	return args.Get(0).(resolver.EmailResult), args.Error(1)
}

// --- Starter mock ---

type mockStarter struct {
	mock.Mock
}

func (m *mockStarter) Start(ctx context.Context, leads []model.Lead) error {
	args := m.Called(ctx, leads)
	return args.Error(0)
}

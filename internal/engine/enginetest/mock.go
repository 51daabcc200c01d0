// Package enginetest provides a testify mock of engine.Engine.
package enginetest

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/gmaxsoft/elasticsearch-project/internal/domain"
	"github.com/gmaxsoft/elasticsearch-project/internal/engine"
)

// MockEngine is a testify mock implementing engine.Engine.
type MockEngine struct {
	mock.Mock
}

var _ engine.Engine = (*MockEngine)(nil)

func (m *MockEngine) BulkIndex(ctx context.Context, docs []domain.IndexDocument) (*engine.BulkResult, error) {
	args := m.Called(ctx, docs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*engine.BulkResult), args.Error(1)
}

func (m *MockEngine) Query(ctx context.Context, q *engine.MultiMatchQuery) ([]engine.Hit, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]engine.Hit), args.Error(1)
}

func (m *MockEngine) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockEngine) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockEngine) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

package handler

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/toeirei/cachesweep/internal/core"
	"github.com/toeirei/cachesweep/internal/model"
)

// mockHostService implements HostService for handler tests.
type mockHostService struct {
	mock.Mock
}

func (m *mockHostService) CreateHost(ctx context.Context, in core.HostInput) (string, error) {
	args := m.Called(ctx, in)
	return args.String(0), args.Error(1)
}

func (m *mockHostService) UpdateHost(ctx context.Context, id string, in core.HostInput) error {
	return m.Called(ctx, id, in).Error(0)
}

func (m *mockHostService) DeleteHost(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockHostService) GetHost(ctx context.Context, id string) (*model.Host, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Host), args.Error(1)
}

func (m *mockHostService) ListHosts(ctx context.Context) ([]model.HostSummary, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.HostSummary), args.Error(1)
}

func (m *mockHostService) History(ctx context.Context, hostID string, limit int) ([]model.ClearRun, error) {
	args := m.Called(ctx, hostID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ClearRun), args.Error(1)
}

func (m *mockHostService) TestConnection(ctx context.Context, id string) (core.ConnResult, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(core.ConnResult), args.Error(1)
}

func (m *mockHostService) TriggerClear(hostID string) error {
	return m.Called(hostID).Error(0)
}

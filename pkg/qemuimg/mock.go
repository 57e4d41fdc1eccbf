package qemuimg

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockClient is a testify mock of Adapter for tests that must not run
// qemu-img.
type MockClient struct {
	mock.Mock
}

var _ Adapter = (*MockClient)(nil)

// NewMockClient creates a MockClient.
func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) CreateDisk(ctx context.Context, path string, sizeGB int, format string) error {
	args := m.Called(ctx, path, sizeGB, format)
	return args.Error(0)
}

func (m *MockClient) ConvertDisk(ctx context.Context, src, dst, format string) error {
	args := m.Called(ctx, src, dst, format)
	return args.Error(0)
}

func (m *MockClient) DeleteDisk(ctx context.Context, path string) error {
	args := m.Called(ctx, path)
	return args.Error(0)
}

func (m *MockClient) DiskInfo(ctx context.Context, path string) (*Info, error) {
	args := m.Called(ctx, path)
	info, _ := args.Get(0).(*Info)
	return info, args.Error(1)
}

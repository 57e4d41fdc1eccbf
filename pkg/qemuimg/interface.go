package qemuimg

import "context"

// Adapter is the set of disk operations the manager needs.
type Adapter interface {
	CreateDisk(ctx context.Context, path string, sizeGB int, format string) error
	ConvertDisk(ctx context.Context, src, dst, format string) error
	DeleteDisk(ctx context.Context, path string) error
	DiskInfo(ctx context.Context, path string) (*Info, error)
}

var _ Adapter = (*Client)(nil)

package vm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/javanstorm/qemumgr/pkg/qemuimg"
)

// DiskOptions bound what the disk service accepts.
type DiskOptions struct {
	MaxSizeGB       int
	RestrictedPaths []string
}

// DiskService validates disk requests, runs them through qemu-img and keeps
// the disk store in step.
type DiskService struct {
	img    qemuimg.Adapter
	store  *DiskStore
	opts   DiskOptions
	logger zerolog.Logger
}

// NewDiskService creates a disk service.
func NewDiskService(img qemuimg.Adapter, store *DiskStore, opts DiskOptions, logger zerolog.Logger) *DiskService {
	if opts.MaxSizeGB <= 0 {
		opts.MaxSizeGB = 2000
	}
	return &DiskService{img: img, store: store, opts: opts, logger: logger}
}

// restricted reports whether path may not hold a new image. The root
// entry only covers files placed directly in "/".
func (s *DiskService) restricted(path string) bool {
	for _, r := range s.opts.RestrictedPaths {
		r = filepath.Clean(r)
		if r == string(filepath.Separator) {
			if filepath.Dir(path) == r {
				return true
			}
			continue
		}
		if path == r || strings.HasPrefix(path, r+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func (s *DiskService) checkTarget(path string) (string, error) {
	if path == "" {
		return "", &ValidationError{Field: "path", Message: "must not be empty"}
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", &ValidationError{Field: "path", Message: err.Error()}
	}
	if s.restricted(abs) {
		return "", &ValidationError{Field: "path", Message: fmt.Sprintf("%s is in a restricted location", abs)}
	}
	info, err := os.Stat(filepath.Dir(abs))
	if err != nil || !info.IsDir() {
		return "", &ValidationError{Field: "path", Message: fmt.Sprintf("directory %s does not exist", filepath.Dir(abs))}
	}
	return abs, nil
}

// Create makes a new image of sizeGB gigabytes and records it.
func (s *DiskService) Create(ctx context.Context, path string, sizeGB int, format DiskFormat) (*VirtualDisk, error) {
	if sizeGB < 1 || sizeGB > s.opts.MaxSizeGB {
		return nil, &ValidationError{Field: "size_gb", Message: fmt.Sprintf("%d is outside 1..%d", sizeGB, s.opts.MaxSizeGB)}
	}
	if !format.Valid() {
		return nil, &ValidationError{Field: "format", Message: fmt.Sprintf("unknown format %q", format)}
	}
	abs, err := s.checkTarget(path)
	if err != nil {
		return nil, err
	}

	if free, err := FreeSpace(filepath.Dir(abs)); err == nil && uint64(sizeGB)<<30 > free {
		s.logger.Warn().Str("path", abs).Int("size_gb", sizeGB).Uint64("free_bytes", free).
			Msg("disk is larger than the free space; it will fail once the guest fills it")
	}

	if err := s.img.CreateDisk(ctx, abs, sizeGB, string(format)); err != nil {
		return nil, err
	}

	d := VirtualDisk{Path: abs, SizeGB: sizeGB, Format: format}
	if err := s.store.Put(d); err != nil {
		return nil, err
	}
	s.logger.Info().Str("path", abs).Int("size_gb", sizeGB).Str("format", string(format)).Msg("disk created")
	return s.store.Get(abs)
}

// Convert writes src to dst in format and records dst.
func (s *DiskService) Convert(ctx context.Context, src, dst string, format DiskFormat) (*VirtualDisk, error) {
	if !format.Valid() {
		return nil, &ValidationError{Field: "format", Message: fmt.Sprintf("unknown format %q", format)}
	}
	absDst, err := s.checkTarget(dst)
	if err != nil {
		return nil, err
	}
	absSrc, err := filepath.Abs(src)
	if err != nil {
		return nil, &ValidationError{Field: "source", Message: err.Error()}
	}

	if err := s.img.ConvertDisk(ctx, absSrc, absDst, string(format)); err != nil {
		return nil, err
	}

	d := VirtualDisk{Path: absDst, Format: format}
	if info, err := s.img.DiskInfo(ctx, absDst); err == nil {
		d.SizeGB = info.SizeGB()
	} else if src, err := s.store.Get(absSrc); err == nil {
		d.SizeGB = src.SizeGB
	}
	if err := s.store.Put(d); err != nil {
		return nil, err
	}
	s.logger.Info().Str("src", absSrc).Str("dst", absDst).Str("format", string(format)).Msg("disk converted")
	return s.store.Get(absDst)
}

// Delete removes the image and its record. A record without an image is
// still dropped.
func (s *DiskService) Delete(ctx context.Context, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return &ValidationError{Field: "path", Message: err.Error()}
	}

	imgErr := s.img.DeleteDisk(ctx, abs)
	if imgErr != nil && !errors.Is(imgErr, qemuimg.ErrNotExist) {
		return imgErr
	}

	err = s.store.Delete(abs)
	switch {
	case err == nil:
	case errors.Is(err, ErrDiskNotFound) && imgErr == nil:
	case errors.Is(err, ErrDiskNotFound):
		return imgErr
	default:
		return err
	}
	s.logger.Info().Str("path", abs).Msg("disk deleted")
	return nil
}

// Info queries qemu-img for the image at path.
func (s *DiskService) Info(ctx context.Context, path string) (*qemuimg.Info, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, &ValidationError{Field: "path", Message: err.Error()}
	}
	return s.img.DiskInfo(ctx, abs)
}

// Import records an existing image, taking its format and size from
// qemu-img.
func (s *DiskService) Import(ctx context.Context, path string) (*VirtualDisk, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, &ValidationError{Field: "path", Message: err.Error()}
	}
	info, err := s.img.DiskInfo(ctx, abs)
	if err != nil {
		return nil, err
	}

	format := DiskFormat(info.Format)
	if !format.Valid() {
		return nil, &ValidationError{Field: "format", Message: fmt.Sprintf("unsupported image format %q", info.Format)}
	}

	d := VirtualDisk{Path: abs, SizeGB: info.SizeGB(), Format: format}
	if err := s.store.Put(d); err != nil {
		return nil, err
	}
	return s.store.Get(abs)
}

// List returns every recorded disk.
func (s *DiskService) List() ([]VirtualDisk, error) {
	return s.store.GetAll()
}

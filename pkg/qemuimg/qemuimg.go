package qemuimg

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// DefaultTimeout bounds a single qemu-img run. Conversions of large images
// can take minutes.
const DefaultTimeout = 300 * time.Second

// Client runs qemu-img.
type Client struct {
	path    string
	timeout time.Duration
}

// New creates a client. An empty path selects "qemu-img" from PATH.
func New(path string) *Client {
	if path == "" {
		path = "qemu-img"
	}
	return &Client{
		path:    path,
		timeout: DefaultTimeout,
	}
}

// WithTimeout sets the per-operation timeout.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	c.timeout = timeout
	return c
}

// Path returns the qemu-img binary in use.
func (c *Client) Path() string {
	return c.path
}

// CreateDisk creates an empty image of sizeGB gigabytes. It refuses to
// overwrite an existing file and creates the parent directory if needed.
func (c *Client) CreateDisk(ctx context.Context, path string, sizeGB int, format string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %s", ErrExists, path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create disk directory: %w", err)
	}

	if _, err := c.run(ctx, "create", path, "create", "-f", format, path, fmt.Sprintf("%dG", sizeGB)); err != nil {
		return err
	}

	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%w: %s", ErrNotCreated, path)
	}
	return nil
}

// ConvertDisk writes src to dst in the given output format. The input
// format is detected by qemu-img.
func (c *Client) ConvertDisk(ctx context.Context, src, dst, format string) error {
	if _, err := os.Stat(src); err != nil {
		return fmt.Errorf("%w: %s", ErrNotExist, src)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("create disk directory: %w", err)
	}

	_, err := c.run(ctx, "convert", src, "convert", "-O", format, src, dst)
	return err
}

// DeleteDisk removes an image file. A missing file is an error.
func (c *Client) DeleteDisk(_ context.Context, path string) error {
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotExist, path)
		}
		return fmt.Errorf("delete disk: %w", err)
	}
	return nil
}

// Info is the decoded output of "qemu-img info".
type Info struct {
	Filename    string `json:"filename"`
	Format      string `json:"format"`
	VirtualSize int64  `json:"virtual-size"`
	ActualSize  int64  `json:"actual-size"`
	Dirty       bool   `json:"dirty-flag"`

	// Raw is the unmodified tool output.
	Raw string `json:"-"`
}

// SizeGB returns the virtual size rounded up to whole gigabytes.
func (i *Info) SizeGB() int {
	const gb = 1 << 30
	return int((i.VirtualSize + gb - 1) / gb)
}

// DiskInfo describes an image.
func (c *Client) DiskInfo(ctx context.Context, path string) (*Info, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotExist, path)
	}

	out, err := c.run(ctx, "info", path, "info", "--output=json", path)
	if err != nil {
		return nil, err
	}

	info := &Info{Raw: string(out)}
	if err := json.Unmarshal(out, info); err != nil {
		return nil, fmt.Errorf("parse qemu-img info: %w", err)
	}
	return info, nil
}

// run executes qemu-img and returns stdout. Failures become a ToolError.
func (c *Client) run(ctx context.Context, op, path string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.path, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return nil, &ToolError{Op: op, Path: path, Stderr: stderr.String(), Err: err}
	}
	return stdout.Bytes(), nil
}

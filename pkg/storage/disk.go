package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Disk stores payloads as flat files below a root directory.
type Disk struct {
	root string
}

// NewDisk prepares the root directory and returns a disk backend.
func NewDisk(root string) (*Disk, error) {
	if root == "" {
		return nil, fmt.Errorf("attachment directory must not be empty")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("failed to prepare attachment directory: %w", err)
	}
	return &Disk{root: root}, nil
}

// Put streams r into a new file named key. A failed copy leaves no file behind.
func (d *Disk) Put(ctx context.Context, key string, r io.Reader) (int64, error) {
	if !validKey(key) {
		return 0, ErrInvalidKey
	}

	path := filepath.Join(d.root, key)
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return 0, fmt.Errorf("failed to create object: %w", err)
	}

	written, copyErr := io.Copy(file, contextReader{ctx: ctx, r: r})
	closeErr := file.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(path)
		if copyErr != nil {
			return written, fmt.Errorf("failed to write object: %w", copyErr)
		}
		return written, fmt.Errorf("failed to flush object: %w", closeErr)
	}

	return written, nil
}

// Open returns a reader over the stored payload.
func (d *Disk) Open(_ context.Context, key string) (io.ReadCloser, error) {
	if !validKey(key) {
		return nil, ErrInvalidKey
	}

	file, err := os.Open(filepath.Join(d.root, key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrObjectNotFound
		}
		return nil, err
	}
	return file, nil
}

// Delete removes the payload. Deleting a missing key is not an error.
func (d *Disk) Delete(_ context.Context, key string) error {
	if !validKey(key) {
		return ErrInvalidKey
	}
	if err := os.Remove(filepath.Join(d.root, key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

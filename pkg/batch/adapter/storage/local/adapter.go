// Package local implements storage on the local file system.
package local

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	storageAdapter "github.com/tigerroll/employee-import/pkg/batch/adapter/storage"
	"github.com/tigerroll/employee-import/pkg/batch/support/util/logger"
)

// ProviderType is the scheme served by this adapter.
const ProviderType = "file"

type localAdapter struct {
	baseDir string
	name    string
}

// Verify that localAdapter implements the storage.StorageConnection interface.
var _ storageAdapter.StorageConnection = (*localAdapter)(nil)

// NewLocalAdapter creates a local adapter. Relative object paths resolve against
// baseDir; an empty baseDir means the working directory.
func NewLocalAdapter(baseDir, name string) storageAdapter.StorageConnection {
	return &localAdapter{baseDir: baseDir, name: name}
}

func (a *localAdapter) Close() error {
	return nil
}

func (a *localAdapter) Type() string {
	return ProviderType
}

func (a *localAdapter) Name() string {
	return a.name
}

// Upload writes data to the file, creating parent directories. The bucket is ignored.
func (a *localAdapter) Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error {
	fullPath := a.resolvePath(objectName)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for '%s': %w", fullPath, err)
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return fmt.Errorf("failed to create file '%s': %w", fullPath, err)
	}
	if _, err := io.Copy(file, data); err != nil {
		_ = file.Close()
		return fmt.Errorf("failed to write data to file '%s': %w", fullPath, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close file '%s': %w", fullPath, err)
	}
	logger.Debugf("Wrote '%s' (local adapter '%s').", fullPath, a.name)
	return nil
}

// Download opens the file for reading. The bucket is ignored.
func (a *localAdapter) Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error) {
	fullPath := a.resolvePath(objectName)
	file, err := os.Open(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file '%s': %w", fullPath, err)
	}
	return file, nil
}

func (a *localAdapter) resolvePath(objectName string) string {
	if a.baseDir == "" || filepath.IsAbs(objectName) {
		return objectName
	}
	return filepath.Join(a.baseDir, objectName)
}

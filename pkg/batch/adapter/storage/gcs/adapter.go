// Package gcs implements storage on Google Cloud Storage.
package gcs

import (
	"context"
	"fmt"
	"io"
	"sync"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	storageAdapter "github.com/tigerroll/employee-import/pkg/batch/adapter/storage"
	"github.com/tigerroll/employee-import/pkg/batch/support/util/logger"
)

// ProviderType is the scheme served by this adapter.
const ProviderType = "gs"

// gcsAdapter creates its client on first use, so configurations without gs://
// locations never need credentials.
type gcsAdapter struct {
	name            string
	credentialsFile string

	once      sync.Once
	client    *storage.Client
	clientErr error
}

// Verify that gcsAdapter implements the storage.StorageConnection interface.
var _ storageAdapter.StorageConnection = (*gcsAdapter)(nil)

// NewGCSAdapter creates the adapter. An empty credentialsFile uses application default credentials.
func NewGCSAdapter(credentialsFile, name string) storageAdapter.StorageConnection {
	return &gcsAdapter{name: name, credentialsFile: credentialsFile}
}

func (a *gcsAdapter) getClient(ctx context.Context) (*storage.Client, error) {
	a.once.Do(func() {
		var opts []option.ClientOption
		if a.credentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(a.credentialsFile))
		}
		a.client, a.clientErr = storage.NewClient(context.WithoutCancel(ctx), opts...)
		if a.clientErr == nil {
			logger.Debugf("GCS client for adapter '%s' created.", a.name)
		}
	})
	if a.clientErr != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", a.clientErr)
	}
	return a.client, nil
}

func (a *gcsAdapter) Close() error {
	if a.client != nil {
		return a.client.Close()
	}
	return nil
}

func (a *gcsAdapter) Type() string {
	return ProviderType
}

func (a *gcsAdapter) Name() string {
	return a.name
}

// Upload implements storage.StorageConnection.
func (a *gcsAdapter) Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error {
	client, err := a.getClient(ctx)
	if err != nil {
		return err
	}
	w := client.Bucket(bucket).Object(objectName).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, data); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to upload gs://%s/%s: %w", bucket, objectName, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize gs://%s/%s: %w", bucket, objectName, err)
	}
	logger.Debugf("Uploaded gs://%s/%s.", bucket, objectName)
	return nil
}

// Download implements storage.StorageConnection.
func (a *gcsAdapter) Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error) {
	client, err := a.getClient(ctx)
	if err != nil {
		return nil, err
	}
	r, err := client.Bucket(bucket).Object(objectName).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open gs://%s/%s: %w", bucket, objectName, err)
	}
	return r, nil
}

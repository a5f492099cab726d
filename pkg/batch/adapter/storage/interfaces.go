// Package storage abstracts where input files come from and where exports go.
// Locations are URIs: a plain path or file:// for the local file system,
// gs://bucket/object for Google Cloud Storage.
package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	coreAdapter "github.com/tigerroll/employee-import/pkg/batch/core/adapter"
)

// StorageConnection reads and writes objects on one backend.
type StorageConnection interface {
	coreAdapter.ResourceConnection // Inherits Close(), Type(), Name()

	// Upload stores data as bucket/objectName.
	Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error
	// Download opens bucket/objectName. The caller closes the reader.
	Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error)
}

// Location is a parsed storage URI.
type Location struct {
	Scheme string // "file" or "gs"
	Bucket string // empty for local files
	Object string
}

func (l Location) String() string {
	if l.Scheme == "file" {
		return l.Object
	}
	return fmt.Sprintf("%s://%s/%s", l.Scheme, l.Bucket, l.Object)
}

// ParseURI parses a storage location.
func ParseURI(uri string) (Location, error) {
	if uri == "" {
		return Location{}, fmt.Errorf("empty storage location")
	}
	if !strings.Contains(uri, "://") {
		return Location{Scheme: "file", Object: uri}, nil
	}
	u, err := url.Parse(uri)
	if err != nil {
		return Location{}, fmt.Errorf("invalid storage location '%s': %w", uri, err)
	}
	switch u.Scheme {
	case "file":
		return Location{Scheme: "file", Object: u.Path}, nil
	case "gs":
		object := strings.TrimPrefix(u.Path, "/")
		if u.Host == "" || object == "" {
			return Location{}, fmt.Errorf("storage location '%s' must look like gs://bucket/object", uri)
		}
		return Location{Scheme: "gs", Bucket: u.Host, Object: object}, nil
	default:
		return Location{}, fmt.Errorf("unsupported storage scheme '%s' in '%s'", u.Scheme, uri)
	}
}

// Opener dispatches URIs to the connection registered for their scheme.
type Opener struct {
	connections map[string]StorageConnection
}

// NewOpener creates an Opener. Each connection serves the scheme equal to its Type().
func NewOpener(connections ...StorageConnection) *Opener {
	m := make(map[string]StorageConnection, len(connections))
	for _, c := range connections {
		m[c.Type()] = c
	}
	return &Opener{connections: m}
}

func (o *Opener) connection(loc Location) (StorageConnection, error) {
	conn, ok := o.connections[loc.Scheme]
	if !ok {
		return nil, fmt.Errorf("no storage connection for scheme '%s'", loc.Scheme)
	}
	return conn, nil
}

// Open opens uri for reading.
func (o *Opener) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	loc, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	conn, err := o.connection(loc)
	if err != nil {
		return nil, err
	}
	return conn.Download(ctx, loc.Bucket, loc.Object)
}

// Write stores the content of data at uri.
func (o *Opener) Write(ctx context.Context, uri string, data io.Reader, contentType string) error {
	loc, err := ParseURI(uri)
	if err != nil {
		return err
	}
	conn, err := o.connection(loc)
	if err != nil {
		return err
	}
	return conn.Upload(ctx, loc.Bucket, loc.Object, data, contentType)
}

// Close closes every connection.
func (o *Opener) Close() error {
	var firstErr error
	for _, c := range o.connections {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

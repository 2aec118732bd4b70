package blob

import (
	"context"
	"errors"
)

// ErrNotFound is returned by DownloadAll when the object does not exist.
var ErrNotFound = errors.New("blob not found")

// Store is the durable cold-tier object store. Objects are write-once:
// nothing in this service ever overwrites an existing key.
type Store interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	DownloadAll(ctx context.Context, key string) ([]byte, error)

	// DeleteFolder removes every object under prefix. Only the cascade
	// cleanup flow uses it.
	DeleteFolder(ctx context.Context, prefix string) error
}

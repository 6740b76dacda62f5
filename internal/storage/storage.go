package storage

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("object not found")

// ObjectStore is a flat key/value view of one bucket or directory.
type ObjectStore interface {
	List(ctx context.Context, prefix string) ([]string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// BucketEnsurer is implemented by stores that can create their container.
type BucketEnsurer interface {
	EnsureBucket(ctx context.Context) error
}

// Join builds an object key from slash separated parts, ignoring empty ones.
func Join(parts ...string) string {
	var keep []string
	for _, p := range parts {
		if p = strings.Trim(p, "/"); p != "" {
			keep = append(keep, p)
		}
	}
	return strings.Join(keep, "/")
}

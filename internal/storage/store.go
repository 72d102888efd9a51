// Package storage is the blob backend behind every persisted artifact. All
// state lives under logical pathnames of the form weeks/{weekKey}/{filename}
// and the backends only have to provide flat-key list/put/delete/get.
package storage

import (
	"context"
	"time"
)

// Object describes one stored blob.
type Object struct {
	Path       string // logical pathname
	Locator    string // backend handle accepted by Delete
	URL        string // retrieval locator handed to clients
	Size       int64
	ModifiedAt time.Time
}

// Store is the capability set every backend provides. List enumerates by
// key prefix and returns objects in key order; a prefix with no objects
// yields an empty slice, not an error.
type Store interface {
	List(ctx context.Context, prefix string) ([]Object, error)
	Put(ctx context.Context, path string, data []byte, contentType string) (Object, error)
	Delete(ctx context.Context, locator string) error
	Get(ctx context.Context, path string) ([]byte, error)
}

// Find resolves a logical pathname to its current object with a
// list-then-match, since backends may hold the content under a different
// locator than the pathname.
func Find(ctx context.Context, s Store, pathname string) (Object, bool, error) {
	objs, err := s.List(ctx, pathname)
	if err != nil {
		return Object{}, false, err
	}
	for _, o := range objs {
		if o.Path == pathname {
			return o, true, nil
		}
	}
	return Object{}, false, nil
}

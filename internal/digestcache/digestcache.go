// Package digestcache persists the SHA-256 digest of each source image so
// repeated verify runs don't re-hash an unchanged file. Entries are keyed by
// path, size and modification time; any change to any of the three is a
// cache miss.
package digestcache

import (
	"context"
	"fmt"
	"time"

	"janus/db"
)

// Entry is the cached record for one image file.
type Entry struct {
	Path       string    `json:"path"`
	Size       int64     `json:"size"`
	ModTime    time.Time `json:"mod_time"`
	Digest     string    `json:"digest"` // hex-encoded SHA-256
	ComputedAt time.Time `json:"computed_at"`
}

// Cache reads and writes Entry records through a generic bbolt-backed
// repository.
type Cache struct {
	repo *db.GenericRepository[*Entry]
}

// New creates a digest cache backed by the given database and bucket.
func New(database db.Database, bucket string) *Cache {
	return &Cache{repo: db.NewGenericRepository[*Entry](database, bucket)}
}

// key derives a stable repository key for a path+size+mtime combination.
// Changing any of the three yields a different key, which is exactly the
// invalidation policy we want: a stale entry is simply never looked up
// again, and a fresh Put replaces it.
func key(path string, size int64, modTime time.Time) string {
	return fmt.Sprintf("%s|%d|%d", path, size, modTime.UnixNano())
}

// Lookup returns the cached digest for path if its size and mtime still
// match what was cached, and false otherwise.
func (c *Cache) Lookup(ctx context.Context, path string, size int64, modTime time.Time) (string, bool) {
	entry, err := c.repo.Get(ctx, key(path, size, modTime))
	if err != nil {
		return "", false
	}
	return entry.Digest, true
}

// Put stores the digest computed for path at its current size/mtime.
func (c *Cache) Put(ctx context.Context, path string, size int64, modTime time.Time, digest string) error {
	entry := &Entry{
		Path:       path,
		Size:       size,
		ModTime:    modTime,
		Digest:     digest,
		ComputedAt: time.Now(),
	}
	return c.repo.Save(ctx, key(path, size, modTime), entry)
}

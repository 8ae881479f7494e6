// Package filestore defines the object storage interface the config loader
// reads from.
//
// Usage:
//
//	store, err := minio.New(ctx, &filestore.Config{Endpoint: "localhost:9000"})
//	if err != nil { ... }
//	defer store.Close()
//
//	loc, _ := filestore.ParseLocation("minio://configs/waaa.yaml")
//	raw, err := filestore.ReadAll(ctx, store, loc, filestore.DefaultMaxSize)
package filestore

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/koustreak/waaa/internal/errs"
)

// DefaultMaxSize caps how much ReadAll downloads.
const DefaultMaxSize = 1 << 20

// Store is the interface all object storage providers implement.
type Store interface {
	// Ping verifies the storage backend is reachable.
	Ping(ctx context.Context) error

	// Close releases any held resources.
	Close() error

	// GetObject opens a streaming handle to the object at key inside bucket.
	// The caller MUST call Object.Close() after reading.
	GetObject(ctx context.Context, bucket, key string) (Object, error)

	// StatObject returns metadata for the object without downloading it.
	StatObject(ctx context.Context, bucket, key string) (*ObjectInfo, error)
}

// Location names one object, e.g. minio://bucket/path/to/key.
type Location struct {
	Scheme string
	Bucket string
	Key    string
}

func (l Location) String() string {
	return fmt.Sprintf("%s://%s/%s", l.Scheme, l.Bucket, l.Key)
}

// IsLocation reports whether path looks like an object URI rather than a
// local file path.
func IsLocation(path string) bool {
	return strings.HasPrefix(path, string(ProviderMinIO)+"://")
}

// ParseLocation parses an object URI. Only the minio scheme is known.
func ParseLocation(raw string) (Location, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Location{}, errs.Wrap(errs.ErrKindInvalidInput, "invalid object location", err)
	}
	if u.Scheme != string(ProviderMinIO) {
		return Location{}, errs.Newf(errs.ErrKindInvalidInput, "unsupported object scheme %q", u.Scheme)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return Location{}, errs.Newf(errs.ErrKindInvalidInput, "object location %q needs a bucket and a key", raw)
	}
	return Location{Scheme: u.Scheme, Bucket: u.Host, Key: key}, nil
}

// ReadAll downloads the object at loc. Objects larger than limit are refused
// before any content is read.
func ReadAll(ctx context.Context, s Store, loc Location, limit int64) ([]byte, error) {
	info, err := s.StatObject(ctx, loc.Bucket, loc.Key)
	if err != nil {
		return nil, err
	}
	if limit > 0 && info.Size > limit {
		return nil, errs.Newf(errs.ErrKindInvalidInput, "object %s is %d bytes, limit is %d", loc, info.Size, limit)
	}

	obj, err := s.GetObject(ctx, loc.Bucket, loc.Key)
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	r := io.Reader(obj)
	if limit > 0 {
		r = io.LimitReader(obj, limit+1)
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "failed to read object "+loc.String(), err)
	}
	if limit > 0 && int64(len(b)) > limit {
		return nil, errs.Newf(errs.ErrKindInvalidInput, "object %s exceeds %d bytes", loc, limit)
	}
	return b, nil
}

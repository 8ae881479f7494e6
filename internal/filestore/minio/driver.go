// Package minio implements filestore.Store on a MinIO (or any S3
// compatible) server.
//
//	store, err := minio.New(ctx, &filestore.Config{Endpoint: "localhost:9000", AccessKey: "minioadmin", SecretKey: "minioadmin"})
//	if err != nil { ... }
//	defer store.Close()
//
//	raw, err := filestore.ReadAll(ctx, store, loc, filestore.DefaultMaxSize)
package minio

import (
	"context"
	"sync"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/koustreak/waaa/internal/errs"
	"github.com/koustreak/waaa/internal/filestore"
)

// Driver is safe for concurrent use.
type Driver struct {
	endpoint string
	client   *miniogo.Client
}

// New builds a client for cfg and checks that the server answers.
func New(ctx context.Context, cfg *filestore.Config) (*Driver, error) {
	d, err := newDriver(cfg)
	if err != nil {
		return nil, err
	}
	if err := d.Ping(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

func newDriver(cfg *filestore.Config) (*Driver, error) {
	if cfg == nil {
		return nil, errs.New(errs.ErrKindInvalidInput, "store config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "invalid store endpoint "+cfg.Endpoint, err)
	}
	return &Driver{endpoint: cfg.Endpoint, client: client}, nil
}

// Ping lists buckets, which fails fast on bad credentials as well as on an
// unreachable server.
func (d *Driver) Ping(ctx context.Context) error {
	if _, err := d.client.ListBuckets(ctx); err != nil {
		return mapError(err, "store "+d.endpoint+" is not reachable")
	}
	return nil
}

// Close is a no-op; the client keeps no sessions open.
func (d *Driver) Close() error { return nil }

// GetObject opens the object for streaming. Metadata is fetched on the
// first Info call, so callers that already ran StatObject pay nothing extra.
func (d *Driver) GetObject(ctx context.Context, bucket, key string) (filestore.Object, error) {
	obj, err := d.client.GetObject(ctx, bucket, key, miniogo.GetObjectOptions{})
	if err != nil {
		return nil, mapError(err, "failed to get "+bucket+"/"+key)
	}
	return &object{Object: obj, key: key}, nil
}

func (d *Driver) StatObject(ctx context.Context, bucket, key string) (*filestore.ObjectInfo, error) {
	stat, err := d.client.StatObject(ctx, bucket, key, miniogo.StatObjectOptions{})
	if err != nil {
		return nil, mapError(err, "failed to stat "+bucket+"/"+key)
	}
	return toInfo(key, stat), nil
}

func toInfo(key string, stat miniogo.ObjectInfo) *filestore.ObjectInfo {
	if stat.Key != "" {
		key = stat.Key
	}
	return &filestore.ObjectInfo{
		Key:          key,
		Size:         stat.Size,
		ETag:         stat.ETag,
		LastModified: stat.LastModified,
	}
}

type object struct {
	*miniogo.Object
	key string

	once sync.Once
	info *filestore.ObjectInfo
}

// Info returns the object's metadata, or Size -1 if the stat failed.
func (o *object) Info() *filestore.ObjectInfo {
	o.once.Do(func() {
		stat, err := o.Object.Stat()
		if err != nil {
			o.info = &filestore.ObjectInfo{Key: o.key, Size: -1}
			return
		}
		o.info = toInfo(o.key, stat)
	})
	return o.info
}

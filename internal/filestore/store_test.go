package filestore

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/waaa/internal/errs"
)

type memStore struct {
	objects map[string][]byte
	opened  int
}

func (m *memStore) Ping(ctx context.Context) error { return nil }
func (m *memStore) Close() error                   { return nil }

func (m *memStore) StatObject(ctx context.Context, bucket, key string) (*ObjectInfo, error) {
	b, ok := m.objects[bucket+"/"+key]
	if !ok {
		return nil, errs.Newf(errs.ErrKindNotFound, "no object %s/%s", bucket, key)
	}
	return &ObjectInfo{Key: key, Size: int64(len(b))}, nil
}

func (m *memStore) GetObject(ctx context.Context, bucket, key string) (Object, error) {
	info, err := m.StatObject(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	m.opened++
	return &memObject{Reader: bytes.NewReader(m.objects[bucket+"/"+key]), info: info}, nil
}

type memObject struct {
	io.Reader
	info *ObjectInfo
}

func (o *memObject) Close() error      { return nil }
func (o *memObject) Info() *ObjectInfo { return o.info }

func TestParseLocation(t *testing.T) {
	loc, err := ParseLocation("minio://configs/envs/prod.yaml")
	require.NoError(t, err)
	assert.Equal(t, Location{Scheme: "minio", Bucket: "configs", Key: "envs/prod.yaml"}, loc)
	assert.Equal(t, "minio://configs/envs/prod.yaml", loc.String())

	for _, bad := range []string{"s3://b/k", "minio://bucket", "minio:///key", "minio://bucket/"} {
		_, err := ParseLocation(bad)
		assert.True(t, errs.IsInvalidInput(err), bad)
	}

	assert.True(t, IsLocation("minio://b/k"))
	assert.False(t, IsLocation("./waaa.yaml"))
}

func TestReadAll(t *testing.T) {
	s := &memStore{objects: map[string][]byte{"configs/waaa.yaml": []byte("log: {level: debug}\n")}}

	b, err := ReadAll(context.Background(), s, Location{Bucket: "configs", Key: "waaa.yaml"}, DefaultMaxSize)
	require.NoError(t, err)
	assert.Equal(t, "log: {level: debug}\n", string(b))

	_, err = ReadAll(context.Background(), s, Location{Bucket: "configs", Key: "missing.yaml"}, DefaultMaxSize)
	assert.True(t, errs.IsNotFound(err))
}

func TestReadAll_TooLarge(t *testing.T) {
	s := &memStore{objects: map[string][]byte{"b/k": bytes.Repeat([]byte("x"), 64)}}

	_, err := ReadAll(context.Background(), s, Location{Bucket: "b", Key: "k"}, 16)
	require.Error(t, err)
	assert.True(t, errs.IsInvalidInput(err))
	assert.Zero(t, s.opened, "oversized objects are refused before download")
}

func TestConfig_Validate(t *testing.T) {
	cfg := &Config{Endpoint: "minio.local:9000"}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ProviderMinIO, cfg.Provider)

	assert.ErrorContains(t, (&Config{}).Validate(), "endpoint is required")
	assert.ErrorContains(t, (&Config{Endpoint: "https://minio.local"}).Validate(), "without a scheme")
	assert.ErrorContains(t, (&Config{Provider: "gcs", Endpoint: "x:1"}).Validate(), "unsupported store provider")
}

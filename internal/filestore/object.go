package filestore

import (
	"io"
	"time"
)

// ObjectInfo is what the loader needs to know about an object before
// downloading it.
type ObjectInfo struct {
	Key          string
	Size         int64 // -1 when the backend does not know
	ETag         string
	LastModified time.Time
}

// Object streams one object's content. Close it after reading.
type Object interface {
	io.ReadCloser
	Info() *ObjectInfo
}

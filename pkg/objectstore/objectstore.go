package objectstore

import (
	"fmt"
	"io"
)

// ObjectStore is the remote destination for exported file contents.
type ObjectStore interface {
	PutObject(bucket, key string, data io.ReadSeeker) error
	GetObject(bucket, key string) (io.ReadCloser, error)

	// ListObjects returns the keys in `bucket` beginning with `prefix`.
	ListObjects(bucket, prefix string) ([]string, error)
}

var (
	_ ObjectStore = (*S3ObjectStore)(nil)
	_ ObjectStore = (*GzipObjectStore)(nil)
)

type ObjectNotFoundErr struct {
	Bucket string
	Key    string
}

func (err *ObjectNotFoundErr) Error() string {
	return fmt.Sprintf("object not found: bucket `%s`, key `%s`", err.Bucket, err.Key)
}

package objectstore

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
)

// GzipObjectStore wraps another store so exported inode images travel
// compressed. The object key is recorded as the gzip member name.
type GzipObjectStore struct {
	ObjectStore

	// Level is the gzip compression level. Zero selects
	// `gzip.BestCompression`.
	Level int
}

func (store *GzipObjectStore) level() int {
	if store.Level == 0 {
		return gzip.BestCompression
	}
	return store.Level
}

func (store *GzipObjectStore) PutObject(
	bucket string,
	key string,
	data io.ReadSeeker,
) error {
	var compressed bytes.Buffer
	if err := store.compress(&compressed, key, data); err != nil {
		return fmt.Errorf(
			"compressing object for bucket `%s` at key `%s`: %w",
			bucket,
			key,
			err,
		)
	}
	return store.ObjectStore.PutObject(
		bucket,
		key,
		bytes.NewReader(compressed.Bytes()),
	)
}

func (store *GzipObjectStore) compress(
	dst io.Writer,
	name string,
	src io.Reader,
) error {
	w, err := gzip.NewWriterLevel(dst, store.level())
	if err != nil {
		return err
	}
	w.Name = name
	if _, err := io.Copy(w, src); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// GetObject returns a body that decompresses as it is read. Closing it
// closes the underlying object body.
func (store *GzipObjectStore) GetObject(
	bucket string,
	key string,
) (io.ReadCloser, error) {
	body, err := store.ObjectStore.GetObject(bucket, key)
	if err != nil {
		return nil, err
	}
	r, err := gzip.NewReader(body)
	if err != nil {
		body.Close()
		return nil, fmt.Errorf(
			"decompressing object from bucket `%s` at key `%s`: %w",
			bucket,
			key,
			err,
		)
	}
	return &gunzipBody{Reader: r, body: body}, nil
}

type gunzipBody struct {
	*gzip.Reader
	body io.ReadCloser
}

func (b *gunzipBody) Close() error {
	err := b.Reader.Close()
	if closeErr := b.body.Close(); err == nil {
		err = closeErr
	}
	return err
}

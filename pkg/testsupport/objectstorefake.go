package testsupport

import (
	"bytes"
	"io"
	"io/ioutil"
	"sort"
	"strings"

	"github.com/weberc2/sectorfs/pkg/objectstore"
)

// ObjectStoreFake is an in-memory object store keyed by bucket and key.
type ObjectStoreFake map[[2]string][]byte

func (osf ObjectStoreFake) PutObject(
	bucket string,
	key string,
	data io.ReadSeeker,
) error {
	var b bytes.Buffer
	if _, err := io.Copy(&b, data); err != nil {
		return err
	}
	osf[[2]string{bucket, key}] = b.Bytes()
	return nil
}

func (osf ObjectStoreFake) GetObject(
	bucket string,
	key string,
) (io.ReadCloser, error) {
	data, found := osf[[2]string{bucket, key}]
	if !found {
		return nil, &objectstore.ObjectNotFoundErr{Bucket: bucket, Key: key}
	}
	return ioutil.NopCloser(bytes.NewReader(data)), nil
}

// ListObjects returns the matching keys in lexical order, as S3 does.
func (osf ObjectStoreFake) ListObjects(
	bucket string,
	prefix string,
) ([]string, error) {
	var keys []string
	for k := range osf {
		if k[0] == bucket && strings.HasPrefix(k[1], prefix) {
			keys = append(keys, k[1])
		}
	}
	sort.Strings(keys)
	return keys, nil
}

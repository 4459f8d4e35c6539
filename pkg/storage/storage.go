// Package storage holds the blob stores that keep article images.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ImagePrefix is the folder every article image is stored under.
const ImagePrefix = "news-images"

// ErrObjectNotFound is returned by Delete when nothing is stored under the key.
var ErrObjectNotFound = errors.New("storage: object not found")

// Object describes a stored blob.
type Object struct {
	Key         string
	URL         string
	Size        int64
	ContentType string
}

// BlobStore uploads, addresses and deletes blobs.
type BlobStore interface {
	Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) (Object, error)
	URL(ctx context.Context, key string) (string, error)
	// Delete accepts either a key or a URL previously returned by the store.
	Delete(ctx context.Context, keyOrURL string) error
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ImageKey builds the object key for an uploaded image, e.g.
// news-images/1700000000000_9f86d081_cover.png. The random segment keeps
// uploads of the same name within one millisecond apart.
func ImageKey(filename string, now time.Time) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	name = unsafeName.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if name == "" {
		name = "image"
	}
	nonce := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s/%d_%s_%s", ImagePrefix, now.UnixMilli(), nonce, name)
}

// cleanKey rejects keys that would escape the store root.
func cleanKey(key string) (string, error) {
	key = strings.TrimLeft(strings.ReplaceAll(key, "\\", "/"), "/")
	if key == "" {
		return "", fmt.Errorf("storage: empty key")
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("storage: invalid key %q", key)
	}
	return cleaned, nil
}

package storage

import (
	"context"
	"errors"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImageKey(t *testing.T) {
	now := time.UnixMilli(1700000000123)

	cases := map[string]string{
		"cover.png":                       "cover.png",
		"C:\\Users\\me\\my photo (1).jpg": "my_photo_1_.jpg",
		"../../etc/passwd":                "passwd",
		"":                                "image",
	}
	for filename, want := range cases {
		key := ImageKey(filename, now)
		assert.Regexp(t, `^news-images/1700000000123_[0-9a-f]{8}_`+regexp.QuoteMeta(want)+`$`, key, filename)
	}
}

func TestImageKeyUniqueWithinMillisecond(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		key := ImageKey("cover.png", now)
		_, dup := seen[key]
		require.False(t, dup, "duplicate key %s", key)
		seen[key] = struct{}{}
	}
}

func TestLocalStorageRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewLocalStorage(dir, "http://localhost:8080/api/v1/media", NewSignedURLSigner("secret", 0))
	require.NoError(t, err)

	obj, err := store.Upload(ctx, "news-images/1_cover.png", strings.NewReader("png-bytes"), 9, "image/png")
	require.NoError(t, err)
	assert.Equal(t, "news-images/1_cover.png", obj.Key)
	assert.Equal(t, int64(9), obj.Size)
	assert.True(t, strings.HasPrefix(obj.URL, "http://localhost:8080/api/v1/media/"))

	token := obj.URL[strings.LastIndex(obj.URL, "/")+1:]
	file, key, err := store.Open(token)
	require.NoError(t, err)
	data, err := io.ReadAll(file)
	require.NoError(t, file.Close())
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))
	assert.Equal(t, obj.Key, key)

	require.NoError(t, store.Delete(ctx, obj.URL))
	_, err = os.Stat(filepath.Join(dir, "news-images", "1_cover.png"))
	assert.True(t, os.IsNotExist(err))

	err = store.Delete(ctx, obj.Key)
	assert.True(t, errors.Is(err, ErrObjectNotFound))
}

func TestLocalStorageRejectsEscapingKeys(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir(), "/media", NewSignedURLSigner("secret", 0))
	require.NoError(t, err)

	_, err = store.Upload(context.Background(), "../outside.png", strings.NewReader("x"), 1, "image/png")
	assert.Error(t, err)
	assert.Error(t, store.Delete(context.Background(), "../../etc/passwd"))
}

func TestKeyFromObjectURL(t *testing.T) {
	cases := map[string]string{
		"news-images/1_a.png": "news-images/1_a.png",
		"http://minio:9000/news-images/news-images/1_a.png":                     "news-images/1_a.png",
		"https://minio.test/news-images/news-images/1_a.png?X-Amz-Signature=ab": "news-images/1_a.png",
	}
	for in, want := range cases {
		got, err := keyFromObjectURL(in, "news-images")
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestObjectURL(t *testing.T) {
	endpoint, err := url.Parse("http://minio:9000")
	require.NoError(t, err)
	assert.Equal(t, "http://minio:9000/news-images/news-images/1_a.png", objectURL(endpoint, "news-images", "news-images/1_a.png"))
}

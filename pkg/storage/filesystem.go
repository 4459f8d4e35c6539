package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// LocalStorage persists blobs on disk under a base directory and addresses
// them through signed URLs served by the media handler.
type LocalStorage struct {
	baseDir    string
	publicBase string
	signer     *SignedURLSigner
}

// NewLocalStorage ensures the base directory exists and returns a handle.
// publicBase is the URL prefix the media handler is mounted on.
func NewLocalStorage(baseDir, publicBase string, signer *SignedURLSigner) (*LocalStorage, error) {
	if baseDir == "" {
		baseDir = "./media"
	}
	if signer == nil {
		return nil, fmt.Errorf("url signer required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create media directory: %w", err)
	}
	return &LocalStorage{
		baseDir:    baseDir,
		publicBase: strings.TrimRight(publicBase, "/"),
		signer:     signer,
	}, nil
}

// Upload copies r into the file for key and returns its signed URL.
func (s *LocalStorage) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) (Object, error) {
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}
	key, err := cleanKey(key)
	if err != nil {
		return Object{}, err
	}

	target := s.resolve(key)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return Object{}, fmt.Errorf("prepare media directory: %w", err)
	}
	file, err := os.Create(target)
	if err != nil {
		return Object{}, fmt.Errorf("create media file: %w", err)
	}
	written, err := io.Copy(file, r)
	closeErr := file.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(target)
		return Object{}, fmt.Errorf("write media file: %w", err)
	}

	link, err := s.URL(ctx, key)
	if err != nil {
		return Object{}, err
	}
	return Object{Key: key, URL: link, Size: written, ContentType: contentType}, nil
}

// URL returns the signed public URL of key.
func (s *LocalStorage) URL(_ context.Context, key string) (string, error) {
	token, _, err := s.signer.Sign(key)
	if err != nil {
		return "", fmt.Errorf("sign media url: %w", err)
	}
	return s.publicBase + "/" + token, nil
}

// Open resolves a signed token to a readable file.
func (s *LocalStorage) Open(token string) (*os.File, string, error) {
	key, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", err
	}
	key, err = cleanKey(key)
	if err != nil {
		return nil, "", err
	}
	file, err := os.Open(s.resolve(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, "", ErrObjectNotFound
		}
		return nil, "", fmt.Errorf("open media file: %w", err)
	}
	return file, key, nil
}

// Delete removes a stored file. A missing file yields ErrObjectNotFound.
func (s *LocalStorage) Delete(ctx context.Context, keyOrURL string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key, err := s.keyFor(keyOrURL)
	if err != nil {
		return err
	}
	if err := os.Remove(s.resolve(key)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrObjectNotFound
		}
		return fmt.Errorf("delete media file: %w", err)
	}
	return nil
}

func (s *LocalStorage) keyFor(keyOrURL string) (string, error) {
	if strings.Contains(keyOrURL, "://") || (s.publicBase != "" && strings.HasPrefix(keyOrURL, s.publicBase+"/")) {
		u, err := url.Parse(keyOrURL)
		if err != nil {
			return "", fmt.Errorf("parse media url: %w", err)
		}
		token := u.Path[strings.LastIndex(u.Path, "/")+1:]
		key, _, err := s.signer.Parse(token, true)
		if err != nil {
			return "", err
		}
		keyOrURL = key
	}
	return cleanKey(keyOrURL)
}

func (s *LocalStorage) resolve(key string) string {
	return filepath.Join(s.baseDir, filepath.FromSlash(key))
}

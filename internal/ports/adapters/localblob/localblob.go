// Package localblob stores clip artifacts under a directory that the API
// serves at /media.
package localblob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/forPelevin/tubebite/internal/ports"
)

var _ ports.BlobStore = (*Store)(nil)

type Store struct {
	root    string
	baseURL string
}

func New(root, publicBaseURL string) (*Store, error) {
	if root == "" {
		return nil, errors.New("localblob: root dir is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("localblob: create root: %w", err)
	}
	return &Store{root: root, baseURL: strings.TrimRight(publicBaseURL, "/")}, nil
}

func (s *Store) Root() string { return s.root }

// Put writes to a temp file next to the target and renames it into place.
func (s *Store) Put(ctx context.Context, key string, body io.Reader, _ string) (string, error) {
	dst, err := s.path(key)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("localblob put %s: %w", key, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".put-*")
	if err != nil {
		return "", fmt.Errorf("localblob put %s: %w", key, err)
	}
	_, err = io.Copy(tmp, body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp.Name(), dst)
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("localblob put %s: %w", key, err)
	}
	return s.baseURL + "/" + filepath.ToSlash(strings.TrimLeft(key, "/")), nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("localblob delete %s: %w", key, err)
	}
	return nil
}

func (s *Store) path(key string) (string, error) {
	clean := filepath.Clean("/" + filepath.FromSlash(key))
	if clean == string(filepath.Separator) {
		return "", fmt.Errorf("localblob: invalid key %q", key)
	}
	return filepath.Join(s.root, clean), nil
}

package localblob

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPutDelete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	root := t.TempDir()
	s, err := New(root, "http://localhost:8080/media/")
	require.NoError(t, err)

	url, err := s.Put(ctx, "media/clips/alice/run/clip_1.mp4", strings.NewReader("clip"), "video/mp4")
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8080/media/media/clips/alice/run/clip_1.mp4", url)

	b, err := os.ReadFile(filepath.Join(root, "media", "clips", "alice", "run", "clip_1.mp4"))
	require.NoError(t, err)
	require.Equal(t, "clip", string(b))

	entries, err := os.ReadDir(filepath.Join(root, "media", "clips", "alice", "run"))
	require.NoError(t, err)
	require.Len(t, entries, 1)

	require.NoError(t, s.Delete(ctx, "media/clips/alice/run/clip_1.mp4"))
	require.NoError(t, s.Delete(ctx, "media/clips/alice/run/clip_1.mp4"))
	_, err = os.Stat(filepath.Join(root, "media", "clips", "alice", "run", "clip_1.mp4"))
	require.True(t, os.IsNotExist(err))
}

func TestPut_KeyStaysUnderRoot(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	s, err := New(filepath.Join(root, "blobs"), "")
	require.NoError(t, err)

	_, err = s.Put(context.Background(), "../../escape.txt", strings.NewReader("x"), "text/plain")
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(root, "blobs", "escape.txt"))
	require.NoError(t, err)

	_, err = s.Put(context.Background(), "/", strings.NewReader("x"), "text/plain")
	require.Error(t, err)
}

//go:build integration

package pgstore_test

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/forPelevin/tubebite/internal/ports/adapters/pgstore"
	"github.com/forPelevin/tubebite/internal/types"
)

func TestStoreIntegration(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dsn, terminate := startPostgres(ctx, t)
	defer terminate()

	pool, err := pgstore.Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	applied, err := pgstore.Migrate(ctx, pool)
	require.NoError(t, err)
	require.Equal(t, []string{"migrations/0001_history.sql"}, applied)

	again, err := pgstore.Migrate(ctx, pool)
	require.NoError(t, err)
	require.Empty(t, again)

	store := pgstore.New(pool, zerolog.New(io.Discard))

	req := types.GenerationRequest{
		Source:      types.Source{Kind: types.SourceURL, URL: "https://www.youtube.com/watch?v=abc"},
		ClipCount:   2,
		Duration:    types.FixedDuration(30),
		AspectRatio: types.Ratio9x16,
		Subtitles:   true,
		Template:    "podcast",
	}
	id, err := store.CreateRun(ctx, "alice", req)
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Millisecond)
	second := types.GeneratedClip{ID: "c2", Index: 2, Title: "two", ThumbnailURL: "https://cdn/t2.jpg", CreatedAt: now}
	first := types.GeneratedClip{ID: "c1", Index: 1, Title: "one", CreatedAt: now}
	require.NoError(t, store.AppendClip(ctx, id, second))
	require.NoError(t, store.AppendClip(ctx, id, first))
	require.NoError(t, store.AppendClip(ctx, id, first))
	require.ErrorIs(t, store.AppendClip(ctx, "missing", first), types.ErrRunNotFound)

	require.NoError(t, store.MarkStatus(ctx, id, types.StatusCompleted, types.CategoryNone))

	it, err := store.GetRun(ctx, id)
	require.NoError(t, err)
	require.Equal(t, types.StatusCompleted, it.Status)
	require.Equal(t, types.FixedDuration(30), it.Settings.Duration)
	require.Len(t, it.Clips, 2)
	require.Equal(t, "c1", it.Clips[0].ID)
	require.Equal(t, id, it.Clips[0].RunID)
	require.Equal(t, "https://cdn/t2.jpg", it.SourceThumbnail)

	trashed, err := store.SoftDelete(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, trashed.DeletedAt)

	list, err := store.ListRuns(ctx, "alice")
	require.NoError(t, err)
	require.Empty(t, list.Active)
	require.Len(t, list.Trashed, 1)

	expired, err := store.ListExpired(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, []string{id}, expired)

	require.NoError(t, store.Restore(ctx, id))
	require.NoError(t, store.Purge(ctx, id))
	_, err = store.GetRun(ctx, id)
	require.ErrorIs(t, err, types.ErrRunNotFound)
	require.ErrorIs(t, store.Purge(ctx, id), types.ErrRunNotFound)
}

func startPostgres(ctx context.Context, t *testing.T) (string, func()) {
	t.Helper()

	dsnFor := func(host string, port nat.Port) string {
		return fmt.Sprintf("postgres://postgres:postgres@%s:%s/tubebite?sslmode=disable", host, port.Port())
	}
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_PASSWORD": "postgres",
			"POSTGRES_USER":     "postgres",
			"POSTGRES_DB":       "tubebite",
		},
		WaitingFor: wait.ForSQL("5432/tcp", "pgx", dsnFor).WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("skip history store integration test: cannot start postgres container: %v", err)
	}

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	cleanup := func() {
		termCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = container.Terminate(termCtx)
	}
	return dsnFor(host, port), cleanup
}

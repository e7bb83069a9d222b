// Package pgstore persists run history in PostgreSQL. Clips live in their
// own table and are joined onto runs when read.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/forPelevin/tubebite/internal/ports"
	"github.com/forPelevin/tubebite/internal/types"
)

var _ ports.HistoryStore = (*Store)(nil)

const foreignKeyViolation = "23503"

type Store struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

func New(pool *pgxpool.Pool, log zerolog.Logger) *Store {
	return &Store{pool: pool, log: log}
}

// Open connects a pool and verifies it with a ping.
func Open(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgstore: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgstore: ping: %w", err)
	}
	return pool, nil
}

const runColumns = `id, owner_id, source_kind, source_name, settings, status, error_category, created_at, updated_at, deleted_at`

func (s *Store) CreateRun(ctx context.Context, ownerID string, req types.GenerationRequest) (string, error) {
	req.Source.UploadPath = ""
	settings, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal settings: %w", err)
	}
	id := uuid.NewString()
	now := time.Now().UTC()
	_, err = s.pool.Exec(ctx, `
		INSERT INTO history_runs (`+runColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, '', $7, $7, NULL)`,
		id, ownerID, string(req.Source.Kind), req.Source.Name(), settings, string(types.StatusProcessing), now)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// AppendClip is idempotent by clip id.
func (s *Store) AppendClip(ctx context.Context, runID string, clip types.GeneratedClip) error {
	clip.RunID = runID
	payload, err := json.Marshal(clip)
	if err != nil {
		return fmt.Errorf("marshal clip: %w", err)
	}
	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO history_clips (id, run_id, idx, payload, created_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO NOTHING`,
			clip.ID, runID, clip.Index, payload, clip.CreatedAt.UTC())
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		_, err = tx.Exec(ctx, `UPDATE history_runs SET updated_at = now() WHERE id = $1`, runID)
		return err
	})
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
		return types.ErrRunNotFound
	}
	if err != nil {
		return fmt.Errorf("append clip: %w", err)
	}
	return nil
}

func (s *Store) MarkStatus(ctx context.Context, runID string, status types.RunStatus, cat types.ErrorCategory) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE history_runs SET status = $2, error_category = $3, updated_at = now()
		WHERE id = $1`, runID, string(status), string(cat))
	if err != nil {
		return fmt.Errorf("mark status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return types.ErrRunNotFound
	}
	return nil
}

func (s *Store) GetRun(ctx context.Context, runID string) (types.HistoryItem, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM history_runs WHERE id = $1`, runID)
	it, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return types.HistoryItem{}, types.ErrRunNotFound
	}
	if err != nil {
		return types.HistoryItem{}, fmt.Errorf("get run: %w", err)
	}
	items := []types.HistoryItem{it}
	if err := s.attachClips(ctx, items); err != nil {
		return types.HistoryItem{}, err
	}
	return items[0], nil
}

func (s *Store) ListRuns(ctx context.Context, ownerID string) (types.HistoryList, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+runColumns+` FROM history_runs
		WHERE owner_id = $1
		ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return types.HistoryList{}, fmt.Errorf("list runs: %w", err)
	}
	items, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (types.HistoryItem, error) { return scanRun(r) })
	if err != nil {
		return types.HistoryList{}, fmt.Errorf("list runs: %w", err)
	}
	if err := s.attachClips(ctx, items); err != nil {
		return types.HistoryList{}, err
	}

	out := types.HistoryList{Active: []types.HistoryItem{}, Trashed: []types.HistoryItem{}}
	for _, it := range items {
		if it.Trashed() {
			out.Trashed = append(out.Trashed, it)
		} else {
			out.Active = append(out.Active, it)
		}
	}
	return out, nil
}

func (s *Store) SoftDelete(ctx context.Context, runID string) (types.HistoryItem, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE history_runs
		SET deleted_at = COALESCE(deleted_at, now()), updated_at = now()
		WHERE id = $1
		RETURNING `+runColumns, runID)
	it, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return types.HistoryItem{}, types.ErrRunNotFound
	}
	if err != nil {
		return types.HistoryItem{}, fmt.Errorf("soft delete: %w", err)
	}
	items := []types.HistoryItem{it}
	if err := s.attachClips(ctx, items); err != nil {
		return types.HistoryItem{}, err
	}
	return items[0], nil
}

func (s *Store) Restore(ctx context.Context, runID string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE history_runs SET deleted_at = NULL, updated_at = now() WHERE id = $1`, runID)
	if err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return types.ErrRunNotFound
	}
	return nil
}

// Purge removes the run; its clips go with it through the cascade.
func (s *Store) Purge(ctx context.Context, runID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM history_runs WHERE id = $1`, runID)
	if err != nil {
		return fmt.Errorf("purge: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return types.ErrRunNotFound
	}
	return nil
}

func (s *Store) ListExpired(ctx context.Context, deletedBefore time.Time) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id FROM history_runs
		WHERE deleted_at IS NOT NULL AND deleted_at < $1
		ORDER BY id`, deletedBefore.UTC())
	if err != nil {
		return nil, fmt.Errorf("list expired: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list expired: %w", err)
	}
	return ids, nil
}

func (s *Store) attachClips(ctx context.Context, items []types.HistoryItem) error {
	if len(items) == 0 {
		return nil
	}
	ids := make([]string, len(items))
	byID := make(map[string]int, len(items))
	for i, it := range items {
		ids[i] = it.ID
		byID[it.ID] = i
		items[i].Clips = []types.GeneratedClip{}
	}
	rows, err := s.pool.Query(ctx, `
		SELECT run_id, payload FROM history_clips
		WHERE run_id = ANY($1)
		ORDER BY run_id, idx`, ids)
	if err != nil {
		return fmt.Errorf("load clips: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			runID   string
			payload []byte
			clip    types.GeneratedClip
		)
		if err := rows.Scan(&runID, &payload); err != nil {
			return fmt.Errorf("scan clip: %w", err)
		}
		if err := json.Unmarshal(payload, &clip); err != nil {
			s.log.Warn().Err(err).Str("run_id", runID).Msg("skipping unreadable clip row")
			continue
		}
		i := byID[runID]
		items[i].Clips = append(items[i].Clips, clip)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("load clips: %w", err)
	}
	for i := range items {
		items[i].OrderClips()
	}
	return nil
}

func scanRun(row pgx.Row) (types.HistoryItem, error) {
	var (
		it       types.HistoryItem
		kind     string
		status   string
		cat      string
		settings []byte
	)
	if err := row.Scan(&it.ID, &it.OwnerID, &kind, &it.SourceName, &settings, &status, &cat, &it.CreatedAt, &it.UpdatedAt, &it.DeletedAt); err != nil {
		return types.HistoryItem{}, err
	}
	it.SourceKind = types.SourceKind(kind)
	it.Status = types.RunStatus(status)
	it.ErrorCategory = types.ErrorCategory(cat)
	if err := json.Unmarshal(settings, &it.Settings); err != nil {
		return types.HistoryItem{}, fmt.Errorf("decode settings: %w", err)
	}
	return it, nil
}

// Package memstore keeps run history in process memory.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/forPelevin/tubebite/internal/ports"
	"github.com/forPelevin/tubebite/internal/types"
)

var _ ports.HistoryStore = (*Store)(nil)

type Store struct {
	mu   sync.RWMutex
	runs map[string]*types.HistoryItem
	now  func() time.Time
}

func New() *Store {
	return &Store{runs: map[string]*types.HistoryItem{}, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock replaces the time source; used by tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) CreateRun(_ context.Context, ownerID string, req types.GenerationRequest) (string, error) {
	id := uuid.NewString()
	now := s.now()
	req.Source.UploadPath = ""

	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[id] = &types.HistoryItem{
		ID:         id,
		OwnerID:    ownerID,
		SourceKind: req.Source.Kind,
		SourceName: req.Source.Name(),
		Settings:   req,
		Status:     types.StatusProcessing,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return id, nil
}

// AppendClip ignores a clip whose id is already recorded.
func (s *Store) AppendClip(_ context.Context, runID string, clip types.GeneratedClip) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.runs[runID]
	if !ok {
		return types.ErrRunNotFound
	}
	for _, c := range it.Clips {
		if c.ID == clip.ID {
			return nil
		}
	}
	clip.RunID = runID
	it.Clips = append(it.Clips, clip)
	it.UpdatedAt = s.now()
	return nil
}

func (s *Store) MarkStatus(_ context.Context, runID string, status types.RunStatus, cat types.ErrorCategory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.runs[runID]
	if !ok {
		return types.ErrRunNotFound
	}
	it.Status = status
	it.ErrorCategory = cat
	it.UpdatedAt = s.now()
	return nil
}

func (s *Store) GetRun(_ context.Context, runID string) (types.HistoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.runs[runID]
	if !ok {
		return types.HistoryItem{}, types.ErrRunNotFound
	}
	return snapshot(it), nil
}

func (s *Store) ListRuns(_ context.Context, ownerID string) (types.HistoryList, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := types.HistoryList{Active: []types.HistoryItem{}, Trashed: []types.HistoryItem{}}
	for _, it := range s.runs {
		if it.OwnerID != ownerID {
			continue
		}
		if it.Trashed() {
			out.Trashed = append(out.Trashed, snapshot(it))
		} else {
			out.Active = append(out.Active, snapshot(it))
		}
	}
	newestFirst(out.Active)
	newestFirst(out.Trashed)
	return out, nil
}

func (s *Store) SoftDelete(_ context.Context, runID string) (types.HistoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.runs[runID]
	if !ok {
		return types.HistoryItem{}, types.ErrRunNotFound
	}
	if it.DeletedAt == nil {
		now := s.now()
		it.DeletedAt = &now
		it.UpdatedAt = now
	}
	return snapshot(it), nil
}

func (s *Store) Restore(_ context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.runs[runID]
	if !ok {
		return types.ErrRunNotFound
	}
	it.DeletedAt = nil
	it.UpdatedAt = s.now()
	return nil
}

func (s *Store) Purge(_ context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[runID]; !ok {
		return types.ErrRunNotFound
	}
	delete(s.runs, runID)
	return nil
}

func (s *Store) ListExpired(_ context.Context, deletedBefore time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id, it := range s.runs {
		if it.DeletedAt != nil && it.DeletedAt.Before(deletedBefore) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func snapshot(it *types.HistoryItem) types.HistoryItem {
	cp := *it
	cp.Clips = append([]types.GeneratedClip(nil), it.Clips...)
	if it.DeletedAt != nil {
		d := *it.DeletedAt
		cp.DeletedAt = &d
	}
	cp.OrderClips()
	return cp
}

func newestFirst(items []types.HistoryItem) {
	sort.SliceStable(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
}

package orchestrator

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/forPelevin/tubebite/internal/types"
	"github.com/forPelevin/tubebite/internal/usecase"
)

var _ usecase.Observer = (*run)(nil)

// Percent at which each stage starts.
var stagePercent = map[types.Stage]int{
	types.StageQueued:       0,
	types.StageAcquiring:    5,
	types.StageTranscribing: 15,
	types.StageDetecting:    40,
	types.StageSelecting:    55,
	types.StageRendering:    60,
	types.StagePublishing:   85,
	types.StageCompleted:    100,
}

const (
	renderSpan  = 25
	publishSpan = 14
)

type run struct {
	orch   *Orchestrator
	in     usecase.Input
	cancel context.CancelCauseFunc
	done   chan struct{}
	log    zerolog.Logger

	mu         sync.Mutex
	view       types.RunView
	planned    int
	rendered   int
	published  int
	finishedAt time.Time
}

func (r *run) Stage(s types.Stage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.Terminal() || s.Order() <= r.view.Stage.Order() {
		return
	}
	r.view.Stage = s
	r.raiseLocked(stagePercent[s])
	r.log.Debug().Str("stage", string(s)).Int("percent", r.view.Percent).Msg("stage")
}

func (r *run) Planned(n int) {
	r.mu.Lock()
	r.planned = n
	r.mu.Unlock()
}

func (r *run) Rendered(int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rendered++
	if r.planned > 0 {
		r.raiseLocked(stagePercent[types.StageRendering] + renderSpan*r.rendered/r.planned)
	}
}

func (r *run) Published(int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published++
	if r.planned > 0 {
		r.raiseLocked(stagePercent[types.StagePublishing] + publishSpan*r.published/r.planned)
	}
}

// Clip persists the clip before it becomes visible to pollers.
func (r *run) Clip(ctx context.Context, c types.GeneratedClip) error {
	if err := r.orch.store.AppendClip(ctx, r.in.RunID, c); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.view.Clips = append(r.view.Clips, c)
	sort.SliceStable(r.view.Clips, func(i, j int) bool { return r.view.Clips[i].Index < r.view.Clips[j].Index })
	r.view.UpdatedAt = r.orch.now().UTC()
	r.log.Info().Int("clip", c.Index).Str("url", c.MediaURL).Msg("clip published")
	return nil
}

func (r *run) ClipFailed(f types.ClipFailure) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.view.ClipFailures = append(r.view.ClipFailures, f)
	r.view.UpdatedAt = r.orch.now().UTC()
	r.log.Warn().Int("clip", f.Index).Str("category", string(f.Category)).Str("error", f.Message).Msg("clip failed")
}

// raiseLocked keeps percent monotonic and below 100 until completion.
func (r *run) raiseLocked(p int) {
	if p > 99 && r.view.Stage != types.StageCompleted {
		p = 99
	}
	if p > r.view.Percent {
		r.view.Percent = p
		r.view.UpdatedAt = r.orch.now().UTC()
	}
}

func (r *run) finished() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

func (r *run) snapshot() types.RunView {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := r.view
	v.Clips = append([]types.GeneratedClip{}, r.view.Clips...)
	v.ClipFailures = append([]types.ClipFailure(nil), r.view.ClipFailures...)
	return v
}

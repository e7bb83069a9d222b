package usecase

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/forPelevin/tubebite/internal/domain/subtitles"
	"github.com/forPelevin/tubebite/internal/ports"
	"github.com/forPelevin/tubebite/internal/types"
)

// RenderedClip is a clip encoded into the run scratch dir, not yet published.
type RenderedClip struct {
	Index           int
	Moment          types.SelectedMoment
	Path            string
	Thumbnail       string
	Duration        float64
	SubtitlesBurned bool

	// Drift is the encoded duration minus the moment length. DriftExceeded
	// is set when its magnitude is above the renderer tolerance.
	Drift         float64
	DriftExceeded bool
}

type Renderer struct {
	video ports.VideoTool
	// drift is how far the encoded duration may stray from the moment
	// length before it is logged.
	drift float64
	log   zerolog.Logger

	// timeout bounds one clip, thumbnail included
	timeout time.Duration
}

func NewRenderer(video ports.VideoTool, driftTolerance float64, log zerolog.Logger) *Renderer {
	return &Renderer{video: video, drift: driftTolerance, log: log}
}

func (r *Renderer) Render(parent context.Context, asset types.MediaAsset, m types.SelectedMoment, index int, req types.GenerationRequest, tr types.Transcript) (RenderedClip, error) {
	op := fmt.Sprintf("render clip %d", index)
	log := r.log.With().Int("clip", index).Float64("start", m.Start).Float64("end", m.End).Logger()
	ctx, cancel := boundCtx(parent, r.timeout)
	defer cancel()

	dir := filepath.Join(asset.Dir, "clips")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return RenderedClip{}, types.NewError(types.CategoryRender, op, err)
	}
	base := filepath.Join(dir, fmt.Sprintf("clip_%02d", index))
	canvas := req.AspectRatio.Canvas()

	spec := types.RenderSpec{
		Input:  asset.Path,
		Start:  m.Start,
		End:    m.End,
		Canvas: canvas,
		Output: base + ".mp4",
	}
	if req.Subtitles {
		if ass, ok := subtitles.Render(tr, m.Start, m.End, canvas); ok {
			if err := os.WriteFile(base+".ass", []byte(ass), 0o644); err != nil {
				return RenderedClip{}, types.NewError(types.CategoryRender, op, err)
			}
			spec.Subtitles = base + ".ass"
		} else {
			log.Debug().Msg("no speech in range, rendering without subtitles")
		}
	}

	outcome, err := r.video.RenderClip(ctx, spec)
	if err != nil {
		if stageExpired(parent, ctx) {
			return RenderedClip{}, types.Errorf(types.CategoryRender, op, "encode timed out after %s: %v", r.timeout, err)
		}
		return RenderedClip{}, types.NewError(types.CategoryRender, op, err)
	}
	info, err := r.video.Probe(ctx, spec.Output)
	if err != nil {
		return RenderedClip{}, types.NewError(types.CategoryRender, op, fmt.Errorf("probe output: %w", err))
	}
	if info.Duration <= 0 {
		return RenderedClip{}, types.Errorf(types.CategoryRender, op, "encoded clip has zero duration")
	}
	want := m.End - m.Start
	drift := info.Duration - want
	exceeded := r.drift > 0 && math.Abs(drift) > r.drift
	if exceeded {
		log.Warn().Float64("want", want).Float64("got", info.Duration).Float64("tolerance", r.drift).Msg("rendered duration drift")
	}

	thumb := base + ".jpg"
	if err := r.video.Thumbnail(ctx, asset.Path, m.Mid(), canvas, thumb); err != nil {
		log.Warn().Err(err).Msg("thumbnail failed")
		thumb = ""
	}

	return RenderedClip{
		Index:           index,
		Moment:          m,
		Path:            spec.Output,
		Thumbnail:       thumb,
		Duration:        info.Duration,
		SubtitlesBurned: outcome.SubtitlesBurned,
		Drift:           drift,
		DriftExceeded:   exceeded,
	}, nil
}

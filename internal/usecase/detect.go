package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/forPelevin/tubebite/internal/domain/highlights"
	"github.com/forPelevin/tubebite/internal/domain/moments"
	"github.com/forPelevin/tubebite/internal/ports"
	"github.com/forPelevin/tubebite/internal/types"
)

var (
	_ ports.MomentDetector = (*EngineDetector)(nil)
	_ ports.MomentDetector = HeuristicDetector{}
)

// EngineDetector asks the scoring engine about each transcript chunk and
// falls back to evenly spaced windows when that yields nothing usable.
type EngineDetector struct {
	engine ports.ScoringEngine
	digest highlights.DigestOptions
	bounds moments.Bounds
	log    zerolog.Logger
}

func NewEngineDetector(engine ports.ScoringEngine, digest highlights.DigestOptions, bounds moments.Bounds, log zerolog.Logger) *EngineDetector {
	return &EngineDetector{engine: engine, digest: digest, bounds: bounds, log: log}
}

func (d *EngineDetector) Detect(ctx context.Context, tr types.Transcript, mediaDuration float64, opts types.DetectOptions) ([]types.CandidateMoment, error) {
	if mediaDuration <= 0 {
		return nil, types.Errorf(types.CategoryDetection, "detect", "media has no duration")
	}
	if tr.Empty() {
		d.log.Info().Msg("empty transcript, using heuristic moments")
		return fallback(tr, mediaDuration, opts, nil)
	}

	chunks := highlights.Digest(tr, d.digest)
	var (
		raw        []types.CandidateMoment
		engineDown error
	)
	for i, chunk := range chunks {
		got, err := d.engine.Moments(ctx, types.EnginePrompt{
			Digest:        chunk,
			ChunkIndex:    i,
			ChunkCount:    len(chunks),
			MediaDuration: mediaDuration,
			ClipCount:     opts.ClipCount,
			Duration:      opts.Duration,
			AspectRatio:   opts.AspectRatio,
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("detect: %w", ctx.Err())
			}
			if errors.Is(err, types.ErrEngineUnavailable) {
				d.log.Warn().Err(err).Int("chunk", i).Msg("scoring engine unavailable")
				engineDown = err
				break
			}
			d.log.Warn().Err(err).Int("chunk", i).Msg("chunk scoring failed")
			continue
		}
		raw = append(raw, got...)
	}

	cands := moments.Normalize(raw, tr, mediaDuration, opts, d.bounds)
	d.log.Info().Int("chunks", len(chunks)).Int("raw", len(raw)).Int("usable", len(cands)).Msg("engine moments")
	if len(cands) > 0 {
		return cands, nil
	}
	d.log.Warn().Msg("no usable engine moments, using heuristic moments")
	return fallback(tr, mediaDuration, opts, engineDown)
}

// HeuristicDetector never calls an engine.
type HeuristicDetector struct{}

func (HeuristicDetector) Detect(_ context.Context, tr types.Transcript, mediaDuration float64, opts types.DetectOptions) ([]types.CandidateMoment, error) {
	return fallback(tr, mediaDuration, opts, nil)
}

func fallback(tr types.Transcript, mediaDuration float64, opts types.DetectOptions, cause error) ([]types.CandidateMoment, error) {
	out := moments.Heuristic(tr, mediaDuration, opts)
	if len(out) > 0 {
		return out, nil
	}
	if cause == nil {
		cause = errors.New("no heuristic windows fit the media")
	}
	return nil, types.NewError(types.CategoryDetection, "detect", cause)
}

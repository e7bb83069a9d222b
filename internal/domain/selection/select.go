// Package selection picks the non-overlapping moments a run turns into clips.
package selection

import (
	"math"
	"sort"

	"github.com/forPelevin/tubebite/internal/types"
)

type Options struct {
	Count         int
	Duration      types.ClipDuration
	MediaDuration float64
	// Tolerance is how many seconds two accepted ranges may share.
	Tolerance float64
}

// Select ranks candidates by score (earlier start wins ties) and greedily
// accepts those whose final range overlaps no accepted range by more than
// the tolerance. With a fixed duration the final range is clamped around
// the candidate midpoint. The result is in descending score order.
func Select(cands []types.CandidateMoment, opts Options) []types.SelectedMoment {
	if opts.Count <= 0 || len(cands) == 0 {
		return nil
	}
	sorted := append([]types.CandidateMoment(nil), cands...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Score != sorted[j].Score {
			return sorted[i].Score > sorted[j].Score
		}
		return sorted[i].Start < sorted[j].Start
	})

	out := make([]types.SelectedMoment, 0, min(opts.Count, len(sorted)))
	for _, c := range sorted {
		sel := types.SelectedMoment{CandidateMoment: c}
		if !opts.Duration.IsAuto() {
			sel = clampFixed(c, float64(opts.Duration.Seconds), opts.MediaDuration)
		}
		if overlapsAny(sel.CandidateMoment, out, opts.Tolerance) {
			continue
		}
		sel.Rank = len(out) + 1
		out = append(out, sel)
		if len(out) == opts.Count {
			break
		}
	}
	return out
}

// clampFixed centres a window of exactly want seconds on the candidate's
// midpoint and shifts it back inside [0, media]. A media shorter than want
// yields the whole media, flagged as shorter than requested.
func clampFixed(c types.CandidateMoment, want, media float64) types.SelectedMoment {
	sel := types.SelectedMoment{CandidateMoment: c}
	d := want
	if media > 0 && media < want {
		d = media
		sel.ShorterThanRequested = true
	}
	start := c.Mid() - d/2
	end := start + d
	if start < 0 {
		start, end = 0, d
	}
	if media > 0 && end > media {
		start, end = math.Max(0, media-d), media
	}
	sel.Start, sel.End = start, end
	return sel
}

func overlapsAny(m types.CandidateMoment, accepted []types.SelectedMoment, tol float64) bool {
	for _, a := range accepted {
		if Overlap(m, a.CandidateMoment) > tol {
			return true
		}
	}
	return false
}

// Overlap is the length in seconds shared by a and b.
func Overlap(a, b types.CandidateMoment) float64 {
	return math.Min(a.End, b.End) - math.Max(a.Start, b.Start)
}

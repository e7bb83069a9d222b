// Package moments validates scoring-engine output and produces the
// deterministic fallback moments.
package moments

import (
	"fmt"
	"math"
	"strings"

	"github.com/forPelevin/tubebite/internal/domain/highlights"
	"github.com/forPelevin/tubebite/internal/types"
)

// Bounds limits auto-duration candidates.
type Bounds struct {
	AutoMin    float64
	AutoExtend float64
	AutoMax    float64
}

func DefaultBounds() Bounds {
	return Bounds{AutoMin: 10, AutoExtend: 15, AutoMax: 60}
}

const (
	HeuristicAutoWindow = 30.0
	HeuristicScore      = 0.5
)

// Valid reports whether m lies within the media and carries a usable score.
func Valid(m types.CandidateMoment, mediaDuration float64) bool {
	for _, v := range []float64{m.Start, m.End, m.Score} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return m.Start >= 0 && m.Start < m.End && m.End <= mediaDuration && m.Score >= 0 && m.Score <= 1
}

// Normalize drops invalid candidates, snaps the rest to utterance
// boundaries, bounds auto-mode lengths and removes duplicates.
func Normalize(raw []types.CandidateMoment, tr types.Transcript, mediaDuration float64, opts types.DetectOptions, b Bounds) []types.CandidateMoment {
	out := make([]types.CandidateMoment, 0, len(raw))
	seen := make(map[[2]int64]int, len(raw))
	for _, m := range raw {
		if !Valid(m, mediaDuration) {
			continue
		}
		if s, e := SnapToSegments(m.Start, m.End, tr.Segments); s >= 0 && s < e && e <= mediaDuration {
			m.Start, m.End = s, e
		}
		if opts.Duration.IsAuto() {
			m = boundAuto(m, mediaDuration, b)
			if !Valid(m, mediaDuration) {
				continue
			}
		}
		m.Title = strings.TrimSpace(m.Title)
		m.Reason = strings.TrimSpace(m.Reason)
		m.Hook = strings.TrimSpace(m.Hook)
		if m.Origin == "" {
			m.Origin = types.OriginEngine
		}

		key := [2]int64{int64(math.Round(m.Start * 100)), int64(math.Round(m.End * 100))}
		if i, ok := seen[key]; ok {
			if m.Score > out[i].Score {
				out[i] = m
			}
			continue
		}
		seen[key] = len(out)
		out = append(out, m)
	}
	return out
}

func boundAuto(m types.CandidateMoment, mediaDuration float64, b Bounds) types.CandidateMoment {
	switch l := m.Length(); {
	case b.AutoMin > 0 && l < b.AutoMin:
		m.End = math.Min(m.Start+b.AutoExtend, mediaDuration)
	case b.AutoMax > 0 && l > b.AutoMax:
		m.End = m.Start + b.AutoMax
	}
	return m
}

// SnapToSegments moves start to the closest utterance start and end to the
// closest utterance end after the new start.
func SnapToSegments(start, end float64, segs []types.Segment) (float64, float64) {
	if len(segs) == 0 {
		return start, end
	}
	ns := segs[0].Start
	for _, s := range segs[1:] {
		if math.Abs(s.Start-start) < math.Abs(ns-start) {
			ns = s.Start
		}
	}
	ne, found := 0.0, false
	for _, s := range segs {
		if s.End <= ns {
			continue
		}
		if !found || math.Abs(s.End-end) < math.Abs(ne-end) {
			ne, found = s.End, true
		}
	}
	if !found {
		return ns, math.Max(ns+5, end)
	}
	return ns, ne
}

// Heuristic returns evenly spaced windows sized to the requested duration
// (HeuristicAutoWindow in auto mode). It never returns overlapping windows,
// so a media shorter than count windows yields fewer, and a media shorter
// than one window yields the whole media.
func Heuristic(tr types.Transcript, mediaDuration float64, opts types.DetectOptions) []types.CandidateMoment {
	if mediaDuration <= 0 || opts.ClipCount <= 0 {
		return nil
	}
	window := HeuristicAutoWindow
	if !opts.Duration.IsAuto() {
		window = float64(opts.Duration.Seconds)
	}

	n := opts.ClipCount
	if window >= mediaDuration {
		n, window = 1, mediaDuration
	} else if fit := int(mediaDuration / window); fit < n {
		n = fit
	}

	slot := mediaDuration / float64(n)
	out := make([]types.CandidateMoment, 0, n)
	for i := 0; i < n; i++ {
		start := float64(i)*slot + (slot-window)/2
		end := math.Min(start+window, mediaDuration)
		out = append(out, types.CandidateMoment{
			Start:  start,
			End:    end,
			Score:  HeuristicScore,
			Reason: fmt.Sprintf("%s: evenly spaced window %d of %d", types.HeuristicReason, i+1, n),
			Title:  fmt.Sprintf("Highlight %d", i+1),
			Hook:   highlights.BestHook(tr, start, end),
			Origin: types.OriginHeuristic,
		})
	}
	return out
}

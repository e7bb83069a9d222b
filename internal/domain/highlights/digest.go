// Package highlights turns transcripts into scoring-engine digests and offers
// cheap text heuristics over utterances.
package highlights

import (
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/forPelevin/tubebite/internal/types"
)

const (
	DefaultChunkChars   = 6000
	DefaultOverlapChars = 500
	DefaultMaxChunks    = 8
)

type DigestOptions struct {
	ChunkChars   int
	OverlapChars int
	MaxChunks    int
}

func (o DigestOptions) withDefaults() DigestOptions {
	if o.ChunkChars <= 0 {
		o.ChunkChars = DefaultChunkChars
	}
	if o.OverlapChars < 0 || o.OverlapChars >= o.ChunkChars {
		o.OverlapChars = 0
	}
	if o.MaxChunks <= 0 {
		o.MaxChunks = DefaultMaxChunks
	}
	return o
}

// Lines renders each utterance as "[T=<start>s] text".
func Lines(tr types.Transcript) []string {
	out := make([]string, 0, len(tr.Segments))
	for _, s := range tr.Segments {
		text := strings.Join(strings.Fields(s.Text), " ")
		if text == "" {
			continue
		}
		t := strconv.FormatFloat(math.Round(s.Start*100)/100, 'f', -1, 64)
		out = append(out, "[T="+t+"s] "+text)
	}
	return out
}

// Digest splits the transcript into chunks of whole lines. Consecutive chunks
// share trailing lines worth up to OverlapChars. When there are more chunks
// than MaxChunks, an evenly spread subset is kept so the whole timeline stays
// represented.
func Digest(tr types.Transcript, opts DigestOptions) []string {
	opts = opts.withDefaults()
	chunks := chunkLines(Lines(tr), opts.ChunkChars, opts.OverlapChars)
	return spread(chunks, opts.MaxChunks)
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func chunkLines(lines []string, size, overlap int) []string {
	var (
		out   []string
		cur   []string
		n     int
		fresh bool
	)
	for _, l := range lines {
		if len(l) > size {
			l = truncate(l, size)
		}
		if fresh && n+len(l)+1 > size {
			out = append(out, strings.Join(cur, "\n"))
			cur, n = tail(cur, overlap)
			fresh = false
		}
		// an oversized overlap must not push the next line past size
		for n > 0 && n+len(l)+1 > size {
			n -= len(cur[0]) + 1
			cur = cur[1:]
		}
		cur = append(cur, l)
		n += len(l) + 1
		fresh = true
	}
	if fresh {
		out = append(out, strings.Join(cur, "\n"))
	}
	return out
}

// tail returns the trailing lines of cur that fit in budget characters.
func tail(cur []string, budget int) ([]string, int) {
	n, i := 0, len(cur)
	for i > 0 && n+len(cur[i-1])+1 <= budget {
		i--
		n += len(cur[i]) + 1
	}
	return append([]string(nil), cur[i:]...), n
}

func spread(chunks []string, max int) []string {
	if len(chunks) <= max {
		return chunks
	}
	out := make([]string, 0, max)
	if max == 1 {
		return append(out, chunks[len(chunks)/2])
	}
	step := float64(len(chunks)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		out = append(out, chunks[int(math.Round(float64(i)*step))])
	}
	return out
}

// BestHook returns the utterance in [start, end) with the strongest hook
// signal, or "" when none scores above zero.
func BestHook(tr types.Transcript, start, end float64) string {
	best, bestScore := "", 0.0
	for _, s := range tr.Slice(start, end) {
		sig := Score(s.Text)
		if sig.Hook > bestScore {
			best, bestScore = strings.TrimSpace(s.Text), sig.Hook
		}
	}
	return best
}

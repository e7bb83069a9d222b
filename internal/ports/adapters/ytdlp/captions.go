package ytdlp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/forPelevin/tubebite/internal/types"
)

// captionDefault is the length given to caption events without a duration.
const captionDefault = 2.0

// Captions downloads the lang caption track of url as json3 into dir and
// parses it. Uploaded and generated tracks are both accepted.
func (a *Adapter) Captions(ctx context.Context, url, lang, dir string) (types.Transcript, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return types.Transcript{}, err
	}
	args := []string{
		"--skip-download",
		"--no-playlist",
		"--no-warnings",
		"--write-subs",
		"--write-auto-subs",
		"--sub-langs", lang,
		"--sub-format", "json3",
		"-o", filepath.Join(dir, "captions"),
		url,
	}
	cmd := exec.CommandContext(ctx, a.bin, args...)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return types.Transcript{}, classify("yt-dlp captions", err, string(b))
	}
	files, _ := filepath.Glob(filepath.Join(dir, "captions*.json3"))
	if len(files) == 0 {
		return types.Transcript{}, fmt.Errorf("yt-dlp captions: no %s track written", lang)
	}
	raw, err := os.ReadFile(files[0])
	if err != nil {
		return types.Transcript{}, err
	}
	tr, err := parseJSON3(raw)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("yt-dlp captions: %w", err)
	}
	tr.Language = strings.TrimSuffix(lang, "-orig")
	return tr, nil
}

type json3 struct {
	Events []struct {
		StartMs    int64 `json:"tStartMs"`
		DurationMs int64 `json:"dDurationMs"`
		Segs       []struct {
			Text     string `json:"utf8"`
			OffsetMs int64  `json:"tOffsetMs"`
		} `json:"segs"`
	} `json:"events"`
}

// parseJSON3 turns caption events into segments. Multi-part events of
// generated tracks also yield word timings. Each segment is cut where the next
// one starts, since generated tracks keep a line on screen past its speech.
func parseJSON3(raw []byte) (types.Transcript, error) {
	var doc json3
	if err := json.Unmarshal(raw, &doc); err != nil {
		return types.Transcript{}, err
	}
	var segs []types.Segment
	for _, ev := range doc.Events {
		var parts []string
		for _, sg := range ev.Segs {
			parts = append(parts, sg.Text)
		}
		text := strings.Join(strings.Fields(strings.Join(parts, "")), " ")
		if text == "" {
			continue
		}
		start := float64(ev.StartMs) / 1000
		end := start + float64(ev.DurationMs)/1000
		if ev.DurationMs <= 0 {
			end = start + captionDefault
		}
		seg := types.Segment{Start: start, End: end, Text: text}
		if len(ev.Segs) > 1 {
			for i, sg := range ev.Segs {
				w := strings.TrimSpace(sg.Text)
				if w == "" {
					continue
				}
				wEnd := end
				if i+1 < len(ev.Segs) {
					wEnd = start + float64(ev.Segs[i+1].OffsetMs)/1000
				}
				seg.Words = append(seg.Words, types.Word{Start: start + float64(sg.OffsetMs)/1000, End: wEnd, Word: w})
			}
		}
		segs = append(segs, seg)
	}
	sort.SliceStable(segs, func(i, j int) bool { return segs[i].Start < segs[j].Start })
	for i := 0; i+1 < len(segs); i++ {
		if next := segs[i+1].Start; segs[i].End > next && next > segs[i].Start {
			segs[i].End = next
		}
	}
	return types.Transcript{Segments: segs}, nil
}

func trackLangs(tracks map[string]json.RawMessage) []string {
	out := make([]string, 0, len(tracks))
	for lang := range tracks {
		if lang == "live_chat" {
			continue
		}
		out = append(out, lang)
	}
	sort.Strings(out)
	return out
}

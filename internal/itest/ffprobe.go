//go:build integration

package itest

import (
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
)

type probed struct {
	Duration float64
	Width    int
	Height   int
}

// probeClip reads the container duration and the first video stream size.
func probeClip(path string) (probed, error) {
	cmd := exec.Command("ffprobe",
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "format=duration:stream=width,height",
		"-of", "json",
		path,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return probed{}, fmt.Errorf("ffprobe: %w\n%s", err, string(b))
	}
	var raw struct {
		Streams []struct {
			Width  int `json:"width"`
			Height int `json:"height"`
		} `json:"streams"`
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return probed{}, fmt.Errorf("decode ffprobe output: %w", err)
	}
	sec, err := strconv.ParseFloat(raw.Format.Duration, 64)
	if err != nil {
		return probed{}, fmt.Errorf("parse duration %q: %w", raw.Format.Duration, err)
	}
	p := probed{Duration: sec}
	if len(raw.Streams) > 0 {
		p.Width, p.Height = raw.Streams[0].Width, raw.Streams[0].Height
	}
	return p, nil
}

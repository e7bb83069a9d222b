package types

import "strings"

type Transcript struct {
	Language string    `json:"language,omitempty"`
	Segments []Segment `json:"segments"`
}

// Segment is one utterance of the transcript.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
	Words []Word  `json:"words,omitempty"`
}

type Word struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Word  string  `json:"word"`
}

func (t Transcript) Empty() bool { return len(t.Segments) == 0 }

// Slice returns the segments overlapping [start, end) in timeline order.
func (t Transcript) Slice(start, end float64) []Segment {
	var out []Segment
	for _, s := range t.Segments {
		if s.End <= start || s.Start >= end {
			continue
		}
		if strings.TrimSpace(s.Text) == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Manifest is written next to the clips produced by a local run.
type Manifest struct {
	RunID  string         `json:"run_id"`
	Source string         `json:"source"`
	Clips  []ManifestClip `json:"clips"`
}

type ManifestClip struct {
	ID        string  `json:"id"`
	StartSec  float64 `json:"start_sec"`
	EndSec    float64 `json:"end_sec"`
	Score     float64 `json:"score"`
	Origin    string  `json:"origin"`
	Reason    string  `json:"reason"`
	Hook      string  `json:"hook,omitempty"`
	Title     string  `json:"title"`
	Duration  string  `json:"duration"`
	File      string  `json:"file"`
	Thumbnail string  `json:"thumbnail,omitempty"`
	Subtitles bool    `json:"subtitles"`
	Shorter   bool    `json:"shorter_than_requested,omitempty"`
}

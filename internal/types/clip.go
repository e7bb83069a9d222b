package types

import (
	"fmt"
	"math"
	"sort"
	"time"
)

type GeneratedClip struct {
	ID                   string       `json:"id"`
	RunID                string       `json:"runId"`
	Index                int          `json:"index"`
	Title                string       `json:"title"`
	Duration             string       `json:"duration"`
	DurationSeconds      float64      `json:"durationSeconds"`
	AspectRatio          AspectRatio  `json:"aspectRatio"`
	Template             string       `json:"template"`
	HasSubtitles         bool         `json:"hasSubtitles"`
	MediaURL             string       `json:"videoUrl"`
	ThumbnailURL         string       `json:"thumbnailUrl,omitempty"`
	MediaKey             string       `json:"mediaKey,omitempty"`
	ThumbnailKey         string       `json:"thumbnailKey,omitempty"`
	CreatedAt            time.Time    `json:"createdAt"`
	Score                float64      `json:"viralScore"`
	Reason               string       `json:"reason"`
	Hook                 string       `json:"hook,omitempty"`
	StartTime            float64      `json:"startTime"`
	EndTime              float64      `json:"endTime"`
	Origin               MomentOrigin `json:"origin"`
	ShorterThanRequested bool         `json:"shorterThanRequested,omitempty"`
}

// FormatClock renders seconds as m:ss.
func FormatClock(sec float64) string {
	if sec < 0 || math.IsNaN(sec) {
		sec = 0
	}
	total := int(math.Round(sec))
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

type RunStatus string

const (
	StatusProcessing RunStatus = "processing"
	StatusCompleted  RunStatus = "completed"
	StatusFailed     RunStatus = "failed"
)

type HistoryItem struct {
	ID              string            `json:"id"`
	OwnerID         string            `json:"ownerId"`
	SourceKind      SourceKind        `json:"sourceType"`
	SourceName      string            `json:"sourceName"`
	SourceThumbnail string            `json:"sourceThumbnail,omitempty"`
	Clips           []GeneratedClip   `json:"clips"`
	Settings        GenerationRequest `json:"settings"`
	Status          RunStatus         `json:"status"`
	ErrorCategory   ErrorCategory     `json:"errorCategory,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
	DeletedAt       *time.Time        `json:"deletedAt,omitempty"`
}

func (h HistoryItem) Trashed() bool { return h.DeletedAt != nil }

// PurgeAfter is the earliest time a trashed item may be purged.
func (h HistoryItem) PurgeAfter(retention time.Duration) time.Time {
	if h.DeletedAt == nil {
		return time.Time{}
	}
	return h.DeletedAt.Add(retention)
}

type HistoryList struct {
	Active  []HistoryItem `json:"active"`
	Trashed []HistoryItem `json:"trashed"`
}

// OrderClips sorts the clips by index and takes the source thumbnail from
// the first clip that has one.
func (h *HistoryItem) OrderClips() {
	sort.SliceStable(h.Clips, func(i, j int) bool { return h.Clips[i].Index < h.Clips[j].Index })
	if h.SourceThumbnail != "" {
		return
	}
	for _, c := range h.Clips {
		if c.ThumbnailURL != "" {
			h.SourceThumbnail = c.ThumbnailURL
			return
		}
	}
}

package ports

import (
	"context"
	"io"
	"time"

	"github.com/forPelevin/tubebite/internal/types"
)

type Downloader interface {
	Inspect(ctx context.Context, url string) (types.RemoteMedia, error)
	Download(ctx context.Context, url, outPath string, maxBytes int64) (string, error)
}

// CaptionSource fetches the platform captions of a hosted video in one
// language.
type CaptionSource interface {
	Captions(ctx context.Context, url, lang, dir string) (types.Transcript, error)
}

type VideoTool interface {
	Probe(ctx context.Context, path string) (types.MediaInfo, error)
	ExtractAudioMono16k(ctx context.Context, in, outWav string) error
	RenderClip(ctx context.Context, spec types.RenderSpec) (types.RenderOutcome, error)
	Thumbnail(ctx context.Context, in string, at float64, canvas types.Canvas, out string) error
}

type ASR interface {
	Transcribe(ctx context.Context, wavPath, cacheDir string) (types.Transcript, error)
}

// ScoringEngine rates one transcript chunk. It returns
// types.ErrEngineUnavailable when the engine cannot be reached at all.
type ScoringEngine interface {
	Moments(ctx context.Context, p types.EnginePrompt) ([]types.CandidateMoment, error)
}

type MomentDetector interface {
	Detect(ctx context.Context, tr types.Transcript, mediaDuration float64, opts types.DetectOptions) ([]types.CandidateMoment, error)
}

type BlobStore interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
}

type HistoryStore interface {
	CreateRun(ctx context.Context, ownerID string, req types.GenerationRequest) (string, error)
	AppendClip(ctx context.Context, runID string, clip types.GeneratedClip) error
	MarkStatus(ctx context.Context, runID string, status types.RunStatus, cat types.ErrorCategory) error
	GetRun(ctx context.Context, runID string) (types.HistoryItem, error)
	ListRuns(ctx context.Context, ownerID string) (types.HistoryList, error)
	SoftDelete(ctx context.Context, runID string) (types.HistoryItem, error)
	Restore(ctx context.Context, runID string) error
	Purge(ctx context.Context, runID string) error
	ListExpired(ctx context.Context, deletedBefore time.Time) ([]string, error)
}

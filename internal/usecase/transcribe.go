package usecase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/forPelevin/tubebite/internal/ports"
	"github.com/forPelevin/tubebite/internal/types"
)

const transcribeAttempts = 2

type Transcriber struct {
	video       ports.VideoTool
	asr         ports.ASR
	maxDuration float64
	retryDelay  time.Duration
	log         zerolog.Logger

	// timeout bounds each attempt; an attempt that runs out is retried
	timeout time.Duration
}

func NewTranscriber(video ports.VideoTool, asr ports.ASR, maxDuration float64, retryDelay time.Duration, log zerolog.Logger) *Transcriber {
	return &Transcriber{video: video, asr: asr, maxDuration: maxDuration, retryDelay: retryDelay, log: log}
}

// Transcribe returns the platform captions of the asset when it has any.
// Otherwise it extracts the audio track and runs speech recognition on it,
// retrying once. Media without audio or speech yields an empty transcript.
func (t *Transcriber) Transcribe(ctx context.Context, asset types.MediaAsset) (types.Transcript, error) {
	if t.maxDuration > 0 && asset.Duration > t.maxDuration {
		return types.Transcript{}, types.Errorf(types.CategoryMediaTooLong, "transcribe",
			"%.0fs exceeds the %.0fs ceiling", asset.Duration, t.maxDuration)
	}
	if !asset.Captions.Empty() {
		if tr := NormalizeTranscript(asset.Captions, asset.Duration); !tr.Empty() {
			t.log.Info().Str("language", tr.Language).Int("segments", len(tr.Segments)).Msg("using platform captions")
			return tr, nil
		}
	}
	if !asset.HasAudio {
		t.log.Info().Msg("source has no audio stream, using empty transcript")
		return types.Transcript{}, nil
	}

	cacheDir := filepath.Join(asset.Dir, "asr")
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return types.Transcript{}, types.NewError(types.CategoryInternal, "transcribe", err)
	}
	wav := filepath.Join(cacheDir, "audio.wav")

	var lastErr error
	for attempt := 1; attempt <= transcribeAttempts; attempt++ {
		tr, err := t.once(ctx, asset.Path, wav, cacheDir)
		if err == nil {
			tr = NormalizeTranscript(tr, asset.Duration)
			t.log.Info().Str("language", tr.Language).Int("segments", len(tr.Segments)).Msg("transcribed")
			return tr, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return types.Transcript{}, fmt.Errorf("transcribe: %w", ctx.Err())
		}
		if types.IsPermanent(err) || attempt == transcribeAttempts {
			break
		}
		t.log.Warn().Err(err).Int("attempt", attempt).Msg("transcription failed, retrying")
		if err := sleepCtx(ctx, t.retryDelay); err != nil {
			return types.Transcript{}, fmt.Errorf("transcribe: %w", err)
		}
	}
	return types.Transcript{}, types.NewError(types.CategoryTranscription, "transcribe", lastErr)
}

func (t *Transcriber) once(ctx context.Context, media, wav, cacheDir string) (types.Transcript, error) {
	actx, cancel := boundCtx(ctx, t.timeout)
	defer cancel()
	tr, err := t.recognize(actx, media, wav, cacheDir)
	if err != nil && stageExpired(ctx, actx) {
		return types.Transcript{}, fmt.Errorf("attempt timed out after %s: %v", t.timeout, err)
	}
	return tr, err
}

func (t *Transcriber) recognize(ctx context.Context, media, wav, cacheDir string) (types.Transcript, error) {
	if err := t.video.ExtractAudioMono16k(ctx, media, wav); err != nil {
		return types.Transcript{}, err
	}
	return t.asr.Transcribe(ctx, wav, cacheDir)
}

// NormalizeTranscript orders segments, drops blank ones, clamps them to the
// media duration and trims overlaps so every segment starts where the
// previous one ended at the earliest.
func NormalizeTranscript(tr types.Transcript, mediaDuration float64) types.Transcript {
	segs := make([]types.Segment, 0, len(tr.Segments))
	for _, s := range tr.Segments {
		s.Text = strings.TrimSpace(s.Text)
		if s.Text == "" {
			continue
		}
		segs = append(segs, s)
	}
	sort.SliceStable(segs, func(i, j int) bool { return segs[i].Start < segs[j].Start })

	out := segs[:0]
	prevEnd := 0.0
	for _, s := range segs {
		if s.Start < prevEnd {
			s.Start = prevEnd
		}
		if mediaDuration > 0 && s.End > mediaDuration {
			s.End = mediaDuration
		}
		if s.End <= s.Start {
			continue
		}
		words := s.Words[:0:0]
		for _, w := range s.Words {
			if w.End <= s.Start || w.Start >= s.End {
				continue
			}
			words = append(words, w)
		}
		s.Words = words
		out = append(out, s)
		prevEnd = s.End
	}
	return types.Transcript{Language: tr.Language, Segments: out}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

package ffmpeg

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/forPelevin/tubebite/internal/types"
)

type Adapter struct {
	ffmpeg  string
	ffprobe string
	log     zerolog.Logger
}

func New(ffmpegPath, ffprobePath string, log zerolog.Logger) *Adapter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Adapter{ffmpeg: ffmpegPath, ffprobe: ffprobePath, log: log}
}

func (a *Adapter) ExtractAudioMono16k(ctx context.Context, in, outWav string) error {
	b, err := a.run(ctx,
		"-i", in,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-f", "wav",
		outWav,
	)
	if err != nil {
		return fmt.Errorf("ffmpeg extract audio: %w\n%s", err, string(b))
	}
	return nil
}

// LetterboxFilter fits the source inside the canvas and pads the rest with
// black. It never crops.
func LetterboxFilter(c types.Canvas) string {
	return fmt.Sprintf(
		"scale=%[1]d:%[2]d:force_original_aspect_ratio=decrease,pad=%[1]d:%[2]d:(ow-iw)/2:(oh-ih)/2:black",
		c.W, c.H,
	)
}

// RenderClip trims, letterboxes and encodes one clip. If burning the
// subtitles fails the clip is encoded again without them.
func (a *Adapter) RenderClip(ctx context.Context, spec types.RenderSpec) (types.RenderOutcome, error) {
	b, err := a.run(ctx, renderArgs(spec, true)...)
	if err == nil {
		return types.RenderOutcome{SubtitlesBurned: spec.Subtitles != ""}, nil
	}
	if spec.Subtitles == "" || ctx.Err() != nil || !subtitleFailure(string(b)) {
		return types.RenderOutcome{}, fmt.Errorf("ffmpeg render clip: %w\n%s", err, tail(b, 2000))
	}

	a.log.Warn().Str("output", spec.Output).Str("ffmpeg", tail(b, 200)).Msg("subtitle burn failed, rendering without subtitles")
	b, err = a.run(ctx, renderArgs(spec, false)...)
	if err != nil {
		return types.RenderOutcome{}, fmt.Errorf("ffmpeg render clip: %w\n%s", err, tail(b, 2000))
	}
	return types.RenderOutcome{SubtitlesBurned: false}, nil
}

func renderArgs(spec types.RenderSpec, withSubs bool) []string {
	vf := LetterboxFilter(spec.Canvas)
	if withSubs && spec.Subtitles != "" {
		vf += ",ass='" + escapeFilterPath(spec.Subtitles) + "'"
	}
	return []string{
		"-ss", fmtSeconds(spec.Start),
		"-to", fmtSeconds(spec.End),
		"-i", spec.Input,
		"-vf", vf,
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "23",
		"-c:a", "aac",
		"-b:a", "128k",
		"-movflags", "+faststart",
		spec.Output,
	}
}

func subtitleFailure(out string) bool {
	l := strings.ToLower(out)
	return strings.Contains(l, "subtitle") || strings.Contains(l, "libass") || strings.Contains(l, "parsed_ass")
}

func (a *Adapter) Thumbnail(ctx context.Context, in string, at float64, canvas types.Canvas, out string) error {
	b, err := a.run(ctx,
		"-ss", fmtSeconds(at),
		"-i", in,
		"-vframes", "1",
		"-vf", LetterboxFilter(canvas),
		"-q:v", "3",
		out,
	)
	if err != nil {
		return fmt.Errorf("ffmpeg thumbnail: %w\n%s", err, tail(b, 1000))
	}
	return nil
}

func (a *Adapter) run(ctx context.Context, args ...string) ([]byte, error) {
	full := append([]string{"-y", "-hide_banner", "-loglevel", "error"}, args...)
	a.log.Debug().Strs("args", full).Msg("ffmpeg")
	return exec.CommandContext(ctx, a.ffmpeg, full...).CombinedOutput()
}

func fmtSeconds(sec float64) string {
	if sec < 0 {
		sec = 0
	}
	return strconv.FormatFloat(sec, 'f', 3, 64)
}

func escapeFilterPath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.ReplaceAll(p, ":", "\\:")
	p = strings.ReplaceAll(p, "'", "\\'")
	return p
}

func tail(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

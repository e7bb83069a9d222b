package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/forPelevin/tubebite/internal/domain/sources"
	"github.com/forPelevin/tubebite/internal/ports"
	"github.com/forPelevin/tubebite/internal/types"
)

// Limits bound what a run accepts as source media. Zero disables a limit.
type Limits struct {
	MaxSourceDuration float64
	MaxUploadBytes    int64
}

type Acquirer struct {
	dl     ports.Downloader
	video  ports.VideoTool
	limits Limits
	log    zerolog.Logger

	// captions is optional; nil skips platform captions
	captions ports.CaptionSource
	// timeout bounds the download and, separately, the caption fetch
	timeout time.Duration
}

func NewAcquirer(dl ports.Downloader, video ports.VideoTool, limits Limits, log zerolog.Logger) *Acquirer {
	return &Acquirer{dl: dl, video: video, limits: limits, log: log}
}

// Acquire places the source media into scratchDir and probes it. URL sources
// are resolved, inspected and downloaded; uploads are moved in. No retries.
func (a *Acquirer) Acquire(ctx context.Context, src types.Source, scratchDir string) (types.MediaAsset, error) {
	if err := os.MkdirAll(scratchDir, 0o755); err != nil {
		return types.MediaAsset{}, types.NewError(types.CategoryInternal, "acquire", err)
	}
	switch src.Kind {
	case types.SourceURL:
		return a.fromURL(ctx, src, scratchDir)
	case types.SourceUpload:
		return a.fromUpload(ctx, src, scratchDir)
	}
	return types.MediaAsset{}, types.Errorf(types.CategorySourceUnsupported, "acquire", "source kind %q", src.Kind)
}

func (a *Acquirer) fromURL(ctx context.Context, src types.Source, dir string) (types.MediaAsset, error) {
	r, err := sources.Resolve(src.URL)
	if err != nil {
		return types.MediaAsset{}, types.NewError(types.CategorySourceUnsupported, "acquire", err)
	}
	log := a.log.With().Str("platform", string(r.Platform)).Str("url", r.URL).Logger()

	meta, err := a.dl.Inspect(ctx, r.URL)
	if err != nil {
		return types.MediaAsset{}, err
	}
	if meta.IsLive {
		return types.MediaAsset{}, types.Errorf(types.CategorySourceUnsupported, "acquire", "%s is a live stream", r.URL)
	}
	if err := a.checkDuration(meta.Duration); err != nil {
		return types.MediaAsset{}, err
	}
	if a.limits.MaxUploadBytes > 0 && meta.FilesizeApprox > a.limits.MaxUploadBytes {
		return types.MediaAsset{}, types.Errorf(types.CategorySourceTooLarge, "acquire",
			"about %d bytes, limit is %d", meta.FilesizeApprox, a.limits.MaxUploadBytes)
	}

	log.Info().Str("title", meta.Title).Float64("duration", meta.Duration).Msg("downloading source")
	path, err := a.download(ctx, r.URL, filepath.Join(dir, "source.mp4"))
	if err != nil {
		return types.MediaAsset{}, err
	}

	asset, err := a.probe(ctx, path)
	if err != nil {
		return types.MediaAsset{}, err
	}
	if err := a.checkDuration(asset.Duration); err != nil {
		return types.MediaAsset{}, err
	}
	asset.Dir = dir
	asset.Title = meta.Title
	asset.Thumbnail = meta.Thumbnail
	asset.SourceName = src.Name()
	if asset.Title == "" {
		asset.Title = src.Name()
	}
	if r.Platform == sources.YouTube {
		asset.Captions = a.fetchCaptions(ctx, meta, r.URL, dir, log)
	}
	return asset, nil
}

func (a *Acquirer) download(ctx context.Context, url, out string) (string, error) {
	dctx, cancel := boundCtx(ctx, a.timeout)
	defer cancel()
	path, err := a.dl.Download(dctx, url, out, a.limits.MaxUploadBytes)
	if err != nil && stageExpired(ctx, dctx) {
		return "", types.Errorf(types.CategorySourceUnreachable, "acquire", "download did not finish within %s", a.timeout)
	}
	return path, err
}

// fetchCaptions is best effort: any failure leaves speech recognition to
// produce the transcript.
func (a *Acquirer) fetchCaptions(ctx context.Context, meta types.RemoteMedia, url, dir string, log zerolog.Logger) types.Transcript {
	if a.captions == nil {
		return types.Transcript{}
	}
	lang, ok := sources.CaptionLanguage(meta.Subtitles, meta.AutoCaptions)
	if !ok {
		log.Debug().Msg("no platform captions offered")
		return types.Transcript{}
	}
	cctx, cancel := boundCtx(ctx, a.timeout)
	defer cancel()
	tr, err := a.captions.Captions(cctx, url, lang, filepath.Join(dir, "captions"))
	if err != nil {
		log.Warn().Err(err).Str("language", lang).Msg("platform captions unavailable")
		return types.Transcript{}
	}
	log.Info().Str("language", lang).Int("segments", len(tr.Segments)).Msg("platform captions fetched")
	return tr
}

func (a *Acquirer) fromUpload(ctx context.Context, src types.Source, dir string) (types.MediaAsset, error) {
	st, err := os.Stat(src.UploadPath)
	if err != nil {
		return types.MediaAsset{}, types.NewError(types.CategoryInvalidMedia, "acquire upload", err)
	}
	if st.IsDir() || st.Size() == 0 {
		return types.MediaAsset{}, types.Errorf(types.CategoryInvalidMedia, "acquire upload", "%s is not a media file", src.Name())
	}
	if a.limits.MaxUploadBytes > 0 && st.Size() > a.limits.MaxUploadBytes {
		return types.MediaAsset{}, types.Errorf(types.CategoryInvalidMedia, "acquire upload",
			"%d bytes, limit is %d", st.Size(), a.limits.MaxUploadBytes)
	}

	ext := strings.ToLower(filepath.Ext(src.Name()))
	if ext == "" {
		ext = ".mp4"
	}
	dst := filepath.Join(dir, "source"+ext)
	if err := moveFile(src.UploadPath, dst); err != nil {
		return types.MediaAsset{}, types.NewError(types.CategoryInternal, "acquire upload", err)
	}

	asset, err := a.probe(ctx, dst)
	if err != nil {
		return types.MediaAsset{}, err
	}
	if err := a.checkDuration(asset.Duration); err != nil {
		return types.MediaAsset{}, err
	}
	asset.Dir = dir
	asset.Title = strings.TrimSuffix(src.Name(), filepath.Ext(src.Name()))
	asset.SourceName = src.Name()
	return asset, nil
}

func (a *Acquirer) checkDuration(sec float64) error {
	if a.limits.MaxSourceDuration > 0 && sec > a.limits.MaxSourceDuration {
		return types.Errorf(types.CategorySourceTooLarge, "acquire", "%.0fs long, limit is %.0fs", sec, a.limits.MaxSourceDuration)
	}
	return nil
}

// probe requires a decodable container with a video stream and a positive
// duration.
func (a *Acquirer) probe(ctx context.Context, path string) (types.MediaAsset, error) {
	info, err := a.video.Probe(ctx, path)
	if err != nil {
		if ctx.Err() != nil {
			return types.MediaAsset{}, fmt.Errorf("probe source: %w", ctx.Err())
		}
		return types.MediaAsset{}, types.NewError(types.CategoryInvalidMedia, "probe source", err)
	}
	if !info.HasVideo {
		return types.MediaAsset{}, types.Errorf(types.CategoryInvalidMedia, "probe source", "no video stream in %s", filepath.Base(path))
	}
	if info.Duration <= 0 {
		return types.MediaAsset{}, types.Errorf(types.CategoryInvalidMedia, "probe source", "zero duration")
	}
	return types.MediaAsset{
		Path:     path,
		Duration: info.Duration,
		Format:   info.Format,
		Width:    info.Width,
		Height:   info.Height,
		HasAudio: info.HasAudio,
	}, nil
}

// moveFile renames src to dst, copying when they live on different devices.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		return errors.Join(err, out.Close())
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}

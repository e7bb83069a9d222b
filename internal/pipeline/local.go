package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/forPelevin/tubebite/internal/config"
	"github.com/forPelevin/tubebite/internal/types"
)

const localOwner = "local"

// LocalOptions describes one run driven from the command line.
type LocalOptions struct {
	// Source is a URL or a path to a local video file.
	Source      string
	OutDir      string
	ClipCount   int
	Duration    types.ClipDuration
	AspectRatio types.AspectRatio
	Subtitles   bool
	Template    string
	// Progress is called whenever stage or percent changes.
	Progress func(types.RunView)
	// PollInterval defaults to 500ms.
	PollInterval time.Duration
}

type LocalResult struct {
	RunDir       string
	ManifestPath string
	View         types.RunView
	Manifest     types.Manifest
}

// RunLocal runs one request to completion with local storage and in-memory
// history, then writes manifest.json next to the clips. A local file source
// is linked or copied so the original stays in place.
func RunLocal(ctx context.Context, cfg config.Config, log zerolog.Logger, opts LocalOptions) (LocalResult, error) {
	var res LocalResult
	outRoot := opts.OutDir
	if outRoot == "" {
		outRoot = "out"
	}
	res.RunDir = buildRunOutDir(outRoot, opts.Source, time.Now().UTC())
	if err := os.MkdirAll(res.RunDir, 0o755); err != nil {
		return res, err
	}
	absRun, err := filepath.Abs(res.RunDir)
	if err != nil {
		return res, err
	}

	cfg.Storage = config.StorageConfig{Driver: config.StorageLocal, LocalDir: absRun, PublicBaseURL: "file://" + filepath.ToSlash(absRun)}
	cfg.History = config.HistoryConfig{Driver: config.HistoryMemory}
	cfg.Pipeline.KeyPrefix = ""

	app, err := Build(ctx, cfg, log)
	if err != nil {
		return res, err
	}
	defer func() { _ = ShutdownWithTimeout(app) }()

	src, err := localSource(opts.Source, filepath.Join(cfg.ScratchDir, "uploads"))
	if err != nil {
		return res, err
	}
	req := types.GenerationRequest{
		Source:      src,
		ClipCount:   opts.ClipCount,
		Duration:    opts.Duration,
		AspectRatio: opts.AspectRatio,
		Subtitles:   opts.Subtitles,
		Template:    opts.Template,
	}
	runID, err := app.Orchestrator.Generate(ctx, localOwner, req)
	if err != nil {
		if src.Kind == types.SourceUpload {
			_ = os.Remove(src.UploadPath)
		}
		return res, err
	}

	res.View, err = follow(ctx, app, runID, opts)
	if err != nil {
		return res, err
	}

	res.Manifest = BuildManifest(res.View, req.Source.Name())
	res.ManifestPath, err = WriteManifest(res.RunDir, res.Manifest)
	if err != nil {
		return res, err
	}
	if res.View.Stage == types.StageFailed {
		return res, types.NewError(res.View.ErrorCategory, "run", errors.New(res.View.Error))
	}
	return res, nil
}

// follow polls the run until it ends. When ctx ends first the run is
// cancelled and its terminal view is still awaited.
func follow(ctx context.Context, app *App, runID string, opts LocalOptions) (types.RunView, error) {
	interval := opts.PollInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	done := make(chan struct{})
	var final types.RunView
	var waitErr error
	go func() {
		defer close(done)
		final, waitErr = app.Orchestrator.Wait(context.Background(), runID)
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	var last types.RunView
	report := func(v types.RunView) {
		if opts.Progress != nil && (v.Stage != last.Stage || v.Percent != last.Percent) {
			opts.Progress(v)
		}
		last = v
	}
	for {
		select {
		case <-done:
			if waitErr != nil {
				return final, waitErr
			}
			report(final)
			return final, nil
		case <-ctx.Done():
			_ = app.Orchestrator.Cancel(runID)
			ctx = context.Background()
		case <-ticker.C:
			if v, err := app.Orchestrator.Status(ctx, runID); err == nil {
				report(v)
			}
		}
	}
}

func localSource(source, stageDir string) (types.Source, error) {
	if strings.Contains(source, "://") {
		return types.Source{Kind: types.SourceURL, URL: source}, nil
	}
	abs, err := filepath.Abs(source)
	if err != nil {
		return types.Source{}, err
	}
	if _, err := os.Stat(abs); err != nil {
		return types.Source{}, fmt.Errorf("stat input: %w", err)
	}
	if err := os.MkdirAll(stageDir, 0o755); err != nil {
		return types.Source{}, err
	}
	dst := filepath.Join(stageDir, hash(fmt.Sprintf("%s|%d", abs, time.Now().UnixNano()))+filepath.Ext(abs))
	if err := linkOrCopy(abs, dst); err != nil {
		return types.Source{}, fmt.Errorf("stage input: %w", err)
	}
	return types.Source{Kind: types.SourceUpload, UploadPath: dst, UploadName: filepath.Base(abs)}, nil
}

func linkOrCopy(src, dst string) error {
	if err := os.Link(src, dst); err == nil {
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
		out.Close()
		_ = os.Remove(dst)
		return err
	}
	return out.Close()
}

// BuildManifest lists the published clips. Blob keys are paths relative to
// the run dir when storage is rooted there.
func BuildManifest(v types.RunView, source string) types.Manifest {
	m := types.Manifest{RunID: v.RunID, Source: source, Clips: make([]types.ManifestClip, 0, len(v.Clips))}
	for _, c := range v.Clips {
		m.Clips = append(m.Clips, types.ManifestClip{
			ID:        c.ID,
			StartSec:  c.StartTime,
			EndSec:    c.EndTime,
			Score:     c.Score,
			Origin:    string(c.Origin),
			Reason:    c.Reason,
			Hook:      c.Hook,
			Title:     c.Title,
			Duration:  c.Duration,
			File:      relKey(c.MediaKey),
			Thumbnail: relKey(c.ThumbnailKey),
			Subtitles: c.HasSubtitles,
			Shorter:   c.ShorterThanRequested,
		})
	}
	return m
}

func relKey(key string) string {
	if key == "" {
		return ""
	}
	return filepath.ToSlash(filepath.Clean(key))
}

func WriteManifest(runDir string, m types.Manifest) (string, error) {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal manifest: %w", err)
	}
	p := filepath.Join(runDir, "manifest.json")
	if err := os.WriteFile(p, b, 0o644); err != nil {
		return "", err
	}
	return p, nil
}

func buildRunOutDir(outRoot, source string, now time.Time) string {
	base := source
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	name := strings.TrimSuffix(base, filepath.Ext(base))
	name = normalizePathSegment(name)
	if name == "" {
		name = "input"
	}
	ts := now.UTC().Format("20060102-150405Z")
	runSeed := fmt.Sprintf("%s|%d", source, now.UTC().UnixNano())
	suffix := hash(runSeed)[:6]
	return filepath.Join(outRoot, fmt.Sprintf("%s-%s-%s", name, ts, suffix))
}

func normalizePathSegment(s string) string {
	var b strings.Builder
	prevDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
			prevDash = false
		default:
			if !prevDash {
				b.WriteByte('-')
				prevDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

func hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:12]
}

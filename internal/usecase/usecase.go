package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/forPelevin/tubebite/internal/domain/selection"
	"github.com/forPelevin/tubebite/internal/ports"
	"github.com/forPelevin/tubebite/internal/types"
)

type Deps struct {
	Downloader ports.Downloader
	Video      ports.VideoTool
	ASR        ports.ASR
	Detector   ports.MomentDetector
	Blobs      ports.BlobStore
	Log        zerolog.Logger

	// Captions is optional. When set, platform captions of YouTube sources
	// are used in place of speech recognition.
	Captions ports.CaptionSource
}

// Timeouts bound single stages inside the run deadline. Zero leaves a stage
// bounded by the run alone.
type Timeouts struct {
	Download time.Duration
	// Transcribe bounds each recognition attempt.
	Transcribe time.Duration
	// Render bounds each clip.
	Render time.Duration

	PublishAttempt time.Duration
}

type Config struct {
	Limits                Limits
	MaxTranscribeDuration float64
	TranscribeRetryDelay  time.Duration
	OverlapTolerance      float64
	RenderConcurrency     int
	DriftTolerance        float64
	PublishAttempts       int
	PublishBackoff        time.Duration
	KeyPrefix             string
	Timeouts              Timeouts
}

type Usecase struct {
	acquirer    *Acquirer
	transcriber *Transcriber
	detector    ports.MomentDetector
	renderer    *Renderer
	publisher   *Publisher
	cfg         Config
	log         zerolog.Logger
	now         func() time.Time
}

func New(d Deps, cfg Config) *Usecase {
	if cfg.RenderConcurrency <= 0 {
		cfg.RenderConcurrency = 1
	}
	if d.Detector == nil {
		d.Detector = HeuristicDetector{}
	}
	acq := NewAcquirer(d.Downloader, d.Video, cfg.Limits, d.Log.With().Str("stage", "acquire").Logger())
	acq.captions = d.Captions
	acq.timeout = cfg.Timeouts.Download
	tx := NewTranscriber(d.Video, d.ASR, cfg.MaxTranscribeDuration, cfg.TranscribeRetryDelay, d.Log.With().Str("stage", "transcribe").Logger())
	tx.timeout = cfg.Timeouts.Transcribe
	rnd := NewRenderer(d.Video, cfg.DriftTolerance, d.Log.With().Str("stage", "render").Logger())
	rnd.timeout = cfg.Timeouts.Render
	pub := NewPublisher(d.Blobs, cfg.KeyPrefix, cfg.PublishAttempts, cfg.PublishBackoff, d.Log.With().Str("stage", "publish").Logger())
	pub.attemptTimeout = cfg.Timeouts.PublishAttempt
	return &Usecase{
		acquirer:    acq,
		transcriber: tx,
		detector:    d.Detector,
		renderer:    rnd,
		publisher:   pub,
		cfg:         cfg,
		log:         d.Log,
		now:         time.Now,
	}
}

type Input struct {
	RunID      string
	OwnerID    string
	Request    types.GenerationRequest
	ScratchDir string
}

// Observer receives run progress. Clip must persist the clip; an error there
// counts as a publish failure of that clip.
type Observer interface {
	Stage(stage types.Stage)
	Planned(n int)
	Rendered(index int, err error)
	Published(index int, err error)
	Clip(ctx context.Context, clip types.GeneratedClip) error
	ClipFailed(f types.ClipFailure)
}

type Result struct {
	Asset    types.MediaAsset
	Selected []types.SelectedMoment
	Clips    []types.GeneratedClip
	Failures []types.ClipFailure
}

// Run drives one request from acquisition to published clips. The first four
// stages abort the run on error; render and publish failures only drop the
// affected clip. Once fan-out has started, cancelling ctx stops new clip jobs
// but lets started ones finish within the ctx deadline.
func (u *Usecase) Run(ctx context.Context, in Input, obs Observer) (Result, error) {
	var res Result
	req := in.Request
	log := u.log.With().Str("run_id", in.RunID).Str("owner_id", in.OwnerID).Logger()

	obs.Stage(types.StageAcquiring)
	asset, err := u.acquirer.Acquire(ctx, req.Source, in.ScratchDir)
	if err != nil {
		return res, stageErr(ctx, "acquire", err)
	}
	res.Asset = asset
	log.Info().Str("source", asset.SourceName).Float64("duration", asset.Duration).Msg("source acquired")

	if err := ctx.Err(); err != nil {
		return res, stageErr(ctx, "transcribe", err)
	}
	obs.Stage(types.StageTranscribing)
	tr, err := u.transcriber.Transcribe(ctx, asset)
	if err != nil {
		return res, stageErr(ctx, "transcribe", err)
	}

	if err := ctx.Err(); err != nil {
		return res, stageErr(ctx, "detect", err)
	}
	obs.Stage(types.StageDetecting)
	cands, err := u.detector.Detect(ctx, tr, asset.Duration, req.DetectOptions())
	if err != nil {
		if types.CategoryOf(err) == types.CategoryInternal {
			err = types.NewError(types.CategoryDetection, "detect", err)
		}
		return res, stageErr(ctx, "detect", err)
	}

	if err := ctx.Err(); err != nil {
		return res, stageErr(ctx, "select", err)
	}
	obs.Stage(types.StageSelecting)
	res.Selected = selection.Select(cands, selection.Options{
		Count:         req.ClipCount,
		Duration:      req.Duration,
		MediaDuration: asset.Duration,
		Tolerance:     u.cfg.OverlapTolerance,
	})
	if len(res.Selected) == 0 {
		return res, types.Errorf(types.CategoryDetection, "select", "no moments to render")
	}
	log.Info().Int("candidates", len(cands)).Int("selected", len(res.Selected)).Msg("moments selected")

	obs.Planned(len(res.Selected))
	obs.Stage(types.StageRendering)
	res.Clips, res.Failures = u.fanOut(ctx, in, asset, tr, res.Selected, obs)

	if len(res.Clips) == 0 || ctx.Err() != nil {
		if err := ctx.Err(); err != nil {
			return res, stageErr(ctx, "render", err)
		}
		cat := types.CategoryRender
		for _, f := range res.Failures {
			if f.Category == types.CategoryPublish {
				cat = types.CategoryPublish
				break
			}
		}
		return res, types.Errorf(cat, "run", "all %d clips failed", len(res.Selected))
	}
	log.Info().Int("clips", len(res.Clips)).Int("failed", len(res.Failures)).Msg("run finished")
	return res, nil
}

func (u *Usecase) fanOut(ctx context.Context, in Input, asset types.MediaAsset, tr types.Transcript, selected []types.SelectedMoment, obs Observer) ([]types.GeneratedClip, []types.ClipFailure) {
	// started jobs outlive cancellation but not the run deadline
	jobCtx := context.WithoutCancel(ctx)
	if dl, ok := ctx.Deadline(); ok {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithDeadline(jobCtx, dl)
		defer cancel()
	}

	var (
		mu         sync.Mutex
		clips      []types.GeneratedClip
		failures   []types.ClipFailure
		publishing atomic.Bool
	)
	fail := func(index int, err error) {
		f := types.ClipFailure{Index: index, Category: types.CategoryOf(err), Message: err.Error()}
		mu.Lock()
		failures = append(failures, f)
		mu.Unlock()
		obs.ClipFailed(f)
	}

	var g errgroup.Group
	g.SetLimit(u.cfg.RenderConcurrency)
	for _, m := range selected {
		if ctx.Err() != nil {
			break
		}
		m := m
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			rc, err := u.renderer.Render(jobCtx, asset, m, m.Rank, in.Request, tr)
			obs.Rendered(m.Rank, err)
			if err != nil {
				fail(m.Rank, err)
				return nil
			}
			if publishing.CompareAndSwap(false, true) {
				obs.Stage(types.StagePublishing)
			}
			pub, err := u.publisher.Publish(jobCtx, in.OwnerID, in.RunID, rc)
			if err != nil {
				obs.Published(m.Rank, err)
				fail(m.Rank, err)
				return nil
			}
			clip := u.clipRecord(in, rc, pub)
			if err := obs.Clip(jobCtx, clip); err != nil {
				err = types.NewError(types.CategoryPublish, "record clip", err)
				obs.Published(m.Rank, err)
				fail(m.Rank, err)
				return nil
			}
			obs.Published(m.Rank, nil)
			mu.Lock()
			clips = append(clips, clip)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(clips, func(i, j int) bool { return clips[i].Index < clips[j].Index })
	sort.Slice(failures, func(i, j int) bool { return failures[i].Index < failures[j].Index })
	return clips, failures
}

func (u *Usecase) clipRecord(in Input, rc RenderedClip, pub PublishedClip) types.GeneratedClip {
	m := rc.Moment
	title := m.Title
	if title == "" {
		title = fmt.Sprintf("Clip %d", rc.Index)
	}
	template := in.Request.Template
	if template == "" {
		template = types.DefaultTemplate
	}
	return types.GeneratedClip{
		ID:                   uuid.NewString(),
		RunID:                in.RunID,
		Index:                rc.Index,
		Title:                title,
		Duration:             types.FormatClock(rc.Duration),
		DurationSeconds:      rc.Duration,
		AspectRatio:          in.Request.AspectRatio,
		Template:             template,
		HasSubtitles:         rc.SubtitlesBurned,
		MediaURL:             pub.URL,
		ThumbnailURL:         pub.ThumbnailURL,
		MediaKey:             pub.MediaKey,
		ThumbnailKey:         pub.ThumbnailKey,
		CreatedAt:            u.now().UTC(),
		Score:                m.Score,
		Reason:               m.Reason,
		Hook:                 m.Hook,
		StartTime:            m.Start,
		EndTime:              m.End,
		Origin:               m.Origin,
		ShorterThanRequested: m.ShorterThanRequested,
	}
}

// Discard removes everything the run owns on disk, including an upload that
// was never moved into the scratch dir.
func (u *Usecase) Discard(in Input) error {
	var errs []error
	if in.ScratchDir != "" {
		errs = append(errs, os.RemoveAll(in.ScratchDir))
	}
	if p := in.Request.Source.UploadPath; in.Request.Source.Kind == types.SourceUpload && p != "" {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// stageErr prefers the context's own error once ctx has ended, since tools
// killed by the context report unrelated failures.
func stageErr(ctx context.Context, op string, err error) error {
	ctxErr := ctx.Err()
	if ctxErr == nil {
		return err
	}
	cause := ctxErr
	if !errors.Is(err, ctxErr) {
		cause = fmt.Errorf("%w: %v", ctxErr, err)
	}
	if errors.Is(ctxErr, context.DeadlineExceeded) {
		return types.NewError(types.CategoryTimeout, op, cause)
	}
	return types.NewError(types.CategoryCancelled, op, cause)
}

// boundCtx derives a stage context limited to d. d <= 0 only adds a cancel.
func boundCtx(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// stageExpired reports whether the stage context ran out while its parent is
// still live.
func stageExpired(parent, stage context.Context) bool {
	return parent.Err() == nil && errors.Is(stage.Err(), context.DeadlineExceeded)
}

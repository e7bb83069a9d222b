package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/forPelevin/tubebite/internal/types"
)

type fakeDownloader struct {
	meta       types.RemoteMedia
	inspectErr error
	downloadFn func(outPath string) (string, error)
	downloads  int

	// hang makes Download wait for its context
	hang bool
}

func (f *fakeDownloader) Inspect(context.Context, string) (types.RemoteMedia, error) {
	return f.meta, f.inspectErr
}

func (f *fakeDownloader) Download(ctx context.Context, _, outPath string, _ int64) (string, error) {
	f.downloads++
	if f.hang {
		<-ctx.Done()
		return "", fmt.Errorf("yt-dlp download: %w", ctx.Err())
	}
	if f.downloadFn != nil {
		return f.downloadFn(outPath)
	}
	return outPath, os.WriteFile(outPath, []byte("video"), 0o644)
}

type fakeVideo struct {
	mu        sync.Mutex
	source    types.MediaInfo
	probeErr  error
	renderErr func(spec types.RenderSpec) error
	onRender  func(spec types.RenderSpec)
	thumbErr  error
	outDur    func(spec types.RenderSpec) float64
	outputs   map[string]float64
	renders   []types.RenderSpec
	extracts  int

	// hangRender makes RenderClip wait for its context
	hangRender bool
}

func (f *fakeVideo) Probe(_ context.Context, path string) (types.MediaInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.outputs[path]; ok {
		return types.MediaInfo{Duration: d, HasVideo: true, HasAudio: true}, nil
	}
	return f.source, f.probeErr
}

func (f *fakeVideo) ExtractAudioMono16k(_ context.Context, _, outWav string) error {
	f.mu.Lock()
	f.extracts++
	f.mu.Unlock()
	return os.WriteFile(outWav, []byte("wav"), 0o644)
}

func (f *fakeVideo) RenderClip(ctx context.Context, spec types.RenderSpec) (types.RenderOutcome, error) {
	if f.onRender != nil {
		f.onRender(spec)
	}
	if f.hangRender {
		<-ctx.Done()
		return types.RenderOutcome{}, errors.New("signal: killed")
	}
	f.mu.Lock()
	f.renders = append(f.renders, spec)
	f.mu.Unlock()
	if f.renderErr != nil {
		if err := f.renderErr(spec); err != nil {
			return types.RenderOutcome{}, err
		}
	}
	if err := os.WriteFile(spec.Output, []byte("clip"), 0o644); err != nil {
		return types.RenderOutcome{}, err
	}
	f.mu.Lock()
	if f.outputs == nil {
		f.outputs = map[string]float64{}
	}
	d := spec.End - spec.Start
	if f.outDur != nil {
		d = f.outDur(spec)
	}
	f.outputs[spec.Output] = d
	f.mu.Unlock()
	return types.RenderOutcome{SubtitlesBurned: spec.Subtitles != ""}, nil
}

func (f *fakeVideo) Thumbnail(_ context.Context, _ string, _ float64, _ types.Canvas, out string) error {
	if f.thumbErr != nil {
		return f.thumbErr
	}
	return os.WriteFile(out, []byte("jpg"), 0o644)
}

func (f *fakeVideo) rendered() []types.RenderSpec {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.RenderSpec(nil), f.renders...)
}

type fakeASR struct {
	mu    sync.Mutex
	tr    types.Transcript
	errs  []error
	calls int
	block bool
	// hangs is how many leading calls wait for their context
	hangs int
}

func (f *fakeASR) Transcribe(ctx context.Context, _, _ string) (types.Transcript, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.mu.Unlock()
	if f.block || n <= f.hangs {
		<-ctx.Done()
		return types.Transcript{}, errors.New("signal: killed")
	}
	if n <= len(f.errs) && f.errs[n-1] != nil {
		return types.Transcript{}, f.errs[n-1]
	}
	return f.tr, nil
}

type fakeEngine struct {
	mu      sync.Mutex
	moments []types.CandidateMoment
	err     error
	prompts []types.EnginePrompt
}

func (f *fakeEngine) Moments(_ context.Context, p types.EnginePrompt) ([]types.CandidateMoment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, p)
	if f.err != nil {
		return nil, f.err
	}
	return f.moments, nil
}

type fakeBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	calls   map[string]int
	// failures is how many leading Put calls per key fail
	failures map[string]int
	// hangs is how many leading Put calls per key wait for their context
	hangs    map[string]int
	failAll  func(key string) bool
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{objects: map[string][]byte{}, calls: map[string]int{}, failures: map[string]int{}, hangs: map[string]int{}}
}

func (f *fakeBlobs) Put(ctx context.Context, key string, body io.Reader, _ string) (string, error) {
	b, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	f.calls[key]++
	hang := f.hangs[key] > 0
	if hang {
		f.hangs[key]--
	}
	f.mu.Unlock()
	if hang {
		<-ctx.Done()
		return "", fmt.Errorf("put %s: %w", key, ctx.Err())
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll != nil && f.failAll(key) {
		return "", fmt.Errorf("put %s: service unavailable", key)
	}
	if f.failures[key] > 0 {
		f.failures[key]--
		return "", fmt.Errorf("put %s: connection reset", key)
	}
	f.objects[key] = b
	return "https://cdn.test/" + key, nil
}

func (f *fakeBlobs) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	return nil
}

func (f *fakeBlobs) callsFor(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

type recObserver struct {
	mu        sync.Mutex
	stages    []types.Stage
	planned   int
	rendered  int
	published int
	clips     []types.GeneratedClip
	failures  []types.ClipFailure
	clipErr   error
	onStage   func(types.Stage)
}

func (o *recObserver) Stage(s types.Stage) {
	o.mu.Lock()
	o.stages = append(o.stages, s)
	o.mu.Unlock()
	if o.onStage != nil {
		o.onStage(s)
	}
}

func (o *recObserver) Planned(n int) {
	o.mu.Lock()
	o.planned = n
	o.mu.Unlock()
}

func (o *recObserver) Rendered(int, error) {
	o.mu.Lock()
	o.rendered++
	o.mu.Unlock()
}

func (o *recObserver) Published(int, error) {
	o.mu.Lock()
	o.published++
	o.mu.Unlock()
}

func (o *recObserver) Clip(_ context.Context, c types.GeneratedClip) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.clipErr != nil {
		return o.clipErr
	}
	o.clips = append(o.clips, c)
	return nil
}

func (o *recObserver) ClipFailed(f types.ClipFailure) {
	o.mu.Lock()
	o.failures = append(o.failures, f)
	o.mu.Unlock()
}

// tenSecondTranscript has one utterance every 10s across dur seconds.
func tenSecondTranscript(dur int) types.Transcript {
	tr := types.Transcript{Language: "en"}
	for s := 0; s < dur; s += 10 {
		tr.Segments = append(tr.Segments, types.Segment{
			Start: float64(s),
			End:   float64(s + 10),
			Text:  fmt.Sprintf("this is sentence number %d and it matters", s/10),
		})
	}
	return tr
}

type fakeCaptions struct {
	mu    sync.Mutex
	tr    types.Transcript
	err   error
	langs []string
}

func (f *fakeCaptions) Captions(_ context.Context, _, lang, _ string) (types.Transcript, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.langs = append(f.langs, lang)
	return f.tr, f.err
}

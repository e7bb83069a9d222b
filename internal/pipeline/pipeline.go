// Package pipeline wires configuration into adapters, the usecase and the
// orchestrator.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/forPelevin/tubebite/internal/config"
	"github.com/forPelevin/tubebite/internal/domain/highlights"
	"github.com/forPelevin/tubebite/internal/domain/moments"
	"github.com/forPelevin/tubebite/internal/housekeeping"
	"github.com/forPelevin/tubebite/internal/logging"
	"github.com/forPelevin/tubebite/internal/orchestrator"
	"github.com/forPelevin/tubebite/internal/ports"
	"github.com/forPelevin/tubebite/internal/ports/adapters/ffmpeg"
	"github.com/forPelevin/tubebite/internal/ports/adapters/localblob"
	"github.com/forPelevin/tubebite/internal/ports/adapters/memstore"
	"github.com/forPelevin/tubebite/internal/ports/adapters/openrouter"
	"github.com/forPelevin/tubebite/internal/ports/adapters/pgstore"
	"github.com/forPelevin/tubebite/internal/ports/adapters/s3blob"
	"github.com/forPelevin/tubebite/internal/ports/adapters/whispercpp"
	"github.com/forPelevin/tubebite/internal/ports/adapters/ytdlp"
	"github.com/forPelevin/tubebite/internal/usecase"
)

// App holds the wired service.
type App struct {
	Config       config.Config
	Log          zerolog.Logger
	History      ports.HistoryStore
	Blobs        ports.BlobStore
	Usecase      *usecase.Usecase
	Orchestrator *orchestrator.Orchestrator
	Purger       *housekeeping.Purger
	// MediaDir is the local blob root, empty for s3.
	MediaDir string

	pool *pgxpool.Pool
}

func Build(ctx context.Context, cfg config.Config, log zerolog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	app := &App{Config: cfg, Log: log}

	history, pool, err := OpenHistory(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	app.History, app.pool = history, pool

	switch cfg.Storage.Driver {
	case config.StorageS3:
		s, err := s3blob.New(ctx, s3blob.Options{
			Bucket:        cfg.Storage.S3.Bucket,
			Region:        cfg.Storage.S3.Region,
			Endpoint:      cfg.Storage.S3.Endpoint,
			UsePathStyle:  cfg.Storage.S3.UsePathStyle,
			PublicBaseURL: cfg.Storage.PublicBaseURL,
		})
		if err != nil {
			app.Close()
			return nil, err
		}
		app.Blobs = s
	default:
		s, err := localblob.New(cfg.Storage.LocalDir, cfg.Storage.PublicBaseURL)
		if err != nil {
			app.Close()
			return nil, err
		}
		app.Blobs, app.MediaDir = s, s.Root()
	}

	video := ffmpeg.New(cfg.Tools.FFmpeg, cfg.Tools.FFprobe, logging.WithComponent(log, "ffmpeg"))
	dl := ytdlp.New(cfg.Tools.YtDlp)
	deps := usecase.Deps{
		Downloader: dl,
		Video:      video,
		ASR:        whispercpp.New(cfg.Tools.WhisperBin, cfg.Tools.WhisperModel, cfg.Tools.WhisperLanguage, cfg.Tools.WhisperThreads),
		Detector:   detector(cfg, log),
		Blobs:      app.Blobs,
		Log:        logging.WithComponent(log, "usecase"),
	}
	if cfg.Pipeline.PlatformCaptions {
		deps.Captions = dl
	}
	app.Usecase = usecase.New(deps, usecase.Config{
		Limits: usecase.Limits{
			MaxSourceDuration: cfg.Limits.MaxSourceDuration.Seconds(),
			MaxUploadBytes:    cfg.MaxUploadBytes(),
		},
		MaxTranscribeDuration: cfg.Limits.MaxTranscribeDuration.Seconds(),
		TranscribeRetryDelay:  cfg.Pipeline.TranscribeRetryDelay,
		OverlapTolerance:      cfg.Pipeline.OverlapTolerance,
		RenderConcurrency:     cfg.Pipeline.RenderConcurrency,
		DriftTolerance:        cfg.Pipeline.DriftTolerance,
		PublishAttempts:       cfg.Pipeline.PublishAttempts,
		PublishBackoff:        cfg.Pipeline.PublishBackoff,
		KeyPrefix:             cfg.Pipeline.KeyPrefix,
		Timeouts: usecase.Timeouts{
			Download:       cfg.Pipeline.Timeouts.Download,
			Transcribe:     cfg.Pipeline.Timeouts.Transcribe,
			Render:         cfg.Pipeline.Timeouts.Render,
			PublishAttempt: cfg.Pipeline.Timeouts.PublishAttempt,
		},
	})
	app.Orchestrator = orchestrator.New(app.Usecase, app.History, orchestrator.Config{
		ScratchRoot:   cfg.ScratchDir,
		PerUserLimit:  cfg.Pipeline.PerUserLimit,
		RunTimeout:    cfg.Pipeline.RunTimeout,
		ViewRetention: cfg.Pipeline.ViewRetention,
	}, logging.WithComponent(log, "orchestrator"))
	app.Purger = housekeeping.NewPurger(app.History, app.Blobs, cfg.Housekeeping.Retention, logging.WithComponent(log, "housekeeping"))
	return app, nil
}

// OpenHistory returns the configured history store. The pool is nil for the
// in-memory store.
func OpenHistory(ctx context.Context, cfg config.Config, log zerolog.Logger) (ports.HistoryStore, *pgxpool.Pool, error) {
	if cfg.History.Driver != config.HistoryPostgres {
		return memstore.New(), nil, nil
	}
	pool, err := pgstore.Open(ctx, cfg.History.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	return pgstore.New(pool, logging.WithComponent(log, "pgstore")), pool, nil
}

func detector(cfg config.Config, log zerolog.Logger) ports.MomentDetector {
	if cfg.OpenRouter.APIKey == "" {
		log.Warn().Msg("OPENROUTER_API_KEY is not set, using heuristic moment detection")
		return usecase.HeuristicDetector{}
	}
	engine := openrouter.New(openrouter.Options{
		APIKey:        cfg.OpenRouter.APIKey,
		Model:         cfg.OpenRouter.Model,
		FallbackModel: cfg.OpenRouter.FallbackModel,
		BaseURL:       cfg.OpenRouter.BaseURL,
		Timeout:       cfg.OpenRouter.Timeout,
		RateLimitWait: cfg.OpenRouter.RateLimitWait,
	}, logging.WithComponent(log, "openrouter"))
	return usecase.NewEngineDetector(engine, highlights.DigestOptions{
		ChunkChars:   cfg.Detection.ChunkChars,
		OverlapChars: cfg.Detection.OverlapChars,
		MaxChunks:    cfg.Detection.MaxChunks,
	}, moments.DefaultBounds(), logging.WithComponent(log, "detect"))
}

// Migrate applies pending schema migrations. It is a no-op for the in-memory
// history store.
func (a *App) Migrate(ctx context.Context) ([]string, error) {
	if a.pool == nil {
		return nil, nil
	}
	return pgstore.Migrate(ctx, a.pool)
}

// Shutdown stops the orchestrator and releases the database pool.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	if a.Orchestrator != nil {
		err = a.Orchestrator.Shutdown(ctx)
	}
	a.Close()
	return err
}

func (a *App) Close() {
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
}

// ShutdownTimeout bounds how long live runs get to record their status.
const ShutdownTimeout = 30 * time.Second

func ShutdownWithTimeout(a *App) error {
	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := a.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

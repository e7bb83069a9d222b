// Package housekeeping removes trashed history once its retention has passed.
package housekeeping

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/forPelevin/tubebite/internal/ports"
	"github.com/forPelevin/tubebite/internal/types"
)

const (
	DefaultRetention = 10 * 24 * time.Hour
	DefaultSchedule  = "0 0 * * * *"
)

type Purger struct {
	store     ports.HistoryStore
	blobs     ports.BlobStore
	retention time.Duration
	log       zerolog.Logger
	now       func() time.Time
}

func NewPurger(store ports.HistoryStore, blobs ports.BlobStore, retention time.Duration, log zerolog.Logger) *Purger {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Purger{store: store, blobs: blobs, retention: retention, log: log, now: time.Now}
}

func (p *Purger) Retention() time.Duration { return p.retention }

// PurgeRun deletes the run's published objects and then its record. A blob
// that cannot be deleted keeps the record so a later pass can retry.
func (p *Purger) PurgeRun(ctx context.Context, runID string) error {
	it, err := p.store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	var errs []error
	for _, c := range it.Clips {
		for _, key := range []string{c.MediaKey, c.ThumbnailKey} {
			if key == "" || p.blobs == nil {
				continue
			}
			if err := p.blobs.Delete(ctx, key); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("purge run %s blobs: %w", runID, err)
	}
	if err := p.store.Purge(ctx, runID); err != nil && !errors.Is(err, types.ErrRunNotFound) {
		return fmt.Errorf("purge run %s: %w", runID, err)
	}
	return nil
}

// PurgeExpired purges every run trashed longer than the retention and reports
// how many went.
func (p *Purger) PurgeExpired(ctx context.Context) (int, error) {
	ids, err := p.store.ListExpired(ctx, p.now().Add(-p.retention))
	if err != nil {
		return 0, fmt.Errorf("list expired runs: %w", err)
	}
	purged := 0
	var errs []error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return purged, err
		}
		if err := p.PurgeRun(ctx, id); err != nil {
			p.log.Warn().Err(err).Str("run_id", id).Msg("purge failed")
			errs = append(errs, err)
			continue
		}
		purged++
	}
	return purged, errors.Join(errs...)
}

// Start schedules PurgeExpired with a seconds-resolution cron spec. The
// returned stop func waits for a running pass to finish.
func (p *Purger) Start(spec string) (stop func(), err error) {
	if spec == "" {
		spec = DefaultSchedule
	}
	c := cron.New(cron.WithSeconds())
	_, err = c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		n, err := p.PurgeExpired(ctx)
		if err != nil {
			p.log.Error().Err(err).Int("purged", n).Msg("scheduled purge finished with errors")
			return
		}
		if n > 0 {
			p.log.Info().Int("purged", n).Msg("scheduled purge")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("purge schedule %q: %w", spec, err)
	}
	c.Start()
	return func() { <-c.Stop().Done() }, nil
}

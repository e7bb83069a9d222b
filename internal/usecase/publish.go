package usecase

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"time"

	"github.com/rs/zerolog"

	"github.com/forPelevin/tubebite/internal/ports"
	"github.com/forPelevin/tubebite/internal/types"
)

type PublishedClip struct {
	URL          string
	ThumbnailURL string
	MediaKey     string
	ThumbnailKey string
}

type Publisher struct {
	blobs    ports.BlobStore
	prefix   string
	attempts int
	backoff  time.Duration
	log      zerolog.Logger

	// attemptTimeout bounds one upload. An attempt that runs out is retried.
	attemptTimeout time.Duration
}

func NewPublisher(blobs ports.BlobStore, prefix string, attempts int, backoff time.Duration, log zerolog.Logger) *Publisher {
	if attempts <= 0 {
		attempts = 1
	}
	return &Publisher{blobs: blobs, prefix: prefix, attempts: attempts, backoff: backoff, log: log}
}

// MediaKey and ThumbnailKey are stable per clip so re-uploads overwrite.
func MediaKey(prefix, ownerID, runID string, n int) string {
	return path.Join(prefix, "clips", ownerID, runID, fmt.Sprintf("clip_%d.mp4", n))
}

func ThumbnailKey(prefix, ownerID, runID string, n int) string {
	return path.Join(prefix, "thumbs", ownerID, runID, fmt.Sprintf("thumb_%d.jpg", n))
}

// Publish uploads the clip and, best effort, its thumbnail.
func (p *Publisher) Publish(ctx context.Context, ownerID, runID string, rc RenderedClip) (PublishedClip, error) {
	op := fmt.Sprintf("publish clip %d", rc.Index)
	out := PublishedClip{MediaKey: MediaKey(p.prefix, ownerID, runID, rc.Index)}

	url, err := p.put(ctx, out.MediaKey, rc.Path, "video/mp4")
	if err != nil {
		return PublishedClip{}, types.NewError(types.CategoryPublish, op, err)
	}
	out.URL = url

	if rc.Thumbnail == "" {
		return out, nil
	}
	key := ThumbnailKey(p.prefix, ownerID, runID, rc.Index)
	turl, err := p.put(ctx, key, rc.Thumbnail, "image/jpeg")
	if err != nil {
		p.log.Warn().Err(err).Int("clip", rc.Index).Msg("thumbnail upload failed")
		return out, nil
	}
	out.ThumbnailURL, out.ThumbnailKey = turl, key
	return out, nil
}

func (p *Publisher) put(ctx context.Context, key, file, contentType string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		url, err := p.putOnce(ctx, key, file, contentType)
		if err == nil {
			return url, nil
		}
		lastErr = err
		if ctx.Err() != nil || errors.Is(err, fs.ErrNotExist) {
			break
		}
		if attempt < p.attempts {
			p.log.Warn().Err(err).Str("key", key).Int("attempt", attempt).Msg("upload failed, retrying")
			if err := sleepCtx(ctx, p.backoff*time.Duration(attempt)); err != nil {
				break
			}
		}
	}
	return "", fmt.Errorf("upload %s: %w", key, lastErr)
}

func (p *Publisher) putOnce(ctx context.Context, key, file, contentType string) (string, error) {
	f, err := os.Open(file)
	if err != nil {
		return "", err
	}
	defer f.Close()

	actx, cancel := boundCtx(ctx, p.attemptTimeout)
	defer cancel()
	url, err := p.blobs.Put(actx, key, f, contentType)
	if err != nil && stageExpired(ctx, actx) {
		return "", fmt.Errorf("attempt timed out after %s: %w", p.attemptTimeout, err)
	}
	return url, err
}

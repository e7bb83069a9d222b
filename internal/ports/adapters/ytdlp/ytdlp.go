package ytdlp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/forPelevin/tubebite/internal/types"
)

const formatSpec = "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best"

type Adapter struct {
	bin string
}

func New(binPath string) *Adapter {
	if binPath == "" {
		binPath = "yt-dlp"
	}
	return &Adapter{bin: binPath}
}

type infoJSON struct {
	ID             string  `json:"id"`
	Title          string  `json:"title"`
	Thumbnail      string  `json:"thumbnail"`
	ExtractorKey   string  `json:"extractor_key"`
	Duration       float64 `json:"duration"`
	Filesize       int64   `json:"filesize"`
	FilesizeApprox int64   `json:"filesize_approx"`
	IsLive         bool    `json:"is_live"`
	LiveStatus     string  `json:"live_status"`

	// track formats are not needed, only the language keys
	Subtitles         map[string]json.RawMessage `json:"subtitles"`
	AutomaticCaptions map[string]json.RawMessage `json:"automatic_captions"`
}

func (a *Adapter) Inspect(ctx context.Context, url string) (types.RemoteMedia, error) {
	cmd := exec.CommandContext(ctx, a.bin, "-J", "--no-playlist", "--no-warnings", url)
	b, err := cmd.Output()
	if err != nil {
		return types.RemoteMedia{}, classify("yt-dlp inspect", err, stderrOf(err))
	}
	var info infoJSON
	if err := json.Unmarshal(b, &info); err != nil {
		return types.RemoteMedia{}, types.NewError(types.CategorySourceUnsupported, "yt-dlp inspect", fmt.Errorf("parse metadata: %w", err))
	}
	size := info.Filesize
	if size == 0 {
		size = info.FilesizeApprox
	}
	return types.RemoteMedia{
		ID:             info.ID,
		Title:          info.Title,
		Thumbnail:      info.Thumbnail,
		Extractor:      info.ExtractorKey,
		Duration:       info.Duration,
		FilesizeApprox: size,
		IsLive:         info.IsLive || info.LiveStatus == "is_live" || info.LiveStatus == "is_upcoming",
		Subtitles:      trackLangs(info.Subtitles),
		AutoCaptions:   trackLangs(info.AutomaticCaptions),
	}, nil
}

// Download fetches url into outPath and returns the file actually written.
func (a *Adapter) Download(ctx context.Context, url, outPath string, maxBytes int64) (string, error) {
	args := []string{
		"--no-playlist",
		"--no-warnings",
		"--no-progress",
		"-f", formatSpec,
		"--merge-output-format", "mp4",
		"-o", outPath,
	}
	if maxBytes > 0 {
		args = append(args, "--max-filesize", strconv.FormatInt(maxBytes, 10))
	}
	args = append(args, url)

	cmd := exec.CommandContext(ctx, a.bin, args...)
	b, err := cmd.CombinedOutput()
	out := string(b)
	if err != nil {
		return "", classify("yt-dlp download", err, out)
	}
	// yt-dlp exits 0 after skipping an oversized file
	if strings.Contains(out, "File is larger than max-filesize") {
		return "", types.Errorf(types.CategorySourceTooLarge, "yt-dlp download", "exceeds %d bytes", maxBytes)
	}
	for _, p := range []string{outPath, outPath + ".mp4"} {
		if st, err := os.Stat(p); err == nil && st.Size() > 0 {
			return p, nil
		}
	}
	return "", types.Errorf(types.CategorySourceUnreachable, "yt-dlp download", "no output file at %s\n%s", outPath, tailString(out, 500))
}

var (
	unsupportedHints = []string{
		"unsupported url",
		"is not a valid url",
		"video unavailable",
		"private video",
		"sign in to confirm",
		"confirm your age",
		"age-restricted",
		"in your country",
		"geo restrict",
		"members-only",
		"requested format is not available",
		"this live event",
	}
	unreachableHints = []string{
		"unable to download webpage",
		"name or service not known",
		"temporary failure in name resolution",
		"connection refused",
		"connection reset",
		"timed out",
		"network is unreachable",
		"http error 5",
		"http error 429",
	}
)

func classify(op string, err error, output string) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}
	if errors.Is(err, exec.ErrNotFound) {
		return types.NewError(types.CategorySourceUnreachable, op, err)
	}
	l := strings.ToLower(output)
	detail := fmt.Errorf("%w\n%s", err, tailString(output, 500))
	switch {
	case strings.Contains(l, "max-filesize"):
		return types.NewError(types.CategorySourceTooLarge, op, detail)
	case containsAny(l, unsupportedHints):
		return types.NewError(types.CategorySourceUnsupported, op, detail)
	case containsAny(l, unreachableHints):
		return types.NewError(types.CategorySourceUnreachable, op, detail)
	}
	return types.NewError(types.CategorySourceUnreachable, op, detail)
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func stderrOf(err error) string {
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return string(ee.Stderr)
	}
	return ""
}

func tailString(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

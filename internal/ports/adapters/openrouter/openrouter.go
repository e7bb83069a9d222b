package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/forPelevin/tubebite/internal/types"
)

const (
	DefaultModel         = "anthropic/claude-3.5-sonnet"
	DefaultFallbackModel = "openai/gpt-4o-mini"

	defaultTimeout       = 60 * time.Second
	defaultRateLimitWait = 8 * time.Second

	systemPrompt = "You are a viral content expert. Respond with a valid JSON array only. No markdown. No explanation."
)

type Options struct {
	APIKey        string
	Model         string
	FallbackModel string
	BaseURL       string
	Timeout       time.Duration
	RateLimitWait time.Duration
	HTTPClient    *http.Client
}

type Adapter struct {
	key      string
	primary  string
	fallback string
	baseURL  string
	timeout  time.Duration
	wait     time.Duration
	client   *http.Client
	log      zerolog.Logger

	mu     sync.Mutex
	active string
}

func New(opts Options, log zerolog.Logger) *Adapter {
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.FallbackModel == "" {
		opts.FallbackModel = DefaultFallbackModel
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.RateLimitWait <= 0 {
		opts.RateLimitWait = defaultRateLimitWait
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	return &Adapter{
		key:      opts.APIKey,
		primary:  opts.Model,
		fallback: opts.FallbackModel,
		baseURL:  normalizeBaseURL(opts.BaseURL),
		timeout:  opts.Timeout,
		wait:     opts.RateLimitWait,
		client:   opts.HTTPClient,
		log:      log,
		active:   opts.Model,
	}
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("openrouter status %d: %s", e.code, e.body)
}

func statusOf(err error) int {
	var se *statusError
	if errors.As(err, &se) {
		return se.code
	}
	return 0
}

// Moments asks the engine for candidate moments in one transcript chunk.
// A 429 is retried once after a pause and then the fallback model is used;
// a 404 switches to the fallback model directly. Once switched, later chunks
// stay on the fallback model.
func (a *Adapter) Moments(ctx context.Context, p types.EnginePrompt) ([]types.CandidateMoment, error) {
	if a.key == "" {
		return nil, fmt.Errorf("openrouter: %w: api key is not set", types.ErrEngineUnavailable)
	}
	prompt := buildPrompt(p)

	model := a.model()
	content, err := a.complete(ctx, model, prompt)
	if statusOf(err) == http.StatusTooManyRequests {
		a.log.Warn().Str("model", model).Dur("wait", a.wait).Int("chunk", p.ChunkIndex).Msg("rate limited, retrying")
		if serr := sleep(ctx, a.wait); serr != nil {
			return nil, serr
		}
		content, err = a.complete(ctx, model, prompt)
	}
	if code := statusOf(err); (code == http.StatusTooManyRequests || code == http.StatusNotFound) && model != a.fallback {
		a.log.Warn().Str("model", model).Str("fallback", a.fallback).Int("status", code).Msg("switching to fallback model")
		a.switchToFallback()
		model = a.fallback
		content, err = a.complete(ctx, model, prompt)
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("openrouter: %w", ctx.Err())
		}
		return nil, fmt.Errorf("openrouter (model=%s): %w: %v", model, types.ErrEngineUnavailable, err)
	}

	moments := parseMoments(content)
	a.log.Debug().Str("model", model).Int("chunk", p.ChunkIndex).Int("moments", len(moments)).Msg("engine reply parsed")
	return moments, nil
}

func (a *Adapter) model() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

func (a *Adapter) switchToFallback() {
	a.mu.Lock()
	a.active = a.fallback
	a.mu.Unlock()
}

func (a *Adapter) complete(ctx context.Context, model, prompt string) (string, error) {
	payload := map[string]any{
		"model":  model,
		"stream": false,
		"messages": []map[string]any{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": prompt},
		},
		"temperature": 0.7,
		"max_tokens":  8000,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, a.baseURL+"/api/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+a.key)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return "", fmt.Errorf("timeout after %s", a.timeout)
		}
		return "", errors.New(redactSecrets(err.Error(), a.key))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rb, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return "", &statusError{code: resp.StatusCode, body: truncate(redactSecrets(string(rb), a.key), 400)}
	}

	var raw struct {
		Choices []struct {
			Message struct {
				Content any `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(raw.Choices) == 0 {
		return "", nil
	}
	content, err := messageContentToString(raw.Choices[0].Message.Content)
	if err != nil {
		return "", nil
	}
	return content, nil
}

var aspectDescriptions = map[types.AspectRatio]string{
	types.Ratio9x16: "vertical short-form (YouTube Shorts / TikTok / Instagram Reels)",
	types.Ratio1x1:  "square (Instagram feed)",
	types.Ratio4x5:  "portrait (Instagram feed)",
	types.Ratio16x9: "landscape (YouTube / Twitter)",
}

func buildPrompt(p types.EnginePrompt) string {
	var durationHint string
	if p.Duration.IsAuto() {
		durationHint = "Pick the exact start and end so the clip holds one complete, self-contained thought. " +
			"Minimum 20 seconds, maximum 59 seconds. Never cut off mid-sentence."
	} else {
		durationHint = fmt.Sprintf("Each clip must be exactly %d seconds. Set end_time = start_time + %d. "+
			"Start at a natural sentence boundary.", p.Duration.Seconds, p.Duration.Seconds)
	}
	aspect, ok := aspectDescriptions[p.AspectRatio]
	if !ok {
		aspect = string(p.AspectRatio)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Find the %d best moments in the transcript below to turn into viral short clips.\n", p.ClipCount)
	fmt.Fprintf(&b, "Transcript chunk %d of %d. Total video length: %.0f seconds. Target format: %s.\n\n",
		p.ChunkIndex+1, p.ChunkCount, p.MediaDuration, aspect)
	b.WriteString("Each transcript line looks like [T=X.XXs] spoken text, where X.XX is the segment start in seconds. ")
	b.WriteString("Use those T values directly as start_time.\n\n")
	b.WriteString("Duration: " + durationHint + "\n\n")
	b.WriteString("Prefer, in order: counterintuitive facts, the emotional peak of a story, hot takes, " +
		"insights nobody talks about, funny or surprising moments, quotable one-liners, transformations. " +
		"Clips must be self-contained and must not overlap. Never pick greetings, intros, outros or calls to subscribe.\n\n")
	b.WriteString("Transcript:\n")
	b.WriteString(p.Digest)
	b.WriteString("\n\nReturn a JSON array only, each item shaped as ")
	b.WriteString(`{"start_time": <float>, "end_time": <float>, "title": "<5 words max>", "viral_reason": "<one sentence>", "viral_score": <0.0 to 1.0>, "hook": "<first sentence of the clip>"}`)
	b.WriteString(". If no strong moments exist in this chunk, return [].")
	return b.String()
}

// flexFloat accepts numbers and numeric strings.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(strings.TrimSuffix(s, "s"), 64)
	if err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

type replyMoment struct {
	StartTime   flexFloat `json:"start_time"`
	EndTime     flexFloat `json:"end_time"`
	Title       string    `json:"title"`
	ViralReason string    `json:"viral_reason"`
	ViralScore  flexFloat `json:"viral_score"`
	Hook        string    `json:"hook"`
}

// parseMoments never fails: an unreadable reply yields no moments. Items that
// do not decode are skipped individually.
func parseMoments(content string) []types.CandidateMoment {
	arr, err := extractJSONArray(content)
	if err != nil {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal([]byte(arr), &items); err != nil {
		return nil
	}
	out := make([]types.CandidateMoment, 0, len(items))
	for _, it := range items {
		var m replyMoment
		if err := json.Unmarshal(it, &m); err != nil {
			continue
		}
		out = append(out, types.CandidateMoment{
			Start:  float64(m.StartTime),
			End:    float64(m.EndTime),
			Score:  float64(m.ViralScore),
			Reason: strings.TrimSpace(m.ViralReason),
			Title:  strings.TrimSpace(m.Title),
			Hook:   strings.TrimSpace(m.Hook),
			Origin: types.OriginEngine,
		})
	}
	return out
}

func messageContentToString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []any:
		// some providers return an array of {type,text} parts
		var b strings.Builder
		for _, it := range x {
			m, ok := it.(map[string]any)
			if !ok {
				continue
			}
			if t, ok := m["text"].(string); ok {
				b.WriteString(t)
			}
		}
		s := b.String()
		if strings.TrimSpace(s) == "" {
			return "", errors.New("openrouter: empty content")
		}
		return s, nil
	default:
		return "", fmt.Errorf("openrouter: unexpected content type %T", v)
	}
}

var fenceRE = regexp.MustCompile("(?m)^```[a-zA-Z]*\\s*$")

func extractJSONArray(s string) (string, error) {
	t := strings.TrimSpace(fenceRE.ReplaceAllString(s, ""))
	if t == "" {
		return "", errors.New("openrouter: empty content")
	}
	start := strings.Index(t, "[")
	end := strings.LastIndex(t, "]")
	if start < 0 || end <= start {
		return "", fmt.Errorf("openrouter: no JSON array in %q", truncate(t, 200))
	}
	return t[start : end+1], nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("openrouter: %w", ctx.Err())
	case <-t.C:
		return nil
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

var (
	bearerTokenRE = regexp.MustCompile(`(?i)\bBearer\s+[A-Za-z0-9._-]+\b`)
	authHeaderRE  = regexp.MustCompile(`(?i)(authorization\s*[:=]\s*)([^\n\r,;]+)`)
	apiKeyFieldRE = regexp.MustCompile(`(?i)(api[_-]?key\s*[:=]\s*)([^\n\r,;]+)`)
)

func redactSecrets(s, apiKey string) string {
	if s == "" {
		return s
	}
	out := s
	if apiKey != "" {
		out = strings.ReplaceAll(out, apiKey, "[REDACTED]")
	}
	out = bearerTokenRE.ReplaceAllString(out, "Bearer [REDACTED]")
	out = authHeaderRE.ReplaceAllString(out, "${1}[REDACTED]")
	out = apiKeyFieldRE.ReplaceAllString(out, "${1}[REDACTED]")
	return out
}

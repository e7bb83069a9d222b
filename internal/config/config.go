// Package config loads service settings from defaults, an optional YAML file
// and the environment, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/forPelevin/tubebite/internal/ports/adapters/openrouter"
)

const (
	StorageLocal = "local"
	StorageS3    = "s3"

	HistoryMemory   = "memory"
	HistoryPostgres = "postgres"
)

type Config struct {
	Addr       string `yaml:"addr"`
	ScratchDir string `yaml:"scratch_dir"`

	Log          LogConfig          `yaml:"log"`
	Tools        ToolsConfig        `yaml:"tools"`
	OpenRouter   OpenRouterConfig   `yaml:"openrouter"`
	Limits       LimitsConfig       `yaml:"limits"`
	Pipeline     PipelineConfig     `yaml:"pipeline"`
	Detection    DetectionConfig    `yaml:"detection"`
	Storage      StorageConfig      `yaml:"storage"`
	History      HistoryConfig      `yaml:"history"`
	Housekeeping HousekeepingConfig `yaml:"housekeeping"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

type ToolsConfig struct {
	FFmpeg          string `yaml:"ffmpeg"`
	FFprobe         string `yaml:"ffprobe"`
	YtDlp           string `yaml:"yt_dlp"`
	WhisperBin      string `yaml:"whisper_bin"`
	WhisperModel    string `yaml:"whisper_model"`
	WhisperLanguage string `yaml:"whisper_language"`
	WhisperThreads  int    `yaml:"whisper_threads"`
}

type OpenRouterConfig struct {
	APIKey        string        `yaml:"api_key"`
	Model         string        `yaml:"model"`
	FallbackModel string        `yaml:"fallback_model"`
	BaseURL       string        `yaml:"base_url"`
	AllowedHosts  []string      `yaml:"allowed_hosts"`
	Timeout       time.Duration `yaml:"timeout"`
	RateLimitWait time.Duration `yaml:"rate_limit_wait"`
}

type LimitsConfig struct {
	MaxSourceDuration     time.Duration `yaml:"max_source_duration"`
	MaxUploadMB           int64         `yaml:"max_upload_mb"`
	MaxTranscribeDuration time.Duration `yaml:"max_transcribe_duration"`
}

type PipelineConfig struct {
	RenderConcurrency    int           `yaml:"render_concurrency"`
	PerUserLimit         int           `yaml:"per_user_limit"`
	RunTimeout           time.Duration `yaml:"run_timeout"`
	ViewRetention        time.Duration `yaml:"view_retention"`
	TranscribeRetryDelay time.Duration `yaml:"transcribe_retry_delay"`
	PublishAttempts      int           `yaml:"publish_attempts"`
	PublishBackoff       time.Duration `yaml:"publish_backoff"`
	OverlapTolerance     float64       `yaml:"overlap_tolerance"`
	DriftTolerance       float64       `yaml:"drift_tolerance"`
	KeyPrefix            string        `yaml:"key_prefix"`

	// PlatformCaptions uses YouTube captions instead of speech recognition
	// when the video has any.
	PlatformCaptions bool          `yaml:"platform_captions"`
	Timeouts         StageTimeouts `yaml:"timeouts"`
}

// StageTimeouts bound single stages inside run_timeout. Zero disables one.
type StageTimeouts struct {
	Download       time.Duration `yaml:"download"`
	Transcribe     time.Duration `yaml:"transcribe"`
	Render         time.Duration `yaml:"render"`
	PublishAttempt time.Duration `yaml:"publish_attempt"`
}

type DetectionConfig struct {
	ChunkChars   int `yaml:"chunk_chars"`
	OverlapChars int `yaml:"overlap_chars"`
	MaxChunks    int `yaml:"max_chunks"`
}

type StorageConfig struct {
	Driver        string   `yaml:"driver"`
	LocalDir      string   `yaml:"local_dir"`
	PublicBaseURL string   `yaml:"public_base_url"`
	S3            S3Config `yaml:"s3"`
}

type S3Config struct {
	Bucket       string `yaml:"bucket"`
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"`
	UsePathStyle bool   `yaml:"use_path_style"`
}

type HistoryConfig struct {
	Driver      string `yaml:"driver"`
	DatabaseURL string `yaml:"database_url"`
}

type HousekeepingConfig struct {
	Retention time.Duration `yaml:"retention"`
	Schedule  string        `yaml:"schedule"`
}

func Default() Config {
	return Config{
		Addr:       ":8080",
		ScratchDir: filepath.Join(os.TempDir(), "tubebite"),
		Log:        LogConfig{Level: "info"},
		Tools: ToolsConfig{
			FFmpeg:          "ffmpeg",
			FFprobe:         "ffprobe",
			YtDlp:           "yt-dlp",
			WhisperBin:      ".cache/bin/whisper.cpp",
			WhisperModel:    ".cache/models/ggml-base.bin",
			WhisperLanguage: "auto",
		},
		OpenRouter: OpenRouterConfig{
			Model:         openrouter.DefaultModel,
			FallbackModel: openrouter.DefaultFallbackModel,
			BaseURL:       openrouter.DefaultBaseURL,
			Timeout:       60 * time.Second,
			RateLimitWait: 8 * time.Second,
		},
		Limits: LimitsConfig{
			MaxSourceDuration:     3 * time.Hour,
			MaxUploadMB:           2048,
			MaxTranscribeDuration: 2 * time.Hour,
		},
		Pipeline: PipelineConfig{
			RenderConcurrency:    3,
			PerUserLimit:         2,
			RunTimeout:           45 * time.Minute,
			ViewRetention:        time.Hour,
			TranscribeRetryDelay: 2 * time.Second,
			PublishAttempts:      3,
			PublishBackoff:       time.Second,
			DriftTolerance:       0.5,
			KeyPrefix:            "tubebite",
			PlatformCaptions:     true,
			Timeouts: StageTimeouts{
				Download:       20 * time.Minute,
				Transcribe:     30 * time.Minute,
				Render:         10 * time.Minute,
				PublishAttempt: 2 * time.Minute,
			},
		},
		Detection: DetectionConfig{ChunkChars: 6000, OverlapChars: 500, MaxChunks: 8},
		Storage: StorageConfig{
			Driver:        StorageLocal,
			LocalDir:      "media",
			PublicBaseURL: "http://localhost:8080/media",
			S3:            S3Config{Region: "us-east-1"},
		},
		History:      HistoryConfig{Driver: HistoryMemory},
		Housekeeping: HousekeepingConfig{Retention: 10 * 24 * time.Hour, Schedule: "0 0 * * * *"},
	}
}

// Load reads path, or the first default location that exists, then applies
// environment overrides. A .env file in the working directory is loaded on a
// best-effort basis.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	explicit := path != ""
	if !explicit {
		path = findConfigFile()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
			}
		case explicit || !os.IsNotExist(err):
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func findConfigFile() string {
	candidates := []string{"tubebite.yaml", "tubebite.yml"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "tubebite", "config.yaml"))
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str("OPENROUTER_API_KEY", &c.OpenRouter.APIKey)
	str("OPENROUTER_MODEL", &c.OpenRouter.Model)
	str("OPENROUTER_FALLBACK_MODEL", &c.OpenRouter.FallbackModel)
	str("OPENROUTER_BASE_URL", &c.OpenRouter.BaseURL)
	if v, ok := lookup("OPENROUTER_ALLOWED_HOSTS"); ok && strings.TrimSpace(v) != "" {
		c.OpenRouter.AllowedHosts = splitList(v)
	}
	// a database url in the environment selects the postgres history store
	if v, ok := lookup("DATABASE_URL"); ok && strings.TrimSpace(v) != "" {
		c.History.DatabaseURL = strings.TrimSpace(v)
		c.History.Driver = HistoryPostgres
	}
	str("TUBEBITE_ADDR", &c.Addr)
	str("TUBEBITE_STORAGE", &c.Storage.Driver)
	str("S3_BUCKET", &c.Storage.S3.Bucket)
	str("AWS_REGION", &c.Storage.S3.Region)
	str("S3_ENDPOINT", &c.Storage.S3.Endpoint)
	str("TUBEBITE_PUBLIC_BASE_URL", &c.Storage.PublicBaseURL)
	str("WHISPER_BIN", &c.Tools.WhisperBin)
	str("WHISPER_MODEL", &c.Tools.WhisperModel)
	str("LOG_LEVEL", &c.Log.Level)
	if v, ok := lookup("S3_USE_PATH_STYLE"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: S3_USE_PATH_STYLE: %w", err)
		}
		c.Storage.S3.UsePathStyle = b
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c Config) Validate() error {
	var errs []error
	if c.Pipeline.RenderConcurrency < 1 {
		errs = append(errs, errors.New("pipeline.render_concurrency must be >= 1"))
	}
	if c.Pipeline.PerUserLimit < 1 {
		errs = append(errs, errors.New("pipeline.per_user_limit must be >= 1"))
	}
	if c.Pipeline.RunTimeout <= 0 {
		errs = append(errs, errors.New("pipeline.run_timeout must be > 0"))
	}
	if c.Pipeline.PublishAttempts < 1 {
		errs = append(errs, errors.New("pipeline.publish_attempts must be >= 1"))
	}
	if c.Pipeline.OverlapTolerance < 0 {
		errs = append(errs, errors.New("pipeline.overlap_tolerance must be >= 0"))
	}
	if t := c.Pipeline.Timeouts; t.Download < 0 || t.Transcribe < 0 || t.Render < 0 || t.PublishAttempt < 0 {
		errs = append(errs, errors.New("pipeline.timeouts must be >= 0"))
	}
	if c.Limits.MaxUploadMB <= 0 {
		errs = append(errs, errors.New("limits.max_upload_mb must be > 0"))
	}
	if c.Limits.MaxSourceDuration <= 0 || c.Limits.MaxTranscribeDuration <= 0 {
		errs = append(errs, errors.New("limits durations must be > 0"))
	}
	if c.Housekeeping.Retention <= 0 {
		errs = append(errs, errors.New("housekeeping.retention must be > 0"))
	}
	if c.Tools.WhisperModel == "" {
		errs = append(errs, errors.New("tools.whisper_model is required"))
	}
	switch c.Storage.Driver {
	case StorageLocal:
		if c.Storage.LocalDir == "" {
			errs = append(errs, errors.New("storage.local_dir is required for local storage"))
		}
	case StorageS3:
		if c.Storage.S3.Bucket == "" {
			errs = append(errs, errors.New("storage.s3.bucket is required for s3 storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q: want local or s3", c.Storage.Driver))
	}
	switch c.History.Driver {
	case HistoryMemory:
	case HistoryPostgres:
		if c.History.DatabaseURL == "" {
			errs = append(errs, errors.New("history.database_url is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("history.driver %q: want memory or postgres", c.History.Driver))
	}
	if err := openrouter.ValidateBaseURL(c.OpenRouter.BaseURL, c.OpenRouter.AllowedHosts); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// MaxUploadBytes is the upload ceiling in bytes.
func (c Config) MaxUploadBytes() int64 { return c.Limits.MaxUploadMB << 20 }

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	t.Parallel()
	require.NoError(t, Default().Validate())
}

func TestDefaultStageTimeoutsFitRun(t *testing.T) {
	t.Parallel()

	p := Default().Pipeline
	for _, d := range []time.Duration{p.Timeouts.Download, p.Timeouts.Transcribe, p.Timeouts.Render, p.Timeouts.PublishAttempt} {
		require.Positive(t, d)
		require.Less(t, d, p.RunTimeout)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Parallel()

	env := map[string]string{
		"OPENROUTER_API_KEY":       " sk-or-test ",
		"OPENROUTER_ALLOWED_HOSTS": "openrouter.ai, proxy.internal:8443,",
		"DATABASE_URL":             "postgres://u:p@db/tubebite",
		"TUBEBITE_STORAGE":         "s3",
		"S3_BUCKET":                "clips",
		"AWS_REGION":               "eu-central-1",
		"S3_USE_PATH_STYLE":        "true",
		"LOG_LEVEL":                "debug",
		"WHISPER_MODEL":            "",
	}
	cfg := Default()
	require.NoError(t, cfg.applyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}))

	require.Equal(t, "sk-or-test", cfg.OpenRouter.APIKey)
	require.Equal(t, []string{"openrouter.ai", "proxy.internal:8443"}, cfg.OpenRouter.AllowedHosts)
	require.Equal(t, HistoryPostgres, cfg.History.Driver)
	require.Equal(t, StorageS3, cfg.Storage.Driver)
	require.Equal(t, "eu-central-1", cfg.Storage.S3.Region)
	require.True(t, cfg.Storage.S3.UsePathStyle)
	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, Default().Tools.WhisperModel, cfg.Tools.WhisperModel)
}

func TestApplyEnv_BadBool(t *testing.T) {
	t.Parallel()

	cfg := Default()
	err := cfg.applyEnv(func(k string) (string, bool) {
		if k == "S3_USE_PATH_STYLE" {
			return "sometimes", true
		}
		return "", false
	})
	require.ErrorContains(t, err, "config: S3_USE_PATH_STYLE")
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tubebite.yaml")
	body := strings.Join([]string{
		"addr: \":9090\"",
		"pipeline:",
		"  render_concurrency: 5",
		"  run_timeout: 10m",
		"  platform_captions: false",
		"  timeouts:",
		"    render: 90s",
		"housekeeping:",
		"  schedule: \"0 */5 * * * *\"",
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.Addr)
	require.Equal(t, 5, cfg.Pipeline.RenderConcurrency)
	require.Equal(t, 10*time.Minute, cfg.Pipeline.RunTimeout)
	require.Equal(t, "0 */5 * * * *", cfg.Housekeeping.Schedule)
	require.Equal(t, 3, cfg.Pipeline.PublishAttempts)
	require.False(t, cfg.Pipeline.PlatformCaptions)
	require.Equal(t, 90*time.Second, cfg.Pipeline.Timeouts.Render)
	require.Equal(t, Default().Pipeline.Timeouts.PublishAttempt, cfg.Pipeline.Timeouts.PublishAttempt)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.ErrorContains(t, err, "config: read")
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero concurrency", func(c *Config) { c.Pipeline.RenderConcurrency = 0 }, "render_concurrency"},
		{"negative stage timeout", func(c *Config) { c.Pipeline.Timeouts.Download = -time.Second }, "pipeline.timeouts"},
		{"unknown storage", func(c *Config) { c.Storage.Driver = "ftp" }, "storage.driver"},
		{"s3 without bucket", func(c *Config) { c.Storage.Driver = StorageS3 }, "storage.s3.bucket"},
		{"postgres without url", func(c *Config) { c.History.Driver = HistoryPostgres }, "database_url"},
		{"plain http base url", func(c *Config) { c.OpenRouter.BaseURL = "http://openrouter.ai" }, "https"},
		{"host not allowed", func(c *Config) { c.OpenRouter.BaseURL = "https://evil.example" }, "evil.example"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.True(t, strings.HasPrefix(err.Error(), "config: "), err.Error())
			require.Contains(t, err.Error(), tc.want)
		})
	}
}

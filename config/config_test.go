package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetViper isolates a test from the global viper state.
func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
}

// newTestConfig returns a valid Config for testing
func newTestConfig() Config {
	return Config{
		Rules: RulesConfig{
			Dir:         "./rules",
			ExcludeFile: "config/exclude_rules.txt",
			NoisyFile:   "config/noisy_rules.txt",
		},
		Detection: DetectionConfig{RegexTimeout: DefaultRegexTimeout},
		Timeline: TimelineConfig{
			SampleSize: 5,
			Bucket:     time.Hour,
			Dimensions: []string{"event_type", "computer"},
		},
		Logging: LoggingConfig{Level: "info", Format: "console"},
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hayabusa.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	resetViper(t)

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "./rules", cfg.Rules.Dir)
	assert.Equal(t, "config/exclude_rules.txt", cfg.Rules.ExcludeFile)
	assert.Equal(t, "config/noisy_rules.txt", cfg.Rules.NoisyFile)
	assert.False(t, cfg.Detection.ShowNoisyAlerts, "noisy rules are suppressed by default")
	assert.Equal(t, DefaultRegexTimeout, cfg.Detection.RegexTimeout)
	assert.Equal(t, 4096, cfg.Detection.VerdictCacheSize)
	assert.Zero(t, cfg.Engine.WorkerCount)
	assert.False(t, cfg.Engine.AbortOnFileError)
	assert.Equal(t, 5, cfg.Timeline.SampleSize)
	assert.Equal(t, time.Hour, cfg.Timeline.Bucket)
	assert.Equal(t, []string{"event_type", "computer", "time_bucket"}, cfg.Timeline.Dimensions)
	assert.Empty(t, cfg.Input.Paths)
	assert.Equal(t, 4<<20, cfg.Input.MaxRecordSize)
	assert.Empty(t, cfg.Output.SnapshotFile)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
}

func TestLoadConfig_File(t *testing.T) {
	resetViper(t)

	path := writeConfig(t, `
rules:
  dir: /opt/hayabusa/rules
detection:
  show_noisy_alerts: true
  regex_timeout: 250ms
engine:
  worker_count: 8
  abort_on_file_error: true
timeline:
  sample_size: 10
  keep_findings: true
  bucket: 15m
  dimensions: [Computer, channel]
input:
  paths: [/evidence/host1, /evidence/host2]
  extensions: [.jsonl]
  skip_malformed: true
output:
  snapshot_file: out/snapshot.json
metrics:
  textfile: out/hayabusa.prom
logging:
  level: DEBUG
  format: json
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "/opt/hayabusa/rules", cfg.Rules.Dir)
	assert.True(t, cfg.Detection.ShowNoisyAlerts)
	assert.Equal(t, 250*time.Millisecond, cfg.Detection.RegexTimeout)
	assert.Equal(t, 8, cfg.Engine.WorkerCount)
	assert.True(t, cfg.Engine.AbortOnFileError)
	assert.Equal(t, 10, cfg.Timeline.SampleSize)
	assert.True(t, cfg.Timeline.KeepFindings)
	assert.Equal(t, 15*time.Minute, cfg.Timeline.Bucket)
	assert.Equal(t, []string{"computer", "channel"}, cfg.Timeline.Dimensions)
	assert.Equal(t, []string{"/evidence/host1", "/evidence/host2"}, cfg.Input.Paths)
	assert.Equal(t, []string{".jsonl"}, cfg.Input.Extensions)
	assert.True(t, cfg.Input.SkipMalformed)
	assert.Equal(t, "out/snapshot.json", cfg.Output.SnapshotFile)
	assert.Equal(t, "out/hayabusa.prom", cfg.Metrics.Textfile)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	// untouched keys keep their defaults
	assert.Equal(t, "config/exclude_rules.txt", cfg.Rules.ExcludeFile)
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	resetViper(t)

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	resetViper(t)

	path := writeConfig(t, "engine:\n  worker_count: 2\n")
	t.Setenv("HAYABUSA_ENGINE_WORKER_COUNT", "6")
	t.Setenv("HAYABUSA_TIMELINE_SAMPLE_SIZE", "3")
	t.Setenv("HAYABUSA_LOG_LEVEL", "warn")
	t.Setenv("HAYABUSA_SHOW_NOISY", "true")
	t.Setenv("HAYABUSA_TIMELINE_BUCKET", "24h")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 6, cfg.Engine.WorkerCount, "env beats file")
	assert.Equal(t, 3, cfg.Timeline.SampleSize)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.True(t, cfg.Detection.ShowNoisyAlerts)
	assert.Equal(t, 24*time.Hour, cfg.Timeline.Bucket)
}

func TestLoadConfig_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"unknown log level", "logging:\n  level: verbose\n", "Level"},
		{"unknown log format", "logging:\n  format: xml\n", "Format"},
		{"negative workers", "engine:\n  worker_count: -1\n", "WorkerCount"},
		{"negative samples", "timeline:\n  sample_size: -3\n", "SampleSize"},
		{"unknown dimension", "timeline:\n  dimensions: [computer, user]\n", "Dimensions"},
		{"zero bucket", "timeline:\n  bucket: 0s\n", "timeline.bucket"},
		{"sub-second bucket", "timeline:\n  bucket: 1500ms\n", "whole number of seconds"},
		{"negative regex timeout", "detection:\n  regex_timeout: -1s\n", "regex_timeout"},
		{"negative verdict cache", "detection:\n  verdict_cache_size: -1\n", "VerdictCacheSize"},
		{"empty rules dir", "rules:\n  dir: \"\"\n", "Dir"},
		{"malformed yaml", "engine: [", "failed to read config file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetViper(t)
			_, err := LoadConfig(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"missing exclude file", func(c *Config) { c.Rules.ExcludeFile = "" }, true},
		{"noisy file required when suppressing", func(c *Config) { c.Rules.NoisyFile = "" }, true},
		{"noisy file optional when shown", func(c *Config) {
			c.Rules.NoisyFile = ""
			c.Detection.ShowNoisyAlerts = true
		}, false},
		{"too many workers", func(c *Config) { c.Engine.WorkerCount = 5000 }, true},
		{"empty dimensions", func(c *Config) { c.Timeline.Dimensions = nil }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := newTestConfig()
			tt.mutate(&cfg)
			err := validateConfig(&cfg)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGetRegexTimeout(t *testing.T) {
	cfg := newTestConfig()
	cfg.Detection.RegexTimeout = 0
	assert.Equal(t, DefaultRegexTimeout, cfg.GetRegexTimeout())

	cfg.Detection.RegexTimeout = time.Second
	assert.Equal(t, time.Second, cfg.GetRegexTimeout())
}

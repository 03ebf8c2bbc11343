package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// HAYABUSA_ENGINE_WORKER_COUNT.
const EnvPrefix = "HAYABUSA"

// DefaultRegexTimeout bounds a single content pattern match.
const DefaultRegexTimeout = 100 * time.Millisecond

// RulesConfig locates the rule definitions and the rule filter sources.
type RulesConfig struct {
	// Dir holds the YAML rule definitions (HAYABUSA_RULES_DIR, default: ./rules)
	Dir string `mapstructure:"dir" validate:"required"`
	// ExcludeFile lists rules that are always suppressed.
	ExcludeFile string `mapstructure:"exclude_file" validate:"required"`
	// NoisyFile lists rules suppressed unless noisy alerts are shown.
	NoisyFile string `mapstructure:"noisy_file"`
}

// DetectionConfig tunes rule evaluation.
type DetectionConfig struct {
	ShowNoisyAlerts bool          `mapstructure:"show_noisy_alerts"`
	RegexTimeout    time.Duration `mapstructure:"regex_timeout"`
	// VerdictCacheSize caps memoized suspicious-content verdicts.
	VerdictCacheSize int `mapstructure:"verdict_cache_size" validate:"gte=0,lte=1000000"`
}

// EngineConfig controls how input files are processed.
type EngineConfig struct {
	// WorkerCount is the number of files processed concurrently. 0 = one per CPU.
	WorkerCount      int  `mapstructure:"worker_count" validate:"gte=0,lte=1024"`
	AbortOnFileError bool `mapstructure:"abort_on_file_error"`
}

// TimelineConfig shapes the snapshot.
type TimelineConfig struct {
	SampleSize   int           `mapstructure:"sample_size" validate:"gte=0,lte=1000"`
	KeepFindings bool          `mapstructure:"keep_findings"`
	Bucket       time.Duration `mapstructure:"bucket"`
	Dimensions   []string      `mapstructure:"dimensions" validate:"dive,oneof=source event_type channel computer time_bucket"`
}

// InputConfig selects and decodes the input record files.
type InputConfig struct {
	Paths []string `mapstructure:"paths"`
	// Extensions restricts directory scans. Empty = every supported format.
	Extensions    []string `mapstructure:"extensions"`
	SkipMalformed bool     `mapstructure:"skip_malformed"`
	MaxRecordSize int      `mapstructure:"max_record_size" validate:"gte=0"`
}

// OutputConfig controls where results are written.
type OutputConfig struct {
	// SnapshotFile receives the snapshot as JSON. Empty disables the file.
	SnapshotFile string `mapstructure:"snapshot_file"`
}

// MetricsConfig controls the Prometheus textfile export.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

// LoggingConfig selects the log level and encoding.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=console json"`
}

// Config holds all configuration for a scan.
type Config struct {
	Rules     RulesConfig     `mapstructure:"rules"`
	Detection DetectionConfig `mapstructure:"detection"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Timeline  TimelineConfig  `mapstructure:"timeline"`
	Input     InputConfig     `mapstructure:"input"`
	Output    OutputConfig    `mapstructure:"output"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

func setDefaults() {
	viper.SetDefault("rules.dir", "./rules")
	viper.SetDefault("rules.exclude_file", "config/exclude_rules.txt")
	viper.SetDefault("rules.noisy_file", "config/noisy_rules.txt")

	// noisy rules are suppressed unless explicitly requested
	viper.SetDefault("detection.show_noisy_alerts", false)
	viper.SetDefault("detection.regex_timeout", DefaultRegexTimeout)
	viper.SetDefault("detection.verdict_cache_size", 4096)

	viper.SetDefault("engine.worker_count", 0)
	viper.SetDefault("engine.abort_on_file_error", false)

	viper.SetDefault("timeline.sample_size", 5)
	viper.SetDefault("timeline.keep_findings", false)
	viper.SetDefault("timeline.bucket", time.Hour)
	viper.SetDefault("timeline.dimensions", []string{"event_type", "computer", "time_bucket"})

	viper.SetDefault("input.paths", []string{})
	viper.SetDefault("input.extensions", []string{})
	viper.SetDefault("input.skip_malformed", false)
	viper.SetDefault("input.max_record_size", 4<<20) // 4MB

	viper.SetDefault("output.snapshot_file", "")
	viper.SetDefault("metrics.textfile", "")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "console")
}

// loadFromEnv sets up environment variable loading
func loadFromEnv() {
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// shorter names for the settings changed most often
	_ = viper.BindEnv("rules.dir", EnvPrefix+"_RULES_DIR")
	_ = viper.BindEnv("engine.worker_count", EnvPrefix+"_ENGINE_WORKER_COUNT", EnvPrefix+"_WORKERS")
	_ = viper.BindEnv("logging.level", EnvPrefix+"_LOGGING_LEVEL", EnvPrefix+"_LOG_LEVEL")
	_ = viper.BindEnv("detection.show_noisy_alerts", EnvPrefix+"_DETECTION_SHOW_NOISY_ALERTS", EnvPrefix+"_SHOW_NOISY")
}

// LoadConfig reads the configuration from defaults, an optional YAML file and
// HAYABUSA_* environment variables, in increasing priority. Flags bound with
// viper.BindPFlag take precedence over all of them.
//
// An explicit path must exist. Without one, config.yaml is looked up in the
// working directory and ./config, and its absence is not an error.
func LoadConfig(path string) (*Config, error) {
	setDefaults()
	loadFromEnv()

	if path != "" {
		viper.SetConfigFile(path)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
		if err := viper.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			// no config file, defaults and env vars only
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	config.normalize()

	if err := validateConfig(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// normalize lowercases enum-like settings so validation is case-insensitive.
func (c *Config) normalize() {
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	for i, d := range c.Timeline.Dimensions {
		c.Timeline.Dimensions[i] = strings.ToLower(strings.TrimSpace(d))
	}
}

func validateConfig(config *Config) error {
	if err := validator.New().Struct(config); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config: %s: failed %q check (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	if config.Detection.RegexTimeout < 0 {
		return fmt.Errorf("invalid config: detection.regex_timeout must not be negative, got %s", config.Detection.RegexTimeout)
	}
	if config.Timeline.Bucket <= 0 {
		return fmt.Errorf("invalid config: timeline.bucket must be positive, got %s", config.Timeline.Bucket)
	}
	if config.Timeline.Bucket%time.Second != 0 {
		return fmt.Errorf("invalid config: timeline.bucket must be a whole number of seconds, got %s", config.Timeline.Bucket)
	}
	if !config.Detection.ShowNoisyAlerts && config.Rules.NoisyFile == "" {
		return errors.New("invalid config: rules.noisy_file is required unless detection.show_noisy_alerts is set")
	}
	return nil
}

// GetRegexTimeout returns the configured regex timeout, defaulting to
// DefaultRegexTimeout if not set.
func (c *Config) GetRegexTimeout() time.Duration {
	if c.Detection.RegexTimeout == 0 {
		return DefaultRegexTimeout
	}
	return c.Detection.RegexTimeout
}

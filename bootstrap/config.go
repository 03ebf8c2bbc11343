package bootstrap

import (
	"fmt"
	"os"

	"github.com/Yamato-Security/hayabusa-sub001/config"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// InitLogger builds the process logger. "console" gives colored, human
// readable lines; "json" gives one JSON object per line. Logs go to stderr so
// that stdout only carries command output.
func InitLogger(level, format string) (*zap.Logger, *zap.SugaredLogger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var encoder zapcore.Encoder
	switch format {
	case "", "console":
		encoderConfig := zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	case "json":
		encoderConfig := zap.NewProductionEncoderConfig()
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	default:
		return nil, nil, fmt.Errorf("invalid log format %q: must be console or json", format)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), lvl)
	logger := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	return logger, logger.Sugar(), nil
}

// InitConfig loads the configuration. It runs before the logger exists; the
// caller reports the returned error.
func InitConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// logConfig reports the effective configuration once the logger is up.
func logConfig(cfg *config.Config, sugar *zap.SugaredLogger) {
	if used := viper.ConfigFileUsed(); used == "" {
		sugar.Info("No config file found, using defaults and env vars")
	} else {
		sugar.Infow("Config file loaded", "path", used)
	}

	sugar.Infow("Config loaded",
		"rules_dir", cfg.Rules.Dir,
		"show_noisy_alerts", cfg.Detection.ShowNoisyAlerts,
		"workers", cfg.Engine.WorkerCount,
		"abort_on_file_error", cfg.Engine.AbortOnFileError,
		"sample_size", cfg.Timeline.SampleSize,
		"dimensions", cfg.Timeline.Dimensions)
}

// Package cmd provides the command-line interface of the scanner.
package cmd

import (
	"fmt"
	"io"

	"github.com/Yamato-Security/hayabusa-sub001/bootstrap"
	"github.com/Yamato-Security/hayabusa-sub001/config"

	"github.com/fatih/color"
	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// CLI output formatters
var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow)
	infoColor    = color.New(color.FgCyan)
	headerColor  = color.New(color.FgBlue, color.Bold)
)

// Global flags shared by all commands
var (
	configFile string
	outputJSON bool
	noColor    bool
	quiet      bool
)

// NewRootCmd creates the root command with all subcommands.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "hayabusa",
		Short: "Windows event log fast forensics timeline generator",
		Long: `Scan exported Windows event logs with the built-in detection rules and
build a timeline of findings with per-rule, per-host and per-hour statistics.

Input records are read from JSON lines, JSON arrays or MessagePack files,
optionally gzip or zstd compressed.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				color.NoColor = true
			}
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "Config file path (default: ./config.yaml or ./config/config.yaml)")
	flags.String("log-level", "info", "Log level: debug, info, warn or error")
	flags.String("log-format", "console", "Log format: console or json")
	flags.BoolVar(&outputJSON, "json", false, "Output in JSON format")
	flags.BoolVar(&noColor, "no-color", false, "Disable colored output")
	flags.BoolVar(&quiet, "quiet", false, "Suppress non-essential output")

	_ = viper.BindPFlag("logging.level", flags.Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", flags.Lookup("log-format"))

	rootCmd.AddCommand(newScanCmd())
	rootCmd.AddCommand(newRulesCmd())

	return rootCmd
}

// loadConfig loads the configuration and builds the logger it asks for.
func loadConfig() (*config.Config, *zap.SugaredLogger, error) {
	cfg, err := bootstrap.InitConfig(configFile)
	if err != nil {
		return nil, nil, err
	}
	_, sugar, err := bootstrap.InitLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, sugar, nil
}

// outputAsJSON writes data as indented JSON.
func outputAsJSON(w io.Writer, data interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

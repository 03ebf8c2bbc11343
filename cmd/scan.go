package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Yamato-Security/hayabusa-sub001/bootstrap"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// newScanCmd creates the 'scan' subcommand
func newScanCmd() *cobra.Command {
	var (
		showProgress bool
		topN         int
	)

	cmd := &cobra.Command{
		Use:   "scan [paths...]",
		Short: "Scan event log files and build a timeline",
		Long: `Scan the given files and directories (input.paths from the config when none
are given) with the built-in detection rules and print a summary of the findings.

Directories are searched recursively for supported record files. Noisy rules
listed in rules.noisy_file are suppressed unless --show-noisy is set.`,
		Example: `  hayabusa scan ./logs
  hayabusa scan --show-noisy --output out/snapshot.json dc01.jsonl.zst
  hayabusa scan --json ./logs > snapshot.json`,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return bindFlags(cmd, scanFlagKeys)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, sugar, err := loadConfig()
			if err != nil {
				return err
			}

			app, err := bootstrap.NewApp(cfg, sugar)
			if err != nil {
				return err
			}
			defer app.Shutdown()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var s *spinner.Spinner
			if showProgress && !outputJSON && !quiet {
				s = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
				s.Suffix = " Scanning event logs..."
				s.Start()
			}

			snapshot, err := app.Scan(ctx, args)

			if s != nil {
				s.Stop()
			}

			if err != nil {
				return err
			}

			if outputJSON {
				return outputAsJSON(cmd.OutOrStdout(), snapshot)
			}
			renderScanSummary(cmd.OutOrStdout(), snapshot, topN)
			if len(snapshot.FailedFiles) > 0 {
				return fmt.Errorf("%d input files could not be processed", len(snapshot.FailedFiles))
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.Bool("show-noisy", false, "Report rules listed in the noisy rules file")
	flags.IntP("workers", "w", 0, "Number of files processed in parallel (0 = one per CPU)")
	flags.StringP("output", "o", "", "Write the snapshot as JSON to this file")
	flags.Bool("keep-findings", false, "Keep every finding in the snapshot timeline")
	flags.Bool("abort-on-error", false, "Stop at the first input file that fails to parse")
	flags.Bool("skip-malformed", false, "Skip records that fail to decode instead of failing the file")
	flags.StringSlice("ext", nil, "File extensions to scan in directories (default: all supported)")
	flags.BoolVar(&showProgress, "progress", true, "Show progress indicator")
	flags.IntVar(&topN, "top", 10, "Number of rules listed in the summary")

	return cmd
}

// scanFlagKeys maps scan flags to the config keys they override.
var scanFlagKeys = map[string]string{
	"show-noisy":     "detection.show_noisy_alerts",
	"workers":        "engine.worker_count",
	"output":         "output.snapshot_file",
	"keep-findings":  "timeline.keep_findings",
	"abort-on-error": "engine.abort_on_file_error",
	"skip-malformed": "input.skip_malformed",
	"ext":            "input.extensions",
}

// bindFlags binds the flags of the command being run to their config keys.
// Binding happens at run time because several commands share a key.
func bindFlags(cmd *cobra.Command, keys map[string]string) error {
	for name, key := range keys {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
			return fmt.Errorf("failed to bind flag --%s: %w", name, err)
		}
	}
	return nil
}

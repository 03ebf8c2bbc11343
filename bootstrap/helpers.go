package bootstrap

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/Yamato-Security/hayabusa-sub001/config"
	"github.com/Yamato-Security/hayabusa-sub001/core"
	"github.com/Yamato-Security/hayabusa-sub001/detect"

	"go.uber.org/zap"
)

// OutputDirectories lists the directories a scan writes to.
func OutputDirectories(cfg *config.Config) []string {
	var dirs []string
	seen := make(map[string]struct{})
	for _, path := range []string{cfg.Output.SnapshotFile, cfg.Metrics.Textfile} {
		if path == "" {
			continue
		}
		dir := filepath.Dir(path)
		if _, ok := seen[dir]; ok {
			continue
		}
		seen[dir] = struct{}{}
		dirs = append(dirs, dir)
	}
	return dirs
}

// EnsureOutputDirectories creates the output directories and verifies they are
// writable. It runs before any input is read so a long scan cannot fail at the
// very end on a permissions problem.
func EnsureOutputDirectories(cfg *config.Config, sugar *zap.SugaredLogger) error {
	for _, dir := range OutputDirectories(cfg) {
		absPath, err := filepath.Abs(dir)
		if err != nil {
			return fmt.Errorf("failed to resolve absolute path for %s: %w", dir, err)
		}

		if err := os.MkdirAll(absPath, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory %s: %w\n"+
				"  Remediation: Ensure the parent directory exists and is writable\n"+
				"  Or run 'mkdir -p %s'", dir, err, absPath)
		}

		testFile := filepath.Join(absPath, ".hayabusa_write_test")
		if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
			return fmt.Errorf("output directory %s is not writable: %w\n"+
				"  Remediation: Check file system permissions\n"+
				"  Or run 'chmod -R u+w %s'", dir, err, absPath)
		}
		os.Remove(testFile)

		sugar.Debugw("Output directory ready", "path", absPath)
	}
	return nil
}

// ClassifyStartupError adds a remediation hint to errors from NewApp.
func ClassifyStartupError(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, detect.ErrRulesDirUnreadable):
		return fmt.Sprintf("%v\n"+
			"  Remediation:\n"+
			"  - Check rules.dir in config.yaml or the HAYABUSA_RULES_DIR env var\n"+
			"  - The directory must contain the .yml rule definitions", err)
	case errors.Is(err, core.ErrRuleSourceUnreadable):
		return fmt.Sprintf("%v\n"+
			"  Remediation:\n"+
			"  - Check rules.exclude_file and rules.noisy_file in config.yaml\n"+
			"  - An empty file is valid; a missing one is not\n"+
			"  - Pass --show-noisy to skip reading the noisy rules file", err)
	case errors.Is(err, fs.ErrPermission) || containsIgnoreCase(err.Error(), "permission denied"):
		return fmt.Sprintf("%v\n"+
			"  Remediation:\n"+
			"  - Check file and directory permissions\n"+
			"  - Event log exports copied from Windows hosts are often read-only", err)
	}
	return err.Error()
}

// containsIgnoreCase checks if a string contains a substring (case-insensitive).
func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

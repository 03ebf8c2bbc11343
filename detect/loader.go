package detect

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/Yamato-Security/hayabusa-sub001/core"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// ErrRulesDirUnreadable is returned when the rule definition directory itself
// cannot be read. Individual bad files are skipped instead.
var ErrRulesDirUnreadable = errors.New("rules directory unreadable")

// maxRuleFileSize guards against oversized YAML documents.
const maxRuleFileSize = 1024 * 1024

// ruleDocument is the on-disk shape of a rule definition. Only the rule
// section is interpreted; other keys (title, detection, ...) are ignored.
type ruleDocument struct {
	ID   string       `yaml:"id" validate:"omitempty,max=256"`
	Rule *ruleSection `yaml:"rule" validate:"omitempty"`
}

type ruleSection struct {
	Severity string `yaml:"severity" validate:"omitempty,max=32"`
	Name     string `yaml:"name" validate:"omitempty,max=1024"`
	Message  string `yaml:"message" validate:"omitempty,max=4096"`
}

// SkippedRule records a rule definition that could not be loaded.
type SkippedRule struct {
	Path   string `json:"path"`
	RuleID string `json:"rule_id,omitempty"`
	Reason string `json:"reason"`
}

// LoadReport is the outcome of loading a rules directory.
type LoadReport struct {
	Rules   []core.Rule   `json:"rules"`
	Skipped []SkippedRule `json:"skipped,omitempty"`
}

// RuleLoader reads rule definitions from YAML files.
type RuleLoader struct {
	validate *validator.Validate
	logger   *zap.SugaredLogger
}

// NewRuleLoader creates a loader.
func NewRuleLoader(logger *zap.SugaredLogger) *RuleLoader {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &RuleLoader{
		validate: validator.New(),
		logger:   logger,
	}
}

// LoadRuleDefinitions is a convenience wrapper around RuleLoader.LoadDir.
func LoadRuleDefinitions(dir string, logger *zap.SugaredLogger) (*LoadReport, error) {
	return NewRuleLoader(logger).LoadDir(dir)
}

// LoadDir walks dir for .yml/.yaml files and loads every rule definition in
// them. Malformed definitions are skipped and reported; only an unreadable
// directory is an error.
func (l *RuleLoader) LoadDir(dir string) (*LoadReport, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRulesDirUnreadable, dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrRulesDirUnreadable, dir)
	}

	report := &LoadReport{}
	seen := make(map[string]string)

	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == dir {
				return walkErr
			}
			l.skip(report, SkippedRule{Path: path, Reason: walkErr.Error()})
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".yml" && ext != ".yaml" {
			return nil
		}

		rules, skipped := l.loadFile(path)
		for _, s := range skipped {
			l.skip(report, s)
		}
		for _, rule := range rules {
			if prev, dup := seen[rule.ID]; dup {
				l.skip(report, SkippedRule{
					Path:   path,
					RuleID: rule.ID,
					Reason: fmt.Sprintf("%v: already defined in %s", core.ErrDuplicateRule, prev),
				})
				continue
			}
			seen[rule.ID] = path
			report.Rules = append(report.Rules, rule)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRulesDirUnreadable, dir, err)
	}

	l.logger.Infof("Loaded %d rule definitions from %s (%d skipped)", len(report.Rules), dir, len(report.Skipped))
	return report, nil
}

func (l *RuleLoader) skip(report *LoadReport, s SkippedRule) {
	l.logger.Warnw("Skipping rule definition", "path", s.Path, "rule_id", s.RuleID, "reason", s.Reason)
	report.Skipped = append(report.Skipped, s)
}

// loadFile parses every YAML document in a file. A syntax error abandons the
// rest of the file; a type error only skips the offending document.
func (l *RuleLoader) loadFile(path string) ([]core.Rule, []SkippedRule) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, []SkippedRule{{Path: path, Reason: fmt.Sprintf("failed to read rule file: %v", err)}}
	}
	if len(data) > maxRuleFileSize {
		return nil, []SkippedRule{{Path: path, Reason: fmt.Sprintf("rule file exceeds maximum size of %d bytes", maxRuleFileSize)}}
	}

	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	dec := yaml.NewDecoder(bytes.NewReader(data))

	var (
		rules   []core.Rule
		skipped []SkippedRule
	)
	for index := 0; ; index++ {
		var doc ruleDocument
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var typeErr *yaml.TypeError
			if errors.As(err, &typeErr) {
				skipped = append(skipped, SkippedRule{Path: path, RuleID: doc.ID, Reason: fmt.Sprintf("failed to parse rule: %v", err)})
				continue
			}
			skipped = append(skipped, SkippedRule{Path: path, Reason: fmt.Sprintf("failed to parse YAML: %v", err)})
			break
		}
		if doc.ID == "" && doc.Rule == nil {
			// empty document, e.g. a trailing "---"
			continue
		}
		if doc.ID == "" && index == 0 {
			doc.ID = stem
		}

		rule, err := l.toRule(doc)
		if err != nil {
			skipped = append(skipped, SkippedRule{Path: path, RuleID: doc.ID, Reason: err.Error()})
			continue
		}
		rule.Path = path
		rules = append(rules, rule)
	}
	return rules, skipped
}

func (l *RuleLoader) toRule(doc ruleDocument) (core.Rule, error) {
	if err := l.validate.Struct(doc); err != nil {
		return core.Rule{}, fmt.Errorf("invalid rule definition: %w", err)
	}
	rule := core.Rule{ID: strings.TrimSpace(doc.ID)}
	if doc.Rule != nil {
		sev, err := core.ParseSeverity(doc.Rule.Severity)
		if err != nil {
			return core.Rule{}, err
		}
		rule.Severity = sev
		rule.Name = strings.TrimSpace(doc.Rule.Name)
		rule.Message = doc.Rule.Message
	}
	if err := rule.Validate(); err != nil {
		return core.Rule{}, err
	}
	return rule, nil
}

package core

import (
	"errors"
	"fmt"
	"strings"
)

// Severity is the level attached to a rule. The empty Severity means the rule
// definition did not specify one.
type Severity string

const (
	SeverityNone          Severity = ""
	SeverityInformational Severity = "informational"
	SeverityLow           Severity = "low"
	SeverityMedium        Severity = "medium"
	SeverityHigh          Severity = "high"
	SeverityCritical      Severity = "critical"
)

// Sentinel errors for rule validation
var (
	ErrInvalidSeverity = errors.New("invalid severity")
	ErrMissingRuleID   = errors.New("rule missing ID")
	ErrDuplicateRule   = errors.New("duplicate rule ID")
)

// severityAliases maps the spellings found in rule files to the canonical level.
var severityAliases = map[string]Severity{
	"":              SeverityNone,
	"info":          SeverityInformational,
	"informational": SeverityInformational,
	"low":           SeverityLow,
	"medium":        SeverityMedium,
	"med":           SeverityMedium,
	"high":          SeverityHigh,
	"critical":      SeverityCritical,
	"crit":          SeverityCritical,
}

// ParseSeverity normalizes a severity string. Matching is case-insensitive and
// surrounding whitespace is ignored.
func ParseSeverity(s string) (Severity, error) {
	sev, ok := severityAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return SeverityNone, fmt.Errorf("%w: %q", ErrInvalidSeverity, s)
	}
	return sev, nil
}

// Rank orders severities from none (0) to critical (5).
func (s Severity) Rank() int {
	switch s {
	case SeverityInformational:
		return 1
	case SeverityLow:
		return 2
	case SeverityMedium:
		return 3
	case SeverityHigh:
		return 4
	case SeverityCritical:
		return 5
	default:
		return 0
	}
}

// String returns the severity, or "none" when absent.
func (s Severity) String() string {
	if s == SeverityNone {
		return "none"
	}
	return string(s)
}

// Rule is the metadata of a single detection rule.
type Rule struct {
	ID       string   `json:"id" yaml:"id"`
	Severity Severity `json:"severity,omitempty" yaml:"severity,omitempty"`
	Name     string   `json:"name,omitempty" yaml:"name,omitempty"`
	// Message is a template; %Field% placeholders are filled from the
	// evidence of the finding.
	Message string `json:"message,omitempty" yaml:"message,omitempty"`
	// Path is the rule file the definition was loaded from.
	Path string `json:"path,omitempty" yaml:"-"`
}

// Validate checks the rule's identifier and severity.
func (r *Rule) Validate() error {
	if r == nil {
		return fmt.Errorf("cannot validate nil rule")
	}
	if strings.TrimSpace(r.ID) == "" {
		return ErrMissingRuleID
	}
	if strings.ContainsAny(r.ID, " \t\r\n") {
		return fmt.Errorf("rule ID %q must not contain whitespace", r.ID)
	}
	if r.Severity != SeverityNone && r.Severity.Rank() == 0 {
		return fmt.Errorf("rule %s: %w: %q", r.ID, ErrInvalidSeverity, r.Severity)
	}
	return nil
}

// DisplayName returns the rule name, falling back to its ID.
func (r Rule) DisplayName() string {
	if r.Name != "" {
		return r.Name
	}
	return r.ID
}

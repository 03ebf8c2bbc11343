package detect

import (
	"fmt"
	"time"

	"github.com/dlclark/regexp2"
)

// DefaultRegexTimeout bounds a single match of a content pattern.
const DefaultRegexTimeout = 100 * time.Millisecond

// SafeMatcher is a case-insensitive backtracking pattern with a match timeout,
// used on attacker-controlled text such as command lines and script blocks.
// A timed-out match counts as no match.
type SafeMatcher struct {
	re *regexp2.Regexp
}

// CompileSafe compiles pattern with the given match timeout.
func CompileSafe(pattern string, timeout time.Duration) (*SafeMatcher, error) {
	if pattern == "" {
		return nil, fmt.Errorf("regex pattern cannot be empty")
	}
	if timeout <= 0 {
		timeout = DefaultRegexTimeout
	}
	re, err := regexp2.Compile(pattern, regexp2.IgnoreCase)
	if err != nil {
		return nil, fmt.Errorf("failed to compile regex pattern: %w", err)
	}
	re.MatchTimeout = timeout
	return &SafeMatcher{re: re}, nil
}

// MustCompileSafe is CompileSafe for patterns known at build time.
func MustCompileSafe(pattern string, timeout time.Duration) *SafeMatcher {
	m, err := CompileSafe(pattern, timeout)
	if err != nil {
		panic(err)
	}
	return m
}

// Match reports whether input matches. Errors, including timeouts, are a miss.
func (m *SafeMatcher) Match(input string) bool {
	if m == nil || input == "" {
		return false
	}
	ok, err := m.re.MatchString(input)
	return err == nil && ok
}

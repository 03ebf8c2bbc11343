package core

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// ErrRuleSourceUnreadable is returned when a rule list that the filter depends
// on cannot be opened or read. It is fatal at startup.
var ErrRuleSourceUnreadable = errors.New("rule source unreadable")

// RuleSource is a textual list of rule identifiers.
type RuleSource interface {
	// Name identifies the source in error messages (usually the file path).
	Name() string
	Open() (io.ReadCloser, error)
}

// fileRuleSource reads identifiers from a file on disk.
type fileRuleSource string

// FileRuleSource returns a RuleSource backed by the file at path.
func FileRuleSource(path string) RuleSource {
	return fileRuleSource(path)
}

func (f fileRuleSource) Name() string { return string(f) }

func (f fileRuleSource) Open() (io.ReadCloser, error) {
	return os.Open(string(f))
}

// RuleFilterSet is the set of rule identifiers that must never produce a
// finding. It is immutable after construction and safe to share across
// goroutines without locking.
type RuleFilterSet struct {
	ids map[string]struct{}
}

// BuildRuleFilter reads the exclude source and, when suppressNoisy is set, the
// noisy source, and merges their identifiers into a set. The noisy source is
// not opened at all when suppressNoisy is false.
func BuildRuleFilter(exclude, noisy RuleSource, suppressNoisy bool) (*RuleFilterSet, error) {
	set := &RuleFilterSet{ids: make(map[string]struct{})}

	if err := set.merge(exclude); err != nil {
		return nil, err
	}
	if suppressNoisy {
		if err := set.merge(noisy); err != nil {
			return nil, err
		}
	}
	return set, nil
}

// NewRuleFilterSet builds a set directly from identifiers. Empty and
// whitespace-only entries are dropped.
func NewRuleFilterSet(ids ...string) *RuleFilterSet {
	set := &RuleFilterSet{ids: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		for _, tok := range strings.Fields(id) {
			set.ids[tok] = struct{}{}
		}
	}
	return set
}

func (s *RuleFilterSet) merge(src RuleSource) error {
	if src == nil {
		return fmt.Errorf("%w: no source configured", ErrRuleSourceUnreadable)
	}
	rc, err := src.Open()
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrRuleSourceUnreadable, src.Name(), err)
	}
	defer rc.Close()

	scanner := bufio.NewScanner(rc)
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		for _, tok := range strings.Fields(line) {
			s.ids[tok] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrRuleSourceUnreadable, src.Name(), err)
	}
	return nil
}

// Contains reports whether the rule is suppressed.
func (s *RuleFilterSet) Contains(id string) bool {
	if s == nil {
		return false
	}
	_, ok := s.ids[id]
	return ok
}

// Len returns the number of suppressed rules.
func (s *RuleFilterSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.ids)
}

// IDs returns a sorted copy of the suppressed identifiers.
func (s *RuleFilterSet) IDs() []string {
	if s == nil {
		return nil
	}
	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

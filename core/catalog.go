package core

import (
	"fmt"
	"sort"
)

// Catalog is the immutable set of rules known for a run. It is built once at
// startup and shared read-only by every worker.
type Catalog struct {
	rules map[string]Rule
	ids   []string
}

// NewCatalog builds a catalog from validated rules. Duplicate identifiers are
// rejected.
func NewCatalog(rules []Rule) (*Catalog, error) {
	c := &Catalog{
		rules: make(map[string]Rule, len(rules)),
		ids:   make([]string, 0, len(rules)),
	}
	for i := range rules {
		rule := rules[i]
		if err := rule.Validate(); err != nil {
			return nil, err
		}
		if _, exists := c.rules[rule.ID]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateRule, rule.ID)
		}
		c.rules[rule.ID] = rule
		c.ids = append(c.ids, rule.ID)
	}
	sort.Strings(c.ids)
	return c, nil
}

// Get returns the rule with the given ID.
func (c *Catalog) Get(id string) (Rule, bool) {
	if c == nil {
		return Rule{}, false
	}
	r, ok := c.rules[id]
	return r, ok
}

// Has reports whether the catalog contains the rule.
func (c *Catalog) Has(id string) bool {
	_, ok := c.Get(id)
	return ok
}

// Len returns the number of rules.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.rules)
}

// IDs returns the rule identifiers in sorted order.
func (c *Catalog) IDs() []string {
	if c == nil {
		return nil
	}
	out := make([]string, len(c.ids))
	copy(out, c.ids)
	return out
}

// Rules returns all rules sorted by ID.
func (c *Catalog) Rules() []Rule {
	if c == nil {
		return nil
	}
	out := make([]Rule, 0, len(c.ids))
	for _, id := range c.ids {
		out = append(out, c.rules[id])
	}
	return out
}

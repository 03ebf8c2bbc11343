package detect

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Registration errors
var (
	ErrDuplicateSource  = errors.New("duplicate event source")
	ErrChannelClaimed   = errors.New("channel already claimed by another source")
	ErrDuplicateBinding = errors.New("duplicate rule binding")
	ErrInvalidBinding   = errors.New("invalid rule binding")
	ErrRegistryFrozen   = errors.New("registry is frozen")
)

type bindingKey struct {
	source    string
	eventType string
}

// BindingRef identifies a binding without its handler.
type BindingRef struct {
	Source    string `json:"source"`
	EventType string `json:"event_type"`
	RuleID    string `json:"rule_id"`
}

// Registry maps (source, event type) to the bindings that evaluate it. It is
// populated during initialization and frozen once a Dispatcher uses it; after
// that it is only read and needs no locking.
type Registry struct {
	sources   map[string]EventSource
	channels  map[string]string // lower-cased channel -> source ID
	bindings  map[bindingKey][]Binding
	sourceIDs []string
	frozen    bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sources:  make(map[string]EventSource),
		channels: make(map[string]string),
		bindings: make(map[bindingKey][]Binding),
	}
}

// Register adds a source and all of its bindings. Registration is atomic: on
// error the registry is left unchanged.
func (r *Registry) Register(src EventSource) error {
	if r.frozen {
		return ErrRegistryFrozen
	}
	if src == nil || src.ID() == "" {
		return fmt.Errorf("%w: source must have an ID", ErrInvalidBinding)
	}
	id := src.ID()
	if _, exists := r.sources[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateSource, id)
	}

	claimed := make(map[string]struct{})
	for _, ch := range src.Channels() {
		key := strings.ToLower(strings.TrimSpace(ch))
		if key == "" {
			continue
		}
		if owner, taken := r.channels[key]; taken {
			return fmt.Errorf("%w: %q is owned by %s", ErrChannelClaimed, ch, owner)
		}
		claimed[key] = struct{}{}
	}

	seen := make(map[BindingRef]struct{})
	for _, b := range src.Bindings() {
		ref := BindingRef{Source: id, EventType: b.EventType, RuleID: b.RuleID}
		if b.EventType == "" || b.RuleID == "" || b.Handler == nil {
			return fmt.Errorf("%w: %s/%s rule %q", ErrInvalidBinding, id, b.EventType, b.RuleID)
		}
		if _, dup := seen[ref]; dup {
			return fmt.Errorf("%w: %s/%s rule %s", ErrDuplicateBinding, id, b.EventType, b.RuleID)
		}
		seen[ref] = struct{}{}
	}

	r.sources[id] = src
	r.sourceIDs = append(r.sourceIDs, id)
	sort.Strings(r.sourceIDs)
	for key := range claimed {
		r.channels[key] = id
	}
	for _, b := range src.Bindings() {
		k := bindingKey{source: id, eventType: b.EventType}
		r.bindings[k] = append(r.bindings[k], b)
	}
	return nil
}

// Resolve returns the source that owns the channel.
func (r *Registry) Resolve(channel string) (string, bool) {
	id, ok := r.channels[strings.ToLower(strings.TrimSpace(channel))]
	return id, ok
}

// Lookup returns the bindings for an event type of a source.
func (r *Registry) Lookup(sourceID, eventType string) []Binding {
	return r.bindings[bindingKey{source: sourceID, eventType: eventType}]
}

// Sources returns the registered source IDs in sorted order.
func (r *Registry) Sources() []string {
	out := make([]string, len(r.sourceIDs))
	copy(out, r.sourceIDs)
	return out
}

// Refs lists every binding, sorted by source, event type and rule.
func (r *Registry) Refs() []BindingRef {
	var refs []BindingRef
	for k, bs := range r.bindings {
		for _, b := range bs {
			refs = append(refs, BindingRef{Source: k.source, EventType: k.eventType, RuleID: b.RuleID})
		}
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Source != refs[j].Source {
			return refs[i].Source < refs[j].Source
		}
		if refs[i].EventType != refs[j].EventType {
			return refs[i].EventType < refs[j].EventType
		}
		return refs[i].RuleID < refs[j].RuleID
	})
	return refs
}

func (r *Registry) freeze() {
	r.frozen = true
}

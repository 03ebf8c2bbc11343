package detect

import (
	"errors"
	"sort"

	"github.com/Yamato-Security/hayabusa-sub001/core"
)

// Outcome classifies what happened to a record. Every record gets exactly one.
type Outcome int

const (
	// OutcomeUnhandled means no handler is registered for the record's
	// source and event type.
	OutcomeUnhandled Outcome = iota
	// OutcomeSuppressed means every rule bound to the event type is in the
	// rule filter, so no handler ran.
	OutcomeSuppressed
	// OutcomeClean means handlers ran and none matched.
	OutcomeClean
	// OutcomeDetected means at least one finding was produced.
	OutcomeDetected
)

// Outcomes lists every outcome in a stable order.
var Outcomes = []Outcome{OutcomeUnhandled, OutcomeSuppressed, OutcomeClean, OutcomeDetected}

func (o Outcome) String() string {
	switch o {
	case OutcomeUnhandled:
		return "unhandled"
	case OutcomeSuppressed:
		return "suppressed"
	case OutcomeClean:
		return "clean"
	case OutcomeDetected:
		return "detected"
	default:
		return "unknown"
	}
}

// Result is the dispatcher's verdict for one record.
type Result struct {
	Source   string
	Outcome  Outcome
	Findings []core.Finding
	// Suppressed lists the bound rules skipped because of the rule filter.
	Suppressed []string
}

// activeBinding is a binding whose rule exists in the catalog.
type activeBinding struct {
	rule    core.Rule
	handler Handler
}

// Dispatcher routes records to the handlers registered for their source and
// event type. It holds read-only references to the registry and filter, with
// bindings resolved against the catalog up front, and keeps no mutable state, so a single instance may be shared by
// any number of goroutines.
type Dispatcher struct {
	registry *Registry
	filter   *core.RuleFilterSet
	active   map[bindingKey][]activeBinding
	inactive []BindingRef
}

// NewDispatcher freezes the registry and resolves every binding against the
// catalog. Bindings whose rule is not in the catalog are inactive and reported
// through InactiveBindings.
func NewDispatcher(registry *Registry, filter *core.RuleFilterSet, catalog *core.Catalog) (*Dispatcher, error) {
	if registry == nil {
		return nil, errors.New("dispatcher requires a registry")
	}
	if catalog == nil {
		return nil, errors.New("dispatcher requires a rule catalog")
	}
	if filter == nil {
		filter = core.NewRuleFilterSet()
	}
	registry.freeze()

	d := &Dispatcher{
		registry: registry,
		filter:   filter,
		active:   make(map[bindingKey][]activeBinding),
	}
	for key, bindings := range registry.bindings {
		for _, b := range bindings {
			rule, ok := catalog.Get(b.RuleID)
			if !ok {
				d.inactive = append(d.inactive, BindingRef{Source: key.source, EventType: key.eventType, RuleID: b.RuleID})
				continue
			}
			d.active[key] = append(d.active[key], activeBinding{rule: rule, handler: b.Handler})
		}
	}
	sort.Slice(d.inactive, func(i, j int) bool {
		a, b := d.inactive[i], d.inactive[j]
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		if a.EventType != b.EventType {
			return a.EventType < b.EventType
		}
		return a.RuleID < b.RuleID
	})
	return d, nil
}

// InactiveBindings lists bindings skipped because their rule is not in the catalog.
func (d *Dispatcher) InactiveBindings() []BindingRef {
	out := make([]BindingRef, len(d.inactive))
	copy(out, d.inactive)
	return out
}

// Dispatch resolves the record's source from its channel and evaluates it.
func (d *Dispatcher) Dispatch(rec *core.Record) Result {
	if rec == nil {
		return Result{Outcome: OutcomeUnhandled}
	}
	sourceID, ok := d.registry.Resolve(rec.System.Channel)
	if !ok {
		return Result{Outcome: OutcomeUnhandled}
	}
	return d.DispatchSource(sourceID, rec)
}

// DispatchSource evaluates the record against the bindings of an explicit
// source. Suppressed rules are skipped before their handler runs.
func (d *Dispatcher) DispatchSource(sourceID string, rec *core.Record) Result {
	res := Result{Source: sourceID, Outcome: OutcomeUnhandled}
	if rec == nil {
		return res
	}
	bindings := d.active[bindingKey{source: sourceID, eventType: rec.EventType}]
	if len(bindings) == 0 {
		return res
	}

	evaluated := 0
	for _, b := range bindings {
		if d.filter.Contains(b.rule.ID) {
			res.Suppressed = append(res.Suppressed, b.rule.ID)
			continue
		}
		evaluated++
		evidence, matched := b.handler(rec)
		if !matched {
			continue
		}
		res.Findings = append(res.Findings, newFinding(sourceID, b.rule, rec, evidence))
	}

	switch {
	case len(res.Findings) > 0:
		res.Outcome = OutcomeDetected
	case evaluated > 0:
		res.Outcome = OutcomeClean
	default:
		res.Outcome = OutcomeSuppressed
	}
	return res
}

func newFinding(sourceID string, rule core.Rule, rec *core.Record, evidence core.Evidence) core.Finding {
	return core.Finding{
		RuleID:    rule.ID,
		RuleName:  rule.DisplayName(),
		Severity:  rule.Severity,
		Message:   RenderMessage(rule, rec, evidence),
		Source:    sourceID,
		EventType: rec.EventType,
		Channel:   rec.System.Channel,
		Computer:  rec.System.Computer,
		Timestamp: rec.System.Timestamp,
		Evidence:  evidence,
	}
}

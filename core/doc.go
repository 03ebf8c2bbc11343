// Package core defines the domain model shared by the detection pipeline.
//
// # Types
//
//   - Record: one normalized Windows event log record
//   - Rule, Severity and Catalog: rule metadata loaded at startup
//   - RuleFilterSet: rule IDs suppressed for the run (excluded and noisy rules)
//   - Finding and Evidence: the result of a rule matching a record
//
// Everything in this package is immutable once built. A Catalog or
// RuleFilterSet is constructed before any worker starts and is then shared by
// all workers without locking.
package core

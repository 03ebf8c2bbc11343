package bootstrap

import (
	"fmt"

	"github.com/Yamato-Security/hayabusa-sub001/config"
	"github.com/Yamato-Security/hayabusa-sub001/core"
	"github.com/Yamato-Security/hayabusa-sub001/detect"
	"github.com/Yamato-Security/hayabusa-sub001/metrics"

	"go.uber.org/zap"
)

// DetectionComponents holds everything the dispatcher needs. All of it is
// built before the first record is read and is read-only afterwards.
type DetectionComponents struct {
	Filter     *core.RuleFilterSet
	Catalog    *core.Catalog
	Registry   *detect.Registry
	Dispatcher *detect.Dispatcher
	Skipped    []detect.SkippedRule
}

// InitDetection loads the rule definitions, builds the rule filter and wires
// the built-in event sources into a dispatcher.
func InitDetection(cfg *config.Config, sugar *zap.SugaredLogger) (*DetectionComponents, error) {
	report, err := detect.LoadRuleDefinitions(cfg.Rules.Dir, sugar)
	if err != nil {
		return nil, fmt.Errorf("failed to load rule definitions: %w", err)
	}
	catalog, err := core.NewCatalog(report.Rules)
	if err != nil {
		return nil, fmt.Errorf("failed to build rule catalog: %w", err)
	}
	sugar.Infof("Loaded %d rules from %s", catalog.Len(), cfg.Rules.Dir)
	if len(report.Skipped) > 0 {
		sugar.Warnf("Skipped %d malformed rule definitions", len(report.Skipped))
	}

	filter, err := LoadRuleFilter(cfg)
	if err != nil {
		return nil, err
	}
	sugar.Infow("Rule filter built",
		"suppressed_rules", filter.Len(),
		"noisy_rules_suppressed", !cfg.Detection.ShowNoisyAlerts)

	registry, err := detect.DefaultRegistry(detect.SourceOptions{
		RegexTimeout:     cfg.GetRegexTimeout(),
		VerdictCacheSize: cfg.Detection.VerdictCacheSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register event sources: %w", err)
	}
	dispatcher, err := detect.NewDispatcher(registry, filter, catalog)
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatcher: %w", err)
	}
	for _, ref := range dispatcher.InactiveBindings() {
		sugar.Warnw("Handler has no rule definition, binding inactive",
			"source", ref.Source,
			"event_type", ref.EventType,
			"rule_id", ref.RuleID)
	}

	metrics.RulesLoaded.Set(float64(catalog.Len()))
	metrics.RulesSuppressed.Set(float64(filter.Len()))
	metrics.RuleDefinitionsSkipped.Set(float64(len(report.Skipped)))

	return &DetectionComponents{
		Filter:     filter,
		Catalog:    catalog,
		Registry:   registry,
		Dispatcher: dispatcher,
		Skipped:    report.Skipped,
	}, nil
}

// LoadRuleFilter reads the exclude list and, unless noisy alerts are shown,
// the noisy list.
func LoadRuleFilter(cfg *config.Config) (*core.RuleFilterSet, error) {
	var noisy core.RuleSource
	if cfg.Rules.NoisyFile != "" {
		noisy = core.FileRuleSource(cfg.Rules.NoisyFile)
	}
	filter, err := core.BuildRuleFilter(
		core.FileRuleSource(cfg.Rules.ExcludeFile),
		noisy,
		!cfg.Detection.ShowNoisyAlerts,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build rule filter: %w", err)
	}
	return filter, nil
}

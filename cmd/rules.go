package cmd

import (
	"github.com/Yamato-Security/hayabusa-sub001/bootstrap"
	"github.com/Yamato-Security/hayabusa-sub001/core"
	"github.com/Yamato-Security/hayabusa-sub001/detect"

	"github.com/spf13/cobra"
)

// ruleEntry is one row of the rules listing.
type ruleEntry struct {
	ID         string              `json:"id"`
	Name       string              `json:"name"`
	Severity   core.Severity       `json:"severity,omitempty"`
	Suppressed bool                `json:"suppressed"`
	Bindings   []detect.BindingRef `json:"bindings,omitempty"`
	Path       string              `json:"path,omitempty"`
}

// rulesListing is the full output of the 'rules' command.
type rulesListing struct {
	Rules            []ruleEntry          `json:"rules"`
	InactiveBindings []detect.BindingRef  `json:"inactive_bindings,omitempty"`
	Skipped          []detect.SkippedRule `json:"skipped,omitempty"`
}

// newRulesCmd creates the 'rules' subcommand
func newRulesCmd() *cobra.Command {
	var suppressedOnly bool

	cmd := &cobra.Command{
		Use:     "rules",
		Aliases: []string{"ls-rules"},
		Short:   "List the loaded rules",
		Long: `Load the rule definitions and the rule filter and list every rule with its
severity, the handlers bound to it and whether the filter suppresses it.`,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return bindFlags(cmd, map[string]string{"show-noisy": "detection.show_noisy_alerts"})
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, sugar, err := loadConfig()
			if err != nil {
				return err
			}
			detection, err := bootstrap.InitDetection(cfg, sugar)
			if err != nil {
				return err
			}

			listing := buildRulesListing(detection)
			if suppressedOnly {
				var filtered []ruleEntry
				for _, r := range listing.Rules {
					if r.Suppressed {
						filtered = append(filtered, r)
					}
				}
				listing.Rules = filtered
			}

			if outputJSON {
				return outputAsJSON(cmd.OutOrStdout(), listing)
			}
			renderRulesTable(cmd.OutOrStdout(), listing)
			return nil
		},
	}

	cmd.Flags().Bool("show-noisy", false, "Treat rules in the noisy rules file as active")
	cmd.Flags().BoolVar(&suppressedOnly, "suppressed", false, "Only list suppressed rules")

	return cmd
}

// buildRulesListing joins the catalog with the registry bindings and the
// filter. Rules come out in catalog order.
func buildRulesListing(d *bootstrap.DetectionComponents) rulesListing {
	bindings := make(map[string][]detect.BindingRef)
	for _, ref := range d.Registry.Refs() {
		bindings[ref.RuleID] = append(bindings[ref.RuleID], ref)
	}

	listing := rulesListing{
		InactiveBindings: d.Dispatcher.InactiveBindings(),
		Skipped:          d.Skipped,
	}
	for _, r := range d.Catalog.Rules() {
		listing.Rules = append(listing.Rules, ruleEntry{
			ID:         r.ID,
			Name:       r.DisplayName(),
			Severity:   r.Severity,
			Suppressed: d.Filter.Contains(r.ID),
			Bindings:   bindings[r.ID],
			Path:       r.Path,
		})
	}
	return listing
}

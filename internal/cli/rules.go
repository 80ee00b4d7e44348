package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"market-sentinel/internal/config"
	"market-sentinel/internal/models"
)

func newRulesCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "List and validate the configured alert rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			alertRules, err := cfg.AlertRules()
			if err != nil {
				return err
			}
			if len(alertRules) == 0 {
				fmt.Println("no rules configured")
				return nil
			}

			for _, r := range alertRules {
				scope := r.InstrumentScope
				if scope == models.WildcardScope {
					scope = "all instruments"
				}
				abs := ""
				if r.Absolute {
					abs = "|x| "
				}
				fmt.Printf("%-20s %-16s %s%s %s %.2f  cooldown %s  severity %s  channels %v\n",
					r.ID, scope, abs, r.Metric, r.Comparator, r.Threshold,
					r.Cooldown, r.Severity, r.Channels)
			}
			fmt.Printf("\n%d rule(s) valid\n", len(alertRules))
			return nil
		},
	}
}

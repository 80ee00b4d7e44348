package cli

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"market-sentinel/internal/config"
	"market-sentinel/internal/models"
)

func newRunCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run a single evaluation cycle",
		Long: `Run one evaluation cycle over the configured instrument universe and
print the cycle report. Intended to be invoked by an external scheduler
such as cron; a cycle that overlaps an in-flight one is skipped, not
queued.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := NewApp(cfg, logger)
			if err != nil {
				return err
			}
			defer app.Close()

			report, err := app.Coordinator.RunCycle(cmd.Context())
			if err != nil {
				return err
			}

			printReport(report)
			return nil
		},
	}
}

func printReport(report *models.CycleReport) {
	if report.SkippedOverlap {
		fmt.Printf("cycle %s skipped: previous cycle still running\n", report.CycleID)
		return
	}

	fmt.Printf("Cycle %s\n", report.CycleID)
	fmt.Printf("  started:   %s\n", report.StartedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("  duration:  %s\n", report.Duration)
	fmt.Printf("  evaluated: %d\n", report.Evaluated)
	fmt.Printf("  skipped:   %d\n", report.Skipped)
	fmt.Printf("  alerts:    %d\n", report.AlertsRaised)
	if len(report.Errors) > 0 {
		fmt.Printf("  errors:\n")
		for _, e := range report.Errors {
			fmt.Printf("    - %s\n", e)
		}
	}
}

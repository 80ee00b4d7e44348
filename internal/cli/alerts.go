package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"market-sentinel/internal/config"
	"market-sentinel/internal/models"
	"market-sentinel/internal/store"
)

func newAlertsCmd(cfg *config.Config) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "alerts [instrument]",
		Short: "Show recent alert events",
		Long: `Show the most recent alert events with their notification attempts,
newest first. An optional instrument argument narrows the listing to a
single instrument.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.NewSQLiteStore(cfg.Storage.DBPath)
			if err != nil {
				return err
			}
			defer st.Close()

			instrument := ""
			if len(args) > 0 {
				instrument = strings.ToUpper(args[0])
			}

			events, err := st.RecentEvents(cmd.Context(), instrument, limit)
			if err != nil {
				return err
			}
			if len(events) == 0 {
				fmt.Println("no alerts recorded")
				return nil
			}

			for _, ev := range events {
				printEvent(ev)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", cfg.Engine.QueryPageSize, "maximum number of events to show")
	return cmd
}

func printEvent(ev models.EventWithAttempts) {
	fmt.Printf("%s  %-8s %-10s [%s] %s\n",
		ev.Event.RaisedAt.Format("2006-01-02 15:04:05"),
		ev.Event.Instrument,
		ev.Event.RuleID,
		ev.Event.Severity,
		ev.Event.Message,
	)
	for _, at := range ev.Attempts {
		detail := ""
		if at.Error != "" {
			detail = "  " + at.Error
		}
		fmt.Printf("    #%d %-8s %-18s%s\n", at.AttemptNumber, at.Channel, at.Outcome, detail)
	}
}

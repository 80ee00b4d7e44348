package cli

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

func newHealthCmd() *cobra.Command {
	var url string

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Query the health endpoint of a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := &http.Client{Timeout: 5 * time.Second}
			resp, err := client.Get(url)
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}

			fmt.Printf("%s\n%s", resp.Status, body)
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("engine unhealthy")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&url, "url", "http://localhost:8484/health", "health endpoint URL")
	return cmd
}

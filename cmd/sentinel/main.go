package main

import (
	"fmt"
	"os"

	"market-sentinel/internal/cli"
	"market-sentinel/internal/config"
	"market-sentinel/internal/logging"
)

func main() {
	cfg, err := config.Load(config.DefaultConfigDir())
	if err != nil {
		fmt.Fprintf(os.Stderr, "sentinel: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger()

	rootCmd := cli.NewRootCmd(cfg, logger)
	if err := rootCmd.Execute(); err != nil {
		logger.Error().Err(err).Msg("command failed")
		fmt.Fprintf(os.Stderr, "sentinel: %v\n", err)
		os.Exit(1)
	}
}

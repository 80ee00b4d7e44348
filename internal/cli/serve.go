package cli

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"market-sentinel/internal/config"
	apperrors "market-sentinel/internal/errors"
)

func newServeCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	var (
		addr     string
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve cycle triggers and alert queries over HTTP",
		Long: `Start an HTTP server exposing the engine:

  GET  /health         liveness and last-cycle status
  POST /run            trigger one evaluation cycle
  GET  /alerts         recent alert events (?instrument=, ?limit=)

With --interval the server also runs cycles on a fixed schedule.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := NewApp(cfg, logger)
			if err != nil {
				return err
			}
			defer app.Close()

			mux := http.NewServeMux()
			mux.Handle("GET /health", app.Probe.Handler())
			mux.HandleFunc("POST /run", app.handleRun)
			mux.HandleFunc("GET /alerts", app.handleAlerts)

			srv := &http.Server{
				Addr:         addr,
				Handler:      mux,
				ReadTimeout:  10 * time.Second,
				WriteTimeout: 30 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if interval > 0 {
				go app.runOnSchedule(ctx, interval)
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info().Str("addr", addr).Msg("http server listening")
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
				logger.Info().Msg("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			}
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8484", "listen address")
	cmd.Flags().DurationVar(&interval, "interval", 0, "run cycles on this schedule (0 disables)")
	return cmd
}

// runOnSchedule triggers a cycle every interval until the context ends.
// Overlap handling lives in the coordinator, so a slow cycle simply causes
// the next tick to be skipped.
func (a *App) runOnSchedule(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := a.Coordinator.RunCycle(ctx); err != nil {
				a.Logger.Error().Err(err).Msg("scheduled cycle failed")
			}
		}
	}
}

func (a *App) handleRun(w http.ResponseWriter, r *http.Request) {
	report, err := a.Coordinator.RunCycle(r.Context())
	if err != nil {
		status := http.StatusInternalServerError
		if apperrors.IsConfig(err) {
			// A broken rule set is an operator problem, not a server fault.
			status = http.StatusUnprocessableEntity
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	status := http.StatusOK
	if report.SkippedOverlap {
		status = http.StatusConflict
	}
	writeJSON(w, status, report)
}

func (a *App) handleAlerts(w http.ResponseWriter, r *http.Request) {
	instrument := strings.ToUpper(r.URL.Query().Get("instrument"))
	limit := a.Config.Engine.QueryPageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	events, err := a.Store.RecentEvents(r.Context(), instrument, limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":  len(events),
		"alerts": events,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/blockboard/blockboard/internal/api"
)

// shutdownGrace bounds how long an exiting server waits for open requests
// and in-flight commits.
const shutdownGrace = 15 * time.Second

// newServeCmd creates the "serve" command, which runs the HTTP API over a
// configured store backend until interrupted.
func newServeCmd() *cobra.Command {
	var (
		configPath string
		listen     string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the board layout HTTP API",
		Long: `Serve exposes boards over HTTP: layout reads, block add/delete,
drag/resize interactions, external refreshes, and the save-status signal.

Geometry edits are debounced and committed in batches to the configured
store backend (memory, redis, or mongo).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := loggerFromContext(ctx)

			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Listen = listen
			}

			st, err := openStore(ctx, cfg.Store)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}

			srv := api.NewServer(st, logger, api.Config{
				Window:    cfg.window(),
				Tolerance: cfg.Tolerance,
			})
			httpSrv := &http.Server{
				Addr:              cfg.Listen,
				Handler:           srv.Handler(),
				ReadHeaderTimeout: 5 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("listening", "addr", cfg.Listen, "backend", cfg.Store.Backend)
				errCh <- httpSrv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			logger.Info("shutting down")
			shutCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			if err := httpSrv.Shutdown(shutCtx); err != nil {
				logger.Error("http shutdown", "err", err)
			}
			srv.Close() // waits for in-flight commits
			if err := st.Close(shutCtx); err != nil {
				logger.Error("store close", "err", err)
			}
			if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to TOML config file")
	cmd.Flags().StringVarP(&listen, "listen", "l", "", "listen address (overrides config)")

	return cmd
}

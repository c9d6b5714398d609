package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Starts the tracker and serves the observer API:
  GET    /api/sse/connect?sessionKey=<id>   server-sent event stream
  POST   /api/sse/subscribe                 {"sessionKey": "...", "topics": [...]}
  DELETE /api/sse/{sessionKey}              close a session
  GET    /api/processes[/<name>]            in-flight processes or one process
  GET    /health, /metrics`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.Server.Addr = addr
		}
		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}

		tracker, err := newTracker(cfg, logger)
		if err != nil {
			return fmt.Errorf("error initializing tracker: %w", err)
		}

		srv := &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           tracker.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// Channel to listen for errors coming from the listeners.
		serverErrors := make(chan error, 2)
		go func() {
			logger.Info("Starting proctrace server", "addr", srv.Addr, "work_dir", cfg.WorkDir, "store", cfg.Store.Backend)
			serverErrors <- srv.ListenAndServe()
		}()

		if mcpAddr, _ := cmd.Flags().GetString("mcp-addr"); mcpAddr != "" {
			go func() {
				serverErrors <- tracker.MCPServer().ServeSSE(ctx, mcpAddr, "http://localhost"+mcpAddr)
			}()
		}

		var runErr error
		select {
		case err := <-serverErrors:
			if !errors.Is(err, http.ErrServerClosed) {
				runErr = fmt.Errorf("server error: %w", err)
			}
		case <-ctx.Done():
			logger.Info("Start shutdown")
		}

		// Give outstanding requests a deadline for completion.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		// Observers hold streams open; complete them before waiting on the listener.
		if err := tracker.Close(shutdownCtx); err != nil {
			logger.Warn("Tracker did not close cleanly", "err", err)
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Graceful shutdown did not complete", "timeout", 5*time.Second, "err", err)
			if err := srv.Close(); err != nil {
				logger.Error("Error killing server", "err", err)
			}
		}
		logger.Info("proctrace server stopped")
		return runErr
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Address to listen on (overrides server.addr)")
	serveCmd.Flags().String("mcp-addr", "", "Also serve MCP over SSE on this address, e.g. :8081")
}

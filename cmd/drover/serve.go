package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	httpAdapter "github.com/droverlabs/drover/pkg/adapters/http"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Starts the engine behind the HTTP adapter: the JSON API, the SSE event
stream, and the live-update WebSocket, plus /metrics for scraping.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, rt, logger, err := newRuntime(cmd)
		if err != nil {
			fmt.Printf("Error initializing drover: %v\n", err)
			os.Exit(1)
		}
		defer rt.Close()

		if cmd.Flags().Changed("port") {
			port, _ := cmd.Flags().GetInt("port")
			cfg.Server.Port = port
		}

		server, err := httpAdapter.NewServer(rt.Supervisor,
			httpAdapter.WithLogger(logger),
			httpAdapter.WithAllowedOrigins(cfg.Server.AllowedOrigins),
			httpAdapter.WithMetricsRegistry(rt.Metrics),
		)
		if err != nil {
			fmt.Printf("Error building HTTP server: %v\n", err)
			os.Exit(1)
		}

		srv := &http.Server{
			Addr:    cfg.Server.Addr(),
			Handler: server.Handler(),
		}

		// Channel to listen for errors coming from the listener.
		serverErrors := make(chan error, 1)

		go func() {
			fmt.Printf("Starting drover server on %s\n", srv.Addr)
			fmt.Printf("Storage backend: %s\n", cfg.Storage.Backend)
			serverErrors <- srv.ListenAndServe()
		}()

		// Channel to listen for interrupt or terminate signals.
		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		// Blocking main and waiting for shutdown.
		select {
		case err := <-serverErrors:
			fmt.Printf("Server error: %v\n", err)
			os.Exit(1)

		case sig := <-shutdown:
			fmt.Printf("\nStart shutdown... Signal: %v\n", sig)

			timeout := cfg.Server.ShutdownTimeout.Std()
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			if err := srv.Shutdown(ctx); err != nil {
				fmt.Printf("Graceful shutdown did not complete in %v: %v\n", timeout, err)
				if err := srv.Close(); err != nil {
					fmt.Printf("Error killing server: %v\n", err)
				}
			}
			fmt.Println("drover server stopped gracefully")
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntP("port", "p", 8080, "Port to listen on (overrides the config)")
}

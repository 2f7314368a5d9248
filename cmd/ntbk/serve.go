package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fentz26/ntbk/internal/controlplane"
)

var listenAddr string

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"daemon"},
	Short:   "Start the ntbk daemon",
	Long:    `Starts the ntbk daemon which dispatches tasks and provides the HTTP API.`,
	RunE:    runServe,
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address for the API server (overrides server.listen)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if listenAddr != "" {
		cfg.Server.Listen = listenAddr
	}
	log := newLogger(cfg)
	log.Info("starting ntbk daemon")

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	rt, err := buildRuntime(ctx, cfg, log)
	if err != nil {
		return err
	}

	n, err := rt.client.Recover(ctx)
	if err != nil {
		log.Error("recover unfinished tasks", "error", err)
	} else if n > 0 {
		log.Info("resumed unfinished tasks", "count", n)
	}

	service := controlplane.NewService(rt.client, rt.store)
	server := controlplane.NewServer(service, cfg.Server.Listen, log, rt.metrics.Handler())

	// Set up signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	// Channel to receive server errors
	serverErr := make(chan error, 1)

	go func() {
		err := server.Start()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Wait for shutdown signal or server error
	select {
	case sig := <-sigCh:
		log.Info("received signal, shutting down", "signal", sig)
	case err := <-serverErr:
		if err != nil {
			log.Error("server error", "error", err)
			_ = rt.close()
			return err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	log.Info("shutting down HTTP server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown", "error", err)
	}

	log.Info("stopping dispatches and closing store")
	if err := rt.close(); err != nil {
		log.Error("store close", "error", err)
	}

	log.Info("shutdown complete")
	return nil
}

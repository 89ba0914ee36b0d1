package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/jonathan/company-brochure/internal/server"
)

var (
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long:  `Start an HTTP server that streams brochures over Server-Sent Events and serves link suggestions, options and stored brochures.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (defaults to server.port, 8080)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = servePort
	}
	if err := cfg.RequireProvider(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	a.log.WithField("providers", a.registry.Providers()).Info("providers configured")
	if !cfg.JWT.Enabled() {
		a.log.Warn("JWT_SECRET not set, API authentication is disabled")
	}

	srv := server.New(serverConfig(cfg), a.engine, a.store, a.log)
	if err := srv.Start(ctx); err != nil {
		return eris.Wrap(err, "server stopped with error")
	}
	return nil
}

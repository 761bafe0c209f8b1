package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/wirerelay/internal/app"
	"github.com/vovakirdan/wirerelay/internal/config"
	"github.com/vovakirdan/wirerelay/internal/log"
)

var httpAddr string

var serverCmd = &cobra.Command{
	Use:   "server [host] [port]",
	Short: "Run the relay server",
	Args:  cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		override := config.ServerConfig{HTTPAddr: httpAddr}
		if len(args) > 0 {
			override.Host = args[0]
		}
		if len(args) > 1 {
			if override.Port, err = parsePort(args[1]); err != nil {
				return err
			}
		}
		cfg.Server.UpdateFrom(override)
		if err := cfg.Server.Validate(); err != nil {
			return fmt.Errorf("invalid server config: %w", err)
		}

		logger := log.New(cfg.LogLevel)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		application, err := app.New(ctx, cfg.Server, logger)
		if err != nil {
			return err
		}

		logger.Info().Str("addr", application.TCPAddr().String()).Msg("starting wirerelay server")
		if err := application.Run(ctx); err != nil {
			logger.Error().Err(err).Msg("server exited with error")
			return err
		}
		logger.Info().Msg("server stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
	serverCmd.Flags().StringVar(&httpAddr, "http-addr", "", "HTTP listen address for /health, /stats and /ws (overrides server.http_addr)")
}

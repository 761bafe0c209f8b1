package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/wirerelay/internal/attachments"
	"github.com/vovakirdan/wirerelay/internal/client"
	"github.com/vovakirdan/wirerelay/internal/config"
	"github.com/vovakirdan/wirerelay/internal/log"
)

var transport string

var clientCmd = &cobra.Command{
	Use:   "client [host] [port] [identifier]",
	Short: "Connect to a relay and chat from stdin",
	Long: `Connect to a relay. Each line of input is sent as text, except:

  .file <path>   send a file
  .image <path>  send an image
  .quit, .q      leave

Without an identifier a random UUID is used.`,
	Args: cobra.MaximumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		override := config.ClientConfig{Transport: transport}
		if len(args) > 0 {
			override.Host = args[0]
		}
		if len(args) > 1 {
			if override.Port, err = parsePort(args[1]); err != nil {
				return err
			}
		}
		if len(args) > 2 {
			override.Identifier = args[2]
		}
		cc := cfg.Client
		cc.UpdateFrom(override)
		if cc.Identifier == "" {
			cc.Identifier = uuid.NewString()
		}
		if err := cc.Validate(); err != nil {
			return fmt.Errorf("invalid client config: %w", err)
		}

		// Chat goes to stdout, logs to stderr.
		logger := log.NewWithWriter(cmd.ErrOrStderr(), cfg.LogLevel)

		var dialer client.Dialer
		switch cc.Transport {
		case config.TransportWS:
			dialer = client.WSDialer{URL: client.WSURL(cc.Addr(), cc.WSPath), Timeout: cc.ConnectTimeout, MaxFrameBytes: cc.MaxFrameBytes}
		default:
			dialer = client.TCPDialer{Addr: cc.Addr(), Timeout: cc.ConnectTimeout}
		}

		var downloads *attachments.Store
		if cc.DownloadsDir != "" {
			downloads = attachments.New(cc.DownloadsDir)
		}
		renderer := client.NewRenderer(cmd.OutOrStdout(), downloads, logger)

		session := client.NewSession(dialer, cmd.InOrStdin(), renderer, client.Options{
			Identifier:       cc.Identifier,
			AuthTimeout:      cc.AuthTimeout,
			RetryInterval:    cc.RetryInterval,
			RetryBudget:      cc.RetryBudget,
			RetryMultiplier:  cc.RetryMultiplier,
			MaxRetryInterval: cc.MaxRetryInterval,
			MaxFrameBytes:    cc.MaxFrameBytes,
		}, logger)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logger.Info().Str("addr", cc.Addr()).Str("transport", cc.Transport).Str("identifier", cc.Identifier).Msg("starting wirerelay client")
		err = session.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(clientCmd)
	clientCmd.Flags().StringVar(&transport, "transport", "", "tcp or ws (overrides client.transport)")
}

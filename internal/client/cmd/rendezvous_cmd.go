package cmd

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rudransh-shrivastava/peer-chat/internal/config"
	"github.com/rudransh-shrivastava/peer-chat/internal/logger"
	"github.com/rudransh-shrivastava/peer-chat/internal/rendezvous"
)

var rendezvousCmd = &cobra.Command{
	Use:   "rendezvous",
	Short: "runs the rendezvous signaling server",
	Long:  `runs the server peers register their identities with and exchange connection offers through`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadRendezvous()
		if err != nil {
			return err
		}

		flags := cmd.Flags()
		if flags.Changed("addr") {
			cfg.Addr, _ = flags.GetString("addr")
		}
		if flags.Changed("db") {
			cfg.DBPath, _ = flags.GetString("db")
		}
		cfg.LogLevel = level(cfg.LogLevel)
		if err := cfg.Validate(); err != nil {
			return err
		}

		return RunRendezvous(cmd.Context(), cfg, cmd.OutOrStdout())
	},
}

func init() {
	rendezvousCmd.Flags().String("addr", "", "listen address (overrides PEERCHAT_RENDEZVOUS_ADDR)")
	rendezvousCmd.Flags().String("db", "", "sqlite path for the peer directory (overrides PEERCHAT_RENDEZVOUS_DB)")
}

// RunRendezvous serves until ctx is done or the process is interrupted.
func RunRendezvous(ctx context.Context, cfg config.Rendezvous, logOut io.Writer) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := rendezvous.NewServer(rendezvous.Config{
		Addr:   cfg.Addr,
		DBPath: cfg.DBPath,
		Logger: logger.New(logOut, cfg.LogLevel),
	})
	if err != nil {
		return err
	}

	err = srv.Start(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

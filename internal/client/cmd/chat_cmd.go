package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gookit/color"
	"github.com/spf13/cobra"

	"github.com/rudransh-shrivastava/peer-chat/internal/chat"
	"github.com/rudransh-shrivastava/peer-chat/internal/config"
	"github.com/rudransh-shrivastava/peer-chat/internal/logger"
	"github.com/rudransh-shrivastava/peer-chat/internal/media"
	"github.com/rudransh-shrivastava/peer-chat/internal/signaling"
	"github.com/rudransh-shrivastava/peer-chat/internal/terminal"
	"github.com/rudransh-shrivastava/peer-chat/internal/transport/webrtc"
)

const claimTimeout = 15 * time.Second

var chatCmd = &cobra.Command{
	Use:   "chat <id> <display-name> [remote-id]",
	Short: "claims an identity and starts an interactive chat",
	Long: `claims an identity on the rendezvous server and reads commands from stdin.
Lines are sent as text, commands start with a slash (type /help to list them).
When remote-id is given the chat dials it right away.`,
	Args: cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadClient()
		if err != nil {
			return err
		}
		if err := applyClientFlags(cmd, &cfg); err != nil {
			return err
		}

		remoteID := ""
		if len(args) == 3 {
			remoteID = args[2]
		}
		return runChat(cmd, cfg, args[0], args[1], remoteID)
	},
}

func init() {
	chatCmd.Flags().String("rendezvous", "", "rendezvous WebSocket URL (overrides PEERCHAT_RENDEZVOUS_URL)")
	chatCmd.Flags().StringSlice("camera-dir", nil, "directory used as a video input, repeatable (overrides PEERCHAT_CAMERA_DIRS)")
	chatCmd.Flags().String("image-dir", "", "directory received images are saved to (overrides PEERCHAT_IMAGE_DIR)")
}

func applyClientFlags(cmd *cobra.Command, cfg *config.Client) error {
	flags := cmd.Flags()
	if flags.Changed("rendezvous") {
		cfg.RendezvousURL, _ = flags.GetString("rendezvous")
	}
	if flags.Changed("camera-dir") {
		cfg.CameraDirs, _ = flags.GetStringSlice("camera-dir")
	}
	if flags.Changed("image-dir") {
		cfg.ImageDir, _ = flags.GetString("image-dir")
	}
	cfg.LogLevel = level(cfg.LogLevel)
	return cfg.Validate()
}

func runChat(cmd *cobra.Command, cfg config.Client, id, name, remoteID string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.New(cmd.ErrOrStderr(), cfg.LogLevel)
	presenter := terminal.New(cmd.OutOrStdout(), terminal.Options{
		ImageDir: cfg.ImageDir,
		Colors:   color.SupportColor(),
	})
	geolocator := media.NewStaticGeolocator(cfg.Position())

	signaler := signaling.NewClient(cfg.RendezvousURL, log)
	ctrl := chat.NewController(chat.Config{
		Rendezvous: webrtc.New(signaler, cfg.STUNServers, log),
		Presenter:  presenter,
		Camera:     media.NewDirectoryCamera(cfg.CameraDirs),
		Geolocator: geolocator,
		Logger:     log,
	})

	r := &repl{
		chat:       ctrl,
		presenter:  presenter,
		geolocator: geolocator,
		id:         id,
		name:       name,
		progress:   cmd.ErrOrStderr(),
	}

	if err := r.claim(ctx); err != nil {
		return fmt.Errorf("failed to claim %s: %w", id, err)
	}
	defer ctrl.Teardown()

	if remoteID != "" {
		_ = ctrl.ConnectTo(ctx, remoteID)
	}

	err := r.run(ctx, cmd.InOrStdin())
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

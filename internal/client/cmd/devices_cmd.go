package cmd

import (
	"github.com/gookit/color"
	"github.com/spf13/cobra"

	"github.com/rudransh-shrivastava/peer-chat/internal/config"
	"github.com/rudransh-shrivastava/peer-chat/internal/media"
	"github.com/rudransh-shrivastava/peer-chat/internal/terminal"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "lists the configured video inputs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadClient()
		if err != nil {
			return err
		}
		if dirs, _ := cmd.Flags().GetStringSlice("camera-dir"); cmd.Flags().Changed("camera-dir") {
			cfg.CameraDirs = dirs
		}

		devices, err := media.NewDirectoryCamera(cfg.CameraDirs).ListVideoInputs(cmd.Context())
		if err != nil {
			return err
		}

		terminal.New(cmd.OutOrStdout(), terminal.Options{Colors: color.SupportColor()}).Devices(devices, "")
		return nil
	},
}

func init() {
	devicesCmd.Flags().StringSlice("camera-dir", nil, "directory used as a video input, repeatable (overrides PEERCHAT_CAMERA_DIRS)")
}

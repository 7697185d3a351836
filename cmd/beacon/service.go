package main

import (
	"github.com/spf13/cobra"

	"github.com/kumabeaconhq/beacon/internal/config"
	"github.com/kumabeaconhq/beacon/internal/logging"
	"github.com/kumabeaconhq/beacon/internal/service"
)

func newServiceCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "service",
		Short: "Manage the beacon's systemd service",
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.PathFromEnv(), "path to configuration file")

	installCmd := &cobra.Command{
		Use:   "install",
		Short: "Install, enable and start the systemd unit",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr := service.NewManager(service.Dependencies{Logger: logging.New()})
			return mgr.Install(cmd.Context(), configPath)
		},
	}

	uninstallCmd := &cobra.Command{
		Use:   "uninstall",
		Short: "Stop, disable and remove the systemd unit",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr := service.NewManager(service.Dependencies{Logger: logging.New()})
			return mgr.Uninstall(cmd.Context())
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the systemd unit status",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr := service.NewManager(service.Dependencies{})
			return mgr.Status(cmd.Context())
		},
	}

	cmd.AddCommand(installCmd, uninstallCmd, statusCmd)
	return cmd
}

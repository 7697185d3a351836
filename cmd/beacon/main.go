// Package main is the entry point for the kuma-beacon CLI.
//
// Usage:
//
//	beacon run [--config /etc/kuma-beacon/config.yaml]
//	beacon service install|uninstall|status
//	beacon version
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "beacon",
	Short: "Mirror Uptime Kuma status onto GPIO indicators",
	Long: `kuma-beacon keeps physical indicator pins in sync with the health
of monitors published on an Uptime Kuma status page.

It polls the public status page API on a fixed interval, evaluates each
configured service as up or down, and drives the service's pin high or
low so an LED panel shows service health at a glance.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("kuma-beacon %s\n", version)
	},
}

func main() {
	rootCmd.AddCommand(newRunCmd(), newServiceCmd(), versionCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

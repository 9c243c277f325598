// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"flag"

	"github.com/Thermoquad/lidarbridge/pkg/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	configPath string
	cfg        *config.Config

	// LiDAR serial link flags
	portName string
	baudRate int

	// LiDAR WebSocket link flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool
)

var rootCmd = &cobra.Command{
	Use:   "lidarbridge",
	Short: "Servo and RPLIDAR debug console",
	Long: `lidarbridge - A debug console bridging an operator command line to a
hobby servo, the LiDAR motor and an RPLIDAR range scanner.

Console commands are typed as "<cmd> <value>" and completed with Enter:
  servo <0-180>       move the servo
  lidar <payload>     send a LiDAR request or switch the motor
  help                list the commands

LiDAR link:
  Serial:    --port /dev/ttyUSB0 [--baud 115200]
  WebSocket: --url ws://host/path [--username user]

Settings are read from lidarbridge.yaml (or --config), then .env and the
environment, then flags. For WebSocket authentication, the password is read
from the LIDAR_PASSWORD environment variable, or prompted interactively if
not set.`,
	Version: "1.0.0",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = config.LoadConfig(configPath)
		applyFlagOverrides(cmd.Flags())
		return nil
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Config file")

	// LiDAR serial link flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "LiDAR serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "LiDAR baud rate (serial only)")

	// LiDAR WebSocket link flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")
}

// applyFlagOverrides copies explicitly set flags over the loaded config
func applyFlagOverrides(flags *pflag.FlagSet) {
	if flags.Changed("port") {
		cfg.Lidar.Port = portName
		cfg.Lidar.URL = ""
	}
	if flags.Changed("baud") {
		cfg.Lidar.Baud = baudRate
	}
	if flags.Changed("url") {
		cfg.Lidar.URL = wsURL
	}
	if flags.Changed("username") {
		cfg.Lidar.Username = wsUsername
	}
	if flags.Changed("no-ssl-verify") {
		cfg.Lidar.NoSSLVerify = wsNoSSLVerify
	}
}

// Execute runs the root command
func Execute() error {
	// glog reads its flags from flag.CommandLine
	_ = flag.CommandLine.Parse(nil)
	return rootCmd.Execute()
}

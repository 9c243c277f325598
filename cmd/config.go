// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var configSave bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	Long: `Print the configuration after the config file, .env, the environment and
flags have been applied.

With --save the result is written back to the config file, which is a quick
way to create one:
  lidarbridge config --port /dev/ttyAMA0 --save`,
	RunE: runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
	addBridgeFlags(configCmd.Flags())
	configCmd.Flags().BoolVar(&configSave, "save", false, "Write the effective configuration to the config file")
}

func runConfig(cmd *cobra.Command, args []string) error {
	applyBridgeFlags(cmd.Flags())

	if configSave {
		if err := cfg.Save(); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
		fmt.Printf("Saved %s\n", cfg.Path())
		return nil
	}

	data, err := cfg.Marshal()
	if err != nil {
		return err
	}
	fmt.Print(string(data))
	return nil
}

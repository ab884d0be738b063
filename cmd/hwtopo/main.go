// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2024 Intel Corporation

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dora-zhang/hwloc/pkg/common/utils"
)

var (
	log = utils.NewLogger()

	configPath string
	hideErrors bool
)

var rootCmd = &cobra.Command{
	Use:   "hwtopo",
	Short: "Hardware topology discovery",
	Long: `hwtopo builds a tree describing the machine's hardware by running
the registered discovery stages (PCI enumeration followed by vendor
stages such as Level Zero) and prints the result.`,
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a JSON discovery config")
	rootCmd.PersistentFlags().BoolVar(&hideErrors, "hide-errors", false, "suppress discovery diagnostics")
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (utils.DiscoveryConfig, error) {
	var cfg utils.DiscoveryConfig
	if configPath != "" {
		var err error
		if cfg, err = utils.LoadDiscoveryConfig(configPath); err != nil {
			return cfg, err
		}
	}
	if hideErrors {
		cfg.HideErrors = true
	}
	return cfg, nil
}

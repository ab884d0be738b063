// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2024 Intel Corporation

package utils

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"
)

// AcceleratorClassConfig identifies PCI devices that are known accelerators
// so the PCI stage can tag them.
type AcceleratorClassConfig struct {
	VendorID map[string]string
	Class    string
	SubClass string
	Devices  map[string]string
}

// DiscoveryConfig carries the host-level settings consumed by the
// discovery stages.
type DiscoveryConfig struct {
	// HideErrors suppresses all diagnostic output from the stages.
	HideErrors bool
	// TypeFilters maps a node type name (e.g. "OSDevice") to a filter
	// ("all", "none", "important").
	TypeFilters map[string]string
	// Sysman overrides the ZES_ENABLE_SYSMAN negotiation when set to
	// "0" or "1"; empty means negotiate from the environment.
	Sysman string
	// KnownAccelerators optionally identifies accelerator devices for
	// the PCI stage to tag.
	KnownAccelerators *AcceleratorClassConfig
}

const CONFIG_FILE_SIZE_LIMIT_IN_BYTES = 10485760 //10 MB

// LoadDiscoveryConfig reads a DiscoveryConfig from a JSON file.
func LoadDiscoveryConfig(cfgPath string) (DiscoveryConfig, error) {
	var cfg DiscoveryConfig
	file, err := os.Open(filepath.Clean(cfgPath))
	if err != nil {
		return cfg, errors.Wrap(err, "failed to open config")
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return cfg, errors.Wrap(err, "failed to get file stat")
	}

	if stat.Size() > CONFIG_FILE_SIZE_LIMIT_IN_BYTES {
		return cfg, errors.Errorf("config file size %d, exceeds limit %d bytes",
			stat.Size(), CONFIG_FILE_SIZE_LIMIT_IN_BYTES)
	}

	cfgData := make([]byte, stat.Size())
	bytesRead, err := file.Read(cfgData)
	if err != nil || int64(bytesRead) != stat.Size() {
		return cfg, errors.Errorf("unable to read config: %s", filepath.Clean(cfgPath))
	}

	if err = json.Unmarshal(cfgData, &cfg); err != nil {
		return DiscoveryConfig{}, errors.Wrap(err, "failed to unmarshal config")
	}
	return cfg, nil
}

func SetOsEnvIfNotSet(key, value string, logger logr.Logger) error {
	if osValue := os.Getenv(key); osValue != "" {
		logger.Info("skipping ENV because it is already set", "key", key, "value", osValue)
		return nil
	}
	logger.Info("setting ENV var", "key", key, "value", value)
	return os.Setenv(key, value)
}

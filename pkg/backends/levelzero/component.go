// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2024 Intel Corporation

// Package levelzero discovers oneAPI Level Zero accelerator devices and
// attaches one OSDevice node per device to the topology, under the PCI
// node matching the device's bus address when one is known.
package levelzero

import (
	"os"
	"strconv"

	"github.com/go-logr/logr"
	"github.com/sirupsen/logrus"

	"github.com/dora-zhang/hwloc/pkg/common/utils"
	"github.com/dora-zhang/hwloc/pkg/discover"
	ze "github.com/dora-zhang/hwloc/pkg/levelzero"
)

// Priority orders this stage after the PCI stage within the IO phase so
// that bus-id lookups can resolve.
const Priority = 20

// sysmanEnv must be enabled before the runtime initializes; enabling it
// afterwards has no effect.
const sysmanEnv = "ZES_ENABLE_SYSMAN"

type sysmanState int

const (
	// sysmanOK: the toggle was already enabled before we ran.
	sysmanOK sysmanState = iota
	// sysmanSetLate: the toggle was unset and we enabled it ourselves,
	// possibly after some other component already initialized the
	// runtime without it.
	sysmanSetLate
	// sysmanDisabled: the toggle was explicitly disabled.
	sysmanDisabled
)

var newAPI = func() ze.API {
	return ze.Unavailable()
}

// Component describes the Level Zero stage to the discovery registry.
func Component() discover.Component {
	return discover.Component{
		Name:     "levelzero",
		Phase:    discover.PhaseIO,
		Priority: Priority,
		Instantiate: func(cfg utils.DiscoveryConfig, log *logrus.Logger) (discover.Backend, error) {
			return newBackend(newAPI(), cfg, log), nil
		},
	}
}

func newBackend(api ze.API, cfg utils.DiscoveryConfig, log *logrus.Logger) *backend {
	return &backend{
		api:    api,
		log:    log,
		sysman: negotiateSysman(cfg, log),
		warned: map[string]struct{}{},
	}
}

// negotiateSysman resolves the management-interface toggle once, before
// the runtime initializes. The returned state only selects diagnostic
// wording later on; a degraded management interface never blocks
// enumeration.
func negotiateSysman(cfg utils.DiscoveryConfig, log *logrus.Logger) sysmanState {
	switch cfg.Sysman {
	case "1":
		os.Setenv(sysmanEnv, "1")
		return sysmanOK
	case "0":
		os.Setenv(sysmanEnv, "0")
		return sysmanDisabled
	}

	env := os.Getenv(sysmanEnv)
	if env == "" {
		if err := utils.SetOsEnvIfNotSet(sysmanEnv, "1", logr.New(&utils.LogWrapper{Log: log})); err != nil {
			log.WithError(err).Info("failed to set " + sysmanEnv)
		}
		return sysmanSetLate
	}
	if enabled, err := strconv.Atoi(env); err == nil && enabled == 0 {
		return sysmanDisabled
	}
	return sysmanOK
}

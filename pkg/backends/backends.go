// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2024 Intel Corporation

// Package backends wires the built-in discovery components.
package backends

import (
	"github.com/sirupsen/logrus"

	"github.com/dora-zhang/hwloc/pkg/backends/levelzero"
	"github.com/dora-zhang/hwloc/pkg/backends/pci"
	"github.com/dora-zhang/hwloc/pkg/discover"
)

// DefaultRegistry returns a registry with every built-in component
// registered.
func DefaultRegistry(log *logrus.Logger) (*discover.Registry, error) {
	registry := discover.NewRegistry(log)
	for _, component := range []discover.Component{
		pci.Component(),
		levelzero.Component(),
	} {
		if err := registry.Register(component); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

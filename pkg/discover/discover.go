// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2024 Intel Corporation

// Package discover runs registered discovery stages against a topology
// under construction. Stages are best effort: a failing stage is logged
// and skipped, it never aborts the build.
package discover

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/dora-zhang/hwloc/pkg/common/utils"
	"github.com/dora-zhang/hwloc/pkg/topology"
)

// Phase groups stages by the kind of information they contribute.
type Phase int

const (
	// PhaseCPU covers processor and memory enumeration.
	PhaseCPU Phase = iota
	// PhaseIO covers bus and device enumeration (PCI, vendor stages).
	PhaseIO
	// PhaseMisc covers everything running after the tree is shaped.
	PhaseMisc
)

func (p Phase) String() string {
	switch p {
	case PhaseCPU:
		return "cpu"
	case PhaseIO:
		return "io"
	case PhaseMisc:
		return "misc"
	default:
		return "invalid"
	}
}

// Backend is one instantiated discovery stage.
type Backend interface {
	// Discover appends nodes to topo. Returning an error marks the
	// stage failed but never aborts the overall build.
	Discover(topo *topology.Topology) error
}

// Component describes a discovery stage to the registry.
type Component struct {
	Name  string
	Phase Phase
	// Priority orders components within a phase; lower runs earlier.
	// Stages depending on PCI nodes must use a priority above the PCI
	// component's.
	Priority int
	// Instantiate builds the stage. Returning an error disables the
	// stage for this build.
	Instantiate func(cfg utils.DiscoveryConfig, log *logrus.Logger) (Backend, error)
}

// Registry holds the components of one topology build.
type Registry struct {
	log        *logrus.Logger
	components []Component
}

func NewRegistry(log *logrus.Logger) *Registry {
	return &Registry{log: log}
}

// Register validates and adds a component. An invalid descriptor is
// rejected whole; no partial registration takes place.
func (r *Registry) Register(c Component) error {
	if c.Name == "" {
		return errors.New("component has no name")
	}
	if c.Instantiate == nil {
		return errors.Errorf("component %s has no factory", c.Name)
	}
	if c.Phase < PhaseCPU || c.Phase > PhaseMisc {
		return errors.Errorf("component %s has invalid phase %d", c.Name, c.Phase)
	}
	for _, existing := range r.components {
		if existing.Name == c.Name {
			return errors.Errorf("component %s already registered", c.Name)
		}
	}
	r.components = append(r.components, c)
	return nil
}

// Run configures topo from cfg and executes all components phase by
// phase in priority order, serialized. Stage failures are logged and
// skipped.
func (r *Registry) Run(topo *topology.Topology, cfg utils.DiscoveryConfig) {
	applyConfig(topo, cfg)

	ordered := make([]Component, len(r.components))
	copy(ordered, r.components)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Phase != ordered[j].Phase {
			return ordered[i].Phase < ordered[j].Phase
		}
		return ordered[i].Priority < ordered[j].Priority
	})

	for _, c := range ordered {
		log := r.log.WithField("component", c.Name).WithField("phase", c.Phase.String())
		backend, err := c.Instantiate(cfg, r.log)
		if err != nil {
			log.WithError(err).Warn("component disabled")
			continue
		}
		if err := backend.Discover(topo); err != nil {
			log.WithError(err).Warn("discovery stage failed")
			continue
		}
		log.Debug("discovery stage finished")
	}
}

func applyConfig(topo *topology.Topology, cfg utils.DiscoveryConfig) {
	topo.SetHideErrors(cfg.HideErrors)
	for name, filter := range cfg.TypeFilters {
		typ, ok := nodeTypeByName(name)
		if !ok {
			continue
		}
		switch filter {
		case "none":
			topo.SetTypeFilter(typ, topology.KeepNone)
		case "important":
			topo.SetTypeFilter(typ, topology.KeepImportant)
		default:
			topo.SetTypeFilter(typ, topology.KeepAll)
		}
	}
}

func nodeTypeByName(name string) (topology.NodeType, bool) {
	for _, typ := range []topology.NodeType{topology.Machine, topology.PCIBridge, topology.PCIDevice, topology.OSDevice} {
		if typ.String() == name {
			return typ, true
		}
	}
	return topology.Machine, false
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2024 Intel Corporation

package levelzero

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	ze "github.com/dora-zhang/hwloc/pkg/levelzero"
	"github.com/dora-zhang/hwloc/pkg/topology"
)

type backend struct {
	api    ze.API
	log    *logrus.Logger
	sysman sysmanState
	// warned deduplicates degraded-mode diagnostics by category for the
	// lifetime of this stage instance.
	warned map[string]struct{}
}

// Discover enumerates the driver/device hierarchy and inserts one OSDevice
// node per device. Nothing here is surfaced as a hard failure: every
// disqualifying condition turns into a clean zero-node outcome and every
// per-device degradation into missing attributes or missing locality.
func (b *backend) Discover(topo *topology.Topology) error {
	if topo.TypeFilter(topology.OSDevice) == topology.KeepNone {
		return nil
	}

	if err := b.api.Init(); err != nil {
		if !topo.HideErrors() {
			b.log.WithError(err).Error("failed to initialize Level Zero")
		}
		return nil
	}

	drivers, err := b.api.Drivers()
	if err != nil || len(drivers) == 0 {
		return nil
	}

	// Sequence index across all drivers, so names stay unique and
	// monotonic in enumeration order.
	zeIndex := 0
	for driverIndex, driver := range drivers {
		devices, err := driver.Devices()
		if err != nil {
			b.log.WithField("driver", driverIndex).WithError(err).Info("skipping driver, device query failed")
			continue
		}
		if len(devices) == 0 {
			continue
		}

		for deviceIndex, device := range devices {
			node := topo.NewNode(topology.OSDevice, fmt.Sprintf("ze%d", zeIndex))
			node.Subtype = "LevelZero"
			node.AddInfo("Backend", "LevelZero")
			node.AddInfo("LevelZeroDriverIndex", strconv.Itoa(driverIndex))
			node.AddInfo("LevelZeroDriverDeviceIndex", strconv.Itoa(deviceIndex))

			b.collectProperties(topo, device, node)
			b.collectQueueGroups(device, node)

			parent := b.locate(topo, device)
			if err := topo.Insert(parent, node); err != nil {
				b.log.WithField("device", node.Name).WithError(err).Info("failed to insert device")
				continue
			}
			zeIndex++
		}
	}

	return nil
}

// collectProperties records basic and management properties. The two
// queries are independent: neither failure blocks the other.
func (b *backend) collectProperties(topo *topology.Topology, device ze.Device, node *topology.Node) {
	props, err := device.Properties()
	if err == nil {
		typ := props.Type.String()
		if typ == "Unknown" && !topo.HideErrors() {
			b.log.WithField("type", int(props.Type)).Warn("unexpected device type")
		}
		node.AddInfo("LevelZeroDeviceType", typ)
		node.AddInfo("LevelZeroDeviceNumSlices", strconv.FormatUint(uint64(props.NumSlices), 10))
		node.AddInfo("LevelZeroDeviceNumSubslicesPerSlice", strconv.FormatUint(uint64(props.NumSubslicesPerSlice), 10))
		node.AddInfo("LevelZeroDeviceNumEUsPerSubslice", strconv.FormatUint(uint64(props.NumEUsPerSubslice), 10))
		node.AddInfo("LevelZeroDeviceNumThreadsPerEU", strconv.FormatUint(uint64(props.NumThreadsPerEU), 10))
	}

	sysman, err := device.SysmanProperties()
	if err != nil {
		b.warnSysmanOnce(topo)
		// continue in degraded mode, we'll miss some attributes
		return
	}
	addSysmanInfo(node, "LevelZeroVendor", sysman.VendorName)
	addSysmanInfo(node, "LevelZeroModel", sysman.ModelName)
	addSysmanInfo(node, "LevelZeroBrand", sysman.BrandName)
	addSysmanInfo(node, "LevelZeroSerialNumber", sysman.SerialNumber)
	addSysmanInfo(node, "LevelZeroBoardNumber", sysman.BoardNumber)
}

// addSysmanInfo skips the driver's "unknown value" placeholder; old
// implementations report "Unknown", recent ones "unknown".
func addSysmanInfo(node *topology.Node, name, value string) {
	if value == "" || strings.EqualFold(value, "Unknown") {
		return
	}
	node.AddInfo(name, value)
}

// warnSysmanOnce emits the degraded-management-interface diagnostic at
// most once per stage instance, worded after the negotiation outcome.
func (b *backend) warnSysmanOnce(topo *topology.Topology) {
	if _, seen := b.warned["sysman"]; seen {
		return
	}
	b.warned["sysman"] = struct{}{}
	if topo.HideErrors() {
		return
	}
	switch b.sysman {
	case sysmanSetLate:
		b.log.Warn("sysman device properties query failed (" + sysmanEnv + "=1 set too late?)")
	case sysmanDisabled:
		b.log.Warn("sysman device properties query failed (" + sysmanEnv + "=0)")
	default:
		b.log.Warn("sysman device properties query failed")
	}
}

func (b *backend) collectQueueGroups(device ze.Device, node *topology.Node) {
	groups, err := device.CommandQueueGroups()
	if err != nil || len(groups) == 0 {
		return
	}
	node.AddInfo("LevelZeroCQGroups", strconv.Itoa(len(groups)))
	for k, group := range groups {
		name := fmt.Sprintf("LevelZeroCQGroup%d", k)
		node.AddInfo(name, fmt.Sprintf("%d*0x%x", group.NumQueues, group.Flags))
	}
}

// locate resolves the device's parent through its bus address, falling
// back to the tree root when locality is unknown. A located PCI parent
// additionally gets its link speed refined from the reported maximum
// bandwidth.
func (b *backend) locate(topo *topology.Topology, device ze.Device) *topology.Node {
	pciProps, err := device.PCIProperties()
	if err != nil {
		return topo.Root()
	}
	parent := topo.FindByBusID(pciProps.Address)
	if parent == nil {
		return topo.Root()
	}
	if parent.Type == topology.PCIDevice && parent.PCI != nil && pciProps.MaxBandwidth > 0 {
		parent.PCI.LinkSpeed = float64(pciProps.MaxBandwidth) / 1000 / 1000 / 1000
	}
	return parent
}

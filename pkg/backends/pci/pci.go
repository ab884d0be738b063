// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2024 Intel Corporation

// Package pci enumerates PCI endpoints and inserts one PCIDevice node per
// endpoint. It must run before vendor stages that resolve locality through
// the bus-id index.
package pci

import (
	"github.com/jaypipes/ghw"
	"github.com/jaypipes/pcidb"
	"github.com/sirupsen/logrus"

	"github.com/dora-zhang/hwloc/pkg/common/utils"
	"github.com/dora-zhang/hwloc/pkg/discover"
	"github.com/dora-zhang/hwloc/pkg/topology"
)

// Priority within the IO phase; vendor stages order themselves after it.
const Priority = 10

var getPCIDevices = func() ([]*ghw.PCIDevice, error) {
	info, err := ghw.PCI()
	if err != nil {
		return nil, err
	}
	return info.ListDevices(), nil
}

// Component describes the PCI stage to the discovery registry.
func Component() discover.Component {
	return discover.Component{
		Name:     "pci",
		Phase:    discover.PhaseIO,
		Priority: Priority,
		Instantiate: func(cfg utils.DiscoveryConfig, log *logrus.Logger) (discover.Backend, error) {
			return &backend{log: log, accel: cfg.KnownAccelerators}, nil
		},
	}
}

type backend struct {
	log   *logrus.Logger
	accel *utils.AcceleratorClassConfig
}

func (b *backend) Discover(topo *topology.Topology) error {
	if topo.TypeFilter(topology.PCIDevice) == topology.KeepNone {
		return nil
	}

	devices, err := getPCIDevices()
	if err != nil {
		if !topo.HideErrors() {
			b.log.WithError(err).Error("failed to get PCI info")
		}
		return nil
	}

	if len(devices) == 0 {
		b.log.Info("got 0 pci devices")
		return nil
	}

	for _, device := range devices {
		addr, err := topology.ParsePCIAddress(device.Address)
		if err != nil {
			b.log.WithField("pci", device.Address).Info("skipping device with unparsable address")
			continue
		}

		node := topo.NewNode(topology.PCIDevice, addr.String())
		node.PCI = &topology.PCIDeviceAttr{Address: addr}
		if device.Vendor != nil {
			node.PCI.VendorID = device.Vendor.ID
			addInfoIfSet(node, "PCIVendor", b.vendorName(device.Vendor))
		}
		if device.Product != nil {
			node.PCI.ProductID = device.Product.ID
			addInfoIfSet(node, "PCIDevice", device.Product.Name)
		}
		if device.Class != nil {
			node.PCI.ClassID = device.Class.ID
			addInfoIfSet(node, "PCIClass", device.Class.Name)
		}
		if device.Driver != "" {
			node.AddInfo("PCIDriver", device.Driver)
		}
		if b.isKnownAccelerator(device) {
			node.AddInfo("KnownAccelerator", "true")
		}

		if err := topo.Insert(topo.Root(), node); err != nil {
			b.log.WithField("pci", device.Address).WithError(err).Info("failed to insert device")
		}
	}

	return nil
}

func addInfoIfSet(node *topology.Node, name, value string) {
	if value != "" {
		node.AddInfo(name, value)
	}
}

func (b *backend) isKnownAccelerator(device *ghw.PCIDevice) bool {
	if b.accel == nil || device.Vendor == nil || device.Product == nil || device.Class == nil {
		return false
	}
	if _, known := b.accel.VendorID[device.Vendor.ID]; !known {
		return false
	}
	if _, known := b.accel.Devices[device.Product.ID]; !known {
		return false
	}
	if device.Class.ID != b.accel.Class {
		return false
	}
	if b.accel.SubClass != "" {
		return hasSubclass(device, b.accel.SubClass)
	}
	return true
}

func hasSubclass(device *ghw.PCIDevice, id string) bool {
	if device.Subclass != nil {
		return device.Subclass.ID == id
	}
	return false
}

// vendorName resolves the vendor name, falling back to a direct pci.ids
// lookup when ghw could not name the vendor.
func (b *backend) vendorName(vendor *pcidb.Vendor) string {
	// ghw names vendors missing from its database "unknown"
	if vendor.Name != "" && vendor.Name != "unknown" {
		return vendor.Name
	}
	db := loadPCIDB(b.log)
	if db == nil {
		return vendor.Name
	}
	if known, ok := db.Vendors[vendor.ID]; ok {
		return known.Name
	}
	return vendor.Name
}

var pciDB *pcidb.PCIDB
var pciDBLoaded bool

func loadPCIDB(log *logrus.Logger) *pcidb.PCIDB {
	if pciDBLoaded {
		return pciDB
	}
	pciDBLoaded = true
	db, err := pcidb.New()
	if err != nil {
		log.WithError(err).Debug("pci.ids database unavailable")
		return nil
	}
	pciDB = db
	return pciDB
}

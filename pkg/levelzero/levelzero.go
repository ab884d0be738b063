// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2024 Intel Corporation

// Package levelzero abstracts the oneAPI Level Zero driver stack behind a
// small client interface. List-returning queries perform the underlying
// count/allocate/fill sequence internally and return owned slices, so
// callers never deal with the two-call pattern or handle lifetimes.
package levelzero

import (
	"github.com/pkg/errors"

	"github.com/dora-zhang/hwloc/pkg/topology"
)

// ErrUnavailable is returned by Init when no Level Zero runtime can be
// loaded on this host.
var ErrUnavailable = errors.New("level zero runtime unavailable")

// DeviceType is the device class reported by the driver.
type DeviceType int

const (
	DeviceTypeUnknown DeviceType = iota
	DeviceTypeGPU
	DeviceTypeCPU
	DeviceTypeFPGA
	DeviceTypeMCA
	DeviceTypeVPU
)

func (t DeviceType) String() string {
	switch t {
	case DeviceTypeGPU:
		return "GPU"
	case DeviceTypeCPU:
		return "CPU"
	case DeviceTypeFPGA:
		return "FPGA"
	case DeviceTypeMCA:
		return "MCA"
	case DeviceTypeVPU:
		return "VPU"
	default:
		return "Unknown"
	}
}

// DeviceProperties are the basic properties every healthy device reports.
type DeviceProperties struct {
	Type                 DeviceType
	NumSlices            uint32
	NumSubslicesPerSlice uint32
	NumEUsPerSubslice    uint32
	NumThreadsPerEU      uint32
}

// SysmanProperties are the extended properties available only when the
// systems-management interface is enabled. Fields the driver does not know
// carry the literal "Unknown" (any case).
type SysmanProperties struct {
	VendorName   string
	ModelName    string
	BrandName    string
	SerialNumber string
	BoardNumber  string
}

// CommandQueueGroup describes one group of hardware command queues sharing
// capability flags.
type CommandQueueGroup struct {
	NumQueues uint32
	Flags     uint64
}

// PCIProperties locate a device on the PCI bus.
type PCIProperties struct {
	Address topology.PCIAddress
	// MaxBandwidth is the maximum link bandwidth in bytes/sec, 0 or
	// negative if unknown.
	MaxBandwidth int64
}

// API is the entry point into the Level Zero stack. Handles obtained from
// it are scoped to one enumeration pass and must not be cached.
type API interface {
	// Init initializes the driver stack. ErrUnavailable (possibly
	// wrapped) means no runtime is present; this is not fatal.
	Init() error
	// Drivers returns all driver handles.
	Drivers() ([]Driver, error)
}

// Driver is one installed driver.
type Driver interface {
	// Devices returns the driver's device handles.
	Devices() ([]Device, error)
}

// Device is one accelerator device. All queries are blocking and
// independent: a failing query never invalidates the handle.
type Device interface {
	Properties() (DeviceProperties, error)
	// SysmanProperties fails when the management interface is disabled.
	SysmanProperties() (SysmanProperties, error)
	CommandQueueGroups() ([]CommandQueueGroup, error)
	PCIProperties() (PCIProperties, error)
}

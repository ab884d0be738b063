// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2024 Intel Corporation

// Package fake provides an in-memory Level Zero API with configurable
// results and error injection, for tests and demos.
package fake

import (
	"github.com/dora-zhang/hwloc/pkg/levelzero"
)

// API implements levelzero.API.
type API struct {
	InitErr    error
	DriversErr error
	DriverList []*Driver
}

func (a *API) Init() error {
	return a.InitErr
}

func (a *API) Drivers() ([]levelzero.Driver, error) {
	if a.DriversErr != nil {
		return nil, a.DriversErr
	}
	drivers := make([]levelzero.Driver, len(a.DriverList))
	for i, d := range a.DriverList {
		drivers[i] = d
	}
	return drivers, nil
}

// Driver implements levelzero.Driver.
type Driver struct {
	DevicesErr error
	DeviceList []*Device
}

func (d *Driver) Devices() ([]levelzero.Device, error) {
	if d.DevicesErr != nil {
		return nil, d.DevicesErr
	}
	devices := make([]levelzero.Device, len(d.DeviceList))
	for i, dev := range d.DeviceList {
		devices[i] = dev
	}
	return devices, nil
}

// Device implements levelzero.Device. Zero values behave like a healthy
// device with empty properties.
type Device struct {
	Props     levelzero.DeviceProperties
	PropsErr  error
	Sysman    levelzero.SysmanProperties
	SysmanErr error
	Groups    []levelzero.CommandQueueGroup
	GroupsErr error
	PCI       levelzero.PCIProperties
	PCIErr    error
}

func (d *Device) Properties() (levelzero.DeviceProperties, error) {
	return d.Props, d.PropsErr
}

func (d *Device) SysmanProperties() (levelzero.SysmanProperties, error) {
	return d.Sysman, d.SysmanErr
}

func (d *Device) CommandQueueGroups() ([]levelzero.CommandQueueGroup, error) {
	return d.Groups, d.GroupsErr
}

func (d *Device) PCIProperties() (levelzero.PCIProperties, error) {
	return d.PCI, d.PCIErr
}

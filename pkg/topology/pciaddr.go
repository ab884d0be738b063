// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2024 Intel Corporation

package topology

import (
	"fmt"
	"regexp"
	"strconv"
)

var (
	fullBDFPattern  = regexp.MustCompile(`(?i)^([0-9a-f]{4}):([0-9a-f]{2}):([0-9a-f]{2})\.([0-7])$`)
	shortBDFPattern = regexp.MustCompile(`(?i)^([0-9a-f]{2}):([0-9a-f]{2})\.([0-7])$`)
)

// PCIAddress identifies a device's physical attachment point using its
// domain:bus:device.function tuple.
type PCIAddress struct {
	Domain   uint16
	Bus      uint8
	Device   uint8
	Function uint8
}

func (a PCIAddress) String() string {
	return fmt.Sprintf("%04x:%02x:%02x.%d", a.Domain, a.Bus, a.Device, a.Function)
}

// ParsePCIAddress parses a BDF string such as "0000:3a:00.0". The domain
// part may be omitted and defaults to 0.
func ParsePCIAddress(s string) (PCIAddress, error) {
	var addr PCIAddress

	if m := fullBDFPattern.FindStringSubmatch(s); m != nil {
		domain, _ := strconv.ParseUint(m[1], 16, 16)
		bus, _ := strconv.ParseUint(m[2], 16, 8)
		device, _ := strconv.ParseUint(m[3], 16, 8)
		function, _ := strconv.ParseUint(m[4], 10, 8)
		addr.Domain = uint16(domain)
		addr.Bus = uint8(bus)
		addr.Device = uint8(device)
		addr.Function = uint8(function)
		return addr, nil
	}

	if m := shortBDFPattern.FindStringSubmatch(s); m != nil {
		bus, _ := strconv.ParseUint(m[1], 16, 8)
		device, _ := strconv.ParseUint(m[2], 16, 8)
		function, _ := strconv.ParseUint(m[3], 10, 8)
		addr.Bus = uint8(bus)
		addr.Device = uint8(device)
		addr.Function = uint8(function)
		return addr, nil
	}

	return addr, fmt.Errorf("invalid PCI address: %q", s)
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2024 Intel Corporation

package topology

import (
	"github.com/elliotchance/orderedmap/v2"
)

// NodeType classifies nodes in the topology tree.
type NodeType int

const (
	// Machine is the root of the tree, one per topology.
	Machine NodeType = iota
	// PCIBridge is an intermediate PCI node (host bridge or switch).
	PCIBridge
	// PCIDevice is a PCI endpoint discovered by the PCI stage.
	PCIDevice
	// OSDevice is an OS-level device (e.g. an accelerator) attached by a
	// vendor discovery stage.
	OSDevice
)

func (t NodeType) String() string {
	switch t {
	case Machine:
		return "Machine"
	case PCIBridge:
		return "PCIBridge"
	case PCIDevice:
		return "PCIDevice"
	case OSDevice:
		return "OSDevice"
	default:
		return "Invalid"
	}
}

// PCIDeviceAttr holds PCI-specific attributes of a PCIDevice node.
type PCIDeviceAttr struct {
	Address   PCIAddress
	VendorID  string
	ProductID string
	ClassID   string
	// LinkSpeed is the maximum link bandwidth in GB/s, 0 if unknown.
	// Vendor stages may refine it after the PCI stage has run.
	LinkSpeed float64
}

// Node is a single entry in the topology tree. Nodes are allocated through
// Topology.NewNode, populated, and then attached with Topology.Insert.
// Once inserted a node is owned by the tree and must not be re-parented.
type Node struct {
	Type    NodeType
	Name    string
	Subtype string

	// PCI is set for PCIDevice nodes only.
	PCI *PCIDeviceAttr

	parent   *Node
	children []*Node
	infos    *orderedmap.OrderedMap[string, string]
}

// AddInfo records a descriptive name/value attribute. Insertion order is
// preserved; adding an existing name replaces its value in place.
func (n *Node) AddInfo(name, value string) {
	n.infos.Set(name, value)
}

// Info returns the value recorded for name.
func (n *Node) Info(name string) (string, bool) {
	return n.infos.Get(name)
}

// InfoNames returns all attribute names in insertion order.
func (n *Node) InfoNames() []string {
	return n.infos.Keys()
}

// InfoCount returns the number of recorded attributes.
func (n *Node) InfoCount() int {
	return n.infos.Len()
}

func (n *Node) Parent() *Node {
	return n.parent
}

func (n *Node) Children() []*Node {
	return n.children
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2024 Intel Corporation

// Package topology models a machine's hardware as a tree of typed nodes.
// Discovery stages append nodes during a build; the tree is never pruned
// or re-parented afterwards.
package topology

import (
	"fmt"

	"github.com/elliotchance/orderedmap/v2"
	"github.com/google/uuid"
)

// TypeFilter controls whether nodes of a given type are kept in the tree.
type TypeFilter int

const (
	// KeepAll keeps every discovered node of the type.
	KeepAll TypeFilter = iota
	// KeepNone excludes the type entirely; stages producing only this
	// type are expected to short-circuit.
	KeepNone
	// KeepImportant keeps only nodes the discovering stage considers
	// interesting (stage-specific meaning).
	KeepImportant
)

// Topology is the tree under construction. Access during a discovery build
// is serialized by the discovery registry; Topology itself does no locking.
type Topology struct {
	root       *Node
	byBusID    map[PCIAddress]*Node
	filters    map[NodeType]TypeFilter
	hideErrors bool
}

// New creates an empty topology with a Machine root node tagged with a
// unique build identifier.
func New() *Topology {
	t := &Topology{
		byBusID: map[PCIAddress]*Node{},
		filters: map[NodeType]TypeFilter{},
	}
	t.root = t.NewNode(Machine, "machine0")
	t.root.AddInfo("TopologyBuildID", uuid.NewString())
	return t
}

// NewNode allocates an unattached node. The caller populates it and then
// attaches it with Insert.
func (t *Topology) NewNode(typ NodeType, name string) *Node {
	return &Node{
		Type:  typ,
		Name:  name,
		infos: orderedmap.NewOrderedMap[string, string](),
	}
}

// Root returns the Machine node at the top of the tree.
func (t *Topology) Root() *Node {
	return t.root
}

// Insert attaches node under parent. A node can be inserted only once.
// PCIDevice nodes carrying an address are added to the bus-id index.
func (t *Topology) Insert(parent, node *Node) error {
	if parent == nil {
		return fmt.Errorf("insert of %q: nil parent", node.Name)
	}
	if node.parent != nil {
		return fmt.Errorf("insert of %q: already attached under %q", node.Name, node.parent.Name)
	}
	node.parent = parent
	parent.children = append(parent.children, node)
	if node.Type == PCIDevice && node.PCI != nil {
		t.RegisterBusID(node.PCI.Address, node)
	}
	return nil
}

// RegisterBusID records node as the owner of the given bus address.
func (t *Topology) RegisterBusID(addr PCIAddress, node *Node) {
	t.byBusID[addr] = node
}

// FindByBusID returns the node registered at the given bus address, or nil.
func (t *Topology) FindByBusID(addr PCIAddress) *Node {
	return t.byBusID[addr]
}

// TypeFilter returns the filter configured for the given node type,
// KeepAll when unset.
func (t *Topology) TypeFilter(typ NodeType) TypeFilter {
	return t.filters[typ]
}

func (t *Topology) SetTypeFilter(typ NodeType, f TypeFilter) {
	t.filters[typ] = f
}

// HideErrors reports whether discovery stages should suppress diagnostics.
func (t *Topology) HideErrors() bool {
	return t.hideErrors
}

func (t *Topology) SetHideErrors(hide bool) {
	t.hideErrors = hide
}

// Walk visits every node depth-first, starting at the root.
func (t *Topology) Walk(visit func(n *Node, depth int)) {
	walk(t.root, 0, visit)
}

func walk(n *Node, depth int, visit func(n *Node, depth int)) {
	visit(n, depth)
	for _, child := range n.children {
		walk(child, depth+1, visit)
	}
}

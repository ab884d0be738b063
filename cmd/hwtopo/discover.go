// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2024 Intel Corporation

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dora-zhang/hwloc/pkg/backends"
	"github.com/dora-zhang/hwloc/pkg/common/utils"
	"github.com/dora-zhang/hwloc/pkg/topology"
)

var asJSON bool

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Run all discovery stages and print the topology",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		registry, err := backends.DefaultRegistry(log)
		if err != nil {
			return err
		}

		topo := topology.New()
		registry.Run(topo, cfg)

		if asJSON {
			return printJSON(topo)
		}
		printTree(topo)
		return nil
	},
}

func init() {
	discoverCmd.Flags().BoolVar(&asJSON, "json", false, "print the topology as JSON")
	rootCmd.AddCommand(discoverCmd)
}

func printTree(topo *topology.Topology) {
	topo.Walk(func(n *topology.Node, depth int) {
		indent := strings.Repeat("  ", depth)
		line := fmt.Sprintf("%s%s %q", indent, n.Type, n.Name)
		if n.Subtype != "" {
			line += " (" + n.Subtype + ")"
		}
		fmt.Println(line)
		for _, name := range n.InfoNames() {
			value, _ := n.Info(name)
			fmt.Printf("%s  %s=%s\n", indent, name, value)
		}
	})

	accelerators := utils.Filter(topo.Root().Children(), func(n *topology.Node) bool {
		_, tagged := n.Info("KnownAccelerator")
		return tagged
	})
	if len(accelerators) > 0 {
		fmt.Printf("\n%d known accelerator(s) attached directly to the root\n", len(accelerators))
	}
}

type jsonNode struct {
	Type     string            `json:"type"`
	Name     string            `json:"name"`
	Subtype  string            `json:"subtype,omitempty"`
	Infos    map[string]string `json:"infos,omitempty"`
	Children []jsonNode        `json:"children,omitempty"`
}

func printJSON(topo *topology.Topology) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(toJSONNode(topo.Root()))
}

func toJSONNode(n *topology.Node) jsonNode {
	out := jsonNode{
		Type:    n.Type.String(),
		Name:    n.Name,
		Subtype: n.Subtype,
	}
	if len(n.InfoNames()) > 0 {
		out.Infos = map[string]string{}
		for _, name := range n.InfoNames() {
			value, _ := n.Info(name)
			out.Infos[name] = value
		}
	}
	for _, child := range n.Children() {
		out.Children = append(out.Children, toJSONNode(child))
	}
	return out
}

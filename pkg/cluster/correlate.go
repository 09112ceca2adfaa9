// Copyright (c) 2025, The Bitte Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cluster

import (
	"net/netip"
	"slices"

	"github.com/google/uuid"

	"github.com/bitte-ops/bitte/pkg/inventory"
	"github.com/bitte-ops/bitte/pkg/nomad"
	"github.com/bitte-ops/bitte/pkg/terraform"
)

// Correlate joins cloud instances with Nomad clients and declared state.
//
// Each instance becomes one node, in input order. A node gets the Nomad
// client whose address equals its private address, together with the
// allocations placed on that client. A node without a name takes the name of
// the first declared instance (in key order) with the same private address.
// Nodes without a valid private address are never joined or backfilled.
func Correlate(instances []inventory.Instance, clients []nomad.ClientNode, allocs []nomad.Allocation, state *terraform.StateValue) Nodes {
	byAddr := make(map[netip.Addr]*nomad.ClientNode, len(clients))
	for i := range clients {
		c := &clients[i]
		if !c.HasAddress() {
			continue
		}
		a := c.Address.Unmap()
		if _, dup := byAddr[a]; !dup {
			byAddr[a] = c
		}
	}

	byNode := make(map[uuid.UUID][]nomad.Allocation)
	for _, a := range allocs {
		byNode[a.NodeID] = append(byNode[a.NodeID], a)
	}

	declared := map[netip.Addr]string{}
	if state != nil {
		for _, inst := range state.SortedInstances() {
			a := inst.PrivateAddr()
			if !a.IsValid() || inst.Name == "" {
				continue
			}
			if _, seen := declared[a]; !seen {
				declared[a] = inst.Name
			}
		}
	}

	nodes := make(Nodes, 0, len(instances))
	for _, inst := range instances {
		n := Node{
			ID:        inst.ID,
			Name:      inst.Name,
			PrivateIP: inst.PrivateIP,
			PublicIP:  inst.PublicIP,
			NixOS:     inst.UID,
		}

		if n.PrivateIP.IsValid() {
			priv := n.PrivateIP.Unmap()
			if c, ok := byAddr[priv]; ok {
				client := *c
				client.Allocs = slices.Clone(byNode[client.ID])
				if client.Allocs == nil {
					client.Allocs = []nomad.Allocation{}
				}
				n.NomadClient = &client
			}
			if n.Name == "" {
				n.Name = declared[priv]
			}
		}

		nodes = append(nodes, n)
	}
	return nodes
}

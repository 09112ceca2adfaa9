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
	"fmt"
	"net/netip"
	"strings"
	"sync"
	"time"

	memdb "github.com/hashicorp/go-memdb"

	"github.com/bitte-ops/bitte/pkg/config"
	"github.com/bitte-ops/bitte/pkg/header"
	"github.com/bitte-ops/bitte/pkg/nomad"
)

// SnapshotAPIVersion is the schema version of cached snapshots. Bump it when
// the serialized form of Cluster changes so that old caches are rebuilt.
const SnapshotAPIVersion = "bitte.io/v1"

// Node is a cloud instance correlated with its Nomad client, if any.
type Node struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	PrivateIP   netip.Addr        `json:"priv_ip"`
	PublicIP    netip.Addr        `json:"pub_ip"`
	NixOS       string            `json:"nixos"`
	NomadClient *nomad.ClientNode `json:"nomad_client,omitempty"`
}

// Allocs returns the allocations placed on the node.
func (n *Node) Allocs() []nomad.Allocation {
	if n.NomadClient == nil {
		return nil
	}
	return n.NomadClient.Allocs
}

// Nodes is an ordered node collection.
type Nodes []Node

// TableHeader implements serializer.Tabular.
func (ns Nodes) TableHeader() []string {
	return []string{"NAME", "ID", "PRIVATE IP", "PUBLIC IP", "NIXOS", "NOMAD CLIENT", "ALLOCS"}
}

// TableRows implements serializer.Tabular.
func (ns Nodes) TableRows() [][]string {
	rows := make([][]string, 0, len(ns))
	for i := range ns {
		n := &ns[i]
		client := ""
		if n.NomadClient != nil {
			client = n.NomadClient.ID.String()
		}
		rows = append(rows, []string{
			n.Name, n.ID, addrString(n.PrivateIP), addrString(n.PublicIP), n.NixOS, client,
			fmt.Sprint(len(n.Allocs())),
		})
	}
	return rows
}

// Allocations is an allocation list renderable as a table.
type Allocations []nomad.Allocation

// TableHeader implements serializer.Tabular.
func (as Allocations) TableHeader() []string {
	return []string{"ID", "NAMESPACE", "JOB", "GROUP", "INDEX", "STATUS"}
}

// TableRows implements serializer.Tabular.
func (as Allocations) TableRows() [][]string {
	rows := make([][]string, 0, len(as))
	for _, a := range as {
		rows = append(rows, []string{
			a.ID.String(), a.Namespace, a.JobID, a.TaskGroup, fmt.Sprint(a.Index), a.Status,
		})
	}
	return rows
}

func addrString(a netip.Addr) string {
	if !a.IsValid() {
		return ""
	}
	return a.String()
}

// Cluster is a snapshot of a cluster. It is never modified after it has
// been built or loaded and is safe for concurrent reads.
type Cluster struct {
	header.Header `json:",inline" yaml:",inline"`

	Name     string          `json:"name"`
	Nodes    Nodes           `json:"nodes"`
	Domain   string          `json:"domain"`
	Provider config.Provider `json:"provider"`
	S3Cache  string          `json:"s3_cache"`
	TTL      time.Time       `json:"ttl"`

	orchestrator Orchestrator

	indexOnce sync.Once
	index     *memdb.MemDB
	indexErr  error
}

// Orchestrator returns the Nomad client shared by everything reading this
// snapshot. It is nil when no client could be created.
func (c *Cluster) Orchestrator() Orchestrator {
	return c.orchestrator
}

// Expired reports whether the snapshot is no longer fresh at now.
func (c *Cluster) Expired(now time.Time) bool {
	return !c.TTL.After(now)
}

// TableHeader implements serializer.Tabular.
func (c *Cluster) TableHeader() []string {
	return c.Nodes.TableHeader()
}

// TableRows implements serializer.Tabular.
func (c *Cluster) TableRows() [][]string {
	return c.Nodes.TableRows()
}

// String returns a one-line summary.
func (c *Cluster) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s, %s): %d nodes", c.Name, c.Domain, c.Provider, len(c.Nodes))
	if !c.TTL.IsZero() {
		fmt.Fprintf(&b, ", valid until %s", c.TTL.Format(time.RFC3339))
	}
	return b.String()
}

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
	"slices"
	"strings"

	memdb "github.com/hashicorp/go-memdb"

	"github.com/bitte-ops/bitte/pkg/errors"
)

const nodeTable = "nodes"

// Index names of the node table. Each one is an identifier a needle can match.
const (
	PositionIndex = "id"
	NodeIDIndex   = "node"
	NameIndex     = "name"
	ClientIndex   = "client"
	AddressIndex  = "address"
)

// nodeRecord is the indexed form of a Node. Pos is the node's position in
// the snapshot and keeps results in snapshot order.
type nodeRecord struct {
	Pos       uint
	ID        string
	Name      string
	ClientID  string
	Addresses []string
}

func nodeSchema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			nodeTable: {
				Name: nodeTable,
				Indexes: map[string]*memdb.IndexSchema{
					PositionIndex: {
						Name:    PositionIndex,
						Unique:  true,
						Indexer: &memdb.UintFieldIndex{Field: "Pos"},
					},
					NodeIDIndex: {
						Name:         NodeIDIndex,
						AllowMissing: true,
						Indexer:      &memdb.StringFieldIndex{Field: "ID"},
					},
					NameIndex: {
						Name:         NameIndex,
						AllowMissing: true,
						Indexer:      &memdb.StringFieldIndex{Field: "Name"},
					},
					ClientIndex: {
						Name:         ClientIndex,
						AllowMissing: true,
						Indexer:      &memdb.StringFieldIndex{Field: "ClientID"},
					},
					AddressIndex: {
						Name:         AddressIndex,
						AllowMissing: true,
						Indexer:      &memdb.StringSliceFieldIndex{Field: "Addresses"},
					},
				},
			},
		},
	}
}

func newRecord(pos int, n *Node) *nodeRecord {
	r := &nodeRecord{Pos: uint(pos), ID: n.ID, Name: n.Name}
	if n.NomadClient != nil {
		r.ClientID = n.NomadClient.ID.String()
	}
	for _, a := range []netip.Addr{n.PrivateIP, n.PublicIP} {
		if a.IsValid() && !a.IsUnspecified() {
			r.Addresses = append(r.Addresses, a.Unmap().String())
		}
	}
	return r
}

func (c *Cluster) db() (*memdb.MemDB, error) {
	c.indexOnce.Do(func() {
		db, err := memdb.NewMemDB(nodeSchema())
		if err != nil {
			c.indexErr = fmt.Errorf("failed to create node index: %w", err)
			return
		}
		txn := db.Txn(true)
		for i := range c.Nodes {
			if err := txn.Insert(nodeTable, newRecord(i, &c.Nodes[i])); err != nil {
				txn.Abort()
				c.indexErr = fmt.Errorf("failed to index node %s: %w", c.Nodes[i].ID, err)
				return
			}
		}
		txn.Commit()
		c.index = db
	})
	return c.index, c.indexErr
}

// match returns the snapshot positions of every node matching needle.
func (c *Cluster) match(txn *memdb.Txn, needle string) ([]uint, error) {
	type query struct {
		index string
		arg   string
	}

	needle = strings.TrimSpace(needle)
	if needle == "" {
		return nil, nil
	}

	queries := []query{
		{NodeIDIndex, needle},
		{NameIndex, needle},
		{ClientIndex, strings.ToLower(needle)},
	}
	if a, err := netip.ParseAddr(needle); err == nil {
		queries = append(queries, query{AddressIndex, a.Unmap().String()})
	}

	var out []uint
	for _, q := range queries {
		it, err := txn.Get(nodeTable, q.index, q.arg)
		if err != nil {
			return nil, fmt.Errorf("node lookup on %s failed: %w", q.index, err)
		}
		for obj := it.Next(); obj != nil; obj = it.Next() {
			out = append(out, obj.(*nodeRecord).Pos)
		}
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

// FindNeedle returns the node whose id, name, Nomad client id, private or
// public address equals needle. When several nodes match, the first one in
// snapshot order is returned.
func (c *Cluster) FindNeedle(needle string) (*Node, error) {
	db, err := c.db()
	if err != nil {
		return nil, err
	}

	pos, err := c.match(db.Txn(false), needle)
	if err != nil {
		return nil, err
	}
	if len(pos) == 0 {
		return nil, errors.NewWithContext(errors.ErrCodeNotFound,
			fmt.Sprintf("no node matches %q", needle), map[string]any{"needle": needle})
	}

	n := c.Nodes[pos[0]]
	return &n, nil
}

// FindNeedles returns every node matching at least one needle, in snapshot
// order and without duplicates. No match is not an error.
func (c *Cluster) FindNeedles(needles []string) (Nodes, error) {
	db, err := c.db()
	if err != nil {
		return nil, err
	}

	txn := db.Txn(false)
	var all []uint
	for _, needle := range needles {
		pos, err := c.match(txn, needle)
		if err != nil {
			return nil, err
		}
		all = append(all, pos...)
	}
	slices.Sort(all)
	all = slices.Compact(all)

	out := make(Nodes, 0, len(all))
	for _, p := range all {
		out = append(out, c.Nodes[p])
	}
	return out, nil
}

// Allocations returns the allocations placed on the node matching needle.
// A node without a Nomad client has none.
func (c *Cluster) Allocations(needle string) (Allocations, error) {
	n, err := c.FindNeedle(needle)
	if err != nil {
		return nil, err
	}
	return Allocations(slices.Clone(n.Allocs())), nil
}

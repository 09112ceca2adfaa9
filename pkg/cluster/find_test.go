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
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitte-ops/bitte/pkg/errors"
	"github.com/bitte-ops/bitte/pkg/nomad"
)

func testCluster(t *testing.T) *Cluster {
	t.Helper()
	f := scenario(t)
	nodes := Correlate(f.inv.byRegion["eu-central-1"], f.orch.nodes, f.orch.allocs,
		f.state.values["clients"])
	nodes = append(nodes,
		Node{ID: "i-3", Name: "core-1", PrivateIP: netip.MustParseAddr("10.0.0.3")},
		Node{ID: "i-4", Name: "", PrivateIP: netip.MustParseAddr("0.0.0.0")},
	)
	return &Cluster{Name: "prod", Nodes: nodes}
}

func TestCluster_FindNeedle(t *testing.T) {
	c := testCluster(t)

	tests := []struct {
		name   string
		needle string
		wantID string
	}{
		{"private address", "10.0.0.1", "i-1"},
		{"public address", "3.0.0.2", "i-2"},
		{"ipv4-mapped address", "::ffff:10.0.0.2", "i-2"},
		{"instance id", "i-2", "i-2"},
		{"backfilled name", "core-0", "i-1"},
		{"nomad client id", clientID.String(), "i-1"},
		{"nomad client id upper case", "0B8A3F49-2F4E-4D4B-9A43-1C1F7E0A0ABC", "i-1"},
		{"tie resolves to snapshot order", "core-1", "i-2"},
		{"surrounding whitespace", " i-3 ", "i-3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := c.FindNeedle(tt.needle)
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, n.ID)
		})
	}
}

func TestCluster_FindNeedleNotFound(t *testing.T) {
	c := testCluster(t)

	for _, needle := range []string{"10.9.9.9", "nope", "", uuid.Nil.String(), "0.0.0.0"} {
		t.Run(needle, func(t *testing.T) {
			_, err := c.FindNeedle(needle)
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.ErrCodeNotFound))
		})
	}
}

func TestCluster_FindNeedleReturnsCopy(t *testing.T) {
	c := testCluster(t)

	n, err := c.FindNeedle("i-1")
	require.NoError(t, err)
	n.Name = "mutated"
	assert.Equal(t, "core-0", c.Nodes[0].Name)
}

func TestCluster_FindNeedles(t *testing.T) {
	c := testCluster(t)

	got, err := c.FindNeedles([]string{"core-1", "10.0.0.1", "i-2", "missing"})
	require.NoError(t, err)

	ids := make([]string, 0, len(got))
	for _, n := range got {
		ids = append(ids, n.ID)
	}
	assert.Equal(t, []string{"i-1", "i-2", "i-3"}, ids)

	none, err := c.FindNeedles([]string{"missing"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestCluster_Allocations(t *testing.T) {
	c := testCluster(t)

	allocs, err := c.Allocations("core-0")
	require.NoError(t, err)
	require.Len(t, allocs, 1)
	assert.Equal(t, uint32(2), allocs[0].Index)

	rows := allocs.TableRows()
	require.Len(t, rows, 1)
	assert.Equal(t, "2", rows[0][4])

	none, err := c.Allocations("i-2")
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = c.Allocations("missing")
	assert.True(t, errors.IsCode(err, errors.ErrCodeNotFound))
}

func TestCluster_IndexWithoutClient(t *testing.T) {
	c := &Cluster{Nodes: Nodes{
		{ID: "i-1", NomadClient: &nomad.ClientNode{ID: uuid.Nil}},
		{ID: "i-2"},
	}}

	n, err := c.FindNeedle(uuid.Nil.String())
	require.NoError(t, err)
	assert.Equal(t, "i-1", n.ID, "only an attached client is matched by its id")
}

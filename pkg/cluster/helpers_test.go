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
	"context"
	"encoding/json"
	"net/netip"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/bitte-ops/bitte/pkg/config"
	"github.com/bitte-ops/bitte/pkg/inventory"
	"github.com/bitte-ops/bitte/pkg/nomad"
	"github.com/bitte-ops/bitte/pkg/terraform"
)

var (
	clientID = uuid.MustParse("0b8a3f49-2f4e-4d4b-9a43-1c1f7e0a0abc")
	otherID  = uuid.MustParse("7d2c9e11-5b2a-4f0e-8c1d-3e4f5a6b7c8d")
)

type fakeOrchestrator struct {
	nodes     []nomad.ClientNode
	allocs    []nomad.Allocation
	nodesErr  error
	allocsErr error
	block     bool
}

func (f *fakeOrchestrator) ListNodes(ctx context.Context) ([]nomad.ClientNode, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.nodes, f.nodesErr
}

func (f *fakeOrchestrator) ListAllocations(ctx context.Context) ([]nomad.Allocation, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.allocs, f.allocsErr
}

type fakeState struct {
	values map[string]*terraform.StateValue
	errs   map[string]error
}

func (f *fakeState) Output(_ context.Context, workspace string) (*terraform.StateValue, error) {
	if err := f.errs[workspace]; err != nil {
		return nil, err
	}
	return f.values[workspace], nil
}

type fakeInventory struct {
	mu       sync.Mutex
	byRegion map[string][]inventory.Instance
	errs     map[string]error
	calls    []string
}

func (f *fakeInventory) RunningInstances(_ context.Context, region, cluster string) ([]inventory.Instance, error) {
	f.mu.Lock()
	f.calls = append(f.calls, region+"/"+cluster)
	f.mu.Unlock()
	if err := f.errs[region]; err != nil {
		return nil, err
	}
	return f.byRegion[region], nil
}

type fakeFactory struct {
	orch  *fakeOrchestrator
	state *fakeState
	inv   *fakeInventory
	err   error
}

func (f *fakeFactory) CreateOrchestrator() (Orchestrator, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.orch, nil
}

func (f *fakeFactory) CreateDeclaredState() (terraform.StateSource, error) { return f.state, nil }
func (f *fakeFactory) CreateInventory() (Inventory, error)                { return f.inv, nil }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	env := map[string]string{
		config.EnvCluster:               "prod",
		config.EnvDomain:                "prod.example.com",
		config.EnvProvider:              "AWS",
		config.EnvASGRegions:            "us-east-2",
		config.EnvDefaultRegion:         "eu-central-1",
		config.EnvTerraformOrganization: "acme",
	}
	return config.LoadFrom(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
}

func mustAlloc(t *testing.T, raw string) nomad.Allocation {
	t.Helper()
	var a nomad.Allocation
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		t.Fatalf("failed to decode allocation: %v", err)
	}
	return a
}

// scenario returns the sources of the two-instance, one-client cluster used
// throughout the package tests.
func scenario(t *testing.T) *fakeFactory {
	t.Helper()
	alloc := mustAlloc(t, `{"ID":"d3b07384-d9a0-4c1b-8f3e-1a2b3c4d5e6f","JobID":"web","Namespace":"default",
		"TaskGroup":"group","ClientStatus":"running","Name":"group[2]","NodeID":"`+clientID.String()+`"}`)
	stray := mustAlloc(t, `{"ID":"e3b07384-d9a0-4c1b-8f3e-1a2b3c4d5e6f","JobID":"db","Index":0,"NodeID":"`+otherID.String()+`"}`)

	state := &terraform.StateValue{
		Name:    "prod",
		S3Cache: "s3://prod-cache",
		Instances: map[string]terraform.Instance{
			"core-0": {Name: "core-0", PrivateIP: "10.0.0.1", PublicIP: "3.0.0.1"},
		},
	}

	return &fakeFactory{
		orch: &fakeOrchestrator{
			nodes: []nomad.ClientNode{
				{ID: clientID, Name: "client-abc", Address: netip.MustParseAddr("10.0.0.1")},
				{ID: otherID, Name: "client-gone", Address: netip.MustParseAddr("10.0.9.9")},
			},
			allocs: []nomad.Allocation{alloc, stray},
		},
		state: &fakeState{values: map[string]*terraform.StateValue{
			terraform.WorkspaceClients: state,
			terraform.WorkspaceCore:    {Name: "prod", S3Cache: "s3://core-cache"},
		}},
		inv: &fakeInventory{byRegion: map[string][]inventory.Instance{
			"eu-central-1": {
				{ID: "i-1", Name: "", PrivateIP: netip.MustParseAddr("10.0.0.1"), PublicIP: netip.MustParseAddr("3.0.0.1"), UID: "prod-client"},
				{ID: "i-2", Name: "core-1", PrivateIP: netip.MustParseAddr("10.0.0.2"), PublicIP: netip.MustParseAddr("3.0.0.2"), UID: "prod-core-1"},
			},
		}},
	}
}

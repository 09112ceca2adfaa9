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

package terraform

import (
	"context"
	"encoding/json"
	"net/netip"
	"slices"

	"github.com/bitte-ops/bitte/pkg/errors"
)

// Logical workspaces holding the cluster output. Clients is preferred and
// core is the fallback.
const (
	WorkspaceClients = "clients"
	WorkspaceCore    = "core"
)

// OutputName is the state output carrying the cluster description.
const OutputName = "cluster"

// StateSource returns the declared cluster description of one logical workspace.
type StateSource interface {
	Output(ctx context.Context, workspace string) (*StateValue, error)
}

// StateValue is the "cluster" output of a workspace.
type StateValue struct {
	ASGs      map[string]ASG      `json:"asgs"`
	Flake     string              `json:"flake"`
	Instances map[string]Instance `json:"instances"`
	KMS       string              `json:"kms"`
	Name      string              `json:"name"`
	Nix       string              `json:"nix"`
	Region    string              `json:"region"`
	Roles     Roles               `json:"roles"`
	S3Bucket  string              `json:"s3-bucket"`
	S3Cache   string              `json:"s3-cache"`
}

// ASG is a declared autoscaling group.
type ASG struct {
	ARN          string `json:"arn"`
	Count        int64  `json:"count"`
	FlakeAttr    string `json:"flake-attr"`
	InstanceType string `json:"instance-type"`
	Region       string `json:"region"`
	UID          string `json:"uid"`
}

// Instance is an individually declared machine.
type Instance struct {
	FlakeAttr    string            `json:"flake-attr"`
	InstanceType string            `json:"instance-type"`
	Name         string            `json:"name"`
	PrivateIP    string            `json:"private-ip"`
	PublicIP     string            `json:"public-ip"`
	Tags         map[string]string `json:"tags,omitempty"`
	UID          string            `json:"uid"`
}

// PrivateAddr returns the parsed private address, or the zero Addr.
func (i Instance) PrivateAddr() netip.Addr {
	return parseAddr(i.PrivateIP)
}

// PublicAddr returns the parsed public address, or the zero Addr.
func (i Instance) PublicAddr() netip.Addr {
	return parseAddr(i.PublicIP)
}

func parseAddr(s string) netip.Addr {
	a, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}
	}
	return a.Unmap()
}

// Roles holds the IAM roles of the cluster.
type Roles struct {
	Client Role `json:"client"`
	Core   Role `json:"core"`
}

// Role is an IAM role reference.
type Role struct {
	ARN string `json:"arn"`
}

// SortedInstances returns the declared instances ordered by their key, so
// that scans over them are deterministic.
func (v *StateValue) SortedInstances() []Instance {
	keys := make([]string, 0, len(v.Instances))
	for k := range v.Instances {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	out := make([]Instance, 0, len(keys))
	for _, k := range keys {
		out = append(out, v.Instances[k])
	}
	return out
}

// SortedASGs returns the declared autoscaling groups ordered by their key.
func (v *StateValue) SortedASGs() []ASG {
	keys := make([]string, 0, len(v.ASGs))
	for k := range v.ASGs {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	out := make([]ASG, 0, len(keys))
	for _, k := range keys {
		out = append(out, v.ASGs[k])
	}
	return out
}

// State is the subset of a raw Terraform state document that carries the
// cluster output.
type State struct {
	Version          int64  `json:"version"`
	TerraformVersion string `json:"terraform_version"`
	Serial           int64  `json:"serial"`
	Lineage          string `json:"lineage"`
	Outputs          struct {
		Cluster struct {
			Value *StateValue `json:"value"`
		} `json:"cluster"`
	} `json:"outputs"`
}

// ParseState extracts the cluster output from a raw Terraform state document.
func ParseState(data []byte) (*StateValue, error) {
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, errors.Wrap(errors.ErrCodeDecode, "invalid terraform state document", err)
	}
	if st.Outputs.Cluster.Value == nil {
		return nil, errors.New(errors.ErrCodeDecode, "terraform state has no cluster output")
	}
	return st.Outputs.Cluster.Value, nil
}

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

package nomad

import (
	"bytes"
	"encoding/json"
	"net/netip"

	"github.com/google/uuid"

	"github.com/bitte-ops/bitte/pkg/errors"
)

// ClientNode is a Nomad client agent as reported by the node list endpoint.
// Allocs is filled in by the cluster snapshot and is nil when listed.
type ClientNode struct {
	ID         uuid.UUID    `json:"ID"`
	Name       string       `json:"Name,omitempty"`
	Datacenter string       `json:"Datacenter,omitempty"`
	Status     string       `json:"Status,omitempty"`
	Address    netip.Addr   `json:"Address"`
	Allocs     []Allocation `json:"allocs,omitempty"`
}

// HasAddress reports whether the node advertised a usable address.
func (n *ClientNode) HasAddress() bool {
	return n.Address.IsValid()
}

// Allocation is a placed task group instance.
//
// The Nomad API does not expose the index directly; it is derived from the
// allocation name ("job.group[N]"). Once normalized the index is encoded as
// the integer "Index" field, which is also accepted on decode.
type Allocation struct {
	ID        uuid.UUID `json:"ID"`
	JobID     string    `json:"JobID"`
	Namespace string    `json:"Namespace"`
	TaskGroup string    `json:"TaskGroup"`
	Status    string    `json:"ClientStatus"`
	Index     uint32    `json:"Index"`
	NodeID    uuid.UUID `json:"NodeID"`
}

type allocationAlias Allocation

type allocationWire struct {
	allocationAlias
	Index json.RawMessage `json:"Index"`
	Name  json.RawMessage `json:"Name"`
}

// UnmarshalJSON decodes an allocation and normalizes its index. A record
// whose index cannot be recovered fails to decode.
func (a *Allocation) UnmarshalJSON(data []byte) error {
	var w allocationWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	raw := w.Index
	if isNull(raw) {
		raw = w.Name
	}
	if isNull(raw) {
		return errors.NewWithContext(errors.ErrCodeDecode, "allocation has neither Index nor Name",
			map[string]any{"allocation": w.ID.String()})
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return errors.Wrap(errors.ErrCodeDecode, "invalid allocation index", err)
	}

	idx, err := NormalizeIndex(v)
	if err != nil {
		return errors.WrapWithContext(errors.ErrCodeDecode, "failed to normalize allocation index", err,
			map[string]any{"allocation": w.ID.String(), "job": w.JobID})
	}

	*a = Allocation(w.allocationAlias)
	a.Index = idx
	return nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

// Evaluation is the subset of a Nomad evaluation used to follow a job submission.
type Evaluation struct {
	ID                string `json:"ID"`
	JobID             string `json:"JobID"`
	Namespace         string `json:"Namespace,omitempty"`
	Status            string `json:"Status"`
	StatusDescription string `json:"StatusDescription,omitempty"`
	TriggeredBy       string `json:"TriggeredBy"`
	Type              string `json:"Type"`
	DeploymentID      string `json:"DeploymentID,omitempty"`
	NodeID            string `json:"NodeID,omitempty"`
	Priority          int    `json:"Priority"`
	CreateIndex       int64  `json:"CreateIndex"`
	ModifyIndex       int64  `json:"ModifyIndex"`
}

// DeploymentStatus is the lifecycle state of a deployment.
type DeploymentStatus string

const (
	DeploymentRunning    DeploymentStatus = "running"
	DeploymentComplete   DeploymentStatus = "complete"
	DeploymentSuccessful DeploymentStatus = "successful"
	DeploymentFailed     DeploymentStatus = "failed"
	DeploymentCancelled  DeploymentStatus = "cancelled"
)

// Deployment is the subset of a Nomad deployment used to follow a rollout.
type Deployment struct {
	ID                string                         `json:"ID"`
	JobID             string                         `json:"JobID"`
	Status            DeploymentStatus               `json:"Status"`
	StatusDescription string                         `json:"StatusDescription,omitempty"`
	TaskGroups        map[string]DeploymentTaskGroup `json:"TaskGroups"`
}

// DeploymentTaskGroup holds the rollout counters of one task group.
type DeploymentTaskGroup struct {
	AutoPromote       bool     `json:"AutoPromote"`
	AutoRevert        bool     `json:"AutoRevert"`
	Promoted          bool     `json:"Promoted"`
	DesiredCanaries   int      `json:"DesiredCanaries"`
	DesiredTotal      int      `json:"DesiredTotal"`
	PlacedCanaries    []string `json:"PlacedCanaries"`
	PlacedAllocs      int      `json:"PlacedAllocs"`
	HealthyAllocs     int      `json:"HealthyAllocs"`
	UnhealthyAllocs   int      `json:"UnhealthyAllocs"`
	ProgressDeadline  int64    `json:"ProgressDeadline"`
	RequireProgressBy string   `json:"RequireProgressBy"`
}

// IsDone reports whether the deployment reached a terminal state.
// Unknown states are treated as still running.
func (d *Deployment) IsDone() bool {
	switch d.Status {
	case DeploymentComplete, DeploymentSuccessful, DeploymentFailed, DeploymentCancelled:
		return true
	default:
		return false
	}
}

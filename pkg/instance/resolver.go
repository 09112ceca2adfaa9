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

// Package instance resolves needles against declared state and autoscaling
// group members, without correlating with the orchestrator.
//
// Individually declared instances are matched first, on their name or
// addresses. Then every member of every declared autoscaling group is looked
// up in the cloud inventory and matched according to the MatchMode. Only
// members with a public address are returned.
package instance

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"strings"

	"golang.org/x/time/rate"

	"github.com/bitte-ops/bitte/pkg/errors"
	"github.com/bitte-ops/bitte/pkg/inventory"
	"github.com/bitte-ops/bitte/pkg/terraform"
)

// Instance is a machine reachable over its public address.
type Instance struct {
	PublicIP  netip.Addr `json:"public_ip"`
	Name      string     `json:"name"`
	UID       string     `json:"uid"`
	FlakeAttr string     `json:"flake_attr"`
	S3Cache   string     `json:"s3_cache"`
}

// Instances is an instance list renderable as a table.
type Instances []Instance

// TableHeader implements serializer.Tabular.
func (is Instances) TableHeader() []string {
	return []string{"NAME", "PUBLIC IP", "UID", "FLAKE ATTR"}
}

// TableRows implements serializer.Tabular.
func (is Instances) TableRows() [][]string {
	rows := make([][]string, 0, len(is))
	for _, i := range is {
		ip := ""
		if i.PublicIP.IsValid() {
			ip = i.PublicIP.String()
		}
		rows = append(rows, []string{i.Name, ip, i.UID, i.FlakeAttr})
	}
	return rows
}

// MatchMode selects how autoscaling group members are matched.
type MatchMode string

const (
	// MatchFields matches a needle that equals the instance id or one of its
	// addresses, or that is the leading label(s) of one of its DNS names.
	MatchFields MatchMode = "fields"

	// MatchSubstring matches a needle contained in the concatenation of the
	// instance id, public DNS, public address, private DNS and private
	// address. A needle can match across field boundaries.
	MatchSubstring MatchMode = "substring"
)

// ParseMatchMode parses a match mode name; the empty string is MatchSubstring.
func ParseMatchMode(s string) (MatchMode, error) {
	switch MatchMode(strings.ToLower(s)) {
	case "", MatchSubstring:
		return MatchSubstring, nil
	case MatchFields:
		return MatchFields, nil
	default:
		return "", errors.New(errors.ErrCodeInvalidRequest,
			fmt.Sprintf("unknown match mode %q, expected %q or %q", s, MatchFields, MatchSubstring))
	}
}

// GroupInventory looks up autoscaling group members.
type GroupInventory interface {
	GroupInstances(ctx context.Context, region, arn string) ([]string, error)
	DescribeInstance(ctx context.Context, region, id string) (*inventory.Instance, error)
}

// Resolver finds instances by needle.
type Resolver struct {
	// State is the declared state source. Required.
	State terraform.StateSource

	// Inventory looks up group members. Required when groups are declared.
	Inventory GroupInventory

	// Mode selects the group member matching. Defaults to MatchSubstring.
	Mode MatchMode

	// Concurrency bounds parallel inventory calls. Defaults to defaults.GroupLookupConcurrency.
	Concurrency int

	// Limiter throttles inventory calls. Defaults to defaults.GroupLookupRate per second.
	Limiter *rate.Limiter
}

// FindOne returns the first instance matching needle.
func (r *Resolver) FindOne(ctx context.Context, needle string) (*Instance, error) {
	found, err := r.Find(ctx, []string{needle})
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, errors.NewWithContext(errors.ErrCodeNotFound,
			fmt.Sprintf("no instance matches %q", needle), map[string]any{"needle": needle})
	}
	return &found[0], nil
}

// Find returns every instance matching at least one needle: declared
// instances first, in key order, then group members, in group key order.
func (r *Resolver) Find(ctx context.Context, needles []string) (Instances, error) {
	needles = cleanNeedles(needles)
	if len(needles) == 0 {
		return Instances{}, nil
	}

	state, err := r.declaredState(ctx)
	if err != nil {
		return nil, err
	}

	out := Instances{}
	for _, inst := range state.SortedInstances() {
		if matchDeclared(inst, needles) {
			out = append(out, Instance{
				PublicIP:  inst.PublicAddr(),
				Name:      inst.Name,
				UID:       inst.UID,
				FlakeAttr: inst.FlakeAttr,
				S3Cache:   state.S3Cache,
			})
		}
	}

	members, err := r.groupMembers(ctx, state.SortedASGs())
	if err != nil {
		return nil, err
	}

	match := r.matcher()
	for _, m := range members {
		if !m.instance.PublicIP.IsValid() || !match(m.instance, needles) {
			continue
		}
		out = append(out, Instance{
			PublicIP:  m.instance.PublicIP,
			Name:      m.instance.ID,
			UID:       m.group.UID,
			FlakeAttr: m.group.FlakeAttr,
			S3Cache:   state.S3Cache,
		})
	}

	slog.Debug("resolved instances",
		slog.Any("needles", needles),
		slog.String("mode", string(r.mode())),
		slog.Int("count", len(out)))

	return out, nil
}

func (r *Resolver) declaredState(ctx context.Context) (*terraform.StateValue, error) {
	if r.State == nil {
		return nil, errors.New(errors.ErrCodeConfiguration, "no declared state source")
	}

	v, clientsErr := r.State.Output(ctx, terraform.WorkspaceClients)
	if clientsErr == nil {
		return v, nil
	}
	slog.Warn("falling back to core workspace for declared state", slog.String("error", clientsErr.Error()))

	v, coreErr := r.State.Output(ctx, terraform.WorkspaceCore)
	if coreErr == nil {
		return v, nil
	}
	return nil, errors.Propagate(errors.ErrCodeUnavailable,
		"failed to fetch declared state from both clients and core workspaces",
		fmt.Errorf("%w; %w", clientsErr, coreErr),
		map[string]any{"source": "declared-state"})
}

func (r *Resolver) mode() MatchMode {
	if r.Mode == "" {
		return MatchSubstring
	}
	return r.Mode
}

func (r *Resolver) matcher() func(inventory.Instance, []string) bool {
	if r.mode() == MatchFields {
		return matchFields
	}
	return matchSubstring
}

func cleanNeedles(needles []string) []string {
	out := make([]string, 0, len(needles))
	for _, n := range needles {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, n)
		}
	}
	return out
}

func matchDeclared(inst terraform.Instance, needles []string) bool {
	priv, pub := inst.PrivateAddr(), inst.PublicAddr()
	for _, n := range needles {
		if n == inst.Name || n == inst.PrivateIP || n == inst.PublicIP {
			return true
		}
		if a, err := netip.ParseAddr(n); err == nil {
			a = a.Unmap()
			if (priv.IsValid() && a == priv) || (pub.IsValid() && a == pub) {
				return true
			}
		}
	}
	return false
}

func matchFields(inst inventory.Instance, needles []string) bool {
	for _, n := range needles {
		if n == inst.ID {
			return true
		}
		if a, err := netip.ParseAddr(n); err == nil {
			a = a.Unmap()
			if (inst.PrivateIP.IsValid() && a == inst.PrivateIP) || (inst.PublicIP.IsValid() && a == inst.PublicIP) {
				return true
			}
			continue
		}
		for _, dns := range []string{inst.PublicDNS, inst.PrivateDNS} {
			if dns != "" && (n == dns || strings.HasPrefix(dns, n+".")) {
				return true
			}
		}
	}
	return false
}

func matchSubstring(inst inventory.Instance, needles []string) bool {
	var b strings.Builder
	b.WriteString(inst.ID)
	b.WriteString(inst.PublicDNS)
	if inst.PublicIP.IsValid() {
		b.WriteString(inst.PublicIP.String())
	}
	b.WriteString(inst.PrivateDNS)
	if inst.PrivateIP.IsValid() {
		b.WriteString(inst.PrivateIP.String())
	}
	joined := b.String()

	for _, n := range needles {
		if strings.Contains(joined, n) {
			return true
		}
	}
	return false
}

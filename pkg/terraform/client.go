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

// Package terraform reads the declared cluster state from Terraform Cloud.
//
// The declared state of a cluster lives in the "cluster" output of the
// workspaces <cluster>_clients and <cluster>_core. Reading it takes three
// requests: the workspace id, the current state version with its outputs,
// and finally the value of the cluster output.
package terraform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"golang.org/x/time/rate"

	"github.com/bitte-ops/bitte/pkg/defaults"
	"github.com/bitte-ops/bitte/pkg/errors"
	"github.com/bitte-ops/bitte/pkg/transport"
)

const (
	// DefaultAddress is the Terraform Cloud API endpoint.
	DefaultAddress = "https://" + DefaultHost

	contentType = "application/vnd.api+json"
)

// ClientConfig identifies the organization and cluster to read.
type ClientConfig struct {
	Address      string
	Token        string
	Organization string
	Cluster      string
}

// Client is a Terraform Cloud API client. It implements StateSource.
type Client struct {
	http    *transport.Client
	org     string
	cluster string
}

var _ StateSource = (*Client)(nil)

// NewClient creates a Terraform Cloud client. Requests are rate limited
// to stay under the API quota.
func NewClient(cfg ClientConfig, opts ...transport.Option) *Client {
	addr := cfg.Address
	if addr == "" {
		addr = DefaultAddress
	}

	topts := append([]transport.Option{
		transport.WithSource("terraform"),
		transport.WithHeader("Authorization", "Bearer "+cfg.Token),
		transport.WithHeader("Accept", contentType),
		transport.WithHeader("Content-Type", contentType),
		transport.WithRateLimit(rate.Limit(defaults.TerraformRate), defaults.TerraformRate),
	}, opts...)

	return &Client{
		http:    transport.New(addr, topts...),
		org:     cfg.Organization,
		cluster: cfg.Cluster,
	}
}

// WorkspaceName returns the remote workspace name of a logical workspace.
func (c *Client) WorkspaceName(workspace string) string {
	return c.cluster + "_" + workspace
}

type resource struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Attributes json.RawMessage `json:"attributes,omitempty"`
}

type document struct {
	Data     resource   `json:"data"`
	Included []resource `json:"included,omitempty"`
}

type outputAttributes struct {
	Name      string          `json:"name"`
	Sensitive bool            `json:"sensitive"`
	Value     json.RawMessage `json:"value"`
}

// WorkspaceID resolves a workspace name within the organization to its id.
func (c *Client) WorkspaceID(ctx context.Context, name string) (string, error) {
	var doc document
	path := fmt.Sprintf("/api/v2/organizations/%s/workspaces/%s", url.PathEscape(c.org), url.PathEscape(name))
	if err := c.http.GetJSON(ctx, path, nil, &doc); err != nil {
		return "", fmt.Errorf("failed to get workspace %q: %w", name, err)
	}
	if doc.Data.ID == "" {
		return "", errors.NewWithContext(errors.ErrCodeDecode, "workspace response has no id",
			map[string]any{"workspace": name})
	}
	return doc.Data.ID, nil
}

// CurrentStateVersion returns the id of the cluster output of the current
// state version of a workspace.
func (c *Client) CurrentStateVersion(ctx context.Context, workspaceID string) (string, error) {
	var doc document
	path := fmt.Sprintf("/api/v2/workspaces/%s/current-state-version", url.PathEscape(workspaceID))
	q := url.Values{"include": {"outputs"}}
	if err := c.http.GetJSON(ctx, path, q, &doc); err != nil {
		return "", fmt.Errorf("failed to get current state version of %s: %w", workspaceID, err)
	}

	for _, inc := range doc.Included {
		if inc.Type != "state-version-outputs" {
			continue
		}
		var attrs outputAttributes
		if err := json.Unmarshal(inc.Attributes, &attrs); err != nil {
			return "", errors.Wrap(errors.ErrCodeDecode, "invalid state version output", err)
		}
		if attrs.Name == OutputName {
			return inc.ID, nil
		}
	}
	return "", errors.NewWithContext(errors.ErrCodeNotFound, "state version has no cluster output",
		map[string]any{"workspace_id": workspaceID, "state_version": doc.Data.ID})
}

// StateVersionOutput fetches the value of a state version output.
func (c *Client) StateVersionOutput(ctx context.Context, outputID string) (*StateValue, error) {
	var doc document
	path := "/api/v2/state-version-outputs/" + url.PathEscape(outputID)
	if err := c.http.GetJSON(ctx, path, nil, &doc); err != nil {
		return nil, fmt.Errorf("failed to get state version output %s: %w", outputID, err)
	}

	var attrs outputAttributes
	if err := json.Unmarshal(doc.Data.Attributes, &attrs); err != nil {
		return nil, errors.Wrap(errors.ErrCodeDecode, "invalid state version output", err)
	}
	var v StateValue
	if err := json.Unmarshal(attrs.Value, &v); err != nil {
		return nil, errors.WrapWithContext(errors.ErrCodeDecode, "invalid cluster output value", err,
			map[string]any{"output_id": outputID})
	}
	return &v, nil
}

// Output returns the cluster output of a logical workspace ("clients" or "core").
func (c *Client) Output(ctx context.Context, workspace string) (*StateValue, error) {
	v, err := c.output(ctx, workspace)
	if err != nil {
		return nil, errors.Propagate(errors.ErrCodeUnavailable,
			fmt.Sprintf("failed to read declared state of workspace %q", workspace), err,
			map[string]any{"source": "declared-state/" + workspace})
	}
	return v, nil
}

func (c *Client) output(ctx context.Context, workspace string) (*StateValue, error) {
	wsID, err := c.WorkspaceID(ctx, c.WorkspaceName(workspace))
	if err != nil {
		return nil, err
	}
	outID, err := c.CurrentStateVersion(ctx, wsID)
	if err != nil {
		return nil, err
	}
	return c.StateVersionOutput(ctx, outID)
}

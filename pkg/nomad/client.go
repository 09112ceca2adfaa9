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

// Package nomad is the orchestrator source client: it lists client nodes and
// allocations, and reads evaluations and deployments.
//
// Allocation indices are normalized while decoding (see NormalizeIndex), so
// every Allocation handed out by this package carries an integer Index.
package nomad

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/bitte-ops/bitte/pkg/defaults"
	"github.com/bitte-ops/bitte/pkg/errors"
	"github.com/bitte-ops/bitte/pkg/transport"
)

// TokenHeader is the header carrying the ACL token.
const TokenHeader = "X-Nomad-Token"

// TokenSource issues a Nomad ACL token, e.g. from Vault.
type TokenSource interface {
	NomadToken(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource that always returns the same token.
type StaticToken string

// NomadToken implements TokenSource.
func (s StaticToken) NomadToken(context.Context) (string, error) {
	return string(s), nil
}

// Client talks to the Nomad HTTP API. It is safe for concurrent use; the
// token is resolved once, on first use, and shared by all requests.
type Client struct {
	http *transport.Client

	src   TokenSource
	group singleflight.Group
	mu    sync.RWMutex
	token string
}

// Option configures a Client.
type Option func(*clientOptions)

type clientOptions struct {
	transport []transport.Option
}

// WithTransportOptions passes options to the underlying HTTP client.
func WithTransportOptions(opts ...transport.Option) Option {
	return func(o *clientOptions) {
		o.transport = append(o.transport, opts...)
	}
}

// AddrForDomain returns the conventional Nomad address of a cluster domain.
func AddrForDomain(domain string) string {
	return "https://nomad." + domain
}

// NewClient creates a client for addr that authenticates with tokens from src.
func NewClient(addr string, src TokenSource, opts ...Option) *Client {
	o := &clientOptions{}
	for _, opt := range opts {
		opt(o)
	}

	c := &Client{src: src}
	topts := append([]transport.Option{
		transport.WithSource("nomad"),
		transport.WithHeaderFunc(TokenHeader, c.resolveToken),
	}, o.transport...)
	c.http = transport.New(addr, topts...)
	return c
}

func (c *Client) resolveToken(ctx context.Context) (string, error) {
	c.mu.RLock()
	tok := c.token
	c.mu.RUnlock()
	if tok != "" {
		return tok, nil
	}
	if c.src == nil {
		return "", errors.New(errors.ErrCodeConfiguration, "no nomad token source configured")
	}

	// The issuance outlives a cancelled caller so that siblings waiting on
	// the same flight still get the token.
	ch := c.group.DoChan("token", func() (any, error) {
		c.mu.RLock()
		cached := c.token
		c.mu.RUnlock()
		if cached != "" {
			return cached, nil
		}

		tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaults.TokenIssueTimeout)
		defer cancel()

		t, err := c.src.NomadToken(tctx)
		if err != nil {
			return "", err
		}
		if t == "" {
			return "", errors.New(errors.ErrCodeUnauthorized, "token source returned an empty nomad token")
		}
		c.mu.Lock()
		c.token = t
		c.mu.Unlock()
		return t, nil
	})

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("failed to obtain nomad token: %w", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return "", fmt.Errorf("failed to obtain nomad token: %w", res.Err)
		}
		return res.Val.(string), nil
	}
}

// ListNodes returns every client node known to the cluster.
func (c *Client) ListNodes(ctx context.Context) ([]ClientNode, error) {
	var nodes []ClientNode
	if err := c.http.GetJSON(ctx, "/v1/nodes", nil, &nodes); err != nil {
		return nil, fmt.Errorf("failed to list nomad nodes: %w", err)
	}
	return nodes, nil
}

// ListAllocations returns the allocations of all namespaces. A single
// allocation with an undecodable index fails the whole listing.
func (c *Client) ListAllocations(ctx context.Context) ([]Allocation, error) {
	q := url.Values{
		"namespace":   {"*"},
		"task_states": {"false"},
	}
	var allocs []Allocation
	if err := c.http.GetJSON(ctx, "/v1/allocations", q, &allocs); err != nil {
		return nil, fmt.Errorf("failed to list nomad allocations: %w", err)
	}
	return allocs, nil
}

// Evaluation fetches one evaluation by id.
func (c *Client) Evaluation(ctx context.Context, id string) (*Evaluation, error) {
	var ev Evaluation
	if err := c.http.GetJSON(ctx, "/v1/evaluation/"+url.PathEscape(id), nil, &ev); err != nil {
		return nil, fmt.Errorf("failed to get evaluation %q: %w", id, err)
	}
	return &ev, nil
}

// Deployment fetches one deployment by id.
func (c *Client) Deployment(ctx context.Context, id string) (*Deployment, error) {
	var d Deployment
	if err := c.http.GetJSON(ctx, "/v1/deployment/"+url.PathEscape(id), nil, &d); err != nil {
		return nil, fmt.Errorf("failed to get deployment %q: %w", id, err)
	}
	return &d, nil
}

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

// Package vault is the auth collaborator of the source clients. It issues
// Nomad ACL tokens and reads declared state kept in Vault's key/value store.
package vault

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/bitte-ops/bitte/pkg/errors"
	"github.com/bitte-ops/bitte/pkg/nomad"
	"github.com/bitte-ops/bitte/pkg/terraform"
	"github.com/bitte-ops/bitte/pkg/transport"
)

const (
	// TokenHeader is the header carrying the Vault token.
	TokenHeader = "X-Vault-Token"

	// DefaultNomadRole is the Nomad secrets engine role used for tokens.
	DefaultNomadRole = "developer"
)

// Config identifies the Vault endpoint and what to read from it.
type Config struct {
	Address   string
	Token     string
	Cluster   string
	NomadRole string
}

// Client reads from Vault.
type Client struct {
	http      *transport.Client
	cluster   string
	nomadRole string
}

var (
	_ nomad.TokenSource     = (*Client)(nil)
	_ terraform.StateSource = (*Client)(nil)
)

// AddrForDomain returns the conventional Vault address of a cluster domain.
func AddrForDomain(domain string) string {
	return "https://vault." + domain
}

// NewClient creates a Vault client. The token must already be resolved,
// see ResolveToken.
func NewClient(cfg Config, opts ...transport.Option) *Client {
	role := cfg.NomadRole
	if role == "" {
		role = DefaultNomadRole
	}

	topts := append([]transport.Option{
		transport.WithSource("vault"),
		transport.WithHeader(TokenHeader, cfg.Token),
	}, opts...)

	return &Client{
		http:      transport.New(cfg.Address, topts...),
		cluster:   cfg.Cluster,
		nomadRole: role,
	}
}

// ResolveToken returns token when set, otherwise the token stored by
// "vault login" in ~/.vault-token.
func ResolveToken(token string) (string, error) {
	if token != "" {
		return token, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeConfiguration, "failed to determine home directory", err)
	}
	return ReadTokenFile(filepath.Join(home, ".vault-token"))
}

// ReadTokenFile reads a token file, trimming surrounding whitespace.
func ReadTokenFile(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", errors.WrapWithContext(errors.ErrCodeConfiguration,
			"VAULT_TOKEN is not set and no token file is readable", err, map[string]any{"path": path})
	}
	tok := strings.TrimSpace(string(b))
	if tok == "" {
		return "", errors.NewWithContext(errors.ErrCodeConfiguration, "vault token file is empty",
			map[string]any{"path": path})
	}
	return tok, nil
}

type credsResponse struct {
	Data struct {
		AccessorID string `json:"accessor_id"`
		SecretID   string `json:"secret_id"`
	} `json:"data"`
}

// NomadToken issues a Nomad ACL token from the Nomad secrets engine.
func (c *Client) NomadToken(ctx context.Context) (string, error) {
	var resp credsResponse
	path := "/v1/nomad/creds/" + url.PathEscape(c.nomadRole)
	if err := c.http.GetJSON(ctx, path, nil, &resp); err != nil {
		return "", fmt.Errorf("failed to issue nomad token for role %q: %w", c.nomadRole, err)
	}
	if resp.Data.SecretID == "" {
		return "", errors.NewWithContext(errors.ErrCodeUnauthorized, "vault returned no nomad secret id",
			map[string]any{"role": c.nomadRole})
	}
	return resp.Data.SecretID, nil
}

type kvResponse struct {
	Data struct {
		Data struct {
			Value string `json:"value"`
		} `json:"data"`
	} `json:"data"`
}

// Output reads the Terraform state of a logical workspace stored under
// secret/vbk/<cluster>/<workspace> and returns its cluster output.
func (c *Client) Output(ctx context.Context, workspace string) (*terraform.StateValue, error) {
	v, err := c.output(ctx, workspace)
	if err != nil {
		return nil, errors.Propagate(errors.ErrCodeUnavailable,
			fmt.Sprintf("failed to read declared state of workspace %q", workspace), err,
			map[string]any{"source": "declared-state/" + workspace})
	}
	return v, nil
}

func (c *Client) output(ctx context.Context, workspace string) (*terraform.StateValue, error) {
	var resp kvResponse
	path := fmt.Sprintf("/v1/secret/data/vbk/%s/%s", url.PathEscape(c.cluster), url.PathEscape(workspace))
	if err := c.http.GetJSON(ctx, path, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Data.Data.Value == "" {
		return nil, errors.New(errors.ErrCodeDecode, "vault secret has no state value")
	}
	return terraform.ParseState([]byte(resp.Data.Data.Value))
}

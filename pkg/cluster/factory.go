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
	"log/slog"

	"github.com/bitte-ops/bitte/pkg/config"
	"github.com/bitte-ops/bitte/pkg/errors"
	"github.com/bitte-ops/bitte/pkg/inventory"
	"github.com/bitte-ops/bitte/pkg/nomad"
	"github.com/bitte-ops/bitte/pkg/terraform"
	"github.com/bitte-ops/bitte/pkg/vault"
)

// Orchestrator lists Nomad client nodes and allocations.
type Orchestrator interface {
	ListNodes(ctx context.Context) ([]nomad.ClientNode, error)
	ListAllocations(ctx context.Context) ([]nomad.Allocation, error)
}

// Inventory lists the running instances of a cluster in one region.
type Inventory interface {
	RunningInstances(ctx context.Context, region, cluster string) ([]inventory.Instance, error)
}

// Factory creates the source clients used to build a snapshot.
type Factory interface {
	CreateOrchestrator() (Orchestrator, error)
	CreateDeclaredState() (terraform.StateSource, error)
	CreateInventory() (Inventory, error)
}

// DefaultFactory creates source clients from the environment configuration.
type DefaultFactory struct {
	Config *config.Config
}

// NewDefaultFactory creates a factory for cfg.
func NewDefaultFactory(cfg *config.Config) *DefaultFactory {
	return &DefaultFactory{Config: cfg}
}

// CreateOrchestrator creates a Nomad client. The ACL token is NOMAD_TOKEN
// when set; otherwise it is issued by Vault on first use.
func (f *DefaultFactory) CreateOrchestrator() (Orchestrator, error) {
	addr := f.Config.NomadAddr
	if addr == "" {
		addr = nomad.AddrForDomain(f.Config.Domain)
	}

	if f.Config.NomadToken != "" {
		return nomad.NewClient(addr, nomad.StaticToken(f.Config.NomadToken)), nil
	}

	vc, err := f.vaultClient()
	if err != nil {
		return nil, err
	}
	slog.Debug("nomad token will be issued by vault", slog.String("nomad", addr))
	return nomad.NewClient(addr, vc), nil
}

// CreateDeclaredState creates the client of the configured state backend.
func (f *DefaultFactory) CreateDeclaredState() (terraform.StateSource, error) {
	switch f.Config.StateBackend {
	case config.BackendVault:
		return f.vaultClient()
	case config.BackendTerraformCloud, "":
		path := f.Config.TerraformCredentials
		if path == "" {
			p, err := terraform.DefaultCredentialsPath()
			if err != nil {
				return nil, err
			}
			path = p
		}
		creds, err := terraform.LoadCredentials(path)
		if err != nil {
			return nil, err
		}
		token, err := creds.Token(terraform.DefaultHost)
		if err != nil {
			return nil, err
		}
		return terraform.NewClient(terraform.ClientConfig{
			Token:        token,
			Organization: f.Config.TerraformOrganization,
			Cluster:      f.Config.Cluster,
		}), nil
	default:
		return nil, errors.NewWithContext(errors.ErrCodeConfiguration,
			"unsupported state backend "+string(f.Config.StateBackend),
			map[string]any{"env": config.EnvStateBackend})
	}
}

// CreateInventory creates the AWS inventory.
func (f *DefaultFactory) CreateInventory() (Inventory, error) {
	return inventory.NewAWS(), nil
}

func (f *DefaultFactory) vaultClient() (*vault.Client, error) {
	token, err := vault.ResolveToken(f.Config.VaultToken)
	if err != nil {
		return nil, err
	}
	addr := f.Config.VaultAddr
	if addr == "" {
		addr = vault.AddrForDomain(f.Config.Domain)
	}
	return vault.NewClient(vault.Config{
		Address: addr,
		Token:   token,
		Cluster: f.Config.Cluster,
	}), nil
}

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

// Package config holds the environment contract of the cluster tooling.
//
// Values are read from the process environment (Load) or from any lookup
// function (LoadFrom), so the CLI can overlay flag values on top. Required
// values are only checked when an operation needs them (RequireSnapshot,
// RequireDeclaredState), and a failed check names every missing variable.
package config

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/bitte-ops/bitte/pkg/errors"
)

// Environment variable names.
const (
	EnvCluster               = "BITTE_CLUSTER"
	EnvDomain                = "BITTE_DOMAIN"
	EnvProvider              = "BITTE_PROVIDER"
	EnvASGRegions            = "AWS_ASG_REGIONS"
	EnvDefaultRegion         = "AWS_DEFAULT_REGION"
	EnvTerraformOrganization = "TERRAFORM_ORGANIZATION"
	EnvStateBackend          = "BITTE_STATE_BACKEND"
	EnvNomadToken            = "NOMAD_TOKEN"
	EnvNomadAddr             = "NOMAD_ADDR"
	EnvVaultAddr             = "VAULT_ADDR"
	EnvVaultToken            = "VAULT_TOKEN"
	EnvCachePath             = "BITTE_CACHE"
	EnvTerraformCredentials  = "TF_CLI_CONFIG_CREDENTIALS"
)

// DefaultCachePath is the snapshot cache file, relative to the working directory.
const DefaultCachePath = ".cache.json"

// Provider is the cloud provider hosting the cluster.
type Provider string

// ProviderAWS is the only supported provider.
const ProviderAWS Provider = "AWS"

// ParseProvider parses a provider name case-insensitively.
func ParseProvider(s string) (Provider, error) {
	if strings.EqualFold(s, string(ProviderAWS)) {
		return ProviderAWS, nil
	}
	return "", errors.NewWithContext(errors.ErrCodeConfiguration,
		fmt.Sprintf("unsupported provider %q", s), map[string]any{"env": EnvProvider})
}

// StateBackend selects where declared state is read from.
type StateBackend string

const (
	// BackendTerraformCloud reads workspace outputs from Terraform Cloud.
	BackendTerraformCloud StateBackend = "tfc"
	// BackendVault reads state documents stored in Vault.
	BackendVault StateBackend = "vault"
)

// Config is the resolved environment.
type Config struct {
	Cluster               string
	Domain                string
	Provider              string
	ASGRegions            []string
	DefaultRegion         string
	TerraformOrganization string
	StateBackend          StateBackend
	NomadToken            string
	NomadAddr             string
	VaultAddr             string
	VaultToken            string
	CachePath             string
	TerraformCredentials  string
}

// Load reads the configuration from the process environment.
func Load() *Config {
	return LoadFrom(os.LookupEnv)
}

// LoadFrom reads the configuration through lookup.
func LoadFrom(lookup func(string) (string, bool)) *Config {
	get := func(key string) string {
		v, _ := lookup(key)
		return strings.TrimSpace(v)
	}

	c := &Config{
		Cluster:               get(EnvCluster),
		Domain:                get(EnvDomain),
		Provider:              get(EnvProvider),
		ASGRegions:            SplitRegions(get(EnvASGRegions)),
		DefaultRegion:         get(EnvDefaultRegion),
		TerraformOrganization: get(EnvTerraformOrganization),
		StateBackend:          StateBackend(strings.ToLower(get(EnvStateBackend))),
		NomadToken:            get(EnvNomadToken),
		NomadAddr:             get(EnvNomadAddr),
		VaultAddr:             get(EnvVaultAddr),
		VaultToken:            get(EnvVaultToken),
		CachePath:             get(EnvCachePath),
		TerraformCredentials:  get(EnvTerraformCredentials),
	}
	if c.StateBackend == "" {
		c.StateBackend = BackendTerraformCloud
	}
	if c.CachePath == "" {
		c.CachePath = DefaultCachePath
	}
	return c
}

// SplitRegions splits a colon-separated region list, dropping empty entries.
func SplitRegions(s string) []string {
	var out []string
	for _, r := range strings.Split(s, ":") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}

// Regions returns the distinct union of the autoscaling group regions and
// the default region, sorted.
func (c *Config) Regions() []string {
	out := slices.Clone(c.ASGRegions)
	if c.DefaultRegion != "" {
		out = append(out, c.DefaultRegion)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// RequireSnapshot checks everything needed to build a cluster snapshot.
func (c *Config) RequireSnapshot() error {
	var missing []string
	if c.Cluster == "" {
		missing = append(missing, EnvCluster)
	}
	if c.Domain == "" {
		missing = append(missing, EnvDomain)
	}
	if c.Provider == "" {
		missing = append(missing, EnvProvider)
	}
	if len(c.ASGRegions) == 0 {
		missing = append(missing, EnvASGRegions)
	}
	if c.DefaultRegion == "" {
		missing = append(missing, EnvDefaultRegion)
	}
	missing = append(missing, c.declaredStateMissing()...)
	if err := missingError(missing); err != nil {
		return err
	}

	if _, err := ParseProvider(c.Provider); err != nil {
		return err
	}
	return c.checkBackend()
}

// RequireDeclaredState checks everything needed to read declared state.
func (c *Config) RequireDeclaredState() error {
	var missing []string
	if c.Cluster == "" {
		missing = append(missing, EnvCluster)
	}
	missing = append(missing, c.declaredStateMissing()...)
	if err := missingError(missing); err != nil {
		return err
	}
	return c.checkBackend()
}

func (c *Config) declaredStateMissing() []string {
	switch c.StateBackend {
	case BackendTerraformCloud:
		if c.TerraformOrganization == "" {
			return []string{EnvTerraformOrganization}
		}
	case BackendVault:
		if c.VaultAddr == "" && c.Domain == "" {
			return []string{EnvVaultAddr}
		}
	}
	return nil
}

func (c *Config) checkBackend() error {
	switch c.StateBackend {
	case BackendTerraformCloud, BackendVault:
		return nil
	default:
		return errors.NewWithContext(errors.ErrCodeConfiguration,
			fmt.Sprintf("unsupported state backend %q", c.StateBackend), map[string]any{"env": EnvStateBackend})
	}
}

func missingError(missing []string) error {
	if len(missing) == 0 {
		return nil
	}
	return errors.NewWithContext(errors.ErrCodeConfiguration,
		"missing required environment: "+strings.Join(missing, ", "),
		map[string]any{"missing": missing})
}

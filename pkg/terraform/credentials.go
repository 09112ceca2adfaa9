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
	"os"
	"path/filepath"

	"github.com/bitte-ops/bitte/pkg/errors"
	"github.com/bitte-ops/bitte/pkg/serializer"
)

// DefaultHost is the Terraform Cloud host whose token is used.
const DefaultHost = "app.terraform.io"

// Credentials is the CLI credentials file written by "terraform login".
type Credentials struct {
	Credentials map[string]HostCredentials `json:"credentials"`
}

// HostCredentials holds the API token of one host.
type HostCredentials struct {
	Token string `json:"token"`
}

// DefaultCredentialsPath returns ~/.terraform.d/credentials.tfrc.json.
func DefaultCredentialsPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeConfiguration, "failed to determine home directory", err)
	}
	return filepath.Join(home, ".terraform.d", "credentials.tfrc.json"), nil
}

// LoadCredentials reads the credentials file at path.
func LoadCredentials(path string) (*Credentials, error) {
	creds, err := serializer.FromFileWithFormat[Credentials](path, serializer.FormatJSON)
	if err != nil {
		return nil, errors.WrapWithContext(errors.ErrCodeConfiguration,
			"failed to read terraform credentials", err, map[string]any{"path": path})
	}
	return creds, nil
}

// Token returns the API token stored for host.
func (c *Credentials) Token(host string) (string, error) {
	hc, ok := c.Credentials[host]
	if !ok || hc.Token == "" {
		return "", errors.NewWithContext(errors.ErrCodeConfiguration,
			"no terraform token for host "+host, map[string]any{"host": host})
	}
	return hc.Token, nil
}

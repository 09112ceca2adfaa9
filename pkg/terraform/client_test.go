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
	"net/http"
	"net/http/httptest"
	"net/netip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitte-ops/bitte/pkg/errors"
)

const clusterValue = `{
	"asgs": {
		"client-eu-central-1-t3a-xlarge": {
			"arn": "arn:aws:autoscaling:eu-central-1:123456789012:autoScalingGroup:abcd:autoScalingGroupName/client-eu-central-1-t3a-xlarge",
			"count": 3,
			"flake-attr": "nixosConfigurations.prod-client-eu-central-1",
			"instance-type": "t3a.xlarge",
			"region": "eu-central-1",
			"uid": "prod-client-eu-central-1"
		}
	},
	"flake": "github:input-output-hk/bitte",
	"instances": {
		"core-2": {"flake-attr": "core-2", "instance-type": "t3a.medium", "name": "core-2",
			"private-ip": "172.16.1.10", "public-ip": "3.120.1.2", "uid": "prod-core-2"},
		"core-1": {"flake-attr": "core-1", "instance-type": "t3a.medium", "name": "core-1",
			"private-ip": "172.16.0.10", "public-ip": "3.120.1.1", "tags": {"Cluster": "prod"}, "uid": "prod-core-1"}
	},
	"kms": "arn:aws:kms:eu-central-1:123456789012:key/k",
	"name": "prod",
	"nix": "nix",
	"region": "eu-central-1",
	"roles": {"client": {"arn": "arn:client"}, "core": {"arn": "arn:core"}},
	"s3-bucket": "prod-bucket",
	"s3-cache": "s3://prod-cache"
}`

func newTFCServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2/organizations/acme/workspaces/prod_clients", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, contentType, r.Header.Get("Accept"))
		_, _ = w.Write([]byte(`{"data":{"id":"ws-123","type":"workspaces"}}`))
	})
	mux.HandleFunc("/api/v2/organizations/acme/workspaces/prod_core", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"errors":[{"status":"404"}]}`, http.StatusNotFound)
	})
	mux.HandleFunc("/api/v2/workspaces/ws-123/current-state-version", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "outputs", r.URL.Query().Get("include"))
		_, _ = w.Write([]byte(`{"data":{"id":"sv-1","type":"state-versions"},"included":[
			{"id":"wsout-other","type":"state-version-outputs","attributes":{"name":"other","value":1}},
			{"id":"wsout-cluster","type":"state-version-outputs","attributes":{"name":"cluster"}}
		]}`))
	})
	mux.HandleFunc("/api/v2/state-version-outputs/wsout-cluster", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"id":"wsout-cluster","type":"state-version-outputs","attributes":{"name":"cluster","value":` + clusterValue + `}}}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(srv *httptest.Server) *Client {
	return NewClient(ClientConfig{
		Address:      srv.URL,
		Token:        "secret",
		Organization: "acme",
		Cluster:      "prod",
	})
}

func TestClient_Output(t *testing.T) {
	c := newTestClient(newTFCServer(t))

	v, err := c.Output(context.Background(), WorkspaceClients)
	require.NoError(t, err)

	assert.Equal(t, "prod", v.Name)
	assert.Equal(t, "s3://prod-cache", v.S3Cache)
	assert.Equal(t, "arn:core", v.Roles.Core.ARN)
	require.Len(t, v.Instances, 2)
	assert.Equal(t, "172.16.0.10", v.Instances["core-1"].PrivateIP)
	assert.Equal(t, int64(3), v.ASGs["client-eu-central-1-t3a-xlarge"].Count)
}

func TestClient_OutputFailureCarriesSource(t *testing.T) {
	c := newTestClient(newTFCServer(t))

	_, err := c.Output(context.Background(), WorkspaceCore)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeNotFound))

	var se *errors.StructuredError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "declared-state/core", se.Context["source"])
}

func TestClient_WorkspaceName(t *testing.T) {
	c := NewClient(ClientConfig{Cluster: "prod"})
	assert.Equal(t, "prod_clients", c.WorkspaceName(WorkspaceClients))
	assert.Equal(t, "prod_core", c.WorkspaceName(WorkspaceCore))
}

func TestClient_CurrentStateVersionWithoutClusterOutput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"id":"sv-1"},"included":[]}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).CurrentStateVersion(context.Background(), "ws-1")
	assert.True(t, errors.IsCode(err, errors.ErrCodeNotFound))
}

func TestStateValue_SortedInstances(t *testing.T) {
	v, err := ParseState([]byte(`{"version":4,"terraform_version":"1.0.0","serial":1,"lineage":"l",
		"outputs":{"cluster":{"value":` + clusterValue + `}}}`))
	require.NoError(t, err)

	got := v.SortedInstances()
	require.Len(t, got, 2)
	assert.Equal(t, "core-1", got[0].Name)
	assert.Equal(t, "core-2", got[1].Name)
	assert.Equal(t, netip.MustParseAddr("172.16.0.10"), got[0].PrivateAddr())
	assert.Equal(t, netip.MustParseAddr("3.120.1.1"), got[0].PublicAddr())

	asgs := v.SortedASGs()
	require.Len(t, asgs, 1)
	assert.Equal(t, "prod-client-eu-central-1", asgs[0].UID)
}

func TestParseState_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"not json", `{`},
		{"no cluster output", `{"version":4,"outputs":{}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseState([]byte(tt.input))
			assert.True(t, errors.IsCode(err, errors.ErrCodeDecode))
		})
	}
}

func TestInstance_InvalidAddress(t *testing.T) {
	i := Instance{PrivateIP: "", PublicIP: "not-an-ip"}
	assert.False(t, i.PrivateAddr().IsValid())
	assert.False(t, i.PublicAddr().IsValid())
}

func TestLoadCredentials(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "credentials.tfrc.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"credentials":{"app.terraform.io":{"token":"abc"}}}`), 0o600))

	creds, err := LoadCredentials(path)
	require.NoError(t, err)

	tok, err := creds.Token(DefaultHost)
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)

	_, err = creds.Token("tfe.example.com")
	assert.True(t, errors.IsCode(err, errors.ErrCodeConfiguration))
}

func TestLoadCredentials_Missing(t *testing.T) {
	_, err := LoadCredentials(filepath.Join(t.TempDir(), "missing.json"))
	assert.True(t, errors.IsCode(err, errors.ErrCodeConfiguration))
}

func TestDefaultCredentialsPath(t *testing.T) {
	t.Setenv("HOME", "/home/ops")
	p, err := DefaultCredentialsPath()
	require.NoError(t, err)
	assert.Equal(t, "/home/ops/.terraform.d/credentials.tfrc.json", p)
}

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
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitte-ops/bitte/pkg/defaults"
	"github.com/bitte-ops/bitte/pkg/errors"
	"github.com/bitte-ops/bitte/pkg/inventory"
	"github.com/bitte-ops/bitte/pkg/terraform"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestBuilder(t *testing.T, f *fakeFactory) *Builder {
	t.Helper()
	return &Builder{
		Config:  testConfig(t),
		Factory: f,
		Cache:   NewCache(filepath.Join(t.TempDir(), ".cache.json")),
		Now:     func() time.Time { return fixedNow },
	}
}

func TestBuilder_Build(t *testing.T) {
	f := scenario(t)
	b := newTestBuilder(t, f)

	c, err := b.Build(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "prod", c.Name)
	assert.Equal(t, "prod.example.com", c.Domain)
	assert.Equal(t, "s3://prod-cache", c.S3Cache)
	assert.Equal(t, fixedNow.Add(defaults.SnapshotTTL), c.TTL)
	assert.Same(t, f.orch, c.Orchestrator())

	require.Len(t, c.Nodes, 2)
	assert.Equal(t, "core-0", c.Nodes[0].Name)
	require.NotNil(t, c.Nodes[0].NomadClient)
	assert.Equal(t, uint32(2), c.Nodes[0].NomadClient.Allocs[0].Index)
	assert.Equal(t, "core-1", c.Nodes[1].Name)
	assert.Nil(t, c.Nodes[1].NomadClient)

	assert.ElementsMatch(t, []string{"eu-central-1/prod", "us-east-2/prod"}, f.inv.calls)

	_, err = os.Stat(b.Cache.Path)
	assert.NoError(t, err, "snapshot is persisted")
}

func TestBuilder_RegionOrder(t *testing.T) {
	f := scenario(t)
	f.inv.byRegion["us-east-2"] = []inventory.Instance{{ID: "i-us"}}
	f.inv.byRegion["eu-central-1"] = []inventory.Instance{{ID: "i-eu"}}

	c, err := newTestBuilder(t, f).Build(context.Background())
	require.NoError(t, err)
	require.Len(t, c.Nodes, 2)
	assert.Equal(t, "i-eu", c.Nodes[0].ID)
	assert.Equal(t, "i-us", c.Nodes[1].ID)
}

func TestBuilder_FallbackToCore(t *testing.T) {
	f := scenario(t)
	f.state.errs = map[string]error{
		terraform.WorkspaceClients: errors.New(errors.ErrCodeNotFound, "workspace missing"),
	}

	c, err := newTestBuilder(t, f).Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "s3://core-cache", c.S3Cache)
	assert.Empty(t, c.Nodes[0].Name, "core declares no instances to backfill from")
}

func TestBuilder_BothWorkspacesFail(t *testing.T) {
	f := scenario(t)
	f.state.errs = map[string]error{
		terraform.WorkspaceClients: stderrors.New("clients down"),
		terraform.WorkspaceCore:    stderrors.New("core down"),
	}

	_, err := newTestBuilder(t, f).Build(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeUnavailable))
	assert.Contains(t, err.Error(), "clients down")
	assert.Contains(t, err.Error(), "core down")
}

func TestBuilder_FatalSources(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*fakeFactory)
		source string
	}{
		{"allocations", func(f *fakeFactory) { f.orch.allocsErr = stderrors.New("boom") }, SourceAllocations},
		{"nodes", func(f *fakeFactory) { f.orch.nodesErr = stderrors.New("boom") }, SourceNodes},
		{"region", func(f *fakeFactory) { f.inv.errs = map[string]error{"us-east-2": stderrors.New("boom")} }, "inventory/us-east-2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := scenario(t)
			tt.mutate(f)
			b := newTestBuilder(t, f)

			_, err := b.Build(context.Background())
			require.Error(t, err)

			var se *errors.StructuredError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.source, se.Context["source"])

			_, statErr := os.Stat(b.Cache.Path)
			assert.True(t, os.IsNotExist(statErr), "failed builds are not cached")
		})
	}
}

func TestBuilder_SourceTimeout(t *testing.T) {
	f := scenario(t)
	f.orch.block = true
	b := newTestBuilder(t, f)
	b.SourceTimeout = 20 * time.Millisecond

	_, err := b.Build(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeTimeout))
}

func TestBuilder_MissingConfiguration(t *testing.T) {
	b := newTestBuilder(t, scenario(t))
	b.Config.Domain = ""

	_, err := b.Build(context.Background())
	assert.True(t, errors.IsCode(err, errors.ErrCodeConfiguration))
}

func TestBuilder_CacheWriteFailureIsNotFatal(t *testing.T) {
	b := newTestBuilder(t, scenario(t))
	b.Cache = NewCache(filepath.Join(t.TempDir(), "missing", "dir", ".cache.json"))

	c, err := b.Build(context.Background())
	require.NoError(t, err)
	assert.Len(t, c.Nodes, 2)
}

func TestBuilder_LoadOrBuild(t *testing.T) {
	t.Run("fresh cache is returned without fetching", func(t *testing.T) {
		f := scenario(t)
		b := newTestBuilder(t, f)
		_, err := b.Build(context.Background())
		require.NoError(t, err)

		f.orch.nodesErr = stderrors.New("must not be called")
		f.inv.calls = nil

		c, err := b.LoadOrBuild(context.Background())
		require.NoError(t, err)
		assert.Len(t, c.Nodes, 2)
		assert.Empty(t, f.inv.calls)
		assert.NotNil(t, c.Orchestrator(), "nomad client is attached to cached snapshots")
		assert.Equal(t, uint32(2), c.Nodes[0].NomadClient.Allocs[0].Index)
	})

	t.Run("expired cache is rebuilt", func(t *testing.T) {
		f := scenario(t)
		b := newTestBuilder(t, f)
		_, err := b.Build(context.Background())
		require.NoError(t, err)

		b.Now = func() time.Time { return fixedNow.Add(defaults.SnapshotTTL) }
		f.inv.calls = nil

		c, err := b.LoadOrBuild(context.Background())
		require.NoError(t, err)
		assert.NotEmpty(t, f.inv.calls)
		assert.Equal(t, fixedNow.Add(2*defaults.SnapshotTTL), c.TTL)
	})

	t.Run("expired cache with failing rebuild is an error", func(t *testing.T) {
		f := scenario(t)
		b := newTestBuilder(t, f)
		_, err := b.Build(context.Background())
		require.NoError(t, err)

		b.Now = func() time.Time { return fixedNow.Add(time.Hour) }
		f.orch.nodesErr = stderrors.New("nomad down")

		c, err := b.LoadOrBuild(context.Background())
		require.Error(t, err)
		assert.Nil(t, c)
	})

	t.Run("corrupt cache is rebuilt", func(t *testing.T) {
		b := newTestBuilder(t, scenario(t))
		require.NoError(t, os.WriteFile(b.Cache.Path, []byte("{not json"), 0o600))

		c, err := b.LoadOrBuild(context.Background())
		require.NoError(t, err)
		assert.Len(t, c.Nodes, 2)
	})

	t.Run("without cache", func(t *testing.T) {
		b := newTestBuilder(t, scenario(t))
		b.Cache = nil

		c, err := b.LoadOrBuild(context.Background())
		require.NoError(t, err)
		assert.Len(t, c.Nodes, 2)
	})
}

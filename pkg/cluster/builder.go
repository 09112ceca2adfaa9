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
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bitte-ops/bitte/pkg/config"
	"github.com/bitte-ops/bitte/pkg/defaults"
	"github.com/bitte-ops/bitte/pkg/errors"
	"github.com/bitte-ops/bitte/pkg/header"
	"github.com/bitte-ops/bitte/pkg/inventory"
	"github.com/bitte-ops/bitte/pkg/nomad"
	"github.com/bitte-ops/bitte/pkg/terraform"
)

// Source names attached to fetch errors and metrics.
const (
	SourceAllocations = "nomad-allocations"
	SourceNodes       = "nomad-nodes"
)

// Builder builds cluster snapshots.
type Builder struct {
	// Config is the environment configuration. Required.
	Config *config.Config

	// Factory creates the source clients. If nil, a DefaultFactory is used.
	Factory Factory

	// Cache persists built snapshots. If nil, snapshots are not persisted.
	Cache *Cache

	// Now returns the current time. If nil, time.Now is used.
	Now func() time.Time

	// SourceTimeout bounds each source fetch. Defaults to defaults.SourceFetchTimeout.
	SourceTimeout time.Duration

	// RegionTimeout bounds each region listing. Defaults to defaults.RegionFetchTimeout.
	RegionTimeout time.Duration

	// Version is recorded in the snapshot header.
	Version string
}

func (b *Builder) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now()
}

func (b *Builder) factory() Factory {
	if b.Factory == nil {
		b.Factory = NewDefaultFactory(b.Config)
	}
	return b.Factory
}

// Build fetches every source concurrently and correlates the results into
// a fresh snapshot, which is then written to the cache.
//
// Allocations, client nodes and every region must succeed. Declared state
// is read from the "clients" workspace, falling back to "core"; only when
// both fail does the build fail.
func (b *Builder) Build(ctx context.Context) (*Cluster, error) {
	if b.Config == nil {
		return nil, errors.New(errors.ErrCodeConfiguration, "no configuration")
	}
	if err := b.Config.RequireSnapshot(); err != nil {
		return nil, err
	}
	provider, err := config.ParseProvider(b.Config.Provider)
	if err != nil {
		return nil, err
	}

	orch, err := b.factory().CreateOrchestrator()
	if err != nil {
		return nil, fmt.Errorf("failed to create nomad client: %w", err)
	}
	declared, err := b.factory().CreateDeclaredState()
	if err != nil {
		return nil, fmt.Errorf("failed to create declared state client: %w", err)
	}
	inv, err := b.factory().CreateInventory()
	if err != nil {
		return nil, fmt.Errorf("failed to create cloud inventory: %w", err)
	}

	slog.Debug("building cluster snapshot",
		slog.String("cluster", b.Config.Cluster),
		slog.String("provider", string(provider)))

	start := time.Now()
	defer func() {
		snapshotBuildDuration.Observe(time.Since(start).Seconds())
	}()

	srcTimeout := durationOr(b.SourceTimeout, defaults.SourceFetchTimeout)
	regionTimeout := durationOr(b.RegionTimeout, defaults.RegionFetchTimeout)

	var (
		allocs              []nomad.Allocation
		clients             []nomad.ClientNode
		clientsState        *terraform.StateValue
		coreState           *terraform.StateValue
		clientsErr, coreErr error
	)

	regions := b.Config.Regions()
	perRegion := make([][]inventory.Instance, len(regions))

	// Each task writes only its own result variable; results are read after Wait.
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return fetch(gctx, SourceAllocations, srcTimeout, func(ctx context.Context) (err error) {
			allocs, err = orch.ListAllocations(ctx)
			return err
		})
	})

	g.Go(func() error {
		return fetch(gctx, SourceNodes, srcTimeout, func(ctx context.Context) (err error) {
			clients, err = orch.ListNodes(ctx)
			return err
		})
	})

	// Declared-state failures are recorded instead of returned so that the
	// group is not cancelled and the fallback can be decided after Wait.
	g.Go(func() error {
		clientsErr = fetch(gctx, "declared-state/"+terraform.WorkspaceClients, srcTimeout, func(ctx context.Context) (err error) {
			clientsState, err = declared.Output(ctx, terraform.WorkspaceClients)
			return err
		})
		return nil
	})

	g.Go(func() error {
		coreErr = fetch(gctx, "declared-state/"+terraform.WorkspaceCore, srcTimeout, func(ctx context.Context) (err error) {
			coreState, err = declared.Output(ctx, terraform.WorkspaceCore)
			return err
		})
		return nil
	})

	for i, region := range regions {
		g.Go(func() error {
			return fetch(gctx, "inventory/"+region, regionTimeout, func(ctx context.Context) (err error) {
				perRegion[i], err = inv.RunningInstances(ctx, region, b.Config.Cluster)
				return err
			})
		})
	}

	if err := g.Wait(); err != nil {
		snapshotBuildTotal.WithLabelValues("error").Inc()
		slog.Error("failed to build cluster snapshot", slog.String("error", err.Error()))
		return nil, err
	}

	state, err := selectState(clientsState, clientsErr, coreState, coreErr)
	if err != nil {
		snapshotBuildTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	var instances []inventory.Instance
	for _, ri := range perRegion {
		instances = append(instances, ri...)
	}

	now := b.now()
	c := &Cluster{
		Name:         b.Config.Cluster,
		Nodes:        Correlate(instances, clients, allocs, state),
		Domain:       b.Config.Domain,
		Provider:     provider,
		S3Cache:      state.S3Cache,
		TTL:          now.Add(defaults.SnapshotTTL),
		orchestrator: orch,
	}
	c.Init(header.KindClusterSnapshot, SnapshotAPIVersion, b.Version, now)

	snapshotBuildTotal.WithLabelValues("success").Inc()
	snapshotNodeCount.Set(float64(len(c.Nodes)))

	slog.Debug("cluster snapshot built",
		slog.Int("nodes", len(c.Nodes)),
		slog.Int("allocations", len(allocs)),
		slog.Int("regions", len(regions)))

	if b.Cache != nil {
		if err := b.Cache.Save(c); err != nil {
			slog.Warn("failed to write snapshot cache",
				slog.String("path", b.Cache.Path),
				slog.String("error", err.Error()))
		}
	}

	return c, nil
}

// LoadOrBuild returns the cached snapshot while it is fresh and builds a
// new one otherwise. A build failure is returned; a stale snapshot is never
// returned in its place.
func (b *Builder) LoadOrBuild(ctx context.Context) (*Cluster, error) {
	if b.Cache == nil {
		return b.Build(ctx)
	}

	c, err := b.Cache.Load()
	switch {
	case err != nil:
		slog.Debug("snapshot cache miss", slog.String("path", b.Cache.Path), slog.String("reason", err.Error()))
	case c.Expired(b.now()):
		snapshotCacheTotal.WithLabelValues("expired").Inc()
		slog.Debug("snapshot cache expired", slog.Time("ttl", c.TTL))
	default:
		snapshotCacheTotal.WithLabelValues("hit").Inc()
		if orch, oerr := b.factory().CreateOrchestrator(); oerr == nil {
			c.orchestrator = orch
		} else {
			slog.Warn("cached snapshot has no nomad client", slog.String("error", oerr.Error()))
		}
		return c, nil
	}

	return b.Build(ctx)
}

func selectState(clients *terraform.StateValue, clientsErr error, core *terraform.StateValue, coreErr error) (*terraform.StateValue, error) {
	if clientsErr == nil && clients != nil {
		return clients, nil
	}
	if coreErr == nil && core != nil {
		slog.Warn("falling back to core workspace for declared state", slog.Any("error", clientsErr))
		return core, nil
	}
	return nil, errors.Propagate(errors.ErrCodeUnavailable,
		"failed to fetch declared state from both clients and core workspaces",
		stderrors.Join(clientsErr, coreErr),
		map[string]any{"source": "declared-state"})
}

// fetch runs fn under its own deadline. Failures are tagged with source and
// a missed deadline is reported as a timeout.
func fetch(ctx context.Context, source string, timeout time.Duration, fn func(context.Context) error) error {
	start := time.Now()
	defer func() {
		snapshotSourceDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())
	}()

	fctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := fn(fctx)
	if err == nil {
		return nil
	}
	if stderrors.Is(fctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return errors.WrapWithContext(errors.ErrCodeTimeout,
			fmt.Sprintf("%s did not respond within %s", source, timeout), err,
			map[string]any{"source": source})
	}
	return errors.Propagate(errors.ErrCodeUnavailable, "failed to fetch "+source, err,
		map[string]any{"source": source})
}

func durationOr(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}

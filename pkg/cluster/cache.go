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
	stderrors "errors"
	"io/fs"
	"log/slog"

	"github.com/bitte-ops/bitte/pkg/errors"
	"github.com/bitte-ops/bitte/pkg/header"
	"github.com/bitte-ops/bitte/pkg/serializer"
)

// cacheFileMode restricts the cache to the current user; it lists the
// addresses of every machine in the cluster.
const cacheFileMode = 0o600

// Cache stores one snapshot as a JSON file.
type Cache struct {
	Path string
}

// NewCache returns a cache backed by the file at path.
func NewCache(path string) *Cache {
	return &Cache{Path: path}
}

// Load reads the cached snapshot. A missing file is a NOT_FOUND error and an
// unreadable, corrupt or outdated one is INTERNAL; callers treat both as a miss.
func (c *Cache) Load() (*Cluster, error) {
	cl, err := serializer.FromFileWithFormat[Cluster](c.Path, serializer.FormatJSON)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			snapshotCacheTotal.WithLabelValues("miss").Inc()
			return nil, errors.WrapWithContext(errors.ErrCodeNotFound, "no cached snapshot", err,
				map[string]any{"path": c.Path})
		}
		snapshotCacheTotal.WithLabelValues("corrupt").Inc()
		return nil, errors.WrapWithContext(errors.ErrCodeInternal, "failed to read cached snapshot", err,
			map[string]any{"path": c.Path})
	}
	if err := cl.Check(header.KindClusterSnapshot, SnapshotAPIVersion); err != nil {
		snapshotCacheTotal.WithLabelValues("corrupt").Inc()
		return nil, errors.WrapWithContext(errors.ErrCodeInternal, "cached snapshot has an unsupported format", err,
			map[string]any{"path": c.Path})
	}
	return cl, nil
}

// Save writes the snapshot, replacing the previous one atomically.
func (c *Cache) Save(cl *Cluster) error {
	if err := serializer.WriteFileAtomic(c.Path, serializer.FormatJSON, cl, cacheFileMode); err != nil {
		return errors.WrapWithContext(errors.ErrCodeInternal, "failed to write snapshot cache", err,
			map[string]any{"path": c.Path})
	}
	slog.Debug("snapshot cached", slog.String("path", c.Path), slog.Time("ttl", cl.TTL))
	return nil
}

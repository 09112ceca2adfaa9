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

package instance

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/bitte-ops/bitte/pkg/defaults"
	"github.com/bitte-ops/bitte/pkg/errors"
	"github.com/bitte-ops/bitte/pkg/inventory"
	"github.com/bitte-ops/bitte/pkg/terraform"
)

type member struct {
	group    terraform.ASG
	instance inventory.Instance
}

// groupMembers describes every member of groups. Group listings run first,
// then member descriptions; both are bounded by the concurrency limit and
// the rate limiter. Results keep group order, then member order.
func (r *Resolver) groupMembers(ctx context.Context, groups []terraform.ASG) ([]member, error) {
	if len(groups) == 0 {
		return nil, nil
	}
	if r.Inventory == nil {
		return nil, errors.New(errors.ErrCodeConfiguration, "no cloud inventory for autoscaling groups")
	}

	limit := r.Concurrency
	if limit <= 0 {
		limit = defaults.GroupLookupConcurrency
	}
	limiter := r.Limiter
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Limit(defaults.GroupLookupRate), defaults.GroupLookupRate)
	}

	ids := make([][]string, len(groups))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, grp := range groups {
		g.Go(func() error {
			if err := limiter.Wait(gctx); err != nil {
				return errors.Wrap(errors.ErrCodeTimeout, "rate limiter wait aborted", err)
			}
			members, err := r.Inventory.GroupInstances(gctx, grp.Region, grp.ARN)
			if err != nil {
				return fmt.Errorf("failed to list members of %s: %w", grp.ARN, err)
			}
			ids[i] = members
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []member
	for i, grp := range groups {
		for range ids[i] {
			out = append(out, member{group: grp})
		}
	}

	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(limit)
	k := 0
	for i, grp := range groups {
		for _, id := range ids[i] {
			slot := &out[k]
			k++
			g.Go(func() error {
				if err := limiter.Wait(gctx); err != nil {
					return errors.Wrap(errors.ErrCodeTimeout, "rate limiter wait aborted", err)
				}
				inst, err := r.Inventory.DescribeInstance(gctx, grp.Region, id)
				if err != nil {
					return fmt.Errorf("failed to describe member %s of %s: %w", id, grp.ARN, err)
				}
				slot.instance = *inst
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

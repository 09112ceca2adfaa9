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

package defaults

import "time"

// Snapshot timeouts and freshness.
const (
	// SnapshotTTL is how long a built cluster snapshot stays valid in the cache.
	SnapshotTTL = 5 * time.Minute

	// SourceFetchTimeout bounds each source fetch (allocations, client nodes,
	// one declared-state workspace). Exceeding it is a source-fetch failure.
	SourceFetchTimeout = 30 * time.Second

	// RegionFetchTimeout bounds the instance listing of a single cloud region.
	RegionFetchTimeout = 30 * time.Second

	// TokenIssueTimeout bounds a Nomad token issuance. The issuance is shared
	// by every caller waiting for it, so it does not inherit any one caller's
	// deadline.
	TokenIssueTimeout = 30 * time.Second
)

// Resolver timeouts and rates.
const (
	// ResolveTimeout is the default upper bound for one CLI resolution,
	// including a snapshot rebuild when the cache is stale.
	ResolveTimeout = 2 * time.Minute

	// GroupLookupConcurrency is the number of autoscaling group members
	// described in parallel by the instance resolver.
	GroupLookupConcurrency = 4

	// GroupLookupRate is the sustained rate of describe calls per second.
	GroupLookupRate = 10

	// TerraformRate is the sustained request rate against Terraform Cloud.
	// The public API allows 30 requests per second per token.
	TerraformRate = 20
)

// HTTP client timeouts for outbound requests.
const (
	// HTTPClientTimeout is the default total timeout for HTTP requests.
	HTTPClientTimeout = 30 * time.Second

	// HTTPConnectTimeout is the timeout for establishing connections.
	HTTPConnectTimeout = 5 * time.Second

	// HTTPTLSHandshakeTimeout is the timeout for TLS handshake.
	HTTPTLSHandshakeTimeout = 5 * time.Second

	// HTTPResponseHeaderTimeout is the timeout for reading response headers.
	HTTPResponseHeaderTimeout = 10 * time.Second

	// HTTPIdleConnTimeout is the timeout for idle connections in the pool.
	HTTPIdleConnTimeout = 90 * time.Second

	// HTTPKeepAlive is the keep-alive duration for connections.
	HTTPKeepAlive = 30 * time.Second
)

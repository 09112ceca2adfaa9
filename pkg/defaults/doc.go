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

// Package defaults provides centralized configuration constants for bitte.
//
// This package defines timeout values, freshness windows, and request rates
// used across the codebase. Centralizing these values ensures consistency
// and makes tuning easier.
//
// # Timeout Categories
//
//   - Snapshot timeouts: per-source deadlines for the fleet snapshot build
//   - Resolver timeouts: upper bound for a single CLI lookup
//   - HTTP client timeouts: for outbound requests to Nomad, Vault and Terraform
//
// # Usage
//
//	ctx, cancel := context.WithTimeout(ctx, defaults.SourceFetchTimeout)
//	defer cancel()
package defaults

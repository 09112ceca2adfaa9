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

// Package header stamps documents written by bitte with a kind and schema
// version, so that a reader can reject a file written in another format.
package header

import (
	"fmt"
	"time"

	"github.com/bitte-ops/bitte/pkg/errors"
)

// Kind is the type of a document.
type Kind string

// KindClusterSnapshot is a cached cluster snapshot.
const KindClusterSnapshot Kind = "ClusterSnapshot"

// String returns the string representation of the Kind.
func (k Kind) String() string {
	return string(k)
}

// Metadata keys set by Init.
const (
	MetadataTimestamp = "timestamp"
	MetadataVersion   = "version"
)

// Header identifies a document.
type Header struct {
	Kind       Kind              `json:"kind,omitempty" yaml:"kind,omitempty"`
	APIVersion string            `json:"apiVersion,omitempty" yaml:"apiVersion,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Init sets kind and apiVersion and records when, and by which tool
// version, the document was written.
func (h *Header) Init(kind Kind, apiVersion, version string, now time.Time) {
	h.Kind = kind
	h.APIVersion = apiVersion
	h.Metadata = map[string]string{
		MetadataTimestamp: now.UTC().Format(time.RFC3339),
	}
	if version != "" {
		h.Metadata[MetadataVersion] = version
	}
}

// Check returns an INTERNAL error unless the header has the given kind and apiVersion.
func (h *Header) Check(kind Kind, apiVersion string) error {
	if h.Kind == kind && h.APIVersion == apiVersion {
		return nil
	}
	return errors.NewWithContext(errors.ErrCodeInternal,
		fmt.Sprintf("expected %s %s, found %q %q", kind, apiVersion, h.Kind, h.APIVersion),
		map[string]any{"kind": string(h.Kind), "apiVersion": h.APIVersion})
}

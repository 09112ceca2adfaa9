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

package nomad

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"

	"github.com/bitte-ops/bitte/pkg/errors"
)

// indexSuffix matches the digits right before a closing bracket at the end
// of an allocation name, e.g. "web.api[12]".
var indexSuffix = regexp.MustCompile(`[0-9]*\]$`)

// NormalizeIndex converts an allocation index that arrives either as an
// integer or as a name with a bracketed numeric suffix into its integer form.
// A value that carries no extractable index is a decode error.
func NormalizeIndex(v any) (uint32, error) {
	switch n := v.(type) {
	case uint32:
		return n, nil
	case int:
		return fromInt64(int64(n))
	case int32:
		return fromInt64(int64(n))
	case int64:
		return fromInt64(n)
	case uint:
		return fromUint64(uint64(n))
	case uint64:
		return fromUint64(n)
	case float64:
		if n != math.Trunc(n) {
			return 0, indexError(v, "not an integer")
		}
		return fromInt64(int64(n))
	case json.Number:
		i, err := strconv.ParseInt(n.String(), 10, 64)
		if err != nil {
			return 0, errors.Wrap(errors.ErrCodeDecode, fmt.Sprintf("invalid allocation index %q", n), err)
		}
		return fromInt64(i)
	case string:
		return ParseIndex(n)
	default:
		return 0, indexError(v, fmt.Sprintf("unsupported type %T", v))
	}
}

// ParseIndex extracts the index from an allocation name such as "job.group[3]".
func ParseIndex(name string) (uint32, error) {
	m := indexSuffix.FindString(name)
	if m == "" {
		return 0, indexError(name, "no bracketed index suffix")
	}
	i, err := strconv.ParseUint(m[:len(m)-1], 10, 32)
	if err != nil {
		return 0, errors.WrapWithContext(errors.ErrCodeDecode,
			fmt.Sprintf("invalid allocation index in %q", name), err,
			map[string]any{"value": name})
	}
	return uint32(i), nil
}

func fromInt64(i int64) (uint32, error) {
	if i < 0 || i > math.MaxUint32 {
		return 0, indexError(i, "out of range")
	}
	return uint32(i), nil
}

func fromUint64(i uint64) (uint32, error) {
	if i > math.MaxUint32 {
		return 0, indexError(i, "out of range")
	}
	return uint32(i), nil
}

func indexError(v any, reason string) error {
	return errors.NewWithContext(errors.ErrCodeDecode,
		fmt.Sprintf("invalid allocation index %v: %s", v, reason),
		map[string]any{"value": v})
}

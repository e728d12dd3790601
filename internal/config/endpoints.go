// Copyright 2021 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseEndpointList parses the ignored_endpoints / whitened_endpoints
// grammar of spec §6: a comma-separated list of single endpoint numbers and
// inclusive ranges, optionally wrapped in brackets, e.g. "1,5,10-20,78".
// An empty string parses to an empty set.
func ParseEndpointList(raw string) (map[int]struct{}, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	s = strings.TrimSpace(s)

	out := make(map[int]struct{})
	if s == "" {
		return out, nil
	}

	for _, tok := range strings.Split(s, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if lo, hi, ok := strings.Cut(tok, "-"); ok {
			loN, err := strconv.Atoi(strings.TrimSpace(lo))
			if err != nil {
				return nil, fmt.Errorf("invalid range %q: %w", tok, err)
			}
			hiN, err := strconv.Atoi(strings.TrimSpace(hi))
			if err != nil {
				return nil, fmt.Errorf("invalid range %q: %w", tok, err)
			}
			if hiN < loN {
				return nil, fmt.Errorf("invalid range %q: high < low", tok)
			}
			for v := loN; v <= hiN; v++ {
				out[v] = struct{}{}
			}
			continue
		}
		n, err := strconv.Atoi(tok)
		if err != nil {
			return nil, fmt.Errorf("invalid endpoint %q: %w", tok, err)
		}
		out[n] = struct{}{}
	}
	return out, nil
}

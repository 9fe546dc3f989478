// Copyright (C) 2023 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package config loads the query-level knobs the percentile aggregation
// core reads at operator construction time.
package config

import "sigs.k8s.io/yaml"

// QueryConfig carries the debug and validation knobs a query can set for
// every approx_percentile aggregate instance it creates.
type QueryConfig struct {
	// FixedRandomSeed, when non-nil, makes every KLL sketch's compaction
	// coin flips reproducible across runs. Field name matches the
	// debug_aggregation_approx_percentile_fixed_random_seed query option.
	FixedRandomSeed *uint64 `json:"debug_aggregation_approx_percentile_fixed_random_seed,omitempty"`

	// StrictIntermediateValidation turns on full validation of
	// deserialized sketch views at phase boundaries (spec.md §4.4, §7).
	// Fast mode (the default) trusts intermediate rows produced by this
	// same binary version.
	StrictIntermediateValidation bool `json:"strict_intermediate_validation,omitempty"`
}

// Load parses a YAML document into a QueryConfig. Unknown keys are
// ignored, matching the engine's general query-option parsing behavior.
func Load(doc []byte) (*QueryConfig, error) {
	var cfg QueryConfig
	if err := yaml.Unmarshal(doc, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a QueryConfig with a non-reproducible seed and fast
// intermediate validation, the behavior a query gets when it sets none
// of these options explicitly.
func Default() *QueryConfig {
	return &QueryConfig{}
}

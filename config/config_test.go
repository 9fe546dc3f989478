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

package config

import "testing"

func TestLoadParsesKnownKeys(t *testing.T) {
	doc := []byte(`
debug_aggregation_approx_percentile_fixed_random_seed: 42
strict_intermediate_validation: true
`)
	cfg, err := Load(doc)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.FixedRandomSeed == nil || *cfg.FixedRandomSeed != 42 {
		t.Fatalf("FixedRandomSeed = %v, want 42", cfg.FixedRandomSeed)
	}
	if !cfg.StrictIntermediateValidation {
		t.Fatal("StrictIntermediateValidation = false, want true")
	}
}

func TestDefaultIsFastMode(t *testing.T) {
	cfg := Default()
	if cfg.FixedRandomSeed != nil {
		t.Fatal("default config should not set a fixed seed")
	}
	if cfg.StrictIntermediateValidation {
		t.Fatal("default config should use fast intermediate validation")
	}
}

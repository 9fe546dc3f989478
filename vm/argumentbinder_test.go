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

package vm

import "testing"

func TestArgumentBinderLatchesOnFirstBatch(t *testing.T) {
	b := NewArgumentBinder()
	if err := b.BindPercentile([]float64{0.5, 0.9}, true); err != nil {
		t.Fatal(err)
	}
	if !b.Latched() {
		t.Fatal("binder should be latched after first BindPercentile")
	}
	vals, isArray := b.Percentiles()
	if !isArray || len(vals) != 2 {
		t.Fatalf("unexpected latched percentiles: %v isArray=%v", vals, isArray)
	}
}

func TestArgumentBinderRejectsInconsistentBatch(t *testing.T) {
	b := NewArgumentBinder()
	if err := b.BindPercentile([]float64{0.5}, false); err != nil {
		t.Fatal(err)
	}
	if err := b.BindPercentile([]float64{0.9}, false); err == nil {
		t.Fatal("expected a different percentile value to be rejected")
	}
	if err := b.BindPercentile([]float64{0.5}, true); err == nil {
		t.Fatal("expected a shape change to be rejected")
	}
}

func TestArgumentBinderRejectsOutOfRangePercentile(t *testing.T) {
	b := NewArgumentBinder()
	if err := b.BindPercentile([]float64{1.5}, false); err == nil {
		t.Fatal("expected out-of-range percentile to be rejected")
	}
}

func TestArgumentBinderAccuracyLatchAndReject(t *testing.T) {
	b := NewArgumentBinder()
	a := 0.02
	if err := b.BindAccuracy(&a); err != nil {
		t.Fatal(err)
	}
	other := 0.05
	if err := b.BindAccuracy(&other); err == nil {
		t.Fatal("expected a different accuracy to be rejected")
	}
	if err := b.BindAccuracy(&a); err != nil {
		t.Fatal("re-binding the same accuracy should succeed")
	}
	bad := 1.5
	fresh := NewArgumentBinder()
	if err := fresh.BindAccuracy(&bad); err == nil {
		t.Fatal("expected out-of-range accuracy to be rejected")
	}
}

func TestArgumentBinderNilAccuracyIsUnset(t *testing.T) {
	b := NewArgumentBinder()
	if err := b.BindAccuracy(nil); err != nil {
		t.Fatal(err)
	}
	if b.K() == 0 {
		t.Fatal("K() should fall back to a default when accuracy is unset")
	}
}

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

import (
	"testing"

	"github.com/sneller-contrib/kllpercentile/internal/pool"
)

func seedFor(v uint64) *uint64 { return &v }

func TestGroupAccumulatorAppend(t *testing.T) {
	acc, err := NewGroupAccumulator[int64](200, seedFor(1))
	if err != nil {
		t.Fatal(err)
	}
	if acc.State() != stateEmpty {
		t.Fatal("new accumulator should start Empty")
	}
	for i := int64(0); i < 1000; i++ {
		acc.Append(i)
	}
	if acc.State() != stateDirty {
		t.Fatal("accumulator should be Dirty after append")
	}
	if acc.N() != 1000 {
		t.Fatalf("N() = %d, want 1000", acc.N())
	}
}

func TestGroupAccumulatorAppendWeightedRejectsBadWeight(t *testing.T) {
	acc, _ := NewGroupAccumulator[int64](200, seedFor(1))
	if err := acc.AppendWeighted(5, 0, seedFor(1)); err == nil {
		t.Fatal("expected weight 0 to be rejected")
	}
	if err := acc.AppendWeighted(5, maxWeight+1, seedFor(1)); err == nil {
		t.Fatal("expected weight above 2^60-1 to be rejected")
	}
}

func TestGroupAccumulatorBuffersLargeWeights(t *testing.T) {
	acc, _ := NewGroupAccumulator[int64](200, seedFor(1))
	if err := acc.AppendWeighted(42, largeWeightThreshold, seedFor(1)); err != nil {
		t.Fatal(err)
	}
	if len(acc.buffer) != 1 {
		t.Fatalf("expected one buffered entry, got %d", len(acc.buffer))
	}
	if acc.N() != largeWeightThreshold {
		t.Fatalf("N() = %d, want %d", acc.N(), largeWeightThreshold)
	}
}

func TestGroupAccumulatorAutoFlushesFullBuffer(t *testing.T) {
	acc, _ := NewGroupAccumulator[int64](200, seedFor(1))
	for i := 0; i < largeWeightBufferLimit; i++ {
		if err := acc.AppendWeighted(int64(i), largeWeightThreshold, seedFor(1)); err != nil {
			t.Fatal(err)
		}
	}
	if acc.State() != stateFinalized {
		t.Fatal("buffer hitting its cap should force an automatic flush")
	}
	if len(acc.buffer) != 0 {
		t.Fatalf("buffer should be empty after auto-flush, has %d entries", len(acc.buffer))
	}
}

func TestGroupAccumulatorCompactLeavesOriginalUntouched(t *testing.T) {
	acc, _ := NewGroupAccumulator[int64](200, seedFor(1))
	for i := int64(0); i < 500; i++ {
		acc.Append(i)
	}
	if err := acc.AppendWeighted(999, 600, seedFor(1)); err != nil {
		t.Fatal(err)
	}
	proc := pool.NewProcess(4)
	cp, release := acc.Compact(proc, seedFor(1))
	defer release()

	if cp.N() != 1100 {
		t.Fatalf("compacted copy N() = %d, want 1100", cp.N())
	}
	if len(acc.buffer) != 1 {
		t.Fatal("compact must not drain the original accumulator's buffer")
	}
	if acc.N() != 1100 {
		t.Fatalf("original accumulator N() changed by Compact: got %d", acc.N())
	}
}

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

package percentile

import (
	"math"
	"math/rand"
	"testing"
)

func seed(v uint64) *uint64 { return &v }

func TestEmptySketch(t *testing.T) {
	s, err := NewDefault[int64](seed(1))
	if err != nil {
		t.Fatal(err)
	}
	if !s.IsEmpty() {
		t.Fatal("new sketch should be empty")
	}
	if _, err := s.Quantile(0.5, true); err == nil {
		t.Fatal("expected error querying empty sketch")
	}
}

func TestBoundaryRanksExactMinMax(t *testing.T) {
	s, err := New[int64](200, seed(42))
	if err != nil {
		t.Fatal(err)
	}
	r := rand.New(rand.NewSource(7))
	const n = 50000
	for i := 0; i < n; i++ {
		s.Insert(r.Int63n(1_000_000))
	}
	min, _ := s.Min()
	max, _ := s.Max()

	q0, err := s.Quantile(0, true)
	if err != nil {
		t.Fatal(err)
	}
	if q0 != min {
		t.Fatalf("query(0) = %d, want exact min %d", q0, min)
	}
	q1, err := s.Quantile(1, true)
	if err != nil {
		t.Fatal(err)
	}
	if q1 != max {
		t.Fatalf("query(1) = %d, want exact max %d", q1, max)
	}
}

func TestMedianWithinErrorBound(t *testing.T) {
	s, err := New[int64](200, seed(123))
	if err != nil {
		t.Fatal(err)
	}
	const n = 100000
	for i := 1; i <= n; i++ {
		s.Insert(int64(i))
	}
	median, err := s.Quantile(0.5, true)
	if err != nil {
		t.Fatal(err)
	}
	wantMedian := int64(n / 2)
	errBound := s.NormalizedRankError() * n
	if math.Abs(float64(median-wantMedian)) > errBound*4 {
		t.Fatalf("median %d too far from expected %d (bound %v)", median, wantMedian, errBound)
	}
}

func TestDeterministicWithFixedSeed(t *testing.T) {
	build := func() *Sketch[int64] {
		s, _ := New[int64](150, seed(999))
		for i := 0; i < 20000; i++ {
			s.Insert(int64(i % 777))
		}
		return s
	}
	a, b := build(), build()
	for _, rank := range []float64{0, 0.1, 0.25, 0.5, 0.75, 0.9, 1} {
		qa, err := a.Quantile(rank, true)
		if err != nil {
			t.Fatal(err)
		}
		qb, err := b.Quantile(rank, true)
		if err != nil {
			t.Fatal(err)
		}
		if qa != qb {
			t.Fatalf("rank %v: sketch built twice with same seed diverged: %d vs %d", rank, qa, qb)
		}
	}
}

func TestMergeAssociative(t *testing.T) {
	build := func(lo, hi int64) *Sketch[int64] {
		s, _ := New[int64](200, seed(5))
		for v := lo; v < hi; v++ {
			s.Insert(v)
		}
		return s
	}
	a := build(0, 10000)
	b := build(10000, 20000)
	c := build(20000, 30000)

	ab := a.Clone()
	ab.Merge(b)
	abc1 := ab.Clone()
	abc1.Merge(c)

	bc := b.Clone()
	bc.Merge(c)
	abc2 := a.Clone()
	abc2.Merge(bc)

	q1, _ := abc1.Quantile(0.5, true)
	q2, _ := abc2.Quantile(0.5, true)
	if q1 != q2 {
		t.Fatalf("merge is not associative at median: %d vs %d", q1, q2)
	}
	if abc1.N() != abc2.N() {
		t.Fatalf("merge lost items: n=%d vs n=%d", abc1.N(), abc2.N())
	}
}

func TestNaNSortsGreatest(t *testing.T) {
	s, err := New[float64](200, seed(1))
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 1000; i++ {
		s.Insert(float64(i))
	}
	s.Insert(math.NaN())

	q1, err := s.Quantile(1.0, true)
	if err != nil {
		t.Fatal(err)
	}
	if !math.IsNaN(q1) {
		t.Fatalf("query(1) = %v, want NaN", q1)
	}

	qHalf, err := s.Quantile(0.5, false)
	if err != nil {
		t.Fatal(err)
	}
	if math.IsNaN(qHalf) {
		t.Fatal("NaN leaked into a rank far below 1 with only one NaN in a large stream")
	}
}

func TestInsertWeightedMatchesRepeatedInsert(t *testing.T) {
	const weight = 777
	direct, _ := New[int32](200, seed(3))
	for i := 0; i < weight; i++ {
		direct.Insert(42)
	}
	for i := 0; i < 5000; i++ {
		direct.Insert(int32(i))
	}

	viaWeighted, _ := New[int32](200, seed(3))
	viaWeighted.InsertWeighted(42, weight, 0)
	for i := 0; i < 5000; i++ {
		viaWeighted.Insert(int32(i))
	}

	if direct.N() != viaWeighted.N() {
		t.Fatalf("n mismatch: %d vs %d", direct.N(), viaWeighted.N())
	}
	rd, _ := direct.Rank(42, true)
	rw, _ := viaWeighted.Rank(42, true)
	if math.Abs(rd-rw) > 0.05 {
		t.Fatalf("rank(42) diverged too much between direct and weighted insert: %v vs %v", rd, rw)
	}
}

func TestSerializationRoundTrip(t *testing.T) {
	s, _ := New[int64](200, seed(17))
	for i := 0; i < 30000; i++ {
		s.Insert(int64(i * 3 % 9973))
	}
	view := s.ToView()
	restored, err := FromView[int64](view, true, seed(17))
	if err != nil {
		t.Fatal(err)
	}
	for _, rank := range []float64{0, 0.25, 0.5, 0.75, 1} {
		want, _ := s.Quantile(rank, true)
		got, err := restored.Quantile(rank, true)
		if err != nil {
			t.Fatal(err)
		}
		if want != got {
			t.Fatalf("round trip mismatch at rank %v: want %d got %d", rank, want, got)
		}
	}
}

func TestFromViewStrictRejectsCorruptLevels(t *testing.T) {
	v := View[int64]{
		K:      200,
		N:      3,
		Items:  []int64{1, 2, 3},
		Levels: []uint32{2, 0}, // decreasing: invalid
	}
	if _, err := FromView[int64](v, true, nil); err == nil {
		t.Fatal("expected strict validation to reject decreasing levels")
	}
}

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
	"github.com/sneller-contrib/kllpercentile/internal/kllerr"
	"github.com/sneller-contrib/kllpercentile/internal/percentile"
	"github.com/sneller-contrib/kllpercentile/internal/pool"
)

// largeWeightThreshold is the per-value weight at or above which append
// defers to the large-weight buffer instead of looping w individual
// inserts (spec.md §4.2).
const largeWeightThreshold = 512

// largeWeightBufferLimit is how many (value, weight) pairs the buffer
// holds before append forces a flush (spec.md §4.2).
const largeWeightBufferLimit = 4096

// maxWeight is one less than 2^60, the upper bound spec.md §4.2 places on
// a single append's weight.
const maxWeight = (uint64(1) << 60) - 1

type groupState uint8

const (
	stateEmpty groupState = iota
	stateDirty
	stateFinalized
)

type weightedValue[T percentile.Ordered] struct {
	value  T
	weight uint64
}

// GroupAccumulator is the per-group wrapper around one KllSketch plus a
// large-weight buffer of (value, weight) pairs deferred until flush,
// generalizing the single fixed-size centroid buffer sneller's own
// t-digest accumulator used.
type GroupAccumulator[T percentile.Ordered] struct {
	sketch *percentile.Sketch[T]
	buffer []weightedValue[T]
	state  groupState
	k      uint16
	seed   *uint64
}

// NewGroupAccumulator returns an empty, Empty-state accumulator with the
// given accuracy parameter.
func NewGroupAccumulator[T percentile.Ordered](k uint16, seed *uint64) (*GroupAccumulator[T], error) {
	sk, err := percentile.New[T](k, seed)
	if err != nil {
		return nil, err
	}
	return &GroupAccumulator[T]{sketch: sk, k: k, state: stateEmpty, seed: seed}, nil
}

func (g *GroupAccumulator[T]) State() groupState { return g.state }

// N reports the number of logical values folded into this accumulator so
// far, including values still sitting in the large-weight buffer.
func (g *GroupAccumulator[T]) N() uint64 {
	n := g.sketch.N()
	for _, wv := range g.buffer {
		n += wv.weight
	}
	return n
}

// Append forwards a single unweighted value to the sketch.
func (g *GroupAccumulator[T]) Append(v T) {
	g.sketch.Insert(v)
	g.state = stateDirty
}

// AppendWeighted implements spec.md §4.2's append(v, w, pool, seed): small
// weights are unrolled into individual inserts; weights at or above
// largeWeightThreshold are buffered and, once the buffer is full, flushed.
func (g *GroupAccumulator[T]) AppendWeighted(v T, w uint64, seed *uint64) error {
	if w < 1 || w > maxWeight {
		return kllerr.NewUser("GroupAccumulator.append", "weight must be in [1, %d], got %d", maxWeight, w)
	}
	if w < largeWeightThreshold {
		for i := uint64(0); i < w; i++ {
			g.sketch.Insert(v)
		}
		g.state = stateDirty
		return nil
	}
	g.buffer = append(g.buffer, weightedValue[T]{value: v, weight: w})
	g.state = stateDirty
	if len(g.buffer) >= largeWeightBufferLimit {
		g.Flush(seed)
	}
	return nil
}

// AppendView merges one serialized sketch view into the accumulator.
func (g *GroupAccumulator[T]) AppendView(v percentile.View[T], strict bool, seed *uint64) error {
	other, err := percentile.FromView[T](v, strict, seed)
	if err != nil {
		return err
	}
	g.sketch.Merge(other)
	g.state = stateDirty
	return nil
}

// AppendViews merges many serialized sketch views in one call, the batched
// form addSingleGroupIntermediateResults uses.
func (g *GroupAccumulator[T]) AppendViews(views []percentile.View[T], strict bool, seed *uint64) error {
	for _, v := range views {
		if err := g.AppendView(v, strict, seed); err != nil {
			return err
		}
	}
	return nil
}

// SetAccuracy updates the underlying sketch's k. It is a no-op if k is
// already the requested value, matching spec.md §4.2's idempotence rule.
// It only takes effect while the accumulator is still Empty: an
// already-populated sketch keeps the k it was constructed with, since
// changing k mid-stream would invalidate its compaction schedule.
func (g *GroupAccumulator[T]) SetAccuracy(k uint16) error {
	if k == g.k {
		return nil
	}
	if g.state != stateEmpty {
		return nil
	}
	sk, err := percentile.New[T](k, g.seed)
	if err != nil {
		return err
	}
	g.sketch = sk
	g.k = k
	return nil
}

// Flush drains the large-weight buffer into the sketch via the
// binary-levels auxiliary-sketch construction and finalizes the
// accumulator.
func (g *GroupAccumulator[T]) Flush(seed *uint64) {
	for i, wv := range g.buffer {
		g.sketch.InsertWeighted(wv.value, wv.weight, i)
	}
	g.buffer = g.buffer[:0]
	g.state = stateFinalized
	_ = seed // seed already captured by the sketch at construction time
}

// Compact builds an independent copy of this accumulator's sketch and
// charges one page of proc for it (the copy's items live in ordinary
// heap slices, not in that page): the large-weight buffer is merged into the copy
// and the copy is finalized, but the original accumulator's items and
// buffer are left untouched, so serialization of the returned copy can
// proceed concurrently with further appends on the owning thread. The
// copy shares the sketch's compaction coin (see Sketch.Clone), so merging
// the buffer into it advances the coin stream the original compacts with.
//
// The returned release func must be called once the caller is done with
// the copy; it returns the page Compact charged against proc's budget.
func (g *GroupAccumulator[T]) Compact(proc *pool.Process, seed *uint64) (*percentile.Sketch[T], func()) {
	cp := g.sketch.Clone()
	for i, wv := range g.buffer {
		cp.InsertWeighted(wv.value, wv.weight, i)
	}
	page := proc.Alloc(1)
	return cp, func() { proc.Free(page) }
}

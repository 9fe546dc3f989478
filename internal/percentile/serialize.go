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

import "github.com/sneller-contrib/kllpercentile/internal/kllerr"

// View is the compact, six-field wire shape of a finalized sketch: the
// same fields ToView/FromView move across a phase boundary as columns of
// an intermediate-state row. View never copies items/levels out of a
// Sketch it was built from by ToView; callers that mutate a View's slices
// after that call corrupt the sketch that produced it.
type View[T Ordered] struct {
	K        uint16
	N        uint64
	MinValue T
	MaxValue T
	Items    []T
	Levels   []uint32
}

// ToView exposes the sketch's current k, n, min/max, and backing
// items/levels without copying them. The sketch must already be
// finalized (its large-weight buffer, if any, flushed by the caller)
// before this is called.
func (s *Sketch[T]) ToView() View[T] {
	return View[T]{
		K:        s.k,
		N:        s.n,
		MinValue: s.minItem,
		MaxValue: s.maxItem,
		Items:    s.items,
		Levels:   s.levels,
	}
}

// FromView reconstructs a sketch from a View. In fast mode the fields are
// trusted as-is; in strict mode they are validated per spec: k > 0,
// len(levels) >= 2, levels strictly non-decreasing, len(items) ==
// levels[last], the level-weighted item count equals n, and min/max
// bracket every retained item.
func FromView[T Ordered](v View[T], strict bool, seed *uint64) (*Sketch[T], error) {
	less := defaultLess[T]()
	if strict {
		if err := validateView(v, less); err != nil {
			return nil, err
		}
	}
	numLevels := uint8(len(v.Levels) - 1)
	s := &Sketch[T]{
		k:                 v.K,
		minK:              v.K,
		m:                 defaultM,
		n:                 v.N,
		numLevels:         numLevels,
		levels:            append([]uint32(nil), v.Levels...),
		items:             append([]T(nil), v.Items...),
		isLevelZeroSorted: false,
		hasMinMax:         v.N > 0,
		minItem:           v.MinValue,
		maxItem:           v.MaxValue,
		less:              less,
		coin:              newCoin(seed),
		seed:              seed,
	}
	return s, nil
}

func validateView[T Ordered](v View[T], less Less[T]) error {
	const op = "percentile.FromView"
	if v.K == 0 {
		return kllerr.NewUser(op, "k must be > 0")
	}
	if len(v.Levels) < 2 {
		return kllerr.NewUser(op, "levels must have at least 2 entries, got %d", len(v.Levels))
	}
	for i := 1; i < len(v.Levels); i++ {
		if v.Levels[i] < v.Levels[i-1] {
			return kllerr.NewUser(op, "levels must be non-decreasing: levels[%d]=%d < levels[%d]=%d",
				i, v.Levels[i], i-1, v.Levels[i-1])
		}
	}
	last := v.Levels[len(v.Levels)-1]
	if uint32(len(v.Items)) != last {
		return kllerr.NewUser(op, "items length %d does not match levels.back() %d", len(v.Items), last)
	}
	if v.N > 0 {
		var weighted uint64
		weight := uint64(1)
		for lvl := 0; lvl+1 < len(v.Levels); lvl++ {
			pop := uint64(v.Levels[lvl+1] - v.Levels[lvl])
			weighted += pop * weight
			weight *= 2
		}
		if weighted != v.N {
			return kllerr.NewUser(op, "level-weighted item count %d does not equal n %d", weighted, v.N)
		}
		offset := v.Levels[0]
		for i := offset; i < last; i++ {
			item := v.Items[i]
			if less(item, v.MinValue) || less(v.MaxValue, item) {
				return kllerr.NewUser(op, "retained item %v falls outside [min, max] = [%v, %v]", item, v.MinValue, v.MaxValue)
			}
		}
	}
	return nil
}

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
	"sort"

	"github.com/sneller-contrib/kllpercentile/internal/kllerr"
)

// sortedView is the lazily built, fully sorted snapshot of a sketch's
// retained items, weighted by the implicit level weight (2^level) each
// item carries. Quantile, rank, and CDF queries all run against one of
// these instead of re-sorting the raw levels on every call.
type sortedView[T Ordered] struct {
	quantiles  []T
	cumWeights []uint64 // cumWeights[i] = sum of weight for quantiles[0..i]
	totalN     uint64
}

func (s *Sketch[T]) buildSortedView() *sortedView[T] {
	if s.sorted != nil {
		return s.sorted
	}
	if !s.isLevelZeroSorted {
		lo, hi := s.levels[0], s.levels[1]
		sortSlice(s.items[lo:hi], s.less)
		s.isLevelZeroSorted = true
	}
	n := s.NumRetained()

	type pair struct {
		item   T
		weight uint64
	}
	pairs := make([]pair, 0, n)
	weight := uint64(1)
	for lvl := uint8(0); lvl < s.numLevels; lvl++ {
		from, to := s.levels[lvl], s.levels[lvl+1]
		for i := from; i < to; i++ {
			pairs = append(pairs, pair{s.items[i], weight})
		}
		weight *= 2
	}

	sort.Slice(pairs, func(i, j int) bool { return s.less(pairs[i].item, pairs[j].item) })

	quantiles := make([]T, len(pairs))
	cumWeights := make([]uint64, len(pairs))
	var running uint64
	for i, p := range pairs {
		quantiles[i] = p.item
		running += p.weight
		cumWeights[i] = running
	}

	sv := &sortedView[T]{quantiles: quantiles, cumWeights: cumWeights, totalN: s.n}
	s.sorted = sv
	return sv
}

// Rank returns the normalized rank of item: the fraction of the input
// stream estimated to be less than (exclusive) or less-than-or-equal-to
// (inclusive) item.
func (s *Sketch[T]) Rank(item T, inclusive bool) (float64, error) {
	if s.IsEmpty() {
		return 0, errEmptySketch
	}
	sv := s.buildSortedView()
	idx := -1
	for i := len(sv.quantiles) - 1; i >= 0; i-- {
		q := sv.quantiles[i]
		if inclusive {
			if !s.less(item, q) {
				idx = i
				break
			}
		} else {
			if s.less(q, item) {
				idx = i
				break
			}
		}
	}
	if idx == -1 {
		return 0, nil
	}
	return float64(sv.cumWeights[idx]) / float64(sv.totalN), nil
}

// Quantile returns the estimated item at the given normalized rank in
// [0, 1].
func (s *Sketch[T]) Quantile(rank float64, inclusive bool) (T, error) {
	var zero T
	if s.IsEmpty() {
		return zero, errEmptySketch
	}
	if rank < 0 || rank > 1 {
		return zero, kllerr.NewUser("percentile", "normalized rank must be within [0, 1], got %f", rank)
	}
	// minItem/maxItem are tracked exactly on every insert, independent of
	// what compaction later retains; the sorted view only covers retained
	// items, so the true extremes must be special-cased here rather than
	// looked up through it.
	if rank == 0 {
		return s.minItem, nil
	}
	if rank == 1 {
		return s.maxItem, nil
	}
	sv := s.buildSortedView()
	natural := naturalRank(rank, sv.totalN, inclusive)

	idx := len(sv.cumWeights) - 1
	for i, w := range sv.cumWeights {
		if inclusive {
			if w >= natural {
				idx = i
				break
			}
		} else {
			if w > natural {
				idx = i
				break
			}
		}
	}
	return sv.quantiles[idx], nil
}

// Quantiles is the batch form of Quantile.
func (s *Sketch[T]) Quantiles(ranks []float64, inclusive bool) ([]T, error) {
	out := make([]T, len(ranks))
	for i, r := range ranks {
		v, err := s.Quantile(r, inclusive)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// CDF returns, for each split point plus an implicit final point at 1.0,
// the cumulative probability mass at or below (inclusive) or strictly
// below (exclusive) that split point.
func (s *Sketch[T]) CDF(splitPoints []T, inclusive bool) ([]float64, error) {
	if s.IsEmpty() {
		return nil, errEmptySketch
	}
	out := make([]float64, len(splitPoints)+1)
	for i, sp := range splitPoints {
		r, err := s.Rank(sp, inclusive)
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	out[len(out)-1] = 1.0
	return out, nil
}

// naturalRank converts a normalized rank into a 1-based cumulative weight
// threshold over totalN items.
func naturalRank(rank float64, totalN uint64, inclusive bool) uint64 {
	pos := uint64(rank * float64(totalN))
	if inclusive {
		if pos == 0 {
			return 1
		}
		return pos
	}
	return pos + 1
}

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
	"math/bits"

	"github.com/sneller-contrib/kllpercentile/internal/kllerr"
)

// Sketch is a KLL quantile sketch over items of kind T. It is not safe for
// concurrent use; callers running multiple sketches concurrently should
// give each its own instance (spec.md's session-allocator rule).
type Sketch[T Ordered] struct {
	k, minK           uint16
	m                 uint8
	n                 uint64
	numLevels         uint8
	levels            []uint32
	items             []T
	isLevelZeroSorted bool
	hasMinMax         bool
	minItem, maxItem  T
	less              Less[T]
	coin              coin
	seed              *uint64

	sorted *sortedView[T]
}

// New returns an empty sketch with accuracy parameter k (spec.md's
// "accuracy" argument) and a fixed compaction seed. seed == nil draws a
// fresh, non-reproducible seed from the runtime.
func New[T Ordered](k uint16, seed *uint64) (*Sketch[T], error) {
	if k < minK || k > maxK {
		return nil, kllerr.NewUser("percentile.New", "k must be in [%d, %d], got %d", minK, maxK, k)
	}
	return &Sketch[T]{
		k:         k,
		minK:      k,
		m:         defaultM,
		numLevels: 1,
		levels:    []uint32{uint32(k), uint32(k)},
		items:     make([]T, k),
		less:      defaultLess[T](),
		coin:      newCoin(seed),
		seed:      seed,
	}, nil
}

// NewDefault returns an empty sketch with the default accuracy parameter,
// giving a normalized rank error of roughly 1.65%.
func NewDefault[T Ordered](seed *uint64) (*Sketch[T], error) {
	return New[T](defaultK, seed)
}

func (s *Sketch[T]) IsEmpty() bool { return s.n == 0 }
func (s *Sketch[T]) N() uint64     { return s.n }
func (s *Sketch[T]) K() uint16     { return s.k }

// IsEstimationMode reports whether the sketch has compacted at least once,
// i.e. whether retained items carry implicit weight greater than one.
func (s *Sketch[T]) IsEstimationMode() bool { return s.numLevels > 1 }

// NumRetained returns the number of items currently retained in the
// sketch's backing levels.
func (s *Sketch[T]) NumRetained() uint32 {
	return s.levels[s.numLevels] - s.levels[0]
}

// Min and Max return the exact minimum and maximum values ever inserted;
// unlike quantile queries these are exact, not estimates (spec.md §4.1).
func (s *Sketch[T]) Min() (T, bool) { return s.minItem, s.hasMinMax }
func (s *Sketch[T]) Max() (T, bool) { return s.maxItem, s.hasMinMax }

// Insert adds a single occurrence of item to the sketch.
func (s *Sketch[T]) Insert(item T) {
	s.updateItem(item)
	s.sorted = nil
}

// InsertWeighted adds item with the given weight without performing weight
// individual insertions: weight is split into its binary representation
// and each set bit becomes one pre-populated level of a small auxiliary
// sketch, which is then merged into this sketch in one pass. This is the
// mechanism the large-weight buffer (spec.md §4.5) flushes through for
// weights at or above the buffering threshold; ordinary per-row inserts
// with weight under the threshold should instead call Insert weight times
// at the caller, which keeps small-weight accounting exact and simple.
func (s *Sketch[T]) InsertWeighted(item T, weight uint64, ordinal int) {
	if weight == 0 {
		return
	}
	aux := s.binaryLevelsAuxSketch(item, weight, ordinal)
	s.Merge(aux)
}

// binaryLevelsAuxSketch builds a throwaway sketch whose level i holds item
// exactly once iff bit i of weight is set, so merging it into a sketch
// adds item with total weight equal to weight, in O(log(weight)) work
// instead of O(weight).
func (s *Sketch[T]) binaryLevelsAuxSketch(item T, weight uint64, ordinal int) *Sketch[T] {
	numLevels := uint8(bits.Len64(weight))
	if numLevels == 0 {
		numLevels = 1
	}
	levels := make([]uint32, numLevels+1)
	items := make([]T, numLevels)
	pos := uint32(0)
	for lvl := uint8(0); lvl < numLevels; lvl++ {
		levels[lvl] = pos
		if weight&(1<<lvl) != 0 {
			items[pos] = item
			pos++
		}
	}
	levels[numLevels] = pos
	return &Sketch[T]{
		k:                 s.k,
		minK:              s.k,
		m:                 s.m,
		n:                 weight,
		numLevels:         numLevels,
		levels:            levels,
		items:             items,
		isLevelZeroSorted: true,
		hasMinMax:         true,
		minItem:           item,
		maxItem:           item,
		less:              s.less,
		coin:              newCoin(subSeed(s.seed, ordinal)),
		seed:              subSeed(s.seed, ordinal),
	}
}

func (s *Sketch[T]) updateItem(item T) {
	if !s.hasMinMax {
		s.minItem, s.maxItem = item, item
		s.hasMinMax = true
	} else {
		if s.less(item, s.minItem) {
			s.minItem = item
		}
		if s.less(s.maxItem, item) {
			s.maxItem = item
		}
	}
	if s.levels[0] == 0 {
		s.compressWhileUpdatingSketch()
	}
	s.n++
	s.isLevelZeroSorted = false
	next := s.levels[0] - 1
	s.levels[0] = next
	s.items[next] = item
}

func (s *Sketch[T]) compressWhileUpdatingSketch() {
	level := findLevelToCompact(s.k, s.m, s.numLevels, s.levels)
	if level == s.numLevels-1 {
		s.addEmptyTopLevel()
	}
	lv := s.levels
	rawBeg, rawEnd := lv[level], lv[level+1]
	popAbove := lv[level+2] - rawEnd
	rawPop := rawEnd - rawBeg
	oddPop := rawPop%2 == 1
	adjBeg := rawBeg
	if oddPop {
		adjBeg++
	}
	adjPop := rawPop
	if oddPop {
		adjPop--
	}
	half := adjPop / 2

	if level == 0 {
		sortSlice(s.items[adjBeg:adjBeg+adjPop], s.less)
	}
	if popAbove == 0 {
		randomlyHalveUpItems(s.coin, s.items, adjBeg, adjPop)
	} else {
		randomlyHalveDownItems(s.coin, s.items, adjBeg, adjPop)
		mergeSortedItemsArrays(s.items, adjBeg, half, s.items, rawEnd, popAbove, s.items, adjBeg+half, s.less)
	}
	newIndex := lv[level+1] - half
	s.levels[level+1] = newIndex
	if oddPop {
		s.levels[level] = lv[level+1] - 1
		s.items[s.levels[level]] = s.items[rawBeg]
	} else {
		s.levels[level] = lv[level+1]
	}
	if level > 0 {
		amount := rawBeg - lv[0]
		for i := amount; i > 0; i-- {
			tgt := lv[0] + half + i - 1
			src := lv[0] + i - 1
			s.items[tgt] = s.items[src]
		}
	}
	for l := uint8(0); l < level; l++ {
		s.levels[l] = lv[l] + half
	}
}

func (s *Sketch[T]) addEmptyTopLevel() {
	curLevels := s.levels
	curNumLevels := s.numLevels
	curCap := curLevels[curNumLevels]
	curItems := s.items

	delta := levelCapacity(s.k, curNumLevels+1, 0, s.m)
	newCap := curCap + delta

	growLevels := len(curLevels) < int(curNumLevels+2)
	var newLevels []uint32
	var newNumLevels uint8
	if growLevels {
		newLevels = make([]uint32, curNumLevels+2)
		copy(newLevels, curLevels)
		newNumLevels = curNumLevels + 1
	} else {
		newLevels = curLevels
		newNumLevels = curNumLevels
	}
	for level := uint8(0); level <= newNumLevels-1; level++ {
		newLevels[level] += delta
	}
	newLevels[newNumLevels] = newCap

	newItems := make([]T, newCap)
	for i := uint32(0); i < curCap; i++ {
		newItems[i+delta] = curItems[i]
	}
	s.numLevels = newNumLevels
	s.levels = newLevels
	s.items = newItems
}

// Merge folds other into s. other is left untouched.
func (s *Sketch[T]) Merge(other *Sketch[T]) {
	if other.IsEmpty() {
		return
	}
	s.sorted = nil

	myEmpty := s.IsEmpty()
	var myMin, myMax T
	if !myEmpty {
		myMin, myMax = s.minItem, s.maxItem
	}
	myMinK := s.minK
	finalN := s.n + other.n

	otherNumLevels := other.numLevels
	otherLevels := other.levels
	otherItems := other.totalItemsArray()

	for i := otherLevels[0]; i < otherLevels[1]; i++ {
		s.updateItem(otherItems[i])
	}

	myCurNumLevels := s.numLevels
	myCurLevels := s.levels
	myCurItems := s.totalItemsArray()

	newNumLevels := myCurNumLevels
	newLevels := myCurLevels
	newItems := myCurItems

	if otherNumLevels > 1 {
		tmpNeeded := s.NumRetained() + getNumRetainedAboveLevelZero(otherNumLevels, otherLevels)
		workbuf := make([]T, tmpNeeded)
		ub := ubOnNumLevels(finalN)
		worklevels := make([]uint32, ub+2)
		outlevels := make([]uint32, ub+2)

		provisional := myCurNumLevels
		if otherNumLevels > provisional {
			provisional = otherNumLevels
		}

		populateItemWorkArrays(workbuf, worklevels, provisional,
			myCurNumLevels, myCurLevels, myCurItems,
			otherNumLevels, otherLevels, otherItems, s.less)

		numLevels, targetCount, curCount := generalItemsCompress(
			s.k, s.m, provisional, workbuf, worklevels, workbuf, outlevels,
			s.isLevelZeroSorted, s.less, s.coin)

		newNumLevels = numLevels

		if int(targetCount) == len(myCurItems) {
			newItems = myCurItems
		} else {
			newItems = make([]T, targetCount)
		}
		freeAtBottom := targetCount - curCount
		for i := uint32(0); i < curCount; i++ {
			newItems[freeAtBottom+i] = workbuf[outlevels[0]+i]
		}
		shift := freeAtBottom - outlevels[0]

		finalLevelsLen := uint32(len(myCurLevels))
		if finalLevelsLen < uint32(newNumLevels+1) {
			finalLevelsLen = uint32(newNumLevels + 1)
		}
		newLevels = make([]uint32, finalLevelsLen)
		for lvl := uint8(0); lvl < newNumLevels+1; lvl++ {
			newLevels[lvl] = outlevels[lvl] + shift
		}
	}

	s.n = finalN
	if other.IsEstimationMode() {
		if other.minK < myMinK {
			s.minK = other.minK
		} else {
			s.minK = myMinK
		}
	}
	s.numLevels = newNumLevels
	s.levels = newLevels
	s.items = newItems

	if myEmpty {
		s.minItem, s.maxItem = other.minItem, other.maxItem
		s.hasMinMax = other.hasMinMax
	} else {
		if s.less(other.minItem, myMin) {
			s.minItem = other.minItem
		} else {
			s.minItem = myMin
		}
		if s.less(myMax, other.maxItem) {
			s.maxItem = other.maxItem
		} else {
			s.maxItem = myMax
		}
	}
}

func (s *Sketch[T]) totalItemsArray() []T {
	if s.n == 0 {
		return make([]T, s.k)
	}
	out := make([]T, len(s.items))
	copy(out, s.items)
	return out
}

// Reset returns the sketch to its just-constructed, empty state, keeping
// its k, m, and compaction seed.
func (s *Sketch[T]) Reset() {
	s.n = 0
	s.minK = s.k
	s.numLevels = 1
	s.levels = []uint32{uint32(s.k), uint32(s.k)}
	s.items = make([]T, s.k)
	s.isLevelZeroSorted = false
	s.hasMinMax = false
	s.sorted = nil
}

// Clone returns a deep copy of the sketch's items and levels. The copy
// shares the sketch's compaction coin: coin flips made by either one
// advance the same random stream, so the two must not be mutated
// concurrently.
func (s *Sketch[T]) Clone() *Sketch[T] {
	cp := *s
	cp.levels = append([]uint32(nil), s.levels...)
	cp.items = append([]T(nil), s.items...)
	cp.sorted = nil
	return &cp
}
